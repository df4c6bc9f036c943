// Package spend aggregates outgoing ledger amounts by category, merchant and
// period. Everything here is pure: callers load the transactions.
package spend

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/money"
	"github.com/shopspring/decimal"
)

// UncategorizedCategory collects outgoing amounts with no category.
const UncategorizedCategory = domain.OtherCategory

type bucket struct {
	total decimal.Decimal
	count int
}

// Aggregate sums abs(amount) of outgoing transactions per category within
// window. Results are ordered by total descending, then category ascending.
func Aggregate(txs []*domain.Transaction, window domain.Window) []domain.CategorySpendSummary {
	buckets := make(map[string]*bucket)
	grand := decimal.Zero

	for _, tx := range txs {
		if tx == nil || !tx.IsOutgoing() || !window.Contains(tx.Timestamp) {
			continue
		}
		category := normalizeCategory(tx.Category)
		b, ok := buckets[category]
		if !ok {
			b = &bucket{}
			buckets[category] = b
		}
		amount := money.Abs(tx.Amount)
		b.total = b.total.Add(amount)
		b.count++
		grand = grand.Add(amount)
	}

	type row struct {
		category string
		*bucket
	}
	rows := make([]row, 0, len(buckets))
	for category, b := range buckets {
		rows = append(rows, row{category, b})
	}
	sort.Slice(rows, func(i, j int) bool {
		if c := rows[i].total.Cmp(rows[j].total); c != 0 {
			return c > 0
		}
		return rows[i].category < rows[j].category
	})

	out := make([]domain.CategorySpendSummary, len(rows))
	for i, r := range rows {
		out[i] = domain.CategorySpendSummary{
			Category:   r.category,
			Total:      money.Round2(r.total),
			Count:      r.count,
			Percentage: money.Round2(money.Percent(r.total, grand)),
			Window:     window,
		}
	}
	return out
}

// Total sums the category totals.
func Total(summaries []domain.CategorySpendSummary) float64 {
	total := decimal.Zero
	for _, s := range summaries {
		total = total.Add(money.Of(s.Total))
	}
	return money.Round2(total)
}

type merchantBucket struct {
	total      decimal.Decimal
	count      int
	categories map[string]bool
	last       time.Time
}

// AggregateMerchants sums outgoing amounts per merchant within window,
// ordered by total descending, then merchant ascending. A positive limit
// truncates the result.
func AggregateMerchants(txs []*domain.Transaction, window domain.Window, limit int) []domain.MerchantSpendSummary {
	buckets := make(map[string]*merchantBucket)

	for _, tx := range txs {
		if tx == nil || !tx.IsOutgoing() || !window.Contains(tx.Timestamp) {
			continue
		}
		name := strings.TrimSpace(tx.MerchantName)
		b, ok := buckets[name]
		if !ok {
			b = &merchantBucket{categories: make(map[string]bool)}
			buckets[name] = b
		}
		b.total = b.total.Add(money.Abs(tx.Amount))
		b.count++
		b.categories[normalizeCategory(tx.Category)] = true
		if tx.Timestamp.After(b.last) {
			b.last = tx.Timestamp
		}
	}

	names := make([]string, 0, len(buckets))
	for name := range buckets {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if c := buckets[names[i]].total.Cmp(buckets[names[j]].total); c != 0 {
			return c > 0
		}
		return names[i] < names[j]
	})
	if limit > 0 && len(names) > limit {
		names = names[:limit]
	}

	out := make([]domain.MerchantSpendSummary, len(names))
	for i, name := range names {
		b := buckets[name]
		categories := make([]string, 0, len(b.categories))
		for c := range b.categories {
			categories = append(categories, c)
		}
		sort.Strings(categories)

		out[i] = domain.MerchantSpendSummary{
			Merchant:        name,
			TotalSpent:      money.Round2(b.total),
			Count:           b.count,
			Categories:      categories,
			LastTransaction: b.last,
		}
	}
	return out
}

// TrendReport is the money flow per period plus totals.
type TrendReport struct {
	Trends        []domain.PeriodFlow `json:"trends"`
	TotalSpending float64             `json:"totalSpending"`
	TotalIncome   float64             `json:"totalIncome"`
	NetFlow       float64             `json:"netFlow"`
}

type flow struct {
	spending decimal.Decimal
	income   decimal.Decimal
}

// Trends buckets transactions at or after since into periods and reports
// spending, income and net flow per period in ascending period order.
func Trends(txs []*domain.Transaction, period domain.TrendPeriod, since time.Time) (TrendReport, error) {
	keyFn, err := periodKey(period)
	if err != nil {
		return TrendReport{}, err
	}

	flows := make(map[string]*flow)
	for _, tx := range txs {
		if tx == nil || (!since.IsZero() && tx.Timestamp.Before(since)) {
			continue
		}
		key := keyFn(tx.Timestamp.UTC())
		f, ok := flows[key]
		if !ok {
			f = &flow{}
			flows[key] = f
		}
		if tx.IsOutgoing() {
			f.spending = f.spending.Add(money.Abs(tx.Amount))
		} else if tx.Amount > 0 {
			f.income = f.income.Add(money.Of(tx.Amount))
		}
	}

	keys := make([]string, 0, len(flows))
	for k := range flows {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	report := TrendReport{Trends: make([]domain.PeriodFlow, len(keys))}
	var spending, income decimal.Decimal
	for i, k := range keys {
		f := flows[k]
		report.Trends[i] = domain.PeriodFlow{
			Period:   k,
			Spending: money.Round2(f.spending),
			Income:   money.Round2(f.income),
			NetFlow:  money.Round2(f.income.Sub(f.spending)),
		}
		spending = spending.Add(f.spending)
		income = income.Add(f.income)
	}
	report.TotalSpending = money.Round2(spending)
	report.TotalIncome = money.Round2(income)
	report.NetFlow = money.Round2(income.Sub(spending))
	return report, nil
}

func periodKey(period domain.TrendPeriod) (func(time.Time) string, error) {
	switch period {
	case "", domain.PeriodMonthly:
		return func(t time.Time) string { return t.Format("2006-01") }, nil
	case domain.PeriodWeekly:
		return weekKey, nil
	case domain.PeriodDaily:
		return func(t time.Time) string { return t.Format("2006-01-02") }, nil
	}
	return nil, fmt.Errorf("%w: unknown period %q", domain.ErrInvalidInput, period)
}

// weekKey numbers weeks from the first Sunday of the year, week 00 holding
// the days before it.
func weekKey(t time.Time) string {
	week := (t.YearDay() + 6 - int(t.Weekday())) / 7
	return fmt.Sprintf("%d-W%02d", t.Year(), week)
}

func normalizeCategory(c string) string {
	c = strings.ToLower(strings.TrimSpace(c))
	if c == "" {
		return UncategorizedCategory
	}
	return c
}
