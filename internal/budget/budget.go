// Package budget classifies category spend against declared budgets and card
// spend against credit limits.
package budget

import (
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/money"
	"github.com/shopspring/decimal"
)

const (
	// DefaultBudget applies to categories without a declared budget.
	DefaultBudget = 200.0

	// DefaultCreditLimit applies to cards without a declared limit.
	DefaultCreditLimit = 1000.0
)

var (
	budgetDanger       = decimal.NewFromInt(90)
	budgetWarning      = decimal.NewFromInt(75)
	utilizationDanger  = decimal.NewFromInt(80)
	utilizationWarning = decimal.NewFromInt(50)
)

// Table holds the declared monthly budgets.
type Table struct {
	Categories         map[string]float64
	DefaultBudget      float64
	DefaultCreditLimit float64
}

// TableFromConfig builds a Table, filling unset values with the defaults.
func TableFromConfig(cfg domain.BudgetConfig) Table {
	t := Table{
		Categories:         cfg.Categories,
		DefaultBudget:      cfg.DefaultBudget,
		DefaultCreditLimit: cfg.DefaultCreditLimit,
	}
	if t.Categories == nil {
		t.Categories = domain.DefaultBudgets()
	}
	if t.DefaultBudget <= 0 {
		t.DefaultBudget = DefaultBudget
	}
	if t.DefaultCreditLimit <= 0 {
		t.DefaultCreditLimit = DefaultCreditLimit
	}
	return t
}

func (t Table) budgetFor(category string) float64 {
	if b, ok := t.Categories[category]; ok && b > 0 {
		return b
	}
	if t.DefaultBudget > 0 {
		return t.DefaultBudget
	}
	return DefaultBudget
}

func (t Table) limitFor(card *domain.Card) float64 {
	if card.CreditLimit != nil && *card.CreditLimit > 0 {
		return *card.CreditLimit
	}
	if t.DefaultCreditLimit > 0 {
		return t.DefaultCreditLimit
	}
	return DefaultCreditLimit
}

// BudgetStatus is one category measured against its budget.
type BudgetStatus struct {
	Category   string            `json:"category"`
	Spent      float64           `json:"spent"`
	Budget     float64           `json:"budget"`
	Remaining  float64           `json:"remaining"`
	Percentage float64           `json:"percentage"`
	Status     domain.StatusBand `json:"status"`
}

// UtilizationStatus is one card measured against its credit limit.
type UtilizationStatus struct {
	CardID        string            `json:"cardId"`
	CardName      string            `json:"cardName"`
	SpendingLimit float64           `json:"spendingLimit"`
	Spent         float64           `json:"spent"`
	Remaining     float64           `json:"remaining"`
	Utilization   float64           `json:"utilization"`
	Status        domain.StatusBand `json:"status"`
}

// Analysis is the combined budget and utilization report.
type Analysis struct {
	BudgetsByCategory []BudgetStatus      `json:"budgetsByCategory"`
	CardUtilization   []UtilizationStatus `json:"cardUtilization"`
	TotalBudget       float64             `json:"totalBudget"`
	TotalSpent        float64             `json:"totalSpent"`
}

// AnalyzeBudgets rates each category: danger above 90%, warning above 75%.
func AnalyzeBudgets(spend []domain.CategorySpendSummary, table Table) []BudgetStatus {
	out := make([]BudgetStatus, 0, len(spend))
	for _, s := range spend {
		spent := money.Of(s.Total)
		budget := money.Of(table.budgetFor(s.Category))
		pct := money.Percent(spent, budget)

		out = append(out, BudgetStatus{
			Category:   s.Category,
			Spent:      money.Round2(spent),
			Budget:     money.Round2(budget),
			Remaining:  money.Round2(budget.Sub(spent)),
			Percentage: money.Round2(pct),
			Status:     band(pct, budgetDanger, budgetWarning),
		})
	}
	return out
}

// AnalyzeUtilization rates each card: danger above 80%, warning above 50%.
func AnalyzeUtilization(cards []*domain.Card, table Table) []UtilizationStatus {
	out := make([]UtilizationStatus, 0, len(cards))
	for _, c := range cards {
		if c == nil {
			continue
		}
		spent := money.Of(c.CurrentMonthSpending)
		limit := money.Of(table.limitFor(c))
		pct := money.Percent(spent, limit)

		out = append(out, UtilizationStatus{
			CardID:        c.ID,
			CardName:      c.Name,
			SpendingLimit: money.Round2(limit),
			Spent:         money.Round2(spent),
			Remaining:     money.Round2(limit.Sub(spent)),
			Utilization:   money.Round2(pct),
			Status:        band(pct, utilizationDanger, utilizationWarning),
		})
	}
	return out
}

// Analyze runs both analyses. TotalBudget sums the declared table, not only
// the categories with spend.
func Analyze(spend []domain.CategorySpendSummary, cards []*domain.Card, table Table) Analysis {
	totalBudget := decimal.Zero
	for _, b := range table.Categories {
		totalBudget = totalBudget.Add(money.Of(b))
	}
	totalSpent := decimal.Zero
	for _, s := range spend {
		totalSpent = totalSpent.Add(money.Of(s.Total))
	}

	return Analysis{
		BudgetsByCategory: AnalyzeBudgets(spend, table),
		CardUtilization:   AnalyzeUtilization(cards, table),
		TotalBudget:       money.Round2(totalBudget),
		TotalSpent:        money.Round2(totalSpent),
	}
}

// band compares the unrounded percentage so 80.001 is already over 80.
func band(pct, danger, warning decimal.Decimal) domain.StatusBand {
	switch {
	case pct.GreaterThan(danger):
		return domain.BandDanger
	case pct.GreaterThan(warning):
		return domain.BandWarning
	default:
		return domain.BandGood
	}
}
