package spend

import (
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func entry(merchant, category string, amount float64, at time.Time) *domain.Transaction {
	return &domain.Transaction{
		ID:           merchant + at.Format(time.RFC3339),
		UserID:       "user-001",
		MerchantName: merchant,
		Category:     category,
		Amount:       amount,
		Timestamp:    at,
		Status:       domain.StatusCompleted,
	}
}

func TestAggregate(t *testing.T) {
	txs := []*domain.Transaction{
		entry("Corner Grocer", "groceries", -120.10, base),
		entry("Corner Grocer", "groceries", -79.90, base.Add(time.Hour)),
		entry("Bistro", "dining", -50, base),
		entry("Cinema", "entertainment", -200, base),
		entry("Employer", "income", 3000, base),
		entry("Mystery", "", -25, base),
		nil,
	}

	got := Aggregate(txs, domain.Window{})
	require.Len(t, got, 4)

	// groceries and entertainment tie at 200, category breaks the tie
	assert.Equal(t, "entertainment", got[0].Category)
	assert.Equal(t, "groceries", got[1].Category)
	assert.Equal(t, 200.0, got[1].Total)
	assert.Equal(t, 2, got[1].Count)
	assert.Equal(t, "dining", got[2].Category)
	assert.Equal(t, domain.OtherCategory, got[3].Category)

	assert.Equal(t, 42.11, got[0].Percentage)
	assert.Equal(t, 475.0, Total(got))
}

func TestAggregateRespectsWindow(t *testing.T) {
	txs := []*domain.Transaction{
		entry("Bistro", "dining", -50, base),
		entry("Bistro", "dining", -70, base.AddDate(0, -1, 0)),
	}

	got := Aggregate(txs, domain.MonthWindow(base))
	require.Len(t, got, 1)
	assert.Equal(t, 50.0, got[0].Total)
	assert.Equal(t, 100.0, got[0].Percentage)
}

func TestAggregateEmpty(t *testing.T) {
	got := Aggregate(nil, domain.Window{})
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestAggregateDecimalSums(t *testing.T) {
	var txs []*domain.Transaction
	for i := 0; i < 10; i++ {
		txs = append(txs, entry("Cafe", "dining", -0.1, base))
	}

	got := Aggregate(txs, domain.Window{})
	require.Len(t, got, 1)
	assert.Equal(t, 1.0, got[0].Total)
}

func TestAggregateMerchants(t *testing.T) {
	txs := []*domain.Transaction{
		entry("Corner Grocer", "groceries", -100, base),
		entry("Corner Grocer", "household", -20, base.Add(48*time.Hour)),
		entry("Bistro", "dining", -60, base),
		entry("Arcade", "entertainment", -60, base),
		entry("Employer", "income", 3000, base),
	}

	got := AggregateMerchants(txs, domain.Window{}, 0)
	require.Len(t, got, 3)

	assert.Equal(t, "Corner Grocer", got[0].Merchant)
	assert.Equal(t, 120.0, got[0].TotalSpent)
	assert.Equal(t, 2, got[0].Count)
	assert.Equal(t, []string{"groceries", "household"}, got[0].Categories)
	assert.True(t, got[0].LastTransaction.Equal(base.Add(48*time.Hour)))

	assert.Equal(t, "Arcade", got[1].Merchant)
	assert.Equal(t, "Bistro", got[2].Merchant)

	limited := AggregateMerchants(txs, domain.Window{}, 1)
	require.Len(t, limited, 1)
	assert.Equal(t, "Corner Grocer", limited[0].Merchant)
}

func TestTrends(t *testing.T) {
	txs := []*domain.Transaction{
		entry("Bistro", "dining", -50, base),
		entry("Employer", "income", 1000, base),
		entry("Grocer", "groceries", -200, base.AddDate(0, -1, 0)),
		entry("Ancient", "other", -999, base.AddDate(-1, 0, 0)),
	}

	report, err := Trends(txs, domain.PeriodMonthly, base.AddDate(0, -6, 0))
	require.NoError(t, err)
	require.Len(t, report.Trends, 2)

	assert.Equal(t, "2025-02", report.Trends[0].Period)
	assert.Equal(t, 200.0, report.Trends[0].Spending)
	assert.Equal(t, -200.0, report.Trends[0].NetFlow)

	assert.Equal(t, "2025-03", report.Trends[1].Period)
	assert.Equal(t, 50.0, report.Trends[1].Spending)
	assert.Equal(t, 1000.0, report.Trends[1].Income)
	assert.Equal(t, 950.0, report.Trends[1].NetFlow)

	assert.Equal(t, 250.0, report.TotalSpending)
	assert.Equal(t, 1000.0, report.TotalIncome)
	assert.Equal(t, 750.0, report.NetFlow)
}

func TestTrendPeriods(t *testing.T) {
	tests := []struct {
		period domain.TrendPeriod
		at     time.Time
		want   string
	}{
		{"", base, "2025-03"},
		{domain.PeriodDaily, base, "2025-03-10"},
		// 2025-01-01 is a Wednesday: the days before the first Sunday are week 00
		{domain.PeriodWeekly, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), "2025-W00"},
		{domain.PeriodWeekly, time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC), "2025-W01"},
		{domain.PeriodWeekly, time.Date(2025, 1, 11, 0, 0, 0, 0, time.UTC), "2025-W01"},
		{domain.PeriodWeekly, time.Date(2025, 1, 12, 0, 0, 0, 0, time.UTC), "2025-W02"},
	}

	for _, tt := range tests {
		t.Run(string(tt.period)+"/"+tt.want, func(t *testing.T) {
			report, err := Trends([]*domain.Transaction{entry("Cafe", "dining", -1, tt.at)}, tt.period, time.Time{})
			require.NoError(t, err)
			require.Len(t, report.Trends, 1)
			assert.Equal(t, tt.want, report.Trends[0].Period)
		})
	}

	_, err := Trends(nil, "hourly", time.Time{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
