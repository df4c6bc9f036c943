package budget

import (
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func limit(v float64) *float64 { return &v }

func defaultTable() Table {
	return TableFromConfig(domain.BudgetConfig{})
}

func TestAnalyzeBudgetsDiningScenario(t *testing.T) {
	got := AnalyzeBudgets([]domain.CategorySpendSummary{{Category: "dining", Total: 380}}, defaultTable())
	require.Len(t, got, 1)

	assert.Equal(t, "dining", got[0].Category)
	assert.Equal(t, 400.0, got[0].Budget)
	assert.Equal(t, 20.0, got[0].Remaining)
	assert.Equal(t, 95.0, got[0].Percentage)
	assert.Equal(t, domain.BandDanger, got[0].Status)
}

func TestBudgetBoundaries(t *testing.T) {
	tests := []struct {
		spent float64
		want  domain.StatusBand
	}{
		{300, domain.BandGood},       // 75%
		{300.04, domain.BandWarning}, // 75.01%
		{360, domain.BandWarning},    // 90%
		{360.04, domain.BandDanger},  // 90.01%
	}

	for _, tt := range tests {
		got := AnalyzeBudgets([]domain.CategorySpendSummary{{Category: "dining", Total: tt.spent}}, defaultTable())
		assert.Equal(t, tt.want, got[0].Status, "spent %v", tt.spent)
	}
}

func TestMissingBudgetUsesDefault(t *testing.T) {
	got := AnalyzeBudgets([]domain.CategorySpendSummary{{Category: "pets", Total: 50}}, defaultTable())
	require.Len(t, got, 1)
	assert.Equal(t, DefaultBudget, got[0].Budget)
	assert.Equal(t, 25.0, got[0].Percentage)
	assert.Equal(t, domain.BandGood, got[0].Status)
}

func TestUtilizationBoundaries(t *testing.T) {
	tests := []struct {
		name  string
		card  *domain.Card
		want  domain.StatusBand
		util  float64
		limit float64
	}{
		{"exactly 80", &domain.Card{ID: "c1", CreditLimit: limit(5000), CurrentMonthSpending: 4000}, domain.BandWarning, 80, 5000},
		{"just over 80", &domain.Card{ID: "c2", CreditLimit: limit(10000), CurrentMonthSpending: 8001}, domain.BandDanger, 80.01, 10000},
		{"exactly 50", &domain.Card{ID: "c3", CreditLimit: limit(2000), CurrentMonthSpending: 1000}, domain.BandGood, 50, 2000},
		{"missing limit", &domain.Card{ID: "c4", CurrentMonthSpending: 600}, domain.BandWarning, 60, 1000},
		{"zero limit", &domain.Card{ID: "c5", CreditLimit: limit(0), CurrentMonthSpending: 100}, domain.BandGood, 10, 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AnalyzeUtilization([]*domain.Card{tt.card}, defaultTable())
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0].Status)
			assert.Equal(t, tt.util, got[0].Utilization)
			assert.Equal(t, tt.limit, got[0].SpendingLimit)
		})
	}
}

func TestAnalyze(t *testing.T) {
	spend := []domain.CategorySpendSummary{
		{Category: "groceries", Total: 250.255},
		{Category: "dining", Total: 100},
	}
	cards := []*domain.Card{{ID: "c1", Name: "Blue Cash", CreditLimit: limit(1000), CurrentMonthSpending: 350.25}}

	a := Analyze(spend, cards, defaultTable())
	assert.Len(t, a.BudgetsByCategory, 2)
	assert.Len(t, a.CardUtilization, 1)
	assert.Equal(t, 3050.0, a.TotalBudget)
	assert.Equal(t, 350.26, a.TotalSpent)
	assert.Equal(t, 250.26, a.BudgetsByCategory[0].Spent)
	assert.Equal(t, "Blue Cash", a.CardUtilization[0].CardName)
	assert.Equal(t, 649.75, a.CardUtilization[0].Remaining)
}

func TestAnalyzeEmpty(t *testing.T) {
	a := Analyze(nil, nil, defaultTable())
	assert.NotNil(t, a.BudgetsByCategory)
	assert.NotNil(t, a.CardUtilization)
	assert.Zero(t, a.TotalSpent)
}
