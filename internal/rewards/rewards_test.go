package rewards

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func card(id, cardType, name string) *domain.Card {
	return &domain.Card{ID: id, UserID: "user-001", Type: cardType, Name: name}
}

func summary(category string, total float64) domain.CategorySpendSummary {
	return domain.CategorySpendSummary{Category: category, Total: total}
}

func defaultTable(t *testing.T) *Table {
	t.Helper()
	table, err := DefaultTable()
	require.NoError(t, err)
	return table
}

func TestLookup(t *testing.T) {
	table := defaultTable(t)
	amex := card("c1", "AMEX", "Blue Cash")

	rate, ok := table.Lookup(amex, "groceries")
	assert.True(t, ok)
	assert.Equal(t, 6.0, rate)

	rate, ok = table.Lookup(amex, "Groceries")
	assert.True(t, ok)
	assert.Equal(t, 6.0, rate)

	rate, ok = table.Lookup(amex, "dining")
	assert.True(t, ok, "falls back to other")
	assert.Equal(t, 1.0, rate)

	_, ok = table.Lookup(card("c2", "DISCOVER", "It"), "dining")
	assert.False(t, ok)
	assert.Equal(t, DefaultRate, table.RateFor(card("c2", "DISCOVER", "It"), "dining"))
}

func TestLookupWithoutOther(t *testing.T) {
	table := NewTable(domain.RewardRateTable{
		"VISA": {"Plain": {"Travel": 2}},
	})
	plain := card("c1", "VISA", "Plain")

	rate, ok := table.Lookup(plain, "travel")
	assert.True(t, ok)
	assert.Equal(t, 2.0, rate)

	_, ok = table.Lookup(plain, "dining")
	assert.False(t, ok)
	assert.Equal(t, DefaultRate, table.RateFor(plain, "dining"))
}

func TestOptimizeGroceriesScenario(t *testing.T) {
	table := NewTable(domain.RewardRateTable{
		"AMEX": {"Card A": {"groceries": 6, "other": 1}},
		"VISA": {"Card B": {"other": 1}},
	})
	cards := []*domain.Card{card("a", "AMEX", "Card A"), card("b", "VISA", "Card B")}

	plan := Optimize([]domain.CategorySpendSummary{summary("groceries", 600)}, cards, table, 5)
	require.Len(t, plan.Optimizations, 1)

	rec := plan.Optimizations[0]
	require.NotNil(t, rec.BestCard)
	assert.Equal(t, "a", rec.BestCard.CardID)
	assert.Equal(t, "Card A", rec.BestCard.CardName)
	assert.Equal(t, "6%", rec.RewardRate)
	assert.Equal(t, 600.0, rec.MonthlySpending)
	assert.Equal(t, 36.0, rec.PotentialMonthlyRewards)
	assert.Equal(t, 432.0, plan.PotentialAnnualRewards)
}

func TestOptimizeTieKeepsFirstCard(t *testing.T) {
	table := defaultTable(t)
	visa := card("visa", "VISA", "Travel Rewards Visa")
	mc := card("mc", "MASTERCARD", "Premium Rewards Mastercard")
	spend := []domain.CategorySpendSummary{summary("shopping", 100)}

	for i := 0; i < 10; i++ {
		plan := Optimize(spend, []*domain.Card{visa, mc}, table, 5)
		assert.Equal(t, "visa", plan.Optimizations[0].BestCard.CardID)

		plan = Optimize(spend, []*domain.Card{mc, visa}, table, 5)
		assert.Equal(t, "mc", plan.Optimizations[0].BestCard.CardID)
	}
}

func TestOptimizeTopN(t *testing.T) {
	table := defaultTable(t)
	cards := []*domain.Card{
		card("visa", "VISA", "Travel Rewards Visa"),
		card("mc", "MASTERCARD", "Premium Rewards Mastercard"),
		card("amex", "AMEX", "Blue Cash"),
	}
	spend := []domain.CategorySpendSummary{
		summary("travel", 400),
		summary("dining", 300.55),
		summary("gas", 100),
		summary("shopping", 50),
	}

	plan := Optimize(spend, cards, table, 3)
	require.Len(t, plan.Optimizations, 3)

	assert.Equal(t, "visa", plan.Optimizations[0].BestCard.CardID)
	assert.Equal(t, 12.0, plan.Optimizations[0].PotentialMonthlyRewards)

	assert.Equal(t, "mc", plan.Optimizations[1].BestCard.CardID)
	assert.Equal(t, "3%", plan.Optimizations[1].RewardRate)
	assert.Equal(t, 9.02, plan.Optimizations[1].PotentialMonthlyRewards)

	assert.Equal(t, "amex", plan.Optimizations[2].BestCard.CardID)
	assert.Equal(t, 3.0, plan.Optimizations[2].PotentialMonthlyRewards)

	assert.Equal(t, 288.24, plan.PotentialAnnualRewards)
}

func TestZeroRateIsStillAChoice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rates.yaml")
	require.NoError(t, os.WriteFile(path, []byte("VISA:\n  Debit Visa:\n    gas: 0\n    other: 0\n"), 0o600))
	table, err := LoadTable(path)
	require.NoError(t, err)

	cards := []*domain.Card{card("debit", "VISA", "Debit Visa")}

	choice, err := BestCardFor("gas", cards, table)
	require.NoError(t, err)
	assert.Equal(t, "debit", choice.Card.CardID)
	assert.Equal(t, "0%", choice.RewardRate)

	plan := Optimize([]domain.CategorySpendSummary{summary("gas", 80)}, cards, table, 5)
	require.Len(t, plan.Optimizations, 1)
	require.NotNil(t, plan.Optimizations[0].BestCard)
	assert.Equal(t, "debit", plan.Optimizations[0].BestCard.CardID)
	assert.Zero(t, plan.Optimizations[0].PotentialMonthlyRewards)
}

func TestOptimizeWithoutCards(t *testing.T) {
	plan := Optimize([]domain.CategorySpendSummary{summary("dining", 100)}, nil, defaultTable(t), 0)
	require.Len(t, plan.Optimizations, 1)
	assert.Nil(t, plan.Optimizations[0].BestCard)
	assert.Zero(t, plan.Optimizations[0].PotentialMonthlyRewards)
	assert.Zero(t, plan.PotentialAnnualRewards)
}

func TestBestCardFor(t *testing.T) {
	table := defaultTable(t)
	cards := []*domain.Card{
		card("visa", "VISA", "Travel Rewards Visa"),
		card("amex", "AMEX", "Blue Cash"),
	}

	choice, err := BestCardFor("groceries", cards, table)
	require.NoError(t, err)
	assert.Equal(t, "amex", choice.Card.CardID)
	assert.Equal(t, "6%", choice.RewardRate)
	assert.Equal(t, "Use your Blue Cash for 6% cash back on groceries.", choice.Message)

	_, err = BestCardFor("groceries", nil, table)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = BestCardFor("", cards, table)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestLoadTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rates.yaml")
	require.NoError(t, os.WriteFile(path, []byte("VISA:\n  Basic:\n    Dining: 1.5\n"), 0o600))

	table, err := LoadTable(path)
	require.NoError(t, err)

	rate, ok := table.Lookup(card("c", "VISA", "Basic"), "dining")
	assert.True(t, ok)
	assert.Equal(t, 1.5, rate)
	assert.Equal(t, "1.5%", FormatRate(rate))

	_, err = ParseTable([]byte("VISA:\n  Basic:\n    dining: -1\n"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = ParseTable([]byte("{}"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
