package insights

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/budget"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rewards"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

type fixture struct {
	repo *repository.SQLRepository
	svc  *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "insights-test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	lru := cache.NewLRUCache(100)
	t.Cleanup(func() { lru.Close() })

	rates, err := rewards.DefaultTable()
	require.NoError(t, err)

	svc := NewService(repo, lru, Config{
		Rates:    rates,
		Budgets:  budget.TableFromConfig(domain.BudgetConfig{}),
		CacheTTL: time.Minute,
	}, nil)
	svc.now = func() time.Time { return now }

	return &fixture{repo: repo, svc: svc}
}

func (f *fixture) save(t *testing.T, id, merchant, category string, amount float64, at time.Time, status domain.TransactionStatus) {
	t.Helper()
	require.NoError(t, f.repo.SaveTransaction(context.Background(), &domain.Transaction{
		ID:           id,
		UserID:       "user-001",
		MerchantName: merchant,
		Category:     category,
		Amount:       amount,
		Timestamp:    at,
		Status:       status,
	}))
}

func (f *fixture) card(t *testing.T, id, cardType, name string, spent float64) {
	t.Helper()
	limit := 1000.0
	require.NoError(t, f.repo.SaveCard(context.Background(), &domain.Card{
		ID:                   id,
		UserID:               "user-001",
		Type:                 cardType,
		Name:                 name,
		CreditLimit:          &limit,
		CurrentMonthSpending: spent,
	}))
}

func TestCategoriesExcludeDeclined(t *testing.T) {
	f := newFixture(t)
	f.save(t, "tx-1", "Corner Grocer", "groceries", -100, now, domain.StatusCompleted)
	f.save(t, "tx-2", "Corner Grocer", "groceries", -50, now, domain.StatusFlagged)
	f.save(t, "tx-3", "Corner Grocer", "groceries", -500, now, domain.StatusDeclined)

	got, err := f.svc.Categories(context.Background(), "user-001", domain.MonthWindow(now))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 150.0, got[0].Total)
}

func TestOptimizationIsCachedUntilInvalidated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.card(t, "visa", "VISA", "Travel Rewards Visa", 0)
	f.card(t, "amex", "AMEX", "Blue Cash", 0)
	f.save(t, "tx-1", "Corner Grocer", "groceries", -600, now, domain.StatusCompleted)
	f.save(t, "tx-2", "Old Grocer", "groceries", -999, now.AddDate(0, -2, 0), domain.StatusCompleted)

	plan, err := f.svc.Optimization(ctx, "user-001")
	require.NoError(t, err)
	require.Len(t, plan.Optimizations, 1)
	assert.Equal(t, "amex", plan.Optimizations[0].BestCard.CardID)
	assert.Equal(t, 36.0, plan.Optimizations[0].PotentialMonthlyRewards)

	f.save(t, "tx-3", "Airline", "travel", -1000, now, domain.StatusCompleted)

	cached, err := f.svc.Optimization(ctx, "user-001")
	require.NoError(t, err)
	assert.Len(t, cached.Optimizations, 1)

	f.svc.Invalidate(ctx, "user-001")

	fresh, err := f.svc.Optimization(ctx, "user-001")
	require.NoError(t, err)
	require.Len(t, fresh.Optimizations, 2)
	assert.Equal(t, "travel", fresh.Optimizations[0].Category)
	assert.Equal(t, "visa", fresh.Optimizations[0].BestCard.CardID)
}

func TestBudgetAnalysis(t *testing.T) {
	f := newFixture(t)
	f.card(t, "visa", "VISA", "Travel Rewards Visa", 850)
	f.save(t, "tx-1", "Bistro", "dining", -380, now, domain.StatusCompleted)

	a, err := f.svc.BudgetAnalysis(context.Background(), "user-001")
	require.NoError(t, err)

	require.Len(t, a.BudgetsByCategory, 1)
	assert.Equal(t, 95.0, a.BudgetsByCategory[0].Percentage)
	assert.Equal(t, domain.BandDanger, a.BudgetsByCategory[0].Status)

	require.Len(t, a.CardUtilization, 1)
	assert.Equal(t, domain.BandDanger, a.CardUtilization[0].Status)
	assert.Equal(t, 380.0, a.TotalSpent)
}

func TestMerchantsAndTrends(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.save(t, "tx-1", "Bistro", "dining", -40, now, domain.StatusCompleted)
	f.save(t, "tx-2", "Corner Grocer", "groceries", -90, now.AddDate(0, -1, 0), domain.StatusCompleted)
	f.save(t, "tx-3", "Employer", "income", 2000, now, domain.StatusCompleted)

	merchants, err := f.svc.Merchants(ctx, "user-001", domain.Window{}, 0)
	require.NoError(t, err)
	require.Len(t, merchants, 2)
	assert.Equal(t, "Corner Grocer", merchants[0].Merchant)

	report, err := f.svc.Trends(ctx, "user-001", domain.PeriodMonthly, 0)
	require.NoError(t, err)
	require.Len(t, report.Trends, 2)
	assert.Equal(t, "2025-05", report.Trends[0].Period)
	assert.Equal(t, 1960.0, report.Trends[1].NetFlow)
}

func TestBestCard(t *testing.T) {
	f := newFixture(t)
	f.card(t, "visa", "VISA", "Travel Rewards Visa", 0)

	choice, err := f.svc.BestCard(context.Background(), "user-001", "travel")
	require.NoError(t, err)
	assert.Equal(t, "visa", choice.Card.CardID)
	assert.Equal(t, "3%", choice.RewardRate)

	_, err = f.svc.BestCard(context.Background(), "user-002", "travel")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRequiresUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Categories(context.Background(), "", domain.Window{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
