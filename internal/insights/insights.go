// Package insights serves the rewards path: spend views, reward
// optimization and budget analysis over a user's ledger.
package insights

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/kestrel/internal/budget"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/rewards"
	"github.com/opensource-finance/kestrel/internal/spend"
)

const (
	keyOptimization = "insights:optimization"
	keyBudget       = "insights:budget"

	// DefaultMerchantLimit caps the merchant view.
	DefaultMerchantLimit = 10

	// DefaultTrendMonths is how far back trends look by default.
	DefaultTrendMonths = 6
)

// Service computes derived views. Optimization and budget results are cached
// per user until the ledger changes or the TTL passes.
type Service struct {
	repo    domain.Repository
	cache   domain.Cache
	rates   *rewards.Table
	budgets budget.Table
	topN    int
	ttl     time.Duration
	logger  *slog.Logger

	now func() time.Time
}

// Config bundles the reference data the service reads.
type Config struct {
	Rates    *rewards.Table
	Budgets  budget.Table
	TopN     int
	CacheTTL time.Duration
}

// NewService creates an insights service. cache may be nil.
func NewService(repo domain.Repository, cache domain.Cache, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TopN <= 0 {
		cfg.TopN = rewards.DefaultTopN
	}
	return &Service{
		repo:    repo,
		cache:   cache,
		rates:   cfg.Rates,
		budgets: cfg.Budgets,
		topN:    cfg.TopN,
		ttl:     cfg.CacheTTL,
		logger:  logger,
		now:     time.Now,
	}
}

// Categories returns category spend for window.
func (s *Service) Categories(ctx context.Context, userID string, window domain.Window) ([]domain.CategorySpendSummary, error) {
	txs, err := s.ledger(ctx, userID, window.From)
	if err != nil {
		return nil, err
	}
	return spend.Aggregate(txs, window), nil
}

// Merchants returns the top merchants by spend for window.
func (s *Service) Merchants(ctx context.Context, userID string, window domain.Window, limit int) ([]domain.MerchantSpendSummary, error) {
	if limit <= 0 {
		limit = DefaultMerchantLimit
	}
	txs, err := s.ledger(ctx, userID, window.From)
	if err != nil {
		return nil, err
	}
	return spend.AggregateMerchants(txs, window, limit), nil
}

// Trends returns money flow per period over the last months.
func (s *Service) Trends(ctx context.Context, userID string, period domain.TrendPeriod, months int) (spend.TrendReport, error) {
	if months <= 0 {
		months = DefaultTrendMonths
	}
	since := s.now().UTC().AddDate(0, -months, 0)

	txs, err := s.ledger(ctx, userID, since)
	if err != nil {
		return spend.TrendReport{}, err
	}
	return spend.Trends(txs, period, since)
}

// Optimization recommends a card for each top category of this month.
func (s *Service) Optimization(ctx context.Context, userID string) (*rewards.Plan, error) {
	var plan rewards.Plan
	if s.cached(ctx, userID, keyOptimization, &plan) {
		return &plan, nil
	}

	monthly, cards, err := s.monthAndCards(ctx, userID)
	if err != nil {
		return nil, err
	}

	plan = rewards.Optimize(monthly, cards, s.rates, s.topN)
	s.store(ctx, userID, keyOptimization, plan)
	return &plan, nil
}

// BudgetAnalysis rates this month's spend and card utilization.
func (s *Service) BudgetAnalysis(ctx context.Context, userID string) (*budget.Analysis, error) {
	var analysis budget.Analysis
	if s.cached(ctx, userID, keyBudget, &analysis) {
		return &analysis, nil
	}

	monthly, cards, err := s.monthAndCards(ctx, userID)
	if err != nil {
		return nil, err
	}

	analysis = budget.Analyze(monthly, cards, s.budgets)
	s.store(ctx, userID, keyBudget, analysis)
	return &analysis, nil
}

// BestCard picks the user's card for category.
func (s *Service) BestCard(ctx context.Context, userID, category string) (*rewards.Choice, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userId is required", domain.ErrInvalidInput)
	}
	cards, err := s.repo.ListCards(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	return rewards.BestCardFor(category, cards, s.rates)
}

// Invalidate drops the cached views of userID.
func (s *Service) Invalidate(ctx context.Context, userID string) {
	if s.cache == nil || userID == "" {
		return
	}
	if err := s.cache.Purge(ctx, userID); err != nil {
		s.logger.Warn("failed to invalidate insights", "user_id", userID, "error", err)
	}
}

func (s *Service) monthAndCards(ctx context.Context, userID string) ([]domain.CategorySpendSummary, []*domain.Card, error) {
	window := domain.MonthWindow(s.now().UTC())
	monthly, err := s.Categories(ctx, userID, window)
	if err != nil {
		return nil, nil, err
	}
	cards, err := s.repo.ListCards(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("list cards: %w", err)
	}
	return monthly, cards, nil
}

// ledger loads the user's non-declined transactions since from.
func (s *Service) ledger(ctx context.Context, userID string, from time.Time) ([]*domain.Transaction, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userId is required", domain.ErrInvalidInput)
	}
	txs, err := s.repo.ListTransactions(ctx, domain.TransactionFilter{
		UserID:   userID,
		Statuses: []domain.TransactionStatus{domain.StatusCompleted, domain.StatusFlagged},
		From:     from,
	})
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

func (s *Service) cached(ctx context.Context, userID, key string, v any) bool {
	if s.cache == nil || s.ttl <= 0 || userID == "" {
		return false
	}
	data, err := s.cache.Get(ctx, userID, key)
	if err != nil {
		s.logger.Warn("insights cache read failed", "user_id", userID, "key", key, "error", err)
		return false
	}
	if data == nil {
		return false
	}
	return json.Unmarshal(data, v) == nil
}

func (s *Service) store(ctx context.Context, userID, key string, v any) {
	if s.cache == nil || s.ttl <= 0 {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, userID, key, data, s.ttl); err != nil {
		s.logger.Warn("insights cache write failed", "user_id", userID, "key", key, "error", err)
	}
}
