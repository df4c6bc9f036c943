package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/rules"
)

// Service runs scans against the ledger.
type Service struct {
	repo    domain.Repository
	scanner *Scanner
	eval    *rules.Evaluator
	window  time.Duration
	logger  *slog.Logger

	now func() time.Time
}

// NewService creates a scan service. A zero window scans the whole ledger.
func NewService(repo domain.Repository, scanner *Scanner, eval *rules.Evaluator, window time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		scanner: scanner,
		eval:    eval,
		window:  window,
		logger:  logger,
		now:     time.Now,
	}
}

// Rules returns the rules the service evaluates, in order.
func (s *Service) Rules() []*domain.FraudRule {
	return s.eval.Rules()
}

// Window returns the scan window ending now.
func (s *Service) Window() domain.Window {
	if s.window <= 0 {
		return domain.Window{}
	}
	return domain.Window{From: s.now().UTC().Add(-s.window)}
}

// ScanUser scans the user's candidate transactions within the window.
func (s *Service) ScanUser(ctx context.Context, userID string) (ScanResult, error) {
	if userID == "" {
		return ScanResult{}, fmt.Errorf("%w: userId is required", domain.ErrInvalidInput)
	}

	window := s.Window()
	txs, err := s.repo.ListTransactions(ctx, domain.TransactionFilter{
		UserID:   userID,
		Statuses: []domain.TransactionStatus{domain.StatusCompleted},
		From:     window.From,
	})
	if err != nil {
		return ScanResult{}, fmt.Errorf("load transactions: %w", err)
	}

	result := s.scanner.Scan(ctx, txs, s.eval, window)

	s.logger.Info("scan completed",
		"user_id", userID,
		"scanned", result.Scanned,
		"flagged", len(result.Flagged),
		"skipped", result.Skipped,
		"failed", result.Failed,
	)
	return result, nil
}

// ScanTransaction scans a single ledger entry regardless of the window.
func (s *Service) ScanTransaction(ctx context.Context, tx *domain.Transaction) ScanResult {
	return s.scanner.Scan(ctx, []*domain.Transaction{tx}, s.eval, domain.Window{})
}
