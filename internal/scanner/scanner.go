// Package scanner applies the fraud rule catalog to batches of transactions
// and opens alerts for the ones that match.
package scanner

import (
	"context"
	"log/slog"
	"sync"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/rules"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("kestrel-scanner")

// AlertOpener flags a transaction and opens its alert. created is false when
// the transaction was already flagged or declined by the time the store saw
// the update.
type AlertOpener interface {
	Open(ctx context.Context, flag domain.FlagRecord) (alert *domain.SecurityAlert, created bool, err error)
}

// ScanResult summarizes one batch.
type ScanResult struct {
	Scanned int                 `json:"scanned"`
	Skipped int                 `json:"skipped"`
	Failed  int                 `json:"failed"`
	Flagged []domain.FlagRecord `json:"flagged"`
}

// Scanner evaluates transactions against a compiled rule set.
type Scanner struct {
	alerts     AlertOpener
	maxWorkers int
	logger     *slog.Logger
}

// New creates a scanner. maxWorkers bounds the number of transactions
// evaluated at once.
func New(alerts AlertOpener, maxWorkers int, logger *slog.Logger) *Scanner {
	if maxWorkers <= 0 {
		maxWorkers = 8
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{alerts: alerts, maxWorkers: maxWorkers, logger: logger}
}

type outcome struct {
	flag   *domain.FlagRecord
	failed bool
}

// Scan evaluates txs in parallel. Flagged and declined transactions, ones a
// user already approved, and ones outside window are left out. Malformed
// transactions count as scanned but are skipped. Per-transaction failures are
// logged and counted without aborting the batch. Flags follow input order.
func (s *Scanner) Scan(ctx context.Context, txs []*domain.Transaction, eval *rules.Evaluator, window domain.Window) ScanResult {
	ctx, span := tracer.Start(ctx, "scanner.scan",
		trace.WithAttributes(attribute.Int("scan.input", len(txs))),
	)
	defer span.End()

	var result ScanResult
	candidates := make([]*domain.Transaction, 0, len(txs))

	for _, tx := range txs {
		if tx == nil || !tx.Scannable() || tx.ApprovedAt != nil {
			continue
		}
		if !window.Contains(tx.Timestamp) {
			continue
		}
		result.Scanned++
		if tx.Malformed() {
			result.Skipped++
			s.logger.Debug("skipping malformed transaction", "tx_id", tx.ID)
			continue
		}
		candidates = append(candidates, tx)
	}

	outcomes := make([]outcome, len(candidates))
	var wg sync.WaitGroup

	// Limit concurrency with semaphore
	sem := make(chan struct{}, s.maxWorkers)

	for i, tx := range candidates {
		wg.Add(1)
		go func(idx int, tx *domain.Transaction) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			outcomes[idx] = s.scanOne(ctx, tx, eval)
		}(i, tx)
	}

	wg.Wait()

	result.Flagged = make([]domain.FlagRecord, 0)
	for _, o := range outcomes {
		if o.failed {
			result.Failed++
			continue
		}
		if o.flag != nil {
			result.Flagged = append(result.Flagged, *o.flag)
		}
	}

	span.SetAttributes(
		attribute.Int("scan.scanned", result.Scanned),
		attribute.Int("scan.flagged", len(result.Flagged)),
		attribute.Int("scan.failed", result.Failed),
	)
	return result
}

func (s *Scanner) scanOne(ctx context.Context, tx *domain.Transaction, eval *rules.Evaluator) outcome {
	if err := ctx.Err(); err != nil {
		return outcome{failed: true}
	}

	match, err := eval.Match(tx)
	if err != nil {
		s.logger.Error("rule evaluation failed", "tx_id", tx.ID, "error", err)
		return outcome{failed: true}
	}
	if match == nil {
		return outcome{}
	}

	flag := domain.FlagRecord{
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		CardID:        tx.CardID,
		RuleID:        match.Rule.ID,
		Type:          match.Type,
		Reason:        match.Reason,
		Severity:      match.Severity,
	}

	alert, created, err := s.alerts.Open(ctx, flag)
	if err != nil {
		s.logger.Error("failed to open alert", "tx_id", tx.ID, "rule_id", match.Rule.ID, "error", err)
		return outcome{failed: true}
	}
	if !created {
		return outcome{}
	}

	flag.AlertID = alert.ID
	return outcome{flag: &flag}
}
