// Package worker ingests transactions published on the EventBus.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/scanner"
)

// TransactionScanner scans a single stored transaction.
type TransactionScanner interface {
	ScanTransaction(ctx context.Context, tx *domain.Transaction) scanner.ScanResult
}

// Invalidator drops derived per-user views.
type Invalidator interface {
	Invalidate(ctx context.Context, userID string)
}

// Worker stores and scans transactions from the ingest topic.
type Worker struct {
	bus         domain.EventBus
	repo        domain.Repository
	scans       TransactionScanner
	invalidator Invalidator
	logger      *slog.Logger

	processed atomic.Int64
	flagged   atomic.Int64
	failed    atomic.Int64
	skipped   atomic.Int64

	mu            sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// Partitions to consume. Empty subscribes to every user.
	Partitions []string
}

// NewWorker creates a new ingest worker. invalidator may be nil.
func NewWorker(eventBus domain.EventBus, repo domain.Repository, scans TransactionScanner, invalidator Invalidator, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:         eventBus,
		repo:        repo,
		scans:       scans,
		invalidator: invalidator,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start begins consuming the ingest topic.
func (w *Worker) Start(cfg Config) error {
	partitions := cfg.Partitions
	if len(partitions) == 0 {
		partitions = []string{domain.GlobalPartition}
	}

	for _, partition := range partitions {
		sub, err := w.bus.Subscribe(w.ctx, partition, domain.TopicTransactionIngested, w.handleMessage)
		if err != nil {
			w.logger.Error("failed to start worker", "partition", partition, "error", err)
			continue
		}
		w.mu.Lock()
		w.subscriptions = append(w.subscriptions, sub)
		w.mu.Unlock()
	}

	w.mu.Lock()
	n := len(w.subscriptions)
	w.mu.Unlock()
	if n == 0 {
		return fmt.Errorf("%w: worker has no subscriptions", domain.ErrUpstreamUnavailable)
	}

	w.logger.Info("workers started", "partitions", len(partitions), "topic", domain.TopicTransactionIngested)
	return nil
}

func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	err := bus.Handle(w.processTransaction)(ctx, msg)
	if err != nil {
		w.failed.Add(1)
	}
	return err
}

// processTransaction stores the transaction unless it already exists, then
// scans it.
func (w *Worker) processTransaction(ctx context.Context, msg *domain.Message, tx domain.Transaction) error {
	start := time.Now()

	if tx.UserID == "" {
		tx.UserID = msg.Partition
	}
	if tx.Status == domain.StatusFlagged {
		return fmt.Errorf("%w: transaction %s arrived already flagged", domain.ErrInvalidInput, tx.ID)
	}

	rejected, err := w.repo.WasRejected(ctx, tx.ID)
	if err != nil {
		w.logger.Error("failed to check rejection log", "tx_id", tx.ID, "error", err)
		return err
	}
	if rejected {
		w.skipped.Add(1)
		w.logger.Info("ignoring redelivery of rejected transaction", "tx_id", tx.ID, "user_id", tx.UserID)
		return nil
	}

	if err := w.repo.SaveTransaction(ctx, &tx); err != nil && !errors.Is(err, domain.ErrConflict) {
		w.logger.Error("failed to store transaction", "tx_id", tx.ID, "error", err)
		return err
	}

	stored, err := w.repo.GetTransaction(ctx, tx.ID)
	if err != nil {
		w.logger.Error("failed to load transaction", "tx_id", tx.ID, "error", err)
		return err
	}

	result := w.scans.ScanTransaction(ctx, stored)
	w.processed.Add(1)
	w.flagged.Add(int64(len(result.Flagged)))
	if result.Failed > 0 {
		w.failed.Add(int64(result.Failed))
	}
	if w.invalidator != nil {
		w.invalidator.Invalidate(ctx, stored.UserID)
	}

	w.logger.Info("transaction processed",
		"tx_id", stored.ID,
		"user_id", stored.UserID,
		"flagged", len(result.Flagged) > 0,
		"trace_id", bus.TraceID(msg),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			w.logger.Error("failed to unsubscribe", "topic", sub.Topic(), "error", err)
		}
	}
	w.subscriptions = nil

	w.logger.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	Processed         int64    `json:"processed"`
	Flagged           int64    `json:"flagged"`
	Failed            int64    `json:"failed"`
	Skipped           int64    `json:"skipped"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		Processed:         w.processed.Load(),
		Flagged:           w.flagged.Load(),
		Failed:            w.failed.Load(),
		Skipped:           w.skipped.Load(),
	}
}
