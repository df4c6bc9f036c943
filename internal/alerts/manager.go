// Package alerts owns the security alert lifecycle and keeps the ledger
// status of the transactions behind them consistent.
package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("kestrel-alerts")

// DefaultRejectReason is recorded when a user rejects without a reason.
const DefaultRejectReason = "User identified as fraudulent"

// Invalidator drops derived per-user views after the ledger changes.
type Invalidator interface {
	Invalidate(ctx context.Context, userID string)
}

// Manager runs alert lifecycle operations. Each operation runs inside one
// store transaction; events are published after commit.
type Manager struct {
	repo        domain.Repository
	bus         domain.EventBus
	invalidator Invalidator
	logger      *slog.Logger

	now func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithEventBus publishes lifecycle events on eventBus.
func WithEventBus(eventBus domain.EventBus) Option {
	return func(m *Manager) { m.bus = eventBus }
}

// WithInvalidator drops cached views on every ledger change.
func WithInvalidator(inv Invalidator) Option {
	return func(m *Manager) { m.invalidator = inv }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a lifecycle manager.
func NewManager(repo domain.Repository, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{repo: repo, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open flags the transaction behind flag and opens an alert for it. It does
// nothing when the transaction is no longer completed, and it does not open
// a second alert while one is still open.
func (m *Manager) Open(ctx context.Context, flag domain.FlagRecord) (*domain.SecurityAlert, bool, error) {
	ctx, span := tracer.Start(ctx, "alerts.open", trace.WithAttributes(
		attribute.String("tx.id", flag.TransactionID),
		attribute.String("rule.id", flag.RuleID),
	))
	defer span.End()

	now := m.now().UTC()
	var alert *domain.SecurityAlert

	err := m.repo.WithinTx(ctx, func(ctx context.Context, repo domain.Repository) error {
		ok, err := repo.TransitionTransaction(ctx, domain.TransactionTransition{
			TxID:       flag.TransactionID,
			From:       []domain.TransactionStatus{domain.StatusCompleted},
			To:         domain.StatusFlagged,
			FlagReason: flag.Reason,
			At:         now,
		})
		if err != nil || !ok {
			return err
		}

		open, err := repo.CountOpenAlerts(ctx, flag.TransactionID)
		if err != nil || open > 0 {
			return err
		}

		tx, err := repo.GetTransaction(ctx, flag.TransactionID)
		if err != nil {
			return err
		}

		alert = newAlert(tx, now)
		alert.UserID = tx.UserID
		alert.Type = flag.Type
		alert.Reason = flag.Reason
		alert.Message = flag.Reason
		alert.Severity = flag.Severity
		if flag.CardID != "" {
			alert.CardID = flag.CardID
		}
		return repo.CreateAlert(ctx, alert)
	})
	if err != nil {
		return nil, false, err
	}
	if alert == nil {
		return nil, false, nil
	}

	m.logger.Info("alert opened",
		"alert_id", alert.ID,
		"tx_id", alert.TransactionID,
		"user_id", alert.UserID,
		"type", alert.Type,
		"severity", alert.Severity,
	)
	m.publish(ctx, domain.TopicAlertOpened, alert)
	m.invalidate(ctx, alert.UserID)
	return alert, true, nil
}

// Approve clears a flagged transaction and resolves all of its open alerts
// as approved.
func (m *Manager) Approve(ctx context.Context, txID, actor string) (*domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "alerts.approve", trace.WithAttributes(attribute.String("tx.id", txID)))
	defer span.End()

	now := m.now().UTC()
	var tx *domain.Transaction
	var resolved []*domain.SecurityAlert

	err := m.repo.WithinTx(ctx, func(ctx context.Context, repo domain.Repository) error {
		ok, err := repo.TransitionTransaction(ctx, domain.TransactionTransition{
			TxID:  txID,
			From:  []domain.TransactionStatus{domain.StatusFlagged},
			To:    domain.StatusCompleted,
			Actor: actor,
			At:    now,
		})
		if err != nil {
			return err
		}
		if !ok {
			return notFlagged(ctx, repo, txID)
		}

		if tx, err = repo.GetTransaction(ctx, txID); err != nil {
			return err
		}

		resolved, err = resolveOpen(ctx, repo, txID, domain.AlertResolution{
			Resolution: domain.ResolutionApproved,
			Actor:      actor,
			At:         now,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("transaction approved", "tx_id", txID, "user_id", tx.UserID, "alerts_resolved", len(resolved))
	for _, a := range resolved {
		m.publish(ctx, domain.TopicAlertResolved, a)
	}
	m.invalidate(ctx, tx.UserID)
	return tx, nil
}

// Reject removes a flagged transaction, resolves its open alerts as rejected
// and writes an audit entry.
func (m *Manager) Reject(ctx context.Context, txID, actor, reason string) (*domain.TransactionSummary, error) {
	ctx, span := tracer.Start(ctx, "alerts.reject", trace.WithAttributes(attribute.String("tx.id", txID)))
	defer span.End()

	if strings.TrimSpace(reason) == "" {
		reason = DefaultRejectReason
	}

	now := m.now().UTC()
	var summary domain.TransactionSummary
	var userID string
	var resolved []*domain.SecurityAlert

	err := m.repo.WithinTx(ctx, func(ctx context.Context, repo domain.Repository) error {
		tx, err := repo.GetTransaction(ctx, txID)
		if err != nil {
			return err
		}
		if tx.Status != domain.StatusFlagged {
			return fmt.Errorf("%w: transaction %s is %s, not flagged", domain.ErrConflict, txID, tx.Status)
		}

		ok, err := repo.DeleteTransaction(ctx, txID, domain.StatusFlagged)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: transaction %s changed concurrently", domain.ErrConflict, txID)
		}

		summary = tx.Summary()
		userID = tx.UserID

		resolved, err = resolveOpen(ctx, repo, txID, domain.AlertResolution{
			Resolution:         domain.ResolutionRejected,
			Actor:              actor,
			TransactionRemoved: true,
			At:                 now,
		})
		if err != nil {
			return err
		}

		return repo.SaveSecurityLog(ctx, &domain.SecurityLog{
			ID:                 uuid.New().String(),
			UserID:             tx.UserID,
			Type:               domain.SecurityLogTypeRejected,
			TransactionDetails: summary,
			Reason:             reason,
			Actor:              actor,
			CreatedAt:          now,
		})
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("transaction rejected", "tx_id", txID, "user_id", userID, "alerts_resolved", len(resolved))
	for _, a := range resolved {
		m.publish(ctx, domain.TopicAlertResolved, a)
	}
	m.publishRejected(ctx, userID, summary, reason)
	m.invalidate(ctx, userID)
	return &summary, nil
}

// ReportInput is a user report of a suspicious transaction.
type ReportInput struct {
	TransactionID string `json:"transactionId"`
	CardID        string `json:"cardId"`
	Reason        string `json:"reason"`
	UserID        string `json:"userId"`
}

// Report opens a high-severity user_reported alert and flags the
// transaction, whatever its current status. The alert belongs to the
// transaction's owner; a different reporter is recorded in a note.
func (m *Manager) Report(ctx context.Context, in ReportInput) (*domain.SecurityAlert, error) {
	if in.TransactionID == "" || strings.TrimSpace(in.Reason) == "" {
		return nil, fmt.Errorf("%w: transactionId and reason are required", domain.ErrInvalidInput)
	}

	ctx, span := tracer.Start(ctx, "alerts.report", trace.WithAttributes(attribute.String("tx.id", in.TransactionID)))
	defer span.End()

	now := m.now().UTC()
	var alert *domain.SecurityAlert

	err := m.repo.WithinTx(ctx, func(ctx context.Context, repo domain.Repository) error {
		tx, err := repo.GetTransaction(ctx, in.TransactionID)
		if err != nil {
			return err
		}

		alert = newAlert(tx, now)
		alert.UserID = tx.UserID
		if in.UserID != "" && in.UserID != tx.UserID {
			alert.Notes = append(alert.Notes, domain.AlertNote{
				Text:      "Reported by " + in.UserID,
				Author:    in.UserID,
				CreatedAt: now,
			})
		}
		alert.CardID = firstNonEmpty(in.CardID, tx.CardID)
		alert.Type = domain.AlertTypeUserReported
		alert.Reason = in.Reason
		alert.Message = fmt.Sprintf("Suspicious transaction reported at %s: %s", tx.MerchantName, in.Reason)
		alert.Severity = domain.SeverityHigh

		if _, err := repo.TransitionTransaction(ctx, domain.TransactionTransition{
			TxID:       tx.ID,
			To:         domain.StatusFlagged,
			FlagReason: in.Reason,
			At:         now,
		}); err != nil {
			return err
		}
		return repo.CreateAlert(ctx, alert)
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("transaction reported", "alert_id", alert.ID, "tx_id", alert.TransactionID, "user_id", alert.UserID)
	m.publish(ctx, domain.TopicAlertOpened, alert)
	m.invalidate(ctx, alert.UserID)
	return alert, nil
}

// Resolve closes a single alert. When it closes the last open alert of a
// flagged transaction, the transaction leaves flagged: completed when
// approved, declined when rejected.
func (m *Manager) Resolve(ctx context.Context, alertID string, resolution domain.Resolution, notes, actor string) (*domain.SecurityAlert, error) {
	if !resolution.Valid() {
		return nil, fmt.Errorf("%w: resolution must be approved or rejected", domain.ErrInvalidInput)
	}

	ctx, span := tracer.Start(ctx, "alerts.resolve", trace.WithAttributes(attribute.String("alert.id", alertID)))
	defer span.End()

	now := m.now().UTC()
	var alert *domain.SecurityAlert

	err := m.repo.WithinTx(ctx, func(ctx context.Context, repo domain.Repository) error {
		current, err := repo.GetAlert(ctx, alertID)
		if err != nil {
			return err
		}
		if !current.IsOpen() {
			return fmt.Errorf("%w: alert %s is already resolved", domain.ErrConflict, alertID)
		}

		ok, err := repo.ResolveAlert(ctx, alertID, domain.AlertResolution{
			Resolution: resolution,
			Actor:      actor,
			Note:       notes,
			At:         now,
		})
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: alert %s was resolved concurrently", domain.ErrConflict, alertID)
		}

		if current.TransactionID != "" {
			if err := settleTransaction(ctx, repo, current.TransactionID, resolution, actor, now); err != nil {
				return err
			}
		}

		alert, err = repo.GetAlert(ctx, alertID)
		return err
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("alert resolved", "alert_id", alertID, "resolution", resolution, "user_id", alert.UserID)
	m.publish(ctx, domain.TopicAlertResolved, alert)
	m.invalidate(ctx, alert.UserID)
	return alert, nil
}

// AddNote appends an audit note to an alert in any status.
func (m *Manager) AddNote(ctx context.Context, alertID, text, actor string) (*domain.SecurityAlert, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: note text is required", domain.ErrInvalidInput)
	}

	var alert *domain.SecurityAlert
	err := m.repo.WithinTx(ctx, func(ctx context.Context, repo domain.Repository) error {
		note := domain.AlertNote{Text: text, Author: actor, CreatedAt: m.now().UTC()}
		if err := repo.AppendAlertNote(ctx, alertID, note); err != nil {
			return err
		}
		var err error
		alert, err = repo.GetAlert(ctx, alertID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return alert, nil
}

// List returns alerts matching filter, newest first.
func (m *Manager) List(ctx context.Context, filter domain.AlertFilter) ([]*domain.SecurityAlert, error) {
	alerts, err := m.repo.ListAlerts(ctx, filter)
	if err != nil {
		return nil, err
	}
	if alerts == nil {
		alerts = []*domain.SecurityAlert{}
	}
	return alerts, nil
}

// Get returns one alert.
func (m *Manager) Get(ctx context.Context, alertID string) (*domain.SecurityAlert, error) {
	return m.repo.GetAlert(ctx, alertID)
}

func newAlert(tx *domain.Transaction, now time.Time) *domain.SecurityAlert {
	date := tx.Timestamp
	return &domain.SecurityAlert{
		ID:            uuid.New().String(),
		CardID:        tx.CardID,
		TransactionID: tx.ID,
		Status:        domain.AlertOpen,
		Metadata: domain.AlertMetadata{
			TransactionAmount: tx.Amount,
			MerchantName:      tx.MerchantName,
			TransactionDate:   &date,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// notFlagged explains a missed flagged precondition.
func notFlagged(ctx context.Context, repo domain.Repository, txID string) error {
	tx, err := repo.GetTransaction(ctx, txID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: transaction %s is %s, not flagged", domain.ErrConflict, txID, tx.Status)
}

func resolveOpen(ctx context.Context, repo domain.Repository, txID string, res domain.AlertResolution) ([]*domain.SecurityAlert, error) {
	open, err := repo.ListAlerts(ctx, domain.AlertFilter{TransactionID: txID, Status: domain.AlertOpen})
	if err != nil {
		return nil, err
	}

	resolved := make([]*domain.SecurityAlert, 0, len(open))
	for _, a := range open {
		ok, err := repo.ResolveAlert(ctx, a.ID, res)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		a.Status = domain.AlertResolved
		a.Resolution = res.Resolution
		a.TransactionRemoved = res.TransactionRemoved
		resolved = append(resolved, a)
	}
	return resolved, nil
}

// settleTransaction moves a flagged transaction out of flagged once none of
// its alerts remain open.
func settleTransaction(ctx context.Context, repo domain.Repository, txID string, resolution domain.Resolution, actor string, now time.Time) error {
	open, err := repo.CountOpenAlerts(ctx, txID)
	if err != nil || open > 0 {
		return err
	}

	to := domain.StatusCompleted
	if resolution == domain.ResolutionRejected {
		to = domain.StatusDeclined
	}

	_, err = repo.TransitionTransaction(ctx, domain.TransactionTransition{
		TxID:  txID,
		From:  []domain.TransactionStatus{domain.StatusFlagged},
		To:    to,
		Actor: actor,
		At:    now,
	})
	return err
}

func (m *Manager) publish(ctx context.Context, topic string, a *domain.SecurityAlert) {
	if m.bus == nil {
		return
	}
	err := bus.PublishEvent(ctx, m.bus, a.UserID, topic, domain.AlertEvent{
		AlertID:       a.ID,
		UserID:        a.UserID,
		TransactionID: a.TransactionID,
		Type:          a.Type,
		Severity:      a.Severity,
		Status:        a.Status,
		Resolution:    a.Resolution,
		Reason:        a.Reason,
	})
	if err != nil {
		m.logger.Warn("failed to publish alert event", "topic", topic, "alert_id", a.ID, "error", err)
	}
}

func (m *Manager) publishRejected(ctx context.Context, userID string, summary domain.TransactionSummary, reason string) {
	if m.bus == nil {
		return
	}
	err := bus.PublishEvent(ctx, m.bus, userID, domain.TopicTransactionRejected, domain.RejectionEvent{
		UserID:      userID,
		Transaction: summary,
		Reason:      reason,
	})
	if err != nil {
		m.logger.Warn("failed to publish rejection", "tx_id", summary.ID, "error", err)
	}
}

func (m *Manager) invalidate(ctx context.Context, userID string) {
	if m.invalidator != nil {
		m.invalidator.Invalidate(ctx, userID)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
