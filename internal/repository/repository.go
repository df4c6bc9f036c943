// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var (
	ErrNotFound     = domain.ErrNotFound
	ErrInvalidInput = domain.ErrInvalidInput
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	q      querier
	driver string
	inTx   bool
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (*SQLRepository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("%w: unsupported driver: %s", ErrInvalidInput, cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 && cfg.Driver != "sqlite" {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		q:      db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// WithinTx runs fn inside a single database transaction. Nested calls reuse
// the outer transaction.
func (r *SQLRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, repo domain.Repository) error) (err error) {
	if r.inTx {
		return fn(ctx, r)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return upstream(fmt.Errorf("begin transaction: %w", err))
	}

	bound := &SQLRepository{db: r.db, q: tx, driver: r.driver, inTx: true}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(ctx, bound); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return upstream(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// ============================================================================
// LEDGER
// ============================================================================

const transactionColumns = `
	id, user_id, card_id, amount, merchant_name, category, description,
	country, city, timestamp, status, flag_reason, flagged_at, approved_at,
	approved_by, created_at`

// SaveTransaction inserts a ledger entry. A duplicate ID is a conflict.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tx *domain.Transaction) error {
	if tx.ID == "" || tx.UserID == "" {
		return fmt.Errorf("%w: transaction id and userId are required", ErrInvalidInput)
	}
	if tx.Status == "" {
		tx.Status = domain.StatusCompleted
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	var country, city string
	if tx.Location != nil {
		country, city = strings.ToUpper(tx.Location.Country), tx.Location.City
	}

	query := `INSERT INTO transactions (` + transactionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.q.ExecContext(ctx, r.rebind(query),
		tx.ID, tx.UserID, tx.CardID, tx.Amount, tx.MerchantName, tx.Category, tx.Description,
		country, city, tx.Timestamp.UTC(), string(tx.Status), tx.FlagReason,
		nullTime(tx.FlaggedAt), nullTime(tx.ApprovedAt), tx.ApprovedBy, tx.CreatedAt.UTC(),
	)
	if err != nil {
		if r.isUniqueViolation(err) {
			return fmt.Errorf("%w: transaction %s already exists", domain.ErrConflict, tx.ID)
		}
		return upstream(err)
	}
	return nil
}

// GetTransaction retrieves a transaction by ID.
func (r *SQLRepository) GetTransaction(ctx context.Context, txID string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = ?`

	tx, err := scanTransaction(r.q.QueryRowContext(ctx, r.rebind(query), txID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: transaction %s", ErrNotFound, txID)
	}
	if err != nil {
		return nil, upstream(err)
	}
	return tx, nil
}

// ListTransactions returns ledger entries matching filter, newest first.
func (r *SQLRepository) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]*domain.Transaction, error) {
	var where []string
	var args []any

	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.CardID != "" {
		where = append(where, "card_id = ?")
		args = append(args, filter.CardID)
	}
	if len(filter.Statuses) > 0 {
		marks := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			marks[i] = "?"
			args = append(args, string(s))
		}
		where = append(where, "status IN ("+strings.Join(marks, ", ")+")")
	}
	if !filter.From.IsZero() {
		where = append(where, "timestamp >= ?")
		args = append(args, filter.From.UTC())
	}
	if !filter.To.IsZero() {
		where = append(where, "timestamp <= ?")
		args = append(args, filter.To.UTC())
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp DESC, id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := r.q.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, upstream(err)
	}
	defer rows.Close()

	var transactions []*domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}

	return transactions, rows.Err()
}

// TransitionTransaction applies a conditional status change and reports
// whether a row matched.
func (r *SQLRepository) TransitionTransaction(ctx context.Context, t domain.TransactionTransition) (bool, error) {
	at := t.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	var query string
	var args []any

	switch t.To {
	case domain.StatusFlagged:
		query = `UPDATE transactions SET status = ?, flag_reason = ?, flagged_at = ? WHERE id = ?`
		args = []any{string(t.To), t.FlagReason, at.UTC(), t.TxID}
	case domain.StatusCompleted:
		query = `UPDATE transactions SET status = ?, flag_reason = '', approved_at = ?, approved_by = ? WHERE id = ?`
		args = []any{string(t.To), at.UTC(), t.Actor, t.TxID}
	case domain.StatusDeclined:
		query = `UPDATE transactions SET status = ? WHERE id = ?`
		args = []any{string(t.To), t.TxID}
	default:
		return false, fmt.Errorf("%w: unknown target status %q", ErrInvalidInput, t.To)
	}

	if len(t.From) > 0 {
		marks := make([]string, len(t.From))
		for i, s := range t.From {
			marks[i] = "?"
			args = append(args, string(s))
		}
		query += " AND status IN (" + strings.Join(marks, ", ") + ")"
	}

	return r.execAffected(ctx, query, args...)
}

// DeleteTransaction removes a transaction if it still holds status.
func (r *SQLRepository) DeleteTransaction(ctx context.Context, txID string, status domain.TransactionStatus) (bool, error) {
	return r.execAffected(ctx, `DELETE FROM transactions WHERE id = ? AND status = ?`, txID, string(status))
}

// ============================================================================
// ALERTS
// ============================================================================

const alertColumns = `
	id, user_id, card_id, transaction_id, type, reason, message, severity,
	status, resolution, transaction_removed, metadata, notes, created_at,
	updated_at, resolved_at, resolved_by`

// CreateAlert inserts a new alert.
func (r *SQLRepository) CreateAlert(ctx context.Context, a *domain.SecurityAlert) error {
	if a.ID == "" || a.UserID == "" {
		return fmt.Errorf("%w: alert id and userId are required", ErrInvalidInput)
	}

	metadata, err := json.Marshal(a.Metadata)
	if err != nil {
		return fmt.Errorf("marshal alert metadata: %w", err)
	}
	notes, err := json.Marshal(nonNilNotes(a.Notes))
	if err != nil {
		return fmt.Errorf("marshal alert notes: %w", err)
	}

	query := `INSERT INTO security_alerts (` + alertColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.q.ExecContext(ctx, r.rebind(query),
		a.ID, a.UserID, a.CardID, a.TransactionID, a.Type, a.Reason, a.Message, string(a.Severity),
		string(a.Status), string(a.Resolution), boolInt(a.TransactionRemoved), string(metadata), string(notes),
		a.CreatedAt.UTC(), a.UpdatedAt.UTC(), nullTime(a.ResolvedAt), a.ResolvedBy,
	)
	if err != nil {
		if r.isUniqueViolation(err) {
			return fmt.Errorf("%w: alert %s already exists", domain.ErrConflict, a.ID)
		}
		return upstream(err)
	}
	return nil
}

// GetAlert retrieves an alert by ID.
func (r *SQLRepository) GetAlert(ctx context.Context, alertID string) (*domain.SecurityAlert, error) {
	query := `SELECT ` + alertColumns + ` FROM security_alerts WHERE id = ?`

	a, err := scanAlert(r.q.QueryRowContext(ctx, r.rebind(query), alertID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: alert %s", ErrNotFound, alertID)
	}
	if err != nil {
		return nil, upstream(err)
	}
	return a, nil
}

// ListAlerts returns alerts matching filter, newest first.
func (r *SQLRepository) ListAlerts(ctx context.Context, filter domain.AlertFilter) ([]*domain.SecurityAlert, error) {
	var where []string
	var args []any

	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.CardID != "" {
		where = append(where, "card_id = ?")
		args = append(args, filter.CardID)
	}
	if filter.TransactionID != "" {
		where = append(where, "transaction_id = ?")
		args = append(args, filter.TransactionID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := `SELECT ` + alertColumns + ` FROM security_alerts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"

	rows, err := r.q.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, upstream(err)
	}
	defer rows.Close()

	var alerts []*domain.SecurityAlert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}

	return alerts, rows.Err()
}

// CountOpenAlerts counts open alerts referencing a transaction.
func (r *SQLRepository) CountOpenAlerts(ctx context.Context, txID string) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx,
		r.rebind(`SELECT COUNT(*) FROM security_alerts WHERE transaction_id = ? AND status = ?`),
		txID, string(domain.AlertOpen),
	).Scan(&n)
	if err != nil {
		return 0, upstream(err)
	}
	return n, nil
}

// ResolveAlert closes an alert that is still open and reports whether it
// was.
func (r *SQLRepository) ResolveAlert(ctx context.Context, alertID string, res domain.AlertResolution) (bool, error) {
	at := res.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	ok, err := r.execAffected(ctx, `
		UPDATE security_alerts
		SET status = ?, resolution = ?, resolved_at = ?, resolved_by = ?,
		    transaction_removed = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(domain.AlertResolved), string(res.Resolution), at.UTC(), res.Actor,
		boolInt(res.TransactionRemoved), at.UTC(),
		alertID, string(domain.AlertOpen),
	)
	if err != nil || !ok {
		return ok, err
	}

	if res.Note != "" {
		note := domain.AlertNote{Text: res.Note, Author: res.Actor, CreatedAt: at.UTC()}
		if err := r.AppendAlertNote(ctx, alertID, note); err != nil {
			return false, err
		}
	}
	return true, nil
}

// AppendAlertNote adds an audit note regardless of alert status.
func (r *SQLRepository) AppendAlertNote(ctx context.Context, alertID string, note domain.AlertNote) error {
	query := `SELECT notes FROM security_alerts WHERE id = ?`
	if r.driver == "postgres" && r.inTx {
		query += " FOR UPDATE"
	}

	var raw string
	err := r.q.QueryRowContext(ctx, r.rebind(query), alertID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: alert %s", ErrNotFound, alertID)
	}
	if err != nil {
		return upstream(err)
	}

	var notes []domain.AlertNote
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &notes); err != nil {
			return fmt.Errorf("parse notes for alert %s: %w", alertID, err)
		}
	}
	notes = append(notes, note)

	encoded, err := json.Marshal(notes)
	if err != nil {
		return fmt.Errorf("marshal alert notes: %w", err)
	}

	_, err = r.q.ExecContext(ctx,
		r.rebind(`UPDATE security_alerts SET notes = ?, updated_at = ? WHERE id = ?`),
		string(encoded), note.CreatedAt.UTC(), alertID,
	)
	return upstream(err)
}

// ============================================================================
// AUDIT LOG
// ============================================================================

// SaveSecurityLog stores an audit entry.
func (r *SQLRepository) SaveSecurityLog(ctx context.Context, entry *domain.SecurityLog) error {
	details, err := json.Marshal(entry.TransactionDetails)
	if err != nil {
		return fmt.Errorf("marshal transaction details: %w", err)
	}

	_, err = r.q.ExecContext(ctx, r.rebind(`
		INSERT INTO security_logs (id, user_id, type, transaction_id, transaction_details, reason, actor, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		entry.ID, entry.UserID, entry.Type, entry.TransactionDetails.ID, string(details), entry.Reason, entry.Actor, entry.CreatedAt.UTC(),
	)
	return upstream(err)
}

// ListSecurityLogs returns a user's audit entries, newest first.
func (r *SQLRepository) ListSecurityLogs(ctx context.Context, userID string) ([]*domain.SecurityLog, error) {
	rows, err := r.q.QueryContext(ctx, r.rebind(`
		SELECT id, user_id, type, transaction_details, reason, actor, created_at
		FROM security_logs
		WHERE user_id = ?
		ORDER BY created_at DESC, id`), userID)
	if err != nil {
		return nil, upstream(err)
	}
	defer rows.Close()

	var logs []*domain.SecurityLog
	for rows.Next() {
		var entry domain.SecurityLog
		var details string
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.Type, &details, &entry.Reason, &entry.Actor, &entry.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(details), &entry.TransactionDetails); err != nil {
			return nil, fmt.Errorf("parse security log %s: %w", entry.ID, err)
		}
		logs = append(logs, &entry)
	}

	return logs, rows.Err()
}

// WasRejected reports whether txID was rejected. Rejected transactions are
// deleted, so the audit log is their only trace.
func (r *SQLRepository) WasRejected(ctx context.Context, txID string) (bool, error) {
	var n int
	err := r.q.QueryRowContext(ctx, r.rebind(`
		SELECT COUNT(*) FROM security_logs WHERE transaction_id = ? AND type = ?`),
		txID, domain.SecurityLogTypeRejected,
	).Scan(&n)
	if err != nil {
		return false, upstream(err)
	}
	return n > 0, nil
}

// ============================================================================
// CARDS
// ============================================================================

// SaveCard inserts or replaces a card.
func (r *SQLRepository) SaveCard(ctx context.Context, c *domain.Card) error {
	if c.ID == "" || c.UserID == "" {
		return fmt.Errorf("%w: card id and userId are required", ErrInvalidInput)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	var limit sql.NullFloat64
	if c.CreditLimit != nil {
		limit = sql.NullFloat64{Float64: *c.CreditLimit, Valid: true}
	}

	_, err := r.q.ExecContext(ctx, r.rebind(`
		INSERT INTO cards (id, user_id, name, type, last4, credit_limit, current_month_spending, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			last4 = excluded.last4,
			credit_limit = excluded.credit_limit,
			current_month_spending = excluded.current_month_spending`),
		c.ID, c.UserID, c.Name, c.Type, c.Last4, limit, c.CurrentMonthSpending, c.CreatedAt.UTC(),
	)
	return upstream(err)
}

// GetCard retrieves a card by ID.
func (r *SQLRepository) GetCard(ctx context.Context, cardID string) (*domain.Card, error) {
	c, err := scanCard(r.q.QueryRowContext(ctx, r.rebind(`
		SELECT id, user_id, name, type, last4, credit_limit, current_month_spending, created_at
		FROM cards WHERE id = ?`), cardID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: card %s", ErrNotFound, cardID)
	}
	if err != nil {
		return nil, upstream(err)
	}
	return c, nil
}

// ListCards returns a user's cards in the order they were added. The
// optimizer's tie-break depends on this order being stable.
func (r *SQLRepository) ListCards(ctx context.Context, userID string) ([]*domain.Card, error) {
	rows, err := r.q.QueryContext(ctx, r.rebind(`
		SELECT id, user_id, name, type, last4, credit_limit, current_month_spending, created_at
		FROM cards
		WHERE user_id = ?
		ORDER BY created_at, id`), userID)
	if err != nil {
		return nil, upstream(err)
	}
	defer rows.Close()

	var cards []*domain.Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}

	return cards, rows.Err()
}

// ============================================================================
// RULE CATALOG
// ============================================================================

// ruleParams carries the variant fields of a FraudRule.
type ruleParams struct {
	Pattern     string             `json:"pattern,omitempty"`
	Regex       bool               `json:"regex,omitempty"`
	AlertType   string             `json:"alertType,omitempty"`
	Threshold   float64            `json:"threshold,omitempty"`
	Countries   []string           `json:"countries,omitempty"`
	Mode        domain.CountryMode `json:"mode,omitempty"`
	HomeCountry string             `json:"homeCountry,omitempty"`
	Categories  []string           `json:"categories,omitempty"`
}

// CountFraudRules returns the number of stored catalog entries.
func (r *SQLRepository) CountFraudRules(ctx context.Context) (int, error) {
	var n int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM fraud_rules`).Scan(&n); err != nil {
		return 0, upstream(err)
	}
	return n, nil
}

// SaveFraudRules inserts catalog entries, keeping any that already exist.
func (r *SQLRepository) SaveFraudRules(ctx context.Context, rules []*domain.FraudRule) error {
	return r.WithinTx(ctx, func(ctx context.Context, repo domain.Repository) error {
		tx := repo.(*SQLRepository)
		now := time.Now().UTC()

		for _, rule := range rules {
			params, err := json.Marshal(ruleParams{
				Pattern:     rule.Pattern,
				Regex:       rule.Regex,
				AlertType:   rule.AlertType,
				Threshold:   rule.Threshold,
				Countries:   rule.Countries,
				Mode:        rule.Mode,
				HomeCountry: rule.HomeCountry,
				Categories:  rule.Categories,
			})
			if err != nil {
				return fmt.Errorf("marshal rule %s: %w", rule.ID, err)
			}

			created := rule.CreatedAt
			if created.IsZero() {
				created = now
			}

			_, err = tx.q.ExecContext(ctx, tx.rebind(`
				INSERT INTO fraud_rules (id, seq, kind, severity, description, enabled, params, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO NOTHING`),
				rule.ID, rule.Position, string(rule.Kind), string(rule.Severity), rule.Description,
				boolInt(rule.Enabled), string(params), created,
			)
			if err != nil {
				return upstream(fmt.Errorf("insert rule %s: %w", rule.ID, err))
			}
		}
		return nil
	})
}

// ListFraudRules returns the catalog in stored order.
func (r *SQLRepository) ListFraudRules(ctx context.Context) ([]*domain.FraudRule, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, seq, kind, severity, description, enabled, params, created_at
		FROM fraud_rules
		ORDER BY seq, id`)
	if err != nil {
		return nil, upstream(err)
	}
	defer rows.Close()

	var rules []*domain.FraudRule
	for rows.Next() {
		var rule domain.FraudRule
		var kind, severity, params string
		var enabled int

		if err := rows.Scan(&rule.ID, &rule.Position, &kind, &severity, &rule.Description, &enabled, &params, &rule.CreatedAt); err != nil {
			return nil, err
		}

		var p ruleParams
		if err := json.Unmarshal([]byte(params), &p); err != nil {
			return nil, fmt.Errorf("parse params for rule %s: %w", rule.ID, err)
		}

		rule.Kind = domain.RuleKind(kind)
		rule.Severity = domain.Severity(severity)
		rule.Enabled = enabled == 1
		rule.Pattern = p.Pattern
		rule.Regex = p.Regex
		rule.AlertType = p.AlertType
		rule.Threshold = p.Threshold
		rule.Countries = p.Countries
		rule.Mode = p.Mode
		rule.HomeCountry = p.HomeCountry
		rule.Categories = p.Categories

		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	return nil
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// ============================================================================
// HELPERS
// ============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var tx domain.Transaction
	var country, city, status string
	var flaggedAt, approvedAt sql.NullTime

	if err := row.Scan(
		&tx.ID, &tx.UserID, &tx.CardID, &tx.Amount, &tx.MerchantName, &tx.Category, &tx.Description,
		&country, &city, &tx.Timestamp, &status, &tx.FlagReason, &flaggedAt, &approvedAt,
		&tx.ApprovedBy, &tx.CreatedAt,
	); err != nil {
		return nil, err
	}

	tx.Status = domain.TransactionStatus(status)
	if country != "" || city != "" {
		tx.Location = &domain.Location{Country: country, City: city}
	}
	tx.FlaggedAt = timePtr(flaggedAt)
	tx.ApprovedAt = timePtr(approvedAt)

	return &tx, nil
}

func scanAlert(row rowScanner) (*domain.SecurityAlert, error) {
	var a domain.SecurityAlert
	var severity, status, resolution, metadata, notes string
	var removed int
	var resolvedAt sql.NullTime

	if err := row.Scan(
		&a.ID, &a.UserID, &a.CardID, &a.TransactionID, &a.Type, &a.Reason, &a.Message, &severity,
		&status, &resolution, &removed, &metadata, &notes, &a.CreatedAt,
		&a.UpdatedAt, &resolvedAt, &a.ResolvedBy,
	); err != nil {
		return nil, err
	}

	a.Severity = domain.Severity(severity)
	a.Status = domain.AlertStatus(status)
	a.Resolution = domain.Resolution(resolution)
	a.TransactionRemoved = removed == 1
	a.ResolvedAt = timePtr(resolvedAt)

	if err := json.Unmarshal([]byte(metadata), &a.Metadata); err != nil {
		return nil, fmt.Errorf("parse metadata for alert %s: %w", a.ID, err)
	}
	if notes != "" {
		if err := json.Unmarshal([]byte(notes), &a.Notes); err != nil {
			return nil, fmt.Errorf("parse notes for alert %s: %w", a.ID, err)
		}
	}

	return &a, nil
}

func scanCard(row rowScanner) (*domain.Card, error) {
	var c domain.Card
	var limit sql.NullFloat64

	if err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Type, &c.Last4, &limit, &c.CurrentMonthSpending, &c.CreatedAt); err != nil {
		return nil, err
	}
	if limit.Valid {
		v := limit.Float64
		c.CreditLimit = &v
	}
	return &c, nil
}

func (r *SQLRepository) execAffected(ctx context.Context, query string, args ...any) (bool, error) {
	result, err := r.q.ExecContext(ctx, r.rebind(query), args...)
	if err != nil {
		return false, upstream(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *SQLRepository) isUniqueViolation(err error) bool {
	if r.driver == "postgres" {
		return isPostgresUniqueViolation(err)
	}
	return isSQLiteUniqueViolation(err)
}

// upstream tags connectivity failures so callers can tell them apart from
// data errors.
func upstream(err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	return err
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nonNilNotes(notes []domain.AlertNote) []domain.AlertNote {
	if notes == nil {
		return []domain.AlertNote{}
	}
	return notes
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
