// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"context"
	"time"
)

// Repository is the record store the engines run against: the transaction
// ledger, alerts, cards, the rule catalog and the audit log.
//
// Conditional mutations report whether a row matched their precondition so
// callers can tell a lost race from success. WithinTx runs fn against a
// repository bound to one store transaction; fn must only use the repository
// it is given.
type Repository interface {
	// Ledger
	SaveTransaction(ctx context.Context, tx *Transaction) error
	GetTransaction(ctx context.Context, txID string) (*Transaction, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]*Transaction, error)
	TransitionTransaction(ctx context.Context, t TransactionTransition) (bool, error)
	DeleteTransaction(ctx context.Context, txID string, status TransactionStatus) (bool, error)

	// Alerts
	CreateAlert(ctx context.Context, alert *SecurityAlert) error
	GetAlert(ctx context.Context, alertID string) (*SecurityAlert, error)
	ListAlerts(ctx context.Context, filter AlertFilter) ([]*SecurityAlert, error)
	CountOpenAlerts(ctx context.Context, txID string) (int, error)
	ResolveAlert(ctx context.Context, alertID string, res AlertResolution) (bool, error)
	AppendAlertNote(ctx context.Context, alertID string, note AlertNote) error

	// Audit log
	SaveSecurityLog(ctx context.Context, entry *SecurityLog) error
	ListSecurityLogs(ctx context.Context, userID string) ([]*SecurityLog, error)
	// WasRejected reports whether a rejection was logged for txID.
	WasRejected(ctx context.Context, txID string) (bool, error)

	// Cards
	SaveCard(ctx context.Context, card *Card) error
	GetCard(ctx context.Context, cardID string) (*Card, error)
	ListCards(ctx context.Context, userID string) ([]*Card, error)

	// Rule catalog
	CountFraudRules(ctx context.Context) (int, error)
	SaveFraudRules(ctx context.Context, rules []*FraudRule) error
	ListFraudRules(ctx context.Context) ([]*FraudRule, error)

	WithinTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// TransactionTransition is a conditional status change. From lists the
// statuses the row may currently hold; empty means any.
type TransactionTransition struct {
	TxID       string
	From       []TransactionStatus
	To         TransactionStatus
	FlagReason string
	Actor      string
	At         time.Time
}

// AlertResolution closes an open alert.
type AlertResolution struct {
	Resolution         Resolution
	Actor              string
	Note               string
	TransactionRemoved bool
	At                 time.Time
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `mapstructure:"driver"`

	// SQLite specific
	SQLitePath string `mapstructure:"sqlite_path"`

	// PostgreSQL specific
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"`
	PostgresDB       string `mapstructure:"postgres_db"`
	PostgresSSLMode  string `mapstructure:"postgres_sslmode"`

	// Connection pool settings
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}
