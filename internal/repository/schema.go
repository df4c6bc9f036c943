package repository

// Schema definitions for the Kestrel ledger.
// Compatible with both SQLite and PostgreSQL.

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    card_id TEXT NOT NULL DEFAULT '',
    amount DOUBLE PRECISION NOT NULL,
    merchant_name TEXT NOT NULL DEFAULT '',
    category TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    country TEXT NOT NULL DEFAULT '',
    city TEXT NOT NULL DEFAULT '',
    timestamp TIMESTAMP NOT NULL,
    status TEXT NOT NULL,
    flag_reason TEXT NOT NULL DEFAULT '',
    flagged_at TIMESTAMP,
    approved_at TIMESTAMP,
    approved_by TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(user_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_transactions_card ON transactions(card_id);
CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions(user_id, status);
`

const schemaAlerts = `
CREATE TABLE IF NOT EXISTS security_alerts (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    card_id TEXT NOT NULL DEFAULT '',
    transaction_id TEXT NOT NULL DEFAULT '',
    type TEXT NOT NULL,
    reason TEXT NOT NULL,
    message TEXT NOT NULL DEFAULT '',
    severity TEXT NOT NULL,
    status TEXT NOT NULL,
    resolution TEXT NOT NULL DEFAULT '',
    transaction_removed INTEGER NOT NULL DEFAULT 0,
    metadata TEXT NOT NULL,
    notes TEXT NOT NULL DEFAULT '[]',
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    resolved_at TIMESTAMP,
    resolved_by TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_alerts_user ON security_alerts(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_alerts_card ON security_alerts(card_id);
CREATE INDEX IF NOT EXISTS idx_alerts_tx_status ON security_alerts(transaction_id, status);
`

const schemaCards = `
CREATE TABLE IF NOT EXISTS cards (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    name TEXT NOT NULL,
    type TEXT NOT NULL,
    last4 TEXT NOT NULL DEFAULT '',
    credit_limit DOUBLE PRECISION,
    current_month_spending DOUBLE PRECISION NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cards_user ON cards(user_id);
`

// schemaFraudRules holds the rule catalog. Variant fields live in params.
const schemaFraudRules = `
CREATE TABLE IF NOT EXISTS fraud_rules (
    id TEXT PRIMARY KEY,
    seq INTEGER NOT NULL,
    kind TEXT NOT NULL,
    severity TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    enabled INTEGER NOT NULL DEFAULT 1,
    params TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);
`

const schemaSecurityLogs = `
CREATE TABLE IF NOT EXISTS security_logs (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    type TEXT NOT NULL,
    transaction_id TEXT NOT NULL DEFAULT '',
    transaction_details TEXT NOT NULL,
    reason TEXT NOT NULL DEFAULT '',
    actor TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_security_logs_user ON security_logs(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_security_logs_tx ON security_logs(transaction_id, type);
`

// AllSchemas returns all schema definitions in order.
func AllSchemas() []string {
	return []string{
		schemaTransactions,
		schemaAlerts,
		schemaCards,
		schemaFraudRules,
		schemaSecurityLogs,
	}
}
