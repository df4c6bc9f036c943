package domain

import "time"

// AlertStatus is the lifecycle state of a security alert.
type AlertStatus string

const (
	AlertOpen     AlertStatus = "open"
	AlertResolved AlertStatus = "resolved"
)

// Resolution records how a resolved alert was closed.
type Resolution string

const (
	ResolutionApproved Resolution = "approved"
	ResolutionRejected Resolution = "rejected"
)

// Valid reports whether r is a known resolution.
func (r Resolution) Valid() bool {
	return r == ResolutionApproved || r == ResolutionRejected
}

// AlertTypeUserReported marks alerts raised by the card holder.
const AlertTypeUserReported = "user_reported"

// SecurityAlert is a suspected-fraud finding tied to a transaction.
type SecurityAlert struct {
	ID            string        `json:"id"`
	UserID        string        `json:"userId"`
	CardID        string        `json:"cardId,omitempty"`
	TransactionID string        `json:"transactionId,omitempty"`
	Type          string        `json:"type"`
	Reason        string        `json:"reason"`
	Message       string        `json:"message,omitempty"`
	Severity      Severity      `json:"severity"`
	Status        AlertStatus   `json:"status"`
	Resolution    Resolution    `json:"resolution,omitempty"`
	Metadata      AlertMetadata `json:"metadata"`
	Notes         []AlertNote   `json:"notes,omitempty"`

	TransactionRemoved bool `json:"transactionRemoved,omitempty"`

	CreatedAt  time.Time  `json:"timestamp"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
	ResolvedBy string     `json:"resolvedBy,omitempty"`
}

// IsOpen reports whether the alert still awaits a decision.
func (a *SecurityAlert) IsOpen() bool {
	return a.Status == AlertOpen
}

// AlertMetadata snapshots the transaction at alert time.
type AlertMetadata struct {
	TransactionAmount float64    `json:"transactionAmount"`
	MerchantName      string     `json:"merchantName"`
	TransactionDate   *time.Time `json:"transactionDate,omitempty"`
}

// AlertNote is an audit note appended to an alert.
type AlertNote struct {
	Text      string    `json:"text"`
	Author    string    `json:"author,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// AlertFilter narrows alert queries. Zero values are ignored.
type AlertFilter struct {
	UserID        string
	CardID        string
	TransactionID string
	Status        AlertStatus
}

// SecurityLogTypeRejected is written when a user rejects a transaction.
const SecurityLogTypeRejected = "transaction_rejected"

// SecurityLog is the durable audit trail of destructive user actions.
type SecurityLog struct {
	ID                 string             `json:"id"`
	UserID             string             `json:"userId"`
	Type               string             `json:"type"`
	TransactionDetails TransactionSummary `json:"transactionDetails"`
	Reason             string             `json:"reason"`
	Actor              string             `json:"actor,omitempty"`
	CreatedAt          time.Time          `json:"timestamp"`
}
