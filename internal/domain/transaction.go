package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TransactionStatus is the ledger status of a transaction.
type TransactionStatus string

const (
	StatusCompleted TransactionStatus = "completed"
	StatusFlagged   TransactionStatus = "flagged"
	StatusDeclined  TransactionStatus = "declined"
)

// Valid reports whether s is a known status.
func (s TransactionStatus) Valid() bool {
	switch s {
	case StatusCompleted, StatusFlagged, StatusDeclined:
		return true
	}
	return false
}

// Transaction is a ledger entry. Amount is signed: negative means money
// leaving the account.
type Transaction struct {
	ID           string            `json:"id"`
	UserID       string            `json:"userId"`
	CardID       string            `json:"cardId,omitempty"`
	Amount       float64           `json:"amount"`
	MerchantName string            `json:"merchantName"`
	Category     string            `json:"category"`
	Description  string            `json:"description,omitempty"`
	Location     *Location         `json:"location,omitempty"`
	Timestamp    time.Time         `json:"date"`
	Status       TransactionStatus `json:"status"`
	FlagReason   string            `json:"flagReason,omitempty"`

	FlaggedAt  *time.Time `json:"flaggedAt,omitempty"`
	ApprovedAt *time.Time `json:"approvedAt,omitempty"`
	ApprovedBy string     `json:"approvedBy,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// Location is where a card-present transaction happened.
type Location struct {
	Country string `json:"country,omitempty"`
	City    string `json:"city,omitempty"`
}

// HasLocation reports whether the transaction carries a country.
func (t *Transaction) HasLocation() bool {
	return t.Location != nil && t.Location.Country != ""
}

// Country returns the upper-cased country code or "".
func (t *Transaction) Country() string {
	if !t.HasLocation() {
		return ""
	}
	return strings.ToUpper(t.Location.Country)
}

// IsOutgoing reports whether the transaction is spending.
func (t *Transaction) IsOutgoing() bool {
	return t.Amount < 0
}

// Malformed reports whether the transaction lacks the fields needed for rule
// evaluation.
func (t *Transaction) Malformed() bool {
	return strings.TrimSpace(t.MerchantName) == "" || strings.TrimSpace(t.Category) == ""
}

// Scannable reports whether the scanner may consider the transaction.
func (t *Transaction) Scannable() bool {
	return t.Status != StatusFlagged && t.Status != StatusDeclined
}

// Summary captures the fields echoed back by lifecycle operations.
func (t *Transaction) Summary() TransactionSummary {
	ts := t.Timestamp
	return TransactionSummary{
		ID:           t.ID,
		MerchantName: t.MerchantName,
		Amount:       t.Amount,
		Date:         &ts,
	}
}

// TransactionSummary is the audit snapshot of a transaction.
type TransactionSummary struct {
	ID           string     `json:"id"`
	MerchantName string     `json:"merchantName"`
	Amount       float64    `json:"amount"`
	Date         *time.Time `json:"date,omitempty"`
}

// TransactionFilter narrows ledger queries. Zero values are ignored.
type TransactionFilter struct {
	UserID   string
	CardID   string
	Statuses []TransactionStatus
	From     time.Time
	To       time.Time
	Limit    int
}

// Window is an inclusive time range. A zero bound is open.
type Window struct {
	From time.Time `json:"from,omitempty"`
	To   time.Time `json:"to,omitempty"`
}

// Contains reports whether ts falls inside the window.
func (w Window) Contains(ts time.Time) bool {
	if !w.From.IsZero() && ts.Before(w.From) {
		return false
	}
	if !w.To.IsZero() && ts.After(w.To) {
		return false
	}
	return true
}

// MonthWindow returns the calendar month containing now, in now's location.
func MonthWindow(now time.Time) Window {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	end := start.AddDate(0, 1, 0).Add(-time.Nanosecond)
	return Window{From: start, To: end}
}

// TransactionRequest is the ingest payload for a ledger entry.
type TransactionRequest struct {
	ID           string    `json:"id,omitempty"`
	UserID       string    `json:"userId"`
	CardID       string    `json:"cardId,omitempty"`
	Amount       *float64  `json:"amount"`
	MerchantName string    `json:"merchantName"`
	Category     string    `json:"category"`
	Description  string    `json:"description,omitempty"`
	Location     *Location `json:"location,omitempty"`
	Date         string    `json:"date,omitempty"`
	Status       string    `json:"status,omitempty"`
}

// ToTransaction validates the request and builds a ledger entry.
func (r *TransactionRequest) ToTransaction(now time.Time) (*Transaction, error) {
	if r.UserID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrInvalidInput)
	}
	if r.Amount == nil {
		return nil, fmt.Errorf("%w: amount is required", ErrInvalidInput)
	}

	ts := now
	if r.Date != "" {
		parsed, err := time.Parse(time.RFC3339, r.Date)
		if err != nil {
			return nil, fmt.Errorf("%w: date must be RFC 3339: %v", ErrInvalidInput, err)
		}
		ts = parsed
	}

	status := StatusCompleted
	if r.Status != "" {
		status = TransactionStatus(r.Status)
		if !status.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, r.Status)
		}
		// Only the alert lifecycle may flag a transaction.
		if status == StatusFlagged {
			return nil, fmt.Errorf("%w: status %q cannot be set on ingest", ErrInvalidInput, r.Status)
		}
	}

	id := r.ID
	if id == "" {
		id = uuid.New().String()
	}

	return &Transaction{
		ID:           id,
		UserID:       r.UserID,
		CardID:       r.CardID,
		Amount:       *r.Amount,
		MerchantName: r.MerchantName,
		Category:     strings.ToLower(strings.TrimSpace(r.Category)),
		Description:  r.Description,
		Location:     r.Location,
		Timestamp:    ts.UTC(),
		Status:       status,
		CreatedAt:    now.UTC(),
	}, nil
}
