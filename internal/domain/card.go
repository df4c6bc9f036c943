package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Card is a payment card held by a user. CreditLimit is nil when the issuer
// did not declare one.
type Card struct {
	ID                   string    `json:"id"`
	UserID               string    `json:"userId"`
	Name                 string    `json:"cardName"`
	Type                 string    `json:"cardType"`
	Last4                string    `json:"last4,omitempty"`
	CreditLimit          *float64  `json:"creditLimit,omitempty"`
	CurrentMonthSpending float64   `json:"currentMonthSpending"`
	CreatedAt            time.Time `json:"createdAt"`
}

// CardRequest registers a card.
type CardRequest struct {
	ID          string   `json:"id,omitempty"`
	UserID      string   `json:"userId"`
	CardName    string   `json:"cardName"`
	CardType    string   `json:"cardType"`
	Last4       string   `json:"last4,omitempty"`
	CreditLimit *float64 `json:"creditLimit,omitempty"`

	CurrentMonthSpending float64 `json:"currentMonthSpending,omitempty"`
}

// ToCard validates the request and builds a card.
func (r *CardRequest) ToCard(now time.Time) (*Card, error) {
	if r.UserID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrInvalidInput)
	}
	if strings.TrimSpace(r.CardName) == "" || strings.TrimSpace(r.CardType) == "" {
		return nil, fmt.Errorf("%w: cardName and cardType are required", ErrInvalidInput)
	}
	if r.CreditLimit != nil && *r.CreditLimit < 0 {
		return nil, fmt.Errorf("%w: creditLimit must not be negative", ErrInvalidInput)
	}

	id := r.ID
	if id == "" {
		id = uuid.New().String()
	}
	return &Card{
		ID:          id,
		UserID:      r.UserID,
		Name:        strings.TrimSpace(r.CardName),
		Type:        strings.ToUpper(strings.TrimSpace(r.CardType)),
		Last4:       r.Last4,
		CreditLimit: r.CreditLimit,
		CreatedAt:   now.UTC(),

		CurrentMonthSpending: r.CurrentMonthSpending,
	}, nil
}

// CardRef identifies the card chosen by a recommendation.
type CardRef struct {
	CardID   string `json:"cardId"`
	CardName string `json:"cardName"`
	CardType string `json:"cardType"`
}

// Ref returns the card's reference.
func (c *Card) Ref() CardRef {
	return CardRef{CardID: c.ID, CardName: c.Name, CardType: c.Type}
}

// RewardRateTable maps card type, then card name, then category to a reward
// percentage.
type RewardRateTable map[string]map[string]map[string]float64

// OtherCategory is the per-card fallback category.
const OtherCategory = "other"

// StatusBand classifies a ratio against its thresholds.
type StatusBand string

const (
	BandGood    StatusBand = "good"
	BandWarning StatusBand = "warning"
	BandDanger  StatusBand = "danger"
)
