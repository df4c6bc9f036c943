// Package stats provides per-user security statistics.
package stats

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/money"
	"github.com/shopspring/decimal"
)

// HighValueThreshold marks outgoing transactions larger than this amount.
const HighValueThreshold = 1000.0

const topMerchants = 5

// Count is a named tally.
type Count struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// SecurityStats summarizes a user's ledger from a fraud perspective.
type SecurityStats struct {
	TotalTransactions      int     `json:"totalTransactions"`
	FlaggedTransactions    int     `json:"flaggedTransactions"`
	FlaggedPercentage      float64 `json:"flaggedPercentage"`
	ForeignTransactions    int     `json:"foreignTransactions"`
	HighValueTransactions  int     `json:"highValueTransactions"`
	Categories             []Count `json:"categories"`
	TopSuspiciousMerchants []Count `json:"topSuspiciousMerchants"`
}

// Service computes security statistics.
type Service struct {
	repo        domain.Repository
	homeCountry string
}

// NewService creates a stats service. Transactions outside homeCountry
// count as foreign.
func NewService(repo domain.Repository, homeCountry string) *Service {
	if homeCountry == "" {
		homeCountry = "US"
	}
	return &Service{repo: repo, homeCountry: strings.ToUpper(homeCountry)}
}

// SecurityStats loads the user's ledger and summarizes it.
func (s *Service) SecurityStats(ctx context.Context, userID string) (*SecurityStats, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userId is required", domain.ErrInvalidInput)
	}

	txs, err := s.repo.ListTransactions(ctx, domain.TransactionFilter{UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return Summarize(txs, s.homeCountry), nil
}

// Summarize computes statistics over txs.
func Summarize(txs []*domain.Transaction, homeCountry string) *SecurityStats {
	st := &SecurityStats{TotalTransactions: len(txs)}
	categories := make(map[string]int)
	flaggedMerchants := make(map[string]int)

	for _, tx := range txs {
		if tx.Status == domain.StatusFlagged {
			st.FlaggedTransactions++
			flaggedMerchants[tx.MerchantName]++
		}
		if tx.HasLocation() && tx.Country() != homeCountry {
			st.ForeignTransactions++
		}
		if tx.Amount < -HighValueThreshold {
			st.HighValueTransactions++
		}
		categories[tx.Category]++
	}

	st.FlaggedPercentage = money.Round2(money.Percent(
		decimal.NewFromInt(int64(st.FlaggedTransactions)),
		decimal.NewFromInt(int64(st.TotalTransactions)),
	))
	st.Categories = ranked(categories, 0)
	st.TopSuspiciousMerchants = ranked(flaggedMerchants, topMerchants)
	return st
}

// ranked orders counts descending, then by name.
func ranked(counts map[string]int, limit int) []Count {
	out := make([]Count, 0, len(counts))
	for name, n := range counts {
		out = append(out, Count{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
