package rewards

import (
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/money"
	"github.com/shopspring/decimal"
)

// DefaultTopN is the number of categories optimized when none is given.
const DefaultTopN = 5

var monthsPerYear = decimal.NewFromInt(12)

// Recommendation is the best card for one spending category.
type Recommendation struct {
	Category                string          `json:"category"`
	MonthlySpending         float64         `json:"monthlySpending"`
	BestCard                *domain.CardRef `json:"bestCard"`
	Rate                    float64         `json:"-"`
	RewardRate              string          `json:"rewardRate"`
	PotentialMonthlyRewards float64         `json:"potentialMonthlyRewards"`
}

// Plan is the optimizer output.
type Plan struct {
	Optimizations          []Recommendation `json:"optimizations"`
	PotentialAnnualRewards float64          `json:"potentialAnnualRewards"`
}

// Optimize picks the best card for each of the first topN categories of
// spend, which must already be in aggregator order. The strictly greatest
// rate wins; on a tie the card listed first is kept.
func Optimize(spend []domain.CategorySpendSummary, cards []*domain.Card, table *Table, topN int) Plan {
	if topN <= 0 {
		topN = DefaultTopN
	}
	if len(spend) > topN {
		spend = spend[:topN]
	}

	plan := Plan{Optimizations: make([]Recommendation, 0, len(spend))}
	monthly := decimal.Zero

	for _, s := range spend {
		card, rate := best(s.Category, cards, table)
		amount := money.Of(s.Total)

		rec := Recommendation{
			Category:        s.Category,
			MonthlySpending: money.Round2(amount),
			Rate:            rate,
			RewardRate:      FormatRate(rate),
		}
		if card != nil {
			ref := card.Ref()
			rec.BestCard = &ref
			rec.PotentialMonthlyRewards = money.Round2(money.ApplyRate(amount, rate))
		}
		monthly = monthly.Add(money.Of(rec.PotentialMonthlyRewards))
		plan.Optimizations = append(plan.Optimizations, rec)
	}

	plan.PotentialAnnualRewards = money.Round2(monthly.Mul(monthsPerYear))
	return plan
}

// Choice is the best card for a single category.
type Choice struct {
	Category   string         `json:"category"`
	Card       domain.CardRef `json:"card"`
	Rate       float64        `json:"-"`
	RewardRate string         `json:"reward"`
	Message    string         `json:"message"`
}

// BestCardFor picks the card to use for category with the same lookup and
// tie-break as Optimize.
func BestCardFor(category string, cards []*domain.Card, table *Table) (*Choice, error) {
	if category == "" {
		return nil, fmt.Errorf("%w: category is required", domain.ErrInvalidInput)
	}
	if len(cards) == 0 {
		return nil, fmt.Errorf("%w: no cards on file", domain.ErrNotFound)
	}

	card, rate := best(category, cards, table)
	if card == nil {
		return nil, fmt.Errorf("%w: no rewards found for your cards", domain.ErrNotFound)
	}

	return &Choice{
		Category:   category,
		Card:       card.Ref(),
		Rate:       rate,
		RewardRate: FormatRate(rate),
		Message:    fmt.Sprintf("Use your %s for %s cash back on %s.", card.Name, FormatRate(rate), category),
	}, nil
}

func best(category string, cards []*domain.Card, table *Table) (*domain.Card, float64) {
	var (
		chosen *domain.Card
		top    float64
	)
	for _, card := range cards {
		if card == nil {
			continue
		}
		if rate := table.RateFor(card, category); chosen == nil || rate > top {
			chosen, top = card, rate
		}
	}
	return chosen, top
}
