// Package rewards recommends which card to use per spending category.
package rewards

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed default_rates.yaml
var defaultRatesYAML []byte

// DefaultRate is the percentage earned when neither the category nor the
// card's "other" entry is declared.
const DefaultRate = 1.0

// Table is a read-only reward rate table.
type Table struct {
	rates domain.RewardRateTable
}

// NewTable wraps rates. Category keys are matched case-insensitively.
func NewTable(rates domain.RewardRateTable) *Table {
	normalized := make(domain.RewardRateTable, len(rates))
	for cardType, byName := range rates {
		names := make(map[string]map[string]float64, len(byName))
		for name, byCategory := range byName {
			cats := make(map[string]float64, len(byCategory))
			for category, rate := range byCategory {
				cats[strings.ToLower(strings.TrimSpace(category))] = rate
			}
			names[name] = cats
		}
		normalized[cardType] = names
	}
	return &Table{rates: normalized}
}

// ParseTable decodes a YAML rate table.
func ParseTable(data []byte) (*Table, error) {
	var rates domain.RewardRateTable
	if err := yaml.Unmarshal(data, &rates); err != nil {
		return nil, fmt.Errorf("%w: parse reward table: %v", domain.ErrInvalidInput, err)
	}
	if len(rates) == 0 {
		return nil, fmt.Errorf("%w: reward table is empty", domain.ErrInvalidInput)
	}
	for cardType, byName := range rates {
		for name, byCategory := range byName {
			for category, rate := range byCategory {
				if rate < 0 {
					return nil, fmt.Errorf("%w: negative rate for %s/%s/%s", domain.ErrInvalidInput, cardType, name, category)
				}
			}
		}
	}
	return NewTable(rates), nil
}

// DefaultTable returns the embedded rate table.
func DefaultTable() (*Table, error) {
	return ParseTable(defaultRatesYAML)
}

// LoadTable reads path, or the embedded table when path is empty.
func LoadTable(path string) (*Table, error) {
	if path == "" {
		return DefaultTable()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reward table %s: %w", path, err)
	}
	return ParseTable(data)
}

// Lookup returns the declared rate of card for category, falling back to
// the card's "other" entry. ok is false when neither exists.
func (t *Table) Lookup(card *domain.Card, category string) (float64, bool) {
	byCategory, ok := t.rates[card.Type][card.Name]
	if !ok {
		return 0, false
	}
	if rate, ok := byCategory[strings.ToLower(category)]; ok {
		return rate, true
	}
	if rate, ok := byCategory[domain.OtherCategory]; ok {
		return rate, true
	}
	return 0, false
}

// RateFor is Lookup with the DefaultRate applied.
func (t *Table) RateFor(card *domain.Card, category string) float64 {
	if rate, ok := t.Lookup(card, category); ok {
		return rate
	}
	return DefaultRate
}

// FormatRate renders a rate the way the API reports it, e.g. "3%".
func FormatRate(rate float64) string {
	return strconv.FormatFloat(rate, 'f', -1, 64) + "%"
}
