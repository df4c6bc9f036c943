package domain

import (
	"fmt"
	"strings"
	"time"
)

// Severity grades a finding.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// RuleKind discriminates the FraudRule variants.
type RuleKind string

const (
	RuleMerchantPattern RuleKind = "merchant_pattern"
	RuleAmountThreshold RuleKind = "amount_threshold"
	RuleCountryList     RuleKind = "country_list"
	RuleCategoryList    RuleKind = "category_list"
)

// Precedence returns the evaluation rank of a kind. Lower runs first.
func (k RuleKind) Precedence() int {
	switch k {
	case RuleMerchantPattern:
		return 0
	case RuleAmountThreshold:
		return 1
	case RuleCountryList:
		return 2
	case RuleCategoryList:
		return 3
	}
	return 99
}

// CountryMode selects what "foreign" means for a country rule.
type CountryMode string

const (
	// CountryHighRisk matches when the country is in Countries.
	CountryHighRisk CountryMode = "high_risk"
	// CountryNonHome matches any country other than HomeCountry.
	CountryNonHome CountryMode = "non_home"
)

// FraudRule is one declarative entry of the rule catalog. Kind selects which
// of the variant fields are meaningful.
type FraudRule struct {
	ID          string   `json:"id" yaml:"id"`
	Kind        RuleKind `json:"kind" yaml:"kind"`
	Position    int      `json:"position" yaml:"-"`
	Severity    Severity `json:"severity" yaml:"severity"`
	Description string   `json:"description" yaml:"description"`
	Enabled     bool     `json:"enabled" yaml:"enabled"`

	// merchant_pattern
	Pattern   string `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Regex     bool   `json:"regex,omitempty" yaml:"regex,omitempty"`
	AlertType string `json:"alertType,omitempty" yaml:"alert_type,omitempty"`

	// amount_threshold
	Threshold float64 `json:"threshold,omitempty" yaml:"threshold,omitempty"`

	// country_list
	Countries   []string    `json:"countries,omitempty" yaml:"countries,omitempty"`
	Mode        CountryMode `json:"mode,omitempty" yaml:"mode,omitempty"`
	HomeCountry string      `json:"homeCountry,omitempty" yaml:"home_country,omitempty"`

	// category_list
	Categories []string `json:"categories,omitempty" yaml:"categories,omitempty"`

	CreatedAt time.Time `json:"createdAt,omitempty" yaml:"-"`
}

// Validate checks that the variant carries its own fields.
func (r *FraudRule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: rule id is required", ErrInvalidInput)
	}
	switch r.Severity {
	case SeverityLow, SeverityMedium, SeverityHigh:
	default:
		return fmt.Errorf("%w: rule %s: unknown severity %q", ErrInvalidInput, r.ID, r.Severity)
	}

	switch r.Kind {
	case RuleMerchantPattern:
		if strings.TrimSpace(r.Pattern) == "" {
			return fmt.Errorf("%w: rule %s: pattern is required", ErrInvalidInput, r.ID)
		}
	case RuleAmountThreshold:
		if r.Threshold <= 0 {
			return fmt.Errorf("%w: rule %s: threshold must be positive", ErrInvalidInput, r.ID)
		}
	case RuleCountryList:
		switch r.Mode {
		case "", CountryHighRisk:
			if len(r.Countries) == 0 {
				return fmt.Errorf("%w: rule %s: countries are required", ErrInvalidInput, r.ID)
			}
		case CountryNonHome:
			if r.HomeCountry == "" {
				return fmt.Errorf("%w: rule %s: home country is required", ErrInvalidInput, r.ID)
			}
		default:
			return fmt.Errorf("%w: rule %s: unknown country mode %q", ErrInvalidInput, r.ID, r.Mode)
		}
	case RuleCategoryList:
		if len(r.Categories) == 0 {
			return fmt.Errorf("%w: rule %s: categories are required", ErrInvalidInput, r.ID)
		}
	default:
		return fmt.Errorf("%w: rule %s: unknown kind %q", ErrInvalidInput, r.ID, r.Kind)
	}
	return nil
}

// FindingType returns the alert type a match of this rule produces.
func (r *FraudRule) FindingType() string {
	switch r.Kind {
	case RuleMerchantPattern:
		if r.AlertType != "" {
			return r.AlertType
		}
		return "phishing"
	case RuleAmountThreshold:
		return "unusual_amount"
	case RuleCountryList:
		return "foreign_transaction"
	case RuleCategoryList:
		return "high_risk_category"
	}
	return string(r.Kind)
}

// FlagRecord is a scanner finding for a single transaction.
type FlagRecord struct {
	TransactionID string   `json:"transactionId"`
	UserID        string   `json:"userId"`
	CardID        string   `json:"cardId,omitempty"`
	RuleID        string   `json:"ruleId"`
	Type          string   `json:"type"`
	Reason        string   `json:"reason"`
	Severity      Severity `json:"severity"`
	AlertID       string   `json:"alertId,omitempty"`
}
