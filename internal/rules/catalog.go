package rules

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed default_rules.yaml
var defaultRulesYAML []byte

// RuleSet is an ordered rule catalog.
type RuleSet []*domain.FraudRule

// Ordered returns a copy sorted by kind precedence, then catalog position.
func (rs RuleSet) Ordered() RuleSet {
	out := make(RuleSet, len(rs))
	copy(out, rs)
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := out[i].Kind.Precedence(), out[j].Kind.Precedence()
		if pi != pj {
			return pi < pj
		}
		return out[i].Position < out[j].Position
	})
	return out
}

type ruleFile struct {
	Rules []*domain.FraudRule `yaml:"rules"`
}

// ParseRules decodes a YAML rule table. Positions follow file order.
func ParseRules(data []byte) (RuleSet, error) {
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: parse rule table: %v", domain.ErrInvalidInput, err)
	}
	if len(f.Rules) == 0 {
		return nil, fmt.Errorf("%w: rule table is empty", domain.ErrInvalidInput)
	}

	seen := make(map[string]bool, len(f.Rules))
	for i, rule := range f.Rules {
		rule.Position = i
		if err := rule.Validate(); err != nil {
			return nil, err
		}
		if seen[rule.ID] {
			return nil, fmt.Errorf("%w: duplicate rule id %s", domain.ErrInvalidInput, rule.ID)
		}
		seen[rule.ID] = true
	}
	return RuleSet(f.Rules), nil
}

// DefaultRules returns the embedded rule table.
func DefaultRules() (RuleSet, error) {
	return ParseRules(defaultRulesYAML)
}

// LoadRuleFile reads an operator-supplied rule table.
func LoadRuleFile(path string) (RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule file %s: %w", path, err)
	}
	return ParseRules(data)
}

// Catalog owns the persisted rule table.
type Catalog struct {
	repo   domain.Repository
	cfg    domain.RulesConfig
	logger *slog.Logger
}

// NewCatalog creates a catalog backed by repo.
func NewCatalog(repo domain.Repository, cfg domain.RulesConfig, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{repo: repo, cfg: cfg, logger: logger}
}

// LoadDefaultRules seeds the store with the default table when it holds no
// rules and returns the effective catalog. Calling it again is a no-op.
func (c *Catalog) LoadDefaultRules(ctx context.Context) (RuleSet, error) {
	n, err := c.repo.CountFraudRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("count rules: %w", err)
	}

	if n == 0 {
		table, err := c.seedTable()
		if err != nil {
			return nil, err
		}
		if err := c.repo.SaveFraudRules(ctx, table); err != nil {
			return nil, fmt.Errorf("seed rules: %w", err)
		}
		c.logger.Info("seeded rule catalog", "rules", len(table))
	}

	return c.ListRules(ctx)
}

// ListRules returns the stored catalog with config overrides applied, in
// evaluation order.
func (c *Catalog) ListRules(ctx context.Context) (RuleSet, error) {
	stored, err := c.repo.ListFraudRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return ApplyOverrides(stored, c.cfg).Ordered(), nil
}

func (c *Catalog) seedTable() (RuleSet, error) {
	if c.cfg.File != "" {
		return LoadRuleFile(c.cfg.File)
	}
	return DefaultRules()
}

// ApplyOverrides returns copies of rules with the configured amount
// threshold and foreign-country definition applied.
func ApplyOverrides(rules RuleSet, cfg domain.RulesConfig) RuleSet {
	out := make(RuleSet, 0, len(rules))
	for _, r := range rules {
		rule := *r
		switch rule.Kind {
		case domain.RuleAmountThreshold:
			if cfg.AmountThreshold > 0 {
				rule.Threshold = cfg.AmountThreshold
			}
		case domain.RuleCountryList:
			if cfg.ForeignMode != "" {
				rule.Mode = cfg.ForeignMode
			}
			if cfg.HomeCountry != "" {
				rule.HomeCountry = cfg.HomeCountry
			}
			if len(cfg.HighRiskCountries) > 0 {
				rule.Countries = cfg.HighRiskCountries
			}
			rule.HomeCountry = strings.ToUpper(rule.HomeCountry)
			rule.Countries = upperAll(rule.Countries)
		case domain.RuleCategoryList:
			rule.Categories = lowerAll(rule.Categories)
		}
		out = append(out, &rule)
	}
	return out
}

func upperAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	return out
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(strings.TrimSpace(s))
	}
	return out
}
