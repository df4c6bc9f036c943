// Package rules provides the fraud rule catalog and its CEL-Go evaluator.
package rules

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Expressions per rule kind. Rule-specific values arrive through params.
var kindExpressions = map[domain.RuleKind]string{
	domain.RuleMerchantPattern: `merchant.matches(params.pattern)`,
	domain.RuleAmountThreshold: `abs_amount > params.threshold`,
	domain.RuleCategoryList:    `category in params.categories`,
}

const (
	highRiskCountryExpr = `has_location && country in params.countries`
	nonHomeCountryExpr  = `has_location && country != params.home_country`
)

// Evaluator is the compiled form of a RuleSet.
type Evaluator struct {
	env   *cel.Env
	rules []*CompiledRule
}

// CompiledRule holds a pre-compiled CEL program for one catalog entry.
type CompiledRule struct {
	Rule    *domain.FraudRule
	Program cel.Program
	params  map[string]any
}

// Match is the first rule a transaction satisfied.
type Match struct {
	Rule     *domain.FraudRule
	Type     string
	Reason   string
	Severity domain.Severity
}

// NewEvaluator compiles the enabled rules of rs in evaluation order. A rule
// that fails to compile fails the whole set.
func NewEvaluator(rs RuleSet) (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("merchant", cel.StringType),
		cel.Variable("category", cel.StringType),
		cel.Variable("country", cel.StringType),
		cel.Variable("has_location", cel.BoolType),
		cel.Variable("abs_amount", cel.DoubleType),
		cel.Variable("params", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	e := &Evaluator{env: env}
	for _, rule := range rs.Ordered() {
		if !rule.Enabled {
			continue
		}
		compiled, err := e.compileRule(rule)
		if err != nil {
			return nil, err
		}
		e.rules = append(e.rules, compiled)
	}
	return e, nil
}

// Match returns the first rule tx satisfies, or nil.
func (e *Evaluator) Match(tx *domain.Transaction) (*Match, error) {
	activation := map[string]any{
		"merchant":     tx.MerchantName,
		"category":     strings.ToLower(tx.Category),
		"country":      tx.Country(),
		"has_location": tx.HasLocation(),
		"abs_amount":   math.Abs(tx.Amount),
	}

	for _, compiled := range e.rules {
		activation["params"] = compiled.params

		out, _, err := compiled.Program.Eval(activation)
		if err != nil {
			return nil, fmt.Errorf("evaluate rule %s: %w", compiled.Rule.ID, err)
		}
		if matched, ok := out.(types.Bool); ok && bool(matched) {
			return &Match{
				Rule:     compiled.Rule,
				Type:     compiled.Rule.FindingType(),
				Reason:   describe(compiled.Rule, tx),
				Severity: compiled.Rule.Severity,
			}, nil
		}
	}
	return nil, nil
}

// Rules returns the compiled rules in evaluation order.
func (e *Evaluator) Rules() []*domain.FraudRule {
	out := make([]*domain.FraudRule, len(e.rules))
	for i, c := range e.rules {
		out[i] = c.Rule
	}
	return out
}

// RulesCount returns the number of enabled rules.
func (e *Evaluator) RulesCount() int {
	return len(e.rules)
}

func (e *Evaluator) compileRule(rule *domain.FraudRule) (*CompiledRule, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	expr, params, err := expressionFor(rule)
	if err != nil {
		return nil, err
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", rule.ID, issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", rule.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", rule.ID, err)
	}

	return &CompiledRule{Rule: rule, Program: program, params: params}, nil
}

func expressionFor(rule *domain.FraudRule) (string, map[string]any, error) {
	switch rule.Kind {
	case domain.RuleMerchantPattern:
		pattern := rule.Pattern
		if !rule.Regex {
			pattern = regexp.QuoteMeta(pattern)
		}
		pattern = "(?i)" + pattern
		if _, err := regexp.Compile(pattern); err != nil {
			return "", nil, fmt.Errorf("%w: rule %s: bad pattern: %v", domain.ErrInvalidInput, rule.ID, err)
		}
		return kindExpressions[rule.Kind], map[string]any{"pattern": pattern}, nil

	case domain.RuleAmountThreshold:
		return kindExpressions[rule.Kind], map[string]any{"threshold": rule.Threshold}, nil

	case domain.RuleCountryList:
		if rule.Mode == domain.CountryNonHome {
			return nonHomeCountryExpr, map[string]any{"home_country": rule.HomeCountry}, nil
		}
		return highRiskCountryExpr, map[string]any{"countries": rule.Countries}, nil

	case domain.RuleCategoryList:
		return kindExpressions[rule.Kind], map[string]any{"categories": rule.Categories}, nil
	}
	return "", nil, fmt.Errorf("%w: rule %s: unknown kind %q", domain.ErrInvalidInput, rule.ID, rule.Kind)
}

func describe(rule *domain.FraudRule, tx *domain.Transaction) string {
	switch rule.Kind {
	case domain.RuleMerchantPattern:
		return fmt.Sprintf("Potential %s detected: %s", rule.FindingType(), tx.MerchantName)
	case domain.RuleAmountThreshold:
		return fmt.Sprintf("Unusually large transaction amount: $%.2f", math.Abs(tx.Amount))
	case domain.RuleCountryList:
		return fmt.Sprintf("Foreign transaction detected in %s", tx.Country())
	case domain.RuleCategoryList:
		return fmt.Sprintf("High-risk category: %s", tx.Category)
	}
	return rule.Description
}
