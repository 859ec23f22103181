package filter

import (
	"fmt"

	"github.com/c360/eventflow/errors"
	"github.com/c360/eventflow/value"
)

// Operators.
const (
	OpEq       = "eq"
	OpNe       = "ne"
	OpGt       = "gt"
	OpGte      = "gte"
	OpLt       = "lt"
	OpLte      = "lte"
	OpContains = "contains"
	OpExists   = "exists"
)

// Config holds the filter rules. An event passes when every rule matches.
type Config struct {
	Rules []Rule `yaml:"rules"`
}

// Rule is one condition on an event field.
type Rule struct {
	Field    string `yaml:"field"`
	Operator string `yaml:"operator"`
	Value    any    `yaml:"value"`
}

// Validate checks the rules.
func (c *Config) Validate() error {
	for i, r := range c.Rules {
		if _, err := r.compile(); err != nil {
			return errors.Wrap(err, "Config", "Validate", fmt.Sprintf("rule %d", i))
		}
	}
	return nil
}

type compiledRule struct {
	path     value.Path
	operator string
	operand  value.Value
}

func (r Rule) compile() (compiledRule, error) {
	if r.Field == "" {
		return compiledRule{}, errors.WrapInvalid(errors.ErrMissingConfig, "Rule", "compile", "field check")
	}
	path, err := value.ParsePath(r.Field)
	if err != nil {
		return compiledRule{}, err
	}
	if path.HasWildcard() {
		return compiledRule{}, errors.WrapInvalid(
			fmt.Errorf("%w: field %q has a wildcard", errors.ErrInvalidConfig, r.Field),
			"Rule", "compile", "field check")
	}

	switch r.Operator {
	case OpExists:
		return compiledRule{path: path, operator: r.Operator}, nil
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpContains:
	default:
		return compiledRule{}, errors.WrapInvalid(
			fmt.Errorf("%w: operator %q", errors.ErrInvalidConfig, r.Operator),
			"Rule", "compile", "operator check")
	}

	if r.Value == nil {
		return compiledRule{}, errors.WrapInvalid(
			fmt.Errorf("%w: operator %q needs a value", errors.ErrMissingConfig, r.Operator),
			"Rule", "compile", "value check")
	}
	operand, err := value.FromAny(r.Value)
	if err != nil {
		return compiledRule{}, err
	}
	return compiledRule{path: path, operator: r.Operator, operand: operand}, nil
}
