package component

import (
	"bytes"
	"fmt"
	"reflect"

	"gopkg.in/yaml.v3"

	"github.com/c360/eventflow/errors"
)

const (
	// MaxIDLength bounds component ids and type names.
	MaxIDLength = 128
	// MaxOptionsDepth bounds nesting inside a component's options.
	MaxOptionsDepth = 10
)

// Options are the type-specific settings of one configured component,
// as parsed from the pipeline file.
type Options map[string]any

// Validatable is implemented by configs that check themselves after decoding.
type Validatable interface {
	Validate() error
}

// Decode fills target from the options. Unknown keys are rejected so a
// typo in the pipeline file fails at load time. If target implements
// Validatable it is validated after decoding.
func (o Options) Decode(target any) error {
	if target == nil || reflect.TypeOf(target).Kind() != reflect.Ptr {
		return errors.WrapInvalid(
			fmt.Errorf("target must be a pointer, got %T", target),
			"Options", "Decode", "target type check")
	}
	if err := validateDepth(map[string]any(o), 0); err != nil {
		return err
	}

	if len(o) > 0 {
		raw, err := yaml.Marshal(map[string]any(o))
		if err != nil {
			return errors.WrapInvalid(err, "Options", "Decode", "options encoding")
		}
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(target); err != nil {
			return errors.WrapInvalid(err, "Options", "Decode", "options decoding")
		}
	}

	if v, ok := target.(Validatable); ok {
		if err := v.Validate(); err != nil {
			return errors.Wrap(err, "Options", "Decode", "config validation")
		}
	}
	return nil
}

func validateDepth(v any, depth int) error {
	if depth > MaxOptionsDepth {
		return errors.WrapInvalid(
			fmt.Errorf("options nested deeper than %d", MaxOptionsDepth),
			"Options", "Decode", "depth check")
	}
	switch t := v.(type) {
	case map[string]any:
		for _, child := range t {
			if err := validateDepth(child, depth+1); err != nil {
				return err
			}
		}
	case []any:
		for _, child := range t {
			if err := validateDepth(child, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// ValidateID checks a component id or type name: non-empty, bounded, and
// limited to letters, digits, dash, underscore and dot.
func ValidateID(id string) error {
	if id == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "ConfigValidator", "ValidateID", "empty id")
	}
	if len(id) > MaxIDLength {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "ConfigValidator", "ValidateID", "id too long")
	}
	for _, r := range id {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.') {
			return errors.WrapInvalid(
				fmt.Errorf("invalid character %q in %q", r, id),
				"ConfigValidator", "ValidateID", "id characters")
		}
	}
	return nil
}
