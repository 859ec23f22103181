package remap

import (
	"fmt"
	"sort"
	"strings"

	"github.com/c360/eventflow/errors"
	"github.com/c360/eventflow/event"
	"github.com/c360/eventflow/value"
)

// Script maps one event to zero or more events. Returning the input
// itself keeps it; returning nothing drops it. An error finalizes the
// input Errored, or Dropped when the processor is configured so.
type Script interface {
	Evaluate(e event.Event) ([]event.Event, error)
}

// ScriptFunc adapts a function to Script.
type ScriptFunc func(e event.Event) ([]event.Event, error)

// Evaluate calls f.
func (f ScriptFunc) Evaluate(e event.Event) ([]event.Event, error) { return f(e) }

// Mapping operations.
const (
	OpRename = "rename"
	OpCopy   = "copy"
)

// String transforms.
const (
	TransformUppercase = "uppercase"
	TransformLowercase = "lowercase"
	TransformTrim      = "trim"
)

// Mapping moves or copies one field, optionally transforming strings.
type Mapping struct {
	Source    string `yaml:"source"`
	Target    string `yaml:"target"`
	Op        string `yaml:"op"`        // rename (default) or copy
	Transform string `yaml:"transform"` // uppercase, lowercase or trim
	Required  bool   `yaml:"required"`  // a missing source fails the event
}

// MappingConfig is the declarative form of a MappingScript. Steps run in
// order: mappings, then set, then remove.
type MappingConfig struct {
	Mappings []Mapping      `yaml:"mappings"`
	Set      map[string]any `yaml:"set"`
	Remove   []string       `yaml:"remove"`
}

type compiledMapping struct {
	source    value.Path
	target    value.Path
	copy      bool
	transform string
	required  bool
}

type assignment struct {
	path  value.Path
	value value.Value
}

// MappingScript applies a MappingConfig to log and trace events. Metrics
// pass through unchanged.
type MappingScript struct {
	mappings []compiledMapping
	set      []assignment
	remove   []value.Path
}

var _ Script = (*MappingScript)(nil)

// NewMappingScript compiles cfg.
func NewMappingScript(cfg MappingConfig) (*MappingScript, error) {
	s := &MappingScript{}
	for i, m := range cfg.Mappings {
		cm, err := compileMapping(m)
		if err != nil {
			return nil, errors.Wrap(err, "MappingScript", "New", fmt.Sprintf("mapping %d", i))
		}
		s.mappings = append(s.mappings, cm)
	}

	// Sorted so assignments that nest under one another apply predictably.
	keys := make([]string, 0, len(cfg.Set))
	for k := range cfg.Set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		path, err := fieldPath(k)
		if err != nil {
			return nil, errors.Wrap(err, "MappingScript", "New", fmt.Sprintf("set %q", k))
		}
		v, err := value.FromAny(cfg.Set[k])
		if err != nil {
			return nil, errors.Wrap(err, "MappingScript", "New", fmt.Sprintf("set %q", k))
		}
		s.set = append(s.set, assignment{path: path, value: v})
	}

	for _, r := range cfg.Remove {
		path, err := fieldPath(r)
		if err != nil {
			return nil, errors.Wrap(err, "MappingScript", "New", fmt.Sprintf("remove %q", r))
		}
		s.remove = append(s.remove, path)
	}
	return s, nil
}

func compileMapping(m Mapping) (compiledMapping, error) {
	source, err := fieldPath(m.Source)
	if err != nil {
		return compiledMapping{}, err
	}
	target, err := fieldPath(m.Target)
	if err != nil {
		return compiledMapping{}, err
	}

	cm := compiledMapping{source: source, target: target, transform: m.Transform, required: m.Required}
	switch m.Op {
	case "", OpRename:
	case OpCopy:
		cm.copy = true
	default:
		return compiledMapping{}, errors.WrapInvalid(
			fmt.Errorf("%w: op %q", errors.ErrInvalidConfig, m.Op), "Mapping", "compile", "op check")
	}
	switch m.Transform {
	case "", TransformUppercase, TransformLowercase, TransformTrim:
	default:
		return compiledMapping{}, errors.WrapInvalid(
			fmt.Errorf("%w: transform %q", errors.ErrInvalidConfig, m.Transform), "Mapping", "compile", "transform check")
	}
	return cm, nil
}

// fieldPath parses a concrete, non-root path.
func fieldPath(s string) (value.Path, error) {
	path, err := value.ParsePath(s)
	if err != nil {
		return value.Path{}, err
	}
	if path.IsRoot() || path.HasWildcard() {
		return value.Path{}, errors.WrapInvalid(
			fmt.Errorf("%w: %q must name a single field", errors.ErrInvalidConfig, s),
			"MappingScript", "fieldPath", "path check")
	}
	return path, nil
}

type fieldEvent interface {
	event.Event
	Get(path value.Path) *value.Value
	Insert(path value.Path, v value.Value) (value.Value, bool, error)
	Remove(path value.Path) (value.Value, bool)
}

// Evaluate rewrites e in place and returns it.
func (s *MappingScript) Evaluate(e event.Event) ([]event.Event, error) {
	fe, ok := e.(fieldEvent)
	if !ok {
		return []event.Event{e}, nil
	}

	for _, m := range s.mappings {
		found := fe.Get(m.source)
		if found == nil {
			if m.required {
				return nil, evaluationFailure(fmt.Errorf("required field %s is missing", m.source))
			}
			continue
		}
		v := applyTransform(found.Clone(), m.transform)
		if !m.copy {
			fe.Remove(m.source)
		}
		if _, _, err := fe.Insert(m.target, v); err != nil {
			return nil, evaluationFailure(err)
		}
	}

	for _, a := range s.set {
		if _, _, err := fe.Insert(a.path, a.value.Clone()); err != nil {
			return nil, evaluationFailure(err)
		}
	}
	for _, path := range s.remove {
		fe.Remove(path)
	}
	return []event.Event{e}, nil
}

func evaluationFailure(err error) error {
	return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrEvaluationFailure, err),
		"MappingScript", "Evaluate", "apply mapping")
}

// applyTransform changes string values only; other kinds pass through.
func applyTransform(v value.Value, transform string) value.Value {
	if transform == "" || v.Kind() != value.KindBytes {
		return v
	}
	s, _ := v.AsString()
	switch transform {
	case TransformUppercase:
		return value.String(strings.ToUpper(s))
	case TransformLowercase:
		return value.String(strings.ToLower(s))
	case TransformTrim:
		return value.String(strings.TrimSpace(s))
	default:
		return v
	}
}
