package component

import (
	"fmt"
	"sort"
	"sync"

	"github.com/c360/eventflow/engine"
	"github.com/c360/eventflow/errors"
)

// Kind is the pipeline stage a component type plugs into.
type Kind string

// Component kinds.
const (
	KindSource    Kind = "source"
	KindTransform Kind = "transform"
	KindSink      Kind = "sink"
)

// Factory builds one component from its options. It must not perform
// I/O; sockets and files are opened when the stage runs.
//
// Sources return an engine.Source, transforms an engine.Transform or
// engine.TaskTransform, sinks an engine.Sink.
type Factory func(id string, opts Options, deps Dependencies) (any, error)

// Registration describes a component type.
type Registration struct {
	Name        string  // type name used in pipeline files, e.g. "udp"
	Kind        Kind    // stage the type plugs into
	Description string  // human-readable description
	Factory     Factory // builds instances
}

// Registry holds the component types available to a pipeline file.
type Registry struct {
	mu        sync.RWMutex
	factories map[Kind]map[string]*Registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[Kind]map[string]*Registration)}
}

// RegisterFactory adds a component type. Names are unique per kind.
func (r *Registry) RegisterFactory(reg Registration) error {
	if err := ValidateID(reg.Name); err != nil {
		return errors.Wrap(err, "Registry", "RegisterFactory", "factory name validation")
	}
	if reg.Factory == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterFactory", "factory function validation")
	}
	switch reg.Kind {
	case KindSource, KindTransform, KindSink:
	default:
		return errors.WrapInvalid(
			fmt.Errorf("%w: kind %q", errors.ErrInvalidConfig, reg.Kind),
			"Registry", "RegisterFactory", "component kind validation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	byName := r.factories[reg.Kind]
	if byName == nil {
		byName = make(map[string]*Registration)
		r.factories[reg.Kind] = byName
	}
	if _, exists := byName[reg.Name]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s %q already registered", errors.ErrDuplicateID, reg.Kind, reg.Name),
			"Registry", "RegisterFactory", "duplicate factory check")
	}
	byName[reg.Name] = &reg
	return nil
}

// Lookup returns the registration for a kind and type name.
func (r *Registry) Lookup(kind Kind, name string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.factories[kind][name]
	if !ok {
		return Registration{}, false
	}
	return *reg, true
}

// List returns the registered types of a kind, sorted by name.
func (r *Registry) List(kind Kind) []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	regs := make([]Registration, 0, len(r.factories[kind]))
	for _, reg := range r.factories[kind] {
		regs = append(regs, *reg)
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i].Name < regs[j].Name })
	return regs
}

func (r *Registry) create(kind Kind, typeName, id string, opts Options, deps Dependencies) (any, error) {
	if err := ValidateID(id); err != nil {
		return nil, errors.Wrap(err, "Registry", "Create", "instance id validation")
	}
	reg, ok := r.Lookup(kind, typeName)
	if !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %s type %q", errors.ErrUnknownType, kind, typeName),
			"Registry", "Create", "factory lookup")
	}
	instance, err := reg.Factory(id, opts, deps)
	if err != nil {
		return nil, errors.Wrap(err, "Registry", "Create", fmt.Sprintf("build %s %q", kind, id))
	}
	return instance, nil
}

// CreateSource builds a source of the named type.
func (r *Registry) CreateSource(typeName, id string, opts Options, deps Dependencies) (engine.Source, error) {
	instance, err := r.create(KindSource, typeName, id, opts, deps)
	if err != nil {
		return nil, err
	}
	src, ok := instance.(engine.Source)
	if !ok {
		return nil, mismatch("CreateSource", typeName, instance)
	}
	return src, nil
}

// Transform is the result of CreateTransform: exactly one field is set.
type Transform struct {
	Transform engine.Transform
	Task      engine.TaskTransform
}

// CreateTransform builds a transform of the named type.
func (r *Registry) CreateTransform(typeName, id string, opts Options, deps Dependencies) (Transform, error) {
	instance, err := r.create(KindTransform, typeName, id, opts, deps)
	if err != nil {
		return Transform{}, err
	}
	switch t := instance.(type) {
	case engine.TaskTransform:
		return Transform{Task: t}, nil
	case engine.Transform:
		return Transform{Transform: t}, nil
	default:
		return Transform{}, mismatch("CreateTransform", typeName, instance)
	}
}

// CreateSink builds a sink of the named type.
func (r *Registry) CreateSink(typeName, id string, opts Options, deps Dependencies) (engine.Sink, error) {
	instance, err := r.create(KindSink, typeName, id, opts, deps)
	if err != nil {
		return nil, err
	}
	sink, ok := instance.(engine.Sink)
	if !ok {
		return nil, mismatch("CreateSink", typeName, instance)
	}
	return sink, nil
}

func mismatch(method, typeName string, instance any) error {
	return errors.WrapFatal(
		fmt.Errorf("factory %q returned %T", typeName, instance),
		"Registry", method, "stage type check")
}
