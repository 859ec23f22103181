package logtometric

import (
	"fmt"
	"sort"

	"github.com/c360/eventflow/errors"
	"github.com/c360/eventflow/value"
)

// Metric types.
const (
	TypeCounter      = "counter"
	TypeGauge        = "gauge"
	TypeSet          = "set"
	TypeDistribution = "distribution"
)

// Config lists the metrics extracted from every log.
type Config struct {
	Metrics []MetricConfig `yaml:"metrics"`
	// KeepLogs forwards the source log alongside its metrics. Without it
	// a log that yields no metric is finalized Dropped.
	KeepLogs bool `yaml:"keep_logs"`
	// Aggregate merges metrics of the same series within each input batch
	// into one metric carrying every source log's finalizers.
	Aggregate bool `yaml:"aggregate"`
}

// MetricConfig describes one extraction.
type MetricConfig struct {
	Type  string `yaml:"type"`
	Field string `yaml:"field"`
	// Name defaults to Field.
	Name      string `yaml:"name"`
	Namespace string `yaml:"namespace"`
	// IncrementByValue makes a counter add the field's number instead of 1.
	IncrementByValue bool `yaml:"increment_by_value"`
	// Tags maps tag keys to the log fields that supply them.
	Tags map[string]string `yaml:"tags"`
}

// Validate checks every extraction.
func (c *Config) Validate() error {
	if len(c.Metrics) == 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: at least one metric is required", errors.ErrMissingConfig),
			"Config", "Validate", "metrics check")
	}
	for i, m := range c.Metrics {
		if _, err := m.compile(); err != nil {
			return errors.Wrap(err, "Config", "Validate", fmt.Sprintf("metric %d", i))
		}
	}
	return nil
}

type tagSource struct {
	key  string
	path value.Path
}

type extraction struct {
	typ              string
	field            value.Path
	name             string
	namespace        *string
	incrementByValue bool
	tags             []tagSource
}

func (m MetricConfig) compile() (extraction, error) {
	switch m.Type {
	case TypeCounter, TypeGauge, TypeSet, TypeDistribution:
	default:
		return extraction{}, errors.WrapInvalid(
			fmt.Errorf("%w: metric type %q", errors.ErrInvalidConfig, m.Type),
			"MetricConfig", "compile", "type check")
	}
	field, err := concretePath(m.Field)
	if err != nil {
		return extraction{}, err
	}
	if m.IncrementByValue && m.Type != TypeCounter {
		return extraction{}, errors.WrapInvalid(
			fmt.Errorf("%w: increment_by_value applies to counters only", errors.ErrInvalidConfig),
			"MetricConfig", "compile", "increment check")
	}

	x := extraction{typ: m.Type, field: field, name: m.Name, incrementByValue: m.IncrementByValue}
	if x.name == "" {
		x.name = m.Field
	}
	if m.Namespace != "" {
		ns := m.Namespace
		x.namespace = &ns
	}

	keys := make([]string, 0, len(m.Tags))
	for k := range m.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if k == "" {
			return extraction{}, errors.WrapInvalid(
				fmt.Errorf("%w: empty tag key", errors.ErrInvalidConfig), "MetricConfig", "compile", "tag check")
		}
		path, err := concretePath(m.Tags[k])
		if err != nil {
			return extraction{}, err
		}
		x.tags = append(x.tags, tagSource{key: k, path: path})
	}
	return x, nil
}

func concretePath(s string) (value.Path, error) {
	path, err := value.ParsePath(s)
	if err != nil {
		return value.Path{}, err
	}
	if path.IsRoot() || path.HasWildcard() {
		return value.Path{}, errors.WrapInvalid(
			fmt.Errorf("%w: %q must name a single field", errors.ErrInvalidConfig, s),
			"MetricConfig", "compile", "path check")
	}
	return path, nil
}
