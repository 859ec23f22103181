package logtometric

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/eventflow/component"
	"github.com/c360/eventflow/engine"
	"github.com/c360/eventflow/errors"
	"github.com/c360/eventflow/event"
	"github.com/c360/eventflow/metric"
	"github.com/c360/eventflow/pkg/timestamp"
	"github.com/c360/eventflow/value"
)

var timestampPath = value.NewPath(value.Field("timestamp"))

// Deps holds the runtime dependencies of a Processor.
type Deps struct {
	ID              string
	Logger          *slog.Logger
	MetricsRegistry *metric.MetricsRegistry
}

// Processor derives metric events from log events. Metrics share the
// finalizers of the log they came from, so the source learns the outcome
// only once every derived metric resolves.
type Processor struct {
	id          string
	extractions []extraction
	keepLogs    bool
	aggregate   bool
	fn          *engine.FunctionTransform
	logger      *slog.Logger

	produced prometheus.Counter
	skipped  *prometheus.CounterVec
}

var _ engine.Transform = (*Processor)(nil)

// NewProcessor builds a log-to-metric processor.
func NewProcessor(cfg Config, deps Deps) (*Processor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "LogToMetric", "New", "config validation")
	}
	id := deps.ID
	if id == "" {
		id = "log_to_metric"
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", id)
	}

	p := &Processor{id: id, keepLogs: cfg.KeepLogs, aggregate: cfg.Aggregate, logger: logger}
	for _, m := range cfg.Metrics {
		x, _ := m.compile()
		p.extractions = append(p.extractions, x)
	}
	if err := p.registerMetrics(deps.MetricsRegistry); err != nil {
		return nil, errors.WrapTransient(err, "LogToMetric", "New", "metrics registration")
	}
	p.fn = engine.NewFunctionTransform(p.apply, logger)
	return p, nil
}

func (p *Processor) registerMetrics(registry *metric.MetricsRegistry) error {
	if registry == nil {
		return nil
	}
	labels := prometheus.Labels{"component": p.id}
	p.produced = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "eventflow", Subsystem: "log_to_metric", Name: "metrics_produced_total",
		Help: "Metric events derived from logs", ConstLabels: labels,
	})
	p.skipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eventflow", Subsystem: "log_to_metric", Name: "extractions_skipped_total",
		Help: "Extractions skipped, by reason", ConstLabels: labels,
	}, []string{"reason"})
	if err := registry.RegisterCounter(p.id, "log_to_metric_produced", p.produced); err != nil {
		return err
	}
	return registry.RegisterCounterVec(p.id, "log_to_metric_skipped", p.skipped)
}

// Transform implements engine.Transform. Output is rebatched by kind in
// event order.
func (p *Processor) Transform(ctx context.Context, batch event.EventArray, out *engine.Output) error {
	if !p.aggregate {
		return p.fn.Transform(ctx, batch, out)
	}
	return out.PushEvents(ctx, p.aggregateMetrics(p.fn.Apply(ctx, batch)))
}

// aggregateMetrics folds metrics of one series into the first of them,
// which keeps its position. A metric that cannot be merged (for example
// a counter overflowing) is passed on by itself.
func (p *Processor) aggregateMetrics(events []event.Event) []event.Event {
	set := event.NewMetricSet()
	out := make([]event.Event, 0, len(events))
	for _, e := range events {
		m, ok := e.(*event.Metric)
		if !ok {
			out = append(out, e)
			continue
		}
		if _, seen := set.Get(*m.Series()); !seen {
			_ = set.Insert(m)
			out = append(out, m)
			continue
		}
		if err := set.Insert(m); err != nil {
			p.logger.Debug("Metric not aggregated", "name", m.Name(), "error", err)
			p.skip("not_aggregated")
			out = append(out, m)
		}
	}
	return out
}

func (p *Processor) apply(_ context.Context, e event.Event, emit func(event.Event)) error {
	log, ok := e.(*event.LogEvent)
	if !ok {
		// Metrics and traces are not ours to convert.
		emit(e)
		return nil
	}

	if p.keepLogs {
		emit(log)
	}
	for _, x := range p.extractions {
		m, reason := p.extract(log, x)
		if m == nil {
			if reason != "" {
				p.skip(reason)
			}
			continue
		}
		if p.produced != nil {
			p.produced.Inc()
		}
		emit(m)
	}
	return nil
}

func (p *Processor) skip(reason string) {
	if p.skipped != nil {
		p.skipped.WithLabelValues(reason).Inc()
	}
}

// extract builds one metric, or returns nil and why. A missing field is
// not worth counting.
func (p *Processor) extract(log *event.LogEvent, x extraction) (*event.Metric, string) {
	found := log.Get(x.field)
	if found == nil || found.Kind() == value.KindNull {
		return nil, ""
	}

	var (
		kind = event.Incremental
		mv   event.MetricValue
	)
	switch x.typ {
	case TypeCounter:
		n := 1.0
		if x.incrementByValue {
			f, ok := number(*found)
			if !ok {
				p.logger.Debug("Counter field is not a number", "field", x.field.String())
				return nil, "not_a_number"
			}
			n = f
		}
		mv = event.Counter{Value: n}
	case TypeGauge:
		f, ok := number(*found)
		if !ok {
			p.logger.Debug("Gauge field is not a number", "field", x.field.String())
			return nil, "not_a_number"
		}
		kind = event.Absolute
		mv = event.Gauge{Value: f}
	case TypeSet:
		s, ok := render(*found)
		if !ok {
			return nil, "not_a_scalar"
		}
		mv = event.NewSet(s)
	case TypeDistribution:
		f, ok := number(*found)
		if !ok {
			p.logger.Debug("Distribution field is not a number", "field", x.field.String())
			return nil, "not_a_number"
		}
		mv = event.Distribution{Samples: []event.Sample{{Value: f, Rate: 1}}, Statistic: event.StatisticHistogram}
	}

	series := event.MetricSeries{Name: x.name}
	if len(x.tags) > 0 {
		series.Tags = event.MetricTags{}
		for _, t := range x.tags {
			v := log.Get(t.path)
			if v == nil {
				continue
			}
			if s, ok := render(*v); ok {
				series.Tags.Set(t.key, s)
			}
		}
	}
	if x.namespace != nil {
		ns := *x.namespace
		series.Namespace = &ns
	}

	md := log.Metadata().Derive()
	m := event.NewMetric(series, kind, mv, event.WithMetadata(md))
	if ts := log.Get(timestampPath); ts != nil {
		if t, ok := timestamp.FromValue(*ts); ok {
			m.SetTimestamp(t)
		}
	}
	return m, ""
}

// number reads a finite float from a numeric field or a numeric string.
func number(v value.Value) (float64, bool) {
	if f, ok := v.AsNumber(); ok {
		return f, true
	}
	s, ok := v.AsString()
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// render formats a scalar field as a tag or set member.
func render(v value.Value) (string, bool) {
	switch v.Kind() {
	case value.KindBytes:
		return v.AsString()
	case value.KindInteger:
		i, _ := v.AsInteger()
		return strconv.FormatInt(i, 10), true
	case value.KindFloat:
		f, _ := v.AsFloat()
		return strconv.FormatFloat(f, 'f', -1, 64), true
	case value.KindBoolean:
		b, _ := v.AsBool()
		return strconv.FormatBool(b), true
	case value.KindTimestamp:
		t, _ := v.AsTimestamp()
		return t.UTC().Format(time.RFC3339Nano), true
	default:
		return "", false
	}
}

// Register adds the "log_to_metric" transform type to registry.
func Register(registry *component.Registry) error {
	return registry.RegisterFactory(component.Registration{
		Name:        "log_to_metric",
		Kind:        component.KindTransform,
		Description: "Derives counter, gauge, set and distribution metrics from log fields",
		Factory: func(id string, opts component.Options, deps component.Dependencies) (any, error) {
			var cfg Config
			if err := opts.Decode(&cfg); err != nil {
				return nil, err
			}
			p, err := NewProcessor(cfg, Deps{
				ID:              id,
				Logger:          deps.GetLoggerWithComponent(id),
				MetricsRegistry: deps.MetricsRegistry,
			})
			if err != nil {
				return nil, fmt.Errorf("log_to_metric %s: %w", id, err)
			}
			return p, nil
		},
	})
}
