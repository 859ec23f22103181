package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/eventflow/errors"
	"github.com/c360/eventflow/event"
	"github.com/c360/eventflow/health"
	"github.com/c360/eventflow/metric"
)

// engineMetrics holds pipeline-level metrics.
type engineMetrics struct {
	runningComponents *prometheus.GaugeVec // by stage
	stageErrors       *prometheus.CounterVec
	shutdownDropped   prometheus.Counter
	drainDuration     prometheus.Histogram
}

func newEngineMetrics(registry *metric.MetricsRegistry) (*engineMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	m := &engineMetrics{
		runningComponents: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "eventflow",
			Subsystem: "pipeline",
			Name:      "running_components",
			Help:      "Components currently running, by stage",
		}, []string{"stage"}),
		stageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventflow",
			Subsystem: "pipeline",
			Name:      "stage_errors_total",
			Help:      "Components that exited with an error",
		}, []string{"component", "stage"}),
		shutdownDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eventflow",
			Subsystem: "pipeline",
			Name:      "shutdown_dropped_events_total",
			Help:      "Events still queued when the drain timeout expired",
		}),
		drainDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "eventflow",
			Subsystem: "pipeline",
			Name:      "drain_duration_seconds",
			Help:      "Time from shutdown request to all stages stopping",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 30},
		}),
	}

	if err := registry.RegisterGaugeVec("pipeline", "running_components", m.runningComponents); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec("pipeline", "stage_errors", m.stageErrors); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter("pipeline", "shutdown_dropped", m.shutdownDropped); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogram("pipeline", "drain_duration", m.drainDuration); err != nil {
		return nil, err
	}
	return m, nil
}

// recorder fans observations out to the core and pipeline metrics. Every
// method is a no-op when metrics are disabled.
type recorder struct {
	core     *metric.Metrics
	pipeline *engineMetrics
	health   *health.Monitor
}

func (r *recorder) received(component string, batch event.EventArray) {
	if r == nil || r.core == nil {
		return
	}
	r.core.RecordReceived(component, batch.Kind().String(), batch.Len())
}

func (r *recorder) sent(component string, kind event.Kind, n int) {
	if r == nil || r.core == nil {
		return
	}
	r.core.RecordSent(component, kind.String(), n)
}

func (r *recorder) finalized(component string, status event.EventStatus, n int) {
	if r == nil || r.core == nil {
		return
	}
	r.core.RecordFinalized(component, status.String(), n)
}

func (r *recorder) time(component, operation string) func() {
	if r == nil || r.core == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		r.core.RecordProcessingDuration(component, operation, time.Since(start))
	}
}

func (r *recorder) error(component string, err error) {
	if r == nil || r.core == nil {
		return
	}
	r.core.RecordError(component, errors.Classify(err).String())
}

func (r *recorder) status(component string, stage stageType, running bool) {
	if r == nil {
		return
	}
	if running {
		r.health.UpdateHealthy(component, stage.String()+" running")
	} else if prev, ok := r.health.Get(component); !ok || !prev.IsUnhealthy() {
		r.health.UpdateDegraded(component, stage.String()+" stopped")
	}
	v := 0
	if running {
		v = 1
	}
	if r.core != nil {
		r.core.RecordComponentStatus(component, v)
	}
	if r.pipeline != nil {
		if running {
			r.pipeline.runningComponents.WithLabelValues(stage.String()).Inc()
		} else {
			r.pipeline.runningComponents.WithLabelValues(stage.String()).Dec()
		}
	}
}

func (r *recorder) stageError(component string, stage stageType, err error) {
	if r == nil {
		return
	}
	r.health.UpdateUnhealthy(component, health.Sanitize(err.Error()))
	if r.pipeline == nil {
		return
	}
	r.pipeline.stageErrors.WithLabelValues(component, stage.String()).Inc()
}

func (r *recorder) shutdownDropped(n int) {
	if r == nil || r.pipeline == nil {
		return
	}
	r.pipeline.shutdownDropped.Add(float64(n))
}

func (r *recorder) drained(d time.Duration) {
	if r == nil || r.pipeline == nil {
		return
	}
	r.pipeline.drainDuration.Observe(d.Seconds())
}
