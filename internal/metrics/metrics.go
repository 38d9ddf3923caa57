// Package metrics exports dispatch metrics to Prometheus through the engine
// Observer hook.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/requex/internal/engine"
)

const namespace = "requex"

// Metrics holds the dispatch collectors. All series are labeled by query
// name.
type Metrics struct {
	// Dispatches counts dispatches by status (ok, error).
	Dispatches *prometheus.CounterVec

	// Events counts events consumed, so batches count once per event.
	Events *prometheus.CounterVec

	// Changes counts dispatches that produced a new state reference.
	Changes *prometheus.CounterVec

	// Duration observes dispatch latency in seconds.
	Duration *prometheus.HistogramVec
}

// New registers the collectors on reg. Passing prometheus.DefaultRegisterer
// exposes them on the default /metrics handler; tests pass a fresh
// prometheus.NewRegistry().
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Dispatches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "dispatches_total",
			Help:      "Dispatches by query and status",
		}, []string{"query", "status"}),
		Events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "events_total",
			Help:      "Events reduced by query",
		}, []string{"query"}),
		Changes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "state_changes_total",
			Help:      "Dispatches that produced a new state reference",
		}, []string{"query"}),
		Duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "dispatch_duration_seconds",
			Help:      "Dispatch latency in seconds",
			Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}, []string{"query"}),
	}
}

// Observer returns an engine.Observer that records dispatches of query.
func (m *Metrics) Observer(query string) *DispatchObserver {
	return &DispatchObserver{metrics: m, query: query}
}

// DispatchObserver records one query's dispatches.
type DispatchObserver struct {
	metrics *Metrics
	query   string
}

var _ engine.Observer = (*DispatchObserver)(nil)

// OnDispatch implements engine.Observer.
func (o *DispatchObserver) OnDispatch(_ context.Context, info engine.DispatchInfo) {
	status := "ok"
	if info.Err != nil {
		status = "error"
	}
	o.metrics.Dispatches.WithLabelValues(o.query, status).Inc()
	o.metrics.Duration.WithLabelValues(o.query).Observe(info.Duration.Seconds())
	if info.Err != nil {
		return
	}
	o.metrics.Events.WithLabelValues(o.query).Add(float64(info.Events))
	if info.Changed {
		o.metrics.Changes.WithLabelValues(o.query).Inc()
	}
}
