// Package metrics exposes Prometheus collectors for reconciliation passes.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const Namespace = "yk_dns_sync"

// Recorder counts passes, actions and artifact writes. A nil Recorder, or
// one that was never registered, records nothing.
type Recorder struct {
	enabled bool

	passes       *prometheus.CounterVec
	actions      *prometheus.CounterVec
	passDuration prometheus.Histogram
	writes       *prometheus.CounterVec
}

func NewRecorder() *Recorder {
	return new(Recorder)
}

// SetupAndRegisterCollectors creates the collectors and registers them on registry.
func (r *Recorder) SetupAndRegisterCollectors(registry prometheus.Registerer) {
	r.passes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "passes_total",
		Help:      "Reconciliation passes by mode and result.",
	}, []string{"mode", "result"})
	r.actions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "actions_total",
		Help:      "Planned actions by zone, kind and outcome.",
	}, []string{"zone", "kind", "status"})
	r.passDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "pass_duration_seconds",
		Help:      "Duration of reconciliation passes.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	})
	r.writes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "artifact_writes_total",
		Help:      "Resolver artifacts rewritten because their content changed.",
	}, []string{"file"})

	registry.MustRegister(r.passes, r.actions, r.passDuration, r.writes)
	r.enabled = true
}

func (r *Recorder) ObservePass(mode, result string, d time.Duration) {
	if r == nil || !r.enabled {
		return
	}
	r.passes.WithLabelValues(mode, result).Inc()
	r.passDuration.Observe(d.Seconds())
}

func (r *Recorder) CountAction(zone, kind, status string) {
	if r == nil || !r.enabled {
		return
	}
	r.actions.WithLabelValues(zone, kind, status).Inc()
}

func (r *Recorder) CountWrite(file string) {
	if r == nil || !r.enabled {
		return
	}
	r.writes.WithLabelValues(file).Inc()
}

// Handler serves the collectors of gatherer in the Prometheus text format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
