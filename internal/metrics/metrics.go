package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "paykit"

// Recorder holds the daemon's collectors. A nil *Recorder records nothing.
type Recorder struct {
	registry *prometheus.Registry

	evaluations     *prometheus.CounterVec
	payments        *prometheus.CounterVec
	committedSats   *prometheus.CounterVec
	discovered      *prometheus.CounterVec
	peerFailures    *prometheus.CounterVec
	orphansDeleted  *prometheus.CounterVec
	lifecycleEvents *prometheus.CounterVec
}

// NewRecorder creates a Recorder with its own registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "autopay",
				Name:      "evaluations_total",
				Help:      "Auto-pay decisions by outcome.",
			},
			[]string{"outcome"},
		),
		payments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "autopay",
				Name:      "payments_total",
				Help:      "Autonomous payment attempts by method and status.",
			},
			[]string{"method", "status"},
		),
		committedSats: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "autopay",
				Name:      "committed_sats_total",
				Help:      "Sats committed against spending limits.",
			},
			[]string{"method"},
		),
		discovered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "directory",
				Name:      "discovered_records_total",
				Help:      "Records imported from peers' directories.",
			},
			[]string{"kind"},
		),
		peerFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "directory",
				Name:      "peer_failures_total",
				Help:      "Per-peer directory failures skipped during discovery or cleanup.",
			},
			[]string{"kind", "operation"},
		),
		orphansDeleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "directory",
				Name:      "orphans_deleted_total",
				Help:      "Orphaned directory records deleted.",
			},
			[]string{"kind"},
		),
		lifecycleEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "lifecycle",
				Name:      "transitions_total",
				Help:      "Proposal and payment request state transitions.",
			},
			[]string{"kind", "transition"},
		),
	}

	r.registry.MustRegister(
		r.evaluations,
		r.payments,
		r.committedSats,
		r.discovered,
		r.peerFailures,
		r.orphansDeleted,
		r.lifecycleEvents,
	)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) RecordEvaluation(outcome string) {
	if r == nil {
		return
	}
	r.evaluations.WithLabelValues(outcome).Inc()
}

func (r *Recorder) RecordPayment(method, status string) {
	if r == nil {
		return
	}
	r.payments.WithLabelValues(method, status).Inc()
}

func (r *Recorder) RecordCommit(method string, sats uint64) {
	if r == nil {
		return
	}
	r.committedSats.WithLabelValues(method).Add(float64(sats))
}

func (r *Recorder) RecordDiscovered(kind string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.discovered.WithLabelValues(kind).Add(float64(n))
}

func (r *Recorder) RecordPeerFailure(kind, operation string) {
	if r == nil {
		return
	}
	r.peerFailures.WithLabelValues(kind, operation).Inc()
}

func (r *Recorder) RecordOrphansDeleted(kind string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.orphansDeleted.WithLabelValues(kind).Add(float64(n))
}

func (r *Recorder) RecordTransition(kind, transition string) {
	if r == nil {
		return
	}
	r.lifecycleEvents.WithLabelValues(kind, transition).Inc()
}
