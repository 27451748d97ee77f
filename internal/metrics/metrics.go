package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors shared by the gateway, wallet manager and composer.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	RPCAttempts       *prometheus.CounterVec
	RPCFailures       *prometheus.CounterVec
	ProviderRebuilds  prometheus.Counter
	RPCExhausted      *prometheus.CounterVec
	BatchSubmissions  *prometheus.CounterVec
	SessionTransition *prometheus.CounterVec
	SessionState      prometheus.Gauge
	DroppedRecords    *prometheus.CounterVec
	RefreshDuration   prometheus.Histogram
}

// New creates the collectors and registers them on reg (skipped when reg is nil)
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RPCAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "burrow_rpc_attempts_total",
				Help: "Read call attempts against the chain endpoint",
			},
			[]string{"entrypoint"},
		),
		RPCFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "burrow_rpc_failures_total",
				Help: "Failed read call attempts",
			},
			[]string{"entrypoint"},
		),
		ProviderRebuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "burrow_rpc_provider_rebuilds_total",
			Help: "Times the endpoint connection was discarded and rebuilt",
		}),
		RPCExhausted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "burrow_rpc_exhausted_total",
				Help: "Operations that failed after every retry attempt",
			},
			[]string{"entrypoint"},
		),
		BatchSubmissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "burrow_batch_submissions_total",
				Help: "Write batches by submission mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		SessionTransition: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "burrow_session_transitions_total",
				Help: "Wallet session state transitions",
			},
			[]string{"to"},
		),
		SessionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "burrow_session_state",
			Help: "Current wallet session state (0=disconnected, 1=connecting, 2=connected, 3=monitoring)",
		}),
		DroppedRecords: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "burrow_dropped_records_total",
				Help: "Entity records dropped from read results",
			},
			[]string{"reason"},
		),
		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "burrow_refresh_duration_seconds",
			Help:    "Duration of one data refresh cycle",
			Buckets: prometheus.DefBuckets,
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.RPCAttempts,
			m.RPCFailures,
			m.ProviderRebuilds,
			m.RPCExhausted,
			m.BatchSubmissions,
			m.SessionTransition,
			m.SessionState,
			m.DroppedRecords,
			m.RefreshDuration,
		)
	}
	return m
}

func (m *Metrics) Attempt(entrypoint string) {
	if m == nil {
		return
	}
	m.RPCAttempts.WithLabelValues(entrypoint).Inc()
}

func (m *Metrics) Failure(entrypoint string) {
	if m == nil {
		return
	}
	m.RPCFailures.WithLabelValues(entrypoint).Inc()
}

func (m *Metrics) Rebuild() {
	if m == nil {
		return
	}
	m.ProviderRebuilds.Inc()
}

func (m *Metrics) Exhausted(entrypoint string) {
	if m == nil {
		return
	}
	m.RPCExhausted.WithLabelValues(entrypoint).Inc()
}

func (m *Metrics) Batch(mode, outcome string) {
	if m == nil {
		return
	}
	m.BatchSubmissions.WithLabelValues(mode, outcome).Inc()
}

func (m *Metrics) Transition(to string, value int) {
	if m == nil {
		return
	}
	m.SessionTransition.WithLabelValues(to).Inc()
	m.SessionState.Set(float64(value))
}

func (m *Metrics) Dropped(reason string) {
	if m == nil {
		return
	}
	m.DroppedRecords.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveRefresh(seconds float64) {
	if m == nil {
		return
	}
	m.RefreshDuration.Observe(seconds)
}
