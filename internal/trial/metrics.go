package trial

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ChuprinaDaria/yoga-bot/internal/domain"
	"github.com/ChuprinaDaria/yoga-bot/internal/lifecycle"
)

// Metrics are the Prometheus collectors of the service. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	ops       *prometheus.CounterVec
	messenger *prometheus.CounterVec
	sweeps    *prometheus.CounterVec
	sweepDur  *prometheus.HistogramVec
	lastSweep *prometheus.GaugeVec
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ops: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yogabot",
			Name:      "lifecycle_operations_total",
			Help:      "Lifecycle operations by kind and outcome.",
		}, []string{"op", "outcome"}),
		messenger: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yogabot",
			Name:      "messenger_calls_total",
			Help:      "Outbound messaging calls by method and result.",
		}, []string{"method", "result"}),
		sweeps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yogabot",
			Name:      "sweep_users_total",
			Help:      "Users processed by maintenance sweeps.",
		}, []string{"kind", "outcome"}),
		sweepDur: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "yogabot",
			Name:      "sweep_duration_seconds",
			Help:      "Wall time of maintenance sweeps.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		lastSweep: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "yogabot",
			Name:      "sweep_last_finished_timestamp_seconds",
			Help:      "Unix time the last sweep of each kind finished.",
		}, []string{"kind"}),
	}
}

func (m *Metrics) observeOp(op string, o lifecycle.Outcome) {
	if m == nil {
		return
	}
	m.ops.WithLabelValues(op, o.String()).Inc()
}

func (m *Metrics) observeMessenger(method string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.messenger.WithLabelValues(method, result).Inc()
}

func (m *Metrics) observeSweep(run domain.MaintenanceRun) {
	if m == nil {
		return
	}
	kind := string(run.Kind)
	m.sweeps.WithLabelValues(kind, lifecycle.OutcomeOK.String()).Add(float64(run.Applied))
	m.sweeps.WithLabelValues(kind, lifecycle.OutcomeSkipped.String()).Add(float64(run.Skipped))
	m.sweeps.WithLabelValues(kind, lifecycle.OutcomeFailed.String()).Add(float64(run.Failed))
	m.sweepDur.WithLabelValues(kind).Observe(run.FinishedAt.Sub(run.StartedAt).Seconds())
	m.lastSweep.WithLabelValues(kind).Set(float64(run.FinishedAt.Unix()))
}
