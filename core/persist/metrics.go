package persist

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for the outcomes counter.
const (
	OutcomeSuccess   = "success"
	OutcomeSkipped   = "skipped"
	OutcomeRequeued  = "requeued"
	OutcomeEscalated = "escalated"
)

// Metrics reports reconciler activity. A nil *Metrics is valid and records nothing.
type Metrics struct {
	outcomes   *prometheus.CounterVec
	faults     *prometheus.CounterVec
	queueDepth *prometheus.GaugeVec
}

// NewMetrics registers the reconciler metrics on reg. It returns nil if reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}

	return &Metrics{
		outcomes: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "portfolio_persist",
			Name:      "attempt_outcomes_total",
			Help:      "Number of reconciliation attempts by action and outcome",
		}, []string{"action", "outcome"}),
		faults: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "portfolio_persist",
			Name:      "store_faults_total",
			Help:      "Number of classified store faults by action and fault kind",
		}, []string{"action", "kind"}),
		queueDepth: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "portfolio_persist",
			Name:      "queue_depth",
			Help:      "Number of records waiting in a pending queue",
		}, []string{"queue"}),
	}
}

func (m *Metrics) outcome(action Action, outcome string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(string(action), outcome).Inc()
}

func (m *Metrics) fault(action Action, kind FaultKind) {
	if m == nil {
		return
	}
	m.faults.WithLabelValues(string(action), string(kind)).Inc()
}

func (m *Metrics) depth(q *Queue) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(q.Name()).Set(float64(q.Len()))
}
