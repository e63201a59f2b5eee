package telemetry

import (
	"strconv"

	"livequiz/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the service's prometheus collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	rounds          *prometheus.CounterVec
	locks           *prometheus.CounterVec
	answers         *prometheus.CounterVec
	rejections      *prometheus.CounterVec
	persistFailures *prometheus.CounterVec
	forwarded       *prometheus.CounterVec
	connections     prometheus.Gauge
	dropped         prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		rounds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "livequiz",
			Name:      "rounds_started_total",
			Help:      "Questions started by moderators.",
		}, []string{"room"}),
		locks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "livequiz",
			Name:      "rounds_locked_total",
			Help:      "Rounds locked, split by manual or timer.",
		}, []string{"auto"}),
		answers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "livequiz",
			Name:      "answers_accepted_total",
			Help:      "Scored answer submissions.",
		}, []string{"correct"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "livequiz",
			Name:      "answers_rejected_total",
			Help:      "Submissions that were not scored.",
		}, []string{"reason"}),
		persistFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "livequiz",
			Name:      "persistence_failures_total",
			Help:      "Data-layer writes or reads that failed.",
		}, []string{"op"}),
		forwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "livequiz",
			Name:      "commands_forwarded_total",
			Help:      "Room commands handed to the owning instance.",
		}, []string{"kind"}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "livequiz",
			Name:      "ws_connections",
			Help:      "Open websocket connections.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "livequiz",
			Name:      "ws_dropped_messages_total",
			Help:      "Outbound messages dropped for slow consumers.",
		}),
	}
	reg.MustRegister(m.rounds, m.locks, m.answers, m.rejections, m.persistFailures, m.forwarded, m.connections, m.dropped)
	return m
}

func (m *Metrics) RoundStarted(roomID string) {
	if m == nil {
		return
	}
	m.rounds.WithLabelValues(roomID).Inc()
}

func (m *Metrics) RoundLocked(_ string, auto bool) {
	if m == nil {
		return
	}
	m.locks.WithLabelValues(strconv.FormatBool(auto)).Inc()
}

func (m *Metrics) AnswerAccepted(_ string, correct bool) {
	if m == nil {
		return
	}
	m.answers.WithLabelValues(strconv.FormatBool(correct)).Inc()
}

func (m *Metrics) AnswerRejected(reason domain.Rejection) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(string(reason)).Inc()
}

func (m *Metrics) PersistenceFailed(op string) {
	if m == nil {
		return
	}
	m.persistFailures.WithLabelValues(op).Inc()
}

func (m *Metrics) CommandForwarded(kind domain.RoomCommandKind) {
	if m == nil {
		return
	}
	m.forwarded.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}

func (m *Metrics) MessageDropped() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}
