package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ikg"

// Metrics contains the service-level metrics shared by listeners,
// reconciliation services, the event dispatcher and the publisher.
type Metrics struct {
	MessagesTotal      *prometheus.CounterVec
	MessageDuration    *prometheus.HistogramVec
	QueueDepth         *prometheus.GaugeVec
	ListenerState      *prometheus.GaugeVec
	ReconcileTotal     *prometheus.CounterVec
	PublishedTotal     *prometheus.CounterVec
	SignalsTotal       *prometheus.CounterVec
	IndexOperations    *prometheus.CounterVec
	DeadLetteredTotal  *prometheus.CounterVec
	BrokerConnected    prometheus.Gauge
	ConnectionAttempts prometheus.Counter
}

// NewMetrics creates the service metrics
func NewMetrics() *Metrics {
	return &Metrics{
		MessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_total",
				Help:      "Inbound messages by topic and outcome (ack, nak, dead_letter)",
			},
			[]string{"topic", "status"},
		),
		MessageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "message_processing_seconds",
				Help:      "Time spent processing one inbound message",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"topic"},
		),
		QueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_depth",
				Help:      "Messages waiting in the in-process queue of a topic",
			},
			[]string{"topic"},
		),
		ListenerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "listener_state",
				Help:      "Listener state (0=disconnected, 1=connecting, 2=listening, 3=draining, 4=closed)",
			},
			[]string{"topic"},
		),
		ReconcileTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconcile_total",
				Help:      "Reconciliation outcomes by entity kind",
			},
			[]string{"kind", "outcome"},
		),
		PublishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "published_total",
				Help:      "Outbound messages by routing key and status",
			},
			[]string{"routing_key", "status"},
		),
		SignalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "signals_total",
				Help:      "Signal deliveries to subscribers by status",
			},
			[]string{"signal", "status"},
		),
		IndexOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "index_operations_total",
				Help:      "Search index writes by status",
			},
			[]string{"status"},
		),
		DeadLetteredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dead_lettered_total",
				Help:      "Messages moved to the dead-letter subject after too many deliveries",
			},
			[]string{"topic"},
		),
		BrokerConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "broker_connected",
				Help:      "1 when the message broker connection is up",
			},
		),
		ConnectionAttempts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "broker_connection_attempts_total",
				Help:      "Broker connection attempts",
			},
		),
	}
}

func (m *Metrics) register(reg *prometheus.Registry) {
	reg.MustRegister(
		m.MessagesTotal,
		m.MessageDuration,
		m.QueueDepth,
		m.ListenerState,
		m.ReconcileTotal,
		m.PublishedTotal,
		m.SignalsTotal,
		m.IndexOperations,
		m.DeadLetteredTotal,
		m.BrokerConnected,
		m.ConnectionAttempts,
	)
}
