package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
)

const namespace = "orderfan"

type Metrics struct {
	OrdersProcessed prometheus.Counter
	OrdersUpdated   prometheus.Counter

	SinkDeliveries *prometheus.CounterVec
	SinkFailures   *prometheus.CounterVec

	MessagesReceived prometheus.Counter
	MessagesDeleted  prometheus.Counter
	MessagesFailed   *prometheus.CounterVec

	OutboxRelayed   prometheus.Counter
	OutboxFailures  prometheus.Counter
	OutboxAbandoned prometheus.Counter

	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		OrdersProcessed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_processed_total",
			Help:      "Orders persisted by the ingestion pipeline.",
		}),
		OrdersUpdated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_updated_total",
			Help:      "Orders changed through the update path.",
		}),
		SinkDeliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "deliveries_total",
			Help:      "Successful sends per broadcast sink.",
		}, []string{"sink"}),
		SinkFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "failures_total",
			Help:      "Failed sends per broadcast sink.",
		}, []string{"sink"}),
		MessagesReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "messages_received_total",
			Help:      "Messages returned by queue polls.",
		}),
		MessagesDeleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "messages_deleted_total",
			Help:      "Messages acknowledged by deletion.",
		}),
		MessagesFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "messages_failed_total",
			Help:      "Messages left for redelivery, by stage.",
		}, []string{"stage"}),
		OutboxRelayed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "relayed_total",
			Help:      "Outbox records published by the relay.",
		}),
		OutboxFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "failures_total",
			Help:      "Outbox records the relay gave up on for this round.",
		}),
		OutboxAbandoned: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "abandoned_total",
			Help:      "Outbox records that reached the attempt limit and are no longer relayed.",
		}),
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"handler", "status"}),
		LatencyMS: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 25000},
		}, []string{"handler"}),
	}
}

// Discard returns metrics bound to a private registry that nobody scrapes.
func Discard() *Metrics {
	return New(prometheus.NewRegistry())
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
