// Package metrics defines the Prometheus collectors of the bridge.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for MessagesHandled.
const (
	OutcomeStored        = "stored"
	OutcomeDecodeError   = "decode_error"
	OutcomePersistError  = "persist_error"
	OutcomeQueueOverflow = "queue_overflow"
)

// Metrics groups every collector so components receive one value.
type Metrics struct {
	MessagesReceived prometheus.Counter
	MessagesHandled  *prometheus.CounterVec
	QueueDepth       prometheus.Gauge
	PersistDuration  prometheus.Histogram
	CommandsSent     *prometheus.CounterVec
	BrokerConnected  prometheus.Gauge
	StoreBreaker     prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_messages_received_total",
			Help: "Telemetry messages received from the broker.",
		}),
		MessagesHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "telemetry_messages_handled_total",
			Help: "Telemetry messages by handling outcome.",
		}, []string{"outcome"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "telemetry_ingest_queue_depth",
			Help: "Messages waiting in the ingest queue.",
		}),
		PersistDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "telemetry_persist_duration_seconds",
			Help:    "Time spent appending one reading to the store.",
			Buckets: prometheus.DefBuckets,
		}),
		CommandsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_commands_total",
			Help: "Relay commands by requested state and result.",
		}, []string{"state", "result"}),
		BrokerConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "broker_connected",
			Help: "1 while the MQTT session is up.",
		}),
		StoreBreaker: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "store_breaker_state",
			Help: "Store circuit breaker state: 0=closed, 1=half-open, 2=open.",
		}),
		gatherer: reg,
	}
	reg.MustRegister(
		m.MessagesReceived,
		m.MessagesHandled,
		m.QueueDepth,
		m.PersistDuration,
		m.CommandsSent,
		m.BrokerConnected,
		m.StoreBreaker,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
