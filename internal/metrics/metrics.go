// Package metrics exposes the node's counters to Prometheus.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/sensor-node/internal/dht"
	"github.com/sweeney/sensor-node/internal/fabric"
)

const namespace = "sensor_node"

// Metrics holds every collector on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	dhtFailures *prometheus.CounterVec // by reason
	readings    *prometheus.CounterVec // by result
	alerts      *prometheus.CounterVec // by source
	publishes   *prometheus.CounterVec // by topic and result
	connects    *prometheus.CounterVec // by result
	keepAlives  *prometheus.CounterVec // by result
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		dhtFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dht",
			Name:      "attempt_failures_total",
			Help:      "Failed sensor read attempts",
		}, []string{"reason"}), // reason: no_response, invalid_response, checksum, other

		readings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dht",
			Name:      "reads_total",
			Help:      "Sensor reads after retries",
		}, []string{"result"}),

		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "input",
			Name:      "alerts_total",
			Help:      "Debounced motion and contact detections",
		}, []string{"source"}),

		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mqtt",
			Name:      "publishes_total",
			Help:      "Publish attempts by topic and result",
		}, []string{"topic", "result"}),

		connects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mqtt",
			Name:      "connect_attempts_total",
			Help:      "Broker connection attempts",
		}, []string{"result"}),

		keepAlives: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mqtt",
			Name:      "keepalives_total",
			Help:      "Keep-alive pings",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		m.dhtFailures, m.readings, m.alerts,
		m.publishes, m.connects, m.keepAlives,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RegisterSessionState exports fn as a gauge that is 1 while connected.
func (m *Metrics) RegisterSessionState(connected func() bool) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "mqtt",
		Name:      "connected",
		Help:      "1 while a broker session is established",
	}, func() float64 {
		if connected() {
			return 1
		}
		return 0
	}))
}

// ReadAttemptFailed counts one failed attempt. It satisfies dht.ErrorSink.
func (m *Metrics) ReadAttemptFailed(_ int, err error) {
	m.dhtFailures.WithLabelValues(failureReason(err)).Inc()
}

// ReadCompleted counts one read after retries.
func (m *Metrics) ReadCompleted(err error) {
	m.readings.WithLabelValues(result(err)).Inc()
}

// Alert counts one detection.
func (m *Metrics) Alert(a fabric.Alert) {
	m.alerts.WithLabelValues(a.String()).Inc()
}

// ConnectAttempt implements mqtt.Stats.
func (m *Metrics) ConnectAttempt(err error) {
	m.connects.WithLabelValues(result(err)).Inc()
}

// PublishAttempt implements mqtt.Stats.
func (m *Metrics) PublishAttempt(topic fabric.Topic, err error) {
	m.publishes.WithLabelValues(topic.Name(), result(err)).Inc()
}

// KeepAlive implements mqtt.Stats.
func (m *Metrics) KeepAlive(err error) {
	m.keepAlives.WithLabelValues(result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, dht.ErrNoResponse):
		return "no_response"
	case errors.Is(err, dht.ErrInvalidResponse):
		return "invalid_response"
	case errors.Is(err, dht.ErrChecksumMismatch):
		return "checksum"
	}
	return "other"
}
