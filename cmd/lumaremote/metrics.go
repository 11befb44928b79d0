package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the remote daemon.
//
// All methods are safe on a nil *Metrics so components can run without
// instrumentation (tests, the client subcommand).
type Metrics struct {
	registry *prometheus.Registry

	rawEventsTotal        prometheus.Counter
	unknownButtonsTotal   prometheus.Counter
	actionsTotal          *prometheus.CounterVec
	broadcastsTotal       prometheus.Counter
	deliverySkippedTotal  prometheus.Counter
	listenerRestartsTotal prometheus.Counter
	wsClients             prometheus.Gauge
}

// NewMetrics creates and registers the daemon metrics on a private registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		rawEventsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lumaremote_raw_events_total",
			Help: "Total number of raw IR events received",
		}),
		unknownButtonsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lumaremote_unknown_buttons_total",
			Help: "Total number of presses of unmapped buttons",
		}),
		actionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lumaremote_actions_total",
			Help: "Total number of semantic actions decided, by press kind",
		}, []string{"press"}),
		broadcastsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lumaremote_broadcasts_total",
			Help: "Total number of button_press events broadcast",
		}),
		deliverySkippedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lumaremote_delivery_skipped_total",
			Help: "Total number of per-client deliveries skipped because the client was not writable",
		}),
		listenerRestartsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lumaremote_listener_restarts_total",
			Help: "Total number of IR listener process restarts",
		}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lumaremote_ws_clients",
			Help: "Number of connected websocket clients",
		}),
	}

	registry.MustRegister(
		m.rawEventsTotal,
		m.unknownButtonsTotal,
		m.actionsTotal,
		m.broadcastsTotal,
		m.deliverySkippedTotal,
		m.listenerRestartsTotal,
		m.wsClients,
	)
	return m
}

func (m *Metrics) IncRawEvents() {
	if m == nil {
		return
	}
	m.rawEventsTotal.Inc()
}

func (m *Metrics) IncUnknownButtons() {
	if m == nil {
		return
	}
	m.unknownButtonsTotal.Inc()
}

func (m *Metrics) IncActions(kind pressKind) {
	if m == nil {
		return
	}
	m.actionsTotal.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) IncBroadcasts() {
	if m == nil {
		return
	}
	m.broadcastsTotal.Inc()
}

func (m *Metrics) IncDeliverySkipped() {
	if m == nil {
		return
	}
	m.deliverySkippedTotal.Inc()
}

func (m *Metrics) IncListenerRestarts() {
	if m == nil {
		return
	}
	m.listenerRestartsTotal.Inc()
}

func (m *Metrics) SetClients(n int) {
	if m == nil {
		return
	}
	m.wsClients.Set(float64(n))
}

// Handler returns an http.Handler that serves the registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
