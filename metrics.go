package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics carries the server's instrumentation on a private registry so the
// /metrics endpoint only exposes what we register.
type Metrics struct {
	registry *prometheus.Registry

	roomsActive      prometheus.Gauge
	clientsConnected prometheus.Gauge
	gamesStarted     prometheus.Counter
	buzzes           prometheus.Counter
	eventsProcessed  prometheus.Counter
	eventsEmitted    *prometheus.CounterVec
	answers          *prometheus.CounterVec
}

func newMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		roomsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "tuneclash",
			Name:      "rooms_active",
			Help:      "Number of rooms with a running engine.",
		}),
		clientsConnected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "tuneclash",
			Name:      "clients_connected",
			Help:      "Number of open websocket connections.",
		}),
		gamesStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tuneclash",
			Name:      "games_started_total",
			Help:      "Games started since boot.",
		}),
		buzzes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tuneclash",
			Name:      "buzzes_total",
			Help:      "Buzz attempts accepted into arbitration.",
		}),
		eventsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "tuneclash",
			Name:      "engine_events_total",
			Help:      "Events processed by room engines.",
		}),
		eventsEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tuneclash",
			Name:      "events_emitted_total",
			Help:      "Events broadcast to clients, by type.",
		}, []string{"type"}),
		answers: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tuneclash",
			Name:      "answers_total",
			Help:      "Answers judged, by correctness.",
		}, []string{"correct"}),
	}
}

func (m *Metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
