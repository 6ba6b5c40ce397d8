package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"another-i/orchestrator"
)

// Metrics exports turn, title and AI route counters in Prometheus format
type Metrics struct {
	registry *prometheus.Registry

	turns       *prometheus.CounterVec
	turnLatency *prometheus.HistogramVec
	titles      *prometheus.CounterVec
	aiRequests  *prometheus.CounterVec
	rateLimited prometheus.Counter
}

// NewMetrics creates the collectors on a private registry
func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.turns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "another_i",
			Subsystem: "chat",
			Name:      "turns_total",
			Help:      "Finished chat turns by outcome",
		},
		[]string{"outcome"},
	)

	m.turnLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "another_i",
			Subsystem: "chat",
			Name:      "turn_duration_seconds",
			Help:      "Time from dispatch to document refresh",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"outcome"},
	)

	m.titles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "another_i",
			Subsystem: "chat",
			Name:      "titles_total",
			Help:      "Generated conversation titles by status",
		},
		[]string{"status"},
	)

	m.aiRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "another_i",
			Subsystem: "api",
			Name:      "ai_requests_total",
			Help:      "AI proxy route calls by route and status",
		},
		[]string{"route", "status"},
	)

	m.rateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "another_i",
			Subsystem: "api",
			Name:      "rate_limited_total",
			Help:      "AI proxy requests rejected by the rate limiter",
		},
	)

	m.registry.MustRegister(m.turns, m.turnLatency, m.titles, m.aiRequests, m.rateLimited)
	return m
}

// Hooks returns orchestrator hooks recording turn and title outcomes
func (m *Metrics) Hooks() orchestrator.Hooks {
	return orchestrator.Hooks{
		OnTurn: func(result orchestrator.TurnResult, elapsed time.Duration) {
			outcome := turnOutcome(result)
			m.turns.WithLabelValues(outcome).Inc()
			m.turnLatency.WithLabelValues(outcome).Observe(elapsed.Seconds())
		},
		OnTitle: func(_ string, err error) {
			status := "ok"
			if err != nil {
				status = "error"
			}
			m.titles.WithLabelValues(status).Inc()
		},
	}
}

func turnOutcome(result orchestrator.TurnResult) string {
	switch {
	case result.Superseded:
		return "superseded"
	case result.Failed:
		return "failed"
	case result.IsFallback:
		return "demo"
	case result.AssistantMessage == nil:
		return "dropped"
	}
	return "ok"
}

// ObserveAI records one AI proxy call
func (m *Metrics) ObserveAI(route, status string) {
	m.aiRequests.WithLabelValues(route, status).Inc()
}

// Handler serves the registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
