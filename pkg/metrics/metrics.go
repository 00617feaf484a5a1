// Package metrics defines the Prometheus collectors for the PICO search
// service and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	LookupsTotal         *prometheus.CounterVec
	PicoQueriesTotal     *prometheus.CounterVec
	PicoQueryLatency     prometheus.Histogram
	PicoQueryResults     prometheus.Histogram
	VocabularyEntries    prometheus.Gauge
	CircuitBreakerState  *prometheus.GaugeVec
	RateLimitedTotal     prometheus.Counter
}

// New creates the collectors and registers them with reg. Tests pass a
// fresh prometheus.NewRegistry(); the service passes
// prometheus.DefaultRegisterer so Handler serves them.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		LookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pico_term_lookups_total",
				Help: "Autocomplete lookups by tier (empty, unranked, ranked).",
			},
			[]string{"tier"},
		),
		PicoQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pico_queries_total",
				Help: "Structured queries by outcome (empty, hit, zero_result, error).",
			},
			[]string{"outcome"},
		),
		PicoQueryLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pico_query_latency_seconds",
				Help:    "Structured query latency in seconds, compile through last row.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
		),
		PicoQueryResults: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pico_query_results_count",
				Help:    "Number of articles returned per structured query.",
				Buckets: []float64{0, 1, 2, 5, 10, 25, 50},
			},
		),
		VocabularyEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pico_vocabulary_entries",
				Help: "Number of entries in the loaded MeSH vocabulary index.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
		RateLimitedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rate_limited_requests_total",
				Help: "Requests rejected by the rate limiter.",
			},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.LookupsTotal,
		m.PicoQueriesTotal,
		m.PicoQueryLatency,
		m.PicoQueryResults,
		m.VocabularyEntries,
		m.CircuitBreakerState,
		m.RateLimitedTotal,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler for the default
// registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
