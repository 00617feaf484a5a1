// Package router wires the service routes and applies the middleware chain
// (RequestID → Metrics → CORS → Timeout).
package router

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/trialsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/trialsearch/internal/handler"
	"github.com/Adithya-Monish-Kumar-K/trialsearch/internal/status"
	"github.com/Adithya-Monish-Kumar-K/trialsearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/trialsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/trialsearch/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// Options carries the optional pieces; nil fields switch the feature off.
type Options struct {
	Limiter        middleware.Limiter
	LimitWindow    time.Duration
	Analytics      *analytics.Handler
	Status         *status.Reporter
	Metrics        *metrics.Metrics
	CORS           middleware.CORSConfig
	RequestTimeout time.Duration
}

// New builds the HTTP handler.
//
// Route table:
//
//	GET    /                   → liveness banner
//	GET    /pico_term_lookup   → MeSH term autocomplete
//	POST   /pico_mesh_query    → structured PICO query (rate limited)
//	GET    /health/live        → liveness probe
//	GET    /health/ready       → readiness probe
//	GET    /status             → data source freshness (when enabled)
//	GET    /api/v1/analytics   → aggregated usage stats (when enabled)
func New(h *handler.Handler, checker *health.Checker, opts Options) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", h.Root)
	mux.HandleFunc("GET /pico_term_lookup", h.PicoTermLookup)

	var query http.Handler = http.HandlerFunc(h.PicoMeshQuery)
	if opts.Limiter != nil {
		var rejected prometheus.Counter
		if opts.Metrics != nil {
			rejected = opts.Metrics.RateLimitedTotal
		}
		query = middleware.RateLimit(opts.Limiter, opts.LimitWindow, rejected)(query)
	}
	mux.Handle("POST /pico_mesh_query", query)

	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	if opts.Status != nil {
		mux.HandleFunc("GET /status", opts.Status.Status)
	}

	if opts.Analytics != nil {
		mux.HandleFunc("GET /api/v1/analytics", opts.Analytics.Stats)
	}

	var chain http.Handler = mux
	chain = middleware.Timeout(opts.RequestTimeout)(chain)
	chain = middleware.CORS(opts.CORS)(chain)
	if opts.Metrics != nil {
		chain = middleware.Metrics(opts.Metrics)(chain)
	}
	chain = middleware.RequestID(chain)

	return chain
}
