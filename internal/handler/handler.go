// Package handler serves the PICO autocomplete and structured query
// endpoints.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/trialsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/trialsearch/internal/autocomplete"
	"github.com/Adithya-Monish-Kumar-K/trialsearch/internal/pico"
	apperrors "github.com/Adithya-Monish-Kumar-K/trialsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/trialsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/trialsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/trialsearch/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/trialsearch/pkg/tracing"
)

const maxQueryBody = 1 << 20

type Completer interface {
	Complete(query string) autocomplete.Result
}

type QueryExecutor interface {
	Execute(ctx context.Context, q *pico.Compiled) ([]pico.MatchRecord, error)
}

// EventTracker receives one analytics event per served request. Track must
// not block.
type EventTracker interface {
	Track(event analytics.Event)
}

type Handler struct {
	completer Completer
	executor  QueryExecutor
	collector EventTracker
	metrics   *metrics.Metrics
	tracing   bool
	logger    *slog.Logger
}

// New wires the endpoints. collector and m may be nil.
func New(completer Completer, exec QueryExecutor, collector EventTracker, m *metrics.Metrics, tracingEnabled bool) *Handler {
	return &Handler{
		completer: completer,
		executor:  exec,
		collector: collector,
		metrics:   m,
		tracing:   tracingEnabled,
		logger:    slog.Default().With("component", "pico-handler"),
	}
}

// Root is the liveness banner.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("trialstreamer :)"))
}

// PicoTermLookup serves GET /pico_term_lookup?q=<partial term>. A request
// without q gets an empty list.
func (h *Handler) PicoTermLookup(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	values, ok := r.URL.Query()["q"]
	if !ok || len(values) == 0 {
		h.writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	query := values[0]

	ctx, span := h.startSpan(ctx, "pico_term_lookup")
	result := h.completer.Complete(query)
	span.SetAttr("tier", string(result.Tier))
	span.SetAttr("matches", len(result.Entries))
	h.finishSpan(ctx, span)

	if h.metrics != nil {
		h.metrics.LookupsTotal.WithLabelValues(string(result.Tier)).Inc()
	}
	h.track(ctx, analytics.Event{
		Type:      analytics.EventLookup,
		Query:     query,
		Tier:      string(result.Tier),
		Results:   len(result.Entries),
		LatencyMs: time.Since(start).Milliseconds(),
	})

	h.writeJSON(w, http.StatusOK, result.Entries)
}

// PicoMeshQuery serves POST /pico_mesh_query with a JSON array of
// {"classes": facet, "mesh_ui": id} selections and answers with the
// matching articles as [{"pmid", "title"}].
func (h *Handler) PicoMeshQuery(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := h.startSpan(r.Context(), "pico_mesh_query")
	defer h.finishSpan(ctx, span)
	log := logger.FromContext(ctx)

	var selections []pico.Selection
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxQueryBody))
	if err := dec.Decode(&selections); err != nil {
		log.Info("rejecting malformed pico query", "error", err)
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("malformed query body: %v", err))
		return
	}

	_, compileSpan := tracing.StartChildSpan(ctx, "compile")
	compiled, err := pico.Compile(selections)
	if err != nil {
		compileSpan.SetAttr("error", err.Error())
		compileSpan.End()
		h.countQuery("error")
		h.writeAppError(w, err)
		return
	}
	compileSpan.SetAttr("clauses", len(compiled.Clauses))
	compileSpan.End()

	execCtx, execSpan := tracing.StartChildSpan(ctx, "execute")
	records, err := h.executor.Execute(execCtx, compiled)
	execSpan.End()
	latency := time.Since(start)
	if errors.Is(err, context.Canceled) {
		log.Info("client went away during pico query", "mesh_uis", compiled.MeshUIs())
		h.countQuery("canceled")
		return
	}

	event := analytics.Event{
		Type:       analytics.EventQuery,
		Selections: selectionKeys(compiled),
		LatencyMs:  latency.Milliseconds(),
	}
	if err != nil {
		log.Error("pico query failed", "mesh_uis", compiled.MeshUIs(), "error", err)
		h.countQuery("error")
		event.Error = err.Error()
		h.track(ctx, event)
		h.writeAppError(w, err)
		return
	}

	event.Results = len(records)
	h.track(ctx, event)
	h.observeQuery(compiled, len(records), latency)
	span.SetAttr("results", len(records))

	log.Info("pico query completed",
		"clauses", len(compiled.Clauses),
		"returned", len(records),
		"latency_ms", latency.Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, records)
}

func (h *Handler) observeQuery(q *pico.Compiled, n int, latency time.Duration) {
	if h.metrics == nil {
		return
	}
	switch {
	case q.Empty():
		h.countQuery("empty")
		return
	case n == 0:
		h.countQuery("zero_result")
	default:
		h.countQuery("hit")
	}
	h.metrics.PicoQueryLatency.Observe(latency.Seconds())
	h.metrics.PicoQueryResults.Observe(float64(n))
}

func (h *Handler) countQuery(outcome string) {
	if h.metrics != nil {
		h.metrics.PicoQueriesTotal.WithLabelValues(outcome).Inc()
	}
}

func (h *Handler) track(ctx context.Context, event analytics.Event) {
	if h.collector == nil {
		return
	}
	event.Timestamp = time.Now().UTC()
	event.RequestID = middleware.GetRequestID(ctx)
	h.collector.Track(event)
}

// startSpan returns a nil span when tracing is off; Span methods accept nil.
func (h *Handler) startSpan(ctx context.Context, name string) (context.Context, *tracing.Span) {
	if !h.tracing {
		return ctx, nil
	}
	return tracing.StartSpan(ctx, name, middleware.GetRequestID(ctx))
}

func (h *Handler) finishSpan(ctx context.Context, span *tracing.Span) {
	if span == nil {
		return
	}
	span.End()
	span.Log(logger.FromContext(ctx))
}

func selectionKeys(q *pico.Compiled) []string {
	if q.Empty() {
		return nil
	}
	keys := make([]string, 0, len(q.Clauses))
	for _, c := range q.Clauses {
		keys = append(keys, c.Facet.String()+":"+c.Value)
	}
	return keys
}

// writeAppError shows the client the message of a client-side error and a
// fixed description of a server-side one.
func (h *Handler) writeAppError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	var appErr *apperrors.AppError
	switch {
	case status < http.StatusInternalServerError && errors.As(err, &appErr):
		h.writeError(w, status, appErr.Message)
	case status == http.StatusGatewayTimeout:
		h.writeError(w, status, "query timed out")
	case status == http.StatusServiceUnavailable:
		h.writeError(w, status, "article store unavailable")
	default:
		h.writeError(w, status, "query failed")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
