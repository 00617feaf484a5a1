// Package status reports how fresh each upstream data source is, read from
// the update_log table the loaders append to.
package status

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// UpdateTypes lists the tracked data sources in display order.
var UpdateTypes = []string{
	"ictrp",
	"pubmed_baseline",
	"pubmed_update",
	"picospan_partial",
	"picospan_full",
	"picomesh_partial",
	"picomesh_full",
}

const lastUpdatesQuery = `SELECT "update_type", MAX("source_date") FROM "update_log" GROUP BY "update_type"`

type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Update is the latest load of one data source.
type Update struct {
	Type       string    `json:"update_type"`
	SourceDate time.Time `json:"source_date"`
	Age        string    `json:"age"`
	AgeSeconds int64     `json:"age_seconds"`
}

type Reporter struct {
	store  Querier
	now    func() time.Time
	logger *slog.Logger
}

func NewReporter(store Querier) *Reporter {
	return &Reporter{
		store:  store,
		now:    time.Now,
		logger: slog.Default().With("component", "status"),
	}
}

// LastUpdates returns the newest source date per tracked type, in
// UpdateTypes order. Types never loaded are left out.
func (r *Reporter) LastUpdates(ctx context.Context) ([]Update, error) {
	rows, err := r.store.QueryContext(ctx, lastUpdatesQuery)
	if err != nil {
		return nil, fmt.Errorf("querying update log: %w", err)
	}
	defer rows.Close()

	latest := make(map[string]time.Time)
	for rows.Next() {
		var updateType string
		var raw any
		if err := rows.Scan(&updateType, &raw); err != nil {
			return nil, fmt.Errorf("scanning update log: %w", err)
		}
		ts, err := parseTime(raw)
		if err != nil {
			return nil, fmt.Errorf("update %s: %w", updateType, err)
		}
		latest[updateType] = ts
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading update log: %w", err)
	}

	now := r.now()
	out := make([]Update, 0, len(latest))
	for _, t := range UpdateTypes {
		ts, ok := latest[t]
		if !ok {
			continue
		}
		age := now.Sub(ts)
		out = append(out, Update{
			Type:       t,
			SourceDate: ts.UTC(),
			Age:        humanize(age),
			AgeSeconds: int64(age.Seconds()),
		})
	}
	return out, nil
}

// Status serves GET /status.
func (r *Reporter) Status(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	updates, err := r.LastUpdates(req.Context())
	if err != nil {
		r.logger.Error("status lookup failed", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "status unavailable"})
		return
	}
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(updates); err != nil {
		r.logger.Error("failed to write status response", "error", err)
	}
}

// parseTime accepts a driver time or the RFC 3339 text SQLite stores.
func parseTime(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case string:
		return time.Parse(time.RFC3339Nano, v)
	case []byte:
		return time.Parse(time.RFC3339Nano, string(v))
	default:
		return time.Time{}, fmt.Errorf("unexpected source_date type %T", raw)
	}
}

func humanize(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "a few seconds"
	case d < time.Hour:
		return plural(int(d/time.Minute), "minute")
	case d < 24*time.Hour:
		return plural(int(d/time.Hour), "hour")
	default:
		return plural(int(d/(24*time.Hour)), "day")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
