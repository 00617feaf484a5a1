// Package analytics collects usage events from the lookup and structured
// query endpoints and aggregates them into service-level stats.
package analytics

import "time"

type EventType string

const (
	EventLookup EventType = "pico_term_lookup"
	EventQuery  EventType = "pico_mesh_query"
)

// Event is one served request. Lookup events carry Query and Tier; query
// events carry Selections as "facet:mesh_ui" pairs.
type Event struct {
	Type       EventType `json:"type"`
	Query      string    `json:"query,omitempty"`
	Tier       string    `json:"tier,omitempty"`
	Selections []string  `json:"selections,omitempty"`
	Results    int       `json:"results"`
	LatencyMs  int64     `json:"latency_ms"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id,omitempty"`
}
