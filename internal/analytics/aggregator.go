package analytics

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/trialsearch/internal/vocabulary"
	"github.com/Adithya-Monish-Kumar-K/trialsearch/pkg/kafka"
)

const (
	maxLatencySamples = 10000
	topListSize       = 10

	// maxTrackedKeys bounds each per-key counter map.
	maxTrackedKeys = topListSize * 1000
)

// AggregatedStats is the JSON view served by the stats endpoint and
// persisted in snapshots.
type AggregatedStats struct {
	TotalLookups      int64            `json:"total_lookups"`
	LookupsByTier     map[string]int64 `json:"lookups_by_tier"`
	TotalQueries      int64            `json:"total_queries"`
	FailedQueries     int64            `json:"failed_queries"`
	ZeroResultCount   int64            `json:"zero_result_count"`
	AvgLatencyMs      float64          `json:"avg_latency_ms"`
	P50LatencyMs      int64            `json:"p50_latency_ms"`
	P95LatencyMs      int64            `json:"p95_latency_ms"`
	P99LatencyMs      int64            `json:"p99_latency_ms"`
	TopLookups        []KeyCount       `json:"top_lookups"`
	TopSelections     []KeyCount       `json:"top_selections"`
	ZeroResultQueries []KeyCount       `json:"zero_result_queries"`
	QueriesPerMinute  float64          `json:"queries_per_minute"`
}

// KeyCount is one row of a top-N list.
type KeyCount struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// Aggregator folds events into running counters. Query latencies are kept
// in a fixed-size ring and the per-key counters hold at most maxTrackedKeys
// keys each, so memory stays bounded on long-running instances.
type Aggregator struct {
	mu              sync.RWMutex
	totalLookups    int64
	lookupsByTier   map[string]int64
	totalQueries    int64
	failedQueries   int64
	zeroResults     int64
	latencies       []int64
	nextLatency     int
	lookupCounts    map[string]int64
	selectionCounts map[string]int64
	zeroResultKeys  map[string]int64
	restoredQueries int64
	startTime       time.Time
	now             func() time.Time
	logger          *slog.Logger
}

// NewAggregator returns an empty aggregator whose rate window starts now.
func NewAggregator() *Aggregator {
	return &Aggregator{
		lookupsByTier:   make(map[string]int64),
		latencies:       make([]int64, 0, 1024),
		lookupCounts:    make(map[string]int64),
		selectionCounts: make(map[string]int64),
		zeroResultKeys:  make(map[string]int64),
		startTime:       time.Now(),
		now:             time.Now,
		logger:          slog.Default().With("component", "analytics-aggregator"),
	}
}

// HandleEvent adapts the aggregator to a Kafka consumer. Undecodable
// messages are logged and committed so a bad producer cannot wedge the
// partition.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[Event](value)
		if err != nil {
			agg.logger.Error("failed to decode analytics event", "error", err)
			return nil
		}
		agg.Record(event)
		return nil
	}
}

// Track records event in-process, for deployments without Kafka.
func (a *Aggregator) Track(event Event) {
	a.Record(event)
}

// Record folds one event into the counters. Lookup queries are counted by
// their normalized form so keystroke variants of the same prefix share a key.
func (a *Aggregator) Record(event Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch event.Type {
	case EventLookup:
		a.totalLookups++
		a.lookupsByTier[event.Tier]++
		if q := vocabulary.Normalize(event.Query); q != "" {
			bump(a.lookupCounts, q, 1)
		}
	case EventQuery:
		a.totalQueries++
		if event.Error != "" {
			a.failedQueries++
			return
		}
		a.recordLatency(event.LatencyMs)
		for _, sel := range event.Selections {
			bump(a.selectionCounts, sel, 1)
		}
		if event.Results == 0 && len(event.Selections) > 0 {
			a.zeroResults++
			bump(a.zeroResultKeys, selectionKey(event.Selections), 1)
		}
	default:
		a.logger.Warn("unknown analytics event type", "type", event.Type)
	}
}

func (a *Aggregator) recordLatency(ms int64) {
	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, ms)
		return
	}
	a.latencies[a.nextLatency] = ms
	a.nextLatency = (a.nextLatency + 1) % maxLatencySamples
}

// Restore seeds the counters from a persisted snapshot so totals and top
// lists survive a restart. Latency samples are not part of a snapshot and
// start empty; the per-minute rate only counts queries recorded since start.
func (a *Aggregator) Restore(stats AggregatedStats) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalLookups += stats.TotalLookups
	for tier, n := range stats.LookupsByTier {
		a.lookupsByTier[tier] += n
	}
	a.totalQueries += stats.TotalQueries
	a.restoredQueries += stats.TotalQueries
	a.failedQueries += stats.FailedQueries
	a.zeroResults += stats.ZeroResultCount
	for _, kc := range stats.TopLookups {
		bump(a.lookupCounts, kc.Key, kc.Count)
	}
	for _, kc := range stats.TopSelections {
		bump(a.selectionCounts, kc.Key, kc.Count)
	}
	for _, kc := range stats.ZeroResultQueries {
		bump(a.zeroResultKeys, kc.Key, kc.Count)
	}
}

// Stats returns a consistent copy of the current counters.
func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalLookups:    a.totalLookups,
		LookupsByTier:   make(map[string]int64, len(a.lookupsByTier)),
		TotalQueries:    a.totalQueries,
		FailedQueries:   a.failedQueries,
		ZeroResultCount: a.zeroResults,
	}
	for tier, n := range a.lookupsByTier {
		stats.LookupsByTier[tier] = n
	}
	if len(a.latencies) > 0 {
		sorted := slices.Clone(a.latencies)
		slices.Sort(sorted)

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopLookups = topN(a.lookupCounts, topListSize)
	stats.TopSelections = topN(a.selectionCounts, topListSize)
	stats.ZeroResultQueries = topN(a.zeroResultKeys, topListSize)
	if elapsed := a.now().Sub(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(a.totalQueries-a.restoredQueries) / elapsed
	}
	return stats
}

// bump adds n to counts[key]. When key is new and the map is full, the
// lowest-count tenth of the keys is dropped first, so the cost of pruning is
// spread over many inserts.
func bump(counts map[string]int64, key string, n int64) {
	if _, ok := counts[key]; !ok && len(counts) >= maxTrackedKeys {
		prune(counts, maxTrackedKeys/10)
	}
	counts[key] += n
}

// prune deletes the n lowest-count keys, larger keys first among equals.
func prune(counts map[string]int64, n int) {
	all := make([]KeyCount, 0, len(counts))
	for k, c := range counts {
		all = append(all, KeyCount{Key: k, Count: c})
	}
	slices.SortFunc(all, func(x, y KeyCount) int {
		if c := cmp.Compare(x.Count, y.Count); c != 0 {
			return c
		}
		return cmp.Compare(y.Key, x.Key)
	})
	for _, kc := range all[:min(n, len(all))] {
		delete(counts, kc.Key)
	}
}

// selectionKey is order-insensitive: the same conjunction asked in a
// different order counts once.
func selectionKey(selections []string) string {
	sorted := slices.Clone(selections)
	slices.Sort(sorted)
	return strings.Join(sorted, " AND ")
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []KeyCount {
	result := make([]KeyCount, 0, len(counts))
	for key, count := range counts {
		result = append(result, KeyCount{Key: key, Count: count})
	}
	slices.SortFunc(result, func(x, y KeyCount) int {
		if c := cmp.Compare(y.Count, x.Count); c != 0 {
			return c
		}
		return cmp.Compare(x.Key, y.Key)
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
