package executor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/trialsearch/internal/pico"
	apperrors "github.com/Adithya-Monish-Kumar-K/trialsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/trialsearch/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/trialsearch/pkg/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	meshDiabetesT2   = "D003920"
	meshHypertension = "D006973"
	meshMetformin    = "D008687"
	meshInsulin      = "D007328"
	meshAspirin      = "D001241"
	meshHbA1c        = "D006442"
	meshStroke       = "D020521"
)

func fixtureArticles() []sqlite.Article {
	return []sqlite.Article{
		{
			PMID:          "1001",
			Title:         "Metformin monotherapy in type 2 diabetes",
			Population:    []sqlite.MeshTerm{{MeshUI: meshDiabetesT2, Term: "Diabetes Mellitus"}},
			Interventions: []sqlite.MeshTerm{{MeshUI: meshMetformin, Term: "Metformin"}},
			Outcomes:      []sqlite.MeshTerm{{MeshUI: meshHbA1c, Term: "Glycated Hemoglobin A"}},
		},
		{
			PMID:          "1002",
			Title:         "Insulin glargine in hypertensive diabetics",
			Population:    []sqlite.MeshTerm{{MeshUI: meshHypertension}, {MeshUI: meshDiabetesT2}},
			Interventions: []sqlite.MeshTerm{{MeshUI: meshInsulin}},
			Outcomes:      []sqlite.MeshTerm{{MeshUI: meshHbA1c}},
		},
		{
			PMID:          "1003",
			Title:         "Low-dose aspirin for hypertension",
			Population:    []sqlite.MeshTerm{{MeshUI: meshHypertension}},
			Interventions: []sqlite.MeshTerm{{MeshUI: meshAspirin}, {MeshUI: meshMetformin}},
			Outcomes:      []sqlite.MeshTerm{{MeshUI: meshStroke}},
		},
	}
}

func newStore(t *testing.T, articles ...sqlite.Article) *sqlite.Client {
	t.Helper()
	store, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.InsertArticles(context.Background(), articles...))
	return store
}

func compile(t *testing.T, sels ...pico.Selection) *pico.Compiled {
	t.Helper()
	q, err := pico.Compile(sels)
	require.NoError(t, err)
	return q
}

func ids(records []pico.MatchRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ArticleID)
	}
	return out
}

// countingQuerier records how often the store is reached.
type countingQuerier struct {
	next  Querier
	calls atomic.Int32
}

func (c *countingQuerier) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	c.calls.Add(1)
	if c.next == nil {
		return nil, errors.New("unexpected store call")
	}
	return c.next.QueryContext(ctx, query, args...)
}

// unlimitedQuerier strips the rendered LIMIT so only the executor's own
// cap bounds the result.
type unlimitedQuerier struct {
	next Querier
}

func (u unlimitedQuerier) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if i := strings.LastIndex(query, " LIMIT "); i >= 0 {
		query = query[:i]
		args = args[:len(args)-1]
	}
	return u.next.QueryContext(ctx, query, args...)
}

type failingQuerier struct {
	err error
}

func (f failingQuerier) QueryContext(context.Context, string, ...any) (*sql.Rows, error) {
	return nil, f.err
}

type blockingQuerier struct{}

func (blockingQuerier) QueryContext(ctx context.Context, _ string, _ ...any) (*sql.Rows, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestExecuteSingleFacet(t *testing.T) {
	store := newStore(t, fixtureArticles()...)
	exec := New(store.DB, pico.SQLite{}, Config{MaxResults: 10, MaxConcurrent: 2}, nil)

	got, err := exec.Execute(context.Background(), compile(t, pico.Selection{Class: "population", MeshUI: meshDiabetesT2}))
	require.NoError(t, err)
	assert.ElementsMatch(t, []pico.MatchRecord{
		{ArticleID: "1001", Title: "Metformin monotherapy in type 2 diabetes"},
		{ArticleID: "1002", Title: "Insulin glargine in hypertensive diabetics"},
	}, got)
}

func TestExecuteContainmentIsExact(t *testing.T) {
	store := newStore(t, fixtureArticles()...)
	exec := New(store.DB, pico.SQLite{}, Config{MaxResults: 10}, nil)

	got, err := exec.Execute(context.Background(), compile(t, pico.Selection{Class: "population", MeshUI: "D00392"}))
	require.NoError(t, err)
	assert.Empty(t, got)

	// metformin is an intervention, never a population
	got, err = exec.Execute(context.Background(), compile(t, pico.Selection{Class: "population", MeshUI: meshMetformin}))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestExecuteIsIntersectionOfFacets(t *testing.T) {
	store := newStore(t, fixtureArticles()...)
	exec := New(store.DB, pico.SQLite{}, Config{MaxResults: 10}, nil)
	ctx := context.Background()

	sels := []pico.Selection{
		{Class: "population", MeshUI: meshDiabetesT2},
		{Class: "interventions", MeshUI: meshMetformin},
		{Class: "outcomes", MeshUI: meshHbA1c},
	}

	expected := map[string]int{}
	for _, s := range sels {
		got, err := exec.Execute(ctx, compile(t, s))
		require.NoError(t, err)
		for _, id := range ids(got) {
			expected[id]++
		}
	}
	var intersection []string
	for id, n := range expected {
		if n == len(sels) {
			intersection = append(intersection, id)
		}
	}

	got, err := exec.Execute(ctx, compile(t, sels...))
	require.NoError(t, err)
	assert.ElementsMatch(t, intersection, ids(got))
	assert.Equal(t, []string{"1001"}, ids(got))
}

func TestExecuteEmptyQueryNeverTouchesStore(t *testing.T) {
	store := &countingQuerier{}
	exec := New(store, pico.Postgres{}, Config{MaxResults: 10}, nil)

	got, err := exec.Execute(context.Background(), compile(t))
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)
	assert.Equal(t, int32(0), store.calls.Load())
}

func TestExecuteCapsRows(t *testing.T) {
	articles := make([]sqlite.Article, 0, 25)
	for i := 0; i < 25; i++ {
		articles = append(articles, sqlite.Article{
			PMID:       fmt.Sprintf("%d", 2000+i),
			Title:      fmt.Sprintf("Trial %d", i),
			Population: []sqlite.MeshTerm{{MeshUI: meshHypertension}},
		})
	}
	store := newStore(t, articles...)
	q := compile(t, pico.Selection{Class: "population", MeshUI: meshHypertension})

	t.Run("with rendered limit", func(t *testing.T) {
		exec := New(store.DB, pico.SQLite{}, Config{MaxResults: 7}, nil)
		got, err := exec.Execute(context.Background(), q)
		require.NoError(t, err)
		assert.Len(t, got, 7)
	})

	t.Run("caller-side cap without store limit", func(t *testing.T) {
		exec := New(unlimitedQuerier{next: store.DB}, pico.SQLite{}, Config{MaxResults: 4}, nil)
		got, err := exec.Execute(context.Background(), q)
		require.NoError(t, err)
		assert.Len(t, got, 4)
	})
}

func TestExecuteStoreErrorPropagates(t *testing.T) {
	exec := New(failingQuerier{err: errors.New("connection refused")}, pico.Postgres{}, Config{MaxResults: 10}, nil)

	got, err := exec.Execute(context.Background(), compile(t, pico.Selection{Class: "outcomes", MeshUI: meshStroke}))
	assert.Nil(t, got)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrStore))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestExecuteTimeoutCancelsQuery(t *testing.T) {
	exec := New(blockingQuerier{}, pico.Postgres{}, Config{MaxResults: 10, Timeout: 20 * time.Millisecond}, nil)

	start := time.Now()
	_, err := exec.Execute(context.Background(), compile(t, pico.Selection{Class: "outcomes", MeshUI: meshStroke}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrTimeout))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestExecuteRequestDeadline(t *testing.T) {
	exec := New(blockingQuerier{}, pico.Postgres{}, Config{MaxResults: 10}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := exec.Execute(ctx, compile(t, pico.Selection{Class: "outcomes", MeshUI: meshStroke}))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.True(t, errors.Is(err, apperrors.ErrTimeout))
}

func TestExecuteCancelledWhileWaitingForSlot(t *testing.T) {
	exec := New(blockingQuerier{}, pico.Postgres{}, Config{MaxResults: 10, MaxConcurrent: 1}, nil)
	require.NoError(t, exec.sem.Acquire(context.Background(), 1))
	defer exec.sem.Release(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := exec.Execute(ctx, compile(t, pico.Selection{Class: "outcomes", MeshUI: meshStroke}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, apperrors.ErrTimeout))
}

func TestExecuteDeadlineWhileWaitingForSlot(t *testing.T) {
	exec := New(blockingQuerier{}, pico.Postgres{}, Config{MaxResults: 10, MaxConcurrent: 1}, nil)
	require.NoError(t, exec.sem.Acquire(context.Background(), 1))
	defer exec.sem.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := exec.Execute(ctx, compile(t, pico.Selection{Class: "outcomes", MeshUI: meshStroke}))
	assert.True(t, errors.Is(err, apperrors.ErrTimeout))
}

func TestExecuteCircuitBreakerFailsFast(t *testing.T) {
	store := &countingQuerier{next: failingQuerier{err: errors.New("too many connections")}}
	breaker := resilience.NewCircuitBreaker("pico-store", resilience.CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})
	exec := New(store, pico.Postgres{}, Config{MaxResults: 10}, breaker)
	q := compile(t, pico.Selection{Class: "population", MeshUI: meshDiabetesT2})

	_, err := exec.Execute(context.Background(), q)
	assert.True(t, errors.Is(err, apperrors.ErrStore))

	_, err = exec.Execute(context.Background(), q)
	assert.True(t, errors.Is(err, apperrors.ErrUnavailable))
	assert.Equal(t, int32(1), store.calls.Load())
}
