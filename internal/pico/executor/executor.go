package executor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/trialsearch/internal/pico"
	apperrors "github.com/Adithya-Monish-Kumar-K/trialsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/trialsearch/pkg/resilience"
	"golang.org/x/sync/semaphore"
)

// Querier is the store surface the executor needs. *sql.DB satisfies it.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Config tunes an Executor. Zero values fall back to a cap of 10 rows and a
// single concurrent query.
type Config struct {
	// MaxResults caps the rows accepted per query.
	MaxResults int
	// Timeout bounds a single execution including cursor consumption.
	// Zero disables the executor's own deadline.
	Timeout time.Duration
	// MaxConcurrent bounds in-flight store queries across requests.
	MaxConcurrent int
}

// Executor runs compiled PICO queries against the article store. It is safe
// for concurrent use.
type Executor struct {
	store   Querier
	dialect pico.Dialect
	cfg     Config
	sem     *semaphore.Weighted
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

// New returns an Executor rendering for dialect. breaker may be nil, in which
// case store failures are never short-circuited.
func New(store Querier, dialect pico.Dialect, cfg Config, breaker *resilience.CircuitBreaker) *Executor {
	if cfg.MaxResults < 1 {
		cfg.MaxResults = 10
	}
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	return &Executor{
		store:   store,
		dialect: dialect,
		cfg:     cfg,
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		breaker: breaker,
		logger:  slog.Default().With("component", "pico-executor", "dialect", dialect.Name()),
	}
}

// MaxResults reports the per-query row cap.
func (e *Executor) MaxResults() int {
	return e.cfg.MaxResults
}

// Execute runs q and returns at most MaxResults records in store order. The
// empty query returns immediately without touching the store. Any store
// failure, including one after rows were read, fails the whole call.
func (e *Executor) Execute(ctx context.Context, q *pico.Compiled) ([]pico.MatchRecord, error) {
	if q.Empty() {
		return []pico.MatchRecord{}, nil
	}

	query, args, err := pico.Render(e.dialect, q, e.cfg.MaxResults)
	if err != nil {
		return nil, fmt.Errorf("rendering pico query: %w", err)
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, e.classify(fmt.Errorf("waiting for a store slot: %w", err))
	}
	defer e.sem.Release(1)

	start := time.Now()
	var out []pico.MatchRecord
	err = resilience.WithTimeout(ctx, e.cfg.Timeout, "pico-query", func(ctx context.Context) error {
		run := func(ctx context.Context) error {
			records, err := e.fetch(ctx, query, args)
			if err != nil {
				return err
			}
			out = records
			return nil
		}
		if e.breaker == nil {
			return run(ctx)
		}
		return e.breaker.ExecuteContext(ctx, run)
	})
	if err != nil {
		return nil, e.classify(err)
	}

	e.logger.Debug("pico query executed",
		"clauses", len(q.Clauses),
		"rows", len(out),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

func (e *Executor) fetch(ctx context.Context, query string, args []any) ([]pico.MatchRecord, error) {
	rows, err := e.store.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing pico query: %w", err)
	}
	defer rows.Close()

	records := make([]pico.MatchRecord, 0, e.cfg.MaxResults)
	for len(records) < e.cfg.MaxResults && rows.Next() {
		var rec pico.MatchRecord
		var title sql.NullString
		if err := rows.Scan(&rec.ArticleID, &title); err != nil {
			return nil, fmt.Errorf("scanning pico row: %w", err)
		}
		rec.Title = title.String
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading pico rows: %w", err)
	}
	return records, nil
}

func (e *Executor) classify(err error) error {
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		return fmt.Errorf("%w: %w", apperrors.ErrUnavailable, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", apperrors.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %w", apperrors.ErrStore, err)
	}
}
