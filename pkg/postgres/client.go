// Package postgres opens the PubMed article store over lib/pq. Annotation
// columns are JSONB arrays of {"mesh_ui": ...} objects, GIN-indexed so the
// structured query's containment predicates stay index scans.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/trialsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/trialsearch/pkg/resilience"
	_ "github.com/lib/pq"
)

// Schema creates the article tables when missing. Production databases are
// loaded by the annotation pipeline; Migrate exists for local runs and tests.
const Schema = `
CREATE TABLE IF NOT EXISTS pubmed (
    pmid TEXT PRIMARY KEY,
    ti   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS pubmed_annotations (
    pmid               TEXT PRIMARY KEY REFERENCES pubmed (pmid),
    population_mesh    JSONB NOT NULL DEFAULT '[]',
    interventions_mesh JSONB NOT NULL DEFAULT '[]',
    outcomes_mesh      JSONB NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS pubmed_annotations_population_gin ON pubmed_annotations USING GIN (population_mesh jsonb_path_ops);
CREATE INDEX IF NOT EXISTS pubmed_annotations_interventions_gin ON pubmed_annotations USING GIN (interventions_mesh jsonb_path_ops);
CREATE INDEX IF NOT EXISTS pubmed_annotations_outcomes_gin ON pubmed_annotations USING GIN (outcomes_mesh jsonb_path_ops);
CREATE TABLE IF NOT EXISTS update_log (
    id            BIGSERIAL PRIMARY KEY,
    update_type   TEXT NOT NULL,
    source_date   TIMESTAMPTZ NOT NULL,
    download_date TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

type Client struct {
	DB  *sql.DB
	cfg config.PostgresConfig
}

// New opens the pool and pings it, retrying with backoff so the service can
// start while the database container is still coming up.
func New(ctx context.Context, cfg config.PostgresConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	err = resilience.Retry(ctx, "postgres-connect", resilience.RetryConfig{
		MaxAttempts:  cfg.ConnectAttempts,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
	}, func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return db.PingContext(pingCtx)
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &Client{DB: db, cfg: cfg}, nil
}

// Migrate applies Schema.
func (c *Client) Migrate(ctx context.Context) error {
	if _, err := c.DB.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("applying article schema: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.DB.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

func (c *Client) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rolling back transaction after error %v: %w", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}
