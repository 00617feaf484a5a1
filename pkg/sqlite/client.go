// Package sqlite provides a SQLite-backed article store with the same
// pubmed / pubmed_annotations layout as the Postgres deployment. Annotation
// columns hold JSON arrays as TEXT. Uses ncruces/go-sqlite3/driver which
// provides a database/sql interface.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

const schema = `
CREATE TABLE IF NOT EXISTS pubmed (
    pmid TEXT PRIMARY KEY,
    ti TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS pubmed_annotations (
    pmid TEXT PRIMARY KEY REFERENCES pubmed (pmid),
    population_mesh TEXT NOT NULL DEFAULT '[]',
    interventions_mesh TEXT NOT NULL DEFAULT '[]',
    outcomes_mesh TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS update_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    update_type TEXT NOT NULL,
    source_date TEXT NOT NULL,
    download_date TEXT NOT NULL
);
`

// MeshTerm is one element of an annotation array.
type MeshTerm struct {
	MeshUI string `json:"mesh_ui"`
	Term   string `json:"mesh_term,omitempty"`
}

// Article is a pubmed row together with its annotation row.
type Article struct {
	PMID          string
	Title         string
	Population    []MeshTerm
	Interventions []MeshTerm
	Outcomes      []MeshTerm
}

type Client struct {
	DB *sql.DB
}

// Open opens (or creates) the database at dsn and ensures the schema. Use
// ":memory:" for a throwaway store; the pool is pinned to one connection so
// every query sees the same in-memory database.
func Open(dsn string) (*Client, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating sqlite schema: %w", err)
	}
	return &Client{DB: db}, nil
}

func (c *Client) Close() error {
	return c.DB.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// InsertArticles writes articles and their annotations in one transaction.
func (c *Client) InsertArticles(ctx context.Context, articles ...Article) error {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, a := range articles {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO pubmed (pmid, ti) VALUES (?, ?)`,
			a.PMID, a.Title,
		); err != nil {
			return fmt.Errorf("inserting article %s: %w", a.PMID, err)
		}
		population, err := encodeTerms(a.Population)
		if err != nil {
			return err
		}
		interventions, err := encodeTerms(a.Interventions)
		if err != nil {
			return err
		}
		outcomes, err := encodeTerms(a.Outcomes)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO pubmed_annotations (pmid, population_mesh, interventions_mesh, outcomes_mesh) VALUES (?, ?, ?, ?)`,
			a.PMID, population, interventions, outcomes,
		); err != nil {
			return fmt.Errorf("inserting annotations for %s: %w", a.PMID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// RecordUpdate logs that the data source updateType was loaded as of
// sourceDate. Dates are stored as fixed-width UTC RFC 3339 text so MAX()
// orders them chronologically.
func (c *Client) RecordUpdate(ctx context.Context, updateType string, sourceDate time.Time) error {
	_, err := c.DB.ExecContext(ctx,
		`INSERT INTO update_log (update_type, source_date, download_date) VALUES (?, ?, ?)`,
		updateType,
		sourceDate.UTC().Format(time.RFC3339),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("recording %s update: %w", updateType, err)
	}
	return nil
}

func encodeTerms(terms []MeshTerm) (string, error) {
	if terms == nil {
		terms = []MeshTerm{}
	}
	data, err := json.Marshal(terms)
	if err != nil {
		return "", fmt.Errorf("encoding mesh terms: %w", err)
	}
	return string(data), nil
}
