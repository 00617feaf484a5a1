package pico

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// ErrEmptyRender is returned when asked to render the empty query.
var ErrEmptyRender = errors.New("refusing to render an empty pico query")

const (
	articleTable    = "pubmed"
	annotationTable = "pubmed_annotations"
	articleAlias    = "pm"
	annotationAlias = "pa"
	idColumn        = "pmid"
	titleColumn     = "ti"
)

// Dialect turns one containment clause into store-specific SQL. column is
// already a quoted, qualified identifier; n is the 1-based parameter index.
type Dialect interface {
	Name() string
	Placeholder(n int) string
	Contains(column string, n int) string
	BindValue(meshUI string) (any, error)
}

// Postgres renders containment with the jsonb @> operator, binding the
// one-element array document [{"mesh_ui": v}].
type Postgres struct{}

func (Postgres) Name() string { return "postgres" }

func (Postgres) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (p Postgres) Contains(column string, n int) string {
	return column + " @> " + p.Placeholder(n) + "::jsonb"
}

func (Postgres) BindValue(meshUI string) (any, error) {
	doc, err := json.Marshal([]map[string]string{{"mesh_ui": meshUI}})
	if err != nil {
		return nil, fmt.Errorf("encoding containment document: %w", err)
	}
	return string(doc), nil
}

// SQLite renders containment as an EXISTS over json_each, binding the raw
// mesh_ui value.
type SQLite struct{}

func (SQLite) Name() string { return "sqlite" }

func (SQLite) Placeholder(int) string { return "?" }

func (s SQLite) Contains(column string, n int) string {
	elem := quoteIdent("e")
	return "EXISTS (SELECT 1 FROM json_each(" + column + ") AS " + elem +
		" WHERE json_extract(" + elem + "." + quoteIdent("value") + ", '$.mesh_ui') = " + s.Placeholder(n) + ")"
}

func (SQLite) BindValue(meshUI string) (any, error) {
	return meshUI, nil
}

// DialectFor returns the dialect registered under name.
func DialectFor(name string) (Dialect, error) {
	switch name {
	case "postgres":
		return Postgres{}, nil
	case "sqlite":
		return SQLite{}, nil
	default:
		return nil, fmt.Errorf("unknown sql dialect %q", name)
	}
}

// Render produces the join query for q plus its bound arguments. Every
// identifier is quoted and comes from constants or the facet enumeration;
// clause values and the limit only ever travel as arguments. A limit below
// one omits the LIMIT clause.
func Render(d Dialect, q *Compiled, limit int) (string, []any, error) {
	if q.Empty() {
		return "", nil, ErrEmptyRender
	}

	args := make([]any, 0, len(q.Clauses)+1)
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(qualified(articleAlias, idColumn))
	b.WriteString(", ")
	b.WriteString(qualified(articleAlias, titleColumn))
	b.WriteString(" FROM ")
	b.WriteString(quoteIdent(articleTable))
	b.WriteString(" AS ")
	b.WriteString(quoteIdent(articleAlias))
	b.WriteString(" JOIN ")
	b.WriteString(quoteIdent(annotationTable))
	b.WriteString(" AS ")
	b.WriteString(quoteIdent(annotationAlias))
	b.WriteString(" ON ")
	b.WriteString(qualified(articleAlias, idColumn))
	b.WriteString(" = ")
	b.WriteString(qualified(annotationAlias, idColumn))
	b.WriteString(" WHERE ")

	for i, c := range q.Clauses {
		if c.Op != OpContains {
			return "", nil, fmt.Errorf("clause %d: unsupported operator %s", i, c.Op)
		}
		column := c.Facet.Column()
		if column == "" {
			return "", nil, fmt.Errorf("clause %d: unknown facet %d", i, c.Facet)
		}
		value, err := d.BindValue(c.Value)
		if err != nil {
			return "", nil, err
		}
		args = append(args, value)
		if i > 0 {
			b.WriteString(" AND ")
		}
		b.WriteString(d.Contains(qualified(annotationAlias, column), len(args)))
	}

	if limit > 0 {
		args = append(args, limit)
		b.WriteString(" LIMIT ")
		b.WriteString(d.Placeholder(len(args)))
	}
	return b.String(), args, nil
}

// quoteIdent emits the standard double-quoted identifier form, which both
// Postgres and SQLite accept.
func quoteIdent(name string) string {
	return pq.QuoteIdentifier(name)
}

func qualified(table, column string) string {
	return quoteIdent(table) + "." + quoteIdent(column)
}
