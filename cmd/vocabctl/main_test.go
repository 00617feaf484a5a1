package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/trialsearch/internal/vocabulary"
	"github.com/Adithya-Monish-Kumar-K/trialsearch/pkg/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const snapshotJSON = `[
  {"term": "Diabetes Mellitus, Type 2", "mesh_ui": "D003924", "count": 900},
  {"term": "Diabetes Mellitus", "mesh_ui": "D003920", "count": 1200},
  {"term": "Diabetes, Gestational", "mesh_ui": "D016640", "count": 300},
  {"term": "Metformin", "mesh_ui": "D008687", "count": 700}
]`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	app := newApp()
	var out, errOut bytes.Buffer
	app.Writer = &out
	app.ErrWriter = &errOut
	err := app.Run(append([]string{"vocabctl"}, args...))
	return out.String(), err
}

func TestConvertCommand(t *testing.T) {
	in := writeFile(t, "vocab.json", snapshotJSON)
	out := filepath.Join(t.TempDir(), "vocab.msgpack")

	_, err := runApp(t, "convert", in, out)
	require.NoError(t, err)

	entries, err := vocabulary.LoadSnapshot(out)
	require.NoError(t, err)
	assert.Len(t, entries, 4)
	assert.Equal(t, "diabetes mellitus, type 2", entries[0].Key)
}

func TestConvertCommandRequiresTwoArgs(t *testing.T) {
	_, err := runApp(t, "convert", "only-one.json")
	require.Error(t, err)
}

func TestConvertCommandRejectsUnknownFormat(t *testing.T) {
	in := writeFile(t, "vocab.csv", "term,mesh_ui\n")
	_, err := runApp(t, "convert", in, filepath.Join(t.TempDir(), "out.msgpack"))
	require.Error(t, err)
}

func TestCompleteCommand(t *testing.T) {
	snapshot := writeFile(t, "vocab.json", snapshotJSON)

	out, err := runApp(t, "complete", "--snapshot", snapshot, "--top-k", "2", "Diab")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	var first vocabulary.Entry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "D003920", first.MeshUI)
	assert.Equal(t, 1200, first.Count)
}

func TestCompleteCommandEmptyQuery(t *testing.T) {
	snapshot := writeFile(t, "vocab.json", snapshotJSON)

	out, err := runApp(t, "complete", "--snapshot", snapshot)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestCompileCommand(t *testing.T) {
	t.Run("sqlite renders placeholders and limit", func(t *testing.T) {
		out, err := runApp(t, "compile", "--dialect", "sqlite", "--limit", "5",
			`[{"classes":"population","mesh_ui":"D003920"}]`)
		require.NoError(t, err)
		assert.Contains(t, out, "SELECT")
		assert.Contains(t, out, "LIMIT ?")
		assert.Contains(t, out, "-- arg 1: D003920")
		assert.Contains(t, out, "-- arg 2: 5")
	})

	t.Run("postgres uses numbered placeholders", func(t *testing.T) {
		out, err := runApp(t, "compile",
			`[{"classes":"population","mesh_ui":"D003920"},{"classes":"interventions","mesh_ui":"D008687"}]`)
		require.NoError(t, err)
		assert.Contains(t, out, "$1")
		assert.Contains(t, out, "$2")
		assert.Contains(t, out, "LIMIT $3")
		assert.NotContains(t, strings.SplitN(out, "\n", 2)[0], "D003920")
	})

	t.Run("empty selection list", func(t *testing.T) {
		out, err := runApp(t, "compile", `[]`)
		require.NoError(t, err)
		assert.Contains(t, out, "empty query")
	})

	t.Run("unknown facet", func(t *testing.T) {
		_, err := runApp(t, "compile", `[{"classes":"comparators","mesh_ui":"D003920"}]`)
		require.Error(t, err)
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := runApp(t, "compile", `[{`)
		require.Error(t, err)
	})

	t.Run("unknown dialect", func(t *testing.T) {
		_, err := runApp(t, "compile", "--dialect", "mysql", `[{"classes":"population","mesh_ui":"D003920"}]`)
		require.Error(t, err)
	})
}

func TestLoadArticlesCommand(t *testing.T) {
	articles := writeFile(t, "articles.json", `[
  {"pmid": "1001", "title": "Metformin in type 2 diabetes",
   "population": [{"mesh_ui": "D003920"}],
   "interventions": [{"mesh_ui": "D008687", "mesh_term": "Metformin"}]},
  {"pmid": "1002", "title": "Gestational diabetes screening",
   "population": [{"mesh_ui": "D016640"}]}
]`)
	db := filepath.Join(t.TempDir(), "trials.db")

	_, err := runApp(t, "load-articles", "--db", db, "--update-type", "picomesh_full", "--source-date", "2026-02-01", articles)
	require.NoError(t, err)

	store, err := sqlite.Open(db)
	require.NoError(t, err)
	defer store.Close()

	var count int
	require.NoError(t, store.DB.QueryRowContext(context.Background(),
		`SELECT COUNT(*) FROM pubmed`).Scan(&count))
	assert.Equal(t, 2, count)

	var outcomes string
	require.NoError(t, store.DB.QueryRowContext(context.Background(),
		`SELECT outcomes_mesh FROM pubmed_annotations WHERE pmid = '1002'`).Scan(&outcomes))
	assert.Equal(t, "[]", outcomes)

	var updateType, sourceDate string
	require.NoError(t, store.DB.QueryRowContext(context.Background(),
		`SELECT update_type, source_date FROM update_log`).Scan(&updateType, &sourceDate))
	assert.Equal(t, "picomesh_full", updateType)
	assert.Equal(t, "2026-02-01T00:00:00Z", sourceDate)
}

func TestLoadArticlesCommandRequiresDB(t *testing.T) {
	_, err := runApp(t, "load-articles", "articles.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db")
}
