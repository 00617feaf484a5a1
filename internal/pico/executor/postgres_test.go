package executor

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/trialsearch/internal/pico"
	"github.com/Adithya-Monish-Kumar-K/trialsearch/pkg/postgres/pgtest"
	"github.com/Adithya-Monish-Kumar-K/trialsearch/pkg/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutePostgresContainment(t *testing.T) {
	db := pgtest.Open(t)
	ctx := context.Background()
	require.NoError(t, db.Migrate(ctx))

	for _, a := range fixtureArticles() {
		_, err := db.DB.ExecContext(ctx, `INSERT INTO pubmed (pmid, ti) VALUES ($1, $2)`, a.PMID, a.Title)
		require.NoError(t, err)
		_, err = db.DB.ExecContext(ctx,
			`INSERT INTO pubmed_annotations (pmid, population_mesh, interventions_mesh, outcomes_mesh) VALUES ($1, $2, $3, $4)`,
			a.PMID, jsonTerms(t, a.Population), jsonTerms(t, a.Interventions), jsonTerms(t, a.Outcomes),
		)
		require.NoError(t, err)
	}

	exec := New(db.DB, pico.Postgres{}, Config{MaxResults: 10, MaxConcurrent: 4}, nil)

	got, err := exec.Execute(ctx, compile(t, pico.Selection{Class: "population", MeshUI: meshDiabetesT2}))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"1001", "1002"}, ids(got))

	got, err = exec.Execute(ctx, compile(t,
		pico.Selection{Class: "population", MeshUI: meshHypertension},
		pico.Selection{Class: "interventions", MeshUI: meshMetformin},
	))
	require.NoError(t, err)
	assert.Equal(t, []string{"1003"}, ids(got))

	got, err = exec.Execute(ctx, compile(t, pico.Selection{Class: "outcomes", MeshUI: `"; DROP TABLE pubmed; --`}))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func jsonTerms(t *testing.T, terms []sqlite.MeshTerm) string {
	t.Helper()
	if terms == nil {
		terms = []sqlite.MeshTerm{}
	}
	data, err := json.Marshal(terms)
	require.NoError(t, err)
	return string(data)
}
