package pico

import (
	"errors"
	"net/http"
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/trialsearch/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileEmptyIsSentinel(t *testing.T) {
	for _, sel := range [][]Selection{nil, {}} {
		q, err := Compile(sel)
		require.NoError(t, err)
		assert.Same(t, EmptyQuery, q)
		assert.True(t, q.Empty())
		assert.Nil(t, q.MeshUIs())
	}
}

func TestCompileSingleSelection(t *testing.T) {
	q, err := Compile([]Selection{{Class: "population", MeshUI: "D003920"}})
	require.NoError(t, err)
	assert.Equal(t, []Clause{{Facet: Population, Op: OpContains, Value: "D003920"}}, q.Clauses)
}

func TestCompileKeepsOrderAndDeduplicates(t *testing.T) {
	q, err := Compile([]Selection{
		{Class: "outcomes", MeshUI: "D007022"},
		{Class: "population", MeshUI: "D003920"},
		{Class: "interventions", MeshUI: "D008687"},
		{Class: "population", MeshUI: "D003920"},
		{Class: "interventions", MeshUI: "D003920"},
	})
	require.NoError(t, err)
	assert.Equal(t, []Clause{
		{Facet: Outcome, Op: OpContains, Value: "D007022"},
		{Facet: Population, Op: OpContains, Value: "D003920"},
		{Facet: Intervention, Op: OpContains, Value: "D008687"},
		{Facet: Intervention, Op: OpContains, Value: "D003920"},
	}, q.Clauses)
	assert.Equal(t, []string{"D007022", "D003920", "D008687", "D003920"}, q.MeshUIs())
}

func TestCompileRejectsUnknownFacet(t *testing.T) {
	for _, class := range []string{"not_a_facet", "", "Population", "comparison", "population_mesh"} {
		_, err := Compile([]Selection{
			{Class: "population", MeshUI: "D003920"},
			{Class: class, MeshUI: "D003920"},
		})
		require.Error(t, err, class)
		assert.True(t, errors.Is(err, apperrors.ErrInvalidFacet), class)
		assert.Equal(t, http.StatusBadRequest, apperrors.HTTPStatusCode(err))
	}
}

func TestCompileRejectsMissingMeshUI(t *testing.T) {
	_, err := Compile([]Selection{{Class: "outcomes"}})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}

func TestFacetWireNames(t *testing.T) {
	for _, f := range Facets() {
		parsed, err := ParseFacet(f.String())
		require.NoError(t, err)
		assert.Equal(t, f, parsed)
		assert.NotEmpty(t, f.Column())
	}
	assert.Equal(t, "unknown", Facet(0).String())
	assert.Empty(t, Facet(0).Column())
}
