// Package pico compiles structured PICO MeSH selections into a conjunctive
// predicate over article annotations and renders it as parameterized SQL.
package pico

import (
	"net/http"

	apperrors "github.com/Adithya-Monish-Kumar-K/trialsearch/pkg/errors"
)

// Facet is one of the PICO annotation classes a selection can target.
type Facet int

const (
	Population Facet = iota + 1
	Intervention
	Outcome
)

var facetNames = map[Facet]string{
	Population:   "population",
	Intervention: "interventions",
	Outcome:      "outcomes",
}

// facetColumns is the only source of annotation column names.
var facetColumns = map[Facet]string{
	Population:   "population_mesh",
	Intervention: "interventions_mesh",
	Outcome:      "outcomes_mesh",
}

// Facets lists the valid facets in declaration order.
func Facets() []Facet {
	return []Facet{Population, Intervention, Outcome}
}

// ParseFacet maps a wire class name onto a Facet. Anything outside the
// enumeration is an ErrInvalidFacet.
func ParseFacet(class string) (Facet, error) {
	for f, name := range facetNames {
		if name == class {
			return f, nil
		}
	}
	return 0, apperrors.Newf(apperrors.ErrInvalidFacet, http.StatusBadRequest,
		"unknown class %q (want one of population, interventions, outcomes)", class)
}

func (f Facet) String() string {
	if name, ok := facetNames[f]; ok {
		return name
	}
	return "unknown"
}

// Column returns the annotation column holding this facet's MeSH array.
func (f Facet) Column() string {
	return facetColumns[f]
}
