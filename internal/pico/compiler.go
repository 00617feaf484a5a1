package pico

import (
	"net/http"

	apperrors "github.com/Adithya-Monish-Kumar-K/trialsearch/pkg/errors"
)

// Selection is one requested facet term as it arrives from a client.
type Selection struct {
	Class  string `json:"classes"`
	MeshUI string `json:"mesh_ui"`
}

// MatchRecord is the projection returned for each matching article.
type MatchRecord struct {
	ArticleID string `json:"pmid"`
	Title     string `json:"title"`
}

// Operator is the comparison a clause applies. Containment is the only one.
type Operator int

const (
	OpContains Operator = iota + 1
)

func (o Operator) String() string {
	if o == OpContains {
		return "contains"
	}
	return "unknown"
}

// Clause asserts that the facet's annotation array contains an element
// whose mesh_ui equals Value.
type Clause struct {
	Facet Facet
	Op    Operator
	Value string
}

// Compiled is a validated conjunction of clauses. A Compiled with no
// clauses is the empty query and must never reach the store.
type Compiled struct {
	Clauses []Clause
}

// EmptyQuery is the sentinel returned for an empty selection list.
var EmptyQuery = &Compiled{}

// Empty reports whether executing q would be an unconstrained scan.
func (q *Compiled) Empty() bool {
	return q == nil || len(q.Clauses) == 0
}

// MeshUIs returns the clause values in order, for logging and analytics.
func (q *Compiled) MeshUIs() []string {
	if q.Empty() {
		return nil
	}
	ids := make([]string, 0, len(q.Clauses))
	for _, c := range q.Clauses {
		ids = append(ids, c.Value)
	}
	return ids
}

// Compile validates selections and turns them into ANDed containment
// clauses in input order. Exact duplicate selections collapse into one
// clause. The first invalid selection rejects the whole query.
func Compile(selections []Selection) (*Compiled, error) {
	if len(selections) == 0 {
		return EmptyQuery, nil
	}

	type clauseKey struct {
		facet  Facet
		meshUI string
	}
	seen := make(map[clauseKey]struct{}, len(selections))
	clauses := make([]Clause, 0, len(selections))
	for i, s := range selections {
		facet, err := ParseFacet(s.Class)
		if err != nil {
			return nil, err
		}
		if s.MeshUI == "" {
			return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest,
				"selection %d: mesh_ui is required", i)
		}
		key := clauseKey{facet: facet, meshUI: s.MeshUI}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		clauses = append(clauses, Clause{Facet: facet, Op: OpContains, Value: s.MeshUI})
	}
	return &Compiled{Clauses: clauses}, nil
}
