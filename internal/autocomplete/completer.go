// Package autocomplete answers "best completions of this partial term"
// against the vocabulary index. Short prefixes can match huge subtrees, so
// they get the first few matches unranked; longer prefixes are ranked by
// popularity.
package autocomplete

import (
	"sort"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/trialsearch/internal/vocabulary"
)

const (
	DefaultMinChars = 3
	DefaultTopK     = 5
)

// Tier records which branch of the lookup policy produced a result.
type Tier string

const (
	TierEmpty    Tier = "empty"
	TierUnranked Tier = "unranked"
	TierRanked   Tier = "ranked"
)

// Result is one lookup answer. Entries is never nil.
type Result struct {
	Entries []vocabulary.Entry
	Tier    Tier
}

// Lookup returns at most topK completions of query. The query is normalized
// with vocabulary.Normalize before it touches the index.
func Lookup(idx *vocabulary.Index, query string, minChars, topK int) Result {
	prefix := vocabulary.Normalize(query)
	if prefix == "" || topK <= 0 {
		return Result{Entries: []vocabulary.Entry{}, Tier: TierEmpty}
	}

	if utf8.RuneCountInString(prefix) < minChars {
		entries := make([]vocabulary.Entry, 0, topK)
		for e := range idx.PrefixLookup(prefix) {
			entries = append(entries, e)
			if len(entries) == topK {
				break
			}
		}
		return Result{Entries: entries, Tier: TierUnranked}
	}

	entries := make([]vocabulary.Entry, 0, topK)
	for e := range idx.PrefixLookup(prefix) {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		if a.Term != b.Term {
			return a.Term < b.Term
		}
		return a.MeshUI < b.MeshUI
	})
	if len(entries) > topK {
		entries = entries[:topK]
	}
	return Result{Entries: entries, Tier: TierRanked}
}

// Completer binds an index to the configured policy so handlers can be
// handed a single dependency.
type Completer struct {
	index    *vocabulary.Index
	minChars int
	topK     int
}

// NewCompleter returns a Completer applying minChars and topK to index.
func NewCompleter(index *vocabulary.Index, minChars, topK int) *Completer {
	return &Completer{
		index:    index,
		minChars: minChars,
		topK:     topK,
	}
}

// Complete runs Lookup with the bound policy.
func (c *Completer) Complete(query string) Result {
	return Lookup(c.index, query, c.minChars, c.topK)
}

// Size reports how many entries the underlying index holds.
func (c *Completer) Size() int {
	return c.index.Len()
}
