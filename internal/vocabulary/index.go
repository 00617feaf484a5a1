package vocabulary

import (
	"errors"
	"iter"
	"log/slog"

	apperrors "github.com/Adithya-Monish-Kumar-K/trialsearch/pkg/errors"
	"github.com/tchap/go-patricia/v2/patricia"
)

// errStopWalk aborts a subtree visit once the consumer stops ranging.
var errStopWalk = errors.New("stop walk")

// Index is a read-only prefix trie over vocabulary entries. Several entries
// may share a key, so each trie item is a []Entry. Nothing mutates the trie
// after Build, so concurrent lookups need no locking.
type Index struct {
	trie *patricia.Trie
	size int
}

// Build inserts every entry under its Key as given; callers normalize keys.
func Build(entries []Entry) (*Index, error) {
	trie := patricia.NewTrie()
	for i, e := range entries {
		if e.Key == "" {
			return nil, apperrors.Configf("vocabulary entry %d (%q, %s) has an empty key", i, e.Term, e.MeshUI)
		}
		if e.Count < 0 {
			return nil, apperrors.Configf("vocabulary entry %d (%q) has negative count %d", i, e.Term, e.Count)
		}
		key := patricia.Prefix(e.Key)
		if item := trie.Get(key); item != nil {
			trie.Set(key, append(item.([]Entry), e))
			continue
		}
		trie.Insert(key, []Entry{e})
	}
	return &Index{trie: trie, size: len(entries)}, nil
}

// Len reports the number of entries in the index.
func (idx *Index) Len() int {
	return idx.size
}

// PrefixLookup yields every entry whose key starts with prefix, in trie
// order. Each range walks the trie afresh and stops as soon as the loop
// body breaks. An empty prefix yields every entry.
func (idx *Index) PrefixLookup(prefix string) iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		visit := func(_ patricia.Prefix, item patricia.Item) error {
			for _, e := range item.([]Entry) {
				if !yield(e) {
					return errStopWalk
				}
			}
			return nil
		}

		var err error
		if prefix == "" {
			err = idx.trie.Visit(visit)
		} else {
			err = idx.trie.VisitSubtree(patricia.Prefix(prefix), visit)
		}
		if err != nil && !errors.Is(err, errStopWalk) {
			slog.Default().Error("vocabulary trie walk failed", "prefix", prefix, "error", err)
		}
	}
}
