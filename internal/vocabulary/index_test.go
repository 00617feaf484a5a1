package vocabulary

import (
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/trialsearch/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(term, meshUI string, count int) Entry {
	return Entry{Key: Normalize(term), Term: term, MeshUI: meshUI, Count: count}
}

func fixtureEntries() []Entry {
	return []Entry{
		entry("Diabetes Mellitus", "D003920", 120),
		entry("Diabetes Insipidus", "D003919", 5),
		entry("Diabetes Mellitus, Type 2", "D003924", 300),
		entry("Dialysis", "D006435", 40),
		entry("Hypertension", "D006973", 900),
		entry("Aspirin", "D001241", 70),
	}
}

func collect(idx *Index, prefix string) []Entry {
	return slices.Collect(idx.PrefixLookup(prefix))
}

func meshIDs(entries []Entry) []string {
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.MeshUI)
	}
	slices.Sort(ids)
	return ids
}

func TestBuildRejectsEmptyKey(t *testing.T) {
	_, err := Build([]Entry{entry("Aspirin", "D001241", 1), {Term: "", MeshUI: "D000001"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrConfiguration))
}

func TestBuildRejectsNegativeCount(t *testing.T) {
	_, err := Build([]Entry{entry("Aspirin", "D001241", -1)})
	assert.True(t, errors.Is(err, apperrors.ErrConfiguration))
}

func TestPrefixLookup(t *testing.T) {
	idx, err := Build(fixtureEntries())
	require.NoError(t, err)
	assert.Equal(t, 6, idx.Len())

	t.Run("matches share the prefix", func(t *testing.T) {
		got := collect(idx, "diab")
		assert.Equal(t, []string{"D003919", "D003920", "D003924"}, meshIDs(got))
		for _, e := range got {
			assert.True(t, strings.HasPrefix(e.Key, "diab"), e.Key)
		}
	})

	t.Run("prefix ending inside a shared edge", func(t *testing.T) {
		assert.Equal(t, []string{"D003919", "D003920", "D003924", "D006435"}, meshIDs(collect(idx, "di")))
	})

	t.Run("exact key includes longer keys", func(t *testing.T) {
		assert.Equal(t, []string{"D003920", "D003924"}, meshIDs(collect(idx, "diabetes mellitus")))
	})

	t.Run("empty prefix yields everything", func(t *testing.T) {
		assert.Len(t, collect(idx, ""), 6)
	})

	t.Run("no match is empty", func(t *testing.T) {
		assert.Empty(t, collect(idx, "zzz"))
		assert.Empty(t, collect(idx, "diabetes mellitus, type 3"))
	})

	t.Run("restartable", func(t *testing.T) {
		seq := idx.PrefixLookup("d")
		first := slices.Collect(seq)
		second := slices.Collect(seq)
		assert.Equal(t, first, second)
		assert.Len(t, first, 4)
	})
}

func TestPrefixLookupSharedKey(t *testing.T) {
	idx, err := Build([]Entry{
		{Key: "cancer", Term: "Cancer", MeshUI: "D009369", Count: 10},
		{Key: "cancer", Term: "cancer", MeshUI: "D009370", Count: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"D009369", "D009370"}, meshIDs(collect(idx, "can")))
}

func TestPrefixLookupStopsEarly(t *testing.T) {
	idx, err := Build(fixtureEntries())
	require.NoError(t, err)

	seen := 0
	for range idx.PrefixLookup("") {
		seen++
		if seen == 2 {
			break
		}
	}
	assert.Equal(t, 2, seen)
}

func TestPrefixLookupConcurrentReaders(t *testing.T) {
	idx, err := Build(fixtureEntries())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if n := len(collect(idx, "diab")); n != 3 {
					t.Errorf("got %d matches", n)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "diabetes mellitus", Normalize("  Diabetes \t MELLITUS "))
	assert.Equal(t, "", Normalize("   "))
}
