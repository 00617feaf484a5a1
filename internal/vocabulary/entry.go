// Package vocabulary holds the MeSH PICO vocabulary: the entry type, the
// prefix trie built once at startup, and the snapshot files it is built from.
package vocabulary

import (
	"strings"
)

// Entry is one indexed vocabulary term. Count is a popularity score used
// only for ranking.
type Entry struct {
	Key    string `json:"-" msgpack:"-"`
	Term   string `json:"term" msgpack:"term"`
	MeshUI string `json:"mesh_ui" msgpack:"mesh_ui"`
	Count  int    `json:"count" msgpack:"count"`
}

// Normalize folds case and collapses runs of whitespace. The same function
// must be applied to keys at build time and to prefixes at lookup time.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
