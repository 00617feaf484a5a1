package vocabulary

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/trialsearch/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// snapshotRecord is the on-disk shape of one entry. Key is optional; when
// absent it is derived from Term with Normalize.
type snapshotRecord struct {
	Key    string `json:"key,omitempty" msgpack:"key,omitempty"`
	Term   string `json:"term" msgpack:"term"`
	MeshUI string `json:"mesh_ui" msgpack:"mesh_ui"`
	Count  int    `json:"count" msgpack:"count"`
}

// LoadSnapshot reads a vocabulary snapshot. The format follows the file
// extension: .json, or .msgpack / .mpk for the binary form.
func LoadSnapshot(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Configf("reading vocabulary snapshot %s: %v", path, err)
	}

	var records []snapshotRecord
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		err = json.Unmarshal(data, &records)
	case ".msgpack", ".mpk":
		err = msgpack.Unmarshal(data, &records)
	default:
		return nil, apperrors.Configf("unsupported vocabulary snapshot format %q", ext)
	}
	if err != nil {
		return nil, apperrors.Configf("decoding vocabulary snapshot %s: %v", path, err)
	}

	entries := make([]Entry, 0, len(records))
	for _, r := range records {
		key := r.Key
		if key == "" {
			key = Normalize(r.Term)
		}
		entries = append(entries, Entry{
			Key:    key,
			Term:   r.Term,
			MeshUI: r.MeshUI,
			Count:  r.Count,
		})
	}
	return entries, nil
}

// WriteSnapshot writes entries as a msgpack snapshot, keeping explicit keys
// that differ from the normalized term.
func WriteSnapshot(path string, entries []Entry) error {
	records := make([]snapshotRecord, 0, len(entries))
	for _, e := range entries {
		r := snapshotRecord{Term: e.Term, MeshUI: e.MeshUI, Count: e.Count}
		if e.Key != Normalize(e.Term) {
			r.Key = e.Key
		}
		records = append(records, r)
	}
	data, err := msgpack.Marshal(records)
	if err != nil {
		return fmt.Errorf("encoding vocabulary snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing vocabulary snapshot %s: %w", path, err)
	}
	return nil
}

// LoadIndex loads a snapshot and builds the index from it.
func LoadIndex(path string) (*Index, error) {
	entries, err := LoadSnapshot(path)
	if err != nil {
		return nil, err
	}
	return Build(entries)
}
