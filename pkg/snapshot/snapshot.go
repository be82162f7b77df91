package snapshot

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Option is a typed attribute attached to a sense, as delivered by the
// lexical engine. Type is still the raw category name at this point.
type Option struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// SenseRecord is one meaning of a lemma.
type SenseRecord struct {
	Lemma   string   `json:"lemma"`
	ID      string   `json:"id"`
	Gloss   string   `json:"gloss"`
	Options []Option `json:"options"`
	// Links maps a target sense identifier to a link category name.
	Links map[string]string `json:"links"`
}

// Snapshot is an immutable, ordered collection of sense records with an
// identifier index. It is safe for concurrent reads.
type Snapshot struct {
	Path   string
	senses []SenseRecord
	index  map[string]int
}

// ErrUnsupportedFormat is returned by Open for unknown artifact extensions.
var ErrUnsupportedFormat = errors.New("snapshot: unsupported format")

// New builds a snapshot from records. When identifiers repeat, Lookup
// resolves to the first occurrence; every record is still returned by Senses.
func New(records []SenseRecord) *Snapshot {
	s := &Snapshot{
		senses: records,
		index:  make(map[string]int, len(records)),
	}
	for i, r := range records {
		id := strings.TrimSpace(r.ID)
		if id == "" {
			continue
		}
		if _, dup := s.index[id]; !dup {
			s.index[id] = i
		}
	}
	return s
}

// Open loads a snapshot artifact, choosing the reader by file extension.
func Open(path string) (*Snapshot, error) {
	var (
		records []SenseRecord
		err     error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		records, err = LoadJSON(path)
	case ".db", ".sqlite", ".sqlite3":
		records, err = LoadSQLite(path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("open snapshot %s: %w", path, err)
	}
	s := New(records)
	s.Path = path
	return s, nil
}

// Senses returns the records in snapshot order. Callers must not modify it.
func (s *Snapshot) Senses() []SenseRecord { return s.senses }

// Len returns the number of records.
func (s *Snapshot) Len() int { return len(s.senses) }

// Lookup finds a sense by identifier.
func (s *Snapshot) Lookup(id string) (SenseRecord, bool) {
	i, ok := s.index[strings.TrimSpace(id)]
	if !ok {
		return SenseRecord{}, false
	}
	return s.senses[i], true
}

// Select returns the records whose identifiers are in ids, in snapshot order.
// Unknown identifiers are returned separately.
func (s *Snapshot) Select(ids []string) ([]SenseRecord, []string) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[strings.TrimSpace(id)] = true
	}
	var out []SenseRecord
	for _, r := range s.senses {
		id := strings.TrimSpace(r.ID)
		if want[id] {
			out = append(out, r)
			delete(want, id)
		}
	}
	var missing []string
	for _, id := range ids {
		if want[strings.TrimSpace(id)] {
			missing = append(missing, id)
		}
	}
	return out, missing
}
