package snapshot

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// LoadJSON reads a JSON snapshot. Both a wrapper object { "senses": [...] }
// and a bare array of records are accepted.
func LoadJSON(path string) ([]SenseRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var wrapper struct {
		Senses []SenseRecord `json:"senses"`
	}
	dec := json.NewDecoder(f)
	if err := dec.Decode(&wrapper); err == nil && wrapper.Senses != nil {
		return wrapper.Senses, nil
	}

	// Reset and try as array [...]
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	var records []SenseRecord
	dec = json.NewDecoder(f)
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot as object or array: %w", err)
	}
	return records, nil
}
