package ingest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"

	"github.com/DeafMist/festival-radar/backend/internal/processing"
	"github.com/DeafMist/festival-radar/backend/internal/source"
)

// RawStore keeps the last raw payload of every table so a build can tell
// whether the source changed since the previous run.
type RawStore struct {
	dir string
}

// NewRawStore stores snapshots under dir.
func NewRawStore(dir string) *RawStore {
	return &RawStore{dir: dir}
}

func (s *RawStore) path(t source.Table) string {
	return filepath.Join(s.dir, string(t)+"_raw.json")
}

// Swap records rows as the latest snapshot of t and reports whether they
// differ from the previous one. A missing snapshot counts as a change.
func (s *RawStore) Swap(t source.Table, rows []json.RawMessage) (bool, error) {
	data, err := json.Marshal(rows)
	if err != nil {
		return true, fmt.Errorf("marshal raw rows: %w", err)
	}

	changed := true
	prev, err := os.ReadFile(s.path(t))
	switch {
	case err == nil:
		changed = processing.Fingerprint(prev) != processing.Fingerprint(data)
	case !errors.Is(err, fs.ErrNotExist):
		return true, fmt.Errorf("read raw snapshot: %w", err)
	}
	if !changed {
		return false, nil
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return true, fmt.Errorf("create raw dir: %w", err)
	}
	if err := os.WriteFile(s.path(t), data, 0o644); err != nil {
		return true, fmt.Errorf("write raw snapshot: %w", err)
	}
	return true, nil
}
