package publish

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"

	"github.com/DeafMist/festival-radar/backend/internal/models"
)

// EventsFile is the file name of the published set.
const EventsFile = "events.json"

// ErrNotPublished is returned by ReadFile before the first build.
var ErrNotPublished = errors.New("event set not published yet")

// File writes the event set as indented JSON under Dir.
type File struct {
	Dir string
}

func (f File) Name() string { return "file" }

// Path is the location of the published set.
func (f File) Path() string { return filepath.Join(f.Dir, EventsFile) }

func (f File) Publish(_ context.Context, set *models.EventSet) error {
	data, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal event set: %w", err)
	}
	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(f.Dir, ".events-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write event set: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close event set: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.Path()); err != nil {
		return fmt.Errorf("replace event set: %w", err)
	}
	return nil
}

// ReadFile loads the set last published under dir.
func ReadFile(dir string) (*models.EventSet, error) {
	data, err := os.ReadFile(filepath.Join(dir, EventsFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotPublished
	}
	if err != nil {
		return nil, fmt.Errorf("read event set: %w", err)
	}
	var set models.EventSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("decode event set: %w", err)
	}
	return &set, nil
}
