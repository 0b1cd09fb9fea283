package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/DeafMist/festival-radar/backend/internal/models"
	"github.com/DeafMist/festival-radar/backend/internal/publish"
)

// eventStore serves the published set, reloading it when the worker
// replaces the file.
type eventStore struct {
	dir string

	mu      sync.RWMutex
	set     *models.EventSet
	modTime time.Time
}

func newEventStore(dir string) *eventStore {
	return &eventStore{dir: dir}
}

func (s *eventStore) Current() (*models.EventSet, error) {
	info, err := os.Stat(filepath.Join(s.dir, publish.EventsFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, publish.ErrNotPublished
	}
	if err != nil {
		return nil, fmt.Errorf("stat event set: %w", err)
	}

	s.mu.RLock()
	set, loadedAt := s.set, s.modTime
	s.mu.RUnlock()
	if set != nil && info.ModTime().Equal(loadedAt) {
		return set, nil
	}

	set, err = publish.ReadFile(s.dir)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.set, s.modTime = set, info.ModTime()
	s.mu.Unlock()
	return set, nil
}
