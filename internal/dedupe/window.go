package dedupe

import (
	"sync"
	"time"
)

type entry struct {
	key string
	ts  time.Time
}

// Window keeps a fixed-size set of recently handled keys. The worker marks
// one shared build key after each successful rebuild, so any trigger within
// the ttl is debounced, and one "id:<trigger id>" key per trigger so a
// redelivered message is skipped.
type Window struct {
	mu       sync.Mutex
	items    map[string]time.Time
	order    []entry
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

// NewWindow creates a window with the provided capacity and ttl.
func NewWindow(capacity int, ttl time.Duration) *Window {
	if capacity <= 0 {
		capacity = 1
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Window{
		items:    make(map[string]time.Time, capacity),
		order:    make([]entry, 0, capacity),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// WithClock replaces the time source, for tests.
func (w *Window) WithClock(now func() time.Time) *Window {
	w.now = now
	return w
}

// IsSeen returns true when the key has already been observed inside the ttl window.
// It does not mark the key as seen; use MarkSeen() to record a key.
func (w *Window) IsSeen(key string) bool {
	now := w.now()

	w.mu.Lock()
	defer w.mu.Unlock()

	if ts, ok := w.items[key]; ok {
		if now.Sub(ts) <= w.ttl {
			return true
		}
	}
	return false
}

// MarkSeen records that a key has been handled.
func (w *Window) MarkSeen(key string) {
	now := w.now()

	w.mu.Lock()
	defer w.mu.Unlock()

	w.items[key] = now
	w.order = append(w.order, entry{key: key, ts: now})
	w.compact(now)
}

func (w *Window) compact(now time.Time) {
	cutoff := now.Add(-w.ttl)

	for len(w.order) > 0 && (len(w.items) > w.capacity || w.order[0].ts.Before(cutoff)) {
		oldest := w.order[0]
		w.order = w.order[1:]

		if ts, ok := w.items[oldest.key]; ok {
			if ts == oldest.ts {
				delete(w.items, oldest.key)
			}
		}
	}
}
