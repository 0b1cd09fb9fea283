// Package ttlcache is a file-backed read-through cache for expensive
// aggregates. Freshness is judged from the file modification time.
//
// One process owns a cache directory; concurrent writers are not supported.
package ttlcache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/DeafMist/festival-radar/backend/internal/logger"
	"github.com/DeafMist/festival-radar/backend/internal/metrics"
)

// DefaultTTL is the freshness window of an entry.
const DefaultTTL = time.Hour

// ErrCorrupt marks an entry that could not be parsed. Such entries are
// deleted and treated as a miss; callers only see it through Peek.
var ErrCorrupt = errors.New("corrupt cache entry")

// ErrMiss is returned by Peek when no entry exists.
var ErrMiss = errors.New("cache miss")

// Options configure a Cache.
type Options struct {
	Dir string
	TTL time.Duration
	// Disabled turns every call into a direct computation. It is read once
	// at construction.
	Disabled bool
	Now      func() time.Time
}

// Result is the value served by GetOrCompute.
type Result[T any] struct {
	Value T
	// Hit is true when the value came from a fresh entry.
	Hit bool
	// Stale is true when the computation failed and an expired entry was
	// served instead.
	Stale bool
}

// Cache stores values of type T as JSON files under Dir.
type Cache[T any] struct {
	dir      string
	ttl      time.Duration
	disabled bool
	now      func() time.Time
	log      *slog.Logger
}

// New builds a cache. The directory is created lazily on first write.
func New[T any](opts Options, log *slog.Logger) *Cache[T] {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Cache[T]{
		dir:      opts.Dir,
		ttl:      opts.TTL,
		disabled: opts.Disabled,
		now:      opts.Now,
		log:      logger.OrDiscard(log),
	}
}

// Disabled reports whether the cache is bypassed.
func (c *Cache[T]) Disabled() bool { return c.disabled }

// Path is the file backing key.
func (c *Cache[T]) Path(key string) string {
	return filepath.Join(c.dir, sanitize(key)+".json")
}

// Get returns the entry for key when it exists and is younger than the TTL.
func (c *Cache[T]) Get(key string) (T, bool) {
	var zero T
	if c.disabled {
		return zero, false
	}
	v, writtenAt, err := c.Peek(key)
	if err != nil {
		return zero, false
	}
	if c.now().Sub(writtenAt) >= c.ttl {
		return zero, false
	}
	return v, true
}

// Peek reads the entry regardless of age. A corrupt entry is deleted and
// reported as ErrCorrupt.
func (c *Cache[T]) Peek(key string) (T, time.Time, error) {
	var zero T
	path := c.Path(key)

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return zero, time.Time{}, ErrMiss
	}
	if err != nil {
		return zero, time.Time{}, fmt.Errorf("stat cache entry: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return zero, time.Time{}, fmt.Errorf("read cache entry: %w", err)
	}

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		metrics.CacheLookups.WithLabelValues("corrupt").Inc()
		c.log.Warn("corrupt cache entry deleted", slog.String("key", key), slog.Any("err", err))
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			c.log.Error("delete corrupt cache entry", slog.String("key", key), slog.Any("err", rmErr))
		}
		return zero, time.Time{}, fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	return v, info.ModTime(), nil
}

// Set writes v under key atomically.
func (c *Cache[T]) Set(key string, v T) error {
	if c.disabled {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	path := c.Path(key)
	tmp, err := os.CreateTemp(c.dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create cache entry: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close cache entry: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename cache entry: %w", err)
	}
	return nil
}

// Invalidate removes the entry for key.
func (c *Cache[T]) Invalidate(key string) error {
	err := os.Remove(c.Path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("invalidate cache entry: %w", err)
	}
	return nil
}

// GetOrCompute serves a fresh entry or calls compute and stores its result.
// When compute fails, an expired entry is served as a last resort and the
// degraded state is logged; the error is returned only when there is
// nothing to fall back to.
func (c *Cache[T]) GetOrCompute(ctx context.Context, key string, compute func(context.Context) (T, error)) (Result[T], error) {
	if c.disabled {
		v, err := compute(ctx)
		if err != nil {
			return Result[T]{}, err
		}
		return Result[T]{Value: v}, nil
	}

	if v, ok := c.Get(key); ok {
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		c.log.Debug("cache hit", slog.String("key", key))
		return Result[T]{Value: v, Hit: true}, nil
	}
	metrics.CacheLookups.WithLabelValues("miss").Inc()

	v, err := compute(ctx)
	if err == nil {
		if setErr := c.Set(key, v); setErr != nil {
			c.log.Error("persist cache entry", slog.String("key", key), slog.Any("err", setErr))
		}
		return Result[T]{Value: v}, nil
	}

	stale, writtenAt, peekErr := c.Peek(key)
	if peekErr != nil {
		return Result[T]{}, fmt.Errorf("compute %s: %w", key, err)
	}
	metrics.CacheLookups.WithLabelValues("stale").Inc()
	c.log.Warn("serving stale cache entry",
		slog.String("key", key),
		slog.Bool("degraded", true),
		slog.Duration("age", c.now().Sub(writtenAt)),
		slog.Any("err", err),
	)
	return Result[T]{Value: stale, Stale: true}, nil
}

func sanitize(key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, key)
}
