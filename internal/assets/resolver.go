// Package assets turns media references into locally cached raster files.
//
// Files are keyed by event identity, not content: {type}-{id}.{ext} in a
// flat directory. Re-resolving an identity whose file exists is a no-op, so
// freshness is handled by wiping the directory.
package assets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/singleflight"

	"github.com/DeafMist/festival-radar/backend/internal/logger"
	"github.com/DeafMist/festival-radar/backend/internal/metrics"
	"github.com/DeafMist/festival-radar/backend/internal/models"
)

// Outcome says how an asset was obtained.
type Outcome string

const (
	OutcomeEmpty       Outcome = "empty"
	OutcomeCached      Outcome = "cached"
	OutcomeDownloaded  Outcome = "downloaded"
	OutcomeConverted   Outcome = "converted"
	OutcomePlaceholder Outcome = "placeholder"
)

// ResolutionError describes why the real asset could not be used. It is
// attached to a placeholder result, never raised to the pipeline.
type ResolutionError struct {
	Key string
	URL string
	Err error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve asset %s (%s): %v", e.Key, e.URL, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// Request identifies the asset slot of one event.
type Request struct {
	Type    models.Type
	EventID string
	// Role distinguishes secondary slots, e.g. "speaker".
	Role  string
	Media []models.Media
}

// Key is the cache filename without extension.
func (r Request) Key() string {
	key := fmt.Sprintf("%s-%s", r.Type, r.EventID)
	if r.Role != "" {
		key = r.Role + "-" + key
	}
	return sanitize(key)
}

// Result is the resolved local file. Path is empty only for OutcomeEmpty.
type Result struct {
	Path    string
	Outcome Outcome
	Err     error
}

// Options configure a Resolver.
type Options struct {
	Dir            string
	FetchTimeout   time.Duration
	ConvertTimeout time.Duration
	Width          int
	Height         int
}

// Resolver downloads, converts and caches assets. It is safe for concurrent
// use across distinct requests.
type Resolver struct {
	opts      Options
	fetcher   Fetcher
	converter Converter
	log       *slog.Logger

	mu     sync.Mutex
	byURL  map[string]string
	flight singleflight.Group
}

// NewResolver creates the cache directory. converter may be nil, in which
// case every PDF resolves to a placeholder.
func NewResolver(opts Options, fetcher Fetcher, converter Converter, log *slog.Logger) (*Resolver, error) {
	if opts.Dir == "" {
		return nil, errors.New("asset directory is required")
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 20 * time.Second
	}
	if opts.ConvertTimeout <= 0 {
		opts.ConvertTimeout = 30 * time.Second
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create asset dir: %w", err)
	}
	return &Resolver{
		opts:      opts,
		fetcher:   fetcher,
		converter: converter,
		log:       logger.OrDiscard(log),
		byURL:     make(map[string]string),
	}, nil
}

// Dir is the flat asset directory.
func (r *Resolver) Dir() string { return r.opts.Dir }

// Resolve tries each descriptor in order and falls back to a placeholder
// when none can be used. It never returns an error: failures are reported
// in Result.Err.
func (r *Resolver) Resolve(ctx context.Context, req Request) Result {
	res := r.resolve(ctx, req)
	metrics.AssetsResolved.WithLabelValues(string(res.Outcome)).Inc()
	return res
}

func (r *Resolver) resolve(ctx context.Context, req Request) Result {
	if len(req.Media) == 0 {
		return Result{Outcome: OutcomeEmpty}
	}

	key := req.Key()
	if path, ok := r.existing(key); ok {
		return Result{Path: path, Outcome: OutcomeCached}
	}

	var errs []error
	var firstURL string
	for _, m := range req.Media {
		if m.URL == "" {
			continue
		}
		if firstURL == "" {
			firstURL = m.URL
		}
		path, outcome, err := r.resolveURL(ctx, key, m)
		if err == nil {
			return Result{Path: path, Outcome: outcome}
		}
		errs = append(errs, err)
		r.log.Debug("asset descriptor failed",
			slog.String("key", key),
			slog.String("url", m.URL),
			slog.Any("err", err),
		)
	}
	if firstURL == "" {
		return Result{Outcome: OutcomeEmpty}
	}

	rerr := &ResolutionError{Key: key, URL: firstURL, Err: errors.Join(errs...)}
	path, err := r.placeholder(req.Type)
	if err != nil {
		r.log.Error("placeholder generation failed", slog.String("key", key), slog.Any("err", err))
		return Result{Outcome: OutcomePlaceholder, Err: errors.Join(rerr, err)}
	}
	r.log.Warn("asset replaced by placeholder",
		slog.String("key", key),
		slog.String("url", firstURL),
		slog.Any("err", rerr.Err),
	)
	return Result{Path: path, Outcome: OutcomePlaceholder, Err: rerr}
}

type resolved struct {
	path    string
	outcome Outcome
}

// resolveURL fetches each URL at most once at a time. Callers that wait on
// another request for the same URL share its file and report a cache hit.
func (r *Resolver) resolveURL(ctx context.Context, key string, m models.Media) (string, Outcome, error) {
	led := false
	v, err, _ := r.flight.Do(m.URL, func() (any, error) {
		led = true
		if path, ok := r.lookupURL(m.URL); ok {
			return resolved{path: path, outcome: OutcomeCached}, nil
		}
		path, outcome, err := r.resolveOne(ctx, key, m)
		if err != nil {
			return nil, err
		}
		r.rememberURL(m.URL, path)
		return resolved{path: path, outcome: outcome}, nil
	})
	if err != nil {
		return "", "", err
	}
	res := v.(resolved)
	if !led {
		res.outcome = OutcomeCached
	}
	return res.path, res.outcome, nil
}

func (r *Resolver) resolveOne(ctx context.Context, key string, m models.Media) (string, Outcome, error) {
	if r.fetcher == nil {
		return "", "", errors.New("no fetcher configured")
	}
	fetchCtx, cancel := context.WithTimeout(ctx, r.opts.FetchTimeout)
	data, err := r.fetcher.Fetch(fetchCtx, m.URL)
	cancel()
	if err != nil {
		return "", "", err
	}

	mt := mimetype.Detect(data)
	if mt.Is("application/pdf") || (IsPDF(m) && !isRaster(mt)) {
		if r.converter == nil {
			return "", "", ErrConverterUnavailable
		}
		convCtx, cancel := context.WithTimeout(ctx, r.opts.ConvertTimeout)
		raster, err := r.converter.Convert(convCtx, data)
		cancel()
		if err != nil {
			return "", "", fmt.Errorf("convert pdf: %w", err)
		}
		out := mimetype.Detect(raster)
		if !isRaster(out) {
			return "", "", fmt.Errorf("convert pdf: converter returned %s", out.String())
		}
		path, err := r.write(key+out.Extension(), raster)
		if err != nil {
			return "", "", err
		}
		return path, OutcomeConverted, nil
	}

	if !isRaster(mt) {
		return "", "", fmt.Errorf("unsupported content type %s", mt.String())
	}
	path, err := r.write(key+mt.Extension(), data)
	if err != nil {
		return "", "", err
	}
	return path, OutcomeDownloaded, nil
}

// placeholder writes one shared panel per type so a later build retries the
// real asset instead of hitting a cached fallback.
func (r *Resolver) placeholder(t models.Type) (string, error) {
	name := filepath.Join("placeholders", sanitize(string(t))+".png")
	path := filepath.Join(r.opts.Dir, name)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	data, err := Placeholder(t, r.opts.Width, r.opts.Height)
	if err != nil {
		return "", fmt.Errorf("render placeholder: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create placeholder dir: %w", err)
	}
	return r.write(name, data)
}

func (r *Resolver) existing(key string) (string, bool) {
	matches, err := filepath.Glob(filepath.Join(r.opts.Dir, key+".*"))
	if err != nil || len(matches) == 0 {
		return "", false
	}
	for _, m := range matches {
		if !strings.HasSuffix(m, ".tmp") {
			return m, true
		}
	}
	return "", false
}

func (r *Resolver) lookupURL(url string) (string, bool) {
	r.mu.Lock()
	path, ok := r.byURL[url]
	r.mu.Unlock()
	if !ok {
		return "", false
	}
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, true
}

func (r *Resolver) rememberURL(url, path string) {
	r.mu.Lock()
	r.byURL[url] = path
	r.mu.Unlock()
}

func (r *Resolver) write(name string, data []byte) (string, error) {
	path := filepath.Join(r.opts.Dir, name)
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(name)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp asset: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write asset: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close asset: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("rename asset: %w", err)
	}
	return path, nil
}

// Wipe removes every cached asset. It is the only invalidation there is.
func Wipe(dir string) error {
	if dir == "" {
		return errors.New("asset directory is required")
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("wipe assets: %w", err)
	}
	return nil
}

// IsPDF reports whether a descriptor points at a PDF, judged from its URL
// and declared mimetype only.
func IsPDF(m models.Media) bool {
	if strings.Contains(strings.ToLower(m.Mimetype), "application/pdf") {
		return true
	}
	return strings.Contains(strings.ToLower(m.URL), ".pdf")
}

func isRaster(mt *mimetype.MIME) bool {
	return strings.HasPrefix(mt.String(), "image/") && !mt.Is("image/svg+xml")
}

func sanitize(key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, key)
}
