package ingest

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/DeafMist/festival-radar/backend/internal/assets"
	"github.com/DeafMist/festival-radar/backend/internal/audit"
	"github.com/DeafMist/festival-radar/backend/internal/config"
	"github.com/DeafMist/festival-radar/backend/internal/dedupe"
	"github.com/DeafMist/festival-radar/backend/internal/logger"
	"github.com/DeafMist/festival-radar/backend/internal/models"
	"github.com/DeafMist/festival-radar/backend/internal/source"
	"github.com/DeafMist/festival-radar/backend/internal/ttlcache"
)

// Runtime is a pipeline wired from configuration together with the
// resources it owns.
type Runtime struct {
	Pipeline *Pipeline
	Source   *source.Client
	Resolver *assets.Resolver
	Cache    *ttlcache.Cache[models.EventSet]
	Audit    *audit.Store
}

// AssetDir is where resolved assets live under the cache directory.
func AssetDir(cacheDir string) string { return filepath.Join(cacheDir, "assets") }

// SourceClient builds the record API client from configuration.
func SourceClient(cfg config.Source, log *slog.Logger) (*source.Client, error) {
	tables := make(map[source.Table]string, len(cfg.Tables))
	for name, id := range cfg.Tables {
		t, err := source.ParseTable(name)
		if err != nil {
			return nil, err
		}
		tables[t] = id
	}
	return source.New(source.Config{
		BaseURL:       cfg.BaseURL,
		APIToken:      cfg.APIToken,
		ProjectID:     cfg.ProjectID,
		Tables:        tables,
		PageSize:      cfg.PageSize,
		MaxPages:      cfg.MaxPages,
		RatePerSecond: cfg.RatePerSecond,
		Timeout:       cfg.Timeout,
	}, log), nil
}

// Setup wires the full pipeline. Without pdftoppm every PDF attachment
// resolves to a placeholder.
func Setup(cfg *config.Build, log *slog.Logger) (*Runtime, error) {
	log = logger.OrDiscard(log)
	client, err := SourceClient(cfg.Source, log)
	if err != nil {
		return nil, err
	}

	var converter assets.Converter
	if p, err := assets.NewPoppler(cfg.Assets.PdftoppmPath); err != nil {
		log.Warn("pdf conversion unavailable", slog.Any("err", err))
	} else {
		converter = p
	}

	fetcher := assets.NewHTTPFetcher(nil, cfg.Assets.FetchTimeout, 0)
	resolver, err := assets.NewResolver(assets.Options{
		Dir:            AssetDir(cfg.Cache.Dir),
		FetchTimeout:   cfg.Assets.FetchTimeout,
		ConvertTimeout: cfg.Assets.ConvertTimeout,
		Width:          cfg.Assets.Width,
		Height:         cfg.Assets.Height,
	}, fetcher, converter, log)
	if err != nil {
		return nil, err
	}

	store, err := audit.Open(cfg.AuditDBPath)
	if err != nil {
		return nil, fmt.Errorf("open audit store: %w", err)
	}

	pipeline := New(Options{
		Calendar: cfg.Edition.Calendar(),
		Dedup: dedupe.Options{
			Threshold: cfg.Edition.Dedup.Threshold,
			Fields:    cfg.Edition.Dedup.Fields,
		},
		AssetConcurrency: cfg.Assets.Concurrency,
	}, client, resolver, log).
		WithAudit(store).
		WithRawStore(NewRawStore(filepath.Join(cfg.Cache.Dir, "raw")))

	cache := ttlcache.New[models.EventSet](ttlcache.Options{
		Dir:      cfg.Cache.Dir,
		TTL:      cfg.Cache.TTL,
		Disabled: cfg.Cache.Disabled,
	}, log)

	return &Runtime{
		Pipeline: pipeline,
		Source:   client,
		Resolver: resolver,
		Cache:    cache,
		Audit:    store,
	}, nil
}

// Close releases the audit store.
func (r *Runtime) Close() error {
	if r == nil || r.Audit == nil {
		return nil
	}
	return r.Audit.Close()
}
