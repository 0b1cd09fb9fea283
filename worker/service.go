package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/DeafMist/festival-radar/backend/internal/ingest"
	"github.com/DeafMist/festival-radar/backend/internal/models"
	"github.com/DeafMist/festival-radar/backend/internal/ttlcache"
)

type builder interface {
	Build(ctx context.Context) (*models.EventSet, error)
	BuildCached(ctx context.Context, cache *ttlcache.Cache[models.EventSet]) (ttlcache.Result[models.EventSet], error)
}

type publisher interface {
	Publish(ctx context.Context, set *models.EventSet) error
}

// service builds event sets and publishes them.
type service struct {
	runtime   builder
	cache     *ttlcache.Cache[models.EventSet]
	publisher publisher
	log       *slog.Logger
}

// Startup publishes the cached set when it is fresh and builds otherwise.
// A failed build falls back to the stale entry.
func (s *service) Startup(ctx context.Context) error {
	res, err := s.runtime.BuildCached(ctx, s.cache)
	if err != nil {
		return err
	}
	s.log.Info("initial event set ready",
		slog.String("run_id", res.Value.RunID),
		slog.Bool("cache_hit", res.Hit),
		slog.Bool("stale", res.Stale),
	)
	return s.publisher.Publish(ctx, &res.Value)
}

// Rebuild always goes to the source and refreshes the cache entry.
func (s *service) Rebuild(ctx context.Context, reason string) error {
	s.log.Info("rebuild requested", slog.String("reason", reason))
	set, err := s.runtime.Build(ctx)
	if err != nil {
		return fmt.Errorf("rebuild: %w", err)
	}
	if err := s.cache.Set(ingest.CacheKey, *set); err != nil {
		s.log.Warn("store event set in cache", slog.Any("err", err))
	}
	return s.publisher.Publish(ctx, set)
}
