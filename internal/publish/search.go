package publish

import (
	"context"
	"log/slog"
	"time"

	"github.com/DeafMist/festival-radar/backend/internal/logger"
	"github.com/DeafMist/festival-radar/backend/internal/models"
)

// EventIndexer is the subset of the search client used for publishing.
type EventIndexer interface {
	EnsureIndex(ctx context.Context) error
	IndexEvents(ctx context.Context, runID string, at time.Time, events []models.Event) error
	DeleteSupersededRuns(ctx context.Context, runID string) (int64, error)
}

// Search indexes every event and then removes documents of older builds,
// so events dropped from the source disappear from search too.
type Search struct {
	index EventIndexer
	log   *slog.Logger
}

func NewSearch(index EventIndexer, log *slog.Logger) *Search {
	return &Search{index: index, log: logger.OrDiscard(log)}
}

func (s *Search) Name() string { return "elasticsearch" }

func (s *Search) Publish(ctx context.Context, set *models.EventSet) error {
	if err := s.index.EnsureIndex(ctx); err != nil {
		return err
	}
	if err := s.index.IndexEvents(ctx, set.RunID, set.GeneratedAt, set.All()); err != nil {
		return err
	}
	deleted, err := s.index.DeleteSupersededRuns(ctx, set.RunID)
	if err != nil {
		// The new documents are live; stale ones go at the next retention pass.
		s.log.Warn("prune superseded runs", slog.Any("err", err))
		return nil
	}
	if deleted > 0 {
		s.log.Info("pruned superseded events", slog.Int64("deleted", deleted))
	}
	return nil
}
