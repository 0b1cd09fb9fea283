// Package publish hands a built event set to its consumers: the static file
// read by the site and API, the search index, object storage, and change
// notices on the message buses.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/DeafMist/festival-radar/backend/internal/logger"
	"github.com/DeafMist/festival-radar/backend/internal/metrics"
	"github.com/DeafMist/festival-radar/backend/internal/models"
)

// Destination receives a complete event set.
type Destination interface {
	Name() string
	Publish(ctx context.Context, set *models.EventSet) error
}

// Notice is the small message announcing a new event set.
type Notice struct {
	RunID       string         `json:"run_id"`
	GeneratedAt time.Time      `json:"generated_at"`
	Total       int            `json:"total"`
	ByDay       map[string]int `json:"by_day"`
	Duplicates  int            `json:"duplicates"`
}

// NewNotice summarizes set.
func NewNotice(set *models.EventSet) Notice {
	n := Notice{
		RunID:       set.RunID,
		GeneratedAt: set.GeneratedAt,
		Total:       set.Len(),
		ByDay:       make(map[string]int, len(set.ByDay)),
		Duplicates:  len(set.Duplicates),
	}
	for day, evs := range set.ByDay {
		n.ByDay[day] = len(evs)
	}
	return n
}

// Publisher fans an event set out to every destination in order.
type Publisher struct {
	dests []Destination
	log   *slog.Logger
}

func New(log *slog.Logger, dests ...Destination) *Publisher {
	return &Publisher{dests: dests, log: logger.OrDiscard(log)}
}

// Destinations lists the configured destination names.
func (p *Publisher) Destinations() []string {
	names := make([]string, len(p.dests))
	for i, d := range p.dests {
		names[i] = d.Name()
	}
	return names
}

// Publish tries every destination even when an earlier one fails and
// returns the joined errors.
func (p *Publisher) Publish(ctx context.Context, set *models.EventSet) error {
	if set == nil {
		return errors.New("publish: nil event set")
	}
	var errs []error
	for _, d := range p.dests {
		if err := d.Publish(ctx, set); err != nil {
			metrics.PublishFailures.WithLabelValues(d.Name()).Inc()
			p.log.Error("publish failed",
				slog.String("destination", d.Name()),
				slog.String("run_id", set.RunID),
				slog.Any("err", err),
			)
			errs = append(errs, fmt.Errorf("publish to %s: %w", d.Name(), err))
			continue
		}
		p.log.Info("published",
			slog.String("destination", d.Name()),
			slog.String("run_id", set.RunID),
			slog.Int("events", set.Len()),
		)
	}
	return errors.Join(errs...)
}
