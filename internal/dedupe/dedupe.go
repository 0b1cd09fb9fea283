// Package dedupe removes near-duplicate submissions and debounces rebuild
// triggers.
package dedupe

import (
	"log/slog"
	"strings"

	"github.com/DeafMist/festival-radar/backend/internal/logger"
	"github.com/DeafMist/festival-radar/backend/internal/metrics"
	"github.com/DeafMist/festival-radar/backend/internal/models"
	"github.com/DeafMist/festival-radar/backend/internal/similarity"
)

// DefaultThreshold is the minimum similarity for two events to be merged.
const DefaultThreshold = 0.9

// DefaultFields are compared between events. "type" and "day" must match
// exactly; the remaining fields are joined and scored for similarity.
var DefaultFields = []string{"title", "day", "type"}

// Options configure a Deduplicator.
type Options struct {
	Threshold float64
	Fields    []string
}

// Deduplicator drops later-seen events that are near-duplicates of an
// earlier one of the same type (and day, when configured). Dropped events
// are kept in the returned groups for audit.
type Deduplicator struct {
	threshold float64
	fields    []string
	byDay     bool
	log       *slog.Logger
}

// New builds a deduplicator, applying defaults for zero options.
func New(opts Options, log *slog.Logger) *Deduplicator {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if len(opts.Fields) == 0 {
		opts.Fields = DefaultFields
	}
	d := &Deduplicator{threshold: opts.Threshold, log: logger.OrDiscard(log)}
	for _, f := range opts.Fields {
		switch f {
		case "day":
			d.byDay = true
		case "type":
		default:
			d.fields = append(d.fields, f)
		}
	}
	if len(d.fields) == 0 {
		d.fields = []string{"title"}
	}
	return d
}

// Key concatenates the scored text fields of ev; "day" and "type" are
// skipped since they partition events instead. Each field is trimmed so
// trailing whitespace in a submission never separates two copies.
func Key(ev models.Event, fields []string) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		var v string
		switch f {
		case "title":
			v = ev.Title
		case "time":
			v = ev.Time
		case "location":
			v = ev.Location
		case "speaker":
			v = ev.Speaker
		default:
			continue
		}
		parts = append(parts, strings.TrimSpace(v))
	}
	return strings.Join(parts, "|")
}

type bucket struct {
	typ models.Type
	day models.Day
}

func (d *Deduplicator) bucketOf(ev models.Event) bucket {
	b := bucket{typ: ev.Type}
	if d.byDay {
		b.day = ev.Day
	}
	return b
}

type survivor struct {
	index int
	key   string
	group *models.DuplicateGroup
}

// Run is a single sequential pass over events, which must already be in
// table-priority then source order. The result depends only on field values
// and that order. Each event is compared with the survivors of its bucket
// (same type, and same day unless "day" is left out of the fields); when the
// best score reaches the threshold it is dropped and attached to that
// survivor (the earliest one on ties).
func (d *Deduplicator) Run(events []models.Event) ([]models.Event, []models.DuplicateGroup) {
	buckets := make(map[bucket][]*survivor)
	var all []*survivor
	kept := make([]models.Event, 0, len(events))

	for _, ev := range events {
		key := Key(ev, d.fields)
		b := d.bucketOf(ev)

		var best *survivor
		bestScore := 0.0
		for _, s := range buckets[b] {
			score := similarity.Score(key, s.key)
			if score > bestScore {
				best, bestScore = s, score
			}
		}

		if best != nil && bestScore >= d.threshold {
			if best.group == nil {
				survivorEv := kept[best.index]
				best.group = &models.DuplicateGroup{
					SurvivorID:    survivorEv.ID,
					SurvivorTitle: survivorEv.Title,
					Type:          survivorEv.Type,
				}
			}
			best.group.Dropped = append(best.group.Dropped, models.DuplicateCandidate{Event: ev, Score: bestScore})
			metrics.DuplicatesDropped.WithLabelValues(string(ev.Type)).Inc()
			d.log.Info("duplicate dropped",
				slog.String("id", ev.ID),
				slog.String("survivor", best.group.SurvivorID),
				slog.Float64("score", bestScore),
			)
			continue
		}

		s := &survivor{index: len(kept), key: key}
		kept = append(kept, ev)
		buckets[b] = append(buckets[b], s)
		all = append(all, s)
	}

	var groups []models.DuplicateGroup
	for _, s := range all {
		if s.group != nil {
			groups = append(groups, *s.group)
		}
	}
	return kept, groups
}
