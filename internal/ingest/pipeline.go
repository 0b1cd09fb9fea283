// Package ingest runs the build: fetch every source table, map rows onto
// events, drop near-duplicates, resolve assets and partition by day.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/DeafMist/festival-radar/backend/internal/assets"
	"github.com/DeafMist/festival-radar/backend/internal/dedupe"
	"github.com/DeafMist/festival-radar/backend/internal/logger"
	"github.com/DeafMist/festival-radar/backend/internal/metrics"
	"github.com/DeafMist/festival-radar/backend/internal/models"
	"github.com/DeafMist/festival-radar/backend/internal/normalize"
	"github.com/DeafMist/festival-radar/backend/internal/source"
	"github.com/DeafMist/festival-radar/backend/internal/ttlcache"
)

// CacheKey is the aggregate cache entry holding the last event set.
const CacheKey = "festival-events"

// ErrNoData is returned when every table failed.
var ErrNoData = errors.New("no source table could be read")

// Lister reads every row of a table.
type Lister interface {
	FetchAll(ctx context.Context, table source.Table) ([]json.RawMessage, error)
}

// Resolver turns media references into local files.
type Resolver interface {
	Resolve(ctx context.Context, req assets.Request) assets.Result
}

// AuditSink keeps dropped duplicates.
type AuditSink interface {
	Save(runID string, at time.Time, groups []models.DuplicateGroup) error
}

// Options configure a Pipeline.
type Options struct {
	Tables           []source.Table
	Calendar         normalize.Calendar
	Dedup            dedupe.Options
	AssetConcurrency int
	Now              func() time.Time
}

// Pipeline builds event sets. Resolver, audit and raw store are optional.
type Pipeline struct {
	lister   Lister
	mapper   *source.Mapper
	resolver Resolver
	dedup    *dedupe.Deduplicator
	audit    AuditSink
	raw      *RawStore
	opts     Options
	log      *slog.Logger
}

// New wires a pipeline.
func New(opts Options, lister Lister, resolver Resolver, log *slog.Logger) *Pipeline {
	log = logger.OrDiscard(log)
	if len(opts.Tables) == 0 {
		opts.Tables = source.Tables
	}
	if opts.Calendar.Names[0] == "" {
		opts.Calendar = normalize.DefaultCalendar()
	}
	if opts.AssetConcurrency <= 0 {
		opts.AssetConcurrency = 4
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pipeline{
		lister:   lister,
		mapper:   source.NewMapper(opts.Calendar),
		resolver: resolver,
		dedup:    dedupe.New(opts.Dedup, log),
		opts:     opts,
		log:      log,
	}
}

// WithAudit persists dropped duplicates to sink.
func (p *Pipeline) WithAudit(sink AuditSink) *Pipeline {
	p.audit = sink
	return p
}

// WithRawStore enables per-table change detection.
func (p *Pipeline) WithRawStore(raw *RawStore) *Pipeline {
	p.raw = raw
	return p
}

type tableResult struct {
	rows []json.RawMessage
	err  error
}

// fetch reads all tables concurrently. A failing table never cancels the
// others; results come back indexed by table priority.
func (p *Pipeline) fetch(ctx context.Context) ([]tableResult, error) {
	results := make([]tableResult, len(p.opts.Tables))
	var g errgroup.Group
	for i, table := range p.opts.Tables {
		g.Go(func() error {
			rows, err := p.lister.FetchAll(ctx, table)
			results[i] = tableResult{rows: rows, err: err}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// Build runs the whole pipeline once.
func (p *Pipeline) Build(ctx context.Context) (*models.EventSet, error) {
	start := p.opts.Now()
	defer metrics.ObserveBuild(time.Now())

	results, err := p.fetch(ctx)
	if err != nil {
		return nil, err
	}

	set := &models.EventSet{
		RunID:       uuid.NewString(),
		GeneratedAt: start.UTC(),
	}

	var drafts []source.Draft
	failed := 0
	for i, table := range p.opts.Tables {
		res := results[i]
		report := models.TableReport{Table: string(table), Records: len(res.rows)}
		if res.err != nil {
			failed++
			report.Error = res.err.Error()
			p.log.Error("source table skipped", slog.String("table", string(table)), slog.Any("err", res.err))
			set.Tables = append(set.Tables, report)
			continue
		}

		if p.raw != nil {
			changed, err := p.raw.Swap(table, res.rows)
			if err != nil {
				p.log.Warn("raw snapshot", slog.String("table", string(table)), slog.Any("err", err))
			}
			report.Changed = changed
		}

		tableDrafts := p.mapRows(table, res.rows)
		report.Events = len(tableDrafts)
		drafts = append(drafts, tableDrafts...)
		set.Tables = append(set.Tables, report)
	}
	if failed == len(p.opts.Tables) {
		return nil, ErrNoData
	}

	events := make([]models.Event, len(drafts))
	for i, d := range drafts {
		events[i] = d.Event
	}
	kept, groups := p.dedup.Run(events)
	set.Duplicates = groups

	keptDrafts := make([]source.Draft, 0, len(kept))
	byID := make(map[string]source.Draft, len(drafts))
	for _, d := range drafts {
		byID[d.Event.ID] = d
	}
	for _, ev := range kept {
		keptDrafts = append(keptDrafts, byID[ev.ID])
	}

	if err := p.resolveAssets(ctx, keptDrafts); err != nil {
		return nil, err
	}
	for i := range kept {
		kept[i] = keptDrafts[i].Event
	}

	p.partition(set, kept)

	if p.audit != nil && len(groups) > 0 {
		if err := p.audit.Save(set.RunID, start, groups); err != nil {
			p.log.Error("save duplicate audit", slog.Any("err", err))
		}
	}

	p.log.Info("build completed",
		slog.String("run_id", set.RunID),
		slog.Int("events", set.Len()),
		slog.Int("duplicates", len(groups)),
		slog.Int("failed_tables", failed),
	)
	return set, nil
}

func (p *Pipeline) mapRows(table source.Table, rows []json.RawMessage) []source.Draft {
	drafts := make([]source.Draft, 0, len(rows))
	for i, raw := range rows {
		rec, err := source.Decode(table, raw)
		if err == nil {
			var d source.Draft
			d, err = p.mapper.Map(rec)
			if err == nil {
				drafts = append(drafts, d)
				continue
			}
		}
		p.log.Warn("row skipped", slog.String("table", string(table)), slog.Int("row", i), slog.Any("err", err))
	}
	return drafts
}

// resolveAssets fills Image and SpeakerImage with bounded concurrency.
// Each goroutine writes only its own slot, so order is preserved.
func (p *Pipeline) resolveAssets(ctx context.Context, drafts []source.Draft) error {
	if p.resolver == nil {
		return nil
	}
	var g errgroup.Group
	g.SetLimit(p.opts.AssetConcurrency)
	for i := range drafts {
		g.Go(func() error {
			d := &drafts[i]
			res := p.resolver.Resolve(ctx, assets.Request{Type: d.Event.Type, EventID: d.Event.ID, Media: d.Media})
			d.Event.Image = res.Path
			if len(d.SpeakerMedia) > 0 {
				sp := p.resolver.Resolve(ctx, assets.Request{Type: d.Event.Type, EventID: d.Event.ID, Role: "speaker", Media: d.SpeakerMedia})
				d.Event.SpeakerImage = sp.Path
			}
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

// partition groups events under their day label, in calendar order, and
// sorts each day for display. The three festival days are always present.
func (p *Pipeline) partition(set *models.EventSet, events []models.Event) {
	cal := p.opts.Calendar
	set.ByDay = make(map[string][]models.Event)
	for _, ev := range events {
		set.ByDay[ev.DayLabel] = append(set.ByDay[ev.DayLabel], ev)
	}
	for _, d := range models.ScheduledDays {
		label := cal.Label(d)
		if _, ok := set.ByDay[label]; !ok {
			set.ByDay[label] = []models.Event{}
		}
	}

	set.Days = nil
	for _, label := range cal.Labels() {
		evs, ok := set.ByDay[label]
		if !ok {
			continue
		}
		models.SortForDisplay(evs)
		set.Days = append(set.Days, label)
	}

	counts := make(map[models.Type]int, len(models.Types))
	for _, ev := range events {
		counts[ev.Type]++
	}
	for _, t := range models.Types {
		metrics.EventsPublished.WithLabelValues(string(t)).Set(float64(counts[t]))
	}
}

// BuildCached serves the aggregate from cache, rebuilding when it expired.
// If the rebuild fails, the stale set is served.
func (p *Pipeline) BuildCached(ctx context.Context, cache *ttlcache.Cache[models.EventSet]) (ttlcache.Result[models.EventSet], error) {
	return cache.GetOrCompute(ctx, CacheKey, func(ctx context.Context) (models.EventSet, error) {
		set, err := p.Build(ctx)
		if err != nil {
			return models.EventSet{}, err
		}
		return *set, nil
	})
}

// PreflightPDF scans every table for PDF attachments without downloading
// anything. Any fetch error is returned so callers can take the safe path.
func (p *Pipeline) PreflightPDF(ctx context.Context) (bool, int, error) {
	results, err := p.fetch(ctx)
	if err != nil {
		return false, 0, err
	}
	var media [][]models.Media
	for i, table := range p.opts.Tables {
		if results[i].err != nil {
			return false, 0, fmt.Errorf("scan %s: %w", table, results[i].err)
		}
		for _, d := range p.mapRows(table, results[i].rows) {
			media = append(media, d.Media, d.SpeakerMedia)
		}
	}
	return assets.NeedsRasterConversion(media), assets.CountPDF(media), nil
}
