// Package metrics holds the Prometheus collectors shared by the build
// pipeline and the API.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SourceRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "festival_source_records_total",
			Help: "Raw records fetched from the source API",
		},
		[]string{"table"},
	)

	SourceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "festival_source_failures_total",
			Help: "Source tables skipped because of a fetch or schema error",
		},
		[]string{"table"},
	)

	// outcome: cached, downloaded, converted, placeholder, empty
	AssetsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "festival_assets_resolved_total",
			Help: "Assets resolved by outcome",
		},
		[]string{"outcome"},
	)

	DuplicatesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "festival_duplicates_dropped_total",
			Help: "Near-duplicate events dropped by deduplication",
		},
		[]string{"type"},
	)

	// result: hit, miss, stale, corrupt
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "festival_cache_lookups_total",
			Help: "Aggregate cache lookups by result",
		},
		[]string{"result"},
	)

	BuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "festival_build_duration_seconds",
			Help:    "Duration of a full ingestion run",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	EventsPublished = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "festival_events_published",
			Help: "Events in the last published set, by type",
		},
		[]string{"type"},
	)

	PublishFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "festival_publish_failures_total",
			Help: "Publish attempts that failed, by destination",
		},
		[]string{"destination"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "festival_api_request_duration_seconds",
			Help:    "API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "status"},
	)
)

// ObserveBuild records the duration of a build started at start.
func ObserveBuild(start time.Time) {
	BuildDuration.Observe(time.Since(start).Seconds())
}
