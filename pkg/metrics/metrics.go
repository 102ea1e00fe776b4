package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Intake metrics
	EventsAppliedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stats_events_applied_total",
		Help: "The total number of behavioral events applied to the aggregation cache",
	})
	MalformedEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stats_events_malformed_total",
		Help: "The total number of events skipped because they could not be parsed",
	})

	// Storage metrics
	SavesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stats_storage_saves_total",
		Help: "The total number of player records persisted to the active backend",
	})
	SaveErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stats_storage_save_errors_total",
		Help: "The total number of failed persistence attempts",
	})
	LoadErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stats_storage_load_errors_total",
		Help: "The total number of failed record loads",
	})
	SaveLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stats_storage_save_latency_seconds",
		Help:    "Latency of single-record persistence operations",
		Buckets: prometheus.DefBuckets,
	})
	LegacyRecordsMigratedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stats_storage_legacy_records_migrated_total",
		Help: "The total number of records rewritten from a legacy on-disk format",
	})

	// Backend migration metrics
	BackendMigrationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stats_backend_migrations_total",
		Help: "The total number of completed live backend migrations",
	})
	BackendMigrationFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stats_backend_migration_failures_total",
		Help: "The total number of aborted backend migrations",
	})

	// Ranking metrics
	RankCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stats_rank_cache_hits_total",
		Help: "The total number of top-N queries served from the Redis result cache",
	})
	RankCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stats_rank_cache_misses_total",
		Help: "The total number of top-N queries that fell through to the backend",
	})
)
