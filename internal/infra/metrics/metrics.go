package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "optimade_query_duration_seconds",
			Help:    "Duration of OPTIMADE HTTP queries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"host"},
	)

	QueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optimade_query_errors_total",
			Help: "OPTIMADE queries that failed in transport or JSON decoding",
		},
		[]string{"host", "kind"},
	)

	Resolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optimade_base_url_resolutions_total",
			Help: "Versioned base URL resolutions by outcome",
		},
		[]string{"outcome"},
	)

	StructuresStreamed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optimade_structures_streamed_total",
			Help: "Provider records consumed by structure streams",
		},
		[]string{"provider", "status"},
	)

	ProvidersSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optimade_providers_skipped_total",
			Help: "Providers skipped by aggregate operations",
		},
		[]string{"provider", "reason"},
	)

	StructuresIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "structures_ingested_total",
			Help: "The total number of structures ingested",
		},
		[]string{"provider", "status"},
	)

	StructuresDuplicatesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "structures_duplicates_skipped_total",
			Help: "The total number of structures skipped because they are unchanged",
		},
		[]string{"provider"},
	)

	HarvestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "harvest_batch_duration_seconds",
			Help:    "Duration of harvest batch processing",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	StructureAge = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "structure_age_seconds",
			Help:    "Time since the provider last modified a harvested structure",
			Buckets: prometheus.ExponentialBuckets(3600, 4, 10),
		},
		[]string{"provider"},
	)

	WorkerActiveCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_active_count",
			Help: "Number of workers currently processing jobs",
		},
	)

	StructuresStored = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "structures_stored",
			Help: "Structures stored per provider after the last harvest",
		},
		[]string{"provider"},
	)

	LastFetchedTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "structures_last_fetched_timestamp_seconds",
			Help: "Fetch time of the newest stored structure per provider",
		},
		[]string{"provider"},
	)

	StructuresPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "structures_published_total",
			Help: "Structures published to the event queue",
		},
		[]string{"provider"},
	)

	PublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "structures_publish_errors_total",
			Help: "Failed structure batch publications",
		},
		[]string{"provider"},
	)

	PublishDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "structures_publish_duration_seconds",
			Help:    "Duration of structure batch publications",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	DLQMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_messages_published_total",
			Help: "Total number of messages published to DLQ",
		},
		[]string{"provider"},
	)

	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "engine_sync_duration_seconds",
			Help:    "Duration of storing a structure in the workflow engine profile",
			Buckets: prometheus.DefBuckets,
		},
	)

	SyncErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_sync_errors_total",
			Help: "Total number of workflow engine sync errors",
		},
		[]string{"provider"},
	)

	SyncSuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_structures_synced_total",
			Help: "Total number of structures stored in the workflow engine profile",
		},
		[]string{"provider", "outcome"},
	)
)
