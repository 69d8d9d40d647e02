package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_hunter_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "image_hunter_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "image_hunter_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Hunt metrics
var (
	HuntRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_hunter_hunt_requests_total",
			Help: "Total number of finished hunts by source and status",
		},
		[]string{"source", "status"}, // status: "success", reason label, or "canceled"
	)

	HuntDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "image_hunter_hunt_duration_seconds",
			Help:    "Time from submission to terminal outcome",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"source"},
	)

	HuntAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "image_hunter_hunt_attempts",
			Help:    "Decode attempts needed per successful hunt",
			Buckets: []float64{1, 2, 3, 4, 5, 7, 10, 15, 20, 32},
		},
	)

	HuntRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_hunter_hunt_retries_total",
			Help: "Quality step-downs by cause",
		},
		[]string{"reason"}, // "over_budget" or "out_of_memory"
	)

	HuntFinalQuality = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "image_hunter_hunt_final_quality",
			Help:    "Recompression quality of successful hunts",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
	)

	HuntOutputBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "image_hunter_hunt_output_bytes",
			Help:    "Encoded size of successful hunts",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
		},
	)

	HuntPhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "image_hunter_hunt_phase_duration_seconds",
			Help:    "Duration of each decode engine phase",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"phase"}, // "resolve", "probe", "decode", "encode", "finalize"
	)

	HuntQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "image_hunter_hunt_queue_depth",
			Help: "Requests waiting for the worker",
		},
	)

	HuntInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "image_hunter_hunt_inflight",
			Help: "Requests registered and not yet finished",
		},
	)

	HuntDedupTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "image_hunter_hunt_dedup_total",
			Help: "Submissions coalesced into an identical in-flight hunt",
		},
	)

	HuntCanceledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "image_hunter_hunt_canceled_total",
			Help: "Subscribers removed by cancellation",
		},
	)

	HuntDecodeByFormat = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_hunter_hunt_decode_by_format_total",
			Help: "Source images decoded by source format",
		},
		[]string{"format"},
	)
)

// Spool metrics
var (
	SpoolBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "image_hunter_spool_bytes_total",
			Help: "Bytes written to spool files by remote fetches",
		},
	)

	SpoolFilesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "image_hunter_spool_files_active",
			Help: "Spool files currently on disk",
		},
	)

	FetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_hunter_fetch_total",
			Help: "Remote fetches by outcome",
		},
		[]string{"status"},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_hunter_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "image_hunter_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBTransactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "image_hunter_db_transaction_duration_seconds",
			Help:    "Duration of index batch transactions",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		},
		[]string{"type"}, // "commit", "rollback"
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "image_hunter_db_connections_open",
			Help: "Number of open database connections",
		},
	)
)

// Indexer metrics
var (
	IndexerRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "image_hunter_indexer_runs_total",
			Help: "Total number of indexer runs",
		},
	)

	IndexerLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "image_hunter_indexer_last_run_timestamp",
			Help: "Timestamp of the last indexer run",
		},
	)

	IndexerLastRunDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "image_hunter_indexer_last_run_duration_seconds",
			Help: "Duration of the last indexer run in seconds",
		},
	)

	IndexerFilesProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "image_hunter_indexer_files_processed_total",
			Help: "Total number of files processed by the indexer",
		},
	)

	IndexerErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "image_hunter_indexer_errors_total",
			Help: "Total number of indexer errors",
		},
	)

	IndexerIsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "image_hunter_indexer_running",
			Help: "Whether the indexer is currently running (1 = running, 0 = idle)",
		},
	)

	IndexerWatcherEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_hunter_indexer_watcher_events_total",
			Help: "Total number of filesystem watcher events",
		},
		[]string{"event_type"},
	)

	IndexerWatchedDirectories = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "image_hunter_indexer_watched_directories",
			Help: "Number of directories currently being watched",
		},
	)
)

// Media index metrics
var (
	MediaImagesTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "image_hunter_media_images_total",
			Help: "Indexed images by format",
		},
		[]string{"format"},
	)

	MediaBytesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "image_hunter_media_bytes_total",
			Help: "Total size of indexed images",
		},
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "image_hunter_memory_usage_ratio",
			Help: "Heap allocation as a fraction of the memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "image_hunter_memory_paused",
			Help: "Whether decoding is paused by memory pressure (1 = paused)",
		},
	)

	MemoryGCPauses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "image_hunter_memory_gc_pauses_total",
			Help: "Times the critical watermark forced a GC",
		},
	)

	MemoryBudgetBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "image_hunter_memory_budget_bytes",
			Help: "Decode memory budget",
		},
	)

	MemoryGuardRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_hunter_memory_guard_rejections_total",
			Help: "Decodes refused before allocation",
		},
		[]string{"cause"}, // "budget" or "pressure"
	)
)

// Filesystem metrics
var (
	FilesystemOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "image_hunter_filesystem_operation_duration_seconds",
			Help:    "Filesystem operation duration by volume",
			Buckets: []float64{0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"volume", "operation"},
	)

	FilesystemOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_hunter_filesystem_operation_errors_total",
			Help: "Failed filesystem operations by volume",
		},
		[]string{"volume", "operation"},
	)

	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_hunter_filesystem_retry_attempts_total",
			Help: "Retries after a stale NFS file handle",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_hunter_filesystem_retry_success_total",
			Help: "Operations that succeeded after retrying",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_hunter_filesystem_retry_failures_total",
			Help: "Operations that failed after exhausting retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_hunter_filesystem_stale_errors_total",
			Help: "ESTALE errors seen",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "image_hunter_filesystem_retry_duration_seconds",
			Help:    "Total time spent in retrying filesystem operations",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 2},
		},
		[]string{"operation", "volume"},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "image_hunter_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
