package metrics

import "image-hunter/internal/hunt"

// Label sets shared with the packages that record them.
var (
	HuntSources  = []string{"local", "remote", "indexed", "none"}
	Volumes      = []string{"media", "spool", "database", "local", "unknown"}
	RetryOps     = []string{"stat", "open", "create", "remove"}
	RetryCauses  = []string{"over_budget", "out_of_memory"}
	HuntPhases   = []string{"resolve", "probe", "decode", "encode", "finalize"}
	DBOperations = []string{"initialize_schema", "upsert_media", "delete_missing", "get_by_id",
		"get_by_path", "calculate_stats", "begin_transaction", "commit", "rollback"}
)

// HuntStatuses lists every status label a finished hunt can carry.
func HuntStatuses() []string {
	statuses := []string{"success", "canceled"}
	for _, r := range hunt.Reasons() {
		statuses = append(statuses, r.Label())
	}
	return statuses
}

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	for _, source := range HuntSources {
		for _, status := range HuntStatuses() {
			HuntRequestsTotal.WithLabelValues(source, status)
		}
		HuntDuration.WithLabelValues(source)
	}

	for _, cause := range RetryCauses {
		HuntRetriesTotal.WithLabelValues(cause)
	}

	for _, phase := range HuntPhases {
		HuntPhaseDuration.WithLabelValues(phase)
	}

	for _, format := range []string{"jpeg", "png", "gif", "webp", "bmp", "tiff", "heif", "svg", "unknown"} {
		HuntDecodeByFormat.WithLabelValues(format)
		MediaImagesTotal.WithLabelValues(format)
	}

	for _, status := range []string{"success", "not_found", "status_error", "transport_error", "too_large", "io_error"} {
		FetchTotal.WithLabelValues(status)
	}

	for _, cause := range []string{"budget", "pressure"} {
		MemoryGuardRejections.WithLabelValues(cause)
	}

	for _, vol := range Volumes {
		for _, op := range RetryOps {
			FilesystemOperationDuration.WithLabelValues(vol, op)
			FilesystemOperationErrors.WithLabelValues(vol, op)
			FilesystemRetryAttempts.WithLabelValues(op, vol)
			FilesystemRetrySuccess.WithLabelValues(op, vol)
			FilesystemRetryFailures.WithLabelValues(op, vol)
			FilesystemStaleErrors.WithLabelValues(op, vol)
			FilesystemRetryDuration.WithLabelValues(op, vol)
		}
	}

	for _, op := range DBOperations {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}

	for _, t := range []string{"commit", "rollback"} {
		DBTransactionDuration.WithLabelValues(t)
	}
}
