// Package metrics provides Prometheus instrumentation for image-hunter.
//
// All collectors are registered with the default registry through promauto
// and prefixed with "image_hunter_".
//
// # Metric Categories
//
// ## Hunt Metrics
//
// Track the dispatcher and decode engine:
//   - HuntRequestsTotal: finished hunts by source and status (success, a
//     failure reason label, or canceled)
//   - HuntDuration: submission to terminal outcome, by source
//   - HuntAttempts, HuntFinalQuality, HuntOutputBytes: shape of successful hunts
//   - HuntRetriesTotal: quality step-downs by cause (over_budget, out_of_memory)
//   - HuntPhaseDuration: time spent resolving, probing, decoding, encoding
//   - HuntQueueDepth, HuntInFlight: worker backlog and registry size
//   - HuntDedupTotal, HuntCanceledTotal: coalesced and canceled subscribers
//
// ## Spool Metrics
//
// Remote fetches stream into spool files:
//   - SpoolBytesTotal, SpoolFilesActive, FetchTotal
//
// ## Index Metrics
//
// The SQLite media index and the indexer that fills it:
//   - DBQueryTotal, DBQueryDuration, DBTransactionDuration, DBConnectionsOpen
//   - IndexerRunsTotal, IndexerLastRunTimestamp, IndexerLastRunDuration,
//     IndexerFilesProcessed, IndexerErrors, IndexerIsRunning,
//     IndexerWatcherEventsTotal, IndexerWatchedDirectories
//   - MediaImagesTotal, MediaBytesTotal (refreshed by [Collector])
//
// ## Memory and Filesystem Metrics
//
//   - MemoryUsageRatio, MemoryPaused, MemoryGCPauses, MemoryBudgetBytes,
//     MemoryGuardRejections
//   - Filesystem* collectors are fed through [NewFilesystemObserver] so the
//     filesystem package does not import this one.
//
// # Initialization
//
// Call [InitializeMetrics] once at startup so every label combination is
// exported from the first scrape, even before it is first incremented.
package metrics
