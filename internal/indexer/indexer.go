package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"image-hunter/internal/codec"
	"image-hunter/internal/database"
	"image-hunter/internal/logging"
	"image-hunter/internal/metrics"
	"image-hunter/internal/workers"
)

const (
	// Number of rows written per transaction
	batchSize = 500

	// Delay between batches to allow other operations
	batchDelay = 10 * time.Millisecond

	// Quiet period after a watcher event before re-indexing
	defaultDebounce = 2 * time.Second
)

// ErrStopped is returned by Index once Stop has been called.
var ErrStopped = errors.New("indexer stopped")

// Indexer manages the indexing of images in the media directory.
type Indexer struct {
	db            *database.Database
	codec         codec.Codec
	mediaDir      string
	indexInterval time.Duration
	debounce      time.Duration
	workers       int

	ctx      context.Context
	stop     context.CancelFunc
	stopOnce sync.Once
	trigger  chan struct{}
	wg       sync.WaitGroup

	indexMu              sync.Mutex
	isIndexing           bool
	lastIndexTime        time.Time
	initialIndexComplete bool
	initialIndexError    error
	startTime            time.Time

	filesIndexed  atomic.Int64
	indexProgress atomic.Value

	onIndexComplete func()
}

// IndexProgress tracks the current indexing progress
type IndexProgress struct {
	FilesIndexed int64     `json:"filesIndexed"`
	IsIndexing   bool      `json:"isIndexing"`
	StartedAt    time.Time `json:"startedAt,omitempty"`
}

// HealthStatus contains health check information.
type HealthStatus struct {
	Ready             bool           `json:"ready"`
	Indexing          bool           `json:"indexing"`
	StartTime         time.Time      `json:"startTime"`
	Uptime            string         `json:"uptime"`
	LastIndexed       time.Time      `json:"lastIndexed,omitempty"`
	InitialIndexError string         `json:"initialIndexError,omitempty"`
	FilesIndexed      int64          `json:"filesIndexed"`
	IndexProgress     *IndexProgress `json:"indexProgress,omitempty"`
}

// New creates an Indexer. An indexInterval of zero disables periodic runs.
func New(db *database.Database, c codec.Codec, mediaDir string, indexInterval time.Duration) *Indexer {
	ctx, stop := context.WithCancel(context.Background())
	idx := &Indexer{
		db:            db,
		codec:         c,
		mediaDir:      mediaDir,
		indexInterval: indexInterval,
		debounce:      defaultDebounce,
		workers:       workers.ForIO(8),
		ctx:           ctx,
		stop:          stop,
		trigger:       make(chan struct{}, 1),
		startTime:     time.Now(),
	}
	idx.indexProgress.Store(IndexProgress{})
	return idx
}

// SetDebounce sets the quiet period between a watcher event and the re-index.
func (idx *Indexer) SetDebounce(d time.Duration) {
	if d > 0 {
		idx.debounce = d
	}
}

// SetOnIndexComplete sets a callback to be invoked when indexing completes.
func (idx *Indexer) SetOnIndexComplete(callback func()) {
	idx.onIndexComplete = callback
}

// Start runs the initial index in the background and starts the periodic
// runner and the directory watcher.
func (idx *Indexer) Start() error {
	if run, ok, err := idx.db.LastIndexRun(idx.ctx); err != nil {
		logging.Warn("Failed to read last index run: %v", err)
	} else if ok {
		logging.Info("Last index run: %s (%d images in %v)", run.Finished.Format(time.RFC3339), run.Images, run.Duration)
		idx.indexMu.Lock()
		idx.lastIndexTime = run.Finished
		idx.indexMu.Unlock()
	}

	idx.wg.Add(2)
	go func() {
		defer idx.wg.Done()
		logging.Info("Starting initial index in background...")
		if err := idx.Index(); err != nil && !errors.Is(err, ErrStopped) {
			logging.Error("Initial index error: %v", err)
			idx.indexMu.Lock()
			idx.initialIndexError = err
			idx.indexMu.Unlock()
		}
	}()
	go idx.runLoop()

	w, err := newWatcher(idx)
	if err != nil {
		logging.Warn("File watcher unavailable, relying on periodic index: %v", err)
		return nil
	}
	idx.wg.Add(1)
	go func() {
		defer idx.wg.Done()
		w.run(idx.ctx)
	}()
	return nil
}

// Stop stops the indexer and waits for its goroutines.
func (idx *Indexer) Stop() {
	idx.stopOnce.Do(idx.stop)
	idx.wg.Wait()
}

// TriggerIndex asks for a run soon. Requests made while one is pending are
// merged.
func (idx *Indexer) TriggerIndex() {
	select {
	case idx.trigger <- struct{}{}:
	default:
	}
}

// runLoop serves triggers and the periodic interval.
func (idx *Indexer) runLoop() {
	defer idx.wg.Done()

	var tick <-chan time.Time
	if idx.indexInterval > 0 {
		ticker := time.NewTicker(idx.indexInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-tick:
			logging.Debug("Periodic re-index")
		case <-idx.trigger:
			logging.Debug("Triggered re-index")
		case <-idx.ctx.Done():
			return
		}
		if err := idx.Index(); err != nil && !errors.Is(err, ErrStopped) {
			logging.Error("Re-index failed: %v", err)
		}
	}
}

// IsReady returns true once the first index run has finished.
func (idx *Indexer) IsReady() bool {
	idx.indexMu.Lock()
	defer idx.indexMu.Unlock()
	return idx.initialIndexComplete
}

func (idx *Indexer) getProgress() IndexProgress {
	if progress, ok := idx.indexProgress.Load().(IndexProgress); ok {
		return progress
	}
	return IndexProgress{}
}

// GetHealthStatus returns detailed health information.
func (idx *Indexer) GetHealthStatus() HealthStatus {
	idx.indexMu.Lock()
	defer idx.indexMu.Unlock()

	status := HealthStatus{
		Ready:        idx.initialIndexComplete,
		Indexing:     idx.isIndexing,
		StartTime:    idx.startTime,
		Uptime:       time.Since(idx.startTime).String(),
		LastIndexed:  idx.lastIndexTime,
		FilesIndexed: idx.filesIndexed.Load(),
	}

	if idx.isIndexing {
		progress := idx.getProgress()
		status.IndexProgress = &progress
	}

	if idx.initialIndexError != nil {
		status.InitialIndexError = idx.initialIndexError.Error()
	}

	return status
}

// Index performs a full index of the media directory. A call made while a run
// is in progress returns immediately.
func (idx *Indexer) Index() error {
	if idx.ctx.Err() != nil {
		return ErrStopped
	}
	if !idx.tryStartIndexing() {
		logging.Info("Index already in progress, skipping...")
		return nil
	}
	defer idx.finishIndexing()

	metrics.IndexerIsRunning.Set(1)
	defer metrics.IndexerIsRunning.Set(0)
	metrics.IndexerRunsTotal.Inc()

	startTime := time.Now()
	logging.Info("Starting image indexing of %s", idx.mediaDir)

	idx.filesIndexed.Store(0)
	idx.indexProgress.Store(IndexProgress{IsIndexing: true, StartedAt: startTime})

	paths, err := idx.walk(idx.ctx)
	if err != nil {
		metrics.IndexerErrors.Inc()
		return err
	}

	items, err := idx.probeAll(idx.ctx, paths, startTime)
	if err != nil {
		metrics.IndexerErrors.Inc()
		return err
	}

	removed, err := idx.store(items, startTime)
	if err != nil {
		metrics.IndexerErrors.Inc()
		return err
	}

	idx.finalizeIndex(startTime, len(items), removed)
	return nil
}

// store writes items in batches and removes rows the run did not see.
func (idx *Indexer) store(items []database.Media, startTime time.Time) (int64, error) {
	for i := 0; i < len(items); i += batchSize {
		if idx.ctx.Err() != nil {
			return ErrStopped
		}
		end := min(i+batchSize, len(items))
		if err := idx.processBatch(items[i:end]); err != nil {
			return 0, fmt.Errorf("writing batch %d-%d: %w", i, end, err)
		}
		idx.filesIndexed.Store(int64(end))
		idx.indexProgress.Store(IndexProgress{FilesIndexed: int64(end), IsIndexing: true, StartedAt: startTime})
		if end < len(items) {
			time.Sleep(batchDelay)
		}
	}

	tx, err := idx.db.BeginBatch()
	if err != nil {
		return 0, fmt.Errorf("begin cleanup: %w", err)
	}
	removed, err := idx.db.DeleteMissing(tx, startTime)
	if err := idx.db.EndBatch(tx, err); err != nil {
		return 0, fmt.Errorf("cleanup missing images: %w", err)
	}
	if removed > 0 {
		logging.Info("Removed %d images that no longer exist", removed)
	}
	return removed, nil
}

// processBatch writes a batch in a single transaction.
func (idx *Indexer) processBatch(items []database.Media) error {
	tx, err := idx.db.BeginBatch()
	if err != nil {
		return err
	}
	for i := range items {
		if err = idx.db.UpsertMedia(tx, &items[i]); err != nil {
			break
		}
	}
	return idx.db.EndBatch(tx, err)
}

func (idx *Indexer) tryStartIndexing() bool {
	idx.indexMu.Lock()
	defer idx.indexMu.Unlock()

	if idx.isIndexing {
		return false
	}
	idx.isIndexing = true
	return true
}

func (idx *Indexer) finishIndexing() {
	idx.indexMu.Lock()
	defer idx.indexMu.Unlock()

	idx.isIndexing = false
	idx.initialIndexComplete = true
}

// finalizeIndex records the run and refreshes the cached stats.
func (idx *Indexer) finalizeIndex(startTime time.Time, total int, removed int64) {
	duration := time.Since(startTime)
	now := time.Now()

	idx.indexMu.Lock()
	idx.lastIndexTime = now
	idx.indexMu.Unlock()

	idx.indexProgress.Store(IndexProgress{FilesIndexed: int64(total)})

	stats, err := idx.db.CalculateStats(idx.ctx)
	if err != nil {
		logging.Warn("Failed to calculate index stats: %v", err)
	}
	stats.LastIndexed = now
	stats.IndexDuration = duration.String()
	idx.db.UpdateStats(stats)

	run := database.IndexRun{Finished: now, Duration: duration, Images: total, Removed: removed}
	if err := idx.db.RecordIndexRun(idx.ctx, run); err != nil {
		logging.Warn("Failed to record index run: %v", err)
	}

	metrics.IndexerLastRunTimestamp.Set(float64(now.Unix()))
	metrics.IndexerLastRunDuration.Set(duration.Seconds())
	metrics.IndexerFilesProcessed.Add(float64(total))

	logging.Info("Index complete: %d images in %v", total, duration)

	if idx.onIndexComplete != nil {
		idx.onIndexComplete()
	}
}
