package indexer

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"image-hunter/internal/logging"
	"image-hunter/internal/mediatypes"
	"image-hunter/internal/metrics"
)

// watcher turns filesystem events under the media directory into debounced
// index runs.
type watcher struct {
	idx     *Indexer
	fsw     *fsnotify.Watcher
	watched int
}

func newWatcher(idx *Indexer) (*watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &watcher{idx: idx, fsw: fsw}
	if err := w.addDirectories(idx.mediaDir); err != nil {
		fsw.Close()
		return nil, err
	}
	logging.Info("Watching %d directories for changes", w.watched)
	return w, nil
}

// addDirectories adds root and every non-hidden directory below it.
func (w *watcher) addDirectories(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && isHidden(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			logging.Warn("Failed to watch %s: %v", path, err)
			return nil
		}
		w.watched++
		metrics.IndexerWatchedDirectories.Set(float64(w.watched))
		return nil
	})
}

func (w *watcher) run(ctx context.Context) {
	defer w.fsw.Close()

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.handleEvent(event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.idx.debounce)
			} else {
				timer.Reset(w.idx.debounce)
			}
			pending = timer.C

		case <-pending:
			pending = nil
			w.idx.TriggerIndex()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logging.Error("Watcher error: %v", err)
		}
	}
}

// handleEvent reports whether event should schedule a re-index.
func (w *watcher) handleEvent(event fsnotify.Event) bool {
	name := filepath.Base(event.Name)
	if isHidden(name) {
		return false
	}

	eventType := getEventType(event)
	if eventType == "" {
		return false
	}
	metrics.IndexerWatcherEventsTotal.WithLabelValues(eventType).Inc()

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addDirectories(event.Name); err != nil {
				logging.Warn("Failed to watch new directory %s: %v", event.Name, err)
			}
			return true
		}
	}

	// Removed directories have no extension; schedule those too.
	if filepath.Ext(event.Name) != "" && !mediatypes.IsImage(event.Name) {
		return false
	}
	logging.Debug("File %s: %s", eventType, event.Name)
	return true
}

func getEventType(event fsnotify.Event) string {
	switch {
	case event.Has(fsnotify.Create):
		return "create"
	case event.Has(fsnotify.Write):
		return "write"
	case event.Has(fsnotify.Remove):
		return "remove"
	case event.Has(fsnotify.Rename):
		return "rename"
	default:
		return ""
	}
}
