package filesystem

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"image-hunter/internal/logging"
)

const (
	spoolPrefix = "hunt-"
	spoolSuffix = ".spool"
)

// IsSpoolName reports whether name looks like a file made by CreateSpool.
func IsSpoolName(name string) bool {
	return strings.HasPrefix(name, spoolPrefix) && strings.HasSuffix(name, spoolSuffix)
}

// CreateSpool creates a uniquely named, empty spool file in dir.
func CreateSpool(dir string, config RetryConfig) (*os.File, error) {
	path := filepath.Join(dir, spoolPrefix+uuid.NewString()+spoolSuffix)
	f, err := withRetry("create", path, config, func() (*os.File, error) {
		return os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	})
	if err != nil {
		return nil, fmt.Errorf("create spool in %s: %w", dir, err)
	}
	observe().ObserveSpool(1, 0)
	return f, nil
}

// SpoolWritten records the final size of a spool file.
func SpoolWritten(n int64) {
	observe().ObserveSpool(0, n)
}

// RemoveSpool deletes a spool file. A file that is already gone is not an error.
func RemoveSpool(path string, config RetryConfig) error {
	_, err := withRetry("remove", path, config, func() (struct{}, error) {
		return struct{}{}, os.Remove(path)
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove spool %s: %w", filepath.Base(path), err)
	}
	if err == nil {
		observe().ObserveSpool(-1, 0)
	}
	return nil
}

// PurgeSpool removes spool files in dir last modified before olderThan ago,
// left behind by a crash. Other files are never touched.
func PurgeSpool(dir string, olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read spool dir: %w", err)
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !IsSpoolName(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			logging.Warn("Failed to purge spool file %s: %v", entry.Name(), err)
			continue
		}
		removed++
	}

	if removed > 0 {
		logging.Info("Purged %d stale spool files from %s", removed, dir)
	}
	return removed, nil
}

// EnsureWritableDir creates dir if needed and proves it accepts new files.
func EnsureWritableDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	probe, err := os.CreateTemp(dir, ".write-test-*")
	if err != nil {
		return fmt.Errorf("%s is not writable: %w", dir, err)
	}
	name := probe.Name()
	_ = probe.Close()
	return os.Remove(name)
}
