package indexer

import (
	"context"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/errgroup"

	"image-hunter/internal/database"
	"image-hunter/internal/logging"
	"image-hunter/internal/mediatypes"
)

// walk lists image files under the media directory. Hidden files and
// directories are skipped.
func (idx *Indexer) walk(ctx context.Context) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(idx.mediaDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == idx.mediaDir {
				return err
			}
			logging.Warn("Error accessing %s: %v", path, err)
			return nil
		}
		if ctx.Err() != nil {
			return ErrStopped
		}
		if path != idx.mediaDir && isHidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && mediatypes.IsImage(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", idx.mediaDir, err)
	}
	return paths, nil
}

// probeAll stats and probes paths with a bounded pool. Files that fail to
// probe are logged and left out of the index.
func (idx *Indexer) probeAll(ctx context.Context, paths []string, seen time.Time) ([]database.Media, error) {
	var (
		mu    sync.Mutex
		items = make([]database.Media, 0, len(paths))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.workers)

	for _, path := range paths {
		if gctx.Err() != nil {
			break
		}
		path := path
		g.Go(func() error {
			if gctx.Err() != nil {
				return ErrStopped
			}
			m, err := idx.probe(path, seen)
			if err != nil {
				logging.Debug("Skipping %s: %v", path, err)
				return nil
			}
			mu.Lock()
			items = append(items, m)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ErrStopped
	}
	return items, nil
}

// probe builds the index row for one file.
func (idx *Indexer) probe(path string, seen time.Time) (database.Media, error) {
	info, err := os.Stat(path)
	if err != nil {
		return database.Media{}, err
	}

	rel, err := filepath.Rel(idx.mediaDir, path)
	if err != nil {
		return database.Media{}, err
	}
	rel = filepath.ToSlash(rel)

	b, err := idx.codec.Probe(path)
	if err != nil {
		return database.Media{}, err
	}

	ext := filepath.Ext(path)
	return database.Media{
		Name:      filepath.Base(path),
		Path:      rel,
		Size:      info.Size(),
		ModTime:   info.ModTime(),
		MimeType:  mediatypes.GetMimeType(ext),
		Format:    b.Format,
		Width:     b.Width,
		Height:    b.Height,
		FileHash:  fileHash(rel, info.Size(), info.ModTime()),
		UpdatedAt: seen,
	}, nil
}

// fileHash identifies a file version from its metadata without reading it.
func fileHash(rel string, size int64, modTime time.Time) string {
	sum := blake2b.Sum256(fmt.Appendf(nil, "%s:%d:%d", rel, size, modTime.UnixNano()))
	return hex.EncodeToString(sum[:16])
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
