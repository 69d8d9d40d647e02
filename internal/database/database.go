package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"image-hunter/internal/logging"
	"image-hunter/internal/metrics"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

// Database manages the media index.
type Database struct {
	db       *sql.DB
	dbPath   string
	mediaDir string
	mu       sync.RWMutex
	stats    IndexStats
	statsMu  sync.RWMutex
	txStart  time.Time // Track transaction start time for metrics
}

// New opens the index at dbPath. Paths stored in the index are relative to
// mediaDir.
// IMPORTANT: dbPath should be the full path to the database FILE (e.g., "/database/media.db"),
// and the parent directory must already exist and be writable.
func New(ctx context.Context, dbPath, mediaDir string) (*Database, error) {
	logging.Info("Database path: %s", dbPath)

	// Diagnose potential permission issues
	if err := diagnoseDatabasePermissions(dbPath); err != nil {
		logging.Warn("Database permission diagnostics: %v", err)
	}

	// busy_timeout helps prevent "database is locked" errors
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000&_temp_store=MEMORY&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(time.Hour)

	d := &Database{
		db:       db,
		dbPath:   dbPath,
		mediaDir: mediaDir,
	}

	if err := d.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	logging.Info("Database initialized successfully at %s", dbPath)
	return d, nil
}

func (d *Database) initialize(ctx context.Context) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("initialize_schema", start, err) }()

	schema := `
	CREATE TABLE IF NOT EXISTS media (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		path TEXT NOT NULL UNIQUE,
		size INTEGER NOT NULL DEFAULT 0,
		mod_time INTEGER NOT NULL,
		mime_type TEXT,
		format TEXT,
		width INTEGER NOT NULL DEFAULT 0,
		height INTEGER NOT NULL DEFAULT 0,
		file_hash TEXT,
		updated_at INTEGER NOT NULL -- unix nanoseconds of the last run that saw the file
	);

	CREATE INDEX IF NOT EXISTS idx_media_updated_at ON media(updated_at);
	CREATE INDEX IF NOT EXISTS idx_media_format ON media(format);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT
	);
	`

	_, err = d.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// MediaDir is the directory stored paths are relative to.
func (d *Database) MediaDir() string { return d.mediaDir }

// BeginBatch starts a transaction for batch operations.
// The caller is responsible for calling EndBatch when done.
func (d *Database) BeginBatch() (*sql.Tx, error) {
	d.mu.Lock()
	txStart := time.Now()

	// Transaction lifetime is managed by EndBatch, not a timeout.
	tx, err := d.db.BeginTx(context.Background(), nil)
	d.mu.Unlock()

	recordQuery("begin_transaction", txStart, err)
	if err != nil {
		return nil, err
	}

	d.txStart = txStart
	return tx, nil
}

// EndBatch commits or rolls back a transaction.
func (d *Database) EndBatch(tx *sql.Tx, err error) error {
	duration := time.Since(d.txStart).Seconds()

	if err != nil {
		metrics.DBTransactionDuration.WithLabelValues("rollback").Observe(duration)
		start := time.Now()
		rbErr := tx.Rollback()
		recordQuery("rollback", start, rbErr)
		if rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback also failed: %w", rbErr))
		}
		return err
	}

	metrics.DBTransactionDuration.WithLabelValues("commit").Observe(duration)
	start := time.Now()
	err = tx.Commit()
	recordQuery("commit", start, err)
	return err
}

// UpsertMedia inserts or updates an image record within a transaction.
func (d *Database) UpsertMedia(tx *sql.Tx, m *Media) error {
	start := time.Now()
	query := `
	INSERT INTO media (name, path, size, mod_time, mime_type, format, width, height, file_hash, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(path) DO UPDATE SET
		name = excluded.name,
		size = excluded.size,
		mod_time = excluded.mod_time,
		mime_type = excluded.mime_type,
		format = excluded.format,
		width = excluded.width,
		height = excluded.height,
		file_hash = excluded.file_hash,
		updated_at = excluded.updated_at
	`

	// The transaction itself controls the operation's lifecycle.
	_, err := tx.ExecContext(context.Background(), query,
		m.Name,
		m.Path,
		m.Size,
		m.ModTime.Unix(),
		m.MimeType,
		m.Format,
		m.Width,
		m.Height,
		m.FileHash,
		m.UpdatedAt.UnixNano(),
	)
	recordQuery("upsert_media", start, err)
	return err
}

// DeleteMissing removes images the run that started at cutoff did not see.
// Must be called within a transaction.
func (d *Database) DeleteMissing(tx *sql.Tx, cutoff time.Time) (int64, error) {
	start := time.Now()
	result, err := tx.ExecContext(context.Background(),
		"DELETE FROM media WHERE updated_at < ?",
		cutoff.UnixNano(),
	)
	if err != nil {
		recordQuery("delete_missing", start, err)
		return 0, err
	}

	rows, err := result.RowsAffected()
	recordQuery("delete_missing", start, err)
	return rows, err
}

const selectMedia = `
	SELECT id, name, path, size, mod_time, COALESCE(mime_type, ''), COALESCE(format, ''),
		width, height, COALESCE(file_hash, ''), updated_at
	FROM media`

func scanMedia(row *sql.Row) (*Media, error) {
	var m Media
	var modTime, updatedAt int64
	err := row.Scan(&m.ID, &m.Name, &m.Path, &m.Size, &modTime, &m.MimeType, &m.Format,
		&m.Width, &m.Height, &m.FileHash, &updatedAt)
	if err != nil {
		return nil, err
	}
	m.ModTime = time.Unix(modTime, 0)
	m.UpdatedAt = time.Unix(0, updatedAt)
	return &m, nil
}

// GetByID retrieves an image by id. Returns sql.ErrNoRows when absent.
func (d *Database) GetByID(ctx context.Context, id int64) (*Media, error) {
	start := time.Now()
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	m, err := scanMedia(d.db.QueryRowContext(ctx, selectMedia+" WHERE id = ?", id))
	recordQuery("get_by_id", start, ignoreNoRows(err))
	return m, err
}

// GetByPath retrieves an image by its relative path. Returns sql.ErrNoRows
// when absent.
func (d *Database) GetByPath(ctx context.Context, relPath string) (*Media, error) {
	start := time.Now()
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	m, err := scanMedia(d.db.QueryRowContext(ctx, selectMedia+" WHERE path = ?", relPath))
	recordQuery("get_by_path", start, ignoreNoRows(err))
	return m, err
}

// ResolveMedia maps a media reference, either a numeric id or a path
// relative to the media directory, to an absolute file path. Unknown
// references wrap fs.ErrNotExist.
func (d *Database) ResolveMedia(ctx context.Context, ref string) (string, error) {
	var m *Media
	var err error

	if id, convErr := strconv.ParseInt(ref, 10, 64); convErr == nil {
		m, err = d.GetByID(ctx, id)
	} else {
		rel, ok := cleanRelative(ref)
		if !ok {
			return "", fmt.Errorf("media %q: %w", ref, fs.ErrNotExist)
		}
		m, err = d.GetByPath(ctx, rel)
	}

	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("media %q: %w", ref, fs.ErrNotExist)
	}
	if err != nil {
		return "", fmt.Errorf("media %q: %w", ref, err)
	}
	return filepath.Join(d.mediaDir, filepath.FromSlash(m.Path)), nil
}

// cleanRelative normalizes a slash separated path relative to the media
// directory. Rooting it first means ".." can never climb out.
func cleanRelative(ref string) (string, bool) {
	p := strings.TrimPrefix(path.Clean("/"+filepath.ToSlash(ref)), "/")
	return p, p != ""
}

// UpdateStats updates the cached statistics.
func (d *Database) UpdateStats(stats IndexStats) {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	d.stats = stats
}

// GetStats returns the current index statistics.
func (d *Database) GetStats() IndexStats {
	d.statsMu.RLock()
	defer d.statsMu.RUnlock()
	return d.stats
}

// MetricsProvider exposes the cached statistics to a metrics.Collector.
func (d *Database) MetricsProvider() metrics.StatsProvider {
	return metrics.StatsFunc(func() metrics.Stats {
		s := d.GetStats()
		return metrics.Stats{TotalImages: s.TotalImages, TotalBytes: s.TotalBytes, ByFormat: s.ByFormat}
	})
}

// recordQuery records database query metrics
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(duration)
}

func ignoreNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	return err
}

// UpdateDBMetrics updates database connection metrics
func (d *Database) UpdateDBMetrics() {
	stats := d.db.Stats()
	metrics.DBConnectionsOpen.Set(float64(stats.OpenConnections))
}

// diagnoseDatabasePermissions checks database directory and file permissions
func diagnoseDatabasePermissions(dbPath string) error {
	dir := filepath.Dir(dbPath)

	dirInfo, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot stat database directory: %w", err)
	}

	logging.Debug("Database directory: %s (mode: %v)", dir, dirInfo.Mode())

	testFile := filepath.Join(dir, ".perm-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("database directory not writable: %w", err)
	}
	_ = os.Remove(testFile)

	for _, p := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		logging.Debug("Database file exists: %s (mode: %v, size: %d bytes)", p, info.Mode(), info.Size())
		if info.Mode().Perm()&0o200 != 0 {
			continue
		}
		logging.Warn("%s is read-only! Mode: %v - this will cause write failures", p, info.Mode())
		if p == dbPath {
			continue
		}
		if chmodErr := os.Chmod(p, 0o600); chmodErr != nil {
			logging.Error("Failed to fix permissions on %s: %v", p, chmodErr)
		} else {
			logging.Info("Fixed permissions on %s", p)
		}
	}

	return nil
}
