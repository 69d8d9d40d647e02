package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const lastIndexRunKey = "last_index_run"

// IndexRun summarizes a completed index run.
type IndexRun struct {
	Finished time.Time     `json:"finished"`
	Duration time.Duration `json:"duration"`
	Images   int           `json:"images"`
	Removed  int64         `json:"removed"`
}

func (d *Database) metaValue(ctx context.Context, key string) (string, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var value string
	err := d.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (d *Database) setMetaValue(ctx context.Context, key, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// LastIndexRun returns the most recently recorded run. ok is false when no
// run has completed against this database.
func (d *Database) LastIndexRun(ctx context.Context) (run IndexRun, ok bool, err error) {
	value, found, err := d.metaValue(ctx, lastIndexRunKey)
	if err != nil || !found || value == "" {
		return IndexRun{}, false, err
	}
	if err := json.Unmarshal([]byte(value), &run); err != nil {
		return IndexRun{}, false, fmt.Errorf("decode %s: %w", lastIndexRunKey, err)
	}
	return run, true, nil
}

// RecordIndexRun persists run as the last completed index run.
func (d *Database) RecordIndexRun(ctx context.Context, run IndexRun) error {
	b, err := json.Marshal(run)
	if err != nil {
		return err
	}
	return d.setMetaValue(ctx, lastIndexRunKey, string(b))
}
