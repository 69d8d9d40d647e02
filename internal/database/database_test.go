package database

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"path/filepath"
	"testing"
	"time"
)

func setupTestDB(t *testing.T) *Database {
	t.Helper()

	dir := t.TempDir()
	db, err := New(context.Background(), filepath.Join(dir, "media.db"), filepath.Join(dir, "media"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return db
}

func insert(t *testing.T, db *Database, seen time.Time, items ...Media) {
	t.Helper()

	tx, err := db.BeginBatch()
	if err != nil {
		t.Fatalf("BeginBatch() error = %v", err)
	}
	for i := range items {
		items[i].UpdatedAt = seen
		if err := db.UpsertMedia(tx, &items[i]); err != nil {
			_ = db.EndBatch(tx, err)
			t.Fatalf("UpsertMedia(%s) error = %v", items[i].Path, err)
		}
	}
	if err := db.EndBatch(tx, nil); err != nil {
		t.Fatalf("EndBatch() error = %v", err)
	}
}

func sample(path, format string, size int64) Media {
	return Media{
		Name:     filepath.Base(path),
		Path:     path,
		Size:     size,
		ModTime:  time.Unix(1_700_000_000, 0),
		MimeType: "image/" + format,
		Format:   format,
		Width:    640,
		Height:   480,
		FileHash: "abc",
	}
}

func TestUpsertAndGet(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	insert(t, db, time.Now(), sample("albums/a.jpg", "jpeg", 100))

	byPath, err := db.GetByPath(ctx, "albums/a.jpg")
	if err != nil {
		t.Fatalf("GetByPath() error = %v", err)
	}
	if byPath.Name != "a.jpg" || byPath.Width != 640 || byPath.Format != "jpeg" {
		t.Errorf("GetByPath() = %+v", byPath)
	}
	if !byPath.ModTime.Equal(time.Unix(1_700_000_000, 0)) {
		t.Errorf("ModTime = %v", byPath.ModTime)
	}

	byID, err := db.GetByID(ctx, byPath.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if byID.Path != byPath.Path {
		t.Errorf("GetByID().Path = %q, want %q", byID.Path, byPath.Path)
	}

	if _, err := db.GetByID(ctx, byPath.ID+100); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("GetByID(missing) error = %v, want sql.ErrNoRows", err)
	}
}

func TestUpsertUpdatesExistingRow(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	insert(t, db, time.Now(), sample("a.jpg", "jpeg", 100))
	first, err := db.GetByPath(ctx, "a.jpg")
	if err != nil {
		t.Fatal(err)
	}

	changed := sample("a.jpg", "png", 250)
	changed.Width = 10
	insert(t, db, time.Now(), changed)

	second, err := db.GetByPath(ctx, "a.jpg")
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != first.ID {
		t.Errorf("upsert changed the id: %d -> %d", first.ID, second.ID)
	}
	if second.Size != 250 || second.Format != "png" || second.Width != 10 {
		t.Errorf("row not updated: %+v", second)
	}
}

func TestEndBatchRollsBack(t *testing.T) {
	db := setupTestDB(t)

	tx, err := db.BeginBatch()
	if err != nil {
		t.Fatal(err)
	}
	m := sample("a.jpg", "jpeg", 1)
	m.UpdatedAt = time.Now()
	if err := db.UpsertMedia(tx, &m); err != nil {
		t.Fatal(err)
	}

	cause := errors.New("walk failed")
	if err := db.EndBatch(tx, cause); !errors.Is(err, cause) {
		t.Errorf("EndBatch() error = %v, want %v", err, cause)
	}
	if _, err := db.GetByPath(context.Background(), "a.jpg"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("row survived rollback: %v", err)
	}
}

func TestDeleteMissing(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	firstRun := time.Unix(1_700_000_000, 0)
	// runs less than a second apart must still be told apart
	secondRun := firstRun.Add(time.Millisecond)

	insert(t, db, firstRun, sample("keep.jpg", "jpeg", 1), sample("gone.jpg", "jpeg", 1))
	insert(t, db, secondRun, sample("keep.jpg", "jpeg", 1))

	tx, err := db.BeginBatch()
	if err != nil {
		t.Fatal(err)
	}
	n, err := db.DeleteMissing(tx, secondRun)
	if err := db.EndBatch(tx, err); err != nil {
		t.Fatalf("DeleteMissing() error = %v", err)
	}
	if n != 1 {
		t.Errorf("DeleteMissing() removed %d rows, want 1", n)
	}

	if _, err := db.GetByPath(ctx, "keep.jpg"); err != nil {
		t.Errorf("keep.jpg was removed: %v", err)
	}
	if _, err := db.GetByPath(ctx, "gone.jpg"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("gone.jpg survived: %v", err)
	}
}

func TestResolveMedia(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	insert(t, db, time.Now(), sample("albums/2024/a.jpg", "jpeg", 1))

	row, err := db.GetByPath(ctx, "albums/2024/a.jpg")
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(db.MediaDir(), "albums", "2024", "a.jpg")

	tests := []struct {
		name    string
		ref     string
		want    string
		missing bool
	}{
		{name: "by id", ref: "1", want: want},
		{name: "by path", ref: "albums/2024/a.jpg", want: want},
		{name: "leading slash", ref: "/albums/2024/a.jpg", want: want},
		{name: "redundant segments", ref: "albums/./2024//a.jpg", want: want},
		{name: "unknown id", ref: "42", missing: true},
		{name: "unknown path", ref: "albums/b.jpg", missing: true},
		{name: "escape attempt", ref: "../../etc/passwd", missing: true},
		{name: "root", ref: "/", missing: true},
	}

	if row.ID != 1 {
		t.Fatalf("first row id = %d, want 1", row.ID)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := db.ResolveMedia(ctx, tt.ref)
			if tt.missing {
				if !errors.Is(err, fs.ErrNotExist) {
					t.Errorf("ResolveMedia(%q) error = %v, want fs.ErrNotExist", tt.ref, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveMedia(%q) error = %v", tt.ref, err)
			}
			if got != tt.want {
				t.Errorf("ResolveMedia(%q) = %q, want %q", tt.ref, got, tt.want)
			}
		})
	}
}

func TestCalculateStats(t *testing.T) {
	db := setupTestDB(t)

	stats, err := db.CalculateStats(context.Background())
	if err != nil {
		t.Fatalf("CalculateStats() on empty index error = %v", err)
	}
	if stats.TotalImages != 0 || stats.TotalBytes != 0 || len(stats.ByFormat) != 0 {
		t.Errorf("empty stats = %+v", stats)
	}

	insert(t, db, time.Now(),
		sample("a.jpg", "jpeg", 100),
		sample("b.jpg", "jpeg", 200),
		sample("c.png", "png", 50),
		sample("d.bin", "", 5),
	)

	stats, err = db.CalculateStats(context.Background())
	if err != nil {
		t.Fatalf("CalculateStats() error = %v", err)
	}
	if stats.TotalImages != 4 {
		t.Errorf("TotalImages = %d, want 4", stats.TotalImages)
	}
	if stats.TotalBytes != 355 {
		t.Errorf("TotalBytes = %d, want 355", stats.TotalBytes)
	}
	want := map[string]int{"jpeg": 2, "png": 1, "unknown": 1}
	for format, n := range want {
		if stats.ByFormat[format] != n {
			t.Errorf("ByFormat[%s] = %d, want %d", format, stats.ByFormat[format], n)
		}
	}
}

func TestCachedStats(t *testing.T) {
	db := setupTestDB(t)

	db.UpdateStats(IndexStats{TotalImages: 3, TotalBytes: 30, ByFormat: map[string]int{"jpeg": 3}})

	if got := db.GetStats().TotalImages; got != 3 {
		t.Errorf("GetStats().TotalImages = %d, want 3", got)
	}

	snapshot := db.MetricsProvider().GetStats()
	if snapshot.TotalImages != 3 || snapshot.TotalBytes != 30 || snapshot.ByFormat["jpeg"] != 3 {
		t.Errorf("MetricsProvider().GetStats() = %+v", snapshot)
	}
}

func TestIndexRunRecord(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, ok, err := db.LastIndexRun(ctx); err != nil || ok {
		t.Fatalf("LastIndexRun() before any run = ok %v, err %v; want no run", ok, err)
	}

	want := IndexRun{
		Finished: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Duration: 1500 * time.Millisecond,
		Images:   42,
		Removed:  3,
	}
	if err := db.RecordIndexRun(ctx, want); err != nil {
		t.Fatal(err)
	}
	got, ok, err := db.LastIndexRun(ctx)
	if err != nil || !ok {
		t.Fatalf("LastIndexRun() = ok %v, err %v", ok, err)
	}
	if !got.Finished.Equal(want.Finished) || got.Duration != want.Duration ||
		got.Images != want.Images || got.Removed != want.Removed {
		t.Errorf("LastIndexRun() = %+v, want %+v", got, want)
	}

	next := want
	next.Images = 40
	if err := db.RecordIndexRun(ctx, next); err != nil {
		t.Fatal(err)
	}
	if got, _, _ := db.LastIndexRun(ctx); got.Images != 40 {
		t.Errorf("overwritten run images = %d, want 40", got.Images)
	}
}

func TestNewFailsOnMissingDirectory(t *testing.T) {
	_, err := New(context.Background(), filepath.Join(t.TempDir(), "no", "such", "media.db"), "")
	if err == nil {
		t.Error("New() in a missing directory should fail")
	}
}

// TestRecordQuery tests the recordQuery helper function.
func TestRecordQuery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		operation string
		err       error
	}{
		{name: "successful query", operation: "get_by_id", err: nil},
		{name: "failed query", operation: "get_by_id", err: errors.New("test error")},
		{name: "empty operation name", operation: "", err: nil},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			// should not panic
			recordQuery(tt.operation, time.Now(), tt.err)
		})
	}
}
