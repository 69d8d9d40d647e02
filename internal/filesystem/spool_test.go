package filesystem

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCreateAndRemoveSpool(t *testing.T) {
	obs := withObserver(t)
	dir := t.TempDir()

	f, err := CreateSpool(dir, fastConfig())
	if err != nil {
		t.Fatalf("CreateSpool() error = %v", err)
	}
	path := f.Name()
	if _, err := f.WriteString("payload"); err != nil {
		t.Fatal(err)
	}
	f.Close()
	SpoolWritten(7)

	if filepath.Dir(path) != dir {
		t.Errorf("spool created in %s, want %s", filepath.Dir(path), dir)
	}
	if !IsSpoolName(filepath.Base(path)) {
		t.Errorf("spool name %q does not match the spool pattern", filepath.Base(path))
	}
	if obs.spool != 1 || obs.bytes != 7 {
		t.Errorf("observer spool=%d bytes=%d, want 1 and 7", obs.spool, obs.bytes)
	}

	if err := RemoveSpool(path, fastConfig()); err != nil {
		t.Fatalf("RemoveSpool() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("spool still present after RemoveSpool: %v", err)
	}
	if obs.spool != 0 {
		t.Errorf("observer spool=%d after removal, want 0", obs.spool)
	}

	// second removal is a no-op
	if err := RemoveSpool(path, fastConfig()); err != nil {
		t.Errorf("RemoveSpool(gone) error = %v, want nil", err)
	}
}

func TestCreateSpoolUniqueNames(t *testing.T) {
	dir := t.TempDir()
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		f, err := CreateSpool(dir, fastConfig())
		if err != nil {
			t.Fatal(err)
		}
		f.Close()
		if seen[f.Name()] {
			t.Fatalf("duplicate spool name %s", f.Name())
		}
		seen[f.Name()] = true
	}
}

func TestCreateSpoolMissingDir(t *testing.T) {
	if _, err := CreateSpool(filepath.Join(t.TempDir(), "nope"), fastConfig()); err == nil {
		t.Error("CreateSpool() in missing dir succeeded, want error")
	}
}

func TestPurgeSpool(t *testing.T) {
	dir := t.TempDir()
	old := time.Now().Add(-2 * time.Hour)

	write := func(name string, mod time.Time) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
		if err := os.Chtimes(p, mod, mod); err != nil {
			t.Fatal(err)
		}
		return p
	}

	stale := write("hunt-aaa.spool", old)
	fresh := write("hunt-bbb.spool", time.Now())
	foreign := write("notes.txt", old)

	removed, err := PurgeSpool(dir, time.Hour)
	if err != nil {
		t.Fatalf("PurgeSpool() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("PurgeSpool() removed %d, want 1", removed)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale spool file survived")
	}
	for _, p := range []string{fresh, foreign} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("%s was removed: %v", filepath.Base(p), err)
		}
	}
}

func TestEnsureWritableDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	if err := EnsureWritableDir(dir); err != nil {
		t.Fatalf("EnsureWritableDir() error = %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("probe file left behind: %v", entries)
	}
}
