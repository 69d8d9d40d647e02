package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"image-hunter/internal/hunt"
)

type fakeIndex struct {
	paths map[string]string
	err   error
	refs  []string
}

func (f *fakeIndex) ResolveMedia(_ context.Context, ref string) (string, error) {
	f.refs = append(f.refs, ref)
	if f.err != nil {
		return "", f.err
	}
	p, ok := f.paths[ref]
	if !ok {
		return "", fmt.Errorf("media %s: %w", ref, fs.ErrNotExist)
	}
	return p, nil
}

func TestReference(t *testing.T) {
	tests := map[string]string{
		"media://42":            "42",
		"media:///albums/a.jpg": "albums/a.jpg",
		"media:albums/b.jpg":    "albums/b.jpg",
		"media:///":             "",
	}
	for raw, want := range tests {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, want, Reference(u), raw)
	}
}

func TestIndexedResolve(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.jpg", 64)
	idx := &fakeIndex{paths: map[string]string{"7": path, "albums/a.jpg": path}}
	x := NewIndexed(idx)

	for _, locator := range []string{"media://7", "media:///albums/a.jpg"} {
		spool, err := x.Resolve(context.Background(), newReq(t, locator, exactOpts(t, 1000)))
		require.NoError(t, err, locator)
		assert.Equal(t, path, spool.Path)
		assert.Equal(t, int64(64), spool.Size)
		assert.False(t, spool.Owned)
	}
	assert.Equal(t, []string{"7", "albums/a.jpg"}, idx.refs)
}

func TestIndexedResolveFailures(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.jpg", 64)

	tests := []struct {
		name    string
		index   *fakeIndex
		locator string
		limit   int64
		want    *hunt.Error
	}{
		{name: "unknown id", index: &fakeIndex{}, locator: "media://99", limit: -1, want: hunt.ErrNotFound},
		{name: "empty reference", index: &fakeIndex{}, locator: "media:///", limit: -1, want: hunt.ErrNotFound},
		{name: "index broken", index: &fakeIndex{err: errors.New("database is locked")}, locator: "media://1", limit: -1, want: hunt.ErrIO},
		{name: "file vanished", index: &fakeIndex{paths: map[string]string{"1": filepath.Join(dir, "gone.jpg")}}, locator: "media://1", limit: -1, want: hunt.ErrNotFound},
		{name: "too large", index: &fakeIndex{paths: map[string]string{"1": path}}, locator: "media://1", limit: 10, want: hunt.ErrTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewIndexed(tt.index).Resolve(context.Background(), newReq(t, tt.locator, exactOpts(t, tt.limit)))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
