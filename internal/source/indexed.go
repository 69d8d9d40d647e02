package source

import (
	"context"
	"errors"
	"io/fs"
	"net/url"
	"strings"

	"image-hunter/internal/filesystem"
	"image-hunter/internal/hunt"
	"image-hunter/internal/logging"
)

// Index looks up the file behind a media reference. Implementations return
// an error wrapping fs.ErrNotExist for unknown references.
type Index interface {
	ResolveMedia(ctx context.Context, ref string) (string, error)
}

// Indexed resolves media: locators through the media index.
type Indexed struct {
	index Index
	retry filesystem.RetryConfig
}

// NewIndexed creates the media index resolver.
func NewIndexed(index Index) *Indexed {
	return &Indexed{index: index, retry: filesystem.DefaultRetryConfig()}
}

// Name implements Resolver.
func (x *Indexed) Name() string { return "indexed" }

// CanHandle accepts media:// locators.
func (x *Indexed) CanHandle(u *url.URL) bool {
	return u.Scheme == "media"
}

// Reference extracts the index reference: the host of media://<id>, or the
// path of media:///<relative path>.
func Reference(u *url.URL) string {
	if u.Host != "" {
		return u.Host
	}
	if u.Opaque != "" {
		return u.Opaque
	}
	return strings.TrimPrefix(u.Path, "/")
}

// Resolve looks the reference up and applies the local file checks.
func (x *Indexed) Resolve(ctx context.Context, req *hunt.Request) (Spool, error) {
	ref := Reference(req.Locator)
	if ref == "" {
		return Spool{}, hunt.NewError(hunt.ReasonNotFound, "empty media reference")
	}

	path, err := x.index.ResolveMedia(ctx, ref)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Spool{}, hunt.Errorf(hunt.ReasonNotFound, "media %q is not indexed", ref)
		}
		return Spool{}, hunt.Wrap(hunt.ReasonIO, "media index lookup", err)
	}

	spool, err := statLocal(path, req, x.retry)
	if err != nil {
		return Spool{}, err
	}
	logging.Debug("IndexedSource: %s -> %s (%d bytes)", ref, path, spool.Size)
	return spool, nil
}

// Cleanup is a no-op; indexed files belong to the library.
func (x *Indexed) Cleanup(Spool) {}
