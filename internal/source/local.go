package source

import (
	"context"
	"net/url"

	"image-hunter/internal/filesystem"
	"image-hunter/internal/hunt"
	"image-hunter/internal/logging"
)

// Local resolves file paths in place.
type Local struct {
	retry filesystem.RetryConfig
}

// NewLocal creates the file resolver.
func NewLocal() *Local {
	return &Local{retry: filesystem.DefaultRetryConfig()}
}

// Name implements Resolver.
func (l *Local) Name() string { return "local" }

// CanHandle accepts file: URLs, which include bare paths.
func (l *Local) CanHandle(u *url.URL) bool {
	return u.Scheme == "file" && u.Path != ""
}

// Resolve checks the file and returns it as the spool.
func (l *Local) Resolve(_ context.Context, req *hunt.Request) (Spool, error) {
	spool, err := statLocal(req.Locator.Path, req, l.retry)
	if err != nil {
		return Spool{}, err
	}
	logging.Debug("LocalSource: %s (%d bytes)", spool.Path, spool.Size)
	return spool, nil
}

// Cleanup is a no-op; the caller owns the file.
func (l *Local) Cleanup(Spool) {}
