package source

import (
	"context"
	"errors"
	"io/fs"
	"net/url"

	"image-hunter/internal/filesystem"
	"image-hunter/internal/hunt"
)

// Spool is a locally readable copy of a source.
type Spool struct {
	Path  string
	Size  int64
	Owned bool // the resolver created it and Cleanup removes it
}

// Resolver turns a locator into a Spool.
type Resolver interface {
	// Name labels the resolver in logs and metrics.
	Name() string
	// CanHandle reports whether the resolver accepts the locator.
	CanHandle(u *url.URL) bool
	// Resolve produces a spool or a *hunt.Error.
	Resolve(ctx context.Context, req *hunt.Request) (Spool, error)
	// Cleanup releases whatever Resolve created.
	Cleanup(s Spool)
}

// Registry holds resolvers in priority order.
type Registry struct {
	resolvers []Resolver
}

// NewRegistry creates a registry that tries resolvers in the given order.
func NewRegistry(resolvers ...Resolver) *Registry {
	return &Registry{resolvers: resolvers}
}

// Register appends a resolver with the lowest priority.
func (r *Registry) Register(res Resolver) {
	r.resolvers = append(r.resolvers, res)
}

// Match returns the first resolver that accepts u, or nil.
func (r *Registry) Match(u *url.URL) Resolver {
	for _, res := range r.resolvers {
		if res.CanHandle(u) {
			return res
		}
	}
	return nil
}

// Resolvers returns all registered resolvers.
func (r *Registry) Resolvers() []Resolver {
	return r.resolvers
}

// statLocal applies the checks shared by Local and Indexed: the file must
// exist, be a regular file, and fit the Exact input limit.
func statLocal(path string, req *hunt.Request, retry filesystem.RetryConfig) (Spool, error) {
	info, err := filesystem.StatWithRetry(path, retry)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Spool{}, hunt.NewError(hunt.ReasonNotFound, path)
		}
		return Spool{}, hunt.Wrap(hunt.ReasonIO, "stat "+path, err)
	}
	if info.IsDir() {
		return Spool{}, hunt.Errorf(hunt.ReasonNotFound, "%s is a directory", path)
	}
	if err := checkInput(req, info.Size()); err != nil {
		return Spool{}, err
	}
	return Spool{Path: path, Size: info.Size()}, nil
}

// checkInput enforces MaxInputBytes. Only Exact options limit input.
func checkInput(req *hunt.Request, size int64) error {
	if !req.Options.IsExact() {
		return nil
	}
	if limit := req.Options.MaxInputBytes(); limit >= 0 && size > limit {
		return hunt.Errorf(hunt.ReasonTooLarge, "%d bytes exceeds limit of %d", size, limit)
	}
	return nil
}
