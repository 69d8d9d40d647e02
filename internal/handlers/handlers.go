package handlers

import (
	"context"
	"sync"
	"time"

	"image-hunter/internal/database"
	"image-hunter/internal/engine"
	"image-hunter/internal/indexer"
	"image-hunter/internal/options"
)

// Hunter runs hunts on behalf of HTTP requests.
type Hunter interface {
	HuntBlockingWithOptions(ctx context.Context, tag, locator string, opts options.Options) (*engine.Result, error)
	DefaultOptions() options.Options
	Cancel(tag string)
	InFlight() int
}

// IndexStatus is the part of the indexer the handlers report on and drive.
type IndexStatus interface {
	IsReady() bool
	GetHealthStatus() indexer.HealthStatus
	TriggerIndex()
}

// MediaStore looks up indexed media.
type MediaStore interface {
	GetByID(ctx context.Context, id int64) (*database.Media, error)
	GetStats() database.IndexStats
}

// Handlers serves the HTTP API.
type Handlers struct {
	hunter      Hunter
	indexer     IndexStatus
	store       MediaStore
	huntTimeout time.Duration

	// tags in use by running hunts. A tag belongs to one request at a time
	// so DELETE /api/hunt/{tag} reaches only that request.
	tagsMu sync.Mutex
	tags   map[string]struct{}
}

// DefaultHuntTimeout bounds a single blocking hunt request.
const DefaultHuntTimeout = 2 * time.Minute

// New creates the handlers. A huntTimeout of zero means DefaultHuntTimeout.
func New(hunter Hunter, idx IndexStatus, store MediaStore, huntTimeout time.Duration) *Handlers {
	if huntTimeout <= 0 {
		huntTimeout = DefaultHuntTimeout
	}
	return &Handlers{
		hunter:      hunter,
		indexer:     idx,
		store:       store,
		huntTimeout: huntTimeout,
		tags:        make(map[string]struct{}),
	}
}

func (h *Handlers) reserveTag(tag string) bool {
	h.tagsMu.Lock()
	defer h.tagsMu.Unlock()
	if _, busy := h.tags[tag]; busy {
		return false
	}
	h.tags[tag] = struct{}{}
	return true
}

func (h *Handlers) releaseTag(tag string) {
	h.tagsMu.Lock()
	delete(h.tags, tag)
	h.tagsMu.Unlock()
}
