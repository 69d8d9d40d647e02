package hunt

import (
	"context"
	"encoding/hex"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"image-hunter/internal/options"
)

// InitialQuality is where every request starts recompressing.
const InitialQuality = 100

// ErrEmptyLocator is returned by ParseLocator for blank input.
var ErrEmptyLocator = errors.New("empty locator")

// Request is one unit of work. The retry fields are only touched by the
// goroutine running the decode engine.
type Request struct {
	Raw     string
	Locator *url.URL
	Options options.Options // resolved, no unset fields
	Key     string
	Tag     string
	Started time.Time

	Quality  int
	Attempts int
	LastErr  *Error

	ctx    context.Context
	cancel context.CancelFunc
}

// NewRequest parses locator and derives the key. opts must already be
// resolved; an empty tag gets a fresh one. The request's context is a child
// of parent.
func NewRequest(parent context.Context, tag, locator string, opts options.Options) (*Request, error) {
	u, err := ParseLocator(locator)
	if err != nil {
		return nil, err
	}
	if tag == "" {
		tag = NewTag()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Request{
		Raw:     locator,
		Locator: u,
		Options: opts,
		Key:     Key(locator, opts),
		Tag:     tag,
		Started: time.Now(),
		Quality: InitialQuality,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Context is canceled when the request is.
func (r *Request) Context() context.Context { return r.ctx }

// Cancel stops the request. Safe to call more than once.
func (r *Request) Cancel() { r.cancel() }

// Canceled reports whether Cancel was called or the parent ended.
func (r *Request) Canceled() bool { return r.ctx.Err() != nil }

// StepDown lowers the quality by the request's step and returns the result.
func (r *Request) StepDown() int {
	r.Quality -= r.Options.QualityStep()
	return r.Quality
}

// Cost is the time spent since submission.
func (r *Request) Cost() time.Duration { return time.Since(r.Started) }

// Key derives the dedup key for a locator and resolved options.
func Key(locator string, opts options.Options) string {
	sum := blake2b.Sum256([]byte(locator + "&&" + opts.String()))
	return "KEY:" + hex.EncodeToString(sum[:])
}

// NewTag returns a random request tag.
func NewTag() string {
	return uuid.NewString()
}

// ParseLocator turns a locator into a URL. Anything without a scheme is a
// file path.
func ParseLocator(raw string) (*url.URL, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrEmptyLocator
	}
	u, err := url.Parse(raw)
	// single letter schemes are windows drive letters
	if err != nil || len(u.Scheme) <= 1 {
		return &url.URL{Scheme: "file", Path: raw}, nil
	}
	u.Scheme = strings.ToLower(u.Scheme)
	return u, nil
}
