package engine

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"time"

	"image-hunter/internal/codec"
	"image-hunter/internal/hunt"
	"image-hunter/internal/logging"
	"image-hunter/internal/memory"
	"image-hunter/internal/metrics"
)

// DefaultMaxAttempts caps allocation-failure retries per request. Over-budget
// step-downs end at the quality floor instead.
const DefaultMaxAttempts = 32

// errOverOutput marks an attempt whose encoded size missed the budget.
var errOverOutput = errors.New("encoded size over budget")

// Config configures an Engine.
type Config struct {
	Codec       codec.Codec
	Budget      *memory.Budget // nil disables the decode guard
	MaxAttempts int            // allocation failures tolerated; <= 0 means DefaultMaxAttempts
}

// Engine turns a spooled source into an image that fits the request's options.
// It holds no per-request state and may be reused across requests.
type Engine struct {
	codec       codec.Codec
	budget      *memory.Budget
	maxAttempts int
	forceGC     func()
}

// Result is the outcome of a successful run.
type Result struct {
	Image    image.Image
	Encoded  []byte
	Metadata hunt.Metadata
}

// New creates an Engine.
func New(cfg Config) *Engine {
	if cfg.Codec == nil {
		panic("engine: nil codec")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	return &Engine{
		codec:       cfg.Codec,
		budget:      cfg.Budget,
		maxAttempts: cfg.MaxAttempts,
		forceGC:     memory.ForceGC,
	}
}

// MaxAttempts returns the allocation-failure cap.
func (e *Engine) MaxAttempts() int { return e.maxAttempts }

// Subsample picks the integer decode factor for bounds and a target longest
// edge. A target of 0 disables subsampling.
func Subsample(b codec.Bounds, target int) int {
	if target <= 0 || (b.Width <= target && b.Height <= target) {
		return 1
	}
	s := b.Longest() / target
	if s < 1 {
		return 1
	}
	return s
}

// Run drives req through probe, decode and recompression against the file at
// path. It returns a *hunt.Error for failures and hunt.ErrCanceled when the
// request's context ends between attempts. req's retry fields are updated.
func (e *Engine) Run(req *hunt.Request, path string) (*Result, error) {
	if step := req.Options.QualityStep(); step <= 0 {
		return nil, hunt.Errorf(hunt.ReasonCannotDecode, "quality step %d", step)
	}

	bounds, err := e.probe(path)
	if err != nil {
		return nil, err
	}
	metrics.HuntDecodeByFormat.WithLabelValues(bounds.Format).Inc()

	s := Subsample(bounds, req.Options.MaxDimension())
	w, h := codec.SubsampledSize(bounds.Width, bounds.Height, s)
	need := e.codec.DecodeFootprint(bounds, s)

	logging.Debug("Engine: %s is %dx%d %s, subsample %d -> %dx%d, decode needs %d bytes, output budget %d bytes",
		req.Tag, bounds.Width, bounds.Height, bounds.Format, s, w, h, need, req.Options.MaxOutputBytes())

	// Each pass lowers quality by at least one, so the floor ends the loop.
	allocFailures := 0
	for {
		if req.Canceled() {
			logging.Debug("Engine: %s canceled after %d attempts", req.Tag, req.Attempts)
			return nil, hunt.ErrCanceled
		}
		req.Attempts++

		encoded, err := e.attempt(req, path, s, need)
		if err == nil {
			return e.finish(req, bounds, s, encoded)
		}

		switch {
		case errors.Is(err, errOverOutput):
			metrics.HuntRetriesTotal.WithLabelValues("over_budget").Inc()
			logging.Debug("Engine: %s attempt %d at quality %d: %v", req.Tag, req.Attempts, req.Quality, err)
		case isAllocation(err):
			metrics.HuntRetriesTotal.WithLabelValues("out_of_memory").Inc()
			req.LastErr = hunt.Wrap(hunt.ReasonOutOfMemory, fmt.Sprintf("quality %d", req.Quality), err)
			logging.Warn("Engine: %s attempt %d at quality %d: %v", req.Tag, req.Attempts, req.Quality, err)
			e.forceGC()
			allocFailures++
			if allocFailures >= e.maxAttempts {
				return nil, e.exhausted(req, fmt.Sprintf("gave up after %d allocation failures", allocFailures))
			}
		default:
			return nil, err
		}

		if q := req.StepDown(); q <= 0 {
			return nil, e.exhausted(req, "cannot satisfy output budget")
		}
	}
}

// attempt decodes, encodes and checks one quality level. The decoded buffer
// does not outlive the call.
func (e *Engine) attempt(req *hunt.Request, path string, s int, need int64) ([]byte, error) {
	if e.budget != nil {
		if err := e.budget.Allow(need); err != nil {
			return nil, err
		}
	}

	done := phase("decode")
	img, err := e.codec.Decode(path, s)
	done()
	if err != nil {
		if isAllocation(err) {
			return nil, err
		}
		return nil, hunt.Wrap(hunt.ReasonCannotDecode, "decode", err)
	}
	if img == nil {
		return nil, hunt.NewError(hunt.ReasonCannotDecode, "decoder returned no image")
	}

	var buf bytes.Buffer
	done = phase("encode")
	err = e.codec.Encode(&buf, img, req.Options.Format(), req.Quality)
	done()
	if err != nil {
		switch {
		case isAllocation(err):
			return nil, err
		case errors.Is(err, codec.ErrUnsupportedFormat):
			return nil, hunt.Wrap(hunt.ReasonUnsupportedFormat, req.Options.Format().String(), err)
		default:
			return nil, hunt.Wrap(hunt.ReasonCannotDecode, "encode", err)
		}
	}

	if limit := req.Options.MaxOutputBytes(); int64(buf.Len()) > limit {
		return nil, fmt.Errorf("%w: %d > %d bytes", errOverOutput, buf.Len(), limit)
	}
	return buf.Bytes(), nil
}

// finish decodes the accepted artifact into the image handed to callers.
func (e *Engine) finish(req *hunt.Request, bounds codec.Bounds, s int, encoded []byte) (*Result, error) {
	done := phase("finalize")
	img, err := e.codec.DecodeBytes(encoded)
	done()
	if err != nil {
		return nil, hunt.Wrap(hunt.ReasonCannotDecode, "decode output", err)
	}
	if img == nil {
		return nil, hunt.NewError(hunt.ReasonCannotDecode, "output decoded to no image")
	}

	size := img.Bounds().Size()
	meta := hunt.Metadata{
		SourceFormat: bounds.Format,
		SourceWidth:  bounds.Width,
		SourceHeight: bounds.Height,
		Width:        size.X,
		Height:       size.Y,
		Subsample:    s,
		Quality:      req.Quality,
		Attempts:     req.Attempts,
		Bytes:        len(encoded),
		Format:       req.Options.Format(),
		Cost:         req.Cost(),
	}

	metrics.HuntAttempts.Observe(float64(req.Attempts))
	metrics.HuntFinalQuality.Observe(float64(req.Quality))
	metrics.HuntOutputBytes.Observe(float64(len(encoded)))
	logging.Debug("Engine: %s done in %d attempts, quality %d, %d bytes, %v",
		req.Tag, req.Attempts, req.Quality, len(encoded), meta.Cost)

	return &Result{Image: img, Encoded: encoded, Metadata: meta}, nil
}

func (e *Engine) probe(path string) (codec.Bounds, error) {
	done := phase("probe")
	defer done()

	b, err := e.codec.Probe(path)
	if err != nil {
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) && !errors.Is(err, codec.ErrCorrupt) {
			return codec.Bounds{}, hunt.Wrap(hunt.ReasonIO, "open source", err)
		}
		return codec.Bounds{}, hunt.Wrap(hunt.ReasonCannotDecode, "probe", err)
	}
	if b.Width <= 0 || b.Height <= 0 {
		return codec.Bounds{}, hunt.Errorf(hunt.ReasonCannotDecode, "bad dimensions %dx%d", b.Width, b.Height)
	}
	return b, nil
}

// exhausted reports the best known failure, or CannotDecode with extra.
func (e *Engine) exhausted(req *hunt.Request, extra string) *hunt.Error {
	if req.LastErr != nil {
		return req.LastErr
	}
	return hunt.NewError(hunt.ReasonCannotDecode, extra)
}

func isAllocation(err error) bool {
	return errors.Is(err, codec.ErrAllocation) ||
		errors.Is(err, memory.ErrOverBudget) ||
		errors.Is(err, memory.ErrPressure)
}

func phase(name string) func() {
	start := time.Now()
	return func() {
		metrics.HuntPhaseDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}
}
