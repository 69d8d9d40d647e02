package codec

import (
	"errors"
	"fmt"
	"image"
	"io"
	"runtime"
	"strings"

	"image-hunter/internal/logging"
	"image-hunter/internal/options"
)

var (
	// ErrAllocation means a pixel or output buffer could not be allocated.
	ErrAllocation = errors.New("codec: allocation failed")
	// ErrUnsupportedFormat means the backend cannot write the requested container.
	ErrUnsupportedFormat = errors.New("codec: unsupported output format")
	// ErrCorrupt means the bytes are not an image any decoder understands.
	ErrCorrupt = errors.New("codec: not a decodable image")
)

// Bounds is what a header probe reveals.
type Bounds struct {
	Width  int
	Height int
	Format string // decoder name, e.g. "jpeg"
}

// Longest returns the longer edge.
func (b Bounds) Longest() int {
	if b.Height > b.Width {
		return b.Height
	}
	return b.Width
}

// Codec is the raster capability used by the decode engine.
type Codec interface {
	// Name identifies the backend in logs and metrics.
	Name() string
	// Probe reads dimensions without allocating a pixel buffer.
	Probe(path string) (Bounds, error)
	// Decode reads the full image, each edge divided by subsample (>= 1).
	Decode(path string, subsample int) (image.Image, error)
	// DecodeFootprint estimates the peak pixel memory Decode needs for an
	// image with bounds b at subsample.
	DecodeFootprint(b Bounds, subsample int) int64
	// Encode writes img in format at quality 1..100.
	Encode(w io.Writer, img image.Image, format options.Format, quality int) error
	// DecodeBytes decodes an encoded artifact held in memory.
	DecodeBytes(data []byte) (image.Image, error)
}

// Select returns the Vips backend when wanted and libvips starts, the
// Standard backend otherwise.
func Select(useVips bool) Codec {
	if useVips {
		if err := StartVips(); err != nil {
			logging.Warn("Codec: libvips unavailable, using standard decoders: %v", err)
			return NewStandard()
		}
		return NewVips()
	}
	return NewStandard()
}

// SubsampledSize is the size of a w x h image decoded at factor s.
func SubsampledSize(w, h, s int) (int, int) {
	if s <= 1 {
		return w, h
	}
	sw, sh := w/s, h/s
	if sw < 1 {
		sw = 1
	}
	if sh < 1 {
		sh = 1
	}
	return sw, sh
}

// bytesPerPixel is the RGBA footprint of a decoded pixel.
const bytesPerPixel = 4

func pixelBytes(w, h int) int64 {
	return int64(w) * int64(h) * bytesPerPixel
}

func clampQuality(q int) int {
	if q < 1 {
		return 1
	}
	if q > 100 {
		return 100
	}
	return q
}

// isAllocationMessage matches the wording allocators use for exhaustion.
func isAllocationMessage(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "out of memory") ||
		strings.Contains(msg, "makeslice") ||
		strings.Contains(msg, "cannot allocate") ||
		strings.Contains(msg, "memory allocation")
}

// recovered converts a panic raised inside a decoder or encoder into an error.
// Allocation panics become ErrAllocation; anything else is treated as bad input.
func recovered(op string, r any) error {
	var msg string
	switch v := r.(type) {
	case runtime.Error:
		msg = v.Error()
	case error:
		msg = v.Error()
	default:
		msg = fmt.Sprint(v)
	}
	if isAllocationMessage(msg) {
		logging.Warn("Codec: %s ran out of memory: %s", op, msg)
		return fmt.Errorf("%s: %w: %s", op, ErrAllocation, msg)
	}
	logging.Debug("Codec: %s panicked: %s", op, msg)
	return fmt.Errorf("%s: %w: %s", op, ErrCorrupt, msg)
}
