package codec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"path/filepath"
	"sync"

	"image-hunter/internal/logging"
	"image-hunter/internal/options"

	"github.com/davidbyttow/govips/v2/vips"
)

var (
	vipsInitialized bool
	vipsInitMutex   sync.Mutex
	vipsAvailable   bool
	vipsStopped     bool
)

var errVipsUnavailable = errors.New("libvips not available")

// StartVips initializes libvips and routes its log output through the
// logging package. Safe to call more than once. govips cannot restart after
// StopVips, so a later call returns an error.
func StartVips() error {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		return nil
	}
	if vipsStopped {
		return fmt.Errorf("%w: already shut down", errVipsUnavailable)
	}

	vipsLogLevel, logHandler := vipsLogging(logging.GetLevel())
	vips.LoggingSettings(logHandler, vipsLogLevel)

	// One image at a time; the hunter never decodes in parallel.
	vips.Startup(&vips.Config{
		ConcurrencyLevel: 1,
		MaxCacheMem:      50 * 1024 * 1024,
		MaxCacheSize:     100,
		ReportLeaks:      false,
		CacheTrace:       false,
		CollectStats:     false,
	})

	vipsInitialized = true
	vipsAvailable = true
	logging.Info("libvips initialized successfully (version: %s)", vips.Version)
	return nil
}

func vipsLogging(level logging.LogLevel) (vips.LogLevel, func(string, vips.LogLevel, string)) {
	switch level {
	case logging.LevelDebug:
		return vips.LogLevelInfo, func(domain string, level vips.LogLevel, msg string) {
			switch level {
			case vips.LogLevelError, vips.LogLevelCritical:
				logging.Error("[%s] %s", domain, msg)
			case vips.LogLevelWarning:
				logging.Warn("[%s] %s", domain, msg)
			default:
				logging.Debug("[%s] %s", domain, msg)
			}
		}
	case logging.LevelInfo:
		return vips.LogLevelWarning, func(domain string, level vips.LogLevel, msg string) {
			switch level {
			case vips.LogLevelError, vips.LogLevelCritical:
				logging.Error("[%s] %s", domain, msg)
			case vips.LogLevelWarning:
				logging.Warn("[%s] %s", domain, msg)
			}
		}
	case logging.LevelWarn:
		return vips.LogLevelError, func(domain string, level vips.LogLevel, msg string) {
			if level >= vips.LogLevelError {
				logging.Error("[%s] %s", domain, msg)
			}
		}
	default:
		return vips.LogLevelCritical, func(domain string, level vips.LogLevel, msg string) {
			if level >= vips.LogLevelCritical {
				logging.Error("[%s] %s", domain, msg)
			}
		}
	}
}

// StopVips releases libvips. Only call it once at process exit.
func StopVips() {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		vips.Shutdown()
		vipsInitialized = false
		vipsAvailable = false
		vipsStopped = true
		logging.Info("libvips shutdown complete")
	}
}

// VipsAvailable reports whether libvips is initialized.
func VipsAvailable() bool {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()
	return vipsAvailable
}

// Vips is the libvips backend. Probing and JPEG/PNG encoding reuse the
// Standard backend; decoding and WebP output go through libvips.
type Vips struct {
	std *Standard
}

// NewVips returns the libvips backend. StartVips must have succeeded.
func NewVips() *Vips {
	return &Vips{std: NewStandard()}
}

// Name implements Codec.
func (v *Vips) Name() string { return "vips" }

// Probe tries the Go header readers first and falls back to libvips for
// formats only it understands (HEIF, SVG).
func (v *Vips) Probe(path string) (Bounds, error) {
	b, err := v.std.Probe(path)
	if err == nil || !errors.Is(err, ErrCorrupt) || !VipsAvailable() {
		return b, err
	}

	ref, verr := vips.LoadImageFromFile(path, vips.NewImportParams())
	if verr != nil {
		return Bounds{}, err
	}
	defer ref.Close()
	return Bounds{Width: ref.Width(), Height: ref.Height(), Format: vips.ImageTypes[ref.Format()]}, nil
}

// Decode lets libvips shrink JPEGs while decoding (factors 2, 4 and 8), then
// finishes any remaining reduction with a linear resize.
func (v *Vips) Decode(path string, subsample int) (image.Image, error) {
	if !VipsAvailable() {
		return nil, errVipsUnavailable
	}

	probe, err := v.Probe(path)
	if err != nil {
		return nil, err
	}

	params := vips.NewImportParams()
	params.AutoRotate.Set(true)
	if probe.Format == "jpeg" {
		if shrink := jpegShrink(subsample); shrink > 1 {
			params.JpegShrinkFactor.Set(shrink)
		}
	}

	ref, err := vips.LoadImageFromFile(path, params)
	if err != nil {
		return nil, vipsError("decode "+filepath.Base(path), err)
	}
	defer ref.Close()

	targetW, _ := SubsampledSize(probe.Width, probe.Height, subsample)
	if ref.Width() > targetW && targetW > 0 {
		scale := float64(targetW) / float64(ref.Width())
		logging.Debug("Codec: vips resizing %s from %dx%d by %.3f",
			filepath.Base(path), ref.Width(), ref.Height(), scale)
		if err := ref.Resize(scale, vips.KernelLinear); err != nil {
			return nil, vipsError("resize "+filepath.Base(path), err)
		}
	}

	img, err := ref.ToImage(nil)
	if err != nil {
		return nil, vipsError("export "+filepath.Base(path), err)
	}
	return img, nil
}

// DecodeFootprint implements Codec. JPEG sources shrink on load; other
// formats load at full size. The exported Go image is counted as well.
func (v *Vips) DecodeFootprint(b Bounds, subsample int) int64 {
	loadW, loadH := b.Width, b.Height
	if b.Format == "jpeg" {
		if shrink := jpegShrink(subsample); shrink > 1 {
			loadW, loadH = ceilDiv(b.Width, shrink), ceilDiv(b.Height, shrink)
		}
	}
	return pixelBytes(loadW, loadH) + pixelBytes(SubsampledSize(b.Width, b.Height, subsample))
}

func ceilDiv(n, d int) int {
	return (n + d - 1) / d
}

// Encode delegates JPEG and PNG to the Go encoders. WebP goes through
// libvips via a lossless PNG handoff.
func (v *Vips) Encode(w io.Writer, img image.Image, format options.Format, quality int) error {
	if format != options.FormatWebP {
		return v.std.Encode(w, img, format, quality)
	}
	if !VipsAvailable() {
		return fmt.Errorf("%w: %v", ErrUnsupportedFormat, errVipsUnavailable)
	}

	var handoff bytes.Buffer
	if err := v.std.Encode(&handoff, img, options.FormatPNG, 100); err != nil {
		return err
	}
	ref, err := vips.NewImageFromBuffer(handoff.Bytes())
	if err != nil {
		return vipsError("webp handoff", err)
	}
	defer ref.Close()

	params := vips.NewWebpExportParams()
	params.Quality = clampQuality(quality)
	params.StripMetadata = true
	data, _, err := ref.ExportWebp(params)
	if err != nil {
		return vipsError("webp export", err)
	}
	_, err = w.Write(data)
	return err
}

// DecodeBytes decodes an in-memory artifact, using libvips for WebP.
func (v *Vips) DecodeBytes(data []byte) (image.Image, error) {
	img, err := v.std.DecodeBytes(data)
	if err == nil || !VipsAvailable() {
		return img, err
	}
	ref, verr := vips.NewImageFromBuffer(data)
	if verr != nil {
		return nil, err
	}
	defer ref.Close()
	return ref.ToImage(nil)
}

// jpegShrink is the largest libjpeg scale factor not above subsample.
func jpegShrink(subsample int) int {
	switch {
	case subsample >= 8:
		return 8
	case subsample >= 4:
		return 4
	case subsample >= 2:
		return 2
	default:
		return 1
	}
}

func vipsError(op string, err error) error {
	if isAllocationMessage(err.Error()) {
		return fmt.Errorf("%s: %w: %v", op, ErrAllocation, err)
	}
	return fmt.Errorf("%s: %w: %v", op, ErrCorrupt, err)
}
