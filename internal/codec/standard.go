package codec

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"

	"image-hunter/internal/logging"
	"image-hunter/internal/options"

	// Image format decoders
	_ "image/gif"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Standard is the pure Go backend.
type Standard struct{}

// NewStandard returns the pure Go backend.
func NewStandard() *Standard { return &Standard{} }

// Name implements Codec.
func (s *Standard) Name() string { return "standard" }

// Probe returns image dimensions without fully decoding the image.
func (s *Standard) Probe(path string) (Bounds, error) {
	file, err := os.Open(path)
	if err != nil {
		return Bounds{}, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			logging.Warn("Codec: failed to close image file %s: %v", path, err)
		}
	}()

	config, format, err := image.DecodeConfig(file)
	if err != nil {
		return Bounds{}, fmt.Errorf("probe %s: %w: %v", filepath.Base(path), ErrCorrupt, err)
	}
	return Bounds{Width: config.Width, Height: config.Height, Format: format}, nil
}

// Decode loads the image with EXIF orientation applied, then reduces it by
// the subsample factor with a box filter.
func (s *Standard) Decode(path string, subsample int) (img image.Image, err error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer file.Close()

	defer func() {
		if r := recover(); r != nil {
			img, err = nil, recovered("decode", r)
		}
	}()

	full, err := imaging.Decode(file, imaging.AutoOrientation(true))
	if err != nil {
		if isAllocationMessage(err.Error()) {
			return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), ErrAllocation)
		}
		return nil, fmt.Errorf("decode %s: %w: %v", filepath.Base(path), ErrCorrupt, err)
	}
	if subsample <= 1 {
		return full, nil
	}

	b := full.Bounds()
	w, h := SubsampledSize(b.Dx(), b.Dy(), subsample)
	logging.Debug("Codec: subsampling %s from %dx%d to %dx%d (factor %d)",
		filepath.Base(path), b.Dx(), b.Dy(), w, h, subsample)
	return imaging.Resize(full, w, h, imaging.Box), nil
}

// DecodeFootprint implements Codec. The whole image is decoded before the
// box filter runs, so the peak holds both buffers.
func (s *Standard) DecodeFootprint(b Bounds, subsample int) int64 {
	need := pixelBytes(b.Width, b.Height)
	if subsample > 1 {
		need += pixelBytes(SubsampledSize(b.Width, b.Height, subsample))
	}
	return need
}

// Encode writes JPEG with the given quality and PNG with a compression level
// derived from it. WebP output needs libvips.
func (s *Standard) Encode(w io.Writer, img image.Image, format options.Format, quality int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recovered("encode", r)
		}
	}()

	switch format {
	case options.FormatJPEG:
		return jpeg.Encode(w, img, &jpeg.Options{Quality: clampQuality(quality)})
	case options.FormatPNG:
		enc := png.Encoder{CompressionLevel: pngCompression(quality)}
		return enc.Encode(w, img)
	case options.FormatWebP:
		return fmt.Errorf("%w: webp encoding requires libvips", ErrUnsupportedFormat)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// DecodeBytes decodes an in-memory artifact.
func (s *Standard) DecodeBytes(data []byte) (img image.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			img, err = nil, recovered("decode bytes", r)
		}
	}()
	img, err = imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return img, nil
}

// pngCompression trades speed for size as quality drops; PNG stays lossless.
func pngCompression(quality int) png.CompressionLevel {
	switch {
	case quality >= 80:
		return png.BestSpeed
	case quality >= 40:
		return png.DefaultCompression
	default:
		return png.BestCompression
	}
}
