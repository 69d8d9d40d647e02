package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"image-hunter/internal/codec"
	"image-hunter/internal/hunt"
	"image-hunter/internal/memory"
	"image-hunter/internal/options"
)

// fakeCodec encodes to a size derived from quality and never touches disk.
type fakeCodec struct {
	bounds   codec.Bounds
	probeErr error

	// decodeErrs is consumed one entry per Decode call; nil entries succeed.
	decodeErrs []error
	nilImage   bool
	encodeErr  error
	sizeAt     func(quality int) int
	onEncode   func(quality int)

	decodes    int
	qualities  []int
	subsamples []int
}

func (f *fakeCodec) Name() string { return "fake" }

func (f *fakeCodec) Probe(string) (codec.Bounds, error) {
	return f.bounds, f.probeErr
}

func (f *fakeCodec) Decode(_ string, s int) (image.Image, error) {
	f.decodes++
	f.subsamples = append(f.subsamples, s)
	if len(f.decodeErrs) > 0 {
		err := f.decodeErrs[0]
		f.decodeErrs = f.decodeErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	if f.nilImage {
		return nil, nil
	}
	return image.NewGray(image.Rect(0, 0, 2, 2)), nil
}

// DecodeFootprint behaves like a shrink-on-load decoder.
func (f *fakeCodec) DecodeFootprint(b codec.Bounds, s int) int64 {
	w, h := codec.SubsampledSize(b.Width, b.Height, s)
	return int64(w) * int64(h) * 4
}

func (f *fakeCodec) Encode(w io.Writer, _ image.Image, _ options.Format, quality int) error {
	f.qualities = append(f.qualities, quality)
	if f.onEncode != nil {
		f.onEncode(quality)
	}
	if f.encodeErr != nil {
		return f.encodeErr
	}
	_, err := w.Write(make([]byte, f.sizeAt(quality)))
	return err
}

func (f *fakeCodec) DecodeBytes(data []byte) (image.Image, error) {
	return image.NewGray(image.Rect(0, 0, 10, 10)), nil
}

func linear(perQuality int) func(int) int {
	return func(q int) int { return q * perQuality }
}

func exactRequest(t *testing.T, maxOutput int64, step, maxDim int) *hunt.Request {
	t.Helper()
	b := options.NewExact().MaxInput(10_000_000).MaxOutput(maxOutput).Step(step)
	if maxDim > 0 {
		b.MaxDimension(maxDim)
	}
	opts, err := b.Build()
	require.NoError(t, err)
	req, err := hunt.NewRequest(context.Background(), "test", "/src.jpg", opts.Resolve(options.Display{}, 0))
	require.NoError(t, err)
	return req
}

func newEngine(c codec.Codec, budget *memory.Budget, maxAttempts int) (*Engine, *int) {
	e := New(Config{Codec: c, Budget: budget, MaxAttempts: maxAttempts})
	gcs := 0
	e.forceGC = func() { gcs++ }
	return e, &gcs
}

func TestSubsample(t *testing.T) {
	tests := []struct {
		name   string
		w, h   int
		target int
		want   int
	}{
		{name: "no target", w: 5000, h: 5000, target: 0, want: 1},
		{name: "fits", w: 800, h: 600, target: 1000, want: 1},
		{name: "exact fit", w: 1000, h: 500, target: 1000, want: 1},
		{name: "wide", w: 4000, h: 1000, target: 1000, want: 4},
		{name: "tall", w: 1000, h: 4500, target: 1000, want: 4},
		{name: "just over", w: 1001, h: 10, target: 1000, want: 1},
		{name: "huge", w: 5000, h: 5000, target: 10, want: 500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Subsample(codec.Bounds{Width: tt.w, Height: tt.h}, tt.target)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunStepsDownUntilOutputFits(t *testing.T) {
	// quality 100 encodes to 800 bytes, the budget is 200
	c := &fakeCodec{bounds: codec.Bounds{Width: 5000, Height: 5000, Format: "jpeg"}, sizeAt: linear(8)}
	e, _ := newEngine(c, nil, 0)
	req := exactRequest(t, 200, 10, 0)

	res, err := e.Run(req, "/src.jpg")
	require.NoError(t, err)

	assert.LessOrEqual(t, res.Metadata.Quality, 60)
	assert.LessOrEqual(t, res.Metadata.Bytes, 200)
	assert.Len(t, res.Encoded, res.Metadata.Bytes)
	assert.Equal(t, 20, res.Metadata.Quality)
	assert.Equal(t, 9, res.Metadata.Attempts)
	assert.Equal(t, 5000, res.Metadata.SourceWidth)
	assert.Equal(t, "jpeg", res.Metadata.SourceFormat)
	assert.Equal(t, options.FormatJPEG, res.Metadata.Format)
	assert.NotNil(t, res.Image)

	for i := 1; i < len(c.qualities); i++ {
		assert.Equal(t, c.qualities[i-1]-10, c.qualities[i], "quality must fall by exactly one step")
	}
}

func TestRunTerminatesAtQualityFloor(t *testing.T) {
	for _, step := range []int{1, 7, 15, 33, 50, 99} {
		t.Run(fmt.Sprintf("step %d", step), func(t *testing.T) {
			c := &fakeCodec{bounds: codec.Bounds{Width: 10, Height: 10}, sizeAt: func(int) int { return 1000 }}
			e, _ := newEngine(c, nil, 1000)
			req := exactRequest(t, 10, step, 0)

			_, err := e.Run(req, "/src.jpg")
			require.ErrorIs(t, err, hunt.ErrCannotDecode)

			bound := (100 + step - 1) / step
			assert.Equal(t, bound, req.Attempts)
			assert.Contains(t, err.Error(), "cannot satisfy output budget")
			assert.Equal(t, 100-step*(bound-1), c.qualities[len(c.qualities)-1])
		})
	}
}

// fitsAtOrBelow encodes to 1000 bytes above quality q and 10 bytes at or below it.
func fitsAtOrBelow(q int) func(int) int {
	return func(quality int) int {
		if quality > q {
			return 1000
		}
		return 10
	}
}

func TestRunSmallStepIsNotCutShort(t *testing.T) {
	c := &fakeCodec{bounds: codec.Bounds{Width: 10, Height: 10}, sizeAt: fitsAtOrBelow(50)}
	e := New(Config{Codec: c})
	req := exactRequest(t, 100, 1, 0)

	res, err := e.Run(req, "/src.jpg")
	require.NoError(t, err)
	assert.Equal(t, 50, res.Metadata.Quality)
	assert.Equal(t, 51, res.Metadata.Attempts)
	assert.Greater(t, res.Metadata.Attempts, DefaultMaxAttempts)
}

func TestRunCapsAllocationFailures(t *testing.T) {
	errs := make([]error, 100)
	for i := range errs {
		errs[i] = codec.ErrAllocation
	}
	c := &fakeCodec{bounds: codec.Bounds{Width: 10, Height: 10}, decodeErrs: errs, sizeAt: linear(1)}
	e, gcs := newEngine(c, nil, 3)
	req := exactRequest(t, 1000, 1, 0)

	_, err := e.Run(req, "/src.jpg")
	require.ErrorIs(t, err, hunt.ErrOutOfMemory)
	assert.Equal(t, 3, req.Attempts)
	assert.Equal(t, 3, c.decodes)
	assert.Equal(t, 3, *gcs)
}

func TestRunCapIgnoresOverBudgetSteps(t *testing.T) {
	c := &fakeCodec{
		bounds:     codec.Bounds{Width: 10, Height: 10},
		decodeErrs: []error{codec.ErrAllocation},
		sizeAt:     fitsAtOrBelow(50),
	}
	e, _ := newEngine(c, nil, 2)
	req := exactRequest(t, 100, 1, 0)

	res, err := e.Run(req, "/src.jpg")
	require.NoError(t, err)
	assert.Equal(t, 50, res.Metadata.Quality)
	assert.Equal(t, 51, res.Metadata.Attempts)
}

func TestRunRetriesAllocationFailure(t *testing.T) {
	c := &fakeCodec{
		bounds:     codec.Bounds{Width: 10, Height: 10},
		decodeErrs: []error{fmt.Errorf("decode: %w", codec.ErrAllocation), fmt.Errorf("decode: %w", codec.ErrAllocation)},
		sizeAt:     linear(1),
	}
	e, gcs := newEngine(c, nil, 0)
	req := exactRequest(t, 1000, 15, 0)

	res, err := e.Run(req, "/src.jpg")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Metadata.Attempts)
	assert.Equal(t, 70, res.Metadata.Quality)
	assert.Equal(t, 2, *gcs)
	assert.Equal(t, 3, c.decodes, "the decode is redone after an allocation failure")
}

func TestRunReportsOutOfMemoryAtFloor(t *testing.T) {
	errs := make([]error, 100)
	for i := range errs {
		errs[i] = codec.ErrAllocation
	}
	c := &fakeCodec{bounds: codec.Bounds{Width: 10, Height: 10}, decodeErrs: errs, sizeAt: linear(1)}
	e, gcs := newEngine(c, nil, 0)
	req := exactRequest(t, 1000, 25, 0)

	_, err := e.Run(req, "/src.jpg")
	require.ErrorIs(t, err, hunt.ErrOutOfMemory)
	assert.Equal(t, 4, req.Attempts)
	assert.Equal(t, 4, *gcs)
}

func TestRunMemoryGuard(t *testing.T) {
	// a fifth of 5 KiB leaves 1 KiB for pixels
	budget := memory.NewBudget(5<<10, nil)

	t.Run("refuses before decoding", func(t *testing.T) {
		c := &fakeCodec{bounds: codec.Bounds{Width: 100, Height: 100}, sizeAt: linear(1)}
		e, _ := newEngine(c, budget, 0)

		_, err := e.Run(exactRequest(t, 1000, 50, 0), "/src.jpg")
		require.ErrorIs(t, err, hunt.ErrOutOfMemory)
		assert.ErrorIs(t, err, memory.ErrOverBudget)
		assert.Zero(t, c.decodes)
	})

	t.Run("subsampling brings it under", func(t *testing.T) {
		c := &fakeCodec{bounds: codec.Bounds{Width: 1000, Height: 1000}, sizeAt: linear(1)}
		e, _ := newEngine(c, budget, 0)

		res, err := e.Run(exactRequest(t, 1000, 50, 10), "/src.jpg")
		require.NoError(t, err)
		assert.Equal(t, 100, res.Metadata.Subsample)
		assert.Equal(t, []int{100}, c.subsamples)
	})
}

func TestRunCanceled(t *testing.T) {
	t.Run("before the first attempt", func(t *testing.T) {
		c := &fakeCodec{bounds: codec.Bounds{Width: 10, Height: 10}, sizeAt: linear(1)}
		e, _ := newEngine(c, nil, 0)
		req := exactRequest(t, 1000, 10, 0)
		req.Cancel()

		_, err := e.Run(req, "/src.jpg")
		assert.ErrorIs(t, err, hunt.ErrCanceled)
		assert.Zero(t, c.decodes)
	})

	t.Run("between attempts", func(t *testing.T) {
		req := exactRequest(t, 10, 10, 0)
		c := &fakeCodec{
			bounds: codec.Bounds{Width: 10, Height: 10},
			sizeAt: linear(1),
			onEncode: func(q int) {
				if q == 90 {
					req.Cancel()
				}
			},
		}
		e, _ := newEngine(c, nil, 0)

		_, err := e.Run(req, "/src.jpg")
		assert.ErrorIs(t, err, hunt.ErrCanceled)
		assert.Equal(t, 2, req.Attempts)
		assert.Equal(t, []int{100, 90}, c.qualities)
	})
}

func TestRunTerminalFailures(t *testing.T) {
	pathErr := &fs.PathError{Op: "open", Path: "/src.jpg", Err: fs.ErrPermission}

	tests := []struct {
		name  string
		codec *fakeCodec
		want  *hunt.Error
	}{
		{
			name:  "unreadable file",
			codec: &fakeCodec{probeErr: pathErr},
			want:  hunt.ErrIO,
		},
		{
			name:  "not an image",
			codec: &fakeCodec{probeErr: fmt.Errorf("probe: %w", codec.ErrCorrupt)},
			want:  hunt.ErrCannotDecode,
		},
		{
			name:  "zero dimensions",
			codec: &fakeCodec{bounds: codec.Bounds{Width: 0, Height: 10}},
			want:  hunt.ErrCannotDecode,
		},
		{
			name:  "decoder error",
			codec: &fakeCodec{bounds: codec.Bounds{Width: 10, Height: 10}, decodeErrs: []error{codec.ErrCorrupt}},
			want:  hunt.ErrCannotDecode,
		},
		{
			name:  "decoder returned nothing",
			codec: &fakeCodec{bounds: codec.Bounds{Width: 10, Height: 10}, nilImage: true},
			want:  hunt.ErrCannotDecode,
		},
		{
			name:  "format not writable",
			codec: &fakeCodec{bounds: codec.Bounds{Width: 10, Height: 10}, encodeErr: codec.ErrUnsupportedFormat},
			want:  hunt.ErrUnsupportedFormat,
		},
		{
			name:  "encoder error",
			codec: &fakeCodec{bounds: codec.Bounds{Width: 10, Height: 10}, encodeErr: errors.New("broken pipe")},
			want:  hunt.ErrCannotDecode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newEngine(tt.codec, nil, 0)
			req := exactRequest(t, 1000, 10, 0)

			_, err := e.Run(req, "/src.jpg")
			require.ErrorIs(t, err, tt.want)
			assert.LessOrEqual(t, req.Attempts, 1, "terminal failures are not retried")
		})
	}
}

func writeGradient(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: uint8(x ^ y), A: 255})
		}
	}
	path := filepath.Join(t.TempDir(), "gradient.jpg")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, jpeg.Encode(f, img, &jpeg.Options{Quality: 95}))
	require.NoError(t, f.Close())
	return path
}

func TestRunStandardCodec(t *testing.T) {
	path := writeGradient(t, 400, 200)
	e := New(Config{Codec: codec.NewStandard()})

	opts := options.NewExact().MaxOutput(1 << 20).MaxDimension(100).MustBuild().Resolve(options.Display{}, 0)
	req, err := hunt.NewRequest(context.Background(), "", path, opts)
	require.NoError(t, err)

	res, err := e.Run(req, path)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Metadata.Subsample)
	assert.Equal(t, 100, res.Metadata.Width)
	assert.Equal(t, 50, res.Metadata.Height)
	assert.Equal(t, 100, res.Metadata.Quality)
	assert.Equal(t, 1, res.Metadata.Attempts)

	decoded, err := jpeg.Decode(bytes.NewReader(res.Encoded))
	require.NoError(t, err)
	assert.Equal(t, res.Image.Bounds(), decoded.Bounds())
}

func TestRunStandardCodecNeverExceedsBudget(t *testing.T) {
	path := writeGradient(t, 256, 256)
	e := New(Config{Codec: codec.NewStandard()})

	for _, limit := range []int64{500, 2000, 8000} {
		t.Run(fmt.Sprint(limit), func(t *testing.T) {
			opts := options.NewExact().MaxOutput(limit).Step(10).MustBuild().Resolve(options.Display{}, 0)
			req, err := hunt.NewRequest(context.Background(), "", path, opts)
			require.NoError(t, err)

			res, err := e.Run(req, path)
			if err != nil {
				assert.ErrorIs(t, err, hunt.ErrCannotDecode)
				return
			}
			assert.LessOrEqual(t, int64(len(res.Encoded)), limit)
		})
	}
}

func TestRunStandardCodecGuardsFullDecode(t *testing.T) {
	// 400x400 subsampled by 4 is 40 KB of pixels, but the standard codec
	// holds the 640 KB full decode first; the budget leaves about 200 KB.
	path := writeGradient(t, 400, 400)
	budget := memory.NewBudget(1<<20, nil)
	std := codec.NewStandard()
	bounds := codec.Bounds{Width: 400, Height: 400, Format: "jpeg"}
	require.Greater(t, std.DecodeFootprint(bounds, 4), budget.Available())

	e, _ := newEngine(std, budget, 0)
	opts := options.NewExact().MaxOutput(1 << 20).MaxDimension(100).MustBuild().Resolve(options.Display{}, 0)
	req, err := hunt.NewRequest(context.Background(), "", path, opts)
	require.NoError(t, err)

	_, err = e.Run(req, path)
	require.ErrorIs(t, err, hunt.ErrOutOfMemory)
	assert.ErrorIs(t, err, memory.ErrOverBudget)
}

func TestRunMissingFile(t *testing.T) {
	e := New(Config{Codec: codec.NewStandard()})
	path := filepath.Join(t.TempDir(), "gone.jpg")
	opts := options.NewExact().MaxOutput(10).MustBuild().Resolve(options.Display{}, 0)
	req, err := hunt.NewRequest(context.Background(), "", path, opts)
	require.NoError(t, err)

	_, err = e.Run(req, path)
	assert.ErrorIs(t, err, hunt.ErrIO)
}
