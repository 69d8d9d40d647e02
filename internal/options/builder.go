package options

import (
	"errors"
	"fmt"
)

// ExactBuilder assembles Exact options. Setters record validation failures;
// Build reports all of them.
type ExactBuilder struct {
	maxInput  int64
	maxOutput int64
	step      int
	dimension int
	format    Format
	errs      []error
}

// NewExact starts an Exact builder with every field unset and JPEG output.
func NewExact() *ExactBuilder {
	return &ExactBuilder{
		maxInput:  Unset,
		maxOutput: Unset,
		step:      Unset,
		dimension: Unset,
		format:    FormatJPEG,
	}
}

// MaxInput rejects sources larger than n bytes before decoding.
func (b *ExactBuilder) MaxInput(n int64) *ExactBuilder {
	if n < 0 {
		b.errs = append(b.errs, fmt.Errorf("%w: max input must not be negative (%d)", ErrInvalid, n))
		return b
	}
	b.maxInput = n
	return b
}

// MaxOutput is the recompression target in bytes. Required.
func (b *ExactBuilder) MaxOutput(n int64) *ExactBuilder {
	if n < 0 {
		b.errs = append(b.errs, fmt.Errorf("%w: max output must not be negative (%d)", ErrInvalid, n))
		return b
	}
	b.maxOutput = n
	return b
}

// Step is the quality decrement per retry, strictly between 0 and 100.
func (b *ExactBuilder) Step(step int) *ExactBuilder {
	if step <= 0 || step >= 100 {
		b.errs = append(b.errs, fmt.Errorf("%w: quality step %d outside (0,100)", ErrInvalid, step))
		return b
	}
	b.step = step
	return b
}

// MaxDimension caps the longest edge in pixels; 0 defers to the display.
func (b *ExactBuilder) MaxDimension(px int) *ExactBuilder {
	if px < 0 {
		b.errs = append(b.errs, fmt.Errorf("%w: max dimension must not be negative (%d)", ErrInvalid, px))
		return b
	}
	b.dimension = px
	return b
}

// Format sets the output container.
func (b *ExactBuilder) Format(f Format) *ExactBuilder {
	if !f.valid() {
		b.errs = append(b.errs, fmt.Errorf("%w: unknown format %d", ErrInvalid, int(f)))
		return b
	}
	b.format = f
	return b
}

// Build validates and returns the Options.
func (b *ExactBuilder) Build() (Options, error) {
	errs := b.errs
	if b.maxOutput == Unset {
		errs = append(errs, fmt.Errorf("%w: exact options need a max output size; use fuzzy options otherwise", ErrInvalid))
	}
	if len(errs) > 0 {
		return Options{}, errors.Join(errs...)
	}
	return Options{
		variant:        VariantExact,
		maxInputBytes:  b.maxInput,
		maxOutputBytes: b.maxOutput,
		qualityStep:    b.step,
		level:          LevelMedium,
		maxDimension:   b.dimension,
		format:         b.format,
	}, nil
}

// MustBuild is Build for statically known options. It panics on error.
func (b *ExactBuilder) MustBuild() Options {
	o, err := b.Build()
	if err != nil {
		panic(err)
	}
	return o
}

// FuzzyBuilder assembles Fuzzy options.
type FuzzyBuilder struct {
	level     QualityLevel
	dimension int
	format    Format
	errs      []error
}

// NewFuzzy starts a Fuzzy builder at LevelMedium with JPEG output.
func NewFuzzy() *FuzzyBuilder {
	return &FuzzyBuilder{
		level:     LevelMedium,
		dimension: Unset,
		format:    FormatJPEG,
	}
}

// Level picks the quality level.
func (b *FuzzyBuilder) Level(l QualityLevel) *FuzzyBuilder {
	if l < LevelMedium || l > LevelLow {
		b.errs = append(b.errs, fmt.Errorf("%w: unknown quality level %d", ErrInvalid, int(l)))
		return b
	}
	b.level = l
	return b
}

// MaxDimension caps the longest edge in pixels; 0 defers to the display.
func (b *FuzzyBuilder) MaxDimension(px int) *FuzzyBuilder {
	if px < 0 {
		b.errs = append(b.errs, fmt.Errorf("%w: max dimension must not be negative (%d)", ErrInvalid, px))
		return b
	}
	b.dimension = px
	return b
}

// Format sets the output container.
func (b *FuzzyBuilder) Format(f Format) *FuzzyBuilder {
	if !f.valid() {
		b.errs = append(b.errs, fmt.Errorf("%w: unknown format %d", ErrInvalid, int(f)))
		return b
	}
	b.format = f
	return b
}

// Build validates and returns the Options.
func (b *FuzzyBuilder) Build() (Options, error) {
	if len(b.errs) > 0 {
		return Options{}, errors.Join(b.errs...)
	}
	return Options{
		variant:        VariantFuzzy,
		maxInputBytes:  Unset,
		maxOutputBytes: Unset,
		qualityStep:    Unset,
		level:          b.level,
		maxDimension:   b.dimension,
		format:         b.format,
	}, nil
}

// MustBuild is Build for statically known options. It panics on error.
func (b *FuzzyBuilder) MustBuild() Options {
	o, err := b.Build()
	if err != nil {
		panic(err)
	}
	return o
}

// Default is the process default: Fuzzy, medium level, JPEG.
func Default() Options {
	return NewFuzzy().MustBuild()
}
