// Package options defines the constraint sets that decide when a hunted image
// is "small enough".
//
// An Options value is either Exact (explicit byte budgets and quality step) or
// Fuzzy (a qualitative level with preset internals). Values are immutable and
// comparable; two Options are equal when every field is equal.
package options

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalid is wrapped by every builder validation failure.
var ErrInvalid = errors.New("invalid options")

// Unset marks a numeric field that has not been given a value.
const Unset = -1

// DefaultQualityStep is the step used by Exact options that leave it unset.
const DefaultQualityStep = 15

// Variant tells which constraint set an Options value carries.
type Variant int

const (
	// VariantNone is the zero value and never valid for a request.
	VariantNone Variant = iota
	// VariantExact is the byte-budget driven constraint set.
	VariantExact
	// VariantFuzzy is the level driven constraint set.
	VariantFuzzy
)

func (v Variant) String() string {
	switch v {
	case VariantExact:
		return "exact"
	case VariantFuzzy:
		return "fuzzy"
	default:
		return "none"
	}
}

// Format is the container the decoded pixels are recompressed into.
type Format int

const (
	// FormatJPEG is lossy JPEG.
	FormatJPEG Format = iota
	// FormatPNG is lossless PNG; quality maps to compression effort.
	FormatPNG
	// FormatWebP is lossy WebP.
	FormatWebP
)

func (f Format) String() string {
	switch f {
	case FormatJPEG:
		return "jpeg"
	case FormatPNG:
		return "png"
	case FormatWebP:
		return "webp"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

func (f Format) valid() bool {
	return f >= FormatJPEG && f <= FormatWebP
}

// ParseFormat accepts the names produced by Format.String plus "jpg".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "jpeg", "jpg":
		return FormatJPEG, nil
	case "png":
		return FormatPNG, nil
	case "webp":
		return FormatWebP, nil
	default:
		return FormatJPEG, fmt.Errorf("%w: unknown format %q", ErrInvalid, s)
	}
}

// QualityLevel is the qualitative knob of Fuzzy options.
type QualityLevel int

const (
	// LevelMedium is the default level.
	LevelMedium QualityLevel = iota
	// LevelHigh keeps most quality and allows the largest share of memory.
	LevelHigh
	// LevelLow trades quality for size aggressively.
	LevelLow
)

// Step returns the quality decrement applied per retry.
func (l QualityLevel) Step() int {
	switch l {
	case LevelHigh:
		return 5
	case LevelLow:
		return 20
	default:
		return 15
	}
}

// MemoryFactor returns the share of the decode memory budget a request at
// this level may use for its output.
func (l QualityLevel) MemoryFactor() float64 {
	switch l {
	case LevelHigh:
		return 0.8
	case LevelLow:
		return 0.35
	default:
		return 0.5
	}
}

func (l QualityLevel) String() string {
	switch l {
	case LevelHigh:
		return "high"
	case LevelLow:
		return "low"
	default:
		return "medium"
	}
}

// ParseLevel maps high/medium/low to a QualityLevel.
func ParseLevel(s string) (QualityLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return LevelHigh, nil
	case "medium", "":
		return LevelMedium, nil
	case "low":
		return LevelLow, nil
	default:
		return LevelMedium, fmt.Errorf("%w: unknown quality level %q", ErrInvalid, s)
	}
}

// Options is an immutable constraint set. Obtain one through ExactBuilder or
// FuzzyBuilder; the zero value is invalid.
type Options struct {
	variant        Variant
	maxInputBytes  int64
	maxOutputBytes int64
	qualityStep    int
	level          QualityLevel
	maxDimension   int
	format         Format
}

// Variant returns which constraint set is populated.
func (o Options) Variant() Variant { return o.variant }

// IsZero reports whether o was never built.
func (o Options) IsZero() bool { return o.variant == VariantNone }

// IsExact reports whether o is the Exact variant.
func (o Options) IsExact() bool { return o.variant == VariantExact }

// MaxInputBytes is the largest source accepted, or Unset.
func (o Options) MaxInputBytes() int64 { return o.maxInputBytes }

// MaxOutputBytes is the recompression target, or Unset.
func (o Options) MaxOutputBytes() int64 { return o.maxOutputBytes }

// QualityStep is the per-retry quality decrement, or Unset.
func (o Options) QualityStep() int { return o.qualityStep }

// Level is only meaningful for Fuzzy options.
func (o Options) Level() QualityLevel { return o.level }

// MaxDimension is the longest edge in pixels; Unset or 0 defer to the display.
func (o Options) MaxDimension() int { return o.maxDimension }

// Format is the output container.
func (o Options) Format() Format { return o.format }

// String is canonical: equal Options always render identically.
func (o Options) String() string {
	var b strings.Builder
	b.WriteString(o.variant.String())
	b.WriteString("{format=")
	b.WriteString(o.format.String())
	b.WriteString(",maxDim=")
	b.WriteString(strconv.Itoa(o.maxDimension))
	switch o.variant {
	case VariantExact:
		b.WriteString(",maxIn=")
		b.WriteString(strconv.FormatInt(o.maxInputBytes, 10))
		b.WriteString(",maxOut=")
		b.WriteString(strconv.FormatInt(o.maxOutputBytes, 10))
		b.WriteString(",step=")
		b.WriteString(strconv.Itoa(o.qualityStep))
	case VariantFuzzy:
		b.WriteString(",level=")
		b.WriteString(o.level.String())
		if o.maxOutputBytes != Unset {
			b.WriteString(",maxOut=")
			b.WriteString(strconv.FormatInt(o.maxOutputBytes, 10))
		}
		if o.qualityStep != Unset {
			b.WriteString(",step=")
			b.WriteString(strconv.Itoa(o.qualityStep))
		}
	}
	b.WriteString("}")
	return b.String()
}

// Display is the caller's viewport, used to resolve an unset MaxDimension.
type Display struct {
	Width  int
	Height int
}

// MaxDimension returns twice the longest display edge, or 0 when unknown.
func (d Display) MaxDimension() int {
	longest := d.Width
	if d.Height > longest {
		longest = d.Height
	}
	if longest <= 0 {
		return 0
	}
	return longest * 2
}

// Resolve substitutes request-time defaults and returns the result.
// budget is the decode memory budget in bytes used to size Fuzzy outputs;
// a non-positive budget leaves the Fuzzy output unbounded.
func (o Options) Resolve(display Display, budget int64) Options {
	r := o
	if r.maxDimension <= 0 {
		r.maxDimension = display.MaxDimension()
	}
	switch r.variant {
	case VariantExact:
		if r.maxInputBytes == Unset {
			r.maxInputBytes = math.MaxInt64
		}
		if r.qualityStep == Unset {
			r.qualityStep = DefaultQualityStep
		}
	case VariantFuzzy:
		r.qualityStep = r.level.Step()
		r.maxInputBytes = math.MaxInt64
		if budget > 0 {
			r.maxOutputBytes = int64(float64(budget) * r.level.MemoryFactor())
		} else {
			r.maxOutputBytes = math.MaxInt64
		}
	}
	return r
}
