package hunt

import (
	"image"
	"time"

	"image-hunter/internal/options"
)

// Metadata describes how a successful hunt got its result.
type Metadata struct {
	Source       string // resolver name
	SourceFormat string
	SourceWidth  int
	SourceHeight int
	Width        int
	Height       int
	Subsample    int
	Quality      int
	Attempts     int
	Bytes        int
	Format       options.Format
	Cost         time.Duration
}

// Callback receives the single terminal outcome of a hunt.
type Callback interface {
	OnSuccess(img image.Image, meta Metadata)
	OnError(err *Error)
}

// Canceler is implemented by callbacks that want to hear about cancellation.
// A canceled subscriber gets OnCancel instead of OnSuccess or OnError.
type Canceler interface {
	OnCancel()
}

// Funcs adapts plain functions to Callback and Canceler. Nil fields are skipped.
type Funcs struct {
	Success func(img image.Image, meta Metadata)
	Failure func(err *Error)
	Cancel  func()
}

func (f Funcs) OnSuccess(img image.Image, meta Metadata) {
	if f.Success != nil {
		f.Success(img, meta)
	}
}

func (f Funcs) OnError(err *Error) {
	if f.Failure != nil {
		f.Failure(err)
	}
}

func (f Funcs) OnCancel() {
	if f.Cancel != nil {
		f.Cancel()
	}
}
