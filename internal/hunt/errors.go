package hunt

import (
	"errors"
	"fmt"
)

// Reason classifies why a hunt failed.
type Reason int

const (
	// ReasonNotFound means the locator does not point at an existing source.
	ReasonNotFound Reason = iota + 1
	// ReasonTooLarge means the source exceeds the request's input limit.
	ReasonTooLarge
	// ReasonOutOfMemory means decode or encode could not allocate its buffers.
	ReasonOutOfMemory
	// ReasonIO is a local read or write failure.
	ReasonIO
	// ReasonUnsupportedSource means no resolver accepts the locator.
	ReasonUnsupportedSource
	// ReasonUnsupportedFormat means the codec cannot produce the requested container.
	ReasonUnsupportedFormat
	// ReasonCannotDecode means the bytes are not a decodable image or no
	// quality satisfied the output budget.
	ReasonCannotDecode
	// ReasonNetwork is a transport or HTTP status failure.
	ReasonNetwork
)

var reasonNames = map[Reason]string{
	ReasonNotFound:          "not found",
	ReasonTooLarge:          "too large",
	ReasonOutOfMemory:       "out of memory",
	ReasonIO:                "io error",
	ReasonUnsupportedSource: "unsupported source",
	ReasonUnsupportedFormat: "unsupported format",
	ReasonCannotDecode:      "cannot decode",
	ReasonNetwork:           "network error",
}

func (r Reason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

// Label is the metrics label form of the reason.
func (r Reason) Label() string {
	switch r {
	case ReasonNotFound:
		return "not_found"
	case ReasonTooLarge:
		return "too_large"
	case ReasonOutOfMemory:
		return "out_of_memory"
	case ReasonIO:
		return "io_error"
	case ReasonUnsupportedSource:
		return "unsupported_source"
	case ReasonUnsupportedFormat:
		return "unsupported_format"
	case ReasonCannotDecode:
		return "cannot_decode"
	case ReasonNetwork:
		return "network_error"
	default:
		return "unknown"
	}
}

// Reasons lists every defined reason in declaration order.
func Reasons() []Reason {
	return []Reason{
		ReasonNotFound, ReasonTooLarge, ReasonOutOfMemory, ReasonIO,
		ReasonUnsupportedSource, ReasonUnsupportedFormat, ReasonCannotDecode, ReasonNetwork,
	}
}

// Error is the failure delivered to callers.
type Error struct {
	Reason Reason
	Extra  string // optional detail
	Err    error  // optional cause
}

func (e *Error) Error() string {
	msg := e.Reason.String()
	if e.Extra != "" {
		msg += ": " + e.Extra
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same reason, so the sentinels below work
// with errors.Is regardless of Extra and cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Reason == e.Reason
}

// Sentinels for errors.Is.
var (
	ErrNotFound          = &Error{Reason: ReasonNotFound}
	ErrTooLarge          = &Error{Reason: ReasonTooLarge}
	ErrOutOfMemory       = &Error{Reason: ReasonOutOfMemory}
	ErrIO                = &Error{Reason: ReasonIO}
	ErrUnsupportedSource = &Error{Reason: ReasonUnsupportedSource}
	ErrUnsupportedFormat = &Error{Reason: ReasonUnsupportedFormat}
	ErrCannotDecode      = &Error{Reason: ReasonCannotDecode}
	ErrNetwork           = &Error{Reason: ReasonNetwork}
)

// ErrCanceled ends a request whose caller gave up. It is not an *Error.
var ErrCanceled = errors.New("hunt canceled")

// NewError returns an *Error with a detail message.
func NewError(reason Reason, extra string) *Error {
	return &Error{Reason: reason, Extra: extra}
}

// Errorf is NewError with formatting.
func Errorf(reason Reason, format string, args ...any) *Error {
	return &Error{Reason: reason, Extra: fmt.Sprintf(format, args...)}
}

// Wrap attaches reason and detail to a cause. A nil cause yields nil.
func Wrap(reason Reason, extra string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Reason: reason, Extra: extra, Err: err}
}

// AsError extracts the *Error from err. Anything else, including a nil err,
// becomes CannotDecode so callers always receive a classified failure.
func AsError(err error) *Error {
	var he *Error
	if errors.As(err, &he) {
		return he
	}
	if err == nil {
		return NewError(ReasonCannotDecode, "unknown failure")
	}
	return &Error{Reason: ReasonCannotDecode, Err: err}
}

// ReasonOf reports the reason carried by err, if any.
func ReasonOf(err error) (Reason, bool) {
	var he *Error
	if errors.As(err, &he) {
		return he.Reason, true
	}
	return 0, false
}
