package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gorilla/mux"

	"image-hunter/internal/dispatcher"
	"image-hunter/internal/hunt"
	"image-hunter/internal/logging"
	"image-hunter/internal/mediatypes"
	"image-hunter/internal/options"
)

// Hunt serves a blocking hunt. Query parameters:
//
//	src        locator (media://, http://, https://); required
//	tag        caller tag for DELETE /api/hunt/{tag}; at most 64 of
//	           [A-Za-z0-9._-], unique among running hunts (409 otherwise)
//	maxOutput  Exact: output byte budget
//	maxInput   Exact: source size limit
//	step       Exact: quality step
//	level      Fuzzy: high, medium or low
//	maxDim     longest output edge in pixels
//	format     jpeg, png or webp
//
// Without maxOutput, level, maxDim or format the process defaults apply.
func (h *Handlers) Hunt(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	src := q.Get("src")
	if src == "" {
		writeJSONError(w, "src is required", http.StatusBadRequest)
		return
	}
	u, err := hunt.ParseLocator(src)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	// Server-side paths stay private; indexed media is reachable via media://
	if u.Scheme == "file" {
		writeJSONError(w, "local paths are not served, use a media:// reference", http.StatusForbidden)
		return
	}

	opts, err := parseOptions(q, h.hunter.DefaultOptions())
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	tag := q.Get("tag")
	switch {
	case tag == "":
		tag = hunt.NewTag()
	case !validTag(tag):
		writeJSONError(w, "tag must be 1-64 letters, digits, '.', '_' or '-'", http.StatusBadRequest)
		return
	}
	if !h.reserveTag(tag) {
		writeJSONError(w, fmt.Sprintf("tag %q is already in use", tag), http.StatusConflict)
		return
	}
	defer h.releaseTag(tag)

	ctx, cancel := context.WithTimeout(r.Context(), h.huntTimeout)
	defer cancel()

	res, err := h.hunter.HuntBlockingWithOptions(ctx, tag, src, opts)
	if err != nil {
		status := huntStatus(err)
		if status >= http.StatusInternalServerError {
			logging.Warn("Hunt %s (%s) failed: %v", tag, src, err)
		} else {
			logging.Debug("Hunt %s (%s) failed: %v", tag, src, err)
		}
		w.Header().Set("X-Hunt-Tag", tag)
		writeJSONError(w, err.Error(), status)
		return
	}

	md := res.Metadata
	hdr := w.Header()
	hdr.Set("Content-Type", mediatypes.FormatMimeType(md.Format))
	hdr.Set("Content-Length", strconv.Itoa(len(res.Encoded)))
	hdr.Set("Cache-Control", "no-store")
	hdr.Set("X-Hunt-Tag", tag)
	hdr.Set("X-Hunt-Source", md.Source)
	hdr.Set("X-Hunt-Source-Format", md.SourceFormat)
	hdr.Set("X-Hunt-Source-Size", fmt.Sprintf("%dx%d", md.SourceWidth, md.SourceHeight))
	hdr.Set("X-Hunt-Size", fmt.Sprintf("%dx%d", md.Width, md.Height))
	hdr.Set("X-Hunt-Subsample", strconv.Itoa(md.Subsample))
	hdr.Set("X-Hunt-Quality", strconv.Itoa(md.Quality))
	hdr.Set("X-Hunt-Attempts", strconv.Itoa(md.Attempts))
	hdr.Set("X-Hunt-Cost-Ms", strconv.FormatInt(md.Cost.Milliseconds(), 10))
	w.WriteHeader(http.StatusOK)

	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(res.Encoded); err != nil {
		logging.Debug("Hunt %s: client went away: %v", tag, err)
	}
}

// CancelHunt cancels every pending hunt with {tag}. Unknown tags are not an
// error.
func (h *Handlers) CancelHunt(w http.ResponseWriter, r *http.Request) {
	h.hunter.Cancel(mux.Vars(r)["tag"])
	w.WriteHeader(http.StatusNoContent)
}

const maxTagLen = 64

func validTag(tag string) bool {
	if len(tag) == 0 || len(tag) > maxTagLen {
		return false
	}
	for _, c := range tag {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '.', c == '_', c == '-':
		default:
			return false
		}
	}
	return true
}

// huntStatus maps a hunt failure to an HTTP status.
func huntStatus(err error) int {
	if errors.Is(err, hunt.ErrCanceled) || errors.Is(err, dispatcher.ErrClosed) {
		return http.StatusServiceUnavailable
	}
	reason, ok := hunt.ReasonOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch reason {
	case hunt.ReasonNotFound:
		return http.StatusNotFound
	case hunt.ReasonTooLarge:
		return http.StatusRequestEntityTooLarge
	case hunt.ReasonUnsupportedSource, hunt.ReasonUnsupportedFormat:
		return http.StatusUnsupportedMediaType
	case hunt.ReasonCannotDecode:
		return http.StatusUnprocessableEntity
	case hunt.ReasonOutOfMemory:
		return http.StatusInsufficientStorage
	case hunt.ReasonNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// parseOptions builds request options from the query. maxOutput selects
// Exact options; level, maxDim or format alone select Fuzzy options.
func parseOptions(q url.Values, defaults options.Options) (options.Options, error) {
	format := defaults.Format()
	if v := q.Get("format"); v != "" {
		f, err := options.ParseFormat(v)
		if err != nil {
			return options.Options{}, err
		}
		format = f
	}

	dim, hasDim, err := intParam(q, "maxDim")
	if err != nil {
		return options.Options{}, err
	}

	if q.Has("maxOutput") {
		b := options.NewExact().Format(format)
		n, ok, err := intParam(q, "maxOutput")
		if err != nil {
			return options.Options{}, err
		}
		if !ok {
			return options.Options{}, fmt.Errorf("%w: maxOutput is empty", options.ErrInvalid)
		}
		b.MaxOutput(int64(n))
		if n, ok, err := intParam(q, "maxInput"); err != nil {
			return options.Options{}, err
		} else if ok {
			b.MaxInput(int64(n))
		}
		if n, ok, err := intParam(q, "step"); err != nil {
			return options.Options{}, err
		} else if ok {
			b.Step(n)
		}
		if hasDim {
			b.MaxDimension(dim)
		}
		return b.Build()
	}

	if q.Has("maxInput") || q.Has("step") {
		return options.Options{}, fmt.Errorf("%w: maxInput and step need maxOutput", options.ErrInvalid)
	}
	if !q.Has("level") && !q.Has("format") && !hasDim {
		return defaults, nil
	}

	level := defaults.Level()
	if v := q.Get("level"); v != "" {
		l, err := options.ParseLevel(v)
		if err != nil {
			return options.Options{}, err
		}
		level = l
	}
	b := options.NewFuzzy().Level(level).Format(format)
	switch {
	case hasDim:
		b.MaxDimension(dim)
	case defaults.MaxDimension() > 0:
		b.MaxDimension(defaults.MaxDimension())
	}
	return b.Build()
}

// intParam parses an integer query parameter, reporting whether it was given.
func intParam(q url.Values, name string) (int, bool, error) {
	v := q.Get(name)
	if v == "" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, true, fmt.Errorf("%w: %s must be an integer, got %q", options.ErrInvalid, name, v)
	}
	return n, true, nil
}
