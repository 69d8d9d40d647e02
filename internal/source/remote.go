package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"image-hunter/internal/filesystem"
	"image-hunter/internal/hunt"
	"image-hunter/internal/logging"
	"image-hunter/internal/metrics"
)

// Default network timeouts.
const (
	DefaultConnectTimeout = 15 * time.Second
	DefaultReadTimeout    = 20 * time.Second
	DefaultWriteTimeout   = 20 * time.Second
)

// RemoteConfig configures the HTTP resolver.
type RemoteConfig struct {
	SpoolDir       string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration // per read on the connection
	WriteTimeout   time.Duration // per write on the connection
	UserAgent      string
}

// Remote fetches http(s) locators into spool files.
type Remote struct {
	cfg    RemoteConfig
	client *http.Client
	retry  filesystem.RetryConfig
}

// NewRemote creates the HTTP resolver. Zero timeouts take the defaults.
func NewRemote(cfg RemoteConfig) *Remote {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "image-hunter"
	}

	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			return &deadlineConn{Conn: conn, read: cfg.ReadTimeout, write: cfg.WriteTimeout}, nil
		},
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.ReadTimeout,
		MaxIdleConns:          4,
		IdleConnTimeout:       90 * time.Second,
	}

	return &Remote{
		cfg:    cfg,
		client: &http.Client{Transport: transport},
		retry:  filesystem.DefaultRetryConfig(),
	}
}

// deadlineConn arms a fresh deadline before every read and write, so a
// stalled peer fails the operation instead of hanging the worker.
type deadlineConn struct {
	net.Conn
	read  time.Duration
	write time.Duration
}

func (c *deadlineConn) Read(b []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.read)); err != nil {
		return 0, err
	}
	return c.Conn.Read(b)
}

func (c *deadlineConn) Write(b []byte) (int, error) {
	if err := c.Conn.SetWriteDeadline(time.Now().Add(c.write)); err != nil {
		return 0, err
	}
	return c.Conn.Write(b)
}

// Name implements Resolver.
func (r *Remote) Name() string { return "remote" }

// CanHandle accepts http and https URLs with a host.
func (r *Remote) CanHandle(u *url.URL) bool {
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Resolve downloads the body into a new spool file.
func (r *Remote) Resolve(ctx context.Context, req *hunt.Request) (Spool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.Locator.String(), nil)
	if err != nil {
		metrics.FetchTotal.WithLabelValues("transport_error").Inc()
		return Spool{}, hunt.Wrap(hunt.ReasonNetwork, "build request", err)
	}
	httpReq.Header.Set("User-Agent", r.cfg.UserAgent)
	httpReq.Header.Set("Accept", "image/*")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		metrics.FetchTotal.WithLabelValues("transport_error").Inc()
		return Spool{}, hunt.Wrap(hunt.ReasonNetwork, "fetch "+req.Locator.Host, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		metrics.FetchTotal.WithLabelValues("not_found").Inc()
		return Spool{}, hunt.Errorf(hunt.ReasonNotFound, "%s returned %d", req.Locator.Redacted(), resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		metrics.FetchTotal.WithLabelValues("status_error").Inc()
		return Spool{}, hunt.Errorf(hunt.ReasonNetwork, "status %d", resp.StatusCode)
	}

	limit := int64(-1)
	if req.Options.IsExact() {
		limit = req.Options.MaxInputBytes()
	}
	if err := checkInput(req, resp.ContentLength); err != nil {
		metrics.FetchTotal.WithLabelValues("too_large").Inc()
		return Spool{}, err
	}

	f, err := filesystem.CreateSpool(r.cfg.SpoolDir, r.retry)
	if err != nil {
		metrics.FetchTotal.WithLabelValues("io_error").Inc()
		return Spool{}, hunt.Wrap(hunt.ReasonIO, "create spool", err)
	}
	spool := Spool{Path: f.Name(), Owned: true}

	n, err := r.copyBody(f, resp.Body, limit)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = hunt.Wrap(hunt.ReasonIO, "close spool", closeErr)
	}
	if err != nil {
		r.Cleanup(spool)
		var he *hunt.Error
		if errors.As(err, &he) {
			metrics.FetchTotal.WithLabelValues(fetchStatus(he.Reason)).Inc()
		}
		return Spool{}, err
	}

	spool.Size = n
	filesystem.SpoolWritten(n)
	metrics.FetchTotal.WithLabelValues("success").Inc()
	logging.Debug("RemoteSource: fetched %s into %s (%d bytes)", req.Locator.Redacted(), spool.Path, n)
	return spool, nil
}

// copyBody streams body into f, telling read failures (network) apart from
// write failures (local disk) and stopping one byte past limit.
func (r *Remote) copyBody(f *os.File, body io.Reader, limit int64) (int64, error) {
	w := &trackingWriter{w: f}
	src := body
	if limit >= 0 {
		src = io.LimitReader(body, limit+1)
	}

	n, err := io.Copy(w, src)
	if w.err != nil {
		return n, hunt.Wrap(hunt.ReasonIO, "write spool", w.err)
	}
	if err != nil {
		return n, hunt.Wrap(hunt.ReasonNetwork, "read body", err)
	}
	if limit >= 0 && n > limit {
		return n, hunt.NewError(hunt.ReasonTooLarge, fmt.Sprintf("body exceeds limit of %d bytes", limit))
	}
	return n, nil
}

type trackingWriter struct {
	w   io.Writer
	err error
}

func (t *trackingWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if err != nil {
		t.err = err
	}
	return n, err
}

func fetchStatus(r hunt.Reason) string {
	switch r {
	case hunt.ReasonTooLarge:
		return "too_large"
	case hunt.ReasonIO:
		return "io_error"
	default:
		return "transport_error"
	}
}

// Cleanup deletes the spool file.
func (r *Remote) Cleanup(s Spool) {
	if !s.Owned || s.Path == "" {
		return
	}
	if err := filesystem.RemoveSpool(s.Path, r.retry); err != nil {
		logging.Warn("RemoteSource: %v", err)
	}
}
