package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"image-hunter/internal/codec"
	"image-hunter/internal/engine"
	"image-hunter/internal/hunt"
	"image-hunter/internal/logging"
	"image-hunter/internal/memory"
	"image-hunter/internal/metrics"
	"image-hunter/internal/options"
	"image-hunter/internal/source"
)

// ErrClosed is returned by the blocking calls after Shutdown.
var ErrClosed = errors.New("dispatcher: shut down")

// Config configures a Dispatcher. Zero fields take defaults.
type Config struct {
	// Display sizes the default max dimension of requests.
	Display options.Display
	// SpoolDir receives remote downloads. Defaults to a directory under
	// os.TempDir().
	SpoolDir string
	// Fetch carries the remote resolver's timeouts. SpoolDir overrides
	// Fetch.SpoolDir.
	Fetch source.RemoteConfig
	// Index backs media: locators. Without it those locators are unsupported.
	Index source.Index
	// Resolvers replaces the default file > network > media index order.
	Resolvers []source.Resolver
	// Codec defaults to the standard backend.
	Codec codec.Codec
	// Budget defaults to memory.NewBudget(0, Monitor).
	Budget *memory.Budget
	// Monitor, when set, holds the worker while memory is critical.
	Monitor *memory.Monitor
	// MaxAttempts caps allocation-failure retries per request.
	MaxAttempts int
	// Defaults are the options used by Hunt and HuntTagged. Defaults to
	// options.Default().
	Defaults options.Options
	// Executor delivers outcomes. Defaults to an internal delivery goroutine.
	Executor Executor
}

// Subscriber states. A pending subscriber is claimed exactly once, either by
// delivery or by Cancel.
const (
	subPending int32 = iota
	subDelivered
	subCanceled
)

// subscriber is one caller waiting on an entry.
type subscriber struct {
	tag   string
	cb    hunt.Callback
	entry *entry
	state atomic.Int32
}

func (s *subscriber) claim(state int32) bool {
	return s.state.CompareAndSwap(subPending, state)
}

// entry is a queued or running request and everyone waiting on it.
type entry struct {
	req      *hunt.Request
	resolver source.Resolver
	subs     []*subscriber
}

// Dispatcher serializes hunts onto one worker.
type Dispatcher struct {
	display  options.Display
	registry *source.Registry
	engine   *engine.Engine
	budget   *memory.Budget
	monitor  *memory.Monitor
	exec     Executor
	loop     *deliveryLoop
	defaults atomic.Pointer[options.Options]

	ctx    context.Context
	cancel context.CancelFunc
	queue  *fifo[*entry]
	wg     sync.WaitGroup

	mu       sync.Mutex
	closed   bool
	inflight map[string]*entry        // by dedup key
	tags     map[string][]*subscriber // subscribers not yet claimed by delivery
}

// New creates a Dispatcher and starts its worker.
func New(cfg Config) *Dispatcher {
	if cfg.SpoolDir == "" {
		cfg.SpoolDir = cfg.Fetch.SpoolDir
	}
	if cfg.SpoolDir == "" {
		cfg.SpoolDir = filepath.Join(os.TempDir(), "image-hunter")
	}
	if err := os.MkdirAll(cfg.SpoolDir, 0o755); err != nil {
		logging.Warn("Dispatcher: cannot create spool directory %s: %v", cfg.SpoolDir, err)
	}
	if cfg.Codec == nil {
		cfg.Codec = codec.NewStandard()
	}
	if cfg.Budget == nil {
		cfg.Budget = memory.NewBudget(0, cfg.Monitor)
	}
	if cfg.Defaults.IsZero() {
		cfg.Defaults = options.Default()
	}

	registry := source.NewRegistry(cfg.Resolvers...)
	if len(cfg.Resolvers) == 0 {
		fetch := cfg.Fetch
		fetch.SpoolDir = cfg.SpoolDir
		registry.Register(source.NewLocal())
		registry.Register(source.NewRemote(fetch))
		if cfg.Index != nil {
			registry.Register(source.NewIndexed(cfg.Index))
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		display:  cfg.Display,
		registry: registry,
		engine:   engine.New(engine.Config{Codec: cfg.Codec, Budget: cfg.Budget, MaxAttempts: cfg.MaxAttempts}),
		budget:   cfg.Budget,
		monitor:  cfg.Monitor,
		exec:     cfg.Executor,
		ctx:      ctx,
		cancel:   cancel,
		queue:    newFIFO[*entry](),
		inflight: make(map[string]*entry),
		tags:     make(map[string][]*subscriber),
	}
	if d.exec == nil {
		d.loop = newDeliveryLoop()
		d.exec = d.loop
	}
	d.defaults.Store(&cfg.Defaults)

	names := make([]string, 0, len(registry.Resolvers()))
	for _, r := range registry.Resolvers() {
		names = append(names, r.Name())
	}
	logging.Info("Dispatcher: started (codec %s, resolvers %v, decode budget %s, spool %s)",
		cfg.Codec.Name(), names, memory.FormatBytes(cfg.Budget.Available()), cfg.SpoolDir)

	d.wg.Add(1)
	go d.work()
	return d
}

// SetDefaultOptions replaces the options used by Hunt and HuntTagged.
// Requests already submitted keep theirs.
func (d *Dispatcher) SetDefaultOptions(opts options.Options) {
	if opts.IsZero() {
		panic("dispatcher: zero default options")
	}
	d.defaults.Store(&opts)
}

// DefaultOptions returns the options used by Hunt and HuntTagged.
func (d *Dispatcher) DefaultOptions() options.Options {
	return *d.defaults.Load()
}

// Display returns the display the dispatcher resolves max dimensions from.
func (d *Dispatcher) Display() options.Display { return d.display }

// InFlight returns the number of queued or running requests.
func (d *Dispatcher) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inflight)
}

// Hunt submits locator with the default options and a fresh tag.
func (d *Dispatcher) Hunt(locator string, cb hunt.Callback) bool {
	return d.HuntWithOptions("", locator, d.DefaultOptions(), cb)
}

// HuntTagged submits locator with the default options under tag.
func (d *Dispatcher) HuntTagged(tag, locator string, cb hunt.Callback) bool {
	return d.HuntWithOptions(tag, locator, d.DefaultOptions(), cb)
}

// HuntWithOptions submits a request. It returns false without registering or
// calling cb when the dispatcher is shut down, and false after delivering
// UnsupportedSource when no resolver accepts locator. An empty tag gets a
// fresh one. Empty locators, zero options and nil callbacks panic.
func (d *Dispatcher) HuntWithOptions(tag, locator string, opts options.Options, cb hunt.Callback) bool {
	if locator == "" {
		panic("dispatcher: empty locator")
	}
	if opts.IsZero() {
		panic("dispatcher: zero options")
	}
	if cb == nil {
		panic("dispatcher: nil callback")
	}
	if d.isClosed() {
		return false
	}

	req, err := hunt.NewRequest(d.ctx, tag, locator, opts.Resolve(d.display, d.budget.Available()))
	if err != nil {
		panic(fmt.Sprintf("dispatcher: %v", err))
	}

	resolver := d.registry.Match(req.Locator)
	if resolver == nil {
		req.Cancel()
		herr := hunt.Errorf(hunt.ReasonUnsupportedSource, "no resolver for scheme %q", req.Locator.Scheme)
		logging.Debug("Dispatcher: %s: %v", req.Tag, herr)
		metrics.HuntRequestsTotal.WithLabelValues("none", herr.Reason.Label()).Inc()
		d.exec.Post(func() { cb.OnError(herr) })
		return false
	}

	sub := &subscriber{tag: req.Tag, cb: cb}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		req.Cancel()
		return false
	}
	if e, ok := d.inflight[req.Key]; ok && !e.req.Canceled() {
		sub.entry = e
		e.subs = append(e.subs, sub)
		d.tags[sub.tag] = append(d.tags[sub.tag], sub)
		d.mu.Unlock()
		req.Cancel()
		metrics.HuntDedupTotal.Inc()
		logging.Debug("Dispatcher: %s joined in-flight %s", sub.tag, e.req.Tag)
		return true
	}

	e := &entry{req: req, resolver: resolver, subs: []*subscriber{sub}}
	sub.entry = e
	if !d.queue.push(e) {
		d.mu.Unlock()
		req.Cancel()
		return false
	}
	d.inflight[req.Key] = e
	d.tags[sub.tag] = append(d.tags[sub.tag], sub)
	inflight := len(d.inflight)
	d.mu.Unlock()

	metrics.HuntInFlight.Set(float64(inflight))
	metrics.HuntQueueDepth.Set(float64(d.queue.len()))
	logging.Debug("Dispatcher: queued %s (%s via %s)", req.Tag, locator, resolver.Name())
	return true
}

// Cancel drops every subscriber registered under tag. A request left without
// subscribers is stopped. Subscribers whose callback implements hunt.Canceler
// are told through the Executor. Unknown tags are ignored.
func (d *Dispatcher) Cancel(tag string) {
	d.mu.Lock()
	subs := d.detach(tag)
	d.mu.Unlock()
	d.notifyCanceled(subs)
}

// CancelAll cancels every tag.
func (d *Dispatcher) CancelAll() {
	d.mu.Lock()
	var subs []*subscriber
	for tag := range d.tags {
		subs = append(subs, d.detach(tag)...)
	}
	d.mu.Unlock()
	d.notifyCanceled(subs)
}

// detach claims tag's pending subscribers as canceled and removes them from
// their entries. Subscribers whose outcome delivery already claimed are
// skipped. Callers hold d.mu.
func (d *Dispatcher) detach(tag string) []*subscriber {
	subs := d.tags[tag]
	if len(subs) == 0 {
		return nil
	}
	delete(d.tags, tag)

	var canceled []*subscriber
	for _, sub := range subs {
		if !sub.claim(subCanceled) {
			continue
		}
		canceled = append(canceled, sub)

		e := sub.entry
		e.subs = without(e.subs, sub)
		if len(e.subs) > 0 {
			continue
		}
		if d.inflight[e.req.Key] == e {
			delete(d.inflight, e.req.Key)
		}
		if !e.req.Canceled() {
			e.req.Cancel()
			metrics.HuntCanceledTotal.Inc()
			logging.Debug("Dispatcher: canceled %s", e.req.Tag)
		}
	}
	metrics.HuntInFlight.Set(float64(len(d.inflight)))
	return canceled
}

func (d *Dispatcher) notifyCanceled(subs []*subscriber) {
	for _, sub := range subs {
		if c, ok := sub.cb.(hunt.Canceler); ok {
			d.exec.Post(c.OnCancel)
		}
	}
}

// Shutdown stops accepting requests, cancels everything in flight and stops
// the worker and the default delivery goroutine. Outcomes already produced
// are delivered first. Must not be called from a delivery callback when the
// default Executor is in use.
func (d *Dispatcher) Shutdown() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	logging.Info("Dispatcher: shutting down")
	d.cancel()
	d.queue.close()
	d.wg.Wait()
	if d.loop != nil {
		d.loop.stop()
	}
	forget(d)
	logging.Info("Dispatcher: stopped")
}

func (d *Dispatcher) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// work is the single worker goroutine.
func (d *Dispatcher) work() {
	defer d.wg.Done()
	for {
		e, ok := d.queue.pop()
		if !ok {
			return
		}
		metrics.HuntQueueDepth.Set(float64(d.queue.len()))
		res, err := d.process(e)
		d.exec.Post(func() { d.deliver(e, res, err) })
	}
}

func (d *Dispatcher) process(e *entry) (res *engine.Result, err error) {
	req := e.req
	if req.Canceled() {
		return nil, hunt.ErrCanceled
	}
	if d.monitor != nil && !d.monitor.WaitIfPaused(req.Context()) {
		return nil, hunt.ErrCanceled
	}

	defer func() {
		if r := recover(); r != nil {
			logging.Error("Dispatcher: %s panicked: %v", req.Tag, r)
			res, err = nil, hunt.Errorf(hunt.ReasonCannotDecode, "panic: %v", r)
		}
	}()

	start := time.Now()
	spool, err := e.resolver.Resolve(req.Context(), req)
	metrics.HuntPhaseDuration.WithLabelValues("resolve").Observe(time.Since(start).Seconds())
	if err != nil {
		if req.Canceled() {
			return nil, hunt.ErrCanceled
		}
		return nil, err
	}
	defer e.resolver.Cleanup(spool)

	res, err = d.engine.Run(req, spool.Path)
	if err != nil {
		return nil, err
	}
	res.Metadata.Source = e.resolver.Name()
	return res, nil
}

// deliver runs on the Executor. It retires the entry and hands the outcome to
// every subscriber still attached.
func (d *Dispatcher) deliver(e *entry, res *engine.Result, err error) {
	d.mu.Lock()
	if d.inflight[e.req.Key] == e {
		delete(d.inflight, e.req.Key)
	}
	subs := e.subs
	e.subs = nil
	inflight := len(d.inflight)
	d.mu.Unlock()

	e.req.Cancel()
	metrics.HuntInFlight.Set(float64(inflight))
	d.record(e, err)

	// Subscribers stay findable by tag until claimed here, so a Cancel from
	// any goroutine either claims first or finds the outcome committed.
	for _, sub := range subs {
		if sub.claim(subDelivered) {
			notify(sub.cb, res, err)
		}
	}

	d.mu.Lock()
	for _, sub := range subs {
		d.tags[sub.tag] = without(d.tags[sub.tag], sub)
		if len(d.tags[sub.tag]) == 0 {
			delete(d.tags, sub.tag)
		}
	}
	d.mu.Unlock()
}

func (d *Dispatcher) record(e *entry, err error) {
	src := e.resolver.Name()
	status := "success"
	switch {
	case err == nil:
	case errors.Is(err, hunt.ErrCanceled):
		status = "canceled"
	default:
		status = hunt.AsError(err).Reason.Label()
	}
	metrics.HuntRequestsTotal.WithLabelValues(src, status).Inc()
	metrics.HuntDuration.WithLabelValues(src).Observe(e.req.Cost().Seconds())

	if err != nil && status != "canceled" {
		logging.Info("Dispatcher: %s failed after %d attempts: %v", e.req.Tag, e.req.Attempts, err)
	}
}

// resultReceiver is implemented by internal callbacks that want the encoded
// artifact as well as the image.
type resultReceiver interface {
	onResult(res *engine.Result)
}

func notify(cb hunt.Callback, res *engine.Result, err error) {
	switch {
	case err == nil:
		if rr, ok := cb.(resultReceiver); ok {
			rr.onResult(res)
			return
		}
		cb.OnSuccess(res.Image, res.Metadata)
	case errors.Is(err, hunt.ErrCanceled):
		if c, ok := cb.(hunt.Canceler); ok {
			c.OnCancel()
		}
	default:
		cb.OnError(hunt.AsError(err))
	}
}

func without(subs []*subscriber, s *subscriber) []*subscriber {
	for i, v := range subs {
		if v == s {
			return append(subs[:i:i], subs[i+1:]...)
		}
	}
	return subs
}
