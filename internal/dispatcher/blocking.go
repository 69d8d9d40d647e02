package dispatcher

import (
	"context"
	"fmt"
	"image"

	"image-hunter/internal/engine"
	"image-hunter/internal/hunt"
	"image-hunter/internal/options"
)

type outcome struct {
	res *engine.Result
	err error
}

// waiter turns a callback delivery into a channel send.
type waiter chan outcome

func (w waiter) onResult(res *engine.Result)          { w <- outcome{res: res} }
func (w waiter) OnSuccess(image.Image, hunt.Metadata) {}
func (w waiter) OnError(err *hunt.Error)              { w <- outcome{err: err} }
func (w waiter) OnCancel()                            { w <- outcome{err: hunt.ErrCanceled} }

// HuntBlocking is HuntWithOptions with the default options that waits for the
// outcome.
func (d *Dispatcher) HuntBlocking(ctx context.Context, tag, locator string) (*engine.Result, error) {
	return d.HuntBlockingWithOptions(ctx, tag, locator, d.DefaultOptions())
}

// HuntBlockingWithOptions submits a request and waits for its outcome. Failures
// are *hunt.Error values; cancellation yields hunt.ErrCanceled. If ctx ends
// first the tag is canceled. It must not be called from the Executor's
// context, which would never get to deliver the outcome.
func (d *Dispatcher) HuntBlockingWithOptions(ctx context.Context, tag, locator string, opts options.Options) (*engine.Result, error) {
	if tag == "" {
		tag = hunt.NewTag()
	}
	u, err := hunt.ParseLocator(locator)
	if err != nil {
		return nil, err
	}
	if d.registry.Match(u) == nil {
		return nil, hunt.Errorf(hunt.ReasonUnsupportedSource, "no resolver for scheme %q", u.Scheme)
	}

	w := make(waiter, 1)
	if !d.HuntWithOptions(tag, locator, opts, w) {
		return nil, ErrClosed
	}

	select {
	case o := <-w:
		return o.res, o.err
	case <-ctx.Done():
		d.Cancel(tag)
		return nil, fmt.Errorf("%w: %w", hunt.ErrCanceled, ctx.Err())
	}
}
