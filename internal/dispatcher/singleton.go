package dispatcher

import (
	"errors"
	"sync"

	"image-hunter/internal/options"
)

// ErrAlreadyConfigured is returned by Configure once the shared instance exists.
var ErrAlreadyConfigured = errors.New("dispatcher: shared instance already configured")

var (
	sharedMu sync.Mutex
	shared   *Dispatcher
)

// Configure builds the shared instance from cfg with the given display. It
// fails if the instance already exists; call it before the first Instance.
func Configure(display options.Display, cfg Config) error {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if shared != nil {
		return ErrAlreadyConfigured
	}
	cfg.Display = display
	shared = New(cfg)
	return nil
}

// Instance returns the shared instance, creating it with default
// configuration for display when needed. After Shutdown the next call builds
// a fresh instance.
func Instance(display options.Display) *Dispatcher {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if shared == nil {
		shared = New(Config{Display: display})
	}
	return shared
}

// forget clears the shared instance if it is d.
func forget(d *Dispatcher) {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if shared == d {
		shared = nil
	}
}
