package memory

import (
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"

	"image-hunter/internal/metrics"
)

const (
	// DefaultLimit is assumed when no memory limit is configured.
	DefaultLimit int64 = 512 << 20

	// BudgetDivisor splits the limit: one part for decode buffers, the rest
	// for everything else the process holds.
	BudgetDivisor = 5
)

var (
	// ErrOverBudget means a buffer would exceed the decode budget.
	ErrOverBudget = errors.New("memory: buffer exceeds decode budget")
	// ErrPressure means the monitor reports critical memory usage.
	ErrPressure = errors.New("memory: critical memory pressure")
)

// Budget answers whether a decode buffer of a given size may be allocated.
type Budget struct {
	limit   int64
	monitor *Monitor
}

// NewBudget derives the budget from limit, or from GOMEMLIMIT (falling back to
// DefaultLimit) when limit is not positive. monitor may be nil.
func NewBudget(limit int64, monitor *Monitor) *Budget {
	if limit <= 0 {
		limit = currentGoLimit()
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	b := &Budget{limit: limit, monitor: monitor}
	metrics.MemoryBudgetBytes.Set(float64(b.Available()))
	return b
}

// Limit is the memory limit the budget was derived from.
func (b *Budget) Limit() int64 { return b.limit }

// Available is the decode budget: a fifth of the limit.
func (b *Budget) Available() int64 { return b.limit / BudgetDivisor }

// Fraction returns f of the decode budget.
func (b *Budget) Fraction(f float64) int64 {
	return int64(float64(b.Available()) * f)
}

// Allow checks a prospective allocation of n bytes.
func (b *Budget) Allow(n int64) error {
	if b.monitor.IsPaused() {
		metrics.MemoryGuardRejections.WithLabelValues("pressure").Inc()
		return ErrPressure
	}
	if avail := b.Available(); n > avail {
		metrics.MemoryGuardRejections.WithLabelValues("budget").Inc()
		return fmt.Errorf("%w: need %s, have %s", ErrOverBudget, FormatBytes(n), FormatBytes(avail))
	}
	return nil
}

// ForceGC runs a collection and returns freed memory to the OS.
func ForceGC() {
	runtime.GC()
	debug.FreeOSMemory()
}
