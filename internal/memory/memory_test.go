package memory

import (
	"context"
	"errors"
	"math"
	"runtime"
	"runtime/debug"
	"testing"
	"time"
)

func testMonitor(limit int64) *Monitor {
	return NewMonitor(Config{
		MemoryLimitBytes:  limit,
		HighWaterMark:     0.7,
		CriticalWaterMark: 0.85,
		CheckInterval:     10 * time.Millisecond,
	})
}

func TestMonitorWatermarks(t *testing.T) {
	m := testMonitor(1000)

	m.update(500)
	if m.IsPaused() {
		t.Fatal("paused at 50% usage")
	}

	m.update(900)
	if !m.IsPaused() {
		t.Fatal("not paused at 90% usage")
	}

	// between the watermarks the state holds
	m.update(800)
	if !m.IsPaused() {
		t.Fatal("resumed at 80% usage, above the high watermark")
	}

	m.update(600)
	if m.IsPaused() {
		t.Fatal("still paused at 60% usage")
	}

	current, limit, usage := m.GetStats()
	if current != 600 || limit != 1000 || usage != 0.6 {
		t.Errorf("GetStats() = %d, %d, %v", current, limit, usage)
	}
}

func TestMonitorWaitIfPaused(t *testing.T) {
	m := testMonitor(1000)

	if !m.WaitIfPaused(context.Background()) {
		t.Fatal("WaitIfPaused returned false while not paused")
	}

	m.update(950)
	done := make(chan bool, 1)
	go func() { done <- m.WaitIfPaused(context.Background()) }()

	select {
	case <-done:
		t.Fatal("WaitIfPaused returned while paused")
	case <-time.After(20 * time.Millisecond):
	}

	m.update(100)
	select {
	case ok := <-done:
		if !ok {
			t.Error("WaitIfPaused returned false after resume")
		}
	case <-time.After(time.Second):
		t.Fatal("WaitIfPaused did not return after resume")
	}
}

func TestMonitorWaitIfPausedHonorsContext(t *testing.T) {
	m := testMonitor(1000)
	m.update(950)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if m.WaitIfPaused(ctx) {
		t.Error("WaitIfPaused returned true for a canceled context")
	}

	m.Stop()
	m.Stop()
	if m.WaitIfPaused(context.Background()) {
		t.Error("WaitIfPaused returned true after Stop")
	}
}

func TestMonitorStartStop(t *testing.T) {
	m := testMonitor(1 << 40)
	samples := make(chan struct{}, 10)
	m.readStats = func(s *runtime.MemStats) {
		s.Alloc = 1
		select {
		case samples <- struct{}{}:
		default:
		}
	}
	m.Start()
	defer m.Stop()

	select {
	case <-samples:
	case <-time.After(time.Second):
		t.Fatal("monitor never sampled memory")
	}
}

func TestNilMonitorIsNeverPaused(t *testing.T) {
	var m *Monitor
	if m.IsPaused() {
		t.Error("nil monitor reports paused")
	}
}

func TestBudget(t *testing.T) {
	b := NewBudget(1000, nil)
	if b.Limit() != 1000 {
		t.Errorf("Limit() = %d, want 1000", b.Limit())
	}
	if b.Available() != 200 {
		t.Errorf("Available() = %d, want 200", b.Available())
	}
	if got := b.Fraction(0.5); got != 100 {
		t.Errorf("Fraction(0.5) = %d, want 100", got)
	}

	if err := b.Allow(200); err != nil {
		t.Errorf("Allow(200) = %v, want nil", err)
	}
	if err := b.Allow(201); !errors.Is(err, ErrOverBudget) {
		t.Errorf("Allow(201) = %v, want ErrOverBudget", err)
	}
}

func TestBudgetDefaultLimit(t *testing.T) {
	restoreLimit(t)

	debug.SetMemoryLimit(math.MaxInt64)
	if got := NewBudget(0, nil).Limit(); got != DefaultLimit {
		t.Errorf("Limit() without GOMEMLIMIT = %d, want %d", got, DefaultLimit)
	}

	debug.SetMemoryLimit(100 << 20)
	if got := NewBudget(0, nil).Limit(); got != 100<<20 {
		t.Errorf("Limit() with GOMEMLIMIT = %d, want %d", got, 100<<20)
	}
}

func TestBudgetRefusesUnderPressure(t *testing.T) {
	m := testMonitor(1000)
	b := NewBudget(1<<30, m)

	m.update(999)
	if err := b.Allow(1); !errors.Is(err, ErrPressure) {
		t.Errorf("Allow() under pressure = %v, want ErrPressure", err)
	}

	m.update(10)
	if err := b.Allow(1); err != nil {
		t.Errorf("Allow() after recovery = %v, want nil", err)
	}
}
