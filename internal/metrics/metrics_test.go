package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	return m.GetGauge().GetValue()
}

func TestInitializeMetrics(_ *testing.T) {
	// Must not panic on label cardinality mismatches; calling twice is fine.
	InitializeMetrics()
	InitializeMetrics()
}

func TestHuntStatusesIncludeEveryReason(t *testing.T) {
	statuses := HuntStatuses()
	want := []string{"success", "canceled", "not_found", "too_large", "out_of_memory",
		"io_error", "unsupported_source", "unsupported_format", "cannot_decode", "network_error"}

	if len(statuses) != len(want) {
		t.Fatalf("HuntStatuses() = %v, want %v", statuses, want)
	}
	for i := range want {
		if statuses[i] != want[i] {
			t.Errorf("HuntStatuses()[%d] = %q, want %q", i, statuses[i], want[i])
		}
	}
}

func TestFilesystemObserver(t *testing.T) {
	o := NewFilesystemObserver()

	before := counterValue(t, FilesystemOperationErrors.WithLabelValues("spool", "create"))
	o.ObserveOperation("spool", "create", 0.01, nil)
	o.ObserveOperation("spool", "create", 0.01, errors.New("disk full"))
	after := counterValue(t, FilesystemOperationErrors.WithLabelValues("spool", "create"))
	if after-before != 1 {
		t.Errorf("operation errors delta = %v, want 1", after-before)
	}

	staleBefore := counterValue(t, FilesystemStaleErrors.WithLabelValues("stat", "media"))
	o.ObserveStaleError("stat", "media")
	o.ObserveRetryAttempt("stat", "media")
	o.ObserveRetrySuccess("stat", "media")
	o.ObserveRetryDuration("stat", "media", 0.2)
	if got := counterValue(t, FilesystemStaleErrors.WithLabelValues("stat", "media")) - staleBefore; got != 1 {
		t.Errorf("stale errors delta = %v, want 1", got)
	}
}

func TestFilesystemObserverSpool(t *testing.T) {
	o := NewFilesystemObserver().(*filesystemObserver)

	files := gaugeValue(t, SpoolFilesActive)
	bytes := counterValue(t, SpoolBytesTotal)

	o.ObserveSpool(1, 2048)
	o.ObserveSpool(-1, 0)

	if got := gaugeValue(t, SpoolFilesActive); got != files {
		t.Errorf("SpoolFilesActive = %v, want %v", got, files)
	}
	if got := counterValue(t, SpoolBytesTotal) - bytes; got != 2048 {
		t.Errorf("SpoolBytesTotal delta = %v, want 2048", got)
	}
}

type mockStatsProvider struct {
	mu    sync.Mutex
	calls int
	stats Stats
}

func (m *mockStatsProvider) GetStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.stats
}

func (m *mockStatsProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func TestCollectUpdatesGauges(t *testing.T) {
	provider := &mockStatsProvider{stats: Stats{
		TotalImages: 7,
		TotalBytes:  9000,
		ByFormat:    map[string]int{"jpeg": 5, "png": 2},
	}}
	c := NewCollector(provider, time.Hour)
	c.collect()

	if got := gaugeValue(t, MediaImagesTotal.WithLabelValues("jpeg")); got != 5 {
		t.Errorf("jpeg images = %v, want 5", got)
	}
	if got := gaugeValue(t, MediaBytesTotal); got != 9000 {
		t.Errorf("MediaBytesTotal = %v, want 9000", got)
	}
}

func TestCollectWithNilProvider(_ *testing.T) {
	c := NewCollector(nil, time.Hour)
	c.collect()
}

func TestCollectorStartStop(t *testing.T) {
	provider := &mockStatsProvider{}
	c := NewCollector(provider, 10*time.Millisecond)
	c.Start()

	deadline := time.Now().Add(2 * time.Second)
	for provider.callCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	c.Stop()
	c.Stop()

	if provider.callCount() < 2 {
		t.Errorf("collector ran %d times, want at least 2", provider.callCount())
	}
}
