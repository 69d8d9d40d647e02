package metrics

import (
	"sync"
	"time"

	"image-hunter/internal/logging"
)

// StatsProvider interface for collecting stats
type StatsProvider interface {
	GetStats() Stats
}

// StatsFunc adapts a function to StatsProvider.
type StatsFunc func() Stats

// GetStats implements StatsProvider.
func (f StatsFunc) GetStats() Stats { return f() }

// Stats is a snapshot of the media index.
type Stats struct {
	TotalImages int
	TotalBytes  int64
	ByFormat    map[string]int
}

// Collector periodically copies index stats into gauges.
type Collector struct {
	statsProvider StatsProvider
	interval      time.Duration
	stopChan      chan struct{}
	stopOnce      sync.Once
}

// NewCollector creates a new metrics collector
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		interval:      interval,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection. Safe to call more than once.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
}

func (c *Collector) collectLoop() {
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.statsProvider == nil {
		return
	}

	stats := c.statsProvider.GetStats()

	MediaImagesTotal.Reset()
	for format, n := range stats.ByFormat {
		MediaImagesTotal.WithLabelValues(format).Set(float64(n))
	}
	MediaBytesTotal.Set(float64(stats.TotalBytes))

	logging.Debug("Metrics collected: images=%d, bytes=%d, formats=%d",
		stats.TotalImages, stats.TotalBytes, len(stats.ByFormat))
}
