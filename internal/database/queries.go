package database

import (
	"context"
	"time"
)

// CalculateStats counts the indexed images, their total size and the split
// by decoder format.
func (d *Database) CalculateStats(ctx context.Context) (IndexStats, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("calculate_stats", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	stats := IndexStats{ByFormat: make(map[string]int)}

	err = d.db.QueryRowContext(ctx, "SELECT COUNT(*), COALESCE(SUM(size), 0) FROM media").
		Scan(&stats.TotalImages, &stats.TotalBytes)
	if err != nil {
		return stats, err
	}

	rows, err := d.db.QueryContext(ctx, "SELECT COALESCE(format, ''), COUNT(*) FROM media GROUP BY format")
	if err != nil {
		return stats, err
	}
	defer rows.Close()

	for rows.Next() {
		var format string
		var n int
		if err = rows.Scan(&format, &n); err != nil {
			return stats, err
		}
		if format == "" {
			format = "unknown"
		}
		stats.ByFormat[format] += n
	}
	err = rows.Err()
	return stats, err
}
