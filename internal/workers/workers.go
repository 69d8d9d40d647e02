package workers

import (
	"os"
	"runtime"
	"strconv"
)

// EnvOverride names the environment variable that pins the pool size.
const EnvOverride = "INDEX_WORKERS"

// ioMultiplier is the number of workers per CPU for I/O-bound work.
const ioMultiplier = 2.0

// Count returns multiplier workers per available CPU, at least 1 and at most
// limit (0 means no limit). A positive integer in EnvOverride replaces the
// computed value.
func Count(multiplier float64, limit int) int {
	n, ok := override()
	if !ok {
		// GOMAXPROCS tracks the container CPU limit in Go 1.19+
		n = max(int(float64(runtime.GOMAXPROCS(0))*multiplier), 1)
	}
	if limit > 0 && n > limit {
		n = limit
	}
	return n
}

// ForIO returns the worker count for I/O-bound tasks (2 per CPU), capped at
// limit.
func ForIO(limit int) int {
	return Count(ioMultiplier, limit)
}

// override reports the operator's pinned size, if a valid one is set.
func override() (int, bool) {
	v := os.Getenv(EnvOverride)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
