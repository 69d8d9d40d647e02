// Package startup loads the server configuration and prints the startup and
// shutdown banners.
//
// # Configuration
//
// All configuration is loaded from environment variables via [LoadConfig]:
//
//   - MEDIA_DIR: Indexed media directory (default: /media)
//   - CACHE_DIR: Cache directory; remote downloads spool to CACHE_DIR/spool (default: /cache)
//   - DATABASE_DIR: Media index database directory (default: /database)
//   - PORT: HTTP server port (default: 8080)
//   - INDEX_INTERVAL: Full re-index interval as Go duration (default: 30m)
//   - DISPLAY_WIDTH, DISPLAY_HEIGHT: Display used to derive an unset max dimension (default: 1920x1080)
//   - DEFAULT_LEVEL: high, medium or low (default: medium)
//   - DEFAULT_FORMAT: jpeg, png or webp (default: jpeg)
//   - MAX_ATTEMPTS: Allocation failures tolerated per hunt (default: 32)
//   - FETCH_CONNECT_TIMEOUT, FETCH_READ_TIMEOUT, FETCH_WRITE_TIMEOUT: Remote fetch timeouts (default: 15s, 20s, 20s)
//   - VIPS_ENABLED: Use libvips when it initializes (default: true)
//   - METRICS_ENABLED: Serve /metrics (default: true)
//   - LOG_HEALTH_CHECKS: Log health check requests (default: true)
//   - LOG_LEVEL: debug, info, warn or error (default: info)
//
// Memory limits (GOMEMLIMIT, MEMORY_LIMIT, MEMORY_RATIO) are read by the
// memory package; [LogMemoryInit] reports the result.
//
// The database and spool directories must be writable. The media directory
// is created when missing, with a warning on failure.
//
// # Build Information
//
// Version, Commit and BuildTime are injected via ldflags and exposed via
// [GetBuildInfo].
package startup
