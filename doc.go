// Package main is the image-hunter HTTP server.
//
// The server keeps a SQLite index of the images under MEDIA_DIR and serves
// hunts: an image is acquired from the index (media://), from http(s) or, via
// the hunt CLI, from a local path, then decoded and re-encoded until it fits
// the requested byte and memory budgets.
//
// # Application Lifecycle
//
//  1. Memory configuration: GOMEMLIMIT from the environment or MEMORY_LIMIT
//  2. Configuration loading: environment variables, directory checks
//  3. Component initialization:
//     - Memory monitor and decode budget
//     - Codec: libvips when available, the standard decoders otherwise
//     - Database and indexer (initial index in the background, fsnotify watcher)
//     - Dispatcher: one hunt worker with dedup and cancellation
//     - Metrics collector
//  4. HTTP server with logging and metrics middleware
//  5. Graceful shutdown on SIGINT/SIGTERM: HTTP drain, dispatcher, indexer,
//     database
//
// # Endpoints
//
//	GET    /api/hunt?src=...    blocking hunt, image bytes and X-Hunt-* headers
//	DELETE /api/hunt/{tag}      cancel hunts by tag
//	GET    /api/media/{id}      index entry
//	GET    /api/stats           index statistics
//	POST   /api/reindex         schedule an index run
//	GET    /health, /livez, /readyz, /version, /metrics
package main
