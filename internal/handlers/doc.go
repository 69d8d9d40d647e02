// Package handlers provides the HTTP API of the hunter.
//
// It includes handlers for:
//   - Blocking hunts (GET /api/hunt) and their cancellation
//   - Media index lookups and statistics
//   - Manual re-index triggers
//   - Health, liveness and readiness probes
//   - Version and Prometheus metrics
package handlers
