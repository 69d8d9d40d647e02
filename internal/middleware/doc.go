// Package middleware provides the HTTP middleware of the hunter.
//
// It includes:
//   - Request logging in W3C Extended Log Format, with the hunt tag column
//   - Prometheus request metrics labeled by mux route template
//   - Configurable filtering for health checks and metrics scrapes
package middleware
