// Package memory keeps decoding inside the process memory limit.
//
// # Configuration
//
// Call [ConfigureFromEnv] early in main, before significant allocations:
//
//	func main() {
//	    memory.ConfigureFromEnv()
//	    // ...
//	}
//
// Environment variables:
//
//   - GOMEMLIMIT: Standard Go variable. Takes precedence over everything else.
//   - MEMORY_LIMIT: Container memory limit in bytes, typically injected through
//     the Kubernetes Downward API.
//   - MEMORY_RATIO: Share of MEMORY_LIMIT given to the Go heap, 0.0 to 1.0.
//     Default 0.85.
//
// # Budget
//
// A [Budget] is a fifth of the memory limit (512 MiB when none is set). The
// decode engine asks [Budget.Allow] before allocating a pixel buffer, and
// Fuzzy options size their output cap as a fraction of the budget.
//
// # Monitor
//
// A [Monitor] samples heap usage. Above the critical watermark it reports
// paused and triggers a GC; Budget.Allow refuses every allocation while
// paused. It resumes once usage drops under the high watermark.
package memory
