// Package dispatcher accepts hunt requests and runs them one at a time.
//
// A Dispatcher owns a single worker goroutine draining a FIFO queue, the
// registry of in-flight requests keyed by their dedup key, and an Executor
// that delivers outcomes to callers. Identical requests submitted while one
// is in flight are coalesced onto it. Cancel removes a caller's interest in
// a request; the request itself is stopped once nobody is waiting for it.
//
// Outcomes are never delivered on the worker goroutine. By default they run
// in order on a dedicated delivery goroutine; callers with their own event
// loop supply an Executor instead.
//
// A process-wide instance is available through Instance and Configure for
// callers that do not want to pass a Dispatcher around.
package dispatcher
