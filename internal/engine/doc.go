// Package engine runs the adaptive decode loop for a single request.
//
// A request is probed for its dimensions, decoded once per attempt at an
// integer subsample factor that keeps the longest edge near the target
// dimension, and recompressed at a falling quality until the encoded
// artifact fits the output budget. Allocation failures, whether reported by
// the codec or predicted by the memory budget, are retried at the next
// quality level after forcing a collection.
//
// The loop is bounded twice: by the quality floor and by MaxAttempts. The
// request's context is checked before every attempt.
package engine
