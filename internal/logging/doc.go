// Package logging provides the leveled logging used across image-hunter.
//
// It supports the following log levels:
//   - DEBUG: per-attempt decode details, resolver selection, spool lifecycle
//   - INFO: startup, index runs, completed hunts
//   - WARN: recoverable conditions (allocation pressure, spool cleanup failures)
//   - ERROR: failed hunts and background component failures
//   - FATAL: startup errors that terminate the process
//
// The log level is configured via the LOG_LEVEL environment variable, or
// DEBUG=true, and may be overridden at runtime with SetLevel.
package logging
