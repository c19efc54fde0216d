// Package logging provides structured logging utilities for sharedcal.
//
// This package centralizes logging patterns to ensure consistent, structured logging
// throughout the codebase using the standard library's slog package.
//
// # Usage Patterns
//
// Create a logger with standard attributes:
//
//	logger := logging.WithOperation(slog.Default(), "create_event")
//	logger.Info("event created",
//	    logging.Status("success"),
//	    logging.IdempotencyKey(key))
//
// # Security Considerations
//
//   - Access and refresh tokens are never logged, only their length
//   - Idempotency keys are caller data and are logged as a truncated hash
package logging
