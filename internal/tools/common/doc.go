// Package common holds what every sharedcal tool handler shares: argument
// decoding with validation, structured success and error results, and the
// instrumentation wrapper that records metrics, spans and audit entries.
package common
