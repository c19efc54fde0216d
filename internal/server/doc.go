// Package server wires the sharedcal runtime and serves it over HTTP.
//
// # Key Components
//
// ServerContext opens the configured storage backend (file or Valkey) and
// builds the calendar service on top of it: credential store, token
// refresher, authenticated API client and idempotency cache. Tool handlers
// reach the service, metrics and audit logger through it.
//
// HTTPServer exposes, on a single port:
//   - /mcp: the MCP streamable-HTTP transport
//   - /oauth/callback: completion of the one-time Google consent flow
//   - /healthz, /readyz, /healthz/detailed: Kubernetes probes
//
// MetricsServer serves Prometheus metrics on a separate port.
package server
