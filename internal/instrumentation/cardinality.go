package instrumentation

import (
	"strconv"
	"strings"
)

// Cardinality management helpers for metrics.
// These functions reduce high-cardinality label values to prevent metrics explosion.

// knownPaths are the routes served by the HTTP transport.
var knownPaths = map[string]bool{
	"/mcp":              true,
	"/oauth/callback":   true,
	"/healthz":          true,
	"/readyz":           true,
	"/healthz/detailed": true,
	"/metrics":          true,
}

// NormalizePath maps a request path onto a bounded set of label values.
//
// Example:
//
//	NormalizePath("/mcp")          // "/mcp"
//	NormalizePath("/mcp/")         // "/mcp"
//	NormalizePath("/wp-admin.php") // "other"
func NormalizePath(path string) string {
	if path != "/" {
		path = strings.TrimSuffix(path, "/")
	}
	if knownPaths[path] {
		return path
	}
	return "other"
}

// StatusClass collapses an HTTP status code into "2xx", "4xx", etc.
// A zero status (no response) becomes "error".
func StatusClass(statusCode int) string {
	if statusCode < 100 || statusCode > 599 {
		return "error"
	}
	return strconv.Itoa(statusCode/100) + "xx"
}
