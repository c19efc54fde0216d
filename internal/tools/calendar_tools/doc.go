// Package calendar_tools exposes the shared calendar as MCP tools.
//
// Read tools (list_events, search_events, find_availability) take a required
// time window with an IANA timezone. Mutating tools (create_event,
// update_event, delete_event) require an idempotency key, so a client can
// retry them safely. token_status reports on the shared credential without
// revealing it.
//
// Arguments are validated before any remote call. Failures of either kind
// are returned as structured error results rather than protocol errors.
package calendar_tools
