package calendar

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	eventIDPrefix     = "mcp"
	eventIDHashLength = 29
)

// EventIDForKey derives the event ID used when creating an event under an
// idempotency key. The result is 32 lowercase base32hex characters, which
// Google accepts as a client-chosen event ID, and the same key always maps
// to the same ID so a duplicated insert fails with 409 instead of creating a
// second event.
func EventIDForKey(idempotencyKey string) string {
	sum := sha256.Sum256([]byte(idempotencyKey))
	return strings.ToLower(eventIDPrefix + hex.EncodeToString(sum[:])[:eventIDHashLength])
}
