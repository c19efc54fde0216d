package storage

import (
	"context"
	"errors"
	"time"
)

// DefaultLockTimeout bounds how long Update waits for the exclusive section.
const DefaultLockTimeout = 30 * time.Second

var (
	// ErrLockTimeout is returned when the exclusive section could not be
	// acquired within the configured lock timeout.
	ErrLockTimeout = errors.New("timed out waiting for storage lock")

	// ErrUnavailable is returned when the backing storage cannot be reached
	// or prepared (directory creation, lock file, connection).
	ErrUnavailable = errors.New("storage unavailable")

	// ErrLockLost is returned when the exclusive section expired before the
	// document was written. Nothing is written in that case.
	ErrLockLost = errors.New("storage lock lost before write")
)

// Mutator receives the current document (nil when none exists) and returns
// the replacement. Returning a nil slice leaves the document untouched.
// Returning an error aborts the update without writing anything.
type Mutator func(current []byte) (next []byte, err error)

// Store is a single document guarded by an exclusive cross-process section.
type Store interface {
	// Update runs fn while holding the exclusive section for this document.
	// Errors returned by fn are passed through unchanged.
	Update(ctx context.Context, fn Mutator) error

	// Location describes where the document lives, for diagnostics.
	Location() string
}

// Read returns the current document without modifying it.
func Read(ctx context.Context, s Store) ([]byte, error) {
	var out []byte
	err := s.Update(ctx, func(current []byte) ([]byte, error) {
		out = current
		return nil, nil
	})
	return out, err
}

// Write replaces the document unconditionally.
func Write(ctx context.Context, s Store, data []byte) error {
	if data == nil {
		data = []byte{}
	}
	return s.Update(ctx, func([]byte) ([]byte, error) {
		return data, nil
	})
}
