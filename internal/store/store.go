// Package store provides the persistent key-value collaborator the speech
// subsystem uses for crash-consistent counters. Implementations must tolerate
// fire-and-forget writers: Set is called from background goroutines and its
// failures are logged, never surfaced to the admission path.
package store

import "errors"

var (
	// ErrClosed is returned when operations are attempted on a closed store.
	ErrClosed = errors.New("store is closed")
)

// Store is the narrow persistence interface exposed to the rest of the
// system. Get reports whether the key existed so callers can distinguish
// "absent" from "empty value".
type Store interface {
	// Get returns the value for key, whether the key exists, and any error.
	Get(key string) ([]byte, bool, error)

	// Set writes the value for key, replacing any previous value.
	Set(key string, value []byte) error

	// Delete removes the key. Deleting an absent key is not an error.
	Delete(key string) error

	// Close releases the underlying resources.
	Close() error
}
