// Package settings is the host's simple key-value settings store: the
// place the engine keeps its single JSON blob of persisted records.
//
// Three backends are provided. FileStore keeps every key in one JSON
// document written atomically. SQLiteStore keeps a key/value table.
// MemoryStore is for tests and ephemeral runs.
package settings

import "errors"

// Store maps string keys to opaque byte values.
//
// Implementations are safe for concurrent use. Get reports ok=false for
// an absent key; a nil error with ok=false is not a failure.
type Store interface {
	Get(key string) (value []byte, ok bool, err error)
	Set(key string, value []byte) error
	Delete(key string) error
	Close() error
}

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("settings: store closed")
