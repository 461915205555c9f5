// Package provider defines the byte store a tiercache.StoreClient runs on.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly
// the same []byte that was previously passed to Set for a key. If a store
// performs internal transforms (e.g., compression), they MUST be fully
// reversed.
//
// Keys ending in "_$@{EXT}@$" and "_$@{TTL}@$" are owned by tiercache.
package provider

import (
	"context"
	"time"
)

// Provider is a minimal byte store with per-entry TTLs.
// Must be safe for concurrent use.
type Provider interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value with the given TTL. May ignore cost if unsupported.
	// Returns ok=false when the store rejected the write under pressure.
	Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (ok bool, err error)

	// Del removes a key (best-effort).
	Del(ctx context.Context, key string) error

	// Flush drops every entry.
	Flush(ctx context.Context) error

	// Close releases resources.
	Close(ctx context.Context) error
}

// Adder is implemented by providers with a native set-if-absent. Without
// it, a StoreClient serializes Add in process.
type Adder interface {
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
}
