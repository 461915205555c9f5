// Package arbiter stores the authoritative "current master" of each
// deployment as an append-only history. The newest record wins; records are
// never updated or deleted.
package arbiter

import (
	"context"
	"time"
)

// Record is one master election.
type Record struct {
	// ServerHostPort is "host port", space-delimited.
	ServerHostPort string
	InsertedAt     time.Time
	InsertedBy     string
	Description    string
	Deployment     string
}

// Store is the durable arbiter. Latest reports found=false when the
// deployment has no record yet.
type Store interface {
	Latest(ctx context.Context, deployment string) (Record, bool, error)
	// Insert appends rec. InsertedAt is set by the store when zero.
	Insert(ctx context.Context, rec Record) error
	Close() error
}
