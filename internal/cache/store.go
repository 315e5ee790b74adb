// Package cache is the durable key-value layer of the service: fingerprints
// map to immutable entries holding a previously computed result (or the kind
// of a deterministic failure) plus creation time and TTL. Backends: disk
// (default, survives restarts on the mounted cache volume), memory (dev and
// tests) and redis.
package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Entry is one committed computation. Entries are never mutated after
// creation: a recomputation for the same fingerprint writes a whole new
// entry with a fresh CreatedAt.
type Entry struct {
	Fingerprint string  `json:"fingerprint"`
	Result      float64 `json:"result"`
	// ErrKind records a deterministic evaluation failure. Empty for
	// successful results.
	ErrKind string `json:"err_kind,omitempty"`
	// Payload carries structured domain results (spot price data) that do
	// not fit a single float. Result is ignored when Payload is set.
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	// TTL of zero means the entry never expires (complete price days are
	// immutable facts).
	TTL time.Duration `json:"ttl,omitempty"`
}

// IsExpired reports whether the entry is past its TTL at now.
func (e Entry) IsExpired(now time.Time) bool {
	if e.TTL <= 0 {
		return false
	}
	return now.After(e.CreatedAt.Add(e.TTL))
}

// Store is the durable cache contract. Get returns (entry, false, nil) on a
// clean miss; expired entries read as misses. Put must be atomic: once it
// returns nil the entry is recoverable after an unclean shutdown (for the
// disk backend). Concurrent Put for one fingerprint is last-writer-wins and
// must never corrupt storage.
type Store interface {
	Get(ctx context.Context, fingerprint string) (Entry, bool, error)
	Put(ctx context.Context, fingerprint string, entry Entry) error
	Delete(ctx context.Context, fingerprint string) error
	Close() error
}
