// Package store persists todo records in a key-value service with optional
// per-key expiry and per-key metadata tags.
package store

import (
	"context"
	"time"
)

// KeyInfo is one listed key together with its attached metadata. Meta is nil
// when the key was written without tags.
type KeyInfo struct {
	Name string
	Meta map[string]string
}

// KV is the key-value service the todo store is built on
type KV interface {
	// Put stores value under key. ttl <= 0 means no expiry; an existing
	// expiry is cleared. meta replaces any previously attached tags.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration, meta map[string]string) error

	// Get returns the value under key and whether it exists
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// List enumerates keys beginning with prefix, in no particular order
	List(ctx context.Context, prefix string) ([]KeyInfo, error)

	// Ping verifies the service is reachable
	Ping(ctx context.Context) error
}
