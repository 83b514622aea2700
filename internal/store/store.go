package store

import (
	"context"
)

// Store is the shared distributed key-value store every cluster node reads the
// job registry from. A record is a flat string map stored under one key.
type Store interface {
	// Get returns the record under key. A missing key yields an empty map.
	Get(ctx context.Context, key string) (map[string]string, error)

	// Set replaces the whole record under key.
	Set(ctx context.Context, key string, values map[string]string) error

	// Keys lists keys matching pattern; '*' matches any suffix.
	Keys(ctx context.Context, pattern string) ([]string, error)

	// Close releases the underlying connection.
	Close() error
}
