// Package store persists serialized analysis results under expiring keys.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
)

// ErrNotFound is returned by Get for keys that are absent or expired.
var ErrNotFound = errors.New("store: not found")

// ResultStore is a key-value store with per-entry expiry.
type ResultStore interface {
	// Set stores value under key, replacing any previous value. The entry
	// expires after ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get returns the live value for key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// DeleteExpired removes expired entries and reports how many were removed.
	DeleteExpired(ctx context.Context) (int, error)

	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

func checkSet(key string, ttl time.Duration) error {
	if key == "" {
		return eris.New("store: empty key")
	}
	if ttl <= 0 {
		return eris.Errorf("store: ttl must be positive, got %s", ttl)
	}
	return nil
}
