// Package kv abstracts the authoritative key-value store: durable,
// eventually consistent, one record per key, no multi-key transactions.
// Every write is an idempotent upsert, so transient failures never corrupt
// state; callers retry or surface the error.
package kv

import (
	"context"
	"time"
)

// Page is one slice of a prefix scan. Cursor is opaque; pass it back to
// continue the scan. Complete is true when no further pages exist.
//
// A scan gives no snapshot isolation: keys written or purged mid-scan may or
// may not appear, and a key can appear twice across pages. Consumers must be
// idempotent.
type Page struct {
	Keys     []string
	Cursor   string
	Complete bool
}

// Store is the authoritative store interface.
//
// Get returns sentinel.ErrNotFound for absent keys. Put with a positive ttl
// lets the store physically purge the key after the duration; zero means no
// expiry. Delete is idempotent: deleting an absent key succeeds.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix, cursor string, limit int) (Page, error)
}
