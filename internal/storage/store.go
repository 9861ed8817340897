// Package storage persists normalized records. The harvester is the only
// writer; documents are keyed <TYPE>-<unique_name> so each identity holds
// at most one document.
package storage

import (
	"context"
	"time"

	"fisb_decode/internal/products"
)

// CollectionMSG is the collection holding current normalized records.
const CollectionMSG = "MSG"

// Filter selects documents for FindMany and DeleteMany. Zero-valued fields
// do not constrain the result.
type Filter struct {
	// Type matches the record type exactly.
	Type string

	// KeyPrefix matches the document key prefix.
	KeyPrefix string

	// ExpiredBefore matches records whose expiration time is at or before
	// the given instant.
	ExpiredBefore time.Time
}

// Store is the key-value record store.
type Store interface {
	// Upsert writes the record under its identity key, replacing any
	// existing document.
	Upsert(ctx context.Context, collection string, r *products.Record) error

	// Delete removes the document with the given key. Deleting a missing
	// key is not an error.
	Delete(ctx context.Context, collection, key string) error

	// FindOne returns the document with the given key, or nil when absent.
	FindOne(ctx context.Context, collection, key string) (*products.Record, error)

	// FindMany returns all documents matching the filter.
	FindMany(ctx context.Context, collection string, f Filter) ([]*products.Record, error)

	// DeleteMany removes all documents matching the filter and reports how
	// many were removed.
	DeleteMany(ctx context.Context, collection string, f Filter) (int, error)

	Close() error
}

// matches reports whether a record satisfies the filter. Backends without
// native filtering share it.
func (f Filter) matches(key string, r *products.Record) bool {
	if f.Type != "" && r.Type != f.Type {
		return false
	}
	if f.KeyPrefix != "" && len(key) >= len(f.KeyPrefix) && key[:len(f.KeyPrefix)] != f.KeyPrefix {
		return false
	}
	if f.KeyPrefix != "" && len(key) < len(f.KeyPrefix) {
		return false
	}
	if !f.ExpiredBefore.IsZero() && r.ExpirationTime.After(f.ExpiredBefore) {
		return false
	}
	return true
}
