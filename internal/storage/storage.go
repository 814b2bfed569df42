// Package storage defines the key/value store abstraction the service is
// built on. Records are addressed by key and hold named string fields.
// Single-key operations are atomic; there are no multi-key transactions.
package storage

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned when a key, or a requested field of an existing
// key, is absent from the store.
var ErrKeyNotFound = errors.New("key not found")

// KV is the minimal contract a storage backend must satisfy.
type KV interface {
	// Get returns the value of a single field of the record stored under key.
	// It returns ErrKeyNotFound if the key or the field doesn't exist.
	Get(ctx context.Context, key, field string) (string, error)

	// Set writes the given fields of the record stored under key, creating
	// the record if necessary. All fields are written in a single operation.
	Set(ctx context.Context, key string, fields map[string]string) error

	// Increment atomically adds delta to an integer field and returns the new
	// value. A missing key or field counts as zero.
	Increment(ctx context.Context, key, field string, delta int64) (int64, error)

	// Delete removes the record stored under key with all of its fields.
	// Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Scan calls fn for every key matching the glob-style pattern. Iteration
	// stops at the first error returned by fn.
	Scan(ctx context.Context, pattern string, fn func(key string) error) error
}
