// Package models defines the domain entities and errors shared across the
// service and transport layers.
package models

import (
	"errors"
	"time"
)

var (
	// ErrURLNotFound is returned when no record exists for the requested slug,
	// or when a record is missing a required field and must be treated as absent.
	ErrURLNotFound = errors.New("url not found")
	// ErrOwnerKeyMismatch is returned when the presented owner key doesn't match
	// the key stored with the record.
	ErrOwnerKeyMismatch = errors.New("owner key mismatch")
)

// URL represents a shortened URL record.
type URL struct {
	// Slug is the public identifier the shortened URL is reached by.
	Slug string
	// OriginalURL is the full URL that the slug redirects to.
	OriginalURL string
	// OwnerKey is the secret presented by the record's creator. It authorizes
	// stats reads, key rotation and deletion.
	OwnerKey string
	// AccessCount tracks the number of successful redirects.
	AccessCount uint64
	// LastAccess is the timestamp of the most recent redirect, used by the
	// idle-record sweeper.
	LastAccess time.Time
}
