// Package memory implements the storage.KV interface with an in-process map.
// It is meant for local development and tests; nothing is persisted.
package memory

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"sync"

	"github.com/vadimbarashkov/keyurl/internal/storage"
)

// Storage is a map-backed implementation of storage.KV. A single RWMutex
// guards the whole map, which also gives every operation the same single-key
// atomicity the Redis backend provides.
type Storage struct {
	mu      sync.RWMutex
	records map[string]map[string]string
}

func New() *Storage {
	return &Storage{
		records: make(map[string]map[string]string),
	}
}

func (s *Storage) Get(ctx context.Context, key, field string) (string, error) {
	const op = "storage.memory.Storage.Get"

	s.mu.RLock()
	defer s.mu.RUnlock()

	fields, ok := s.records[key]
	if !ok {
		return "", fmt.Errorf("%s: %w", op, storage.ErrKeyNotFound)
	}

	val, ok := fields[field]
	if !ok {
		return "", fmt.Errorf("%s: %w", op, storage.ErrKeyNotFound)
	}

	return val, nil
}

func (s *Storage) Set(ctx context.Context, key string, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		rec = make(map[string]string, len(fields))
		s.records[key] = rec
	}
	for field, val := range fields {
		rec[field] = val
	}

	return nil
}

func (s *Storage) Increment(ctx context.Context, key, field string, delta int64) (int64, error) {
	const op = "storage.memory.Storage.Increment"

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		rec = make(map[string]string)
		s.records[key] = rec
	}

	var cur int64
	if raw, ok := rec[field]; ok {
		var err error
		cur, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%s: field %q is not an integer: %w", op, field, err)
		}
	}

	cur += delta
	rec[field] = strconv.FormatInt(cur, 10)

	return cur, nil
}

func (s *Storage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, key)

	return nil
}

func (s *Storage) Scan(ctx context.Context, pattern string, fn func(key string) error) error {
	const op = "storage.memory.Storage.Scan"

	s.mu.RLock()
	keys := make([]string, 0, len(s.records))
	for key := range s.records {
		if ok, _ := path.Match(pattern, key); ok {
			keys = append(keys, key)
		}
	}
	s.mu.RUnlock()

	for _, key := range keys {
		if err := fn(key); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	return nil
}
