// Package service implements the URL-shortening business logic on top of the
// storage.KV abstraction.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/VictoriaMetrics/metrics"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/vadimbarashkov/keyurl/internal/models"
	"github.com/vadimbarashkov/keyurl/internal/storage"
)

// KeyPrefix namespaces every record written by the service, one hash per slug.
const KeyPrefix = "keyurl:url:"

// Field names of a URL record.
const (
	fieldURL        = "url"
	fieldOwnerKey   = "key"
	fieldStats      = "stats"
	fieldLastAccess = "last_access"
)

// accessTrackTimeout bounds the background access-count update so an
// unresponsive store can't pile up goroutines forever.
const accessTrackTimeout = 5 * time.Second

var (
	urlsCreated      = metrics.GetOrCreateCounter(`keyurl_urls_created_total`)
	urlsDeleted      = metrics.GetOrCreateCounter(`keyurl_urls_deleted_total`)
	urlsSwept        = metrics.GetOrCreateCounter(`keyurl_urls_swept_total`)
	redirectsServed  = metrics.GetOrCreateCounter(`keyurl_redirects_total`)
	accessTrackFails = metrics.GetOrCreateCounter(`keyurl_access_track_failures_total`)
)

// URLService manages shortened URL records. The zero value is not usable;
// construct it with NewURLService.
type URLService struct {
	kv         storage.KV
	logger     *slog.Logger
	slugLength int
}

// NewURLService creates a URLService backed by kv. slugLength controls the
// length of generated slugs.
func NewURLService(kv storage.KV, logger *slog.Logger, slugLength int) *URLService {
	return &URLService{
		kv:         kv,
		logger:     logger,
		slugLength: slugLength,
	}
}

// recordKey returns the store key a slug's record lives under.
func recordKey(slug string) string {
	return KeyPrefix + slug
}

// ShortenURL generates a slug for the original URL and persists the record.
// The whole record is written in a single store operation, so a failed create
// never leaves a partial record behind.
//
// Slugs are drawn from a 64-symbol URL-safe alphabet and are long enough that
// collisions are treated as negligible; the generator doesn't check the store
// for an existing record.
func (s *URLService) ShortenURL(ctx context.Context, originalURL, ownerKey string) (*models.URL, error) {
	const op = "service.URLService.ShortenURL"

	slug, err := gonanoid.New(s.slugLength)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to generate slug: %w", op, err)
	}

	now := time.Now()

	err = s.kv.Set(ctx, recordKey(slug), map[string]string{
		fieldURL:        originalURL,
		fieldOwnerKey:   ownerKey,
		fieldStats:      "0",
		fieldLastAccess: strconv.FormatInt(now.Unix(), 10),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: failed to persist url record: %w", op, err)
	}

	urlsCreated.Inc()

	return &models.URL{
		Slug:        slug,
		OriginalURL: originalURL,
		OwnerKey:    ownerKey,
		LastAccess:  now,
	}, nil
}

// ResolveSlug returns the original URL stored for slug, or
// models.ErrURLNotFound if no record exists.
//
// On a hit the access counter is updated by a background goroutine. The
// update is best-effort: its failure is logged and counted, but it never
// delays or fails the redirect itself, and the counter update isn't atomic
// with the read; a crash in between loses at most that one count.
func (s *URLService) ResolveSlug(ctx context.Context, slug string) (*models.URL, error) {
	const op = "service.URLService.ResolveSlug"

	originalURL, err := s.kv.Get(ctx, recordKey(slug), fieldURL)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return nil, fmt.Errorf("%s: %w", op, models.ErrURLNotFound)
		}

		return nil, fmt.Errorf("%s: failed to resolve slug: %w", op, err)
	}

	redirectsServed.Inc()
	go s.trackAccess(slug)

	return &models.URL{
		Slug:        slug,
		OriginalURL: originalURL,
	}, nil
}

// trackAccess bumps the access counter and refreshes the last-access
// timestamp of a record that was just resolved.
func (s *URLService) trackAccess(slug string) {
	const op = "service.URLService.trackAccess"

	ctx, cancel := context.WithTimeout(context.Background(), accessTrackTimeout)
	defer cancel()

	key := recordKey(slug)

	if _, err := s.kv.Increment(ctx, key, fieldStats, 1); err != nil {
		accessTrackFails.Inc()
		s.logger.Warn("failed to track url access",
			slog.String("op", op),
			slog.String("slug", slug),
			slog.Any("err", err),
		)
		return
	}

	err := s.kv.Set(ctx, key, map[string]string{
		fieldLastAccess: strconv.FormatInt(time.Now().Unix(), 10),
	})
	if err != nil {
		accessTrackFails.Inc()
		s.logger.Warn("failed to refresh last access time",
			slog.String("op", op),
			slog.String("slug", slug),
			slog.Any("err", err),
		)
	}
}

// GetURLStats returns the access statistics of a record. The caller must
// present the record's owner key.
//
// A record that has an owner key but no stats field is a store-level anomaly
// and is reported as models.ErrURLNotFound rather than a bogus count.
func (s *URLService) GetURLStats(ctx context.Context, slug, ownerKey string) (*models.URL, error) {
	const op = "service.URLService.GetURLStats"

	if err := s.authorize(ctx, slug, ownerKey); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	raw, err := s.kv.Get(ctx, recordKey(slug), fieldStats)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return nil, fmt.Errorf("%s: %w", op, models.ErrURLNotFound)
		}

		return nil, fmt.Errorf("%s: failed to get url stats: %w", op, err)
	}

	accessCount, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%s: malformed access counter %q: %w", op, raw, err)
	}

	return &models.URL{
		Slug:        slug,
		AccessCount: accessCount,
	}, nil
}

// RotateOwnerKey replaces the record's owner key with newKey. The caller must
// present the current owner key. The target URL and the access counter are
// left untouched.
func (s *URLService) RotateOwnerKey(ctx context.Context, slug, ownerKey, newKey string) error {
	const op = "service.URLService.RotateOwnerKey"

	if err := s.authorize(ctx, slug, ownerKey); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err := s.kv.Set(ctx, recordKey(slug), map[string]string{
		fieldOwnerKey: newKey,
	})
	if err != nil {
		return fmt.Errorf("%s: failed to rotate owner key: %w", op, err)
	}

	return nil
}

// DeleteURL removes the record for slug entirely, including its stats. The
// caller must present the record's owner key. Deleting an already-deleted
// slug reports models.ErrURLNotFound.
func (s *URLService) DeleteURL(ctx context.Context, slug, ownerKey string) error {
	const op = "service.URLService.DeleteURL"

	if err := s.authorize(ctx, slug, ownerKey); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.kv.Delete(ctx, recordKey(slug)); err != nil {
		return fmt.Errorf("%s: failed to delete url record: %w", op, err)
	}

	urlsDeleted.Inc()

	return nil
}

// DeleteIdleURLs removes every record whose last access happened before
// cutoff. It returns the number of records removed.
//
// Records without a readable last-access timestamp are left alone: deleting
// on a missing or garbled field would turn a store anomaly into data loss.
func (s *URLService) DeleteIdleURLs(ctx context.Context, cutoff time.Time) (int, error) {
	const op = "service.URLService.DeleteIdleURLs"

	var deleted int

	err := s.kv.Scan(ctx, KeyPrefix+"*", func(key string) error {
		raw, err := s.kv.Get(ctx, key, fieldLastAccess)
		if err != nil {
			if errors.Is(err, storage.ErrKeyNotFound) {
				return nil
			}

			return err
		}

		ts, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.logger.Warn("skipping record with malformed last access time",
				slog.String("op", op),
				slog.String("key", key),
				slog.Any("err", err),
			)
			return nil
		}

		if time.Unix(ts, 0).Before(cutoff) {
			if err := s.kv.Delete(ctx, key); err != nil {
				return err
			}

			deleted++
			urlsSwept.Inc()
		}

		return nil
	})
	if err != nil {
		return deleted, fmt.Errorf("%s: failed to sweep idle urls: %w", op, err)
	}

	return deleted, nil
}

// authorize checks the presented owner key against the stored one. The
// comparison is plain string equality; the owner key is a bearer credential,
// not a password, and is never hashed.
func (s *URLService) authorize(ctx context.Context, slug, ownerKey string) error {
	storedKey, err := s.kv.Get(ctx, recordKey(slug), fieldOwnerKey)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return models.ErrURLNotFound
		}

		return fmt.Errorf("failed to get owner key: %w", err)
	}

	if storedKey != ownerKey {
		return models.ErrOwnerKeyMismatch
	}

	return nil
}
