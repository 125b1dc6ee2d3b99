// Package storage provides the temporary object store that holds uploaded
// audio while a transcription job reads it.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// ErrLocationExists is returned by Backend.CreateLocation when the location
// is already there, including when another process created it a moment ago.
var ErrLocationExists = errors.New("storage location already exists")

// DefaultExpiryDays is the retention applied to a newly created location so
// objects leaked by a crash still disappear.
const DefaultExpiryDays = 1

// Backend is the remote object storage API.
type Backend interface {
	// LocationExists probes the storage location (bucket).
	LocationExists(ctx context.Context) (bool, error)

	// CreateLocation creates the storage location. Returns ErrLocationExists
	// if it already exists and is usable.
	CreateLocation(ctx context.Context) error

	// SetExpiry installs an expire-after-days rule on the whole location.
	SetExpiry(ctx context.Context, days int) error

	// Put stores body under key.
	Put(ctx context.Context, key string, body []byte, contentType string) error

	// Delete removes key. Returns nil if the object does not exist.
	Delete(ctx context.Context, key string) error

	// URI returns the reference a transcription job uses to read key.
	URI(key string) string
}

// Store provisions its location lazily, once per process, and forwards
// object operations to the backend. It is safe for concurrent use.
type Store struct {
	backend    Backend
	expiryDays int
	log        zerolog.Logger

	mu    sync.Mutex
	ready bool
}

// New creates a Store. expiryDays <= 0 uses DefaultExpiryDays.
func New(backend Backend, expiryDays int, log zerolog.Logger) *Store {
	if expiryDays <= 0 {
		expiryDays = DefaultExpiryDays
	}
	return &Store{backend: backend, expiryDays: expiryDays, log: log}
}

// Ensure makes sure the location exists. Concurrent callers wait for the
// first one; a failed attempt is retried by the next call.
func (s *Store) Ensure(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}

	exists, err := s.backend.LocationExists(ctx)
	if err != nil {
		s.log.Debug().Err(err).Msg("probe storage location failed; trying to create")
	}
	if exists {
		s.log.Info().Msg("using existing storage location")
		s.ready = true
		return nil
	}

	err = s.backend.CreateLocation(ctx)
	switch {
	case errors.Is(err, ErrLocationExists):
		s.log.Info().Msg("storage location created concurrently; using it")
		s.ready = true
		return nil
	case err != nil:
		return fmt.Errorf("create storage location: %w", err)
	}

	if err := s.backend.SetExpiry(ctx, s.expiryDays); err != nil {
		s.log.Warn().Err(err).Msg("could not set expiry policy; leaked objects will not be auto-deleted")
	} else {
		s.log.Info().Int("days", s.expiryDays).Msg("created storage location with auto-delete policy")
	}
	s.ready = true
	return nil
}

// Put ensures the location and stores body under key.
func (s *Store) Put(ctx context.Context, key string, body []byte, contentType string) error {
	if err := s.Ensure(ctx); err != nil {
		return err
	}
	if err := s.backend.Put(ctx, key, body, contentType); err != nil {
		return err
	}
	s.log.Debug().Str("key", key).Int("bytes", len(body)).Msg("object stored")
	return nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.backend.Delete(ctx, key)
}

// URI returns the backend reference for key.
func (s *Store) URI(key string) string {
	return s.backend.URI(key)
}
