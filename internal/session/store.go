// Package session owns the single live identity and its persistence across
// restarts. Reads are served from memory; writes go through to a Persister.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/xtrntr/brokerclient/internal/models"
)

// StorageKey is the fixed key the identity record is stored under
const StorageKey = "user"

// Persister stores one serialized record per key. Load returns nil data
// and no error when the key is absent.
type Persister interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Store(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// Store holds the current identity
type Store struct {
	persister Persister
	logger    *slog.Logger

	mu      sync.RWMutex
	current *models.Identity
}

// Open loads any persisted identity. A record that cannot be decoded is
// discarded and treated as absent.
func Open(ctx context.Context, persister Persister, logger *slog.Logger) (*Store, error) {
	s := &Store{persister: persister, logger: logger}

	data, err := persister.Load(ctx, StorageKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if data == nil {
		return s, nil
	}

	var identity models.Identity
	if err := json.Unmarshal(data, &identity); err != nil || identity.Username == "" {
		logger.Warn("discarding unreadable session record", "error", err)
		if err := persister.Delete(ctx, StorageKey); err != nil {
			logger.Warn("failed to delete unreadable session record", "error", err)
		}
		return s, nil
	}
	s.current = &identity
	return s, nil
}

// Save replaces the live identity and persists it
func (s *Store) Save(ctx context.Context, identity models.Identity) error {
	data, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.persister.Store(ctx, StorageKey, data); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}
	s.current = &identity
	s.logger.Info("session started", "username", identity.Username, "user_id", identity.UserID, "admin", identity.IsAdmin)
	return nil
}

// Current returns the live identity, if any
func (s *Store) Current() (models.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return models.Identity{}, false
	}
	return *s.current, true
}

// Clear drops the identity. Safe to call when no session exists.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked(ctx)
}

func (s *Store) clearLocked(ctx context.Context) {
	// memory goes first so the teardown holds even if the persister fails
	wasLive := s.current != nil
	s.current = nil
	if err := s.persister.Delete(ctx, StorageKey); err != nil {
		s.logger.Error("failed to delete persisted session", "error", err)
	}
	if wasLive {
		s.logger.Info("session cleared")
	}
}

// IsAuthenticated reports whether an identity is live
func (s *Store) IsAuthenticated() bool {
	_, ok := s.Current()
	return ok
}

// IsAdministrator reports whether the live identity is an administrator
func (s *Store) IsAdministrator() bool {
	identity, ok := s.Current()
	return ok && identity.IsAdmin
}
