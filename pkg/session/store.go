// Package session keeps the chat session identifier of a widget and persists
// it across restarts through a key/value Backend.
package session

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Well-known storage keys of the two widget profiles.
const (
	DefaultKey  = "chatbotSessionId"
	FloatingKey = "paguroSessionId"
)

// Session identifies a conversation on the backend. An empty ID means the
// backend has not issued one yet.
type Session struct {
	ID string `json:"id,omitempty" yaml:"id,omitempty"`
}

func (s Session) IsSet() bool {
	return s.ID != ""
}

// Backend is a persistent key/value area. Implementations must be safe for
// concurrent use.
type Backend interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Store owns the in-memory session and mirrors it to the backend. Backend
// failures degrade to an in-memory session and are never fatal.
type Store struct {
	backend Backend
	key     string

	mu      sync.RWMutex
	current Session
}

// NewStore returns a store persisting under key. A nil backend keeps the
// session in memory only.
func NewStore(backend Backend, key string) *Store {
	key = strings.TrimSpace(key)
	if key == "" {
		key = DefaultKey
	}
	return &Store{backend: backend, key: key}
}

func (s *Store) Key() string {
	return s.key
}

// Load reads the persisted identifier. Missing or unreadable state yields an
// absent session.
func (s *Store) Load(ctx context.Context) Session {
	var loaded Session
	if s.backend != nil {
		id, ok, err := s.backend.Get(ctx, s.key)
		switch {
		case err != nil:
			log.Warn().Err(err).Str("component", "session").Str("key", s.key).Msg("session storage unavailable, starting without session")
		case ok && strings.TrimSpace(id) != "":
			loaded.ID = strings.TrimSpace(id)
			log.Debug().Str("component", "session").Str("session_id", loaded.ID).Msg("restored session")
		default:
			log.Debug().Str("component", "session").Msg("no stored session, a new one will be created")
		}
	}

	s.mu.Lock()
	s.current = loaded
	s.mu.Unlock()
	return loaded
}

// Save replaces the current identifier and persists it. The in-memory session
// is updated even when persisting fails; the error is returned for logging.
func (s *Store) Save(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("session: empty session id")
	}

	s.mu.Lock()
	s.current = Session{ID: id}
	s.mu.Unlock()

	if s.backend == nil {
		return nil
	}
	if err := s.backend.Set(ctx, s.key, id); err != nil {
		log.Warn().Err(err).Str("component", "session").Str("key", s.key).Msg("could not persist session id")
		return errors.Wrap(err, "session: persist")
	}
	log.Debug().Str("component", "session").Str("session_id", id).Msg("session id updated")
	return nil
}

// Current returns the in-memory session.
func (s *Store) Current() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Clear forgets the session in memory and in the backend.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.current = Session{}
	s.mu.Unlock()

	if s.backend == nil {
		return nil
	}
	if err := s.backend.Delete(ctx, s.key); err != nil {
		return errors.Wrap(err, "session: clear")
	}
	return nil
}

// Close releases the backend.
func (s *Store) Close() error {
	if s == nil || s.backend == nil {
		return nil
	}
	return s.backend.Close()
}
