// Package store provides session storage backends for BreatheCheck.
//
// It includes an in-memory store for tests and single-process deployments,
// plus SQLite and PostgreSQL backends selected by DSN.
package store

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/BreatheCheck/internal/models"
)

// Store is the session persistence contract consumed by the assessment
// engine. GetSession returns (nil, nil) when no session exists; absence is
// not an error.
type Store interface {
	GetSession(userID string) (*models.Session, error)
	SaveSession(session models.Session) error
	DeleteSession(userID string) error
	// DeleteSessionsIdleBefore removes sessions untouched since the cutoff
	// and reports how many were removed. Used by the idle-expiry sweep.
	DeleteSessionsIdleBefore(cutoff time.Time) (int, error)
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithSQLiteDSN sets a SQLite file path as the store DSN.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets a PostgreSQL connection string as the store DSN.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType classifies a DSN as "postgres" or "sqlite". PostgreSQL DSNs
// use URL or key=value forms; anything else is treated as a SQLite file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// InMemoryStore is a mutex-guarded map-backed Store for tests and
// single-process deployments.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]models.Session
}

// NewInMemoryStore creates an empty in-memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]models.Session)}
}

// GetSession retrieves a session by user ID, or (nil, nil) when absent.
func (s *InMemoryStore) GetSession(userID string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[userID]
	if !ok {
		return nil, nil
	}
	copied := session
	copied.Symptoms = append([]string(nil), session.Symptoms...)
	return &copied, nil
}

// SaveSession stores or replaces the session for its user ID.
func (s *InMemoryStore) SaveSession(session models.Session) error {
	if err := session.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	session.Symptoms = append([]string(nil), session.Symptoms...)
	s.sessions[session.UserID] = session
	return nil
}

// DeleteSession removes the session for a user ID. Deleting an absent
// session is not an error.
func (s *InMemoryStore) DeleteSession(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
	return nil
}

// DeleteSessionsIdleBefore removes sessions whose last update predates the
// cutoff.
func (s *InMemoryStore) DeleteSessionsIdleBefore(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, session := range s.sessions {
		if session.UpdatedAt.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		slog.Debug("InMemoryStore expired idle sessions", "count", removed)
	}
	return removed, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
