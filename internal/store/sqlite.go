// Package store provides session storage backends for BreatheCheck.
//
// This file implements the SQLite-backed session store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/BTreeMap/BreatheCheck/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists sessions in a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite session store. The DSN is a file path;
// its directory is created if missing, and migrations run on open.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(cfg.DSN)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run SQLite migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite session store ready", "path", cfg.DSN)

	return &SQLiteStore{db: db}, nil
}

// GetSession retrieves a session by user ID, or (nil, nil) when absent.
func (s *SQLiteStore) GetSession(userID string) (*models.Session, error) {
	query := `SELECT user_id, step, age, smoker, family_history, symptoms, created_at, updated_at
			  FROM sessions WHERE user_id = ?`

	var (
		session      models.Session
		age          sql.NullInt64
		smoker       sql.NullBool
		family       sql.NullBool
		symptomsJSON sql.NullString
	)
	err := s.db.QueryRow(query, userID).Scan(
		&session.UserID, &session.Step, &age, &smoker, &family,
		&symptomsJSON, &session.CreatedAt, &session.UpdatedAt)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetSession not found", "userID", userID)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetSession failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query session for %s: %w", userID, err)
	}

	applyNullableFields(&session, age, smoker, family, symptomsJSON)
	slog.Debug("SQLiteStore GetSession found", "userID", userID, "step", session.Step)
	return &session, nil
}

// SaveSession stores or replaces the session for its user ID.
func (s *SQLiteStore) SaveSession(session models.Session) error {
	if err := session.Validate(); err != nil {
		return err
	}

	symptomsJSON, err := marshalSymptoms(session.Symptoms)
	if err != nil {
		slog.Error("SQLiteStore SaveSession marshal failed", "error", err, "userID", session.UserID)
		return err
	}

	query := `INSERT OR REPLACE INTO sessions
			  (user_id, step, age, smoker, family_history, symptoms, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.Exec(query, session.UserID, session.Step, nullableInt(session.Age),
		nullableBool(session.Smoker), nullableBool(session.FamilyHistory),
		symptomsJSON, session.CreatedAt, session.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveSession failed", "error", err, "userID", session.UserID)
		return fmt.Errorf("failed to save session for %s: %w", session.UserID, err)
	}
	slog.Debug("SQLiteStore SaveSession succeeded", "userID", session.UserID, "step", session.Step)
	return nil
}

// DeleteSession removes the session for a user ID.
func (s *SQLiteStore) DeleteSession(userID string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE user_id = ?`, userID)
	if err != nil {
		slog.Error("SQLiteStore DeleteSession failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to delete session for %s: %w", userID, err)
	}
	slog.Debug("SQLiteStore DeleteSession succeeded", "userID", userID)
	return nil
}

// DeleteSessionsIdleBefore removes sessions whose last update predates the
// cutoff.
func (s *SQLiteStore) DeleteSessionsIdleBefore(cutoff time.Time) (int, error) {
	res, err := s.db.Exec(`DELETE FROM sessions WHERE updated_at < ?`, cutoff)
	if err != nil {
		slog.Error("SQLiteStore DeleteSessionsIdleBefore failed", "error", err)
		return 0, fmt.Errorf("failed to expire idle sessions: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		slog.Info("SQLiteStore expired idle sessions", "count", removed, "cutoff", cutoff)
	}
	return int(removed), nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite session store")
	return s.db.Close()
}
