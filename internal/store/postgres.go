// Package store provides session storage backends for BreatheCheck.
//
// This file implements the PostgreSQL-backed session store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/BreatheCheck/internal/models"
	_ "github.com/lib/pq"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists sessions in a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL session store and runs migrations.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open PostgreSQL connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("PostgreSQL ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run PostgreSQL migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgreSQL session store ready")

	return &PostgresStore{db: db}, nil
}

// GetSession retrieves a session by user ID, or (nil, nil) when absent.
func (s *PostgresStore) GetSession(userID string) (*models.Session, error) {
	query := `SELECT user_id, step, age, smoker, family_history, symptoms, created_at, updated_at
			  FROM sessions WHERE user_id = $1`

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
		slog.Debug("PostgresStore GetSession not found", "userID", userID)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetSession failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query session for %s: %w", userID, err)
	}

	applyNullableFields(&session, age, smoker, family, symptomsJSON)
	slog.Debug("PostgresStore GetSession found", "userID", userID, "step", session.Step)
	return &session, nil
}

// SaveSession stores or replaces the session for its user ID.
func (s *PostgresStore) SaveSession(session models.Session) error {
	if err := session.Validate(); err != nil {
		return err
	}

	symptomsJSON, err := marshalSymptoms(session.Symptoms)
	if err != nil {
		slog.Error("PostgresStore SaveSession marshal failed", "error", err, "userID", session.UserID)
		return err
	}

	query := `INSERT INTO sessions
			  (user_id, step, age, smoker, family_history, symptoms, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			  ON CONFLICT (user_id) DO UPDATE SET
			      step = EXCLUDED.step,
			      age = EXCLUDED.age,
			      smoker = EXCLUDED.smoker,
			      family_history = EXCLUDED.family_history,
			      symptoms = EXCLUDED.symptoms,
			      updated_at = EXCLUDED.updated_at`
	_, err = s.db.Exec(query, session.UserID, session.Step, nullableInt(session.Age),
		nullableBool(session.Smoker), nullableBool(session.FamilyHistory),
		symptomsJSON, session.CreatedAt, session.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveSession failed", "error", err, "userID", session.UserID)
		return fmt.Errorf("failed to save session for %s: %w", session.UserID, err)
	}
	slog.Debug("PostgresStore SaveSession succeeded", "userID", session.UserID, "step", session.Step)
	return nil
}

// DeleteSession removes the session for a user ID.
func (s *PostgresStore) DeleteSession(userID string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE user_id = $1`, userID)
	if err != nil {
		slog.Error("PostgresStore DeleteSession failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to delete session for %s: %w", userID, err)
	}
	slog.Debug("PostgresStore DeleteSession succeeded", "userID", userID)
	return nil
}

// DeleteSessionsIdleBefore removes sessions whose last update predates the
// cutoff.
func (s *PostgresStore) DeleteSessionsIdleBefore(cutoff time.Time) (int, error) {
	res, err := s.db.Exec(`DELETE FROM sessions WHERE updated_at < $1`, cutoff)
	if err != nil {
		slog.Error("PostgresStore DeleteSessionsIdleBefore failed", "error", err)
		return 0, fmt.Errorf("failed to expire idle sessions: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		slog.Info("PostgresStore expired idle sessions", "count", removed, "cutoff", cutoff)
	}
	return int(removed), nil
}

// Close closes the PostgreSQL connection pool.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing PostgreSQL session store")
	return s.db.Close()
}
