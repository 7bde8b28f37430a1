// Package store provides session storage backends for BreatheCheck.
//
// This file holds scan/marshal helpers shared by the SQL-backed stores.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/BTreeMap/BreatheCheck/internal/models"
)

// marshalSymptoms encodes the symptom list as JSON, keeping NULL for an empty
// list so storage distinguishes "none yet" cheaply.
func marshalSymptoms(symptoms []string) (sql.NullString, error) {
	if len(symptoms) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(symptoms)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to marshal symptoms: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// applyNullableFields copies scanned nullable columns onto the session.
func applyNullableFields(session *models.Session, age sql.NullInt64, smoker, family sql.NullBool, symptomsJSON sql.NullString) {
	if age.Valid {
		v := int(age.Int64)
		session.Age = &v
	}
	if smoker.Valid {
		v := smoker.Bool
		session.Smoker = &v
	}
	if family.Valid {
		v := family.Bool
		session.FamilyHistory = &v
	}
	if symptomsJSON.Valid && symptomsJSON.String != "" {
		if err := json.Unmarshal([]byte(symptomsJSON.String), &session.Symptoms); err != nil {
			// A corrupt symptom list should not lose the whole session.
			slog.Error("Failed to unmarshal stored symptoms", "error", err, "userID", session.UserID)
			session.Symptoms = nil
		}
	}
}

func nullableInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullableBool(v *bool) sql.NullBool {
	if v == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *v, Valid: true}
}
