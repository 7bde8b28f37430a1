package models

import (
	"errors"
	"testing"
)

func TestNewSession(t *testing.T) {
	s := NewSession("user1")
	if s.UserID != "user1" {
		t.Errorf("expected user1, got %q", s.UserID)
	}
	if s.Step != StepAwaitingAge {
		t.Errorf("expected step %s, got %s", StepAwaitingAge, s.Step)
	}
	if s.Age != nil || s.Smoker != nil || s.FamilyHistory != nil || len(s.Symptoms) != 0 {
		t.Error("fresh session must have no recorded answers")
	}
	if s.CreatedAt.IsZero() || s.UpdatedAt.IsZero() {
		t.Error("fresh session must be timestamped")
	}
}

func TestAddSymptom(t *testing.T) {
	s := NewSession("user1")

	if !s.AddSymptom("cough") {
		t.Error("first add should report true")
	}
	if !s.AddSymptom("wheezing") {
		t.Error("second distinct add should report true")
	}
	if s.AddSymptom("cough") {
		t.Error("duplicate add should report false")
	}

	want := []string{"cough", "wheezing"}
	if len(s.Symptoms) != len(want) {
		t.Fatalf("expected %d symptoms, got %v", len(want), s.Symptoms)
	}
	for i, symptom := range want {
		if s.Symptoms[i] != symptom {
			t.Errorf("symptom[%d] = %q, want %q (insertion order)", i, s.Symptoms[i], symptom)
		}
	}
}

func TestSessionValidate(t *testing.T) {
	age := 30
	badAge := 121

	tests := []struct {
		name    string
		session Session
		wantErr error
	}{
		{
			name:    "valid session",
			session: Session{UserID: "user1", Step: StepAwaitingSmoker, Age: &age},
			wantErr: nil,
		},
		{
			name:    "empty user id",
			session: Session{Step: StepAwaitingAge},
			wantErr: ErrEmptyUserID,
		},
		{
			name:    "invalid step",
			session: Session{UserID: "user1", Step: "COMPLETED"},
			wantErr: ErrInvalidStep,
		},
		{
			name:    "age out of range",
			session: Session{UserID: "user1", Step: StepAwaitingSmoker, Age: &badAge},
			wantErr: ErrAgeOutOfRange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.session.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestIsValidStep(t *testing.T) {
	valid := []Step{StepAwaitingAge, StepAwaitingSmoker, StepAwaitingFamilyHistory, StepAwaitingSymptoms, StepAwaitingCity}
	for _, step := range valid {
		if !IsValidStep(step) {
			t.Errorf("expected %s to be valid", step)
		}
	}
	for _, step := range []Step{"", "IDLE", "COMPLETED", "awaiting_age"} {
		if IsValidStep(step) {
			t.Errorf("expected %s to be invalid", step)
		}
	}
}

func TestAPIResponseHelpers(t *testing.T) {
	ok := Success(map[string]int{"n": 1})
	if ok.Status != "ok" || ok.Result == nil || ok.Message != "" {
		t.Errorf("unexpected success envelope: %+v", ok)
	}
	fail := Error("boom")
	if fail.Status != "error" || fail.Message != "boom" || fail.Result != nil {
		t.Errorf("unexpected error envelope: %+v", fail)
	}
}
