// Package models defines the core data structures for BreatheCheck.
//
// It includes the per-user assessment session, reply payloads, risk report
// types, and messaging events shared across modules.
package models

import (
	"errors"
	"time"
)

// Step identifies the current position in the fixed assessment sequence.
// An absent session is the idle position; a completed session is deleted
// immediately after its report is produced, so only the awaiting steps are
// ever persisted.
type Step string

const (
	// StepAwaitingAge means the session is waiting for a numeric age.
	StepAwaitingAge Step = "AWAITING_AGE"
	// StepAwaitingSmoker means the session is waiting for a smoker yes/no.
	StepAwaitingSmoker Step = "AWAITING_SMOKER"
	// StepAwaitingFamilyHistory means the session is waiting for a family-history yes/no.
	StepAwaitingFamilyHistory Step = "AWAITING_FAMILY_HISTORY"
	// StepAwaitingSymptoms means the session is collecting symptoms.
	StepAwaitingSymptoms Step = "AWAITING_SYMPTOMS"
	// StepAwaitingCity means the session is waiting for a destination city.
	StepAwaitingCity Step = "AWAITING_CITY"
)

// Validation constants for session input
const (
	// MinAge defines the lowest accepted age
	MinAge = 1
	// MaxAge defines the highest accepted age
	MaxAge = 120
)

// Error variables for better error handling and testability
var (
	ErrEmptyUserID   = errors.New("user id cannot be empty")
	ErrInvalidStep   = errors.New("invalid session step")
	ErrAgeOutOfRange = errors.New("age out of accepted range")
)

// IsValidStep checks if the given step is one of the persisted awaiting steps.
func IsValidStep(s Step) bool {
	switch s {
	case StepAwaitingAge, StepAwaitingSmoker, StepAwaitingFamilyHistory, StepAwaitingSymptoms, StepAwaitingCity:
		return true
	default:
		return false
	}
}

// Session holds the in-progress questionnaire state for one user.
// Answer fields are pointers so "not yet asked" is distinguishable from a
// recorded answer.
type Session struct {
	UserID        string    `json:"user_id"`
	Step          Step      `json:"step"`
	Age           *int      `json:"age,omitempty"`
	Smoker        *bool     `json:"smoker,omitempty"`
	FamilyHistory *bool     `json:"family_history,omitempty"`
	Symptoms      []string  `json:"symptoms,omitempty"` // insertion order preserved, duplicates collapsed
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewSession creates a fresh session positioned at the age step.
func NewSession(userID string) *Session {
	now := time.Now()
	return &Session{
		UserID:    userID,
		Step:      StepAwaitingAge,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AddSymptom records a symptom, preserving insertion order and collapsing
// duplicates. It reports whether the symptom was newly added.
func (s *Session) AddSymptom(symptom string) bool {
	for _, existing := range s.Symptoms {
		if existing == symptom {
			return false
		}
	}
	s.Symptoms = append(s.Symptoms, symptom)
	return true
}

// Validate performs basic consistency checks on a session before persisting.
func (s *Session) Validate() error {
	if s.UserID == "" {
		return ErrEmptyUserID
	}
	if !IsValidStep(s.Step) {
		return ErrInvalidStep
	}
	if s.Age != nil && (*s.Age < MinAge || *s.Age > MaxAge) {
		return ErrAgeOutOfRange
	}
	return nil
}

// Choice is one selectable option offered with a prompt, mirroring a
// quick-reply button: Label is shown to the user, Value is the payload that
// resolves without ambiguity.
type Choice struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Reply is the outcome of one conversational turn: the message to send back
// and, when the current step has a fixed vocabulary, the choices it accepts.
type Reply struct {
	Body    string   `json:"body"`
	Choices []Choice `json:"choices,omitempty"`
}

// AQIReading is an air-quality index value or an explicit unavailable marker.
// Absence is a first-class state, never a silent zero.
type AQIReading struct {
	Value     int  `json:"value"`
	Available bool `json:"available"`
}

// RiskLevel is the final classification of an assessment.
type RiskLevel string

const (
	// RiskLow indicates normal travel is fine.
	RiskLow RiskLevel = "low"
	// RiskMedium indicates caution is advised.
	RiskMedium RiskLevel = "medium"
	// RiskHigh indicates travel should be reconsidered.
	RiskHigh RiskLevel = "high"
)

// Report is the final assessment payload rendered verbatim by the
// presentation layer.
type Report struct {
	Age           int        `json:"age"`
	Smoker        bool       `json:"smoker"`
	FamilyHistory bool       `json:"family_history"`
	Symptoms      []string   `json:"symptoms"`
	City          string     `json:"city"`
	AQI           AQIReading `json:"aqi"`
	Score         int        `json:"score"`
	Level         RiskLevel  `json:"level"`
	Advice        string     `json:"advice"`
}

// Receipt records the delivery status of an outbound message.
type Receipt struct {
	To     string `json:"to"`
	Status string `json:"status"`
	Time   int64  `json:"time"`
}

// Receipt status constants.
const (
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
	StatusFailed    = "failed"
)

// Response represents an incoming message from a user.
type Response struct {
	From string `json:"from"`
	Body string `json:"body"`
	Time int64  `json:"time"`
}

// APIResponse is the standard JSON envelope for API endpoints.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: "ok", Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: "error", Message: message}
}
