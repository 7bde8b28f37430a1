package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/BreatheCheck/internal/airquality"
	"github.com/BTreeMap/BreatheCheck/internal/models"
	"github.com/BTreeMap/BreatheCheck/internal/store"
)

// Prompt texts for each step of the assessment.
const (
	PromptIdle        = "Type 'start' to begin the asthma travel-risk assessment, or 'reset' to start over."
	PromptReset       = "Your assessment has been reset. Type 'start' to begin again."
	PromptAge         = "Please enter your age (a number between 1 and 120):"
	PromptAgeRetry    = "Please enter your age as a number between 1 and 120."
	PromptSmoker      = "Do you smoke?"
	PromptFamily      = "Does your family have a history of asthma?"
	PromptSymptoms    = "Select your symptoms (you can pick several, choose 'done' when finished):"
	PromptNeedSymptom = "Please select at least one symptom before finishing."
	PromptCity        = "Which city are you travelling to?"
)

// Engine drives one conversational turn at a time: it loads the user's
// session, resolves the input against the current step's vocabulary, applies
// the transition, and persists or deletes the session. It never advances a
// step on unresolved input.
type Engine struct {
	store store.Store
	air   airquality.Client
}

// NewEngine creates an assessment engine backed by the given session store
// and air-quality client.
func NewEngine(st store.Store, air airquality.Client) *Engine {
	slog.Debug("Creating assessment engine")
	return &Engine{store: st, air: air}
}

// HandleTurn processes one inbound message for a user and returns the reply
// to send. The only error it returns is a session-store failure; every other
// condition resolves to a corrective or advancing reply.
func (e *Engine) HandleTurn(ctx context.Context, userID, rawText string) (models.Reply, error) {
	if userID == "" {
		return models.Reply{}, models.ErrEmptyUserID
	}
	slog.Debug("Engine handling turn", "userID", userID, "text_length", len(rawText))

	// Global intents outrank step vocabulary so start and reset always work.
	if intent, ok := GlobalVocab.Resolve(rawText); ok {
		return e.handleGlobalIntent(userID, intent)
	}

	session, err := e.store.GetSession(userID)
	if err != nil {
		slog.Error("Engine failed to load session", "error", err, "userID", userID)
		return models.Reply{}, fmt.Errorf("failed to load session for %s: %w", userID, err)
	}
	if session == nil {
		slog.Debug("Engine no session, prompting for start", "userID", userID)
		return models.Reply{Body: PromptIdle, Choices: GlobalVocab.Choices()}, nil
	}

	switch session.Step {
	case models.StepAwaitingAge:
		return e.handleAge(session, rawText)
	case models.StepAwaitingSmoker:
		return e.handleSmoker(session, rawText)
	case models.StepAwaitingFamilyHistory:
		return e.handleFamilyHistory(session, rawText)
	case models.StepAwaitingSymptoms:
		return e.handleSymptoms(session, rawText)
	case models.StepAwaitingCity:
		return e.handleCity(ctx, session, rawText)
	default:
		// A stored step this build does not recognize: drop the session
		// rather than trap the user in an unanswerable state.
		slog.Error("Engine found session with unknown step, deleting", "userID", userID, "step", session.Step)
		if err := e.store.DeleteSession(userID); err != nil {
			return models.Reply{}, fmt.Errorf("failed to delete corrupt session for %s: %w", userID, err)
		}
		return models.Reply{Body: PromptIdle, Choices: GlobalVocab.Choices()}, nil
	}
}

// handleGlobalIntent services start and reset, which override any in-progress
// session.
func (e *Engine) handleGlobalIntent(userID, intent string) (models.Reply, error) {
	switch intent {
	case IntentReset:
		if err := e.store.DeleteSession(userID); err != nil {
			slog.Error("Engine reset failed", "error", err, "userID", userID)
			return models.Reply{}, fmt.Errorf("failed to reset session for %s: %w", userID, err)
		}
		slog.Info("Engine session reset", "userID", userID)
		return models.Reply{Body: PromptReset}, nil
	case IntentStart:
		session := models.NewSession(userID)
		if err := e.store.SaveSession(*session); err != nil {
			slog.Error("Engine start failed", "error", err, "userID", userID)
			return models.Reply{}, fmt.Errorf("failed to start session for %s: %w", userID, err)
		}
		slog.Info("Engine session started", "userID", userID)
		return models.Reply{Body: PromptAge}, nil
	default:
		return models.Reply{}, fmt.Errorf("unknown global intent %q", intent)
	}
}

// handleAge parses the free-form numeric age. No vocabulary applies here.
func (e *Engine) handleAge(session *models.Session, rawText string) (models.Reply, error) {
	age, err := strconv.Atoi(Canonicalize(rawText))
	if err != nil || age < models.MinAge || age > models.MaxAge {
		slog.Debug("Engine rejected age input", "userID", session.UserID)
		return models.Reply{Body: PromptAgeRetry}, nil
	}

	session.Age = &age
	session.Step = models.StepAwaitingSmoker
	if err := e.saveSession(session); err != nil {
		return models.Reply{}, err
	}
	return models.Reply{Body: PromptSmoker, Choices: SmokerVocab.Choices()}, nil
}

func (e *Engine) handleSmoker(session *models.Session, rawText string) (models.Reply, error) {
	intent, ok := SmokerVocab.Resolve(rawText)
	if !ok {
		return correctionReply(PromptSmoker, SmokerVocab), nil
	}

	smoker := intent == IntentYes
	session.Smoker = &smoker
	session.Step = models.StepAwaitingFamilyHistory
	if err := e.saveSession(session); err != nil {
		return models.Reply{}, err
	}
	return models.Reply{Body: PromptFamily, Choices: FamilyVocab.Choices()}, nil
}

func (e *Engine) handleFamilyHistory(session *models.Session, rawText string) (models.Reply, error) {
	intent, ok := FamilyVocab.Resolve(rawText)
	if !ok {
		return correctionReply(PromptFamily, FamilyVocab), nil
	}

	family := intent == IntentYes
	session.FamilyHistory = &family
	session.Step = models.StepAwaitingSymptoms
	if err := e.saveSession(session); err != nil {
		return models.Reply{}, err
	}
	return models.Reply{Body: PromptSymptoms, Choices: SymptomVocab.Choices()}, nil
}

// handleSymptoms collects repeatable symptom selections until the done
// intent, which requires at least one recorded symptom.
func (e *Engine) handleSymptoms(session *models.Session, rawText string) (models.Reply, error) {
	intent, ok := SymptomVocab.Resolve(rawText)
	if !ok {
		return correctionReply(PromptSymptoms, SymptomVocab), nil
	}

	if intent == IntentDone {
		if len(session.Symptoms) == 0 {
			slog.Debug("Engine rejected done with no symptoms", "userID", session.UserID)
			return models.Reply{Body: PromptNeedSymptom, Choices: SymptomVocab.Choices()}, nil
		}
		session.Step = models.StepAwaitingCity
		if err := e.saveSession(session); err != nil {
			return models.Reply{}, err
		}
		return models.Reply{Body: PromptCity, Choices: CityVocab.Choices()}, nil
	}

	added := session.AddSymptom(intent)
	if err := e.saveSession(session); err != nil {
		return models.Reply{}, err
	}
	label := SymptomVocab.LabelFor(intent)
	body := fmt.Sprintf("Added symptom: %s. Add another, or choose 'done' when finished.", label)
	if !added {
		body = fmt.Sprintf("%s is already on your list. Add another, or choose 'done' when finished.", label)
	}
	return models.Reply{Body: body, Choices: SymptomVocab.Choices()}, nil
}

// handleCity resolves the destination, fetches the air-quality reading,
// scores the assessment, and retires the session.
func (e *Engine) handleCity(ctx context.Context, session *models.Session, rawText string) (models.Reply, error) {
	intent, ok := CityVocab.Resolve(rawText)
	if !ok {
		return correctionReply(PromptCity, CityVocab), nil
	}

	city := CityVocab.LabelFor(intent)
	reading := e.air.Lookup(ctx, intent)

	score, level, advice := ScoreRisk(*session.Age, *session.Smoker, *session.FamilyHistory, session.Symptoms, reading)
	report := models.Report{
		Age:           *session.Age,
		Smoker:        *session.Smoker,
		FamilyHistory: *session.FamilyHistory,
		Symptoms:      append([]string(nil), session.Symptoms...),
		City:          city,
		AQI:           reading,
		Score:         score,
		Level:         level,
		Advice:        advice,
	}

	// The session is finished; a completed assessment is never reused.
	if err := e.store.DeleteSession(session.UserID); err != nil {
		slog.Error("Engine failed to delete completed session", "error", err, "userID", session.UserID)
		return models.Reply{}, fmt.Errorf("failed to delete session for %s: %w", session.UserID, err)
	}
	slog.Info("Engine assessment completed", "userID", session.UserID, "city", city, "score", score, "level", level, "aqi_available", reading.Available)

	return models.Reply{Body: RenderReport(report)}, nil
}

// saveSession stamps the update time and persists the session.
func (e *Engine) saveSession(session *models.Session) error {
	session.UpdatedAt = time.Now()
	if err := e.store.SaveSession(*session); err != nil {
		slog.Error("Engine failed to save session", "error", err, "userID", session.UserID, "step", session.Step)
		return fmt.Errorf("failed to save session for %s: %w", session.UserID, err)
	}
	return nil
}

// correctionReply re-issues the step prompt with the step's full choice list,
// so a rejected input never goes silent and the accepted vocabulary is always
// re-listed.
func correctionReply(prompt string, vocab *Vocabulary) models.Reply {
	return models.Reply{
		Body:    fmt.Sprintf("Sorry, I didn't catch that. %s", prompt),
		Choices: vocab.Choices(),
	}
}

// RenderReport formats the final assessment report as a single message.
func RenderReport(r models.Report) string {
	symptoms := "none"
	if len(r.Symptoms) > 0 {
		symptoms = strings.Join(r.Symptoms, ", ")
	}
	aqi := "unavailable"
	if r.AQI.Available {
		aqi = strconv.Itoa(r.AQI.Value)
	}
	yesNo := func(v bool) string {
		if v {
			return "yes"
		}
		return "no"
	}

	var b strings.Builder
	b.WriteString("Asthma travel-risk assessment\n")
	fmt.Fprintf(&b, "Age: %d\n", r.Age)
	fmt.Fprintf(&b, "Smoker: %s\n", yesNo(r.Smoker))
	fmt.Fprintf(&b, "Family history: %s\n", yesNo(r.FamilyHistory))
	fmt.Fprintf(&b, "Symptoms: %s\n", symptoms)
	fmt.Fprintf(&b, "AQI (%s): %s\n", r.City, aqi)
	fmt.Fprintf(&b, "Risk level: %s\n", r.Level)
	fmt.Fprintf(&b, "Advice: %s", r.Advice)
	return b.String()
}
