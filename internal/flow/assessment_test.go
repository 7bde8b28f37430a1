package flow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/BTreeMap/BreatheCheck/internal/airquality"
	"github.com/BTreeMap/BreatheCheck/internal/models"
	"github.com/BTreeMap/BreatheCheck/internal/store"
)

func newTestEngine(air airquality.Client) (*Engine, *store.InMemoryStore) {
	st := store.NewInMemoryStore()
	if air == nil {
		air = &airquality.StaticClient{}
	}
	return NewEngine(st, air), st
}

// turn is a test helper that fails the test on any turn error.
func turn(t *testing.T, e *Engine, userID, text string) models.Reply {
	t.Helper()
	reply, err := e.HandleTurn(context.Background(), userID, text)
	if err != nil {
		t.Fatalf("HandleTurn(%q, %q) error: %v", userID, text, err)
	}
	return reply
}

func TestHandleTurnEmptyUserID(t *testing.T) {
	e, _ := newTestEngine(nil)
	if _, err := e.HandleTurn(context.Background(), "", "start"); !errors.Is(err, models.ErrEmptyUserID) {
		t.Errorf("expected ErrEmptyUserID, got %v", err)
	}
}

func TestHandleTurnNoSessionPromptsForStart(t *testing.T) {
	e, st := newTestEngine(nil)
	reply := turn(t, e, "user1", "hello there")
	if reply.Body != PromptIdle {
		t.Errorf("expected idle prompt, got %q", reply.Body)
	}
	if len(reply.Choices) == 0 {
		t.Error("expected start/reset choices on idle prompt")
	}
	if session, _ := st.GetSession("user1"); session != nil {
		t.Error("idle prompt must not create a session")
	}
}

func TestHandleTurnStartCreatesSession(t *testing.T) {
	e, st := newTestEngine(nil)
	reply := turn(t, e, "user1", "start")
	if reply.Body != PromptAge {
		t.Errorf("expected age prompt, got %q", reply.Body)
	}
	session, err := st.GetSession("user1")
	if err != nil || session == nil {
		t.Fatalf("expected session after start, got %v (err %v)", session, err)
	}
	if session.Step != models.StepAwaitingAge {
		t.Errorf("expected step %s, got %s", models.StepAwaitingAge, session.Step)
	}
}

func TestHandleTurnStartOverwritesProgress(t *testing.T) {
	e, st := newTestEngine(nil)
	turn(t, e, "user1", "start")
	turn(t, e, "user1", "30")

	reply := turn(t, e, "user1", "start")
	if reply.Body != PromptAge {
		t.Errorf("expected fresh age prompt, got %q", reply.Body)
	}
	session, _ := st.GetSession("user1")
	if session == nil || session.Step != models.StepAwaitingAge {
		t.Fatalf("expected session back at age step, got %+v", session)
	}
	if session.Age != nil {
		t.Errorf("expected answers cleared after restart, got age %d", *session.Age)
	}
}

func TestHandleTurnResetDeletesSession(t *testing.T) {
	e, st := newTestEngine(nil)
	turn(t, e, "user1", "start")
	turn(t, e, "user1", "30")

	reply := turn(t, e, "user1", "reset")
	if reply.Body != PromptReset {
		t.Errorf("expected reset confirmation, got %q", reply.Body)
	}
	if session, _ := st.GetSession("user1"); session != nil {
		t.Errorf("expected session deleted after reset, got %+v", session)
	}
}

func TestHandleTurnResetWithoutSession(t *testing.T) {
	e, _ := newTestEngine(nil)
	reply := turn(t, e, "user1", "reset")
	if reply.Body != PromptReset {
		t.Errorf("expected reset confirmation even without a session, got %q", reply.Body)
	}
}

func TestHandleTurnAgeValidation(t *testing.T) {
	tests := []struct {
		name  string
		input string
		ok    bool
	}{
		{name: "normal age", input: "30", ok: true},
		{name: "age with spaces", input: " 45 ", ok: true},
		{name: "minimum age", input: "1", ok: true},
		{name: "maximum age", input: "120", ok: true},
		{name: "zero", input: "0", ok: false},
		{name: "above maximum", input: "121", ok: false},
		{name: "negative", input: "-5", ok: false},
		{name: "not a number", input: "thirty", ok: false},
		{name: "empty", input: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, st := newTestEngine(nil)
			turn(t, e, "user1", "start")

			reply := turn(t, e, "user1", tt.input)
			session, _ := st.GetSession("user1")
			if session == nil {
				t.Fatal("session vanished during age step")
			}
			if tt.ok {
				if reply.Body != PromptSmoker {
					t.Errorf("expected smoker prompt, got %q", reply.Body)
				}
				if session.Step != models.StepAwaitingSmoker {
					t.Errorf("expected step %s, got %s", models.StepAwaitingSmoker, session.Step)
				}
			} else {
				if reply.Body != PromptAgeRetry {
					t.Errorf("expected age retry prompt, got %q", reply.Body)
				}
				if session.Step != models.StepAwaitingAge {
					t.Errorf("rejected age must not advance step, got %s", session.Step)
				}
				if session.Age != nil {
					t.Errorf("rejected age must not be recorded, got %d", *session.Age)
				}
			}
		})
	}
}

func TestHandleTurnUnresolvedInputNeverAdvances(t *testing.T) {
	e, st := newTestEngine(nil)
	turn(t, e, "user1", "start")
	turn(t, e, "user1", "30")

	reply := turn(t, e, "user1", "purple monkey dishwasher")
	if !strings.Contains(reply.Body, PromptSmoker) {
		t.Errorf("correction must repeat the step prompt, got %q", reply.Body)
	}
	if len(reply.Choices) == 0 {
		t.Error("correction must re-list the accepted choices")
	}
	session, _ := st.GetSession("user1")
	if session.Step != models.StepAwaitingSmoker {
		t.Errorf("unresolved input advanced step to %s", session.Step)
	}
	if session.Smoker != nil {
		t.Error("unresolved input recorded an answer")
	}
}

func TestHandleTurnSymptomCollection(t *testing.T) {
	e, st := newTestEngine(nil)
	turn(t, e, "user1", "start")
	turn(t, e, "user1", "30")
	turn(t, e, "user1", "no")
	turn(t, e, "user1", "no")

	// Done with nothing selected is rejected.
	reply := turn(t, e, "user1", "done")
	if reply.Body != PromptNeedSymptom {
		t.Errorf("expected at-least-one-symptom prompt, got %q", reply.Body)
	}
	session, _ := st.GetSession("user1")
	if session.Step != models.StepAwaitingSymptoms {
		t.Errorf("done with no symptoms advanced step to %s", session.Step)
	}

	reply = turn(t, e, "user1", "cough")
	if !strings.Contains(reply.Body, "Added symptom: cough") {
		t.Errorf("expected add acknowledgement, got %q", reply.Body)
	}

	// Repeating a symptom is idempotent.
	reply = turn(t, e, "user1", "ไอ")
	if !strings.Contains(reply.Body, "already on your list") {
		t.Errorf("expected duplicate acknowledgement, got %q", reply.Body)
	}
	session, _ = st.GetSession("user1")
	if len(session.Symptoms) != 1 || session.Symptoms[0] != "cough" {
		t.Errorf("expected exactly [cough], got %v", session.Symptoms)
	}

	turn(t, e, "user1", "wheezing")
	session, _ = st.GetSession("user1")
	if len(session.Symptoms) != 2 || session.Symptoms[1] != "wheezing" {
		t.Errorf("insertion order lost: %v", session.Symptoms)
	}

	reply = turn(t, e, "user1", "done")
	if reply.Body != PromptCity {
		t.Errorf("expected city prompt after done, got %q", reply.Body)
	}
}

func TestHandleTurnFullAssessment(t *testing.T) {
	air := &airquality.StaticClient{Reading: models.AQIReading{Value: 180, Available: true}}
	e, st := newTestEngine(air)

	turn(t, e, "user1", "start")
	turn(t, e, "user1", "70")
	turn(t, e, "user1", "yes")
	turn(t, e, "user1", "yes")
	turn(t, e, "user1", "cough")
	turn(t, e, "user1", "wheezing")
	turn(t, e, "user1", "done")
	reply := turn(t, e, "user1", "bangkok")

	// age 70 (+1) + smoker (+2) + family (+2) + 2 symptoms + AQI 180 (+2) = 9
	for _, want := range []string{
		"Age: 70",
		"Smoker: yes",
		"Family history: yes",
		"Symptoms: cough, wheezing",
		"AQI (Bangkok): 180",
		"Risk level: high",
		AdviceHigh,
	} {
		if !strings.Contains(reply.Body, want) {
			t.Errorf("report missing %q:\n%s", want, reply.Body)
		}
	}

	// Completed assessments are never reused.
	if session, _ := st.GetSession("user1"); session != nil {
		t.Errorf("expected session deleted after report, got %+v", session)
	}
	next := turn(t, e, "user1", "bangkok")
	if next.Body != PromptIdle {
		t.Errorf("expected idle prompt after completion, got %q", next.Body)
	}
}

func TestHandleTurnMediumRiskAssessment(t *testing.T) {
	// Non-smoker aged 30 with family history, one symptom, destination AQI
	// 150: 0 + 0 + 2 + 1 + 2 = 5, the top of the medium band.
	air := &airquality.StaticClient{Reading: models.AQIReading{Value: 150, Available: true}}
	e, _ := newTestEngine(air)

	turn(t, e, "user1", "start")
	turn(t, e, "user1", "30")
	turn(t, e, "user1", "no")
	turn(t, e, "user1", "yes")
	turn(t, e, "user1", "cough")
	turn(t, e, "user1", "done")
	reply := turn(t, e, "user1", "phuket")

	for _, want := range []string{
		"Age: 30",
		"Smoker: no",
		"Family history: yes",
		"Symptoms: cough",
		"AQI (Phuket): 150",
		"Risk level: medium",
		AdviceMedium,
	} {
		if !strings.Contains(reply.Body, want) {
			t.Errorf("report missing %q:\n%s", want, reply.Body)
		}
	}
}

func TestHandleTurnUnavailableAQI(t *testing.T) {
	e, _ := newTestEngine(&airquality.StaticClient{})

	turn(t, e, "user1", "start")
	turn(t, e, "user1", "30")
	turn(t, e, "user1", "no")
	turn(t, e, "user1", "no")
	turn(t, e, "user1", "cough")
	turn(t, e, "user1", "done")
	reply := turn(t, e, "user1", "เมือง:เชียงใหม่")

	if !strings.Contains(reply.Body, "AQI (Chiang Mai): unavailable") {
		t.Errorf("expected unavailable AQI in report:\n%s", reply.Body)
	}
	// Score 1: the missing reading contributes nothing.
	if !strings.Contains(reply.Body, "Risk level: low") {
		t.Errorf("expected low risk without AQI term:\n%s", reply.Body)
	}
}

func TestHandleTurnGlobalIntentsOutrankStepVocabulary(t *testing.T) {
	e, st := newTestEngine(nil)
	turn(t, e, "user1", "start")
	turn(t, e, "user1", "30")
	turn(t, e, "user1", "yes")
	turn(t, e, "user1", "yes")

	// "reset" mid-symptoms must reset, not be treated as step input.
	reply := turn(t, e, "user1", "reset")
	if reply.Body != PromptReset {
		t.Errorf("expected reset to win over symptom vocabulary, got %q", reply.Body)
	}
	if session, _ := st.GetSession("user1"); session != nil {
		t.Error("expected session gone after mid-flow reset")
	}
}

func TestHandleTurnUnknownStoredStep(t *testing.T) {
	// The real stores refuse to persist an invalid step, so feed one through
	// a stub, as a downgrade across releases would.
	fs := &stubStore{session: &models.Session{UserID: "user1", Step: "LEGACY_STEP"}}
	e := NewEngine(fs, &airquality.StaticClient{})
	reply, err := e.HandleTurn(context.Background(), "user1", "anything")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.Body != PromptIdle {
		t.Errorf("expected idle prompt after dropping unknown step, got %q", reply.Body)
	}
	if !fs.deleted {
		t.Error("expected unknown-step session to be deleted")
	}
}

func TestHandleTurnStoreFailure(t *testing.T) {
	failure := errors.New("store unavailable")
	e := NewEngine(&stubStore{err: failure}, &airquality.StaticClient{})

	if _, err := e.HandleTurn(context.Background(), "user1", "start"); !errors.Is(err, failure) {
		t.Errorf("expected store failure surfaced from start, got %v", err)
	}
	if _, err := e.HandleTurn(context.Background(), "user1", "hello"); !errors.Is(err, failure) {
		t.Errorf("expected store failure surfaced from load, got %v", err)
	}
}

// stubStore is a minimal Store for exercising failure and corruption paths.
type stubStore struct {
	session *models.Session
	err     error
	deleted bool
}

func (s *stubStore) GetSession(userID string) (*models.Session, error) {
	return s.session, s.err
}

func (s *stubStore) SaveSession(session models.Session) error { return s.err }

func (s *stubStore) DeleteSession(userID string) error {
	s.deleted = true
	return s.err
}

func (s *stubStore) DeleteSessionsIdleBefore(cutoff time.Time) (int, error) { return 0, s.err }

func (s *stubStore) Close() error { return nil }

func TestRenderReport(t *testing.T) {
	report := models.Report{
		Age:           30,
		Smoker:        false,
		FamilyHistory: true,
		Symptoms:      []string{"cough", "fatigue"},
		City:          "Phuket",
		AQI:           models.AQIReading{Value: 55, Available: true},
		Score:         4,
		Level:         models.RiskMedium,
		Advice:        AdviceMedium,
	}
	got := RenderReport(report)
	want := "Asthma travel-risk assessment\n" +
		"Age: 30\n" +
		"Smoker: no\n" +
		"Family history: yes\n" +
		"Symptoms: cough, fatigue\n" +
		"AQI (Phuket): 55\n" +
		"Risk level: medium\n" +
		"Advice: " + AdviceMedium
	if got != want {
		t.Errorf("RenderReport mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}
}
