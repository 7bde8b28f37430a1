// Package flow implements the conversational assessment engine for
// BreatheCheck: per-step vocabularies, free-text normalization, the turn
// state machine, and risk scoring.
package flow

import "github.com/BTreeMap/BreatheCheck/internal/models"

// Intent is one accepted meaning within a step's vocabulary. Value is the
// canonical form, Label the display form offered as a quick-reply choice,
// Synonyms any additional accepted spellings (the original Thai button
// payloads are kept here so legacy quick replies still resolve).
type Intent struct {
	Value    string
	Label    string
	Synonyms []string
}

// Vocabulary is the fixed set of intents a step accepts, plus the qualified
// prefixes (e.g. "smoker:", "อาการ:") whose remainder is matched against the
// same intent set.
type Vocabulary struct {
	Prefixes []string
	Intents  []Intent
}

// Canonical intent values shared across steps.
const (
	IntentStart = "start"
	IntentReset = "reset"
	IntentYes   = "yes"
	IntentNo    = "no"
	IntentDone  = "done"
)

// GlobalVocab holds the start and reset intents, which are honored at every
// step regardless of in-progress state.
var GlobalVocab = &Vocabulary{
	Intents: []Intent{
		{Value: IntentStart, Label: "start", Synonyms: []string{"begin", "assess", "ประเมิน"}},
		{Value: IntentReset, Label: "reset", Synonyms: []string{"restart", "cancel", "รีเซ็ต"}},
	},
}

// SmokerVocab accepts the smoker yes/no answer.
var SmokerVocab = &Vocabulary{
	Prefixes: []string{"smoker:"},
	Intents: []Intent{
		{Value: IntentYes, Label: "yes", Synonyms: []string{"y", "smoker", "i smoke", "สูบบุหรี่"}},
		{Value: IntentNo, Label: "no", Synonyms: []string{"n", "non-smoker", "ไม่สูบ", "ไม่สูบบุหรี่"}},
	},
}

// FamilyVocab accepts the family-history yes/no answer.
var FamilyVocab = &Vocabulary{
	Prefixes: []string{"family:"},
	Intents: []Intent{
		{Value: IntentYes, Label: "yes", Synonyms: []string{"y", "ครอบครัวมีประวัติหอบหืด", "มี"}},
		{Value: IntentNo, Label: "no", Synonyms: []string{"n", "ไม่มีประวัติครอบครัว", "ไม่มี"}},
	},
}

// SymptomVocab accepts repeatable symptom selections plus the terminal done
// intent.
var SymptomVocab = &Vocabulary{
	Prefixes: []string{"symptom:", "อาการ:"},
	Intents: []Intent{
		{Value: "cough", Label: "cough", Synonyms: []string{"ไอ"}},
		{Value: "sneezing", Label: "sneezing", Synonyms: []string{"sneeze", "จาม"}},
		{Value: "wheezing", Label: "wheezing", Synonyms: []string{"wheeze", "หายใจมีเสียงวี้ด"}},
		{Value: "chest tightness", Label: "chest tightness", Synonyms: []string{"tight chest", "แน่นหน้าอก"}},
		{Value: "fatigue", Label: "easily fatigued", Synonyms: []string{"tired", "เหนื่อยง่าย"}},
		{Value: IntentDone, Label: "done", Synonyms: []string{"next", "finish", "ถัดไป"}},
	},
}

// CityVocab accepts the destination city.
var CityVocab = &Vocabulary{
	Prefixes: []string{"city:", "เมือง:"},
	Intents: []Intent{
		{Value: "bangkok", Label: "Bangkok", Synonyms: []string{"กรุงเทพ"}},
		{Value: "chiang mai", Label: "Chiang Mai", Synonyms: []string{"chiangmai", "เชียงใหม่"}},
		{Value: "phuket", Label: "Phuket", Synonyms: []string{"ภูเก็ต"}},
		{Value: "khon kaen", Label: "Khon Kaen", Synonyms: []string{"khonkaen", "ขอนแก่น"}},
	},
}

// LabelFor returns the display label for a canonical intent value, falling
// back to the value itself for unknown entries.
func (v *Vocabulary) LabelFor(value string) string {
	for _, intent := range v.Intents {
		if intent.Value == value {
			return intent.Label
		}
	}
	return value
}

// Choices renders the vocabulary as quick-reply choices in declaration order.
func (v *Vocabulary) Choices() []models.Choice {
	choices := make([]models.Choice, 0, len(v.Intents))
	for _, intent := range v.Intents {
		choices = append(choices, models.Choice{Label: intent.Label, Value: intent.Value})
	}
	return choices
}
