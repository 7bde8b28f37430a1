package flow

import "github.com/BTreeMap/BreatheCheck/internal/models"

// Risk level thresholds on the raw score.
const (
	lowScoreMax    = 2
	mediumScoreMax = 5
)

// Advice strings per risk level.
const (
	AdviceLow    = "You can travel as planned. Keep up your usual health routine."
	AdviceMedium = "Be careful: carry your inhaler, wear a mask, and avoid dust and smoke."
	AdviceHigh   = "Travel is not recommended. Please consult a doctor first."
)

// ScoreRisk computes the deterministic asthma risk score and classification
// from the finalized session fields plus an air-quality reading. An
// unavailable reading simply omits the AQI term; it never raises the score
// and never fails the assessment.
func ScoreRisk(age int, smoker, familyHistory bool, symptoms []string, aqi models.AQIReading) (int, models.RiskLevel, string) {
	score := 0
	if age < 12 || age > 60 {
		score++
	}
	if smoker {
		score += 2
	}
	if familyHistory {
		score += 2
	}
	score += len(symptoms)
	if aqi.Available && aqi.Value > 100 {
		score += 2
	}

	switch {
	case score <= lowScoreMax:
		return score, models.RiskLow, AdviceLow
	case score <= mediumScoreMax:
		return score, models.RiskMedium, AdviceMedium
	default:
		return score, models.RiskHigh, AdviceHigh
	}
}
