package flow

import (
	"testing"

	"github.com/BTreeMap/BreatheCheck/internal/models"
)

func TestScoreRiskAgeBoundaries(t *testing.T) {
	tests := []struct {
		age      int
		expected int
	}{
		{11, 1},
		{12, 0},
		{35, 0},
		{60, 0},
		{61, 1},
	}

	for _, tt := range tests {
		score, _, _ := ScoreRisk(tt.age, false, false, nil, models.AQIReading{})
		if score != tt.expected {
			t.Errorf("ScoreRisk(age=%d) score = %d, want %d", tt.age, score, tt.expected)
		}
	}
}

func TestScoreRiskFactorWeights(t *testing.T) {
	if score, _, _ := ScoreRisk(30, true, false, nil, models.AQIReading{}); score != 2 {
		t.Errorf("smoker score = %d, want 2", score)
	}
	if score, _, _ := ScoreRisk(30, false, true, nil, models.AQIReading{}); score != 2 {
		t.Errorf("family history score = %d, want 2", score)
	}
	if score, _, _ := ScoreRisk(30, false, false, []string{"cough", "wheezing", "fatigue"}, models.AQIReading{}); score != 3 {
		t.Errorf("symptoms score = %d, want 3", score)
	}
}

func TestScoreRiskAQIBoundaries(t *testing.T) {
	tests := []struct {
		name     string
		aqi      models.AQIReading
		expected int
	}{
		{name: "aqi at threshold", aqi: models.AQIReading{Value: 100, Available: true}, expected: 0},
		{name: "aqi above threshold", aqi: models.AQIReading{Value: 101, Available: true}, expected: 2},
		{name: "aqi unavailable never scores", aqi: models.AQIReading{Value: 300, Available: false}, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, _, _ := ScoreRisk(30, false, false, nil, tt.aqi)
			if score != tt.expected {
				t.Errorf("score = %d, want %d", score, tt.expected)
			}
		})
	}
}

func TestScoreRiskLevels(t *testing.T) {
	tests := []struct {
		name          string
		age           int
		smoker        bool
		family        bool
		symptoms      []string
		aqi           models.AQIReading
		expectedScore int
		expectedLevel models.RiskLevel
		expectedAdv   string
	}{
		{
			name: "zero score is low", age: 30,
			expectedScore: 0, expectedLevel: models.RiskLow, expectedAdv: AdviceLow,
		},
		{
			name: "score two is still low", age: 30, symptoms: []string{"cough", "sneezing"},
			expectedScore: 2, expectedLevel: models.RiskLow, expectedAdv: AdviceLow,
		},
		{
			name: "score three is medium", age: 11, symptoms: []string{"cough", "sneezing"},
			expectedScore: 3, expectedLevel: models.RiskMedium, expectedAdv: AdviceMedium,
		},
		{
			name: "score five is still medium", age: 30, smoker: true, family: true, symptoms: []string{"cough"},
			expectedScore: 5, expectedLevel: models.RiskMedium, expectedAdv: AdviceMedium,
		},
		{
			name: "score six is high", age: 61, smoker: true, family: true, symptoms: []string{"cough"},
			expectedScore: 6, expectedLevel: models.RiskHigh, expectedAdv: AdviceHigh,
		},
		{
			name: "everything stacked", age: 70, smoker: true, family: true,
			symptoms: []string{"cough", "wheezing"}, aqi: models.AQIReading{Value: 180, Available: true},
			expectedScore: 9, expectedLevel: models.RiskHigh, expectedAdv: AdviceHigh,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, level, advice := ScoreRisk(tt.age, tt.smoker, tt.family, tt.symptoms, tt.aqi)
			if score != tt.expectedScore {
				t.Errorf("score = %d, want %d", score, tt.expectedScore)
			}
			if level != tt.expectedLevel {
				t.Errorf("level = %s, want %s", level, tt.expectedLevel)
			}
			if advice != tt.expectedAdv {
				t.Errorf("advice = %q, want %q", advice, tt.expectedAdv)
			}
		})
	}
}

func TestScoreRiskDeterministic(t *testing.T) {
	symptoms := []string{"cough", "chest tightness"}
	aqi := models.AQIReading{Value: 120, Available: true}
	s1, l1, a1 := ScoreRisk(45, true, false, symptoms, aqi)
	s2, l2, a2 := ScoreRisk(45, true, false, symptoms, aqi)
	if s1 != s2 || l1 != l2 || a1 != a2 {
		t.Errorf("repeated scoring diverged: (%d,%s,%q) vs (%d,%s,%q)", s1, l1, a1, s2, l2, a2)
	}
}
