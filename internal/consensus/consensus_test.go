package consensus

import (
	"math"
	"testing"

	"github.com/ppiankov/trialwatch/internal/model"
)

func sig(kind model.AgentKind, level model.RiskLevel, conf float64) model.AgentSignal {
	return model.AgentSignal{AgentKind: kind, RiskLevel: level, Confidence: conf}
}

func TestDecideAllAbstained(t *testing.T) {
	signals := []model.AgentSignal{
		model.AbstainedSignal(model.AgentSafety, "STUDY-001", "no data"),
		model.AbstainedSignal(model.AgentCoding, "STUDY-001", "no data"),
	}

	d := Decide("STUDY-001", signals, nil)

	if d.RiskLevel != model.RiskUnknown {
		t.Errorf("expected UNKNOWN when every agent abstains, got %s", d.RiskLevel)
	}
	if d.RiskScore != 0 || d.Confidence != 0 {
		t.Errorf("expected zero score and confidence, got %v / %v", d.RiskScore, d.Confidence)
	}
	if d.AbstentionCount != 2 {
		t.Errorf("expected abstention count 2, got %d", d.AbstentionCount)
	}
}

func TestDecideEmptySignals(t *testing.T) {
	d := Decide("STUDY-001", nil, nil)
	if d.RiskLevel != model.RiskUnknown {
		t.Errorf("expected UNKNOWN with no signals, got %s", d.RiskLevel)
	}
}

func TestDecideHighWeightHighConfidenceDominates(t *testing.T) {
	signals := []model.AgentSignal{
		sig(model.AgentSafety, model.RiskCritical, 0.95),
		sig(model.AgentCompleteness, model.RiskLow, 0.90),
	}

	d := Decide("STUDY-001", signals, nil)

	// (3·90·0.95 + 1·10·0.90) / (3·0.95 + 1·0.90) = 265.5 / 3.75 = 70.8
	if math.Abs(d.RiskScore-70.8) > 1e-9 {
		t.Errorf("expected score 70.8, got %v", d.RiskScore)
	}
	if d.RiskLevel != model.RiskCritical {
		t.Errorf("a confident high-weight CRITICAL must dominate, got %s", d.RiskLevel)
	}
	// Confidence is the |weight|-weighted average: 3.75 / 4 = 0.9375.
	if math.Abs(d.Confidence-0.9375) > 1e-9 {
		t.Errorf("expected confidence 0.9375, got %v", d.Confidence)
	}
}

func TestDecideNegativeWeightPullsScoreDown(t *testing.T) {
	signals := []model.AgentSignal{
		sig(model.AgentSafety, model.RiskLow, 1.0),
		sig(model.AgentStability, model.RiskCritical, 1.0),
	}

	d := Decide("STUDY-001", signals, nil)

	// Numerator 3·10 − 0.5·90 = −15; the clamp keeps the score at 0.
	if d.RiskScore != 0 {
		t.Errorf("expected score clamped to 0, got %v", d.RiskScore)
	}
	if d.RiskLevel != model.RiskLow {
		t.Errorf("expected LOW, got %s", d.RiskLevel)
	}
	if d.Contributions[model.AgentStability] >= 0 {
		t.Errorf("stability contribution must be negative, got %v", d.Contributions[model.AgentStability])
	}
}

func TestDecideAbstentionLowersConfidence(t *testing.T) {
	signals := []model.AgentSignal{
		sig(model.AgentSafety, model.RiskMedium, 0.8),
		sig(model.AgentCompleteness, model.RiskMedium, 0.8),
		model.AbstainedSignal(model.AgentCoding, "STUDY-001", "no data"),
		model.AbstainedSignal(model.AgentTimeline, "STUDY-001", "no data"),
	}

	d := Decide("STUDY-001", signals, nil)

	// Average confidence 0.8, halved by 2 abstentions out of 4.
	if math.Abs(d.Confidence-0.4) > 1e-9 {
		t.Errorf("expected confidence 0.4, got %v", d.Confidence)
	}
	if d.AbstentionCount != 2 {
		t.Errorf("expected 2 abstentions, got %d", d.AbstentionCount)
	}
}

func TestDecideConservativeTieBreak(t *testing.T) {
	// Equal contribution magnitudes (1·90·0.1 = 1·10·0.9 = 9) with
	// conflicting levels: the severe side floors the decision.
	signals := []model.AgentSignal{
		sig(model.AgentCoding, model.RiskCritical, 0.1),
		sig(model.AgentTimeline, model.RiskLow, 0.9),
	}

	d := Decide("STUDY-001", signals, nil)

	// Raw score (9+9)/(0.1+0.9) = 18 would be MEDIUM.
	if math.Abs(d.RiskScore-18) > 1e-9 {
		t.Errorf("expected raw score 18, got %v", d.RiskScore)
	}
	if d.RiskLevel != model.RiskCritical {
		t.Errorf("conflicting tied contributions must floor to CRITICAL, got %s", d.RiskLevel)
	}
}

func TestDecideNoTieBreakWhenTiedSignalsAgree(t *testing.T) {
	signals := []model.AgentSignal{
		sig(model.AgentCoding, model.RiskMedium, 0.5),
		sig(model.AgentTimeline, model.RiskMedium, 0.5),
	}

	d := Decide("STUDY-001", signals, nil)

	if d.RiskLevel != model.RiskMedium {
		t.Errorf("agreeing tied signals must not escalate, got %s", d.RiskLevel)
	}
}

func TestDecideDeterministic(t *testing.T) {
	signals := []model.AgentSignal{
		sig(model.AgentSafety, model.RiskHigh, 0.7),
		sig(model.AgentQueryQuality, model.RiskMedium, 0.9),
		sig(model.AgentStability, model.RiskLow, 1.0),
		model.AbstainedSignal(model.AgentCoding, "STUDY-001", "no data"),
	}

	first := Decide("STUDY-001", signals, nil)
	for i := 0; i < 10; i++ {
		again := Decide("STUDY-001", signals, nil)
		if again.RiskScore != first.RiskScore || again.RiskLevel != first.RiskLevel || again.Confidence != first.Confidence {
			t.Fatalf("run %d diverged: %+v vs %+v", i, again, first)
		}
	}
}
