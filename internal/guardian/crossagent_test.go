package guardian

import (
	"math"
	"testing"

	"github.com/ppiankov/trialwatch/internal/config"
	"github.com/ppiankov/trialwatch/internal/model"
)

func sig(kind model.AgentKind, level model.RiskLevel, conf float64) model.AgentSignal {
	return model.AgentSignal{AgentKind: kind, RiskLevel: level, Confidence: conf}
}

func hasIssue(issues []Issue, et model.EventType) (Issue, bool) {
	for _, issue := range issues {
		if issue.Type == et {
			return issue, true
		}
	}
	return Issue{}, false
}

func TestCrossAgentEmptyIsTriviallyValid(t *testing.T) {
	r := ValidateCrossAgentSignals(nil, config.Default().Guardian)

	if !r.Valid {
		t.Error("empty signal list must be valid")
	}
	if r.ConsistencyScore != 1.0 {
		t.Errorf("expected consistency 1.0, got %v", r.ConsistencyScore)
	}
	if r.AbstentionRate != 0 {
		t.Errorf("expected abstention rate 0, got %v", r.AbstentionRate)
	}
}

func TestCrossAgentRiskConflict(t *testing.T) {
	signals := []model.AgentSignal{
		sig(model.AgentSafety, model.RiskCritical, 0.9),
		sig(model.AgentCompleteness, model.RiskLow, 0.9),
	}

	r := ValidateCrossAgentSignals(signals, config.Default().Guardian)

	if r.Valid {
		t.Error("CRITICAL alongside LOW must be invalid")
	}
	issue, ok := hasIssue(r.Issues, model.EventRiskConflict)
	if !ok {
		t.Fatal("expected a RISK_CONFLICT issue")
	}
	if issue.Severity != model.SeverityWarning {
		t.Errorf("expected WARNING severity, got %s", issue.Severity)
	}
	if math.Abs(r.ConsistencyScore-0.6) > 1e-9 {
		t.Errorf("expected consistency 0.6 after conflict penalty, got %v", r.ConsistencyScore)
	}
}

func TestCrossAgentAdjacentLevelsAreNoConflict(t *testing.T) {
	signals := []model.AgentSignal{
		sig(model.AgentSafety, model.RiskCritical, 0.9),
		sig(model.AgentCompleteness, model.RiskMedium, 0.9),
	}

	r := ValidateCrossAgentSignals(signals, config.Default().Guardian)

	if _, ok := hasIssue(r.Issues, model.EventRiskConflict); ok {
		t.Error("CRITICAL alongside MEDIUM must not count as a risk conflict")
	}
}

func TestCrossAgentHighAbstention(t *testing.T) {
	signals := []model.AgentSignal{
		sig(model.AgentSafety, model.RiskMedium, 0.8),
		model.AbstainedSignal(model.AgentCompleteness, "STUDY-001", "no data"),
		model.AbstainedSignal(model.AgentCoding, "STUDY-001", "no data"),
		model.AbstainedSignal(model.AgentTimeline, "STUDY-001", "no data"),
		model.AbstainedSignal(model.AgentOperations, "STUDY-001", "no data"),
	}

	r := ValidateCrossAgentSignals(signals, config.Default().Guardian)

	if math.Abs(r.AbstentionRate-0.8) > 1e-9 {
		t.Errorf("expected abstention rate 0.8, got %v", r.AbstentionRate)
	}
	if _, ok := hasIssue(r.Issues, model.EventHighAbstention); !ok {
		t.Error("expected a HIGH_ABSTENTION issue at 80% abstention")
	}
	if math.Abs(r.ConsistencyScore-0.7) > 1e-9 {
		t.Errorf("expected consistency 0.7, got %v", r.ConsistencyScore)
	}
}

func TestCrossAgentExactCutoffDoesNotFire(t *testing.T) {
	// Abstention rate exactly at the cutoff stays on the quiet side.
	signals := []model.AgentSignal{
		sig(model.AgentSafety, model.RiskMedium, 0.8),
		model.AbstainedSignal(model.AgentCoding, "STUDY-001", "no data"),
	}

	r := ValidateCrossAgentSignals(signals, config.Default().Guardian)

	if _, ok := hasIssue(r.Issues, model.EventHighAbstention); ok {
		t.Error("abstention rate exactly at the cutoff must not fire")
	}
}

func TestCrossAgentConfidenceVariance(t *testing.T) {
	// Confidences 0 and 1 hit the maximum population variance of 0.25.
	signals := []model.AgentSignal{
		sig(model.AgentSafety, model.RiskMedium, 1.0),
		sig(model.AgentCompleteness, model.RiskMedium, 0.0),
	}

	r := ValidateCrossAgentSignals(signals, config.Default().Guardian)

	issue, ok := hasIssue(r.Issues, model.EventConfidenceVariance)
	if !ok {
		t.Fatal("expected a CONFIDENCE_VARIANCE issue at maximal spread")
	}
	if issue.Severity != model.SeverityInfo {
		t.Errorf("expected INFO severity, got %s", issue.Severity)
	}
}

func TestCrossAgentPenaltiesAccumulate(t *testing.T) {
	// Conflict + variance + high abstention in one run: 1 − 0.4 − 0.3 − 0.2.
	signals := []model.AgentSignal{
		sig(model.AgentSafety, model.RiskCritical, 1.0),
		sig(model.AgentCompleteness, model.RiskLow, 0.0),
		model.AbstainedSignal(model.AgentCoding, "STUDY-001", "no data"),
		model.AbstainedSignal(model.AgentTimeline, "STUDY-001", "no data"),
		model.AbstainedSignal(model.AgentOperations, "STUDY-001", "no data"),
	}

	r := ValidateCrossAgentSignals(signals, config.Default().Guardian)

	if len(r.Issues) != 3 {
		t.Fatalf("expected 3 issues, got %d: %+v", len(r.Issues), r.Issues)
	}
	if math.Abs(r.ConsistencyScore-0.1) > 1e-9 {
		t.Errorf("expected consistency 0.1, got %v", r.ConsistencyScore)
	}
}

func TestConfidenceVarianceComputation(t *testing.T) {
	cases := []struct {
		confs []float64
		want  float64
	}{
		{nil, 0},
		{[]float64{0.5}, 0},
		{[]float64{0, 1}, 0.25},
		{[]float64{0.5, 0.5, 0.5}, 0},
	}
	for _, tc := range cases {
		var active []model.AgentSignal
		for _, c := range tc.confs {
			active = append(active, sig(model.AgentSafety, model.RiskLow, c))
		}
		if got := confidenceVariance(active); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("confidenceVariance(%v) = %v, want %v", tc.confs, got, tc.want)
		}
	}
}
