package guardian

import (
	"fmt"

	"github.com/ppiankov/trialwatch/internal/config"
	"github.com/ppiankov/trialwatch/internal/model"
)

// CrossAgentReport is the result of validating one run's raw signal list.
type CrossAgentReport struct {
	Valid            bool    `json:"valid"`
	Issues           []Issue `json:"issues"`
	ConsistencyScore float64 `json:"consistency_score"`
	AbstentionRate   float64 `json:"abstention_rate"`
}

// ValidateCrossAgentSignals checks the per-agent signals for internal
// contradictions. The consistency score starts at 1.0 and loses a fixed
// penalty per issue type found. An empty signal list is trivially valid.
func ValidateCrossAgentSignals(signals []model.AgentSignal, gc config.GuardianConfig) CrossAgentReport {
	report := CrossAgentReport{Valid: true, ConsistencyScore: 1.0}
	if len(signals) == 0 {
		return report
	}

	abstained := 0
	var active []model.AgentSignal
	for _, sig := range signals {
		if sig.Abstained {
			abstained++
			continue
		}
		active = append(active, sig)
	}
	report.AbstentionRate = float64(abstained) / float64(len(signals))

	// RISK_CONFLICT: two agents looking at the same entity cannot honestly
	// land on CRITICAL and LOW at the same time.
	if conflict, pair := riskConflict(active); conflict {
		report.Issues = append(report.Issues, Issue{
			Type:        model.EventRiskConflict,
			Severity:    model.SeverityWarning,
			Description: "non-abstained signals report CRITICAL and LOW simultaneously",
			Expected:    "agent risk levels within two ranks of each other",
			Actual:      fmt.Sprintf("%s=CRITICAL while %s=LOW", pair[0], pair[1]),
			Recommendation: "inspect the evidence behind both signals; one agent's " +
				"thresholds or inputs are likely wrong",
		})
		report.ConsistencyScore -= gc.RiskConflictPenalty
	}

	// HIGH_ABSTENTION: scoring built mostly on silence is not scoring.
	if report.AbstentionRate > gc.AbstentionCutoff {
		report.Issues = append(report.Issues, Issue{
			Type:        model.EventHighAbstention,
			Severity:    model.SeverityWarning,
			Description: "majority of agents abstained",
			Expected:    fmt.Sprintf("abstention rate <= %.2f", gc.AbstentionCutoff),
			Actual:      fmt.Sprintf("abstention rate %.2f (%d of %d)", report.AbstentionRate, abstained, len(signals)),
			Recommendation: "check upstream feature extraction; most agents had " +
				"no required features to work with",
		})
		report.ConsistencyScore -= gc.AbstentionPenalty
	}

	// CONFIDENCE_VARIANCE: agents disagreeing this much about their own
	// certainty suggests uneven feature coverage.
	if v := confidenceVariance(active); len(active) > 1 && v >= gc.VarianceThreshold {
		report.Issues = append(report.Issues, Issue{
			Type:        model.EventConfidenceVariance,
			Severity:    model.SeverityInfo,
			Description: "confidence values across active agents are maximally spread",
			Expected:    fmt.Sprintf("confidence variance < %.2f", gc.VarianceThreshold),
			Actual:      fmt.Sprintf("confidence variance %.3f", v),
			Recommendation: "review which feature families are missing for the " +
				"low-confidence agents",
		})
		report.ConsistencyScore -= gc.VariancePenalty
	}

	if report.ConsistencyScore < 0 {
		report.ConsistencyScore = 0
	}
	report.Valid = len(report.Issues) == 0
	return report
}

// riskConflict reports whether any two signals are CRITICAL and LOW, and if
// so which agent kinds collided (critical first).
func riskConflict(active []model.AgentSignal) (bool, [2]model.AgentKind) {
	var critical, low []model.AgentKind
	for _, sig := range active {
		switch sig.RiskLevel {
		case model.RiskCritical:
			critical = append(critical, sig.AgentKind)
		case model.RiskLow:
			low = append(low, sig.AgentKind)
		}
	}
	if len(critical) > 0 && len(low) > 0 {
		return true, [2]model.AgentKind{critical[0], low[0]}
	}
	return false, [2]model.AgentKind{}
}

// confidenceVariance is the population variance of the active signals'
// confidence values. For values bounded in [0,1] the maximum is 0.25.
func confidenceVariance(active []model.AgentSignal) float64 {
	if len(active) == 0 {
		return 0
	}
	mean := 0.0
	for _, sig := range active {
		mean += sig.Confidence
	}
	mean /= float64(len(active))

	variance := 0.0
	for _, sig := range active {
		d := sig.Confidence - mean
		variance += d * d
	}
	return variance / float64(len(active))
}
