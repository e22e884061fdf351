// Package consensus aggregates independent agent signals into a single
// weighted risk decision. Scoring is deterministic, explainable, and
// cumulative — no anomaly detection, no learned weights.
package consensus

import (
	"math"

	"github.com/ppiankov/trialwatch/internal/config"
	"github.com/ppiankov/trialwatch/internal/model"
)

// tieEpsilon bounds floating-point noise when comparing contribution
// magnitudes for the conservative tie-break.
const tieEpsilon = 1e-9

// Decide combines the signals for one entity into a ConsensusDecision.
//
// Non-abstained signals vote with weight × level score × confidence; the
// denominator uses |weight| so that negative-weight agents subtract from the
// numerator without inflating it. Abstained signals are excluded from the
// vote but counted, and they lower the final confidence.
func Decide(entityID string, signals []model.AgentSignal, cfg *config.Config) model.ConsensusDecision {
	if cfg == nil {
		cfg = config.Default()
	}

	decision := model.ConsensusDecision{
		EntityID:      entityID,
		Contributions: make(map[model.AgentKind]float64),
	}

	var numerator, denominator float64
	var confNumerator, confDenominator float64
	participants := 0

	for _, sig := range signals {
		if sig.Abstained {
			decision.AbstentionCount++
			continue
		}
		participants++

		w := cfg.Weight(sig.AgentKind)
		score := model.RiskScore(sig.RiskLevel)
		conf := model.Clamp01(sig.Confidence)

		contribution := w * score * conf
		decision.Contributions[sig.AgentKind] = contribution

		numerator += contribution
		denominator += math.Abs(w) * conf

		confNumerator += math.Abs(w) * conf
		confDenominator += math.Abs(w)
	}

	total := len(signals)
	if participants == 0 || denominator == 0 {
		// Insufficient evidence — callers must not read this as low risk.
		decision.RiskLevel = model.RiskUnknown
		decision.RiskScore = 0
		decision.Confidence = 0
		return decision
	}

	// A negative-weight agent can push the raw quotient below zero; the
	// score stays bounded regardless.
	decision.RiskScore = model.Clamp100(numerator / denominator)
	decision.RiskLevel = model.RiskFromScore(decision.RiskScore)

	if floor, conflicted := tieBreakFloor(signals, decision.Contributions); conflicted {
		decision.RiskLevel = model.MaxRisk(decision.RiskLevel, floor)
	}

	avgConf := confNumerator / confDenominator
	penalty := 1 - float64(decision.AbstentionCount)/float64(total)
	decision.Confidence = model.Clamp01(avgConf * penalty)

	return decision
}

// tieBreakFloor implements the conservative tie-break: when signals with
// equal contribution magnitude disagree on direction, the most severe level
// among them wins and floors the final risk level.
func tieBreakFloor(signals []model.AgentSignal, contributions map[model.AgentKind]float64) (model.RiskLevel, bool) {
	maxAbs := 0.0
	for _, c := range contributions {
		if abs := math.Abs(c); abs > maxAbs {
			maxAbs = abs
		}
	}
	if maxAbs == 0 {
		return model.RiskUnknown, false
	}

	floor := model.RiskUnknown
	conflict := false
	for _, sig := range signals {
		if sig.Abstained {
			continue
		}
		c, ok := contributions[sig.AgentKind]
		if !ok {
			continue
		}
		if math.Abs(math.Abs(c)-maxAbs) <= tieEpsilon {
			if floor != model.RiskUnknown && sig.RiskLevel != floor {
				conflict = true
			}
			floor = model.MaxRisk(floor, sig.RiskLevel)
		}
	}
	if !conflict || floor == model.RiskUnknown {
		return model.RiskUnknown, false
	}
	return floor, true
}
