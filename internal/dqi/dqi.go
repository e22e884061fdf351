// Package dqi converts agent signals and the cross-agent consensus into a
// bounded 0–100 Data Quality Index with a per-dimension breakdown.
package dqi

import (
	"sort"

	"github.com/ppiankov/trialwatch/internal/config"
	"github.com/ppiankov/trialwatch/internal/model"
)

// neutralScore is the midpoint a low-confidence signal is pulled toward. A
// signal nobody can vouch for should read as "unremarkable", not extreme.
const neutralScore = 50.0

// dimensionOf is the fixed agent→dimension mapping. Every agent kind maps to
// exactly one DQI dimension.
var dimensionOf = map[model.AgentKind]model.Dimension{
	model.AgentSafety:        model.DimSafety,
	model.AgentCrossEvidence: model.DimSafety,
	model.AgentQueryQuality:  model.DimCompliance,
	model.AgentCoding:        model.DimCompliance,
	model.AgentCompleteness:  model.DimCompleteness,
	model.AgentTimeline:      model.DimOperations,
	model.AgentOperations:    model.DimOperations,
	model.AgentStability:     model.DimOperations,
}

// DimensionFor returns the DQI dimension an agent kind contributes to.
func DimensionFor(kind model.AgentKind) (model.Dimension, bool) {
	d, ok := dimensionOf[kind]
	return d, ok
}

// ClassifyBand maps a DQI score onto its quality band. Total and
// non-overlapping: every score in [0,100] lands in exactly one band.
func ClassifyBand(score float64) model.Band {
	switch {
	case score >= 85:
		return model.BandGreen
	case score >= 65:
		return model.BandAmber
	case score >= 40:
		return model.BandOrange
	default:
		return model.BandRed
	}
}

// bandImpliedRisk maps a band back onto the risk level it implies, for the
// consensus disagreement check.
func bandImpliedRisk(b model.Band) model.RiskLevel {
	switch b {
	case model.BandGreen:
		return model.RiskLow
	case model.BandAmber:
		return model.RiskMedium
	case model.BandOrange:
		return model.RiskHigh
	default:
		return model.RiskCritical
	}
}

// Score computes the DQI for one entity from its signals and consensus.
//
// Each non-abstained agent contributes 100−riskScore to its dimension,
// pulled toward the neutral midpoint in proportion to how little confidence
// it has. Dimensions with no contributing agents are excluded entirely —
// weights renormalize over the dimensions that do have evidence.
func Score(entityID string, signals []model.AgentSignal, consensus model.ConsensusDecision, cfg *config.Config) model.DQIResult {
	if cfg == nil {
		cfg = config.Default()
	}

	type accum struct {
		sum    float64
		conf   float64
		agents []model.AgentKind
	}
	byDim := make(map[model.Dimension]*accum)

	for _, sig := range signals {
		if sig.Abstained {
			continue
		}
		dim, ok := dimensionOf[sig.AgentKind]
		if !ok {
			continue
		}
		conf := model.Clamp01(sig.Confidence)
		base := 100 - model.RiskScore(sig.RiskLevel)
		adjusted := neutralScore + conf*(base-neutralScore)

		acc := byDim[dim]
		if acc == nil {
			acc = &accum{}
			byDim[dim] = acc
		}
		acc.sum += adjusted
		acc.conf += conf
		acc.agents = append(acc.agents, sig.AgentKind)
	}

	result := model.DQIResult{
		EntityID:        entityID,
		DimensionScores: make(map[model.Dimension]model.DimensionScore),
	}

	var weightedSum, weightTotal, confSum float64
	included := 0

	for _, dim := range model.AllDimensions {
		acc := byDim[dim]
		if acc == nil || len(acc.agents) == 0 {
			continue
		}
		n := float64(len(acc.agents))
		sort.Slice(acc.agents, func(i, j int) bool { return acc.agents[i] < acc.agents[j] })

		ds := model.DimensionScore{
			Dimension:          dim,
			Score:              model.Clamp100(acc.sum / n),
			Confidence:         model.Clamp01(acc.conf / n),
			ContributingAgents: acc.agents,
		}
		result.DimensionScores[dim] = ds

		w := cfg.DQI.DimensionWeights[dim]
		weightedSum += w * ds.Score
		weightTotal += w
		confSum += ds.Confidence
		included++
	}

	if included == 0 || weightTotal == 0 {
		// Every agent abstained: no index, no confidence.
		result.OverallScore = 0
		result.Band = ClassifyBand(0)
		result.Confidence = 0
		return result
	}

	score := weightedSum / weightTotal
	score -= consensusModifier(score, consensus, cfg)
	score = model.Clamp100(score)

	result.OverallScore = score
	result.Band = ClassifyBand(score)
	result.Confidence = model.Clamp01(confSum / float64(included))
	return result
}

// consensusModifier returns the bounded downward adjustment applied when the
// cross-agent consensus is more severe than the band the dimension aggregate
// implies. It never raises the score.
func consensusModifier(score float64, consensus model.ConsensusDecision, cfg *config.Config) float64 {
	if consensus.RiskLevel == model.RiskUnknown {
		return 0
	}
	implied := bandImpliedRisk(ClassifyBand(score))
	ranks := model.RiskRank[consensus.RiskLevel] - model.RiskRank[implied]
	if ranks <= 0 {
		return 0
	}
	adjustment := float64(ranks) * cfg.DQI.ModifierPerRank
	if adjustment > cfg.DQI.ModifierCap {
		adjustment = cfg.DQI.ModifierCap
	}
	return adjustment
}
