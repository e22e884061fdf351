// Package status assembles the aggregate health summary exposed to the
// dashboard and notification collaborators.
package status

import (
	"fmt"
	"time"

	"github.com/ppiankov/trialwatch/internal/model"
)

// CheckStatus grades one diagnostic check.
type CheckStatus string

const (
	StatusOK       CheckStatus = "OK"
	StatusWarning  CheckStatus = "WARNING"
	StatusCritical CheckStatus = "CRITICAL"
)

var statusRank = map[CheckStatus]int{
	StatusOK:       0,
	StatusWarning:  1,
	StatusCritical: 2,
}

func worse(a, b CheckStatus) CheckStatus {
	if statusRank[b] > statusRank[a] {
		return b
	}
	return a
}

// Check is one diagnostic check result, keyed by subsystem name.
type Check struct {
	Status CheckStatus `json:"status"`
	Detail string      `json:"detail"`
}

// AgentStat summarizes one agent's behavior in the last analysis run.
type AgentStat struct {
	Abstained        bool            `json:"abstained"`
	AbstentionReason string          `json:"abstention_reason,omitempty"`
	Confidence       float64         `json:"confidence"`
	RiskLevel        model.RiskLevel `json:"risk_level"`
	FeaturesAnalyzed int             `json:"features_analyzed"`
}

// Summary is the aggregate health view for one entity.
type Summary struct {
	EntityID    string                        `json:"entity_id"`
	Health      CheckStatus                   `json:"health"`
	Agents      map[model.AgentKind]AgentStat `json:"agents"`
	Checks      map[string]Check              `json:"checks"`
	GeneratedAt time.Time                     `json:"generated_at"`
}

// Build assembles a Summary from the latest run outputs and recent guardian
// events. Aggregate health is the worst of the subsystem checks.
func Build(entityID string, signals []model.AgentSignal, consensus model.ConsensusDecision, dqiResult model.DQIResult, events []model.GuardianEvent) Summary {
	s := Summary{
		EntityID:    entityID,
		Health:      StatusOK,
		Agents:      make(map[model.AgentKind]AgentStat, len(signals)),
		Checks:      make(map[string]Check),
		GeneratedAt: time.Now().UTC(),
	}

	abstained := 0
	for _, sig := range signals {
		if sig.Abstained {
			abstained++
		}
		s.Agents[sig.AgentKind] = AgentStat{
			Abstained:        sig.Abstained,
			AbstentionReason: sig.AbstentionReason,
			Confidence:       sig.Confidence,
			RiskLevel:        sig.RiskLevel,
			FeaturesAnalyzed: sig.FeaturesAnalyzed,
		}
	}

	s.Checks["agents"] = agentsCheck(len(signals), abstained)
	s.Checks["consensus"] = consensusCheck(consensus)
	s.Checks["dqi"] = dqiCheck(dqiResult)
	s.Checks["guardian"] = guardianCheck(events)

	for _, c := range s.Checks {
		s.Health = worse(s.Health, c.Status)
	}
	return s
}

func agentsCheck(total, abstained int) Check {
	if total == 0 {
		return Check{Status: StatusCritical, Detail: "no agent signals collected"}
	}
	detail := fmt.Sprintf("%d of %d agents abstained", abstained, total)
	switch {
	case abstained == total:
		return Check{Status: StatusCritical, Detail: detail}
	case float64(abstained)/float64(total) > 0.5:
		return Check{Status: StatusWarning, Detail: detail}
	default:
		return Check{Status: StatusOK, Detail: detail}
	}
}

func consensusCheck(c model.ConsensusDecision) Check {
	if c.RiskLevel == model.RiskUnknown {
		return Check{Status: StatusWarning, Detail: "insufficient evidence for a consensus decision"}
	}
	detail := fmt.Sprintf("risk %s (score %.1f, confidence %.2f)", c.RiskLevel, c.RiskScore, c.Confidence)
	if c.RiskLevel == model.RiskCritical {
		return Check{Status: StatusCritical, Detail: detail}
	}
	if c.RiskLevel == model.RiskHigh {
		return Check{Status: StatusWarning, Detail: detail}
	}
	return Check{Status: StatusOK, Detail: detail}
}

func dqiCheck(d model.DQIResult) Check {
	detail := fmt.Sprintf("DQI %.1f (%s)", d.OverallScore, d.Band)
	switch d.Band {
	case model.BandRed:
		return Check{Status: StatusCritical, Detail: detail}
	case model.BandOrange:
		return Check{Status: StatusWarning, Detail: detail}
	default:
		return Check{Status: StatusOK, Detail: detail}
	}
}

func guardianCheck(events []model.GuardianEvent) Check {
	worst := StatusOK
	for _, ev := range events {
		switch ev.Severity {
		case model.SeverityCritical:
			worst = worse(worst, StatusCritical)
		case model.SeverityWarning:
			worst = worse(worst, StatusWarning)
		}
	}
	return Check{
		Status: worst,
		Detail: fmt.Sprintf("%d integrity findings", len(events)),
	}
}
