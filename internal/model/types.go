package model

import "time"

// RiskLevel classifies the severity of a risk assessment.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"

	// RiskUnknown only appears on abstention — never from a scored assessment.
	RiskUnknown RiskLevel = "UNKNOWN"
)

// RiskRank maps risk levels to comparable integers for worst-case combination.
// RiskUnknown deliberately ranks below RiskLow: an abstaining agent must never
// drag consensus upward.
var RiskRank = map[RiskLevel]int{
	RiskUnknown:  -1,
	RiskLow:      0,
	RiskMedium:   1,
	RiskHigh:     2,
	RiskCritical: 3,
}

// MaxRisk returns the more severe of two risk levels.
func MaxRisk(a, b RiskLevel) RiskLevel {
	if RiskRank[b] > RiskRank[a] {
		return b
	}
	return a
}

// RiskScore maps a risk level to its canonical numeric score on the 0–100
// scale. The mapping is monotonic and invertible against DQI banding:
// 100−score lands in the band the level implies.
func RiskScore(level RiskLevel) float64 {
	switch level {
	case RiskLow:
		return 10
	case RiskMedium:
		return 30
	case RiskHigh:
		return 55
	case RiskCritical:
		return 90
	default:
		return 0
	}
}

// RiskFromScore buckets a 0–100 risk score back into a level using the DQI
// band boundaries inverted (100−85, 100−65, 100−40).
func RiskFromScore(score float64) RiskLevel {
	switch {
	case score > 60:
		return RiskCritical
	case score > 35:
		return RiskHigh
	case score > 15:
		return RiskMedium
	default:
		return RiskLow
	}
}

// AgentKind identifies the risk dimension a signal agent assesses.
type AgentKind string

const (
	AgentSafety        AgentKind = "SAFETY"
	AgentCompleteness  AgentKind = "COMPLETENESS"
	AgentQueryQuality  AgentKind = "QUERY_QUALITY"
	AgentCoding        AgentKind = "CODING"
	AgentTimeline      AgentKind = "TIMELINE"
	AgentOperations    AgentKind = "OPERATIONS"
	AgentStability     AgentKind = "STABILITY"
	AgentCrossEvidence AgentKind = "CROSS_EVIDENCE"
)

// AllAgentKinds lists every agent kind in registry order.
var AllAgentKinds = []AgentKind{
	AgentSafety,
	AgentCompleteness,
	AgentQueryQuality,
	AgentCoding,
	AgentTimeline,
	AgentOperations,
	AgentStability,
	AgentCrossEvidence,
}

// FeatureSet is the sole input boundary of the scoring core: a flat mapping
// of feature name to value, where nil means the feature is missing.
type FeatureSet map[string]*float64

// Get returns the feature value and whether it is present (non-nil).
func (fs FeatureSet) Get(name string) (float64, bool) {
	v, ok := fs[name]
	if !ok || v == nil {
		return 0, false
	}
	return *v, true
}

// Has reports whether the feature is present with a non-nil value.
func (fs FeatureSet) Has(name string) bool {
	_, ok := fs.Get(name)
	return ok
}

// Clone returns a deep copy. Agents receive clones so that no agent can
// observe another's mutations.
func (fs FeatureSet) Clone() FeatureSet {
	out := make(FeatureSet, len(fs))
	for k, v := range fs {
		if v == nil {
			out[k] = nil
			continue
		}
		val := *v
		out[k] = &val
	}
	return out
}

// Evidence ties a finding to the feature and threshold that produced it.
// Immutable once attached to a signal.
type Evidence struct {
	FeatureName  string  `json:"feature_name"`
	FeatureValue float64 `json:"feature_value"`
	Threshold    float64 `json:"threshold"`
	Severity     float64 `json:"severity"`
	Description  string  `json:"description"`
}

// AgentSignal is one agent's assessment of one study for one analysis run.
// Invariant: Abstained implies RiskLevel == RiskUnknown and Confidence == 0.
type AgentSignal struct {
	AgentKind          AgentKind  `json:"agent_kind"`
	StudyID            string     `json:"study_id"`
	RiskLevel          RiskLevel  `json:"risk_level"`
	Confidence         float64    `json:"confidence"`
	Evidence           []Evidence `json:"evidence"`
	RecommendedActions []string   `json:"recommended_actions"`
	Abstained          bool       `json:"abstained"`
	AbstentionReason   string     `json:"abstention_reason,omitempty"`
	FeaturesAnalyzed   int        `json:"features_analyzed"`
}

// AbstainedSignal builds a well-formed abstention for the given agent kind.
func AbstainedSignal(kind AgentKind, studyID, reason string) AgentSignal {
	return AgentSignal{
		AgentKind:        kind,
		StudyID:          studyID,
		RiskLevel:        RiskUnknown,
		Confidence:       0,
		Abstained:        true,
		AbstentionReason: reason,
	}
}

// ConsensusDecision is the weighted aggregate of one entity's agent signals.
// Derived entirely from signals; it has no independent lifecycle.
type ConsensusDecision struct {
	EntityID        string                `json:"entity_id"`
	RiskLevel       RiskLevel             `json:"risk_level"`
	RiskScore       float64               `json:"risk_score"`
	Confidence      float64               `json:"confidence"`
	Contributions   map[AgentKind]float64 `json:"contributions"`
	AbstentionCount int                   `json:"abstention_count"`
}

// Dimension is one of the four DQI scoring dimensions.
type Dimension string

const (
	DimSafety       Dimension = "SAFETY"
	DimCompliance   Dimension = "COMPLIANCE"
	DimCompleteness Dimension = "COMPLETENESS"
	DimOperations   Dimension = "OPERATIONS"
)

// AllDimensions lists the DQI dimensions in weight order.
var AllDimensions = []Dimension{DimSafety, DimCompliance, DimCompleteness, DimOperations}

// DimensionScore is the per-dimension breakdown of a DQI result.
type DimensionScore struct {
	Dimension          Dimension   `json:"dimension"`
	Score              float64     `json:"score"`
	Confidence         float64     `json:"confidence"`
	ContributingAgents []AgentKind `json:"contributing_agents"`
}

// Band classifies a DQI score into a traffic-light quality band.
type Band string

const (
	BandGreen  Band = "GREEN"
	BandAmber  Band = "AMBER"
	BandOrange Band = "ORANGE"
	BandRed    Band = "RED"
)

// DQIResult is the composite Data Quality Index for one entity and snapshot.
type DQIResult struct {
	EntityID        string                       `json:"entity_id"`
	OverallScore    float64                      `json:"overall_score"`
	Band            Band                         `json:"band"`
	DimensionScores map[Dimension]DimensionScore `json:"dimension_scores"`
	Confidence      float64                      `json:"confidence"`
}

// Severity grades a guardian finding.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// SeverityRank maps severities to comparable integers.
var SeverityRank = map[Severity]int{
	SeverityInfo:     0,
	SeverityWarning:  1,
	SeverityCritical: 2,
}

// EventType tags the kind of integrity finding a GuardianEvent records.
type EventType string

const (
	EventDataOutputInconsistency EventType = "DATA_OUTPUT_INCONSISTENCY"
	EventStalenessDetected       EventType = "STALENESS_DETECTED"
	EventRiskConflict            EventType = "RISK_CONFLICT"
	EventHighAbstention          EventType = "HIGH_ABSTENTION"
	EventConfidenceVariance      EventType = "CONFIDENCE_VARIANCE"
	EventDQIQueryMismatch        EventType = "DQI_QUERY_MISMATCH"
	EventDQISafetyMismatch       EventType = "DQI_SAFETY_MISMATCH"
	EventDQICompletenessMismatch EventType = "DQI_COMPLETENESS_MISMATCH"
	EventDQIMissingDataMismatch  EventType = "DQI_MISSING_DATA_MISMATCH"
	EventDQIUnderestimate        EventType = "DQI_UNDERESTIMATE"
)

// GuardianEvent is one append-only integrity finding. Events are never
// mutated or deleted, only superseded by newer events.
type GuardianEvent struct {
	ID             string    `json:"id"`
	EventType      EventType `json:"event_type"`
	Severity       Severity  `json:"severity"`
	EntityID       string    `json:"entity_id"`
	SnapshotID     string    `json:"snapshot_id,omitempty"`
	DataDelta      string    `json:"data_delta,omitempty"`
	OutputDelta    string    `json:"output_delta,omitempty"`
	Expected       string    `json:"expected"`
	Actual         string    `json:"actual"`
	Recommendation string    `json:"recommendation"`
	Timestamp      time.Time `json:"timestamp"`
}

// Snapshot is what the guardian observes after each analysis run: the alert
// set and risk level the pipeline produced, plus the features that drove it.
type Snapshot struct {
	EntityID   string     `json:"entity_id"`
	SnapshotID string     `json:"snapshot_id"`
	Timestamp  time.Time  `json:"timestamp"`
	RiskLevel  RiskLevel  `json:"risk_level"`
	AlertSet   []string   `json:"alert_set"`
	Features   FeatureSet `json:"features"`
}

// StalenessIndicator is the guardian's rolling per-entity record. Owned and
// mutated only by the guardian; persists across analysis runs.
type StalenessIndicator struct {
	EntityID             string     `json:"entity_id"`
	ConsecutiveUnchanged int        `json:"consecutive_unchanged"`
	LastAlertSet         []string   `json:"last_alert_set"`
	LastRiskLevel        RiskLevel  `json:"last_risk_level"`
	LastFeatures         FeatureSet `json:"last_features"`
	LastDataChange       time.Time  `json:"last_data_change"`
	AlertsUnchangedSince time.Time  `json:"alerts_unchanged_since"`
	LastSnapshotID       string     `json:"last_snapshot_id"`
}

// Clamp01 bounds v to [0,1]. Out-of-range inputs are programming defects;
// callers clamp defensively rather than propagate them.
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Clamp100 bounds v to [0,100].
func Clamp100(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
