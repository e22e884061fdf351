package agent

import (
	"fmt"
	"sort"

	"github.com/ppiankov/trialwatch/internal/config"
	"github.com/ppiankov/trialwatch/internal/model"
)

// confidenceBonus is added when the agent's safety-critical feature is present.
const confidenceBonus = 0.2

// Spec declares an agent's feature contract: which features it must have to
// speak at all, which ones sharpen its confidence, and which single feature
// is safety-critical enough to grant the confidence bonus.
type Spec struct {
	Kind            model.AgentKind
	Required        []string
	Preferred       []string
	CriticalFeature string
}

// Declared returns all features the agent reads, required first.
func (s Spec) Declared() []string {
	out := make([]string, 0, len(s.Required)+len(s.Preferred))
	out = append(out, s.Required...)
	out = append(out, s.Preferred...)
	return out
}

// Agent is one tagged variant of the signal-agent contract: a Spec
// discriminated by Kind plus its assessment function. There is no
// inheritance; all agents dispatch through Analyze.
type Agent struct {
	Spec
	Assess func(a *Assessment)
}

// Assessment accumulates one agent's findings during Analyze. It is local to
// a single call — agents share no state, by contract.
type Assessment struct {
	kind     model.AgentKind
	features model.FeatureSet
	cfg      *config.Config

	level    model.RiskLevel
	evidence []model.Evidence
	actions  []string
}

// Feature reads one input feature; ok is false when it is missing.
func (a *Assessment) Feature(name string) (float64, bool) {
	return a.features.Get(name)
}

// Analyze assesses the study features and returns an immutable signal. It is
// a pure function of its inputs: no shared mutable state, no side effects.
// Running any subset of agents must not change another agent's output.
func (ag Agent) Analyze(features model.FeatureSet, studyID string, cfg *config.Config) model.AgentSignal {
	if cfg == nil {
		cfg = config.Default()
	}

	// Abstention rule: if none of the required features are present, the
	// agent has no evidence base and must say so rather than guess.
	if !anyPresent(features, ag.Required) {
		reason := fmt.Sprintf("required features absent: %s", joinNames(ag.Required))
		return model.AbstainedSignal(ag.Kind, studyID, reason)
	}

	a := &Assessment{
		kind:     ag.Kind,
		features: features,
		cfg:      cfg,
		level:    model.RiskLow,
	}
	ag.Assess(a)

	return model.AgentSignal{
		AgentKind:          ag.Kind,
		StudyID:            studyID,
		RiskLevel:          a.level,
		Confidence:         ag.confidence(features),
		Evidence:           a.evidence,
		RecommendedActions: a.actions,
		FeaturesAnalyzed:   countPresent(features, ag.Declared()),
	}
}

// confidence is the fraction of declared features present, with a bonus when
// the safety-critical feature is available. Capped at 1.0.
func (ag Agent) confidence(features model.FeatureSet) float64 {
	declared := ag.Declared()
	if len(declared) == 0 {
		return 0
	}
	conf := float64(countPresent(features, declared)) / float64(len(declared))
	if ag.CriticalFeature != "" && features.Has(ag.CriticalFeature) {
		conf += confidenceBonus
	}
	return model.Clamp01(conf)
}

// Grade assesses the named feature against the agent's configured threshold
// of the same name. Below the base threshold nothing is emitted; above it,
// severity scales linearly to 1.0 at the ceiling and an evidence entry plus
// the recommended action are recorded. Missing features are skipped.
func (a *Assessment) Grade(feature, description, action string) {
	v, ok := a.features.Get(feature)
	if !ok {
		return
	}
	a.GradeValue(feature, v, description, action)
}

// GradeValue is Grade for derived metrics: the value was computed by the
// agent rather than read directly from the feature set.
func (a *Assessment) GradeValue(name string, value float64, description, action string) {
	th, ok := a.cfg.Threshold(a.kind, name)
	if !ok {
		return
	}
	sev := severity(value, th)
	if sev <= 0 {
		return
	}
	a.evidence = append(a.evidence, model.Evidence{
		FeatureName:  name,
		FeatureValue: value,
		Threshold:    th.Base,
		Severity:     sev,
		Description:  fmt.Sprintf("%s (%.4g vs threshold %.4g)", description, value, th.Base),
	})
	if action != "" {
		a.actions = append(a.actions, action)
	}
	// Worst case dominates: a single catastrophic metric must set the level,
	// never be averaged away.
	a.level = model.MaxRisk(a.level, levelForSeverity(sev))
}

// severity maps a raw value onto [0,1] between the threshold base and
// ceiling. Inverted thresholds (ceiling < base) grade downward movement.
func severity(v float64, th config.Threshold) float64 {
	if th.Inverted() {
		if v >= th.Base {
			return 0
		}
		return model.Clamp01((th.Base - v) / (th.Base - th.Ceiling))
	}
	if v <= th.Base {
		return 0
	}
	return model.Clamp01((v - th.Base) / (th.Ceiling - th.Base))
}

// levelForSeverity buckets a sub-metric severity into a risk level.
func levelForSeverity(sev float64) model.RiskLevel {
	switch {
	case sev >= 0.8:
		return model.RiskCritical
	case sev >= 0.5:
		return model.RiskHigh
	case sev >= 0.2:
		return model.RiskMedium
	default:
		return model.RiskLow
	}
}

func anyPresent(features model.FeatureSet, names []string) bool {
	for _, n := range names {
		if features.Has(n) {
			return true
		}
	}
	return false
}

func countPresent(features model.FeatureSet, names []string) int {
	n := 0
	for _, name := range names {
		if features.Has(name) {
			n++
		}
	}
	return n
}

func joinNames(names []string) string {
	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.Strings(sorted)
	out := ""
	for i, n := range sorted {
		if i > 0 {
			out += ", "
		}
		out += n
	}
	return out
}
