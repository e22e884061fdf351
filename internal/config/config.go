package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/trialwatch/internal/model"
)

// Threshold is one named agent threshold: severity scales linearly from 0 at
// Base to 1 at Ceiling. Inverted metrics (rates that are bad when low) set
// Ceiling below Base.
type Threshold struct {
	Base    float64 `yaml:"base"`
	Ceiling float64 `yaml:"ceiling"`
}

// Inverted reports whether this threshold grades downward movement.
func (t Threshold) Inverted() bool {
	return t.Ceiling < t.Base
}

// AgentConfig holds the tunable parameters of one signal agent. The agent's
// feature contract (required/preferred sets) is structural and lives in code.
type AgentConfig struct {
	Weight     float64              `yaml:"weight"`
	Thresholds map[string]Threshold `yaml:"thresholds"`
}

// GuardianConfig holds the guardian's empirically chosen constants. They are
// pinned by the scenario tests, not re-derived.
type GuardianConfig struct {
	AbstentionCutoff  float64 `yaml:"abstention_cutoff"`
	VarianceThreshold float64 `yaml:"variance_threshold"`

	RiskConflictPenalty float64 `yaml:"risk_conflict_penalty"`
	AbstentionPenalty   float64 `yaml:"abstention_penalty"`
	VariancePenalty     float64 `yaml:"variance_penalty"`

	// Staleness detection.
	StalenessRuns        int     `yaml:"staleness_runs"`
	MaterialChangeRatio  float64 `yaml:"material_change_ratio"`
	SharpRiskRankChange  int     `yaml:"sharp_risk_rank_change"`
	SharpAlertJaccardMax float64 `yaml:"sharp_alert_jaccard_max"`

	// DQI consistency thresholds.
	OpenQueriesHigh       float64 `yaml:"open_queries_high"`
	OverdueSAECritical    float64 `yaml:"overdue_sae_critical"`
	CompletenessLow       float64 `yaml:"completeness_low"`
	MissingFieldsHigh     float64 `yaml:"missing_fields_high"`
	CompletenessExcellent float64 `yaml:"completeness_excellent"`
}

// DQIConfig holds dimension weights and the consensus-modifier bounds.
type DQIConfig struct {
	DimensionWeights map[model.Dimension]float64 `yaml:"dimension_weights"`
	ModifierPerRank  float64                     `yaml:"modifier_per_rank"`
	ModifierCap      float64                     `yaml:"modifier_cap"`
}

// Config holds all configurable scoring parameters.
type Config struct {
	Agents   map[model.AgentKind]AgentConfig `yaml:"agents"`
	Guardian GuardianConfig                  `yaml:"guardian"`
	DQI      DQIConfig                       `yaml:"dqi"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Agents: map[model.AgentKind]AgentConfig{
			model.AgentSafety: {
				Weight: 3.0,
				Thresholds: map[string]Threshold{
					"overdue_sae_reviews": {Base: 2, Ceiling: 12},
					"sae_count":           {Base: 10, Ceiling: 60},
					"ae_rate":             {Base: 0.5, Ceiling: 2.0},
					"deaths_on_study":     {Base: 0, Ceiling: 3},
				},
			},
			model.AgentCompleteness: {
				Weight: 1.0,
				Thresholds: map[string]Threshold{
					"completeness_rate":       {Base: 0.90, Ceiling: 0.50},
					"missing_required_fields": {Base: 20, Ceiling: 150},
					"missing_visits":          {Base: 5, Ceiling: 40},
				},
			},
			model.AgentQueryQuality: {
				Weight: 1.5,
				Thresholds: map[string]Threshold{
					"open_queries":          {Base: 50, Ceiling: 400},
					"query_aging_over_30d":  {Base: 10, Ceiling: 120},
					"query_resolution_days": {Base: 14, Ceiling: 60},
				},
			},
			model.AgentCoding: {
				Weight: 1.0,
				Thresholds: map[string]Threshold{
					"uncoded_ae_terms":     {Base: 10, Ceiling: 100},
					"uncoded_conmed_terms": {Base: 15, Ceiling: 120},
					"coding_backlog_days":  {Base: 14, Ceiling: 90},
				},
			},
			model.AgentTimeline: {
				Weight: 1.0,
				Thresholds: map[string]Threshold{
					"overdue_visits":        {Base: 5, Ceiling: 50},
					"visit_completion_rate": {Base: 0.85, Ceiling: 0.40},
					"enrollment_lag_days":   {Base: 30, Ceiling: 180},
				},
			},
			model.AgentOperations: {
				Weight: 1.0,
				Thresholds: map[string]Threshold{
					"protocol_deviations": {Base: 5, Ceiling: 40},
					"screen_failure_rate": {Base: 0.30, Ceiling: 0.80},
					"dropout_rate":        {Base: 0.15, Ceiling: 0.50},
				},
			},
			model.AgentStability: {
				// Negative weight: stability findings vote against risk.
				Weight: -0.5,
				Thresholds: map[string]Threshold{
					"data_correction_rate": {Base: 0.05, Ceiling: 0.30},
					"retention_rate":       {Base: 0.85, Ceiling: 0.50},
				},
			},
			model.AgentCrossEvidence: {
				Weight: 2.0,
				Thresholds: map[string]Threshold{
					"sae_underreporting_ratio": {Base: 0.02, Ceiling: 0.20},
					"queries_per_subject":      {Base: 3, Ceiling: 20},
				},
			},
		},
		Guardian: GuardianConfig{
			AbstentionCutoff:      0.5,
			VarianceThreshold:     0.25,
			RiskConflictPenalty:   0.4,
			AbstentionPenalty:     0.3,
			VariancePenalty:       0.2,
			StalenessRuns:         3,
			MaterialChangeRatio:   0.10,
			SharpRiskRankChange:   2,
			SharpAlertJaccardMax:  0.5,
			OpenQueriesHigh:       200,
			OverdueSAECritical:    10,
			CompletenessLow:       0.70,
			MissingFieldsHigh:     50,
			CompletenessExcellent: 0.95,
		},
		DQI: DQIConfig{
			DimensionWeights: map[model.Dimension]float64{
				model.DimSafety:       0.35,
				model.DimCompliance:   0.25,
				model.DimCompleteness: 0.20,
				model.DimOperations:   0.15,
			},
			ModifierPerRank: 5,
			ModifierCap:     15,
		},
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "trialwatch-config.yaml")
	}
	return filepath.Join(home, ".trialwatch", "config.yaml")
}

// Load reads configuration from a YAML file. Empty path falls back to
// DefaultPath. Missing file returns defaults. Invalid YAML or invalid
// values return an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	// Start with defaults, YAML overwrites only specified fields.
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := overlayAgents(cfg, data); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// agentOverlay mirrors AgentConfig with optional fields, so a partial agent
// section overrides only what it names.
type agentOverlay struct {
	Weight     *float64             `yaml:"weight"`
	Thresholds map[string]Threshold `yaml:"thresholds"`
}

// overlayAgents re-merges the agents section field by field. Decoding the
// whole file replaces any mentioned AgentConfig wholesale: a threshold-only
// override would zero the agent's weight and a weight-only override would
// drop all its thresholds.
func overlayAgents(cfg *Config, data []byte) error {
	var file struct {
		Agents map[model.AgentKind]agentOverlay `yaml:"agents"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return err
	}

	defaults := Default()
	for kind, ov := range file.Agents {
		merged := defaults.Agents[kind]
		if ov.Weight != nil {
			merged.Weight = *ov.Weight
		}
		if len(ov.Thresholds) > 0 && merged.Thresholds == nil {
			merged.Thresholds = make(map[string]Threshold, len(ov.Thresholds))
		}
		for name, th := range ov.Thresholds {
			merged.Thresholds[name] = th
		}
		cfg.Agents[kind] = merged
	}
	return nil
}

// Validate rejects values outside their declared bounds. Out-of-range
// configuration is a defect, not a domain event.
func (c *Config) Validate() error {
	if c.Guardian.AbstentionCutoff < 0 || c.Guardian.AbstentionCutoff > 1 {
		return fmt.Errorf("guardian.abstention_cutoff must be in [0,1], got %v", c.Guardian.AbstentionCutoff)
	}
	if c.Guardian.VarianceThreshold < 0 || c.Guardian.VarianceThreshold > 0.25 {
		// 0.25 is the statistical maximum variance for values bounded in [0,1].
		return fmt.Errorf("guardian.variance_threshold must be in [0,0.25], got %v", c.Guardian.VarianceThreshold)
	}
	if c.Guardian.StalenessRuns < 1 {
		return fmt.Errorf("guardian.staleness_runs must be >= 1, got %d", c.Guardian.StalenessRuns)
	}
	for _, p := range []struct {
		name  string
		value float64
	}{
		{"risk_conflict_penalty", c.Guardian.RiskConflictPenalty},
		{"abstention_penalty", c.Guardian.AbstentionPenalty},
		{"variance_penalty", c.Guardian.VariancePenalty},
	} {
		if p.value < 0 || p.value > 1 {
			return fmt.Errorf("guardian.%s must be in [0,1], got %v", p.name, p.value)
		}
	}

	total := 0.0
	for dim, w := range c.DQI.DimensionWeights {
		if w < 0 {
			return fmt.Errorf("dqi.dimension_weights[%s] must be >= 0, got %v", dim, w)
		}
		total += w
	}
	if total <= 0 {
		return fmt.Errorf("dqi.dimension_weights must not sum to zero")
	}
	if c.DQI.ModifierPerRank < 0 || c.DQI.ModifierCap < 0 {
		return fmt.Errorf("dqi modifier values must be >= 0")
	}

	for kind, ac := range c.Agents {
		for name, th := range ac.Thresholds {
			if th.Base == th.Ceiling {
				return fmt.Errorf("agents[%s].thresholds[%s]: base and ceiling must differ", kind, name)
			}
		}
	}
	return nil
}

// Weight returns the consensus weight for an agent kind (0 if unconfigured).
func (c *Config) Weight(kind model.AgentKind) float64 {
	return c.Agents[kind].Weight
}

// Threshold looks up a named threshold for an agent kind.
func (c *Config) Threshold(kind model.AgentKind, name string) (Threshold, bool) {
	th, ok := c.Agents[kind].Thresholds[name]
	return th, ok
}
