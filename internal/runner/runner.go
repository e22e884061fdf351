// Package runner executes the full analysis pipeline for one entity: agents
// in parallel, then consensus, DQI, and the guardian's audit.
package runner

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/trialwatch/internal/agent"
	"github.com/ppiankov/trialwatch/internal/config"
	"github.com/ppiankov/trialwatch/internal/consensus"
	"github.com/ppiankov/trialwatch/internal/dqi"
	"github.com/ppiankov/trialwatch/internal/guardian"
	"github.com/ppiankov/trialwatch/internal/model"
)

// Result is the complete output of one analysis run.
type Result struct {
	EntityID   string                  `json:"entity_id"`
	SnapshotID string                  `json:"snapshot_id"`
	Timestamp  time.Time               `json:"timestamp"`
	Signals    []model.AgentSignal     `json:"signals"`
	Consensus  model.ConsensusDecision `json:"consensus"`
	DQI        model.DQIResult         `json:"dqi"`
	Events     []model.GuardianEvent   `json:"events"`
}

// Runner wires the scoring core together. Consensus and DQI are synchronous
// single-pass aggregations; only the agents fan out.
type Runner struct {
	cfg      *config.Store
	guardian *guardian.Guardian
	agents   []agent.Agent
	logger   *zap.Logger
	now      func() time.Time
}

// New creates a Runner over the full agent registry.
func New(cfg *config.Store, g *guardian.Guardian, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:      cfg,
		guardian: g,
		agents:   agent.Registry(),
		logger:   logger,
		now:      time.Now,
	}
}

// Run analyzes one entity's features end to end. Agent panics are recovered
// as abstention-equivalents with an "agent failed" marker so a single broken
// agent cannot poison the run. Guardian findings never fail the run; only
// storage errors are returned.
func (r *Runner) Run(ctx context.Context, entityID string, features model.FeatureSet) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg := r.cfg.Get()
	started := r.now()

	result := &Result{
		EntityID:   entityID,
		SnapshotID: uuid.NewString(),
		Timestamp:  started.UTC(),
		Signals:    r.collectSignals(entityID, features, cfg),
	}

	result.Consensus = consensus.Decide(entityID, result.Signals, cfg)
	result.DQI = dqi.Score(entityID, result.Signals, result.Consensus, cfg)

	events, err := r.guardian.Review(entityID, result.SnapshotID, result.Signals, result.DQI, features)
	result.Events = append(result.Events, events...)
	if err != nil {
		return result, fmt.Errorf("runner: record guardian findings: %w", err)
	}

	snap := model.Snapshot{
		EntityID:   entityID,
		SnapshotID: result.SnapshotID,
		Timestamp:  result.Timestamp,
		RiskLevel:  result.Consensus.RiskLevel,
		AlertSet:   alertSet(result.Signals),
		Features:   features.Clone(),
	}
	stalenessEvents, err := r.guardian.Observe(snap)
	result.Events = append(result.Events, stalenessEvents...)
	if err != nil {
		return result, fmt.Errorf("runner: observe snapshot: %w", err)
	}

	r.logger.Info("analysis complete",
		zap.String("entity_id", entityID),
		zap.String("snapshot_id", result.SnapshotID),
		zap.String("risk_level", string(result.Consensus.RiskLevel)),
		zap.Float64("dqi", result.DQI.OverallScore),
		zap.String("band", string(result.DQI.Band)),
		zap.Int("abstentions", result.Consensus.AbstentionCount),
		zap.Int("guardian_events", len(result.Events)),
		zap.Duration("elapsed", r.now().Sub(started)),
	)
	return result, nil
}

// collectSignals runs every agent concurrently. Each agent receives its own
// clone of the features; agents are pure functions and share no state, so
// the only coordination needed is the result slot per agent.
func (r *Runner) collectSignals(entityID string, features model.FeatureSet, cfg *config.Config) []model.AgentSignal {
	signals := make([]model.AgentSignal, len(r.agents))
	done := make(chan int, len(r.agents))

	for i, ag := range r.agents {
		go func(i int, ag agent.Agent) {
			defer func() {
				if rec := recover(); rec != nil {
					// Computation fault: recovered locally as an
					// abstention-equivalent, distinct from a legitimate
					// insufficient-evidence abstention.
					signals[i] = model.AbstainedSignal(ag.Kind, entityID,
						fmt.Sprintf("agent failed: %v", rec))
					r.logger.Error("agent panic recovered",
						zap.String("agent", string(ag.Kind)),
						zap.String("entity_id", entityID),
						zap.Any("panic", rec),
					)
				}
				done <- i
			}()
			signals[i] = ag.Analyze(features.Clone(), entityID, cfg)
		}(i, ag)
	}
	for range r.agents {
		<-done
	}
	return signals
}

// alertSet derives the run's alert identifiers: one per non-abstained agent
// reporting HIGH or worse. Sorted so snapshot comparison is order-free.
func alertSet(signals []model.AgentSignal) []string {
	var alerts []string
	for _, sig := range signals {
		if sig.Abstained {
			continue
		}
		if model.RiskRank[sig.RiskLevel] >= model.RiskRank[model.RiskHigh] {
			alerts = append(alerts, fmt.Sprintf("%s:%s", sig.AgentKind, sig.RiskLevel))
		}
	}
	sort.Strings(alerts)
	return alerts
}
