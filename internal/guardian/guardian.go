// Package guardian is the second-order integrity monitor. It audits agent
// signals, DQI output, and per-entity history for contradictions, score and
// feature mismatches, and staleness. It never blocks or rejects the scoring
// pipeline — it only records events for human review.
package guardian

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/trialwatch/internal/config"
	"github.com/ppiankov/trialwatch/internal/model"
	"github.com/ppiankov/trialwatch/internal/store"
)

// lockStripes bounds the number of per-entity mutexes. Updates to one
// entity's staleness indicator are serialized; different entities proceed
// independently.
const lockStripes = 64

// Issue is one finding from a validation check.
type Issue struct {
	Type           model.EventType `json:"type"`
	Severity       model.Severity  `json:"severity"`
	Description    string          `json:"description"`
	Expected       string          `json:"expected"`
	Actual         string          `json:"actual"`
	Recommendation string          `json:"recommendation"`
}

// Guardian owns the durable per-entity staleness state and the event log.
// Created once at process start; queried and updated per analysis run.
type Guardian struct {
	cfg       *config.Store
	events    store.EventLog
	staleness store.StalenessStore
	logger    *zap.Logger
	locks     [lockStripes]sync.Mutex

	// now is swappable for tests.
	now func() time.Time
}

// New creates a Guardian over the given stores.
func New(cfg *config.Store, events store.EventLog, staleness store.StalenessStore, logger *zap.Logger) *Guardian {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guardian{
		cfg:       cfg,
		events:    events,
		staleness: staleness,
		logger:    logger,
		now:       time.Now,
	}
}

func (g *Guardian) lockFor(entityID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(entityID))
	return &g.locks[h.Sum32()%lockStripes]
}

func (g *Guardian) config() config.GuardianConfig {
	return g.cfg.Get().Guardian
}

// Review runs the cross-agent and DQI-consistency validations for one
// analysis run and records any findings as events. Findings are never
// fatal; the returned error reports storage failures only.
func (g *Guardian) Review(entityID, snapshotID string, signals []model.AgentSignal, dqi model.DQIResult, features model.FeatureSet) ([]model.GuardianEvent, error) {
	gc := g.config()

	var issues []Issue
	cross := ValidateCrossAgentSignals(signals, gc)
	issues = append(issues, cross.Issues...)

	dqiReport := ValidateDQIConsistency(dqi.OverallScore, features, gc)
	issues = append(issues, dqiReport.Issues...)

	events := make([]model.GuardianEvent, 0, len(issues))
	for _, issue := range issues {
		events = append(events, g.eventFromIssue(entityID, snapshotID, issue))
	}

	if err := g.record(events); err != nil {
		return events, err
	}
	return events, nil
}

func (g *Guardian) eventFromIssue(entityID, snapshotID string, issue Issue) model.GuardianEvent {
	return model.GuardianEvent{
		ID:             uuid.NewString(),
		EventType:      issue.Type,
		Severity:       issue.Severity,
		EntityID:       entityID,
		SnapshotID:     snapshotID,
		Expected:       issue.Expected,
		Actual:         issue.Actual,
		Recommendation: issue.Recommendation,
		Timestamp:      g.now().UTC(),
	}
}

func (g *Guardian) record(events []model.GuardianEvent) error {
	for _, ev := range events {
		if err := g.events.Record(ev); err != nil {
			return err
		}
		g.logger.Warn("guardian finding",
			zap.String("event_type", string(ev.EventType)),
			zap.String("severity", string(ev.Severity)),
			zap.String("entity_id", ev.EntityID),
			zap.String("actual", ev.Actual),
		)
	}
	return nil
}
