package guardian

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/trialwatch/internal/model"
)

// DataDelta summarizes how much the feature data moved between two snapshots.
type DataDelta struct {
	ChangedFeatures int     `json:"changed_features"`
	MaxRelChange    float64 `json:"max_rel_change"`
	Material        bool    `json:"material"`
}

func (d DataDelta) String() string {
	return fmt.Sprintf("%d features changed, max relative change %.2f", d.ChangedFeatures, d.MaxRelChange)
}

// OutputDelta summarizes how much the scoring output moved between two
// snapshots.
type OutputDelta struct {
	RiskRankChange int     `json:"risk_rank_change"`
	AlertJaccard   float64 `json:"alert_jaccard"`
	Sharp          bool    `json:"sharp"`
}

func (d OutputDelta) String() string {
	return fmt.Sprintf("risk moved %d ranks, alert-set similarity %.2f", d.RiskRankChange, d.AlertJaccard)
}

// Observe updates the entity's staleness indicator with a new snapshot and
// emits events when the output has decoupled from the data in either
// direction: frozen alerts over moving data (STALENESS_DETECTED), or a sharp
// output swing over still data (DATA_OUTPUT_INCONSISTENCY).
//
// Updates to one entity's indicator are serialized; the first snapshot for
// an entity only seeds the indicator.
func (g *Guardian) Observe(snap model.Snapshot) ([]model.GuardianEvent, error) {
	mu := g.lockFor(snap.EntityID)
	mu.Lock()
	defer mu.Unlock()

	gc := g.config()

	ind, found, err := g.staleness.Get(snap.EntityID)
	if err != nil {
		return nil, err
	}
	if !found {
		ind = model.StalenessIndicator{
			EntityID:             snap.EntityID,
			LastDataChange:       snap.Timestamp,
			AlertsUnchangedSince: snap.Timestamp,
		}
		g.applySnapshot(&ind, snap)
		return nil, g.staleness.Put(ind)
	}

	dataDelta := computeDataDelta(ind.LastFeatures, snap.Features, gc.MaterialChangeRatio)
	outputDelta := computeOutputDelta(ind.LastRiskLevel, snap.RiskLevel, ind.LastAlertSet, snap.AlertSet, gc.SharpRiskRankChange, gc.SharpAlertJaccardMax)

	if equalAlertSets(ind.LastAlertSet, snap.AlertSet) {
		ind.ConsecutiveUnchanged++
	} else {
		ind.ConsecutiveUnchanged = 0
		ind.AlertsUnchangedSince = snap.Timestamp
	}
	if dataDelta.Material {
		ind.LastDataChange = snap.Timestamp
	}

	var events []model.GuardianEvent

	// The data must have moved at some point inside the unchanged window,
	// not necessarily on the run that completes it.
	if ind.ConsecutiveUnchanged >= gc.StalenessRuns && ind.LastDataChange.After(ind.AlertsUnchangedSince) {
		events = append(events, model.GuardianEvent{
			ID:          uuid.NewString(),
			EventType:   model.EventStalenessDetected,
			Severity:    model.SeverityWarning,
			EntityID:    snap.EntityID,
			SnapshotID:  snap.SnapshotID,
			DataDelta:   dataDelta.String(),
			OutputDelta: outputDelta.String(),
			Expected:    fmt.Sprintf("alert set to change within %d runs when data materially changes", gc.StalenessRuns),
			Actual:      fmt.Sprintf("alert set unchanged for %d consecutive runs while data last moved at %s", ind.ConsecutiveUnchanged, ind.LastDataChange.UTC().Format(time.RFC3339)),
			Recommendation: "the alert outputs may be frozen; verify agents are " +
				"reading the refreshed features for this entity",
			Timestamp: g.now().UTC(),
		})
		// Re-arm so the same freeze does not fire every subsequent run.
		ind.ConsecutiveUnchanged = 0
		ind.AlertsUnchangedSince = snap.Timestamp
	}

	if outputDelta.Sharp && !dataDelta.Material {
		events = append(events, model.GuardianEvent{
			ID:          uuid.NewString(),
			EventType:   model.EventDataOutputInconsistency,
			Severity:    model.SeverityWarning,
			EntityID:    snap.EntityID,
			SnapshotID:  snap.SnapshotID,
			DataDelta:   dataDelta.String(),
			OutputDelta: outputDelta.String(),
			Expected:    "scoring output stable while underlying data is stable",
			Actual:      fmt.Sprintf("output swung sharply (%s) over a negligible data delta", outputDelta),
			Recommendation: "an agent or weight change likely altered scoring " +
				"without new evidence; review recent configuration changes",
			Timestamp: g.now().UTC(),
		})
	}

	g.applySnapshot(&ind, snap)
	if err := g.staleness.Put(ind); err != nil {
		return events, err
	}
	if err := g.record(events); err != nil {
		return events, err
	}
	return events, nil
}

// applySnapshot copies the snapshot's outputs into the indicator. Features
// are cloned: the indicator must not alias caller-owned data.
func (g *Guardian) applySnapshot(ind *model.StalenessIndicator, snap model.Snapshot) {
	alerts := make([]string, len(snap.AlertSet))
	copy(alerts, snap.AlertSet)
	sort.Strings(alerts)

	ind.LastAlertSet = alerts
	ind.LastRiskLevel = snap.RiskLevel
	ind.LastFeatures = snap.Features.Clone()
	ind.LastSnapshotID = snap.SnapshotID
}

// computeDataDelta measures per-feature relative movement between two
// feature sets. A feature appearing or disappearing counts as a full change.
func computeDataDelta(prev, curr model.FeatureSet, materialRatio float64) DataDelta {
	var delta DataDelta

	names := make(map[string]bool, len(prev)+len(curr))
	for n := range prev {
		names[n] = true
	}
	for n := range curr {
		names[n] = true
	}

	for n := range names {
		pv, pok := prev.Get(n)
		cv, cok := curr.Get(n)
		switch {
		case pok != cok:
			delta.ChangedFeatures++
			delta.MaxRelChange = math.Max(delta.MaxRelChange, 1)
		case pok && cok:
			rel := relChange(pv, cv)
			if rel > materialRatio {
				delta.ChangedFeatures++
			}
			delta.MaxRelChange = math.Max(delta.MaxRelChange, rel)
		}
	}

	delta.Material = delta.MaxRelChange > materialRatio
	return delta
}

// relChange is |curr−prev| relative to the larger magnitude, with an
// absolute fallback when both values are near zero.
func relChange(prev, curr float64) float64 {
	diff := math.Abs(curr - prev)
	base := math.Max(math.Abs(prev), math.Abs(curr))
	if base < 1e-9 {
		return 0
	}
	return diff / base
}

// computeOutputDelta measures how sharply the scoring output moved.
func computeOutputDelta(prevLevel, currLevel model.RiskLevel, prevAlerts, currAlerts []string, rankThreshold int, jaccardMax float64) OutputDelta {
	delta := OutputDelta{
		RiskRankChange: absInt(model.RiskRank[currLevel] - model.RiskRank[prevLevel]),
		AlertJaccard:   jaccard(prevAlerts, currAlerts),
	}
	delta.Sharp = delta.RiskRankChange >= rankThreshold || delta.AlertJaccard < jaccardMax
	return delta
}

// jaccard is the similarity of two alert sets. Two empty sets are identical.
func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	set := make(map[string]bool, len(a))
	for _, s := range a {
		set[s] = true
	}
	intersection := 0
	union := len(set)
	seen := make(map[string]bool, len(b))
	for _, s := range b {
		if seen[s] {
			continue
		}
		seen[s] = true
		if set[s] {
			intersection++
		} else {
			union++
		}
	}
	if union == 0 {
		return 1
	}
	return float64(intersection) / float64(union)
}

func equalAlertSets(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := make([]string, len(a))
	bs := make([]string, len(b))
	copy(as, a)
	copy(bs, b)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
