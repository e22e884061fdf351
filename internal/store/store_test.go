package store

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/ppiankov/trialwatch/internal/model"
)

func fp(v float64) *float64 { return &v }

func event(id, entityID string, et model.EventType, sev model.Severity, ts time.Time) model.GuardianEvent {
	return model.GuardianEvent{
		ID:        id,
		EventType: et,
		Severity:  sev,
		EntityID:  entityID,
		Timestamp: ts,
	}
}

// eventLogContract exercises the EventLog behavior both implementations
// must share.
func eventLogContract(t *testing.T, log EventLog) {
	t.Helper()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	records := []model.GuardianEvent{
		event("ev-1", "STUDY-001", model.EventRiskConflict, model.SeverityWarning, base),
		event("ev-2", "STUDY-001", model.EventStalenessDetected, model.SeverityWarning, base.Add(time.Minute)),
		event("ev-3", "STUDY-002", model.EventDQISafetyMismatch, model.SeverityCritical, base.Add(2*time.Minute)),
	}
	for _, ev := range records {
		if err := log.Record(ev); err != nil {
			t.Fatalf("record %s: %v", ev.ID, err)
		}
	}

	all, err := log.Query(EventQuery{})
	if err != nil {
		t.Fatalf("query all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 events, got %d", len(all))
	}
	if all[0].ID != "ev-3" || all[2].ID != "ev-1" {
		t.Errorf("expected newest first, got %s..%s", all[0].ID, all[2].ID)
	}

	byEntity, err := log.Query(EventQuery{EntityID: "STUDY-001"})
	if err != nil {
		t.Fatalf("query by entity: %v", err)
	}
	if len(byEntity) != 2 {
		t.Errorf("expected 2 events for STUDY-001, got %d", len(byEntity))
	}

	byType, err := log.Query(EventQuery{EventType: model.EventDQISafetyMismatch})
	if err != nil {
		t.Fatalf("query by type: %v", err)
	}
	if len(byType) != 1 || byType[0].ID != "ev-3" {
		t.Errorf("expected only ev-3, got %+v", byType)
	}

	bySeverity, err := log.Query(EventQuery{Severity: model.SeverityCritical})
	if err != nil {
		t.Fatalf("query by severity: %v", err)
	}
	if len(bySeverity) != 1 || bySeverity[0].ID != "ev-3" {
		t.Errorf("expected only ev-3, got %+v", bySeverity)
	}

	limited, err := log.Query(EventQuery{Limit: 2})
	if err != nil {
		t.Fatalf("query limited: %v", err)
	}
	if len(limited) != 2 || limited[0].ID != "ev-3" {
		t.Errorf("expected the 2 newest, got %+v", limited)
	}

	none, err := log.Query(EventQuery{EntityID: "STUDY-404"})
	if err != nil {
		t.Fatalf("query miss: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no events for unknown entity, got %d", len(none))
	}
}

// stalenessContract exercises the StalenessStore behavior both
// implementations must share.
func stalenessContract(t *testing.T, s StalenessStore) {
	t.Helper()

	if _, found, err := s.Get("STUDY-001"); err != nil || found {
		t.Fatalf("expected a clean miss, got found=%v err=%v", found, err)
	}

	ind := model.StalenessIndicator{
		EntityID:             "STUDY-001",
		ConsecutiveUnchanged: 2,
		LastAlertSet:         []string{"SAFETY:HIGH"},
		LastRiskLevel:        model.RiskHigh,
		LastFeatures:         model.FeatureSet{"open_queries": fp(120)},
		LastDataChange:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		LastSnapshotID:       "snap-7",
	}
	if err := s.Put(ind); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, found, err := s.Get("STUDY-001")
	if err != nil || !found {
		t.Fatalf("get after put: found=%v err=%v", found, err)
	}
	if got.ConsecutiveUnchanged != 2 || got.LastRiskLevel != model.RiskHigh || got.LastSnapshotID != "snap-7" {
		t.Errorf("round trip mangled indicator: %+v", got)
	}
	if v, ok := got.LastFeatures.Get("open_queries"); !ok || v != 120 {
		t.Errorf("round trip lost features: %+v", got.LastFeatures)
	}

	// Upsert replaces.
	ind.ConsecutiveUnchanged = 0
	ind.LastSnapshotID = "snap-8"
	if err := s.Put(ind); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, _, _ = s.Get("STUDY-001")
	if got.ConsecutiveUnchanged != 0 || got.LastSnapshotID != "snap-8" {
		t.Errorf("upsert did not replace: %+v", got)
	}
}

func TestMemoryEventLog(t *testing.T) {
	eventLogContract(t, NewMemoryEventLog())
}

func TestMemoryStalenessStore(t *testing.T) {
	stalenessContract(t, NewMemoryStalenessStore())
}

func openTestDB(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "trialwatch.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteEventLog(t *testing.T) {
	eventLogContract(t, openTestDB(t))
}

func TestSQLiteStalenessStore(t *testing.T) {
	stalenessContract(t, openTestDB(t))
}

func TestSQLiteEventRoundTripPreservesFields(t *testing.T) {
	s := openTestDB(t)

	ev := model.GuardianEvent{
		ID:             "ev-full",
		EventType:      model.EventDataOutputInconsistency,
		Severity:       model.SeverityWarning,
		EntityID:       "STUDY-009",
		SnapshotID:     "snap-1",
		DataDelta:      "0 features changed, max relative change 0.00",
		OutputDelta:    "risk moved 3 ranks, alert-set similarity 0.00",
		Expected:       "scoring output stable while underlying data is stable",
		Actual:         "output swung sharply over a negligible data delta",
		Recommendation: "review recent configuration changes",
		Timestamp:      time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC),
	}
	if err := s.Record(ev); err != nil {
		t.Fatalf("record: %v", err)
	}

	got, err := s.Query(EventQuery{EntityID: "STUDY-009"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if got[0].SnapshotID != ev.SnapshotID || got[0].DataDelta != ev.DataDelta ||
		got[0].OutputDelta != ev.OutputDelta || got[0].Recommendation != ev.Recommendation {
		t.Errorf("round trip mangled event: %+v", got[0])
	}
	if !got[0].Timestamp.Equal(ev.Timestamp) {
		t.Errorf("timestamp drifted: %v vs %v", got[0].Timestamp, ev.Timestamp)
	}
}

func TestSQLiteQueryRejectsCorruptTimestamp(t *testing.T) {
	s := openTestDB(t)

	ev := event("ev-1", "STUDY-001", model.EventRiskConflict, model.SeverityWarning,
		time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	if err := s.Record(ev); err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := s.db.Exec(`UPDATE guardian_events SET ts = 'not-a-timestamp'`); err != nil {
		t.Fatalf("corrupt row: %v", err)
	}

	if _, err := s.Query(EventQuery{}); err == nil {
		t.Fatal("a corrupt stored timestamp must surface as an error, not a zero time")
	}
}

func TestNormalizeLimit(t *testing.T) {
	cases := []struct{ in, want int }{
		{0, DefaultQueryLimit},
		{-5, DefaultQueryLimit},
		{10, 10},
		{DefaultQueryLimit + 1, DefaultQueryLimit},
	}
	for _, tc := range cases {
		if got := normalizeLimit(tc.in); got != tc.want {
			t.Errorf("normalizeLimit(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestMemoryEventLogLimitKeepsNewest(t *testing.T) {
	log := NewMemoryEventLog()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < DefaultQueryLimit+20; i++ {
		ev := event(fmt.Sprintf("ev-%03d", i), "STUDY-001", model.EventRiskConflict, model.SeverityWarning, base.Add(time.Duration(i)*time.Second))
		if err := log.Record(ev); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	out, err := log.Query(EventQuery{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(out) != DefaultQueryLimit {
		t.Fatalf("expected default limit %d, got %d", DefaultQueryLimit, len(out))
	}
	if out[0].ID != fmt.Sprintf("ev-%03d", DefaultQueryLimit+19) {
		t.Errorf("expected the newest event first, got %s", out[0].ID)
	}
}
