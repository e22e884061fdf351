package store

import (
	"sync"

	"github.com/ppiankov/trialwatch/internal/model"
)

// MemoryEventLog is an in-memory EventLog for tests and ephemeral runs.
type MemoryEventLog struct {
	mu     sync.Mutex
	events []model.GuardianEvent
}

// NewMemoryEventLog creates an empty in-memory event log.
func NewMemoryEventLog() *MemoryEventLog {
	return &MemoryEventLog{}
}

// Record appends an event.
func (m *MemoryEventLog) Record(event model.GuardianEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// Query returns matching events, newest first.
func (m *MemoryEventLog) Query(q EventQuery) ([]model.GuardianEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	limit := normalizeLimit(q.Limit)
	out := make([]model.GuardianEvent, 0, limit)
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		if matches(m.events[i], q) {
			out = append(out, m.events[i])
		}
	}
	return out, nil
}

// MemoryStalenessStore is an in-memory StalenessStore.
type MemoryStalenessStore struct {
	mu         sync.Mutex
	indicators map[string]model.StalenessIndicator
}

// NewMemoryStalenessStore creates an empty in-memory staleness store.
func NewMemoryStalenessStore() *MemoryStalenessStore {
	return &MemoryStalenessStore{indicators: make(map[string]model.StalenessIndicator)}
}

// Get returns the indicator for an entity, if any.
func (m *MemoryStalenessStore) Get(entityID string) (model.StalenessIndicator, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ind, ok := m.indicators[entityID]
	return ind, ok, nil
}

// Put upserts an entity's indicator.
func (m *MemoryStalenessStore) Put(ind model.StalenessIndicator) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indicators[ind.EntityID] = ind
	return nil
}
