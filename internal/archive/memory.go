package archive

import (
	"context"
	"sort"
	"strings"
	"sync"
)

const defaultMemoryCapacity = 100

// MemoryStore keeps the most recent finished games in process. Snapshots are
// ignored; live state is served by the session manager.
type MemoryStore struct {
	mu       sync.RWMutex
	capacity int
	order    []string
	byID     map[string]*GameRecord
}

func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = defaultMemoryCapacity
	}
	return &MemoryStore{capacity: capacity, byID: make(map[string]*GameRecord)}
}

func (m *MemoryStore) SaveSnapshot(context.Context, *GameRecord) error { return nil }

func (m *MemoryStore) SaveResult(_ context.Context, rec *GameRecord) error {
	if rec == nil || strings.TrimSpace(rec.GameID) == "" {
		return nil
	}
	cp := cloneRecord(rec)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byID[cp.GameID]; exists {
		m.removeLocked(cp.GameID)
	}
	m.byID[cp.GameID] = cp
	m.order = append(m.order, cp.GameID)
	for len(m.order) > m.capacity {
		oldest := m.order[0]
		m.order = m.order[1:]
		delete(m.byID, oldest)
	}
	return nil
}

// Recent returns finished games, latest first.
func (m *MemoryStore) Recent(limit int) []*GameRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := make([]*GameRecord, 0, len(m.order))
	for _, id := range m.order {
		items = append(items, cloneRecord(m.byID[id]))
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].EndedAt.After(items[j].EndedAt)
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

func (m *MemoryStore) Get(gameID string) (*GameRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.byID[strings.TrimSpace(gameID)]
	if !ok {
		return nil, false
	}
	return cloneRecord(rec), true
}

func (m *MemoryStore) removeLocked(id string) {
	delete(m.byID, id)
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			return
		}
	}
}
