package store

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/park285/xiangqi-board/pkg/xqdto"
)

// MemoryStore is used when no Redis is configured. Snapshots are copied on
// the way in and out.
type MemoryStore struct {
	mu     sync.RWMutex
	items  map[string][]byte
	latest string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string][]byte)}
}

func (m *MemoryStore) Save(_ context.Context, st *xqdto.GameState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.items[st.GameID] = raw
	m.latest = st.GameID
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Load(_ context.Context, gameID string) (*xqdto.GameState, error) {
	m.mu.RLock()
	raw, ok := m.items[gameID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	var st xqdto.GameState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (m *MemoryStore) Latest(ctx context.Context) (*xqdto.GameState, error) {
	m.mu.RLock()
	id := m.latest
	m.mu.RUnlock()
	if id == "" {
		return nil, ErrNotFound
	}
	return m.Load(ctx, id)
}

func (m *MemoryStore) Delete(_ context.Context, gameID string) error {
	m.mu.Lock()
	delete(m.items, gameID)
	if m.latest == gameID {
		m.latest = ""
	}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Close() error { return nil }
