package archive

import (
	"context"
	"slices"
	"sync"

	"github.com/park285/xiangqi-board/pkg/xqdto"
)

type Memory struct {
	mu    sync.Mutex
	games []xqdto.FinishedGame
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) SaveGame(_ context.Context, g *xqdto.FinishedGame) error {
	if g == nil {
		return nil
	}
	cp := *g
	cp.Moves = slices.Clone(g.Moves)
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.games {
		if m.games[i].GameID == cp.GameID {
			m.games[i] = cp
			return nil
		}
	}
	m.games = append(m.games, cp)
	return nil
}

func (m *Memory) Recent(_ context.Context, limit int) ([]xqdto.FinishedGame, error) {
	if limit <= 0 {
		limit = 10
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]xqdto.FinishedGame, 0, min(limit, len(m.games)))
	for i := len(m.games) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.games[i])
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }
