package archive

import (
	"context"
	"fmt"
	"strings"

	"github.com/park285/xiangqi-board/pkg/xqdto"
)

// Archive records finished games.
type Archive interface {
	SaveGame(ctx context.Context, g *xqdto.FinishedGame) error
	Recent(ctx context.Context, limit int) ([]xqdto.FinishedGame, error)
	Close() error
}

// Open picks a backend by URL: postgres:// and postgresql:// use lib/pq,
// sqlite:// and file: use go-sqlite3, empty keeps games in memory.
func Open(ctx context.Context, databaseURL string) (Archive, error) {
	raw := strings.TrimSpace(databaseURL)
	switch {
	case raw == "":
		return NewMemory(), nil
	case strings.HasPrefix(raw, "postgres://"), strings.HasPrefix(raw, "postgresql://"):
		return OpenSQL(ctx, Postgres, raw)
	case strings.HasPrefix(raw, "sqlite://"):
		return OpenSQL(ctx, SQLite, strings.TrimPrefix(raw, "sqlite://"))
	case strings.HasPrefix(raw, "file:"):
		return OpenSQL(ctx, SQLite, raw)
	}
	return nil, fmt.Errorf("unsupported DATABASE_URL scheme: %s", raw)
}
