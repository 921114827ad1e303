package store

import (
	"context"
	"errors"

	"github.com/park285/xiangqi-board/pkg/xqdto"
)

var ErrNotFound = errors.New("snapshot not found")

// SnapshotStore keeps the live game so a restarted service can resume it.
type SnapshotStore interface {
	Save(ctx context.Context, st *xqdto.GameState) error
	Load(ctx context.Context, gameID string) (*xqdto.GameState, error)
	// Latest returns the most recently saved game.
	Latest(ctx context.Context) (*xqdto.GameState, error)
	Delete(ctx context.Context, gameID string) error
	Close() error
}
