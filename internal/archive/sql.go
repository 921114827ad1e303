package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/park285/xiangqi-board/pkg/xqdto"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

func (d Dialect) driver() string {
	if d == SQLite {
		return "sqlite3"
	}
	return "postgres"
}

// placeholders for n arguments in the dialect's style.
func (d Dialect) placeholders(n int) string {
	ps := make([]string, n)
	for i := range ps {
		if d == SQLite {
			ps[i] = "?"
		} else {
			ps[i] = fmt.Sprintf("$%d", i+1)
		}
	}
	return strings.Join(ps, ",")
}

func (d Dialect) schema() string {
	ts := "TIMESTAMPTZ"
	if d == SQLite {
		ts = "DATETIME"
	}
	return `CREATE TABLE IF NOT EXISTS xiangqi_games (
	game_id TEXT PRIMARY KEY,
	start_fen TEXT NOT NULL DEFAULT '',
	final_fen TEXT NOT NULL,
	moves TEXT NOT NULL,
	move_count INTEGER NOT NULL,
	started_at ` + ts + ` NOT NULL,
	ended_at ` + ts + ` NOT NULL,
	duration_ms BIGINT NOT NULL
)`
}

type SQLRepository struct {
	db      *sql.DB
	dialect Dialect
}

func OpenSQL(ctx context.Context, d Dialect, dsn string) (*SQLRepository, error) {
	db, err := sql.Open(d.driver(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.driver(), err)
	}
	if d == SQLite {
		// single writer
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(16)
		db.SetMaxIdleConns(8)
		db.SetConnMaxLifetime(30 * time.Minute)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", d.driver(), err)
	}
	if _, err := db.ExecContext(ctx, d.schema()); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLRepository{db: db, dialect: d}, nil
}

func (r *SQLRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// SaveGame upserts a finished game.
func (r *SQLRepository) SaveGame(ctx context.Context, g *xqdto.FinishedGame) error {
	if r == nil || r.db == nil || g == nil {
		return nil
	}
	if strings.TrimSpace(g.GameID) == "" {
		return errors.New("finished game without id")
	}
	movesRaw, err := json.Marshal(g.Moves)
	if err != nil {
		return err
	}
	duration := g.EndedAt.Sub(g.StartedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}

	q := `INSERT INTO xiangqi_games (
		game_id, start_fen, final_fen, moves, move_count, started_at, ended_at, duration_ms
	) VALUES (` + r.dialect.placeholders(8) + `) ON CONFLICT (game_id) DO UPDATE SET
		start_fen=excluded.start_fen,
		final_fen=excluded.final_fen,
		moves=excluded.moves,
		move_count=excluded.move_count,
		started_at=excluded.started_at,
		ended_at=excluded.ended_at,
		duration_ms=excluded.duration_ms`

	_, err = r.db.ExecContext(ctx, q,
		g.GameID, g.StartFEN, g.FinalFEN, string(movesRaw), len(g.Moves),
		g.StartedAt.UTC(), g.EndedAt.UTC(), duration,
	)
	if err != nil {
		return fmt.Errorf("save game %s: %w", g.GameID, err)
	}
	return nil
}

// Recent returns finished games, newest first.
func (r *SQLRepository) Recent(ctx context.Context, limit int) ([]xqdto.FinishedGame, error) {
	if limit <= 0 {
		limit = 10
	}
	q := `SELECT game_id, start_fen, final_fen, moves, started_at, ended_at
		FROM xiangqi_games ORDER BY ended_at DESC LIMIT ` + r.dialect.placeholders(1)
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []xqdto.FinishedGame
	for rows.Next() {
		var (
			g     xqdto.FinishedGame
			moves string
		)
		if err := rows.Scan(&g.GameID, &g.StartFEN, &g.FinalFEN, &moves, &g.StartedAt, &g.EndedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(moves), &g.Moves); err != nil {
			return nil, fmt.Errorf("decode moves of %s: %w", g.GameID, err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
