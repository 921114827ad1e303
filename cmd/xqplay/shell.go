package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/park285/xiangqi-board/internal/controller"
	"github.com/park285/xiangqi-board/internal/engine"
	"github.com/park285/xiangqi-board/internal/msgcat"
	"github.com/park285/xiangqi-board/internal/store"
	"github.com/park285/xiangqi-board/internal/xiangqi"
	"github.com/park285/xiangqi-board/internal/xqclient"
	"github.com/park285/xiangqi-board/pkg/xqdto"
)

const commandTimeout = 10 * time.Second

// backend is what the console drives. xqclient.Client satisfies it for a
// remote service; localBackend wraps an in-process controller.
type backend interface {
	State(ctx context.Context) (*xqdto.GameState, error)
	Select(ctx context.Context, file, rank int) (*xqdto.GameState, error)
	Deselect(ctx context.Context) (*xqdto.GameState, error)
	Move(ctx context.Context, move string) (*xqdto.MoveResponse, error)
	Hint(ctx context.Context) (uint64, error)
	NewGame(ctx context.Context) (*xqdto.GameState, error)
	LoadFEN(ctx context.Context, fen string) (*xqdto.GameState, error)
	Games(ctx context.Context, limit int) ([]xqdto.FinishedGame, error)
}

var _ backend = (*xqclient.Client)(nil)

type localBackend struct{ ctrl *controller.Controller }

func (l localBackend) State(context.Context) (*xqdto.GameState, error) {
	return l.ctrl.Snapshot(), nil
}

func (l localBackend) Select(_ context.Context, file, rank int) (*xqdto.GameState, error) {
	if _, err := l.ctrl.Select(xiangqi.Sq(file, rank)); err != nil {
		return nil, err
	}
	return l.ctrl.Snapshot(), nil
}

func (l localBackend) Deselect(context.Context) (*xqdto.GameState, error) {
	l.ctrl.Deselect()
	return l.ctrl.Snapshot(), nil
}

func (l localBackend) Move(_ context.Context, move string) (*xqdto.MoveResponse, error) {
	res, err := l.ctrl.MoveByNotation(move)
	if err != nil {
		return nil, err
	}
	return &xqdto.MoveResponse{Move: res.DTO(), State: l.ctrl.Snapshot()}, nil
}

func (l localBackend) Hint(context.Context) (uint64, error) { return l.ctrl.RequestHint() }

func (l localBackend) NewGame(ctx context.Context) (*xqdto.GameState, error) {
	return l.ctrl.NewGame(ctx)
}

func (l localBackend) LoadFEN(ctx context.Context, fen string) (*xqdto.GameState, error) {
	return l.ctrl.LoadFEN(ctx, fen)
}

func (l localBackend) Games(ctx context.Context, limit int) ([]xqdto.FinishedGame, error) {
	return l.ctrl.RecentGames(ctx, limit)
}

type shell struct {
	be       backend
	msgs     *msgcat.Catalog
	notation xiangqi.Notation
	out      io.Writer
}

// exec runs one console line and reports whether the session should end.
func (s *shell) exec(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	switch cmd {
	case "quit", "exit", "q":
		return true
	case "help", "?":
		s.say("console.help", nil)
	case "board", "b":
		s.showBoard(ctx)
	case "move", "m":
		if len(args) != 1 {
			s.say("console.help", nil)
			return false
		}
		s.move(ctx, args[0])
	case "sel", "select":
		if len(args) != 1 {
			s.say("console.help", nil)
			return false
		}
		s.sel(ctx, args[0])
	case "desel":
		if _, err := s.be.Deselect(ctx); err != nil {
			s.fail(err)
			return false
		}
		s.say("console.deselected", nil)
	case "hint":
		s.hint(ctx)
	case "fen":
		s.fen(ctx, strings.Join(args, " "))
	case "new":
		st, err := s.be.NewGame(ctx)
		if err != nil {
			s.fail(err)
			return false
		}
		s.say("console.new_game", map[string]any{"GameID": st.GameID})
		drawBoard(s.out, st, s.notation)
	case "games":
		s.games(ctx)
	default:
		// a bare move such as "h2e2"
		if _, err := s.notation.Parse(cmd); err == nil {
			s.move(ctx, cmd)
			return false
		}
		s.say("console.unknown", map[string]any{"Command": cmd})
	}
	return false
}

func (s *shell) showBoard(ctx context.Context) {
	st, err := s.be.State(ctx)
	if err != nil {
		s.fail(err)
		return
	}
	drawBoard(s.out, st, s.notation)
	s.say("console.side", map[string]any{"Side": st.SideToMove})
}

func (s *shell) move(ctx context.Context, mv string) {
	resp, err := s.be.Move(ctx, mv)
	if err != nil {
		s.fail(err)
		return
	}
	piece := ""
	for _, p := range resp.State.Pieces {
		if p.File == resp.Move.To.File && p.Rank == resp.Move.To.Rank {
			piece = p.Side + " " + p.Type
		}
	}
	s.say("console.moved", map[string]any{"Notation": resp.Move.Notation, "Piece": piece})
	if c := resp.Move.Captured; c != nil {
		s.say("console.captured", map[string]any{"Piece": c.Side + " " + c.Type})
	}
	drawBoard(s.out, resp.State, s.notation)
}

func (s *shell) sel(ctx context.Context, arg string) {
	sq, err := s.notation.ParseSquare(arg)
	if err != nil {
		s.fail(err)
		return
	}
	st, err := s.be.Select(ctx, sq.File, sq.Rank)
	if err != nil {
		s.fail(err)
		return
	}
	if st.Selected == nil {
		s.say("console.deselected", nil)
		return
	}
	names := make([]string, 0, len(st.Targets))
	for _, t := range st.Targets {
		names = append(names, s.notation.FormatSquare(controller.FromSquareDTO(t)))
	}
	s.say("console.selected", map[string]any{
		"Square":  s.notation.FormatSquare(sq),
		"Count":   len(names),
		"Targets": strings.Join(names, " "),
	})
	drawBoard(s.out, st, s.notation)
}

func (s *shell) hint(ctx context.Context) {
	st, err := s.be.State(ctx)
	if err != nil {
		s.fail(err)
		return
	}
	if st.Hint != nil {
		s.say("console.hint", map[string]any{"Notation": st.Hint.Notation})
		return
	}
	tok, err := s.be.Hint(ctx)
	if err != nil {
		s.fail(err)
		return
	}
	s.say("console.hint_requested", map[string]any{"Token": tok})
}

func (s *shell) fen(ctx context.Context, fen string) {
	if strings.TrimSpace(fen) == "" {
		st, err := s.be.State(ctx)
		if err != nil {
			s.fail(err)
			return
		}
		fmt.Fprintln(s.out, st.FEN)
		return
	}
	st, err := s.be.LoadFEN(ctx, fen)
	if err != nil {
		s.fail(err)
		return
	}
	s.say("console.loaded", map[string]any{"FEN": st.FEN})
	drawBoard(s.out, st, s.notation)
}

func (s *shell) games(ctx context.Context) {
	games, err := s.be.Games(ctx, 10)
	if err != nil {
		s.fail(err)
		return
	}
	if len(games) == 0 {
		s.say("console.no_games", nil)
		return
	}
	for _, g := range games {
		s.say("console.game_line", map[string]any{
			"EndedAt": g.EndedAt.Local().Format("2006-01-02 15:04"),
			"GameID":  g.GameID,
			"Moves":   len(g.Moves),
		})
	}
}

func (s *shell) say(key string, data any) {
	fmt.Fprintln(s.out, strings.TrimRight(s.msgs.Text(key, data), "\n"))
}

func (s *shell) fail(err error) {
	code := errorCode(err)
	s.say("error."+code, map[string]any{"Detail": err.Error()})
}

func errorCode(err error) string {
	var apiErr *xqclient.APIError
	if errors.As(err, &apiErr) && apiErr.Code() != "" {
		return apiErr.Code()
	}
	switch {
	case errors.Is(err, xiangqi.ErrIllegalMove):
		return xqdto.CodeIllegalMove
	case errors.Is(err, xiangqi.ErrWrongSide):
		return xqdto.CodeWrongSide
	case errors.Is(err, xiangqi.ErrNoPieceAtSource):
		return xqdto.CodeEmptySquare
	case errors.Is(err, xiangqi.ErrOutOfBounds):
		return xqdto.CodeOutOfBounds
	case errors.Is(err, xiangqi.ErrMalformedFEN):
		return xqdto.CodeBadFEN
	case errors.Is(err, store.ErrNotFound):
		return xqdto.CodeNotFound
	case errors.Is(err, xiangqi.ErrMalformedNotation):
		return xqdto.CodeBadRequest
	case errors.Is(err, engine.ErrOracleUnavailable):
		return xqdto.CodeInternal
	default:
		return xqdto.CodeBadRequest
	}
}

// consoleRenderer prints hints as they arrive from the local engine.
type consoleRenderer struct {
	controller.NopRenderer
	msgs     *msgcat.Catalog
	notation xiangqi.Notation
	out      io.Writer
}

func (r consoleRenderer) OnBestMoveResolved(from, to xiangqi.Square) {
	text := r.msgs.Text("console.hint", map[string]any{"Notation": r.notation.Format(xiangqi.Move{From: from, To: to})})
	fmt.Fprintln(r.out, text)
}
