package controller

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/park285/xiangqi-board/internal/archive"
	"github.com/park285/xiangqi-board/internal/engine"
	"github.com/park285/xiangqi-board/internal/geometry"
	"github.com/park285/xiangqi-board/internal/store"
	"github.com/park285/xiangqi-board/internal/xiangqi"
	"github.com/park285/xiangqi-board/pkg/xqdto"
	"go.uber.org/zap"
)

const persistTimeout = 2 * time.Second

var (
	ErrNoHintSource = errors.New("no hint source configured")
	ErrOffBoard     = errors.New("point is not on the board")
)

// HintSource is the part of engine.Session the controller drives. It also
// owns the move history.
type HintSource interface {
	RequestBestMove(ctx context.Context, req engine.Request) (uint64, error)
	AppendMove(move string)
	History() []string
	RestoreHistory(moves []string)
	NewGame(ctx context.Context) error
}

type Deps struct {
	// Board defaults to the opening layout with Red to move.
	Board    *xiangqi.Board
	Codec    xiangqi.Codec
	Notation xiangqi.Notation
	Hints    HintSource
	Renderer Renderer
	Store    store.SnapshotStore
	Archive  archive.Archive
	// Frame maps world points to squares. Defaults to one world unit per
	// intersection on the XZ plane.
	Frame  *geometry.Frame
	Logger *zap.Logger
	Now    func() time.Time
	// Context bounds hint requests started by the controller.
	Context context.Context
}

// Controller is the only writer of the board. HTTP, websocket and console
// inputs all go through it.
type Controller struct {
	codec    xiangqi.Codec
	notation xiangqi.Notation
	hints    HintSource
	renderer Renderer
	store    store.SnapshotStore
	archive  archive.Archive
	frame    geometry.Frame
	logger   *zap.Logger
	now      func() time.Time
	ctx      context.Context

	mu        sync.Mutex
	board     *xiangqi.Board
	gameID    string
	startFEN  string // empty when the game began from the opening layout
	startedAt time.Time
	selected  *xiangqi.Square
	targets   []xiangqi.Square
	hint      *xiangqi.Move
	lastMove  *xiangqi.Move
	updatedAt time.Time
	// hintToken is the token of the last request sent; zero when none is
	// outstanding for the current game.
	hintToken uint64
}

func DefaultFrame() geometry.Frame {
	return geometry.Frame{
		BL: geometry.Point3{X: 0, Z: 0},
		BR: geometry.Point3{X: xiangqi.Files - 1, Z: 0},
		TL: geometry.Point3{X: 0, Z: xiangqi.Ranks - 1},
		TR: geometry.Point3{X: xiangqi.Files - 1, Z: xiangqi.Ranks - 1},
	}
}

func New(d Deps) (*Controller, error) {
	if d.Hints == nil {
		return nil, ErrNoHintSource
	}
	c := &Controller{
		codec:    d.Codec,
		notation: d.Notation,
		hints:    d.Hints,
		renderer: d.Renderer,
		store:    d.Store,
		archive:  d.Archive,
		frame:    DefaultFrame(),
		logger:   d.Logger,
		now:      d.Now,
		ctx:      d.Context,
		board:    d.Board,
	}
	if c.renderer == nil {
		c.renderer = NopRenderer{}
	}
	if c.store == nil {
		c.store = store.NewMemoryStore()
	}
	if c.archive == nil {
		c.archive = archive.NewMemory()
	}
	if d.Frame != nil {
		c.frame = *d.Frame
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.ctx == nil {
		c.ctx = context.Background()
	}
	if c.board == nil {
		c.board = xiangqi.NewStartingBoard(xiangqi.Red)
	}
	if !c.board.IsStartingLayout() || c.board.SideToMove() != xiangqi.Red {
		c.startFEN = c.codec.Encode(c.board)
	}
	c.gameID = uuid.NewString()
	c.startedAt = c.now()
	c.updatedAt = c.startedAt
	return c, nil
}

// OnBestMoveResolved implements engine.Sink. A hint that no longer fits the
// board is dropped.
func (c *Controller) OnBestMoveResolved(from, to xiangqi.Square) {
	c.mu.Lock()
	ok := c.acceptHintLocked(from, to)
	c.mu.Unlock()
	if ok {
		c.renderer.OnBestMoveResolved(from, to)
	}
}

// OnBestMoveResolvedFor implements engine.TokenSink. Only the result of the
// last request sent for the current board is accepted.
func (c *Controller) OnBestMoveResolvedFor(token uint64, from, to xiangqi.Square) {
	c.mu.Lock()
	if current := c.hintToken; token != current {
		c.mu.Unlock()
		c.logger.Debug("hint_stale", zap.Uint64("token", token), zap.Uint64("current", current))
		return
	}
	ok := c.acceptHintLocked(from, to)
	c.mu.Unlock()
	if ok {
		c.renderer.OnBestMoveResolved(from, to)
	}
}

func (c *Controller) acceptHintLocked(from, to xiangqi.Square) bool {
	p, ok := c.board.PieceAt(from)
	if !ok || p.Side != c.board.SideToMove() || !xiangqi.IsLegal(c.board, from, to) {
		c.logger.Debug("hint_dropped", zap.Stringer("from", from), zap.Stringer("to", to))
		return false
	}
	c.hint = &xiangqi.Move{From: from, To: to}
	c.persistLocked()
	return true
}

// Select marks the piece on sq and reports its legal targets. Selecting the
// selected piece again clears the selection and reports no targets.
func (c *Controller) Select(sq xiangqi.Square) ([]xiangqi.Square, error) {
	c.mu.Lock()
	p, ok, err := c.board.Lookup(sq)
	if err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("select: %w", err)
	}
	if !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("select %s: %w", sq, xiangqi.ErrNoPieceAtSource)
	}
	if p.Side != c.board.SideToMove() {
		c.mu.Unlock()
		return nil, fmt.Errorf("select %s (%s): %w", sq, p, xiangqi.ErrWrongSide)
	}
	if c.selected != nil && *c.selected == sq {
		c.clearSelectionLocked()
		c.mu.Unlock()
		c.renderer.OnLegalMovesComputed(sq, nil)
		return nil, nil
	}
	targets := xiangqi.LegalMoveList(c.board, sq)
	sel := sq
	c.selected = &sel
	c.targets = targets
	c.mu.Unlock()

	c.renderer.OnLegalMovesComputed(sq, slices.Clone(targets))
	return targets, nil
}

// Deselect clears any selection.
func (c *Controller) Deselect() {
	c.mu.Lock()
	c.clearSelectionLocked()
	c.mu.Unlock()
}

func (c *Controller) clearSelectionLocked() {
	c.selected = nil
	c.targets = nil
}

// HandleClick is the pointer flow: a friendly piece toggles the selection,
// anything else tries to move the selected piece there. A nil result with a
// nil error means the click only changed the selection.
func (c *Controller) HandleClick(sq xiangqi.Square) (*MoveResult, error) {
	c.mu.Lock()
	p, occupied, err := c.board.Lookup(sq)
	if err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("click: %w", err)
	}
	own := occupied && p.Side == c.board.SideToMove()
	var from *xiangqi.Square
	if c.selected != nil {
		f := *c.selected
		from = &f
	}
	c.mu.Unlock()

	if own {
		_, err := c.Select(sq)
		return nil, err
	}
	if from == nil {
		return nil, nil
	}
	res, err := c.TryMove(*from, sq)
	if err != nil {
		c.Deselect()
		return nil, err
	}
	return &res, nil
}

// HandleWorldClick resolves a world point through the board frame and then
// behaves like HandleClick.
func (c *Controller) HandleWorldClick(p geometry.Point3) (*MoveResult, error) {
	sq, ok := c.frame.WorldToSquare(p)
	if !ok {
		return nil, ErrOffBoard
	}
	return c.HandleClick(sq)
}

// WorldPosition is the world point of the intersection sq.
func (c *Controller) WorldPosition(sq xiangqi.Square) geometry.Point3 {
	return c.frame.WorldPosition(sq)
}

// TryMove validates and applies a move for the side to move, then asks for a
// new hint.
func (c *Controller) TryMove(from, to xiangqi.Square) (MoveResult, error) {
	mv := xiangqi.Move{From: from, To: to}

	c.mu.Lock()
	if err := xiangqi.ValidateMove(c.board, mv); err != nil {
		c.mu.Unlock()
		return MoveResult{}, err
	}
	mover, _ := c.board.PieceAt(from)

	var captured *xiangqi.Piece
	if victim, ok, err := c.board.RemovePiece(to); err != nil {
		c.mu.Unlock()
		c.logger.Error("board_inconsistent", zap.Stringer("move", mv), zap.Error(err))
		return MoveResult{}, err
	} else if ok {
		captured = &victim
	}
	if err := c.board.MovePiece(from, to); err != nil {
		c.mu.Unlock()
		c.logger.Error("board_inconsistent", zap.Stringer("move", mv), zap.Error(err))
		return MoveResult{}, err
	}
	c.board.ToggleSideToMove()

	notation := c.notation.Format(mv)
	c.hints.AppendMove(notation)
	c.clearSelectionLocked()
	c.hint = nil
	c.lastMove = &mv
	c.updatedAt = c.now()
	c.persistLocked()
	c.sendRequestLocked()
	c.mu.Unlock()

	if captured != nil {
		c.renderer.OnPieceCaptured(to, *captured)
	}
	c.renderer.OnPieceMoved(from, to, mover)

	c.logger.Debug("move_applied", zap.String("move", notation), zap.Bool("capture", captured != nil))
	return MoveResult{Move: mv, Notation: notation, Piece: mover, Captured: captured}, nil
}

// MoveByNotation parses s in any accepted notation shape and applies it.
func (c *Controller) MoveByNotation(s string) (MoveResult, error) {
	mv, err := c.notation.Parse(s)
	if err != nil {
		return MoveResult{}, err
	}
	return c.TryMove(mv.From, mv.To)
}

// RequestHint asks for a best move for the current position.
func (c *Controller) RequestHint() (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tok, err := c.hints.RequestBestMove(c.ctx, c.requestLocked())
	if err != nil {
		return 0, err
	}
	c.hintToken = tok
	return tok, nil
}

// requestLocked builds the position exchange: the start marker plus history
// for games begun from the opening layout, the current FEN otherwise.
func (c *Controller) requestLocked() engine.Request {
	snapshot := c.board.Clone()
	verify := func(mv xiangqi.Move) bool {
		p, ok := snapshot.PieceAt(mv.From)
		return ok && p.Side == snapshot.SideToMove() && xiangqi.IsLegal(snapshot, mv.From, mv.To)
	}
	if c.startFEN == "" {
		return engine.Request{Position: engine.StartPos, Moves: c.hints.History(), Verify: verify}
	}
	return engine.Request{Position: c.codec.Encode(c.board), Verify: verify}
}

// sendRequestLocked issues the request while c.mu is held, so requests reach
// the session in the order the board changed.
func (c *Controller) sendRequestLocked() {
	tok, err := c.hints.RequestBestMove(c.ctx, c.requestLocked())
	if err != nil {
		c.hintToken = 0
		if errors.Is(err, engine.ErrOracleUnavailable) {
			c.logger.Debug("hint_skipped", zap.Error(err))
			return
		}
		c.logger.Warn("hint_request_failed", zap.Error(err))
		return
	}
	c.hintToken = tok
}

// NewGame archives the current game if any move was played and resets to the
// opening layout.
func (c *Controller) NewGame(ctx context.Context) (*xqdto.GameState, error) {
	return c.reset(ctx, xiangqi.NewStartingBoard(xiangqi.Red), "")
}

// LoadFEN replaces the game with a custom position. The previous game is
// archived like NewGame.
func (c *Controller) LoadFEN(ctx context.Context, fen string) (*xqdto.GameState, error) {
	b, err := c.codec.Decode(fen)
	if err != nil {
		return nil, err
	}
	start := c.codec.Encode(b)
	if b.IsStartingLayout() && b.SideToMove() == xiangqi.Red {
		start = ""
	}
	return c.reset(ctx, b, start)
}

func (c *Controller) reset(ctx context.Context, b *xiangqi.Board, startFEN string) (*xqdto.GameState, error) {
	c.mu.Lock()
	finished := c.finishedLocked()
	c.hintToken = 0
	c.mu.Unlock()

	if finished != nil {
		if err := c.archive.SaveGame(ctx, finished); err != nil {
			c.logger.Warn("archive_save_failed", zap.String("game_id", finished.GameID), zap.Error(err))
		}
	}
	if err := c.hints.NewGame(ctx); err != nil {
		c.logger.Warn("engine_new_game_failed", zap.Error(err))
	}

	c.mu.Lock()
	c.board = b
	c.startFEN = startFEN
	c.gameID = uuid.NewString()
	c.startedAt = c.now()
	c.updatedAt = c.startedAt
	c.clearSelectionLocked()
	c.hint = nil
	c.lastMove = nil
	c.persistLocked()
	st := c.snapshotLocked()
	c.sendRequestLocked()
	c.mu.Unlock()

	c.logger.Info("game_reset", zap.String("game_id", st.GameID), zap.Bool("custom_start", startFEN != ""))
	c.renderer.OnBoardReset(st)
	return st, nil
}

func (c *Controller) finishedLocked() *xqdto.FinishedGame {
	moves := c.hints.History()
	if len(moves) == 0 {
		return nil
	}
	return &xqdto.FinishedGame{
		GameID:    c.gameID,
		StartFEN:  c.startFEN,
		FinalFEN:  c.codec.Encode(c.board),
		Moves:     moves,
		StartedAt: c.startedAt,
		EndedAt:   c.now(),
	}
}

// Resume restores a stored game. gameID "latest" picks the most recent one.
func (c *Controller) Resume(ctx context.Context, gameID string) (*xqdto.GameState, error) {
	var (
		st  *xqdto.GameState
		err error
	)
	if strings.EqualFold(strings.TrimSpace(gameID), "latest") {
		st, err = c.store.Latest(ctx)
	} else {
		st, err = c.store.Load(ctx, gameID)
	}
	if err != nil {
		return nil, fmt.Errorf("resume %s: %w", gameID, err)
	}
	b, err := c.codec.Decode(st.FEN)
	if err != nil {
		return nil, fmt.Errorf("resume %s: %w", st.GameID, err)
	}
	c.mu.Lock()
	c.hintToken = 0
	c.mu.Unlock()
	if err := c.hints.NewGame(ctx); err != nil {
		c.logger.Warn("engine_new_game_failed", zap.Error(err))
	}
	c.hints.RestoreHistory(st.History)

	c.mu.Lock()
	c.board = b
	c.startFEN = st.StartFEN
	c.gameID = st.GameID
	c.startedAt = c.now()
	c.updatedAt = st.UpdatedAt
	c.clearSelectionLocked()
	c.hint = nil
	c.lastMove = nil
	out := c.snapshotLocked()
	c.sendRequestLocked()
	c.mu.Unlock()

	c.logger.Info("game_resumed", zap.String("game_id", out.GameID), zap.Int("moves", len(out.History)))
	c.renderer.OnBoardReset(out)
	return out, nil
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() *xqdto.GameState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Board returns a copy of the board.
func (c *Controller) Board() *xiangqi.Board {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.board.Clone()
}

// View is what a board image needs.
type View struct {
	Board    *xiangqi.Board
	Selected *xiangqi.Square
	Targets  []xiangqi.Square
	Hint     *xiangqi.Move
	LastMove *xiangqi.Move
}

func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := View{Board: c.board.Clone(), Targets: slices.Clone(c.targets)}
	if c.selected != nil {
		s := *c.selected
		v.Selected = &s
	}
	if c.hint != nil {
		h := *c.hint
		v.Hint = &h
	}
	if c.lastMove != nil {
		m := *c.lastMove
		v.LastMove = &m
	}
	return v
}

// LegalTargets lists the targets of the piece on sq without selecting it.
func (c *Controller) LegalTargets(sq xiangqi.Square) []xiangqi.Square {
	c.mu.Lock()
	defer c.mu.Unlock()
	return xiangqi.LegalMoveList(c.board, sq)
}

func (c *Controller) snapshotLocked() *xqdto.GameState {
	st := &xqdto.GameState{
		GameID:     c.gameID,
		FEN:        c.codec.Encode(c.board),
		SideToMove: c.board.SideToMove().String(),
		StartFEN:   c.startFEN,
		History:    c.hints.History(),
		Targets:    SquaresDTO(c.targets),
		UpdatedAt:  c.updatedAt,
	}
	if st.History == nil {
		st.History = []string{}
	}
	st.Pieces = make([]xqdto.PieceDTO, 0, c.board.Len())
	c.board.Pieces(func(sq xiangqi.Square, p xiangqi.Piece) {
		st.Pieces = append(st.Pieces, PieceDTO(sq, p))
	})
	if c.selected != nil {
		s := SquareDTO(*c.selected)
		st.Selected = &s
	}
	if c.hint != nil {
		st.Hint = &xqdto.Hint{
			From:     SquareDTO(c.hint.From),
			To:       SquareDTO(c.hint.To),
			Notation: c.notation.Format(*c.hint),
		}
	}
	return st
}

func (c *Controller) persistLocked() {
	st := c.snapshotLocked()
	ctx, cancel := context.WithTimeout(c.ctx, persistTimeout)
	defer cancel()
	if err := c.store.Save(ctx, st); err != nil {
		c.logger.Warn("snapshot_save_failed", zap.String("game_id", st.GameID), zap.Error(err))
	}
}

// RecentGames lists archived games, newest first.
func (c *Controller) RecentGames(ctx context.Context, limit int) ([]xqdto.FinishedGame, error) {
	return c.archive.Recent(ctx, limit)
}
