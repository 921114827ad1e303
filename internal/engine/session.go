package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/park285/xiangqi-board/internal/xiangqi"
	"go.uber.org/zap"
)

const (
	defaultDepth        = 12
	defaultReadyTimeout = 10 * time.Second
	defaultPollInterval = 50 * time.Millisecond
)

// State tracks the lifecycle of the current request.
type State int

const (
	StateIdle State = iota
	StateAwaitingOracleReady
	StatePositionSent
	StateSearchRunning
	StateResultDelivered
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingOracleReady:
		return "awaiting_ready"
	case StatePositionSent:
		return "position_sent"
	case StateSearchRunning:
		return "search_running"
	case StateResultDelivered:
		return "result_delivered"
	case StateCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) inFlight() bool {
	return s == StateAwaitingOracleReady || s == StatePositionSent || s == StateSearchRunning
}

// Sink receives resolved hints.
type Sink interface {
	OnBestMoveResolved(from, to xiangqi.Square)
}

type SinkFunc func(from, to xiangqi.Square)

func (f SinkFunc) OnBestMoveResolved(from, to xiangqi.Square) { f(from, to) }

// TokenSink is a Sink that also learns which request a result answers. The
// session calls OnBestMoveResolvedFor instead of OnBestMoveResolved.
type TokenSink interface {
	OnBestMoveResolvedFor(token uint64, from, to xiangqi.Square)
}

type Config struct {
	Depth        int
	ReadyTimeout time.Duration
	PollInterval time.Duration
	Notation     xiangqi.Notation
	Codec        xiangqi.Codec
	// OnInfo, if set, receives info lines of the current search.
	OnInfo func(Info)
}

func (c Config) withDefaults() Config {
	if c.Depth <= 0 {
		c.Depth = defaultDepth
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = defaultReadyTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	return c
}

// Request describes one best-move query. Position is StartPos or a FEN;
// Moves only apply to StartPos. Verify, when set, must accept the parsed
// move before it is delivered.
type Request struct {
	Position string
	Moves    []string
	Verify   func(xiangqi.Move) bool
}

type pendingSearch struct {
	token  uint64
	verify func(xiangqi.Move) bool
}

// Session sequences best-move requests against a single Oracle. At most one
// request is current; issuing a new one supersedes the previous request and
// any result it later produces is dropped.
type Session struct {
	oracle Oracle
	cfg    Config
	sink   Sink
	logger *zap.Logger

	mu       sync.Mutex
	token    uint64
	state    State
	cancel   context.CancelFunc
	pending  []pendingSearch
	history  []string
	lastPos  string
	fatalErr error

	rootCtx    context.Context
	rootCancel context.CancelFunc
	wg         sync.WaitGroup
	startOnce  sync.Once
	closeOnce  sync.Once
}

func NewSession(oracle Oracle, cfg Config, sink Sink, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		oracle:     oracle,
		cfg:        cfg.withDefaults(),
		sink:       sink,
		logger:     logger,
		rootCtx:    ctx,
		rootCancel: cancel,
	}
}

// SetSink replaces the result receiver. Used when the receiver is built after
// the session.
func (s *Session) SetSink(sink Sink) {
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()
}

// Start initializes the oracle in the background and begins consuming its
// messages. Requests issued before the handshake completes wait for
// readiness as usual.
func (s *Session) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.wg.Add(2)
		go func() {
			defer s.wg.Done()
			if err := s.oracle.Init(ctx); err != nil {
				if errors.Is(err, ErrOracleUnavailable) {
					s.setFatal(err)
					return
				}
				// 요청은 NativeReady를 계속 확인하므로 늦은 핸드셰이크도 복구된다
				s.logger.Warn("engine_init_incomplete", zap.Error(err))
			}
		}()
		go s.dispatch()
	})
}

func (s *Session) setFatal(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fatalErr != nil {
		return
	}
	s.fatalErr = err
	if s.cancel != nil {
		s.cancel()
	}
	s.state = StateIdle
	s.logger.Error("engine_unavailable", zap.Error(err))
}

// Err returns the terminal error, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fatalErr
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) CurrentToken() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// LastPosition returns the position string most recently sent to the oracle.
func (s *Session) LastPosition() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPos
}

// AppendMove records an applied move in notation form.
func (s *Session) AppendMove(move string) {
	s.mu.Lock()
	s.history = append(s.history, move)
	s.mu.Unlock()
}

func (s *Session) History() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.history...)
}

// RestoreHistory replaces the move history, e.g. when resuming a persisted
// game.
func (s *Session) RestoreHistory(moves []string) {
	s.mu.Lock()
	s.history = append([]string(nil), moves...)
	s.mu.Unlock()
}

// RequestBestMove supersedes any in-flight request and starts a new one. The
// result, if any, arrives on the Sink. The returned token identifies the
// request.
func (s *Session) RequestBestMove(ctx context.Context, req Request) (uint64, error) {
	s.mu.Lock()
	if s.fatalErr != nil {
		s.mu.Unlock()
		return 0, s.fatalErr
	}
	stop := s.supersedeLocked()
	s.token++
	tok := s.token
	reqCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.state = StateAwaitingOracleReady
	s.mu.Unlock()

	if stop {
		if err := s.oracle.Stop(); err != nil {
			s.logger.Warn("engine_stop_failed", zap.Uint64("token", tok), zap.Error(err))
		}
	}

	s.wg.Add(1)
	go s.run(reqCtx, tok, req)
	return tok, nil
}

// supersedeLocked cancels the current request and reports whether the oracle
// is searching for it.
func (s *Session) supersedeLocked() bool {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if !s.state.inFlight() {
		return false
	}
	searching := s.state == StatePositionSent || s.state == StateSearchRunning
	s.logger.Debug("engine_request_cancelled", zap.Uint64("token", s.token), zap.Stringer("state", s.state))
	s.state = StateCancelled
	return searching
}

func (s *Session) run(ctx context.Context, tok uint64, req Request) {
	defer s.wg.Done()

	if err := s.awaitReady(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		// abandon this request without searching; the next one polls again
		s.logger.Warn("engine_ready_timeout",
			zap.Uint64("token", tok),
			zap.Duration("timeout", s.cfg.ReadyTimeout),
			zap.Bool("native_ready", s.oracle.NativeReady()),
			zap.Bool("eval_ready", s.oracle.EvalReady()),
			zap.Error(err),
		)
		s.mu.Lock()
		if s.token == tok {
			s.state = StateIdle
		}
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok != s.token || ctx.Err() != nil || s.fatalErr != nil {
		return
	}

	pos, moves := s.positionFor(req)
	if err := s.oracle.SetPosition(pos, moves); err != nil {
		s.logger.Warn("engine_position_failed", zap.Uint64("token", tok), zap.Error(err))
		s.state = StateIdle
		return
	}
	s.state = StatePositionSent
	s.lastPos = pos

	if err := s.oracle.GoDepth(s.cfg.Depth); err != nil {
		s.logger.Warn("engine_go_failed", zap.Uint64("token", tok), zap.Error(err))
		s.state = StateIdle
		return
	}
	s.pending = append(s.pending, pendingSearch{token: tok, verify: req.Verify})
	s.state = StateSearchRunning
	s.logger.Debug("engine_search_started",
		zap.Uint64("token", tok),
		zap.String("position", pos),
		zap.Int("moves", len(moves)),
		zap.Int("depth", s.cfg.Depth),
	)
}

func (s *Session) positionFor(req Request) (string, []string) {
	pos := strings.TrimSpace(req.Position)
	if pos == "" || pos == StartPos {
		return StartPos, append([]string(nil), req.Moves...)
	}
	return s.cfg.Codec.Normalize(pos), nil
}

func (s *Session) awaitReady(ctx context.Context) error {
	ready := func() bool { return s.oracle.NativeReady() && s.oracle.EvalReady() }
	if ready() {
		return nil
	}
	timer := time.NewTimer(s.cfg.ReadyTimeout)
	defer timer.Stop()
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return context.DeadlineExceeded
		case <-ticker.C:
			if ready() {
				return nil
			}
		}
	}
}

func (s *Session) dispatch() {
	defer s.wg.Done()
	msgs := s.oracle.Messages()
	for {
		select {
		case <-s.rootCtx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			switch msg.Kind {
			case MessageBestMove:
				s.handleBestMove(msg.Text)
			case MessageInfo:
				s.handleInfo(msg.Text)
			}
		}
	}
}

func (s *Session) handleInfo(line string) {
	if s.cfg.OnInfo == nil {
		return
	}
	info, ok := ParseInfo(line)
	if !ok {
		return
	}
	s.mu.Lock()
	current := len(s.pending) > 0 && s.pending[0].token == s.token
	s.mu.Unlock()
	if current {
		s.cfg.OnInfo(info)
	}
}

func (s *Session) handleBestMove(line string) {
	s.mu.Lock()
	if len(s.pending) == 0 {
		s.mu.Unlock()
		s.logger.Debug("engine_bestmove_unsolicited", zap.String("line", line))
		return
	}
	p := s.pending[0]
	s.pending = s.pending[1:]
	if p.token != s.token {
		s.mu.Unlock()
		s.logger.Debug("engine_bestmove_discarded", zap.Uint64("token", p.token), zap.String("line", line))
		return
	}
	s.state = StateResultDelivered
	sink := s.sink
	s.mu.Unlock()

	defer s.settle(p.token)

	raw, _, ok := xiangqi.ParseBestMoveLine(line)
	if !ok {
		s.logger.Info("engine_no_move", zap.Uint64("token", p.token), zap.String("line", line))
		return
	}
	mv, err := s.cfg.Notation.Parse(raw)
	if err != nil {
		s.logger.Warn("engine_bestmove_unparsable", zap.String("move", raw), zap.Error(err))
		return
	}
	if p.verify != nil && !p.verify(mv) {
		s.logger.Warn("engine_bestmove_rejected", zap.String("move", raw), zap.Stringer("parsed", mv))
		return
	}
	// a request may have been issued while the move was parsed and verified
	s.mu.Lock()
	current := s.token == p.token
	s.mu.Unlock()
	if !current {
		s.logger.Debug("engine_bestmove_discarded", zap.Uint64("token", p.token), zap.String("line", line))
		return
	}
	s.logger.Info("engine_bestmove",
		zap.Uint64("token", p.token),
		zap.String("move", raw),
		zap.Stringer("from", mv.From),
		zap.Stringer("to", mv.To),
	)
	switch ts := sink.(type) {
	case nil:
	case TokenSink:
		ts.OnBestMoveResolvedFor(p.token, mv.From, mv.To)
	default:
		sink.OnBestMoveResolved(mv.From, mv.To)
	}
}

func (s *Session) settle(tok uint64) {
	s.mu.Lock()
	if s.token == tok && s.state == StateResultDelivered {
		s.state = StateIdle
	}
	s.mu.Unlock()
}

// NewGame abandons any in-flight request, clears the move history and asks
// the oracle to reset its search state.
func (s *Session) NewGame(ctx context.Context) error {
	s.mu.Lock()
	stop := s.supersedeLocked()
	s.token++
	s.state = StateIdle
	s.history = nil
	s.lastPos = ""
	fatal := s.fatalErr
	s.mu.Unlock()

	if fatal != nil {
		return nil
	}
	if stop {
		if err := s.oracle.Stop(); err != nil {
			s.logger.Warn("engine_stop_failed", zap.Error(err))
		}
	}
	if err := s.oracle.NewGame(ctx); err != nil {
		return fmt.Errorf("engine new game: %w", err)
	}
	return nil
}

// Close stops background work and shuts the oracle down.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		if s.cancel != nil {
			s.cancel()
		}
		s.mu.Unlock()
		s.rootCancel()
		err = s.oracle.Close()
		s.wg.Wait()
	})
	return err
}
