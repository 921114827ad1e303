package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/park285/xiangqi-board/internal/xiangqi"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeOracle struct {
	msgs      chan Message
	native    atomic.Bool
	eval      atomic.Bool
	initErr   error
	stopErr   error
	mu        sync.Mutex
	positions []string
	moves     [][]string
	gos       int
	stops     int
	newGames  int
	closed    bool
}

func newFakeOracle() *fakeOracle {
	f := &fakeOracle{msgs: make(chan Message, 16)}
	f.native.Store(true)
	f.eval.Store(true)
	return f
}

func (f *fakeOracle) Init(context.Context) error     { return f.initErr }
func (f *fakeOracle) SetOption(string, string) error { return nil }
func (f *fakeOracle) Messages() <-chan Message       { return f.msgs }
func (f *fakeOracle) NativeReady() bool              { return f.native.Load() }
func (f *fakeOracle) EvalReady() bool                { return f.eval.Load() }

func (f *fakeOracle) NewGame(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.newGames++
	return nil
}

func (f *fakeOracle) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return f.stopErr
}

func (f *fakeOracle) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeOracle) SetPosition(pos string, moves []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positions = append(f.positions, pos)
	f.moves = append(f.moves, moves)
	return nil
}

func (f *fakeOracle) GoDepth(int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gos++
	return nil
}

func (f *fakeOracle) goCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gos
}

func (f *fakeOracle) reply(line string) {
	kind := MessageInfo
	if len(line) >= 8 && line[:8] == "bestmove" {
		kind = MessageBestMove
	}
	f.msgs <- Message{Kind: kind, Text: line}
}

type hint struct{ from, to xiangqi.Square }

type collectSink struct{ ch chan hint }

func (c collectSink) OnBestMoveResolved(from, to xiangqi.Square) { c.ch <- hint{from, to} }

func newTestSession(t *testing.T, oracle *fakeOracle, cfg Config) (*Session, chan hint) {
	t.Helper()
	ch := make(chan hint, 8)
	if cfg.ReadyTimeout == 0 {
		cfg.ReadyTimeout = 2 * time.Second
	}
	cfg.PollInterval = 5 * time.Millisecond
	s := NewSession(oracle, cfg, collectSink{ch: ch}, nil)
	s.Start(context.Background())
	t.Cleanup(func() { _ = s.Close() })
	return s, ch
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func expectNoHint(t *testing.T, ch chan hint) {
	t.Helper()
	select {
	case h := <-ch:
		t.Fatalf("unexpected hint %v -> %v", h.from, h.to)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRequestDeliversBestMove(t *testing.T) {
	oracle := newFakeOracle()
	s, ch := newTestSession(t, oracle, Config{})

	tok, err := s.RequestBestMove(context.Background(), Request{Position: StartPos, Moves: []string{"h2e2"}})
	if err != nil {
		t.Fatalf("RequestBestMove: %v", err)
	}
	eventually(t, "search", func() bool { return s.State() == StateSearchRunning })
	oracle.reply("bestmove h9g7 ponder b0c2")

	select {
	case h := <-ch:
		if h.from != xiangqi.Sq(7, 9) || h.to != xiangqi.Sq(6, 7) {
			t.Fatalf("hint: got %v -> %v", h.from, h.to)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no hint delivered")
	}
	eventually(t, "idle", func() bool { return s.State() == StateIdle })
	if s.CurrentToken() != tok {
		t.Fatalf("token changed: %d vs %d", s.CurrentToken(), tok)
	}
	oracle.mu.Lock()
	defer oracle.mu.Unlock()
	if oracle.positions[0] != StartPos || len(oracle.moves[0]) != 1 || oracle.moves[0][0] != "h2e2" {
		t.Fatalf("position: %v %v", oracle.positions, oracle.moves)
	}
}

func TestRapidRequestsDeliverOnlyLatest(t *testing.T) {
	oracle := newFakeOracle()
	oracle.native.Store(false)
	s, ch := newTestSession(t, oracle, Config{})

	if _, err := s.RequestBestMove(context.Background(), Request{Position: StartPos}); err != nil {
		t.Fatalf("first request: %v", err)
	}
	if _, err := s.RequestBestMove(context.Background(), Request{Position: StartPos, Moves: []string{"b0c2"}}); err != nil {
		t.Fatalf("second request: %v", err)
	}
	oracle.native.Store(true)

	eventually(t, "search", func() bool { return s.State() == StateSearchRunning })
	if n := oracle.goCount(); n != 1 {
		t.Fatalf("superseded request reached the oracle: %d searches", n)
	}
	oracle.reply("bestmove b9c7")
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("no hint delivered")
	}
	expectNoHint(t, ch)
}

func TestStaleResultAfterSupersedeIsDropped(t *testing.T) {
	oracle := newFakeOracle()
	s, ch := newTestSession(t, oracle, Config{})

	first, _ := s.RequestBestMove(context.Background(), Request{Position: StartPos})
	eventually(t, "first search", func() bool { return oracle.goCount() == 1 && s.State() == StateSearchRunning })

	second, _ := s.RequestBestMove(context.Background(), Request{Position: StartPos, Moves: []string{"h2e2"}})
	if second == first {
		t.Fatalf("tokens should differ")
	}
	eventually(t, "second search", func() bool { return oracle.goCount() == 2 && s.State() == StateSearchRunning })

	oracle.mu.Lock()
	stops := oracle.stops
	oracle.mu.Unlock()
	if stops != 1 {
		t.Fatalf("stop count: got %d want 1", stops)
	}

	// the oracle ignores stop and still answers the first search
	oracle.reply("bestmove a0a1")
	oracle.reply("bestmove h9g7")
	select {
	case h := <-ch:
		if h.from != xiangqi.Sq(7, 9) {
			t.Fatalf("delivered stale hint %v -> %v", h.from, h.to)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no hint delivered")
	}
	expectNoHint(t, ch)
}

func TestNoMoveSentinelDeliversNothing(t *testing.T) {
	for _, line := range []string{"bestmove (none)", "bestmove none", "bestmove null", "bestmove"} {
		t.Run(line, func(t *testing.T) {
			oracle := newFakeOracle()
			s, ch := newTestSession(t, oracle, Config{})
			if _, err := s.RequestBestMove(context.Background(), Request{Position: StartPos}); err != nil {
				t.Fatalf("RequestBestMove: %v", err)
			}
			eventually(t, "search", func() bool { return s.State() == StateSearchRunning })
			oracle.reply(line)
			eventually(t, "idle", func() bool { return s.State() == StateIdle })
			expectNoHint(t, ch)
		})
	}
}

func TestMalformedAndRejectedMovesAreDiscarded(t *testing.T) {
	oracle := newFakeOracle()
	s, ch := newTestSession(t, oracle, Config{})

	if _, err := s.RequestBestMove(context.Background(), Request{Position: StartPos}); err != nil {
		t.Fatalf("RequestBestMove: %v", err)
	}
	eventually(t, "search", func() bool { return s.State() == StateSearchRunning })
	oracle.reply("bestmove z9z9")
	eventually(t, "idle", func() bool { return s.State() == StateIdle })
	expectNoHint(t, ch)

	verify := func(mv xiangqi.Move) bool { return mv.From == xiangqi.Sq(1, 0) }
	if _, err := s.RequestBestMove(context.Background(), Request{Position: StartPos, Verify: verify}); err != nil {
		t.Fatalf("RequestBestMove: %v", err)
	}
	eventually(t, "search", func() bool { return s.State() == StateSearchRunning })
	oracle.reply("bestmove h9g7")
	eventually(t, "idle", func() bool { return s.State() == StateIdle })
	expectNoHint(t, ch)
}

func TestReadyTimeoutAbandonsRequest(t *testing.T) {
	oracle := newFakeOracle()
	oracle.eval.Store(false)
	s, ch := newTestSession(t, oracle, Config{ReadyTimeout: 30 * time.Millisecond})

	if _, err := s.RequestBestMove(context.Background(), Request{Position: StartPos}); err != nil {
		t.Fatalf("RequestBestMove: %v", err)
	}
	eventually(t, "idle after timeout", func() bool { return s.State() == StateIdle })
	if oracle.goCount() != 0 {
		t.Fatalf("search issued without readiness")
	}
	expectNoHint(t, ch)

	// recoverable: the next request goes through once ready
	oracle.eval.Store(true)
	if _, err := s.RequestBestMove(context.Background(), Request{Position: StartPos}); err != nil {
		t.Fatalf("RequestBestMove: %v", err)
	}
	eventually(t, "search", func() bool { return s.State() == StateSearchRunning })
}

func TestUnavailableOracleShortCircuits(t *testing.T) {
	oracle := newFakeOracle()
	oracle.initErr = fmt.Errorf("start engine: %w", ErrOracleUnavailable)
	s, _ := newTestSession(t, oracle, Config{})

	eventually(t, "fatal", func() bool { return s.Err() != nil })
	for i := 0; i < 3; i++ {
		if _, err := s.RequestBestMove(context.Background(), Request{Position: StartPos}); err == nil {
			t.Fatalf("request %d should fail", i)
		}
	}
	if oracle.goCount() != 0 {
		t.Fatalf("search issued on unavailable oracle")
	}
}

func TestFENRequestNormalizesAndDropsMoves(t *testing.T) {
	oracle := newFakeOracle()
	s, _ := newTestSession(t, oracle, Config{Codec: xiangqi.Codec{DefaultSide: xiangqi.Black}})

	if _, err := s.RequestBestMove(context.Background(), Request{Position: xiangqi.StartFEN, Moves: []string{"h2e2"}}); err != nil {
		t.Fatalf("RequestBestMove: %v", err)
	}
	eventually(t, "search", func() bool { return s.State() == StateSearchRunning })
	want := xiangqi.StartFEN + " b - - 0 1"
	if got := s.LastPosition(); got != want {
		t.Fatalf("position: got %q want %q", got, want)
	}
	oracle.mu.Lock()
	defer oracle.mu.Unlock()
	if len(oracle.moves[0]) != 0 {
		t.Fatalf("fen request carried moves: %v", oracle.moves[0])
	}
}

func TestNewGameResetsHistoryAndDropsInFlight(t *testing.T) {
	oracle := newFakeOracle()
	s, ch := newTestSession(t, oracle, Config{})

	s.AppendMove("h2e2")
	s.AppendMove("h9g7")
	if got := s.History(); len(got) != 2 {
		t.Fatalf("history: %v", got)
	}
	if _, err := s.RequestBestMove(context.Background(), Request{Position: StartPos, Moves: s.History()}); err != nil {
		t.Fatalf("RequestBestMove: %v", err)
	}
	eventually(t, "search", func() bool { return s.State() == StateSearchRunning })

	if err := s.NewGame(context.Background()); err != nil {
		t.Fatalf("NewGame: %v", err)
	}
	if got := s.History(); len(got) != 0 {
		t.Fatalf("history after new game: %v", got)
	}
	oracle.reply("bestmove b0c2")
	expectNoHint(t, ch)
	oracle.mu.Lock()
	defer oracle.mu.Unlock()
	if oracle.newGames != 1 || oracle.stops != 1 {
		t.Fatalf("newGames=%d stops=%d", oracle.newGames, oracle.stops)
	}
}

func TestInfoForwardedForCurrentSearch(t *testing.T) {
	oracle := newFakeOracle()
	infos := make(chan Info, 4)
	s, _ := newTestSession(t, oracle, Config{OnInfo: func(i Info) { infos <- i }})

	if _, err := s.RequestBestMove(context.Background(), Request{Position: StartPos}); err != nil {
		t.Fatalf("RequestBestMove: %v", err)
	}
	eventually(t, "search", func() bool { return s.State() == StateSearchRunning })
	oracle.reply("info depth 9 seldepth 14 multipv 1 score cp 31 wdl 310 640 50 nodes 120000 pv h2e2 h9g7")
	select {
	case i := <-infos:
		if i.Depth != 9 || i.ScoreCP != 31 || !i.HasWDL || i.PV[0] != "h2e2" {
			t.Fatalf("info: %+v", i)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("info not forwarded")
	}
}

func TestIncompleteInitRecoversWhenOracleTurnsReady(t *testing.T) {
	oracle := newFakeOracle()
	oracle.native.Store(false)
	oracle.initErr = fmt.Errorf("wait readyok: %w", context.DeadlineExceeded)
	s, ch := newTestSession(t, oracle, Config{})

	if _, err := s.RequestBestMove(context.Background(), Request{Position: StartPos}); err != nil {
		t.Fatalf("RequestBestMove: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	oracle.native.Store(true)

	eventually(t, "search", func() bool { return s.State() == StateSearchRunning })
	oracle.reply("bestmove h2e2")
	select {
	case h := <-ch:
		if h.from != xiangqi.Sq(7, 2) || h.to != xiangqi.Sq(4, 2) {
			t.Fatalf("hint: %v -> %v", h.from, h.to)
		}
	case <-time.After(time.Second):
		t.Fatalf("no hint after late readiness")
	}
	if err := s.Err(); err != nil {
		t.Fatalf("incomplete init must not be terminal: %v", err)
	}
}

func TestRequestDuringDeliveryDropsResult(t *testing.T) {
	oracle := newFakeOracle()
	s, ch := newTestSession(t, oracle, Config{})

	entered := make(chan struct{})
	release := make(chan struct{})
	verify := func(xiangqi.Move) bool {
		close(entered)
		<-release
		return true
	}
	if _, err := s.RequestBestMove(context.Background(), Request{Position: StartPos, Verify: verify}); err != nil {
		t.Fatalf("RequestBestMove: %v", err)
	}
	eventually(t, "search", func() bool { return s.State() == StateSearchRunning })
	oracle.reply("bestmove h2e2")

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatalf("result never reached verification")
	}
	if _, err := s.RequestBestMove(context.Background(), Request{Position: StartPos, Moves: []string{"h2e2"}}); err != nil {
		t.Fatalf("RequestBestMove: %v", err)
	}
	close(release)
	expectNoHint(t, ch)
}

type tokenSink struct{ ch chan uint64 }

func (s tokenSink) OnBestMoveResolved(xiangqi.Square, xiangqi.Square) { s.ch <- 0 }

func (s tokenSink) OnBestMoveResolvedFor(token uint64, _, _ xiangqi.Square) { s.ch <- token }

func TestTokenSinkReceivesRequestToken(t *testing.T) {
	oracle := newFakeOracle()
	s, _ := newTestSession(t, oracle, Config{})
	got := make(chan uint64, 1)
	s.SetSink(tokenSink{ch: got})

	tok, err := s.RequestBestMove(context.Background(), Request{Position: StartPos})
	if err != nil {
		t.Fatalf("RequestBestMove: %v", err)
	}
	eventually(t, "search", func() bool { return s.State() == StateSearchRunning })
	oracle.reply("bestmove h2e2")
	select {
	case v := <-got:
		if v != tok {
			t.Fatalf("token: got %d want %d", v, tok)
		}
	case <-time.After(time.Second):
		t.Fatalf("no result")
	}
}

func TestNewGameLogsStopFailure(t *testing.T) {
	oracle := newFakeOracle()
	oracle.stopErr = errors.New("broken pipe")
	core, logs := observer.New(zap.WarnLevel)
	s := NewSession(oracle, Config{PollInterval: 5 * time.Millisecond}, nil, zap.New(core))
	s.Start(context.Background())
	t.Cleanup(func() { _ = s.Close() })

	if _, err := s.RequestBestMove(context.Background(), Request{Position: StartPos}); err != nil {
		t.Fatalf("RequestBestMove: %v", err)
	}
	eventually(t, "search", func() bool { return s.State() == StateSearchRunning })
	if err := s.NewGame(context.Background()); err != nil {
		t.Fatalf("NewGame: %v", err)
	}
	if n := logs.FilterMessage("engine_stop_failed").Len(); n != 1 {
		t.Fatalf("engine_stop_failed logged %d times", n)
	}
}
