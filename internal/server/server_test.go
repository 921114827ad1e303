package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/park285/xiangqi-board/internal/controller"
	"github.com/park285/xiangqi-board/internal/engine"
	"github.com/park285/xiangqi-board/internal/render"
	"github.com/park285/xiangqi-board/internal/xiangqi"
	"github.com/park285/xiangqi-board/pkg/xqdto"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

type fakeHints struct {
	mu      sync.Mutex
	history []string
	token   uint64
}

func (f *fakeHints) RequestBestMove(context.Context, engine.Request) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token++
	return f.token, nil
}

func (f *fakeHints) AppendMove(m string) {
	f.mu.Lock()
	f.history = append(f.history, m)
	f.mu.Unlock()
}

func (f *fakeHints) History() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.history...)
}

func (f *fakeHints) RestoreHistory(moves []string) {
	f.mu.Lock()
	f.history = append([]string(nil), moves...)
	f.mu.Unlock()
}

func (f *fakeHints) NewGame(context.Context) error {
	f.mu.Lock()
	f.history = nil
	f.mu.Unlock()
	return nil
}

type testAPI struct {
	t      *testing.T
	client *fasthttp.Client
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	ctrl, err := controller.New(controller.Deps{Hints: &fakeHints{}})
	if err != nil {
		t.Fatalf("controller.New: %v", err)
	}
	srv := New(ctrl, render.NewPNGRenderer(32), nil, nil)
	ln := fasthttputil.NewInmemoryListener()
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		_ = ln.Close()
	})
	client := &fasthttp.Client{Dial: func(string) (net.Conn, error) { return ln.Dial() }}
	return &testAPI{t: t, client: client}
}

func (a *testAPI) do(method, path string, body any) (int, []byte, string) {
	a.t.Helper()
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)
	req.Header.SetMethod(method)
	req.SetRequestURI("http://xq.test" + path)
	if body != nil {
		switch b := body.(type) {
		case string:
			req.SetBodyString(b)
		default:
			raw, err := json.Marshal(b)
			if err != nil {
				a.t.Fatalf("marshal: %v", err)
			}
			req.SetBody(raw)
		}
		req.Header.SetContentType("application/json")
	}
	if err := a.client.DoTimeout(req, resp, 2*time.Second); err != nil {
		a.t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp.StatusCode(), append([]byte(nil), resp.Body()...), string(resp.Header.ContentType())
}

func (a *testAPI) decode(raw []byte, dst any) {
	a.t.Helper()
	if err := json.Unmarshal(raw, dst); err != nil {
		a.t.Fatalf("decode %s: %v", raw, err)
	}
}

func (a *testAPI) errorCode(raw []byte) string {
	var body struct {
		Error xqdto.DomainError `json:"error"`
	}
	a.decode(raw, &body)
	if body.Error.Message == "" {
		a.t.Fatalf("error without message: %s", raw)
	}
	return body.Error.Code
}

func TestStateReturnsOpening(t *testing.T) {
	api := newTestAPI(t)
	status, raw, _ := api.do(fasthttp.MethodGet, "/api/state", nil)
	if status != fasthttp.StatusOK {
		t.Fatalf("status %d: %s", status, raw)
	}
	var st xqdto.GameState
	api.decode(raw, &st)
	if st.FEN != xiangqi.StartPosition || st.SideToMove != "red" || len(st.Pieces) != 32 || st.GameID == "" {
		t.Fatalf("state: %+v", st)
	}
}

func TestMoveAppliesAndReportsState(t *testing.T) {
	api := newTestAPI(t)
	status, raw, _ := api.do(fasthttp.MethodPost, "/api/move", xqdto.MoveRequest{Move: "h2e2"})
	if status != fasthttp.StatusOK {
		t.Fatalf("status %d: %s", status, raw)
	}
	var resp xqdto.MoveResponse
	api.decode(raw, &resp)
	if resp.Move.Notation != "h2e2" || resp.Move.To != (xqdto.SquareDTO{File: 4, Rank: 2}) || resp.Move.Captured != nil {
		t.Fatalf("move: %+v", resp.Move)
	}
	if resp.State.SideToMove != "black" || len(resp.State.History) != 1 || resp.State.History[0] != "h2e2" {
		t.Fatalf("state: %+v", resp.State)
	}
}

func TestMoveErrors(t *testing.T) {
	api := newTestAPI(t)
	cases := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"blocked rook", xqdto.MoveRequest{Move: "a0a5"}, fasthttp.StatusUnprocessableEntity, xqdto.CodeIllegalMove},
		{"black on red turn", xqdto.MoveRequest{Move: "b9c7"}, fasthttp.StatusConflict, xqdto.CodeWrongSide},
		{"empty source", xqdto.MoveRequest{Move: "e5e6"}, fasthttp.StatusUnprocessableEntity, xqdto.CodeEmptySquare},
		{"too short", xqdto.MoveRequest{Move: "b0"}, fasthttp.StatusBadRequest, xqdto.CodeBadRequest},
		{"garbage notation", xqdto.MoveRequest{Move: "zzzz"}, fasthttp.StatusBadRequest, xqdto.CodeBadRequest},
		{"not json", "{", fasthttp.StatusBadRequest, xqdto.CodeBadRequest},
	}
	for _, tc := range cases {
		status, raw, _ := api.do(fasthttp.MethodPost, "/api/move", tc.body)
		if status != tc.status {
			t.Fatalf("%s: status %d want %d: %s", tc.name, status, tc.status, raw)
		}
		if code := api.errorCode(raw); code != tc.code {
			t.Fatalf("%s: code %q want %q", tc.name, code, tc.code)
		}
	}
}

func TestSelectAndDeselect(t *testing.T) {
	api := newTestAPI(t)
	status, raw, _ := api.do(fasthttp.MethodPost, "/api/select", xqdto.SelectRequest{File: 1, Rank: 0})
	if status != fasthttp.StatusOK {
		t.Fatalf("status %d: %s", status, raw)
	}
	var st xqdto.GameState
	api.decode(raw, &st)
	if st.Selected == nil || *st.Selected != (xqdto.SquareDTO{File: 1, Rank: 0}) || len(st.Targets) != 2 {
		t.Fatalf("selection: %+v", st)
	}

	status, raw, _ = api.do(fasthttp.MethodDelete, "/api/select", nil)
	if status != fasthttp.StatusOK {
		t.Fatalf("deselect status %d", status)
	}
	st = xqdto.GameState{}
	api.decode(raw, &st)
	if st.Selected != nil || len(st.Targets) != 0 {
		t.Fatalf("deselect: %+v", st)
	}

	status, raw, _ = api.do(fasthttp.MethodPost, "/api/select", xqdto.SelectRequest{File: 9, Rank: 0})
	if status != fasthttp.StatusBadRequest || api.errorCode(raw) != xqdto.CodeBadRequest {
		t.Fatalf("out of range select: %d %s", status, raw)
	}
}

func TestLegalTargets(t *testing.T) {
	api := newTestAPI(t)
	status, raw, _ := api.do(fasthttp.MethodGet, "/api/legal?file=1&rank=2", nil)
	if status != fasthttp.StatusOK {
		t.Fatalf("status %d: %s", status, raw)
	}
	var targets []xqdto.SquareDTO
	api.decode(raw, &targets)
	if len(targets) == 0 {
		t.Fatalf("cannon has no targets")
	}
	status, _, _ = api.do(fasthttp.MethodGet, "/api/legal?file=1", nil)
	if status != fasthttp.StatusBadRequest {
		t.Fatalf("missing rank status %d", status)
	}
}

func TestClickSelectsThenMoves(t *testing.T) {
	api := newTestAPI(t)
	status, raw, _ := api.do(fasthttp.MethodPost, "/api/click", xqdto.ClickRequest{X: 1, Z: 0})
	if status != fasthttp.StatusOK {
		t.Fatalf("status %d: %s", status, raw)
	}
	var resp xqdto.ClickResponse
	api.decode(raw, &resp)
	if resp.Move != nil || resp.State.Selected == nil {
		t.Fatalf("first click: %+v", resp)
	}

	status, raw, _ = api.do(fasthttp.MethodPost, "/api/click", xqdto.ClickRequest{X: 2.1, Z: 1.9})
	if status != fasthttp.StatusOK {
		t.Fatalf("status %d: %s", status, raw)
	}
	resp = xqdto.ClickResponse{}
	api.decode(raw, &resp)
	if resp.Move == nil || resp.Move.Notation != "b0c2" || resp.State.SideToMove != "black" {
		t.Fatalf("second click: %+v", resp)
	}

	status, raw, _ = api.do(fasthttp.MethodPost, "/api/click", xqdto.ClickRequest{X: 40, Z: 40})
	if status != fasthttp.StatusBadRequest || api.errorCode(raw) != xqdto.CodeOutOfBounds {
		t.Fatalf("off board click: %d %s", status, raw)
	}
}

func TestFENLoadAndReject(t *testing.T) {
	api := newTestAPI(t)
	fen := "4k4/9/9/9/9/9/9/9/9/4K4 b - - 0 1"
	status, raw, _ := api.do(fasthttp.MethodPost, "/api/fen", xqdto.FENRequest{FEN: fen})
	if status != fasthttp.StatusOK {
		t.Fatalf("status %d: %s", status, raw)
	}
	var st xqdto.GameState
	api.decode(raw, &st)
	if len(st.Pieces) != 2 || st.SideToMove != "black" || st.StartFEN == "" {
		t.Fatalf("loaded: %+v", st)
	}

	status, raw, _ = api.do(fasthttp.MethodPost, "/api/fen", xqdto.FENRequest{FEN: "not/a/fen"})
	if status != fasthttp.StatusBadRequest || api.errorCode(raw) != xqdto.CodeBadFEN {
		t.Fatalf("bad fen: %d %s", status, raw)
	}
	status, raw, _ = api.do(fasthttp.MethodPost, "/api/fen", xqdto.FENRequest{})
	if status != fasthttp.StatusBadRequest || api.errorCode(raw) != xqdto.CodeBadRequest {
		t.Fatalf("empty fen: %d %s", status, raw)
	}
}

func TestNewGameArchivesPlayedGame(t *testing.T) {
	api := newTestAPI(t)
	if status, raw, _ := api.do(fasthttp.MethodPost, "/api/move", xqdto.MoveRequest{Move: "b0c2"}); status != fasthttp.StatusOK {
		t.Fatalf("move: %d %s", status, raw)
	}
	status, raw, _ := api.do(fasthttp.MethodPost, "/api/newgame", nil)
	if status != fasthttp.StatusOK {
		t.Fatalf("newgame: %d %s", status, raw)
	}
	var st xqdto.GameState
	api.decode(raw, &st)
	if st.FEN != xiangqi.StartPosition || len(st.History) != 0 {
		t.Fatalf("reset: %+v", st)
	}

	status, raw, _ = api.do(fasthttp.MethodGet, "/api/games?limit=5", nil)
	if status != fasthttp.StatusOK {
		t.Fatalf("games: %d %s", status, raw)
	}
	var games []xqdto.FinishedGame
	api.decode(raw, &games)
	if len(games) != 1 || len(games[0].Moves) != 1 || games[0].Moves[0] != "b0c2" {
		t.Fatalf("games: %+v", games)
	}
	if status, _, _ := api.do(fasthttp.MethodGet, "/api/games?limit=-1", nil); status != fasthttp.StatusBadRequest {
		t.Fatalf("negative limit status %d", status)
	}
}

func TestHintAndBoardImage(t *testing.T) {
	api := newTestAPI(t)
	status, raw, _ := api.do(fasthttp.MethodPost, "/api/hint", nil)
	if status != fasthttp.StatusAccepted {
		t.Fatalf("hint: %d %s", status, raw)
	}
	var hint xqdto.HintResponse
	api.decode(raw, &hint)
	if hint.Token == 0 {
		t.Fatalf("hint token: %+v", hint)
	}

	status, raw, ctype := api.do(fasthttp.MethodGet, "/api/board.png", nil)
	if status != fasthttp.StatusOK || ctype != "image/png" {
		t.Fatalf("png: %d %s", status, ctype)
	}
	if !bytes.HasPrefix(raw, []byte("\x89PNG\r\n\x1a\n")) {
		t.Fatalf("not a png")
	}
}

func TestUnknownRoute(t *testing.T) {
	api := newTestAPI(t)
	status, raw, _ := api.do(fasthttp.MethodGet, "/api/nope", nil)
	if status != fasthttp.StatusNotFound || api.errorCode(raw) != xqdto.CodeNotFound {
		t.Fatalf("unknown route: %d %s", status, raw)
	}
	if status, _, _ := api.do(fasthttp.MethodGet, "/healthz", nil); status != fasthttp.StatusOK {
		t.Fatalf("healthz %d", status)
	}
}
