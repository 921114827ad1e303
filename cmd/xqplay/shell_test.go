package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/park285/xiangqi-board/internal/controller"
	"github.com/park285/xiangqi-board/internal/engine"
	"github.com/park285/xiangqi-board/internal/msgcat"
	"github.com/park285/xiangqi-board/internal/xiangqi"
	"github.com/park285/xiangqi-board/pkg/xqdto"
)

type stubHints struct {
	history []string
	asked   int
}

func (h *stubHints) RequestBestMove(context.Context, engine.Request) (uint64, error) {
	h.asked++
	return uint64(h.asked), nil
}

func (h *stubHints) AppendMove(m string)       { h.history = append(h.history, m) }
func (h *stubHints) History() []string         { return append([]string(nil), h.history...) }
func (h *stubHints) RestoreHistory(m []string) { h.history = append([]string(nil), m...) }

func (h *stubHints) NewGame(context.Context) error {
	h.history = nil
	return nil
}

func newShell(t *testing.T) (*shell, *bytes.Buffer, *controller.Controller) {
	t.Helper()
	ctrl, err := controller.New(controller.Deps{Hints: &stubHints{}})
	if err != nil {
		t.Fatalf("controller.New: %v", err)
	}
	var out bytes.Buffer
	return &shell{be: localBackend{ctrl: ctrl}, msgs: msgcat.Default(), out: &out}, &out, ctrl
}

func TestShellMoveAndCapture(t *testing.T) {
	sh, out, ctrl := newShell(t)
	if sh.exec("move h2e2") {
		t.Fatalf("move ended the session")
	}
	if !strings.Contains(out.String(), "h2e2") {
		t.Fatalf("output: %s", out.String())
	}
	if ctrl.Board().SideToMove() != xiangqi.Black {
		t.Fatalf("move not applied")
	}

	out.Reset()
	sh.exec("h9g7")
	sh.exec("e2e6")
	if !strings.Contains(out.String(), "잡음") {
		t.Fatalf("capture not reported: %s", out.String())
	}
}

func TestShellReportsIllegalMove(t *testing.T) {
	sh, out, _ := newShell(t)
	sh.exec("move a0a5")
	want := msgcat.Default().Text("error.illegal_move", nil)
	if !strings.Contains(out.String(), want) {
		t.Fatalf("output %q lacks %q", out.String(), want)
	}
}

func TestShellSelectListsTargets(t *testing.T) {
	sh, out, _ := newShell(t)
	sh.exec("sel b0")
	s := out.String()
	if !strings.Contains(s, "a2") || !strings.Contains(s, "c2") || !strings.Contains(s, "[N]") {
		t.Fatalf("selection output: %s", s)
	}
	out.Reset()
	sh.exec("sel b0")
	if !strings.Contains(out.String(), msgcat.Default().Text("console.deselected", nil)) {
		t.Fatalf("reselect should clear: %s", out.String())
	}
}

func TestShellHintFENAndQuit(t *testing.T) {
	sh, out, _ := newShell(t)
	sh.exec("hint")
	if !strings.Contains(out.String(), "#1") {
		t.Fatalf("hint output: %s", out.String())
	}
	out.Reset()
	sh.exec("fen")
	if strings.TrimSpace(out.String()) != xiangqi.StartPosition {
		t.Fatalf("fen output: %q", out.String())
	}
	out.Reset()
	sh.exec("fen 4k4/9/9/9/9/9/9/9/9/4K4 w - - 0 1")
	if !strings.Contains(out.String(), "4k4") {
		t.Fatalf("load output: %s", out.String())
	}
	out.Reset()
	sh.exec("fen nonsense")
	if !strings.Contains(out.String(), msgcat.Default().Text("error.bad_fen", nil)) {
		t.Fatalf("bad fen output: %s", out.String())
	}
	if !sh.exec("quit") {
		t.Fatalf("quit should end the session")
	}
}

func TestShellGamesAfterNew(t *testing.T) {
	sh, out, _ := newShell(t)
	sh.exec("games")
	if !strings.Contains(out.String(), msgcat.Default().Text("console.no_games", nil)) {
		t.Fatalf("games output: %s", out.String())
	}
	sh.exec("b0c2")
	sh.exec("new")
	out.Reset()
	sh.exec("games")
	if !strings.Contains(out.String(), "1수") {
		t.Fatalf("games output: %s", out.String())
	}
}

func TestShellUnknownCommand(t *testing.T) {
	sh, out, _ := newShell(t)
	sh.exec("dance")
	if !strings.Contains(out.String(), "dance") {
		t.Fatalf("output: %s", out.String())
	}
}

func TestDrawBoard(t *testing.T) {
	st := &xqdto.GameState{
		Pieces: []xqdto.PieceDTO{
			{Type: "king", Side: "red", File: 4, Rank: 0},
			{Type: "king", Side: "black", File: 4, Rank: 9},
			{Type: "rook", Side: "red", File: 0, Rank: 0},
		},
		Selected: &xqdto.SquareDTO{File: 0, Rank: 0},
		Targets:  []xqdto.SquareDTO{{File: 0, Rank: 1}},
	}
	var b bytes.Buffer
	drawBoard(&b, st, xiangqi.Notation{})
	lines := strings.Split(strings.TrimRight(b.String(), "\n"), "\n")
	if len(lines) != 12 { // header, 10 ranks, river
		t.Fatalf("lines: %d\n%s", len(lines), b.String())
	}
	if lines[1] != " 9 . . . . k . . . ." {
		t.Fatalf("top rank: %q", lines[1])
	}
	if lines[len(lines)-1] != " 0 [R]. . . K . . . ." {
		t.Fatalf("bottom rank: %q", lines[len(lines)-1])
	}
	if lines[len(lines)-2] != " 1 * . . . . . . . ." {
		t.Fatalf("target rank: %q", lines[len(lines)-2])
	}
}

func TestRunScriptStopsAtQuit(t *testing.T) {
	sh, out, ctrl := newShell(t)
	runScript(sh, strings.NewReader("# opening\nh2e2\n\nh9g7\nquit\nb0c2\n"))
	if got := len(ctrl.Snapshot().History); got != 2 {
		t.Fatalf("history after script: %d\n%s", got, out.String())
	}
}
