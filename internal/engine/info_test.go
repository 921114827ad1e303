package engine

import "testing"

func TestParseInfo(t *testing.T) {
	cases := []struct {
		line string
		ok   bool
		want Info
	}{
		{
			line: "info depth 12 seldepth 18 multipv 2 score cp -45 nodes 991 pv b0c2 h9g7",
			ok:   true,
			want: Info{Depth: 12, SelDepth: 18, MultiPV: 2, ScoreCP: -45, Nodes: 991},
		},
		{
			line: "info depth 20 score mate -3 pv a0a1",
			ok:   true,
			want: Info{Depth: 20, MultiPV: 1, ScoreCP: -mateValue, Mate: -3, HasMate: true},
		},
		{line: "info string NNUE evaluation using pikafish.nnue", ok: false},
		{line: "info depth 3 score cp 10", ok: false},
		{line: "bestmove a0a1", ok: false},
	}
	for _, tc := range cases {
		got, ok := ParseInfo(tc.line)
		if ok != tc.ok {
			t.Fatalf("ParseInfo(%q) ok=%v want %v", tc.line, ok, tc.ok)
		}
		if !ok {
			continue
		}
		if got.Depth != tc.want.Depth || got.SelDepth != tc.want.SelDepth || got.MultiPV != tc.want.MultiPV ||
			got.ScoreCP != tc.want.ScoreCP || got.Mate != tc.want.Mate || got.HasMate != tc.want.HasMate || got.Nodes != tc.want.Nodes {
			t.Fatalf("ParseInfo(%q): got %+v want %+v", tc.line, got, tc.want)
		}
		if len(got.PV) == 0 {
			t.Fatalf("ParseInfo(%q): empty pv", tc.line)
		}
	}
}

func TestParseInfoWDL(t *testing.T) {
	got, ok := ParseInfo("info depth 5 score cp 20 wdl 400 500 100 pv e3e4")
	if !ok || !got.HasWDL || got.WDL != [3]int{400, 500, 100} {
		t.Fatalf("wdl: %+v ok=%v", got, ok)
	}
}
