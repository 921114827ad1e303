package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/park285/xiangqi-board/internal/xiangqi"
	"github.com/park285/xiangqi-board/pkg/xqdto"
)

var typeLetters = map[string]byte{
	"king":     'k',
	"advisor":  'a',
	"elephant": 'b',
	"horse":    'n',
	"rook":     'r',
	"cannon":   'c',
	"pawn":     'p',
}

// drawBoard writes st as text, Black's back rank first. Red pieces are
// uppercase; legal targets of the selection show as '*'.
func drawBoard(w io.Writer, st *xqdto.GameState, n xiangqi.Notation) {
	var grid [xiangqi.Ranks][xiangqi.Files]byte
	for r := range grid {
		for f := range grid[r] {
			grid[r][f] = '.'
		}
	}
	for _, t := range st.Targets {
		grid[t.Rank][t.File] = '*'
	}
	for _, p := range st.Pieces {
		l, ok := typeLetters[p.Type]
		if !ok {
			l = '?'
		}
		if p.Side == xiangqi.Red.String() {
			l = l - 'a' + 'A'
		}
		grid[p.Rank][p.File] = l
	}

	var b strings.Builder
	b.WriteString("   a b c d e f g h i\n")
	for r := xiangqi.Ranks - 1; r >= 0; r-- {
		label := n.FormatSquare(xiangqi.Sq(0, r))[1:]
		fmt.Fprintf(&b, "%2s ", label)
		for f := 0; f < xiangqi.Files; f++ {
			sel := st.Selected != nil && st.Selected.File == f && st.Selected.Rank == r
			switch {
			case sel:
				b.WriteByte('[')
			case f > 0 && st.Selected != nil && st.Selected.File == f-1 && st.Selected.Rank == r:
				// closing bracket already took the gap
			default:
				if f > 0 {
					b.WriteByte(' ')
				}
			}
			b.WriteByte(grid[r][f])
			if sel {
				b.WriteByte(']')
			}
		}
		b.WriteByte('\n')
		if r == xiangqi.Ranks/2 {
			b.WriteString("   ~~~~~~~~~~~~~~~~~\n")
		}
	}
	fmt.Fprint(w, b.String())
}
