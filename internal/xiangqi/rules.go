package xiangqi

import (
	"errors"
	"fmt"
	"iter"
)

var (
	ErrIllegalMove = errors.New("illegal move")
	ErrWrongSide   = errors.New("piece does not belong to side to move")
)

// IsLegal reports whether the piece standing on from may move to target.
// Check and flying-general rules are not evaluated. An empty from square is
// never legal.
func IsLegal(b *Board, from, target Square) bool {
	if b == nil || !from.InBounds() || !target.InBounds() || from == target {
		return false
	}
	p, ok := b.PieceAt(from)
	if !ok {
		return false
	}
	if occ, ok := b.PieceAt(target); ok && occ.Side == p.Side {
		return false
	}

	switch p.Type {
	case King:
		return kingRule(p.Side, from, target)
	case Advisor:
		return advisorRule(p.Side, from, target)
	case Elephant:
		return elephantRule(b, p.Side, from, target)
	case Rook:
		return rookRule(b, from, target)
	case Horse:
		return horseRule(b, from, target)
	case Cannon:
		return cannonRule(b, from, target)
	case Pawn:
		return pawnRule(p.Side, from, target)
	}
	return false
}

// LegalMoves yields every legal target of the piece on from. Squares are
// scanned file-major: file 0..8 outer, rank 0..9 inner. The sequence is
// restartable and reads the board lazily, so it must not be ranged while the
// board is being mutated.
func LegalMoves(b *Board, from Square) iter.Seq[Square] {
	return func(yield func(Square) bool) {
		if b == nil {
			return
		}
		if _, ok := b.PieceAt(from); !ok {
			return
		}
		for f := 0; f < Files; f++ {
			for r := 0; r < Ranks; r++ {
				sq := Sq(f, r)
				if !IsLegal(b, from, sq) {
					continue
				}
				if !yield(sq) {
					return
				}
			}
		}
	}
}

func LegalMoveList(b *Board, from Square) []Square {
	var out []Square
	for sq := range LegalMoves(b, from) {
		out = append(out, sq)
	}
	return out
}

// ValidateMove is IsLegal with a reason, and additionally requires the mover
// to be the side to move.
func ValidateMove(b *Board, mv Move) error {
	p, ok := b.PieceAt(mv.From)
	if !ok {
		return fmt.Errorf("validate %s: %w", mv, ErrNoPieceAtSource)
	}
	if p.Side != b.SideToMove() {
		return fmt.Errorf("validate %s (%s): %w", mv, p, ErrWrongSide)
	}
	if !IsLegal(b, mv.From, mv.To) {
		return fmt.Errorf("validate %s (%s): %w", mv, p, ErrIllegalMove)
	}
	return nil
}

// InPalace reports whether sq lies in the palace of side s.
func InPalace(s Side, sq Square) bool {
	if sq.File < 3 || sq.File > 5 {
		return false
	}
	if s == Red {
		return sq.Rank >= 0 && sq.Rank <= 2
	}
	return sq.Rank >= 7 && sq.Rank <= 9
}

// OwnHalf reports whether sq is on s's side of the river.
func OwnHalf(s Side, sq Square) bool {
	if s == Red {
		return sq.Rank <= 4
	}
	return sq.Rank >= 5
}

// CountBetween counts pieces strictly between two squares on one file or
// rank. ok is false when the squares are not aligned.
func CountBetween(b *Board, from, to Square) (n int, ok bool) {
	df, dr := to.File-from.File, to.Rank-from.Rank
	if (df != 0 && dr != 0) || (df == 0 && dr == 0) {
		return 0, false
	}
	sf, sr := sign(df), sign(dr)
	for cur := Sq(from.File+sf, from.Rank+sr); cur != to; cur = Sq(cur.File+sf, cur.Rank+sr) {
		if b.occupied(cur) {
			n++
		}
	}
	return n, true
}

func kingRule(s Side, from, to Square) bool {
	df, dr := abs(to.File-from.File), abs(to.Rank-from.Rank)
	return df+dr == 1 && InPalace(s, to)
}

func advisorRule(s Side, from, to Square) bool {
	df, dr := abs(to.File-from.File), abs(to.Rank-from.Rank)
	return df == 1 && dr == 1 && InPalace(s, to)
}

func elephantRule(b *Board, s Side, from, to Square) bool {
	df, dr := to.File-from.File, to.Rank-from.Rank
	if abs(df) != 2 || abs(dr) != 2 {
		return false
	}
	if !OwnHalf(s, to) {
		return false
	}
	eye := Sq(from.File+df/2, from.Rank+dr/2)
	return !b.occupied(eye)
}

func rookRule(b *Board, from, to Square) bool {
	n, ok := CountBetween(b, from, to)
	return ok && n == 0
}

func horseRule(b *Board, from, to Square) bool {
	df, dr := to.File-from.File, to.Rank-from.Rank
	var leg Square
	switch {
	case abs(df) == 2 && abs(dr) == 1:
		leg = Sq(from.File+sign(df), from.Rank)
	case abs(df) == 1 && abs(dr) == 2:
		leg = Sq(from.File, from.Rank+sign(dr))
	default:
		return false
	}
	return !b.occupied(leg)
}

func cannonRule(b *Board, from, to Square) bool {
	n, ok := CountBetween(b, from, to)
	if !ok {
		return false
	}
	if b.occupied(to) {
		return n == 1
	}
	return n == 0
}

func pawnRule(s Side, from, to Square) bool {
	forward := 1
	if s == Black {
		forward = -1
	}
	df, dr := to.File-from.File, to.Rank-from.Rank
	if df == 0 && dr == forward {
		return true
	}
	// 강을 건넌 졸/병만 옆으로 이동 가능
	return dr == 0 && abs(df) == 1 && !OwnHalf(s, from)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func sign(x int) int {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}
