package xiangqi

import (
	"errors"
	"fmt"
)

var (
	ErrOutOfBounds     = errors.New("square out of bounds")
	ErrOccupiedSquare  = errors.New("square already occupied")
	ErrNoPieceAtSource = errors.New("no piece at source square")
)

// Board owns piece placement and the side-to-move flag. It is not safe for
// concurrent mutation; readers that run concurrently should work on Clone().
type Board struct {
	placement  map[Square]Piece
	sideToMove Side
}

func NewBoard(sideToMove Side) *Board {
	return &Board{placement: make(map[Square]Piece, 32), sideToMove: sideToMove}
}

var backRank = [Files]PieceType{Rook, Horse, Elephant, Advisor, King, Advisor, Elephant, Horse, Rook}

// NewStartingBoard returns the canonical opening layout.
func NewStartingBoard(sideToMove Side) *Board {
	b := NewBoard(sideToMove)
	for _, sp := range startingLayout() {
		b.placement[sp.sq] = sp.piece
	}
	return b
}

type placedPiece struct {
	sq    Square
	piece Piece
}

func startingLayout() []placedPiece {
	out := make([]placedPiece, 0, 32)
	for side, rows := range map[Side][3]int{Red: {0, 2, 3}, Black: {9, 7, 6}} {
		back, cannonRank, pawnRank := rows[0], rows[1], rows[2]
		for f, t := range backRank {
			out = append(out, placedPiece{Sq(f, back), Piece{t, side}})
		}
		out = append(out,
			placedPiece{Sq(1, cannonRank), Piece{Cannon, side}},
			placedPiece{Sq(7, cannonRank), Piece{Cannon, side}},
		)
		for f := 0; f < Files; f += 2 {
			out = append(out, placedPiece{Sq(f, pawnRank), Piece{Pawn, side}})
		}
	}
	return out
}

func (b *Board) SideToMove() Side { return b.sideToMove }

func (b *Board) SetSideToMove(s Side) { b.sideToMove = s }

// ToggleSideToMove flips the side flag. Called once per completed move.
func (b *Board) ToggleSideToMove() { b.sideToMove = b.sideToMove.Opposite() }

// PlacePiece puts a piece on an empty square.
func (b *Board) PlacePiece(sq Square, p Piece) error {
	if !sq.InBounds() {
		return fmt.Errorf("place %s: %w", sq, ErrOutOfBounds)
	}
	if cur, ok := b.placement[sq]; ok {
		return fmt.Errorf("place %s on %s (holds %s): %w", p, sq, cur, ErrOccupiedSquare)
	}
	b.placement[sq] = p
	return nil
}

// PieceAt reports the occupant of sq. Empty and out-of-bounds squares both
// return false.
func (b *Board) PieceAt(sq Square) (Piece, bool) {
	if !sq.InBounds() {
		return Piece{}, false
	}
	p, ok := b.placement[sq]
	return p, ok
}

// Lookup is PieceAt for callers holding untrusted coordinates: an
// out-of-bounds square is ErrOutOfBounds instead of an empty result.
func (b *Board) Lookup(sq Square) (Piece, bool, error) {
	if !sq.InBounds() {
		return Piece{}, false, fmt.Errorf("lookup %s: %w", sq, ErrOutOfBounds)
	}
	p, ok := b.placement[sq]
	return p, ok, nil
}

func (b *Board) occupied(sq Square) bool {
	_, ok := b.placement[sq]
	return ok
}

// MovePiece relocates the piece at from to to, replacing any occupant.
// Capture bookkeeping is the caller's job.
func (b *Board) MovePiece(from, to Square) error {
	if !from.InBounds() || !to.InBounds() {
		return fmt.Errorf("move %s to %s: %w", from, to, ErrOutOfBounds)
	}
	p, ok := b.placement[from]
	if !ok {
		return fmt.Errorf("move from %s: %w", from, ErrNoPieceAtSource)
	}
	delete(b.placement, from)
	b.placement[to] = p
	return nil
}

// RemovePiece deletes the occupant of sq and returns it. Removing from an
// empty square is a no-op.
func (b *Board) RemovePiece(sq Square) (Piece, bool, error) {
	if !sq.InBounds() {
		return Piece{}, false, fmt.Errorf("remove %s: %w", sq, ErrOutOfBounds)
	}
	p, ok := b.placement[sq]
	if ok {
		delete(b.placement, sq)
	}
	return p, ok, nil
}

func (b *Board) Len() int { return len(b.placement) }

// Pieces visits occupied squares file by file, rank ascending.
func (b *Board) Pieces(visit func(Square, Piece)) {
	for f := 0; f < Files; f++ {
		for r := 0; r < Ranks; r++ {
			sq := Sq(f, r)
			if p, ok := b.placement[sq]; ok {
				visit(sq, p)
			}
		}
	}
}

func (b *Board) Clone() *Board {
	c := &Board{placement: make(map[Square]Piece, len(b.placement)), sideToMove: b.sideToMove}
	for sq, p := range b.placement {
		c.placement[sq] = p
	}
	return c
}

// Equal compares placement and side to move.
func (b *Board) Equal(o *Board) bool {
	if b == nil || o == nil {
		return b == o
	}
	if b.sideToMove != o.sideToMove || len(b.placement) != len(o.placement) {
		return false
	}
	for sq, p := range b.placement {
		if q, ok := o.placement[sq]; !ok || q != p {
			return false
		}
	}
	return true
}

// IsStartingLayout reports whether the placement equals the opening layout,
// regardless of side to move.
func (b *Board) IsStartingLayout() bool {
	layout := startingLayout()
	if len(layout) != len(b.placement) {
		return false
	}
	for _, sp := range layout {
		if p, ok := b.placement[sp.sq]; !ok || p != sp.piece {
			return false
		}
	}
	return true
}
