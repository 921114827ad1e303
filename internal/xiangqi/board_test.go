package xiangqi

import (
	"errors"
	"testing"
)

func TestPlacePiece(t *testing.T) {
	b := NewBoard(Red)
	if err := b.PlacePiece(Sq(4, 0), Piece{King, Red}); err != nil {
		t.Fatalf("PlacePiece: %v", err)
	}
	if err := b.PlacePiece(Sq(4, 0), Piece{Advisor, Red}); !errors.Is(err, ErrOccupiedSquare) {
		t.Fatalf("second place: got %v want ErrOccupiedSquare", err)
	}
	if err := b.PlacePiece(Sq(9, 0), Piece{Rook, Red}); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("out of bounds place: got %v", err)
	}
	if p, ok := b.PieceAt(Sq(4, 0)); !ok || p.Type != King {
		t.Fatalf("PieceAt: %v %v", p, ok)
	}
	if _, ok := b.PieceAt(Sq(4, 1)); ok {
		t.Fatalf("PieceAt empty square reported a piece")
	}
	if _, ok := b.PieceAt(Sq(-1, 0)); ok {
		t.Fatalf("PieceAt out of bounds reported a piece")
	}
	if _, _, err := b.Lookup(Sq(-1, 0)); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("Lookup out of bounds: got %v", err)
	}
	if p, ok, err := b.Lookup(Sq(4, 0)); err != nil || !ok || p.Type != King {
		t.Fatalf("Lookup: %v %v %v", p, ok, err)
	}
	if _, ok, err := b.Lookup(Sq(4, 1)); ok || err != nil {
		t.Fatalf("Lookup empty: ok=%v err=%v", ok, err)
	}
}

func TestMoveAndRemove(t *testing.T) {
	b := NewStartingBoard(Red)
	if err := b.MovePiece(Sq(4, 4), Sq(4, 5)); !errors.Is(err, ErrNoPieceAtSource) {
		t.Fatalf("move from empty: got %v", err)
	}
	if err := b.MovePiece(Sq(0, 0), Sq(0, 10)); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("move out of bounds: got %v", err)
	}

	// cannon takes the horse: capture first, then relocate
	before := b.Len()
	captured, ok, err := b.RemovePiece(Sq(1, 9))
	if err != nil || !ok || captured != (Piece{Horse, Black}) {
		t.Fatalf("RemovePiece: %v %v %v", captured, ok, err)
	}
	if err := b.MovePiece(Sq(1, 2), Sq(1, 9)); err != nil {
		t.Fatalf("MovePiece: %v", err)
	}
	if b.Len() != before-1 {
		t.Fatalf("piece count: got %d want %d", b.Len(), before-1)
	}
	if _, ok := b.PieceAt(Sq(1, 2)); ok {
		t.Fatalf("source square still occupied")
	}

	if _, ok, err := b.RemovePiece(Sq(4, 4)); ok || err != nil {
		t.Fatalf("remove empty: ok=%v err=%v", ok, err)
	}
	if _, _, err := b.RemovePiece(Sq(4, 10)); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("remove out of bounds: got %v", err)
	}
}

func TestToggleAndClone(t *testing.T) {
	b := NewStartingBoard(Red)
	c := b.Clone()
	b.ToggleSideToMove()
	if b.SideToMove() != Black || c.SideToMove() != Red {
		t.Fatalf("toggle leaked into clone")
	}
	_ = b.MovePiece(Sq(0, 3), Sq(0, 4))
	if !c.IsStartingLayout() || b.IsStartingLayout() {
		t.Fatalf("clone not independent")
	}
	if b.Equal(c) {
		t.Fatalf("Equal after divergence")
	}
}

func TestPiecesOrder(t *testing.T) {
	b := NewBoard(Red)
	_ = b.PlacePiece(Sq(8, 9), Piece{Rook, Black})
	_ = b.PlacePiece(Sq(0, 3), Piece{Pawn, Red})
	_ = b.PlacePiece(Sq(0, 0), Piece{Rook, Red})
	var got []Square
	b.Pieces(func(sq Square, _ Piece) { got = append(got, sq) })
	want := []Square{Sq(0, 0), Sq(0, 3), Sq(8, 9)}
	if len(got) != len(want) {
		t.Fatalf("Pieces: got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Pieces[%d]: got %v want %v", i, got[i], want[i])
		}
	}
}
