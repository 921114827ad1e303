package xiangqi

import "fmt"

const (
	Files = 9
	Ranks = 10
)

// Side identifies the player owning a piece.
type Side int

const (
	Red Side = iota
	Black
)

func (s Side) Opposite() Side {
	if s == Red {
		return Black
	}
	return Red
}

func (s Side) String() string {
	switch s {
	case Red:
		return "red"
	case Black:
		return "black"
	default:
		return fmt.Sprintf("side(%d)", int(s))
	}
}

// ParseSide accepts "red"/"black" as well as the FEN side tokens "w"/"r"/"b".
func ParseSide(s string) (Side, bool) {
	switch s {
	case "red", "Red", "RED", "w", "r":
		return Red, true
	case "black", "Black", "BLACK", "b":
		return Black, true
	}
	return Red, false
}

type PieceType int

const (
	King PieceType = iota
	Advisor
	Elephant
	Rook
	Horse
	Cannon
	Pawn
)

// PieceTypes lists every piece type in declaration order.
var PieceTypes = [...]PieceType{King, Advisor, Elephant, Rook, Horse, Cannon, Pawn}

func (t PieceType) String() string {
	switch t {
	case King:
		return "king"
	case Advisor:
		return "advisor"
	case Elephant:
		return "elephant"
	case Rook:
		return "rook"
	case Horse:
		return "horse"
	case Cannon:
		return "cannon"
	case Pawn:
		return "pawn"
	default:
		return fmt.Sprintf("piece(%d)", int(t))
	}
}

// Letter returns the lowercase FEN letter of the piece type.
func (t PieceType) Letter() byte {
	switch t {
	case King:
		return 'k'
	case Advisor:
		return 'a'
	case Elephant:
		return 'b'
	case Rook:
		return 'r'
	case Horse:
		return 'n'
	case Cannon:
		return 'c'
	default:
		return 'p'
	}
}

func pieceTypeFromLetter(c byte) (PieceType, bool) {
	switch c {
	case 'k':
		return King, true
	case 'a':
		return Advisor, true
	case 'b':
		return Elephant, true
	case 'r':
		return Rook, true
	case 'n':
		return Horse, true
	case 'c':
		return Cannon, true
	case 'p':
		return Pawn, true
	}
	return 0, false
}

type Piece struct {
	Type PieceType
	Side Side
}

func (p Piece) String() string { return p.Side.String() + " " + p.Type.String() }

// Square is a board coordinate. File 0..8 runs left to right from Red's
// point of view, rank 0 is Red's back rank.
type Square struct {
	File int
	Rank int
}

func Sq(file, rank int) Square { return Square{File: file, Rank: rank} }

func (s Square) InBounds() bool {
	return s.File >= 0 && s.File < Files && s.Rank >= 0 && s.Rank < Ranks
}

func (s Square) String() string { return fmt.Sprintf("(%d,%d)", s.File, s.Rank) }

type Move struct {
	From Square
	To   Square
}

func (m Move) String() string { return m.From.String() + "->" + m.To.String() }
