package xiangqi

import (
	"errors"
	"fmt"
	"strings"
)

// StartFEN is the board section of the opening position with uppercase
// letters on ranks 0..3.
const StartFEN = "rnbakabnr/9/1c5c1/p1p1p1p1p/9/9/P1P1P1P1P/1C5C1/9/RNBAKABNR"

// StartPosition is the full opening FEN, Red to move.
const StartPosition = StartFEN + " w - - 0 1"

var ErrMalformedFEN = errors.New("malformed fen")

// Polarity selects which side is written with uppercase letters.
type Polarity int

const (
	UpperIsRed Polarity = iota
	UpperIsBlack
)

func ParsePolarity(s string) (Polarity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "upper-red", "upper_red", "red":
		return UpperIsRed, nil
	case "upper-black", "upper_black", "black":
		return UpperIsBlack, nil
	}
	return UpperIsRed, fmt.Errorf("unknown fen polarity %q", s)
}

// Codec converts between boards and FEN text. The zero value writes Red in
// uppercase, applies no mirroring and assumes Red to move when a FEN has no
// side field.
type Codec struct {
	Polarity    Polarity
	MirrorFiles bool
	MirrorRanks bool
	DefaultSide Side
}

var DefaultCodec = Codec{}

func (c Codec) upperSide() Side {
	if c.Polarity == UpperIsBlack {
		return Black
	}
	return Red
}

// mirror maps a board square to its text position and back; it is its own
// inverse.
func (c Codec) mirror(sq Square) Square {
	if c.MirrorFiles {
		sq.File = Files - 1 - sq.File
	}
	if c.MirrorRanks {
		sq.Rank = Ranks - 1 - sq.Rank
	}
	return sq
}

func (c Codec) letter(p Piece) byte {
	l := p.Type.Letter()
	if p.Side == c.upperSide() {
		return l - 'a' + 'A'
	}
	return l
}

// EncodeBoard writes the placement section: rank 9 first, files 0..8.
func (c Codec) EncodeBoard(b *Board) string {
	var sb strings.Builder
	sb.Grow(90)
	for r := Ranks - 1; r >= 0; r-- {
		empty := 0
		for f := 0; f < Files; f++ {
			p, ok := b.PieceAt(c.mirror(Sq(f, r)))
			if !ok {
				empty++
				continue
			}
			if empty > 0 {
				sb.WriteByte(byte('0' + empty))
				empty = 0
			}
			sb.WriteByte(c.letter(p))
		}
		if empty > 0 {
			sb.WriteByte(byte('0' + empty))
		}
		if r > 0 {
			sb.WriteByte('/')
		}
	}
	return sb.String()
}

// Encode writes the full position string with placeholder fields.
func (c Codec) Encode(b *Board) string {
	return c.EncodeBoard(b) + " " + sideToken(b.SideToMove()) + " - - 0 1"
}

func sideToken(s Side) string {
	if s == Black {
		return "b"
	}
	return "w"
}

// Decode parses a FEN board section, optionally followed by the side field
// and ignored placeholder fields.
func (c Codec) Decode(fen string) (*Board, error) {
	fields := strings.Fields(fen)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty input: %w", ErrMalformedFEN)
	}
	side := c.DefaultSide
	if len(fields) > 1 {
		s, ok := ParseSide(fields[1])
		if !ok {
			return nil, fmt.Errorf("side field %q: %w", fields[1], ErrMalformedFEN)
		}
		side = s
	}

	rows := strings.Split(fields[0], "/")
	if len(rows) != Ranks {
		return nil, fmt.Errorf("%d ranks, want %d: %w", len(rows), Ranks, ErrMalformedFEN)
	}

	b := NewBoard(side)
	for i, row := range rows {
		r := Ranks - 1 - i
		f := 0
		for j := 0; j < len(row); j++ {
			ch := row[j]
			if ch >= '1' && ch <= '9' {
				f += int(ch - '0')
				if f > Files {
					return nil, fmt.Errorf("rank %d overflows: %w", r, ErrMalformedFEN)
				}
				continue
			}
			lower := ch | 0x20
			t, ok := pieceTypeFromLetter(lower)
			if !ok || (ch != lower && ch != lower-'a'+'A') {
				return nil, fmt.Errorf("rank %d: unknown letter %q: %w", r, ch, ErrMalformedFEN)
			}
			if f >= Files {
				return nil, fmt.Errorf("rank %d overflows: %w", r, ErrMalformedFEN)
			}
			owner := c.upperSide()
			if ch == lower {
				owner = owner.Opposite()
			}
			b.placement[c.mirror(Sq(f, r))] = Piece{Type: t, Side: owner}
			f++
		}
		if f != Files {
			return nil, fmt.Errorf("rank %d has %d files, want %d: %w", r, f, Files, ErrMalformedFEN)
		}
	}
	return b, nil
}

// Normalize completes a FEN that lacks the side field or the placeholder
// fields. The board section is not validated.
func (c Codec) Normalize(fen string) string {
	fields := strings.Fields(fen)
	if len(fields) == 0 {
		return ""
	}
	if len(fields) == 1 {
		fields = append(fields, sideToken(c.DefaultSide))
	}
	defaults := []string{"-", "-", "0", "1"}
	for len(fields) < 6 {
		fields = append(fields, defaults[len(fields)-2])
	}
	return strings.Join(fields, " ")
}
