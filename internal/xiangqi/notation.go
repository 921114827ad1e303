package xiangqi

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var ErrMalformedNotation = errors.New("malformed move notation")

var (
	gridDigitsRe = regexp.MustCompile(`^[0-9]{4}$`)
	algebraicRe  = regexp.MustCompile(`^[a-i][0-9][a-i][0-9]$`)
	rankTenRe    = regexp.MustCompile(`^([a-i])(10|[1-9])([a-i])(10|[1-9])$`)
)

// Notation converts moves to and from the engine's coordinate strings
// ("b0c2"). With FlipRanks the external rank digit counts from Black's back
// rank instead of Red's. Raw four-digit grid strings are never flipped.
type Notation struct {
	FlipRanks bool
}

func (n Notation) rankOut(r int) int {
	if n.FlipRanks {
		return Ranks - 1 - r
	}
	return r
}

// FormatSquare writes a single square, e.g. "e0".
func (n Notation) FormatSquare(sq Square) string {
	return fmt.Sprintf("%c%d", 'a'+sq.File, n.rankOut(sq.Rank))
}

func (n Notation) Format(mv Move) string {
	return n.FormatSquare(mv.From) + n.FormatSquare(mv.To)
}

// ParseSquare reads a two-character square such as "e0".
func (n Notation) ParseSquare(s string) (Square, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 2 || s[0] < 'a' || s[0] > 'i' || s[1] < '0' || s[1] > '9' {
		return Square{}, fmt.Errorf("square %q: %w", s, ErrMalformedNotation)
	}
	return Sq(int(s[0]-'a'), n.rankOut(int(s[1]-'0'))), nil
}

// Parse accepts three shapes: four raw grid digits ("0312", file then rank),
// letter-digit pairs ("b0c2") and letter pairs whose rank may be written as
// "10", which aliases the top rank ("a10a8").
func (n Notation) Parse(s string) (Move, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	var mv Move
	switch {
	case gridDigitsRe.MatchString(s):
		mv = Move{
			From: Sq(int(s[0]-'0'), int(s[1]-'0')),
			To:   Sq(int(s[2]-'0'), int(s[3]-'0')),
		}
	case algebraicRe.MatchString(s):
		mv = Move{
			From: Sq(int(s[0]-'a'), n.rankOut(int(s[1]-'0'))),
			To:   Sq(int(s[2]-'a'), n.rankOut(int(s[3]-'0'))),
		}
	default:
		m := rankTenRe.FindStringSubmatch(s)
		if m == nil {
			return Move{}, fmt.Errorf("move %q: %w", s, ErrMalformedNotation)
		}
		mv = Move{
			From: Sq(int(m[1][0]-'a'), n.rankOut(rankTen(m[2]))),
			To:   Sq(int(m[3][0]-'a'), n.rankOut(rankTen(m[4]))),
		}
	}
	if mv.From == mv.To {
		return Move{}, fmt.Errorf("move %q: same square: %w", s, ErrMalformedNotation)
	}
	if !mv.From.InBounds() || !mv.To.InBounds() {
		return Move{}, fmt.Errorf("move %q: %w", s, ErrOutOfBounds)
	}
	return mv, nil
}

func rankTen(s string) int {
	if s == "10" {
		return Ranks - 1
	}
	return int(s[0] - '0')
}

var noMoveSentinels = map[string]struct{}{
	"":       {},
	"(none)": {},
	"none":   {},
	"null":   {},
	"0000":   {},
}

// ParseBestMoveLine extracts the move and optional ponder move from an
// engine reply. A line without the "bestmove" token is taken as a bare move.
// ok is false for sentinel "no move" answers.
func ParseBestMoveLine(raw string) (move, ponder string, ok bool) {
	parts := strings.Fields(raw)
	if len(parts) == 0 {
		return "", "", false
	}
	if strings.EqualFold(parts[0], "bestmove") {
		parts = parts[1:]
		if len(parts) == 0 {
			return "", "", false
		}
	}
	move = strings.ToLower(parts[0])
	if _, bad := noMoveSentinels[move]; bad {
		return "", "", false
	}
	if len(parts) >= 3 && strings.EqualFold(parts[1], "ponder") {
		ponder = strings.ToLower(parts[2])
		if _, bad := noMoveSentinels[ponder]; bad {
			ponder = ""
		}
	}
	return move, ponder, true
}
