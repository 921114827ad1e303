package controller

import (
	"github.com/park285/xiangqi-board/internal/xiangqi"
	"github.com/park285/xiangqi-board/pkg/xqdto"
)

func SquareDTO(sq xiangqi.Square) xqdto.SquareDTO {
	return xqdto.SquareDTO{File: sq.File, Rank: sq.Rank}
}

func SquaresDTO(sqs []xiangqi.Square) []xqdto.SquareDTO {
	if len(sqs) == 0 {
		return nil
	}
	out := make([]xqdto.SquareDTO, len(sqs))
	for i, sq := range sqs {
		out[i] = SquareDTO(sq)
	}
	return out
}

func PieceDTO(sq xiangqi.Square, p xiangqi.Piece) xqdto.PieceDTO {
	return xqdto.PieceDTO{Type: p.Type.String(), Side: p.Side.String(), File: sq.File, Rank: sq.Rank}
}

func FromSquareDTO(d xqdto.SquareDTO) xiangqi.Square { return xiangqi.Sq(d.File, d.Rank) }

// MoveResult describes an applied move.
type MoveResult struct {
	Move     xiangqi.Move
	Notation string
	Piece    xiangqi.Piece
	Captured *xiangqi.Piece
}

func (r MoveResult) DTO() xqdto.MoveDTO {
	out := xqdto.MoveDTO{
		From:     SquareDTO(r.Move.From),
		To:       SquareDTO(r.Move.To),
		Notation: r.Notation,
	}
	if r.Captured != nil {
		p := PieceDTO(r.Move.To, *r.Captured)
		out.Captured = &p
	}
	return out
}
