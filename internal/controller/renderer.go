package controller

import (
	"github.com/park285/xiangqi-board/internal/xiangqi"
	"github.com/park285/xiangqi-board/pkg/xqdto"
)

// Renderer receives board events for display. Calls are made after the
// controller has released its lock, so implementations may call back into
// the controller.
type Renderer interface {
	OnLegalMovesComputed(from xiangqi.Square, targets []xiangqi.Square)
	OnPieceCaptured(at xiangqi.Square, p xiangqi.Piece)
	OnPieceMoved(from, to xiangqi.Square, p xiangqi.Piece)
	OnBestMoveResolved(from, to xiangqi.Square)
	// OnBoardReset follows NewGame, LoadFEN and Resume.
	OnBoardReset(st *xqdto.GameState)
}

type NopRenderer struct{}

func (NopRenderer) OnLegalMovesComputed(xiangqi.Square, []xiangqi.Square)      {}
func (NopRenderer) OnPieceCaptured(xiangqi.Square, xiangqi.Piece)              {}
func (NopRenderer) OnPieceMoved(xiangqi.Square, xiangqi.Square, xiangqi.Piece) {}
func (NopRenderer) OnBestMoveResolved(xiangqi.Square, xiangqi.Square)          {}
func (NopRenderer) OnBoardReset(*xqdto.GameState)                              {}

// Fanout forwards every event to each renderer in order.
type Fanout []Renderer

func (f Fanout) OnLegalMovesComputed(from xiangqi.Square, targets []xiangqi.Square) {
	for _, r := range f {
		r.OnLegalMovesComputed(from, targets)
	}
}

func (f Fanout) OnPieceCaptured(at xiangqi.Square, p xiangqi.Piece) {
	for _, r := range f {
		r.OnPieceCaptured(at, p)
	}
}

func (f Fanout) OnPieceMoved(from, to xiangqi.Square, p xiangqi.Piece) {
	for _, r := range f {
		r.OnPieceMoved(from, to, p)
	}
}

func (f Fanout) OnBestMoveResolved(from, to xiangqi.Square) {
	for _, r := range f {
		r.OnBestMoveResolved(from, to)
	}
}

func (f Fanout) OnBoardReset(st *xqdto.GameState) {
	for _, r := range f {
		r.OnBoardReset(st)
	}
}
