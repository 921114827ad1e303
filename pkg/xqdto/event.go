package xqdto

const (
	EventLegalMoves = "legal_moves"
	EventCaptured   = "captured"
	EventMoved      = "moved"
	EventBestMove   = "best_move"
	EventReset      = "reset"
)

// Event is pushed to rendering clients.
type Event struct {
	Type    string      `json:"type"`
	From    *SquareDTO  `json:"from,omitempty"`
	To      *SquareDTO  `json:"to,omitempty"`
	Piece   *PieceDTO   `json:"piece,omitempty"`
	Targets []SquareDTO `json:"targets,omitempty"`
	State   *GameState  `json:"state,omitempty"`
}
