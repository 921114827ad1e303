package xqdto

import "time"

type PieceDTO struct {
	Type string `json:"type"` // king, advisor, elephant, horse, rook, cannon, pawn
	Side string `json:"side"` // red | black
	File int    `json:"file"`
	Rank int    `json:"rank"`
}

type SquareDTO struct {
	File int `json:"file"`
	Rank int `json:"rank"`
}

type MoveDTO struct {
	From     SquareDTO `json:"from"`
	To       SquareDTO `json:"to"`
	Notation string    `json:"notation"`
	Captured *PieceDTO `json:"captured,omitempty"`
}

// Hint is the last move suggested by the engine for the side to move.
type Hint struct {
	From     SquareDTO `json:"from"`
	To       SquareDTO `json:"to"`
	Notation string    `json:"notation"`
}

// GameState is a read-only snapshot of the board and its surroundings.
type GameState struct {
	GameID     string      `json:"game_id"`
	FEN        string      `json:"fen"`
	SideToMove string      `json:"side_to_move"`
	StartFEN   string      `json:"start_fen,omitempty"` // empty when started from the initial layout
	History    []string    `json:"history"`
	Pieces     []PieceDTO  `json:"pieces"`
	Selected   *SquareDTO  `json:"selected,omitempty"`
	Targets    []SquareDTO `json:"targets,omitempty"`
	Hint       *Hint       `json:"hint,omitempty"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// FinishedGame is what gets archived when a new game replaces the current one.
type FinishedGame struct {
	GameID    string    `json:"game_id"`
	StartFEN  string    `json:"start_fen,omitempty"`
	FinalFEN  string    `json:"final_fen"`
	Moves     []string  `json:"moves"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}
