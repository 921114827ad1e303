package xqdto

type SelectRequest struct {
	File int `json:"file" validate:"min=0,max=8"`
	Rank int `json:"rank" validate:"min=0,max=9"`
}

type MoveRequest struct {
	// Move accepts any notation shape ("b0c2", "1219", "b10c9").
	Move string `json:"move" validate:"required,min=4,max=8"`
}

type ClickRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type FENRequest struct {
	FEN string `json:"fen" validate:"required,max=128"`
}

type MoveResponse struct {
	Move  MoveDTO    `json:"move"`
	State *GameState `json:"state"`
}

// ClickResponse carries the applied move when a click completed one.
type ClickResponse struct {
	Move  *MoveDTO   `json:"move,omitempty"`
	State *GameState `json:"state"`
}

type HintResponse struct {
	Token uint64 `json:"token"`
}
