package xqdto

type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "xiangqi board error"
}

const (
	CodeBadRequest  = "bad_request"
	CodeIllegalMove = "illegal_move"
	CodeBadFEN      = "bad_fen"
	CodeNotFound    = "not_found"
	CodeInternal    = "internal"
	CodeOutOfBounds = "out_of_bounds"
	CodeEmptySquare = "empty_square"
	CodeWrongSide   = "wrong_side"
)
