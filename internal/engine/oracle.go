package engine

import (
	"context"
	"errors"
)

// ErrOracleUnavailable marks a session whose search backend cannot be
// started at all. It is terminal: no later request will succeed.
var ErrOracleUnavailable = errors.New("engine oracle unavailable")

// StartPos is the position marker for the canonical opening layout.
const StartPos = "startpos"

type MessageKind int

const (
	MessageInfo MessageKind = iota
	MessageBestMove
)

func (k MessageKind) String() string {
	if k == MessageBestMove {
		return "bestmove"
	}
	return "info"
}

// Message is one asynchronous line from the oracle.
type Message struct {
	Kind MessageKind
	Text string
}

// Oracle is the boundary to the external best-move search. Commands are
// fire-and-forget; answers arrive on Messages in the order the oracle
// produced them, one bestmove per GoDepth.
type Oracle interface {
	Init(ctx context.Context) error
	SetOption(name, value string) error
	SetPosition(position string, moves []string) error
	GoDepth(depth int) error
	Stop() error
	NewGame(ctx context.Context) error
	Messages() <-chan Message

	// NativeReady reports that the process finished its handshake.
	NativeReady() bool
	// EvalReady reports that the evaluation weights are present.
	EvalReady() bool

	Close() error
}
