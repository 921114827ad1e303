// Package hub pushes board events to websocket clients such as the 3D
// board view.
package hub

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/park285/xiangqi-board/internal/controller"
	"github.com/park285/xiangqi-board/internal/xiangqi"
	"github.com/park285/xiangqi-board/pkg/xqdto"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	sendBuffer   = 32
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
)

type client struct {
	conn *websocket.Conn
	send chan xqdto.Event
	done chan struct{}
	once sync.Once
}

func (c *client) close() { c.once.Do(func() { close(c.done) }) }

// Hub fans controller events out to every connected client. A client that
// cannot keep up is disconnected rather than allowed to stall the others.
type Hub struct {
	logger  *zap.Logger
	origins []string

	mu       sync.RWMutex
	clients  map[*client]struct{}
	snapshot func() *xqdto.GameState
	closed   bool
}

func New(logger *zap.Logger, originPatterns ...string) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger:  logger,
		origins: originPatterns,
		clients: make(map[*client]struct{}),
	}
}

// SetSnapshotFunc sets the source of the state sent to new clients and
// attached to move events.
func (h *Hub) SetSnapshotFunc(fn func() *xqdto.GameState) {
	h.mu.Lock()
	h.snapshot = fn
	h.mu.Unlock()
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  h.origins,
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		h.logger.Warn("ws_accept_failed", zap.Error(err))
		return
	}
	c := &client{conn: conn, send: make(chan xqdto.Event, sendBuffer), done: make(chan struct{})}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close(websocket.StatusGoingAway, "shutting down")
		return
	}
	h.clients[c] = struct{}{}
	snap := h.snapshot
	h.mu.Unlock()
	h.logger.Info("ws_client_connected", zap.String("remote", r.RemoteAddr), zap.Int("clients", h.Clients()))

	if snap != nil {
		c.send <- xqdto.Event{Type: xqdto.EventReset, State: snap()}
	}

	// client messages are not used; CloseRead handles control frames
	ctx := conn.CloseRead(r.Context())
	h.writeLoop(ctx, c)

	h.remove(c)
	_ = conn.Close(websocket.StatusNormalClosure, "")
	h.logger.Info("ws_client_disconnected", zap.String("remote", r.RemoteAddr))
}

func (h *Hub) writeLoop(ctx context.Context, c *client) {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case ev := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, c.conn, ev)
			cancel()
			if err != nil {
				h.logger.Debug("ws_write_failed", zap.Error(err))
				return
			}
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Ping(pctx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

// Broadcast queues ev for every client.
func (h *Hub) Broadcast(ev xqdto.Event) {
	h.mu.RLock()
	var slow []*client
	for c := range h.clients {
		select {
		case c.send <- ev:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range slow {
		h.logger.Warn("ws_client_slow", zap.String("event", ev.Type))
		h.remove(c)
	}
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()
	for _, c := range clients {
		c.close()
	}
}

func (h *Hub) state() *xqdto.GameState {
	h.mu.RLock()
	fn := h.snapshot
	h.mu.RUnlock()
	if fn == nil {
		return nil
	}
	return fn()
}

func squarePtr(sq xiangqi.Square) *xqdto.SquareDTO {
	d := controller.SquareDTO(sq)
	return &d
}

func (h *Hub) OnLegalMovesComputed(from xiangqi.Square, targets []xiangqi.Square) {
	h.Broadcast(xqdto.Event{Type: xqdto.EventLegalMoves, From: squarePtr(from), Targets: controller.SquaresDTO(targets)})
}

func (h *Hub) OnPieceCaptured(at xiangqi.Square, p xiangqi.Piece) {
	piece := controller.PieceDTO(at, p)
	h.Broadcast(xqdto.Event{Type: xqdto.EventCaptured, To: squarePtr(at), Piece: &piece})
}

func (h *Hub) OnPieceMoved(from, to xiangqi.Square, p xiangqi.Piece) {
	piece := controller.PieceDTO(to, p)
	h.Broadcast(xqdto.Event{Type: xqdto.EventMoved, From: squarePtr(from), To: squarePtr(to), Piece: &piece, State: h.state()})
}

func (h *Hub) OnBestMoveResolved(from, to xiangqi.Square) {
	h.Broadcast(xqdto.Event{Type: xqdto.EventBestMove, From: squarePtr(from), To: squarePtr(to)})
}

func (h *Hub) OnBoardReset(st *xqdto.GameState) {
	h.Broadcast(xqdto.Event{Type: xqdto.EventReset, State: st})
}

var _ controller.Renderer = (*Hub)(nil)
