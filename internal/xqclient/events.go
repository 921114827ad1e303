package xqclient

import (
	"context"
	"sync"
	"time"

	"github.com/park285/xiangqi-board/pkg/xqdto"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "disconnected"
	}
}

type EventCallback func(ev *xqdto.Event)

type StateCallback func(s State)

// Events follows the board event stream and reconnects with backoff when the
// connection drops.
type Events struct {
	url string

	connM sync.Mutex
	conn  *websocket.Conn
	state State

	cbM      sync.RWMutex
	eventCbs []EventCallback
	stateCbs []StateCallback

	maxReconnect int
	dialTimeout  time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	rootCtx    context.Context
	rootCancel context.CancelFunc
}

func NewEvents(wsURL string, maxReconnect int) *Events {
	ctx, cancel := context.WithCancel(context.Background())
	return &Events{
		url:          wsURL,
		maxReconnect: maxReconnect,
		dialTimeout:  10 * time.Second,
		stopCh:       make(chan struct{}),
		rootCtx:      ctx,
		rootCancel:   cancel,
	}
}

func (e *Events) OnEvent(cb EventCallback) {
	e.cbM.Lock()
	e.eventCbs = append(e.eventCbs, cb)
	e.cbM.Unlock()
}

func (e *Events) OnStateChange(cb StateCallback) {
	e.cbM.Lock()
	e.stateCbs = append(e.stateCbs, cb)
	e.cbM.Unlock()
}

func (e *Events) State() State {
	e.connM.Lock()
	defer e.connM.Unlock()
	return e.state
}

// Connect dials once. A failed first dial is returned and also starts the
// reconnect loop when reconnects are enabled.
func (e *Events) Connect(ctx context.Context) error {
	e.connM.Lock()
	if e.state == StateConnected || e.state == StateConnecting {
		e.connM.Unlock()
		return nil
	}
	e.connM.Unlock()

	e.setState(StateConnecting)
	conn, err := e.dial(ctx)
	if err != nil {
		e.setState(StateFailed)
		e.scheduleReconnect()
		return err
	}
	e.attach(conn)
	return nil
}

func (e *Events) dial(ctx context.Context) (*websocket.Conn, error) {
	dctx, cancel := context.WithTimeout(ctx, e.dialTimeout)
	defer cancel()
	conn, _, err := websocket.Dial(dctx, e.url, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	return conn, err
}

func (e *Events) attach(conn *websocket.Conn) {
	e.connM.Lock()
	e.conn = conn
	e.connM.Unlock()
	e.setState(StateConnected)

	e.wg.Add(1)
	go e.listen(conn)
}

func (e *Events) listen(conn *websocket.Conn) {
	defer e.wg.Done()
	for {
		var ev xqdto.Event
		if err := wsjson.Read(e.rootCtx, conn, &ev); err != nil {
			if e.stopping() {
				return
			}
			e.detach(conn, websocket.StatusGoingAway, "reconnect")
			e.setState(StateDisconnected)
			e.scheduleReconnect()
			return
		}

		e.cbM.RLock()
		cbs := append([]EventCallback(nil), e.eventCbs...)
		e.cbM.RUnlock()
		for _, cb := range cbs {
			cb(&ev)
		}
	}
}

func (e *Events) scheduleReconnect() {
	if e.maxReconnect <= 0 || e.stopping() {
		return
	}
	e.setState(StateReconnecting)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for attempt := 1; attempt <= e.maxReconnect; attempt++ {
			select {
			case <-e.stopCh:
				return
			case <-time.After(backoffDuration(attempt)):
			}
			conn, err := e.dial(e.rootCtx)
			if err != nil {
				continue
			}
			e.attach(conn)
			return
		}
		e.setState(StateFailed)
	}()
}

func (e *Events) detach(conn *websocket.Conn, code websocket.StatusCode, reason string) {
	e.connM.Lock()
	if e.conn == conn {
		e.conn = nil
	}
	e.connM.Unlock()
	_ = conn.Close(code, reason)
}

func (e *Events) setState(s State) {
	e.connM.Lock()
	e.state = s
	e.connM.Unlock()

	e.cbM.RLock()
	cbs := append([]StateCallback(nil), e.stateCbs...)
	e.cbM.RUnlock()
	for _, cb := range cbs {
		cb(s)
	}
}

func (e *Events) stopping() bool {
	select {
	case <-e.stopCh:
		return true
	default:
		return false
	}
}

// Close stops reconnecting, closes the connection and waits for the
// goroutines or ctx.
func (e *Events) Close(ctx context.Context) error {
	e.stopOnce.Do(func() { close(e.stopCh) })
	e.connM.Lock()
	conn := e.conn
	e.conn = nil
	e.connM.Unlock()
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "close")
	}
	e.rootCancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		e.setState(StateDisconnected)
		return nil
	}
}
