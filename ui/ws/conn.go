package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sweetpotato0/ai-groupchat/ui"
	"golang.org/x/time/rate"
)

// ErrConnClosed is returned when writing to or asking through a closed
// connection.
var ErrConnClosed = errors.New("ws: connection closed")

// Conn is one WebSocket connection. Once bound to a session it is that
// session's ui.Channel.
type Conn struct {
	ID      string
	ws      *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter

	mu        sync.Mutex
	sessionID string
	asks      map[string]chan string

	closed    chan struct{}
	closeOnce sync.Once
}

func newConn(ws *websocket.Conn, limiter *rate.Limiter) *Conn {
	return &Conn{
		ID:      uuid.NewString(),
		ws:      ws,
		send:    make(chan []byte, 256),
		limiter: limiter,
		asks:    make(map[string]chan string),
		closed:  make(chan struct{}),
	}
}

// SessionID returns the bound session, or "" before hello.
func (c *Conn) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Conn) bind(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = id
}

// Publish implements ui.Publisher.
func (c *Conn) Publish(ctx context.Context, e ui.Entry) error {
	return c.writeJSON(ctx, EntryFrame{BaseFrame: base(TypeEntry, c.SessionID()), Entry: e})
}

// AskAction implements ui.Asker.
func (c *Conn) AskAction(ctx context.Context, req ui.ActionRequest) (*ui.Response, error) {
	return c.ask(ctx, AskFrame{
		BaseFrame: base(TypeAskAction, c.SessionID()),
		Content:   req.Content,
		Actions:   req.Actions,
		TimeoutMs: req.Timeout.Milliseconds(),
	})
}

// AskText implements ui.Asker.
func (c *Conn) AskText(ctx context.Context, req ui.TextRequest) (*ui.Response, error) {
	return c.ask(ctx, AskFrame{
		BaseFrame: base(TypeAskText, c.SessionID()),
		Content:   req.Content,
		TimeoutMs: req.Timeout.Milliseconds(),
	})
}

// ask sends frame and waits for the matching ask_response. A ctx deadline
// is reported as the ctx error so callers can treat it as no result.
func (c *Conn) ask(ctx context.Context, frame AskFrame) (*ui.Response, error) {
	frame.AskID = uuid.NewString()
	answer := make(chan string, 1)

	c.mu.Lock()
	c.asks[frame.AskID] = answer
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.asks, frame.AskID)
		c.mu.Unlock()
	}()

	if err := c.writeJSON(ctx, frame); err != nil {
		return nil, err
	}
	select {
	case v := <-answer:
		return &ui.Response{Value: v}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closed:
		return nil, ErrConnClosed
	}
}

// resolve delivers an answer to a pending ask.
func (c *Conn) resolve(askID, value string) bool {
	c.mu.Lock()
	answer, ok := c.asks[askID]
	c.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case answer <- value:
		return true
	default:
		return false
	}
}

func (c *Conn) writeJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case <-c.closed:
		return ErrConnClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.closed:
		return ErrConnClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the connection. Pending asks fail with ErrConnClosed.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.ws.Close()
	})
}
