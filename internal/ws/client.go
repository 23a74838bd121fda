package ws

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// State of a connection. There is no way back from Joined, and a Closed connection never reopens.
type State int

const (
	StateConnected State = iota
	StateJoined
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Client is one websocket connection.
type Client struct {
	id      string
	conn    *websocket.Conn
	limiter *rate.Limiter

	mu     sync.Mutex
	send   chan []byte
	state  State
	quizID int64
	userID int64
}

func newClient(conn *websocket.Conn, buffer int, limiter *rate.Limiter) *Client {
	return &Client{
		id:      uuid.NewString(),
		conn:    conn,
		limiter: limiter,
		send:    make(chan []byte, buffer),
	}
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Quiz returns the quiz the connection last joined.
func (c *Client) Quiz() (quizID int64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.quizID, c.state == StateJoined
}

// User returns the user the connection last joined as.
func (c *Client) User() (userID int64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID, c.state == StateJoined
}

func (c *Client) join(quizID, userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return
	}
	c.state = StateJoined
	c.quizID = quizID
	c.userID = userID
}

// trySend queues a message without blocking. It reports false when the connection is closed or its buffer is full.
func (c *Client) trySend(b []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return false
	}

	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

// close stops the write pump. It is safe to call more than once.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return
	}
	c.state = StateClosed
	close(c.send)
}

func (c *Client) reply(ctx context.Context, typ string, payload any) {
	b, err := Encode(typ, payload)
	if err != nil {
		slog.ErrorContext(ctx, "ws: encode reply failed", "client", c.id, "type", typ, "error", err)
		return
	}

	if !c.trySend(b) {
		slog.WarnContext(ctx, "ws: reply dropped", "client", c.id, "type", typ)
	}
}

func (c *Client) replyError(ctx context.Context, msg string) {
	c.reply(ctx, TypeError, msg)
}

// readPump hands every inbound message to handle, one at a time, until the connection fails.
func (c *Client) readPump(ctx context.Context, o timeouts, handle func(ctx context.Context, c *Client, b []byte)) {
	c.conn.SetReadLimit(o.readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(o.pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(o.pongWait))
	})

	for {
		_, b, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				slog.WarnContext(ctx, "ws: read failed", "client", c.id, "error", err)
			}
			return
		}

		handle(ctx, c, b)
	}
}

func (c *Client) writePump(o timeouts) {
	ticker := time.NewTicker(o.pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case b, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(o.writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(o.writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type timeouts struct {
	readLimit  int64
	pongWait   time.Duration
	pingPeriod time.Duration
	writeWait  time.Duration
}
