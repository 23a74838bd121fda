package ws

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/score"
	"github.com/victornm/livequiz/internal/telemetry"
)

const (
	defaultReadLimit  = 64 << 10
	defaultPongWait   = 60 * time.Second
	defaultWriteWait  = 10 * time.Second
	defaultSendBuffer = 64
)

// Messages sent back to a client on failure.
const (
	msgMalformed    = "Malformed message."
	msgRateLimited  = "Too many messages."
	msgQuizNotFound = "Quiz not found"
	msgUserNotFound = "User not found."
	msgInvalidIndex = "Invalid question index."
	msgJoinFailed   = "An error occurred while joining the quiz."
	msgSubmitFailed = "An error occurred while submitting the answer."
)

type Scorer interface {
	Join(ctx context.Context, req score.JoinRequest) (*score.JoinResponse, error)
	SubmitAnswer(ctx context.Context, req score.SubmitAnswerRequest) (*score.SubmitAnswerResponse, error)
}

type Config struct {
	Hub    *Hub
	Scorer Scorer

	ReadLimit  int64
	PongWait   time.Duration
	WriteWait  time.Duration
	SendBuffer int

	// RateLimit is the number of inbound messages per second allowed on one connection, 0 disables the limit.
	RateLimit float64
	RateBurst int

	// CheckOrigin is passed to the upgrader. Every origin is accepted when nil.
	CheckOrigin func(r *http.Request) bool
}

type Handler struct {
	hub      *Hub
	scorer   Scorer
	upgrader websocket.Upgrader
	timeouts timeouts
	buffer   int

	rate  rate.Limit
	burst int
}

func NewHandler(c Config) *Handler {
	o := timeouts{
		readLimit: c.ReadLimit,
		pongWait:  c.PongWait,
		writeWait: c.WriteWait,
	}
	if o.readLimit <= 0 {
		o.readLimit = defaultReadLimit
	}
	if o.pongWait <= 0 {
		o.pongWait = defaultPongWait
	}
	if o.writeWait <= 0 {
		o.writeWait = defaultWriteWait
	}
	o.pingPeriod = o.pongWait * 9 / 10

	buffer := c.SendBuffer
	if buffer <= 0 {
		buffer = defaultSendBuffer
	}

	checkOrigin := c.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}

	burst := c.RateBurst
	if burst <= 0 {
		burst = 1
	}

	return &Handler{
		hub:    c.Hub,
		scorer: c.Scorer,
		upgrader: websocket.Upgrader{
			CheckOrigin: checkOrigin,
		},
		timeouts: o,
		buffer:   buffer,
		rate:     rate.Limit(c.RateLimit),
		burst:    burst,
	}
}

// Serve upgrades the request and runs the connection until it closes.
func (h *Handler) Serve(c *gin.Context) {
	h.ServeHTTP(c.Writer, c.Request)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.WarnContext(r.Context(), "ws: upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	var limiter *rate.Limiter
	if h.rate > 0 {
		limiter = rate.NewLimiter(h.rate, h.burst)
	}

	c := newClient(conn, h.buffer, limiter)
	if !h.hub.Register(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(h.timeouts.writeWait),
		)
		_ = conn.Close()
		return
	}

	ctx := context.WithoutCancel(r.Context())
	slog.DebugContext(ctx, "ws: connected", "client", c.ID(), "remote", r.RemoteAddr)

	go c.writePump(h.timeouts)
	c.readPump(ctx, h.timeouts, h.handle)

	userID, _ := c.User()
	h.hub.Unregister(c)
	slog.DebugContext(ctx, "ws: disconnected", "client", c.ID(), "user_id", userID)
}

func (h *Handler) handle(ctx context.Context, c *Client, b []byte) {
	typ, msg, err := Decode(b)
	switch {
	case stderrors.Is(err, ErrUnknownType):
		telemetry.WSMessagesTotal.WithLabelValues("unknown").Inc()
		slog.DebugContext(ctx, "ws: ignore unknown message", "client", c.ID(), "type", typ)
		return
	case err != nil:
		telemetry.WSMessagesTotal.WithLabelValues("malformed").Inc()
		slog.InfoContext(ctx, "ws: malformed message", "client", c.ID(), "error", err)
		c.replyError(ctx, msgMalformed)
		return
	}

	telemetry.WSMessagesTotal.WithLabelValues(typ).Inc()

	if c.limiter != nil && !c.limiter.Allow() {
		c.replyError(ctx, msgRateLimited)
		return
	}

	switch m := msg.(type) {
	case *JoinQuiz:
		h.join(ctx, c, m)
	case *SubmitAnswer:
		h.submitAnswer(ctx, c, m)
	}
}

func (h *Handler) join(ctx context.Context, c *Client, m *JoinQuiz) {
	resp, err := h.scorer.Join(ctx, score.JoinRequest{
		QuizID: int64(m.QuizID),
		UserID: int64(m.UserID),
	})
	if err != nil {
		h.fail(ctx, c, TypeJoinQuiz, err, msgJoinFailed)
		return
	}

	c.join(resp.Entry.QuizID, resp.Entry.UserID)
	c.reply(ctx, TypeQuizJoined, QuizJoined{
		QuizID: resp.Entry.QuizID,
		UserID: resp.Entry.UserID,
	})
}

// submitAnswer has no direct reply on success, the sender learns the outcome from the broadcast.
func (h *Handler) submitAnswer(ctx context.Context, c *Client, m *SubmitAnswer) {
	_, err := h.scorer.SubmitAnswer(ctx, score.SubmitAnswerRequest{
		QuizID:        int64(m.QuizID),
		UserID:        int64(m.UserID),
		Answer:        m.Answer,
		QuestionIndex: int(m.QuestionIndex),
	})
	if err != nil {
		h.fail(ctx, c, TypeSubmitAnswer, err, msgSubmitFailed)
	}
}

func (h *Handler) fail(ctx context.Context, c *Client, typ string, err error, fallback string) {
	msg := fallback
	switch errors.ReasonOf(err) {
	case errors.ReasonQuizNotFound:
		msg = msgQuizNotFound
	case errors.ReasonUserNotFound:
		msg = msgUserNotFound
	case errors.ReasonInvalidIndex:
		msg = msgInvalidIndex
	default:
		attrs := []any{"client", c.ID(), "type", typ, "error", err}
		if userID, ok := c.User(); ok {
			attrs = append(attrs, "user_id", userID)
		}
		slog.ErrorContext(ctx, "ws: handle message failed", attrs...)
	}

	c.replyError(ctx, msg)
}
