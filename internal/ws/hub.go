package ws

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/telemetry"
)

// Broadcast scopes.
const (
	// ScopeQuiz delivers a leaderboard only to the connections that joined its quiz.
	ScopeQuiz = "quiz"
	// ScopeAll delivers every leaderboard to every open connection.
	ScopeAll = "all"
)

// Hub is the registry of open connections.
type Hub struct {
	scope string

	mu      sync.RWMutex
	clients map[*Client]struct{}
	closed  bool
}

func NewHub(scope string) (*Hub, error) {
	switch scope {
	case "":
		scope = ScopeQuiz
	case ScopeQuiz, ScopeAll:
	default:
		return nil, fmt.Errorf("ws: unknown broadcast scope %q", scope)
	}

	return &Hub{
		scope:   scope,
		clients: make(map[*Client]struct{}),
	}, nil
}

// Register adds a client. It reports false once the hub is closed.
func (h *Hub) Register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}

	h.clients[c] = struct{}{}
	telemetry.WSConnections.Inc()
	return true
}

// Unregister removes a client and closes it.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	if ok {
		telemetry.WSConnections.Dec()
	}
	c.close()
}

func (h *Hub) Online() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends a leaderboard snapshot to the clients in scope. It never blocks on a client:
// a closed client, or one whose buffer is full, misses the snapshot.
func (h *Hub) Broadcast(ctx context.Context, l domain.Leaderboard) {
	b, err := Encode(TypeLeaderboardUpdate, newLeaderboardUpdate(l))
	if err != nil {
		slog.ErrorContext(ctx, "ws: encode leaderboard failed", "quiz_id", l.QuizID, "error", err)
		return
	}

	var sent, skipped int
	for _, c := range h.recipients(l.QuizID) {
		if c.trySend(b) {
			sent++
			continue
		}
		skipped++
	}

	telemetry.BroadcastsTotal.Inc()
	telemetry.BroadcastSkippedTotal.Add(float64(skipped))

	slog.DebugContext(ctx, "ws: leaderboard broadcast",
		"quiz_id", l.QuizID,
		"sent", sent,
		"skipped", skipped,
	)
}

// recipients snapshots the clients in scope so that sending happens outside the lock.
func (h *Hub) recipients(quizID int64) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	cs := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		if h.scope == ScopeQuiz {
			if id, ok := c.Quiz(); !ok || id != quizID {
				continue
			}
		}
		cs = append(cs, c)
	}

	return cs
}

// Close closes every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	cs := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		cs = append(cs, c)
	}
	h.mu.Unlock()

	for _, c := range cs {
		h.Unregister(c)
	}
}
