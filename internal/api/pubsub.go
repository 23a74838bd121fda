package api

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/victornm/livequiz/internal/domain"
)

const maxConcurrent = 100

type Notification struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// PublishLeaderboardUpdated forwards new standings to the quiz channel, and to the channel of every ranked user.
func (a *API) PublishLeaderboardUpdated(ctx context.Context, e domain.EventLeaderboardUpdated) error {
	data := newLeaderboard(e.Leaderboard)

	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)

	eg.Go(func() error {
		return a.publishNotification(ctx, a.QuizChannel(data.QuizID), e.Name(), data)
	})

	for _, s := range data.Leaderboard {
		eg.Go(func() error {
			return a.publishNotification(ctx, a.UserChannel(s.UserID), e.Name(), data)
		})
	}

	return eg.Wait()
}

type Membership struct {
	QuizID  int64 `json:"quizId"`
	UserID  int64 `json:"userId"`
	Score   int   `json:"score"`
	Created bool  `json:"created"`
}

// PublishQuizJoined tells the user channel that the user joined a quiz.
func (a *API) PublishQuizJoined(ctx context.Context, e domain.EventQuizJoined) error {
	data := Membership{
		QuizID:  e.Entry.QuizID,
		UserID:  e.Entry.UserID,
		Score:   e.Entry.Score,
		Created: e.Created,
	}

	return a.publishNotification(ctx, a.UserChannel(data.UserID), e.Name(), data)
}

func (a *API) QuizChannel(quizID int64) string {
	return fmt.Sprintf("%s:quiz:%d:leaderboard", a.prefix, quizID)
}

func (a *API) UserChannel(userID int64) string {
	return fmt.Sprintf("%s:user:%d", a.prefix, userID)
}

func (a *API) publishNotification(ctx context.Context, channel, event string, data any) error {
	n := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	if err := a.redis.Publish(ctx, channel, b).Err(); err != nil {
		return fmt.Errorf("pubsub: publish %s to %s: %w", event, channel, err)
	}

	return nil
}
