// Command seed creates the schema and the sample quiz, users and scores.
package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/victornm/livequiz/internal/config"
	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/server"
	"github.com/victornm/livequiz/internal/store"
	"github.com/victornm/livequiz/internal/telemetry"
)

func main() {
	c := server.DefaultConfig()
	if err := config.Load(os.Getenv("CONFIG_PATH"), &c); err != nil {
		log.Fatalf("Load config failed: %v", err)
	}

	if err := telemetry.SetupLogger(os.Stdout, c.Log.Level, telemetry.LogFormatText); err != nil {
		log.Fatalf("Setup logger failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	c.Store.Migrate = true
	s, err := store.Open(ctx, c.Store)
	if err != nil {
		log.Fatalf("Open store failed: %v", err)
	}
	defer s.Close()

	if err := seed(ctx, s); err != nil {
		log.Fatalf("Seed failed: %v", err)
	}
}

func seed(ctx context.Context, s store.Store) error {
	q, err := s.CreateQuiz(ctx, "English Vocabulary Quiz")
	if err != nil {
		return fmt.Errorf("create quiz: %w", err)
	}

	for _, qs := range []domain.Question{
		{QuizID: q.QuizID, QuestionText: `What is the synonym of "happy"?`, CorrectAnswer: "joyful"},
		{QuizID: q.QuizID, QuestionText: `What is the antonym of "fast"?`, CorrectAnswer: "slow"},
	} {
		if _, err := s.CreateQuestion(ctx, qs); err != nil {
			return fmt.Errorf("create question: %w", err)
		}
	}

	for _, u := range []struct {
		name  string
		score int
	}{
		{name: "user1", score: 10},
		{name: "user2", score: 20},
	} {
		user, err := s.CreateUser(ctx, u.name)
		if stderrors.Is(err, store.ErrDuplicate) {
			slog.InfoContext(ctx, "seed: user exists, skipped", "username", u.name)
			continue
		}
		if err != nil {
			return fmt.Errorf("create user %s: %w", u.name, err)
		}

		if _, err := s.AddScore(ctx, q.QuizID, user.UserID, u.score); err != nil {
			return fmt.Errorf("add score %s: %w", u.name, err)
		}
	}

	slog.InfoContext(ctx, "seed: done", "quiz_id", q.QuizID)
	return nil
}
