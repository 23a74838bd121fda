package score

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/event"
	"github.com/victornm/livequiz/internal/leaderboard"
	"github.com/victornm/livequiz/internal/store"
	"github.com/victornm/livequiz/internal/telemetry"
)

type Store interface {
	GetQuiz(ctx context.Context, quizID int64) (*domain.Quiz, error)
	GetUser(ctx context.Context, userID int64) (*domain.User, error)
	EnsureEntry(ctx context.Context, quizID, userID int64) (*domain.LeaderboardEntry, bool, error)
	AddScore(ctx context.Context, quizID, userID int64, delta int) (*domain.LeaderboardEntry, error)
}

type Questions interface {
	ListQuestions(ctx context.Context, quizID int64) ([]domain.Question, error)
}

type Leaderboard interface {
	GetLeaderboard(ctx context.Context, req leaderboard.GetLeaderboardRequest) (*domain.Leaderboard, error)
	Invalidate(ctx context.Context, quizID int64) error
}

// Broadcaster delivers a leaderboard snapshot to the connected clients. Delivery is best effort.
type Broadcaster interface {
	Broadcast(ctx context.Context, l domain.Leaderboard)
}

type Config struct {
	EventBus    *event.Bus
	Store       Store
	Questions   Questions
	Leaderboard Leaderboard
	Broadcaster Broadcaster
}

type Service struct {
	eb          *event.Bus
	store       Store
	questions   Questions
	leaderboard Leaderboard
	broadcaster Broadcaster
}

func NewService(c Config) *Service {
	return &Service{
		eb:          c.EventBus,
		store:       c.Store,
		questions:   c.Questions,
		leaderboard: c.Leaderboard,
		broadcaster: c.Broadcaster,
	}
}

type JoinRequest struct {
	QuizID int64
	UserID int64
}

type JoinResponse struct {
	Entry   domain.LeaderboardEntry
	Created bool
}

// Join enrolls a user in a quiz with score 0. Joining again returns the existing entry untouched.
func (s *Service) Join(ctx context.Context, req JoinRequest) (*JoinResponse, error) {
	if _, err := s.store.GetQuiz(ctx, req.QuizID); err != nil {
		return nil, storeError(err, req)
	}

	if _, err := s.store.GetUser(ctx, req.UserID); err != nil {
		return nil, storeError(err, req)
	}

	entry, created, err := s.store.EnsureEntry(ctx, req.QuizID, req.UserID)
	if err != nil {
		return nil, storeError(err, req)
	}

	s.eb.Publish(ctx, domain.EventQuizJoined{
		Entry:   *entry,
		Created: created,
	})

	return &JoinResponse{
		Entry:   *entry,
		Created: created,
	}, nil
}

type SubmitAnswerRequest struct {
	QuizID        int64
	UserID        int64
	Answer        string
	QuestionIndex int
}

type SubmitAnswerResponse struct {
	Correct bool
	Delta   int
	Entry   domain.LeaderboardEntry

	// Leaderboard is nil when the standings could not be read back after the score was saved.
	Leaderboard *domain.Leaderboard
}

// SubmitAnswer scores an answer to the question at the given index and broadcasts the new standings.
// A correct answer is worth domain.PointsPerCorrectAnswer, anything else scores 0 but is still recorded.
func (s *Service) SubmitAnswer(ctx context.Context, req SubmitAnswerRequest) (*SubmitAnswerResponse, error) {
	resp, err := s.submitAnswer(ctx, req)
	if err != nil {
		telemetry.SubmissionsTotal.WithLabelValues(errors.Convert(err).Reason).Inc()
		return nil, err
	}

	if resp.Correct {
		telemetry.SubmissionsTotal.WithLabelValues("correct").Inc()
	} else {
		telemetry.SubmissionsTotal.WithLabelValues("incorrect").Inc()
	}

	return resp, nil
}

func (s *Service) submitAnswer(ctx context.Context, req SubmitAnswerRequest) (*SubmitAnswerResponse, error) {
	questions, err := s.questions.ListQuestions(ctx, req.QuizID)
	if err != nil {
		return nil, errors.PersistenceFailure(fmt.Errorf("list questions: quiz=%d: %w", req.QuizID, err))
	}

	// An unknown quiz lists no questions, tell it apart from an empty one.
	if len(questions) == 0 {
		if _, err := s.store.GetQuiz(ctx, req.QuizID); err != nil {
			return nil, storeError(err, JoinRequest{QuizID: req.QuizID, UserID: req.UserID})
		}
	}

	if req.QuestionIndex < 0 || req.QuestionIndex >= len(questions) {
		return nil, errors.InvalidIndex(req.QuestionIndex, len(questions))
	}

	var delta int
	correct := req.Answer == questions[req.QuestionIndex].CorrectAnswer
	if correct {
		delta = domain.PointsPerCorrectAnswer
	}

	entry, err := s.store.AddScore(ctx, req.QuizID, req.UserID, delta)
	if err != nil {
		return nil, storeError(err, JoinRequest{QuizID: req.QuizID, UserID: req.UserID})
	}

	resp := &SubmitAnswerResponse{
		Correct: correct,
		Delta:   delta,
		Entry:   *entry,
	}

	// The score is saved from here on, failures only cost the broadcast.
	if err := s.leaderboard.Invalidate(ctx, req.QuizID); err != nil {
		slog.WarnContext(ctx, "score: invalidate leaderboard failed", "quiz_id", req.QuizID, "error", err)
	}

	l, err := s.leaderboard.GetLeaderboard(ctx, leaderboard.GetLeaderboardRequest{QuizID: req.QuizID})
	if err != nil {
		slog.ErrorContext(ctx, "score: read leaderboard failed, broadcast skipped",
			"quiz_id", req.QuizID,
			"user_id", req.UserID,
			"error", err,
		)
		return resp, nil
	}

	resp.Leaderboard = l

	s.broadcaster.Broadcast(ctx, *l)
	s.eb.Publish(ctx, domain.EventLeaderboardUpdated{
		Leaderboard: *l,
	})

	return resp, nil
}

func storeError(err error, req JoinRequest) error {
	switch {
	case stderrors.Is(err, store.ErrQuizNotFound):
		return errors.QuizNotFound(req.QuizID)
	case stderrors.Is(err, store.ErrUserNotFound):
		return errors.UserNotFound(req.UserID)
	default:
		return errors.PersistenceFailure(err)
	}
}
