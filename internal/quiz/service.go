package quiz

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/store"
)

type Store interface {
	CreateQuiz(ctx context.Context, name string) (*domain.Quiz, error)
	GetQuiz(ctx context.Context, quizID int64) (*domain.Quiz, error)
	DeleteQuiz(ctx context.Context, quizID int64) error
	CreateQuestion(ctx context.Context, q domain.Question) (*domain.Question, error)
	ListQuestions(ctx context.Context, quizID int64) ([]domain.Question, error)
}

type Config struct {
	Store Store
}

type Service struct {
	store Store
}

func NewService(c Config) *Service {
	return &Service{
		store: c.Store,
	}
}

// CreateQuizRequest represents a request to create a new quiz.
type CreateQuizRequest struct {
	Name string
}

// CreateQuiz creates a new quiz without questions.
func (s *Service) CreateQuiz(ctx context.Context, req CreateQuizRequest) (*domain.Quiz, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, errors.InvalidArgument("quiz name is required")
	}

	q, err := s.store.CreateQuiz(ctx, name)
	if err != nil {
		return nil, errors.PersistenceFailure(err)
	}

	return q, nil
}

func (s *Service) GetQuiz(ctx context.Context, quizID int64) (*domain.Quiz, error) {
	q, err := s.store.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, storeError(err, quizID)
	}

	return q, nil
}

// DeleteQuiz deletes a quiz together with its questions and leaderboard.
func (s *Service) DeleteQuiz(ctx context.Context, quizID int64) error {
	if err := s.store.DeleteQuiz(ctx, quizID); err != nil {
		return storeError(err, quizID)
	}

	return nil
}

type AddQuestionRequest struct {
	QuizID        int64
	QuestionText  string
	CorrectAnswer string
}

// AddQuestion appends a question to a quiz. The correct answer is kept verbatim, answers are compared exactly.
func (s *Service) AddQuestion(ctx context.Context, req AddQuestionRequest) (*domain.Question, error) {
	if strings.TrimSpace(req.QuestionText) == "" {
		return nil, errors.InvalidArgument("question text is required")
	}
	if req.CorrectAnswer == "" {
		return nil, errors.InvalidArgument("correct answer is required")
	}

	q, err := s.store.CreateQuestion(ctx, domain.Question{
		QuizID:        req.QuizID,
		QuestionText:  req.QuestionText,
		CorrectAnswer: req.CorrectAnswer,
	})
	if err != nil {
		return nil, storeError(err, req.QuizID)
	}

	return q, nil
}

// ListQuestions returns the questions of a quiz in index order. A quiz without questions, or an unknown quiz, has none.
func (s *Service) ListQuestions(ctx context.Context, quizID int64) ([]domain.Question, error) {
	qs, err := s.store.ListQuestions(ctx, quizID)
	if err != nil {
		return nil, errors.PersistenceFailure(err)
	}

	return qs, nil
}

// QuestionAt returns the question at the zero-based index of a quiz.
func (s *Service) QuestionAt(ctx context.Context, quizID int64, index int) (*domain.Question, error) {
	qs, err := s.ListQuestions(ctx, quizID)
	if err != nil {
		return nil, err
	}

	if index < 0 || index >= len(qs) {
		return nil, errors.QuestionNotFound(quizID, index)
	}

	return &qs[index], nil
}

func storeError(err error, quizID int64) error {
	if stderrors.Is(err, store.ErrQuizNotFound) {
		return errors.QuizNotFound(quizID)
	}

	return errors.PersistenceFailure(err)
}
