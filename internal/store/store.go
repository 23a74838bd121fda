// Package store persists quizzes, questions, users and leaderboard entries.
//
// Leaderboard entries are unique per (quiz, user) and their score is only ever changed
// through AddScore, which is an atomic update-or-create in every driver.
package store

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/victornm/livequiz/internal/domain"
)

var (
	ErrQuizNotFound = stderrors.New("store: quiz not found")
	ErrUserNotFound = stderrors.New("store: user not found")
	ErrDuplicate    = stderrors.New("store: duplicate")
)

const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverMemory   = "memory"
)

type Store interface {
	CreateQuiz(ctx context.Context, name string) (*domain.Quiz, error)
	GetQuiz(ctx context.Context, quizID int64) (*domain.Quiz, error)
	// DeleteQuiz removes the quiz with its questions and leaderboard entries.
	DeleteQuiz(ctx context.Context, quizID int64) error

	CreateQuestion(ctx context.Context, q domain.Question) (*domain.Question, error)
	// ListQuestions returns the questions of a quiz by ascending id. An unknown quiz has no questions.
	ListQuestions(ctx context.Context, quizID int64) ([]domain.Question, error)

	CreateUser(ctx context.Context, username string) (*domain.User, error)
	GetUser(ctx context.Context, userID int64) (*domain.User, error)

	// EnsureEntry creates the (quiz, user) entry with score 0 unless it exists. An existing score is never reset.
	EnsureEntry(ctx context.Context, quizID, userID int64) (entry *domain.LeaderboardEntry, created bool, err error)
	// AddScore atomically adds delta to the (quiz, user) entry, creating it with score delta if absent.
	AddScore(ctx context.Context, quizID, userID int64, delta int) (*domain.LeaderboardEntry, error)
	// ListStandings returns the entries of a quiz joined with their users, by score descending.
	ListStandings(ctx context.Context, quizID int64) ([]domain.Standing, error)

	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

type Config struct {
	Driver string

	Postgres struct {
		Addr string
		User string
		Pass string
		Name string
	}

	MySQL struct {
		Addr string
		User string
		Pass string
		Name string
	}

	// Migrate creates the schema on start.
	Migrate bool
}

// Open connects to the store selected by c.Driver.
func Open(ctx context.Context, c Config) (Store, error) {
	var (
		s   Store
		err error
	)

	switch c.Driver {
	case DriverPostgres, "":
		s, err = OpenPostgres(ctx, c.Postgres.Addr, c.Postgres.User, c.Postgres.Pass, c.Postgres.Name)
	case DriverMySQL:
		s, err = OpenMySQL(ctx, c.MySQL.Addr, c.MySQL.User, c.MySQL.Pass, c.MySQL.Name)
	case DriverMemory:
		s = NewMemory()
	default:
		return nil, fmt.Errorf("store: unknown driver %q", c.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("store: %s: %w", c.Driver, err)
	}

	if c.Migrate {
		if err := s.Migrate(ctx); err != nil {
			return nil, stderrors.Join(fmt.Errorf("store: migrate: %w", err), s.Close())
		}
	}

	return s, nil
}
