package store_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/store"
)

func TestMemory(t *testing.T) {
	testStore(t, func(t *testing.T) store.Store {
		return store.NewMemory()
	})
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := store.Open(context.Background(), store.Config{Driver: "sqlite"})
	require.ErrorContains(t, err, `unknown driver "sqlite"`)
}

func TestOpen_Memory(t *testing.T) {
	s, err := store.Open(context.Background(), store.Config{Driver: store.DriverMemory, Migrate: true})
	require.NoError(t, err)
	require.NoError(t, s.Ping(context.Background()))
	require.NoError(t, s.Close())
}

// testStore runs the behavior every driver must provide. makeStore may share a database between
// subtests, so subtests create their own quizzes and users with unique names.
func testStore(t *testing.T, makeStore func(t *testing.T) store.Store) {
	ctx := context.Background()

	t.Run("questions are listed by ascending id", func(t *testing.T) {
		s := makeStore(t)
		q := createQuiz(t, s)

		texts := []string{"What is the synonym of 'happy'?", "What is the antonym of 'fast'?", "Plural of 'mouse'?"}
		for _, text := range texts {
			_, err := s.CreateQuestion(ctx, domain.Question{QuizID: q.QuizID, QuestionText: text, CorrectAnswer: "x"})
			require.NoError(t, err)
		}

		got, err := s.ListQuestions(ctx, q.QuizID)
		require.NoError(t, err)
		require.Len(t, got, len(texts))
		for i := range got {
			assert.Equal(t, texts[i], got[i].QuestionText)
			if i > 0 {
				assert.Greater(t, got[i].QuestionID, got[i-1].QuestionID)
			}
		}
	})

	t.Run("question of unknown quiz", func(t *testing.T) {
		s := makeStore(t)

		_, err := s.CreateQuestion(ctx, domain.Question{QuizID: 1 << 30, QuestionText: "q", CorrectAnswer: "a"})
		require.ErrorIs(t, err, store.ErrQuizNotFound)

		got, err := s.ListQuestions(ctx, 1<<30)
		require.NoError(t, err)
		require.Empty(t, got)
	})

	t.Run("get missing quiz and user", func(t *testing.T) {
		s := makeStore(t)

		_, err := s.GetQuiz(ctx, 1<<30)
		require.ErrorIs(t, err, store.ErrQuizNotFound)

		_, err = s.GetUser(ctx, 1<<30)
		require.ErrorIs(t, err, store.ErrUserNotFound)
	})

	t.Run("duplicate username", func(t *testing.T) {
		s := makeStore(t)
		u := createUser(t, s)

		_, err := s.CreateUser(ctx, u.Username)
		require.ErrorIs(t, err, store.ErrDuplicate)
	})

	t.Run("ensure entry never resets the score", func(t *testing.T) {
		s := makeStore(t)
		q, u := createQuiz(t, s), createUser(t, s)

		e, created, err := s.EnsureEntry(ctx, q.QuizID, u.UserID)
		require.NoError(t, err)
		require.True(t, created)
		require.Zero(t, e.Score)

		_, err = s.AddScore(ctx, q.QuizID, u.UserID, 10)
		require.NoError(t, err)

		e, created, err = s.EnsureEntry(ctx, q.QuizID, u.UserID)
		require.NoError(t, err)
		require.False(t, created)
		require.Equal(t, 10, e.Score)

		standings, err := s.ListStandings(ctx, q.QuizID)
		require.NoError(t, err)
		require.Len(t, standings, 1)
	})

	t.Run("ensure entry for missing quiz or user", func(t *testing.T) {
		s := makeStore(t)
		q, u := createQuiz(t, s), createUser(t, s)

		_, _, err := s.EnsureEntry(ctx, 1<<30, u.UserID)
		require.ErrorIs(t, err, store.ErrQuizNotFound)

		_, _, err = s.EnsureEntry(ctx, q.QuizID, 1<<30)
		require.ErrorIs(t, err, store.ErrUserNotFound)
	})

	t.Run("add score creates the entry", func(t *testing.T) {
		s := makeStore(t)
		q, u := createQuiz(t, s), createUser(t, s)

		e, err := s.AddScore(ctx, q.QuizID, u.UserID, 10)
		require.NoError(t, err)
		require.Equal(t, 10, e.Score)

		e, err = s.AddScore(ctx, q.QuizID, u.UserID, 0)
		require.NoError(t, err)
		require.Equal(t, 10, e.Score)

		_, err = s.AddScore(ctx, q.QuizID, 1<<30, 10)
		require.ErrorIs(t, err, store.ErrUserNotFound)
	})

	t.Run("concurrent additions are not lost", func(t *testing.T) {
		s := makeStore(t)
		q, u := createQuiz(t, s), createUser(t, s)

		const n = 50
		var eg errgroup.Group
		for range n {
			eg.Go(func() error {
				_, err := s.AddScore(ctx, q.QuizID, u.UserID, domain.PointsPerCorrectAnswer)
				return err
			})
		}
		require.NoError(t, eg.Wait())

		standings, err := s.ListStandings(ctx, q.QuizID)
		require.NoError(t, err)
		require.Equal(t, []domain.Standing{{UserID: u.UserID, Username: u.Username, Score: n * domain.PointsPerCorrectAnswer}}, standings)
	})

	t.Run("standings are sorted by score descending", func(t *testing.T) {
		s := makeStore(t)
		q := createQuiz(t, s)

		scores := []int{10, 30, 0, 20}
		for _, sc := range scores {
			u := createUser(t, s)
			_, err := s.AddScore(ctx, q.QuizID, u.UserID, sc)
			require.NoError(t, err)
		}

		standings, err := s.ListStandings(ctx, q.QuizID)
		require.NoError(t, err)
		require.Len(t, standings, len(scores))

		got := make([]int, 0, len(standings))
		for _, st := range standings {
			got = append(got, st.Score)
		}
		require.Equal(t, []int{30, 20, 10, 0}, got)
	})

	t.Run("delete quiz cascades", func(t *testing.T) {
		s := makeStore(t)
		q, u := createQuiz(t, s), createUser(t, s)

		_, err := s.CreateQuestion(ctx, domain.Question{QuizID: q.QuizID, QuestionText: "q", CorrectAnswer: "a"})
		require.NoError(t, err)
		_, err = s.AddScore(ctx, q.QuizID, u.UserID, 10)
		require.NoError(t, err)

		require.NoError(t, s.DeleteQuiz(ctx, q.QuizID))
		require.ErrorIs(t, s.DeleteQuiz(ctx, q.QuizID), store.ErrQuizNotFound)

		questions, err := s.ListQuestions(ctx, q.QuizID)
		require.NoError(t, err)
		require.Empty(t, questions)

		standings, err := s.ListStandings(ctx, q.QuizID)
		require.NoError(t, err)
		require.Empty(t, standings)

		_, err = s.GetUser(ctx, u.UserID)
		require.NoError(t, err, "users survive the deletion of a quiz")
	})
}

func createQuiz(t *testing.T, s store.Store) *domain.Quiz {
	t.Helper()

	q, err := s.CreateQuiz(context.Background(), "English Vocabulary Quiz")
	require.NoError(t, err)
	return q
}

func createUser(t *testing.T, s store.Store) *domain.User {
	t.Helper()

	u, err := s.CreateUser(context.Background(), fmt.Sprintf("user-%s", uuid.NewString()[:8]))
	require.NoError(t, err)
	return u
}
