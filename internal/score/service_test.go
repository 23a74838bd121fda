package score_test

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/event"
	"github.com/victornm/livequiz/internal/leaderboard"
	"github.com/victornm/livequiz/internal/quiz"
	"github.com/victornm/livequiz/internal/score"
	"github.com/victornm/livequiz/internal/store"
)

type fixture struct {
	store       *store.Memory
	redis       *miniredis.Miniredis
	broadcaster *recordingBroadcaster
	service     *score.Service

	// failStandings makes the leaderboard reads from the store fail.
	failStandings atomic.Bool

	quizID int64
	user1  int64
	user2  int64
}

// newFixture seeds one quiz with the questions "joyful" and "slow", and two users without entries.
// wrap, if given, decorates the store seen by the scoring service.
func newFixture(t *testing.T, wrap func(*store.Memory) score.Store) *fixture {
	ctx := context.Background()

	f := &fixture{
		store:       store.NewMemory(),
		redis:       miniredis.RunT(t),
		broadcaster: &recordingBroadcaster{},
	}
	var st score.Store = f.store
	if wrap != nil {
		st = wrap(f.store)
	}

	q, err := f.store.CreateQuiz(ctx, "English Vocabulary Quiz")
	require.NoError(t, err)
	f.quizID = q.QuizID

	for _, qs := range []domain.Question{
		{QuizID: q.QuizID, QuestionText: `What is the synonym of "happy"?`, CorrectAnswer: "joyful"},
		{QuizID: q.QuizID, QuestionText: `What is the antonym of "fast"?`, CorrectAnswer: "slow"},
	} {
		_, err := f.store.CreateQuestion(ctx, qs)
		require.NoError(t, err)
	}

	u1, err := f.store.CreateUser(ctx, "user1")
	require.NoError(t, err)
	u2, err := f.store.CreateUser(ctx, "user2")
	require.NoError(t, err)
	f.user1, f.user2 = u1.UserID, u2.UserID

	rc := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{f.redis.Addr()}})
	t.Cleanup(func() { rc.Close() })

	eb := event.NewBus()
	t.Cleanup(eb.Stop)

	f.service = score.NewService(score.Config{
		EventBus:  eb,
		Store:     st,
		Questions: quiz.NewService(quiz.Config{Store: f.store}),
		Leaderboard: leaderboard.NewService(leaderboard.Config{
			Store:  standingsStore{Memory: f.store, fail: &f.failStandings},
			Redis:  rc,
			Prefix: "test",
		}),
		Broadcaster: f.broadcaster,
	})

	return f
}

func TestService_Join(t *testing.T) {
	ctx := context.Background()

	tests := map[string]struct {
		arrange func(t *testing.T, f *fixture) score.JoinRequest
		assert  func(t *testing.T, f *fixture, resp *score.JoinResponse, err error)
	}{
		"first join should create an entry with score 0": {
			arrange: func(t *testing.T, f *fixture) score.JoinRequest {
				return score.JoinRequest{QuizID: f.quizID, UserID: f.user1}
			},
			assert: func(t *testing.T, f *fixture, resp *score.JoinResponse, err error) {
				require.NoError(t, err)
				require.True(t, resp.Created)
				require.Equal(t, 0, resp.Entry.Score)
				require.Empty(t, f.broadcaster.snapshots(), "join is acknowledged to the sender only")
			},
		},

		"joining again should not reset the score": {
			arrange: func(t *testing.T, f *fixture) score.JoinRequest {
				req := score.JoinRequest{QuizID: f.quizID, UserID: f.user1}
				_, err := f.service.Join(ctx, req)
				require.NoError(t, err)

				_, err = f.service.SubmitAnswer(ctx, score.SubmitAnswerRequest{QuizID: f.quizID, UserID: f.user1, Answer: "joyful"})
				require.NoError(t, err)
				return req
			},
			assert: func(t *testing.T, f *fixture, resp *score.JoinResponse, err error) {
				require.NoError(t, err)
				require.False(t, resp.Created)
				require.Equal(t, 10, resp.Entry.Score)

				standings, err := f.store.ListStandings(ctx, f.quizID)
				require.NoError(t, err)
				require.Len(t, standings, 1)
			},
		},

		"unknown quiz": {
			arrange: func(t *testing.T, f *fixture) score.JoinRequest {
				return score.JoinRequest{QuizID: 999, UserID: f.user1}
			},
			assert: func(t *testing.T, f *fixture, resp *score.JoinResponse, err error) {
				require.Equal(t, errors.ReasonQuizNotFound, errors.ReasonOf(err))
				require.Contains(t, err.Error(), "quiz_id=999")
			},
		},

		"unknown user": {
			arrange: func(t *testing.T, f *fixture) score.JoinRequest {
				return score.JoinRequest{QuizID: f.quizID, UserID: 999}
			},
			assert: func(t *testing.T, f *fixture, resp *score.JoinResponse, err error) {
				require.Equal(t, errors.ReasonUserNotFound, errors.ReasonOf(err))

				standings, err := f.store.ListStandings(ctx, f.quizID)
				require.NoError(t, err)
				require.Empty(t, standings)
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, nil)
			req := tt.arrange(t, f)
			resp, err := f.service.Join(ctx, req)
			tt.assert(t, f, resp, err)
		})
	}
}

func TestService_SubmitAnswer(t *testing.T) {
	ctx := context.Background()

	tests := map[string]struct {
		arrange func(t *testing.T, f *fixture) score.SubmitAnswerRequest
		assert  func(t *testing.T, f *fixture, resp *score.SubmitAnswerResponse, err error)
	}{
		"a correct answer should add 10 and broadcast the standings": {
			arrange: func(t *testing.T, f *fixture) score.SubmitAnswerRequest {
				return score.SubmitAnswerRequest{QuizID: f.quizID, UserID: f.user1, Answer: "joyful", QuestionIndex: 0}
			},
			assert: func(t *testing.T, f *fixture, resp *score.SubmitAnswerResponse, err error) {
				require.NoError(t, err)
				require.True(t, resp.Correct)
				require.Equal(t, 10, resp.Delta)
				require.Equal(t, 10, resp.Entry.Score)

				snaps := f.broadcaster.snapshots()
				require.Len(t, snaps, 1)
				require.Equal(t, f.quizID, snaps[0].QuizID)
				require.Equal(t, []domain.Standing{{UserID: f.user1, Username: "user1", Score: 10}}, snaps[0].Standings)
			},
		},

		"answers should be compared case sensitively": {
			arrange: func(t *testing.T, f *fixture) score.SubmitAnswerRequest {
				return score.SubmitAnswerRequest{QuizID: f.quizID, UserID: f.user1, Answer: "Joyful", QuestionIndex: 0}
			},
			assert: func(t *testing.T, f *fixture, resp *score.SubmitAnswerResponse, err error) {
				require.NoError(t, err)
				require.False(t, resp.Correct)
				require.Equal(t, 0, resp.Delta)
				require.Equal(t, 0, resp.Entry.Score)
				require.Len(t, f.broadcaster.snapshots(), 1, "a wrong answer is still recorded and broadcast")
			},
		},

		"submitting without joining should create the entry": {
			arrange: func(t *testing.T, f *fixture) score.SubmitAnswerRequest {
				return score.SubmitAnswerRequest{QuizID: f.quizID, UserID: f.user2, Answer: "slow", QuestionIndex: 1}
			},
			assert: func(t *testing.T, f *fixture, resp *score.SubmitAnswerResponse, err error) {
				require.NoError(t, err)
				require.Equal(t, 10, resp.Entry.Score)
			},
		},

		"an index past the end should not touch the standings": {
			arrange: func(t *testing.T, f *fixture) score.SubmitAnswerRequest {
				return score.SubmitAnswerRequest{QuizID: f.quizID, UserID: f.user1, Answer: "joyful", QuestionIndex: 2}
			},
			assert: func(t *testing.T, f *fixture, resp *score.SubmitAnswerResponse, err error) {
				require.Equal(t, errors.ReasonInvalidIndex, errors.ReasonOf(err))
				require.Equal(t, 400, errors.Convert(err).HTTPStatusCode())
				require.Empty(t, f.broadcaster.snapshots())

				standings, err := f.store.ListStandings(ctx, f.quizID)
				require.NoError(t, err)
				require.Empty(t, standings)
			},
		},

		"a negative index is invalid": {
			arrange: func(t *testing.T, f *fixture) score.SubmitAnswerRequest {
				return score.SubmitAnswerRequest{QuizID: f.quizID, UserID: f.user1, Answer: "joyful", QuestionIndex: -1}
			},
			assert: func(t *testing.T, f *fixture, resp *score.SubmitAnswerResponse, err error) {
				require.Equal(t, errors.ReasonInvalidIndex, errors.ReasonOf(err))
			},
		},

		"a quiz without questions has no valid index": {
			arrange: func(t *testing.T, f *fixture) score.SubmitAnswerRequest {
				q, err := f.store.CreateQuiz(ctx, "Empty")
				require.NoError(t, err)
				return score.SubmitAnswerRequest{QuizID: q.QuizID, UserID: f.user1, Answer: "joyful", QuestionIndex: 0}
			},
			assert: func(t *testing.T, f *fixture, resp *score.SubmitAnswerResponse, err error) {
				require.Equal(t, errors.ReasonInvalidIndex, errors.ReasonOf(err))
			},
		},

		"unknown quiz": {
			arrange: func(t *testing.T, f *fixture) score.SubmitAnswerRequest {
				return score.SubmitAnswerRequest{QuizID: 999, UserID: f.user1, Answer: "joyful", QuestionIndex: 0}
			},
			assert: func(t *testing.T, f *fixture, resp *score.SubmitAnswerResponse, err error) {
				require.Equal(t, errors.ReasonQuizNotFound, errors.ReasonOf(err))
				require.Empty(t, f.broadcaster.snapshots())
			},
		},

		"unknown user": {
			arrange: func(t *testing.T, f *fixture) score.SubmitAnswerRequest {
				return score.SubmitAnswerRequest{QuizID: f.quizID, UserID: 999, Answer: "joyful", QuestionIndex: 0}
			},
			assert: func(t *testing.T, f *fixture, resp *score.SubmitAnswerResponse, err error) {
				require.Equal(t, errors.ReasonUserNotFound, errors.ReasonOf(err))
				require.Empty(t, f.broadcaster.snapshots())
			},
		},

		"a stale cached leaderboard should not be broadcast after a write": {
			arrange: func(t *testing.T, f *fixture) score.SubmitAnswerRequest {
				_, err := f.service.SubmitAnswer(ctx, score.SubmitAnswerRequest{QuizID: f.quizID, UserID: f.user1, Answer: "joyful"})
				require.NoError(t, err)
				require.True(t, f.redis.Exists("test:leaderboard:1"))

				return score.SubmitAnswerRequest{QuizID: f.quizID, UserID: f.user1, Answer: "slow", QuestionIndex: 1}
			},
			assert: func(t *testing.T, f *fixture, resp *score.SubmitAnswerResponse, err error) {
				require.NoError(t, err)
				snaps := f.broadcaster.snapshots()
				require.Len(t, snaps, 2)
				require.Equal(t, 20, snaps[1].Standings[0].Score)
			},
		},

		"a leaderboard read failure after the write should keep the score and skip the broadcast": {
			arrange: func(t *testing.T, f *fixture) score.SubmitAnswerRequest {
				f.redis.SetError("LOADING Redis is loading the dataset in memory")
				f.failStandings.Store(true)
				return score.SubmitAnswerRequest{QuizID: f.quizID, UserID: f.user1, Answer: "joyful", QuestionIndex: 0}
			},
			assert: func(t *testing.T, f *fixture, resp *score.SubmitAnswerResponse, err error) {
				require.NoError(t, err)
				require.Equal(t, 10, resp.Entry.Score)
				require.Nil(t, resp.Leaderboard)
				require.Empty(t, f.broadcaster.snapshots())

				f.failStandings.Store(false)
				standings, err := f.store.ListStandings(ctx, f.quizID)
				require.NoError(t, err)
				require.Equal(t, 10, standings[0].Score)
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, nil)
			req := tt.arrange(t, f)
			resp, err := f.service.SubmitAnswer(ctx, req)
			tt.assert(t, f, resp, err)
		})
	}
}

func TestService_SubmitAnswer_PersistenceFailure(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t, func(m *store.Memory) score.Store { return failingStore{Memory: m} })

	_, err := f.service.SubmitAnswer(ctx, score.SubmitAnswerRequest{QuizID: f.quizID, UserID: f.user1, Answer: "joyful"})
	require.Equal(t, errors.ReasonPersistenceFailure, errors.ReasonOf(err))
	require.Equal(t, 500, errors.Convert(err).HTTPStatusCode())
	require.Empty(t, f.broadcaster.snapshots(), "nothing is broadcast when the write failed")
}

func TestService_SubmitAnswer_Concurrent(t *testing.T) {
	const n = 50

	ctx := context.Background()
	f := newFixture(t, nil)

	var eg errgroup.Group
	for range n {
		eg.Go(func() error {
			_, err := f.service.SubmitAnswer(ctx, score.SubmitAnswerRequest{
				QuizID:        f.quizID,
				UserID:        f.user1,
				Answer:        "joyful",
				QuestionIndex: 0,
			})
			return err
		})
	}
	require.NoError(t, eg.Wait())

	standings, err := f.store.ListStandings(ctx, f.quizID)
	require.NoError(t, err)
	require.Len(t, standings, 1)
	require.Equal(t, n*domain.PointsPerCorrectAnswer, standings[0].Score)
	require.Len(t, f.broadcaster.snapshots(), n)
}

func TestService_Scenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	_, err := f.service.Join(ctx, score.JoinRequest{QuizID: f.quizID, UserID: f.user1})
	require.NoError(t, err)
	_, err = f.service.Join(ctx, score.JoinRequest{QuizID: f.quizID, UserID: f.user2})
	require.NoError(t, err)

	_, err = f.service.SubmitAnswer(ctx, score.SubmitAnswerRequest{QuizID: f.quizID, UserID: f.user1, Answer: "joyful", QuestionIndex: 0})
	require.NoError(t, err)
	_, err = f.service.SubmitAnswer(ctx, score.SubmitAnswerRequest{QuizID: f.quizID, UserID: f.user2, Answer: "fast", QuestionIndex: 1})
	require.NoError(t, err)
	resp, err := f.service.SubmitAnswer(ctx, score.SubmitAnswerRequest{QuizID: f.quizID, UserID: f.user1, Answer: "slow", QuestionIndex: 1})
	require.NoError(t, err)

	assert.Equal(t, []domain.Standing{
		{UserID: f.user1, Username: "user1", Score: 20},
		{UserID: f.user2, Username: "user2", Score: 0},
	}, resp.Leaderboard.Standings)

	snaps := f.broadcaster.snapshots()
	require.Len(t, snaps, 3)
	assert.Equal(t, resp.Leaderboard.Standings, snaps[2].Standings)
}

type recordingBroadcaster struct {
	mu   sync.Mutex
	sent []domain.Leaderboard
}

func (b *recordingBroadcaster) Broadcast(_ context.Context, l domain.Leaderboard) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, l)
}

func (b *recordingBroadcaster) snapshots() []domain.Leaderboard {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.Leaderboard(nil), b.sent...)
}

type failingStore struct {
	*store.Memory
}

func (failingStore) AddScore(context.Context, int64, int64, int) (*domain.LeaderboardEntry, error) {
	return nil, stderrors.New("connection refused")
}

type standingsStore struct {
	*store.Memory
	fail *atomic.Bool
}

func (s standingsStore) ListStandings(ctx context.Context, quizID int64) ([]domain.Standing, error) {
	if s.fail.Load() {
		return nil, stderrors.New("connection refused")
	}
	return s.Memory.ListStandings(ctx, quizID)
}
