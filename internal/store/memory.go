package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/victornm/livequiz/internal/domain"
)

type entryKey struct {
	quizID int64
	userID int64
}

// Memory is a process-local store for development and tests. A single mutex serializes every operation.
type Memory struct {
	mu  sync.Mutex
	now func() time.Time
	seq int64

	quizzes   map[int64]domain.Quiz
	questions map[int64]domain.Question
	users     map[int64]domain.User
	entries   map[entryKey]domain.LeaderboardEntry
}

func NewMemory() *Memory {
	return &Memory{
		now:       time.Now,
		quizzes:   make(map[int64]domain.Quiz),
		questions: make(map[int64]domain.Question),
		users:     make(map[int64]domain.User),
		entries:   make(map[entryKey]domain.LeaderboardEntry),
	}
}

func (*Memory) Migrate(context.Context) error { return nil }

func (*Memory) Ping(context.Context) error { return nil }

func (*Memory) Close() error { return nil }

// nextID must be called with mu held. Ids are unique across tables, increasing in creation order.
func (m *Memory) nextID() int64 {
	m.seq++
	return m.seq
}

func (m *Memory) CreateQuiz(_ context.Context, name string) (*domain.Quiz, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	q := domain.Quiz{
		QuizID:     m.nextID(),
		Name:       name,
		CreateTime: now,
		UpdateTime: now,
	}
	m.quizzes[q.QuizID] = q

	return &q, nil
}

func (m *Memory) GetQuiz(_ context.Context, quizID int64) (*domain.Quiz, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.quizzes[quizID]
	if !ok {
		return nil, ErrQuizNotFound
	}

	return &q, nil
}

func (m *Memory) DeleteQuiz(_ context.Context, quizID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.quizzes[quizID]; !ok {
		return ErrQuizNotFound
	}

	delete(m.quizzes, quizID)
	for id, q := range m.questions {
		if q.QuizID == quizID {
			delete(m.questions, id)
		}
	}
	for k := range m.entries {
		if k.quizID == quizID {
			delete(m.entries, k)
		}
	}

	return nil
}

func (m *Memory) CreateQuestion(_ context.Context, q domain.Question) (*domain.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.quizzes[q.QuizID]; !ok {
		return nil, ErrQuizNotFound
	}

	now := m.now()
	q.QuestionID = m.nextID()
	q.CreateTime, q.UpdateTime = now, now
	m.questions[q.QuestionID] = q

	return &q, nil
}

func (m *Memory) ListQuestions(_ context.Context, quizID int64) ([]domain.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	questions := make([]domain.Question, 0)
	for _, q := range m.questions {
		if q.QuizID == quizID {
			questions = append(questions, q)
		}
	}
	slices.SortFunc(questions, func(a, b domain.Question) int {
		return cmp.Compare(a.QuestionID, b.QuestionID)
	})

	return questions, nil
}

func (m *Memory) CreateUser(_ context.Context, username string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Username == username {
			return nil, fmt.Errorf("%w: username %q", ErrDuplicate, username)
		}
	}

	now := m.now()
	u := domain.User{
		UserID:     m.nextID(),
		Username:   username,
		CreateTime: now,
		UpdateTime: now,
	}
	m.users[u.UserID] = u

	return &u, nil
}

func (m *Memory) GetUser(_ context.Context, userID int64) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}

	return &u, nil
}

func (m *Memory) EnsureEntry(_ context.Context, quizID, userID int64) (*domain.LeaderboardEntry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := entryKey{quizID: quizID, userID: userID}
	if e, ok := m.entries[k]; ok {
		return &e, false, nil
	}

	e, err := m.insertEntry(k, 0)
	if err != nil {
		return nil, false, err
	}

	return e, true, nil
}

func (m *Memory) AddScore(_ context.Context, quizID, userID int64, delta int) (*domain.LeaderboardEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := entryKey{quizID: quizID, userID: userID}
	e, ok := m.entries[k]
	if !ok {
		return m.insertEntry(k, delta)
	}

	e.Score += delta
	e.UpdateTime = m.now()
	m.entries[k] = e

	return &e, nil
}

// insertEntry must be called with mu held.
func (m *Memory) insertEntry(k entryKey, score int) (*domain.LeaderboardEntry, error) {
	if _, ok := m.quizzes[k.quizID]; !ok {
		return nil, ErrQuizNotFound
	}
	if _, ok := m.users[k.userID]; !ok {
		return nil, ErrUserNotFound
	}

	now := m.now()
	e := domain.LeaderboardEntry{
		EntryID:    m.nextID(),
		QuizID:     k.quizID,
		UserID:     k.userID,
		Score:      score,
		CreateTime: now,
		UpdateTime: now,
	}
	m.entries[k] = e

	return &e, nil
}

func (m *Memory) ListStandings(_ context.Context, quizID int64) ([]domain.Standing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := make([]domain.LeaderboardEntry, 0)
	for k, e := range m.entries {
		if k.quizID == quizID {
			entries = append(entries, e)
		}
	}
	slices.SortFunc(entries, func(a, b domain.LeaderboardEntry) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.EntryID, b.EntryID)
	})

	standings := make([]domain.Standing, 0, len(entries))
	for _, e := range entries {
		standings = append(standings, domain.Standing{
			UserID:   e.UserID,
			Username: m.users[e.UserID].Username,
			Score:    e.Score,
		})
	}

	return standings, nil
}
