package store

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/livequiz/internal/domain"
)

const (
	pgCodeUniqueViolation     = "23505"
	pgCodeForeignKeyViolation = "23503"
)

type Postgres struct {
	db *pgxpool.Pool
}

func OpenPostgres(ctx context.Context, addr, user, pass, name string) (*Postgres, error) {
	cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s", user, pass, addr, name))
	if err != nil {
		return nil, err
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return &Postgres{db: db}, nil
}

// NewPostgres wraps an existing pool.
func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Migrate(ctx context.Context) (err error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	for _, stmt := range postgresSchema {
		if _, err = tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
	}

	return tx.Commit(ctx)
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.Ping(ctx)
}

func (p *Postgres) Close() error {
	p.db.Close()
	return nil
}

func (p *Postgres) CreateQuiz(ctx context.Context, name string) (*domain.Quiz, error) {
	const stmt = `INSERT INTO quiz (name) VALUES ($1) RETURNING quiz_id, name, created_at, updated_at;`

	var q domain.Quiz
	if err := p.db.QueryRow(ctx, stmt, name).Scan(&q.QuizID, &q.Name, &q.CreateTime, &q.UpdateTime); err != nil {
		return nil, fmt.Errorf("insert quiz: %w", err)
	}

	return &q, nil
}

func (p *Postgres) GetQuiz(ctx context.Context, quizID int64) (*domain.Quiz, error) {
	const stmt = `SELECT quiz_id, name, created_at, updated_at FROM quiz WHERE quiz_id = $1;`

	var q domain.Quiz
	err := p.db.QueryRow(ctx, stmt, quizID).Scan(&q.QuizID, &q.Name, &q.CreateTime, &q.UpdateTime)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, ErrQuizNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select quiz: %w", err)
	}

	return &q, nil
}

func (p *Postgres) DeleteQuiz(ctx context.Context, quizID int64) error {
	tag, err := p.db.Exec(ctx, `DELETE FROM quiz WHERE quiz_id = $1;`, quizID)
	if err != nil {
		return fmt.Errorf("delete quiz: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrQuizNotFound
	}

	return nil
}

func (p *Postgres) CreateQuestion(ctx context.Context, q domain.Question) (*domain.Question, error) {
	const stmt = `
INSERT INTO question (quiz_id, question_text, correct_answer)
VALUES ($1, $2, $3)
RETURNING question_id, created_at, updated_at;`

	err := p.db.QueryRow(ctx, stmt, q.QuizID, q.QuestionText, q.CorrectAnswer).Scan(&q.QuestionID, &q.CreateTime, &q.UpdateTime)

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && pgErr.Code == pgCodeForeignKeyViolation {
		return nil, ErrQuizNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("insert question: %w", err)
	}

	return &q, nil
}

func (p *Postgres) ListQuestions(ctx context.Context, quizID int64) ([]domain.Question, error) {
	const stmt = `
SELECT question_id, quiz_id, question_text, correct_answer, created_at, updated_at
FROM question
WHERE quiz_id = $1
ORDER BY question_id ASC;`

	rows, err := p.db.Query(ctx, stmt, quizID)
	if err != nil {
		return nil, fmt.Errorf("select questions: %w", err)
	}

	questions, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Question, error) {
		var q domain.Question
		err := r.Scan(&q.QuestionID, &q.QuizID, &q.QuestionText, &q.CorrectAnswer, &q.CreateTime, &q.UpdateTime)
		return q, err
	})
	if err != nil {
		return nil, fmt.Errorf("collect questions: %w", err)
	}

	return questions, nil
}

func (p *Postgres) CreateUser(ctx context.Context, username string) (*domain.User, error) {
	const stmt = `INSERT INTO "user" (username) VALUES ($1) RETURNING user_id, username, created_at, updated_at;`

	var u domain.User
	err := p.db.QueryRow(ctx, stmt, username).Scan(&u.UserID, &u.Username, &u.CreateTime, &u.UpdateTime)

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && pgErr.Code == pgCodeUniqueViolation {
		return nil, fmt.Errorf("%w: username %q", ErrDuplicate, username)
	}
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	return &u, nil
}

func (p *Postgres) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	const stmt = `SELECT user_id, username, created_at, updated_at FROM "user" WHERE user_id = $1;`

	var u domain.User
	err := p.db.QueryRow(ctx, stmt, userID).Scan(&u.UserID, &u.Username, &u.CreateTime, &u.UpdateTime)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}

	return &u, nil
}

func (p *Postgres) EnsureEntry(ctx context.Context, quizID, userID int64) (*domain.LeaderboardEntry, bool, error) {
	const insStmt = `
INSERT INTO leaderboard (quiz_id, user_id)
VALUES ($1, $2)
ON CONFLICT (quiz_id, user_id) DO NOTHING
RETURNING leaderboard_id, quiz_id, user_id, score, created_at, updated_at;`

	e, err := scanEntry(p.db.QueryRow(ctx, insStmt, quizID, userID))
	if err == nil {
		return e, true, nil
	}
	if !stderrors.Is(err, pgx.ErrNoRows) {
		return nil, false, entryError("insert entry", err)
	}

	// The entry already exists, possibly inserted by a concurrent join.
	const selStmt = `
SELECT leaderboard_id, quiz_id, user_id, score, created_at, updated_at
FROM leaderboard
WHERE quiz_id = $1 AND user_id = $2;`

	e, err = scanEntry(p.db.QueryRow(ctx, selStmt, quizID, userID))
	if err != nil {
		return nil, false, fmt.Errorf("select entry: %w", err)
	}

	return e, false, nil
}

func (p *Postgres) AddScore(ctx context.Context, quizID, userID int64, delta int) (*domain.LeaderboardEntry, error) {
	const stmt = `
INSERT INTO leaderboard (quiz_id, user_id, score)
VALUES ($1, $2, $3)
ON CONFLICT (quiz_id, user_id) DO UPDATE
SET score = leaderboard.score + EXCLUDED.score, updated_at = now()
RETURNING leaderboard_id, quiz_id, user_id, score, created_at, updated_at;`

	e, err := scanEntry(p.db.QueryRow(ctx, stmt, quizID, userID, delta))
	if err != nil {
		return nil, entryError("upsert entry", err)
	}

	return e, nil
}

func (p *Postgres) ListStandings(ctx context.Context, quizID int64) ([]domain.Standing, error) {
	const stmt = `
SELECT l.user_id, u.username, l.score
FROM leaderboard l
JOIN "user" u ON u.user_id = l.user_id
WHERE l.quiz_id = $1
ORDER BY l.score DESC, l.leaderboard_id ASC;`

	rows, err := p.db.Query(ctx, stmt, quizID)
	if err != nil {
		return nil, fmt.Errorf("select standings: %w", err)
	}

	standings, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Standing, error) {
		var s domain.Standing
		err := r.Scan(&s.UserID, &s.Username, &s.Score)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("collect standings: %w", err)
	}

	return standings, nil
}

func scanEntry(row pgx.Row) (*domain.LeaderboardEntry, error) {
	var e domain.LeaderboardEntry
	if err := row.Scan(&e.EntryID, &e.QuizID, &e.UserID, &e.Score, &e.CreateTime, &e.UpdateTime); err != nil {
		return nil, err
	}

	return &e, nil
}

func entryError(op string, err error) error {
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && pgErr.Code == pgCodeForeignKeyViolation {
		switch pgErr.ConstraintName {
		case fkLeaderboardQuiz:
			return ErrQuizNotFound
		case fkLeaderboardUser:
			return ErrUserNotFound
		}
	}

	return fmt.Errorf("%s: %w", op, err)
}
