package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/victornm/livequiz/internal/domain"
)

const (
	mysqlErrDuplicateEntry  = 1062
	mysqlErrNoReferencedRow = 1452
)

type MySQL struct {
	db *sqlx.DB
}

func OpenMySQL(ctx context.Context, addr, user, pass, name string) (*MySQL, error) {
	mc := mysql.NewConfig()
	mc.Net = "tcp"
	mc.Addr = addr
	mc.User = user
	mc.Passwd = pass
	mc.DBName = name
	mc.ParseTime = true
	mc.Loc = time.UTC

	db, err := sqlx.ConnectContext(ctx, "mysql", mc.FormatDSN())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	return &MySQL{db: db}, nil
}

// NewMySQL wraps an existing connection.
func NewMySQL(db *sqlx.DB) *MySQL {
	return &MySQL{db: db}
}

type (
	mysqlQuiz struct {
		QuizID    int64     `db:"quiz_id"`
		Name      string    `db:"name"`
		CreatedAt time.Time `db:"created_at"`
		UpdatedAt time.Time `db:"updated_at"`
	}

	mysqlQuestion struct {
		QuestionID    int64     `db:"question_id"`
		QuizID        int64     `db:"quiz_id"`
		QuestionText  string    `db:"question_text"`
		CorrectAnswer string    `db:"correct_answer"`
		CreatedAt     time.Time `db:"created_at"`
		UpdatedAt     time.Time `db:"updated_at"`
	}

	mysqlUser struct {
		UserID    int64     `db:"user_id"`
		Username  string    `db:"username"`
		CreatedAt time.Time `db:"created_at"`
		UpdatedAt time.Time `db:"updated_at"`
	}

	mysqlEntry struct {
		EntryID   int64     `db:"leaderboard_id"`
		QuizID    int64     `db:"quiz_id"`
		UserID    int64     `db:"user_id"`
		Score     int       `db:"score"`
		CreatedAt time.Time `db:"created_at"`
		UpdatedAt time.Time `db:"updated_at"`
	}

	mysqlStanding struct {
		UserID   int64  `db:"user_id"`
		Username string `db:"username"`
		Score    int    `db:"score"`
	}
)

func (m *MySQL) Migrate(ctx context.Context) error {
	// DDL is not transactional in MySQL.
	for _, stmt := range mysqlSchema {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
	}

	return nil
}

func (m *MySQL) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

func (m *MySQL) Close() error {
	return m.db.Close()
}

func (m *MySQL) CreateQuiz(ctx context.Context, name string) (*domain.Quiz, error) {
	res, err := m.db.ExecContext(ctx, "INSERT INTO `quiz` (name) VALUES (?)", name)
	if err != nil {
		return nil, fmt.Errorf("insert quiz: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert quiz: last insert id: %w", err)
	}

	return m.GetQuiz(ctx, id)
}

func (m *MySQL) GetQuiz(ctx context.Context, quizID int64) (*domain.Quiz, error) {
	var q mysqlQuiz
	err := m.db.GetContext(ctx, &q, "SELECT quiz_id, name, created_at, updated_at FROM `quiz` WHERE quiz_id = ?", quizID)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, ErrQuizNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select quiz: %w", err)
	}

	return &domain.Quiz{
		QuizID:     q.QuizID,
		Name:       q.Name,
		CreateTime: q.CreatedAt,
		UpdateTime: q.UpdatedAt,
	}, nil
}

func (m *MySQL) DeleteQuiz(ctx context.Context, quizID int64) error {
	res, err := m.db.ExecContext(ctx, "DELETE FROM `quiz` WHERE quiz_id = ?", quizID)
	if err != nil {
		return fmt.Errorf("delete quiz: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete quiz: rows affected: %w", err)
	}
	if n == 0 {
		return ErrQuizNotFound
	}

	return nil
}

func (m *MySQL) CreateQuestion(ctx context.Context, q domain.Question) (*domain.Question, error) {
	res, err := m.db.NamedExecContext(ctx,
		"INSERT INTO `question` (quiz_id, question_text, correct_answer) VALUES (:quiz_id, :question_text, :correct_answer)",
		mysqlQuestion{QuizID: q.QuizID, QuestionText: q.QuestionText, CorrectAnswer: q.CorrectAnswer},
	)
	if err != nil {
		if isMySQLError(err, mysqlErrNoReferencedRow) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("insert question: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert question: last insert id: %w", err)
	}

	var row mysqlQuestion
	if err := m.db.GetContext(ctx, &row,
		"SELECT question_id, quiz_id, question_text, correct_answer, created_at, updated_at FROM `question` WHERE question_id = ?", id,
	); err != nil {
		return nil, fmt.Errorf("select question: %w", err)
	}

	return row.toDomain(), nil
}

func (m *MySQL) ListQuestions(ctx context.Context, quizID int64) ([]domain.Question, error) {
	rows, err := m.db.QueryxContext(ctx,
		"SELECT question_id, quiz_id, question_text, correct_answer, created_at, updated_at FROM `question` WHERE quiz_id = ? ORDER BY question_id ASC",
		quizID,
	)
	if err != nil {
		return nil, fmt.Errorf("select questions: %w", err)
	}
	defer rows.Close()

	questions := make([]domain.Question, 0)
	for rows.Next() {
		var q mysqlQuestion
		if err := rows.StructScan(&q); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		questions = append(questions, *q.toDomain())
	}

	return questions, rows.Err()
}

func (m *MySQL) CreateUser(ctx context.Context, username string) (*domain.User, error) {
	res, err := m.db.ExecContext(ctx, "INSERT INTO `user` (username) VALUES (?)", username)
	if err != nil {
		if isMySQLError(err, mysqlErrDuplicateEntry) {
			return nil, fmt.Errorf("%w: username %q", ErrDuplicate, username)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert user: last insert id: %w", err)
	}

	return m.GetUser(ctx, id)
}

func (m *MySQL) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	var u mysqlUser
	err := m.db.GetContext(ctx, &u, "SELECT user_id, username, created_at, updated_at FROM `user` WHERE user_id = ?", userID)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}

	return &domain.User{
		UserID:     u.UserID,
		Username:   u.Username,
		CreateTime: u.CreatedAt,
		UpdateTime: u.UpdatedAt,
	}, nil
}

func (m *MySQL) EnsureEntry(ctx context.Context, quizID, userID int64) (*domain.LeaderboardEntry, bool, error) {
	// Without CLIENT_FOUND_ROWS a no-op update reports 0 affected rows, an insert reports 1.
	res, err := m.db.ExecContext(ctx,
		"INSERT INTO `leaderboard` (quiz_id, user_id) VALUES (?, ?) ON DUPLICATE KEY UPDATE leaderboard_id = leaderboard_id",
		quizID, userID,
	)
	if err != nil {
		return nil, false, mysqlEntryError("insert entry", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("insert entry: rows affected: %w", err)
	}

	e, err := m.selectEntry(ctx, m.db, quizID, userID)
	if err != nil {
		return nil, false, err
	}

	return e, n == 1, nil
}

func (m *MySQL) AddScore(ctx context.Context, quizID, userID int64, delta int) (e *domain.LeaderboardEntry, err error) {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback())
		}
	}()

	// The upsert holds the row lock until commit, concurrent additions to the same entry queue behind it.
	if _, err = tx.ExecContext(ctx,
		"INSERT INTO `leaderboard` (quiz_id, user_id, score) VALUES (?, ?, ?) ON DUPLICATE KEY UPDATE score = score + VALUES(score)",
		quizID, userID, delta,
	); err != nil {
		return nil, mysqlEntryError("upsert entry", err)
	}

	e, err = m.selectEntry(ctx, tx, quizID, userID)
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return e, nil
}

func (m *MySQL) ListStandings(ctx context.Context, quizID int64) ([]domain.Standing, error) {
	var rows []mysqlStanding
	err := m.db.SelectContext(ctx, &rows, `
SELECT l.user_id, u.username, l.score
FROM leaderboard l
JOIN `+"`user`"+` u ON u.user_id = l.user_id
WHERE l.quiz_id = ?
ORDER BY l.score DESC, l.leaderboard_id ASC`, quizID)
	if err != nil {
		return nil, fmt.Errorf("select standings: %w", err)
	}

	standings := make([]domain.Standing, 0, len(rows))
	for _, r := range rows {
		standings = append(standings, domain.Standing{
			UserID:   r.UserID,
			Username: r.Username,
			Score:    r.Score,
		})
	}

	return standings, nil
}

func (m *MySQL) selectEntry(ctx context.Context, q sqlx.QueryerContext, quizID, userID int64) (*domain.LeaderboardEntry, error) {
	var e mysqlEntry
	if err := sqlx.GetContext(ctx, q, &e,
		"SELECT leaderboard_id, quiz_id, user_id, score, created_at, updated_at FROM `leaderboard` WHERE quiz_id = ? AND user_id = ?",
		quizID, userID,
	); err != nil {
		return nil, fmt.Errorf("select entry: %w", err)
	}

	return &domain.LeaderboardEntry{
		EntryID:    e.EntryID,
		QuizID:     e.QuizID,
		UserID:     e.UserID,
		Score:      e.Score,
		CreateTime: e.CreatedAt,
		UpdateTime: e.UpdatedAt,
	}, nil
}

func (q mysqlQuestion) toDomain() *domain.Question {
	return &domain.Question{
		QuestionID:    q.QuestionID,
		QuizID:        q.QuizID,
		QuestionText:  q.QuestionText,
		CorrectAnswer: q.CorrectAnswer,
		CreateTime:    q.CreatedAt,
		UpdateTime:    q.UpdatedAt,
	}
}

func isMySQLError(err error, number uint16) bool {
	var me *mysql.MySQLError
	return stderrors.As(err, &me) && me.Number == number
}

func mysqlEntryError(op string, err error) error {
	var me *mysql.MySQLError
	if stderrors.As(err, &me) && me.Number == mysqlErrNoReferencedRow {
		switch {
		case strings.Contains(me.Message, fkLeaderboardQuiz):
			return ErrQuizNotFound
		case strings.Contains(me.Message, fkLeaderboardUser):
			return ErrUserNotFound
		}
	}

	return fmt.Errorf("%s: %w", op, err)
}
