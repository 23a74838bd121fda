package domain

import (
	"time"
)

// PointsPerCorrectAnswer is the score delta of a correct answer. Incorrect answers score 0.
const PointsPerCorrectAnswer = 10

// Quiz is a named collection of ordered questions.
type Quiz struct {
	QuizID     int64
	Name       string
	CreateTime time.Time
	UpdateTime time.Time
}

// Question belongs to a quiz. Questions of a quiz are ordered by ascending QuestionID,
// the position in that order is the question index.
type Question struct {
	QuestionID    int64
	QuizID        int64
	QuestionText  string
	CorrectAnswer string
	CreateTime    time.Time
	UpdateTime    time.Time
}

type User struct {
	UserID     int64
	Username   string
	CreateTime time.Time
	UpdateTime time.Time
}

// LeaderboardEntry is the durable score of a user within a quiz.
// There is at most one entry per (QuizID, UserID).
type LeaderboardEntry struct {
	EntryID    int64
	QuizID     int64
	UserID     int64
	Score      int
	CreateTime time.Time
	UpdateTime time.Time
}

// Standing is a single ranked row of a leaderboard.
type Standing struct {
	UserID   int64
	Username string
	Score    int
}

// Leaderboard represents the users of a quiz and their scores.
// Standings are sorted by score in descending order.
type Leaderboard struct {
	QuizID    int64
	Standings []Standing
}
