package ws

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strconv"

	"github.com/victornm/livequiz/internal/domain"
)

// Message types.
const (
	TypeJoinQuiz          = "join_quiz"
	TypeSubmitAnswer      = "submit_answer"
	TypeQuizJoined        = "quiz_joined"
	TypeLeaderboardUpdate = "leaderboard_update"
	TypeError             = "error"
)

var (
	ErrMalformed   = stderrors.New("ws: malformed message")
	ErrUnknownType = stderrors.New("ws: unknown message type")
)

// Envelope frames every message in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type JoinQuiz struct {
	QuizID Int `json:"quizId"`
	UserID Int `json:"userId"`
}

type SubmitAnswer struct {
	QuizID        Int    `json:"quizId"`
	UserID        Int    `json:"userId"`
	Answer        string `json:"answer"`
	QuestionIndex Int    `json:"questionIndex"`
}

type QuizJoined struct {
	QuizID int64 `json:"quizId"`
	UserID int64 `json:"userId"`
}

type LeaderboardUpdate struct {
	QuizID               int64      `json:"quizId"`
	FormattedLeaderboard []Standing `json:"formattedLeaderboard"`
}

type Standing struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	Score    int    `json:"score"`
}

// Int is an integer that also decodes from a numeric JSON string, as browsers often send form values.
type Int int64

func (i *Int) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		b = []byte(s)
	}

	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("not an integer: %s", b)
	}

	*i = Int(n)
	return nil
}

// Decode parses an inbound envelope into *JoinQuiz or *SubmitAnswer.
// The envelope type is still returned along with ErrUnknownType so that callers can log it.
func Decode(b []byte) (string, any, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var (
		msg      any
		required []string
	)
	switch env.Type {
	case TypeJoinQuiz:
		msg, required = &JoinQuiz{}, []string{"quizId", "userId"}
	case TypeSubmitAnswer:
		msg, required = &SubmitAnswer{}, []string{"quizId", "userId", "answer", "questionIndex"}
	case "":
		return "", nil, fmt.Errorf("%w: missing type", ErrMalformed)
	default:
		return env.Type, nil, ErrUnknownType
	}

	if len(env.Payload) == 0 || string(env.Payload) == "null" {
		return env.Type, nil, fmt.Errorf("%w: %s: missing payload", ErrMalformed, env.Type)
	}

	if err := requireFields(env.Payload, required); err != nil {
		return env.Type, nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Type, err)
	}

	if err := json.Unmarshal(env.Payload, msg); err != nil {
		return env.Type, nil, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Type, err)
	}

	return env.Type, msg, nil
}

// requireFields fails unless every field is present and not null, a zero id or index must be sent explicitly.
func requireFields(payload json.RawMessage, fields []string) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return err
	}

	for _, f := range fields {
		if v, ok := m[f]; !ok || string(bytes.TrimSpace(v)) == "null" {
			return fmt.Errorf("missing %s", f)
		}
	}

	return nil
}

// Encode frames an outbound payload.
func Encode(typ string, payload any) ([]byte, error) {
	p, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("ws: encode %s: %w", typ, err)
	}

	return json.Marshal(Envelope{Type: typ, Payload: p})
}

func newLeaderboardUpdate(l domain.Leaderboard) LeaderboardUpdate {
	u := LeaderboardUpdate{
		QuizID:               l.QuizID,
		FormattedLeaderboard: make([]Standing, 0, len(l.Standings)),
	}
	for _, s := range l.Standings {
		u.FormattedLeaderboard = append(u.FormattedLeaderboard, Standing(s))
	}

	return u
}
