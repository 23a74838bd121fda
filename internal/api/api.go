package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/event"
	"github.com/victornm/livequiz/internal/leaderboard"
	"github.com/victornm/livequiz/internal/quiz"
	"github.com/victornm/livequiz/internal/user"
)

type Config struct {
	Router      gin.IRouter
	EventBus    *event.Bus
	Quiz        *quiz.Service
	User        *user.Service
	Leaderboard *leaderboard.Service

	// Health is checked by /healthz, typically the store.
	Health Pinger

	// Redis receives the leaderboard feed. The feed is off when it is nil.
	Redis        Redis
	PubsubPrefix string
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type API struct {
	qs *quiz.Service
	us *user.Service
	ls *leaderboard.Service

	health Pinger
	redis  Redis
	prefix string
}

func New(c Config) *API {
	a := &API{
		qs:     c.Quiz,
		us:     c.User,
		ls:     c.Leaderboard,
		health: c.Health,
		redis:  c.Redis,
		prefix: c.PubsubPrefix,
	}

	r := c.Router
	r.GET("/healthz", a.Healthz)

	r.POST("/quizzes", a.CreateQuiz)
	r.GET("/quizzes/:quizId", a.GetQuiz)
	r.DELETE("/quizzes/:quizId", a.DeleteQuiz)
	r.POST("/quizzes/:quizId/questions", a.AddQuestion)
	r.GET("/quizzes/:quizId/questions", a.GetQuestion)
	r.GET("/quizzes/:quizId/leaderboard", a.GetLeaderboard)

	r.POST("/users", a.CreateUser)
	r.GET("/users/:userId", a.GetUser)

	// Register event handlers
	if a.redis != nil {
		event.On(c.EventBus, a.PublishLeaderboardUpdated)
		event.On(c.EventBus, a.PublishQuizJoined)
	}

	return a
}

type (
	Quiz struct {
		QuizID    int64     `json:"quiz_id"`
		Name      string    `json:"name"`
		CreatedAt time.Time `json:"created_at"`
		UpdatedAt time.Time `json:"updated_at"`
	}

	// Question leaves out the correct answer, clients must not see it.
	Question struct {
		QuestionID   int64     `json:"question_id"`
		QuestionText string    `json:"question_text"`
		QuizID       int64     `json:"quiz_id"`
		CreatedAt    time.Time `json:"created_at"`
		UpdatedAt    time.Time `json:"updated_at"`
	}

	User struct {
		UserID    int64     `json:"user_id"`
		Username  string    `json:"username"`
		CreatedAt time.Time `json:"created_at"`
		UpdatedAt time.Time `json:"updated_at"`
	}

	Leaderboard struct {
		QuizID      int64      `json:"quizId"`
		Leaderboard []Standing `json:"leaderboard"`
	}

	Standing struct {
		UserID   int64  `json:"userId"`
		Username string `json:"username"`
		Score    int    `json:"score"`
	}
)

func (a *API) Healthz(c *gin.Context) {
	if a.health != nil {
		if err := a.health.Ping(c.Request.Context()); err != nil {
			slog.ErrorContext(c.Request.Context(), "api: health check failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (a *API) CreateQuiz(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, errors.InvalidArgument("invalid payload: %v", err))
		return
	}

	q, err := a.qs.CreateQuiz(c.Request.Context(), quiz.CreateQuizRequest{Name: req.Name})
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"quizId": q.QuizID})
}

func (a *API) GetQuiz(c *gin.Context) {
	quizID, ok := paramID(c, "quizId")
	if !ok {
		return
	}

	q, err := a.qs.GetQuiz(c.Request.Context(), quizID)
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, newQuiz(*q))
}

func (a *API) DeleteQuiz(c *gin.Context) {
	quizID, ok := paramID(c, "quizId")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if err := a.qs.DeleteQuiz(ctx, quizID); err != nil {
		renderError(c, err)
		return
	}

	if err := a.ls.Invalidate(ctx, quizID); err != nil {
		slog.WarnContext(ctx, "api: invalidate deleted quiz leaderboard failed", "quiz_id", quizID, "error", err)
	}

	c.Status(http.StatusNoContent)
}

func (a *API) AddQuestion(c *gin.Context) {
	quizID, ok := paramID(c, "quizId")
	if !ok {
		return
	}

	var req struct {
		QuestionText  string `json:"questionText"`
		CorrectAnswer string `json:"correctAnswer"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, errors.InvalidArgument("invalid payload: %v", err))
		return
	}

	q, err := a.qs.AddQuestion(c.Request.Context(), quiz.AddQuestionRequest{
		QuizID:        quizID,
		QuestionText:  req.QuestionText,
		CorrectAnswer: req.CorrectAnswer,
	})
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, newQuestion(*q))
}

// GetQuestion returns the question at ?index=N, the first one when no index is given.
func (a *API) GetQuestion(c *gin.Context) {
	quizID, ok := paramID(c, "quizId")
	if !ok {
		return
	}

	index, err := strconv.Atoi(c.DefaultQuery("index", "0"))
	if err != nil {
		renderError(c, errors.InvalidArgument("index must be an integer: %q", c.Query("index")))
		return
	}

	q, err := a.qs.QuestionAt(c.Request.Context(), quizID, index)
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, newQuestion(*q))
}

func (a *API) GetLeaderboard(c *gin.Context) {
	quizID, ok := paramID(c, "quizId")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if _, err := a.qs.GetQuiz(ctx, quizID); err != nil {
		renderError(c, err)
		return
	}

	l, err := a.ls.GetLeaderboard(ctx, leaderboard.GetLeaderboardRequest{QuizID: quizID})
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, newLeaderboard(*l))
}

func (a *API) CreateUser(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, errors.InvalidArgument("invalid payload: %v", err))
		return
	}

	u, err := a.us.CreateUser(c.Request.Context(), user.CreateUserRequest{Username: req.Username})
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, newUser(*u))
}

func (a *API) GetUser(c *gin.Context) {
	userID, ok := paramID(c, "userId")
	if !ok {
		return
	}

	u, err := a.us.GetUser(c.Request.Context(), userID)
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, newUser(*u))
}

func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		renderError(c, errors.InvalidArgument("%s must be an integer: %q", name, c.Param(name)))
		return 0, false
	}

	return id, true
}

func renderError(c *gin.Context, err error) {
	e := errors.Convert(err)

	code := e.HTTPStatusCode()
	if code >= http.StatusInternalServerError {
		slog.ErrorContext(c.Request.Context(), "api: request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err,
		)
	}

	c.JSON(code, gin.H{"error": e.Message})
}

func newQuiz(q domain.Quiz) Quiz {
	return Quiz{
		QuizID:    q.QuizID,
		Name:      q.Name,
		CreatedAt: q.CreateTime,
		UpdatedAt: q.UpdateTime,
	}
}

func newQuestion(q domain.Question) Question {
	return Question{
		QuestionID:   q.QuestionID,
		QuestionText: q.QuestionText,
		QuizID:       q.QuizID,
		CreatedAt:    q.CreateTime,
		UpdatedAt:    q.UpdateTime,
	}
}

func newUser(u domain.User) User {
	return User{
		UserID:    u.UserID,
		Username:  u.Username,
		CreatedAt: u.CreateTime,
		UpdatedAt: u.UpdateTime,
	}
}

func newLeaderboard(l domain.Leaderboard) Leaderboard {
	resp := Leaderboard{
		QuizID:      l.QuizID,
		Leaderboard: make([]Standing, 0, len(l.Standings)),
	}
	for _, s := range l.Standings {
		resp.Leaderboard = append(resp.Leaderboard, Standing(s))
	}

	return resp
}
