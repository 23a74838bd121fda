package errors

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type Code codes.Code

const (
	CodeInvalidArgument = Code(codes.InvalidArgument)
	CodeNotFound        = Code(codes.NotFound)
	CodeAlreadyExists   = Code(codes.AlreadyExists)
	CodeOutOfRange      = Code(codes.OutOfRange)
	CodeUnavailable     = Code(codes.Unavailable)
	CodeInternal        = Code(codes.Internal)
)

// Reasons distinguish errors sharing the same code.
const (
	ReasonQuizNotFound       = "quiz_not_found"
	ReasonUserNotFound       = "user_not_found"
	ReasonQuestionNotFound   = "question_not_found"
	ReasonInvalidIndex       = "invalid_index"
	ReasonPersistenceFailure = "persistence_failure"
	ReasonCacheFailure       = "cache_failure"
)

var code2http = map[Code]int{
	CodeInvalidArgument: http.StatusBadRequest,
	CodeNotFound:        http.StatusNotFound,
	CodeAlreadyExists:   http.StatusConflict,
	CodeOutOfRange:      http.StatusBadRequest,
	CodeUnavailable:     http.StatusInternalServerError,
	CodeInternal:        http.StatusInternalServerError,
}

type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
	err     error
}

func New(code Code, opts ...Option) *Error {
	e := &Error{
		Code:    code,
		Message: codes.Code(code).String(),
	}

	for _, opt := range opts {
		opt.apply(e)
	}

	return e
}

func (e *Error) Error() string {
	s := fmt.Sprintf("code: %d, message: %s", e.Code, e.Message)
	if e.Reason != "" {
		s += fmt.Sprintf(", reason: %s", e.Reason)
	}
	if e.err != nil {
		s += fmt.Sprintf(", err: %s", e.err)
	}

	return s
}

func (e *Error) Unwrap() error {
	return e.err
}

func (e *Error) GRPCStatus() *status.Status {
	return status.New(codes.Code(e.Code), e.Message)
}

func (e *Error) HTTPStatusCode() int {
	if c, ok := code2http[e.Code]; ok {
		return c
	}

	return http.StatusInternalServerError
}

func Convert(err error) *Error {
	var e *Error
	if !errors.As(err, &e) {
		return Internal(err)
	}

	return e
}

// ReasonOf returns the reason of the first *Error in the chain of err, or "" if there is none.
func ReasonOf(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}

	return e.Reason
}

func Internal(err error) *Error {
	return New(CodeInternal, WithCause(err))
}

func InvalidArgument(format string, args ...any) *Error {
	return New(CodeInvalidArgument, WithMessagef(format, args...))
}

func QuizNotFound(quizID int64) *Error {
	return New(CodeNotFound,
		WithMessagef("quiz not found: quiz_id=%d", quizID),
		WithReason(ReasonQuizNotFound),
	)
}

func UserNotFound(userID int64) *Error {
	return New(CodeNotFound,
		WithMessagef("user not found: user_id=%d", userID),
		WithReason(ReasonUserNotFound),
	)
}

func QuestionNotFound(quizID int64, index int) *Error {
	return New(CodeNotFound,
		WithMessagef("no question available: quiz_id=%d index=%d", quizID, index),
		WithReason(ReasonQuestionNotFound),
	)
}

func InvalidIndex(index, count int) *Error {
	return New(CodeOutOfRange,
		WithMessagef("invalid question index: index=%d questions=%d", index, count),
		WithReason(ReasonInvalidIndex),
	)
}

// PersistenceFailure signals a transient store failure. It is surfaced to the caller and never retried.
func PersistenceFailure(err error) *Error {
	return New(CodeUnavailable,
		WithMessagef("persistence failure"),
		WithReason(ReasonPersistenceFailure),
		WithCause(err),
	)
}

func CacheFailure(err error) *Error {
	return New(CodeUnavailable,
		WithMessagef("cache failure"),
		WithReason(ReasonCacheFailure),
		WithCause(err),
	)
}

type Option interface {
	apply(*Error)
}

type optionFunc func(*Error)

func (f optionFunc) apply(e *Error) {
	f(e)
}

func WithCause(err error) Option {
	return optionFunc(func(e *Error) {
		e.err = err
	})
}

func WithMessagef(format string, args ...any) Option {
	return optionFunc(func(e *Error) {
		e.Message = fmt.Sprintf(format, args...)
	})
}

func WithReason(reason string) Option {
	return optionFunc(func(e *Error) {
		e.Reason = reason
	})
}
