package user

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/store"
)

const maxUsernameLength = 64

type Store interface {
	CreateUser(ctx context.Context, username string) (*domain.User, error)
	GetUser(ctx context.Context, userID int64) (*domain.User, error)
}

type Config struct {
	Store Store
}

type Service struct {
	store Store
}

func NewService(c Config) *Service {
	return &Service{
		store: c.Store,
	}
}

type CreateUserRequest struct {
	Username string
}

func (s *Service) CreateUser(ctx context.Context, req CreateUserRequest) (*domain.User, error) {
	name := strings.TrimSpace(req.Username)
	if name == "" || len(name) > maxUsernameLength {
		return nil, errors.InvalidArgument("username must be 1 to %d characters", maxUsernameLength)
	}

	u, err := s.store.CreateUser(ctx, name)
	if stderrors.Is(err, store.ErrDuplicate) {
		return nil, errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("username is taken: username=%s", name),
			errors.WithCause(err),
		)
	}
	if err != nil {
		return nil, errors.PersistenceFailure(err)
	}

	return u, nil
}

func (s *Service) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	u, err := s.store.GetUser(ctx, userID)
	if stderrors.Is(err, store.ErrUserNotFound) {
		return nil, errors.UserNotFound(userID)
	}
	if err != nil {
		return nil, errors.PersistenceFailure(err)
	}

	return u, nil
}
