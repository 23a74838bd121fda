package user_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/store"
	"github.com/victornm/livequiz/internal/user"
)

func TestService_CreateUser(t *testing.T) {
	ctx := context.Background()
	s := user.NewService(user.Config{Store: store.NewMemory()})

	u, err := s.CreateUser(ctx, user.CreateUserRequest{Username: " user1 "})
	require.NoError(t, err)
	require.Equal(t, "user1", u.Username)

	got, err := s.GetUser(ctx, u.UserID)
	require.NoError(t, err)
	require.Equal(t, u, got)

	_, err = s.CreateUser(ctx, user.CreateUserRequest{Username: "user1"})
	require.Equal(t, errors.CodeAlreadyExists, errors.Convert(err).Code)

	_, err = s.CreateUser(ctx, user.CreateUserRequest{Username: strings.Repeat("u", 65)})
	require.Equal(t, errors.CodeInvalidArgument, errors.Convert(err).Code)

	_, err = s.GetUser(ctx, u.UserID+1)
	require.Equal(t, errors.ReasonUserNotFound, errors.ReasonOf(err))
}
