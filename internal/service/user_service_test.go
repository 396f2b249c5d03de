package service

import (
	"testing"
	"time"

	"cognify/backend/internal/models"
	"cognify/backend/internal/store"
	"cognify/backend/pkg/jwt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testUserService() *UserService {
	return NewUserService(store.NewMemoryStore(), jwt.NewService("test-secret", time.Hour))
}

func TestCreateGuest(t *testing.T) {
	svc := testUserService()

	user, token, err := svc.CreateGuest(&models.GuestRequest{Name: "learner"})
	require.NoError(t, err)
	assert.True(t, user.Guest)
	assert.Equal(t, "learner", user.DisplayName)
	assert.Empty(t, user.Email)
	assert.NotEmpty(t, token)
}

func TestCreateUserHashesPassword(t *testing.T) {
	svc := testUserService()

	user, token, err := svc.CreateUser(&models.CreateUserRequest{
		Name:     "Ada",
		Email:    "ada@example.com",
		Password: "longenough",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.NotEqual(t, "longenough", user.Password)
	assert.True(t, models.CheckPasswordHash("longenough", user.Password))
}

func TestCreateUserRejectsDuplicateEmail(t *testing.T) {
	svc := testUserService()

	req := &models.CreateUserRequest{Name: "Ada", Email: "ada@example.com", Password: "longenough"}
	_, _, err := svc.CreateUser(req)
	require.NoError(t, err)

	_, _, err = svc.CreateUser(req)
	assert.ErrorIs(t, err, ErrUserAlreadyExists)
}

func TestLogin(t *testing.T) {
	svc := testUserService()

	_, _, err := svc.CreateUser(&models.CreateUserRequest{
		Name:     "Ada",
		Email:    "ada@example.com",
		Password: "longenough",
	})
	require.NoError(t, err)

	user, token, err := svc.Login(&models.LoginRequest{Email: "ada@example.com", Password: "longenough"})
	require.NoError(t, err)
	assert.Equal(t, "Ada", user.DisplayName)
	assert.NotEmpty(t, token)

	_, _, err = svc.Login(&models.LoginRequest{Email: "ada@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = svc.Login(&models.LoginRequest{Email: "nobody@example.com", Password: "longenough"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
