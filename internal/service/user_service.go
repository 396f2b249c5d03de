package service

import (
	"errors"
	"time"

	"cognify/backend/internal/models"
	"cognify/backend/internal/store"
	"cognify/backend/pkg/jwt"

	"github.com/google/uuid"
)

var (
	ErrUserAlreadyExists  = errors.New("user with this email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")
)

// UserService handles account creation and login. Guests are first-class
// users with no credentials; local accounts carry a bcrypt password hash.
type UserService struct {
	store      store.Store
	jwtService *jwt.Service
}

// NewUserService creates a new user service
func NewUserService(st store.Store, jwtService *jwt.Service) *UserService {
	return &UserService{store: st, jwtService: jwtService}
}

// CreateGuest creates a guest user identified only by a display name
func (s *UserService) CreateGuest(req *models.GuestRequest) (*models.User, string, error) {
	user := &models.User{
		ID:          uuid.New().String(),
		DisplayName: req.Name,
		Guest:       true,
		CreatedAt:   time.Now(),
		SessionIDs:  []string{},
	}
	if err := s.store.CreateUser(user); err != nil {
		return nil, "", err
	}

	token, err := s.jwtService.GenerateToken(user.ID, "", true)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// CreateUser registers a local account
func (s *UserService) CreateUser(req *models.CreateUserRequest) (*models.User, string, error) {
	if existing, err := s.store.GetUserByEmail(req.Email); err == nil && existing != nil {
		return nil, "", ErrUserAlreadyExists
	} else if err != nil && !errors.Is(err, store.ErrUserNotFound) {
		return nil, "", err
	}

	hash, err := models.HashPassword(req.Password)
	if err != nil {
		return nil, "", err
	}

	user := &models.User{
		ID:          uuid.New().String(),
		DisplayName: req.Name,
		Email:       req.Email,
		Password:    hash,
		CreatedAt:   time.Now(),
		SessionIDs:  []string{},
	}
	if err := s.store.CreateUser(user); err != nil {
		return nil, "", err
	}

	token, err := s.jwtService.GenerateToken(user.ID, user.Email, false)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// Login authenticates a local account and returns a fresh token
func (s *UserService) Login(req *models.LoginRequest) (*models.User, string, error) {
	user, err := s.store.GetUserByEmail(req.Email)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}

	if !models.CheckPasswordHash(req.Password, user.Password) {
		return nil, "", ErrInvalidCredentials
	}

	if err := s.store.UpdateLastLogin(user.ID); err != nil {
		return nil, "", err
	}

	token, err := s.jwtService.GenerateToken(user.ID, user.Email, false)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// GetUserByID retrieves a user by ID
func (s *UserService) GetUserByID(id string) (*models.User, error) {
	user, err := s.store.GetUser(id)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}
