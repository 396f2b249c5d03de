package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// User owns sessions. Guests carry only a display name; local accounts
// additionally have an email and a bcrypt password hash.
type User struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email,omitempty"`
	Password    string    `json:"-"`
	Guest       bool      `json:"guest"`
	CreatedAt   time.Time `json:"created_at"`
	LastLogin   time.Time `json:"last_login,omitempty"`
	SessionIDs  []string  `json:"session_ids"`
}

// CreateUserRequest is the request structure for registering a local user
type CreateUserRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

// LoginRequest is the request structure for user login
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// GuestRequest is the request structure for creating a guest user
type GuestRequest struct {
	Name string `json:"name" binding:"required"`
}

// UserResponse is the response structure for user data (without sensitive info)
type UserResponse struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email,omitempty"`
	Guest       bool      `json:"guest"`
	CreatedAt   time.Time `json:"created_at"`
	SessionIDs  []string  `json:"session_ids"`
}

// HashPassword hashes a password for storage
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPasswordHash compares a password with a hash
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// ToResponse converts a User model to a UserResponse
func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		Guest:       u.Guest,
		CreatedAt:   u.CreatedAt,
		SessionIDs:  u.SessionIDs,
	}
}
