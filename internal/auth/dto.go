package auth

import (
	"github.com/otodealz/otodealz-backend/internal/users"
	"github.com/otodealz/otodealz-backend/pkg/enums"
)

// LoginRequest captures the user credentials sent to the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse contains the token and user produced by a successful login.
type LoginResponse struct {
	AccessToken string         `json:"access_token"`
	User        *users.UserDTO `json:"user"`
}

// RegisterRequest contains the payload required for creating an account.
type RegisterRequest struct {
	FullName string          `json:"full_name" validate:"required"`
	Email    string          `json:"email" validate:"required,email"`
	Password string          `json:"password" validate:"required,min=8"`
	Phone    *string         `json:"phone,omitempty"`
	Role     enums.ActorRole `json:"role" validate:"required"`
}
