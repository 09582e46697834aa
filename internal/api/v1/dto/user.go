package dto

import "time"

// UserCreateDTO is used for incoming create requests
type UserCreateDTO struct {
	Name      string `json:"name" validate:"max=200"`
	Email     string `json:"email" validate:"omitempty,email"`
	AvatarURL string `json:"avatar_url" validate:"omitempty,url"`
}

// UserResponseDTO is returned in API responses
type UserResponseDTO struct {
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	AvatarURL string    `json:"avatar_url"`
	Balance   int       `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ErrorResponseDTO is the body of every error response
type ErrorResponseDTO struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}
