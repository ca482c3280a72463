package dto

import "puppins-auth/internal/domain"

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is returned by every operation that signs the caller in. Secret
// columns are stripped by the domain model's json tags.
type AuthResponse struct {
	User  *domain.User `json:"user"`
	Token string       `json:"token"`
}
