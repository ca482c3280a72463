package service

import (
	"context"

	"puppins-auth/internal/domain"
	"puppins-auth/internal/dto"
)

// AccountService orchestrates the account lifecycle: registration, email
// verification, credential and federated login, password reset, and profile
// CRUD. It returns the typed outcomes declared in internal/domain; the
// transport layer maps those to wire statuses.
type AccountService interface {
	Register(ctx context.Context, r dto.RegisterRequest) (*dto.MessageResponse, error)
	VerifyEmail(ctx context.Context, token string) (*dto.VerifyEmailResponse, error)
	ResendVerification(ctx context.Context, email string) (*dto.MessageResponse, error)
	Login(ctx context.Context, r dto.LoginRequest) (*dto.AuthResponse, error)
	GoogleAuth(ctx context.Context, idToken string) (*dto.AuthResponse, error)
	ForgotPassword(ctx context.Context, email string) (*dto.MessageResponse, error)
	ResetPassword(ctx context.Context, token, newPassword string) (*dto.MessageResponse, error)

	GetProfile(ctx context.Context, accountID uint) (*domain.User, error)
	UpdateProfile(ctx context.Context, accountID uint, r dto.UpdateProfileRequest) (*domain.User, error)
	DeleteAccount(ctx context.Context, accountID uint) error
}
