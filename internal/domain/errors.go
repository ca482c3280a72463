package domain

import "errors"

// Expected outcomes of account lifecycle operations. The transport layer maps
// these to response statuses; anything else is a server error.
var (
	ErrEmailTaken         = errors.New("an account with this email already exists")
	ErrAccountNotFound    = errors.New("account not found")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailNotVerified   = errors.New("email not verified")
	ErrAlreadyVerified    = errors.New("email is already verified")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrInvalidGoogleToken = errors.New("invalid google token")
	ErrValidation         = errors.New("invalid input")
)
