package impl

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"puppins-auth/internal/domain"
	"puppins-auth/internal/dto"
	"puppins-auth/internal/observability/metrics"
	"puppins-auth/internal/service"
	"puppins-auth/internal/store"
)

const (
	// Messages are stable, user-facing strings. The forgot-password one must
	// be byte-identical whether or not the account exists.
	msgRegistered       = "Registration successful! Check your email to confirm your account."
	msgVerified         = "Email confirmed successfully. Welcome!"
	msgVerificationSent = "Verification email has been sent again."
	msgResetRequested   = "If an account with this email exists, a reset link has been sent."
	msgPasswordChanged  = "Your password has been changed successfully."

	minPasswordLength = 6
	tokenBytes        = 32 // 256 bits of entropy, hex encoded
)

// accountStore is the narrow persistence surface the lifecycle service needs;
// *store.UserStore satisfies it, and tests substitute an in-memory fake.
type accountStore interface {
	Create(ctx context.Context, usr *domain.User) error
	GetByID(ctx context.Context, id uint) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByGoogleID(ctx context.Context, googleID string) (*domain.User, error)
	GetByVerificationToken(ctx context.Context, token string) (*domain.User, error)
	GetByResetToken(ctx context.Context, token string) (*domain.User, error)
	MarkEmailVerified(ctx context.Context, id uint) error
	SetVerificationToken(ctx context.Context, id uint, token string, expires time.Time) error
	SetResetToken(ctx context.Context, id uint, token string, expires time.Time) error
	SetPassword(ctx context.Context, id uint, hash string) error
	LinkGoogle(ctx context.Context, id uint, googleID string, picture *string) error
	Update(ctx context.Context, id uint, fields map[string]interface{}) error
	Delete(ctx context.Context, id uint) error
}

type AccountServiceImpl struct {
	Store    accountStore
	Password service.PasswordService
	Tokens   service.TokenService
	Google   service.GoogleVerifier
	Mailer   service.EmailService

	VerificationTTL time.Duration
	ResetTTL        time.Duration
}

func NewAccountServiceImpl(
	st *store.Store,
	password service.PasswordService,
	tokens service.TokenService,
	google service.GoogleVerifier,
	mailer service.EmailService,
	verificationTTL, resetTTL time.Duration,
) *AccountServiceImpl {
	return &AccountServiceImpl{
		Store:           st.Users(),
		Password:        password,
		Tokens:          tokens,
		Google:          google,
		Mailer:          mailer,
		VerificationTTL: verificationTTL,
		ResetTTL:        resetTTL,
	}
}

func (a *AccountServiceImpl) Register(ctx context.Context, r dto.RegisterRequest) (*dto.MessageResponse, error) {
	result := "success"
	defer func() { metrics.AuthRegistrationsTotal.WithLabelValues(result).Inc() }()

	firstName := strings.TrimSpace(r.FirstName)
	lastName := strings.TrimSpace(r.LastName)
	email := normalizeEmail(r.Email)
	if firstName == "" || lastName == "" || email == "" {
		result = "failure"
		return nil, fmt.Errorf("%w: name and email are required", domain.ErrValidation)
	}
	if len(r.Password) < minPasswordLength {
		result = "failure"
		return nil, fmt.Errorf("%w: password must be at least %d characters", domain.ErrValidation, minPasswordLength)
	}

	if _, err := a.Store.GetByEmail(ctx, email); err == nil {
		result = "failure"
		return nil, domain.ErrEmailTaken
	} else if !errors.Is(err, store.ErrRecordNotFound) {
		result = "failure"
		return nil, err
	}

	hash, err := a.Password.Hash(r.Password)
	if err != nil {
		result = "failure"
		return nil, err
	}

	token, err := newSecureToken()
	if err != nil {
		result = "failure"
		return nil, err
	}
	expires := time.Now().UTC().Add(a.VerificationTTL)

	usr := &domain.User{
		FirstName:                firstName,
		LastName:                 lastName,
		Email:                    email,
		PasswordHash:             &hash,
		AuthProvider:             domain.ProviderLocal,
		IsEmailVerified:          false,
		EmailVerificationToken:   &token,
		EmailVerificationExpires: &expires,
	}
	if err := a.Store.Create(ctx, usr); err != nil {
		result = "failure"
		return nil, err
	}

	// A verification mail that never left means the account is unusable, so
	// the failure is surfaced. The row stays; resend-verification recovers.
	if err := a.Mailer.SendVerification(ctx, usr.Email, token, usr.FirstName); err != nil {
		result = "failure"
		return nil, fmt.Errorf("send verification mail: %w", err)
	}

	slog.Info("account registered", "account_id", usr.ID)
	return &dto.MessageResponse{Message: msgRegistered}, nil
}

func (a *AccountServiceImpl) VerifyEmail(ctx context.Context, token string) (*dto.VerifyEmailResponse, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, domain.ErrInvalidToken
	}

	usr, err := a.Store.GetByVerificationToken(ctx, token)
	if err != nil {
		return nil, domain.ErrInvalidToken
	}
	if usr.EmailVerificationExpires == nil || time.Now().After(*usr.EmailVerificationExpires) {
		return nil, domain.ErrInvalidToken
	}

	if err := a.Store.MarkEmailVerified(ctx, usr.ID); err != nil {
		return nil, err
	}

	// Convenience auto-login right after confirmation.
	session, err := a.issueToken(usr, "verify")
	if err != nil {
		return nil, err
	}

	slog.Info("email verified", "account_id", usr.ID)
	return &dto.VerifyEmailResponse{Message: msgVerified, Token: session}, nil
}

func (a *AccountServiceImpl) ResendVerification(ctx context.Context, email string) (*dto.MessageResponse, error) {
	usr, err := a.Store.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, err
	}
	if usr.IsEmailVerified {
		return nil, domain.ErrAlreadyVerified
	}

	token, err := newSecureToken()
	if err != nil {
		return nil, err
	}
	expires := time.Now().UTC().Add(a.VerificationTTL)
	if err := a.Store.SetVerificationToken(ctx, usr.ID, token, expires); err != nil {
		return nil, err
	}

	if err := a.Mailer.SendVerification(ctx, usr.Email, token, usr.FirstName); err != nil {
		return nil, fmt.Errorf("send verification mail: %w", err)
	}
	return &dto.MessageResponse{Message: msgVerificationSent}, nil
}

func (a *AccountServiceImpl) Login(ctx context.Context, r dto.LoginRequest) (*dto.AuthResponse, error) {
	result := "success"
	defer func() { metrics.AuthLoginsTotal.WithLabelValues("password", result).Inc() }()

	email := normalizeEmail(r.Email)
	if email == "" || r.Password == "" {
		result = "failure"
		return nil, domain.ErrInvalidCredentials
	}

	usr, err := a.Store.GetByEmail(ctx, email)
	if err != nil {
		// Unknown email and wrong password are indistinguishable.
		result = "failure"
		return nil, domain.ErrInvalidCredentials
	}
	if !usr.HasPassword() || !a.Password.Verify(r.Password, *usr.PasswordHash) {
		result = "failure"
		return nil, domain.ErrInvalidCredentials
	}
	if !usr.IsEmailVerified {
		result = "failure"
		return nil, domain.ErrEmailNotVerified
	}

	session, err := a.issueToken(usr, "login")
	if err != nil {
		result = "failure"
		return nil, err
	}
	return &dto.AuthResponse{User: usr, Token: session}, nil
}

func (a *AccountServiceImpl) GoogleAuth(ctx context.Context, idToken string) (*dto.AuthResponse, error) {
	result := "success"
	defer func() { metrics.AuthLoginsTotal.WithLabelValues("google", result).Inc() }()

	identity, err := a.Google.Verify(ctx, idToken)
	if err != nil {
		result = "failure"
		return nil, domain.ErrInvalidGoogleToken
	}

	usr, err := a.Store.GetByGoogleID(ctx, identity.GoogleID)
	switch {
	case err == nil:
		// Known federated identity; nothing to change.
	case errors.Is(err, store.ErrRecordNotFound):
		usr, err = a.adoptGoogleIdentity(ctx, identity)
		if err != nil {
			result = "failure"
			return nil, err
		}
	default:
		result = "failure"
		return nil, err
	}

	session, err := a.issueToken(usr, "google")
	if err != nil {
		result = "failure"
		return nil, err
	}
	return &dto.AuthResponse{User: usr, Token: session}, nil
}

// adoptGoogleIdentity links the federated identity to an existing account with
// the same email, or creates a fresh federated account. Either way exactly one
// account exists for the email afterwards.
func (a *AccountServiceImpl) adoptGoogleIdentity(ctx context.Context, identity *service.GoogleIdentity) (*domain.User, error) {
	email := normalizeEmail(identity.Email)

	existing, err := a.Store.GetByEmail(ctx, email)
	if err == nil {
		var picture *string
		if identity.Picture != "" {
			picture = &identity.Picture
		}
		if err := a.Store.LinkGoogle(ctx, existing.ID, identity.GoogleID, picture); err != nil {
			return nil, err
		}
		slog.Info("google identity linked", "account_id", existing.ID)
		return a.Store.GetByID(ctx, existing.ID)
	}
	if !errors.Is(err, store.ErrRecordNotFound) {
		return nil, err
	}

	firstName, lastName := splitDisplayName(identity.Name)
	usr := &domain.User{
		FirstName:       firstName,
		LastName:        lastName,
		Email:           email,
		GoogleID:        &identity.GoogleID,
		AuthProvider:    domain.ProviderGoogle,
		IsEmailVerified: true, // the provider asserted email ownership
	}
	if identity.Picture != "" {
		usr.ProfilePicture = &identity.Picture
	}
	if err := a.Store.Create(ctx, usr); err != nil {
		return nil, err
	}
	slog.Info("google account created", "account_id", usr.ID)
	return usr, nil
}

func (a *AccountServiceImpl) ForgotPassword(ctx context.Context, email string) (*dto.MessageResponse, error) {
	ack := &dto.MessageResponse{Message: msgResetRequested}

	usr, err := a.Store.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		// Anti-enumeration: the acknowledgment never varies.
		if errors.Is(err, store.ErrRecordNotFound) {
			return ack, nil
		}
		return nil, err
	}

	token, err := newSecureToken()
	if err != nil {
		return nil, err
	}
	expires := time.Now().UTC().Add(a.ResetTTL)
	if err := a.Store.SetResetToken(ctx, usr.ID, token, expires); err != nil {
		return nil, err
	}

	// Best effort: a failed reset mail must not change the response shape.
	if err := a.Mailer.SendPasswordReset(ctx, usr.Email, token, usr.FirstName); err != nil {
		slog.Warn("reset mail dispatch failed", "account_id", usr.ID, "error", err)
	}
	return ack, nil
}

func (a *AccountServiceImpl) ResetPassword(ctx context.Context, token, newPassword string) (*dto.MessageResponse, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, domain.ErrInvalidToken
	}
	if len(newPassword) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", domain.ErrValidation, minPasswordLength)
	}

	usr, err := a.Store.GetByResetToken(ctx, token)
	if err != nil {
		return nil, domain.ErrInvalidToken
	}
	if usr.PasswordResetExpires == nil || time.Now().After(*usr.PasswordResetExpires) {
		return nil, domain.ErrInvalidToken
	}

	hash, err := a.Password.Hash(newPassword)
	if err != nil {
		return nil, err
	}
	// SetPassword clears the reset pair; the token is single use.
	if err := a.Store.SetPassword(ctx, usr.ID, hash); err != nil {
		return nil, err
	}

	slog.Info("password reset", "account_id", usr.ID)
	return &dto.MessageResponse{Message: msgPasswordChanged}, nil
}

func (a *AccountServiceImpl) GetProfile(ctx context.Context, accountID uint) (*domain.User, error) {
	usr, err := a.Store.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, err
	}
	return usr, nil
}

func (a *AccountServiceImpl) UpdateProfile(ctx context.Context, accountID uint, r dto.UpdateProfileRequest) (*domain.User, error) {
	usr, err := a.GetProfile(ctx, accountID)
	if err != nil {
		return nil, err
	}

	fields := map[string]interface{}{}
	if r.FirstName != nil {
		v := strings.TrimSpace(*r.FirstName)
		if v == "" {
			return nil, fmt.Errorf("%w: firstName cannot be empty", domain.ErrValidation)
		}
		fields["first_name"] = v
	}
	if r.LastName != nil {
		v := strings.TrimSpace(*r.LastName)
		if v == "" {
			return nil, fmt.Errorf("%w: lastName cannot be empty", domain.ErrValidation)
		}
		fields["last_name"] = v
	}
	if r.Email != nil {
		email := normalizeEmail(*r.Email)
		if email == "" {
			return nil, fmt.Errorf("%w: email cannot be empty", domain.ErrValidation)
		}
		if email != usr.Email {
			if other, err := a.Store.GetByEmail(ctx, email); err == nil && other.ID != usr.ID {
				return nil, domain.ErrEmailTaken
			} else if err != nil && !errors.Is(err, store.ErrRecordNotFound) {
				return nil, err
			}
			fields["email"] = email
		}
	}

	if err := a.Store.Update(ctx, usr.ID, fields); err != nil {
		return nil, err
	}
	return a.Store.GetByID(ctx, usr.ID)
}

func (a *AccountServiceImpl) DeleteAccount(ctx context.Context, accountID uint) error {
	if err := a.Store.Delete(ctx, accountID); err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return domain.ErrAccountNotFound
		}
		return err
	}
	slog.Info("account deleted", "account_id", accountID)
	return nil
}

// ---- helpers ----

func (a *AccountServiceImpl) issueToken(usr *domain.User, flow string) (string, error) {
	token, err := a.Tokens.Issue(usr.ID, usr.Email)
	result := "success"
	if err != nil {
		result = "failure"
	}
	metrics.TokensIssuedTotal.WithLabelValues(flow, result).Inc()
	return token, err
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func newSecureToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// splitDisplayName breaks a provider-asserted display name into first/last on
// the first space.
func splitDisplayName(name string) (string, string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ""
	}
	parts := strings.SplitN(name, " ", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}
