package impl

import (
	"context"
	"log/slog"
	"time"

	"puppins-auth/internal/domain"
	"puppins-auth/internal/service"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
)

const GoogleJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"

// GoogleVerifierImpl validates Google ID tokens against Google's published
// JWKS. Every failure mode collapses into domain.ErrInvalidGoogleToken; the
// underlying cause is only logged.
type GoogleVerifierImpl struct {
	jwks     *keyfunc.JWKS
	clientID string
}

func NewGoogleVerifier(ctx context.Context, jwksURL, clientID string) (*GoogleVerifierImpl, error) {
	options := keyfunc.Options{
		Ctx:               ctx,
		RefreshInterval:   time.Hour,
		RefreshTimeout:    time.Second * 10,
		RefreshUnknownKID: true,
	}
	jwks, err := keyfunc.Get(jwksURL, options)
	if err != nil {
		return nil, err
	}
	return &GoogleVerifierImpl{jwks: jwks, clientID: clientID}, nil
}

func (g *GoogleVerifierImpl) Verify(ctx context.Context, idToken string) (*service.GoogleIdentity, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"RS256"}))
	token, err := parser.Parse(idToken, g.jwks.Keyfunc)
	if err != nil || !token.Valid {
		slog.Warn("google token rejected", "error", err)
		return nil, domain.ErrInvalidGoogleToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, domain.ErrInvalidGoogleToken
	}
	if !claims.VerifyAudience(g.clientID, true) {
		slog.Warn("google token audience mismatch")
		return nil, domain.ErrInvalidGoogleToken
	}
	if iss, _ := claims["iss"].(string); iss != "accounts.google.com" && iss != "https://accounts.google.com" {
		slog.Warn("google token issuer mismatch", "issuer", iss)
		return nil, domain.ErrInvalidGoogleToken
	}

	sub, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	if sub == "" || email == "" {
		return nil, domain.ErrInvalidGoogleToken
	}

	name, _ := claims["name"].(string)
	picture, _ := claims["picture"].(string)
	emailVerified, _ := claims["email_verified"].(bool)

	return &service.GoogleIdentity{
		GoogleID:      sub,
		Email:         email,
		Name:          name,
		Picture:       picture,
		EmailVerified: emailVerified,
	}, nil
}

// googleVerifierDisabled stands in when no Google client ID is configured.
type googleVerifierDisabled struct{}

func NewGoogleVerifierDisabled() service.GoogleVerifier { return googleVerifierDisabled{} }

func (googleVerifierDisabled) Verify(ctx context.Context, idToken string) (*service.GoogleIdentity, error) {
	return nil, domain.ErrInvalidGoogleToken
}
