package impl

import (
	"strconv"
	"time"

	"puppins-auth/internal/domain"
	"puppins-auth/internal/service"

	"github.com/golang-jwt/jwt/v5"
)

type TokenConfig struct {
	Issuer     string
	Audience   string
	TTL        time.Duration // e.g. 24h
	SigningKey []byte        // HS256 secret
}

type sessionClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// TokenServiceImpl mints stateless HS256 bearer tokens. There is no session
// row and no revocation list; a token stays valid until its expiry.
type TokenServiceImpl struct {
	cfg TokenConfig
}

func NewTokenServiceHS256(cfg TokenConfig) *TokenServiceImpl {
	return &TokenServiceImpl{cfg: cfg}
}

func (t *TokenServiceImpl) Issue(accountID uint, email string) (string, error) {
	now := time.Now().UTC()
	claims := sessionClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.cfg.Issuer,
			Subject:   strconv.FormatUint(uint64(accountID), 10),
			Audience:  jwt.ClaimStrings{t.cfg.Audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(t.cfg.TTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.cfg.SigningKey)
}

func (t *TokenServiceImpl) Verify(tokenStr string) (*service.SessionClaims, error) {
	claims := &sessionClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	tok, err := parser.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return t.cfg.SigningKey, nil
	})
	if err != nil || !tok.Valid {
		return nil, domain.ErrInvalidToken
	}
	// Issuer/audience enforced manually, kept explicit as elsewhere.
	if claims.Issuer != t.cfg.Issuer {
		return nil, domain.ErrInvalidToken
	}
	if !containsAudience(claims.Audience, t.cfg.Audience) {
		return nil, domain.ErrInvalidToken
	}

	accountID, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || accountID == 0 {
		return nil, domain.ErrInvalidToken
	}
	return &service.SessionClaims{
		AccountID: uint(accountID),
		Email:     claims.Email,
	}, nil
}

func containsAudience(aud jwt.ClaimStrings, expected string) bool {
	for _, a := range aud {
		if a == expected {
			return true
		}
	}
	return false
}
