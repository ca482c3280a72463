package service

// SessionClaims are the verified contents of a bearer session token.
type SessionClaims struct {
	AccountID uint
	Email     string
}

// TokenService mints and verifies stateless bearer session tokens. Expiry is
// the only invalidation path; there is no server-side revocation.
type TokenService interface {
	Issue(accountID uint, email string) (string, error)
	Verify(token string) (*SessionClaims, error)
}
