package service

import "context"

// GoogleIdentity is the claim set extracted from a verified Google ID token.
type GoogleIdentity struct {
	GoogleID      string
	Email         string
	Name          string
	Picture       string
	EmailVerified bool
}

// GoogleVerifier validates a Google ID token against the configured client ID
// and fails closed: any signature, expiry, or audience problem surfaces as the
// same generic invalid-token outcome.
type GoogleVerifier interface {
	Verify(ctx context.Context, idToken string) (*GoogleIdentity, error)
}
