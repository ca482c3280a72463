package service

import "context"

// EmailService delivers verification and reset links out-of-band. The caller
// decides whether a delivery failure is fatal to the triggering operation.
type EmailService interface {
	SendVerification(ctx context.Context, email, token, firstName string) error
	SendPasswordReset(ctx context.Context, email, token, firstName string) error
}
