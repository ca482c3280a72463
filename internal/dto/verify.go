package dto

type ResendVerificationRequest struct {
	Email string `json:"email"`
}

// VerifyEmailResponse carries a freshly minted session token so the client is
// signed in immediately after confirming the address.
type VerifyEmailResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
}
