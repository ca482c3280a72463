package dto

type GoogleAuthRequest struct {
	IDToken string `json:"idToken"`
}
