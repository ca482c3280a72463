package dto

// UpdateProfileRequest is a partial update; nil fields are left untouched.
// Password changes are deliberately not accepted here; they go through the
// reset flow.
type UpdateProfileRequest struct {
	FirstName *string `json:"firstName,omitempty"`
	LastName  *string `json:"lastName,omitempty"`
	Email     *string `json:"email,omitempty"`
}
