package domain

import "time"

// AuthProvider records which mechanism established the account's identity.
type AuthProvider string

const (
	ProviderLocal  AuthProvider = "local"
	ProviderGoogle AuthProvider = "google"
	ProviderHybrid AuthProvider = "hybrid"
)

type User struct {
	ID              uint         `gorm:"primaryKey" db:"id" json:"id"`
	FirstName       string       `gorm:"size:50;not null" db:"first_name" json:"firstName"`
	LastName        string       `gorm:"size:50;not null" db:"last_name" json:"lastName"`
	Email           string       `gorm:"size:100;uniqueIndex:ux_users_email" db:"email" json:"email"`
	PasswordHash    *string      `gorm:"type:text" db:"password_hash" json:"-"`
	GoogleID        *string      `gorm:"uniqueIndex:ux_users_google_id" db:"google_id" json:"-"`
	ProfilePicture  *string      `gorm:"type:text" db:"profile_picture" json:"profilePicture,omitempty"`
	AuthProvider    AuthProvider `gorm:"type:text;not null;default:local" db:"auth_provider" json:"authProvider"`
	IsEmailVerified bool         `gorm:"not null;default:false" db:"is_email_verified" json:"isEmailVerified"`

	// Verification and reset tokens live on the user row; each token and its
	// expiry are set and cleared together.
	EmailVerificationToken   *string    `gorm:"type:text;index" db:"email_verification_token" json:"-"`
	EmailVerificationExpires *time.Time `db:"email_verification_expires" json:"-"`
	PasswordResetToken       *string    `gorm:"type:text;index" db:"password_reset_token" json:"-"`
	PasswordResetExpires     *time.Time `db:"password_reset_expires" json:"-"`

	CreatedAt time.Time `gorm:"not null" db:"created_at" json:"createdAt"`
}

func (User) TableName() string { return "users" }

// HasPassword reports whether the account can authenticate with a password.
// Pure Google accounts have none until a reset flow sets one.
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}
