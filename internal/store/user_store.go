package store

import (
	"context"
	"errors"
	"time"

	"puppins-auth/internal/domain"

	"gorm.io/gorm"
)

type UserStore struct{ db *gorm.DB }

func (s *Store) Users() *UserStore { return &UserStore{db: s.DB} }

func (u *UserStore) Create(ctx context.Context, usr *domain.User) error {
	if usr.CreatedAt.IsZero() {
		usr.CreatedAt = time.Now().UTC()
	}
	return u.db.WithContext(ctx).Create(usr).Error
}

func (u *UserStore) GetByID(ctx context.Context, id uint) (*domain.User, error) {
	return u.first(ctx, "id = ?", id)
}

func (u *UserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return u.first(ctx, "email = ?", email)
}

func (u *UserStore) GetByGoogleID(ctx context.Context, googleID string) (*domain.User, error) {
	return u.first(ctx, "google_id = ?", googleID)
}

func (u *UserStore) GetByVerificationToken(ctx context.Context, token string) (*domain.User, error) {
	return u.first(ctx, "email_verification_token = ?", token)
}

func (u *UserStore) GetByResetToken(ctx context.Context, token string) (*domain.User, error) {
	return u.first(ctx, "password_reset_token = ?", token)
}

// MarkEmailVerified sets the verified flag and clears the token pair in one
// update.
func (u *UserStore) MarkEmailVerified(ctx context.Context, id uint) error {
	return u.updateByID(ctx, id, map[string]interface{}{
		"is_email_verified":          true,
		"email_verification_token":   nil,
		"email_verification_expires": nil,
	})
}

func (u *UserStore) SetVerificationToken(ctx context.Context, id uint, token string, expires time.Time) error {
	return u.updateByID(ctx, id, map[string]interface{}{
		"email_verification_token":   token,
		"email_verification_expires": expires,
	})
}

func (u *UserStore) SetResetToken(ctx context.Context, id uint, token string, expires time.Time) error {
	return u.updateByID(ctx, id, map[string]interface{}{
		"password_reset_token":   token,
		"password_reset_expires": expires,
	})
}

// SetPassword stores a new digest and clears the reset token pair. This is the
// only write path that touches password_hash after account creation.
func (u *UserStore) SetPassword(ctx context.Context, id uint, hash string) error {
	return u.updateByID(ctx, id, map[string]interface{}{
		"password_hash":          hash,
		"password_reset_token":   nil,
		"password_reset_expires": nil,
	})
}

// LinkGoogle attaches a federated identity to an existing account and promotes
// its provenance to hybrid. The picture is only filled in when the account has
// none yet.
func (u *UserStore) LinkGoogle(ctx context.Context, id uint, googleID string, picture *string) error {
	fields := map[string]interface{}{
		"google_id":     googleID,
		"auth_provider": domain.ProviderHybrid,
	}
	if picture != nil && *picture != "" {
		fields["profile_picture"] = gorm.Expr("COALESCE(profile_picture, ?)", *picture)
	}
	return u.updateByID(ctx, id, fields)
}

func (u *UserStore) Update(ctx context.Context, id uint, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	return u.updateByID(ctx, id, fields)
}

func (u *UserStore) Delete(ctx context.Context, id uint) error {
	res := u.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.User{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (u *UserStore) first(ctx context.Context, query string, arg interface{}) (*domain.User, error) {
	var user domain.User
	if err := u.db.WithContext(ctx).First(&user, query, arg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (u *UserStore) updateByID(ctx context.Context, id uint, fields map[string]interface{}) error {
	res := u.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", id).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}
