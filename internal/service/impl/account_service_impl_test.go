package impl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"puppins-auth/internal/domain"
	"puppins-auth/internal/dto"
	"puppins-auth/internal/observability/metrics"
	"puppins-auth/internal/service"
	"puppins-auth/internal/store"
)

func TestMain(m *testing.M) {
	metrics.MustRegister("test")
	m.Run()
}

// ---- fakes ----

type memoryStore struct {
	mu     sync.Mutex
	nextID uint
	users  map[uint]*domain.User
}

func newMemoryStore() *memoryStore {
	return &memoryStore{users: make(map[uint]*domain.User)}
}

func cloneUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	out := *u
	clone := func(s *string) *string {
		if s == nil {
			return nil
		}
		v := *s
		return &v
	}
	cloneTime := func(t *time.Time) *time.Time {
		if t == nil {
			return nil
		}
		v := *t
		return &v
	}
	out.PasswordHash = clone(u.PasswordHash)
	out.GoogleID = clone(u.GoogleID)
	out.ProfilePicture = clone(u.ProfilePicture)
	out.EmailVerificationToken = clone(u.EmailVerificationToken)
	out.EmailVerificationExpires = cloneTime(u.EmailVerificationExpires)
	out.PasswordResetToken = clone(u.PasswordResetToken)
	out.PasswordResetExpires = cloneTime(u.PasswordResetExpires)
	return &out
}

func (m *memoryStore) Create(ctx context.Context, usr *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == usr.Email {
			return errors.New("duplicate email")
		}
	}
	m.nextID++
	usr.ID = m.nextID
	usr.CreatedAt = time.Now().UTC()
	m.users[usr.ID] = cloneUser(usr)
	return nil
}

func (m *memoryStore) find(match func(*domain.User) bool) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			return cloneUser(u), nil
		}
	}
	return nil, store.ErrRecordNotFound
}

func (m *memoryStore) GetByID(ctx context.Context, id uint) (*domain.User, error) {
	return m.find(func(u *domain.User) bool { return u.ID == id })
}

func (m *memoryStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return m.find(func(u *domain.User) bool { return u.Email == email })
}

func (m *memoryStore) GetByGoogleID(ctx context.Context, googleID string) (*domain.User, error) {
	return m.find(func(u *domain.User) bool { return u.GoogleID != nil && *u.GoogleID == googleID })
}

func (m *memoryStore) GetByVerificationToken(ctx context.Context, token string) (*domain.User, error) {
	return m.find(func(u *domain.User) bool {
		return u.EmailVerificationToken != nil && *u.EmailVerificationToken == token
	})
}

func (m *memoryStore) GetByResetToken(ctx context.Context, token string) (*domain.User, error) {
	return m.find(func(u *domain.User) bool {
		return u.PasswordResetToken != nil && *u.PasswordResetToken == token
	})
}

func (m *memoryStore) mutate(id uint, fn func(*domain.User)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return store.ErrRecordNotFound
	}
	fn(u)
	return nil
}

func (m *memoryStore) MarkEmailVerified(ctx context.Context, id uint) error {
	return m.mutate(id, func(u *domain.User) {
		u.IsEmailVerified = true
		u.EmailVerificationToken = nil
		u.EmailVerificationExpires = nil
	})
}

func (m *memoryStore) SetVerificationToken(ctx context.Context, id uint, token string, expires time.Time) error {
	return m.mutate(id, func(u *domain.User) {
		u.EmailVerificationToken = &token
		u.EmailVerificationExpires = &expires
	})
}

func (m *memoryStore) SetResetToken(ctx context.Context, id uint, token string, expires time.Time) error {
	return m.mutate(id, func(u *domain.User) {
		u.PasswordResetToken = &token
		u.PasswordResetExpires = &expires
	})
}

func (m *memoryStore) SetPassword(ctx context.Context, id uint, hash string) error {
	return m.mutate(id, func(u *domain.User) {
		u.PasswordHash = &hash
		u.PasswordResetToken = nil
		u.PasswordResetExpires = nil
	})
}

func (m *memoryStore) LinkGoogle(ctx context.Context, id uint, googleID string, picture *string) error {
	return m.mutate(id, func(u *domain.User) {
		u.GoogleID = &googleID
		u.AuthProvider = domain.ProviderHybrid
		if picture != nil && u.ProfilePicture == nil {
			v := *picture
			u.ProfilePicture = &v
		}
	})
}

func (m *memoryStore) Update(ctx context.Context, id uint, fields map[string]interface{}) error {
	return m.mutate(id, func(u *domain.User) {
		if v, ok := fields["first_name"].(string); ok {
			u.FirstName = v
		}
		if v, ok := fields["last_name"].(string); ok {
			u.LastName = v
		}
		if v, ok := fields["email"].(string); ok {
			u.Email = v
		}
	})
}

func (m *memoryStore) Delete(ctx context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return store.ErrRecordNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *memoryStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users)
}

type stubPasswordService struct{}

func (stubPasswordService) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	return "hashed:" + password, nil
}

func (stubPasswordService) Verify(password, encoded string) bool {
	return encoded == "hashed:"+password
}

type stubTokenService struct {
	issueErr error
}

func (s *stubTokenService) Issue(accountID uint, email string) (string, error) {
	if s.issueErr != nil {
		return "", s.issueErr
	}
	return fmt.Sprintf("session-%d-%s", accountID, email), nil
}

func (s *stubTokenService) Verify(token string) (*service.SessionClaims, error) {
	return nil, domain.ErrInvalidToken
}

type stubGoogleVerifier struct {
	identity *service.GoogleIdentity
	err      error
}

func (s *stubGoogleVerifier) Verify(ctx context.Context, idToken string) (*service.GoogleIdentity, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.identity, nil
}

type sentMail struct {
	email, token, firstName string
}

type recordingMailer struct {
	verifications []sentMail
	resets        []sentMail
	failNext      error
}

func (r *recordingMailer) SendVerification(ctx context.Context, email, token, firstName string) error {
	if r.failNext != nil {
		err := r.failNext
		r.failNext = nil
		return err
	}
	r.verifications = append(r.verifications, sentMail{email, token, firstName})
	return nil
}

func (r *recordingMailer) SendPasswordReset(ctx context.Context, email, token, firstName string) error {
	if r.failNext != nil {
		err := r.failNext
		r.failNext = nil
		return err
	}
	r.resets = append(r.resets, sentMail{email, token, firstName})
	return nil
}

type testEnv struct {
	svc    *AccountServiceImpl
	store  *memoryStore
	mailer *recordingMailer
	google *stubGoogleVerifier
}

func newTestEnv() *testEnv {
	ms := newMemoryStore()
	mailer := &recordingMailer{}
	google := &stubGoogleVerifier{err: domain.ErrInvalidGoogleToken}
	svc := &AccountServiceImpl{
		Store:           ms,
		Password:        stubPasswordService{},
		Tokens:          &stubTokenService{},
		Google:          google,
		Mailer:          mailer,
		VerificationTTL: 24 * time.Hour,
		ResetTTL:        time.Hour,
	}
	return &testEnv{svc: svc, store: ms, mailer: mailer, google: google}
}

func registerReq() dto.RegisterRequest {
	return dto.RegisterRequest{
		FirstName: "Marko",
		LastName:  "Petrovic",
		Email:     "marko@example.com",
		Password:  "password123",
	}
}

// ---- registration ----

func TestRegisterCreatesUnverifiedAccount(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	if _, err := env.svc.Register(ctx, registerReq()); err != nil {
		t.Fatalf("register: %v", err)
	}

	usr, err := env.store.GetByEmail(ctx, "marko@example.com")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if usr.IsEmailVerified {
		t.Error("fresh local account must not be verified")
	}
	if usr.AuthProvider != domain.ProviderLocal {
		t.Errorf("provider = %q, want local", usr.AuthProvider)
	}
	if usr.PasswordHash == nil || *usr.PasswordHash != "hashed:password123" {
		t.Error("password was not hashed through the password service")
	}
	if usr.EmailVerificationToken == nil || len(*usr.EmailVerificationToken) != 64 {
		t.Fatalf("verification token missing or wrong size: %v", usr.EmailVerificationToken)
	}
	if usr.EmailVerificationExpires == nil {
		t.Fatal("verification expiry missing")
	}
	want := time.Now().UTC().Add(24 * time.Hour)
	if diff := usr.EmailVerificationExpires.Sub(want); diff < -time.Minute || diff > time.Minute {
		t.Errorf("verification expiry off by %v", diff)
	}

	if len(env.mailer.verifications) != 1 {
		t.Fatalf("expected one verification mail, got %d", len(env.mailer.verifications))
	}
	if env.mailer.verifications[0].token != *usr.EmailVerificationToken {
		t.Error("mail carries a different token than the stored one")
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	if _, err := env.svc.Register(ctx, registerReq()); err != nil {
		t.Fatalf("first register: %v", err)
	}
	_, err := env.svc.Register(ctx, registerReq())
	if !errors.Is(err, domain.ErrEmailTaken) {
		t.Fatalf("second register err = %v, want ErrEmailTaken", err)
	}
	if env.store.count() != 1 {
		t.Errorf("store has %d accounts, want 1", env.store.count())
	}
}

func TestRegisterNormalizesEmail(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	req := registerReq()
	req.Email = "  Marko@Example.COM "
	if _, err := env.svc.Register(ctx, req); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := env.store.GetByEmail(ctx, "marko@example.com"); err != nil {
		t.Fatal("email was not normalized to lower case")
	}

	_, err := env.svc.Register(ctx, registerReq())
	if !errors.Is(err, domain.ErrEmailTaken) {
		t.Fatalf("case-varied duplicate err = %v, want ErrEmailTaken", err)
	}
}

func TestRegisterShortPassword(t *testing.T) {
	env := newTestEnv()

	req := registerReq()
	req.Password = "short"
	_, err := env.svc.Register(context.Background(), req)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestRegisterMailFailureIsFatal(t *testing.T) {
	env := newTestEnv()
	env.mailer.failNext = errors.New("smtp down")

	if _, err := env.svc.Register(context.Background(), registerReq()); err == nil {
		t.Fatal("expected error when verification mail fails")
	}
}

// ---- email verification ----

func TestVerifyEmailSuccess(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	if _, err := env.svc.Register(ctx, registerReq()); err != nil {
		t.Fatalf("register: %v", err)
	}
	token := env.mailer.verifications[0].token

	res, err := env.svc.VerifyEmail(ctx, token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if res.Token == "" {
		t.Error("expected a session token after verification")
	}

	usr, _ := env.store.GetByEmail(ctx, "marko@example.com")
	if !usr.IsEmailVerified {
		t.Error("verified flag not set")
	}
	if usr.EmailVerificationToken != nil || usr.EmailVerificationExpires != nil {
		t.Error("verification token pair not cleared")
	}

	// The token is single use.
	if _, err := env.svc.VerifyEmail(ctx, token); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("reused token err = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyEmailUnknownToken(t *testing.T) {
	env := newTestEnv()
	_, err := env.svc.VerifyEmail(context.Background(), "nope")
	if !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyEmailExpiredToken(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	if _, err := env.svc.Register(ctx, registerReq()); err != nil {
		t.Fatalf("register: %v", err)
	}
	token := env.mailer.verifications[0].token

	usr, _ := env.store.GetByEmail(ctx, "marko@example.com")
	past := time.Now().UTC().Add(-time.Minute)
	if err := env.store.SetVerificationToken(ctx, usr.ID, token, past); err != nil {
		t.Fatal(err)
	}

	if _, err := env.svc.VerifyEmail(ctx, token); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}

	usr, _ = env.store.GetByEmail(ctx, "marko@example.com")
	if usr.IsEmailVerified {
		t.Error("expired token must not verify the account")
	}
	if usr.EmailVerificationToken == nil {
		t.Error("expired token must be left in place for a resend to rotate")
	}
}

// ---- resend verification ----

func TestResendVerificationRotatesToken(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	if _, err := env.svc.Register(ctx, registerReq()); err != nil {
		t.Fatalf("register: %v", err)
	}
	first := env.mailer.verifications[0].token

	if _, err := env.svc.ResendVerification(ctx, "marko@example.com"); err != nil {
		t.Fatalf("resend: %v", err)
	}
	if len(env.mailer.verifications) != 2 {
		t.Fatalf("expected two mails, got %d", len(env.mailer.verifications))
	}
	second := env.mailer.verifications[1].token
	if first == second {
		t.Error("resend must rotate the verification token")
	}

	// The old token no longer matches anything.
	if _, err := env.svc.VerifyEmail(ctx, first); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("old token err = %v, want ErrInvalidToken", err)
	}
	if _, err := env.svc.VerifyEmail(ctx, second); err != nil {
		t.Fatalf("new token verify: %v", err)
	}
}

func TestResendVerificationUnknownEmail(t *testing.T) {
	env := newTestEnv()
	_, err := env.svc.ResendVerification(context.Background(), "ghost@example.com")
	if !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("err = %v, want ErrAccountNotFound", err)
	}
}

func TestResendVerificationAlreadyVerified(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	if _, err := env.svc.Register(ctx, registerReq()); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := env.svc.VerifyEmail(ctx, env.mailer.verifications[0].token); err != nil {
		t.Fatalf("verify: %v", err)
	}

	_, err := env.svc.ResendVerification(ctx, "marko@example.com")
	if !errors.Is(err, domain.ErrAlreadyVerified) {
		t.Fatalf("err = %v, want ErrAlreadyVerified", err)
	}
}

// ---- login ----

func TestLoginBeforeVerification(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	if _, err := env.svc.Register(ctx, registerReq()); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, err := env.svc.Login(ctx, dto.LoginRequest{Email: "marko@example.com", Password: "password123"})
	if !errors.Is(err, domain.ErrEmailNotVerified) {
		t.Fatalf("err = %v, want ErrEmailNotVerified", err)
	}
}

func TestLoginSuccessAfterVerification(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	if _, err := env.svc.Register(ctx, registerReq()); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := env.svc.VerifyEmail(ctx, env.mailer.verifications[0].token); err != nil {
		t.Fatalf("verify: %v", err)
	}

	res, err := env.svc.Login(ctx, dto.LoginRequest{Email: "marko@example.com", Password: "password123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.Token == "" {
		t.Error("expected session token")
	}
	if res.User == nil || res.User.Email != "marko@example.com" {
		t.Errorf("unexpected user in response: %+v", res.User)
	}
}

func TestLoginDoesNotDistinguishUnknownEmailFromWrongPassword(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	if _, err := env.svc.Register(ctx, registerReq()); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := env.svc.VerifyEmail(ctx, env.mailer.verifications[0].token); err != nil {
		t.Fatalf("verify: %v", err)
	}

	_, errUnknown := env.svc.Login(ctx, dto.LoginRequest{Email: "ghost@example.com", Password: "password123"})
	_, errWrong := env.svc.Login(ctx, dto.LoginRequest{Email: "marko@example.com", Password: "wrong"})

	if !errors.Is(errUnknown, domain.ErrInvalidCredentials) || !errors.Is(errWrong, domain.ErrInvalidCredentials) {
		t.Fatalf("errs = (%v, %v), both must be ErrInvalidCredentials", errUnknown, errWrong)
	}
	if errUnknown.Error() != errWrong.Error() {
		t.Error("unknown-email and wrong-password outcomes must be indistinguishable")
	}
}

// ---- forgot / reset password ----

func TestForgotPasswordResponsesAreIdentical(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	if _, err := env.svc.Register(ctx, registerReq()); err != nil {
		t.Fatalf("register: %v", err)
	}

	known, err := env.svc.ForgotPassword(ctx, "marko@example.com")
	if err != nil {
		t.Fatalf("forgot known: %v", err)
	}
	unknown, err := env.svc.ForgotPassword(ctx, "ghost@example.com")
	if err != nil {
		t.Fatalf("forgot unknown: %v", err)
	}
	if known.Message != unknown.Message {
		t.Errorf("responses differ: %q vs %q", known.Message, unknown.Message)
	}

	if len(env.mailer.resets) != 1 {
		t.Fatalf("expected exactly one reset mail, got %d", len(env.mailer.resets))
	}

	usr, _ := env.store.GetByEmail(ctx, "marko@example.com")
	if usr.PasswordResetToken == nil || usr.PasswordResetExpires == nil {
		t.Fatal("reset token pair not set")
	}
	want := time.Now().UTC().Add(time.Hour)
	if diff := usr.PasswordResetExpires.Sub(want); diff < -time.Minute || diff > time.Minute {
		t.Errorf("reset expiry off by %v", diff)
	}
}

func TestForgotPasswordMailFailureStillAcknowledges(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	if _, err := env.svc.Register(ctx, registerReq()); err != nil {
		t.Fatalf("register: %v", err)
	}
	env.mailer.failNext = errors.New("smtp down")

	res, err := env.svc.ForgotPassword(ctx, "marko@example.com")
	if err != nil {
		t.Fatalf("forgot: %v", err)
	}
	if res.Message != msgResetRequested {
		t.Errorf("message = %q", res.Message)
	}
}

func TestResetPasswordFlow(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	if _, err := env.svc.Register(ctx, registerReq()); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := env.svc.VerifyEmail(ctx, env.mailer.verifications[0].token); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if _, err := env.svc.ForgotPassword(ctx, "marko@example.com"); err != nil {
		t.Fatalf("forgot: %v", err)
	}
	resetToken := env.mailer.resets[0].token

	if _, err := env.svc.ResetPassword(ctx, resetToken, "newpassword"); err != nil {
		t.Fatalf("reset: %v", err)
	}

	if _, err := env.svc.Login(ctx, dto.LoginRequest{Email: "marko@example.com", Password: "password123"}); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("old password err = %v, want ErrInvalidCredentials", err)
	}
	if _, err := env.svc.Login(ctx, dto.LoginRequest{Email: "marko@example.com", Password: "newpassword"}); err != nil {
		t.Fatalf("new password login: %v", err)
	}

	// The reset token is single use.
	if _, err := env.svc.ResetPassword(ctx, resetToken, "anotherpassword"); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("reused reset token err = %v, want ErrInvalidToken", err)
	}
}

func TestResetPasswordExpiredToken(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	if _, err := env.svc.Register(ctx, registerReq()); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := env.svc.ForgotPassword(ctx, "marko@example.com"); err != nil {
		t.Fatalf("forgot: %v", err)
	}
	resetToken := env.mailer.resets[0].token

	usr, _ := env.store.GetByEmail(ctx, "marko@example.com")
	past := time.Now().UTC().Add(-time.Minute)
	if err := env.store.SetResetToken(ctx, usr.ID, resetToken, past); err != nil {
		t.Fatal(err)
	}

	if _, err := env.svc.ResetPassword(ctx, resetToken, "newpassword"); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

// ---- google sign-in ----

func googleIdentity() *service.GoogleIdentity {
	return &service.GoogleIdentity{
		GoogleID:      "google-sub-1",
		Email:         "marko@example.com",
		Name:          "Marko Petrovic",
		Picture:       "https://lh3.example.com/p.jpg",
		EmailVerified: true,
	}
}

func TestGoogleAuthCreatesVerifiedAccount(t *testing.T) {
	env := newTestEnv()
	env.google.err = nil
	env.google.identity = googleIdentity()

	res, err := env.svc.GoogleAuth(context.Background(), "id-token")
	if err != nil {
		t.Fatalf("google auth: %v", err)
	}
	if res.Token == "" {
		t.Error("expected session token")
	}

	usr := res.User
	if !usr.IsEmailVerified {
		t.Error("federated account must be verified immediately")
	}
	if usr.AuthProvider != domain.ProviderGoogle {
		t.Errorf("provider = %q, want google", usr.AuthProvider)
	}
	if usr.FirstName != "Marko" || usr.LastName != "Petrovic" {
		t.Errorf("name split = %q %q", usr.FirstName, usr.LastName)
	}
	if usr.ProfilePicture == nil || *usr.ProfilePicture == "" {
		t.Error("picture not stored")
	}
	if usr.PasswordHash != nil {
		t.Error("federated account must have no password hash")
	}
}

func TestGoogleAuthLinksExistingLocalAccount(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	if _, err := env.svc.Register(ctx, registerReq()); err != nil {
		t.Fatalf("register: %v", err)
	}

	env.google.err = nil
	env.google.identity = googleIdentity()

	res, err := env.svc.GoogleAuth(ctx, "id-token")
	if err != nil {
		t.Fatalf("google auth: %v", err)
	}

	if env.store.count() != 1 {
		t.Fatalf("store has %d accounts, want exactly 1", env.store.count())
	}
	if res.User.AuthProvider != domain.ProviderHybrid {
		t.Errorf("provider = %q, want hybrid", res.User.AuthProvider)
	}
	if res.User.GoogleID == nil || *res.User.GoogleID != "google-sub-1" {
		t.Error("google id not linked")
	}
	if res.User.PasswordHash == nil {
		t.Error("linking must keep the local password hash")
	}
}

func TestGoogleAuthReusesLinkedAccount(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.google.err = nil
	env.google.identity = googleIdentity()

	first, err := env.svc.GoogleAuth(ctx, "id-token")
	if err != nil {
		t.Fatalf("first google auth: %v", err)
	}
	second, err := env.svc.GoogleAuth(ctx, "id-token")
	if err != nil {
		t.Fatalf("second google auth: %v", err)
	}
	if first.User.ID != second.User.ID {
		t.Error("repeat federated sign-in must reuse the account")
	}
	if env.store.count() != 1 {
		t.Errorf("store has %d accounts, want 1", env.store.count())
	}
}

func TestGoogleAuthInvalidToken(t *testing.T) {
	env := newTestEnv()
	_, err := env.svc.GoogleAuth(context.Background(), "garbage")
	if !errors.Is(err, domain.ErrInvalidGoogleToken) {
		t.Fatalf("err = %v, want ErrInvalidGoogleToken", err)
	}
}

// ---- profile ----

func verifiedAccount(t *testing.T, env *testEnv) *domain.User {
	t.Helper()
	ctx := context.Background()
	if _, err := env.svc.Register(ctx, registerReq()); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := env.svc.VerifyEmail(ctx, env.mailer.verifications[0].token); err != nil {
		t.Fatalf("verify: %v", err)
	}
	usr, err := env.store.GetByEmail(ctx, "marko@example.com")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	return usr
}

func TestUpdateProfilePatchesFields(t *testing.T) {
	env := newTestEnv()
	usr := verifiedAccount(t, env)

	first := "Mirko"
	email := "mirko@example.com"
	updated, err := env.svc.UpdateProfile(context.Background(), usr.ID, dto.UpdateProfileRequest{
		FirstName: &first,
		Email:     &email,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.FirstName != "Mirko" || updated.Email != "mirko@example.com" {
		t.Errorf("patch not applied: %+v", updated)
	}
	if updated.LastName != "Petrovic" {
		t.Error("untouched field changed")
	}
}

func TestUpdateProfileEmailConflict(t *testing.T) {
	env := newTestEnv()
	usr := verifiedAccount(t, env)
	ctx := context.Background()

	other := registerReq()
	other.Email = "other@example.com"
	if _, err := env.svc.Register(ctx, other); err != nil {
		t.Fatalf("register other: %v", err)
	}

	email := "other@example.com"
	_, err := env.svc.UpdateProfile(ctx, usr.ID, dto.UpdateProfileRequest{Email: &email})
	if !errors.Is(err, domain.ErrEmailTaken) {
		t.Fatalf("err = %v, want ErrEmailTaken", err)
	}
}

func TestUpdateProfileDoesNotRehashPassword(t *testing.T) {
	env := newTestEnv()
	usr := verifiedAccount(t, env)
	before := *usr.PasswordHash

	first := "Mirko"
	if _, err := env.svc.UpdateProfile(context.Background(), usr.ID, dto.UpdateProfileRequest{FirstName: &first}); err != nil {
		t.Fatalf("update: %v", err)
	}

	after, _ := env.store.GetByID(context.Background(), usr.ID)
	if *after.PasswordHash != before {
		t.Error("profile update must not touch the password hash")
	}
}

func TestDeleteAccount(t *testing.T) {
	env := newTestEnv()
	usr := verifiedAccount(t, env)
	ctx := context.Background()

	if err := env.svc.DeleteAccount(ctx, usr.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.svc.GetProfile(ctx, usr.ID); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("err = %v, want ErrAccountNotFound", err)
	}
	if err := env.svc.DeleteAccount(ctx, usr.ID); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("second delete err = %v, want ErrAccountNotFound", err)
	}
}

func TestTokensAreHighEntropy(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 64; i++ {
		token, err := newSecureToken()
		if err != nil {
			t.Fatal(err)
		}
		if len(token) != 64 {
			t.Fatalf("token %q has length %d, want 64 hex chars", token, len(token))
		}
		if seen[token] {
			t.Fatal("duplicate token generated")
		}
		seen[token] = true
		if strings.ToLower(token) != token {
			t.Error("tokens are lower-case hex")
		}
	}
}
