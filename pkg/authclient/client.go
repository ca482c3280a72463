// Package authclient is a Go client for the puppins-auth HTTP surface. It is
// the server-side counterpart of the mobile app's API layer: it keeps the
// bearer token from the last successful sign-in and attaches it to
// authenticated calls.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithToken seeds the bearer token, e.g. one restored from secure storage.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns the current bearer token, empty when signed out.
func (c *Client) Token() string { return c.token }

// SetToken replaces the stored bearer token.
func (c *Client) SetToken(token string) { c.token = token }

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("auth service: %d: %s", e.StatusCode, e.Message)
}

type Account struct {
	ID              uint   `json:"id"`
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	Email           string `json:"email"`
	ProfilePicture  string `json:"profilePicture,omitempty"`
	AuthProvider    string `json:"authProvider"`
	IsEmailVerified bool   `json:"isEmailVerified"`
	CreatedAt       string `json:"createdAt"`
}

type AuthResult struct {
	User  Account `json:"user"`
	Token string  `json:"token"`
}

type RegisterParams struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

type ProfilePatch struct {
	FirstName *string `json:"firstName,omitempty"`
	LastName  *string `json:"lastName,omitempty"`
	Email     *string `json:"email,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type verifyEmailResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
}

// Register creates a new account; the user must confirm their email before
// logging in.
func (c *Client) Register(ctx context.Context, params RegisterParams) (string, error) {
	var out messageResponse
	if err := c.do(ctx, http.MethodPost, "/auth/register", params, &out, false); err != nil {
		return "", err
	}
	return out.Message, nil
}

// VerifyEmail consumes a verification token, usually extracted from a deep
// link, and signs the client in.
func (c *Client) VerifyEmail(ctx context.Context, token string) (string, error) {
	var out verifyEmailResponse
	path := "/auth/verify-email?token=" + url.QueryEscape(token)
	if err := c.do(ctx, http.MethodGet, path, nil, &out, false); err != nil {
		return "", err
	}
	c.token = out.Token
	return out.Message, nil
}

func (c *Client) ResendVerification(ctx context.Context, email string) (string, error) {
	var out messageResponse
	if err := c.do(ctx, http.MethodPost, "/auth/resend-verification", map[string]string{"email": email}, &out, false); err != nil {
		return "", err
	}
	return out.Message, nil
}

// Login exchanges credentials for an account and a bearer token, which the
// client stores for subsequent calls.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	var out AuthResult
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, &out, false); err != nil {
		return nil, err
	}
	c.token = out.Token
	return &out, nil
}

// GoogleLogin exchanges a Google ID token for an account and a bearer token.
func (c *Client) GoogleLogin(ctx context.Context, idToken string) (*AuthResult, error) {
	var out AuthResult
	if err := c.do(ctx, http.MethodPost, "/auth/google", map[string]string{"idToken": idToken}, &out, false); err != nil {
		return nil, err
	}
	c.token = out.Token
	return &out, nil
}

func (c *Client) ForgotPassword(ctx context.Context, email string) (string, error) {
	var out messageResponse
	if err := c.do(ctx, http.MethodPost, "/auth/forgot-password", map[string]string{"email": email}, &out, false); err != nil {
		return "", err
	}
	return out.Message, nil
}

func (c *Client) ResetPassword(ctx context.Context, token, newPassword string) (string, error) {
	var out messageResponse
	body := map[string]string{"token": token, "newPassword": newPassword}
	if err := c.do(ctx, http.MethodPost, "/auth/reset-password", body, &out, false); err != nil {
		return "", err
	}
	return out.Message, nil
}

func (c *Client) Profile(ctx context.Context) (*Account, error) {
	var out Account
	if err := c.do(ctx, http.MethodGet, "/auth/profile", nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateProfile(ctx context.Context, patch ProfilePatch) (*Account, error) {
	var out Account
	if err := c.do(ctx, http.MethodPut, "/auth/profile", patch, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteAccount removes the signed-in account and clears the stored token.
func (c *Client) DeleteAccount(ctx context.Context) (string, error) {
	var out messageResponse
	if err := c.do(ctx, http.MethodDelete, "/auth/account", nil, &out, true); err != nil {
		return "", err
	}
	c.token = ""
	return out.Message, nil
}

// TokenFromDeepLink extracts the token query parameter from a verification or
// reset deep link (e.g. "puppins://verify-email?token=abc").
func TokenFromDeepLink(link string) (string, error) {
	u, err := url.Parse(link)
	if err != nil {
		return "", err
	}
	token := u.Query().Get("token")
	if token == "" {
		return "", errors.New("deep link has no token")
	}
	return token, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}, authed bool) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		if c.token == "" {
			return errors.New("not signed in")
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var msg messageResponse
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		if err := json.Unmarshal(data, &msg); err != nil || msg.Message == "" {
			msg.Message = strings.TrimSpace(string(data))
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg.Message}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
