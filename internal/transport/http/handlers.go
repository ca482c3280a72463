package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"

	"puppins-auth/internal/domain"
	"puppins-auth/internal/dto"
	"puppins-auth/internal/netutil"
	obsmw "puppins-auth/internal/observability/middleware"
	"puppins-auth/internal/service"
)

type handler struct {
	accounts service.AccountService

	// linkBaseURL is the app deep-link prefix the verify landing page
	// forwards into.
	linkBaseURL string
}

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return
	}
	if msg, ok := validateRegister(req); !ok {
		writeMessage(w, http.StatusBadRequest, msg)
		return
	}

	res, err := h.accounts.Register(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *handler) verifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	res, err := h.accounts.VerifyEmail(r.Context(), token)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) resendVerification(w http.ResponseWriter, r *http.Request) {
	var req dto.ResendVerificationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return
	}
	if !validEmail(req.Email) {
		writeMessage(w, http.StatusBadRequest, "a valid email is required")
		return
	}

	res, err := h.accounts.ResendVerification(r.Context(), req.Email)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return
	}
	if req.Email == "" || req.Password == "" {
		writeMessage(w, http.StatusBadRequest, "email and password are required")
		return
	}

	res, err := h.accounts.Login(r.Context(), req)
	if err != nil {
		slog.Warn("login rejected",
			"ip", clientIP(r),
			"user_agent", netutil.TruncateUserAgent(r.UserAgent()),
			"request_id", obsmw.RequestIDFromContext(r.Context()),
		)
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) googleAuth(w http.ResponseWriter, r *http.Request) {
	var req dto.GoogleAuthRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return
	}
	if strings.TrimSpace(req.IDToken) == "" {
		writeMessage(w, http.StatusBadRequest, "idToken is required")
		return
	}

	res, err := h.accounts.GoogleAuth(r.Context(), req.IDToken)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req dto.ForgotPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return
	}
	if !validEmail(req.Email) {
		writeMessage(w, http.StatusBadRequest, "a valid email is required")
		return
	}

	res, err := h.accounts.ForgotPassword(r.Context(), req.Email)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req dto.ResetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return
	}

	res, err := h.accounts.ResetPassword(r.Context(), req.Token, req.NewPassword)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) getProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "invalid token")
		return
	}
	usr, err := h.accounts.GetProfile(r.Context(), claims.AccountID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, usr)
}

func (h *handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "invalid token")
		return
	}
	var req dto.UpdateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return
	}
	if req.Email != nil && !validEmail(*req.Email) {
		writeMessage(w, http.StatusBadRequest, "a valid email is required")
		return
	}

	usr, err := h.accounts.UpdateProfile(r.Context(), claims.AccountID, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, usr)
}

func (h *handler) deleteAccount(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "invalid token")
		return
	}
	if err := h.accounts.DeleteAccount(r.Context(), claims.AccountID); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Your account has been deleted.")
}

// verifyEmailPage is a small landing page for mail clients that will not open
// the app scheme directly; it forwards the token into the deep link.
func (h *handler) verifyEmailPage(w http.ResponseWriter, r *http.Request) {
	link := strings.TrimSuffix(h.linkBaseURL, "/") + "/verify-email"
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, verifyPageHTML, link, link)
}

const verifyPageHTML = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Puppins</title></head>
<body>
<p>Opening the Puppins app&hellip;</p>
<script>
var token = new URLSearchParams(window.location.search).get("token") || "";
window.location.href = %q + "?token=" + encodeURIComponent(token);
</script>
<noscript><a href=%q>Open the Puppins app</a></noscript>
</body>
</html>`

// ---- shared helpers ----

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeMessage(w, http.StatusBadRequest, "bad request")
		return err
	}
	return nil
}

func validEmail(email string) bool {
	email = strings.TrimSpace(email)
	if email == "" {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

func validateRegister(req dto.RegisterRequest) (string, bool) {
	if strings.TrimSpace(req.FirstName) == "" || strings.TrimSpace(req.LastName) == "" {
		return "firstName and lastName are required", false
	}
	if !validEmail(req.Email) {
		return "a valid email is required", false
	}
	if len(req.Password) < 6 {
		return "password must be at least 6 characters", false
	}
	return "", true
}

func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed",
			"error", err,
			"path", r.URL.Path,
			"request_id", obsmw.RequestIDFromContext(r.Context()),
		)
		writeMessage(w, status, "internal server error")
		return
	}
	writeMessage(w, status, err.Error())
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrEmailTaken), errors.Is(err, domain.ErrAlreadyVerified):
		return http.StatusConflict
	case errors.Is(err, domain.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidCredentials),
		errors.Is(err, domain.ErrEmailNotVerified),
		errors.Is(err, domain.ErrInvalidToken),
		errors.Is(err, domain.ErrInvalidGoogleToken):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, dto.MessageResponse{Message: message})
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ip := strings.TrimSpace(strings.Split(xff, ",")[0])
		if normalized, ok := netutil.NormalizeIP(ip); ok {
			return normalized
		}
	}
	if xr := r.Header.Get("X-Real-IP"); xr != "" {
		if normalized, ok := netutil.NormalizeIP(xr); ok {
			return normalized
		}
	}
	if normalized, ok := netutil.NormalizeIP(r.RemoteAddr); ok {
		return normalized
	}
	return r.RemoteAddr
}
