package http

import (
	"net/http"

	"puppins-auth/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter mounts the account lifecycle surface under /auth plus the usual
// operational endpoints.
func NewRouter(accounts service.AccountService, tokens service.TokenService, corsOrigins []string, linkBaseURL string) http.Handler {
	h := &handler{accounts: accounts, linkBaseURL: linkBaseURL}

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.register)
		r.Get("/verify-email", h.verifyEmail)
		r.Get("/verify-email-page", h.verifyEmailPage)
		r.Post("/resend-verification", h.resendVerification)
		r.Post("/login", h.login)
		r.Post("/google", h.googleAuth)
		r.Post("/forgot-password", h.forgotPassword)
		r.Post("/reset-password", h.resetPassword)

		r.Group(func(r chi.Router) {
			r.Use(RequireAuth(tokens))
			r.Get("/profile", h.getProfile)
			r.Put("/profile", h.updateProfile)
			r.Delete("/account", h.deleteAccount)
		})
	})

	return r
}
