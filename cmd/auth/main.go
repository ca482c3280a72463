package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"puppins-auth/internal/config"
	"puppins-auth/internal/observability/logging"
	"puppins-auth/internal/observability/metrics"
	obsmw "puppins-auth/internal/observability/middleware"
	"puppins-auth/internal/service"
	impl "puppins-auth/internal/service/impl"
	"puppins-auth/internal/store"
	httpx "puppins-auth/internal/transport/http"
	"puppins-auth/pkg/db"
)

func main() {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "dev"
	}

	logger := logging.NewLogger(logging.Config{
		ServiceName: "puppins-auth",
		Environment: env,
		Level:       os.Getenv("LOG_LEVEL"),
	})
	slog.SetDefault(logger)

	cfg := config.Load()
	metrics.MustRegister("puppins-auth")

	gdb, err := db.OpenGorm(db.Config{DSN: cfg.DatabaseURL, LogSQL: cfg.LogSQL})
	if err != nil {
		logger.Error("gorm open", "error", err)
		os.Exit(1)
	}
	if err := db.Migrate(gdb); err != nil {
		logger.Error("migrate", "error", err)
		os.Exit(1)
	}

	st := store.New(gdb)

	pw := impl.NewPasswordServiceArgon2id()

	ts := impl.NewTokenServiceHS256(impl.TokenConfig{
		Issuer:     cfg.Issuer,
		Audience:   cfg.Audience,
		TTL:        cfg.AccessTTL,
		SigningKey: []byte(cfg.SigningKey),
	})

	var google service.GoogleVerifier
	if cfg.GoogleClientID != "" {
		google, err = impl.NewGoogleVerifier(context.Background(), cfg.GoogleJWKSURL, cfg.GoogleClientID)
		if err != nil {
			logger.Error("google jwks fetch", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("GOOGLE_CLIENT_ID not set, google sign-in disabled")
		google = impl.NewGoogleVerifierDisabled()
	}

	mailer := impl.NewEmailServiceSMTP(impl.MailConfig{
		Host:        cfg.SMTPHost,
		Port:        cfg.SMTPPort,
		Username:    cfg.SMTPUser,
		Password:    cfg.SMTPPassword,
		From:        cfg.MailFrom,
		FromName:    cfg.MailFromName,
		LinkBaseURL: cfg.LinkBaseURL,
	})

	accounts := impl.NewAccountServiceImpl(st, pw, ts, google, mailer, cfg.VerificationTTL, cfg.ResetTTL)

	router := httpx.NewRouter(accounts, ts, cfg.CORSOrigins, cfg.LinkBaseURL)
	handler := obsmw.WithRequestAndTrace(obsmw.WithMetrics(router))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("auth service listening", "addr", srv.Addr, "issuer", cfg.Issuer)
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
