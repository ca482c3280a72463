package impl

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/smtp"
	"net/url"
	"strings"
	"time"

	"puppins-auth/internal/observability/metrics"
)

type MailConfig struct {
	Host     string // empty disables SMTP and logs links instead
	Port     int
	Username string
	Password string
	From     string
	FromName string

	// LinkBaseURL is the prefix for links embedded in mail, normally the
	// mobile app's deep-link scheme ("puppins://") or an https page that
	// forwards into it.
	LinkBaseURL string
}

// EmailServiceImpl delivers verification and password-reset links over SMTP
// with STARTTLS. Without an SMTP host it degrades to logging the link, which
// is how local development runs.
type EmailServiceImpl struct {
	cfg         MailConfig
	verifyTmpl  *template.Template
	resetTmpl   *template.Template
	dialTimeout time.Duration
}

func NewEmailServiceSMTP(cfg MailConfig) *EmailServiceImpl {
	return &EmailServiceImpl{
		cfg:         cfg,
		verifyTmpl:  template.Must(template.New("verify").Parse(verifyEmailBody)),
		resetTmpl:   template.Must(template.New("reset").Parse(resetEmailBody)),
		dialTimeout: 8 * time.Second,
	}
}

func (s *EmailServiceImpl) SendVerification(ctx context.Context, email, token, firstName string) error {
	link := s.link("verify-email", token)
	err := s.send(email, "Confirm your Puppins account", s.verifyTmpl, map[string]string{
		"Name": firstName,
		"Link": link,
	})
	s.count("verification", err)
	return err
}

func (s *EmailServiceImpl) SendPasswordReset(ctx context.Context, email, token, firstName string) error {
	link := s.link("reset-password", token)
	err := s.send(email, "Reset your Puppins password", s.resetTmpl, map[string]string{
		"Name": firstName,
		"Link": link,
	})
	s.count("reset", err)
	return err
}

func (s *EmailServiceImpl) link(path, token string) string {
	base := strings.TrimSuffix(s.cfg.LinkBaseURL, "/")
	return fmt.Sprintf("%s/%s?token=%s", base, path, url.QueryEscape(token))
}

func (s *EmailServiceImpl) count(kind string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	metrics.EmailsSentTotal.WithLabelValues(kind, result).Inc()
}

func (s *EmailServiceImpl) send(to, subject string, tmpl *template.Template, data map[string]string) error {
	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return err
	}

	if s.cfg.Host == "" {
		slog.Info("mail dispatch skipped, no smtp host configured",
			"to", to, "subject", subject, "link", data["Link"])
		return nil
	}

	fromHeader := fmt.Sprintf("%s <%s>", s.cfg.FromName, s.cfg.From)
	msg := strings.Join([]string{
		fmt.Sprintf("From: %s", fromHeader),
		fmt.Sprintf("To: %s", to),
		fmt.Sprintf("Subject: %s", subject),
		"MIME-Version: 1.0",
		`Content-Type: text/html; charset="UTF-8"`,
		"",
		body.String(),
	}, "\r\n")

	if err := s.sendSMTP(to, []byte(msg)); err != nil {
		slog.Error("mail dispatch failed", "to", to, "error", err)
		return err
	}
	slog.Info("mail sent", "to", to, "subject", subject)
	return nil
}

func (s *EmailServiceImpl) sendSMTP(to string, msg []byte) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	conn, err := net.DialTimeout("tcp", addr, s.dialTimeout)
	if err != nil {
		return err
	}
	// Deadline covers the whole SMTP exchange.
	_ = conn.SetDeadline(time.Now().Add(15 * time.Second))

	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return err
	}
	defer func() { _ = c.Quit() }()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: s.cfg.Host}); err != nil {
			return err
		}
	}
	if s.cfg.Username != "" {
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		if err := c.Auth(auth); err != nil {
			return err
		}
	}

	if err := c.Mail(s.cfg.From); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}

	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

const verifyEmailBody = `<html><body>
<p>Hi {{.Name}},</p>
<p>Welcome to Puppins! Confirm your email address to activate your account:</p>
<p><a href="{{.Link}}">Confirm my email</a></p>
<p>The link is valid for 24 hours. If you did not create an account, you can ignore this message.</p>
</body></html>`

const resetEmailBody = `<html><body>
<p>Hi {{.Name}},</p>
<p>We received a request to reset your password:</p>
<p><a href="{{.Link}}">Choose a new password</a></p>
<p>The link is valid for 1 hour. If you did not request a reset, you can ignore this message.</p>
</body></html>`
