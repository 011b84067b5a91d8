package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"coursewatch/internal/config"
	"coursewatch/internal/seen"
)

// Service defines the notification surface exposed to the daemon. Delivery
// failures are reported to the caller but must never be treated as fatal;
// undelivered items stay unnotified and ride along with the next digest.
type Service interface {
	SendDigest(ctx context.Context, records []seen.Record) error
	NotifyStartup(ctx context.Context, hostname string) error
	NotifyError(ctx context.Context, err error, contextLabel string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by SMTP when email is
// configured. When email is disabled, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if !cfg.Email.Enabled || strings.TrimSpace(cfg.Email.Recipient) == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Email.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &smtpService{
		host:      cfg.Email.SMTPServer,
		port:      cfg.Email.SMTPPort,
		username:  cfg.Email.Username,
		password:  cfg.Email.Password,
		recipient: cfg.Email.Recipient,
		timeout:   timeout,
		send:      smtp.SendMail,
	}
}

type smtpService struct {
	host      string
	port      int
	username  string
	password  string
	recipient string
	timeout   time.Duration

	// send is smtp.SendMail in production; tests substitute it.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func (s *smtpService) SendDigest(ctx context.Context, records []seen.Record) error {
	if len(records) == 0 {
		return nil
	}
	subject := fmt.Sprintf("New Free Courses (%d)", len(records))
	return s.deliver(ctx, subject, BuildDigestHTML(records, time.Now()))
}

func (s *smtpService) NotifyStartup(ctx context.Context, hostname string) error {
	body := fmt.Sprintf("<html><body><p>Course monitor started on <b>%s</b> at %s.</p></body></html>",
		htmlEscape(hostname), time.Now().Format(time.RFC1123))
	return s.deliver(ctx, "Course monitor started", body)
}

func (s *smtpService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	detail := "unknown"
	if err != nil {
		detail = err.Error()
	}
	subject := "Course monitor error"
	if label := strings.TrimSpace(contextLabel); label != "" {
		subject = fmt.Sprintf("Course monitor error: %s", label)
	}
	body := fmt.Sprintf("<html><body><p>The monitor hit a problem:</p><pre>%s</pre></body></html>",
		htmlEscape(detail))
	return s.deliver(ctx, subject, body)
}

func (s *smtpService) TestNotification(ctx context.Context) error {
	return s.deliver(ctx, "Course monitor test",
		"<html><body><p>Notification delivery is working.</p></body></html>")
}

// deliver sends one HTML message over SMTP with STARTTLS. The context
// deadline bounds the whole exchange via the service timeout.
func (s *smtpService) deliver(ctx context.Context, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))
	auth := smtp.PlainAuth("", s.username, s.password, s.host)
	msg := buildMessage(s.username, s.recipient, subject, htmlBody)

	done := make(chan error, 1)
	go func() { done <- s.send(addr, auth, s.username, []string{s.recipient}, msg) }()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send email via %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("send email via %s: timed out after %s", addr, s.timeout)
	}
}

func buildMessage(from, to, subject, htmlBody string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(htmlBody)
	return []byte(b.String())
}

type noopService struct{}

func (noopService) SendDigest(context.Context, []seen.Record) error      { return nil }
func (noopService) NotifyStartup(context.Context, string) error          { return nil }
func (noopService) NotifyError(context.Context, error, string) error     { return nil }
func (noopService) TestNotification(context.Context) error               { return nil }
