package notify

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"coursewatch/internal/seen"
	"coursewatch/internal/testsupport"
)

func newCapturingService(captured *[]byte) *smtpService {
	return &smtpService{
		host:      "smtp.example.com",
		port:      587,
		username:  "sender@example.com",
		password:  "secret",
		recipient: "inbox@example.com",
		timeout:   time.Second,
		send: func(_ string, _ smtp.Auth, _ string, _ []string, msg []byte) error {
			*captured = msg
			return nil
		},
	}
}

func TestNewServiceReturnsNoopWhenEmailDisabled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	svc := NewService(cfg)
	if _, ok := svc.(noopService); !ok {
		t.Fatalf("expected noop service, got %T", svc)
	}
	if err := svc.SendDigest(context.Background(), []seen.Record{{Identity: "a"}}); err != nil {
		t.Fatalf("noop SendDigest failed: %v", err)
	}
}

func TestNewServiceReturnsSMTPWhenConfigured(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithEmail("inbox@example.com"))
	if _, ok := NewService(cfg).(*smtpService); !ok {
		t.Fatal("expected smtp service")
	}
}

func TestSendDigestBuildsHTMLMessage(t *testing.T) {
	var captured []byte
	svc := newCapturingService(&captured)

	records := []seen.Record{
		{Identity: "a", Title: "Go <Advanced>", URL: "https://www.udemy.com/course/go-advanced/"},
		{Identity: "b", Title: "SQL Basics", URL: "https://www.udemy.com/course/sql-basics/"},
	}
	if err := svc.SendDigest(context.Background(), records); err != nil {
		t.Fatalf("SendDigest failed: %v", err)
	}

	msg := string(captured)
	if !strings.Contains(msg, "Subject: New Free Courses (2)") {
		t.Fatalf("missing subject: %q", msg)
	}
	if !strings.Contains(msg, "Content-Type: text/html") {
		t.Fatalf("missing content type: %q", msg)
	}
	if !strings.Contains(msg, "Go &lt;Advanced&gt;") {
		t.Fatalf("title not escaped: %q", msg)
	}
	if !strings.Contains(msg, `href="https://www.udemy.com/course/sql-basics/"`) {
		t.Fatalf("missing course link: %q", msg)
	}
}

func TestSendDigestSkipsEmptyBatch(t *testing.T) {
	svc := newCapturingService(new([]byte))
	svc.send = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("send should not be called for an empty digest")
		return nil
	}
	if err := svc.SendDigest(context.Background(), nil); err != nil {
		t.Fatalf("SendDigest failed: %v", err)
	}
}

func TestDeliverPropagatesSendFailure(t *testing.T) {
	svc := newCapturingService(new([]byte))
	svc.send = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("connection refused")
	}
	err := svc.TestNotification(context.Background())
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("expected delivery error, got %v", err)
	}
}

func TestDeliverHonorsTimeout(t *testing.T) {
	svc := newCapturingService(new([]byte))
	svc.timeout = 10 * time.Millisecond
	svc.send = func(string, smtp.Auth, string, []string, []byte) error {
		time.Sleep(200 * time.Millisecond)
		return nil
	}
	if err := svc.TestNotification(context.Background()); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestNotifyErrorIncludesContext(t *testing.T) {
	var captured []byte
	svc := newCapturingService(&captured)
	if err := svc.NotifyError(context.Background(), errors.New("db locked"), "persistence"); err != nil {
		t.Fatalf("NotifyError failed: %v", err)
	}
	msg := string(captured)
	if !strings.Contains(msg, "persistence") || !strings.Contains(msg, "db locked") {
		t.Fatalf("message missing detail: %q", msg)
	}
}
