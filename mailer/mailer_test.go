package mailer

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	mail "github.com/go-mail/mail"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/MrEthical07/tenantauth"
)

type fakeSender struct {
	sent []*mail.Message
	err  error
}

func (f *fakeSender) DialAndSend(m ...*mail.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, m...)
	return nil
}

func newTestNotifier(t *testing.T, cfg Config) (*SMTPNotifier, *fakeSender) {
	t.Helper()
	n, err := NewSMTPNotifier(cfg, nil)
	if err != nil {
		t.Fatalf("NewSMTPNotifier: %v", err)
	}
	f := &fakeSender{}
	n.send = f
	return n, f
}

func body(t *testing.T, m *mail.Message) string {
	t.Helper()
	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		t.Fatalf("write message: %v", err)
	}
	return buf.String()
}

func TestNewSMTPNotifierRequiresHostAndFrom(t *testing.T) {
	if _, err := NewSMTPNotifier(Config{Host: "smtp.example.com"}, nil); err == nil {
		t.Fatal("expected error without from address")
	}
	if _, err := NewSMTPNotifier(Config{From: "auth@example.com"}, nil); err == nil {
		t.Fatal("expected error without host")
	}
}

func TestSendOTP(t *testing.T) {
	n, f := newTestNotifier(t, Config{Host: "smtp.example.com", From: "auth@example.com"})

	err := n.SendOTP(context.Background(), tenantauth.OTPMessage{
		UserID: "u1", Email: "alice@example.com", Purpose: "login", Code: "482913",
		ExpiresAt: time.Now().Add(5 * time.Minute),
	})
	if err != nil {
		t.Fatalf("SendOTP: %v", err)
	}
	if len(f.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(f.sent))
	}
	m := f.sent[0]
	if to := m.GetHeader("To"); len(to) != 1 || to[0] != "alice@example.com" {
		t.Fatalf("unexpected recipient: %v", to)
	}
	raw := body(t, m)
	if !strings.Contains(raw, "482913") || !strings.Contains(raw, "5 minutes") {
		t.Fatalf("code or expiry missing from message:\n%s", raw)
	}
}

func TestSendPasswordResetBuildsLink(t *testing.T) {
	n, f := newTestNotifier(t, Config{
		Host: "smtp.example.com", From: "auth@example.com",
		ResetURL: "https://app.example.com/reset?lang=en",
	})

	err := n.SendPasswordReset(context.Background(), tenantauth.ResetMessage{
		UserID: "u1", Email: "alice@example.com", Token: "abc_DEF-123",
		ExpiresAt: time.Now().Add(30 * time.Minute),
	})
	if err != nil {
		t.Fatalf("SendPasswordReset: %v", err)
	}
	raw := body(t, f.sent[0])
	// Bodies are quoted-printable, so "=" travels as "=3D".
	if !strings.Contains(raw, "token=3Dabc_DEF-123") || !strings.Contains(raw, "lang=3Den") {
		t.Fatalf("reset link missing from message:\n%s", raw)
	}
}

func TestSendFailureIsReturned(t *testing.T) {
	n, f := newTestNotifier(t, Config{Host: "smtp.example.com", From: "auth@example.com"})
	f.err = errors.New("connection refused")

	err := n.SendOTP(context.Background(), tenantauth.OTPMessage{Email: "alice@example.com", Code: "1", ExpiresAt: time.Now()})
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("expected wrapped send error, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.err = nil
	if err := n.SendOTP(ctx, tenantauth.OTPMessage{Email: "alice@example.com"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(f.sent) != 0 {
		t.Fatal("nothing may be sent on a cancelled context")
	}
}

func TestLogNotifierOmitsSecrets(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	n := NewLogNotifier(zap.New(core))
	ctx := context.Background()

	_ = n.SendOTP(ctx, tenantauth.OTPMessage{UserID: "u1", Purpose: "login", Code: "482913", ExpiresAt: time.Now()})
	_ = n.SendPasswordReset(ctx, tenantauth.ResetMessage{UserID: "u1", Token: "secret-token", ExpiresAt: time.Now()})

	if logs.Len() != 2 {
		t.Fatalf("expected 2 log entries, got %d", logs.Len())
	}
	for _, e := range logs.All() {
		for k, v := range e.ContextMap() {
			if s, ok := v.(string); ok && (strings.Contains(s, "482913") || strings.Contains(s, "secret-token")) {
				t.Fatalf("field %s leaks a secret", k)
			}
		}
	}
}
