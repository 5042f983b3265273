// Package mailer delivers OTP codes and password reset links.
package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	htemplate "html/template"
	"net/url"
	ttemplate "text/template"
	"time"

	mail "github.com/go-mail/mail"
	"go.uber.org/zap"

	"github.com/MrEthical07/tenantauth"
)

// Config describes the SMTP relay and the message contents.
type Config struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	Username           string `yaml:"username"`
	Password           string `yaml:"password"`
	From               string `yaml:"from"`
	TLSMode            string `yaml:"tls_mode"` // auto | starttls | ssl | none
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	// ResetURL is the page that accepts the reset token as ?token=.
	ResetURL string        `yaml:"reset_url"`
	Timeout  time.Duration `yaml:"timeout"`
}

type sender interface {
	DialAndSend(m ...*mail.Message) error
}

// SMTPNotifier implements tenantauth.Notifier over SMTP.
type SMTPNotifier struct {
	cfg  Config
	send sender
	log  *zap.Logger
}

var _ tenantauth.Notifier = (*SMTPNotifier)(nil)

func NewSMTPNotifier(cfg Config, log *zap.Logger) (*SMTPNotifier, error) {
	if cfg.Host == "" || cfg.From == "" {
		return nil, fmt.Errorf("mailer: host and from are required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}

	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.Timeout = cfg.Timeout
	d.TLSConfig = &tls.Config{ServerName: cfg.Host, InsecureSkipVerify: cfg.InsecureSkipVerify}
	switch cfg.TLSMode {
	case "ssl":
		d.SSL = true
	case "none":
		d.StartTLSPolicy = mail.NoStartTLS
	case "starttls":
		d.StartTLSPolicy = mail.MandatoryStartTLS
	}

	return &SMTPNotifier{cfg: cfg, send: d, log: log.Named("mailer")}, nil
}

func (n *SMTPNotifier) SendOTP(ctx context.Context, msg tenantauth.OTPMessage) error {
	vars := otpVars{Code: msg.Code, Purpose: msg.Purpose, Minutes: minutesUntil(msg.ExpiresAt)}
	text, html, err := render(otpText, otpHTML, vars)
	if err != nil {
		return err
	}
	return n.deliver(ctx, msg.Email, "Your verification code", text, html, zap.String("purpose", msg.Purpose))
}

func (n *SMTPNotifier) SendPasswordReset(ctx context.Context, msg tenantauth.ResetMessage) error {
	link, err := resetLink(n.cfg.ResetURL, msg.Token)
	if err != nil {
		return err
	}
	vars := resetVars{Link: link, Minutes: minutesUntil(msg.ExpiresAt)}
	text, html, err := render(resetText, resetHTML, vars)
	if err != nil {
		return err
	}
	return n.deliver(ctx, msg.Email, "Reset your password", text, html)
}

func (n *SMTPNotifier) deliver(ctx context.Context, to, subject, text, html string, fields ...zap.Field) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := mail.NewMessage()
	m.SetHeader("From", n.cfg.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", text)
	m.AddAlternative("text/html", html)

	log := n.log.With(append(fields, zap.String("to", to), zap.String("subject", subject))...)
	if err := n.send.DialAndSend(m); err != nil {
		log.Error("smtp send failed", zap.Error(err))
		return fmt.Errorf("smtp send: %w", err)
	}
	log.Debug("email sent")
	return nil
}

type otpVars struct {
	Code    string
	Purpose string
	Minutes int
}

type resetVars struct {
	Link    string
	Minutes int
}

var (
	otpText = ttemplate.Must(ttemplate.New("otp").Parse(
		"Your verification code is {{.Code}}.\n\nIt expires in {{.Minutes}} minutes. If you did not request it, ignore this email.\n"))
	otpHTML = htemplate.Must(htemplate.New("otp").Parse(
		`<p>Your verification code is <strong>{{.Code}}</strong>.</p><p>It expires in {{.Minutes}} minutes. If you did not request it, ignore this email.</p>`))
	resetText = ttemplate.Must(ttemplate.New("reset").Parse(
		"Use the link below to choose a new password:\n\n{{.Link}}\n\nThe link expires in {{.Minutes}} minutes and works once.\n"))
	resetHTML = htemplate.Must(htemplate.New("reset").Parse(
		`<p>Use the link below to choose a new password:</p><p><a href="{{.Link}}">Reset password</a></p><p>The link expires in {{.Minutes}} minutes and works once.</p>`))
)

func render(text *ttemplate.Template, html *htemplate.Template, data any) (string, string, error) {
	var tb, hb bytes.Buffer
	if err := text.Execute(&tb, data); err != nil {
		return "", "", fmt.Errorf("render text body: %w", err)
	}
	if err := html.Execute(&hb, data); err != nil {
		return "", "", fmt.Errorf("render html body: %w", err)
	}
	return tb.String(), hb.String(), nil
}

func resetLink(base, token string) (string, error) {
	if base == "" {
		return token, nil
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("mailer: reset url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func minutesUntil(t time.Time) int {
	m := int(time.Until(t).Round(time.Minute) / time.Minute)
	if m < 1 {
		return 1
	}
	return m
}
