// Package mail sends transactional email. Resend is used when RESEND_API_KEY is set,
// plain SMTP when only SMTP_HOST is, and nothing at all otherwise.
package mail

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/resend/resend-go/v3"

	"github.com/closerdesk/closerdesk/internal/pkg/env"
)

var ErrNotConfigured = errors.New("mail: no sender configured")

type Message struct {
	To      string
	ToName  string
	Subject string
	HTML    string
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// NewFromEnv returns the configured mailer, or nil when mail is disabled.
func NewFromEnv() Mailer {
	from := strings.TrimSpace(env.GetEnv("MAIL_FROM", ""))
	fromName := env.GetEnv("MAIL_FROM_NAME", "CloserDesk")

	if key := strings.TrimSpace(env.GetEnv("RESEND_API_KEY", "")); key != "" {
		if m := NewResendMailer(key, from, fromName); m != nil {
			return m
		}
	}
	if host := strings.TrimSpace(env.GetEnv("SMTP_HOST", "")); host != "" {
		return &SMTPMailer{
			Host:     host,
			Port:     env.GetEnv("SMTP_PORT", "587"),
			Username: env.GetEnv("SMTP_USERNAME", ""),
			Password: env.GetEnv("SMTP_PASSWORD", ""),
			From:     from,
		}
	}
	log.Warn("[Mail] Neither RESEND_API_KEY nor SMTP_HOST set, outgoing mail disabled")
	return nil
}

type ResendMailer struct {
	client   *resend.Client
	from     string
	fromName string
}

func NewResendMailer(apiKey, from, fromName string) *ResendMailer {
	if apiKey == "" || from == "" {
		return nil
	}
	return &ResendMailer{client: resend.NewClient(apiKey), from: from, fromName: fromName}
}

func (m *ResendMailer) Send(ctx context.Context, msg Message) error {
	if m == nil {
		return ErrNotConfigured
	}
	from := m.from
	if m.fromName != "" {
		from = fmt.Sprintf("%s <%s>", m.fromName, m.from)
	}
	sent, err := m.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
	})
	if err != nil {
		return fmt.Errorf("mail: resend send: %w", err)
	}
	log.Infof("[Mail] Sent %q to %s [id=%s]", msg.Subject, msg.To, sent.Id)
	return nil
}

type SMTPMailer struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	sender := m.From
	if sender == "" {
		sender = "no-reply@localhost"
	}

	var auth smtp.Auth
	if m.Username != "" && m.Password != "" {
		auth = smtp.PlainAuth("", m.Username, m.Password, m.Host)
	}

	body := []byte(
		fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n", sender, msg.To, msg.Subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=UTF-8\r\n\r\n" +
			msg.HTML,
	)

	addr := fmt.Sprintf("%s:%s", m.Host, m.Port)
	if err := smtp.SendMail(addr, auth, sender, []string{msg.To}, body); err != nil {
		return fmt.Errorf("mail: smtp send: %w", err)
	}
	log.Infof("[Mail] Sent %q to %s via %s", msg.Subject, msg.To, addr)
	return nil
}
