// Package notify delivers email alerts for security and sensor events.
//
// Alerts are plain text and best effort: a failed send is logged by the
// caller, never retried, and never blocks the event that triggered it.
package notify

import (
	"errors"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/lumina-home/lumina-core/internal/infrastructure/config"
)

// ErrDisabled indicates SMTP is disabled in configuration.
var ErrDisabled = errors.New("notify: smtp disabled in configuration")

// ErrNoRecipients indicates no alert recipients are configured.
var ErrNoRecipients = errors.New("notify: no alert recipients configured")

// Mailer sends alert emails. Implementations must be safe for
// concurrent use.
type Mailer interface {
	SendAlert(subject, body string) error
}

// SMTPMailer sends mail through a configured SMTP relay.
type SMTPMailer struct {
	cfg  config.SMTPConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPMailer creates a mailer from SMTP configuration.
func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, send: smtp.SendMail}
}

// SendAlert sends a plain-text alert to all configured recipients.
func (m *SMTPMailer) SendAlert(subject, body string) error {
	if !m.cfg.Enabled {
		return ErrDisabled
	}
	if len(m.cfg.AlertTo) == 0 {
		return ErrNoRecipients
	}

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	msg := buildMessage(m.cfg.From, m.cfg.AlertTo, subject, body)

	if err := m.send(addr, auth, m.cfg.From, m.cfg.AlertTo, msg); err != nil {
		return fmt.Errorf("sending alert email: %w", err)
	}
	return nil
}

// buildMessage assembles an RFC 5322 plain-text message.
func buildMessage(from string, to []string, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + strings.Join(to, ", ") + "\r\n")
	b.WriteString("Subject: " + sanitizeHeader(subject) + "\r\n")
	b.WriteString("Date: " + time.Now().UTC().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")
	return []byte(b.String())
}

// sanitizeHeader strips CR/LF to prevent header injection from
// event-derived subject lines.
func sanitizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}
