package notify

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"time"

	"droplock/internal/droplock"
)

// DialTimeout bounds one SMTP session, from connect to QUIT.
const DialTimeout = 15 * time.Second

// SMTPMailer delivers alert emails over SMTP. Settings are loaded once;
// a mailer built without valid settings stays disabled.
type SMTPMailer struct {
	settings *Settings
	logger   droplock.Logger
	clock    droplock.Clock
	timeout  time.Duration
}

var _ droplock.Mailer = (*SMTPMailer)(nil)

// NewSMTPMailer loads settings from path. Load failures are logged and
// produce a disabled mailer, never an error.
func NewSMTPMailer(path string, logger droplock.Logger, clock droplock.Clock) *SMTPMailer {
	m := &SMTPMailer{logger: logger, clock: clock, timeout: DialTimeout}
	settings, err := LoadSettings(path)
	if err != nil {
		logger.Warn("email disabled", "path", path, "error", err)
		return m
	}
	m.settings = settings
	return m
}

// NewSMTPMailerWithSettings builds a mailer from settings already in hand.
func NewSMTPMailerWithSettings(settings *Settings, logger droplock.Logger, clock droplock.Clock) *SMTPMailer {
	return &SMTPMailer{settings: settings, logger: logger, clock: clock, timeout: DialTimeout}
}

// Enabled reports whether settings were loaded.
func (m *SMTPMailer) Enabled() bool {
	return m.settings != nil
}

// SendAlertEmail returns false on any configuration or transport fault.
func (m *SMTPMailer) SendAlertEmail(to, subject, body string) bool {
	if m.settings == nil {
		m.logger.Warn("email send skipped: mailer disabled", "to", to)
		return false
	}
	if err := m.send(to, subject, body); err != nil {
		m.logger.Warn("email send failed", "to", to, "subject", subject, "error", err)
		return false
	}
	m.logger.Info("email sent", "to", to, "subject", subject)
	return true
}

func (m *SMTPMailer) send(to, subject, body string) error {
	s := m.settings
	msg, err := buildMessage(s.FromEmail, to, subject, body, m.clock.Now())
	if err != nil {
		return err
	}

	conn, err := net.DialTimeout("tcp", s.Addr(), m.timeout)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", s.Addr(), err)
	}
	if err := conn.SetDeadline(time.Now().Add(m.timeout)); err != nil {
		conn.Close()
		return fmt.Errorf("setting deadline: %w", err)
	}

	client, err := smtp.NewClient(conn, s.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("starting smtp session: %w", err)
	}
	defer client.Close()

	if s.UseTLS {
		if err := client.StartTLS(&tls.Config{ServerName: s.Host}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}
	if s.Username != "" {
		if err := client.Auth(smtp.PlainAuth("", s.Username, s.Password, s.Host)); err != nil {
			return fmt.Errorf("authenticating: %w", err)
		}
	}
	if err := client.Mail(s.FromEmail); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("RCPT TO: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finishing message: %w", err)
	}
	return client.Quit()
}

// buildMessage renders a plain-text RFC 5322 message.
func buildMessage(from, to, subject, body string, at time.Time) ([]byte, error) {
	fromAddr, err := mail.ParseAddress(from)
	if err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}
	toAddr, err := mail.ParseAddress(to)
	if err != nil {
		return nil, fmt.Errorf("invalid recipient: %w", err)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", fromAddr)
	fmt.Fprintf(&buf, "To: %s\r\n", toAddr)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", at.Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	buf.WriteString("\r\n")
	buf.Write(bytes.ReplaceAll([]byte(body), []byte("\n"), []byte("\r\n")))
	return buf.Bytes(), nil
}
