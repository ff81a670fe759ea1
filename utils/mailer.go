package utils

import (
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/gomail.v2"
)

// Mailer is the transport the executor consumes: synchronous from the
// caller's point of view regardless of the transport's own behavior.
type Mailer interface {
	Send(to, subject, body string) error
}

// SMTPMailer delivers through an SMTP relay with STARTTLS, retrying
// temporary failures with quadratic backoff.
type SMTPMailer struct {
	dialer     *gomail.Dialer
	fromEmail  string
	fromName   string
	maxRetries int
}

func NewSMTPMailer(host string, port int, username, password, fromEmail, fromName string) *SMTPMailer {
	dialer := gomail.NewDialer(host, port, username, password)
	dialer.TLSConfig = &tls.Config{ServerName: host}
	return &SMTPMailer{
		dialer:     dialer,
		fromEmail:  fromEmail,
		fromName:   fromName,
		maxRetries: 3,
	}
}

func (m *SMTPMailer) Send(to, subject, body string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", fmt.Sprintf("%s <%s>", m.fromName, m.fromEmail))
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetHeader("Auto-Submitted", "auto-generated")
	msg.SetBody("text/plain", body)

	var lastErr error
	for attempt := 1; attempt <= m.maxRetries; attempt++ {
		if attempt > 1 {
			time.Sleep(time.Duration(attempt*attempt) * time.Second)
		}
		if err := m.dialer.DialAndSend(msg); err != nil {
			lastErr = err
			if !isTemporaryError(err) {
				break
			}
			continue
		}
		return nil
	}
	return fmt.Errorf("smtp send to %s failed: %w", to, lastErr)
}

func isTemporaryError(err error) bool {
	if err == nil {
		return false
	}
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return true
	}
	errStr := strings.ToLower(err.Error())
	for _, marker := range []string{"try again", "temporary", "421", "450", "451", "452"} {
		if strings.Contains(errStr, marker) {
			return true
		}
	}
	return false
}

// FileMailer is the dry-run transport: instead of delivering, it writes each
// message into an outbox directory for inspection.
type FileMailer struct {
	dir       string
	fromEmail string
	fromName  string
}

func NewFileMailer(dir, fromEmail, fromName string) *FileMailer {
	return &FileMailer{dir: dir, fromEmail: fromEmail, fromName: fromName}
}

func (m *FileMailer) Send(to, subject, body string) error {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("creating outbox: %w", err)
	}
	name := fmt.Sprintf("%s_%s.txt",
		time.Now().Format("20060102_150405.000000000"),
		strings.ReplaceAll(to, "@", "_at_"))
	content := fmt.Sprintf("From: %s <%s>\nTo: %s\nSubject: %s\n\n%s\n",
		m.fromName, m.fromEmail, to, subject, body)
	if err := os.WriteFile(filepath.Join(m.dir, name), []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing outbox file: %w", err)
	}
	return nil
}
