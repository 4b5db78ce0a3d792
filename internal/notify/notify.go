// Package notify delivers out-of-band messages: email through a Mailer and
// in-app notifications persisted for the recipient.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/anonto42/lost-found/backend/internal/models"
	"github.com/anonto42/lost-found/backend/internal/repositories"
)

type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

type SMTPMailer struct {
	cfg  SMTPConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, send: smtp.SendMail}
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	msg := strings.Join([]string{
		"From: " + m.cfg.From,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
		"",
		body,
	}, "\r\n")
	if err := m.send(m.cfg.Host+":"+m.cfg.Port, auth, m.cfg.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}

// LogMailer writes mail to the log instead of sending it. Used when no SMTP
// host is configured.
type LogMailer struct {
	Log *slog.Logger
}

func (m LogMailer) Send(_ context.Context, to, subject, body string) error {
	m.Log.Info("mail not sent, no SMTP configured", "to", to, "subject", subject, "bytes", len(body))
	return nil
}

// Notifier records in-app notifications. Delivery is best effort: failures
// are logged and never fail the operation that triggered them.
type Notifier struct {
	repo repositories.NotificationRepository
	log  *slog.Logger
}

func NewNotifier(repo repositories.NotificationRepository, log *slog.Logger) *Notifier {
	return &Notifier{repo: repo, log: log}
}

func (n *Notifier) Notify(_ context.Context, note models.Notification) {
	if n == nil || n.repo == nil || note.RecipientID == "" {
		return
	}
	if err := n.repo.CreateNotification(&note); err != nil {
		n.log.Warn("notification not stored", "type", note.Type, "claim_id", note.ClaimID, "error", err)
	}
}
