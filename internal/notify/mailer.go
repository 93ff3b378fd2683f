// Package notify sends billing emails over SMTP. Every send is best-effort;
// callers log failures and move on, since payment-state consistency must not
// depend on email delivery.
package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/marioschiavon/uplink/internal/config"
)

// Mailer sends transactional emails via SMTP.
type Mailer struct {
	cfg    config.SMTPConfig
	logger *zap.Logger
}

// NewMailer creates a mailer from SMTP config.
func NewMailer(cfg config.SMTPConfig, logger *zap.Logger) *Mailer {
	return &Mailer{cfg: cfg, logger: logger}
}

func (m *Mailer) send(to, subject, body string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body)

	d := gomail.NewDialer(m.cfg.Host, m.cfg.Port, m.cfg.User, m.cfg.Password)
	return d.DialAndSend(msg)
}

// SendPaymentFailed notifies the billing contact that a renewal charge
// failed and the subscription entered its grace period.
func (m *Mailer) SendPaymentFailed(_ context.Context, to, sessionName string) error {
	subject := "Uplink: payment failed"
	body := fmt.Sprintf(paymentFailedTemplate, displayName(sessionName))

	if err := m.send(to, subject, body); err != nil {
		return fmt.Errorf("failed to send payment failure email: %w", err)
	}

	m.logger.Info("payment failure email sent", zap.String("to", to))
	return nil
}

// SendSubscriptionCancelled notifies the billing contact that the
// subscription ended and the session was disconnected.
func (m *Mailer) SendSubscriptionCancelled(_ context.Context, to, sessionName string) error {
	subject := "Uplink: subscription cancelled"
	body := fmt.Sprintf(cancelledTemplate, displayName(sessionName))

	if err := m.send(to, subject, body); err != nil {
		return fmt.Errorf("failed to send cancellation email: %w", err)
	}

	m.logger.Info("cancellation email sent", zap.String("to", to))
	return nil
}

func displayName(sessionName string) string {
	if sessionName == "" {
		return "your session"
	}
	return sessionName
}
