package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	mail "gopkg.in/mail.v2"
)

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender sends through an SMTP relay.
type SMTPSender struct {
	Dialer *mail.Dialer
	From   string
}

func NewSMTPSender(host string, port int, username, password, from string) *SMTPSender {
	d := mail.NewDialer(host, port, username, password)
	d.StartTLSPolicy = mail.OpportunisticStartTLS
	return &SMTPSender{Dialer: d, From: from}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := mail.NewMessage()
	m.SetHeader("From", s.From)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTML)

	if err := s.Dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}
	return nil
}

// Mailer renders booking emails and hands them to a Sender synchronously.
type Mailer struct {
	Sender  Sender
	BaseURL string
	Log     *zap.Logger
}

func (m *Mailer) logger() *zap.Logger {
	if m.Log == nil {
		return zap.NewNop()
	}
	return m.Log
}

// SendBookingConfirmation emails the guest and the host. A failure for one
// recipient does not stop the other; both errors are returned joined.
func (m *Mailer) SendBookingConfirmation(ctx context.Context, c Confirmation) error {
	msgs, err := RenderConfirmation(c, m.BaseURL)
	if err != nil {
		return err
	}
	var errs []error
	for _, msg := range msgs {
		if err := m.Sender.Send(ctx, msg); err != nil {
			errs = append(errs, err)
			continue
		}
		m.logger().Info("booking email sent", zap.String("booking_id", c.BookingID), zap.String("to", msg.To))
	}
	return errors.Join(errs...)
}

func (m *Mailer) SendBookingReminder(ctx context.Context, r Reminder) error {
	msg, err := RenderReminder(r)
	if err != nil {
		return err
	}
	if err := m.Sender.Send(ctx, msg); err != nil {
		return err
	}
	m.logger().Info("reminder email sent", zap.String("booking_id", r.BookingID), zap.String("to", msg.To))
	return nil
}
