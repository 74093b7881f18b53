// Package mailer sends operator notifications through SendGrid.
package mailer

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/sirupsen/logrus"
)

type SendGrid struct {
	client *sendgrid.Client
	from   *mail.Email
	admin  *mail.Email
	log    logrus.FieldLogger
}

// NewSendGrid sends from and to the admin address.
func NewSendGrid(apiKey, adminEmail string, log logrus.FieldLogger) *SendGrid {
	addr := mail.NewEmail("DBKompare", adminEmail)
	return &SendGrid{client: sendgrid.NewSendClient(apiKey), from: addr, admin: addr, log: log}
}

func (m *SendGrid) NotifyAdmin(ctx context.Context, subject, html string) error {
	msg := mail.NewSingleEmail(m.from, subject, m.admin, plainText(subject), html)
	resp, err := m.client.SendWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("send mail: status %d: %s", resp.StatusCode, resp.Body)
	}
	m.log.WithField("subject", subject).Debug("admin notification sent")
	return nil
}

func plainText(subject string) string {
	return subject + ". Open this message in an HTML-capable client for details."
}

// Noop drops notifications when no API key is configured.
type Noop struct {
	Log logrus.FieldLogger
}

func (n Noop) NotifyAdmin(_ context.Context, subject, _ string) error {
	n.Log.WithField("subject", subject).Info("mail disabled; notification skipped")
	return nil
}
