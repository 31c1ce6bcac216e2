// Package notifier delivers buyer-facing email. Delivery is a side
// channel with its own failure tolerance: a failed send is reported to
// the caller for logging and counting, nothing more.
package notifier

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/atelier-gallery/atelier/internal/core/domain"
	"github.com/atelier-gallery/atelier/internal/port"
)

const (
	settingAPIKey      = "sendgrid.api_key"
	settingFromAddress = "mail.from"
)

// SendGridNotifier sends through SendGrid with credentials resolved from
// the vault at send time, so rotating the key never requires a restart.
type SendGridNotifier struct {
	secrets  port.SecretSource
	fromName string
}

func NewSendGridNotifier(secrets port.SecretSource, fromName string) *SendGridNotifier {
	if fromName == "" {
		fromName = "Atelier"
	}
	return &SendGridNotifier{secrets: secrets, fromName: fromName}
}

func (n *SendGridNotifier) Send(ctx context.Context, m port.Mail) error {
	apiKey, ok, err := n.secrets.Get(ctx, settingAPIKey)
	if err != nil {
		return fmt.Errorf("load mail credentials: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrNotConfigured, settingAPIKey)
	}
	from, ok, err := n.secrets.Get(ctx, settingFromAddress)
	if err != nil {
		return fmt.Errorf("load mail sender: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrNotConfigured, settingFromAddress)
	}

	message := mail.NewSingleEmail(
		mail.NewEmail(n.fromName, from),
		m.Subject,
		mail.NewEmail("", m.To),
		m.Body,
		fmt.Sprintf("<pre>%s</pre>", m.Body),
	)

	client := sendgrid.NewSendClient(apiKey)
	resp, err := client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid send: status %d", resp.StatusCode)
	}
	return nil
}
