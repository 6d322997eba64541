package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"outbound-campaigns/pkg/logger"
)

// Message is one e-mail to every recipient in To.
type Message struct {
	To      []string
	Subject string
	Text    string
	HTML    string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

var ErrNoRecipients = errors.New("notify: no recipients")

// SendGridSender sends through the SendGrid v3 API, one request per
// recipient.
type SendGridSender struct {
	client   *sendgrid.Client
	fromName string
	from     string
}

func NewSendGridSender(apiKey, from, fromName string) *SendGridSender {
	return &SendGridSender{
		client:   sendgrid.NewSendClient(apiKey),
		from:     from,
		fromName: fromName,
	}
}

func (s *SendGridSender) Send(ctx context.Context, m Message) error {
	if len(m.To) == 0 {
		return ErrNoRecipients
	}
	from := mail.NewEmail(s.fromName, s.from)
	var errs []error
	for _, addr := range m.To {
		msg := mail.NewSingleEmail(from, m.Subject, mail.NewEmail("", addr), m.Text, m.HTML)
		resp, err := s.client.SendWithContext(ctx, msg)
		if err != nil {
			errs = append(errs, fmt.Errorf("send to %s: %w", addr, err))
			continue
		}
		if resp.StatusCode >= 400 {
			errs = append(errs, fmt.Errorf("send to %s: sendgrid status %d: %s", addr, resp.StatusCode, strings.TrimSpace(resp.Body)))
			continue
		}
		logger.From(ctx).Info("appointment e-mail sent", "to", addr, "status", resp.StatusCode)
	}
	return errors.Join(errs...)
}

// LogSender writes messages to the log instead of sending them. It is used
// when no SendGrid key is configured.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) Send(ctx context.Context, m Message) error {
	log := s.Logger
	if log == nil {
		log = logger.From(ctx)
	}
	log.Info("e-mail not sent (no provider configured)", "to", strings.Join(m.To, ","), "subject", m.Subject)
	return nil
}
