// Package notify turns alert records into emails.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"sensorwatch/internal/logger"
)

// ErrNoRecipient is returned when an email has no destination address.
var ErrNoRecipient = errors.New("no recipient address configured")

// Email is a rendered alert email.
type Email struct {
	From    string
	To      string
	Subject string
	Text    string
	HTML    string
}

// Mailer delivers one email and returns the provider message ID.
type Mailer interface {
	Send(ctx context.Context, e Email) (string, error)
}

// LogMailer writes emails to the logger instead of sending them.
type LogMailer struct{}

func (LogMailer) Send(ctx context.Context, e Email) (string, error) {
	if e.To == "" {
		return "", ErrNoRecipient
	}
	id := uuid.New().String()
	lg := logger.WithComponent("log_mailer")
	lg.Info().
		Str("message_id", id).
		Str("from", e.From).
		Str("to", e.To).
		Str("subject", e.Subject).
		Str("body", e.Text).
		Msg("email")
	return id, nil
}

// NewMailer builds the mailer named by kind.
func NewMailer(ctx context.Context, kind, region string) (Mailer, error) {
	switch kind {
	case "log", "":
		return LogMailer{}, nil
	case "ses":
		return NewSESMailer(ctx, region)
	default:
		return nil, fmt.Errorf("unknown mailer %q", kind)
	}
}
