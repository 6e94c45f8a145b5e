package mail

import (
	"context"
	"errors"
	"fmt"

	"github.com/tazhibayda/authflow/internal/queue"
	"gopkg.in/gomail.v2"
)

// ErrInvalidEvent marks events that rendering can never fix.
var ErrInvalidEvent = errors.New("invalid mail event")

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type SMTPSender struct {
	d    dialer
	from string
}

func NewSMTPSender(host string, port int, user, pass, from string) *SMTPSender {
	return &SMTPSender{d: gomail.NewDialer(host, port, user, pass), from: from}
}

func (s *SMTPSender) Deliver(ctx context.Context, ev queue.MailEvent) error {
	if ev.To == "" {
		return fmt.Errorf("%w: empty recipient", ErrInvalidEvent)
	}
	subject, body, err := Render(ev)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", ev.To)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	if err := s.d.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send %s: %w", ev.Kind, err)
	}
	return nil
}
