package mail

import (
	"context"

	"github.com/tazhibayda/authflow/internal/queue"
)

// Notifier is the email side of the auth flow. Each call returns once the
// mail is handed off; delivery itself may happen later.
type Notifier interface {
	SendVerification(ctx context.Context, to, code string) error
	SendWelcome(ctx context.Context, to, name string) error
	SendResetRequest(ctx context.Context, to, link string) error
	SendResetSuccess(ctx context.Context, to string) error
}

// Sink takes a fully described mail event.
type Sink interface {
	Deliver(ctx context.Context, ev queue.MailEvent) error
}

type EventNotifier struct {
	sink Sink
}

func NewNotifier(sink Sink) *EventNotifier { return &EventNotifier{sink: sink} }

func (n *EventNotifier) SendVerification(ctx context.Context, to, code string) error {
	return n.sink.Deliver(ctx, queue.MailEvent{Kind: queue.MailVerification, To: to, Code: code})
}

func (n *EventNotifier) SendWelcome(ctx context.Context, to, name string) error {
	return n.sink.Deliver(ctx, queue.MailEvent{Kind: queue.MailWelcome, To: to, Name: name})
}

func (n *EventNotifier) SendResetRequest(ctx context.Context, to, link string) error {
	return n.sink.Deliver(ctx, queue.MailEvent{Kind: queue.MailResetRequest, To: to, Link: link})
}

func (n *EventNotifier) SendResetSuccess(ctx context.Context, to string) error {
	return n.sink.Deliver(ctx, queue.MailEvent{Kind: queue.MailResetSuccess, To: to})
}
