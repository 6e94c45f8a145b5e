package mail

import (
	"context"

	"github.com/tazhibayda/authflow/internal/helper"
	"github.com/tazhibayda/authflow/internal/log"
	"github.com/tazhibayda/authflow/internal/queue"
	"go.uber.org/zap"
)

// QueueSink publishes mail events for the notifier worker.
type QueueSink struct {
	Pub      queue.Publisher
	Exchange string
}

func (s QueueSink) Deliver(ctx context.Context, ev queue.MailEvent) error {
	return s.Pub.Publish(ctx, s.Exchange, ev.Kind.RoutingKey(), ev, log.RequestID(ctx))
}

// LogSink only logs. Used when no broker is configured. Codes and links are
// credentials and are redacted unless Reveal is set (local development).
type LogSink struct {
	Reveal bool
	// Logger overrides the context logger.
	Logger *zap.Logger
}

func (s LogSink) Deliver(ctx context.Context, ev queue.MailEvent) error {
	lg := s.Logger
	if lg == nil {
		lg = log.FromContext(ctx)
	}
	code, link := redact(ev.Code), redact(ev.Link)
	if s.Reveal {
		code, link = ev.Code, ev.Link
	}
	lg.Info("mail (log only)",
		zap.String("kind", string(ev.Kind)),
		zap.String("to", helper.Hash8(ev.To)),
		zap.String("code", code),
		zap.String("link", link),
	)
	return nil
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "[redacted]"
}
