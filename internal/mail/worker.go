package mail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tazhibayda/authflow/internal/helper"
	"github.com/tazhibayda/authflow/internal/log"
	"github.com/tazhibayda/authflow/internal/metrics"
	"github.com/tazhibayda/authflow/internal/queue"
	"go.uber.org/zap"
)

// Deduper remembers message ids so broker redeliveries are not mailed twice.
type Deduper interface {
	MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Forget(ctx context.Context, key string) error
}

type Worker struct {
	Sink     Sink
	Seen     Deduper
	DedupTTL time.Duration
}

// Handle is a queue.Handler for mail events.
func (w *Worker) Handle(ctx context.Context, m queue.Message) error {
	ctx = log.WithRequestID(ctx, m.RequestID)
	lg := log.FromContext(ctx, zap.String("message_id", m.ID), zap.String("request_id", m.RequestID))

	var ev queue.MailEvent
	if err := json.Unmarshal(m.Body, &ev); err != nil {
		lg.Error("mail event decode", zap.Error(err))
		metrics.MailsTotal.WithLabelValues("unknown", "dropped").Inc()
		return fmt.Errorf("%w: %v", queue.ErrDrop, err)
	}
	kind := string(ev.Kind)
	lg = lg.With(zap.String("kind", kind), zap.String("to", helper.Hash8(ev.To)))

	key := "mail:" + m.ID
	if w.Seen != nil && m.ID != "" {
		first, err := w.Seen.MarkOnce(ctx, key, w.DedupTTL)
		if err != nil {
			// redis is only an optimisation; a duplicate is better than a lost mail
			lg.Warn("dedupe unavailable", zap.Error(err))
		} else if !first {
			lg.Info("duplicate delivery skipped")
			metrics.MailsTotal.WithLabelValues(kind, "duplicate").Inc()
			return nil
		}
	}

	if err := w.Sink.Deliver(ctx, ev); err != nil {
		if errors.Is(err, ErrInvalidEvent) {
			lg.Error("mail dropped", zap.Error(err))
			metrics.MailsTotal.WithLabelValues(kind, "dropped").Inc()
			return fmt.Errorf("%w: %v", queue.ErrDrop, err)
		}
		if w.Seen != nil && m.ID != "" {
			_ = w.Seen.Forget(ctx, key)
		}
		lg.Warn("mail send failed, requeue", zap.Error(err))
		metrics.MailsTotal.WithLabelValues(kind, "retry").Inc()
		return err
	}
	lg.Info("mail sent")
	metrics.MailsTotal.WithLabelValues(kind, "sent").Inc()
	return nil
}
