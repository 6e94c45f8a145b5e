package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

var ErrNotConfirmed = errors.New("broker did not confirm publish")

type confirmation interface {
	WaitContext(ctx context.Context) (bool, error)
}

// session is one connection + confirm-mode channel.
type session interface {
	publish(ctx context.Context, exchange, key string, msg amqp.Publishing) (confirmation, error)
	closed() bool
	close()
}

// RabbitPublisher publishes over a lazily re-established session: when the
// broker drops the connection the next Publish dials again instead of failing
// until restart.
type RabbitPublisher struct {
	mu   sync.Mutex
	dial func() (session, error)
	sess session
}

// NewRabbit connects, declares the topic exchange and puts the channel in
// confirm mode so Publish returns only after the broker has the message.
func NewRabbit(url, exchange string) (Publisher, error) {
	p := &RabbitPublisher{dial: func() (session, error) { return dialSession(url, exchange) }}
	s, err := p.dial()
	if err != nil {
		return nil, err
	}
	p.sess = s
	return p, nil
}

func (p *RabbitPublisher) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sess != nil {
		p.sess.close()
		p.sess = nil
	}
	return nil
}

func (p *RabbitPublisher) Publish(ctx context.Context, exchange, key string, event any, reqID string) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	// a stalled broker must not hold the request forever
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now(),
		Headers: amqp.Table{
			"X-Request-ID": reqID,
		},
	}

	dc, err := p.send(ctx, exchange, key, msg)
	if err != nil {
		return err
	}
	ok, err := dc.WaitContext(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotConfirmed
	}
	return nil
}

// send publishes on the current session, redialing once if the session turns
// out to be closed.
func (p *RabbitPublisher) send(ctx context.Context, exchange, key string, msg amqp.Publishing) (confirmation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for attempt := 1; ; attempt++ {
		if p.sess == nil || p.sess.closed() {
			if p.sess != nil {
				p.sess.close()
				p.sess = nil
			}
			s, err := p.dial()
			if err != nil {
				return nil, fmt.Errorf("reconnect rabbit: %w", err)
			}
			p.sess = s
		}
		dc, err := p.sess.publish(ctx, exchange, key, msg)
		if errors.Is(err, amqp.ErrClosed) && attempt == 1 {
			p.sess.close()
			p.sess = nil
			continue
		}
		return dc, err
	}
}

type amqpSession struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func dialSession(url, exchange string) (session, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbit: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	s := &amqpSession{conn: conn, ch: ch}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		s.close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		s.close()
		return nil, fmt.Errorf("confirm mode: %w", err)
	}
	return s, nil
}

func (s *amqpSession) publish(ctx context.Context, exchange, key string, msg amqp.Publishing) (confirmation, error) {
	dc, err := s.ch.PublishWithDeferredConfirmWithContext(ctx, exchange, key, false, false, msg)
	if err != nil {
		return nil, err
	}
	return dc, nil
}

func (s *amqpSession) closed() bool { return s.conn.IsClosed() || s.ch.IsClosed() }

func (s *amqpSession) close() {
	_ = s.ch.Close()
	_ = s.conn.Close()
}
