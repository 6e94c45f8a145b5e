package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrDrop tells the consumer the message can never succeed and must not be
// requeued.
var ErrDrop = errors.New("drop message")

// ErrDeliveriesClosed is returned by Consume when the broker closes the
// delivery stream while the caller still wants messages.
var ErrDeliveriesClosed = errors.New("rabbit deliveries closed")

type Message struct {
	ID        string
	RequestID string
	Body      []byte
}

type Handler func(ctx context.Context, m Message) error

type Consumer struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	q    string
}

func NewConsumer(url, exchange, queue, key string) (*Consumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbit: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	fail := func(step string, err error) (*Consumer, error) {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("%s: %w", step, err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return fail("declare exchange", err)
	}
	qd, err := ch.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		return fail("declare queue", err)
	}
	if err := ch.QueueBind(qd.Name, key, exchange, false, nil); err != nil {
		return fail("bind queue", err)
	}

	return &Consumer{conn: conn, ch: ch, q: qd.Name}, nil
}

func (c *Consumer) Close() {
	if c == nil {
		return
	}
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// Consume runs workers goroutines over the queue until ctx is done. Losing
// the channel or connection before that is an error.
func (c *Consumer) Consume(ctx context.Context, workers int, handle Handler) error {
	if c == nil || c.ch == nil {
		return fmt.Errorf("consumer is not initialized")
	}
	if workers <= 0 {
		workers = 1
	}
	// bound unacked deliveries held in memory
	if err := c.ch.Qos(workers*8, 0, false); err != nil {
		return fmt.Errorf("qos: %w", err)
	}
	msgs, err := c.ch.Consume(c.q, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	return drain(ctx, msgs, workers, handle)
}

func drain(ctx context.Context, msgs <-chan amqp.Delivery, workers int, handle Handler) error {
	Dispatch(ctx, msgs, workers, handle)
	if ctx.Err() != nil {
		return nil
	}
	return ErrDeliveriesClosed
}

// Dispatch fans deliveries out to workers. A nil handler error acks, ErrDrop
// rejects without requeue, any other error requeues. It returns when ctx is
// done or msgs is closed, after every worker has stopped.
func Dispatch(ctx context.Context, msgs <-chan amqp.Delivery, workers int, handle Handler) {
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for {
				select {
				case d, ok := <-msgs:
					if !ok {
						return
					}
					settle(d, handle(ctx, toMessage(d)))
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	wg.Wait()
}

func settle(d amqp.Delivery, err error) {
	switch {
	case err == nil:
		_ = d.Ack(false)
	case errors.Is(err, ErrDrop):
		_ = d.Nack(false, false)
	default:
		_ = d.Nack(false, true)
	}
}

func toMessage(d amqp.Delivery) Message {
	reqID, _ := d.Headers["X-Request-ID"].(string)
	return Message{ID: d.MessageId, RequestID: reqID, Body: d.Body}
}
