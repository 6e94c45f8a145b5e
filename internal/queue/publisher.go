package queue

import "context"

// Publisher sends an event to an exchange under a routing key. reqID travels
// as the X-Request-ID header.
type Publisher interface {
	Publish(ctx context.Context, exchange, key string, event any, reqID string) error
	Close() error
}
