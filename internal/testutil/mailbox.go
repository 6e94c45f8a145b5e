package testutil

import (
	"context"
	"sync"

	"github.com/tazhibayda/authflow/internal/queue"
)

// Mailbox is a mail.Sink that keeps every event it is given.
type Mailbox struct {
	mu     sync.Mutex
	events []queue.MailEvent
	// Err, when set, fails every delivery.
	Err error
}

func (m *Mailbox) Deliver(_ context.Context, ev queue.MailEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.events = append(m.events, ev)
	return nil
}

// Last returns the newest event of kind.
func (m *Mailbox) Last(kind queue.MailKind) (queue.MailEvent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.events) - 1; i >= 0; i-- {
		if m.events[i].Kind == kind {
			return m.events[i], true
		}
	}
	return queue.MailEvent{}, false
}

func (m *Mailbox) Count(kind queue.MailKind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, ev := range m.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}
