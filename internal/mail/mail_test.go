package mail

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tazhibayda/authflow/internal/queue"
	"github.com/tazhibayda/authflow/internal/repo"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gopkg.in/gomail.v2"
)

type fakeDialer struct {
	sent []*gomail.Message
	err  error
}

func (d *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, m...)
	return nil
}

type sinkFunc func(ctx context.Context, ev queue.MailEvent) error

func (f sinkFunc) Deliver(ctx context.Context, ev queue.MailEvent) error { return f(ctx, ev) }

type recordingPub struct {
	mu     sync.Mutex
	keys   []string
	events []any
}

func (p *recordingPub) Publish(_ context.Context, exchange, key string, event any, reqID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, exchange+"/"+key)
	p.events = append(p.events, event)
	return nil
}
func (p *recordingPub) Close() error { return nil }

func TestRenderAllKinds(t *testing.T) {
	cases := map[queue.MailEvent]string{
		{Kind: queue.MailVerification, To: "a@x.com", Code: "123456"}:                       "123456",
		{Kind: queue.MailWelcome, To: "a@x.com", Name: "Alice"}:                             "Hello Alice",
		{Kind: queue.MailResetRequest, To: "a@x.com", Link: "http://c/reset-password/tok"}: "http://c/reset-password/tok",
		{Kind: queue.MailResetSuccess, To: "a@x.com"}:                                       "successfully reset",
	}
	for ev, want := range cases {
		subject, body, err := Render(ev)
		require.NoError(t, err, ev.Kind)
		assert.NotEmpty(t, subject)
		assert.Contains(t, body, want)
	}
	_, _, err := Render(queue.MailEvent{Kind: "nope"})
	assert.Error(t, err)
}

func TestRenderEscapesName(t *testing.T) {
	_, body, err := Render(queue.MailEvent{Kind: queue.MailWelcome, Name: "<script>"})
	require.NoError(t, err)
	assert.False(t, strings.Contains(body, "<script>"))
}

func TestSMTPSenderDeliver(t *testing.T) {
	d := &fakeDialer{}
	s := &SMTPSender{d: d, from: "noreply@x.com"}

	require.NoError(t, s.Deliver(context.Background(), queue.MailEvent{Kind: queue.MailResetSuccess, To: "a@x.com"}))
	require.Len(t, d.sent, 1)
	assert.Equal(t, []string{"a@x.com"}, d.sent[0].GetHeader("To"))
	assert.Equal(t, []string{"Password Reset Successful"}, d.sent[0].GetHeader("Subject"))

	err := s.Deliver(context.Background(), queue.MailEvent{Kind: queue.MailWelcome})
	assert.ErrorIs(t, err, ErrInvalidEvent)

	d.err = errors.New("connection refused")
	err = s.Deliver(context.Background(), queue.MailEvent{Kind: queue.MailWelcome, To: "a@x.com"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidEvent))
}

func TestNotifierPublishesToQueue(t *testing.T) {
	pub := &recordingPub{}
	n := NewNotifier(QueueSink{Pub: pub, Exchange: "auth.events"})
	ctx := context.Background()

	require.NoError(t, n.SendVerification(ctx, "a@x.com", "123456"))
	require.NoError(t, n.SendWelcome(ctx, "a@x.com", "Alice"))
	require.NoError(t, n.SendResetRequest(ctx, "a@x.com", "http://c/reset-password/t"))
	require.NoError(t, n.SendResetSuccess(ctx, "a@x.com"))

	assert.Equal(t, []string{
		"auth.events/mail.verification",
		"auth.events/mail.welcome",
		"auth.events/mail.reset_request",
		"auth.events/mail.reset_success",
	}, pub.keys)
	assert.Equal(t, queue.MailEvent{Kind: queue.MailVerification, To: "a@x.com", Code: "123456"}, pub.events[0])
}

func TestWorkerDedupesAndRetries(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rds := repo.NewRedis(mr.Addr())
	defer rds.Close()

	var calls int
	fail := true
	w := &Worker{
		Seen:     rds,
		DedupTTL: time.Hour,
		Sink: sinkFunc(func(context.Context, queue.MailEvent) error {
			calls++
			if fail {
				return errors.New("smtp down")
			}
			return nil
		}),
	}
	body, _ := json.Marshal(queue.MailEvent{Kind: queue.MailWelcome, To: "a@x.com", Name: "A"})
	msg := queue.Message{ID: "m-1", Body: body}
	ctx := context.Background()

	// failed send must leave the id free for the redelivery
	require.Error(t, w.Handle(ctx, msg))
	fail = false
	require.NoError(t, w.Handle(ctx, msg))
	require.NoError(t, w.Handle(ctx, msg))
	assert.Equal(t, 2, calls)
}

func TestWorkerDropsUndecodable(t *testing.T) {
	w := &Worker{Sink: sinkFunc(func(context.Context, queue.MailEvent) error { return nil })}
	err := w.Handle(context.Background(), queue.Message{ID: "x", Body: []byte("{")})
	assert.ErrorIs(t, err, queue.ErrDrop)
}

func TestLogSinkRedactsCredentials(t *testing.T) {
	ev := queue.MailEvent{Kind: queue.MailResetRequest, To: "a@x.com", Code: "123456", Link: "http://c/reset-password/tok"}

	core, logs := observer.New(zap.InfoLevel)
	require.NoError(t, LogSink{Logger: zap.New(core)}.Deliver(context.Background(), ev))
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "[redacted]", fields["code"])
	assert.Equal(t, "[redacted]", fields["link"])
	assert.NotEqual(t, "a@x.com", fields["to"])

	core, logs = observer.New(zap.InfoLevel)
	require.NoError(t, LogSink{Reveal: true, Logger: zap.New(core)}.Deliver(context.Background(), ev))
	fields = logs.All()[0].ContextMap()
	assert.Equal(t, "123456", fields["code"])
	assert.Equal(t, "http://c/reset-password/tok", fields["link"])
}
