package transport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telegate/telegate/internal/telegram"
)

// memSink records processed events in order.
type memSink struct {
	mu     sync.Mutex
	events []telegram.IngestedEvent
	err    error
}

func (s *memSink) Process(_ context.Context, ev telegram.IngestedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *memSink) all() []telegram.IngestedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]telegram.IngestedEvent(nil), s.events...)
}

func (s *memSink) waitFor(t *testing.T, n int) []telegram.IngestedEvent {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if events := s.all(); len(events) >= n {
			return events
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("sink never received %d events", n)
	return nil
}

func textUpdate(updateID, msgID int64, text string) *telegram.Update {
	return &telegram.Update{
		UpdateID: updateID,
		Message: &telegram.RawMessage{
			MessageID: msgID,
			Chat:      &telegram.RawChat{ID: 100, Type: "private", FirstName: "Alice"},
			From:      &telegram.RawUser{ID: 100},
			Text:      text,
		},
	}
}

func TestWebhookSecretIsDeterministic(t *testing.T) {
	assert.Equal(t, "d90f4e8844b0f9982979c6918a91bbd3", WebhookSecret(123))
	assert.Equal(t, "d8e3a732d5eb5e7a3484fb6aecb505ec", WebhookSecret(7))
	assert.Len(t, WebhookSecret(1), 32)
}

func TestPushDeliversInOrder(t *testing.T) {
	bot := telegram.EntityRef{Kind: telegram.EntityBot, ID: 1}
	sink := &memSink{}
	p := NewPush(bot, sink, 16)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	require.True(t, p.Deliver(textUpdate(1, 10, "first")))
	require.True(t, p.Deliver(textUpdate(2, 11, "second")))
	require.True(t, p.Deliver(textUpdate(3, 12, "third")))

	events := sink.waitFor(t, 3)
	assert.Equal(t, "first", events[0].Message.Text)
	assert.Equal(t, "second", events[1].Message.Text)
	assert.Equal(t, "third", events[2].Message.Text)
	assert.Equal(t, int64(1), events[0].Seq)
	assert.Equal(t, int64(3), events[2].Seq)
}

func TestPushDropsWhenQueueFull(t *testing.T) {
	bot := telegram.EntityRef{Kind: telegram.EntityBot, ID: 1}
	p := NewPush(bot, &memSink{}, 2)

	// Nothing drains the queue.
	assert.True(t, p.Deliver(textUpdate(1, 10, "a")))
	assert.True(t, p.Deliver(textUpdate(2, 11, "b")))
	assert.False(t, p.Deliver(textUpdate(3, 12, "c")))
	assert.Equal(t, 2, p.Pending())
}

func TestPushContinuesPastSinkError(t *testing.T) {
	bot := telegram.EntityRef{Kind: telegram.EntityBot, ID: 1}
	sink := &memSink{err: errors.New("disk full")}
	p := NewPush(bot, sink, 16)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	p.Deliver(textUpdate(1, 10, "lost"))
	time.Sleep(30 * time.Millisecond)

	sink.mu.Lock()
	sink.err = nil
	sink.mu.Unlock()

	p.Deliver(textUpdate(2, 11, "kept"))
	events := sink.waitFor(t, 1)
	assert.Equal(t, "kept", events[0].Message.Text)
}

func TestPushRunStopsOnCancel(t *testing.T) {
	bot := telegram.EntityRef{Kind: telegram.EntityBot, ID: 1}
	p := NewPush(bot, &memSink{}, 4)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run must return on cancellation")
	}
}

func TestPushTransport(t *testing.T) {
	p := NewPush(telegram.EntityRef{Kind: telegram.EntityBot, ID: 1}, &memSink{}, 4)
	assert.Equal(t, telegram.TransportPush, p.Transport())
}
