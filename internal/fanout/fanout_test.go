package fanout

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

func TestBusDeliversInOrder(t *testing.T) {
	b := NewBus()

	var mu sync.Mutex
	var got []string
	b.Subscribe(func(ev telegram.NotificationEvent) {
		mu.Lock()
		got = append(got, ev.Content)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Dispatch(ctx)

	for _, c := range []string{"a", "b", "c"} {
		require.NoError(t, b.Publish(ctx, telegram.NotificationEvent{Kind: "new_message", Content: c}))
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestStampFillsIDAndTime(t *testing.T) {
	ev := telegram.NotificationEvent{Kind: "new_message"}
	Stamp(&ev)
	assert.NotEmpty(t, ev.ID)
	assert.False(t, ev.CreatedAt.IsZero())

	// Stamp is idempotent.
	id := ev.ID
	Stamp(&ev)
	assert.Equal(t, id, ev.ID)
}

func TestBusFullQueueDropsInsteadOfBlocking(t *testing.T) {
	b := NewBus() // no dispatcher running

	done := make(chan struct{})
	go func() {
		for i := 0; i < 150; i++ {
			b.Publish(context.Background(), telegram.NotificationEvent{Kind: "new_message"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish must never block the caller")
	}
	assert.Equal(t, 100, b.Pending())
}

func TestBusPublishAfterCloseIsNoop(t *testing.T) {
	b := NewBus()
	require.NoError(t, b.Close())
	require.NoError(t, b.Publish(context.Background(), telegram.NotificationEvent{Kind: "new_message"}))
	assert.Equal(t, 0, b.Pending())
}

type failingPublisher struct{ err error }

func (f failingPublisher) Publish(context.Context, telegram.NotificationEvent) error { return f.err }
func (f failingPublisher) Close() error                                              { return nil }

func TestMultiContinuesPastFailures(t *testing.T) {
	b := NewBus()
	m := Multi{failingPublisher{err: errors.New("broker down")}, b}

	err := m.Publish(context.Background(), telegram.NotificationEvent{Kind: "new_message"})
	assert.Error(t, err, "first failure is surfaced for observability")
	assert.Equal(t, 1, b.Pending(), "later publishers still receive the event")
}
