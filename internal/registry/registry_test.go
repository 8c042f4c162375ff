package registry

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telegate/telegate/internal/telegram"
)

func newTestSession(id int64) *Session {
	_, cancel := context.WithCancel(context.Background())
	return NewSession(telegram.EntityRef{Kind: telegram.EntityBot, ID: id}, telegram.TransportPush, cancel)
}

func TestRegisterIsIdempotent(t *testing.T) {
	r := New()
	first := newTestSession(7)
	require.True(t, r.Register(first))

	// A second register for the same entity is a no-op that keeps the
	// original handle.
	second := newTestSession(7)
	assert.False(t, r.Register(second))

	got, ok := r.Get(first.Entity)
	require.True(t, ok)
	assert.Same(t, first, got)
	assert.Len(t, r.ListActive(), 1)
}

func TestUnregister(t *testing.T) {
	r := New()
	s := newTestSession(1)
	require.True(t, r.Register(s))

	assert.True(t, r.Unregister(s.Entity))
	assert.False(t, r.Unregister(s.Entity), "second unregister reports not_found")

	_, ok := r.Get(s.Entity)
	assert.False(t, ok)
}

func TestIsActiveTracksStatus(t *testing.T) {
	r := New()
	s := newTestSession(2)
	r.Register(s)

	assert.False(t, r.IsActive(s.Entity), "starting is not active")
	s.SetStatus(StatusActive)
	assert.True(t, r.IsActive(s.Entity))
	s.SetStatus(StatusError)
	assert.False(t, r.IsActive(s.Entity))
}

func TestSessionCancelAndFinishAreIdempotent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewSession(telegram.EntityRef{Kind: telegram.EntityAccount, ID: 3}, telegram.TransportPull, cancel)

	s.Cancel()
	s.Cancel()
	assert.Error(t, ctx.Err())

	s.Finish()
	s.Finish()
	select {
	case <-s.Done():
	default:
		t.Fatal("Done should be closed after Finish")
	}
}

func TestConcurrentRegisterSingleWinner(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	wins := make(chan bool, 16)

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wins <- r.Register(newTestSession(42))
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for w := range wins {
		if w {
			won++
		}
	}
	assert.Equal(t, 1, won, "exactly one concurrent register may win")
	assert.Len(t, r.ListActive(), 1)
}
