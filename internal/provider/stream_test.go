package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telegate/telegate/internal/telegram"
)

// fakeBridge upgrades connections, checks the hello session string and
// then pushes the given frames.
func fakeBridge(t *testing.T, validSession string, frames []telegram.StreamFrame) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		var hello telegram.StreamHello
		require.NoError(t, conn.ReadJSON(&hello))
		require.Equal(t, telegram.FrameHello, hello.Type)

		if hello.Session != validSession {
			conn.WriteJSON(telegram.StreamFrame{Type: telegram.FrameError, Error: "invalid session"})
			return
		}
		require.NoError(t, conn.WriteJSON(telegram.StreamFrame{Type: telegram.FrameHelloAck}))

		for _, f := range frames {
			if err := conn.WriteJSON(f); err != nil {
				return
			}
		}
		// Keep the connection open until the client leaves.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestDialStreamAndReceive(t *testing.T) {
	srv := fakeBridge(t, "sess-1", []telegram.StreamFrame{
		{Type: telegram.FrameNewMessage, Seq: 1, Event: &telegram.AccountEvent{MessageID: 10, PeerID: 2, Text: "a"}},
		{Type: telegram.FrameNewMessage, Seq: 2, Event: &telegram.AccountEvent{MessageID: 11, PeerID: 2, Text: "b"}},
	})
	defer srv.Close()

	s, err := DialStream(context.Background(), wsURL(srv), "sess-1", 0)
	require.NoError(t, err)
	defer s.Close()

	f1, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(1), f1.Seq)
	assert.Equal(t, "a", f1.Event.Text)

	f2, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(2), f2.Seq)
}

func TestDialStreamRejectsBadSession(t *testing.T) {
	srv := fakeBridge(t, "sess-1", nil)
	defer srv.Close()

	_, err := DialStream(context.Background(), wsURL(srv), "wrong", 0)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestNextUnblocksOnClose(t *testing.T) {
	srv := fakeBridge(t, "sess-1", nil)
	defer srv.Close()

	s, err := DialStream(context.Background(), wsURL(srv), "sess-1", 0)
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := s.Next()
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	s.Close()

	select {
	case err := <-errCh:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("Next must unblock when the stream is closed")
	}
}

func TestProbeStream(t *testing.T) {
	srv := fakeBridge(t, "sess-1", nil)
	defer srv.Close()

	assert.NoError(t, ProbeStream(context.Background(), wsURL(srv), "sess-1"))
	assert.Error(t, ProbeStream(context.Background(), wsURL(srv), "bad"))
}
