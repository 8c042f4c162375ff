package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/telegate/telegate/internal/telegram"
)

const helloTimeout = 10 * time.Second

// Stream is one long-lived event stream for an account session, dialed
// against the MTProto bridge gateway.
type Stream struct {
	conn *websocket.Conn
}

// DialStream opens the stream: dial, send hello with the decrypted
// session string and resume cursor, wait for the ack. An auth rejection
// from the bridge maps to ErrUnauthorized.
func DialStream(ctx context.Context, url, session string, cursor int64) (*Stream, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial bridge: %w", err)
	}

	hello := telegram.StreamHello{Type: telegram.FrameHello, Session: session, Cursor: cursor}
	if err := conn.WriteJSON(hello); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send hello: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(helloTimeout))
	var ack telegram.StreamFrame
	if err := conn.ReadJSON(&ack); err != nil {
		conn.Close()
		return nil, fmt.Errorf("read hello ack: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	switch ack.Type {
	case telegram.FrameHelloAck:
		return &Stream{conn: conn}, nil
	case telegram.FrameError:
		conn.Close()
		if isAuthError(ack.Error) {
			return nil, fmt.Errorf("bridge: %s: %w", ack.Error, ErrUnauthorized)
		}
		return nil, fmt.Errorf("bridge: %s", ack.Error)
	default:
		conn.Close()
		return nil, fmt.Errorf("bridge: unexpected frame %q before ack", ack.Type)
	}
}

// Next blocks until the bridge pushes the next frame. Any read error,
// including a closed connection, ends the stream.
func (s *Stream) Next() (*telegram.StreamFrame, error) {
	var frame telegram.StreamFrame
	if err := s.conn.ReadJSON(&frame); err != nil {
		return nil, err
	}
	return &frame, nil
}

// Close tears down the connection. Unblocks a pending Next.
func (s *Stream) Close() error {
	return s.conn.Close()
}

// ProbeStream performs the non-mutating connectivity check for an
// account: dial, handshake, close.
func ProbeStream(ctx context.Context, url, session string) error {
	s, err := DialStream(ctx, url, session, 0)
	if err != nil {
		return err
	}
	return s.Close()
}

// IsClosedByPeer reports whether a stream read error is a normal close,
// as opposed to an unexpected drop.
func IsClosedByPeer(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}

func isAuthError(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "auth") || strings.Contains(msg, "session") || strings.Contains(msg, "unauthorized")
}

// ErrStreamClosed is returned by adapters when the stream ends without a
// cancellation.
var ErrStreamClosed = errors.New("provider: stream closed")
