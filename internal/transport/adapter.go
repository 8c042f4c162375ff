// Package transport owns the per-session adapter tasks: Push feeds from
// webhook deliveries, Pull consumes the bridge event stream. Adapters
// normalize raw payloads and hand canonical events to a Sink, one at a
// time, preserving arrival order within the session.
package transport

import (
	"context"

	"github.com/telegate/telegate/internal/telegram"
)

// Sink consumes canonical events. The ingest pipeline implements it.
type Sink interface {
	Process(ctx context.Context, ev telegram.IngestedEvent) error
}

// Adapter is one session's running task. Run blocks until the context is
// cancelled (returning nil) or the connection fails (returning the
// error). Adapters never reconnect on their own.
type Adapter interface {
	Run(ctx context.Context) error
	Transport() telegram.Transport
}
