// Package telegram defines the canonical domain types shared across the
// ingestion pipeline: entity references, raw provider payload shapes for
// both transports, and the normalized event model.
package telegram

import (
	"fmt"
	"strconv"
)

// EntityKind distinguishes the two credential-bearing principal types.
type EntityKind string

const (
	EntityBot     EntityKind = "bot"     // Bot API principal
	EntityAccount EntityKind = "account" // user account behind an MTProto bridge
)

// ParseEntityKind validates a kind string from config, CLI, or URL path.
func ParseEntityKind(s string) (EntityKind, error) {
	switch EntityKind(s) {
	case EntityBot, EntityAccount:
		return EntityKind(s), nil
	}
	return "", fmt.Errorf("unknown entity kind %q", s)
}

// EntityRef identifies one Telegram principal. Immutable value type.
type EntityRef struct {
	Kind EntityKind `json:"kind"`
	ID   int64      `json:"id"`
}

// String returns the "kind:id" form used in logs and cache keys.
func (e EntityRef) String() string {
	return string(e.Kind) + ":" + strconv.FormatInt(e.ID, 10)
}

// Transport is the ingestion mechanism for a session.
type Transport string

const (
	TransportPush Transport = "push" // provider delivers webhooks to us
	TransportPull Transport = "pull" // we hold a long-lived outbound connection
)

// TransportFor returns the transport an entity kind ingests through:
// bots are fed by webhooks, accounts drain an event stream.
func TransportFor(kind EntityKind) Transport {
	if kind == EntityAccount {
		return TransportPull
	}
	return TransportPush
}
