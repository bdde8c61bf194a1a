package core

import (
	"context"

	"github.com/dkeye/VoiceAgent/internal/domain"
)

type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// Subscription identifies a registered room event handler.
type Subscription uint64

// Handler receives room events on the event loop.
type Handler func(RoomEvent)

// RoomEvents is the read-only side of a room: subscribe and inspect.
type RoomEvents interface {
	On(h Handler) Subscription
	Off(sub Subscription)
	State() ConnectionState
	Permissions() domain.Permissions
}

// Room is the realtime connection collaborator.
// Connect blocks until connected or failed; it must not be called on the event loop.
// Only the session controller calls Connect and Disconnect.
type Room interface {
	RoomEvents
	Connect(ctx context.Context, details domain.ConnectionDetails) error
	Disconnect() error
	PublishData(ctx context.Context, topic string, payload []byte) error
	SetDeviceEnabled(ctx context.Context, kind domain.DeviceKind, enabled bool) (bool, error)
}

// TokenProvider hands out credentials for a room join.
type TokenProvider interface {
	FetchConnectionDetails(ctx context.Context, cfg domain.AppConfig) (domain.ConnectionDetails, error)
}
