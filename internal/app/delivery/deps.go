/*
Package delivery implements the write paths of the real-time core: chat messages,
location pings and notifications.

Each pipeline persists first (when the item is durable) and publishes second. A publish
failure never undoes a successful write; clients recover through the history endpoints.
*/
package delivery

import (
	"context"
	"time"

	"marketchat/internal/app/envelope"
)

// RoomAuthorizer answers whether a user may act in a room.
type RoomAuthorizer interface {
	IsActiveParticipant(ctx context.Context, roomID, userID int64) (bool, error)
}

// Member is an active participant of a room.
type Member struct {
	UserID   int64
	Email    string
	Nickname string
}

// RoomStore persists room-level state touched by message delivery.
type RoomStore interface {
	RoomAuthorizer
	UpdateLastMessage(ctx context.Context, roomID int64, content string, at time.Time) error
	ActiveMembers(ctx context.Context, roomID int64) ([]Member, error)
}

// MessageStore persists chat messages. SaveMessage returns the message with its id set.
type MessageStore interface {
	SaveMessage(ctx context.Context, msg envelope.ChatMessage) (envelope.ChatMessage, error)
}

// LocationStore persists location pings. SaveLocation returns the ping with its id set.
type LocationStore interface {
	SaveLocation(ctx context.Context, ping envelope.LocationPing) (envelope.LocationPing, error)
}

// ProfileLookup resolves display metadata for a sender.
type ProfileLookup interface {
	Nickname(ctx context.Context, userID int64) (string, error)
}

// LocalPusher reaches connections bound on this instance.
type LocalPusher interface {
	// IsBound reports whether subject has at least one connection on this instance.
	IsBound(subject string) bool

	// Deliver queues frame to every local connection subscribed to destination.
	Deliver(destination string, frame []byte) int
}

// Clock returns the current server time.
type Clock func() time.Time

// serverNow is the default clock. Postgres keeps microseconds, so timestamps are
// truncated to keep the broadcast copy identical to the stored one.
func serverNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
