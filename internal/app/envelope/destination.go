package envelope

import (
	"fmt"
	"strconv"
	"strings"
)

// Scope is the first segment of a destination key.
type Scope string

const (
	ScopeRoom     Scope = "room"
	ScopeLocation Scope = "location"
	ScopeUser     Scope = "user"
)

// RoomDestination is the key chat messages for roomID are delivered to.
func RoomDestination(roomID int64) string {
	return string(ScopeRoom) + ":" + strconv.FormatInt(roomID, 10)
}

// LocationDestination is the key location pings for roomID are delivered to.
func LocationDestination(roomID int64) string {
	return string(ScopeLocation) + ":" + strconv.FormatInt(roomID, 10)
}

// UserDestination is the key personal notifications for subject are delivered to.
func UserDestination(subject string) string {
	return string(ScopeUser) + ":" + subject
}

// Destination computes the local delivery key of a valid envelope. It is a pure function
// of the envelope content.
func Destination(e Envelope) string {
	switch e.Kind {
	case KindChat:
		return RoomDestination(e.Chat.RoomID)
	case KindLocation:
		return LocationDestination(e.Location.RoomID)
	case KindNotification:
		return UserDestination(e.Notification.RecipientID)
	}
	return ""
}

// Target is a parsed destination key.
type Target struct {
	Scope   Scope
	RoomID  int64
	Subject string
}

// ParseDestination parses a key produced by one of the *Destination helpers.
func ParseDestination(key string) (Target, error) {
	scope, rest, ok := strings.Cut(key, ":")
	if !ok || rest == "" {
		return Target{}, fmt.Errorf("malformed destination %q", key)
	}

	switch Scope(scope) {
	case ScopeRoom, ScopeLocation:
		id, err := strconv.ParseInt(rest, 10, 64)
		if err != nil || id <= 0 {
			return Target{}, fmt.Errorf("malformed room id in destination %q", key)
		}
		return Target{Scope: Scope(scope), RoomID: id}, nil
	case ScopeUser:
		return Target{Scope: ScopeUser, Subject: rest}, nil
	}
	return Target{}, fmt.Errorf("unknown destination scope %q", scope)
}

// Key re-encodes the target.
func (t Target) Key() string {
	switch t.Scope {
	case ScopeRoom:
		return RoomDestination(t.RoomID)
	case ScopeLocation:
		return LocationDestination(t.RoomID)
	case ScopeUser:
		return UserDestination(t.Subject)
	}
	return ""
}
