/*
Package envelope defines the payloads that travel on the message bus and the destination
keys that route them to locally connected sessions.

A payload is a JSON object with a "kind" discriminator and exactly one body. Chat messages
and location pings travel on the CHAT channel; notifications on the NOTIFICATION channel.
*/
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"marketchat/internal/app/bus"
	"marketchat/internal/pkg/errs"
)

// Kind discriminates the envelope body.
type Kind string

const (
	KindChat         Kind = "CHAT_MESSAGE"
	KindLocation     Kind = "LOCATION"
	KindNotification Kind = "NOTIFICATION"
)

// MessageType is the content type of a chat message.
type MessageType string

const (
	MessageTypeText  MessageType = "TEXT"
	MessageTypeImage MessageType = "IMAGE"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	return t == MessageTypeText || t == MessageTypeImage
}

// ChatMessage is a persisted chat message as it is broadcast to room listeners.
type ChatMessage struct {
	ID          int64       `json:"id"`
	RoomID      int64       `json:"roomId"`
	SenderID    int64       `json:"senderId"`
	SenderEmail string      `json:"senderEmail"`
	SenderName  string      `json:"senderName,omitempty"`
	Content     string      `json:"content"`
	MessageType MessageType `json:"messageType"`
	SentAt      time.Time   `json:"sentAt"`
	IsRead      bool        `json:"isRead"`
}

// LocationPing is a participant's position shared with a room.
type LocationPing struct {
	ID         int64     `json:"id"`
	RoomID     int64     `json:"roomId"`
	UserID     int64     `json:"userId"`
	UserEmail  string    `json:"userEmail"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Address    string    `json:"address,omitempty"`
	RecordedAt time.Time `json:"recordedAt"`
}

// Notification is a transient, per-user push.
type Notification struct {
	// RecipientID is the recipient's principal subject.
	RecipientID     string    `json:"recipientId"`
	Message         string    `json:"message"`
	Type            string    `json:"type"`
	ContextRoomID   int64     `json:"contextRoomId,omitempty"`
	ContextEntityID int64     `json:"contextEntityId,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Envelope is the unit published on the bus.
type Envelope struct {
	Kind         Kind          `json:"kind"`
	Chat         *ChatMessage  `json:"chat,omitempty"`
	Location     *LocationPing `json:"location,omitempty"`
	Notification *Notification `json:"notification,omitempty"`
}

// ForChat wraps a chat message.
func ForChat(m ChatMessage) Envelope {
	return Envelope{Kind: KindChat, Chat: &m}
}

// ForLocation wraps a location ping.
func ForLocation(l LocationPing) Envelope {
	return Envelope{Kind: KindLocation, Location: &l}
}

// ForNotification wraps a notification.
func ForNotification(n Notification) Envelope {
	return Envelope{Kind: KindNotification, Notification: &n}
}

// Channel returns the bus channel the envelope travels on.
func (e Envelope) Channel() bus.Channel {
	if e.Kind == KindNotification {
		return bus.ChannelNotification
	}
	return bus.ChannelChat
}

// Validate checks that the envelope has a known kind, the matching body, and the ids
// needed to route it.
func (e Envelope) Validate() error {
	switch e.Kind {
	case KindChat:
		if e.Chat == nil {
			return errors.New("chat envelope without body")
		}
		if e.Chat.RoomID <= 0 {
			return errors.New("chat envelope without room id")
		}
	case KindLocation:
		if e.Location == nil {
			return errors.New("location envelope without body")
		}
		if e.Location.RoomID <= 0 {
			return errors.New("location envelope without room id")
		}
	case KindNotification:
		if e.Notification == nil {
			return errors.New("notification envelope without body")
		}
		if e.Notification.RecipientID == "" {
			return errors.New("notification envelope without recipient")
		}
	default:
		return fmt.Errorf("unknown envelope kind %q", e.Kind)
	}
	return nil
}

// Encode validates and serializes e.
func Encode(e Envelope) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, errs.Wrap(errs.ErrMalformedEnvelope, err)
	}
	return json.Marshal(e)
}

// Decode parses a payload received on channel. Payloads that do not parse, fail
// validation, or arrive on the wrong channel for their kind are malformed.
func Decode(channel bus.Channel, payload []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(payload, &e); err != nil {
		return Envelope{}, errs.Wrap(errs.ErrMalformedEnvelope, err)
	}
	if err := e.Validate(); err != nil {
		return Envelope{}, errs.Wrap(errs.ErrMalformedEnvelope, err)
	}
	if e.Channel() != channel {
		return Envelope{}, errs.Wrap(errs.ErrMalformedEnvelope,
			fmt.Errorf("%s envelope received on %s channel", e.Kind, channel))
	}
	return e, nil
}
