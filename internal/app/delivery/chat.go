package delivery

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"marketchat/internal/app/bus"
	"marketchat/internal/app/envelope"
	"marketchat/internal/pkg/auth"
	"marketchat/internal/pkg/errs"
	"marketchat/internal/pkg/logx"
	"marketchat/internal/pkg/metrics"
)

const (
	// MaxContentBytes is the maximum size of a chat message body.
	MaxContentBytes = 5000

	// previewRunes is the longest content shown verbatim in a new-message notification.
	previewRunes = 30

	// NotificationTypeChatMessage marks notifications about a new chat message.
	NotificationTypeChatMessage = "CHAT_MESSAGE"
)

// SendRequest is a chat message as submitted by a client.
type SendRequest struct {
	RoomID      int64                `json:"roomId"`
	Content     string               `json:"content"`
	MessageType envelope.MessageType `json:"messageType"`
}

// ChatDeps are the collaborators of ChatPipeline. Notifier may be nil.
type ChatDeps struct {
	Rooms    RoomStore
	Messages MessageStore
	Profiles ProfileLookup
	Bus      bus.Bus
	Notifier *NotificationPipeline
	Clock    Clock
}

// ChatPipeline accepts chat messages from authenticated senders.
type ChatPipeline struct {
	rooms    RoomStore
	messages MessageStore
	profiles ProfileLookup
	bus      bus.Bus
	notifier *NotificationPipeline
	now      Clock
	logger   zerolog.Logger
}

// NewChatPipeline creates a ChatPipeline.
func NewChatPipeline(deps ChatDeps) *ChatPipeline {
	now := deps.Clock
	if now == nil {
		now = serverNow
	}
	return &ChatPipeline{
		rooms:    deps.Rooms,
		messages: deps.Messages,
		profiles: deps.Profiles,
		bus:      deps.Bus,
		notifier: deps.Notifier,
		now:      now,
		logger:   logx.Component("ChatPipeline"),
	}
}

// Send authorizes, persists, enriches and publishes a chat message, then updates the
// room summary and notifies the other participants. The returned message is the stored,
// enriched copy. Only authorization, validation and persistence failures are returned.
func (p *ChatPipeline) Send(ctx context.Context, sender auth.Principal, req SendRequest) (envelope.ChatMessage, error) {
	if req.MessageType == "" {
		req.MessageType = envelope.MessageTypeText
	}
	if err := validateSend(req); err != nil {
		return envelope.ChatMessage{}, err
	}

	logger := p.logger.With().
		Int64("room_id", req.RoomID).
		Str("subject", sender.Subject).
		Logger()

	// 1. authorize
	ok, err := p.rooms.IsActiveParticipant(ctx, req.RoomID, sender.UserID)
	if err != nil {
		return envelope.ChatMessage{}, errs.Wrap(errs.ErrPersistenceFailed, fmt.Errorf("participation lookup: %w", err))
	}
	if !ok {
		return envelope.ChatMessage{}, errs.NewError(errs.ErrNotRoomParticipant)
	}

	// 2. build with the server timestamp
	msg := envelope.ChatMessage{
		RoomID:      req.RoomID,
		SenderID:    sender.UserID,
		SenderEmail: sender.Subject,
		Content:     req.Content,
		MessageType: req.MessageType,
		SentAt:      p.now(),
		IsRead:      false,
	}

	// 3. persist; nothing is published if this fails
	stored, err := p.messages.SaveMessage(ctx, msg)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to persist chat message. Nothing published.")
		return envelope.ChatMessage{}, errs.Wrap(errs.ErrPersistenceFailed, err)
	}
	metrics.MessagesPersistedTotal.WithLabelValues("chat").Inc()

	// 4. enrich
	if p.profiles != nil {
		name, err := p.profiles.Nickname(ctx, sender.UserID)
		if err != nil {
			logger.Warn().Err(err).Msg("Sender profile lookup failed. Publishing without display name.")
		} else {
			stored.SenderName = name
		}
	}

	// 5. publish; a failure is logged and the durable record stands
	p.publish(ctx, logger, envelope.ForChat(stored))

	// 6. room summary
	if err := p.rooms.UpdateLastMessage(ctx, stored.RoomID, summaryOf(stored), stored.SentAt); err != nil {
		logger.Warn().Err(err).Int64("message_id", stored.ID).Msg("Failed to update room last-message summary.")
	}

	p.notifyParticipants(ctx, logger, stored)

	return stored, nil
}

func (p *ChatPipeline) publish(ctx context.Context, logger zerolog.Logger, env envelope.Envelope) {
	payload, err := envelope.Encode(env)
	if err == nil {
		err = p.bus.Publish(context.WithoutCancel(ctx), env.Channel(), payload)
	}
	if err != nil {
		logger.Error().Err(err).Str("kind", string(env.Kind)).Msg("Failed to publish envelope. Clients recover via history.")
	}
}

func (p *ChatPipeline) notifyParticipants(ctx context.Context, logger zerolog.Logger, msg envelope.ChatMessage) {
	if p.notifier == nil {
		return
	}

	members, err := p.rooms.ActiveMembers(ctx, msg.RoomID)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to list room members for notification.")
		return
	}

	sender := msg.SenderName
	if sender == "" {
		sender = msg.SenderEmail
	}

	for _, m := range members {
		if m.UserID == msg.SenderID || m.Email == "" {
			continue
		}
		_, err := p.notifier.Notify(ctx, envelope.Notification{
			RecipientID:     m.Email,
			Message:         Preview(sender, msg),
			Type:            NotificationTypeChatMessage,
			ContextRoomID:   msg.RoomID,
			ContextEntityID: msg.ID,
		})
		if err != nil {
			logger.Warn().Err(err).Str("recipient_id", m.Email).Msg("Failed to notify participant.")
		}
	}
}

// Preview renders the notification text for a new chat message.
func Preview(sender string, msg envelope.ChatMessage) string {
	content := msg.Content
	if msg.MessageType == envelope.MessageTypeImage {
		content = "(image)"
	}
	if utf8.RuneCountInString(content) > previewRunes {
		runes := []rune(content)
		content = string(runes[:previewRunes-3]) + "..."
	}
	return sender + ": " + content
}

func summaryOf(msg envelope.ChatMessage) string {
	if msg.MessageType == envelope.MessageTypeImage {
		return "(image)"
	}
	return msg.Content
}

// ImageKeyPrefix is the object key prefix IMAGE messages in roomID must use.
func ImageKeyPrefix(roomID int64) string {
	return "rooms/" + strconv.FormatInt(roomID, 10) + "/"
}

func validateSend(req SendRequest) error {
	if req.RoomID <= 0 {
		return errs.NewError(errs.ErrInvalidParams)
	}
	if !req.MessageType.Valid() {
		return errs.NewError(errs.ErrMessageTypeInvalid)
	}
	if strings.TrimSpace(req.Content) == "" {
		return errs.NewError(errs.ErrMessageContentEmpty)
	}
	if len(req.Content) > MaxContentBytes {
		return errs.NewError(errs.ErrMessageContentTooLong)
	}
	if req.MessageType == envelope.MessageTypeImage && !strings.HasPrefix(req.Content, ImageKeyPrefix(req.RoomID)) {
		return errs.NewError(errs.ErrAttachmentKeyInvalid)
	}
	return nil
}
