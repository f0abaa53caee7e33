package chat

import (
	"context"
	"encoding/json"
	"fmt"

	"marketchat/internal/app/delivery"
	"marketchat/internal/app/envelope"
	"marketchat/internal/pkg/auth"
	"marketchat/internal/pkg/errs"
)

// CommandType is the "type" of a frame sent by a client.
type CommandType string

const (
	CommandSubscribe    CommandType = "SUBSCRIBE"
	CommandUnsubscribe  CommandType = "UNSUBSCRIBE"
	CommandSendChat     CommandType = "SEND_CHAT"
	CommandPostLocation CommandType = "POST_LOCATION"
)

// InboundFrame is the inbound message format on client connections.
type InboundFrame struct {
	Type        CommandType     `json:"type"`
	Destination string          `json:"destination,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	TempID      string          `json:"tempId,omitempty"`
}

// AckPayload confirms that a command was persisted.
type AckPayload struct {
	TempID string `json:"tempId,omitempty"`
	ID     int64  `json:"id"`
}

// Commands executes client commands on behalf of a bound principal.
type Commands interface {
	AuthorizeSubscribe(ctx context.Context, p auth.Principal, destination string) error
	SendChat(ctx context.Context, p auth.Principal, req delivery.SendRequest) (envelope.ChatMessage, error)
	PostLocation(ctx context.Context, p auth.Principal, req delivery.LocationRequest) (envelope.LocationPing, error)
}

// CommandService is the Commands implementation backed by the delivery pipelines.
type CommandService struct {
	rooms     delivery.RoomAuthorizer
	chat      *delivery.ChatPipeline
	locations *delivery.LocationPipeline
}

// NewCommandService creates a CommandService.
func NewCommandService(rooms delivery.RoomAuthorizer, chat *delivery.ChatPipeline, locations *delivery.LocationPipeline) *CommandService {
	return &CommandService{rooms: rooms, chat: chat, locations: locations}
}

// AuthorizeSubscribe allows room and location destinations to active participants and a
// user destination only to its own subject.
func (s *CommandService) AuthorizeSubscribe(ctx context.Context, p auth.Principal, destination string) error {
	target, err := envelope.ParseDestination(destination)
	if err != nil {
		return errs.Wrap(errs.ErrInvalidParams, err)
	}

	if target.Scope == envelope.ScopeUser {
		if target.Subject != p.Subject {
			return errs.NewError(errs.ErrForbidden)
		}
		return nil
	}

	ok, err := s.rooms.IsActiveParticipant(ctx, target.RoomID, p.UserID)
	if err != nil {
		return errs.Wrap(errs.ErrPersistenceFailed, fmt.Errorf("participation lookup: %w", err))
	}
	if !ok {
		return errs.NewError(errs.ErrNotRoomParticipant)
	}
	return nil
}

func (s *CommandService) SendChat(ctx context.Context, p auth.Principal, req delivery.SendRequest) (envelope.ChatMessage, error) {
	return s.chat.Send(ctx, p, req)
}

func (s *CommandService) PostLocation(ctx context.Context, p auth.Principal, req delivery.LocationRequest) (envelope.LocationPing, error) {
	return s.locations.Post(ctx, p, req)
}

// isAuthorizationFailure reports errors that are logged but never answered on the wire.
func isAuthorizationFailure(err error) bool {
	return errs.IsCode(err, errs.ErrNotRoomParticipant) || errs.IsCode(err, errs.ErrForbidden)
}

// processInbound decodes one frame and dispatches it.
func (c *Client) processInbound(raw []byte) {
	var in InboundFrame
	if err := json.Unmarshal(raw, &in); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to decode inbound frame")
		c.SendError(errs.NewError(errs.ErrInvalidJSONFormat), "")
		return
	}

	ctx, cancel := c.commandContext()
	defer cancel()

	var err error
	switch in.Type {
	case CommandSubscribe:
		err = c.handleSubscribe(ctx, in)
	case CommandUnsubscribe:
		c.hub.Unsubscribe(c, in.Destination)
	case CommandSendChat:
		err = c.handleSendChat(ctx, in)
	case CommandPostLocation:
		err = c.handlePostLocation(ctx, in)
	default:
		err = errs.Wrap(errs.ErrInvalidParams, fmt.Errorf("unknown frame type %q", in.Type))
	}

	if err == nil {
		return
	}

	if isAuthorizationFailure(err) {
		c.logger.Warn().Err(err).
			Str("frame_type", string(in.Type)).
			Str("destination", in.Destination).
			Msg("Command rejected: not authorized")
		return
	}

	c.logger.Info().Err(err).Str("frame_type", string(in.Type)).Msg("Command failed")
	c.SendError(err, in.TempID)
}

func (c *Client) handleSubscribe(ctx context.Context, in InboundFrame) error {
	if err := c.commands.AuthorizeSubscribe(ctx, c.binding.Principal, in.Destination); err != nil {
		return err
	}

	c.hub.Subscribe(c, in.Destination)
	c.sendFrame(envelope.Frame{Type: envelope.FrameSubscribed, Destination: in.Destination})
	return nil
}

func (c *Client) handleSendChat(ctx context.Context, in InboundFrame) error {
	var req delivery.SendRequest
	if err := json.Unmarshal(in.Payload, &req); err != nil {
		return errs.NewError(errs.ErrInvalidJSONFormat)
	}

	stored, err := c.commands.SendChat(ctx, c.binding.Principal, req)
	if err != nil {
		return err
	}

	c.sendFrame(envelope.Frame{
		Type:        envelope.FrameAck,
		Destination: envelope.RoomDestination(stored.RoomID),
		Payload:     AckPayload{TempID: in.TempID, ID: stored.ID},
	})
	return nil
}

func (c *Client) handlePostLocation(ctx context.Context, in InboundFrame) error {
	var req delivery.LocationRequest
	if err := json.Unmarshal(in.Payload, &req); err != nil {
		return errs.NewError(errs.ErrInvalidJSONFormat)
	}

	stored, err := c.commands.PostLocation(ctx, c.binding.Principal, req)
	if err != nil {
		return err
	}

	c.sendFrame(envelope.Frame{
		Type:        envelope.FrameAck,
		Destination: envelope.LocationDestination(stored.RoomID),
		Payload:     AckPayload{TempID: in.TempID, ID: stored.ID},
	})
	return nil
}
