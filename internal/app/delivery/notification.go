package delivery

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"marketchat/internal/app/bus"
	"marketchat/internal/app/envelope"
	"marketchat/internal/pkg/errs"
	"marketchat/internal/pkg/logx"
)

// NotifyResult reports what Notify did.
type NotifyResult struct {
	// LocalPushes is the number of connections on this instance that got the direct push.
	LocalPushes int

	// Published is false when the bus rejected the envelope.
	Published bool
}

// NotificationPipeline delivers transient per-user notifications.
type NotificationPipeline struct {
	local  LocalPusher
	bus    bus.Bus
	now    Clock
	logger zerolog.Logger
}

// NewNotificationPipeline creates a NotificationPipeline. clock may be nil.
func NewNotificationPipeline(local LocalPusher, b bus.Bus, clock Clock) *NotificationPipeline {
	if clock == nil {
		clock = serverNow
	}
	return &NotificationPipeline{
		local:  local,
		bus:    b,
		now:    clock,
		logger: logx.Component("NotificationPipeline"),
	}
}

// Notify pushes n directly to the recipient's connections on this instance, if any, and
// always publishes it on the NOTIFICATION channel as well. A recipient connected to this
// instance therefore receives the notification twice: once directly and once through the
// bus. Envelopes carry no id to deduplicate on.
func (p *NotificationPipeline) Notify(ctx context.Context, n envelope.Notification) (NotifyResult, error) {
	if strings.TrimSpace(n.RecipientID) == "" || strings.TrimSpace(n.Message) == "" {
		return NotifyResult{}, errs.NewError(errs.ErrInvalidParams)
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = p.now()
	}

	env := envelope.ForNotification(n)
	logger := p.logger.With().Str("recipient_id", n.RecipientID).Str("type", n.Type).Logger()

	var result NotifyResult

	if p.local != nil && p.local.IsBound(n.RecipientID) {
		frame, err := envelope.DeliveryFrame(env)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to build notification frame.")
		} else {
			result.LocalPushes = p.local.Deliver(envelope.Destination(env), frame)
		}
	}

	payload, err := envelope.Encode(env)
	if err == nil {
		err = p.bus.Publish(context.WithoutCancel(ctx), bus.ChannelNotification, payload)
	}
	if err != nil {
		logger.Error().Err(err).Msg("Failed to publish notification.")
		return result, nil
	}
	result.Published = true

	logger.Debug().Int("local_pushes", result.LocalPushes).Msg("Notification dispatched.")
	return result, nil
}
