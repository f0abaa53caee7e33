/*
Package bus is the publish/subscribe layer shared by every server instance.

There are exactly two logical channels. Every payload published on a channel reaches every
instance subscribed to it; deciding which local connections care about a payload is left
to the subscriber. Delivery is at-most-once with no acknowledgement and no replay.
*/
package bus

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"marketchat/internal/pkg/metrics"
)

// Channel is one of the logical bus channels.
type Channel string

const (
	// ChannelChat carries chat messages and location pings.
	ChannelChat Channel = "CHAT"

	// ChannelNotification carries per-user notifications.
	ChannelNotification Channel = "NOTIFICATION"
)

// Channels lists every logical channel.
var Channels = []Channel{ChannelChat, ChannelNotification}

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	return c == ChannelChat || c == ChannelNotification
}

func (c Channel) String() string {
	return string(c)
}

// Handler receives payloads from a subscription. Implementations run on the
// subscription's delivery goroutine and must not block.
type Handler interface {
	Handle(channel Channel, payload []byte)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(channel Channel, payload []byte)

// Handle calls f.
func (f HandlerFunc) Handle(channel Channel, payload []byte) {
	f(channel, payload)
}

// Bus publishes payloads to, and subscribes handlers on, the logical channels.
type Bus interface {
	// Publish hands payload to the broker. It does not wait for subscribers and does not retry.
	Publish(ctx context.Context, channel Channel, payload []byte) error

	// Subscribe registers h for every payload published on channel from now on.
	Subscribe(channel Channel, h Handler) error

	// Ping checks broker connectivity.
	Ping(ctx context.Context) error

	// Close ends all subscriptions and releases the broker connection.
	Close() error
}

// ChannelNames maps logical channels to broker channel names.
type ChannelNames map[Channel]string

// DefaultChannelNames are the broker channel names used when none are configured.
func DefaultChannelNames() ChannelNames {
	return ChannelNames{
		ChannelChat:         "chat",
		ChannelNotification: "notification",
	}
}

func (n ChannelNames) resolve(c Channel) (string, error) {
	if !c.Valid() {
		return "", fmt.Errorf("bus: unknown channel %q", c)
	}
	name, ok := n[c]
	if !ok || name == "" {
		return "", fmt.Errorf("bus: no broker name configured for channel %s", c)
	}
	return name, nil
}

// dispatch calls h and keeps the subscription alive if h panics.
func dispatch(logger zerolog.Logger, channel Channel, h Handler, payload []byte) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error().
				Str("channel", channel.String()).
				Interface("panic", p).
				Msg("Subscriber handler panicked. Payload dropped.")
		}
	}()

	metrics.BusReceivedTotal.WithLabelValues(channel.String()).Inc()
	h.Handle(channel, payload)
}

func recordPublish(channel Channel, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.BusPublishTotal.WithLabelValues(channel.String(), status).Inc()
}
