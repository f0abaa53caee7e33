/*
Package fanout turns bus payloads into frames for the connections held by this instance.

Every instance receives every payload on a channel. The Router computes the payload's
destination key and hands the frame to the local registry of connections; a payload
nobody here listens to is dropped silently.
*/
package fanout

import (
	"github.com/rs/zerolog"

	"marketchat/internal/app/bus"
	"marketchat/internal/app/envelope"
	"marketchat/internal/pkg/logx"
	"marketchat/internal/pkg/metrics"
)

// Deliverer queues a frame to every local connection subscribed to destination and
// returns how many connections accepted it. It must not block.
type Deliverer interface {
	Deliver(destination string, frame []byte) int
}

// Router is a bus.Handler for both channels.
type Router struct {
	deliverer Deliverer
	logger    zerolog.Logger
}

var _ bus.Handler = (*Router)(nil)

// NewRouter creates a Router delivering to d.
func NewRouter(d Deliverer) *Router {
	return &Router{
		deliverer: d,
		logger:    logx.Component("FanoutRouter"),
	}
}

// Handle implements bus.Handler. Malformed payloads are logged and dropped.
func (r *Router) Handle(channel bus.Channel, payload []byte) {
	env, err := envelope.Decode(channel, payload)
	if err != nil {
		metrics.FanoutDroppedTotal.WithLabelValues(channel.String(), "malformed").Inc()
		r.logger.Warn().
			Err(err).
			Str("channel", channel.String()).
			Int("payload_bytes", len(payload)).
			Msg("Dropping malformed bus payload.")
		return
	}

	destination := envelope.Destination(env)

	frame, err := envelope.DeliveryFrame(env)
	if err != nil {
		metrics.FanoutDroppedTotal.WithLabelValues(channel.String(), "malformed").Inc()
		r.logger.Error().Err(err).Str("destination", destination).Msg("Failed to build delivery frame.")
		return
	}

	delivered := r.deliverer.Deliver(destination, frame)
	if delivered == 0 {
		metrics.FanoutDroppedTotal.WithLabelValues(channel.String(), "no_subscribers").Inc()
		return
	}

	metrics.FanoutDeliveredTotal.WithLabelValues(channel.String()).Add(float64(delivered))
	r.logger.Debug().
		Str("channel", channel.String()).
		Str("destination", destination).
		Int("delivered", delivered).
		Msg("Payload fanned out.")
}
