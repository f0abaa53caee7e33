package delivery

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"marketchat/internal/app/bus"
	"marketchat/internal/app/envelope"
	"marketchat/internal/pkg/auth"
	"marketchat/internal/pkg/errs"
	"marketchat/internal/pkg/logx"
	"marketchat/internal/pkg/metrics"
)

// maxAddressBytes bounds the optional free-text address.
const maxAddressBytes = 500

// LocationRequest is a position update submitted by a client.
type LocationRequest struct {
	RoomID    int64   `json:"roomId"`
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
	Address   string  `json:"address,omitempty"`
}

// LocationPipeline accepts location pings for a room. Pings travel on the CHAT channel.
type LocationPipeline struct {
	rooms     RoomAuthorizer
	locations LocationStore
	bus       bus.Bus
	now       Clock
	logger    zerolog.Logger
}

// NewLocationPipeline creates a LocationPipeline. clock may be nil.
func NewLocationPipeline(rooms RoomAuthorizer, locations LocationStore, b bus.Bus, clock Clock) *LocationPipeline {
	if clock == nil {
		clock = serverNow
	}
	return &LocationPipeline{
		rooms:     rooms,
		locations: locations,
		bus:       b,
		now:       clock,
		logger:    logx.Component("LocationPipeline"),
	}
}

// Post authorizes, persists and publishes a location ping.
func (p *LocationPipeline) Post(ctx context.Context, sender auth.Principal, req LocationRequest) (envelope.LocationPing, error) {
	if err := validateLocation(req); err != nil {
		return envelope.LocationPing{}, err
	}

	ok, err := p.rooms.IsActiveParticipant(ctx, req.RoomID, sender.UserID)
	if err != nil {
		return envelope.LocationPing{}, errs.Wrap(errs.ErrPersistenceFailed, fmt.Errorf("participation lookup: %w", err))
	}
	if !ok {
		return envelope.LocationPing{}, errs.NewError(errs.ErrNotRoomParticipant)
	}

	logger := p.logger.With().Int64("room_id", req.RoomID).Str("subject", sender.Subject).Logger()

	stored, err := p.locations.SaveLocation(ctx, envelope.LocationPing{
		RoomID:     req.RoomID,
		UserID:     sender.UserID,
		UserEmail:  sender.Subject,
		Latitude:   req.Latitude,
		Longitude:  req.Longitude,
		Address:    req.Address,
		RecordedAt: p.now(),
	})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to persist location. Nothing published.")
		return envelope.LocationPing{}, errs.Wrap(errs.ErrPersistenceFailed, err)
	}
	metrics.MessagesPersistedTotal.WithLabelValues("location").Inc()

	env := envelope.ForLocation(stored)
	payload, err := envelope.Encode(env)
	if err == nil {
		err = p.bus.Publish(context.WithoutCancel(ctx), env.Channel(), payload)
	}
	if err != nil {
		logger.Error().Err(err).Msg("Failed to publish location. Clients recover via the location endpoints.")
	}

	return stored, nil
}

func validateLocation(req LocationRequest) error {
	if req.RoomID <= 0 {
		return errs.NewError(errs.ErrInvalidParams)
	}
	if math.IsNaN(req.Latitude) || math.IsNaN(req.Longitude) ||
		req.Latitude < -90 || req.Latitude > 90 ||
		req.Longitude < -180 || req.Longitude > 180 {
		return errs.NewError(errs.ErrLocationInvalid)
	}
	if len(req.Address) > maxAddressBytes {
		return errs.NewError(errs.ErrInvalidParams)
	}
	return nil
}
