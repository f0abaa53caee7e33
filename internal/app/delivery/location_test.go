package delivery

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketchat/internal/app/bus"
	"marketchat/internal/pkg/auth"
	"marketchat/internal/pkg/errs"
)

func newLocationFixture() (*fakeRooms, *fakeLocations, *fakeBus, *LocationPipeline) {
	rooms := newFakeRooms()
	rooms.members[10] = []Member{{UserID: 1, Email: seller.Subject}}
	locations := &fakeLocations{}
	b := &fakeBus{}
	p := NewLocationPipeline(rooms, locations, b, func() time.Time { return fixedNow })
	return rooms, locations, b, p
}

func TestPostLocation(t *testing.T) {
	_, locations, b, p := newLocationFixture()

	ping, err := p.Post(context.Background(), seller, LocationRequest{RoomID: 10, Latitude: 37.56, Longitude: 126.97, Address: "Seoul Station"})
	require.NoError(t, err)

	assert.Equal(t, int64(1), ping.ID)
	assert.Equal(t, seller.Subject, ping.UserEmail)
	assert.True(t, fixedNow.Equal(ping.RecordedAt))
	require.Len(t, locations.saved, 1)

	envs := b.on(bus.ChannelChat)
	require.Len(t, envs, 1)
	require.NotNil(t, envs[0].Location)
	assert.Equal(t, 37.56, envs[0].Location.Latitude)
}

func TestPostLocationRejections(t *testing.T) {
	_, locations, b, p := newLocationFixture()
	ctx := context.Background()

	_, err := p.Post(ctx, auth.Principal{Subject: "x", UserID: 5}, LocationRequest{RoomID: 10, Latitude: 1, Longitude: 1})
	assert.True(t, errs.IsCode(err, errs.ErrNotRoomParticipant))

	for _, req := range []LocationRequest{
		{RoomID: 10, Latitude: 91, Longitude: 0},
		{RoomID: 10, Latitude: 0, Longitude: -181},
		{RoomID: 10, Latitude: math.NaN(), Longitude: 0},
	} {
		_, err := p.Post(ctx, seller, req)
		assert.True(t, errs.IsCode(err, errs.ErrLocationInvalid), "%+v", req)
	}

	assert.Empty(t, locations.saved)
	assert.Empty(t, b.published)
}

func TestPostLocationPersistFailure(t *testing.T) {
	_, locations, b, p := newLocationFixture()
	locations.saveErr = errors.New("db down")

	_, err := p.Post(context.Background(), seller, LocationRequest{RoomID: 10, Latitude: 1, Longitude: 1})
	assert.True(t, errs.IsCode(err, errs.ErrPersistenceFailed))
	assert.Empty(t, b.published)
}
