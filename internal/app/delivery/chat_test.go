package delivery

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketchat/internal/app/bus"
	"marketchat/internal/app/envelope"
	"marketchat/internal/pkg/auth"
	"marketchat/internal/pkg/errs"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

var (
	seller = auth.Principal{Subject: "seller@example.com", UserID: 1}
	buyer  = auth.Principal{Subject: "buyer@example.com", UserID: 2}
)

type chatFixture struct {
	rooms    *fakeRooms
	messages *fakeMessages
	bus      *fakeBus
	pusher   *fakePusher
	pipeline *ChatPipeline
}

func newChatFixture() *chatFixture {
	rooms := newFakeRooms()
	rooms.members[10] = []Member{
		{UserID: 1, Email: seller.Subject, Nickname: "Seller"},
		{UserID: 2, Email: buyer.Subject, Nickname: "Buyer"},
	}
	f := &chatFixture{
		rooms:    rooms,
		messages: &fakeMessages{rooms: rooms},
		bus:      &fakeBus{rooms: rooms},
		pusher:   &fakePusher{bound: map[string]bool{}},
	}
	clock := func() time.Time { return fixedNow }
	f.pipeline = NewChatPipeline(ChatDeps{
		Rooms:    rooms,
		Messages: f.messages,
		Profiles: fakeProfiles{1: "Seller"},
		Bus:      f.bus,
		Notifier: NewNotificationPipeline(f.pusher, f.bus, clock),
		Clock:    clock,
	})
	return f
}

func TestSendPersistsThenPublishes(t *testing.T) {
	f := newChatFixture()

	stored, err := f.pipeline.Send(context.Background(), seller, SendRequest{RoomID: 10, Content: "hello"})
	require.NoError(t, err)

	assert.Equal(t, int64(1), stored.ID)
	assert.Equal(t, int64(10), stored.RoomID)
	assert.Equal(t, seller.UserID, stored.SenderID)
	assert.Equal(t, "hello", stored.Content)
	assert.Equal(t, envelope.MessageTypeText, stored.MessageType)
	assert.Equal(t, "Seller", stored.SenderName)
	assert.True(t, fixedNow.Equal(stored.SentAt))
	assert.False(t, stored.IsRead)

	assert.Equal(t, []string{"authorize", "persist", "publish", "summary", "publish"}, f.rooms.calls)

	chats := f.bus.on(bus.ChannelChat)
	require.Len(t, chats, 1)
	assert.Equal(t, "Seller", chats[0].Chat.SenderName)
	assert.Equal(t, "room:10", envelope.Destination(chats[0]))

	assert.Equal(t, "hello", f.rooms.summaries[10])
}

func TestSendNotifiesOtherParticipants(t *testing.T) {
	f := newChatFixture()

	_, err := f.pipeline.Send(context.Background(), seller, SendRequest{RoomID: 10, Content: "is this still available?"})
	require.NoError(t, err)

	notes := f.bus.on(bus.ChannelNotification)
	require.Len(t, notes, 1)
	n := notes[0].Notification
	assert.Equal(t, buyer.Subject, n.RecipientID)
	assert.Equal(t, NotificationTypeChatMessage, n.Type)
	assert.Equal(t, int64(10), n.ContextRoomID)
	assert.Equal(t, int64(1), n.ContextEntityID)
	assert.Equal(t, "Seller: is this still available?", n.Message)
}

func TestSendRejectsNonParticipant(t *testing.T) {
	f := newChatFixture()
	outsider := auth.Principal{Subject: "x@example.com", UserID: 99}

	_, err := f.pipeline.Send(context.Background(), outsider, SendRequest{RoomID: 10, Content: "hi"})
	assert.True(t, errs.IsCode(err, errs.ErrNotRoomParticipant))
	assert.Empty(t, f.messages.saved)
	assert.Empty(t, f.bus.published)
}

func TestSendPersistenceFailureNeverPublishes(t *testing.T) {
	f := newChatFixture()
	f.messages.saveErr = errors.New("disk full")

	_, err := f.pipeline.Send(context.Background(), seller, SendRequest{RoomID: 10, Content: "hello"})
	assert.True(t, errs.IsCode(err, errs.ErrPersistenceFailed))
	assert.Empty(t, f.bus.published)
	assert.Equal(t, []string{"authorize", "persist"}, f.rooms.calls)
}

func TestSendPublishFailureKeepsDurableRecord(t *testing.T) {
	f := newChatFixture()
	f.bus.publishErr = errors.New("broker down")

	stored, err := f.pipeline.Send(context.Background(), seller, SendRequest{RoomID: 10, Content: "hello"})
	require.NoError(t, err)

	history := f.messages.History(10)
	require.Len(t, history, 1)
	assert.Equal(t, stored.RoomID, history[0].RoomID)
	assert.Equal(t, stored.SenderID, history[0].SenderID)
	assert.Equal(t, stored.Content, history[0].Content)
	assert.True(t, stored.SentAt.Equal(history[0].SentAt))
	assert.Equal(t, "hello", f.rooms.summaries[10])
}

func TestSendAuthorizationLookupFailure(t *testing.T) {
	f := newChatFixture()
	f.rooms.lookupErr = errors.New("db down")

	_, err := f.pipeline.Send(context.Background(), seller, SendRequest{RoomID: 10, Content: "hello"})
	assert.True(t, errs.IsCode(err, errs.ErrPersistenceFailed))
	assert.Empty(t, f.messages.saved)
}

func TestSendValidation(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()

	cases := map[string]struct {
		req  SendRequest
		code int
	}{
		"empty":         {SendRequest{RoomID: 10, Content: "   "}, errs.ErrMessageContentEmpty},
		"too long":      {SendRequest{RoomID: 10, Content: strings.Repeat("a", MaxContentBytes+1)}, errs.ErrMessageContentTooLong},
		"bad type":      {SendRequest{RoomID: 10, Content: "x", MessageType: "VIDEO"}, errs.ErrMessageTypeInvalid},
		"no room":       {SendRequest{Content: "x"}, errs.ErrInvalidParams},
		"foreign image": {SendRequest{RoomID: 10, Content: "rooms/11/a.png", MessageType: envelope.MessageTypeImage}, errs.ErrAttachmentKeyInvalid},
	}

	for name, tc := range cases {
		_, err := f.pipeline.Send(ctx, seller, tc.req)
		assert.True(t, errs.IsCode(err, tc.code), name)
	}
	assert.Empty(t, f.rooms.calls)

	_, err := f.pipeline.Send(ctx, seller, SendRequest{RoomID: 10, Content: "rooms/10/a.png", MessageType: envelope.MessageTypeImage})
	assert.NoError(t, err)
	assert.Equal(t, "(image)", f.rooms.summaries[10])
}

func TestPreview(t *testing.T) {
	short := envelope.ChatMessage{Content: "hi", MessageType: envelope.MessageTypeText}
	assert.Equal(t, "Kim: hi", Preview("Kim", short))

	exact := envelope.ChatMessage{Content: strings.Repeat("가", 30), MessageType: envelope.MessageTypeText}
	assert.Equal(t, "Kim: "+strings.Repeat("가", 30), Preview("Kim", exact))

	long := envelope.ChatMessage{Content: strings.Repeat("가", 31), MessageType: envelope.MessageTypeText}
	assert.Equal(t, "Kim: "+strings.Repeat("가", 27)+"...", Preview("Kim", long))

	image := envelope.ChatMessage{Content: "rooms/1/x.png", MessageType: envelope.MessageTypeImage}
	assert.Equal(t, "Kim: (image)", Preview("Kim", image))
}
