package fanout

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketchat/internal/app/bus"
	"marketchat/internal/app/envelope"
)

type delivery struct {
	destination string
	frame       envelope.Frame
	raw         json.RawMessage
}

type fakeDeliverer struct {
	mu        sync.Mutex
	listeners map[string]int
	got       []delivery
}

func (f *fakeDeliverer) Deliver(destination string, frame []byte) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := f.listeners[destination]
	if n == 0 {
		return 0
	}
	var decoded struct {
		envelope.Frame
		Payload json.RawMessage `json:"payload"`
	}
	_ = json.Unmarshal(frame, &decoded)
	f.got = append(f.got, delivery{destination: destination, frame: decoded.Frame, raw: decoded.Payload})
	return n
}

func encode(t *testing.T, e envelope.Envelope) []byte {
	t.Helper()
	payload, err := envelope.Encode(e)
	require.NoError(t, err)
	return payload
}

func TestRouterDeliversToDestination(t *testing.T) {
	d := &fakeDeliverer{listeners: map[string]int{"room:3": 2, "user:b@example.com": 1, "location:3": 1}}
	r := NewRouter(d)

	r.Handle(bus.ChannelChat, encode(t, envelope.ForChat(envelope.ChatMessage{ID: 1, RoomID: 3, Content: "hello"})))
	r.Handle(bus.ChannelNotification, encode(t, envelope.ForNotification(envelope.Notification{RecipientID: "b@example.com", Message: "ping"})))
	r.Handle(bus.ChannelChat, encode(t, envelope.ForLocation(envelope.LocationPing{RoomID: 3, Latitude: 1, Longitude: 2})))

	require.Len(t, d.got, 3)
	assert.Equal(t, "room:3", d.got[0].destination)
	assert.Equal(t, envelope.FrameChatMessage, d.got[0].frame.Type)
	assert.Equal(t, "room:3", d.got[0].frame.Destination)

	var msg envelope.ChatMessage
	require.NoError(t, json.Unmarshal(d.got[0].raw, &msg))
	assert.Equal(t, "hello", msg.Content)

	assert.Equal(t, "user:b@example.com", d.got[1].destination)
	assert.Equal(t, envelope.FrameNotification, d.got[1].frame.Type)
	assert.Equal(t, "location:3", d.got[2].destination)
	assert.Equal(t, envelope.FrameLocation, d.got[2].frame.Type)
}

func TestRouterDropsWithoutListeners(t *testing.T) {
	d := &fakeDeliverer{listeners: map[string]int{}}
	r := NewRouter(d)

	assert.NotPanics(t, func() {
		r.Handle(bus.ChannelChat, encode(t, envelope.ForChat(envelope.ChatMessage{RoomID: 99})))
	})
	assert.Empty(t, d.got)
}

func TestRouterSurvivesMalformedPayloads(t *testing.T) {
	d := &fakeDeliverer{listeners: map[string]int{"room:1": 1}}
	r := NewRouter(d)

	r.Handle(bus.ChannelChat, []byte("garbage"))
	r.Handle(bus.ChannelChat, []byte(`{"kind":"CHAT_MESSAGE"}`))
	r.Handle(bus.ChannelNotification, encode(t, envelope.ForChat(envelope.ChatMessage{RoomID: 1})))
	r.Handle(bus.ChannelChat, encode(t, envelope.ForChat(envelope.ChatMessage{RoomID: 1, Content: "still here"})))

	require.Len(t, d.got, 1)
	assert.Equal(t, "room:1", d.got[0].destination)
}
