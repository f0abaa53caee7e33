package delivery

import (
	"context"
	"errors"
	"sync"
	"time"

	"marketchat/internal/app/bus"
	"marketchat/internal/app/envelope"
)

type fakeRooms struct {
	mu        sync.Mutex
	members   map[int64][]Member
	lookupErr error
	summaries map[int64]string
	calls     []string
}

func newFakeRooms() *fakeRooms {
	return &fakeRooms{members: map[int64][]Member{}, summaries: map[int64]string{}}
}

func (f *fakeRooms) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeRooms) IsActiveParticipant(_ context.Context, roomID, userID int64) (bool, error) {
	f.record("authorize")
	if f.lookupErr != nil {
		return false, f.lookupErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.members[roomID] {
		if m.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRooms) UpdateLastMessage(_ context.Context, roomID int64, content string, _ time.Time) error {
	f.record("summary")
	f.mu.Lock()
	f.summaries[roomID] = content
	f.mu.Unlock()
	return nil
}

func (f *fakeRooms) ActiveMembers(_ context.Context, roomID int64) ([]Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Member(nil), f.members[roomID]...), nil
}

type fakeMessages struct {
	mu      sync.Mutex
	saved   []envelope.ChatMessage
	saveErr error
	rooms   *fakeRooms
}

func (f *fakeMessages) SaveMessage(_ context.Context, msg envelope.ChatMessage) (envelope.ChatMessage, error) {
	if f.rooms != nil {
		f.rooms.record("persist")
	}
	if f.saveErr != nil {
		return envelope.ChatMessage{}, f.saveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	msg.ID = int64(len(f.saved) + 1)
	f.saved = append(f.saved, msg)
	return msg, nil
}

func (f *fakeMessages) History(roomID int64) []envelope.ChatMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []envelope.ChatMessage
	for _, m := range f.saved {
		if m.RoomID == roomID {
			out = append(out, m)
		}
	}
	return out
}

type fakeLocations struct {
	saved   []envelope.LocationPing
	saveErr error
}

func (f *fakeLocations) SaveLocation(_ context.Context, ping envelope.LocationPing) (envelope.LocationPing, error) {
	if f.saveErr != nil {
		return envelope.LocationPing{}, f.saveErr
	}
	ping.ID = int64(len(f.saved) + 1)
	f.saved = append(f.saved, ping)
	return ping, nil
}

type fakeProfiles map[int64]string

func (f fakeProfiles) Nickname(_ context.Context, userID int64) (string, error) {
	name, ok := f[userID]
	if !ok {
		return "", errors.New("profile not found")
	}
	return name, nil
}

type published struct {
	channel bus.Channel
	payload []byte
}

type fakeBus struct {
	mu         sync.Mutex
	published  []published
	publishErr error
	rooms      *fakeRooms
}

func (f *fakeBus) Publish(_ context.Context, channel bus.Channel, payload []byte) error {
	if f.rooms != nil {
		f.rooms.record("publish")
	}
	if f.publishErr != nil {
		return f.publishErr
	}
	f.mu.Lock()
	f.published = append(f.published, published{channel, append([]byte(nil), payload...)})
	f.mu.Unlock()
	return nil
}

func (f *fakeBus) Subscribe(bus.Channel, bus.Handler) error { return nil }
func (f *fakeBus) Ping(context.Context) error               { return nil }
func (f *fakeBus) Close() error                             { return nil }

func (f *fakeBus) on(channel bus.Channel) []envelope.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []envelope.Envelope
	for _, p := range f.published {
		if p.channel != channel {
			continue
		}
		env, err := envelope.Decode(channel, p.payload)
		if err == nil {
			out = append(out, env)
		}
	}
	return out
}

type fakePusher struct {
	bound     map[string]bool
	delivered map[string]int
}

func (f *fakePusher) IsBound(subject string) bool { return f.bound[subject] }

func (f *fakePusher) Deliver(destination string, _ []byte) int {
	if f.delivered == nil {
		f.delivered = map[string]int{}
	}
	f.delivered[destination]++
	return 1
}
