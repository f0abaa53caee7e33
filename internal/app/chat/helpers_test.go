package chat

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketchat/internal/app/delivery"
	"marketchat/internal/app/envelope"
	"marketchat/internal/pkg/auth"
	"marketchat/internal/pkg/errs"
)

type wireFrame struct {
	Type        envelope.FrameType `json:"type"`
	Destination string             `json:"destination"`
	Payload     json.RawMessage    `json:"payload"`
}

// inbox accumulates the frames queued to a client without a network connection.
type inbox struct {
	c      *Client
	frames []wireFrame
}

func newInbox(c *Client) *inbox {
	return &inbox{c: c}
}

func (in *inbox) pull(t *testing.T) []wireFrame {
	t.Helper()
	for {
		select {
		case b, ok := <-in.c.send:
			if !ok {
				return in.frames
			}
			var f wireFrame
			require.NoError(t, json.Unmarshal(b, &f))
			in.frames = append(in.frames, f)
		default:
			return in.frames
		}
	}
}

func (in *inbox) ofType(t *testing.T, typ envelope.FrameType) []wireFrame {
	t.Helper()
	var out []wireFrame
	for _, f := range in.pull(t) {
		if f.Type == typ {
			out = append(out, f)
		}
	}
	return out
}

func (in *inbox) waitFor(t *testing.T, typ envelope.FrameType, n int) []wireFrame {
	t.Helper()
	require.Eventually(t, func() bool { return len(in.ofType(t, typ)) >= n }, 2*time.Second, 5*time.Millisecond)
	return in.ofType(t, typ)
}

func principal(id int64, email string) auth.Principal {
	return auth.Principal{Subject: email, UserID: id, Roles: []string{auth.RoleUser}}
}

func newTestClient(h *Hub, p auth.Principal, cmds Commands) *Client {
	c := NewClient(h, nil, NewBinding(p), cmds)
	h.Register(c)
	return c
}

// memStore is a shared in-memory database for every simulated instance.
type memStore struct {
	mu        sync.Mutex
	members   map[int64][]delivery.Member
	messages  []envelope.ChatMessage
	locations []envelope.LocationPing
	summaries map[int64]string
	failSave  bool
}

func newMemStore() *memStore {
	return &memStore{members: map[int64][]delivery.Member{}, summaries: map[int64]string{}}
}

func (s *memStore) join(roomID int64, p auth.Principal, nickname string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[roomID] = append(s.members[roomID], delivery.Member{UserID: p.UserID, Email: p.Subject, Nickname: nickname})
}

func (s *memStore) IsActiveParticipant(_ context.Context, roomID, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.members[roomID] {
		if m.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) UpdateLastMessage(_ context.Context, roomID int64, content string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries[roomID] = content
	return nil
}

func (s *memStore) ActiveMembers(_ context.Context, roomID int64) ([]delivery.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]delivery.Member(nil), s.members[roomID]...), nil
}

func (s *memStore) SaveMessage(_ context.Context, msg envelope.ChatMessage) (envelope.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSave {
		return envelope.ChatMessage{}, errors.New("disk full")
	}
	msg.ID = int64(len(s.messages) + 1)
	s.messages = append(s.messages, msg)
	return msg, nil
}

func (s *memStore) SaveLocation(_ context.Context, ping envelope.LocationPing) (envelope.LocationPing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ping.ID = int64(len(s.locations) + 1)
	s.locations = append(s.locations, ping)
	return ping, nil
}

func (s *memStore) Nickname(_ context.Context, userID int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, members := range s.members {
		for _, m := range members {
			if m.UserID == userID {
				return m.Nickname, nil
			}
		}
	}
	return "", errs.NewError(errs.ErrUserNotFound)
}
