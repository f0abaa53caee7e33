package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketchat/internal/app/bus"
	"marketchat/internal/app/chat"
	"marketchat/internal/app/delivery"
	"marketchat/internal/app/envelope"
	"marketchat/internal/app/fanout"
	"marketchat/internal/app/store"
	"marketchat/internal/app/user"
	"marketchat/internal/configs"
	"marketchat/internal/pkg/auth"
	"marketchat/internal/pkg/auth/jwt"
	"marketchat/internal/pkg/auth/revoke"
	"marketchat/internal/pkg/errs"
	"marketchat/internal/pkg/pow"
)

type userRepo struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]user.User
}

func newUserRepo() *userRepo {
	return &userRepo{byID: make(map[int64]user.User)}
}

func (r *userRepo) CreateUser(_ context.Context, u user.User) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if existing.Email == u.Email {
			return user.User{}, errs.NewError(errs.ErrUserAlreadyExists)
		}
	}
	r.nextID++
	u.ID = r.nextID
	r.byID[u.ID] = u
	return u, nil
}

func (r *userRepo) UserByEmail(_ context.Context, email string) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return user.User{}, errs.NewError(errs.ErrUserNotFound)
}

func (r *userRepo) UserByID(_ context.Context, id int64) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return user.User{}, errs.NewError(errs.ErrUserNotFound)
	}
	return u, nil
}

func (r *userRepo) TouchLogin(context.Context, int64, time.Time) error { return nil }

func (r *userRepo) WithdrawUser(_ context.Context, id int64, nickname string, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := r.byID[id]
	u.Status = user.StatusWithdrawn
	u.Nickname = nickname
	r.byID[id] = u
	return nil
}

// roomFake backs both the REST queries and the delivery pipelines.
type roomFake struct {
	mu       sync.Mutex
	members  map[int64]map[int64]delivery.Member
	messages []envelope.ChatMessage
	pings    []envelope.LocationPing
	reads    int
}

func newRoomFake() *roomFake {
	return &roomFake{members: make(map[int64]map[int64]delivery.Member)}
}

func (f *roomFake) join(roomID int64, m delivery.Member) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.members[roomID] == nil {
		f.members[roomID] = make(map[int64]delivery.Member)
	}
	f.members[roomID][m.UserID] = m
}

func (f *roomFake) IsActiveParticipant(_ context.Context, roomID, userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.members[roomID][userID]
	return ok, nil
}

func (f *roomFake) CreateRoom(_ context.Context, name string, creatorID int64, memberIDs []int64) (store.Room, error) {
	return store.Room{ID: 99, Name: name, CreatedBy: creatorID, CreatedAt: time.Now()}, nil
}

func (f *roomFake) ListRooms(context.Context, int64) ([]store.RoomSummary, error) {
	return []store.RoomSummary{}, nil
}

func (f *roomFake) History(_ context.Context, roomID int64, page, size int) (store.HistoryPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return store.HistoryPage{Messages: f.messages, Page: page, Size: size, Total: len(f.messages)}, nil
}

func (f *roomFake) MarkRead(context.Context, int64, int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	return 0, nil
}

func (f *roomFake) RecentLocations(context.Context, int64) ([]envelope.LocationPing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]envelope.LocationPing(nil), f.pings...), nil
}

func (f *roomFake) LastLocation(_ context.Context, roomID, userID int64) (envelope.LocationPing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.pings) - 1; i >= 0; i-- {
		if f.pings[i].RoomID == roomID && f.pings[i].UserID == userID {
			return f.pings[i], nil
		}
	}
	return envelope.LocationPing{}, errs.NewError(errs.ErrLocationNotFound)
}

func (f *roomFake) UpdateLastMessage(context.Context, int64, string, time.Time) error { return nil }

func (f *roomFake) ActiveMembers(_ context.Context, roomID int64) ([]delivery.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]delivery.Member, 0, len(f.members[roomID]))
	for _, m := range f.members[roomID] {
		out = append(out, m)
	}
	return out, nil
}

func (f *roomFake) SaveMessage(_ context.Context, msg envelope.ChatMessage) (envelope.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg.ID = int64(len(f.messages) + 1)
	f.messages = append(f.messages, msg)
	return msg, nil
}

func (f *roomFake) SaveLocation(_ context.Context, ping envelope.LocationPing) (envelope.LocationPing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ping.ID = int64(len(f.pings) + 1)
	f.pings = append(f.pings, ping)
	return ping, nil
}

func (f *roomFake) Nickname(context.Context, int64) (string, error) { return "nick", nil }

type server struct {
	deps      *AppDeps
	handler   http.Handler
	authority *jwt.Authority
	registry  *revoke.Registry
	users     *userRepo
	rooms     *roomFake
}

func newServer(t *testing.T, powDifficulty int) *server {
	t.Helper()

	cfg := &configs.AppConfig{
		Environment:     "development",
		InstanceID:      "test-1",
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 24 * time.Hour,
		HistoryPageSize: 20,
	}

	authority, err := jwt.NewAuthority("handler-secret")
	require.NoError(t, err)
	registry := revoke.NewRegistry()
	verifier := auth.NewVerifier(authority, registry)

	b := bus.NewMemoryBroker().Client()
	hub := chat.NewHub()
	router := fanout.NewRouter(hub)
	require.NoError(t, b.Subscribe(bus.ChannelChat, router))
	require.NoError(t, b.Subscribe(bus.ChannelNotification, router))

	rooms := newRoomFake()
	users := newUserRepo()
	notifier := delivery.NewNotificationPipeline(hub, b, nil)
	chatPipeline := delivery.NewChatPipeline(delivery.ChatDeps{
		Rooms: rooms, Messages: rooms, Profiles: rooms, Bus: b, Notifier: notifier,
	})
	locations := delivery.NewLocationPipeline(rooms, rooms, b, nil)

	deps := &AppDeps{
		Config:      cfg,
		Tokens:      authority,
		Revocations: registry,
		Verifier:    verifier,
		Handshake:   auth.NewHandshakeAuthenticator(verifier),
		Accounts:    user.NewService(users),
		Rooms:       rooms,
		Chat:        chatPipeline,
		Locations:   locations,
		Notifier:    notifier,
		Hub:         hub,
		Commands:    chat.NewCommandService(rooms, chatPipeline, locations),
		PoW:         pow.NewPoWManager(powDifficulty),
		Bus:         b,
	}

	t.Cleanup(func() {
		_ = b.Close()
		hub.Shutdown()
		registry.Close()
	})

	return &server{
		deps:      deps,
		handler:   Router(deps, NewLimiters()),
		authority: authority,
		registry:  registry,
		users:     users,
		rooms:     rooms,
	}
}

type envelopeBody struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (s *server) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, envelopeBody) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	r := httptest.NewRequest(method, path, &buf)
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	r.RemoteAddr = "192.0.2.10:5000"

	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, r)

	var out envelopeBody
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

// signup registers an account and returns its token pair.
func (s *server) signup(t *testing.T, email string) TokenPair {
	t.Helper()
	w, body := s.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email": email, "password": "secret123", "nickname": "tester",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var pair TokenPair
	require.NoError(t, json.Unmarshal(body.Data, &pair))
	return pair
}
