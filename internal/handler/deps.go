package handler

import (
	"context"
	"time"

	"marketchat/internal/app/bus"
	"marketchat/internal/app/chat"
	"marketchat/internal/app/delivery"
	"marketchat/internal/app/envelope"
	"marketchat/internal/app/storage"
	"marketchat/internal/app/store"
	"marketchat/internal/app/user"
	"marketchat/internal/configs"
	"marketchat/internal/pkg/auth"
	"marketchat/internal/pkg/pow"
)

// TokenIssuer signs and inspects tokens.
type TokenIssuer interface {
	Issue(subject string, userID int64, roles []string, lifetime time.Duration) (string, error)
	IssueRefresh(subject string, userID int64, lifetime time.Duration) (string, error)
	ExpiryOf(token string) (time.Time, error)
}

// Revoker records revoked tokens until their own expiry.
type Revoker interface {
	Revoke(token string, expiresAt time.Time)
}

// Accounts is the account service used by the auth and user handlers.
type Accounts interface {
	Register(ctx context.Context, in user.SignupInput) (user.User, error)
	Authenticate(ctx context.Context, email, password string) (user.User, error)
	Profile(ctx context.Context, id int64) (user.User, error)
	Withdraw(ctx context.Context, id int64, password string) error
}

// RoomQueries are the read and membership operations behind the chat REST surface.
type RoomQueries interface {
	delivery.RoomAuthorizer
	CreateRoom(ctx context.Context, name string, creatorID int64, memberIDs []int64) (store.Room, error)
	ListRooms(ctx context.Context, userID int64) ([]store.RoomSummary, error)
	History(ctx context.Context, roomID int64, page, size int) (store.HistoryPage, error)
	MarkRead(ctx context.Context, roomID, readerID int64) (int64, error)
	RecentLocations(ctx context.Context, roomID int64) ([]envelope.LocationPing, error)
	LastLocation(ctx context.Context, roomID, userID int64) (envelope.LocationPing, error)
}

// Pinger is a dependency checked by the readiness endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// AppDeps holds every collaborator the HTTP surface needs.
type AppDeps struct {
	Config *configs.AppConfig

	Tokens      TokenIssuer
	Revocations Revoker
	Verifier    *auth.Verifier
	Handshake   *auth.HandshakeAuthenticator

	Accounts Accounts
	Rooms    RoomQueries

	Chat      *delivery.ChatPipeline
	Locations *delivery.LocationPipeline
	Notifier  *delivery.NotificationPipeline

	Hub      *chat.Hub
	Commands chat.Commands

	// StorageService is nil when attachments are disabled.
	StorageService storage.StorageService

	PoW *pow.PoWManager

	Bus      bus.Bus
	Database Pinger
}
