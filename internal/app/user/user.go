/*
Package user contains the account model and the credential rules of the marketplace.

It defines the basic representation of an account (the User struct), used for passing
account information both internally and to clients, and the Service that registers,
authenticates and withdraws accounts on top of a Repository.
*/
package user

import (
	"context"
	"time"

	"marketchat/internal/pkg/auth"
)

// Status is the lifecycle state of an account.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusWithdrawn Status = "WITHDRAWN"
)

// User represents an account of the marketplace.
type User struct {

	// ID is the numeric account identifier carried in tokens as the userId claim.
	ID int64 `json:"id"`

	// Email is unique and doubles as the principal subject.
	Email string `json:"email"`

	// Nickname is the display name shown next to chat messages.
	Nickname string `json:"nickname"`

	PasswordHash string `json:"-"`

	Roles []string `json:"roles"`

	Status Status `json:"status"`

	CreatedAt time.Time `json:"createdAt"`

	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
}

// Active reports whether the account may sign in.
func (u User) Active() bool {
	return u.Status == StatusActive
}

// HasRole reports whether the account holds role.
func (u User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// DefaultRoles are granted on signup.
func DefaultRoles() []string {
	return []string{auth.RoleUser}
}

// Repository persists accounts. Lookups of missing accounts return errs.ErrUserNotFound and
// Create returns errs.ErrUserAlreadyExists for a taken email.
type Repository interface {
	CreateUser(ctx context.Context, u User) (User, error)
	UserByEmail(ctx context.Context, email string) (User, error)
	UserByID(ctx context.Context, id int64) (User, error)
	TouchLogin(ctx context.Context, id int64, at time.Time) error

	// WithdrawUser anonymises the account, marks it withdrawn and deactivates its room memberships.
	WithdrawUser(ctx context.Context, id int64, nickname string, at time.Time) error
}
