/*
Package auth turns bearer tokens into principals.

The same Verifier backs the per-request EdgeFilter and the connection HandshakeAuthenticator,
so both surfaces apply exactly the same validate-then-revocation check.
*/
package auth

import (
	"context"
	"time"
)

const (
	// RoleUser is granted to every account.
	RoleUser = "ROLE_USER"

	// RoleAdmin is required for operational endpoints.
	RoleAdmin = "ROLE_ADMIN"
)

// Principal is the authenticated identity bound to a request or a connection.
type Principal struct {
	// Subject is the principal identifier (the account email).
	Subject string

	// UserID is the numeric account identifier.
	UserID int64

	Roles []string

	// Token is the raw credential the principal was resolved from.
	Token string

	// ExpiresAt is the token's own expiry.
	ExpiresAt time.Time
}

// HasRole reports whether the principal carries role.
func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type contextKey string

const principalKey contextKey = "auth_principal"

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom extracts the principal attached by EdgeFilter.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}
