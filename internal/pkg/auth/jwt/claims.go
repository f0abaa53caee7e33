package jwt

import "github.com/golang-jwt/jwt/v5"

// Kind distinguishes short-lived access tokens from refresh tokens.
type Kind string

const (
	// KindAccess tokens authorize API calls and connection handshakes.
	KindAccess Kind = "access"

	// KindRefresh tokens are only accepted by the refresh endpoint.
	KindRefresh Kind = "refresh"
)

// Payload defines the claims carried by every token issued by the server.
// The registered subject claim holds the principal identifier (the account email).
type Payload struct {
	// Roles lists the authorities granted to the subject, e.g. ROLE_USER.
	Roles []string `json:"roles,omitempty"`

	// Kind is the token kind, see KindAccess and KindRefresh.
	Kind Kind `json:"kind"`

	// UserID is the numeric account identifier, kept next to the subject for
	// stores keyed by id.
	UserID int64 `json:"userId,omitempty"`

	jwt.RegisteredClaims
}

// Identity is the validated content of a token.
type Identity struct {
	Subject  string
	UserID   int64
	Roles    []string
	Kind     Kind
	IssuedAt int64
	Expiry   int64
}

// HasRole reports whether the identity carries role.
func (i Identity) HasRole(role string) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}
