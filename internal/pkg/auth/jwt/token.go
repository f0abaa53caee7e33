/*
Package jwt issues and validates the HMAC-signed tokens that identify principals.

Validation is deterministic given the secret and the clock: a token is accepted while
the current time is not after its expiry, with no grace window.
*/
package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"marketchat/internal/pkg/errs"
)

const (
	// DefaultAccessExpiration is the access token lifetime used when none is configured.
	DefaultAccessExpiration = 24 * time.Hour

	// DefaultRefreshExpiration is the refresh token lifetime used when none is configured.
	DefaultRefreshExpiration = 14 * 24 * time.Hour

	// DefaultIssuer identifies the issuer of the token.
	DefaultIssuer = "marketchat"
)

// Authority signs and validates tokens with a single shared secret.
type Authority struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// Option customizes an Authority.
type Option func(*Authority)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Authority) { a.now = now }
}

// WithIssuer sets the iss claim written into and required from tokens.
func WithIssuer(issuer string) Option {
	return func(a *Authority) { a.issuer = issuer }
}

// NewAuthority creates an Authority for the given secret.
func NewAuthority(secret string, opts ...Option) (*Authority, error) {
	if secret == "" {
		return nil, errors.New("jwt: secret must not be empty")
	}

	a := &Authority{
		secret: []byte(secret),
		issuer: DefaultIssuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Issue signs an access token for subject carrying roles, valid for lifetime.
func (a *Authority) Issue(subject string, userID int64, roles []string, lifetime time.Duration) (string, error) {
	return a.sign(subject, userID, roles, KindAccess, lifetime)
}

// IssueRefresh signs a refresh token for subject, valid for lifetime.
func (a *Authority) IssueRefresh(subject string, userID int64, lifetime time.Duration) (string, error) {
	return a.sign(subject, userID, nil, KindRefresh, lifetime)
}

func (a *Authority) sign(subject string, userID int64, roles []string, kind Kind, lifetime time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("jwt: subject must not be empty")
	}
	if lifetime <= 0 {
		return "", fmt.Errorf("jwt: lifetime must be positive, got %s", lifetime)
	}

	now := a.now()
	payload := &Payload{
		Roles:  roles,
		Kind:   kind,
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiryAfter(now, lifetime)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, payload)
	return token.SignedString(a.secret)
}

// expiryAfter returns now+lifetime rounded up to a whole second. NumericDate keeps
// seconds only, so a truncated expiry would end the token before its lifetime.
func expiryAfter(now time.Time, lifetime time.Duration) time.Time {
	exp := now.Add(lifetime)
	if whole := exp.Truncate(time.Second); !whole.Equal(exp) {
		return whole.Add(time.Second)
	}
	return exp
}

// Validate checks signature, format, issuer and expiry and returns the token content.
// Every failure is reported as errs.ErrTokenInvalid with the parse error as cause.
func (a *Authority) Validate(tokenString string) (Identity, error) {
	payload, err := a.parse(tokenString)
	if err != nil {
		return Identity{}, err
	}

	if !a.now().After(payload.ExpiresAt.Time) {
		return identityOf(payload), nil
	}
	return Identity{}, errs.Wrap(errs.ErrTokenInvalid, jwt.ErrTokenExpired)
}

// ExpiryOf returns the expiry of a correctly signed token without applying the
// expiry check. It is used to bound how long a revocation must be remembered.
func (a *Authority) ExpiryOf(tokenString string) (time.Time, error) {
	payload, err := a.parse(tokenString)
	if err != nil {
		return time.Time{}, err
	}
	return payload.ExpiresAt.Time, nil
}

func (a *Authority) parse(tokenString string) (*Payload, error) {
	if tokenString == "" {
		return nil, errs.NewError(errs.ErrTokenMissing)
	}

	payload := &Payload{}
	_, err := jwt.ParseWithClaims(tokenString, payload, func(token *jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, errs.Wrap(errs.ErrTokenInvalid, err)
	}

	switch {
	case payload.Subject == "":
		return nil, errs.Wrap(errs.ErrTokenInvalid, errors.New("token has no subject"))
	case payload.ExpiresAt == nil:
		return nil, errs.Wrap(errs.ErrTokenInvalid, errors.New("token has no expiry"))
	case payload.Issuer != a.issuer:
		return nil, errs.Wrap(errs.ErrTokenInvalid, fmt.Errorf("unexpected issuer %q", payload.Issuer))
	case payload.Kind != KindAccess && payload.Kind != KindRefresh:
		return nil, errs.Wrap(errs.ErrTokenInvalid, fmt.Errorf("unknown token kind %q", payload.Kind))
	}
	return payload, nil
}

func identityOf(p *Payload) Identity {
	id := Identity{
		Subject: p.Subject,
		UserID:  p.UserID,
		Roles:   append([]string(nil), p.Roles...),
		Kind:    p.Kind,
		Expiry:  p.ExpiresAt.Unix(),
	}
	if p.IssuedAt != nil {
		id.IssuedAt = p.IssuedAt.Unix()
	}
	return id
}
