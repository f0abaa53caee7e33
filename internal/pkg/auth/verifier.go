package auth

import (
	"net/http"
	"strings"
	"time"

	"marketchat/internal/pkg/auth/jwt"
	"marketchat/internal/pkg/errs"
)

// TokenValidator checks signature, format and expiry of a token.
type TokenValidator interface {
	Validate(token string) (jwt.Identity, error)
}

// RevocationChecker reports explicitly invalidated tokens.
type RevocationChecker interface {
	IsRevoked(token string) bool
}

// Verifier resolves a bearer token into a Principal.
type Verifier struct {
	tokens      TokenValidator
	revocations RevocationChecker
}

// NewVerifier creates a Verifier.
func NewVerifier(tokens TokenValidator, revocations RevocationChecker) *Verifier {
	return &Verifier{tokens: tokens, revocations: revocations}
}

// Verify accepts only valid, unrevoked access tokens.
func (v *Verifier) Verify(token string) (Principal, error) {
	return v.verify(token, jwt.KindAccess)
}

// VerifyRefresh accepts only valid, unrevoked refresh tokens.
func (v *Verifier) VerifyRefresh(token string) (Principal, error) {
	return v.verify(token, jwt.KindRefresh)
}

func (v *Verifier) verify(token string, kind jwt.Kind) (Principal, error) {
	if token == "" {
		return Principal{}, errs.NewError(errs.ErrTokenMissing)
	}

	id, err := v.tokens.Validate(token)
	if err != nil {
		return Principal{}, err
	}

	if v.revocations.IsRevoked(token) {
		return Principal{}, errs.NewError(errs.ErrTokenRevoked)
	}

	if id.Kind != kind {
		return Principal{}, errs.NewError(errs.ErrTokenInvalid)
	}

	return Principal{
		Subject:   id.Subject,
		UserID:    id.UserID,
		Roles:     id.Roles,
		Token:     token,
		ExpiresAt: time.Unix(id.Expiry, 0),
	}, nil
}

// BearerToken extracts the credential from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}

	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}

	token = strings.TrimSpace(token)
	return token, token != ""
}

// rejectionReason is the metric label for a failed verification.
func rejectionReason(err error) string {
	switch {
	case errs.IsCode(err, errs.ErrTokenMissing):
		return "missing"
	case errs.IsCode(err, errs.ErrTokenRevoked):
		return "revoked"
	default:
		return "invalid"
	}
}
