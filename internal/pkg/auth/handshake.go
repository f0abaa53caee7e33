package auth

import (
	"net/http"

	"marketchat/internal/pkg/errs"
	"marketchat/internal/pkg/metrics"
)

// HandshakeAuthenticator authenticates a persistent connection once, before it is upgraded.
// The token is read from the connection-level Authorization header only; query parameters
// and later frames are never consulted.
type HandshakeAuthenticator struct {
	verifier *Verifier
}

// NewHandshakeAuthenticator creates a HandshakeAuthenticator.
func NewHandshakeAuthenticator(verifier *Verifier) *HandshakeAuthenticator {
	return &HandshakeAuthenticator{verifier: verifier}
}

// Authenticate returns the principal to bind to the connection, or an authentication error
// on which the caller must refuse the handshake.
func (h *HandshakeAuthenticator) Authenticate(r *http.Request) (Principal, error) {
	token, ok := BearerToken(r)
	if !ok {
		metrics.AuthRejectedTotal.WithLabelValues("handshake", "missing").Inc()
		return Principal{}, errs.NewError(errs.ErrTokenMissing)
	}

	principal, err := h.verifier.Verify(token)
	if err != nil {
		metrics.AuthRejectedTotal.WithLabelValues("handshake", rejectionReason(err)).Inc()
		return Principal{}, err
	}
	return principal, nil
}
