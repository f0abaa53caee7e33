package auth

import (
	"net/http"
	"strings"

	"marketchat/internal/pkg/errs"
	"marketchat/internal/pkg/logx"
	"marketchat/internal/pkg/metrics"
	"marketchat/internal/pkg/resp"
)

// PublicPaths is an allowlist of request paths that need no credential.
// An entry ending in "/**" matches its base path and everything below it; any other
// entry matches the exact path only.
type PublicPaths []string

// Match reports whether path is on the allowlist.
func (p PublicPaths) Match(path string) bool {
	for _, pattern := range p {
		base, wildcard := strings.CutSuffix(pattern, "/**")
		if path == base {
			return true
		}
		if wildcard && strings.HasPrefix(path, base+"/") {
			return true
		}
	}
	return false
}

// EdgeFilter authenticates every HTTP request before it reaches a handler.
type EdgeFilter struct {
	verifier *Verifier
	public   PublicPaths

	// handshakePaths are owned by the HandshakeAuthenticator for upgrade requests.
	handshakePaths map[string]struct{}
}

// NewEdgeFilter creates an EdgeFilter. Upgrade requests to one of handshakePaths are
// passed through so that the connection endpoint can refuse them itself.
func NewEdgeFilter(verifier *Verifier, public PublicPaths, handshakePaths ...string) *EdgeFilter {
	hp := make(map[string]struct{}, len(handshakePaths))
	for _, p := range handshakePaths {
		hp[p] = struct{}{}
	}
	return &EdgeFilter{verifier: verifier, public: public, handshakePaths: hp}
}

// Middleware returns the chi-compatible middleware. Rejections are written as a 401 JSON
// body and the downstream handler is never called.
func (f *EdgeFilter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || f.public.Match(r.URL.Path) || f.isHandshake(r) {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := BearerToken(r)
		if !ok {
			f.reject(w, r, errs.NewError(errs.ErrTokenMissing))
			return
		}

		principal, err := f.verifier.Verify(token)
		if err != nil {
			f.reject(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
	})
}

func (f *EdgeFilter) isHandshake(r *http.Request) bool {
	if _, ok := f.handshakePaths[r.URL.Path]; !ok {
		return false
	}
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

func (f *EdgeFilter) reject(w http.ResponseWriter, r *http.Request, err error) {
	reason := rejectionReason(err)
	metrics.AuthRejectedTotal.WithLabelValues("http", reason).Inc()
	logx.Debug("Request rejected by edge filter", "path", r.URL.Path, "reason", reason)

	customErr := errs.From(err)
	if customErr.Status != http.StatusUnauthorized {
		customErr = errs.Wrap(errs.ErrTokenInvalid, err)
	}
	resp.RespondError(w, r, customErr)
}

// RequireRole rejects authenticated principals that do not carry role.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFrom(r.Context())
			if !ok {
				resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
				return
			}
			if !principal.HasRole(role) {
				resp.RespondError(w, r, errs.NewError(errs.ErrForbidden))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
