/*
Package pow implements the Proof-of-Work (PoW) gate in front of account signup.

It manages the generation and validation of nonces and the issuance of short-lived,
single-use Proof Tokens upon successful validation.
*/
package pow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"marketchat/internal/pkg/logx"
)

const (
	// TokenHeaderKey is the HTTP header key used by the client to send the Proof Token.
	TokenHeaderKey = "X-PoW-Token"

	// TokenQueryKey is the query parameter accepted in place of TokenHeaderKey.
	TokenQueryKey = "pow_token"

	// ProofTokenDuration is the validity period for the Proof Token issued after successful PoW validation.
	ProofTokenDuration = 30 * time.Second

	// NonceExpiryDuration is the validity period for the challenge Nonce.
	NonceExpiryDuration = 5 * time.Minute

	cleanupInterval = time.Minute
)

var (
	ErrNonceInvalid  = errors.New("nonce expired or invalid")
	ErrProofTooWeak  = errors.New("proof does not meet difficulty requirement")
	ErrNonceConsumed  = errors.New("nonce consumed by concurrent request")
)

// PoWManager is responsible for managing the lifecycle of PoW challenges and Proof Tokens.
// It is concurrent-safe, using internal maps to store active nonces and tokens.
type PoWManager struct {
	// difficulty is the required number of leading hex zeros; 0 disables the gate.
	difficulty int

	// nonceStore stores active nonces and their expiration times.
	nonceStore map[string]time.Time

	// tokenStore stores issued Proof Tokens and their expiration times.
	tokenStore map[string]time.Time

	// mu protects concurrent access to nonceStore and tokenStore.
	mu sync.Mutex

	now func() time.Time
}

// NewPoWManager creates a PoWManager with the given challenge difficulty.
func NewPoWManager(difficulty int) *PoWManager {
	return &PoWManager{
		difficulty: difficulty,
		nonceStore: make(map[string]time.Time),
		tokenStore: make(map[string]time.Time),
		now:        time.Now,
	}
}

// Enabled reports whether signup requires a Proof Token.
func (m *PoWManager) Enabled() bool {
	return m.difficulty > 0
}

// Difficulty returns the number of leading zeros a proof hash needs.
func (m *PoWManager) Difficulty() int {
	return m.difficulty
}

// Start runs the expiry cleanup loop until ctx is done.
func (m *PoWManager) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.cleanupExpiredEntries()
			}
		}
	}()
}

// GenerateNonce generates a unique Nonce string for the PoW challenge and stores it for validation.
func (m *PoWManager) GenerateNonce() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	nonce := uuid.New().String()
	m.nonceStore[nonce] = m.now().Add(NonceExpiryDuration)
	return nonce
}

// ValidateProof checks that sha256(nonce + counter) has the required number of leading
// zeros. The nonce is consumed and a Proof Token is returned on success.
func (m *PoWManager) ValidateProof(nonce, counter string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	expiryTime, ok := m.nonceStore[nonce]
	if !ok || m.now().After(expiryTime) {
		return "", ErrNonceInvalid
	}

	if !MeetsDifficulty(nonce, counter, m.difficulty) {
		return "", ErrProofTooWeak
	}

	delete(m.nonceStore, nonce)

	token := uuid.New().String()
	m.tokenStore[token] = m.now().Add(ProofTokenDuration)
	return token, nil
}

// ConsumeProofToken reports whether the request carries a valid Proof Token and spends it.
// The token is read from the X-PoW-Token header or the pow_token query parameter.
func (m *PoWManager) ConsumeProofToken(r *http.Request) bool {
	if !m.Enabled() {
		return true
	}

	token := r.Header.Get(TokenHeaderKey)
	if token == "" {
		token = r.URL.Query().Get(TokenQueryKey)
	}

	if token == "" {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	expiryTime, ok := m.tokenStore[token]
	if !ok {
		return false
	}
	delete(m.tokenStore, token)

	return !m.now().After(expiryTime)
}

// MeetsDifficulty reports whether the hex sha256 of nonce+counter starts with difficulty zeros.
func MeetsDifficulty(nonce, counter string, difficulty int) bool {
	hash := sha256.Sum256([]byte(nonce + counter))
	return strings.HasPrefix(hex.EncodeToString(hash[:]), strings.Repeat("0", difficulty))
}

// cleanupExpiredEntries removes expired entries in both nonceStore and tokenStore.
func (m *PoWManager) cleanupExpiredEntries() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0

	for nonce, expiry := range m.nonceStore {
		if now.After(expiry) {
			delete(m.nonceStore, nonce)
			removed++
		}
	}

	for token, expiry := range m.tokenStore {
		if now.After(expiry) {
			delete(m.tokenStore, token)
			removed++
		}
	}

	if removed > 0 {
		logx.Debug("PoW cleanup removed expired entries.", "removed", removed)
	}
}
