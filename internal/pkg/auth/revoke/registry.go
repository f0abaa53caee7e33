/*
Package revoke keeps the set of explicitly invalidated tokens.

An entry lives exactly as long as the token it revokes: once the wall clock passes the
token's own expiry the token is rejected by signature validation anyway, and the periodic
sweep reclaims the entry.
*/
package revoke

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"marketchat/internal/pkg/logx"
	"marketchat/internal/pkg/metrics"
)

// DefaultSweepInterval is how often expired entries are reclaimed when no interval is configured.
const DefaultSweepInterval = time.Hour

// Registry is a concurrency-safe map from token to its expiry.
type Registry struct {
	// mu protects entries. Validation takes the read lock, revocation and sweep the write lock.
	mu      sync.RWMutex
	entries map[string]time.Time

	interval time.Duration
	now      func() time.Time

	stop      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once

	logger zerolog.Logger
}

// Option customizes a Registry.
type Option func(*Registry)

// WithSweepInterval sets the period of the background sweep.
func WithSweepInterval(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithClock replaces time.Now for the background sweep.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates an empty Registry. Call Start to run the background sweep.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		entries:  make(map[string]time.Time),
		interval: DefaultSweepInterval,
		now:      time.Now,
		stop:     make(chan struct{}),
		logger:   logx.Component("RevocationRegistry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Revoke records token as invalid until expiresAt. Revoking a token again overwrites its expiry.
func (r *Registry) Revoke(token string, expiresAt time.Time) {
	if token == "" {
		return
	}

	r.mu.Lock()
	r.entries[token] = expiresAt
	size := len(r.entries)
	r.mu.Unlock()

	metrics.RevokedTokens.Set(float64(size))
}

// IsRevoked reports whether token has an entry. Entries past expiry still count until swept.
func (r *Registry) IsRevoked(token string) bool {
	r.mu.RLock()
	_, ok := r.entries[token]
	r.mu.RUnlock()
	return ok
}

// Sweep removes every entry whose expiry is before now and returns how many were removed.
func (r *Registry) Sweep(now time.Time) int {
	removed, size := r.removeExpired(now)

	metrics.RevokedTokens.Set(float64(size))
	metrics.RevocationSweptTotal.Add(float64(removed))
	return removed
}

func (r *Registry) removeExpired(now time.Time) (removed, size int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for token, expiry := range r.entries {
		if now.After(expiry) {
			delete(r.entries, token)
			removed++
		}
	}
	return removed, len(r.entries)
}

// Len returns the number of remembered entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Start launches the background sweep. It sweeps once immediately and then every interval
// until ctx is done or Close is called. Calling Start more than once has no effect.
func (r *Registry) Start(ctx context.Context) {
	r.startOnce.Do(func() {
		r.wg.Add(1)
		go r.run(ctx)
	})
}

// Close stops the background sweep and waits for it to exit.
func (r *Registry) Close() {
	r.stopOnce.Do(func() { close(r.stop) })
	r.wg.Wait()
}

func (r *Registry) run(ctx context.Context) {
	defer r.wg.Done()

	r.logger.Info().Dur("interval", r.interval).Msg("Revocation sweep started.")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.sweepOnce()
	for {
		select {
		case <-ticker.C:
			r.sweepOnce()
		case <-r.stop:
			r.logger.Info().Msg("Revocation sweep stopped.")
			return
		case <-ctx.Done():
			r.logger.Info().Msg("Revocation sweep stopped by context.")
			return
		}
	}
}

// sweepOnce runs a single sweep cycle. A panic is logged and the next tick retries.
func (r *Registry) sweepOnce() (removed int, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("revocation sweep panicked: %v", p)
			r.logger.Error().Err(err).Msg("Revocation sweep failed; retrying on next tick.")
		}
	}()

	removed = r.Sweep(r.now())
	r.logger.Debug().
		Int("removed", removed).
		Int("remaining", r.Len()).
		Msg("Revocation sweep completed.")
	return removed, nil
}
