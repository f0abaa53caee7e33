package revoke

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestRevokeIsImmediate(t *testing.T) {
	r := NewRegistry()

	assert.False(t, r.IsRevoked("tok"))
	r.Revoke("tok", base.Add(time.Hour))
	assert.True(t, r.IsRevoked("tok"))
	assert.Equal(t, 1, r.Len())
}

func TestRevokeIdempotentOverwrite(t *testing.T) {
	r := NewRegistry()

	r.Revoke("tok", base.Add(time.Hour))
	r.Revoke("tok", base.Add(2*time.Hour))
	assert.Equal(t, 1, r.Len())

	assert.Equal(t, 0, r.Sweep(base.Add(90*time.Minute)), "overwritten expiry is the one that counts")
	assert.True(t, r.IsRevoked("tok"))
}

func TestRevokeIgnoresEmptyToken(t *testing.T) {
	r := NewRegistry()
	r.Revoke("", base)
	assert.Equal(t, 0, r.Len())
}

func TestSweepRemovesOnlyExpired(t *testing.T) {
	r := NewRegistry()
	r.Revoke("short", base.Add(time.Minute))
	r.Revoke("long", base.Add(time.Hour))

	assert.Equal(t, 0, r.Sweep(base.Add(time.Minute)), "entry survives exactly at expiry")
	assert.Equal(t, 1, r.Sweep(base.Add(time.Minute+time.Millisecond)))

	assert.False(t, r.IsRevoked("short"))
	assert.True(t, r.IsRevoked("long"))

	assert.Equal(t, 1, r.Sweep(base.Add(2*time.Hour)))
	assert.Equal(t, 0, r.Len())
}

func TestExpiredEntryStillRevokedUntilSwept(t *testing.T) {
	r := NewRegistry()
	r.Revoke("tok", base)
	assert.True(t, r.IsRevoked("tok"))
}

func TestConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				tok := fmt.Sprintf("tok-%d-%d", i, j)
				r.Revoke(tok, base.Add(time.Duration(j)*time.Second))
				_ = r.IsRevoked(tok)
			}
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 50; j++ {
			r.Sweep(base.Add(100 * time.Second))
		}
	}()
	wg.Wait()

	r.Sweep(base.Add(100 * time.Second))
	assert.Equal(t, 8*100, r.Len())
}

func TestStartSweepsImmediatelyAndStops(t *testing.T) {
	r := NewRegistry(
		WithSweepInterval(time.Hour),
		WithClock(func() time.Time { return base.Add(time.Hour) }),
	)
	r.Revoke("expired", base)
	r.Revoke("live", base.Add(2*time.Hour))

	r.Start(context.Background())
	require.Eventually(t, func() bool { return !r.IsRevoked("expired") }, time.Second, 5*time.Millisecond)
	assert.True(t, r.IsRevoked("live"))

	r.Close()
	r.Close()
}

func TestSweepSurvivesPanics(t *testing.T) {
	var calls atomic.Int32
	clock := func() time.Time {
		if calls.Add(1) == 1 {
			panic("clock failure")
		}
		return base.Add(time.Hour)
	}

	r := NewRegistry(WithSweepInterval(10*time.Millisecond), WithClock(clock))
	r.Revoke("expired", base)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)

	require.Eventually(t, func() bool { return !r.IsRevoked("expired") }, time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, calls.Load(), int32(2))

	cancel()
	r.Close()
}

func TestSweepReleasesLock(t *testing.T) {
	r := NewRegistry()
	r.Revoke("expired", base)
	r.Revoke("live", base.Add(time.Hour))

	removed, size := r.removeExpired(base.Add(time.Minute))
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, size)

	require.True(t, r.mu.TryLock(), "mutex is free after the sweep")
	r.mu.Unlock()

	done := make(chan bool, 1)
	go func() { done <- r.IsRevoked("live") }()
	select {
	case ok := <-done:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("IsRevoked blocked after sweep")
	}
}
