package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newClockedLimiter(max int, window time.Duration) (*RateLimiter, *time.Time) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(max, window)
	rl.now = func() time.Time { return now }
	return rl, &now
}

func TestRateLimiter_AllowsUpToMaxPerWindow(t *testing.T) {
	req := require.New(t)
	rl, now := newClockedLimiter(10, time.Second)

	for i := 0; i < 10; i++ {
		req.True(rl.Allow("a"), "event %d should be allowed", i+1)
		*now = now.Add(50 * time.Millisecond)
	}
	req.False(rl.Allow("a"), "11th event in the window must be refused")

	// Once the window has elapsed the counter starts over
	*now = now.Add(time.Second)
	req.True(rl.Allow("a"))
}

func TestRateLimiter_WindowBoundaryIsInclusive(t *testing.T) {
	req := require.New(t)
	rl, now := newClockedLimiter(1, time.Second)

	req.True(rl.Allow("a"))

	// Exactly at the reset time the old window still applies
	*now = now.Add(time.Second)
	req.False(rl.Allow("a"))

	*now = now.Add(time.Millisecond)
	req.True(rl.Allow("a"))
}

func TestRateLimiter_BoundaryBurst(t *testing.T) {
	req := require.New(t)
	rl, now := newClockedLimiter(10, time.Second)

	// Ten events at the very end of one window...
	req.True(rl.Allow("a"))
	*now = now.Add(999 * time.Millisecond)
	for i := 0; i < 9; i++ {
		req.True(rl.Allow("a"))
	}

	// ...and ten more right after it expires are all accepted
	*now = now.Add(2 * time.Millisecond)
	for i := 0; i < 10; i++ {
		req.True(rl.Allow("a"))
	}
	req.False(rl.Allow("a"))
}

func TestRateLimiter_IdentitiesAreIndependent(t *testing.T) {
	req := require.New(t)
	rl, _ := newClockedLimiter(2, time.Second)

	req.True(rl.Allow("a"))
	req.True(rl.Allow("a"))
	req.False(rl.Allow("a"))

	req.True(rl.Allow("b"))
	req.Equal(2, rl.Len())
}

func TestRateLimiter_Forget(t *testing.T) {
	req := require.New(t)
	rl, _ := newClockedLimiter(1, time.Second)

	req.True(rl.Allow("a"))
	req.False(rl.Allow("a"))

	rl.Forget("a")
	req.Equal(0, rl.Len())
	req.True(rl.Allow("a"))

	// Forgetting an unknown identity is harmless
	rl.Forget("missing")
	req.Equal(1, rl.Len())
}

func TestNewRateLimiter_Defaults(t *testing.T) {
	rl := NewRateLimiter(0, -time.Second)
	require.Equal(t, defaultRateLimitMax, rl.max)
	require.Equal(t, defaultRateLimitWindow, rl.window)
}
