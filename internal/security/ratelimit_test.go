package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relay-backend/internal/config"
)

func newTestLimiter() (*RateLimiter, *time.Time) {
	r := NewRateLimiter(config.RateLimitConfig{})
	current := time.Unix(1_700_000_000, 0)
	r.now = func() time.Time { return current }
	return r, &current
}

func TestRateLimiterDefaults(t *testing.T) {
	r := NewRateLimiter(config.RateLimitConfig{})

	assert.Equal(t, 5, r.Limit(ClassDefault))
	assert.Equal(t, 5, r.Limit(ClassMint))
	assert.Equal(t, 3, r.Limit(ClassHighRisk))
	assert.Equal(t, 30, r.Limit(ClassStatus))
	assert.Equal(t, 60*time.Second, r.Window())

	// Unknown classes fall back to the default ceiling.
	assert.Equal(t, 5, r.Limit(Class("mystery")))
}

func TestRateLimiterConfigOverride(t *testing.T) {
	r := NewRateLimiter(config.RateLimitConfig{
		WindowSeconds: 30,
		HighRisk:      10,
	})
	assert.Equal(t, 30*time.Second, r.Window())
	assert.Equal(t, 10, r.Limit(ClassHighRisk))
	assert.Equal(t, 5, r.Limit(ClassMint), "unset ceilings keep defaults")
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	r, current := newTestLimiter()

	for i := 0; i < 3; i++ {
		allowed, _ := r.Allow("ip:10.0.0.1", ClassHighRisk)
		require.True(t, allowed, "request %d should pass", i)
	}

	allowed, retryAfter := r.Allow("ip:10.0.0.1", ClassHighRisk)
	assert.False(t, allowed)
	assert.Equal(t, 60*time.Second, retryAfter)

	// 30s later the window is still full.
	*current = current.Add(30 * time.Second)
	allowed, retryAfter = r.Allow("ip:10.0.0.1", ClassHighRisk)
	assert.False(t, allowed)
	assert.Equal(t, 30*time.Second, retryAfter)

	// Once the first request slides out, capacity returns.
	*current = current.Add(31 * time.Second)
	allowed, _ = r.Allow("ip:10.0.0.1", ClassHighRisk)
	assert.True(t, allowed)
}

func TestRateLimiterIsolation(t *testing.T) {
	r, _ := newTestLimiter()

	for i := 0; i < 3; i++ {
		allowed, _ := r.Allow("ip:10.0.0.1", ClassHighRisk)
		require.True(t, allowed)
	}

	// Other identities and other classes have their own windows.
	allowed, _ := r.Allow("ip:10.0.0.2", ClassHighRisk)
	assert.True(t, allowed)
	allowed, _ = r.Allow("ip:10.0.0.1", ClassStatus)
	assert.True(t, allowed)
}

func TestRateLimiterActiveWindows(t *testing.T) {
	r, current := newTestLimiter()

	r.Allow("ip:10.0.0.1", ClassDefault)
	r.Allow("user:alice", ClassDefault)
	assert.Equal(t, 2, r.ActiveWindows())

	*current = current.Add(2 * time.Minute)
	assert.Equal(t, 0, r.ActiveWindows())
}

func TestIdentity(t *testing.T) {
	assert.Equal(t, "user:alice", Identity("alice", "10.0.0.1"))
	assert.Equal(t, "ip:10.0.0.1", Identity("", "10.0.0.1"))
}
