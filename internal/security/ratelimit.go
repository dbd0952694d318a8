package security

import (
	"fmt"
	"sync"
	"time"

	"relay-backend/internal/config"
)

// Class groups endpoints by rate-limit ceiling.
type Class string

const (
	ClassDefault  Class = "default"
	ClassMint     Class = "mint"
	ClassHighRisk Class = "high_risk"
	ClassStatus   Class = "status"
)

// RateLimiter enforces a sliding-window request ceiling per identity and
// endpoint class.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	window  time.Duration
	limits  map[Class]int
	now     func() time.Time
}

// NewRateLimiter creates a rate limiter from config, falling back to the
// documented defaults for any unset ceiling.
func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	window := 60 * time.Second
	if cfg.WindowSeconds > 0 {
		window = time.Duration(cfg.WindowSeconds) * time.Second
	}
	limits := map[Class]int{
		ClassDefault:  5,
		ClassMint:     5,
		ClassHighRisk: 3,
		ClassStatus:   30,
	}
	if cfg.Default > 0 {
		limits[ClassDefault] = cfg.Default
	}
	if cfg.Mint > 0 {
		limits[ClassMint] = cfg.Mint
	}
	if cfg.HighRisk > 0 {
		limits[ClassHighRisk] = cfg.HighRisk
	}
	if cfg.Status > 0 {
		limits[ClassStatus] = cfg.Status
	}
	return &RateLimiter{
		windows: make(map[string][]time.Time),
		window:  window,
		limits:  limits,
		now:     time.Now,
	}
}

// Identity derives the rate-limit identity for a request: the authenticated
// subject when present, the client IP otherwise.
func Identity(userID, clientIP string) string {
	if userID != "" {
		return "user:" + userID
	}
	return "ip:" + clientIP
}

// Allow records the request and reports whether it is within the ceiling.
// When denied, retryAfter is the wait until the oldest request leaves the
// window.
func (r *RateLimiter) Allow(identity string, class Class) (allowed bool, retryAfter time.Duration) {
	limit, ok := r.limits[class]
	if !ok {
		limit = r.limits[ClassDefault]
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cutoff := now.Add(-r.window)

	key := string(class) + "|" + identity
	window := r.windows[key]

	// Drop expired entries in place.
	kept := window[:0]
	for _, t := range window {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= limit {
		r.windows[key] = kept
		retryAfter = kept[0].Add(r.window).Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return false, retryAfter
	}

	r.windows[key] = append(kept, now)
	return true, 0
}

// ActiveWindows returns the number of identities with at least one request
// in the current window, for the security health endpoint.
func (r *RateLimiter) ActiveWindows() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.window)
	active := 0
	for key, window := range r.windows {
		live := false
		for _, t := range window {
			if t.After(cutoff) {
				live = true
				break
			}
		}
		if live {
			active++
		} else {
			delete(r.windows, key)
		}
	}
	return active
}

// Limit returns the configured ceiling for a class.
func (r *RateLimiter) Limit(class Class) int {
	if limit, ok := r.limits[class]; ok {
		return limit
	}
	return r.limits[ClassDefault]
}

// Window returns the sliding window duration.
func (r *RateLimiter) Window() time.Duration {
	return r.window
}

func (r *RateLimiter) String() string {
	return fmt.Sprintf("RateLimiter(window=%s)", r.window)
}
