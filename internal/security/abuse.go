package security

import (
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Pattern is an abuse pattern tracked per identity.
type Pattern string

const (
	PatternValidationFailure  Pattern = "validation_failure"
	PatternRateLimitHit       Pattern = "rate_limit_hit"
	PatternUnauthorizedAccess Pattern = "unauthorized_access"
	PatternLargeTransaction   Pattern = "large_transaction"
	PatternRepeatedErrors     Pattern = "repeated_errors"
)

// abuseThresholds: events of a pattern within the reset window before the
// identity is blocked.
var abuseThresholds = map[Pattern]int{
	PatternValidationFailure:  10,
	PatternRateLimitHit:       5,
	PatternUnauthorizedAccess: 3,
	PatternLargeTransaction:   2,
	PatternRepeatedErrors:     15,
}

// abuseResetWindow: counters reset this long after their last event.
const abuseResetWindow = 3600 * time.Second

type abuseCounter struct {
	count     int
	lastEvent time.Time
}

// AbuseDetector keeps rolling per-(identity, pattern) counters and blocks
// identities that cross a threshold.
type AbuseDetector struct {
	mu       sync.Mutex
	counters map[string]*abuseCounter

	blocklist *BlocklistManager
	logger    *Logger
	now       func() time.Time

	// onBlock is invoked after an identity is blocked, outside hot-path
	// callers' control. Optional.
	onBlock func(identity, namespace string, pattern Pattern, duration time.Duration)
}

// NewAbuseDetector creates a detector that blocks through the given
// blocklist.
func NewAbuseDetector(blocklist *BlocklistManager, logger *Logger) *AbuseDetector {
	return &AbuseDetector{
		counters:  make(map[string]*abuseCounter),
		blocklist: blocklist,
		logger:    logger,
		now:       time.Now,
	}
}

// SetBlockHook installs a callback fired whenever the detector blocks an
// identity.
func (d *AbuseDetector) SetBlockHook(hook func(identity, namespace string, pattern Pattern, duration time.Duration)) {
	d.onBlock = hook
}

// namespaceFor maps an identity to its blocklist namespace: "ip:..."
// identities block in the IP namespace, everything else in the smart-account
// namespace.
func namespaceFor(identity string) string {
	if strings.HasPrefix(identity, "ip:") {
		return NamespaceIP
	}
	return NamespaceAA
}

func rawKey(identity string) string {
	if i := strings.IndexByte(identity, ':'); i >= 0 {
		return identity[i+1:]
	}
	return identity
}

// IdentityBlockKey resolves the blocklist namespace and key for an identity
// like "user:alice" or "ip:10.0.0.1".
func IdentityBlockKey(identity string) (namespace, key string) {
	return namespaceFor(identity), rawKey(identity)
}

// Report records one abuse event. When the pattern's count reaches its
// threshold the identity is blocked and blocked=true is returned. The counter
// keeps accumulating past the threshold, so repeat offenders re-block with
// escalating backoff; it only resets once the identity stays quiet for a full
// window after its last event.
func (d *AbuseDetector) Report(identity string, pattern Pattern) (blocked bool) {
	threshold, ok := abuseThresholds[pattern]
	if !ok {
		return false
	}

	d.mu.Lock()
	now := d.now()
	key := identity + "|" + string(pattern)
	counter := d.counters[key]
	if counter == nil || now.Sub(counter.lastEvent) > abuseResetWindow {
		counter = &abuseCounter{}
		d.counters[key] = counter
	}
	counter.count++
	counter.lastEvent = now
	crossed := counter.count >= threshold
	count := counter.count
	d.mu.Unlock()

	if !crossed {
		if d.logger != nil {
			d.logger.Info(string(pattern), logrus.Fields{
				"identity": SanitizeAddress(identity),
				"count":    count,
			})
		}
		return false
	}

	namespace := namespaceFor(identity)
	duration := d.blocklist.Block(namespace, rawKey(identity))

	if d.logger != nil {
		d.logger.Event("identity_blocked", logrus.Fields{
			"identity":  SanitizeAddress(identity),
			"namespace": namespace,
			"pattern":   string(pattern),
			"duration":  duration.String(),
		})
	}
	if d.onBlock != nil {
		d.onBlock(identity, namespace, pattern, duration)
	}
	return true
}

// Counters returns the live per-pattern counter totals for the security
// health endpoint.
func (d *AbuseDetector) Counters() map[string]int {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	out := make(map[string]int)
	for key, counter := range d.counters {
		if now.Sub(counter.lastEvent) > abuseResetWindow {
			delete(d.counters, key)
			continue
		}
		if i := strings.LastIndexByte(key, '|'); i >= 0 {
			out[key[i+1:]] += counter.count
		}
	}
	return out
}
