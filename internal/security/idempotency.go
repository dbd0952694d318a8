package security

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log"
	"regexp"
	"sync"
	"time"
)

// Idempotency policies: the coarse policy reserves a key before a
// transaction is attempted and answers any replay with a conflict for its
// TTL; the fine policy caches the completed response and replays it.
const (
	CoarseTTL = 120 * time.Second
	FineTTL   = 24 * time.Hour

	MaxIdempotencyKeyLength = 64

	sweepInterval = time.Hour
)

var (
	ErrDuplicateRequest = errors.New("duplicate request")
	ErrRequestInFlight  = errors.New("request already in flight")
	ErrBadKey           = errors.New("idempotency key invalid")
)

var keyPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// CachedResult replays a completed fine-policy response.
type CachedResult struct {
	Status int
	Body   []byte
}

type idemEntry struct {
	createdAt time.Time
	ttl       time.Duration
	inFlight  bool
	result    *CachedResult
}

// IdempotencyStore backs both idempotency policies with one map. Keys are
// scoped "scope:identity:key". Expired entries are removed lazily on access
// plus by an hourly sweep.
type IdempotencyStore struct {
	mu      sync.Mutex
	entries map[string]*idemEntry
	now     func() time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewIdempotencyStore creates an empty store. Call Start to enable the
// background sweep.
func NewIdempotencyStore() *IdempotencyStore {
	return &IdempotencyStore{
		entries: make(map[string]*idemEntry),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
}

// ValidateKey enforces the caller-supplied key shape for the fine policy.
func ValidateKey(key string) error {
	if key == "" || len(key) > MaxIdempotencyKeyLength || !keyPattern.MatchString(key) {
		return ErrBadKey
	}
	return nil
}

// DeriveKey hashes an arbitrary canonical message into a key for the coarse
// policy.
func DeriveKey(message string) string {
	sum := sha256.Sum256([]byte(message))
	return hex.EncodeToString(sum[:])
}

func scopedKey(scope, identity, key string) string {
	return scope + ":" + identity + ":" + key
}

// Reserve implements the coarse policy: the first call for a key succeeds
// and holds the reservation for CoarseTTL; any call within the TTL fails
// with ErrDuplicateRequest. The reservation is kept even when the guarded
// operation fails.
func (s *IdempotencyStore) Reserve(scope, identity, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := scopedKey(scope, identity, key)
	if entry, ok := s.entries[k]; ok && !s.expiredLocked(entry) {
		return ErrDuplicateRequest
	}
	s.entries[k] = &idemEntry{createdAt: s.now(), ttl: CoarseTTL}
	return nil
}

// Begin implements the fine policy. It returns a cached result when the key
// completed before, ErrRequestInFlight when a request with the key is still
// running, and (nil, nil) after registering the key as in flight.
func (s *IdempotencyStore) Begin(scope, identity, key string) (*CachedResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := scopedKey(scope, identity, key)
	if entry, ok := s.entries[k]; ok && !s.expiredLocked(entry) {
		if entry.inFlight {
			return nil, ErrRequestInFlight
		}
		return entry.result, nil
	}
	s.entries[k] = &idemEntry{createdAt: s.now(), ttl: FineTTL, inFlight: true}
	return nil, nil
}

// Complete stores the response for a fine-policy key and starts its TTL.
func (s *IdempotencyStore) Complete(scope, identity, key string, status int, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := scopedKey(scope, identity, key)
	s.entries[k] = &idemEntry{
		createdAt: s.now(),
		ttl:       FineTTL,
		result:    &CachedResult{Status: status, Body: body},
	}
}

// Fail releases a fine-policy in-flight reservation so the caller may retry.
func (s *IdempotencyStore) Fail(scope, identity, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, scopedKey(scope, identity, key))
}

// Size returns the number of live entries.
func (s *IdempotencyStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for k, entry := range s.entries {
		if s.expiredLocked(entry) {
			delete(s.entries, k)
			continue
		}
		n++
	}
	return n
}

func (s *IdempotencyStore) expiredLocked(entry *idemEntry) bool {
	return s.now().Sub(entry.createdAt) > entry.ttl
}

// Start launches the hourly sweep goroutine.
func (s *IdempotencyStore) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				removed := s.sweep()
				if removed > 0 {
					log.Printf("🧹 Idempotency sweep removed %d expired entries", removed)
				}
			case <-s.stopCh:
				return
			}
		}
	}()
}

// Stop stops the background sweep.
func (s *IdempotencyStore) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *IdempotencyStore) sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, entry := range s.entries {
		if s.expiredLocked(entry) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}
