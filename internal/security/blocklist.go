package security

import (
	"fmt"
	"sync"
	"time"
)

// Blocklist namespaces. IP blocks and smart-account blocks are independent.
const (
	NamespaceIP = "ip"
	NamespaceAA = "aa"
)

const (
	blockBaseDuration = 60 * time.Second
	blockMaxDuration  = 86400 * time.Second
)

type blockEntry struct {
	count int // lifetime block count for this key, drives the backoff
	until time.Time
}

// BlocklistManager blocks misbehaving identities with exponential backoff:
// the n-th block of the same key lasts min(60*2^(n-1), 86400) seconds.
type BlocklistManager struct {
	mu      sync.Mutex
	entries map[string]*blockEntry
	now     func() time.Time
}

// BlockInfo is a snapshot row for the admin and health endpoints.
type BlockInfo struct {
	Namespace  string        `json:"namespace"`
	Key        string        `json:"key"`
	BlockCount int           `json:"block_count"`
	Remaining  time.Duration `json:"remaining_seconds"`
}

// NewBlocklistManager creates an empty blocklist.
func NewBlocklistManager() *BlocklistManager {
	return &BlocklistManager{
		entries: make(map[string]*blockEntry),
		now:     time.Now,
	}
}

func blockKey(namespace, key string) string {
	return namespace + ":" + key
}

// BlockDuration returns the backoff duration for the n-th block.
func BlockDuration(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	// Shifting past 31 would overflow long before the cap matters.
	if n > 18 {
		return blockMaxDuration
	}
	d := blockBaseDuration << uint(n-1)
	if d > blockMaxDuration {
		return blockMaxDuration
	}
	return d
}

// Block blocks the key in the given namespace and returns the applied
// duration.
func (m *BlocklistManager) Block(namespace, key string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := blockKey(namespace, key)
	entry := m.entries[k]
	if entry == nil {
		entry = &blockEntry{}
		m.entries[k] = entry
	}
	entry.count++
	d := BlockDuration(entry.count)
	entry.until = m.now().Add(d)
	return d
}

// IsBlocked reports whether the key is currently blocked and the remaining
// time. Expired entries are removed lazily; the lifetime count survives so
// the next block escalates.
func (m *BlocklistManager) IsBlocked(namespace, key string) (bool, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := blockKey(namespace, key)
	entry, ok := m.entries[k]
	if !ok {
		return false, 0
	}
	remaining := entry.until.Sub(m.now())
	if remaining <= 0 {
		// Keep the record for escalation, just clear the active block.
		entry.until = time.Time{}
		return false, 0
	}
	return true, remaining
}

// Unblock clears an active block without resetting the escalation count.
func (m *BlocklistManager) Unblock(namespace, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := blockKey(namespace, key)
	entry, ok := m.entries[k]
	if !ok || !entry.until.After(m.now()) {
		return false
	}
	entry.until = time.Time{}
	return true
}

// Counts returns the number of active blocks per namespace.
func (m *BlocklistManager) Counts() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := map[string]int{NamespaceIP: 0, NamespaceAA: 0}
	now := m.now()
	for k, entry := range m.entries {
		if !entry.until.After(now) {
			continue
		}
		for ns := range counts {
			if len(k) > len(ns) && k[:len(ns)+1] == ns+":" {
				counts[ns]++
			}
		}
	}
	return counts
}

// Snapshot returns all active blocks for the admin endpoint.
func (m *BlocklistManager) Snapshot() []BlockInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var out []BlockInfo
	for k, entry := range m.entries {
		remaining := entry.until.Sub(now)
		if remaining <= 0 {
			continue
		}
		ns, key := splitBlockKey(k)
		out = append(out, BlockInfo{
			Namespace:  ns,
			Key:        key,
			BlockCount: entry.count,
			Remaining:  remaining / time.Second,
		})
	}
	return out
}

func splitBlockKey(k string) (namespace, key string) {
	for i := 0; i < len(k); i++ {
		if k[i] == ':' {
			return k[:i], k[i+1:]
		}
	}
	return "", k
}

func (m *BlocklistManager) String() string {
	counts := m.Counts()
	return fmt.Sprintf("BlocklistManager(ip=%d, aa=%d)", counts[NamespaceIP], counts[NamespaceAA])
}
