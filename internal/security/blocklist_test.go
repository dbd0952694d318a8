package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBlocklist() (*BlocklistManager, *time.Time) {
	m := NewBlocklistManager()
	current := time.Unix(1_700_000_000, 0)
	m.now = func() time.Time { return current }
	return m, &current
}

func TestBlockDurationBackoff(t *testing.T) {
	for _, tc := range []struct {
		n    int
		want time.Duration
	}{
		{1, 60 * time.Second},
		{2, 120 * time.Second},
		{3, 240 * time.Second},
		{11, 61440 * time.Second},
		{12, 86400 * time.Second}, // capped
		{50, 86400 * time.Second},
		{0, 60 * time.Second},
	} {
		assert.Equal(t, tc.want, BlockDuration(tc.n), "block %d", tc.n)
	}
}

func TestBlockEscalation(t *testing.T) {
	m, current := newTestBlocklist()

	assert.Equal(t, 60*time.Second, m.Block(NamespaceIP, "10.0.0.1"))

	blocked, remaining := m.IsBlocked(NamespaceIP, "10.0.0.1")
	assert.True(t, blocked)
	assert.Equal(t, 60*time.Second, remaining)

	// After expiry the key is free but the count survives.
	*current = current.Add(2 * time.Minute)
	blocked, _ = m.IsBlocked(NamespaceIP, "10.0.0.1")
	assert.False(t, blocked)

	assert.Equal(t, 120*time.Second, m.Block(NamespaceIP, "10.0.0.1"))
}

func TestNamespacesIndependent(t *testing.T) {
	m, _ := newTestBlocklist()

	m.Block(NamespaceIP, "10.0.0.1")

	blocked, _ := m.IsBlocked(NamespaceAA, "10.0.0.1")
	assert.False(t, blocked)

	m.Block(NamespaceAA, "0xabc")
	counts := m.Counts()
	assert.Equal(t, 1, counts[NamespaceIP])
	assert.Equal(t, 1, counts[NamespaceAA])
}

func TestUnblock(t *testing.T) {
	m, _ := newTestBlocklist()

	assert.False(t, m.Unblock(NamespaceIP, "10.0.0.1"), "nothing to unblock")

	m.Block(NamespaceIP, "10.0.0.1")
	assert.True(t, m.Unblock(NamespaceIP, "10.0.0.1"))

	blocked, _ := m.IsBlocked(NamespaceIP, "10.0.0.1")
	assert.False(t, blocked)

	// Escalation count is kept across an admin unblock.
	assert.Equal(t, 120*time.Second, m.Block(NamespaceIP, "10.0.0.1"))
}

func TestSnapshot(t *testing.T) {
	m, _ := newTestBlocklist()

	m.Block(NamespaceIP, "10.0.0.1")
	m.Block(NamespaceAA, "0xabc")
	m.Block(NamespaceAA, "0xabc")

	snap := m.Snapshot()
	require.Len(t, snap, 2)

	byKey := map[string]BlockInfo{}
	for _, info := range snap {
		byKey[info.Key] = info
	}
	assert.Equal(t, NamespaceIP, byKey["10.0.0.1"].Namespace)
	assert.Equal(t, 1, byKey["10.0.0.1"].BlockCount)
	assert.Equal(t, 2, byKey["0xabc"].BlockCount)
}
