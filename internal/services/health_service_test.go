package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relay-backend/internal/clients"
	"relay-backend/internal/config"
)

func newTestHealth(t *testing.T, backend *stubBackend, fb *fakeBundler) (*HealthService, *time.Time) {
	t.Helper()

	relay, _, _ := newTestRelay(t, backend)
	token, err := NewTokenReader(testConfig(), backend)
	require.NoError(t, err)
	bundler := clients.NewBundlerClient(config.BundlerConfig{BaseURL: fb.server.URL})

	// No database in unit tests; the database probe reports unhealthy.
	svc := NewHealthService(backend, bundler, nil, token, relay, testSecLogger())
	current := time.Unix(1_700_000_000, 0)
	svc.now = func() time.Time { return current }
	return svc, &current
}

func TestHealthClassify(t *testing.T) {
	status, detail := classify(errors.New("connection refused"), 0, probeOutcome{})
	assert.Equal(t, StatusUnhealthy, status)
	assert.Equal(t, "connection refused", detail)

	status, detail = classify(nil, 0, probeOutcome{degradedReason: "stale chain head"})
	assert.Equal(t, StatusDegraded, status)
	assert.Equal(t, "stale chain head", detail)

	status, _ = classify(nil, maxProbeLatency+time.Second, probeOutcome{})
	assert.Equal(t, StatusDegraded, status)

	status, detail = classify(nil, 10*time.Millisecond, probeOutcome{})
	assert.Equal(t, StatusHealthy, status)
	assert.Empty(t, detail)
}

func TestHealthAggregateStatus(t *testing.T) {
	mk := func(statuses ...string) map[string]*ServiceHealth {
		out := make(map[string]*ServiceHealth, len(statuses))
		for i, st := range statuses {
			out[string(rune('a'+i))] = &ServiceHealth{Status: st}
		}
		return out
	}

	assert.Equal(t, StatusHealthy, aggregateStatus(mk(StatusHealthy, StatusHealthy)))
	// A single degraded service leaves the aggregate healthy.
	assert.Equal(t, StatusHealthy, aggregateStatus(mk(StatusHealthy, StatusDegraded)))
	assert.Equal(t, StatusDegraded, aggregateStatus(mk(StatusDegraded, StatusDegraded, StatusHealthy)))
	// Any unhealthy service wins over degraded counts.
	assert.Equal(t, StatusUnhealthy, aggregateStatus(mk(StatusDegraded, StatusDegraded, StatusUnhealthy)))
}

func TestHealthCheckProbes(t *testing.T) {
	backend := newStubBackend()
	backend.blockNumber = 1234
	svc, _ := newTestHealth(t, backend, newFakeBundler(t))

	report := svc.Check(context.Background())
	require.NotNil(t, report)
	assert.False(t, report.Cached)
	require.Len(t, report.Services, 4)

	assert.Equal(t, StatusHealthy, report.Services["rpc"].Status)
	assert.Equal(t, StatusHealthy, report.Services["bundler"].Status)
	assert.Equal(t, StatusUnhealthy, report.Services["database"].Status)
	assert.Equal(t, errDatabaseNotConfigured.Error(), report.Services["database"].Error)
	assert.Equal(t, StatusUnhealthy, report.Status)
}

func TestHealthCheckCaching(t *testing.T) {
	backend := newStubBackend()
	svc, current := newTestHealth(t, backend, newFakeBundler(t))

	first := svc.Check(context.Background())
	assert.False(t, first.Cached)

	second := svc.Check(context.Background())
	assert.True(t, second.Cached)
	assert.Equal(t, first.CachedAt, second.CachedAt)

	*current = current.Add(healthCacheTTL + time.Second)
	third := svc.Check(context.Background())
	assert.False(t, third.Cached)
}

func TestHealthStaleChainHead(t *testing.T) {
	backend := newStubBackend()
	backend.blockNumber = 1234
	stubTokenMetadata(backend)
	svc, current := newTestHealth(t, backend, newFakeBundler(t))
	svc.pingDB = func(context.Context) error { return nil }

	// Latest block is ten minutes behind the clock.
	backend.blockTime = uint64(current.Add(-10 * time.Minute).Unix())

	report := svc.Check(context.Background())
	assert.Equal(t, StatusDegraded, report.Services["rpc"].Status)
	assert.Contains(t, report.Services["rpc"].Error, "stale chain head")
	// One degraded service does not degrade the aggregate.
	assert.Equal(t, StatusHealthy, report.Status)
}

func TestHealthDegradedModeAfterFailureStreak(t *testing.T) {
	backend := newStubBackend()
	backend.headerErr = errors.New("connection refused")
	backend.callErr = errors.New("connection refused")
	svc, current := newTestHealth(t, backend, newFakeBundler(t))

	// rpc, database and token_contract all failing; the streak builds one
	// step per uncached check.
	for i := 0; i < degradedFailureStreak; i++ {
		report := svc.Check(context.Background())
		assert.Equal(t, StatusUnhealthy, report.Status)
		if i < degradedFailureStreak-1 {
			assert.False(t, svc.degradedMode, "check %d below streak", i)
		}
		*current = current.Add(healthCacheTTL + time.Second)
	}
	assert.True(t, svc.degradedMode)
	assert.True(t, svc.Degraded())
}

func TestHealthDegradedWhenRelayUnfunded(t *testing.T) {
	backend := newStubBackend()
	backend.blockNumber = 1234
	stubTokenMetadata(backend)
	fb := newFakeBundler(t)

	relay, _, _ := newTestRelay(t, backend)
	relay.unhealthy.Store(true)

	token, err := NewTokenReader(testConfig(), backend)
	require.NoError(t, err)
	bundler := clients.NewBundlerClient(config.BundlerConfig{BaseURL: fb.server.URL})
	svc := NewHealthService(backend, bundler, nil, token, relay, testSecLogger())
	svc.pingDB = func(context.Context) error { return nil }

	report := svc.Check(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
}
