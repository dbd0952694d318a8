package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"relay-backend/internal/clients"
	"relay-backend/internal/metrics"
	"relay-backend/internal/security"
)

var errDatabaseNotConfigured = errors.New("database not configured")

// Per-service status values.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

const (
	healthCacheTTL = 30 * time.Second

	// maxBlockAge: the RPC endpoint counts as degraded when its latest
	// block is older than this.
	maxBlockAge = 5 * time.Minute
	// maxProbeLatency: a probe slower than this degrades the service.
	maxProbeLatency = time.Second

	// degradedFailureStreak consecutive unhealthy results before a service
	// counts toward the degraded-mode flag.
	degradedFailureStreak = 3
	// degradedServiceCount failing services required for degraded mode.
	degradedServiceCount = 2
)

// ServiceHealth is the checked state of one dependency.
type ServiceHealth struct {
	Name                string    `json:"name"`
	Status              string    `json:"status"` // healthy, degraded or unhealthy
	LatencyMS           int64     `json:"latency_ms"`
	Error               string    `json:"error,omitempty"`
	CheckedAt           time.Time `json:"checked_at"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
}

// HealthReport aggregates all dependency checks.
type HealthReport struct {
	Status   string                    `json:"status"` // healthy, degraded or unhealthy
	Services map[string]*ServiceHealth `json:"services"`
	CachedAt time.Time                 `json:"cached_at"`
	Cached   bool                      `json:"cached"`
}

// HealthService probes the RPC endpoint, bundler, database and token
// contract. Results are cached so status polling cannot hammer the
// dependencies.
type HealthService struct {
	backend ChainBackend
	bundler *clients.BundlerClient
	db      *gorm.DB
	token   *TokenReader
	relay   *RelayService
	secLog  *security.Logger

	mu           sync.Mutex
	cached       *HealthReport
	failures     map[string]int
	degradedMode bool
	now          func() time.Time
	pingDB       func(ctx context.Context) error
}

func NewHealthService(backend ChainBackend, bundler *clients.BundlerClient, db *gorm.DB, token *TokenReader, relay *RelayService, secLog *security.Logger) *HealthService {
	s := &HealthService{
		backend:  backend,
		bundler:  bundler,
		db:       db,
		token:    token,
		relay:    relay,
		secLog:   secLog,
		failures: make(map[string]int),
		now:      time.Now,
	}
	s.pingDB = s.defaultPingDB
	return s
}

func (s *HealthService) defaultPingDB(ctx context.Context) error {
	if s.db == nil {
		return errDatabaseNotConfigured
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// probeOutcome lets a probe degrade a responsive service, like a stale chain
// head.
type probeOutcome struct {
	degradedReason string
}

// classify turns a probe result into a tri-state status.
func classify(err error, latency time.Duration, outcome probeOutcome) (status, detail string) {
	switch {
	case err != nil:
		return StatusUnhealthy, err.Error()
	case outcome.degradedReason != "":
		return StatusDegraded, outcome.degradedReason
	case latency > maxProbeLatency:
		return StatusDegraded, fmt.Sprintf("slow probe: %s", latency.Round(time.Millisecond))
	default:
		return StatusHealthy, ""
	}
}

// aggregateStatus rolls per-service statuses into one: unhealthy when any
// service is unhealthy, degraded when more than one is degraded.
func aggregateStatus(services map[string]*ServiceHealth) string {
	degraded := 0
	for _, sh := range services {
		switch sh.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			degraded++
		}
	}
	if degraded > 1 {
		return StatusDegraded
	}
	return StatusHealthy
}

// Check returns the dependency health, re-probing when the cache is stale.
func (s *HealthService) Check(ctx context.Context) *HealthReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil && s.now().Sub(s.cached.CachedAt) < healthCacheTTL {
		cached := *s.cached
		cached.Cached = true
		return &cached
	}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	type probe struct {
		name string
		run  func(context.Context) (probeOutcome, error)
	}
	probes := []probe{
		{"rpc", func(ctx context.Context) (probeOutcome, error) {
			header, err := s.backend.HeaderByNumber(ctx, nil)
			if err != nil {
				return probeOutcome{}, err
			}
			blockAge := s.now().Sub(time.Unix(int64(header.Time), 0))
			if blockAge > maxBlockAge {
				return probeOutcome{degradedReason: fmt.Sprintf("stale chain head: block is %s old", blockAge.Round(time.Second))}, nil
			}
			return probeOutcome{}, nil
		}},
		{"bundler", func(ctx context.Context) (probeOutcome, error) {
			return probeOutcome{}, s.bundler.HealthCheck()
		}},
		{"database", func(ctx context.Context) (probeOutcome, error) {
			return probeOutcome{}, s.pingDB(ctx)
		}},
		{"token_contract", func(ctx context.Context) (probeOutcome, error) {
			_, _, _, err := s.token.Metadata(ctx)
			return probeOutcome{}, err
		}},
	}

	results := make(map[string]*ServiceHealth, len(probes))
	var resultsMu sync.Mutex
	var wg sync.WaitGroup

	for _, p := range probes {
		wg.Add(1)
		go func(p probe) {
			defer wg.Done()
			started := time.Now()
			outcome, err := p.run(checkCtx)
			latency := time.Since(started)

			status, detail := classify(err, latency, outcome)
			sh := &ServiceHealth{
				Name:      p.name,
				Status:    status,
				LatencyMS: latency.Milliseconds(),
				Error:     detail,
				CheckedAt: time.Now().UTC(),
			}

			resultsMu.Lock()
			results[p.name] = sh
			resultsMu.Unlock()
		}(p)
	}
	wg.Wait()

	failing := 0
	for name, sh := range results {
		if sh.Status == StatusUnhealthy {
			s.failures[name]++
			metrics.HealthStatus.WithLabelValues(name).Set(0)
		} else {
			s.failures[name] = 0
			metrics.HealthStatus.WithLabelValues(name).Set(1)
		}
		sh.ConsecutiveFailures = s.failures[name]
		if s.failures[name] >= degradedFailureStreak {
			failing++
		}
	}

	degradedMode := failing >= degradedServiceCount
	if degradedMode != s.degradedMode {
		s.degradedMode = degradedMode
		if s.secLog != nil {
			s.secLog.Event("degraded_mode_changed", logrus.Fields{
				"degraded":         degradedMode,
				"failing_services": failing,
			})
		}
	}

	status := aggregateStatus(results)
	if status == StatusHealthy && (degradedMode || !s.relay.Healthy()) {
		status = StatusDegraded
	}

	s.cached = &HealthReport{
		Status:   status,
		Services: results,
		CachedAt: s.now(),
	}
	report := *s.cached
	return &report
}

// Degraded reports the last computed flag without forcing a probe.
func (s *HealthService) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degradedMode || (s.cached != nil && s.cached.Status != StatusHealthy)
}
