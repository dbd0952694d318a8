package security

import (
	"github.com/sirupsen/logrus"

	"relay-backend/internal/config"
)

// State bundles all security components. It is built once at startup and
// injected into middleware and handlers; nothing here is package-global, so
// tests get isolated instances.
type State struct {
	Signatures  *SignatureValidator
	Allowlist   *AllowlistValidator
	RateLimiter *RateLimiter
	Blocklist   *BlocklistManager
	Abuse       *AbuseDetector
	Idempotency *IdempotencyStore
	Logger      *Logger
}

// NewState wires the security components from config.
func NewState(cfg *config.Config, log *logrus.Logger) *State {
	secLogger := NewLogger(log)
	blocklist := NewBlocklistManager()

	targets := []string{cfg.Network.TokenAddress}
	for _, addr := range []string{
		cfg.Network.MinterAddress,
		cfg.Network.RedemptionAddress,
		cfg.Network.AchievementAddress,
	} {
		if addr != "" {
			targets = append(targets, addr)
		}
	}

	return &State{
		Signatures:  NewSignatureValidator(cfg.Security.HMACSecret),
		Allowlist:   NewAllowlistValidator(targets, cfg.Security.AllowedChainIDs),
		RateLimiter: NewRateLimiter(cfg.Security.RateLimits),
		Blocklist:   blocklist,
		Abuse:       NewAbuseDetector(blocklist, secLogger),
		Idempotency: NewIdempotencyStore(),
		Logger:      secLogger,
	}
}

// Start launches background maintenance.
func (s *State) Start() {
	s.Idempotency.Start()
}

// Stop stops background maintenance.
func (s *State) Stop() {
	s.Idempotency.Stop()
}
