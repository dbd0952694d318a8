package app

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"relay-backend/internal/clients"
	"relay-backend/internal/config"
	"relay-backend/internal/db"
	"relay-backend/internal/events"
	"relay-backend/internal/handlers"
	"relay-backend/internal/metrics"
	"relay-backend/internal/middleware"
	"relay-backend/internal/repository"
	"relay-backend/internal/security"
	"relay-backend/internal/services"
)

// ServiceContainer wires every component of the relay backend.
type ServiceContainer struct {
	DB     *gorm.DB
	Logger *logrus.Logger

	// Chain
	EthClient *ethclient.Client

	// Repositories
	VoucherRepo      repository.VoucherRepository
	SmartAccountRepo repository.SmartAccountRepository
	UserOpRepo       repository.UserOperationRepository
	RelayedTxRepo    repository.RelayedTransactionRepository

	// Clients
	BundlerClient *clients.BundlerClient
	NATSClient    *clients.NATSClient
	Publisher     events.Publisher

	// Security
	Security *security.State

	// Services
	RelayService      *services.RelayService
	MinterService     *services.MinterService
	UserOpService     *services.UserOpService
	TokenReader       *services.TokenReader
	HealthService     *services.HealthService
	PushService       *services.PushService
	MonitoringService *services.MonitoringService

	// Middleware
	AuthMiddleware      *middleware.AuthMiddleware
	AdminAuthMiddleware *middleware.AdminAuthMiddleware
	SecurityMiddleware  *middleware.SecurityMiddleware
	LocalhostOnly       *middleware.LocalhostOnly

	// Handlers
	AuthHandler          *handlers.AuthHandler
	RelayHandler         *handlers.RelayHandler
	UserOpHandler        *handlers.UserOpHandler
	HealthHandler        *handlers.HealthHandler
	AdminAuthHandler     *handlers.AdminAuthHandler
	AdminSecurityHandler *handlers.AdminSecurityHandler
	WebSocketHandler     *handlers.WebSocketHandler
}

// Global service container instance
var Container *ServiceContainer
var containerOnce sync.Once

// InitializeContainer builds the container once.
func InitializeContainer(logger *logrus.Logger) (*ServiceContainer, error) {
	var initErr error

	containerOnce.Do(func() {
		c := &ServiceContainer{Logger: logger}

		if err := c.init(); err != nil {
			initErr = err
			return
		}
		Container = c
	})

	if initErr != nil {
		return nil, initErr
	}
	return Container, nil
}

func (c *ServiceContainer) init() error {
	cfg := config.AppConfig

	// Database and repositories.
	db.InitDB()
	c.DB = db.DB
	c.VoucherRepo = repository.NewVoucherRepository(c.DB)
	c.SmartAccountRepo = repository.NewSmartAccountRepository(c.DB)
	c.UserOpRepo = repository.NewUserOperationRepository(c.DB)
	c.RelayedTxRepo = repository.NewRelayedTransactionRepository(c.DB)

	// RPC client. The first configured URL is the primary endpoint.
	if len(cfg.Network.RPCURLs) == 0 {
		return fmt.Errorf("no RPC URLs configured for network %s", cfg.Network.Name)
	}
	ethClient, err := ethclient.Dial(cfg.Network.RPCURLs[0])
	if err != nil {
		return fmt.Errorf("failed to connect to RPC %s: %w", cfg.Network.RPCURLs[0], err)
	}
	c.EthClient = ethClient
	log.Printf("⛓️ Connected to %s (chain %d)", cfg.Network.Name, cfg.Network.ChainID)

	// External clients.
	c.BundlerClient = clients.NewBundlerClient(cfg.Bundler)

	// NATS is optional; without it events are dropped.
	c.Publisher = events.NopPublisher{}
	if cfg.NATS.URL != "" {
		natsClient, err := clients.NewNATSClient(cfg.NATS)
		if err != nil {
			log.Printf("⚠️ NATS unavailable, events disabled: %v", err)
		} else {
			c.NATSClient = natsClient
			c.Publisher = natsClient
		}
	}

	// Security pipeline.
	c.Security = security.NewState(cfg, c.Logger)
	c.Security.Abuse.SetBlockHook(func(identity, namespace string, pattern security.Pattern, duration time.Duration) {
		metrics.IdentityBlocksTotal.WithLabelValues(string(pattern)).Inc()
		if err := c.Publisher.PublishIdentityBlocked(events.IdentityBlockedEvent{
			Identity:        identity,
			Namespace:       namespace,
			Pattern:         string(pattern),
			DurationSeconds: int64(duration.Seconds()),
			Timestamp:       time.Now().UTC(),
		}); err != nil {
			log.Printf("⚠️ Failed to publish block event: %v", err)
		}
	})

	// Domain services.
	c.RelayService, err = services.NewRelayService(cfg, ethClient, c.RelayedTxRepo, c.VoucherRepo, c.Publisher, c.Security.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize relay service: %w", err)
	}

	c.MinterService, err = services.NewMinterService(cfg, c.RelayService)
	if err != nil {
		return fmt.Errorf("failed to initialize minter service: %w", err)
	}

	c.TokenReader, err = services.NewTokenReader(cfg, ethClient)
	if err != nil {
		return fmt.Errorf("failed to initialize token reader: %w", err)
	}

	c.PushService = services.NewPushService()
	c.UserOpService = services.NewUserOpService(cfg, c.BundlerClient, c.Security.Allowlist,
		c.Security.Abuse, c.SmartAccountRepo, c.UserOpRepo, c.Publisher, c.PushService, c.Security.Logger)
	c.HealthService = services.NewHealthService(ethClient, c.BundlerClient, c.DB, c.TokenReader,
		c.RelayService, c.Security.Logger)
	c.MonitoringService = services.NewMonitoringService(c.DB, ethClient, c.RelayService, c.Security)

	// Middleware.
	c.AuthMiddleware = middleware.NewAuthMiddleware(c.Logger)
	c.AdminAuthMiddleware = middleware.NewAdminAuthMiddleware(c.Logger)
	c.SecurityMiddleware = middleware.NewSecurityMiddleware(c.Security, c.Logger)
	c.LocalhostOnly = middleware.NewLocalhostOnly(c.Logger, cfg.Admin.AllowedIPs)

	// Handlers.
	c.AuthHandler = handlers.NewAuthHandler(c.SmartAccountRepo, c.Logger)
	c.RelayHandler = handlers.NewRelayHandler(c.RelayService, c.MinterService, c.TokenReader,
		c.VoucherRepo, c.Security, c.Logger)
	c.UserOpHandler = handlers.NewUserOpHandler(c.UserOpService, c.Security, c.Logger)
	c.HealthHandler = handlers.NewHealthHandler(c.HealthService, c.Security)
	c.AdminAuthHandler = handlers.NewAdminAuthHandler(c.Logger)
	c.AdminSecurityHandler = handlers.NewAdminSecurityHandler(c.Security, c.Logger)
	c.WebSocketHandler = handlers.NewWebSocketHandler(c.PushService, c.Logger)

	return nil
}

// Start launches background workers.
func (c *ServiceContainer) Start() {
	c.Security.Start()
	c.MonitoringService.Start()
}

// Cleanup stops background workers and closes connections.
func (c *ServiceContainer) Cleanup() {
	log.Println("🧹 Cleaning up services...")

	c.MonitoringService.Stop()
	c.Security.Stop()

	if c.NATSClient != nil {
		c.NATSClient.Close()
	}
	if c.EthClient != nil {
		c.EthClient.Close()
	}
	if c.DB != nil {
		if sqlDB, err := c.DB.DB(); err == nil {
			sqlDB.Close()
		}
	}

	log.Println("✅ Cleanup complete")
}
