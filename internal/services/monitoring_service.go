package services

import (
	"context"
	"log"
	"math/big"
	"sync"
	"time"

	"gorm.io/gorm"

	"relay-backend/internal/metrics"
	"relay-backend/internal/security"
)

// MonitoringService periodically refreshes Prometheus gauges that are not
// updated inline: database pool stats, relayer balance and security sizes.
type MonitoringService struct {
	db       *gorm.DB
	backend  ChainBackend
	relay    *RelayService
	sec      *security.State
	stopCh   chan struct{}
	wg       sync.WaitGroup
	interval time.Duration
}

func NewMonitoringService(db *gorm.DB, backend ChainBackend, relay *RelayService, sec *security.State) *MonitoringService {
	return &MonitoringService{
		db:       db,
		backend:  backend,
		relay:    relay,
		sec:      sec,
		stopCh:   make(chan struct{}),
		interval: 30 * time.Second,
	}
}

// Start launches the monitoring loops.
func (m *MonitoringService) Start() {
	log.Println("🚀 Starting monitoring service...")

	m.wg.Add(1)
	go m.monitorDatabaseConnection()

	m.wg.Add(1)
	go m.monitorRelayerBalance()

	m.wg.Add(1)
	go m.monitorSecurityState()

	log.Println("✅ Monitoring service started")
}

// Stop stops the monitoring loops.
func (m *MonitoringService) Stop() {
	log.Println("🛑 Stopping monitoring service...")
	close(m.stopCh)
	m.wg.Wait()
	log.Println("✅ Monitoring service stopped")
}

func (m *MonitoringService) monitorDatabaseConnection() {
	defer m.wg.Done()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			sqlDB, err := m.db.DB()
			if err != nil {
				continue
			}
			stats := sqlDB.Stats()
			metrics.DBConnectionsOpen.Set(float64(stats.OpenConnections))
			metrics.DBConnectionsInUse.Set(float64(stats.InUse))
			metrics.DBConnectionsIdle.Set(float64(stats.Idle))
		}
	}
}

func (m *MonitoringService) monitorRelayerBalance() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			balance, err := m.backend.BalanceAt(ctx, m.relay.RelayerAddress(), nil)
			cancel()
			if err != nil {
				log.Printf("⚠️ Relayer balance check failed: %v", err)
				continue
			}

			f, _ := new(big.Float).SetInt(balance).Float64()
			metrics.RelayerBalance.WithLabelValues(m.relay.RelayerAddress().Hex()).Set(f)
		}
	}
}

func (m *MonitoringService) monitorSecurityState() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			for namespace, count := range m.sec.Blocklist.Counts() {
				metrics.BlocklistSize.WithLabelValues(namespace).Set(float64(count))
			}
			metrics.IdempotencyEntries.Set(float64(m.sec.Idempotency.Size()))
		}
	}
}
