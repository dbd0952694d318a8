package repository

import (
	"context"
	"time"

	"relay-backend/internal/models"

	"gorm.io/gorm"
)

// RelayedTransactionRepository defines the interface for RelayedTransaction data access
type RelayedTransactionRepository interface {
	Create(ctx context.Context, tx *models.RelayedTransaction) error
	GetByHash(ctx context.Context, txHash string) (*models.RelayedTransaction, error)
	UpdateStatus(ctx context.Context, txHash, status string) error
	FindRecent(ctx context.Context, limit int) ([]*models.RelayedTransaction, error)
}

type relayedTransactionRepository struct {
	db *gorm.DB
}

// NewRelayedTransactionRepository creates a new RelayedTransactionRepository instance
func NewRelayedTransactionRepository(db *gorm.DB) RelayedTransactionRepository {
	return &relayedTransactionRepository{db: db}
}

func (r *relayedTransactionRepository) Create(ctx context.Context, tx *models.RelayedTransaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

func (r *relayedTransactionRepository) GetByHash(ctx context.Context, txHash string) (*models.RelayedTransaction, error) {
	var tx models.RelayedTransaction
	err := r.db.WithContext(ctx).Where("tx_hash = ?", txHash).First(&tx).Error
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *relayedTransactionRepository) UpdateStatus(ctx context.Context, txHash, status string) error {
	return r.db.WithContext(ctx).
		Model(&models.RelayedTransaction{}).
		Where("tx_hash = ?", txHash).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		}).Error
}

func (r *relayedTransactionRepository) FindRecent(ctx context.Context, limit int) ([]*models.RelayedTransaction, error) {
	var txs []*models.RelayedTransaction
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&txs).Error
	if err != nil {
		return nil, err
	}
	return txs, nil
}
