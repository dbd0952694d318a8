package repository

import (
	"context"
	"errors"
	"time"

	"relay-backend/internal/models"

	"gorm.io/gorm"
)

// UserOperationRepository defines the interface for UserOperation data access
type UserOperationRepository interface {
	Create(ctx context.Context, op *models.UserOperation) error
	GetByHash(ctx context.Context, userOpHash string) (*models.UserOperation, error)
	UpdateStatus(ctx context.Context, userOpHash, status, entryPointTxHash, revertReason string) error
	FindByUser(ctx context.Context, userID string, limit int) ([]*models.UserOperation, error)
	FindPendingOlderThan(ctx context.Context, age time.Duration, limit int) ([]*models.UserOperation, error)
}

type userOperationRepository struct {
	db *gorm.DB
}

// NewUserOperationRepository creates a new UserOperationRepository instance
func NewUserOperationRepository(db *gorm.DB) UserOperationRepository {
	return &userOperationRepository{db: db}
}

func (r *userOperationRepository) Create(ctx context.Context, op *models.UserOperation) error {
	return r.db.WithContext(ctx).Create(op).Error
}

func (r *userOperationRepository) GetByHash(ctx context.Context, userOpHash string) (*models.UserOperation, error) {
	var op models.UserOperation
	err := r.db.WithContext(ctx).Where("user_op_hash = ?", userOpHash).First(&op).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &op, nil
}

func (r *userOperationRepository) UpdateStatus(ctx context.Context, userOpHash, status, entryPointTxHash, revertReason string) error {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}
	if entryPointTxHash != "" {
		updates["entry_point_tx_hash"] = entryPointTxHash
	}
	if revertReason != "" {
		updates["revert_reason"] = revertReason
	}
	return r.db.WithContext(ctx).
		Model(&models.UserOperation{}).
		Where("user_op_hash = ?", userOpHash).
		Updates(updates).Error
}

func (r *userOperationRepository) FindByUser(ctx context.Context, userID string, limit int) ([]*models.UserOperation, error) {
	var ops []*models.UserOperation
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&ops).Error
	if err != nil {
		return nil, err
	}
	return ops, nil
}

func (r *userOperationRepository) FindPendingOlderThan(ctx context.Context, age time.Duration, limit int) ([]*models.UserOperation, error) {
	var ops []*models.UserOperation
	cutoff := time.Now().Add(-age)
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.UserOpStatusPending, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&ops).Error
	if err != nil {
		return nil, err
	}
	return ops, nil
}
