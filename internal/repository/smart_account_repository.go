package repository

import (
	"context"
	"errors"
	"strings"

	"relay-backend/internal/models"

	"gorm.io/gorm"
)

// SmartAccountRepository defines the interface for SmartAccount data access
type SmartAccountRepository interface {
	Link(ctx context.Context, userID, aaAddress string) (*models.SmartAccount, error)
	Unlink(ctx context.Context, userID, aaAddress string) error
	FindByUser(ctx context.Context, userID string) ([]*models.SmartAccount, error)
	GetByAddress(ctx context.Context, aaAddress string) (*models.SmartAccount, error)
	IsOwnedBy(ctx context.Context, userID, aaAddress string) (bool, error)
}

type smartAccountRepository struct {
	db *gorm.DB
}

// NewSmartAccountRepository creates a new SmartAccountRepository instance
func NewSmartAccountRepository(db *gorm.DB) SmartAccountRepository {
	return &smartAccountRepository{db: db}
}

func (r *smartAccountRepository) Link(ctx context.Context, userID, aaAddress string) (*models.SmartAccount, error) {
	account := &models.SmartAccount{
		UserID:    userID,
		AAAddress: strings.ToLower(aaAddress),
	}
	if err := r.db.WithContext(ctx).Create(account).Error; err != nil {
		return nil, err
	}
	return account, nil
}

func (r *smartAccountRepository) Unlink(ctx context.Context, userID, aaAddress string) error {
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND aa_address = ?", userID, strings.ToLower(aaAddress)).
		Delete(&models.SmartAccount{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *smartAccountRepository) FindByUser(ctx context.Context, userID string) ([]*models.SmartAccount, error) {
	var accounts []*models.SmartAccount
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *smartAccountRepository) GetByAddress(ctx context.Context, aaAddress string) (*models.SmartAccount, error) {
	var account models.SmartAccount
	err := r.db.WithContext(ctx).
		Where("aa_address = ?", strings.ToLower(aaAddress)).
		First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *smartAccountRepository) IsOwnedBy(ctx context.Context, userID, aaAddress string) (bool, error) {
	account, err := r.GetByAddress(ctx, aaAddress)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return account.UserID == userID, nil
}
