package repository

import (
	"context"

	"relay-backend/internal/models"

	"gorm.io/gorm"
)

// VoucherRepository defines the interface for Voucher data access
type VoucherRepository interface {
	Create(ctx context.Context, voucher *models.Voucher) error
	GetByCode(ctx context.Context, code string) (*models.Voucher, error)
	FindByAddress(ctx context.Context, address string, limit int) ([]*models.Voucher, error)
	MarkRedeemed(ctx context.Context, code, approveTx, redeemTx string) error
	UpdateStatus(ctx context.Context, code, status, note string) error
}

type voucherRepository struct {
	db *gorm.DB
}

// NewVoucherRepository creates a new VoucherRepository instance
func NewVoucherRepository(db *gorm.DB) VoucherRepository {
	return &voucherRepository{db: db}
}

func (r *voucherRepository) Create(ctx context.Context, voucher *models.Voucher) error {
	return r.db.WithContext(ctx).Create(voucher).Error
}

func (r *voucherRepository) GetByCode(ctx context.Context, code string) (*models.Voucher, error) {
	var voucher models.Voucher
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&voucher).Error
	if err != nil {
		return nil, err
	}
	return &voucher, nil
}

func (r *voucherRepository) FindByAddress(ctx context.Context, address string, limit int) ([]*models.Voucher, error) {
	var vouchers []*models.Voucher
	err := r.db.WithContext(ctx).
		Where("address = ?", address).
		Order("created_at DESC").
		Limit(limit).
		Find(&vouchers).Error
	if err != nil {
		return nil, err
	}
	return vouchers, nil
}

func (r *voucherRepository) MarkRedeemed(ctx context.Context, code, approveTx, redeemTx string) error {
	return r.db.WithContext(ctx).
		Model(&models.Voucher{}).
		Where("code = ?", code).
		Updates(map[string]interface{}{
			"status":     models.VoucherStatusRedeemed,
			"approve_tx": approveTx,
			"redeem_tx":  redeemTx,
		}).Error
}

func (r *voucherRepository) UpdateStatus(ctx context.Context, code, status, note string) error {
	updates := map[string]interface{}{"status": status}
	if note != "" {
		updates["note"] = note
	}
	return r.db.WithContext(ctx).
		Model(&models.Voucher{}).
		Where("code = ?", code).
		Updates(updates).Error
}
