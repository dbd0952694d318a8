package models

import "time"

// Voucher statuses
const (
	VoucherStatusIssued   = "issued"
	VoucherStatusRedeemed = "redeemed"
	VoucherStatusFailed   = "failed"
)

// Voucher is a reward voucher minted through the award endpoint and consumed
// by the redeem endpoints.
type Voucher struct {
	Code      string `json:"code" gorm:"primaryKey;size:64"`
	Address   string `json:"address" gorm:"size:42;index"`
	RewardID  string `json:"reward_id" gorm:"size:128;index"`
	AmountWei string `json:"amount_wei" gorm:"size:78"`
	Status    string `json:"status" gorm:"size:16;default:issued"`
	ApproveTx string `json:"approve_tx" gorm:"size:66"`
	RedeemTx  string `json:"redeem_tx" gorm:"size:66"`
	Note      string `json:"note" gorm:"type:text"`
	CreatedAt int64  `json:"created_at" gorm:"autoCreateTime"`
}

func (Voucher) TableName() string {
	return "vouchers"
}

// SmartAccount links an authenticated user to the smart account address they
// are allowed to operate through /chain/aa/send.
type SmartAccount struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID    string    `json:"user_id" gorm:"size:128;index"`
	AAAddress string    `json:"aa_address" gorm:"size:42;uniqueIndex"`
	CreatedAt time.Time `json:"created_at"`
}

func (SmartAccount) TableName() string {
	return "smart_accounts"
}

// UserOperation statuses. Success, failed and reverted are terminal.
const (
	UserOpStatusPending  = "pending"
	UserOpStatusSuccess  = "success"
	UserOpStatusFailed   = "failed"
	UserOpStatusReverted = "reverted"
)

// UserOperation is a submitted ERC-4337 user operation.
type UserOperation struct {
	ID               uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	UserOpHash       string    `json:"user_op_hash" gorm:"size:66;uniqueIndex"`
	UserID           string    `json:"user_id" gorm:"size:128;index"`
	AAAddress        string    `json:"aa_address" gorm:"size:42;index"`
	Status           string    `json:"status" gorm:"size:16;default:pending;index"`
	EntryPointTxHash string    `json:"entry_point_tx_hash" gorm:"size:66"`
	RevertReason     string    `json:"revert_reason" gorm:"type:text"`
	CallsData        string    `json:"calls_data" gorm:"type:text"` // JSON-encoded call batch
	ChainID          int64     `json:"chain_id"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (UserOperation) TableName() string {
	return "user_operations"
}

// IsTerminalUserOpStatus reports whether a status will never change again.
func IsTerminalUserOpStatus(status string) bool {
	switch status {
	case UserOpStatusSuccess, UserOpStatusFailed, UserOpStatusReverted:
		return true
	}
	return false
}

// RelayedTransaction statuses
const (
	RelayedTxStatusSubmitted = "submitted"
	RelayedTxStatusConfirmed = "confirmed"
	RelayedTxStatusFailed    = "failed"
)

// Relayed transaction kinds
const (
	RelayedTxKindMint       = "mint"
	RelayedTxKindAward      = "award"
	RelayedTxKindApprove    = "approve"
	RelayedTxKindRedeem     = "redeem"
	RelayedTxKindPermit     = "permit"
	RelayedTxKindMinterMint = "minter_mint"
)

// RelayedTransaction records every transaction the relayer broadcast.
type RelayedTransaction struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	TxHash    string    `json:"tx_hash" gorm:"size:66;uniqueIndex"`
	Kind      string    `json:"kind" gorm:"size:24;index"`
	ToAddress string    `json:"to_address" gorm:"size:42"`
	AmountWei string    `json:"amount_wei" gorm:"size:78"`
	Nonce     uint64    `json:"nonce"`
	GasLimit  uint64    `json:"gas_limit"`
	GasPrice  string    `json:"gas_price" gorm:"size:32"`
	Status    string    `json:"status" gorm:"size:16;default:submitted;index"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (RelayedTransaction) TableName() string {
	return "relayed_transactions"
}
