package dto

// MintRequest HMAC-signed mint request.
// Amount is a decimal string in wei. Sig covers "{to}|{amount}|{ts}".
type MintRequest struct {
	To     string `json:"to" binding:"required"`
	Amount string `json:"amount" binding:"required"`
	TS     int64  `json:"ts" binding:"required"`
	Sig    string `json:"sig" binding:"required"`
}

// AwardRequest HMAC-signed award request.
// Sig covers "{to}|{rewardId}|{amount}|{ts}".
type AwardRequest struct {
	To       string `json:"to" binding:"required"`
	RewardID string `json:"rewardId" binding:"required"`
	Amount   string `json:"amount" binding:"required"`
	TS       int64  `json:"ts" binding:"required"`
	Sig      string `json:"sig" binding:"required"`
}

// RedeemRequest HMAC-signed redeem request.
// Sig covers "{from}|{amount}|{rewardId}|{ts}".
type RedeemRequest struct {
	From     string `json:"from" binding:"required"`
	Amount   string `json:"amount" binding:"required"`
	RewardID string `json:"rewardId" binding:"required"`
	TS       int64  `json:"ts" binding:"required"`
	Sig      string `json:"sig" binding:"required"`
}

// RedeemPermitRequest redeem backed by an EIP-2612 permit signature from the
// token holder. The outer HMAC sig covers the same message as RedeemRequest.
type RedeemPermitRequest struct {
	From     string `json:"from" binding:"required"`
	Amount   string `json:"amount" binding:"required"`
	RewardID string `json:"rewardId" binding:"required"`
	Deadline int64  `json:"deadline" binding:"required"`
	V        uint8  `json:"v" binding:"required"`
	R        string `json:"r" binding:"required"`
	S        string `json:"s" binding:"required"`
	TS       int64  `json:"ts" binding:"required"`
	Sig      string `json:"sig" binding:"required"`
}

// MintViaMinterRequest HMAC-signed request relayed through the minter
// contract with an EIP-712 authorization. Sig covers "{to}|{amount}|{ts}".
type MintViaMinterRequest struct {
	To     string `json:"to" binding:"required"`
	Amount string `json:"amount" binding:"required"`
	TS     int64  `json:"ts" binding:"required"`
	Sig    string `json:"sig" binding:"required"`
}

// RelayResponse common response for relayed transactions
type RelayResponse struct {
	Success     bool   `json:"success"`
	TxHash      string `json:"tx_hash,omitempty"`
	ApproveTx   string `json:"approve_tx,omitempty"`
	RedeemTx    string `json:"redeem_tx,omitempty"`
	ExplorerURL string `json:"explorer,omitempty"`
	To          string `json:"to,omitempty"`
	Amount      string `json:"amount,omitempty"`
	GasPrice    string `json:"gas_price,omitempty"`
	Gas         uint64 `json:"gas,omitempty"`
	VoucherCode string `json:"voucher_code,omitempty"`
	ActionID    string `json:"action_id,omitempty"`
	Error       string `json:"error,omitempty"`
	Message     string `json:"message,omitempty"`
	Code        string `json:"code,omitempty"`
	Retryable   bool   `json:"retryable,omitempty"`
}

// BalanceResponse ERC-20 balance query response
type BalanceResponse struct {
	Success    bool   `json:"success"`
	Address    string `json:"address"`
	BalanceWei string `json:"balance_wei"`
	Decimals   uint8  `json:"decimals"`
}

// VoucherView voucher as returned by the listing endpoint
type VoucherView struct {
	Code      string `json:"code"`
	Address   string `json:"address"`
	RewardID  string `json:"reward_id"`
	AmountWei string `json:"amount_wei"`
	Status    string `json:"status"`
	ApproveTx string `json:"approve_tx,omitempty"`
	RedeemTx  string `json:"redeem_tx,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

// VouchersResponse voucher listing response
type VouchersResponse struct {
	Success  bool          `json:"success"`
	Address  string        `json:"address"`
	Count    int           `json:"count"`
	Vouchers []VoucherView `json:"vouchers"`
}
