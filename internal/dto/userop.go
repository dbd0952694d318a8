package dto

// Call is a single target call inside a user operation batch.
// Value is a decimal string in wei; empty means zero.
type Call struct {
	To    string `json:"to" binding:"required"`
	Data  string `json:"data" binding:"required"`
	Value string `json:"value"`
}

// IntentParams parameters of a high-level intent
type IntentParams struct {
	To       string `json:"to,omitempty"`
	Spender  string `json:"spender,omitempty"`
	Amount   string `json:"amount" binding:"required"`
	RewardID string `json:"rewardId,omitempty"`
}

// Intent is a high-level action the backend compiles into calls against the
// configured contracts.
type Intent struct {
	Type   string       `json:"type" binding:"required"` // transfer, approve, redeem
	Params IntentParams `json:"params" binding:"required"`
}

// SendUserOpRequest submits a user operation. Exactly one of Intent or Calls
// must be set; the request is rejected when both or neither are present.
// ChainID zero means the configured network.
type SendUserOpRequest struct {
	AAAddress      string  `json:"aa_address" binding:"required"`
	Intent         *Intent `json:"intent,omitempty"`
	Calls          []Call  `json:"calls,omitempty"`
	IdempotencyKey string  `json:"idempotency_key,omitempty"`
	ChainID        int64   `json:"chain_id,omitempty"`
}

// SendUserOpResponse user operation submission response
type SendUserOpResponse struct {
	Success    bool   `json:"success"`
	UserOpHash string `json:"user_op_hash,omitempty"`
	Status     string `json:"status,omitempty"`
	Idempotent bool   `json:"idempotent,omitempty"`
	Error      string `json:"error,omitempty"`
	Message    string `json:"message,omitempty"`
	Code       string `json:"code,omitempty"`
}

// UserOpStatusResponse user operation status response
type UserOpStatusResponse struct {
	Success          bool   `json:"success"`
	UserOpHash       string `json:"user_op_hash"`
	Status           string `json:"status"`
	EntryPointTxHash string `json:"entry_point_tx_hash,omitempty"`
	RevertReason     string `json:"revert_reason,omitempty"`
	Cached           bool   `json:"cached,omitempty"`
}
