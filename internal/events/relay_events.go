package events

import "time"

// Subjects for published relay events.
const (
	SubjectTransactionSubmitted = "relay.tx.submitted"
	SubjectUserOpStatusChanged  = "relay.userop.status"
	SubjectIdentityBlocked      = "relay.security.blocked"
)

// TransactionSubmittedEvent is published after a relayed transaction is
// broadcast.
type TransactionSubmittedEvent struct {
	TxHash    string    `json:"tx_hash"`
	Kind      string    `json:"kind"`
	To        string    `json:"to"`
	AmountWei string    `json:"amount_wei"`
	Nonce     uint64    `json:"nonce"`
	ChainID   int64     `json:"chain_id"`
	Timestamp time.Time `json:"timestamp"`
}

// UserOpStatusEvent is published whenever a user operation changes status.
type UserOpStatusEvent struct {
	UserOpHash       string    `json:"user_op_hash"`
	Status           string    `json:"status"`
	EntryPointTxHash string    `json:"entry_point_tx_hash,omitempty"`
	RevertReason     string    `json:"revert_reason,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// IdentityBlockedEvent is published when the abuse detector blocks an
// identity.
type IdentityBlockedEvent struct {
	Identity        string    `json:"identity"`
	Namespace       string    `json:"namespace"`
	Pattern         string    `json:"pattern"`
	DurationSeconds int64     `json:"duration_seconds"`
	Timestamp       time.Time `json:"timestamp"`
}

// Publisher publishes relay lifecycle events. Implementations must be safe
// for concurrent use.
type Publisher interface {
	PublishTransactionSubmitted(evt TransactionSubmittedEvent) error
	PublishUserOpStatus(evt UserOpStatusEvent) error
	PublishIdentityBlocked(evt IdentityBlockedEvent) error
}

// NopPublisher drops every event. Used when NATS is not configured.
type NopPublisher struct{}

func (NopPublisher) PublishTransactionSubmitted(TransactionSubmittedEvent) error { return nil }
func (NopPublisher) PublishUserOpStatus(UserOpStatusEvent) error                 { return nil }
func (NopPublisher) PublishIdentityBlocked(IdentityBlockedEvent) error           { return nil }
