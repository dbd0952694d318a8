package services

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"relay-backend/internal/config"
	"relay-backend/internal/events"
	"relay-backend/internal/metrics"
	"relay-backend/internal/models"
	"relay-backend/internal/repository"
	"relay-backend/internal/security"
)

// ChainBackend is the subset of ethclient.Client the services use. Tests
// substitute a stub implementation.
type ChainBackend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// TxError carries HTTP-facing classification for a failed submission.
type TxError struct {
	HTTPStatus int
	Code       string
	Retryable  bool
	Err        error
}

func (e *TxError) Error() string {
	return e.Err.Error()
}

func (e *TxError) Unwrap() error {
	return e.Err
}

// ClassifyTxError maps an RPC broadcast error to an HTTP status.
func ClassifyTxError(err error) *TxError {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "insufficient funds"):
		return &TxError{HTTPStatus: 503, Code: "INSUFFICIENT_FUNDS", Retryable: false, Err: err}
	case strings.Contains(msg, "nonce too low"), strings.Contains(msg, "replacement transaction underpriced"):
		return &TxError{HTTPStatus: 503, Code: "NONCE_CONFLICT", Retryable: true, Err: err}
	default:
		return &TxError{HTTPStatus: 500, Code: "TX_FAILED", Retryable: false, Err: err}
	}
}

// mustType is a helper function to create an abi.Type from a string
func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(fmt.Sprintf("invalid type: %s: %v", t, err))
	}
	return typ
}

var (
	addressType = mustType("address")
	uint256Type = mustType("uint256")
	uint8Type   = mustType("uint8")
	stringType  = mustType("string")
	bytes32Type = mustType("bytes32")
	bytesType   = mustType("bytes")
)

// Token and contract function selectors used by the relay flows. The
// approve/redeem selectors live in the security package because the
// allowlist checks them too.
const (
	selectorTokenMint   = "0x40c10f19" // mint(address,uint256)
	selectorBadgeMint   = "0x156e29f6" // mint(address,uint256,uint256)
	selectorTokenPermit = "0xd505accf" // permit(address,address,uint256,uint256,uint8,bytes32,bytes32)
)

// packCall encodes a contract call as selector + ABI-packed arguments.
func packCall(selector string, args abi.Arguments, values ...interface{}) ([]byte, error) {
	encoded, err := args.Pack(values...)
	if err != nil {
		return nil, fmt.Errorf("failed to encode calldata: %w", err)
	}
	return append(common.FromHex(selector), encoded...), nil
}

// SubmittedTx describes a broadcast transaction.
type SubmittedTx struct {
	Hash     string
	Nonce    uint64
	GasLimit uint64
	GasPrice *big.Int
}

// txStep is one transaction inside a serialized flow.
type txStep struct {
	kind      string
	to        common.Address
	data      []byte
	recipient string
	amountWei *big.Int
}

// RelayService signs and broadcasts owner-paid transactions. All submissions
// for the relayer key go through a single mutex so concurrent requests get
// strictly increasing nonces.
type RelayService struct {
	backend     ChainBackend
	chainID     *big.Int
	token       common.Address
	redemption  common.Address
	achievement common.Address

	relayerKey  *ecdsa.PrivateKey
	relayerAddr common.Address

	explorerTxURL string

	txRepo      repository.RelayedTransactionRepository
	voucherRepo repository.VoucherRepository
	publisher   events.Publisher
	secLog      *security.Logger

	nonceMu   sync.Mutex
	unhealthy atomic.Bool
}

// NewRelayService parses the relayer key and wires the submission path.
func NewRelayService(
	cfg *config.Config,
	backend ChainBackend,
	txRepo repository.RelayedTransactionRepository,
	voucherRepo repository.VoucherRepository,
	publisher events.Publisher,
	secLog *security.Logger,
) (*RelayService, error) {
	keyHex := strings.TrimPrefix(cfg.Network.RelayerPrivateKey, "0x")
	if keyHex == "" {
		return nil, fmt.Errorf("relayer private key is not configured")
	}

	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid relayer private key: %w", err)
	}

	svc := &RelayService{
		backend:       backend,
		chainID:       big.NewInt(cfg.Network.ChainID),
		token:         common.HexToAddress(cfg.Network.TokenAddress),
		redemption:    common.HexToAddress(cfg.Network.RedemptionAddress),
		achievement:   common.HexToAddress(cfg.Network.AchievementAddress),
		relayerKey:    key,
		relayerAddr:   crypto.PubkeyToAddress(key.PublicKey),
		explorerTxURL: cfg.Network.ExplorerTxURL,
		txRepo:        txRepo,
		voucherRepo:   voucherRepo,
		publisher:     publisher,
		secLog:        secLog,
	}

	log.Printf("🔑 Relayer address: %s", svc.relayerAddr.Hex())
	return svc, nil
}

// RelayerAddress returns the address the relay signs with.
func (s *RelayService) RelayerAddress() common.Address {
	return s.relayerAddr
}

// Healthy reports whether the relayer wallet is still able to pay for gas.
func (s *RelayService) Healthy() bool {
	return !s.unhealthy.Load()
}

// ExplorerURL builds the block explorer link for a transaction hash.
func (s *RelayService) ExplorerURL(txHash string) string {
	return strings.Replace(s.explorerTxURL, "{hash}", txHash, 1)
}

// Mint relays a token mint to the recipient.
func (s *RelayService) Mint(ctx context.Context, to string, amountWei *big.Int) (*SubmittedTx, error) {
	data, err := packCall(selectorTokenMint,
		abi.Arguments{{Type: addressType}, {Type: uint256Type}},
		common.HexToAddress(to), amountWei)
	if err != nil {
		return nil, err
	}

	txs, err := s.submitSerial(ctx, []txStep{{
		kind:      models.RelayedTxKindMint,
		to:        s.token,
		data:      data,
		recipient: to,
		amountWei: amountWei,
	}})
	if err != nil {
		return nil, err
	}
	return txs[0], nil
}

// Award relays a badge mint on the achievement contract.
func (s *RelayService) Award(ctx context.Context, to string, badgeID, amount *big.Int) (*SubmittedTx, error) {
	data, err := packCall(selectorBadgeMint,
		abi.Arguments{{Type: addressType}, {Type: uint256Type}, {Type: uint256Type}},
		common.HexToAddress(to), badgeID, amount)
	if err != nil {
		return nil, err
	}

	txs, err := s.submitSerial(ctx, []txStep{{
		kind:      models.RelayedTxKindAward,
		to:        s.achievement,
		data:      data,
		recipient: to,
		amountWei: amount,
	}})
	if err != nil {
		return nil, err
	}
	return txs[0], nil
}

// Redeem runs the two-phase approve then redeem flow and issues a voucher.
// Both transactions are broadcast under one lock acquisition at consecutive
// nonces so a concurrent request cannot wedge between them.
func (s *RelayService) Redeem(ctx context.Context, from string, amountWei *big.Int, rewardID string) (approveTx, redeemTx *SubmittedTx, voucherCode string, err error) {
	approveData, err := packCall(security.SelectorApprove,
		abi.Arguments{{Type: addressType}, {Type: uint256Type}},
		s.redemption, amountWei)
	if err != nil {
		return nil, nil, "", err
	}

	redeemData, err := packCall(security.SelectorRedeem,
		abi.Arguments{{Type: stringType}, {Type: uint256Type}},
		rewardID, amountWei)
	if err != nil {
		return nil, nil, "", err
	}

	txs, err := s.submitSerial(ctx, []txStep{
		{kind: models.RelayedTxKindApprove, to: s.token, data: approveData, recipient: from, amountWei: amountWei},
		{kind: models.RelayedTxKindRedeem, to: s.redemption, data: redeemData, recipient: from, amountWei: amountWei},
	})
	if err != nil {
		return nil, nil, "", err
	}

	code := s.saveVoucher(ctx, from, rewardID, amountWei, txs[0].Hash, txs[1].Hash,
		fmt.Sprintf("Redeemed %s tokens for %s", security.FormatAmount(amountWei), rewardID))
	return txs[0], txs[1], code, nil
}

// RedeemWithPermit runs the EIP-2612 permit then redeem flow. The user signed
// the permit off-chain; the relayer pays for both transactions.
func (s *RelayService) RedeemWithPermit(ctx context.Context, owner string, amountWei *big.Int, rewardID string, deadline *big.Int, v uint8, r, sig32 [32]byte) (permitTx, redeemTx *SubmittedTx, voucherCode string, err error) {
	permitData, err := packCall(selectorTokenPermit,
		abi.Arguments{
			{Type: addressType}, {Type: addressType}, {Type: uint256Type},
			{Type: uint256Type}, {Type: uint8Type}, {Type: bytes32Type}, {Type: bytes32Type},
		},
		common.HexToAddress(owner), s.redemption, amountWei, deadline, v, r, sig32)
	if err != nil {
		return nil, nil, "", err
	}

	redeemData, err := packCall(security.SelectorRedeem,
		abi.Arguments{{Type: stringType}, {Type: uint256Type}},
		rewardID, amountWei)
	if err != nil {
		return nil, nil, "", err
	}

	txs, err := s.submitSerial(ctx, []txStep{
		{kind: models.RelayedTxKindPermit, to: s.token, data: permitData, recipient: owner, amountWei: amountWei},
		{kind: models.RelayedTxKindRedeem, to: s.redemption, data: redeemData, recipient: owner, amountWei: amountWei},
	})
	if err != nil {
		return nil, nil, "", err
	}

	code := s.saveVoucher(ctx, owner, rewardID, amountWei, txs[0].Hash, txs[1].Hash, "EIP-2612 permit flow")
	return txs[0], txs[1], code, nil
}

// SubmitCall broadcasts a single prepared contract call. The minter service
// uses this for mintWithSig.
func (s *RelayService) SubmitCall(ctx context.Context, kind string, to common.Address, data []byte, recipient string, amountWei *big.Int) (*SubmittedTx, error) {
	txs, err := s.submitSerial(ctx, []txStep{{
		kind:      kind,
		to:        to,
		data:      data,
		recipient: recipient,
		amountWei: amountWei,
	}})
	if err != nil {
		return nil, err
	}
	return txs[0], nil
}

// submitSerial broadcasts every step at consecutive nonces under the signer
// lock. The pending nonce is read once; later steps use n0+i without
// re-reading, since the earlier steps are not confirmed yet.
func (s *RelayService) submitSerial(ctx context.Context, steps []txStep) ([]*SubmittedTx, error) {
	s.nonceMu.Lock()
	defer s.nonceMu.Unlock()

	started := time.Now()

	n0, err := s.backend.PendingNonceAt(ctx, s.relayerAddr)
	if err != nil {
		return nil, &TxError{HTTPStatus: 503, Code: "RPC_UNAVAILABLE", Retryable: true,
			Err: fmt.Errorf("failed to read pending nonce: %w", err)}
	}

	gasPrice, err := s.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, &TxError{HTTPStatus: 503, Code: "RPC_UNAVAILABLE", Retryable: true,
			Err: fmt.Errorf("failed to fetch gas price: %w", err)}
	}

	results := make([]*SubmittedTx, 0, len(steps))
	for i, step := range steps {
		nonce := n0 + uint64(i)

		gas, err := s.backend.EstimateGas(ctx, ethereum.CallMsg{
			From: s.relayerAddr,
			To:   &step.to,
			Data: step.data,
		})
		if err != nil {
			log.Printf("❌ Gas estimation failed for %s: %v", step.kind, err)
			metrics.RelayTransactionsTotal.WithLabelValues(step.kind, "failed").Inc()
			return nil, &TxError{HTTPStatus: 400, Code: "GAS_ESTIMATION_FAILED", Retryable: false,
				Err: fmt.Errorf("gas estimation failed: %w", err)}
		}
		gas = gas * 110 / 100

		tx := types.NewTransaction(nonce, step.to, big.NewInt(0), gas, gasPrice, step.data)
		signed, err := types.SignTx(tx, types.NewEIP155Signer(s.chainID), s.relayerKey)
		if err != nil {
			return nil, &TxError{HTTPStatus: 500, Code: "SIGNING_FAILED", Retryable: false,
				Err: fmt.Errorf("failed to sign transaction: %w", err)}
		}

		if err := s.backend.SendTransaction(ctx, signed); err != nil {
			txErr := ClassifyTxError(err)
			if txErr.Code == "INSUFFICIENT_FUNDS" {
				s.unhealthy.Store(true)
				log.Printf("🚨 Relayer wallet out of funds: %s", s.relayerAddr.Hex())
			}
			log.Printf("❌ Broadcast failed for %s (nonce %d): %v", step.kind, nonce, err)
			metrics.RelayTransactionsTotal.WithLabelValues(step.kind, "failed").Inc()
			return nil, txErr
		}

		hash := signed.Hash().Hex()
		log.Printf("📤 %s submitted: %s (nonce=%d, gas=%d)", step.kind, hash, nonce, gas)

		s.secLog.Event("transaction_submitted", logrus.Fields{
			"kind":      step.kind,
			"tx_hash":   hash,
			"recipient": security.SanitizeAddress(step.recipient),
			"amount":    security.FormatAmount(step.amountWei),
			"nonce":     nonce,
		})

		s.recordTx(ctx, step, hash, nonce, gas, gasPrice)
		metrics.RelayTransactionsTotal.WithLabelValues(step.kind, "submitted").Inc()

		results = append(results, &SubmittedTx{
			Hash:     hash,
			Nonce:    nonce,
			GasLimit: gas,
			GasPrice: gasPrice,
		})
	}

	for _, step := range steps {
		metrics.RelayTransactionDuration.WithLabelValues(step.kind).Observe(time.Since(started).Seconds())
	}
	return results, nil
}

// recordTx persists the broadcast and publishes the lifecycle event. Neither
// failure aborts the relay since the transaction is already on the wire.
func (s *RelayService) recordTx(ctx context.Context, step txStep, hash string, nonce, gas uint64, gasPrice *big.Int) {
	record := &models.RelayedTransaction{
		TxHash:    hash,
		Kind:      step.kind,
		ToAddress: step.recipient,
		AmountWei: step.amountWei.String(),
		Nonce:     nonce,
		GasLimit:  gas,
		GasPrice:  gasPrice.String(),
		Status:    models.RelayedTxStatusSubmitted,
	}
	if err := s.txRepo.Create(ctx, record); err != nil {
		log.Printf("⚠️ Failed to persist relayed transaction %s: %v", hash, err)
	}

	if err := s.publisher.PublishTransactionSubmitted(events.TransactionSubmittedEvent{
		TxHash:    hash,
		Kind:      step.kind,
		To:        step.recipient,
		AmountWei: step.amountWei.String(),
		Nonce:     nonce,
		ChainID:   s.chainID.Int64(),
		Timestamp: time.Now().UTC(),
	}); err != nil {
		log.Printf("⚠️ Failed to publish transaction event: %v", err)
	}
}

// newVoucherCode generates a voucher code like VCH-1A2B3C4D.
func newVoucherCode() string {
	return "VCH-" + strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
}

func (s *RelayService) saveVoucher(ctx context.Context, address, rewardID string, amountWei *big.Int, approveTx, redeemTx, note string) string {
	code := newVoucherCode()
	voucher := &models.Voucher{
		Code:      code,
		Address:   address,
		RewardID:  rewardID,
		AmountWei: amountWei.String(),
		Status:    models.VoucherStatusIssued,
		ApproveTx: approveTx,
		RedeemTx:  redeemTx,
		Note:      note,
	}
	if err := s.voucherRepo.Create(ctx, voucher); err != nil {
		log.Printf("⚠️ Failed to save voucher %s: %v", code, err)
		return code
	}

	log.Printf("🎟️ Voucher saved: %s (%s)", code, rewardID)
	return code
}
