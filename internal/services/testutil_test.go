package services

import (
	"context"
	"encoding/hex"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"relay-backend/internal/config"
	"relay-backend/internal/models"
	"relay-backend/internal/security"
)

// Well-known anvil/hardhat test keys, never funded on a real network.
const (
	testRelayerKey    = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testAuthorizerKey = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"

	testTokenAddr       = "0x1111111111111111111111111111111111111111"
	testRedemptionAddr  = "0x2222222222222222222222222222222222222222"
	testAchievementAddr = "0x3333333333333333333333333333333333333333"
	testMinterAddr      = "0x4444444444444444444444444444444444444444"
)

func testConfig() *config.Config {
	return &config.Config{
		Network: config.NetworkConfig{
			ChainID:              80002,
			TokenAddress:         testTokenAddr,
			RedemptionAddress:    testRedemptionAddr,
			AchievementAddress:   testAchievementAddr,
			MinterAddress:        testMinterAddr,
			RelayerPrivateKey:    testRelayerKey,
			AuthorizerPrivateKey: testAuthorizerKey,
			ExplorerTxURL:        "https://amoy.polygonscan.com/tx/{hash}",
		},
	}
}

func testSecLogger() *security.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return security.NewLogger(log)
}

// stubBackend satisfies ChainBackend with programmable failures and records
// every broadcast transaction.
type stubBackend struct {
	mu   sync.Mutex
	sent []*types.Transaction

	nonce    uint64
	gasPrice *big.Int

	nonceErr    error
	gasPriceErr error
	estimateErr error
	sendErr     error

	blockNumber    uint64
	blockNumberErr error
	blockTime      uint64
	headerErr      error
	balance        *big.Int
	callResult     []byte
	// callResults overrides callResult per 4-byte selector.
	callResults map[string][]byte
	callErr     error
}

func newStubBackend() *stubBackend {
	return &stubBackend{
		nonce:    7,
		gasPrice: big.NewInt(30_000_000_000),
		balance:  big.NewInt(1_000_000_000_000_000_000),
	}
}

func (b *stubBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.nonceErr != nil {
		return 0, b.nonceErr
	}
	return b.nonce, nil
}

func (b *stubBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	if b.gasPriceErr != nil {
		return nil, b.gasPriceErr
	}
	return b.gasPrice, nil
}

func (b *stubBackend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	if b.estimateErr != nil {
		return 0, b.estimateErr
	}
	return 100_000, nil
}

func (b *stubBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sendErr != nil {
		return b.sendErr
	}
	b.sent = append(b.sent, tx)
	// The next flow starts after these transactions, mirror the pending
	// nonce a node would report.
	if tx.Nonce() >= b.nonce {
		b.nonce = tx.Nonce() + 1
	}
	return nil
}

func (b *stubBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if b.callErr != nil {
		return nil, b.callErr
	}
	if len(msg.Data) >= 4 {
		if result, ok := b.callResults["0x"+hex.EncodeToString(msg.Data[:4])]; ok {
			return result, nil
		}
	}
	return b.callResult, nil
}

// abiWord left-pads a value to one 32-byte ABI word.
func abiWord(v int64) []byte {
	return common.LeftPadBytes(big.NewInt(v).Bytes(), 32)
}

// abiString ABI-encodes a dynamic string return value.
func abiString(s string) []byte {
	out := append(abiWord(32), abiWord(int64(len(s)))...)
	padded := make([]byte, (len(s)+31)/32*32)
	copy(padded, s)
	return append(out, padded...)
}

// stubTokenMetadata makes the token name/symbol/decimals calls answer.
func stubTokenMetadata(b *stubBackend) {
	if b.callResults == nil {
		b.callResults = make(map[string][]byte)
	}
	b.callResults["0x06fdde03"] = abiString("UniMate Token") // name()
	b.callResults["0x95d89b41"] = abiString("UNI")           // symbol()
	b.callResults["0x313ce567"] = abiWord(18)                // decimals()
}

func (b *stubBackend) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return b.balance, nil
}

func (b *stubBackend) BlockNumber(ctx context.Context) (uint64, error) {
	if b.blockNumberErr != nil {
		return 0, b.blockNumberErr
	}
	return b.blockNumber, nil
}

func (b *stubBackend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	if b.headerErr != nil {
		return nil, b.headerErr
	}
	blockTime := b.blockTime
	if blockTime == 0 {
		blockTime = uint64(time.Now().Unix())
	}
	return &types.Header{
		Number: new(big.Int).SetUint64(b.blockNumber),
		Time:   blockTime,
	}, nil
}

func (b *stubBackend) sentTxs() []*types.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*types.Transaction, len(b.sent))
	copy(out, b.sent)
	return out
}

// stubTxRepo records created transactions in memory.
type stubTxRepo struct {
	mu      sync.Mutex
	created []*models.RelayedTransaction
}

func (r *stubTxRepo) Create(ctx context.Context, tx *models.RelayedTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, tx)
	return nil
}

func (r *stubTxRepo) GetByHash(ctx context.Context, txHash string) (*models.RelayedTransaction, error) {
	return nil, nil
}

func (r *stubTxRepo) UpdateStatus(ctx context.Context, txHash, status string) error { return nil }

func (r *stubTxRepo) FindRecent(ctx context.Context, limit int) ([]*models.RelayedTransaction, error) {
	return nil, nil
}

// stubVoucherRepo records created vouchers in memory.
type stubVoucherRepo struct {
	mu      sync.Mutex
	created []*models.Voucher
}

func (r *stubVoucherRepo) Create(ctx context.Context, voucher *models.Voucher) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, voucher)
	return nil
}

func (r *stubVoucherRepo) GetByCode(ctx context.Context, code string) (*models.Voucher, error) {
	return nil, nil
}

func (r *stubVoucherRepo) FindByAddress(ctx context.Context, address string, limit int) ([]*models.Voucher, error) {
	return nil, nil
}

func (r *stubVoucherRepo) MarkRedeemed(ctx context.Context, code, approveTx, redeemTx string) error {
	return nil
}

func (r *stubVoucherRepo) UpdateStatus(ctx context.Context, code, status, note string) error {
	return nil
}

// stubUserOpRepo keeps user operations keyed by hash.
type stubUserOpRepo struct {
	mu  sync.Mutex
	ops map[string]*models.UserOperation
}

func newStubUserOpRepo() *stubUserOpRepo {
	return &stubUserOpRepo{ops: make(map[string]*models.UserOperation)}
}

func (r *stubUserOpRepo) Create(ctx context.Context, op *models.UserOperation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops[op.UserOpHash] = op
	return nil
}

func (r *stubUserOpRepo) GetByHash(ctx context.Context, userOpHash string) (*models.UserOperation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	op, ok := r.ops[userOpHash]
	if !ok {
		return nil, nil
	}
	cp := *op
	return &cp, nil
}

func (r *stubUserOpRepo) UpdateStatus(ctx context.Context, userOpHash, status, entryPointTxHash, revertReason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if op, ok := r.ops[userOpHash]; ok {
		op.Status = status
		if entryPointTxHash != "" {
			op.EntryPointTxHash = entryPointTxHash
		}
		if revertReason != "" {
			op.RevertReason = revertReason
		}
	}
	return nil
}

func (r *stubUserOpRepo) FindByUser(ctx context.Context, userID string, limit int) ([]*models.UserOperation, error) {
	return nil, nil
}

func (r *stubUserOpRepo) FindPendingOlderThan(ctx context.Context, age time.Duration, limit int) ([]*models.UserOperation, error) {
	return nil, nil
}

// stubAccountRepo answers ownership checks from a fixed map.
type stubAccountRepo struct {
	owned map[string]string // aaAddress -> userID
}

func (r *stubAccountRepo) Link(ctx context.Context, userID, aaAddress string) (*models.SmartAccount, error) {
	return &models.SmartAccount{UserID: userID, AAAddress: aaAddress}, nil
}

func (r *stubAccountRepo) Unlink(ctx context.Context, userID, aaAddress string) error { return nil }

func (r *stubAccountRepo) FindByUser(ctx context.Context, userID string) ([]*models.SmartAccount, error) {
	return nil, nil
}

func (r *stubAccountRepo) GetByAddress(ctx context.Context, aaAddress string) (*models.SmartAccount, error) {
	return nil, nil
}

func (r *stubAccountRepo) IsOwnedBy(ctx context.Context, userID, aaAddress string) (bool, error) {
	return r.owned[aaAddress] == userID, nil
}
