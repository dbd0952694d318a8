package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"relay-backend/internal/config"
	"relay-backend/internal/events"
	"relay-backend/internal/models"
	"relay-backend/internal/security"
	"relay-backend/internal/services"
)

const (
	testHMACSecret = "test-hmac-secret-0123456789"
	testRelayerKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

	testTokenAddr      = "0x1111111111111111111111111111111111111111"
	testRedemptionAddr = "0x2222222222222222222222222222222222222222"
	testRecipient      = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig() *config.Config {
	cfg := &config.Config{
		Network: config.NetworkConfig{
			ChainID:              80002,
			TokenAddress:         testTokenAddr,
			RedemptionAddress:    testRedemptionAddr,
			AchievementAddress:   "0x3333333333333333333333333333333333333333",
			MinterAddress:        "0x4444444444444444444444444444444444444444",
			RelayerPrivateKey:    testRelayerKey,
			AuthorizerPrivateKey: "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d",
			ExplorerTxURL:        "https://amoy.polygonscan.com/tx/{hash}",
		},
		Security: config.SecurityConfig{
			HMACSecret:      testHMACSecret,
			AllowedChainIDs: []int64{80002},
		},
		Auth: config.AuthConfig{
			JWTSecret:     "jwt-secret-0123456789abcdef",
			TokenTTLHours: 1,
		},
	}
	config.AppConfig = cfg
	return cfg
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

// stubBackend answers chain queries with canned values.
type stubBackend struct {
	mu      sync.Mutex
	sent    []*types.Transaction
	nonce   uint64
	sendErr error
}

func (b *stubBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nonce, nil
}

func (b *stubBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(30_000_000_000), nil
}

func (b *stubBackend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return 100_000, nil
}

func (b *stubBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sendErr != nil {
		return b.sendErr
	}
	b.sent = append(b.sent, tx)
	if tx.Nonce() >= b.nonce {
		b.nonce = tx.Nonce() + 1
	}
	return nil
}

func (b *stubBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return nil, nil
}

func (b *stubBackend) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (b *stubBackend) BlockNumber(ctx context.Context) (uint64, error) {
	return 0, nil
}

func (b *stubBackend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(0), Time: uint64(time.Now().Unix())}, nil
}

type stubTxRepo struct{}

func (stubTxRepo) Create(ctx context.Context, tx *models.RelayedTransaction) error { return nil }
func (stubTxRepo) GetByHash(ctx context.Context, txHash string) (*models.RelayedTransaction, error) {
	return nil, nil
}
func (stubTxRepo) UpdateStatus(ctx context.Context, txHash, status string) error { return nil }
func (stubTxRepo) FindRecent(ctx context.Context, limit int) ([]*models.RelayedTransaction, error) {
	return nil, nil
}

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
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Voucher
	for _, v := range r.created {
		if v.Address == address {
			out = append(out, v)
		}
	}
	return out, nil
}

func (r *stubVoucherRepo) MarkRedeemed(ctx context.Context, code, approveTx, redeemTx string) error {
	return nil
}

func (r *stubVoucherRepo) UpdateStatus(ctx context.Context, code, status, note string) error {
	return nil
}

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

// relayTestEnv bundles the wired handler and its dependencies.
type relayTestEnv struct {
	engine   *gin.Engine
	backend  *stubBackend
	vouchers *stubVoucherRepo
	sec      *security.State
}

func newRelayTestEnv(t *testing.T) *relayTestEnv {
	t.Helper()

	cfg := testConfig()
	logger := testLogger()
	backend := &stubBackend{nonce: 1}
	vouchers := &stubVoucherRepo{}
	sec := security.NewState(cfg, logger)

	relay, err := services.NewRelayService(cfg, backend, stubTxRepo{}, vouchers, events.NopPublisher{}, sec.Logger)
	require.NoError(t, err)
	minter, err := services.NewMinterService(cfg, relay)
	require.NoError(t, err)
	token, err := services.NewTokenReader(cfg, backend)
	require.NoError(t, err)

	h := NewRelayHandler(relay, minter, token, vouchers, sec, logger)

	engine := gin.New()
	engine.POST("/chain/mint", h.MintHandler)
	engine.POST("/chain/award", h.AwardHandler)
	engine.POST("/chain/redeem", h.RedeemHandler)
	engine.POST("/chain/redeem_permit", h.RedeemPermitHandler)
	engine.POST("/chain/mint_via_minter", h.MintViaMinterHandler)
	engine.GET("/chain/vouchers/:address", h.VouchersHandler)

	return &relayTestEnv{engine: engine, backend: backend, vouchers: vouchers, sec: sec}
}

func (e *relayTestEnv) sign(t *testing.T, message string) string {
	t.Helper()
	sig, err := e.sec.Signatures.Sign(message)
	require.NoError(t, err)
	return sig
}

func (e *relayTestEnv) postJSON(t *testing.T, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
}
