package handlers

import (
	"errors"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"relay-backend/internal/dto"
	"relay-backend/internal/metrics"
	"relay-backend/internal/middleware"
	"relay-backend/internal/repository"
	"relay-backend/internal/security"
	"relay-backend/internal/services"
)

// RelayHandler serves the HMAC-signed relay endpoints and the read-only
// balance/voucher endpoints.
type RelayHandler struct {
	relay    *services.RelayService
	minter   *services.MinterService
	token    *services.TokenReader
	vouchers repository.VoucherRepository
	sec      *security.State
	logger   *logrus.Logger
}

func NewRelayHandler(
	relay *services.RelayService,
	minter *services.MinterService,
	token *services.TokenReader,
	vouchers repository.VoucherRepository,
	sec *security.State,
	logger *logrus.Logger,
) *RelayHandler {
	return &RelayHandler{
		relay:    relay,
		minter:   minter,
		token:    token,
		vouchers: vouchers,
		sec:      sec,
		logger:   logger,
	}
}

// verifySignedRequest runs the HMAC and freshness checks shared by every
// signed endpoint. Returns false after writing the error response.
func (h *RelayHandler) verifySignedRequest(c *gin.Context, message string, ts int64, sig string) bool {
	err := h.sec.Signatures.Verify(message, ts, sig)
	if err == nil {
		return true
	}

	identity := middleware.RequestIdentity(c)

	if errors.Is(err, security.ErrStaleTimestamp) {
		h.logger.WithFields(logrus.Fields{
			"identity": identity,
			"path":     c.Request.URL.Path,
		}).Warn("Stale signed request")

		c.JSON(http.StatusBadRequest, dto.RelayResponse{
			Error:   "stale request (>60s)",
			Code:    "STALE_REQUEST",
			Message: "Request timestamp is outside the freshness window",
		})
		return false
	}

	metrics.SignatureFailuresTotal.Inc()
	h.sec.Abuse.Report(identity, security.PatternValidationFailure)
	h.sec.Logger.Event("signature_validation_failure", logrus.Fields{
		"identity": identity,
		"path":     c.Request.URL.Path,
	})

	c.JSON(http.StatusUnauthorized, dto.RelayResponse{
		Error: "bad signature",
		Code:  "BAD_SIGNATURE",
	})
	return false
}

// checkAmount validates the amount against the selector ceiling and flags
// large transactions. An empty selector applies the mint ceiling. Returns nil
// after writing the error response.
func (h *RelayHandler) checkAmount(c *gin.Context, selector, amount string) *big.Int {
	wei, err := security.ParseAmountWei(amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.RelayResponse{
			Error: "amount must be a positive decimal integer in wei",
			Code:  "INVALID_AMOUNT",
		})
		return nil
	}

	var large bool
	if selector == "" {
		large, err = h.sec.Allowlist.CheckMintAmount(wei)
	} else {
		large, err = h.sec.Allowlist.CheckAmount(selector, wei)
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.RelayResponse{
			Error: err.Error(),
			Code:  "AMOUNT_EXCEEDS_LIMIT",
		})
		return nil
	}

	if large {
		identity := middleware.RequestIdentity(c)
		h.sec.Abuse.Report(identity, security.PatternLargeTransaction)
		h.sec.Logger.Event("large_transaction", logrus.Fields{
			"identity": identity,
			"amount":   security.FormatAmount(wei),
			"path":     c.Request.URL.Path,
		})
		metrics.AbuseEventsTotal.WithLabelValues(string(security.PatternLargeTransaction)).Inc()
	}

	return wei
}

// reserveIdempotent registers the canonical message in the coarse
// idempotency store. Returns false after writing the 409.
func (h *RelayHandler) reserveIdempotent(c *gin.Context, scope, message string) bool {
	identity := middleware.RequestIdentity(c)
	key := security.DeriveKey(message)

	if err := h.sec.Idempotency.Reserve(scope, identity, key); err != nil {
		c.JSON(http.StatusConflict, dto.RelayResponse{
			Error: "duplicate request",
			Code:  "DUPLICATE_REQUEST",
		})
		return false
	}
	return true
}

// respondTxError maps a submission error to its HTTP classification.
func (h *RelayHandler) respondTxError(c *gin.Context, err error) {
	identity := middleware.RequestIdentity(c)
	h.sec.Abuse.Report(identity, security.PatternRepeatedErrors)

	var txErr *services.TxError
	if errors.As(err, &txErr) {
		c.JSON(txErr.HTTPStatus, dto.RelayResponse{
			Error:     txErr.Err.Error(),
			Code:      txErr.Code,
			Retryable: txErr.Retryable,
		})
		return
	}

	c.JSON(http.StatusInternalServerError, dto.RelayResponse{
		Error: err.Error(),
		Code:  "TX_FAILED",
	})
}

func validAddress(c *gin.Context, addr, field string) bool {
	if common.IsHexAddress(addr) {
		return true
	}
	c.JSON(http.StatusBadRequest, dto.RelayResponse{
		Error: "Invalid '" + field + "' address",
		Code:  "INVALID_ADDRESS",
	})
	return false
}

// MintHandler POST /chain/mint
func (h *RelayHandler) MintHandler(c *gin.Context) {
	var req dto.MintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.RelayResponse{
			Error: err.Error(),
			Code:  "INVALID_REQUEST",
		})
		return
	}

	if !h.verifySignedRequest(c, security.MintMessage(req.To, req.Amount, req.TS), req.TS, req.Sig) {
		return
	}
	if !validAddress(c, req.To, "to") {
		return
	}

	amount := h.checkAmount(c, "", req.Amount)
	if amount == nil {
		return
	}

	if !h.reserveIdempotent(c, "mint", security.MintMessage(req.To, req.Amount, req.TS)) {
		return
	}

	tx, err := h.relay.Mint(c.Request.Context(), req.To, amount)
	if err != nil {
		h.respondTxError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.RelayResponse{
		Success:     true,
		TxHash:      tx.Hash,
		ExplorerURL: h.relay.ExplorerURL(tx.Hash),
		To:          req.To,
		Amount:      req.Amount,
		GasPrice:    tx.GasPrice.String(),
		Gas:         tx.GasLimit,
	})
}

// AwardHandler POST /chain/award
func (h *RelayHandler) AwardHandler(c *gin.Context) {
	var req dto.AwardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.RelayResponse{
			Error: err.Error(),
			Code:  "INVALID_REQUEST",
		})
		return
	}

	message := security.AwardMessage(req.To, req.RewardID, req.Amount, req.TS)
	if !h.verifySignedRequest(c, message, req.TS, req.Sig) {
		return
	}
	if !validAddress(c, req.To, "to") {
		return
	}

	badgeID, ok := new(big.Int).SetString(req.RewardID, 10)
	if !ok || badgeID.Sign() < 0 {
		c.JSON(http.StatusBadRequest, dto.RelayResponse{
			Error: "rewardId must be a non-negative badge id",
			Code:  "INVALID_REWARD_ID",
		})
		return
	}

	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok || amount.Sign() <= 0 {
		c.JSON(http.StatusBadRequest, dto.RelayResponse{
			Error: "amount must be a positive integer",
			Code:  "INVALID_AMOUNT",
		})
		return
	}

	if !h.reserveIdempotent(c, "award", message) {
		return
	}

	tx, err := h.relay.Award(c.Request.Context(), req.To, badgeID, amount)
	if err != nil {
		h.respondTxError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.RelayResponse{
		Success:     true,
		TxHash:      tx.Hash,
		ExplorerURL: h.relay.ExplorerURL(tx.Hash),
		To:          req.To,
		Amount:      req.Amount,
		GasPrice:    tx.GasPrice.String(),
		Gas:         tx.GasLimit,
	})
}

// RedeemHandler POST /chain/redeem
func (h *RelayHandler) RedeemHandler(c *gin.Context) {
	var req dto.RedeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.RelayResponse{
			Error: err.Error(),
			Code:  "INVALID_REQUEST",
		})
		return
	}

	message := security.RedeemMessage(req.From, req.Amount, req.RewardID, req.TS)
	if !h.verifySignedRequest(c, message, req.TS, req.Sig) {
		return
	}
	if !validAddress(c, req.From, "from") {
		return
	}
	if req.RewardID == "" || len(req.RewardID) > 100 {
		c.JSON(http.StatusBadRequest, dto.RelayResponse{
			Error: "rewardId must be non-empty and <= 100 chars",
			Code:  "INVALID_REWARD_ID",
		})
		return
	}

	amount := h.checkAmount(c, security.SelectorRedeem, req.Amount)
	if amount == nil {
		return
	}

	if !h.reserveIdempotent(c, "redeem", message) {
		return
	}

	approveTx, redeemTx, voucherCode, err := h.relay.Redeem(c.Request.Context(), req.From, amount, req.RewardID)
	if err != nil {
		h.respondTxError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.RelayResponse{
		Success:     true,
		ApproveTx:   approveTx.Hash,
		RedeemTx:    redeemTx.Hash,
		ExplorerURL: h.relay.ExplorerURL(redeemTx.Hash),
		VoucherCode: voucherCode,
	})
}

// RedeemPermitHandler POST /chain/redeem_permit
func (h *RelayHandler) RedeemPermitHandler(c *gin.Context) {
	var req dto.RedeemPermitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.RelayResponse{
			Error: err.Error(),
			Code:  "INVALID_REQUEST",
		})
		return
	}

	message := security.RedeemMessage(req.From, req.Amount, req.RewardID, req.TS)
	if !h.verifySignedRequest(c, message, req.TS, req.Sig) {
		return
	}
	if !validAddress(c, req.From, "from") {
		return
	}

	amount := h.checkAmount(c, security.SelectorRedeem, req.Amount)
	if amount == nil {
		return
	}

	var r, s [32]byte
	rBytes := common.FromHex(req.R)
	sBytes := common.FromHex(req.S)
	if len(rBytes) != 32 || len(sBytes) != 32 {
		c.JSON(http.StatusBadRequest, dto.RelayResponse{
			Error: "r and s must be 32-byte hex values",
			Code:  "INVALID_PERMIT_SIGNATURE",
		})
		return
	}
	copy(r[:], rBytes)
	copy(s[:], sBytes)

	if !h.reserveIdempotent(c, "permit", message) {
		return
	}

	permitTx, redeemTx, voucherCode, err := h.relay.RedeemWithPermit(
		c.Request.Context(), req.From, amount, req.RewardID,
		big.NewInt(req.Deadline), req.V, r, s)
	if err != nil {
		h.respondTxError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.RelayResponse{
		Success:     true,
		ApproveTx:   permitTx.Hash,
		RedeemTx:    redeemTx.Hash,
		ExplorerURL: h.relay.ExplorerURL(redeemTx.Hash),
		VoucherCode: voucherCode,
	})
}

// MintViaMinterHandler POST /chain/mint_via_minter
func (h *RelayHandler) MintViaMinterHandler(c *gin.Context) {
	var req dto.MintViaMinterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.RelayResponse{
			Error: err.Error(),
			Code:  "INVALID_REQUEST",
		})
		return
	}

	message := security.MintMessage(req.To, req.Amount, req.TS)
	if !h.verifySignedRequest(c, message, req.TS, req.Sig) {
		return
	}
	if !validAddress(c, req.To, "to") {
		return
	}

	amount := h.checkAmount(c, "", req.Amount)
	if amount == nil {
		return
	}

	if !h.reserveIdempotent(c, "minter", message) {
		return
	}

	tx, actionID, err := h.minter.MintViaMinter(c.Request.Context(), req.To, amount)
	if err != nil {
		h.respondTxError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.RelayResponse{
		Success:     true,
		TxHash:      tx.Hash,
		ExplorerURL: h.relay.ExplorerURL(tx.Hash),
		To:          req.To,
		Amount:      req.Amount,
		GasPrice:    tx.GasPrice.String(),
		Gas:         tx.GasLimit,
		ActionID:    actionID,
	})
}

// BalanceHandler GET /chain/balance/:address
func (h *RelayHandler) BalanceHandler(c *gin.Context) {
	address := c.Param("address")
	if !validAddress(c, address, "address") {
		return
	}

	balance, err := h.token.BalanceOf(c.Request.Context(), address)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"error":   "Balance query failed",
			"code":    "RPC_UNAVAILABLE",
		})
		return
	}

	decimals, err := h.token.Decimals(c.Request.Context())
	if err != nil {
		decimals = 18
	}

	c.JSON(http.StatusOK, dto.BalanceResponse{
		Success:    true,
		Address:    address,
		BalanceWei: balance.String(),
		Decimals:   decimals,
	})
}

// VouchersHandler GET /chain/vouchers/:address
func (h *RelayHandler) VouchersHandler(c *gin.Context) {
	address := c.Param("address")
	if !validAddress(c, address, "address") {
		return
	}

	vouchers, err := h.vouchers.FindByAddress(c.Request.Context(), address, 100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Database error",
			"code":    "DB_ERROR",
		})
		return
	}

	views := make([]dto.VoucherView, len(vouchers))
	for i, v := range vouchers {
		views[i] = dto.VoucherView{
			Code:      v.Code,
			Address:   v.Address,
			RewardID:  v.RewardID,
			AmountWei: v.AmountWei,
			Status:    v.Status,
			ApproveTx: v.ApproveTx,
			RedeemTx:  v.RedeemTx,
			CreatedAt: v.CreatedAt,
		}
	}

	c.JSON(http.StatusOK, dto.VouchersResponse{
		Success:  true,
		Address:  address,
		Count:    len(views),
		Vouchers: views,
	})
}
