package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"relay-backend/internal/dto"
	"relay-backend/internal/middleware"
	"relay-backend/internal/security"
	"relay-backend/internal/services"
)

const userOpScope = "aa_send"

// UserOpHandler serves the ERC-4337 endpoints.
type UserOpHandler struct {
	userOps *services.UserOpService
	sec     *security.State
	logger  *logrus.Logger
}

func NewUserOpHandler(userOps *services.UserOpService, sec *security.State, logger *logrus.Logger) *UserOpHandler {
	return &UserOpHandler{
		userOps: userOps,
		sec:     sec,
		logger:  logger,
	}
}

// SendHandler POST /chain/aa/send
func (h *UserOpHandler) SendHandler(c *gin.Context) {
	userID := c.GetString("user_id")
	identity := middleware.RequestIdentity(c)

	var req dto.SendUserOpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.SendUserOpResponse{
			Error: err.Error(),
			Code:  "INVALID_REQUEST",
		})
		return
	}

	idemKey := c.GetHeader("Idempotency-Key")
	if idemKey == "" {
		idemKey = req.IdempotencyKey
	}

	if idemKey != "" {
		if err := security.ValidateKey(idemKey); err != nil {
			c.JSON(http.StatusBadRequest, dto.SendUserOpResponse{
				Error: "idempotency key must be 1-64 chars of [a-zA-Z0-9_-]",
				Code:  "INVALID_IDEMPOTENCY_KEY",
			})
			return
		}

		cached, err := h.sec.Idempotency.Begin(userOpScope, identity, idemKey)
		if err != nil {
			if errors.Is(err, security.ErrRequestInFlight) {
				c.JSON(http.StatusConflict, dto.SendUserOpResponse{
					Error: "request with this idempotency key is still in flight",
					Code:  "REQUEST_IN_FLIGHT",
				})
				return
			}
			c.JSON(http.StatusConflict, dto.SendUserOpResponse{
				Error: "duplicate request",
				Code:  "DUPLICATE_REQUEST",
			})
			return
		}

		if cached != nil {
			var replay dto.SendUserOpResponse
			if json.Unmarshal(cached.Body, &replay) == nil {
				replay.Idempotent = true
				c.JSON(cached.Status, replay)
				return
			}
			c.Data(cached.Status, "application/json", cached.Body)
			return
		}
	}

	resp, err := h.userOps.Send(c.Request.Context(), userID, &req)
	if err != nil {
		if idemKey != "" {
			h.sec.Idempotency.Fail(userOpScope, identity, idemKey)
		}
		h.respondSendError(c, identity, err)
		return
	}

	if idemKey != "" {
		if body, marshalErr := json.Marshal(resp); marshalErr == nil {
			h.sec.Idempotency.Complete(userOpScope, identity, idemKey, http.StatusOK, body)
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (h *UserOpHandler) respondSendError(c *gin.Context, identity string, err error) {
	switch {
	case errors.Is(err, services.ErrNoBatchMode), errors.Is(err, services.ErrBothBatchModes):
		c.JSON(http.StatusBadRequest, dto.SendUserOpResponse{
			Error: err.Error(),
			Code:  "INVALID_BATCH_MODE",
		})

	case errors.Is(err, services.ErrAccountNotOwned):
		h.sec.Abuse.Report(identity, security.PatternUnauthorizedAccess)
		c.JSON(http.StatusForbidden, dto.SendUserOpResponse{
			Error: "smart account is not owned by the caller",
			Code:  "ACCOUNT_NOT_OWNED",
		})

	case errors.Is(err, security.ErrChainNotAllowed):
		c.JSON(http.StatusBadRequest, dto.SendUserOpResponse{
			Error: err.Error(),
			Code:  "INVALID_CHAIN_ID",
		})

	case isAllowlistError(err):
		h.sec.Abuse.Report(identity, security.PatternValidationFailure)
		h.sec.Logger.Event("batch_validation_failure", logrus.Fields{
			"identity": identity,
			"error":    err.Error(),
		})
		c.JSON(http.StatusBadRequest, dto.SendUserOpResponse{
			Error: err.Error(),
			Code:  "BATCH_REJECTED",
		})

	default:
		var txErr *services.TxError
		if errors.As(err, &txErr) {
			c.JSON(txErr.HTTPStatus, dto.SendUserOpResponse{
				Error: txErr.Err.Error(),
				Code:  txErr.Code,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, dto.SendUserOpResponse{
			Error: err.Error(),
			Code:  "USEROP_FAILED",
		})
	}
}

func isAllowlistError(err error) bool {
	for _, sentinel := range []error{
		security.ErrTargetNotAllowed,
		security.ErrSelectorNotAllowed,
		security.ErrCalldataTooLarge,
		security.ErrBatchTooLarge,
		security.ErrAmountExceedsCeiling,
		security.ErrRedeemBeforeApprove,
		security.ErrApproveAfterRedeem,
		security.ErrValueNotAllowed,
		security.ErrMalformedCalldata,
		security.ErrBadAmount,
		services.ErrUnknownIntent,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// StatusHandler GET /chain/aa/status/:hash
func (h *UserOpHandler) StatusHandler(c *gin.Context) {
	userID := c.GetString("user_id")
	hash := c.Param("hash")

	status, err := h.userOps.Status(c.Request.Context(), userID, hash)
	if err != nil {
		if errors.Is(err, services.ErrUserOpNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error":   "User operation not found or not authorized",
				"code":    "USEROP_NOT_FOUND",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   err.Error(),
			"code":    "STATUS_QUERY_FAILED",
		})
		return
	}

	c.JSON(http.StatusOK, status)
}
