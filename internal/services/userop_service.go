package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/sirupsen/logrus"

	"relay-backend/internal/clients"
	"relay-backend/internal/config"
	"relay-backend/internal/dto"
	"relay-backend/internal/events"
	"relay-backend/internal/metrics"
	"relay-backend/internal/models"
	"relay-backend/internal/repository"
	"relay-backend/internal/security"
)

var (
	ErrAccountNotOwned = errors.New("smart account is not owned by the caller")
	ErrNoBatchMode     = errors.New("request must carry either intent or calls")
	ErrBothBatchModes  = errors.New("request must carry intent or calls, not both")
	ErrUnknownIntent   = errors.New("unknown intent type")
	ErrUserOpNotFound  = errors.New("user operation not found")
)

// StatusPusher receives user operation status transitions for live delivery.
type StatusPusher interface {
	PushUserOpStatus(evt events.UserOpStatusEvent)
}

// UserOpService validates and submits ERC-4337 user operations through the
// external bundler, and tracks their lifecycle in the database.
type UserOpService struct {
	bundler    *clients.BundlerClient
	allowlist  *security.AllowlistValidator
	abuse      *security.AbuseDetector
	accounts   repository.SmartAccountRepository
	userOps    repository.UserOperationRepository
	publisher  events.Publisher
	push       StatusPusher
	secLog     *security.Logger
	chainID    int64
	token      common.Address
	redemption common.Address
}

func NewUserOpService(
	cfg *config.Config,
	bundler *clients.BundlerClient,
	allowlist *security.AllowlistValidator,
	abuse *security.AbuseDetector,
	accounts repository.SmartAccountRepository,
	userOps repository.UserOperationRepository,
	publisher events.Publisher,
	push StatusPusher,
	secLog *security.Logger,
) *UserOpService {
	return &UserOpService{
		bundler:    bundler,
		allowlist:  allowlist,
		abuse:      abuse,
		accounts:   accounts,
		userOps:    userOps,
		publisher:  publisher,
		push:       push,
		secLog:     secLog,
		chainID:    cfg.Network.ChainID,
		token:      common.HexToAddress(cfg.Network.TokenAddress),
		redemption: common.HexToAddress(cfg.Network.RedemptionAddress),
	}
}

// compileIntent turns a high-level intent into concrete calls against the
// configured contracts. Amounts are decimal wei strings.
func (s *UserOpService) compileIntent(intent *dto.Intent) ([]dto.Call, error) {
	amount, err := security.ParseAmountWei(intent.Params.Amount)
	if err != nil {
		return nil, err
	}

	switch intent.Type {
	case "transfer":
		data, err := packCall(security.SelectorTransfer,
			abi.Arguments{{Type: addressType}, {Type: uint256Type}},
			common.HexToAddress(intent.Params.To), amount)
		if err != nil {
			return nil, err
		}
		return []dto.Call{{To: s.token.Hex(), Data: hexutil.Encode(data)}}, nil

	case "approve":
		data, err := packCall(security.SelectorApprove,
			abi.Arguments{{Type: addressType}, {Type: uint256Type}},
			common.HexToAddress(intent.Params.Spender), amount)
		if err != nil {
			return nil, err
		}
		return []dto.Call{{To: s.token.Hex(), Data: hexutil.Encode(data)}}, nil

	case "redeem":
		approveData, err := packCall(security.SelectorApprove,
			abi.Arguments{{Type: addressType}, {Type: uint256Type}},
			s.redemption, amount)
		if err != nil {
			return nil, err
		}
		redeemData, err := packCall(security.SelectorRedeem,
			abi.Arguments{{Type: stringType}, {Type: uint256Type}},
			intent.Params.RewardID, amount)
		if err != nil {
			return nil, err
		}
		return []dto.Call{
			{To: s.token.Hex(), Data: hexutil.Encode(approveData)},
			{To: s.redemption.Hex(), Data: hexutil.Encode(redeemData)},
		}, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownIntent, intent.Type)
	}
}

// Send validates the batch and submits it to the bundler. The returned error
// is ErrAccountNotOwned for ownership violations, an allowlist error for
// rejected batches, or a *TxError for bundler failures.
func (s *UserOpService) Send(ctx context.Context, userID string, req *dto.SendUserOpRequest) (*dto.SendUserOpResponse, error) {
	if req.Intent == nil && len(req.Calls) == 0 {
		return nil, ErrNoBatchMode
	}
	if req.Intent != nil && len(req.Calls) > 0 {
		return nil, ErrBothBatchModes
	}

	// Chain id defaults to the configured network when omitted.
	if req.ChainID != 0 && !s.allowlist.IsChainAllowed(req.ChainID) {
		s.secLog.Event("invalid_chain_id", logrus.Fields{
			"user_id":            userID,
			"attempted_chain_id": req.ChainID,
		})
		s.abuse.Report("user:"+userID, security.PatternValidationFailure)
		return nil, fmt.Errorf("%w: %d", security.ErrChainNotAllowed, req.ChainID)
	}

	owned, err := s.accounts.IsOwnedBy(ctx, userID, req.AAAddress)
	if err != nil {
		return nil, fmt.Errorf("ownership lookup failed: %w", err)
	}
	if !owned {
		s.secLog.Event("account_ownership_violation", logrus.Fields{
			"user_id":    userID,
			"aa_address": security.SanitizeAddress(req.AAAddress),
		})
		return nil, ErrAccountNotOwned
	}

	calls := req.Calls
	if req.Intent != nil {
		calls, err = s.compileIntent(req.Intent)
		if err != nil {
			return nil, err
		}
	}

	batch, err := s.allowlist.ValidateBatch(calls)
	if err != nil {
		return nil, err
	}
	if batch.Large {
		s.secLog.Event("large_transaction", logrus.Fields{
			"user_id":    userID,
			"aa_address": security.SanitizeAddress(req.AAAddress),
			"calls":      len(calls),
		})
	}
	if len(batch.RepeatedSelectors) > 0 {
		// Flagged but not rejected; the batch still executes.
		s.secLog.Event("suspicious_duplicate_calls", logrus.Fields{
			"user_id":              userID,
			"duplicated_selectors": batch.RepeatedSelectors,
			"calls":                len(calls),
		})
		s.abuse.Report("user:"+userID, security.PatternValidationFailure)
	}

	bundlerCalls := make([]clients.BundlerCall, len(calls))
	for i, c := range calls {
		value := c.Value
		if value == "" {
			value = "0"
		}
		if value != "0" {
			// The system's flows are zero-value contract calls.
			s.secLog.Event("non_zero_eth_value", logrus.Fields{
				"user_id": userID,
				"to":      security.SanitizeAddress(c.To),
				"value":   value,
			})
		}
		bundlerCalls[i] = clients.BundlerCall{To: c.To, Value: value, Data: c.Data}
	}

	resp, err := s.bundler.SubmitBatch(req.AAAddress, bundlerCalls)
	if err != nil {
		return nil, &TxError{HTTPStatus: 502, Code: "BUNDLER_ERROR", Retryable: true, Err: err}
	}

	callsJSON, _ := json.Marshal(calls)
	op := &models.UserOperation{
		UserOpHash: resp.UserOpHash,
		UserID:     userID,
		AAAddress:  req.AAAddress,
		Status:     models.UserOpStatusPending,
		CallsData:  string(callsJSON),
		ChainID:    s.chainID,
	}
	if err := s.userOps.Create(ctx, op); err != nil {
		log.Printf("⚠️ Failed to persist user operation %s: %v", resp.UserOpHash, err)
	}

	metrics.UserOperationsTotal.WithLabelValues(models.UserOpStatusPending).Inc()
	log.Printf("📨 UserOp submitted: %s (%d calls, account %s)",
		resp.UserOpHash, len(calls), security.SanitizeAddress(req.AAAddress))

	return &dto.SendUserOpResponse{
		Success:    true,
		UserOpHash: resp.UserOpHash,
		Status:     models.UserOpStatusPending,
	}, nil
}

// Status returns the current status of a user operation owned by userID.
// Operations belonging to other users are indistinguishable from unknown
// hashes. Terminal statuses are served from the database; pending rows are
// polled against the bundler and transitions are persisted and pushed.
func (s *UserOpService) Status(ctx context.Context, userID, userOpHash string) (*dto.UserOpStatusResponse, error) {
	metrics.UserOpStatusQueries.Inc()

	op, err := s.userOps.GetByHash(ctx, userOpHash)
	if err != nil {
		return nil, fmt.Errorf("status lookup failed: %w", err)
	}
	if op == nil {
		return nil, ErrUserOpNotFound
	}
	if op.UserID != userID {
		s.secLog.Event("userop_status_unauthorized", logrus.Fields{
			"user_id":      userID,
			"user_op_hash": userOpHash,
		})
		s.abuse.Report("user:"+userID, security.PatternUnauthorizedAccess)
		return nil, ErrUserOpNotFound
	}

	if models.IsTerminalUserOpStatus(op.Status) {
		return &dto.UserOpStatusResponse{
			Success:          true,
			UserOpHash:       op.UserOpHash,
			Status:           op.Status,
			EntryPointTxHash: op.EntryPointTxHash,
			RevertReason:     op.RevertReason,
			Cached:           true,
		}, nil
	}

	polled, err := s.bundler.GetUserOperationStatus(userOpHash)
	if err != nil {
		// Bundler unreachable; serve the last known state.
		log.Printf("⚠️ Bundler status poll failed for %s: %v", userOpHash, err)
		return &dto.UserOpStatusResponse{
			Success:    true,
			UserOpHash: op.UserOpHash,
			Status:     op.Status,
		}, nil
	}

	if polled.Status != op.Status {
		s.transition(ctx, op, polled)
	}

	return &dto.UserOpStatusResponse{
		Success:          true,
		UserOpHash:       op.UserOpHash,
		Status:           polled.Status,
		EntryPointTxHash: polled.EntryPointTxHash,
		RevertReason:     polled.RevertReason,
	}, nil
}

func (s *UserOpService) transition(ctx context.Context, op *models.UserOperation, polled *clients.BundlerStatusResponse) {
	if err := s.userOps.UpdateStatus(ctx, op.UserOpHash, polled.Status, polled.EntryPointTxHash, polled.RevertReason); err != nil {
		log.Printf("⚠️ Failed to update user operation %s: %v", op.UserOpHash, err)
	}

	if models.IsTerminalUserOpStatus(polled.Status) {
		metrics.UserOperationsTotal.WithLabelValues(polled.Status).Inc()
	}

	evt := events.UserOpStatusEvent{
		UserOpHash:       op.UserOpHash,
		Status:           polled.Status,
		EntryPointTxHash: polled.EntryPointTxHash,
		RevertReason:     polled.RevertReason,
		Timestamp:        time.Now().UTC(),
	}
	if s.push != nil {
		s.push.PushUserOpStatus(evt)
	}
	if err := s.publisher.PublishUserOpStatus(evt); err != nil {
		log.Printf("⚠️ Failed to publish userop status event: %v", err)
	}

	log.Printf("🔄 UserOp %s: %s -> %s", op.UserOpHash, op.Status, polled.Status)
}
