package security

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"relay-backend/internal/dto"
)

// Allowlisted function selectors.
const (
	SelectorApprove      = "0x095ea7b3"
	SelectorRedeem       = "0x6c83cb85"
	SelectorTransfer     = "0xa9059cbb"
	SelectorTransferFrom = "0x23b872dd"
)

// Calldata limits.
const (
	MaxCalldataSize = 10000 // hex characters including 0x
	MaxBatchCalls   = 5

	// maxSelectorRepeats: more of the same selector in one batch is
	// flagged as suspicious. The batch still executes.
	maxSelectorRepeats = 2
)

var (
	ErrTargetNotAllowed     = errors.New("target address not in allowlist")
	ErrSelectorNotAllowed   = errors.New("function selector not in allowlist")
	ErrChainNotAllowed      = errors.New("chain id not in allowlist")
	ErrCalldataTooLarge     = errors.New("calldata exceeds size limit")
	ErrBatchTooLarge        = errors.New("too many calls in batch")
	ErrAmountExceedsCeiling = errors.New("amount exceeds selector ceiling")
	ErrRedeemBeforeApprove  = errors.New("redeem call without preceding approve")
	ErrApproveAfterRedeem   = errors.New("approve call after redeem in batch")
	ErrValueNotAllowed      = errors.New("value transfer to non-allowlisted target")
	ErrMalformedCalldata    = errors.New("calldata is not valid hex with a selector")
	ErrBadAmount            = errors.New("amount is not a positive decimal integer")
)

func tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), weiPerToken)
}

// Per-selector amount ceilings in wei.
var selectorCeilings = map[string]*big.Int{
	SelectorApprove:      tokens(1_000_000),
	SelectorRedeem:       tokens(100_000),
	SelectorTransfer:     tokens(50_000),
	SelectorTransferFrom: tokens(50_000),
}

// largeTransactionThreshold: amounts above this are allowed but flagged.
var largeTransactionThreshold = tokens(500_000)

// maxMintAmount bounds relay mint requests. Mints are not calldata-decoded
// like the batch selectors, the handler checks the requested amount directly.
var maxMintAmount = tokens(100_000)

// AllowlistValidator validates calls against the target, selector, chain and
// amount allowlists.
type AllowlistValidator struct {
	targets  map[common.Address]bool
	chainIDs map[int64]bool
}

// NewAllowlistValidator creates a validator allowing the given target
// contracts and chain ids.
func NewAllowlistValidator(targets []string, chainIDs []int64) *AllowlistValidator {
	v := &AllowlistValidator{
		targets:  make(map[common.Address]bool, len(targets)),
		chainIDs: make(map[int64]bool, len(chainIDs)),
	}
	for _, t := range targets {
		if common.IsHexAddress(t) {
			v.targets[common.HexToAddress(t)] = true
		}
	}
	for _, id := range chainIDs {
		v.chainIDs[id] = true
	}
	return v
}

// IsChainAllowed reports whether the chain id is allowlisted.
func (v *AllowlistValidator) IsChainAllowed(chainID int64) bool {
	return v.chainIDs[chainID]
}

// IsTargetAllowed reports whether the target contract is allowlisted.
func (v *AllowlistValidator) IsTargetAllowed(addr string) bool {
	if !common.IsHexAddress(addr) {
		return false
	}
	return v.targets[common.HexToAddress(addr)]
}

// CheckAmount enforces the per-selector ceiling. It returns (large, err)
// where large marks amounts above the flagging threshold.
func (v *AllowlistValidator) CheckAmount(selector string, amount *big.Int) (bool, error) {
	if amount == nil || amount.Sign() <= 0 {
		return false, ErrBadAmount
	}
	ceiling, ok := selectorCeilings[strings.ToLower(selector)]
	if !ok {
		return false, ErrSelectorNotAllowed
	}
	if amount.Cmp(ceiling) > 0 {
		return false, fmt.Errorf("%w: selector %s", ErrAmountExceedsCeiling, selector)
	}
	return amount.Cmp(largeTransactionThreshold) > 0, nil
}

// CheckMintAmount enforces the mint ceiling. Same contract as CheckAmount.
func (v *AllowlistValidator) CheckMintAmount(amount *big.Int) (bool, error) {
	if amount == nil || amount.Sign() <= 0 {
		return false, ErrBadAmount
	}
	if amount.Cmp(maxMintAmount) > 0 {
		return false, fmt.Errorf("%w: mint", ErrAmountExceedsCeiling)
	}
	return amount.Cmp(largeTransactionThreshold) > 0, nil
}

// ValidateCall validates a single call: target, calldata shape, selector and
// the decoded amount ceiling. Returns the selector and whether the amount is
// large enough to flag.
func (v *AllowlistValidator) ValidateCall(call dto.Call) (selector string, large bool, err error) {
	if !v.IsTargetAllowed(call.To) {
		return "", false, fmt.Errorf("%w: %s", ErrTargetNotAllowed, SanitizeAddress(call.To))
	}

	data := strings.ToLower(call.Data)
	if len(data) > MaxCalldataSize {
		return "", false, ErrCalldataTooLarge
	}
	if !strings.HasPrefix(data, "0x") || len(data) < 10 || !isHex(data[2:]) {
		return "", false, ErrMalformedCalldata
	}

	selector = data[:10]
	if _, ok := selectorCeilings[selector]; !ok {
		return "", false, fmt.Errorf("%w: %s", ErrSelectorNotAllowed, selector)
	}

	if call.Value != "" && call.Value != "0" {
		// Nonzero native value is only permitted toward allowlisted
		// targets, which was already checked above, but the value
		// itself must parse.
		if _, err := ParseAmountWei(call.Value); err != nil {
			return "", false, err
		}
	}

	amount, err := decodeAmount(selector, data)
	if err != nil {
		return "", false, err
	}
	large, err = v.CheckAmount(selector, amount)
	if err != nil {
		return "", false, err
	}
	return selector, large, nil
}

// BatchResult carries batch-level observations that are flagged but do not
// reject the batch.
type BatchResult struct {
	Large bool
	// RepeatedSelectors lists selectors appearing more than
	// maxSelectorRepeats times. Callers log these and feed abuse detection.
	RepeatedSelectors []string
}

// ValidateBatch validates every call plus batch-level rules: size and approve
// ordering. Every approve must come before every redeem, so a batch like
// [approve, redeem, approve] is rejected.
func (v *AllowlistValidator) ValidateBatch(calls []dto.Call) (BatchResult, error) {
	var res BatchResult

	if len(calls) == 0 {
		return res, errors.New("empty call batch")
	}
	if len(calls) > MaxBatchCalls {
		return res, ErrBatchTooLarge
	}

	selectorCounts := make(map[string]int)
	approveSeen := false
	redeemSeen := false

	for i, call := range calls {
		selector, callLarge, err := v.ValidateCall(call)
		if err != nil {
			return res, fmt.Errorf("call %d: %w", i, err)
		}
		if callLarge {
			res.Large = true
		}

		selectorCounts[selector]++
		if selectorCounts[selector] == maxSelectorRepeats+1 {
			res.RepeatedSelectors = append(res.RepeatedSelectors, selector)
		}

		switch selector {
		case SelectorApprove:
			if redeemSeen {
				return res, fmt.Errorf("call %d: %w", i, ErrApproveAfterRedeem)
			}
			approveSeen = true
		case SelectorRedeem:
			if !approveSeen {
				return res, ErrRedeemBeforeApprove
			}
			redeemSeen = true
		}
	}

	return res, nil
}

// decodeAmount extracts the amount word from calldata for an allowlisted
// selector. Word positions: approve(spender,amount), transfer(to,amount) and
// redeem(rewardId,amount) carry the amount in word 1 (for redeem word 0 is
// the string offset), transferFrom(from,to,amount) in word 2.
func decodeAmount(selector, data string) (*big.Int, error) {
	var wordIndex int
	switch selector {
	case SelectorApprove, SelectorTransfer, SelectorRedeem:
		wordIndex = 1
	case SelectorTransferFrom:
		wordIndex = 2
	default:
		return nil, ErrSelectorNotAllowed
	}

	words := data[10:]
	start := wordIndex * 64
	end := start + 64
	if len(words) < end {
		return nil, ErrMalformedCalldata
	}

	amount, ok := new(big.Int).SetString(words[start:end], 16)
	if !ok {
		return nil, ErrMalformedCalldata
	}
	return amount, nil
}

// ParseAmountWei parses a positive decimal wei amount.
func ParseAmountWei(s string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok || amount.Sign() <= 0 {
		return nil, ErrBadAmount
	}
	return amount, nil
}

func isHex(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
