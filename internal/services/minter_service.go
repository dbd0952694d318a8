package services

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"relay-backend/internal/config"
	"relay-backend/internal/models"
)

// EIP-712 domain constants for the RelayMinter contract.
const (
	minterDomainName    = "RelayMinter"
	minterDomainVersion = "1"

	// mintDeadlineWindow: how long a signed mint authorization stays valid.
	mintDeadlineWindow = 300 * time.Second
)

var (
	eip712DomainTypeHash = crypto.Keccak256Hash(
		[]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
	mintTypeHash = crypto.Keccak256Hash(
		[]byte("Mint(address to,uint256 amount,uint256 deadline,bytes32 actionId)"))
	mintWithSigSelector = crypto.Keccak256(
		[]byte("mintWithSig(address,uint256,uint256,bytes32,bytes)"))[:4]
)

// MinterService builds EIP-712 mint authorizations signed by the authorizer
// key and relays mintWithSig through the owner-paid submission path.
type MinterService struct {
	relay         *RelayService
	minter        common.Address
	chainID       *big.Int
	authorizerKey *ecdsa.PrivateKey
	now           func() time.Time
}

// NewMinterService parses the authorizer key.
func NewMinterService(cfg *config.Config, relay *RelayService) (*MinterService, error) {
	keyHex := strings.TrimPrefix(cfg.Network.AuthorizerPrivateKey, "0x")
	if keyHex == "" {
		return nil, fmt.Errorf("authorizer private key is not configured")
	}

	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid authorizer private key: %w", err)
	}

	return &MinterService{
		relay:         relay,
		minter:        common.HexToAddress(cfg.Network.MinterAddress),
		chainID:       big.NewInt(cfg.Network.ChainID),
		authorizerKey: key,
		now:           time.Now,
	}, nil
}

// MintViaMinter signs a mint authorization for the recipient and submits
// mintWithSig. The actionId gives the contract replay protection on top of
// the service-level idempotency check.
func (s *MinterService) MintViaMinter(ctx context.Context, to string, amountWei *big.Int) (*SubmittedTx, string, error) {
	var actionID [32]byte
	if _, err := rand.Read(actionID[:]); err != nil {
		return nil, "", fmt.Errorf("failed to generate action id: %w", err)
	}

	deadline := big.NewInt(s.now().Add(mintDeadlineWindow).Unix())
	toAddr := common.HexToAddress(to)

	sig, err := s.signMint(toAddr, amountWei, deadline, actionID)
	if err != nil {
		return nil, "", err
	}

	data, err := packCall(hexutil.Encode(mintWithSigSelector),
		abi.Arguments{
			{Type: addressType}, {Type: uint256Type}, {Type: uint256Type},
			{Type: bytes32Type}, {Type: bytesType},
		},
		toAddr, amountWei, deadline, actionID, sig)
	if err != nil {
		return nil, "", err
	}

	log.Printf("✍️ Mint authorization signed: actionId=%s", hexutil.Encode(actionID[:]))

	tx, err := s.relay.SubmitCall(ctx, models.RelayedTxKindMinterMint, s.minter, data, to, amountWei)
	if err != nil {
		return nil, "", classifyMinterError(err)
	}

	return tx, hexutil.Encode(actionID[:]), nil
}

// signMint produces the EIP-712 signature over the Mint struct.
func (s *MinterService) signMint(to common.Address, amount, deadline *big.Int, actionID [32]byte) ([]byte, error) {
	domainSeparator, err := abi.Arguments{
		{Type: bytes32Type}, {Type: bytes32Type}, {Type: bytes32Type},
		{Type: uint256Type}, {Type: addressType},
	}.Pack(
		eip712DomainTypeHash,
		crypto.Keccak256Hash([]byte(minterDomainName)),
		crypto.Keccak256Hash([]byte(minterDomainVersion)),
		s.chainID,
		s.minter,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to encode domain separator: %w", err)
	}

	structData, err := abi.Arguments{
		{Type: bytes32Type}, {Type: addressType}, {Type: uint256Type},
		{Type: uint256Type}, {Type: bytes32Type},
	}.Pack(mintTypeHash, to, amount, deadline, actionID)
	if err != nil {
		return nil, fmt.Errorf("failed to encode mint struct: %w", err)
	}

	digest := crypto.Keccak256(
		[]byte{0x19, 0x01},
		crypto.Keccak256(domainSeparator),
		crypto.Keccak256(structData),
	)

	sig, err := crypto.Sign(digest, s.authorizerKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign mint authorization: %w", err)
	}

	// Contracts expect v in {27, 28}.
	sig[64] += 27
	return sig, nil
}

// classifyMinterError maps RelayMinter revert reasons to stable codes.
func classifyMinterError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "ExpiredSignature"):
		return &TxError{HTTPStatus: 400, Code: "EXPIRED_SIGNATURE", Retryable: false, Err: err}
	case strings.Contains(msg, "ActionAlreadyUsed"):
		return &TxError{HTTPStatus: 409, Code: "ACTION_ALREADY_USED", Retryable: false, Err: err}
	case strings.Contains(msg, "InvalidSigner"):
		return &TxError{HTTPStatus: 401, Code: "INVALID_SIGNER", Retryable: false, Err: err}
	default:
		return err
	}
}
