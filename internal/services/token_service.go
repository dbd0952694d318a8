package services

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"relay-backend/internal/config"
)

const erc20ReadABI = `[
	{"name":"name","type":"function","stateMutability":"view","inputs":[],"outputs":[{"type":"string"}]},
	{"name":"symbol","type":"function","stateMutability":"view","inputs":[],"outputs":[{"type":"string"}]},
	{"name":"decimals","type":"function","stateMutability":"view","inputs":[],"outputs":[{"type":"uint8"}]},
	{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"type":"uint256"}]}
]`

// TokenReader performs static reads against the token contract.
type TokenReader struct {
	backend ChainBackend
	token   common.Address
	abi     abi.ABI
}

func NewTokenReader(cfg *config.Config, backend ChainBackend) (*TokenReader, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ReadABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC-20 ABI: %w", err)
	}

	return &TokenReader{
		backend: backend,
		token:   common.HexToAddress(cfg.Network.TokenAddress),
		abi:     parsed,
	}, nil
}

func (r *TokenReader) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := r.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s call: %w", method, err)
	}

	out, err := r.backend.CallContract(ctx, ethereum.CallMsg{To: &r.token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s call failed: %w", method, err)
	}

	return r.abi.Unpack(method, out)
}

// BalanceOf reads the token balance of an address.
func (r *TokenReader) BalanceOf(ctx context.Context, address string) (*big.Int, error) {
	out, err := r.call(ctx, "balanceOf", common.HexToAddress(address))
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// Decimals reads the token decimals.
func (r *TokenReader) Decimals(ctx context.Context) (uint8, error) {
	out, err := r.call(ctx, "decimals")
	if err != nil {
		return 0, err
	}
	return out[0].(uint8), nil
}

// Metadata reads name, symbol and decimals in one pass. Used by the health
// check to prove the contract answers static calls.
func (r *TokenReader) Metadata(ctx context.Context) (name, symbol string, decimals uint8, err error) {
	nameOut, err := r.call(ctx, "name")
	if err != nil {
		return "", "", 0, err
	}
	symbolOut, err := r.call(ctx, "symbol")
	if err != nil {
		return "", "", 0, err
	}
	decimalsOut, err := r.call(ctx, "decimals")
	if err != nil {
		return "", "", 0, err
	}
	return nameOut[0].(string), symbolOut[0].(string), decimalsOut[0].(uint8), nil
}
