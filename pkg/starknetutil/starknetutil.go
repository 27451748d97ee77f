package starknetutil

// Shared helpers for Cairo u256 values and ERC20 calls.
// - u256 values travel as two felts (low 128 bits, high 128 bits)
// - ERC20 reads go through a Caller, which pins the block

import (
	"context"
	"fmt"
	"math/big"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/starknet.go/rpc"
	"github.com/NethermindEth/starknet.go/utils"
	"github.com/holiman/uint256"
)

const U128BitShift = 128

// Caller invokes a view entrypoint by name. The chain gateway satisfies it.
type Caller interface {
	Call(ctx context.Context, contract *felt.Felt, entrypoint string, calldata ...*felt.Felt) ([]*felt.Felt, error)
}

var lowMask = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), U128BitShift), big.NewInt(1))

// MaxU256 returns 2^256 - 1, the unlimited approval amount.
func MaxU256() *big.Int {
	return new(uint256.Int).SetAllOne().ToBig()
}

// ConvertBigIntToU256Felts converts a big.Int to two felts, one for the low 128 bits and one for the high 128 bits
func ConvertBigIntToU256Felts(value *big.Int) (low *felt.Felt, high *felt.Felt) {
	if value == nil {
		value = new(big.Int)
	}
	low = utils.BigIntToFelt(new(big.Int).And(value, lowMask))
	high = utils.BigIntToFelt(new(big.Int).Rsh(value, U128BitShift))
	return low, high
}

// U256FromFelts joins a (low, high) limb pair
func U256FromFelts(low, high *felt.Felt) *big.Int {
	out := new(big.Int)
	if high != nil {
		out.Lsh(utils.FeltToBigInt(high), U128BitShift)
	}
	if low != nil {
		out.Or(out, utils.FeltToBigInt(low))
	}
	return out
}

// ERC20Balance reads balance_of(owner) -> u256
func ERC20Balance(ctx context.Context, caller Caller, tokenAddress, ownerAddress string) (*big.Int, error) {
	tokenFelt, err := utils.HexToFelt(tokenAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid token address: %w", err)
	}
	ownerFelt, err := utils.HexToFelt(ownerAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid owner address: %w", err)
	}

	return callU256(ctx, caller, tokenFelt, "balance_of", ownerFelt)
}

// ERC20Allowance reads allowance(owner, spender) -> u256
func ERC20Allowance(ctx context.Context, caller Caller, tokenAddress, ownerAddress, spenderAddress string) (*big.Int, error) {
	tokenFelt, err := utils.HexToFelt(tokenAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid token address: %w", err)
	}
	ownerFelt, err := utils.HexToFelt(ownerAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid owner address: %w", err)
	}
	spenderFelt, err := utils.HexToFelt(spenderAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid spender address: %w", err)
	}

	return callU256(ctx, caller, tokenFelt, "allowance", ownerFelt, spenderFelt)
}

func callU256(ctx context.Context, caller Caller, contract *felt.Felt, entrypoint string, calldata ...*felt.Felt) (*big.Int, error) {
	resp, err := caller.Call(ctx, contract, entrypoint, calldata...)
	if err != nil {
		return nil, fmt.Errorf("%s call failed: %w", entrypoint, err)
	}
	switch len(resp) {
	case 0:
		return nil, fmt.Errorf("%s returned no data", entrypoint)
	case 1:
		return utils.FeltToBigInt(resp[0]), nil
	default:
		return U256FromFelts(resp[0], resp[1]), nil
	}
}

// ERC20Approve builds approve(spender, u256) as an invoke call
func ERC20Approve(tokenAddress, spenderAddress string, amount *big.Int) (*rpc.InvokeFunctionCall, error) {
	tokenFelt, err := utils.HexToFelt(tokenAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid token address: %w", err)
	}
	spenderFelt, err := utils.HexToFelt(spenderAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid spender address: %w", err)
	}

	low, high := ConvertBigIntToU256Felts(amount)
	return &rpc.InvokeFunctionCall{
		ContractAddress: tokenFelt,
		FunctionName:    "approve",
		CallData:        []*felt.Felt{spenderFelt, low, high},
	}, nil
}
