package contracts

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/starknet.go/rpc"
	"github.com/sirupsen/logrus"

	"github.com/ereyli/Burrowburr/internal/codec"
	"github.com/ereyli/Burrowburr/internal/schedule"
	"github.com/ereyli/Burrowburr/internal/types"
	"github.com/ereyli/Burrowburr/internal/wallet"
	"github.com/ereyli/Burrowburr/pkg/starknetutil"
)

// Signer submits invoke batches for one account. *wallet.Handle satisfies it.
type Signer interface {
	Address() string
	Execute(ctx context.Context, calls []rpc.InvokeFunctionCall) (*felt.Felt, error)
}

// Submission modes
const (
	ModeAtomic     = "atomic"
	ModeSequential = "sequential"
)

// Result describes a submitted operation
type Result struct {
	OperationID string
	Action      string
	Mode        string
	TxHashes    []*felt.Felt
}

// BatchError is a sequential submission that stopped part way. Submitted
// holds the hashes of calls that were accepted before the failure.
type BatchError struct {
	OperationID string
	Submitted   []*felt.Felt
	Atomic      error
	Err         error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch %s failed after %d submitted call(s): %v", e.OperationID, len(e.Submitted), e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

func noFallback(err error) bool {
	return errors.Is(err, wallet.ErrHandleInvalidated) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		wallet.IsCancelledError(err)
}

// Submit sends calls as one atomic multicall. When a multi-call batch is
// rejected the calls are resubmitted one at a time with the fallback delay
// between them; each submission is awaited for acceptance, not inclusion.
func (c *Composer) Submit(ctx context.Context, s Signer, action string, calls []rpc.InvokeFunctionCall) (*Result, error) {
	if len(calls) == 0 {
		return nil, ErrNoCalls
	}
	res := &Result{OperationID: c.newID(), Action: action, Mode: ModeAtomic}
	logger := c.log.WithFields(logrus.Fields{
		"operation": res.OperationID,
		"action":    action,
		"calls":     len(calls),
	})

	hash, err := s.Execute(ctx, calls)
	if err == nil {
		res.TxHashes = []*felt.Felt{hash}
		c.metrics.Batch(ModeAtomic, "ok")
		logger.WithField("tx", hash.String()).Info("✅ Transaction submitted")
		return res, nil
	}
	c.metrics.Batch(ModeAtomic, "failed")
	if len(calls) == 1 || noFallback(err) {
		return nil, err
	}

	logger.WithError(err).Warn("⚠️  Multicall rejected, submitting calls one by one")
	res.Mode = ModeSequential
	for i, call := range calls {
		if i > 0 {
			if serr := c.sleep(ctx); serr != nil {
				c.metrics.Batch(ModeSequential, "failed")
				return nil, &BatchError{OperationID: res.OperationID, Submitted: res.TxHashes, Atomic: err, Err: serr}
			}
		}
		hash, cerr := s.Execute(ctx, []rpc.InvokeFunctionCall{call})
		if cerr != nil {
			c.metrics.Batch(ModeSequential, "failed")
			logger.WithError(cerr).WithFields(logrus.Fields{
				"step":       i + 1,
				"entrypoint": call.FunctionName,
			}).Error("❌ Sequential submission failed")
			return nil, &BatchError{OperationID: res.OperationID, Submitted: res.TxHashes, Atomic: err, Err: cerr}
		}
		logger.WithFields(logrus.Fields{
			"step": i + 1,
			"tx":   hash.String(),
		}).Info("🔄 Submitted call")
		res.TxHashes = append(res.TxHashes, hash)
	}
	c.metrics.Batch(ModeSequential, "ok")
	logger.Info("✅ Sequential submission complete")
	return res, nil
}

func (c *Composer) sleep(ctx context.Context) error {
	return schedule.Sleep(ctx, c.clk, c.delay)
}

// checkAllowance returns ErrInsufficientAllowance when owner has not approved
// spender for at least amount
func (c *Composer) checkAllowance(ctx context.Context, token, owner, spender string, amount *big.Int) error {
	allowance, err := c.Allowance(ctx, token, owner, spender)
	if err != nil {
		return fmt.Errorf("failed to read allowance: %w", err)
	}
	if allowance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientAllowance, allowance, amount)
	}
	return nil
}

// valueMove builds the batch for an action that pulls amount of token from
// the signer into spender: balance check, then an unlimited approval
// prepended when the current allowance is short
func (c *Composer) valueMove(ctx context.Context, owner, token, symbol, spender string, amount *big.Int, action rpc.InvokeFunctionCall) ([]rpc.InvokeFunctionCall, error) {
	balance, err := starknetutil.ERC20Balance(ctx, c.chain, token, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s balance: %w", symbol, err)
	}
	if balance.Cmp(amount) < 0 {
		return nil, fmt.Errorf("%w: need %s %s, have %s", ErrInsufficientBalance,
			codec.FormatUnits(amount, codec.DefaultDecimals), symbol,
			codec.FormatUnits(balance, codec.DefaultDecimals))
	}

	err = c.checkAllowance(ctx, token, owner, spender, amount)
	switch {
	case err == nil:
		return []rpc.InvokeFunctionCall{action}, nil
	case !errors.Is(err, ErrInsufficientAllowance):
		return nil, err
	}

	c.log.WithFields(logrus.Fields{
		"token":   symbol,
		"spender": types.ShortAddress(spender),
	}).Info("🔓 Approval required, prepending unlimited approve")
	approve, err := starknetutil.ERC20Approve(token, spender, starknetutil.MaxU256())
	if err != nil {
		return nil, err
	}
	return []rpc.InvokeFunctionCall{*approve, action}, nil
}

func (c *Composer) invoke(contract *felt.Felt, entrypoint string, calldata ...*felt.Felt) rpc.InvokeFunctionCall {
	if calldata == nil {
		calldata = []*felt.Felt{}
	}
	return rpc.InvokeFunctionCall{
		ContractAddress: contract,
		FunctionName:    entrypoint,
		CallData:        calldata,
	}
}

func u256Calldata(amount *big.Int) []*felt.Felt {
	low, high := starknetutil.ConvertBigIntToU256Felts(amount)
	return []*felt.Felt{low, high}
}

// StakeBeaver buys a beaver of type t for STRK
func (c *Composer) StakeBeaver(ctx context.Context, s Signer, t BeaverType) (*Result, error) {
	cost, err := StakeCost(t)
	if err != nil {
		return nil, err
	}
	action := c.invoke(c.game, "stake_beaver", new(felt.Felt).SetUint64(uint64(t)))
	calls, err := c.valueMove(ctx, s.Address(), c.network.StrkToken, "STRK", c.network.GameContract, cost, action)
	if err != nil {
		return nil, err
	}
	return c.Submit(ctx, s, "stake_beaver", calls)
}

// UpgradeBeaver raises beaver id by one level, paying BURR
func (c *Composer) UpgradeBeaver(ctx context.Context, s Signer, id uint64, t BeaverType, level uint8) (*Result, error) {
	cost, err := UpgradeCost(t, level)
	if err != nil {
		return nil, err
	}
	action := c.invoke(c.game, "upgrade_beaver", new(felt.Felt).SetUint64(id))
	calls, err := c.valueMove(ctx, s.Address(), c.network.BurrToken, "BURR", c.network.GameContract, cost, action)
	if err != nil {
		return nil, err
	}
	return c.Submit(ctx, s, "upgrade_beaver", calls)
}

// Stake deposits amount BURR into the staking contract
func (c *Composer) Stake(ctx context.Context, s Signer, amount *big.Int) (*Result, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("stake amount must be positive")
	}
	action := c.invoke(c.staking, "stake", u256Calldata(amount)...)
	calls, err := c.valueMove(ctx, s.Address(), c.network.BurrToken, "BURR", c.network.StakingContract, amount, action)
	if err != nil {
		return nil, err
	}
	return c.Submit(ctx, s, "stake", calls)
}

// Unstake requests a withdrawal of amount staked BURR
func (c *Composer) Unstake(ctx context.Context, s Signer, amount *big.Int) (*Result, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("unstake amount must be positive")
	}
	staked, err := c.StakedAmount(ctx, s.Address())
	if err != nil {
		return nil, fmt.Errorf("failed to read staked amount: %w", err)
	}
	if staked.Cmp(amount) < 0 {
		return nil, fmt.Errorf("%w: %s BURR staked", ErrInsufficientBalance, codec.FormatUnits(staked, codec.DefaultDecimals))
	}
	return c.Submit(ctx, s, "unstake", []rpc.InvokeFunctionCall{c.invoke(c.staking, "unstake", u256Calldata(amount)...)})
}

// ClaimStakingRewards claims accrued staking rewards
func (c *Composer) ClaimStakingRewards(ctx context.Context, s Signer) (*Result, error) {
	return c.Submit(ctx, s, "claim_rewards", []rpc.InvokeFunctionCall{c.invoke(c.staking, "claim_rewards")})
}

// ClaimGameRewards claims BURR accrued by every beaver of the signer
func (c *Composer) ClaimGameRewards(ctx context.Context, s Signer) (*Result, error) {
	return c.Submit(ctx, s, "claim", []rpc.InvokeFunctionCall{c.invoke(c.game, "claim")})
}

// WithdrawUnstaked withdraws a matured unstake request
func (c *Composer) WithdrawUnstaked(ctx context.Context, s Signer) (*Result, error) {
	return c.Submit(ctx, s, "withdraw_unstaked", []rpc.InvokeFunctionCall{c.invoke(c.staking, "withdraw_unstaked")})
}
