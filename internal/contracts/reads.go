package contracts

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/starknet.go/utils"
	"github.com/sirupsen/logrus"

	"github.com/ereyli/Burrowburr/internal/codec"
	"github.com/ereyli/Burrowburr/internal/types"
	"github.com/ereyli/Burrowburr/pkg/starknetutil"
)

// MaxSupply is the fixed BURR supply cap, 2.1B tokens
var MaxSupply = new(big.Int).Mul(big.NewInt(2_100_000_000), codec.Pow10(codec.DefaultDecimals))

// Balances holds a wallet's token balances
type Balances struct {
	Burr *big.Int
	Strk *big.Int
}

// TokenInfo describes the BURR token
type TokenInfo struct {
	Name        string
	Symbol      string
	Decimals    uint8
	TotalSupply *big.Int
	MaxSupply   *big.Int
	TotalBurned *big.Int
}

// Analytics is the game-wide summary
type Analytics struct {
	TotalBeaversStaked uint64
	TotalBurrClaimed   *big.Int
	TotalStrkCollected *big.Int
	TotalBurrBurned    *big.Int
	NoobCount          uint64
	ProCount           uint64
	DegenCount         uint64
	ActiveUsers        uint64
	TotalUpgrades      uint64
}

// UnstakeRequest is a pending withdrawal from the staking contract
type UnstakeRequest struct {
	Amount      *big.Int
	RequestedAt uint64
	WithdrawAt  uint64
}

// StakingOverview aggregates a wallet's staking position
type StakingOverview struct {
	Staked         *big.Int
	PendingRewards *big.Int
	TotalStaked    *big.Int
	RewardPool     *big.Int
	RewardRate     *big.Int
	Unstake        *UnstakeRequest
}

func feltUint64(f *felt.Felt) uint64 {
	return utils.FeltToBigInt(f).Uint64()
}

// u256At decodes the limb pair starting at resp[i]
func u256At(resp []*felt.Felt, i int) *big.Int {
	return codec.Decode(codec.Limbs{Low: resp[i], High: resp[i+1]}).Amount()
}

// decodeAmount reads a u256 response, tolerating single-felt encodings
func decodeAmount(resp []*felt.Felt, entrypoint string) (*big.Int, error) {
	if err := need(resp, 1, entrypoint); err != nil {
		return nil, err
	}
	if len(resp) > 2 {
		resp = resp[:2]
	}
	d := codec.Decode(resp)
	if !d.OK() {
		return nil, fmt.Errorf("%w: %s value not numeric", ErrMalformedResponse, entrypoint)
	}
	return d.Amount(), nil
}

func (c *Composer) readAmount(ctx context.Context, contract *felt.Felt, entrypoint string, calldata ...*felt.Felt) (*big.Int, error) {
	resp, err := c.call(ctx, contract, entrypoint, calldata...)
	if err != nil {
		return nil, err
	}
	return decodeAmount(resp, entrypoint)
}

// Balances reads BURR and STRK balances of owner
func (c *Composer) Balances(ctx context.Context, owner string) (*Balances, error) {
	burr, err := starknetutil.ERC20Balance(ctx, c.chain, c.network.BurrToken, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to read BURR balance: %w", err)
	}
	strk, err := starknetutil.ERC20Balance(ctx, c.chain, c.network.StrkToken, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to read STRK balance: %w", err)
	}
	return &Balances{Burr: burr, Strk: strk}, nil
}

// Allowance reads allowance(owner, spender), falling back to get_allowance.
// When neither entrypoint answers the allowance is reported as zero so the
// caller prepends an approval.
func (c *Composer) Allowance(ctx context.Context, token, owner, spender string) (*big.Int, error) {
	tokenF, err := parseAddress(token)
	if err != nil {
		return nil, err
	}
	ownerF, err := parseAddress(owner)
	if err != nil {
		return nil, err
	}
	spenderF, err := parseAddress(spender)
	if err != nil {
		return nil, err
	}

	allowance, err := starknetutil.ERC20Allowance(ctx, c.chain, token, owner, spender)
	if err == nil {
		return allowance, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	allowance, ferr := c.readAmount(ctx, tokenF, "get_allowance", ownerF, spenderF)
	if ferr == nil {
		return allowance, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	c.log.WithFields(logrus.Fields{
		"token":   types.ShortAddress(token),
		"spender": types.ShortAddress(spender),
		"error":   errors.Join(err, ferr),
	}).Warn("⚠️  Allowance function not found, assuming 0")
	return new(big.Int), nil
}

// TokenInfo reads BURR metadata, minted supply and the game's burned total
func (c *Composer) TokenInfo(ctx context.Context) (*TokenInfo, error) {
	info := &TokenInfo{MaxSupply: new(big.Int).Set(MaxSupply), Decimals: codec.DefaultDecimals}

	supply, err := c.readAmount(ctx, c.burr, "total_supply")
	if err != nil {
		return nil, fmt.Errorf("failed to read total supply: %w", err)
	}
	info.TotalSupply = supply

	if info.Name, err = c.readString(ctx, c.burr, "name"); err != nil {
		return nil, err
	}
	if info.Symbol, err = c.readString(ctx, c.burr, "symbol"); err != nil {
		return nil, err
	}

	resp, err := c.call(ctx, c.burr, "decimals")
	if err != nil {
		return nil, fmt.Errorf("failed to read decimals: %w", err)
	}
	if err := need(resp, 1, "decimals"); err != nil {
		return nil, err
	}
	info.Decimals = uint8(feltUint64(resp[0]))

	burned, err := c.readAmount(ctx, c.game, "get_total_burned")
	if err != nil {
		c.log.WithError(err).Warn("⚠️  Could not read total burned")
		burned = new(big.Int)
	}
	info.TotalBurned = burned
	return info, nil
}

// readString decodes a Cairo ByteArray, or a legacy short string in one felt
func (c *Composer) readString(ctx context.Context, contract *felt.Felt, entrypoint string) (string, error) {
	resp, err := c.call(ctx, contract, entrypoint)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", entrypoint, err)
	}
	if err := need(resp, 1, entrypoint); err != nil {
		return "", err
	}
	if len(resp) == 1 {
		b := resp[0].Bytes()
		return strings.TrimLeft(string(b[:]), "\x00"), nil
	}
	s, err := utils.ByteArrFeltToString(resp)
	if err != nil {
		return "", fmt.Errorf("%w: %s is not a byte array: %v", ErrMalformedResponse, entrypoint, err)
	}
	return s, nil
}

// UserBeaverIDs reads the owner's beaver ids. The list has no length
// prefix; zero ids are skipped.
func (c *Composer) UserBeaverIDs(ctx context.Context, owner string) ([]uint64, error) {
	ownerF, err := parseAddress(owner)
	if err != nil {
		return nil, err
	}
	resp, err := c.call(ctx, c.game, "get_user_beavers", ownerF)
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(resp))
	for _, f := range resp {
		if f == nil || f.IsZero() {
			continue
		}
		ids = append(ids, feltUint64(f))
	}
	return ids, nil
}

// PendingRewards reads the owner's aggregate unclaimed game rewards
func (c *Composer) PendingRewards(ctx context.Context, owner string) (*big.Int, error) {
	ownerF, err := parseAddress(owner)
	if err != nil {
		return nil, err
	}
	return c.readAmount(ctx, c.game, "calculate_pending_rewards", ownerF)
}

// EmergencyStatus reports whether the game is paused
func (c *Composer) EmergencyStatus(ctx context.Context) (bool, error) {
	resp, err := c.call(ctx, c.game, "get_emergency_status")
	if err != nil {
		return false, err
	}
	if err := need(resp, 1, "get_emergency_status"); err != nil {
		return false, err
	}
	return !resp[0].IsZero(), nil
}

// ActiveUsersCount reads the number of players with at least one beaver
func (c *Composer) ActiveUsersCount(ctx context.Context) (uint64, error) {
	resp, err := c.call(ctx, c.game, "get_active_users_count")
	if err != nil {
		return 0, err
	}
	if err := need(resp, 1, "get_active_users_count"); err != nil {
		return 0, err
	}
	return feltUint64(resp[0]), nil
}

// BeaverTypeStats reads the noob, pro and degen population
func (c *Composer) BeaverTypeStats(ctx context.Context) (noob, pro, degen uint64, err error) {
	resp, err := c.call(ctx, c.game, "get_beaver_type_stats")
	if err != nil {
		return 0, 0, 0, err
	}
	if len(resp) != 3 {
		return 0, 0, 0, fmt.Errorf("%w: get_beaver_type_stats returned %d felts, want 3", ErrMalformedResponse, len(resp))
	}
	return feltUint64(resp[0]), feltUint64(resp[1]), feltUint64(resp[2]), nil
}

// GameAnalytics reads the positional analytics tuple. Population counts and
// active users come from their dedicated entrypoints when those answer.
func (c *Composer) GameAnalytics(ctx context.Context) (*Analytics, error) {
	resp, err := c.call(ctx, c.game, "get_game_analytics")
	if err != nil {
		return nil, err
	}
	a, err := parseAnalytics(resp)
	if err != nil {
		return nil, err
	}

	if active, err := c.ActiveUsersCount(ctx); err == nil {
		a.ActiveUsers = active
	} else {
		c.log.WithError(err).Debug("get_active_users_count unavailable, keeping analytics value")
	}
	if noob, pro, degen, err := c.BeaverTypeStats(ctx); err == nil {
		a.NoobCount, a.ProCount, a.DegenCount = noob, pro, degen
	} else {
		c.log.WithError(err).Debug("get_beaver_type_stats unavailable, keeping analytics values")
	}
	return a, nil
}

// parseAnalytics reads the 9-field layout. A 12-felt response carries the
// three token totals as u256 limb pairs.
func parseAnalytics(resp []*felt.Felt) (*Analytics, error) {
	if err := need(resp, 9, "get_game_analytics"); err != nil {
		return nil, err
	}
	a := &Analytics{TotalBeaversStaked: feltUint64(resp[0])}
	rest := resp[4:]
	if len(resp) >= 12 {
		a.TotalBurrClaimed = u256At(resp, 1)
		a.TotalStrkCollected = u256At(resp, 3)
		a.TotalBurrBurned = u256At(resp, 5)
		rest = resp[7:]
	} else {
		a.TotalBurrClaimed = codec.DecodeAmount(resp[1])
		a.TotalStrkCollected = codec.DecodeAmount(resp[2])
		a.TotalBurrBurned = codec.DecodeAmount(resp[3])
	}
	a.NoobCount = feltUint64(rest[0])
	a.ProCount = feltUint64(rest[1])
	a.DegenCount = feltUint64(rest[2])
	a.ActiveUsers = feltUint64(rest[3])
	a.TotalUpgrades = feltUint64(rest[4])
	return a, nil
}

// StakedAmount reads the owner's staked BURR, falling back to the first
// field of the staking position struct
func (c *Composer) StakedAmount(ctx context.Context, owner string) (*big.Int, error) {
	ownerF, err := parseAddress(owner)
	if err != nil {
		return nil, err
	}
	amount, err := c.readAmount(ctx, c.staking, "get_user_staked_amount", ownerF)
	if err == nil {
		return amount, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	c.log.WithError(err).Debug("get_user_staked_amount unavailable, reading staking position")
	return c.readAmount(ctx, c.staking, "get_staking_position", ownerF)
}

// UnstakeRequest reads the owner's pending withdrawal, nil when none
func (c *Composer) UnstakeRequest(ctx context.Context, owner string) (*UnstakeRequest, error) {
	ownerF, err := parseAddress(owner)
	if err != nil {
		return nil, err
	}
	resp, err := c.call(ctx, c.staking, "get_unstake_request", ownerF)
	if err != nil {
		return nil, err
	}
	if err := need(resp, 4, "get_unstake_request"); err != nil {
		return nil, err
	}
	amount := u256At(resp, 0)
	if amount.Sign() == 0 {
		return nil, nil
	}
	return &UnstakeRequest{
		Amount:      amount,
		RequestedAt: feltUint64(resp[2]),
		WithdrawAt:  feltUint64(resp[3]),
	}, nil
}

// StakingOverview reads the owner's position. Pool-wide figures and the
// unstake request are best effort and left zero or nil when unavailable.
func (c *Composer) StakingOverview(ctx context.Context, owner string) (*StakingOverview, error) {
	ownerF, err := parseAddress(owner)
	if err != nil {
		return nil, err
	}
	staked, err := c.StakedAmount(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to read staked amount: %w", err)
	}
	pending, err := c.readAmount(ctx, c.staking, "get_pending_rewards", ownerF)
	if err != nil {
		return nil, fmt.Errorf("failed to read staking rewards: %w", err)
	}

	o := &StakingOverview{Staked: staked, PendingRewards: pending}
	optional := []struct {
		entrypoint string
		dst        **big.Int
	}{
		{"get_total_staked", &o.TotalStaked},
		{"get_reward_pool_balance", &o.RewardPool},
		{"get_reward_rate", &o.RewardRate},
	}
	for _, opt := range optional {
		v, err := c.readAmount(ctx, c.staking, opt.entrypoint)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.log.WithError(err).WithField("entrypoint", opt.entrypoint).Debug("optional staking read failed")
			v = new(big.Int)
		}
		*opt.dst = v
	}

	if o.Unstake, err = c.UnstakeRequest(ctx, owner); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.log.WithError(err).Debug("no unstake request available")
	}
	return o, nil
}
