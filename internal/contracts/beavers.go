package contracts

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/sirupsen/logrus"

	"github.com/ereyli/Burrowburr/internal/codec"
	"github.com/ereyli/Burrowburr/internal/gateway"
	"github.com/ereyli/Burrowburr/internal/types"
)

// BeaverType is the on-chain type index
type BeaverType uint8

const (
	Noob BeaverType = iota
	Pro
	Degen
)

// MaxLevel is the highest beaver level
const MaxLevel = 5

func (t BeaverType) String() string {
	switch t {
	case Noob:
		return "Noob"
	case Pro:
		return "Pro"
	case Degen:
		return "Degen"
	default:
		return fmt.Sprintf("BeaverType(%d)", uint8(t))
	}
}

// Valid reports whether t is a known type
func (t BeaverType) Valid() bool { return t <= Degen }

// BeaverTypeFromDisplay maps the 1-based menu number to the contract type
func BeaverTypeFromDisplay(n int) (BeaverType, error) {
	if n < 1 || n > 3 {
		return 0, fmt.Errorf("beaver type must be 1 (Noob), 2 (Pro) or 3 (Degen), got %d", n)
	}
	return BeaverType(n - 1), nil
}

// ParseBeaverType accepts a type name or its 1-based menu number
func ParseBeaverType(s string) (BeaverType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "noob", "1":
		return Noob, nil
	case "pro", "2":
		return Pro, nil
	case "degen", "3":
		return Degen, nil
	default:
		return 0, fmt.Errorf("unknown beaver type %q", s)
	}
}

// hourly BURR per type, whole tokens
var baseRates = [...]int64{Noob: 300, Pro: 750, Degen: 2250}

// level multipliers in thousandths
var levelMultipliers = [...]int64{1: 1000, 2: 1500, 3: 2250, 4: 3375, 5: 5062}

// stake costs in whole STRK
var stakeCosts = [...]int64{Noob: 50, Pro: 120, Degen: 350}

// upgrade costs in whole BURR, for upgrading from level 1 and from levels 2-4
var upgradeCosts = [2][3]int64{
	{40_000, 80_000, 203_000},
	{80_000, 160_000, 406_000},
}

func tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), codec.Pow10(codec.DefaultDecimals))
}

// HourlyRate is the exact per-hour accrual of a beaver in base units:
// base * 10^18 * multiplier / 1000
func HourlyRate(t BeaverType, level uint8) *big.Int {
	if !t.Valid() || level < 1 || level > MaxLevel {
		return new(big.Int)
	}
	rate := tokens(baseRates[t])
	rate.Mul(rate, big.NewInt(levelMultipliers[level]))
	return rate.Quo(rate, big.NewInt(1000))
}

// StakeCost is the STRK price of a new beaver
func StakeCost(t BeaverType) (*big.Int, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("unknown beaver type %d", t)
	}
	return tokens(stakeCosts[t]), nil
}

// UpgradeCost is the BURR price of upgrading a beaver from level
func UpgradeCost(t BeaverType, level uint8) (*big.Int, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("unknown beaver type %d", t)
	}
	if level < 1 {
		return nil, fmt.Errorf("invalid beaver level %d", level)
	}
	if level >= MaxLevel {
		return nil, ErrMaxLevel
	}
	tier := 0
	if level >= 2 {
		tier = 1
	}
	return tokens(upgradeCosts[tier][t]), nil
}

// Beaver is one staked beaver as read from the game contract
type Beaver struct {
	ID             uint64
	Owner          string
	Type           BeaverType
	Level          uint8
	LastClaim      uint64
	HourlyRate     *big.Int
	PendingRewards *big.Int
	// Legacy marks a beaver indexed for the owner that the contract no longer
	// attributes to them; it needs import_beaver before it earns
	Legacy bool
}

// PlayerInfo is a player's beavers with the aggregate pending reward split across them
type PlayerInfo struct {
	Address      string
	Beavers      []Beaver
	TotalRewards *big.Int
	Dropped      int
}

func isNotOwnerRevert(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "not beaver owner")
}

// Beaver reads get_beaver(owner, id) -> (id, type, level, last_claim, owner)
func (c *Composer) Beaver(ctx context.Context, owner string, id uint64) (*Beaver, error) {
	ownerF, err := parseAddress(owner)
	if err != nil {
		return nil, err
	}
	resp, err := c.call(ctx, c.game, "get_beaver", ownerF, new(felt.Felt).SetUint64(id))
	if err != nil {
		return nil, err
	}
	return parseBeaver(id, resp)
}

func parseBeaver(id uint64, resp []*felt.Felt) (*Beaver, error) {
	if err := need(resp, 5, "get_beaver"); err != nil {
		return nil, err
	}
	typ := feltUint64(resp[1])
	level := feltUint64(resp[2])
	if typ > uint64(Degen) {
		return nil, fmt.Errorf("%w: beaver %d has type %d", ErrMalformedResponse, id, typ)
	}
	if level < 1 || level > MaxLevel {
		return nil, fmt.Errorf("%w: beaver %d has level %d", ErrMalformedResponse, id, level)
	}
	b := &Beaver{
		ID:        id,
		Owner:     types.FeltToAddress(resp[4]),
		Type:      BeaverType(typ),
		Level:     uint8(level),
		LastClaim: feltUint64(resp[3]),
	}
	b.HourlyRate = HourlyRate(b.Type, b.Level)
	return b, nil
}

func legacyBeaver(id uint64, owner string) Beaver {
	return Beaver{
		ID:         id,
		Owner:      owner,
		Type:       Noob,
		Level:      1,
		HourlyRate: HourlyRate(Noob, 1),
		Legacy:     true,
	}
}

// PlayerInfo reads every beaver of owner and splits the aggregate pending
// reward across them by hourly rate. Records that fail to decode or belong
// to another owner are dropped and logged. An exhausted RPC read fails the
// whole call so the aggregate is never split over a partial set.
func (c *Composer) PlayerInfo(ctx context.Context, owner string) (*PlayerInfo, error) {
	info := &PlayerInfo{Address: owner, TotalRewards: new(big.Int)}

	ids, err := c.UserBeaverIDs(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to read beaver ids: %w", err)
	}
	if len(ids) == 0 {
		return info, nil
	}

	total, err := c.PendingRewards(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to read pending rewards: %w", err)
	}
	info.TotalRewards = total

	logger := c.log.WithField("owner", types.ShortAddress(owner))
	for _, id := range ids {
		b, err := c.Beaver(ctx, owner, id)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case errors.Is(err, gateway.ErrRPCExhausted):
			return nil, fmt.Errorf("failed to read beaver %d: %w", id, err)
		case isNotOwnerRevert(err):
			logger.WithField("beaver", id).Warn("⚠️  Beaver needs migration, adding legacy placeholder")
			info.Beavers = append(info.Beavers, legacyBeaver(id, owner))
			continue
		default:
			reason := "read_failed"
			if errors.Is(err, ErrMalformedResponse) {
				reason = "malformed"
			}
			c.metrics.Dropped(reason)
			info.Dropped++
			logger.WithError(err).WithField("beaver", id).Warn("⚠️  Skipping beaver record")
			continue
		}

		if !types.SameAddress(b.Owner, owner) {
			c.metrics.Dropped("owner_mismatch")
			info.Dropped++
			logger.WithFields(logrus.Fields{
				"beaver": id,
				"owner":  types.NormalizeAddress(b.Owner),
				"error":  ErrOwnershipMismatch,
			}).Warn("⚠️  Ownership mismatch, dropping beaver")
			continue
		}
		info.Beavers = append(info.Beavers, *b)
	}

	rates := make([]*big.Int, len(info.Beavers))
	for i := range info.Beavers {
		rates[i] = info.Beavers[i].HourlyRate
	}
	for i, share := range Distribute(total, rates) {
		info.Beavers[i].PendingRewards = share
	}
	return info, nil
}

// Distribute splits total across entries in proportion to rates with floor
// rounding: share_i = total * rate_i / sum(rates). The remainder is never
// assigned. A zero rate sum yields all-zero shares.
func Distribute(total *big.Int, rates []*big.Int) []*big.Int {
	shares := make([]*big.Int, len(rates))
	sum := new(big.Int)
	for _, r := range rates {
		if r != nil && r.Sign() > 0 {
			sum.Add(sum, r)
		}
	}
	for i, r := range rates {
		shares[i] = new(big.Int)
		if total == nil || total.Sign() <= 0 || sum.Sign() == 0 || r == nil || r.Sign() <= 0 {
			continue
		}
		shares[i].Mul(total, r)
		shares[i].Quo(shares[i], sum)
	}
	return shares
}
