package contracts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/starknet.go/utils"
	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ereyli/Burrowburr/internal/config"
	"github.com/ereyli/Burrowburr/internal/metrics"
	"github.com/ereyli/Burrowburr/pkg/starknetutil"
)

// Module: Contract call composer
// Builds every read and write against the token, game and staking contracts.
//
// Interface Contract:
// - Reads go through the retrying chain gateway and decode positionally
// - Value-moving writes check balance and allowance, prepending an unlimited approval when short
// - Batches are submitted atomically first, then call by call
//
// The composer holds no session. Writes take the signer for that one operation.

const DefaultFallbackDelay = 2 * time.Second

var (
	// ErrInsufficientAllowance marks a batch that needs an approval prepended. It never leaves the package.
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	// ErrOwnershipMismatch marks a record whose owner is not the requested address. It is logged, never returned.
	ErrOwnershipMismatch = errors.New("beaver owner does not match requested address")
	// ErrInsufficientBalance is user-actionable: the wallet cannot cover the cost
	ErrInsufficientBalance = errors.New("insufficient token balance")
	// ErrMalformedResponse means a read returned fewer fields than its layout needs
	ErrMalformedResponse = errors.New("malformed contract response")
	// ErrMaxLevel means the beaver cannot be upgraded further
	ErrMaxLevel = errors.New("beaver is already at max level")
	// ErrNoCalls means Submit was given an empty batch
	ErrNoCalls = errors.New("no calls to submit")
)

// Options configures a Composer
type Options struct {
	Chain         starknetutil.Caller
	Network       config.NetworkConfig
	Logger        *logrus.Logger
	Metrics       *metrics.Metrics
	Clock         clock.Clock
	FallbackDelay time.Duration
	// NewOperationID overrides uuid generation in tests
	NewOperationID func() string
}

// Composer issues contract reads and composes write batches
type Composer struct {
	chain   starknetutil.Caller
	network config.NetworkConfig
	log     *logrus.Logger
	metrics *metrics.Metrics
	clk     clock.Clock
	delay   time.Duration
	newID   func() string

	burr    *felt.Felt
	strk    *felt.Felt
	game    *felt.Felt
	staking *felt.Felt
}

// New validates the network's contract addresses and builds a Composer
func New(opts Options) (*Composer, error) {
	if opts.Chain == nil {
		return nil, fmt.Errorf("chain caller is required")
	}
	c := &Composer{
		chain:   opts.Chain,
		network: opts.Network,
		log:     opts.Logger,
		metrics: opts.Metrics,
		clk:     opts.Clock,
		delay:   opts.FallbackDelay,
		newID:   opts.NewOperationID,
	}
	if c.log == nil {
		c.log = logrus.StandardLogger()
	}
	if c.clk == nil {
		c.clk = clock.New()
	}
	if c.delay < 0 {
		c.delay = 0
	} else if c.delay == 0 {
		c.delay = DefaultFallbackDelay
	}
	if c.newID == nil {
		c.newID = func() string { return uuid.NewString() }
	}

	addrs := []struct {
		name string
		hex  string
		dst  **felt.Felt
	}{
		{"BURR token", opts.Network.BurrToken, &c.burr},
		{"STRK token", opts.Network.StrkToken, &c.strk},
		{"game contract", opts.Network.GameContract, &c.game},
		{"staking contract", opts.Network.StakingContract, &c.staking},
	}
	for _, a := range addrs {
		f, err := utils.HexToFelt(a.hex)
		if err != nil {
			return nil, fmt.Errorf("invalid %s address %q: %w", a.name, a.hex, err)
		}
		*a.dst = f
	}
	return c, nil
}

// Network returns the profile the composer targets
func (c *Composer) Network() config.NetworkConfig { return c.network }

func (c *Composer) call(ctx context.Context, contract *felt.Felt, entrypoint string, calldata ...*felt.Felt) ([]*felt.Felt, error) {
	return c.chain.Call(ctx, contract, entrypoint, calldata...)
}

func parseAddress(address string) (*felt.Felt, error) {
	f, err := utils.HexToFelt(address)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", address, err)
	}
	return f, nil
}

func need(resp []*felt.Felt, n int, entrypoint string) error {
	if len(resp) < n {
		return fmt.Errorf("%w: %s returned %d felts, want %d", ErrMalformedResponse, entrypoint, len(resp), n)
	}
	return nil
}
