package contracts

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/starknet.go/rpc"
	"github.com/NethermindEth/starknet.go/utils"
	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ereyli/Burrowburr/internal/config"
	"github.com/ereyli/Burrowburr/internal/gateway"
	"github.com/ereyli/Burrowburr/internal/metrics"
	"github.com/ereyli/Burrowburr/internal/wallet"
	"github.com/ereyli/Burrowburr/pkg/starknetutil"
)

const (
	player   = "0x0092fb909857ba418627b9e40a7863f75768a0ea80d306fb5757eb7c3d4304d4"
	stranger = "0x0777"
)

var testNetwork = config.NetworkConfig{
	Name:            "test",
	BurrToken:       "0x0b0b",
	StrkToken:       "0x05715",
	GameContract:    "0x06a3e",
	StakingContract: "0x05a4e",
}

type response func(calldata []*felt.Felt) ([]*felt.Felt, error)

type fakeChain struct {
	mu        sync.Mutex
	responses map[string]response
	calls     []string
}

func newFakeChain() *fakeChain {
	return &fakeChain{responses: map[string]response{}}
}

func chainKey(contract *felt.Felt, entrypoint string) string {
	return contract.String() + "." + entrypoint
}

func (f *fakeChain) on(contract, entrypoint string, r response) {
	addr, err := utils.HexToFelt(contract)
	if err != nil {
		panic(err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[chainKey(addr, entrypoint)] = r
}

func (f *fakeChain) returns(contract, entrypoint string, out ...*felt.Felt) {
	f.on(contract, entrypoint, func([]*felt.Felt) ([]*felt.Felt, error) { return out, nil })
}

func (f *fakeChain) fails(contract, entrypoint string, err error) {
	f.on(contract, entrypoint, func([]*felt.Felt) ([]*felt.Felt, error) { return nil, err })
}

func (f *fakeChain) Call(_ context.Context, contract *felt.Felt, entrypoint string, calldata ...*felt.Felt) ([]*felt.Felt, error) {
	f.mu.Lock()
	f.calls = append(f.calls, entrypoint)
	r, ok := f.responses[chainKey(contract, entrypoint)]
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("entrypoint %s not found", entrypoint)
	}
	return r(calldata)
}

func (f *fakeChain) called(entrypoint string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == entrypoint {
			n++
		}
	}
	return n
}

type fakeSigner struct {
	addr string
	clk  clock.Clock

	mu          sync.Mutex
	rejectMulti bool
	failOn      string
	err         error
	batches     [][]rpc.InvokeFunctionCall
	submittedAt []time.Time
	nextHash    uint64
}

func (s *fakeSigner) Address() string { return s.addr }

func (s *fakeSigner) Execute(_ context.Context, calls []rpc.InvokeFunctionCall) (*felt.Felt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, calls)
	if s.clk != nil {
		s.submittedAt = append(s.submittedAt, s.clk.Now())
	}
	if s.err != nil {
		return nil, s.err
	}
	if s.rejectMulti && len(calls) > 1 {
		return nil, errors.New("multicall not supported by account")
	}
	for _, c := range calls {
		if c.FunctionName == s.failOn {
			return nil, fmt.Errorf("%s reverted", c.FunctionName)
		}
	}
	s.nextHash++
	return new(felt.Felt).SetUint64(0xa000 + s.nextHash), nil
}

func (s *fakeSigner) recorded() [][]rpc.InvokeFunctionCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]rpc.InvokeFunctionCall(nil), s.batches...)
}

func u64(v uint64) *felt.Felt { return new(felt.Felt).SetUint64(v) }

func addr(t *testing.T, hex string) *felt.Felt {
	t.Helper()
	f, err := utils.HexToFelt(hex)
	require.NoError(t, err)
	return f
}

func u256(v *big.Int) []*felt.Felt {
	low, high := starknetutil.ConvertBigIntToU256Felts(v)
	return []*felt.Felt{low, high}
}

func whole(n int64) *big.Int { return tokens(n) }

type harness struct {
	composer *Composer
	chain    *fakeChain
	clock    *clock.Mock
	metrics  *metrics.Metrics
	logs     *logrustest.Hook
}

func newHarness(t *testing.T, delay time.Duration) *harness {
	t.Helper()
	logger, hook := logrustest.NewNullLogger()
	mock := clock.NewMock()
	m := metrics.New(prometheus.NewRegistry())
	chain := newFakeChain()
	c, err := New(Options{
		Chain:          chain,
		Network:        testNetwork,
		Logger:         logger,
		Metrics:        m,
		Clock:          mock,
		FallbackDelay:  delay,
		NewOperationID: func() string { return "op-1" },
	})
	require.NoError(t, err)
	return &harness{composer: c, chain: chain, clock: mock, metrics: m, logs: hook}
}

func TestNewRejectsBadAddresses(t *testing.T) {
	_, err := New(Options{Network: testNetwork})
	assert.Error(t, err)

	bad := testNetwork
	bad.GameContract = "not-hex"
	_, err = New(Options{Chain: newFakeChain(), Network: bad})
	assert.ErrorContains(t, err, "game contract")
}

func TestDistribute(t *testing.T) {
	rates := func(vs ...int64) []*big.Int {
		out := make([]*big.Int, len(vs))
		for i, v := range vs {
			out[i] = big.NewInt(v)
		}
		return out
	}

	cases := []struct {
		name  string
		total int64
		rates []*big.Int
		want  []int64
	}{
		{"even split", 100, rates(1, 1), []int64{50, 50}},
		{"floor leaves remainder", 100, rates(1, 1, 1), []int64{33, 33, 33}},
		{"proportional", 1000, rates(300, 750, 2250), []int64{90, 227, 681}},
		{"zero rate sum", 500, rates(0, 0), []int64{0, 0}},
		{"zero total", 0, rates(5, 7), []int64{0, 0}},
		{"no entries", 10, nil, []int64{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Distribute(big.NewInt(tc.total), tc.rates)
			require.Len(t, got, len(tc.want))
			sum := new(big.Int)
			for i, share := range got {
				assert.Equal(t, tc.want[i], share.Int64(), "share %d", i)
				sum.Add(sum, share)
			}
			assert.LessOrEqual(t, sum.Int64(), tc.total)
			rateSum := new(big.Int)
			for _, r := range tc.rates {
				rateSum.Add(rateSum, r)
			}
			if len(got) > 0 && tc.total > 0 && rateSum.Sign() > 0 {
				assert.Less(t, tc.total-sum.Int64(), int64(len(got)))
			}
		})
	}
}

func TestDistributeLargeAmounts(t *testing.T) {
	total := new(big.Int).Add(whole(1_234_567), big.NewInt(89))
	shares := Distribute(total, []*big.Int{HourlyRate(Noob, 1), HourlyRate(Degen, 5), HourlyRate(Pro, 3)})
	sum := new(big.Int)
	for _, s := range shares {
		sum.Add(sum, s)
	}
	assert.True(t, sum.Cmp(total) <= 0)
	assert.True(t, new(big.Int).Sub(total, sum).Cmp(big.NewInt(3)) < 0)
}

func TestEconomics(t *testing.T) {
	assert.Equal(t, whole(300), HourlyRate(Noob, 1))
	assert.Equal(t, whole(1125), HourlyRate(Pro, 2))
	// 2250 * 5.062
	assert.Equal(t, new(big.Int).Quo(new(big.Int).Mul(whole(2250), big.NewInt(5062)), big.NewInt(1000)), HourlyRate(Degen, 5))
	assert.Zero(t, HourlyRate(Noob, 0).Sign())
	assert.Zero(t, HourlyRate(BeaverType(9), 1).Sign())

	cost, err := StakeCost(Pro)
	require.NoError(t, err)
	assert.Equal(t, whole(120), cost)
	_, err = StakeCost(BeaverType(3))
	assert.Error(t, err)

	upgrades := []struct {
		typ   BeaverType
		level uint8
		want  int64
	}{
		{Noob, 1, 40_000},
		{Noob, 2, 80_000},
		{Pro, 1, 80_000},
		{Pro, 3, 160_000},
		{Degen, 1, 203_000},
		{Degen, 2, 406_000},
	}
	for _, u := range upgrades {
		cost, err = UpgradeCost(u.typ, u.level)
		require.NoError(t, err)
		assert.Equal(t, whole(u.want), cost, "%s level %d", u.typ, u.level)
	}
	cost, err = UpgradeCost(Degen, 4)
	require.NoError(t, err)
	assert.Equal(t, whole(406_000), cost)
	_, err = UpgradeCost(Pro, MaxLevel)
	assert.ErrorIs(t, err, ErrMaxLevel)

	typ, err := BeaverTypeFromDisplay(3)
	require.NoError(t, err)
	assert.Equal(t, Degen, typ)
	_, err = BeaverTypeFromDisplay(0)
	assert.Error(t, err)
	typ, err = ParseBeaverType("Pro")
	require.NoError(t, err)
	assert.Equal(t, Pro, typ)
}

func beaverResp(t *testing.T, id, typ, level, lastClaim uint64, owner string) response {
	o := addr(t, owner)
	return func([]*felt.Felt) ([]*felt.Felt, error) {
		return []*felt.Felt{u64(id), u64(typ), u64(level), u64(lastClaim), o}, nil
	}
}

func TestPlayerInfo(t *testing.T) {
	h := newHarness(t, -1)
	g := testNetwork.GameContract

	h.chain.returns(g, "get_user_beavers", u64(1), u64(0), u64(2), u64(3), u64(4), u64(5))
	h.chain.returns(g, "calculate_pending_rewards", u256(big.NewInt(10_000))...)

	beavers := map[uint64]response{
		1: beaverResp(t, 1, 0, 1, 100, player),
		2: beaverResp(t, 2, 2, 3, 100, "0x92fb909857ba418627b9e40a7863f75768a0ea80d306fb5757eb7c3d4304d4"),
		3: beaverResp(t, 3, 1, 1, 100, stranger),
		4: beaverResp(t, 4, 7, 1, 100, player),
		5: func([]*felt.Felt) ([]*felt.Felt, error) {
			return nil, errors.New("Contract error: 'Not beaver owner'")
		},
	}
	h.chain.on(g, "get_beaver", func(calldata []*felt.Felt) ([]*felt.Felt, error) {
		return beavers[feltUint64(calldata[1])](calldata)
	})

	info, err := h.composer.PlayerInfo(context.Background(), player)
	require.NoError(t, err)
	require.Len(t, info.Beavers, 3)
	assert.Equal(t, 2, info.Dropped)
	assert.Equal(t, big.NewInt(10_000), info.TotalRewards)

	ids := []uint64{info.Beavers[0].ID, info.Beavers[1].ID, info.Beavers[2].ID}
	assert.Equal(t, []uint64{1, 2, 5}, ids)

	legacy := info.Beavers[2]
	assert.True(t, legacy.Legacy)
	assert.Equal(t, Noob, legacy.Type)
	assert.Equal(t, uint8(1), legacy.Level)

	sum := new(big.Int)
	for _, b := range info.Beavers {
		require.NotNil(t, b.PendingRewards)
		sum.Add(sum, b.PendingRewards)
	}
	assert.True(t, sum.Cmp(info.TotalRewards) <= 0)
	// rates 300 : 2250*2.25 : 300
	assert.Equal(t, int64(10_000*300_000/(300_000+5_062_500+300_000)), info.Beavers[0].PendingRewards.Int64())

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.DroppedRecords.WithLabelValues("owner_mismatch")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.DroppedRecords.WithLabelValues("malformed")))
}

func TestPlayerInfoSurfacesExhaustedReads(t *testing.T) {
	h := newHarness(t, -1)
	g := testNetwork.GameContract

	h.chain.returns(g, "get_user_beavers", u64(1), u64(2))
	h.chain.returns(g, "calculate_pending_rewards", u256(big.NewInt(10_000))...)
	h.chain.on(g, "get_beaver", func(calldata []*felt.Felt) ([]*felt.Felt, error) {
		if feltUint64(calldata[1]) == 2 {
			return nil, fmt.Errorf("%w: get_beaver failed after 3 attempts: connection refused", gateway.ErrRPCExhausted)
		}
		return beaverResp(t, 1, 0, 1, 100, player)(calldata)
	})

	info, err := h.composer.PlayerInfo(context.Background(), player)
	assert.Nil(t, info)
	assert.ErrorIs(t, err, gateway.ErrRPCExhausted)
	assert.Zero(t, testutil.ToFloat64(h.metrics.DroppedRecords.WithLabelValues("read_failed")))
}

func TestPlayerInfoNoBeavers(t *testing.T) {
	h := newHarness(t, -1)
	h.chain.returns(testNetwork.GameContract, "get_user_beavers")

	info, err := h.composer.PlayerInfo(context.Background(), player)
	require.NoError(t, err)
	assert.Empty(t, info.Beavers)
	assert.Zero(t, info.TotalRewards.Sign())
	assert.Zero(t, h.chain.called("calculate_pending_rewards"))
}

func TestParseBeaver(t *testing.T) {
	_, err := parseBeaver(1, []*felt.Felt{u64(1), u64(0), u64(1)})
	assert.ErrorIs(t, err, ErrMalformedResponse)
	_, err = parseBeaver(1, []*felt.Felt{u64(1), u64(0), u64(6), u64(0), u64(1)})
	assert.ErrorIs(t, err, ErrMalformedResponse)

	b, err := parseBeaver(9, []*felt.Felt{u64(9), u64(1), u64(2), u64(1700000000), addr(t, player)})
	require.NoError(t, err)
	assert.Equal(t, Pro, b.Type)
	assert.Equal(t, uint64(1700000000), b.LastClaim)
	assert.Equal(t, whole(1125), b.HourlyRate)
}

func TestGameAnalytics(t *testing.T) {
	g := testNetwork.GameContract

	t.Run("flat layout with dedicated counts", func(t *testing.T) {
		h := newHarness(t, -1)
		h.chain.returns(g, "get_game_analytics", u64(12), u64(5000), u64(600), u64(70), u64(1), u64(1), u64(1), u64(3), u64(8))
		h.chain.returns(g, "get_active_users_count", u64(4))
		h.chain.returns(g, "get_beaver_type_stats", u64(6), u64(4), u64(2))

		a, err := h.composer.GameAnalytics(context.Background())
		require.NoError(t, err)
		assert.Equal(t, uint64(12), a.TotalBeaversStaked)
		assert.Equal(t, big.NewInt(5000), a.TotalBurrClaimed)
		assert.Equal(t, big.NewInt(70), a.TotalBurrBurned)
		assert.Equal(t, uint64(4), a.ActiveUsers)
		assert.Equal(t, []uint64{6, 4, 2}, []uint64{a.NoobCount, a.ProCount, a.DegenCount})
		assert.Equal(t, uint64(8), a.TotalUpgrades)
	})

	t.Run("u256 layout keeps positional counts", func(t *testing.T) {
		h := newHarness(t, -1)
		claimed := whole(1_000_000)
		resp := []*felt.Felt{u64(3)}
		resp = append(resp, u256(claimed)...)
		resp = append(resp, u256(whole(150))...)
		resp = append(resp, u256(whole(20))...)
		resp = append(resp, u64(1), u64(1), u64(1), u64(2), u64(0))
		h.chain.returns(g, "get_game_analytics", resp...)
		h.chain.returns(g, "get_beaver_type_stats", u64(1), u64(2))

		a, err := h.composer.GameAnalytics(context.Background())
		require.NoError(t, err)
		assert.Equal(t, claimed, a.TotalBurrClaimed)
		assert.Equal(t, whole(150), a.TotalStrkCollected)
		assert.Equal(t, uint64(2), a.ActiveUsers)
		assert.Equal(t, uint64(1), a.DegenCount)
	})

	t.Run("short response", func(t *testing.T) {
		h := newHarness(t, -1)
		h.chain.returns(g, "get_game_analytics", u64(1), u64(2))
		_, err := h.composer.GameAnalytics(context.Background())
		assert.ErrorIs(t, err, ErrMalformedResponse)
	})
}

func TestAllowanceFallbacks(t *testing.T) {
	ctx := context.Background()
	burr := testNetwork.BurrToken
	game := testNetwork.GameContract

	h := newHarness(t, -1)
	h.chain.returns(burr, "allowance", u256(big.NewInt(77))...)
	got, err := h.composer.Allowance(ctx, burr, player, game)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(77), got)

	h = newHarness(t, -1)
	h.chain.returns(burr, "get_allowance", u256(big.NewInt(5))...)
	got, err = h.composer.Allowance(ctx, burr, player, game)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(5), got)

	h = newHarness(t, -1)
	got, err = h.composer.Allowance(ctx, burr, player, game)
	require.NoError(t, err)
	assert.Zero(t, got.Sign())
	assert.Contains(t, h.logs.LastEntry().Message, "assuming 0")

	_, err = h.composer.Allowance(ctx, burr, "zzz", game)
	assert.Error(t, err)
}

func TestTokenInfo(t *testing.T) {
	h := newHarness(t, -1)
	burr := testNetwork.BurrToken
	h.chain.returns(burr, "total_supply", u256(whole(1000))...)
	h.chain.returns(burr, "name", new(felt.Felt).SetBytes([]byte("Burr")))
	h.chain.returns(burr, "symbol", new(felt.Felt).SetBytes([]byte("BURR")))
	h.chain.returns(burr, "decimals", u64(18))

	info, err := h.composer.TokenInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Burr", info.Name)
	assert.Equal(t, "BURR", info.Symbol)
	assert.Equal(t, uint8(18), info.Decimals)
	assert.Equal(t, whole(1000), info.TotalSupply)
	assert.Equal(t, MaxSupply, info.MaxSupply)
	assert.Zero(t, info.TotalBurned.Sign())
}

func TestStakingOverview(t *testing.T) {
	h := newHarness(t, -1)
	s := testNetwork.StakingContract
	h.chain.fails(s, "get_user_staked_amount", errors.New("entrypoint missing"))
	h.chain.returns(s, "get_staking_position", u256(whole(500))...)
	h.chain.returns(s, "get_pending_rewards", u256(whole(3))...)
	h.chain.returns(s, "get_total_staked", u256(whole(9000))...)
	h.chain.returns(s, "get_unstake_request", append(u256(whole(50)), u64(100), u64(200))...)

	o, err := h.composer.StakingOverview(context.Background(), player)
	require.NoError(t, err)
	assert.Equal(t, whole(500), o.Staked)
	assert.Equal(t, whole(3), o.PendingRewards)
	assert.Equal(t, whole(9000), o.TotalStaked)
	assert.Zero(t, o.RewardPool.Sign())
	require.NotNil(t, o.Unstake)
	assert.Equal(t, uint64(200), o.Unstake.WithdrawAt)
}

func stubFunds(h *harness, token string, balance, allowance *big.Int) {
	h.chain.returns(token, "balance_of", u256(balance)...)
	h.chain.returns(token, "allowance", u256(allowance)...)
}

func TestStakeBeaverApproval(t *testing.T) {
	ctx := context.Background()
	strk := testNetwork.StrkToken

	t.Run("short allowance prepends unlimited approve", func(t *testing.T) {
		h := newHarness(t, -1)
		stubFunds(h, strk, whole(120), new(big.Int))
		signer := &fakeSigner{addr: player}

		res, err := h.composer.StakeBeaver(ctx, signer, Pro)
		require.NoError(t, err)
		assert.Equal(t, ModeAtomic, res.Mode)
		assert.Equal(t, "op-1", res.OperationID)
		require.Len(t, res.TxHashes, 1)

		batches := signer.recorded()
		require.Len(t, batches, 1)
		require.Len(t, batches[0], 2)
		approve, stake := batches[0][0], batches[0][1]
		assert.Equal(t, "approve", approve.FunctionName)
		assert.Equal(t, addr(t, strk), approve.ContractAddress)
		require.Len(t, approve.CallData, 3)
		assert.Equal(t, addr(t, testNetwork.GameContract), approve.CallData[0])
		assert.Equal(t, starknetutil.MaxU256(), starknetutil.U256FromFelts(approve.CallData[1], approve.CallData[2]))
		assert.Equal(t, "stake_beaver", stake.FunctionName)
		assert.Equal(t, []*felt.Felt{u64(1)}, stake.CallData)
	})

	t.Run("standing approval submits the action alone", func(t *testing.T) {
		h := newHarness(t, -1)
		stubFunds(h, strk, whole(100), starknetutil.MaxU256())
		signer := &fakeSigner{addr: player}

		_, err := h.composer.StakeBeaver(ctx, signer, Noob)
		require.NoError(t, err)
		batches := signer.recorded()
		require.Len(t, batches, 1)
		require.Len(t, batches[0], 1)
		assert.Equal(t, "stake_beaver", batches[0][0].FunctionName)
	})

	t.Run("insufficient balance never submits", func(t *testing.T) {
		h := newHarness(t, -1)
		stubFunds(h, strk, whole(349), new(big.Int))
		signer := &fakeSigner{addr: player}

		_, err := h.composer.StakeBeaver(ctx, signer, Degen)
		assert.ErrorIs(t, err, ErrInsufficientBalance)
		assert.NotErrorIs(t, err, ErrInsufficientAllowance)
		assert.Empty(t, signer.recorded())
	})
}

func TestWritesTargetEntrypoints(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, -1)
	stubFunds(h, testNetwork.BurrToken, whole(1_000_000), starknetutil.MaxU256())
	h.chain.returns(testNetwork.StakingContract, "get_user_staked_amount", u256(whole(10))...)
	signer := &fakeSigner{addr: player}

	_, err := h.composer.UpgradeBeaver(ctx, signer, 42, Degen, 3)
	require.NoError(t, err)
	_, err = h.composer.Stake(ctx, signer, whole(25))
	require.NoError(t, err)
	_, err = h.composer.Unstake(ctx, signer, whole(10))
	require.NoError(t, err)
	_, err = h.composer.Unstake(ctx, signer, whole(11))
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	_, err = h.composer.ClaimStakingRewards(ctx, signer)
	require.NoError(t, err)
	_, err = h.composer.ClaimGameRewards(ctx, signer)
	require.NoError(t, err)
	_, err = h.composer.WithdrawUnstaked(ctx, signer)
	require.NoError(t, err)
	_, err = h.composer.UpgradeBeaver(ctx, signer, 42, Degen, 5)
	assert.ErrorIs(t, err, ErrMaxLevel)
	_, err = h.composer.Stake(ctx, signer, new(big.Int))
	assert.Error(t, err)

	var names []string
	for _, b := range signer.recorded() {
		require.Len(t, b, 1)
		names = append(names, b[0].FunctionName)
	}
	assert.Equal(t, []string{"upgrade_beaver", "stake", "unstake", "claim_rewards", "claim", "withdraw_unstaked"}, names)

	stake := signer.recorded()[1][0]
	assert.Equal(t, addr(t, testNetwork.StakingContract), stake.ContractAddress)
	assert.Equal(t, whole(25), starknetutil.U256FromFelts(stake.CallData[0], stake.CallData[1]))
}

func TestSubmitSequentialFallback(t *testing.T) {
	h := newHarness(t, 2*time.Second)
	stubFunds(h, testNetwork.BurrToken, whole(1000), new(big.Int))
	signer := &fakeSigner{addr: player, clk: h.clock, rejectMulti: true}

	type outcome struct {
		res *Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := h.composer.Stake(context.Background(), signer, whole(100))
		done <- outcome{res, err}
	}()

	var got outcome
	require.Eventually(t, func() bool {
		select {
		case got = <-done:
			return true
		default:
			h.clock.Add(500 * time.Millisecond)
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, got.err)
	assert.Equal(t, ModeSequential, got.res.Mode)
	require.Len(t, got.res.TxHashes, 2)

	batches := signer.recorded()
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 2)
	assert.Equal(t, "approve", batches[1][0].FunctionName)
	assert.Equal(t, "stake", batches[2][0].FunctionName)
	assert.GreaterOrEqual(t, signer.submittedAt[2].Sub(signer.submittedAt[1]), 2*time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.BatchSubmissions.WithLabelValues(ModeAtomic, "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.BatchSubmissions.WithLabelValues(ModeSequential, "ok")))
}

func TestSubmitPartialFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, -1)
	stubFunds(h, testNetwork.BurrToken, whole(1000), new(big.Int))
	signer := &fakeSigner{addr: player, rejectMulti: true, failOn: "stake"}

	_, err := h.composer.Stake(ctx, signer, whole(100))
	var batchErr *BatchError
	require.ErrorAs(t, err, &batchErr)
	assert.Len(t, batchErr.Submitted, 1)
	assert.ErrorContains(t, batchErr.Atomic, "multicall")
	assert.ErrorContains(t, err, "stake reverted")

	// the approval landed, so the retry finds it and sends the action alone
	stubFunds(h, testNetwork.BurrToken, whole(1000), starknetutil.MaxU256())
	signer.mu.Lock()
	signer.failOn = ""
	signer.batches = nil
	signer.mu.Unlock()

	res, err := h.composer.Stake(ctx, signer, whole(100))
	require.NoError(t, err)
	assert.Equal(t, ModeAtomic, res.Mode)
	require.Len(t, signer.recorded(), 1)
	assert.Len(t, signer.recorded()[0], 1)
}

func TestSubmitNoFallback(t *testing.T) {
	ctx := context.Background()
	call := rpc.InvokeFunctionCall{ContractAddress: u64(1), FunctionName: "claim", CallData: []*felt.Felt{}}

	cases := []struct {
		name  string
		err   error
		calls int
	}{
		{"single call failure", errors.New("reverted"), 1},
		{"stale handle", wallet.ErrHandleInvalidated, 2},
		{"user rejected", errors.New("User rejected request"), 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, -1)
			signer := &fakeSigner{addr: player, err: tc.err}
			calls := make([]rpc.InvokeFunctionCall, tc.calls)
			for i := range calls {
				calls[i] = call
			}
			_, err := h.composer.Submit(ctx, signer, "claim", calls)
			require.Error(t, err)
			var batchErr *BatchError
			assert.False(t, errors.As(err, &batchErr))
			assert.Len(t, signer.recorded(), 1)
		})
	}

	h := newHarness(t, -1)
	_, err := h.composer.Submit(ctx, &fakeSigner{addr: player}, "noop", nil)
	assert.ErrorIs(t, err, ErrNoCalls)
}
