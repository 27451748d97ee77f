package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"time"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/spf13/cobra"

	"github.com/ereyli/Burrowburr/internal/codec"
	"github.com/ereyli/Burrowburr/internal/contracts"
	"github.com/ereyli/Burrowburr/internal/types"
)

func amount(v *big.Int) string { return codec.Format(v, codec.DefaultDecimals) }

func newConnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Connect a wallet interactively",
		RunE: runWithApp(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
			h, err := a.manager.Connect(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if h == nil {
				fmt.Fprintln(out, "Connection cancelled.")
				return nil
			}
			fmt.Fprintf(out, "✅ Connected %s (%s)\n", types.ShortAddress(h.Address()), h.Kind().DisplayName())
			return nil
		}),
	}
}

func newDisconnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "End the wallet session",
		RunE: runWithApp(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
			a.session(ctx)
			if err := a.manager.Disconnect(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "👋 Disconnected. Automatic reconnect is paused for %s.\n", a.cfg.ReconnectCooldown)
			return nil
		}),
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the wallet session and network",
		RunE: runWithApp(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Network:  %s (%s)\n", a.network.Name, a.network.RPCURL)

			for _, p := range a.wallets.All() {
				state := "not installed"
				if p.Installed() {
					state = "installed"
					if locked, err := p.Locked(ctx); err == nil && locked {
						state = "locked"
					}
				}
				fmt.Fprintf(out, "Wallet:   %s [%s]\n", p.Name(), state)
			}

			if h := a.session(ctx); h != nil {
				fmt.Fprintf(out, "Session:  %s via %s (%s)\n", types.ShortAddress(h.Address()), h.Kind().DisplayName(), a.manager.State())
			} else {
				fmt.Fprintf(out, "Session:  %s\n", a.manager.State())
			}

			last, ok, err := a.store.LastDisconnect(ctx)
			if err == nil && ok {
				remaining := a.cfg.ReconnectCooldown - a.clock.Now().Sub(last)
				if remaining > 0 {
					fmt.Fprintf(out, "Cooldown: reconnect paused for %s\n", remaining.Round(time.Second))
				}
			}

			if paused, err := a.composer.EmergencyStatus(ctx); err == nil && paused {
				fmt.Fprintln(out, "⚠️  The game is paused (emergency mode)")
			}
			return nil
		}),
	}
}

func newBalancesCmd() *cobra.Command {
	var address string
	cmd := &cobra.Command{
		Use:   "balances",
		Short: "Show BURR and STRK balances",
		RunE: runWithApp(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
			owner, err := a.address(ctx, address)
			if err != nil {
				return err
			}
			b, err := a.composer.Balances(ctx, owner)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Address: %s\n", types.ShortAddress(owner))
			fmt.Fprintf(out, "BURR:    %s\n", amount(b.Burr))
			fmt.Fprintf(out, "STRK:    %s\n", amount(b.Strk))
			return nil
		}),
	}
	cmd.Flags().StringVar(&address, "address", "", "wallet address (default: connected wallet)")
	return cmd
}

func printBeavers(out io.Writer, info *contracts.PlayerInfo) {
	if len(info.Beavers) == 0 {
		fmt.Fprintln(out, "No beavers staked yet.")
		return
	}
	for _, b := range info.Beavers {
		line := fmt.Sprintf("#%-6d %-6s L%d  %s BURR/h  pending %s",
			b.ID, b.Type, b.Level, amount(b.HourlyRate), codec.FormatClaim(b.PendingRewards, codec.DefaultDecimals))
		if b.Legacy {
			line += "  (needs migration)"
		}
		fmt.Fprintln(out, line)
	}
	fmt.Fprintf(out, "Total pending: %s BURR\n", codec.FormatClaim(info.TotalRewards, codec.DefaultDecimals))
}

func newBeaversCmd() *cobra.Command {
	var address string
	cmd := &cobra.Command{
		Use:   "beavers",
		Short: "List staked beavers and pending rewards",
		RunE: runWithApp(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
			owner, err := a.address(ctx, address)
			if err != nil {
				return err
			}
			info, err := a.composer.PlayerInfo(ctx, owner)
			if err != nil {
				return err
			}
			printBeavers(cmd.OutOrStdout(), info)
			return nil
		}),
	}
	cmd.Flags().StringVar(&address, "address", "", "wallet address (default: connected wallet)")
	return cmd
}

func printAnalytics(out io.Writer, an *contracts.Analytics) {
	fmt.Fprintf(out, "Beavers staked: %d (Noob %d / Pro %d / Degen %d)\n", an.TotalBeaversStaked, an.NoobCount, an.ProCount, an.DegenCount)
	fmt.Fprintf(out, "Active players: %d\n", an.ActiveUsers)
	fmt.Fprintf(out, "Upgrades:       %d\n", an.TotalUpgrades)
	fmt.Fprintf(out, "BURR claimed:   %s\n", amount(an.TotalBurrClaimed))
	fmt.Fprintf(out, "BURR burned:    %s\n", amount(an.TotalBurrBurned))
	fmt.Fprintf(out, "STRK collected: %s\n", amount(an.TotalStrkCollected))
}

func newAnalyticsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analytics",
		Short: "Show game-wide statistics",
		RunE: runWithApp(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
			an, err := a.composer.GameAnalytics(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printAnalytics(out, an)

			token, err := a.composer.TokenInfo(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s supply:    %s / %s\n", token.Symbol, amount(token.TotalSupply), amount(token.MaxSupply))
			return nil
		}),
	}
}

func newStakingCmd() *cobra.Command {
	var address string
	cmd := &cobra.Command{
		Use:   "staking",
		Short: "Show the BURR staking position",
		RunE: runWithApp(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
			owner, err := a.address(ctx, address)
			if err != nil {
				return err
			}
			o, err := a.composer.StakingOverview(ctx, owner)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Staked:       %s BURR\n", amount(o.Staked))
			fmt.Fprintf(out, "Rewards:      %s BURR\n", codec.FormatClaim(o.PendingRewards, codec.DefaultDecimals))
			fmt.Fprintf(out, "Pool staked:  %s BURR\n", amount(o.TotalStaked))
			fmt.Fprintf(out, "Reward pool:  %s BURR\n", amount(o.RewardPool))
			if o.Unstake != nil {
				at := time.Unix(int64(o.Unstake.WithdrawAt), 0).UTC()
				fmt.Fprintf(out, "Unstaking:    %s BURR, withdrawable at %s\n", amount(o.Unstake.Amount), at.Format(time.RFC3339))
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&address, "address", "", "wallet address (default: connected wallet)")
	return cmd
}

func printResult(out io.Writer, res *contracts.Result) {
	fmt.Fprintf(out, "✅ %s submitted (%s, operation %s)\n", res.Action, res.Mode, res.OperationID)
	for _, h := range res.TxHashes {
		fmt.Fprintf(out, "   tx %s\n", h.String())
	}
}

// reportWriteError explains a partially submitted batch
func reportWriteError(out io.Writer, err error) error {
	var batchErr *contracts.BatchError
	if errors.As(err, &batchErr) && len(batchErr.Submitted) > 0 {
		fmt.Fprintf(out, "⚠️  %d call(s) were submitted before the failure:\n", len(batchErr.Submitted))
		for _, h := range batchErr.Submitted {
			fmt.Fprintf(out, "   tx %s\n", h.String())
		}
		fmt.Fprintln(out, "   Retrying is safe: a standing approval is detected and reused.")
	}
	return err
}

func write(fn func(ctx context.Context, a *app, s contracts.Signer, args []string) (*contracts.Result, error)) func(*cobra.Command, []string) error {
	return runWithApp(func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error {
		h, err := a.signer(ctx)
		if err != nil {
			return err
		}
		res, err := fn(ctx, a, h, args)
		if err != nil {
			return reportWriteError(cmd.OutOrStdout(), err)
		}
		printResult(cmd.OutOrStdout(), res)
		if !flags.wait {
			return nil
		}
		w, ok := h.Account().(receiptWaiter)
		if !ok {
			return nil
		}
		for _, hash := range res.TxHashes {
			if err := w.WaitForReceipt(ctx, hash); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "⛏️  %s included\n", hash.String())
		}
		return nil
	})
}

type receiptWaiter interface {
	WaitForReceipt(ctx context.Context, hash *felt.Felt) error
}

func newStakeBeaverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stake-beaver <noob|pro|degen>",
		Short: "Buy a beaver with STRK",
		Args:  cobra.ExactArgs(1),
		RunE: write(func(ctx context.Context, a *app, s contracts.Signer, args []string) (*contracts.Result, error) {
			t, err := contracts.ParseBeaverType(args[0])
			if err != nil {
				return nil, err
			}
			return a.composer.StakeBeaver(ctx, s, t)
		}),
	}
}

func newUpgradeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upgrade <beaver-id>",
		Short: "Upgrade a beaver one level with BURR",
		Args:  cobra.ExactArgs(1),
		RunE: write(func(ctx context.Context, a *app, s contracts.Signer, args []string) (*contracts.Result, error) {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid beaver id %q", args[0])
			}
			b, err := a.composer.Beaver(ctx, s.Address(), id)
			if err != nil {
				return nil, err
			}
			if !types.SameAddress(b.Owner, s.Address()) {
				return nil, contracts.ErrOwnershipMismatch
			}
			return a.composer.UpgradeBeaver(ctx, s, id, b.Type, b.Level)
		}),
	}
}

func parseAmountArg(s string) (*big.Int, error) {
	v, err := codec.ParseUnits(s, codec.DefaultDecimals)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return v, nil
}

func newStakeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stake <amount>",
		Short: "Stake BURR",
		Args:  cobra.ExactArgs(1),
		RunE: write(func(ctx context.Context, a *app, s contracts.Signer, args []string) (*contracts.Result, error) {
			v, err := parseAmountArg(args[0])
			if err != nil {
				return nil, err
			}
			return a.composer.Stake(ctx, s, v)
		}),
	}
}

func newUnstakeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unstake <amount>",
		Short: "Request a withdrawal of staked BURR",
		Args:  cobra.ExactArgs(1),
		RunE: write(func(ctx context.Context, a *app, s contracts.Signer, args []string) (*contracts.Result, error) {
			v, err := parseAmountArg(args[0])
			if err != nil {
				return nil, err
			}
			return a.composer.Unstake(ctx, s, v)
		}),
	}
}

func newClaimCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "claim",
		Short: "Claim BURR earned by your beavers",
		RunE: write(func(ctx context.Context, a *app, s contracts.Signer, _ []string) (*contracts.Result, error) {
			return a.composer.ClaimGameRewards(ctx, s)
		}),
	}
}

func newClaimStakingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "claim-staking",
		Short: "Claim staking rewards",
		RunE: write(func(ctx context.Context, a *app, s contracts.Signer, _ []string) (*contracts.Result, error) {
			return a.composer.ClaimStakingRewards(ctx, s)
		}),
	}
}

func newWithdrawCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "withdraw",
		Short: "Withdraw matured unstaked BURR",
		RunE: write(func(ctx context.Context, a *app, s contracts.Signer, _ []string) (*contracts.Result, error) {
			return a.composer.WithdrawUnstaked(ctx, s)
		}),
	}
}
