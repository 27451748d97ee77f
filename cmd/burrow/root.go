package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var flags appFlags

// newRootCmd returns the root command for the Burrow CLI
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "burrow",
		Short:         "Burrow: stake beavers, earn BURR",
		Long:          "Burrow manages a Starknet wallet session and talks to the BURR token, game and staking contracts.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&flags.configFile, "config", "", "config file (default is ./burrow.yaml or $HOME/.burrow/burrow.yaml)")
	rootCmd.PersistentFlags().StringVar(&flags.network, "network", "", "network profile: mainnet|sepolia")
	rootCmd.PersistentFlags().StringVar(&flags.wallet, "wallet", "", "wallet to connect without asking: argentX|braavos")
	rootCmd.PersistentFlags().BoolVar(&flags.wait, "wait", false, "wait for submitted transactions to be included")

	rootCmd.AddCommand(newConnectCmd())
	rootCmd.AddCommand(newDisconnectCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newBalancesCmd())
	rootCmd.AddCommand(newBeaversCmd())
	rootCmd.AddCommand(newAnalyticsCmd())
	rootCmd.AddCommand(newStakingCmd())
	rootCmd.AddCommand(newStakeBeaverCmd())
	rootCmd.AddCommand(newUpgradeCmd())
	rootCmd.AddCommand(newStakeCmd())
	rootCmd.AddCommand(newUnstakeCmd())
	rootCmd.AddCommand(newClaimCmd())
	rootCmd.AddCommand(newClaimStakingCmd())
	rootCmd.AddCommand(newWithdrawCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newKeystoreCmd())
	rootCmd.AddCommand(newDeploymentCmd())

	return rootCmd
}

// runWithApp wires the components, runs fn under a signal-aware context and
// releases them afterwards
func runWithApp(fn func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(flags, cmd.InOrStdin(), cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return fn(ctx, cmd, a, args)
	}
}
