package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ereyli/Burrowburr/internal/config"
	"github.com/ereyli/Burrowburr/internal/types"
)

func newDeploymentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deployment",
		Short: "Record redeployed contract addresses",
	}
	cmd.AddCommand(newDeploymentSetCmd())
	return cmd
}

func newDeploymentSetCmd() *cobra.Command {
	var ns config.NetworkState
	cmd := &cobra.Command{
		Use:   "set <network>",
		Short: "Override contract addresses of a network profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfigFile(flags.configFile)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			for _, a := range []string{ns.BurrToken, ns.StrkToken, ns.GameContract, ns.StakingContract} {
				if a == "" {
					continue
				}
				if _, err := types.ToStarknetAddress(a); err != nil {
					return fmt.Errorf("invalid address %q: %w", a, err)
				}
			}
			if err := config.UpdateNetworkState(cfg.DeploymentFile, args[0], ns, time.Now()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Deployment for %s recorded in %s\n", args[0], cfg.DeploymentFile)
			return nil
		},
	}
	cmd.Flags().StringVar(&ns.BurrToken, "burr", "", "BURR token address")
	cmd.Flags().StringVar(&ns.StrkToken, "strk", "", "STRK token address")
	cmd.Flags().StringVar(&ns.GameContract, "game", "", "game contract address")
	cmd.Flags().StringVar(&ns.StakingContract, "staking", "", "BURR staking contract address")
	return cmd
}
