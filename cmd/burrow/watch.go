package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/ereyli/Burrowburr/internal/refresh"
	"github.com/ereyli/Burrowburr/internal/types"
	"github.com/ereyli/Burrowburr/internal/wallet"
)

func newWatchCmd() *cobra.Command {
	var address string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Monitor the wallet session and refresh game data until interrupted",
		RunE: runWithApp(func(ctx context.Context, cmd *cobra.Command, a *app, _ []string) error {
			r, err := refresh.New(refresh.Options{
				Source:   a.composer,
				Clock:    a.clock,
				Logger:   a.log,
				Metrics:  a.metrics,
				Interval: a.cfg.RefreshInterval,
			})
			if err != nil {
				return err
			}

			states := make(chan wallet.StateEvent, 16)
			stateSub := a.manager.SubscribeState(states)
			defer stateSub.Unsubscribe()

			if h := a.session(ctx); h != nil {
				r.SetAddress(h.Address())
				err := a.manager.StartMonitor(ctx, func() {
					r.SetAddress(address)
					a.log.Warn("⚠️  Wallet session ended, run `burrow connect` to reconnect")
				})
				if err != nil {
					return err
				}
			} else if address != "" {
				r.SetAddress(address)
			}

			if a.cfg.MetricsAddr != "" {
				srv := &http.Server{
					Addr:              a.cfg.MetricsAddr,
					Handler:           promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}),
					ReadHeaderTimeout: 5 * time.Second,
				}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						a.log.WithError(err).Error("❌ Metrics server failed")
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
				a.log.Infof("📊 Metrics on http://%s/metrics", a.cfg.MetricsAddr)
			}

			snaps := make(chan refresh.Snapshot, 4)
			snapSub := r.Subscribe(snaps)
			defer snapSub.Unsubscribe()

			go r.Start(ctx)

			for {
				select {
				case <-ctx.Done():
					a.log.Info("🔄 Received shutdown signal, shutting down...")
					_ = stopWatch(a.manager.StopMonitor, r.Stop, stateSub, snapSub)
					a.log.Info("✅ Watch stopped")
					return nil
				case ev := <-states:
					a.log.WithField("reason", ev.Reason).Infof("🔄 Session %s → %s", ev.From, ev.To)
				case snap := <-snaps:
					printSnapshot(cmd, snap)
				case err := <-snapSub.Err():
					return err
				}
			}
		}),
	}
	cmd.Flags().StringVar(&address, "address", "", "address to watch when no wallet is connected")
	return cmd
}

// stopWatch drops the loop's subscriptions before stopping the producers so
// a tick blocked sending to a full channel can return
func stopWatch(stopMonitor func(), stopRefresh func() error, subs ...event.Subscription) error {
	for _, sub := range subs {
		sub.Unsubscribe()
	}
	stopMonitor()
	return stopRefresh()
}

func printSnapshot(cmd *cobra.Command, snap refresh.Snapshot) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\n── %s (#%d) ──\n", snap.At.Local().Format(time.TimeOnly), snap.Seq)
	if snap.Analytics != nil {
		printAnalytics(out, snap.Analytics)
	}
	if snap.Balances != nil {
		fmt.Fprintf(out, "Wallet %s: %s BURR, %s STRK\n", types.ShortAddress(snap.Address), amount(snap.Balances.Burr), amount(snap.Balances.Strk))
	}
	if snap.Player != nil {
		printBeavers(out, snap.Player)
	}
}
