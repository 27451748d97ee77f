package main

import (
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/ethereum/go-ethereum/event"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ereyli/Burrowburr/internal/config"
	"github.com/ereyli/Burrowburr/internal/contracts"
)

func TestSetupLogger(t *testing.T) {
	logger := setupLogger(&config.Config{LogLevel: "debug", LogFormat: "json"})
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)

	logger = setupLogger(&config.Config{LogLevel: "nonsense", LogFormat: "text"})
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
	assert.IsType(t, &cleanFormatter{}, logger.Formatter)

	line, err := (&cleanFormatter{}).Format(&logrus.Entry{Message: "✅ done", Data: logrus.Fields{"k": "v"}})
	require.NoError(t, err)
	assert.Equal(t, "✅ done\n", string(line))
}

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	want := []string{
		"connect", "disconnect", "status", "balances", "beavers", "analytics", "staking",
		"stake-beaver", "upgrade", "stake", "unstake", "claim", "claim-staking", "withdraw",
		"watch", "keystore", "deployment",
	}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
	create, _, err := root.Find([]string{"keystore", "create"})
	require.NoError(t, err)
	assert.NotNil(t, create.Flags().Lookup("public-key"))
}

func TestParseAmountArg(t *testing.T) {
	v, err := parseAmountArg("1.5")
	require.NoError(t, err)
	assert.Equal(t, "1500000000000000000", v.String())

	_, err = parseAmountArg("lots")
	assert.Error(t, err)
}

func TestReportWriteError(t *testing.T) {
	var out strings.Builder
	batchErr := &contracts.BatchError{
		OperationID: "op",
		Submitted:   []*felt.Felt{new(felt.Felt).SetUint64(0xabc)},
		Err:         errors.New("stake reverted"),
	}
	err := reportWriteError(&out, batchErr)
	assert.Same(t, batchErr, err)
	assert.Contains(t, out.String(), "1 call(s) were submitted")
	assert.Contains(t, out.String(), "0xabc")

	out.Reset()
	plain := errors.New("insufficient")
	assert.Equal(t, plain, reportWriteError(&out, plain))
	assert.Empty(t, out.String())
}

func TestPrintBeavers(t *testing.T) {
	var out strings.Builder
	printBeavers(&out, &contracts.PlayerInfo{TotalRewards: new(big.Int)})
	assert.Contains(t, out.String(), "No beavers")

	out.Reset()
	printBeavers(&out, &contracts.PlayerInfo{
		TotalRewards: big.NewInt(0),
		Beavers: []contracts.Beaver{{
			ID:             7,
			Type:           contracts.Degen,
			Level:          2,
			HourlyRate:     contracts.HourlyRate(contracts.Degen, 2),
			PendingRewards: new(big.Int),
			Legacy:         true,
		}},
	})
	assert.Contains(t, out.String(), "#7")
	assert.Contains(t, out.String(), "Degen")
	assert.Contains(t, out.String(), "needs migration")
}

func TestStopWatchReleasesBlockedSend(t *testing.T) {
	var feed event.Feed
	full := make(chan int)
	sub := feed.Subscribe(full)

	sent := make(chan struct{})
	go func() {
		feed.Send(1)
		close(sent)
	}()

	monitorStopped := false
	done := make(chan error, 1)
	go func() {
		done <- stopWatch(func() { monitorStopped = true }, func() error {
			<-sent
			return nil
		}, sub)
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown blocked on a pending send")
	}
	assert.True(t, monitorStopped)
}
