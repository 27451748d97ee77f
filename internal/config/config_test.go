package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromViperDefaults(t *testing.T) {
	cfg, err := FromViper(viper.New())
	require.NoError(t, err)

	assert.Equal(t, MainnetName, cfg.Network)
	assert.Equal(t, SessionBackendFile, cfg.SessionBackend)
	assert.Equal(t, 5*time.Second, cfg.MonitorInterval)
	assert.Equal(t, 5*time.Minute, cfg.ReconnectCooldown)
	assert.Equal(t, time.Second, cfg.ProviderWarmup)
	assert.Equal(t, 3, cfg.RetryAttempts)
	assert.Equal(t, 2*time.Second, cfg.FallbackDelay)
	assert.NotEmpty(t, cfg.SessionPath)
}

func TestFromViperEnvironmentOverrides(t *testing.T) {
	t.Setenv("BURROW_NETWORK", "Sepolia")
	t.Setenv("BURROW_MONITOR_INTERVAL", "2s")
	t.Setenv("BURROW_RECONNECT_COOLDOWN", "1m")
	t.Setenv("BURROW_SESSION_BACKEND", "redis")
	t.Setenv("BURROW_RETRY_ATTEMPTS", "5")
	t.Setenv("BURROW_DEPLOYMENT_FILE", filepath.Join(t.TempDir(), "deployment.json"))

	cfg, err := FromViper(viper.New())
	require.NoError(t, err)

	assert.Equal(t, SepoliaName, cfg.Network)
	assert.Equal(t, 2*time.Second, cfg.MonitorInterval)
	assert.Equal(t, time.Minute, cfg.ReconnectCooldown)
	assert.Equal(t, SessionBackendRedis, cfg.SessionBackend)
	assert.Equal(t, 5, cfg.RetryAttempts)

	nc, err := cfg.NetworkConfig()
	require.NoError(t, err)
	assert.Equal(t, "SN_SEPOLIA", nc.ChainID)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Network:         MainnetName,
			SessionBackend:  SessionBackendFile,
			SessionPath:     "/tmp/session.json",
			RetryAttempts:   3,
			MonitorInterval: time.Second,
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "unknown network", mutate: func(c *Config) { c.Network = "goerli" }, errMsg: "unknown network"},
		{name: "unknown backend", mutate: func(c *Config) { c.SessionBackend = "sqlite" }, errMsg: "unknown session backend"},
		{name: "missing path", mutate: func(c *Config) { c.SessionPath = "" }, errMsg: "session_path"},
		{name: "redis without addr", mutate: func(c *Config) { c.SessionBackend = SessionBackendRedis }, errMsg: "redis_addr"},
		{name: "zero attempts", mutate: func(c *Config) { c.RetryAttempts = 0 }, errMsg: "retry_attempts"},
		{name: "zero monitor interval", mutate: func(c *Config) { c.MonitorInterval = 0 }, errMsg: "monitor_interval"},
		{name: "negative cooldown", mutate: func(c *Config) { c.ReconnectCooldown = -time.Second }, errMsg: "negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestGetNetworkConfig(t *testing.T) {
	t.Cleanup(InitializeNetworks)
	t.Setenv("MAINNET_RPC_URL", "http://localhost:5050")
	InitializeNetworks()

	nc, err := GetNetworkConfig("MAINNET")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5050", nc.RPCURL)
	assert.Equal(t, "SN_MAIN", nc.ChainID)

	sepolia, err := GetNetworkConfig(SepoliaName)
	require.NoError(t, err)
	assert.Equal(t, nc.GameContract, sepolia.GameContract)
	assert.NotEqual(t, nc.BurrToken, sepolia.BurrToken)
	assert.Equal(t, nc.StrkToken, sepolia.StrkToken)

	_, err = GetNetworkConfig("devnet")
	assert.Error(t, err)

	assert.Equal(t, []string{MainnetName, SepoliaName}, GetNetworkNames())
}

func TestDeploymentState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "deployment.json")

	state, err := LoadDeploymentState(path)
	require.NoError(t, err)
	assert.Empty(t, state.Networks)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, UpdateNetworkState(path, "Sepolia", NetworkState{GameContract: "0x0abc"}, now))
	assert.Error(t, UpdateNetworkState(path, "devnet", NetworkState{}, now))

	state, err = LoadDeploymentState(path)
	require.NoError(t, err)
	require.Contains(t, state.Networks, SepoliaName)
	assert.Equal(t, "2025-06-01T12:00:00Z", state.Networks[SepoliaName].LastUpdated)

	sepolia, err := GetNetworkConfig(SepoliaName)
	require.NoError(t, err)
	applied := state.Apply(sepolia)
	assert.Equal(t, "0x0abc", applied.GameContract)
	assert.Equal(t, sepolia.BurrToken, applied.BurrToken)

	mainnet, err := GetNetworkConfig(MainnetName)
	require.NoError(t, err)
	assert.Equal(t, mainnet, state.Apply(mainnet))

	cfg := &Config{Network: SepoliaName, DeploymentFile: path}
	nc, err := cfg.NetworkConfig()
	require.NoError(t, err)
	assert.Equal(t, "0x0abc", nc.GameContract)

	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))
	_, err = cfg.NetworkConfig()
	assert.ErrorContains(t, err, "parse deployment file")
}
