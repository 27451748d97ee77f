package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	SessionBackendFile  = "file"
	SessionBackendRedis = "redis"
)

// Config holds process-wide settings
type Config struct {
	Network   string
	LogLevel  string
	LogFormat string

	// Session persistence
	SessionBackend string
	SessionPath    string
	RedisAddr      string
	RedisPrefix    string

	// Wallet discovery
	Keystores      []string
	WalletPassword string

	// Session timing
	MonitorInterval   time.Duration
	ReconnectCooldown time.Duration
	ProviderWarmup    time.Duration

	// Chain access
	RetryAttempts   int
	FallbackDelay   time.Duration
	RefreshInterval time.Duration
	ReceiptPoll     time.Duration

	MetricsAddr string

	// DeploymentFile records redeployed contract addresses per network
	DeploymentFile string
}

func defaultSessionPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "burrow_session.json"
	}
	return filepath.Join(home, ".burrow", "session.json")
}

func defaultDeploymentPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "deployment-state.json"
	}
	return filepath.Join(home, ".burrow", "deployment.json")
}

// SetDefaults registers every default on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("network", MainnetName)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("session_backend", SessionBackendFile)
	v.SetDefault("session_path", defaultSessionPath())
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_prefix", "burrow:")
	v.SetDefault("keystores", []string{})
	v.SetDefault("wallet_password", "")
	v.SetDefault("monitor_interval", 5*time.Second)
	v.SetDefault("reconnect_cooldown", 5*time.Minute)
	v.SetDefault("provider_warmup", time.Second)
	v.SetDefault("retry_attempts", 3)
	v.SetDefault("fallback_delay", 2*time.Second)
	v.SetDefault("refresh_interval", 30*time.Second)
	v.SetDefault("receipt_poll", 2*time.Second)
	v.SetDefault("metrics_addr", "")
	v.SetDefault("deployment_file", defaultDeploymentPath())
}

// LoadConfig loads .env (if present), then reads BURROW_* environment
// variables and an optional burrow.yaml from the working directory or ~/.burrow
func LoadConfig() (*Config, error) {
	return LoadConfigFile("")
}

// LoadConfigFile is LoadConfig with an explicit config file. An empty path
// searches the default locations.
func LoadConfigFile(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()
	InitializeNetworks()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("burrow")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".burrow"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return FromViper(v)
}

// FromViper builds a Config from an already populated viper instance
func FromViper(v *viper.Viper) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix("BURROW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		Network:           strings.ToLower(v.GetString("network")),
		LogLevel:          v.GetString("log_level"),
		LogFormat:         v.GetString("log_format"),
		SessionBackend:    strings.ToLower(v.GetString("session_backend")),
		SessionPath:       v.GetString("session_path"),
		RedisAddr:         v.GetString("redis_addr"),
		RedisPrefix:       v.GetString("redis_prefix"),
		Keystores:         v.GetStringSlice("keystores"),
		WalletPassword:    v.GetString("wallet_password"),
		MonitorInterval:   v.GetDuration("monitor_interval"),
		ReconnectCooldown: v.GetDuration("reconnect_cooldown"),
		ProviderWarmup:    v.GetDuration("provider_warmup"),
		RetryAttempts:     v.GetInt("retry_attempts"),
		FallbackDelay:     v.GetDuration("fallback_delay"),
		RefreshInterval:   v.GetDuration("refresh_interval"),
		ReceiptPoll:       v.GetDuration("receipt_poll"),
		MetricsAddr:       v.GetString("metrics_addr"),
		DeploymentFile:    v.GetString("deployment_file"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and the network profile
func (c *Config) Validate() error {
	if !ValidateNetworkName(c.Network) {
		return fmt.Errorf("unknown network %q (available: %s)", c.Network, strings.Join(GetNetworkNames(), ", "))
	}
	switch c.SessionBackend {
	case SessionBackendFile:
		if c.SessionPath == "" {
			return fmt.Errorf("session_path is required for the file backend")
		}
	case SessionBackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown session backend %q", c.SessionBackend)
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("retry_attempts must be at least 1, got %d", c.RetryAttempts)
	}
	if c.MonitorInterval <= 0 {
		return fmt.Errorf("monitor_interval must be positive")
	}
	if c.ReconnectCooldown < 0 || c.FallbackDelay < 0 || c.ProviderWarmup < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	return nil
}

// NetworkConfig returns the active network profile with any recorded
// redeployment applied
func (c *Config) NetworkConfig() (NetworkConfig, error) {
	nc, err := GetNetworkConfig(c.Network)
	if err != nil {
		return NetworkConfig{}, err
	}
	if c.DeploymentFile == "" {
		return nc, nil
	}
	state, err := LoadDeploymentState(c.DeploymentFile)
	if err != nil {
		return NetworkConfig{}, err
	}
	return state.Apply(nc), nil
}
