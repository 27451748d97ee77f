package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

const (
	MainnetName = "mainnet"
	SepoliaName = "sepolia"
)

// NetworkConfig represents a single network profile: one endpoint plus the contract surfaces
type NetworkConfig struct {
	Name    string
	RPCURL  string
	ChainID string
	// Contract addresses
	BurrToken       string
	StrkToken       string
	GameContract    string
	StakingContract string
}

// getEnvWithDefault gets an environment variable with a default fallback
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

const (
	defaultMainnetRPC = "https://starknet-mainnet.g.alchemy.com/starknet/version/rpc/v0_8/EXk1VtDVCaeNBRAWsi7WA"
	defaultSepoliaRPC = "https://starknet-sepolia.g.alchemy.com/starknet/version/rpc/v0_8/EXk1VtDVCaeNBRAWsi7WA"

	defaultStrkToken    = "0x04718f5a0fc34cc1af16a1cdee98ffb20c31f5cd61d6ab07201858f4287c938d"
	defaultMainnetGame  = "0x0138cb7150f311b40163cf4cb4e1be38b795c232ef27c50cdf30b166bec36c27"
	defaultMainnetBurr  = "0x01bc7c8ce3b8fe74e4870adc2965df850d429048e83fad93f3140f52ecb74add"
	defaultMainnetStake = "0x0092f792c199b49018656030c48f3338caf54bcf4267987af94dfe85b35604d4"
	defaultSepoliaBurr  = "0x046508bb0159d9815be64d15b88e9051b989355d5a7d1b65f0d7dfabb81b24c0"
	defaultSepoliaStake = "0x06a2f6cd6d7eabe791f77b68e027dd1b49b8959728ac8bc966642d0c0ce225dd"
)

func buildNetworks() map[string]NetworkConfig {
	return map[string]NetworkConfig{
		MainnetName: {
			Name:            MainnetName,
			RPCURL:          getEnvWithDefault("MAINNET_RPC_URL", defaultMainnetRPC),
			ChainID:         "SN_MAIN",
			BurrToken:       getEnvWithDefault("MAINNET_BURR_TOKEN_ADDRESS", defaultMainnetBurr),
			StrkToken:       getEnvWithDefault("MAINNET_STRK_TOKEN_ADDRESS", defaultStrkToken),
			GameContract:    getEnvWithDefault("MAINNET_GAME_CONTRACT_ADDRESS", defaultMainnetGame),
			StakingContract: getEnvWithDefault("MAINNET_BURR_STAKING_ADDRESS", defaultMainnetStake),
		},
		SepoliaName: {
			Name:      SepoliaName,
			RPCURL:    getEnvWithDefault("SEPOLIA_RPC_URL", defaultSepoliaRPC),
			ChainID:   "SN_SEPOLIA",
			BurrToken: getEnvWithDefault("SEPOLIA_BURR_TOKEN_ADDRESS", defaultSepoliaBurr),
			StrkToken: getEnvWithDefault("SEPOLIA_STRK_TOKEN_ADDRESS", defaultStrkToken),
			// No dedicated test deployment of the game; falls back to the mainnet address
			GameContract:    getEnvWithDefault("SEPOLIA_GAME_CONTRACT_ADDRESS", defaultMainnetGame),
			StakingContract: getEnvWithDefault("SEPOLIA_BURR_STAKING_ADDRESS", defaultSepoliaStake),
		},
	}
}

// Networks contains all network profiles
var Networks = buildNetworks()

// InitializeNetworks re-reads environment overrides, call it after .env is loaded
func InitializeNetworks() {
	Networks = buildNetworks()
}

// GetNetworkConfig returns the configuration for a given network name
func GetNetworkConfig(networkName string) (NetworkConfig, error) {
	if config, exists := Networks[strings.ToLower(networkName)]; exists {
		return config, nil
	}
	return NetworkConfig{}, fmt.Errorf("network not found: %s", networkName)
}

// GetRPCURL returns the RPC URL for a given network name
func GetRPCURL(networkName string) (string, error) {
	config, err := GetNetworkConfig(networkName)
	if err != nil {
		return "", err
	}
	return config.RPCURL, nil
}

// GetNetworkNames returns all available network names, sorted
func GetNetworkNames() []string {
	names := make([]string, 0, len(Networks))
	for name := range Networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateNetworkName checks if a network name is valid
func ValidateNetworkName(networkName string) bool {
	_, exists := Networks[strings.ToLower(networkName)]
	return exists
}

// GetDefaultNetwork returns the default network (mainnet)
func GetDefaultNetwork() NetworkConfig {
	return Networks[MainnetName]
}
