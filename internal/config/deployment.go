package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DeploymentState holds contract addresses of a redeployment, keyed by network profile
type DeploymentState struct {
	Networks map[string]NetworkState `json:"networks"`
}

// NetworkState holds the contract addresses for a specific network.
// Empty fields keep the profile's address.
type NetworkState struct {
	BurrToken       string `json:"burrToken,omitempty"`
	StrkToken       string `json:"strkToken,omitempty"`
	GameContract    string `json:"gameContract,omitempty"`
	StakingContract string `json:"stakingContract,omitempty"`
	LastUpdated     string `json:"lastUpdated,omitempty"`
}

// LoadDeploymentState reads the deployment file at path. A missing file
// yields an empty state.
func LoadDeploymentState(path string) (*DeploymentState, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &DeploymentState{Networks: map[string]NetworkState{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read deployment file: %w", err)
	}

	var state DeploymentState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse deployment file: %w", err)
	}
	normalized := make(map[string]NetworkState, len(state.Networks))
	for name, ns := range state.Networks {
		normalized[strings.ToLower(name)] = ns
	}
	state.Networks = normalized
	return &state, nil
}

// SaveDeploymentState writes state to path
func SaveDeploymentState(path string, state *DeploymentState) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create deployment directory: %w", err)
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal deployment state: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write deployment file: %w", err)
	}
	return nil
}

// UpdateNetworkState records a redeployment of network in the file at path
func UpdateNetworkState(path, network string, ns NetworkState, now time.Time) error {
	if !ValidateNetworkName(network) {
		return fmt.Errorf("network not found: %s", network)
	}
	state, err := LoadDeploymentState(path)
	if err != nil {
		return err
	}
	ns.LastUpdated = now.UTC().Format(time.RFC3339)
	state.Networks[strings.ToLower(network)] = ns
	return SaveDeploymentState(path, state)
}

// Apply overrides nc's contract addresses with the recorded deployment
func (s *DeploymentState) Apply(nc NetworkConfig) NetworkConfig {
	if s == nil {
		return nc
	}
	ns, ok := s.Networks[strings.ToLower(nc.Name)]
	if !ok {
		return nc
	}
	override := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	override(&nc.BurrToken, ns.BurrToken)
	override(&nc.StrkToken, ns.StrkToken)
	override(&nc.GameContract, ns.GameContract)
	override(&nc.StakingContract, ns.StakingContract)
	return nc
}
