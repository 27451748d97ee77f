package wallet

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/ereyli/Burrowburr/internal/types"
)

// Environment variables read by EnvProvider
const (
	EnvAccountAddress = "STARKNET_ACCOUNT_ADDRESS"
	EnvPublicKey      = "STARKNET_PUBLIC_KEY"
	EnvPrivateKey     = "STARKNET_PRIVATE_KEY"
	EnvWalletKind     = "STARKNET_WALLET_KIND"
)

// EnvProvider signs with a key taken from the process environment. It is
// installed when all three STARKNET_* variables are set and is never locked.
type EnvProvider struct {
	factory AccountFactory
	lookup  func(string) string

	mu        sync.Mutex
	connected bool
}

// NewEnvProvider reads the signer from the environment on each call
func NewEnvProvider(factory AccountFactory) *EnvProvider {
	return &EnvProvider{factory: factory, lookup: os.Getenv}
}

func (e *EnvProvider) key() KeyMaterial {
	return KeyMaterial{
		Address:    e.lookup(EnvAccountAddress),
		PublicKey:  e.lookup(EnvPublicKey),
		PrivateKey: e.lookup(EnvPrivateKey),
	}
}

func (e *EnvProvider) Kind() Kind { return ParseKind(e.lookup(EnvWalletKind)) }

func (e *EnvProvider) Name() string {
	return fmt.Sprintf("env signer %s", types.ShortAddress(e.lookup(EnvAccountAddress)))
}

func (e *EnvProvider) Installed() bool {
	k := e.key()
	return k.Address != "" && k.PublicKey != "" && k.PrivateKey != ""
}

func (e *EnvProvider) Locked(context.Context) (bool, error) { return false, nil }

func (e *EnvProvider) Connected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connected && e.Installed()
}

func (e *EnvProvider) Enable(ctx context.Context, _ EnableOptions) (Account, error) {
	if !e.Installed() {
		return nil, fmt.Errorf("missing %s, %s or %s for the env signer", EnvAccountAddress, EnvPublicKey, EnvPrivateKey)
	}
	if e.factory == nil {
		return nil, fmt.Errorf("env signer: account factory is required")
	}
	acct, err := e.factory(ctx, e.key())
	if err != nil {
		return nil, fmt.Errorf("failed to create env signer account: %w", err)
	}
	e.mu.Lock()
	e.connected = true
	e.mu.Unlock()
	return acct, nil
}

func (e *EnvProvider) Disconnect(context.Context) error {
	e.mu.Lock()
	e.connected = false
	e.mu.Unlock()
	return nil
}
