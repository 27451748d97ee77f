package wallet

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/starknet.go/account"
	"github.com/NethermindEth/starknet.go/rpc"
	"github.com/NethermindEth/starknet.go/utils"

	"github.com/ereyli/Burrowburr/internal/types"
)

// KeyMaterial is the signer a provider unlocks
type KeyMaterial struct {
	Address    string
	PublicKey  string
	PrivateKey string
}

func (k KeyMaterial) validate() error {
	if k.Address == "" || k.PublicKey == "" || k.PrivateKey == "" {
		return fmt.Errorf("key material requires address, public key and private key")
	}
	if _, err := utils.HexToFelt(k.Address); err != nil {
		return fmt.Errorf("invalid account address: %w", err)
	}
	if _, ok := new(big.Int).SetString(k.PrivateKey, 0); !ok {
		return fmt.Errorf("failed to parse private key")
	}
	return nil
}

// AccountFactory turns unlocked key material into a signing Account
type AccountFactory func(ctx context.Context, key KeyMaterial) (Account, error)

// StarknetAccount signs with a starknet.go account over one RPC endpoint
type StarknetAccount struct {
	address   string
	acct      *account.Account
	pollEvery time.Duration
}

// StarknetAccountFactory builds accounts against rpcURL
func StarknetAccountFactory(rpcURL string, receiptPoll time.Duration) AccountFactory {
	return func(ctx context.Context, key KeyMaterial) (Account, error) {
		acct, err := NewStarknetAccount(ctx, rpcURL, key, receiptPoll)
		if err != nil {
			return nil, err
		}
		return acct, nil
	}
}

// NewStarknetAccount creates a Cairo v2 account with an in-memory keystore
func NewStarknetAccount(_ context.Context, rpcURL string, key KeyMaterial, receiptPoll time.Duration) (*StarknetAccount, error) {
	if err := key.validate(); err != nil {
		return nil, err
	}
	provider, err := rpc.NewProvider(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create Starknet provider: %w", err)
	}

	addrF, _ := utils.HexToFelt(key.Address)
	privBI, _ := new(big.Int).SetString(key.PrivateKey, 0)
	ks := account.NewMemKeystore()
	ks.Put(key.PublicKey, privBI)

	acct, err := account.NewAccount(provider, addrF, key.PublicKey, ks, account.CairoV2)
	if err != nil {
		return nil, fmt.Errorf("failed to create Starknet account: %w", err)
	}
	if receiptPoll <= 0 {
		receiptPoll = 2 * time.Second
	}
	return &StarknetAccount{
		address:   types.FeltToAddress(addrF),
		acct:      acct,
		pollEvery: receiptPoll,
	}, nil
}

func (a *StarknetAccount) Address() string { return a.address }

// Execute submits calls as one multicall invoke and returns the tx hash once
// the node has accepted it
func (a *StarknetAccount) Execute(ctx context.Context, calls []rpc.InvokeFunctionCall) (*felt.Felt, error) {
	if len(calls) == 0 {
		return nil, fmt.Errorf("no calls to execute")
	}
	tx, err := a.acct.BuildAndSendInvokeTxn(ctx, calls, nil)
	if err != nil {
		return nil, fmt.Errorf("starknet invoke send failed: %w", err)
	}
	return tx.Hash, nil
}

// WaitForReceipt blocks until the transaction is included
func (a *StarknetAccount) WaitForReceipt(ctx context.Context, hash *felt.Felt) error {
	if _, err := a.acct.WaitForTransactionReceipt(ctx, hash, a.pollEvery); err != nil {
		return fmt.Errorf("starknet receipt wait failed: %w", err)
	}
	return nil
}
