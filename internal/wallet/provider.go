package wallet

import (
	"context"
	"errors"
	"strings"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/starknet.go/rpc"
)

var (
	// ErrNoProviderFound means no wallet provider is installed
	ErrNoProviderFound = errors.New("no Starknet wallets found, install an ArgentX or Braavos keystore")
	// ErrWalletLocked is user-actionable: unlock and retry
	ErrWalletLocked = errors.New("wallet is locked! Please unlock your ArgentX or Braavos wallet and try again")
	// ErrUserCancelled is silent: Connect reports it as a nil handle, never as an error
	ErrUserCancelled = errors.New("wallet selection cancelled")
	// ErrNotConnected is returned when an operation needs a session and none exists
	ErrNotConnected = errors.New("wallet not connected")
	// ErrHandleInvalidated is returned by a handle whose session ended
	ErrHandleInvalidated = errors.New("wallet connection handle invalidated")
)

// Kind identifies a wallet provider family
type Kind string

const (
	KindArgentX Kind = "argentX"
	KindBraavos Kind = "braavos"
	KindUnknown Kind = "unknown"
)

// ParseKind maps a stored identifier to a Kind, case-insensitively
func ParseKind(s string) Kind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "argentx", "argent", "argent-x":
		return KindArgentX
	case "braavos":
		return KindBraavos
	default:
		return KindUnknown
	}
}

func (k Kind) String() string { return string(k) }

// DisplayName is the human-readable wallet name
func (k Kind) DisplayName() string {
	switch k {
	case KindArgentX:
		return "ArgentX"
	case KindBraavos:
		return "Braavos"
	default:
		return "Starknet wallet"
	}
}

// EnableOptions controls how a provider authorizes a session
type EnableOptions struct {
	// Silent forbids any user prompt
	Silent bool
}

// Account signs and submits invoke transactions
type Account interface {
	Address() string
	Execute(ctx context.Context, calls []rpc.InvokeFunctionCall) (*felt.Felt, error)
}

// Provider is an installed wallet
type Provider interface {
	Kind() Kind
	Name() string
	Installed() bool
	Locked(ctx context.Context) (bool, error)
	Connected() bool
	Enable(ctx context.Context, opts EnableOptions) (Account, error)
	Disconnect(ctx context.Context) error
}

// IsLockedError reports whether err means the provider's key material is locked
func IsLockedError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrWalletLocked) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "keyring is locked") || strings.Contains(msg, "wallet is locked")
}

// IsCancelledError reports whether err means the user dismissed the prompt
func IsCancelledError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUserCancelled) || errors.Is(err, context.Canceled) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "user rejected") || strings.Contains(msg, "user abort")
}

// Registry holds the known providers in preference order
type Registry struct {
	providers []Provider
}

// NewRegistry creates a registry. ArgentX sorts before Braavos, others keep their order after.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

func rank(k Kind) int {
	switch k {
	case KindArgentX:
		return 0
	case KindBraavos:
		return 1
	default:
		return 2
	}
}

// Register adds p keeping preference order
func (r *Registry) Register(p Provider) {
	i := len(r.providers)
	for i > 0 && rank(r.providers[i-1].Kind()) > rank(p.Kind()) {
		i--
	}
	r.providers = append(r.providers, nil)
	copy(r.providers[i+1:], r.providers[i:])
	r.providers[i] = p
}

// All returns every registered provider
func (r *Registry) All() []Provider {
	out := make([]Provider, len(r.providers))
	copy(out, r.providers)
	return out
}

// Installed returns the providers currently available
func (r *Registry) Installed() []Provider {
	var out []Provider
	for _, p := range r.providers {
		if p.Installed() {
			out = append(out, p)
		}
	}
	return out
}

// Find returns the first installed provider of kind. KindUnknown matches any installed provider.
func (r *Registry) Find(kind Kind) (Provider, bool) {
	installed := r.Installed()
	for _, p := range installed {
		if p.Kind() == kind {
			return p, true
		}
	}
	if kind == KindUnknown && len(installed) > 0 {
		return installed[0], true
	}
	return nil, false
}
