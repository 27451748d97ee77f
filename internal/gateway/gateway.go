package gateway

// Module: Chain Access Gateway
// - Owns the single connection to the active network profile's endpoint
// - Builds the connection lazily and rebuilds it after every failed attempt
// - Bounds every operation to a fixed number of attempts
//
// Interface Contract:
// - WithRetry(): runs op at most Attempts times, returns ErrRPCExhausted wrapping the last error
// - Call(): read calls are always pinned to the latest block, never pending

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/starknet.go/rpc"
	"github.com/NethermindEth/starknet.go/utils"
	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/sirupsen/logrus"

	"github.com/ereyli/Burrowburr/internal/metrics"
)

// DefaultAttempts is the bounded retry count for chain operations
const DefaultAttempts = 3

// LatestBlock is the only block reads are evaluated against
var LatestBlock = rpc.WithBlockTag("latest")

// ErrRPCExhausted is returned once every attempt of an operation failed
var ErrRPCExhausted = errors.New("rpc attempts exhausted")

// Reader is the read surface of a Starknet node. *rpc.Provider satisfies it.
type Reader interface {
	Call(ctx context.Context, call rpc.FunctionCall, blockID rpc.BlockID) ([]*felt.Felt, error)
}

// Dialer builds a connection to url
type Dialer func(ctx context.Context, url string) (Reader, error)

// DialProvider is the production Dialer backed by starknet.go's JSON-RPC provider
func DialProvider(_ context.Context, url string) (Reader, error) {
	provider, err := rpc.NewProvider(url)
	if err != nil {
		return nil, fmt.Errorf("failed to create Starknet provider: %w", err)
	}
	return provider, nil
}

// Options configures a Gateway
type Options struct {
	URL      string
	Dialer   Dialer
	Attempts int
	Logger   *logrus.Logger
	Metrics  *metrics.Metrics
}

// Gateway wraps outbound calls to one endpoint
type Gateway struct {
	url      string
	dial     Dialer
	attempts int
	log      *logrus.Logger
	metrics  *metrics.Metrics

	mu     sync.Mutex
	reader Reader
	dials  int
}

// New creates a Gateway. The connection is not built until the first call.
func New(opts Options) *Gateway {
	if opts.Dialer == nil {
		opts.Dialer = DialProvider
	}
	if opts.Attempts < 1 {
		opts.Attempts = DefaultAttempts
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Gateway{
		url:      opts.URL,
		dial:     opts.Dialer,
		attempts: opts.Attempts,
		log:      opts.Logger,
		metrics:  opts.Metrics,
	}
}

// URL returns the endpoint of the active network profile
func (g *Gateway) URL() string { return g.url }

// Attempts returns the bounded attempt count
func (g *Gateway) Attempts() int { return g.attempts }

// Dials reports how many times a connection has been built
func (g *Gateway) Dials() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dials
}

// Reader returns the current connection, building it if none exists
func (g *Gateway) Reader(ctx context.Context) (Reader, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.reader != nil {
		return g.reader, nil
	}
	r, err := g.dial(ctx, g.url)
	g.dials++
	if err != nil {
		return nil, err
	}
	g.reader = r
	return r, nil
}

// reset discards the current connection so the next attempt builds a fresh one
func (g *Gateway) reset() {
	g.mu.Lock()
	g.reader = nil
	g.mu.Unlock()
	g.metrics.Rebuild()
}

// WithRetry runs op against the gateway connection up to the configured
// number of attempts. Context cancellation stops retrying immediately.
func WithRetry[T any](ctx context.Context, g *Gateway, name string, op func(ctx context.Context, r Reader) (T, error)) (T, error) {
	policy := retrypolicy.NewBuilder[T]().
		WithMaxRetries(g.attempts - 1).
		AbortOnErrors(context.Canceled, context.DeadlineExceeded).
		ReturnLastFailure().
		Build()

	attempt := 0
	result, err := failsafe.With[T](policy).WithContext(ctx).Get(func() (T, error) {
		var zero T
		attempt++
		g.metrics.Attempt(name)

		if err := ctx.Err(); err != nil {
			return zero, err
		}

		r, err := g.Reader(ctx)
		if err == nil {
			var out T
			out, err = op(ctx, r)
			if err == nil {
				return out, nil
			}
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		g.metrics.Failure(name)
		g.log.WithFields(logrus.Fields{
			"operation": name,
			"attempt":   attempt,
			"max":       g.attempts,
			"error":     err,
		}).Warn("⚠️  Chain call failed, rebuilding provider")
		g.reset()
		return zero, err
	})
	if err == nil {
		return result, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		var zero T
		return zero, ctxErr
	}

	g.metrics.Exhausted(name)
	var zero T
	return zero, fmt.Errorf("%w: %s failed after %d attempts: %w", ErrRPCExhausted, name, attempt, err)
}

// Call invokes a view entrypoint pinned to the latest block
func (g *Gateway) Call(ctx context.Context, contract *felt.Felt, entrypoint string, calldata ...*felt.Felt) ([]*felt.Felt, error) {
	if calldata == nil {
		calldata = []*felt.Felt{}
	}
	call := rpc.FunctionCall{
		ContractAddress:    contract,
		EntryPointSelector: utils.GetSelectorFromNameFelt(entrypoint),
		Calldata:           calldata,
	}
	return WithRetry(ctx, g, entrypoint, func(ctx context.Context, r Reader) ([]*felt.Felt, error) {
		resp, err := r.Call(ctx, call, LatestBlock)
		if err != nil {
			return nil, fmt.Errorf("starknet %s call failed: %w", entrypoint, err)
		}
		return resp, nil
	})
}

// CallHex is Call with a hex contract address
func (g *Gateway) CallHex(ctx context.Context, contract string, entrypoint string, calldata ...*felt.Felt) ([]*felt.Felt, error) {
	addr, err := utils.HexToFelt(contract)
	if err != nil {
		return nil, fmt.Errorf("invalid contract address %q: %w", contract, err)
	}
	return g.Call(ctx, addr, entrypoint, calldata...)
}
