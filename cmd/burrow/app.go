package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"

	"github.com/ereyli/Burrowburr/internal/config"
	"github.com/ereyli/Burrowburr/internal/contracts"
	"github.com/ereyli/Burrowburr/internal/gateway"
	"github.com/ereyli/Burrowburr/internal/metrics"
	"github.com/ereyli/Burrowburr/internal/session"
	"github.com/ereyli/Burrowburr/internal/wallet"
)

// app holds the wired components of one CLI invocation
type app struct {
	cfg      *config.Config
	network  config.NetworkConfig
	log      *logrus.Logger
	clock    clock.Clock
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	gateway  *gateway.Gateway
	store    *session.Store
	wallets  *wallet.Registry
	manager  *wallet.Manager
	composer *contracts.Composer

	redis goredis.UniversalClient
	tty   *os.File
	in    *bufio.Reader
	out   io.Writer
}

type appFlags struct {
	configFile string
	network    string
	wallet     string
	wait       bool
}

func newApp(flags appFlags, in io.Reader, out io.Writer) (*app, error) {
	cfg, err := config.LoadConfigFile(flags.configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if flags.network != "" {
		cfg.Network = strings.ToLower(flags.network)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	network, err := cfg.NetworkConfig()
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		network:  network,
		log:      setupLogger(cfg),
		clock:    clock.New(),
		registry: prometheus.NewRegistry(),
		in:       bufio.NewReader(in),
		out:      out,
	}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		a.tty = f
	}
	a.metrics = metrics.New(a.registry)

	a.gateway = gateway.New(gateway.Options{
		URL:      network.RPCURL,
		Attempts: cfg.RetryAttempts,
		Logger:   a.log,
		Metrics:  a.metrics,
	})

	kv, err := a.sessionKV()
	if err != nil {
		return nil, err
	}
	a.store = session.NewStore(kv, a.log)

	a.wallets = a.discoverWallets()

	var selector wallet.Selector = wallet.PromptSelector{In: a.in, Out: out}
	if flags.wallet != "" {
		kind := wallet.ParseKind(flags.wallet)
		if kind == wallet.KindUnknown {
			return nil, fmt.Errorf("unknown wallet %q (use argentX or braavos)", flags.wallet)
		}
		selector = wallet.KindSelector(kind)
	}

	a.manager, err = wallet.NewManager(wallet.Options{
		Registry:          a.wallets,
		Selector:          selector,
		Store:             a.store,
		Clock:             a.clock,
		Logger:            a.log,
		Metrics:           a.metrics,
		MonitorInterval:   cfg.MonitorInterval,
		ReconnectCooldown: cfg.ReconnectCooldown,
		ProviderWarmup:    warmup(cfg),
	})
	if err != nil {
		return nil, err
	}

	a.composer, err = contracts.New(contracts.Options{
		Chain:         a.gateway,
		Network:       network,
		Logger:        a.log,
		Metrics:       a.metrics,
		Clock:         a.clock,
		FallbackDelay: cfg.FallbackDelay,
	})
	if err != nil {
		return nil, err
	}

	a.log.WithFields(logrus.Fields{
		"network": network.Name,
		"wallets": len(a.wallets.Installed()),
	}).Debug("burrow initialized")
	return a, nil
}

// warmup maps a configured zero to "no wait" for the manager
func warmup(cfg *config.Config) time.Duration {
	if cfg.ProviderWarmup == 0 {
		return -1
	}
	return cfg.ProviderWarmup
}

func (a *app) sessionKV() (session.KV, error) {
	switch a.cfg.SessionBackend {
	case config.SessionBackendRedis:
		a.redis = goredis.NewClient(&goredis.Options{Addr: a.cfg.RedisAddr})
		return session.NewRedisKV(a.redis, a.cfg.RedisPrefix), nil
	case config.SessionBackendFile:
		return session.NewFileKV(a.cfg.SessionPath), nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", a.cfg.SessionBackend)
	}
}

func defaultKeystoreDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "keystores"
	}
	return filepath.Join(home, ".burrow", "keystores")
}

func (a *app) keystorePaths() []string {
	if len(a.cfg.Keystores) > 0 {
		return a.cfg.Keystores
	}
	paths, err := filepath.Glob(filepath.Join(defaultKeystoreDir(), "*.json"))
	if err != nil {
		return nil
	}
	return paths
}

// discoverWallets registers every readable keystore plus the environment signer
func (a *app) discoverWallets() *wallet.Registry {
	factory := wallet.StarknetAccountFactory(a.network.RPCURL, a.cfg.ReceiptPoll)
	reg := wallet.NewRegistry()

	for _, path := range a.keystorePaths() {
		k, err := wallet.LoadKeystore(path, wallet.KeystoreOptions{
			Factory: factory,
			Prompt:  a.promptPassword,
		})
		if err != nil {
			a.log.WithError(err).WithField("path", path).Warn("⚠️  Skipping keystore")
			continue
		}
		if a.cfg.WalletPassword != "" {
			if err := k.Unlock(a.cfg.WalletPassword); err != nil {
				a.log.WithError(err).WithField("wallet", k.Name()).Warn("⚠️  Configured password does not unlock keystore")
			}
		}
		reg.Register(k)
	}

	env := wallet.NewEnvProvider(factory)
	if env.Installed() {
		reg.Register(env)
	}
	return reg
}

// promptPassword reads a keystore password without echo when stdin is a terminal
func (a *app) promptPassword(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fmt.Fprintf(a.out, "🔑 Password for %s: ", name)
	if a.tty != nil {
		pw, err := term.ReadPassword(int(a.tty.Fd()))
		fmt.Fprintln(a.out)
		if err != nil {
			return "", err
		}
		return string(pw), nil
	}
	line, err := a.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// session silently restores the saved wallet session, if any
func (a *app) session(ctx context.Context) *wallet.Handle {
	h, err := a.manager.Reconnect(ctx)
	if err != nil {
		a.log.WithError(err).Debug("silent reconnect failed")
		return nil
	}
	return h
}

// signer restores the session or falls back to an interactive connect
func (a *app) signer(ctx context.Context) (*wallet.Handle, error) {
	if h := a.session(ctx); h != nil {
		return h, nil
	}
	h, err := a.manager.Connect(ctx)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, fmt.Errorf("%w: connection cancelled", wallet.ErrNotConnected)
	}
	return h, nil
}

// address resolves the wallet address for read commands: an explicit
// address, the live session, then the last saved session
func (a *app) address(ctx context.Context, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if h := a.session(ctx); h != nil {
		return h.Address(), nil
	}
	saved, err := a.store.Load(ctx)
	if err != nil {
		return "", err
	}
	if saved != nil {
		return saved.Address, nil
	}
	return "", fmt.Errorf("%w: pass --address or run `burrow connect`", wallet.ErrNotConnected)
}

func (a *app) Close() error {
	if a.redis != nil {
		return a.redis.Close()
	}
	return nil
}
