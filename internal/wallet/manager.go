package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/NethermindEth/juno/core/felt"
	"github.com/NethermindEth/starknet.go/rpc"
	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/event"
	"github.com/sirupsen/logrus"

	"github.com/ereyli/Burrowburr/internal/metrics"
	"github.com/ereyli/Burrowburr/internal/schedule"
	"github.com/ereyli/Burrowburr/internal/session"
	"github.com/ereyli/Burrowburr/internal/types"
)

// Module: Wallet session manager
// Owns the single live connection to a wallet provider.
//
// Interface Contract:
// - Connect: interactive selection and enable, persisted on success
// - Reconnect: silent restore of a persisted session, honouring the disconnect cooldown
// - StartMonitor/StopMonitor: periodic liveness probe of the bound provider
// - Disconnect: explicit teardown that arms the cooldown
//
// Callers only ever see immutable Handle values. Every teardown bumps the
// generation so handles from an older session stop working.

const (
	DefaultMonitorInterval   = 5 * time.Second
	DefaultReconnectCooldown = 5 * time.Minute
	DefaultProviderWarmup    = time.Second
)

// State is the session lifecycle state
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Monitoring
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Monitoring:
		return "monitoring"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// StateEvent is published on every transition
type StateEvent struct {
	From    State
	To      State
	Address string
	Kind    Kind
	Reason  string
}

// Handle is a snapshot of one connected session
type Handle struct {
	provider Provider
	account  Account
	gen      uint64
	mgr      *Manager
}

func (h *Handle) Provider() Provider { return h.provider }
func (h *Handle) Account() Account   { return h.account }
func (h *Handle) Kind() Kind         { return h.provider.Kind() }
func (h *Handle) Address() string    { return h.account.Address() }

// Valid reports whether the session this handle belongs to is still live
func (h *Handle) Valid() bool {
	return h != nil && h.mgr != nil && h.mgr.gen.Load() == h.gen
}

// Execute submits calls through the bound account. A stale handle fails
// with ErrHandleInvalidated.
func (h *Handle) Execute(ctx context.Context, calls []rpc.InvokeFunctionCall) (*felt.Felt, error) {
	if !h.Valid() {
		return nil, ErrHandleInvalidated
	}
	return h.account.Execute(ctx, calls)
}

// Options configures a Manager. Zero durations take the defaults.
type Options struct {
	Registry          *Registry
	Selector          Selector
	Store             *session.Store
	Clock             clock.Clock
	Logger            *logrus.Logger
	Metrics           *metrics.Metrics
	MonitorInterval   time.Duration
	ReconnectCooldown time.Duration
	ProviderWarmup    time.Duration
}

// Manager is the wallet session state machine
type Manager struct {
	registry *Registry
	selector Selector
	store    *session.Store
	clk      clock.Clock
	log      *logrus.Logger
	metrics  *metrics.Metrics

	monitorInterval time.Duration
	cooldown        time.Duration
	warmup          time.Duration

	// opMu serializes Connect, Reconnect and Disconnect
	opMu sync.Mutex

	mu      sync.Mutex
	state   State
	handle  *Handle
	monitor *schedule.Task
	gen     atomic.Uint64

	stateFeed event.Feed
}

// NewManager creates a manager in the Disconnected state
func NewManager(opts Options) (*Manager, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("wallet registry is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	m := &Manager{
		registry:        opts.Registry,
		selector:        opts.Selector,
		store:           opts.Store,
		clk:             opts.Clock,
		log:             opts.Logger,
		metrics:         opts.Metrics,
		monitorInterval: opts.MonitorInterval,
		cooldown:        opts.ReconnectCooldown,
		warmup:          opts.ProviderWarmup,
	}
	if m.selector == nil {
		m.selector = FirstInstalled
	}
	if m.clk == nil {
		m.clk = clock.New()
	}
	if m.log == nil {
		m.log = logrus.StandardLogger()
	}
	if m.monitorInterval <= 0 {
		m.monitorInterval = DefaultMonitorInterval
	}
	if m.cooldown <= 0 {
		m.cooldown = DefaultReconnectCooldown
	}
	if m.warmup < 0 {
		m.warmup = 0
	} else if m.warmup == 0 {
		m.warmup = DefaultProviderWarmup
	}
	return m, nil
}

// State returns the current lifecycle state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Handle returns the live handle, or nil when disconnected
func (m *Manager) Handle() *Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handle
}

// Require returns the live handle or ErrNotConnected
func (m *Manager) Require() (*Handle, error) {
	if h := m.Handle(); h != nil && h.Valid() {
		return h, nil
	}
	return nil, ErrNotConnected
}

// SubscribeState delivers every StateEvent to ch
func (m *Manager) SubscribeState(ch chan<- StateEvent) event.Subscription {
	return m.stateFeed.Subscribe(ch)
}

// setState must be called with mu held. The returned event is sent after unlock.
func (m *Manager) setState(to State, reason string) (StateEvent, bool) {
	from := m.state
	if from == to {
		return StateEvent{}, false
	}
	m.state = to
	ev := StateEvent{From: from, To: to, Reason: reason}
	if m.handle != nil {
		ev.Address = m.handle.Address()
		ev.Kind = m.handle.Kind()
	}
	m.metrics.Transition(to.String(), int(to))
	return ev, true
}

func (m *Manager) transition(to State, reason string) {
	m.mu.Lock()
	ev, changed := m.setState(to, reason)
	m.mu.Unlock()
	if changed {
		m.stateFeed.Send(ev)
	}
}

// bind installs a new handle and moves to Connected
func (m *Manager) bind(p Provider, acct Account, reason string) *Handle {
	m.mu.Lock()
	h := &Handle{provider: p, account: acct, gen: m.gen.Add(1), mgr: m}
	m.handle = h
	ev, changed := m.setState(Connected, reason)
	m.mu.Unlock()
	if changed {
		m.stateFeed.Send(ev)
	}
	return h
}

// unbind invalidates the live handle and moves to Disconnected. The monitor
// task is detached and returned so the caller decides how to stop it.
func (m *Manager) unbind(reason string) *schedule.Task {
	m.mu.Lock()
	m.gen.Add(1)
	task := m.monitor
	m.monitor = nil
	ev, changed := m.setState(Disconnected, reason)
	m.handle = nil
	m.mu.Unlock()
	if changed {
		m.stateFeed.Send(ev)
	}
	return task
}

func (m *Manager) persist(ctx context.Context, h *Handle) {
	d := session.Descriptor{
		WalletKind: h.Kind().String(),
		Address:    h.Address(),
		Connected:  true,
	}
	if err := m.store.Save(ctx, d); err != nil {
		m.log.WithError(err).Error("❌ Failed to save wallet connection")
		return
	}
	m.log.Debug("💾 Wallet connection saved")
}

func (m *Manager) clearStore(ctx context.Context) {
	if err := m.store.Clear(ctx); err != nil {
		m.log.WithError(err).Error("❌ Failed to clear wallet connection")
		return
	}
	m.log.Debug("🗑️ Wallet connection cleared")
}

// Connect runs interactive selection and enable. Cancellation and an empty
// session are reported as a nil handle with a nil error.
func (m *Manager) Connect(ctx context.Context) (*Handle, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if task := m.unbind("connect"); task != nil {
		task.Stop()
	}
	m.clearStore(ctx)

	providers := m.registry.Installed()
	if len(providers) == 0 {
		return nil, ErrNoProviderFound
	}

	m.transition(Connecting, "connect")
	m.log.WithField("providers", len(providers)).Info("🔄 Connecting wallet...")

	p, err := m.selector.Select(ctx, providers)
	if err != nil || p == nil {
		m.transition(Disconnected, "selection cancelled")
		if err != nil && !IsCancelledError(err) {
			if errors.Is(err, ErrNoProviderFound) {
				return nil, err
			}
			m.log.WithError(err).Warn("⚠️  Wallet selection failed")
		}
		return nil, nil
	}

	acct, err := p.Enable(ctx, EnableOptions{})
	if err != nil {
		m.transition(Disconnected, "enable failed")
		if IsLockedError(err) {
			return nil, ErrWalletLocked
		}
		if !IsCancelledError(err) {
			m.log.WithError(err).WithField("wallet", p.Name()).Warn("⚠️  Wallet enable failed")
		}
		return nil, nil
	}
	if acct == nil || types.NormalizeAddress(acct.Address()) == "0" {
		m.transition(Disconnected, "no account")
		m.log.WithField("wallet", p.Name()).Warn("⚠️  Wallet returned no account")
		return nil, nil
	}

	h := m.bind(p, acct, "connect")
	m.persist(ctx, h)
	m.log.WithFields(logrus.Fields{
		"wallet":  p.Kind().DisplayName(),
		"address": types.ShortAddress(h.Address()),
	}).Info("✅ Wallet connected")
	return h, nil
}

// Reconnect silently restores a persisted session. It returns (nil, nil)
// whenever the session cannot be restored; only ctx cancellation is an error.
func (m *Manager) Reconnect(ctx context.Context) (*Handle, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if h := m.Handle(); h != nil && h.Valid() {
		return h, nil
	}

	if last, ok, err := m.store.LastDisconnect(ctx); err != nil {
		m.log.WithError(err).Warn("⚠️  Could not read last disconnect time")
	} else if ok && m.clk.Now().Sub(last) < m.cooldown {
		m.log.Info("⚠️  Wallet recently disconnected, skipping auto-reconnect")
		return nil, nil
	}

	saved, err := m.store.Load(ctx)
	if err != nil {
		m.log.WithError(err).Warn("⚠️  Could not load saved wallet connection")
		return nil, nil
	}
	if saved == nil {
		m.log.Debug("⏭️ No previous connection found, skipping auto-reconnect")
		return nil, nil
	}

	logger := m.log.WithFields(logrus.Fields{
		"wallet":  saved.WalletKind,
		"address": types.ShortAddress(saved.Address),
	})
	logger.Info("🔄 Attempting auto-reconnect...")
	m.transition(Connecting, "reconnect")

	h, err := m.restore(ctx, saved, logger)
	if err != nil {
		m.transition(Disconnected, "reconnect interrupted")
		return nil, err
	}
	if h == nil {
		m.transition(Disconnected, "reconnect failed")
	}
	return h, nil
}

func (m *Manager) restore(ctx context.Context, saved *session.Descriptor, logger *logrus.Entry) (*Handle, error) {
	if err := schedule.Sleep(ctx, m.clk, m.warmup); err != nil {
		return nil, err
	}

	if len(m.registry.Installed()) == 0 {
		logger.Warn("⚠️  No wallet providers found, waiting once more")
		if err := schedule.Sleep(ctx, m.clk, 2*m.warmup); err != nil {
			return nil, err
		}
		if len(m.registry.Installed()) == 0 {
			logger.Warn("❌ Still no wallet providers, clearing saved connection")
			m.clearStore(ctx)
			return nil, nil
		}
	}

	kind := ParseKind(saved.WalletKind)
	p, ok := m.registry.Find(kind)
	if !ok {
		if err := schedule.Sleep(ctx, m.clk, m.warmup/2); err != nil {
			return nil, err
		}
		p, ok = m.registry.Find(kind)
	}
	if !ok {
		logger.Warn("⚠️  Saved wallet is not available, clearing saved connection")
		m.clearStore(ctx)
		return nil, nil
	}

	locked, err := p.Locked(ctx)
	if err != nil && !IsLockedError(err) {
		logger.WithError(err).Warn("⚠️  Could not query wallet lock state, clearing saved connection")
		m.clearStore(ctx)
		return nil, nil
	}
	if locked || IsLockedError(err) {
		// the saved session stays so an unlock followed by a reconnect succeeds
		logger.Info("⚠️  Wallet is locked, skipping auto-reconnect")
		return nil, nil
	}

	acct, err := p.Enable(ctx, EnableOptions{Silent: true})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if IsLockedError(err) {
			logger.Info("⚠️  Wallet is locked, skipping auto-reconnect")
			return nil, nil
		}
		logger.WithError(err).Warn("⚠️  Auto-reconnect failed, clearing saved connection")
		m.clearStore(ctx)
		return nil, nil
	}
	if acct == nil || types.NormalizeAddress(acct.Address()) == "0" {
		logger.Warn("⚠️  Wallet returned no account, clearing saved connection")
		m.clearStore(ctx)
		return nil, nil
	}
	if !types.SameAddress(acct.Address(), saved.Address) {
		logger.WithField("enabled", types.ShortAddress(acct.Address())).Info("🔄 Wallet account changed since last session")
	}

	h := m.bind(p, acct, "reconnect")
	m.persist(ctx, h)
	logger.WithField("address", types.ShortAddress(h.Address())).Info("✅ Wallet auto-reconnected")
	return h, nil
}

// StartMonitor probes the bound provider every monitor interval. When the
// provider is locked or no longer connected the session is torn down and
// onDisconnect is called. It is a no-op when no session is live.
func (m *Manager) StartMonitor(ctx context.Context, onDisconnect func()) error {
	m.mu.Lock()
	if m.handle == nil {
		m.mu.Unlock()
		return ErrNotConnected
	}
	if m.monitor != nil {
		m.mu.Unlock()
		return nil
	}
	h := m.handle
	var task *schedule.Task
	task = schedule.Every(ctx, m.clk, m.monitorInterval, func(tickCtx context.Context) {
		reason := m.probe(tickCtx, h)
		if reason == "" {
			return
		}
		task.Cancel()
		if m.teardown(tickCtx, h, reason) && onDisconnect != nil {
			onDisconnect()
		}
	})
	m.monitor = task
	ev, changed := m.setState(Monitoring, "monitor started")
	m.mu.Unlock()
	if changed {
		m.stateFeed.Send(ev)
	}
	m.log.WithField("interval", m.monitorInterval).Debug("👀 Wallet liveness monitor started")
	return nil
}

// probe returns why h is no longer live, or "" when it is
func (m *Manager) probe(ctx context.Context, h *Handle) string {
	if !h.Valid() {
		return "session replaced"
	}
	p := h.Provider()

	locked, err := p.Locked(ctx)
	switch {
	case ctx.Err() != nil:
		return ""
	case locked || IsLockedError(err):
		return "wallet locked"
	case err != nil:
		m.log.WithError(err).Warn("⚠️  Wallet liveness probe failed")
		return "liveness probe failed"
	case !p.Connected():
		return "wallet disconnected"
	default:
		return ""
	}
}

// teardown ends the session h belongs to. It reports false when h was
// already superseded by another connect or disconnect.
func (m *Manager) teardown(ctx context.Context, h *Handle, reason string) bool {
	m.mu.Lock()
	if m.handle != h || !h.Valid() {
		m.mu.Unlock()
		return false
	}
	m.gen.Add(1)
	m.monitor = nil
	ev, changed := m.setState(Disconnected, reason)
	m.handle = nil
	m.mu.Unlock()
	if changed {
		m.stateFeed.Send(ev)
	}

	m.log.WithFields(logrus.Fields{
		"wallet": h.Kind().DisplayName(),
		"reason": reason,
	}).Warn("⚠️  Wallet session lost")
	m.clearStore(ctx)
	return true
}

// StopMonitor stops liveness monitoring without ending the session
func (m *Manager) StopMonitor() {
	m.mu.Lock()
	task := m.monitor
	m.monitor = nil
	var ev StateEvent
	var changed bool
	if m.state == Monitoring {
		ev, changed = m.setState(Connected, "monitor stopped")
	}
	m.mu.Unlock()

	task.Stop()
	if changed {
		m.stateFeed.Send(ev)
	}
}

// Disconnect ends the session and arms the reconnect cooldown. Provider
// errors are logged; storage errors are returned.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	h := m.Handle()
	if h != nil {
		if err := h.Provider().Disconnect(ctx); err != nil {
			m.log.WithError(err).Warn("⚠️  Wallet provider disconnect failed")
		}
	}

	m.unbind("disconnect").Stop()

	var errs []error
	if err := m.store.Clear(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := m.store.RecordDisconnect(ctx, m.clk.Now()); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		m.log.WithError(err).Error("❌ Failed to persist wallet disconnect")
		return err
	}
	m.log.Info("👋 Wallet disconnected")
	return nil
}
