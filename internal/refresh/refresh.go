package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/event"
	"github.com/sirupsen/logrus"

	"github.com/ereyli/Burrowburr/internal/contracts"
	"github.com/ereyli/Burrowburr/internal/metrics"
	"github.com/ereyli/Burrowburr/internal/schedule"
)

// Module: Data refresher
// Polls game analytics and, when a wallet is bound, the player's beavers and
// balances. Each successful cycle publishes a complete Snapshot.
//
// Interface Contract:
// - A failed cycle publishes nothing; Latest keeps returning the last good snapshot
// - A cycle that started for a different address than the current one is discarded
// - Stop cancels the polling task and waits for it

const DefaultInterval = 30 * time.Second

var ErrNotStarted = errors.New("refresher not started")

// Source is the read surface the refresher polls. *contracts.Composer satisfies it.
type Source interface {
	GameAnalytics(ctx context.Context) (*contracts.Analytics, error)
	PlayerInfo(ctx context.Context, owner string) (*contracts.PlayerInfo, error)
	Balances(ctx context.Context, owner string) (*contracts.Balances, error)
}

// Snapshot is one complete view of game and player data
type Snapshot struct {
	Seq       uint64
	At        time.Time
	Address   string
	Analytics *contracts.Analytics
	Player    *contracts.PlayerInfo
	Balances  *contracts.Balances
}

// Options configures a Refresher
type Options struct {
	Source   Source
	Clock    clock.Clock
	Logger   *logrus.Logger
	Metrics  *metrics.Metrics
	Interval time.Duration
}

// Refresher republishes Snapshots on a fixed interval
type Refresher struct {
	source   Source
	clk      clock.Clock
	log      *logrus.Logger
	metrics  *metrics.Metrics
	interval time.Duration

	mu      sync.Mutex
	address string
	latest  *Snapshot
	seq     uint64
	task    *schedule.Task
	feed    event.Feed
}

func New(opts Options) (*Refresher, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("refresh source is required")
	}
	r := &Refresher{
		source:   opts.Source,
		clk:      opts.Clock,
		log:      opts.Logger,
		metrics:  opts.Metrics,
		interval: opts.Interval,
	}
	if r.clk == nil {
		r.clk = clock.New()
	}
	if r.log == nil {
		r.log = logrus.StandardLogger()
	}
	if r.interval <= 0 {
		r.interval = DefaultInterval
	}
	return r, nil
}

// SetAddress binds the player whose data is polled. An empty address polls
// analytics only.
func (r *Refresher) SetAddress(address string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.address = address
}

func (r *Refresher) currentAddress() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.address
}

// Subscribe delivers every published snapshot to ch
func (r *Refresher) Subscribe(ch chan<- Snapshot) event.Subscription {
	return r.feed.Subscribe(ch)
}

// Latest returns the last published snapshot
func (r *Refresher) Latest() (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.latest == nil {
		return Snapshot{}, false
	}
	return *r.latest, true
}

// Refresh runs one cycle and publishes its snapshot
func (r *Refresher) Refresh(ctx context.Context) (Snapshot, error) {
	start := r.clk.Now()
	defer func() { r.metrics.ObserveRefresh(r.clk.Since(start).Seconds()) }()

	address := r.currentAddress()
	snap := Snapshot{Address: address}

	analytics, err := r.source.GameAnalytics(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to refresh analytics: %w", err)
	}
	snap.Analytics = analytics

	if address != "" {
		if snap.Player, err = r.source.PlayerInfo(ctx, address); err != nil {
			return Snapshot{}, fmt.Errorf("failed to refresh player info: %w", err)
		}
		if snap.Balances, err = r.source.Balances(ctx, address); err != nil {
			return Snapshot{}, fmt.Errorf("failed to refresh balances: %w", err)
		}
	}

	r.mu.Lock()
	if r.address != address {
		r.mu.Unlock()
		return Snapshot{}, fmt.Errorf("address changed during refresh")
	}
	r.seq++
	snap.Seq = r.seq
	snap.At = r.clk.Now()
	r.latest = &snap
	r.mu.Unlock()

	r.feed.Send(snap)
	return snap, nil
}

func (r *Refresher) tick(ctx context.Context) {
	if _, err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
		r.log.WithError(err).Warn("⚠️  Refresh failed, keeping previous data")
	}
}

// Start runs a cycle immediately, then one per interval until Stop or ctx ends
func (r *Refresher) Start(ctx context.Context) {
	r.mu.Lock()
	if r.task != nil {
		r.mu.Unlock()
		return
	}
	r.task = schedule.Every(ctx, r.clk, r.interval, r.tick)
	r.mu.Unlock()

	r.log.WithField("interval", r.interval).Info("🔄 Data refresh started")
	r.tick(ctx)
}

// Stop cancels polling and waits for an in-flight cycle
func (r *Refresher) Stop() error {
	r.mu.Lock()
	task := r.task
	r.task = nil
	r.mu.Unlock()
	if task == nil {
		return ErrNotStarted
	}
	task.Stop()
	return nil
}
