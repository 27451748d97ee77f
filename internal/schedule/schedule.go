package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Task is a periodic job. Stopping its handle is the only way to cancel it.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Every runs fn on each tick of interval until the returned Task is stopped
// or parent is cancelled. The first run happens one interval after start.
func Every(parent context.Context, clk clock.Clock, interval time.Duration, fn func(ctx context.Context)) *Task {
	ctx, cancel := context.WithCancel(parent)
	t := &Task{cancel: cancel, done: make(chan struct{})}

	// ticker is created before the goroutine starts so mock clocks see it
	ticker := clk.Ticker(interval)
	go func() {
		defer close(t.done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if ctx.Err() != nil {
					return
				}
				fn(ctx)
			}
		}
	}()
	return t
}

// Stop cancels the task and waits for an in-flight run to return. It is safe
// to call more than once, but not from inside fn.
func (t *Task) Stop() {
	if t == nil {
		return
	}
	t.once.Do(t.cancel)
	<-t.done
}

// Cancel stops the task without waiting. Use it from inside fn.
func (t *Task) Cancel() {
	if t == nil {
		return
	}
	t.once.Do(t.cancel)
}

// Done is closed once the task loop has exited
func (t *Task) Done() <-chan struct{} { return t.done }

// Sleep waits for d on clk, returning early with ctx.Err() if ctx ends first
func Sleep(ctx context.Context, clk clock.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := clk.Timer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
