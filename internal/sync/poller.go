package sync

import (
	"context"
	"sync"
	"time"
)

// Poller is the polling fallback timer. Start is idempotent and Stop is safe
// to call when not running; the controller owns exactly one Poller and never
// runs it alongside an open push connection.
type Poller struct {
	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

// Start begins invoking tick every interval, with one immediate tick first.
// Ticks run sequentially on a single goroutine; a tick that outlasts the
// interval causes the queued tick to be skipped, never stacked. Calling
// Start while running is a no-op.
func (p *Poller) Start(interval time.Duration, tick func(ctx context.Context)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.stopped = make(chan struct{})

	go p.run(ctx, interval, tick, p.stopped)
}

// Stop cancels the timer and waits for a tick in flight to finish, so no
// tick runs after Stop returns. Safe to call when not running.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, stopped := p.cancel, p.stopped
	p.cancel = nil
	p.stopped = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-stopped
	}
}

// Running reports whether the timer is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

func (p *Poller) run(ctx context.Context, interval time.Duration, tick func(ctx context.Context), stopped chan struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Immediate first refresh; fallback mode should not wait a full interval
	// for its first data.
	if ctx.Err() == nil {
		tick(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick(ctx)
			// A slow tick leaves one fire queued in the ticker; drain it so
			// the next refresh waits a full interval instead of stacking.
			select {
			case <-ticker.C:
			default:
			}
		}
	}
}
