package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/barber001/barbersync/internal/auth"
	"github.com/barber001/barbersync/internal/model"
	"github.com/barber001/barbersync/internal/notify"
	"github.com/barber001/barbersync/internal/push"
	"github.com/barber001/barbersync/internal/store"
)

const (
	otelScope       = "barbersync/sync"
	spanRefresh     = "sync.refresh"
	metricEvents    = "barbersync.sync.events.applied"
	metricFailures  = "barbersync.sync.transport.failures"
	metricFallbacks = "barbersync.sync.fallback.activations"
	metricRefreshes = "barbersync.sync.refreshes"
)

// ErrNotAuthorized is returned by Run when the session lacks authentication
// or the admin role.
var ErrNotAuthorized = errors.New("sync: session is not an authenticated admin")

// Mode is the controller's connectivity state.
type Mode int

const (
	ModeDisconnected Mode = iota
	ModeConnecting
	ModeLivePush
	ModeLivePoll
)

// String returns the label shown on the connectivity indicator.
func (m Mode) String() string {
	switch m {
	case ModeConnecting:
		return "connecting"
	case ModeLivePush:
		return "live-push"
	case ModeLivePoll:
		return "live-poll"
	default:
		return "disconnected"
	}
}

// Options configures a Controller.
type Options struct {
	// PollInterval is the fallback refresh period. Defaults to 5s.
	PollInterval time.Duration
	// FetchTimeout bounds each snapshot fetch. Defaults to 10s.
	FetchTimeout time.Duration
	// Policy is the reconnection policy. The zero value uses defaults.
	Policy Policy
}

func (o *Options) normalize() {
	if o.PollInterval <= 0 {
		o.PollInterval = 5 * time.Second
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 10 * time.Second
	}
}

// Controller orchestrates the transport, reconnection policy, polling
// fallback, and booking store. All state mutation happens on a single event
// loop goroutine inside [Controller.Run]; exported methods are safe to call
// from any other goroutine.
type Controller struct {
	transport Transport
	api       BookingAPI
	cache     SnapshotCache
	authp     auth.Provider
	sink      notify.Sink
	bookings  *store.Store
	poller    *Poller
	opts      Options
	log       *slog.Logger

	events   chan push.Event
	connErrs chan error
	cmds     chan func()
	done     chan struct{}
	doneOnce sync.Once

	// Loop-owned state. Only the event loop touches these.
	failures   int
	connecting bool
	retryTimer *time.Timer

	// Reader-visible state, guarded by mu.
	mu      sync.RWMutex
	mode    Mode
	filter  store.Filter
	visible []*model.Booking
	subs    []func()

	// OTel instruments — always non-nil (no-op when telemetry is disabled).
	tracer       trace.Tracer
	cntEvents    metric.Int64Counter
	cntFailures  metric.Int64Counter
	cntFallbacks metric.Int64Counter
	cntRefreshes metric.Int64Counter
}

// New creates a Controller. transport events must be routed to
// [Controller.HandleTransportEvent] by the caller wiring the push client.
// cache may be nil to disable snapshot persistence.
func New(transport Transport, api BookingAPI, cache SnapshotCache, authp auth.Provider, sink notify.Sink, opts Options, logger *slog.Logger) *Controller {
	opts.normalize()
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = notify.NewLogger(logger)
	}

	meter := otel.Meter(otelScope)
	mustCounter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			logger.Error("creating OTel counter", "name", name, "error", err)
			return noop.Int64Counter{}
		}
		return c
	}

	return &Controller{
		transport: transport,
		api:       api,
		cache:     cache,
		authp:     authp,
		sink:      sink,
		bookings:  store.New(logger),
		poller:    &Poller{},
		opts:      opts,
		log:       logger,

		events:   make(chan push.Event, 64),
		connErrs: make(chan error, 4),
		cmds:     make(chan func(), 16),
		done:     make(chan struct{}),

		mode: ModeDisconnected,

		tracer:       otel.Tracer(otelScope),
		cntEvents:    mustCounter(metricEvents, "Push events applied to the booking store"),
		cntFailures:  mustCounter(metricFailures, "Push transport connection failures"),
		cntFallbacks: mustCounter(metricFallbacks, "Activations of the polling fallback"),
		cntRefreshes: mustCounter(metricRefreshes, "Full snapshot refreshes applied"),
	}
}

// HandleTransportEvent receives events from the push client. It never
// blocks; under a pathological event flood excess events are dropped with a
// warning rather than stalling the transport's read loop.
func (c *Controller) HandleTransportEvent(ev push.Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	default:
		c.log.Warn("event queue saturated, dropping push event", "kind", ev.Kind)
	}
}

// Run starts the engine and blocks until ctx is cancelled. It performs the
// initial authoritative fetch, connects the push channel (or falls back per
// policy), and then serves the event loop. All resources are released on
// every exit path.
func (c *Controller) Run(ctx context.Context) error {
	if !c.authp.IsAuthenticated() || !c.authp.HasAdminRole() {
		return ErrNotAuthorized
	}

	defer c.teardown()

	c.warmStart(ctx)
	c.initialFetch(ctx)
	c.startConnect(ctx)

	for {
		select {
		case <-ctx.Done():
			c.log.Info("sync controller shutting down")
			return ctx.Err()
		case ev := <-c.events:
			c.handleTransport(ctx, ev)
		case err := <-c.connErrs:
			c.handleConnectError(ctx, err)
		case fn := <-c.cmds:
			fn()
		}
	}
}

// teardown releases the socket and timers and marks the session down. Runs
// on every Run exit path.
func (c *Controller) teardown() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	c.transport.Disconnect()
	c.poller.Stop()
	c.bookings.Clear()
	c.setMode(ModeDisconnected)
	c.doneOnce.Do(func() { close(c.done) })
}

// --- exported surface --------------------------------------------------------

// Mode returns the current connectivity mode.
func (c *Controller) Mode() Mode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mode
}

// Snapshot returns the full current snapshot, newest-first.
func (c *Controller) Snapshot() []*model.Booking {
	return c.bookings.Snapshot()
}

// Visible returns the snapshot with the active filter applied.
func (c *Controller) Visible() []*model.Booking {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*model.Booking, len(c.visible))
	copy(out, c.visible)
	return out
}

// ApplyFilter installs the filter and recomputes the visible set. The filter
// stays applied across background refreshes until ResetFilter.
func (c *Controller) ApplyFilter(f store.Filter) {
	c.exec(func() {
		c.mu.Lock()
		c.filter = f
		c.mu.Unlock()
		c.refreshVisible()
		c.changed()
	})
}

// ResetFilter clears the active filter.
func (c *Controller) ResetFilter() {
	c.ApplyFilter(store.Filter{})
}

// ForceReconnect abandons the polling fallback (if active), resets the
// failure count, and retries the push channel immediately.
func (c *Controller) ForceReconnect(ctx context.Context) {
	c.exec(func() {
		c.failures = 0
		if c.retryTimer != nil {
			c.retryTimer.Stop()
			c.retryTimer = nil
		}
		c.poller.Stop()
		c.transport.Disconnect()
		c.connecting = false
		c.startConnect(ctx)
	})
}

// OnChange registers a callback invoked after every store or mode change.
// Callbacks run on the event loop and must return quickly.
func (c *Controller) OnChange(fn func()) {
	c.mu.Lock()
	c.subs = append(c.subs, fn)
	c.mu.Unlock()
}

// exec runs fn on the event loop and waits for it to finish.
func (c *Controller) exec(fn func()) {
	ran := make(chan struct{})
	select {
	case c.cmds <- func() { fn(); close(ran) }:
		select {
		case <-ran:
		case <-c.done:
		}
	case <-c.done:
	}
}

// --- startup -----------------------------------------------------------------

// warmStart seeds the store from the snapshot cache so the operator sees
// last-known data before the first fetch completes.
func (c *Controller) warmStart(ctx context.Context) {
	if c.cache == nil {
		return
	}
	cached, err := c.cache.Load(ctx)
	if err != nil {
		c.log.Warn("loading snapshot cache failed", "error", err)
		return
	}
	if len(cached) == 0 {
		return
	}
	c.bookings.Replace(cached)
	c.refreshVisible()
	c.log.Info("warm start from snapshot cache", "bookings", len(cached))
}

// initialFetch loads the authoritative snapshot. Push events never replace
// the need for this; failure leaves whatever the warm start provided.
func (c *Controller) initialFetch(ctx context.Context) {
	if err := c.refresh(ctx, "initial"); err != nil {
		c.sink.Notify(notify.Error, fmt.Sprintf("Loading bookings failed: %v", err))
	}
}

// refresh fetches the full collection and installs it as the new snapshot.
func (c *Controller) refresh(ctx context.Context, source string) error {
	ctx, span := c.tracer.Start(ctx, spanRefresh, trace.WithAttributes(attribute.String("sync.source", source)))
	defer span.End()

	fctx, cancel := context.WithTimeout(ctx, c.opts.FetchTimeout)
	defer cancel()

	all, err := c.api.FetchAll(fctx)
	if err != nil {
		span.RecordError(err)
		return err
	}

	c.applySnapshot(ctx, all, source)
	span.SetAttributes(attribute.Int("sync.bookings", len(all)))
	return nil
}

// applySnapshot replaces the store contents, persists to cache, reapplies
// the active filter, and wakes subscribers. Loop-only.
func (c *Controller) applySnapshot(ctx context.Context, all []*model.Booking, source string) {
	installed := c.bookings.Replace(all)
	c.cntRefreshes.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
	c.persist(ctx, installed)
	c.refreshVisible()
	c.changed()
}

func (c *Controller) persist(ctx context.Context, snapshot []*model.Booking) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Save(ctx, snapshot); err != nil {
		c.log.Warn("persisting snapshot cache failed", "error", err)
	}
}

// --- connection management ---------------------------------------------------

// startConnect begins a push connection attempt. A missing token is a
// precondition failure: it falls back to polling immediately without
// entering Connecting or touching the failure count.
func (c *Controller) startConnect(ctx context.Context) {
	if c.connecting || c.transport.Connected() {
		return
	}

	token := c.authp.Token()
	if token == "" {
		c.log.Info("no auth token for push channel, using polling fallback")
		c.startPolling(ctx)
		return
	}

	c.connecting = true
	c.setMode(ModeConnecting)
	go func() {
		err := c.transport.Connect(ctx, token)
		if err == nil {
			// Success surfaces as an Opened event from the transport.
			return
		}
		select {
		case c.connErrs <- err:
		case <-c.done:
		}
	}()
}

// handleConnectError processes a failed connection attempt per the
// reconnection policy.
func (c *Controller) handleConnectError(ctx context.Context, err error) {
	c.connecting = false

	kind := FailureNetwork
	switch {
	case errors.Is(err, push.ErrNoToken):
		kind = FailurePrecondition
	case errors.Is(err, push.ErrUnauthorized):
		kind = FailureUnauthorized
	}
	if kind == FailureNetwork {
		c.failures++
		c.cntFailures.Add(ctx, 1)
	}
	c.log.Warn("push connection failed",
		"error", err,
		"consecutive_failures", c.failures,
	)

	switch c.opts.Policy.Decide(c.failures, kind) {
	case RetryPush:
		c.scheduleRetry(ctx)
	case FallbackToPolling:
		c.startPolling(ctx)
	case StopAll:
		c.stopAll()
	}
}

// scheduleRetry arms the backoff timer for the next connection attempt.
func (c *Controller) scheduleRetry(ctx context.Context) {
	delay := c.opts.Policy.Backoff(c.failures)
	c.log.Info("retrying push channel", "attempt", c.failures+1, "delay", delay)

	if c.retryTimer != nil {
		c.retryTimer.Stop()
	}
	c.retryTimer = time.AfterFunc(delay, func() {
		select {
		case c.cmds <- func() { c.startConnect(ctx) }:
		case <-c.done:
		}
	})
}

// startPolling activates the fallback. Idempotent; notifies the operator
// once per entry into polling mode, never once per retry.
func (c *Controller) startPolling(ctx context.Context) {
	if c.poller.Running() {
		return
	}
	// A retry armed before the policy gave up must not redial push behind
	// the fallback's back.
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	c.cntFallbacks.Add(ctx, 1)
	c.poller.Start(c.opts.PollInterval, c.pollTick)
	if c.setMode(ModeLivePoll) {
		c.sink.Notify(notify.Warning, fmt.Sprintf(
			"Push channel unavailable — refreshing every %s instead", c.opts.PollInterval))
	}
}

// pollTick runs on the poller goroutine: it fetches the snapshot and hands
// the result to the event loop. A failed fetch is logged and the timer keeps
// running; polling is the fallback and has none of its own.
func (c *Controller) pollTick(ctx context.Context) {
	fctx, cancel := context.WithTimeout(ctx, c.opts.FetchTimeout)
	defer cancel()

	all, err := c.api.FetchAll(fctx)
	if err != nil {
		c.log.Error("poll refresh failed", "error", err)
		return
	}

	select {
	case c.cmds <- func() { c.applySnapshot(ctx, all, "poll") }:
	case <-ctx.Done():
	case <-c.done:
	}
}

// stopAll tears down live synchronization after an authorization failure.
// CRUD through the REST client still works; only live updates stop.
func (c *Controller) stopAll() {
	c.transport.Disconnect()
	c.poller.Stop()
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	if c.setMode(ModeDisconnected) {
		c.sink.Notify(notify.Error, "Session unauthorized — live updates stopped")
	}
}

// --- transport events --------------------------------------------------------

func (c *Controller) handleTransport(ctx context.Context, ev push.Event) {
	switch ev.Kind {
	case push.EventOpened:
		c.handleOpened()
	case push.EventClosed:
		c.handleClosed(ctx, ev.Reason)
	case push.EventFailed:
		c.handleConnectError(ctx, ev.Err)
	case push.EventBookingCreated:
		c.handleBookingCreated(ctx, ev.Booking)
	case push.EventBookingStatusChanged:
		c.handleStatusChanged(ctx, ev.Booking)
	}
}

func (c *Controller) handleOpened() {
	c.connecting = false
	c.failures = 0
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	// The socket is open: polling must not run alongside it.
	c.poller.Stop()
	if c.setMode(ModeLivePush) {
		c.sink.Notify(notify.Success, "Live updates connected — bookings update in real time")
	}
}

// handleClosed reacts to a server-initiated close by reconnecting; a
// deliberate close is not a failure, so the count is untouched.
func (c *Controller) handleClosed(ctx context.Context, reason string) {
	c.log.Info("push channel closed by server", "reason", reason)
	c.startConnect(ctx)
}

// markChannelLive records the evidence that the push channel works: a domain
// event arriving while polling means the socket is open, so polling stops
// and the mode snaps back to LivePush.
func (c *Controller) markChannelLive() {
	c.failures = 0
	c.poller.Stop()
	if c.setMode(ModeLivePush) {
		c.sink.Notify(notify.Success, "Live updates connected — bookings update in real time")
	}
}

func (c *Controller) handleBookingCreated(ctx context.Context, b *model.Booking) {
	c.markChannelLive()
	c.bookings.Upsert(b)
	c.cntEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("event", "new_booking")))
	c.persist(ctx, c.bookings.Snapshot())
	c.refreshVisible()
	c.changed()

	c.sink.Notify(notify.Success, fmt.Sprintf(
		"New booking: %s — %s %s", orNA(b.ClientName), b.Date, b.Time))
}

func (c *Controller) handleStatusChanged(ctx context.Context, b *model.Booking) {
	c.markChannelLive()

	// Partial payloads (id + status only) patch in place; full records
	// replace wholesale.
	if b.ClientName == "" && b.Date == "" {
		if !c.bookings.SetStatus(b.ID, b.Status) {
			c.bookings.Upsert(b)
		}
	} else {
		c.bookings.Upsert(b)
	}
	c.cntEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("event", "booking_status_changed")))
	c.persist(ctx, c.bookings.Snapshot())
	c.refreshVisible()
	c.changed()

	c.sink.Notify(notify.Info, fmt.Sprintf(
		"Booking %s status: %s", b.ID, model.NormalizeStatus(b.Status)))
}

// --- shared state ------------------------------------------------------------

// setMode transitions the connectivity mode. Returns true when the mode
// actually changed, which is also the notification dedupe: re-entering the
// current mode never re-notifies.
func (c *Controller) setMode(m Mode) bool {
	c.mu.Lock()
	if c.mode == m {
		c.mu.Unlock()
		return false
	}
	c.mode = m
	c.mu.Unlock()

	c.log.Info("connectivity mode changed", "mode", m.String())
	c.changed()
	return true
}

// refreshVisible recomputes the filtered view from the current snapshot.
func (c *Controller) refreshVisible() {
	c.mu.Lock()
	f := c.filter
	c.mu.Unlock()

	var visible []*model.Booking
	if f.IsZero() {
		visible = c.bookings.Snapshot()
	} else {
		visible = c.bookings.Apply(f)
	}

	c.mu.Lock()
	c.visible = visible
	c.mu.Unlock()
}

// changed wakes subscribers.
func (c *Controller) changed() {
	c.mu.RLock()
	subs := make([]func(), len(c.subs))
	copy(subs, c.subs)
	c.mu.RUnlock()

	for _, fn := range subs {
		fn()
	}
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
