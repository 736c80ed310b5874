// Package sync implements the live booking synchronization engine: a
// connection-state machine that keeps an in-memory booking snapshot current
// by preferring the push channel and falling back to timed polling when the
// channel is unavailable.
//
// The package contains three main components:
//
//   - [Policy] decides, from consecutive-failure counts, whether to keep
//     retrying the push channel, fall back to polling, or stop.
//   - [Poller] is the timer that drives periodic refreshes in fallback mode.
//   - [Controller] owns the state machine and is the only component that
//     knows about all the collaborators.
package sync

import (
	"context"

	"github.com/barber001/barbersync/internal/model"
)

// Transport is the push channel lifecycle surface the controller drives.
// Implemented by [push.Client]. Events flow back through the callback the
// transport was constructed with.
type Transport interface {
	Connect(ctx context.Context, token string) error
	Disconnect()
	Connected() bool
}

// BookingAPI provides the authoritative snapshot fetches. Implemented by
// [rest.Client].
type BookingAPI interface {
	FetchAll(ctx context.Context) ([]*model.Booking, error)
	FetchPending(ctx context.Context) ([]*model.Booking, error)
}

// SnapshotCache persists the last known snapshot across restarts.
// Implemented by [cache.Cache]; a nil cache disables persistence.
type SnapshotCache interface {
	Load(ctx context.Context) ([]*model.Booking, error)
	Save(ctx context.Context, bookings []*model.Booking) error
}
