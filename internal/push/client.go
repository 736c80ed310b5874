// Package push implements the client side of the booking event channel: a
// single WebSocket connection over which the backend pushes new_booking and
// booking_status_changed events.
//
// The [Client] owns exactly one underlying connection. Connect is idempotent,
// Disconnect is always safe, and after Disconnect returns no further events
// are delivered. Lifecycle and domain events are handed to the callback
// passed to [New]; the callback must not call back into the Client.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/barber001/barbersync/internal/model"
)

// Wire event names, shared with the backend.
const (
	wireNewBooking    = "new_booking"
	wireStatusChanged = "booking_status_changed"
)

// ErrNoToken is returned by Connect when no auth token is available. This is
// a precondition failure, not a network failure, and must not count toward
// retry statistics.
var ErrNoToken = errors.New("push: no auth token")

// ErrUnauthorized is returned when the backend rejects the token at
// handshake time. The session is effectively over for live updates.
var ErrUnauthorized = errors.New("push: token rejected")

// EventKind discriminates the events a Client delivers.
type EventKind int

const (
	// EventOpened fires once per successful connection.
	EventOpened EventKind = iota
	// EventClosed fires when the server closes the connection deliberately.
	EventClosed
	// EventFailed fires when the connection drops with an error.
	EventFailed
	// EventBookingCreated carries a new booking record.
	EventBookingCreated
	// EventBookingStatusChanged carries a booking id plus new status, or a
	// full record when the backend sends one.
	EventBookingStatusChanged
)

// Event is one occurrence on the push channel.
type Event struct {
	Kind    EventKind
	Reason  string         // Closed
	Err     error          // Failed
	Booking *model.Booking // domain events; may be partial (id + status)
}

// Client maintains the single push connection.
type Client struct {
	endpoint string
	timeout  time.Duration
	emit     func(Event)
	log      *slog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
	gen  int // bumped on every disconnect; stale read loops go silent
}

// New creates a Client for the given ws:// or wss:// endpoint. emit receives
// every event; timeout bounds the connection handshake.
func New(endpoint string, timeout time.Duration, emit func(Event), logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{endpoint: endpoint, timeout: timeout, emit: emit, log: logger}
}

// Connect establishes the push connection. Calling it while connected is a
// no-op. The token is sent both as a bearer header and a query parameter for
// transport compatibility. A handshake that does not complete within the
// configured timeout fails; the caller never needs its own timer, though it
// may carry one.
func (c *Client) Connect(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return ErrNoToken
	}

	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	gen := c.gen
	c.mu.Unlock()

	u, err := url.Parse(c.endpoint)
	if err != nil {
		return fmt.Errorf("push endpoint %q: %w", c.endpoint, err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	dialer := websocket.Dialer{HandshakeTimeout: c.timeout}
	dialCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, resp, err := dialer.DialContext(dialCtx, u.String(), header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return fmt.Errorf("%w (HTTP %d)", ErrUnauthorized, resp.StatusCode)
		}
		return fmt.Errorf("dialling push channel: %w", err)
	}

	c.mu.Lock()
	if c.gen != gen || c.conn != nil {
		// Disconnected (or reconnected) while we were dialling.
		c.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	c.conn = conn
	c.deliver(gen, Event{Kind: EventOpened})
	c.mu.Unlock()

	go c.readLoop(conn, gen)
	return nil
}

// Disconnect tears down the connection. Safe to call at any time, including
// when never connected. No events are delivered after it returns.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// Connected reports whether a connection is currently open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// deliver invokes emit while holding c.mu, so Disconnect cannot return while
// an event is in flight. Callers must hold c.mu.
func (c *Client) deliver(gen int, ev Event) {
	if c.gen != gen || c.emit == nil {
		return
	}
	c.emit(ev)
}

// readLoop pumps messages off the connection until it drops, then reports
// the drop as Closed or Failed exactly once.
func (c *Client) readLoop(conn *websocket.Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			if isDeliberateClose(err) {
				c.deliver(gen, Event{Kind: EventClosed, Reason: err.Error()})
			} else {
				c.deliver(gen, Event{Kind: EventFailed, Err: err})
			}
			c.mu.Unlock()
			return
		}

		ev, ok := c.decode(data)
		if !ok {
			continue
		}
		c.mu.Lock()
		c.deliver(gen, ev)
		c.mu.Unlock()
	}
}

// isDeliberateClose distinguishes a server-initiated close frame from a
// broken connection.
func isDeliberateClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}

// envelope is the wire frame carrying one event.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// decode turns a wire frame into an Event. Malformed frames are dropped with
// a warning; they never take the connection down.
func (c *Client) decode(data []byte) (Event, bool) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.log.Warn("dropping malformed push frame", "error", err)
		return Event{}, false
	}

	var kind EventKind
	switch env.Event {
	case wireNewBooking:
		kind = EventBookingCreated
	case wireStatusChanged:
		kind = EventBookingStatusChanged
	default:
		c.log.Debug("ignoring unknown push event", "event", env.Event)
		return Event{}, false
	}

	booking, err := decodeBookingPayload(env.Data)
	if err != nil {
		c.log.Warn("dropping malformed push payload", "event", env.Event, "error", err)
		return Event{}, false
	}

	return Event{Kind: kind, Booking: booking}, true
}

// decodeBookingPayload extracts a booking record from the payload shapes the
// backend emits: the record itself, {"booking": …}, or {"bookings": […]}.
func decodeBookingPayload(data json.RawMessage) (*model.Booking, error) {
	if len(data) == 0 {
		return nil, errors.New("empty payload")
	}

	var wrapped struct {
		Booking  *model.Booking  `json:"booking"`
		Bookings []*model.Booking `json:"bookings"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil {
		if wrapped.Booking != nil && wrapped.Booking.Valid() {
			return wrapped.Booking, nil
		}
		if len(wrapped.Bookings) > 0 && wrapped.Bookings[0] != nil && wrapped.Bookings[0].Valid() {
			return wrapped.Bookings[0], nil
		}
	}

	var b model.Booking
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, err
	}
	if !b.Valid() {
		return nil, errors.New("payload has no booking id")
	}
	return &b, nil
}
