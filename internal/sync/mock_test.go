package sync

import (
	"context"
	"strings"
	"sync"

	"github.com/barber001/barbersync/internal/model"
	"github.com/barber001/barbersync/internal/notify"
)

// --- Mock transport ----------------------------------------------------------

type mockTransport struct {
	mu         sync.Mutex
	connected  bool
	connectErr error
	calls      int
	lastToken  string
}

func (m *mockTransport) Connect(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	m.lastToken = token
	if m.connectErr != nil {
		return m.connectErr
	}
	m.connected = true
	return nil
}

func (m *mockTransport) Disconnect() {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
}

func (m *mockTransport) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockTransport) connectCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// --- Mock booking API --------------------------------------------------------

type mockAPI struct {
	mu       sync.Mutex
	bookings []*model.Booking
	err      error
	fetches  int
}

func (m *mockAPI) FetchAll(context.Context) ([]*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.fetches++
	if m.err != nil {
		return nil, m.err
	}
	out := make([]*model.Booking, len(m.bookings))
	copy(out, m.bookings)
	return out, nil
}

func (m *mockAPI) FetchPending(ctx context.Context) ([]*model.Booking, error) {
	return m.FetchAll(ctx)
}

func (m *mockAPI) fetchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetches
}

func (m *mockAPI) setBookings(bookings ...*model.Booking) {
	m.mu.Lock()
	m.bookings = bookings
	m.mu.Unlock()
}

// --- Mock snapshot cache -----------------------------------------------------

type mockCache struct {
	mu      sync.Mutex
	stored  []*model.Booking
	loadErr error
	saves   int
}

func (m *mockCache) Load(context.Context) ([]*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.loadErr != nil {
		return nil, m.loadErr
	}
	out := make([]*model.Booking, len(m.stored))
	copy(out, m.stored)
	return out, nil
}

func (m *mockCache) Save(_ context.Context, bookings []*model.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stored = make([]*model.Booking, len(bookings))
	copy(m.stored, bookings)
	m.saves++
	return nil
}

func (m *mockCache) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// --- Mock auth provider ------------------------------------------------------

type mockAuth struct {
	authenticated bool
	admin         bool
	token         string
}

func (m *mockAuth) IsAuthenticated() bool { return m.authenticated }
func (m *mockAuth) HasAdminRole() bool    { return m.admin }
func (m *mockAuth) Token() string         { return m.token }

func adminAuth(token string) *mockAuth {
	return &mockAuth{authenticated: true, admin: true, token: token}
}

// --- Mock notification sink --------------------------------------------------

type sinkEntry struct {
	kind    notify.Kind
	message string
}

type mockSink struct {
	mu      sync.Mutex
	entries []sinkEntry
}

func (m *mockSink) Notify(kind notify.Kind, message string) {
	m.mu.Lock()
	m.entries = append(m.entries, sinkEntry{kind, message})
	m.mu.Unlock()
}

// count returns how many notifications of the given kind were seen.
func (m *mockSink) count(kind notify.Kind) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, e := range m.entries {
		if e.kind == kind {
			n++
		}
	}
	return n
}

// has reports whether a notification of the given kind contains substr.
func (m *mockSink) has(kind notify.Kind, substr string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.entries {
		if e.kind == kind && strings.Contains(e.message, substr) {
			return true
		}
	}
	return false
}
