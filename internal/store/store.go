// Package store holds the in-memory booking collection with deterministic
// newest-first ordering and AND-combined filtering. It performs no I/O.
//
// The [Store] is written only by the sync controller; readers receive copies
// so a background refresh can never mutate a slice a caller is iterating.
package store

import (
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/barber001/barbersync/internal/model"
)

// Store is the booking snapshot container. Safe for concurrent reads; the
// single-writer discipline is enforced by the controller, not by this type.
type Store struct {
	mu      sync.RWMutex
	records []*model.Booking
	log     *slog.Logger
}

// New creates an empty Store.
func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{log: logger}
}

// Replace installs a new full snapshot, sorted newest-first, and returns it.
// Malformed records (no id) are dropped with a warning. Never fails.
func (s *Store) Replace(all []*model.Booking) []*model.Booking {
	kept := make([]*model.Booking, 0, len(all))
	for _, b := range all {
		if b == nil || !b.Valid() {
			s.log.Warn("dropping malformed booking record", "record", b)
			continue
		}
		cp := *b
		kept = append(kept, &cp)
	}
	sortBookings(kept)

	s.mu.Lock()
	s.records = kept
	s.mu.Unlock()

	return copyRecords(kept)
}

// Upsert inserts or overwrites a single record and re-sorts the snapshot.
// Malformed records are dropped with a warning.
func (s *Store) Upsert(b *model.Booking) {
	if b == nil || !b.Valid() {
		s.log.Warn("dropping malformed booking record", "record", b)
		return
	}
	cp := *b

	s.mu.Lock()
	defer s.mu.Unlock()

	replaced := false
	for i, r := range s.records {
		if r.ID == cp.ID {
			s.records[i] = &cp
			replaced = true
			break
		}
	}
	if !replaced {
		s.records = append(s.records, &cp)
	}
	sortBookings(s.records)
}

// SetStatus patches the status of the record with the given id. Reports
// whether a record was found.
func (s *Store) SetStatus(id, status string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.records {
		if r.ID == id {
			r.Status = status
			return true
		}
	}
	return false
}

// Clear drops the snapshot.
func (s *Store) Clear() {
	s.mu.Lock()
	s.records = nil
	s.mu.Unlock()
}

// Snapshot returns a copy of the full current snapshot, newest-first.
func (s *Store) Snapshot() []*model.Booking {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyRecords(s.records)
}

// Len returns the number of records in the snapshot.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Apply returns the sorted subset of the snapshot matching all provided
// criteria.
func (s *Store) Apply(f Filter) []*model.Booking {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.Booking, 0, len(s.records))
	for _, r := range s.records {
		if f.Match(r) {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out
}

// sortBookings orders records newest-first. The sort is stable so ties
// resolve identically across repeated calls.
func sortBookings(records []*model.Booking) {
	sort.SliceStable(records, func(i, j int) bool {
		return model.MoreRecent(records[i], records[j])
	})
}

func copyRecords(records []*model.Booking) []*model.Booking {
	out := make([]*model.Booking, len(records))
	for i, r := range records {
		cp := *r
		out[i] = &cp
	}
	return out
}

// Filter is a set of AND-combined booking criteria. Zero-value fields are
// ignored; text fields match case-insensitive substrings, id fields match
// exactly, date bounds are inclusive.
type Filter struct {
	ClientName string
	Phone      string
	BarberID   string
	ServiceID  string
	DateFrom   string
	DateTo     string
	Status     string
}

// IsZero reports whether no criteria are set.
func (f Filter) IsZero() bool {
	return f == Filter{}
}

// Match reports whether the record satisfies every provided criterion.
func (f Filter) Match(b *model.Booking) bool {
	if f.ClientName != "" && !containsFold(b.ClientName, f.ClientName) {
		return false
	}
	if f.Phone != "" && !containsFold(b.Phone, f.Phone) {
		return false
	}
	if f.BarberID != "" && b.BarberID != f.BarberID {
		return false
	}
	if f.ServiceID != "" && !containsID(b.ServiceIDs, f.ServiceID) {
		return false
	}
	if f.DateFrom != "" && b.Date < f.DateFrom {
		return false
	}
	if f.DateTo != "" && b.Date > f.DateTo {
		return false
	}
	if f.Status != "" && !strings.EqualFold(b.Status, f.Status) {
		return false
	}
	return true
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
