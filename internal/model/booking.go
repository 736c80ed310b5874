// Package model defines shared types used across the sync engine, the REST
// client, and the push transport.
package model

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Status is one of the four canonical booking states. The backend may emit
// values outside this set; those are preserved verbatim on the record and
// only normalised for display.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCompleted Status = "completed"
)

// NormalizeStatus maps a raw backend status string to one of the canonical
// values. Unrecognised or empty values are treated as pending.
func NormalizeStatus(raw string) Status {
	switch Status(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusApproved:
		return StatusApproved
	case StatusRejected:
		return StatusRejected
	case StatusCompleted:
		return StatusCompleted
	default:
		return StatusPending
	}
}

// Booking is the normalised representation of one appointment.
type Booking struct {
	// ID is the backend identifier, normalised to a string. The backend
	// emits both numeric and string ids depending on endpoint.
	ID string

	// ClientName and Phone identify the customer for display.
	ClientName string
	Phone      string

	// BarberID and BarberName identify the assigned staff member.
	BarberID   string
	BarberName string

	// ServiceIDs lists the services attached to the booking, in backend
	// order. May be empty for records the backend returns incomplete.
	ServiceIDs []string

	// Date is the calendar date as "YYYY-MM-DD", Time is "HH:MM" (24h).
	Date string
	Time string

	// Status is the raw backend status, preserved verbatim for filtering.
	// Use DisplayStatus for the normalised value.
	Status string

	// CreatedAt is the server-assigned creation timestamp, when the
	// backend provides one. It is the primary recency signal.
	CreatedAt *time.Time
}

// DisplayStatus returns the canonical status for rendering; unrecognised
// values are shown as pending without losing the raw string.
func (b *Booking) DisplayStatus() Status {
	return NormalizeStatus(b.Status)
}

// Valid reports whether the record carries enough identity to be stored.
func (b *Booking) Valid() bool {
	return b.ID != ""
}

// MoreRecent reports whether a sorts before b under newest-first ordering.
// The comparison has three tiers: created_at when both records carry a
// parseable timestamp, then numeric id, then (date, time) as strings, with
// id as the final tiebreak so the order is total and repeatable.
func MoreRecent(a, b *Booking) bool {
	if a.CreatedAt != nil && b.CreatedAt != nil && !a.CreatedAt.Equal(*b.CreatedAt) {
		return a.CreatedAt.After(*b.CreatedAt)
	}

	na, aok := numericID(a.ID)
	nb, bok := numericID(b.ID)
	if aok && bok && na != nb {
		return na > nb
	}

	if a.Date != b.Date {
		return a.Date > b.Date
	}
	if a.Time != b.Time {
		return a.Time > b.Time
	}

	return a.ID > b.ID
}

func numericID(id string) (int64, bool) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// --- tolerant JSON decoding --------------------------------------------------

// flexID accepts both JSON numbers and strings and normalises to a string.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexID(n.String())
		return nil
	}
	// null and anything else decode to empty.
	*f = ""
	return nil
}

// createdAtLayouts lists the timestamp formats the backend has been observed
// to emit for created_at.
var createdAtLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseCreatedAt(raw string) *time.Time {
	for _, layout := range createdAtLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}

// bookingWire mirrors the union of payload shapes the backend emits: flat
// fields, nested client/barber objects, and either service_ids or embedded
// services objects.
type bookingWire struct {
	ID     flexID `json:"id"`
	AltID  flexID `json:"_id"`
	Client *struct {
		Name  string `json:"name"`
		Phone string `json:"phone_number"`
	} `json:"client"`
	ClientName string `json:"client_name"`
	Phone      string `json:"phone_number"`
	Barber     *struct {
		ID    flexID `json:"id"`
		AltID flexID `json:"_id"`
		Name  string `json:"name"`
	} `json:"barber"`
	BarberID   flexID   `json:"barber_id"`
	BarberName string   `json:"barber_name"`
	ServiceIDs []flexID `json:"service_ids"`
	Services   []struct {
		ID    flexID `json:"id"`
		AltID flexID `json:"_id"`
	} `json:"services"`
	ServiceID  flexID `json:"service_id"`
	Date       string `json:"date"`
	Time       string `json:"time"`
	Status     string `json:"status"`
	CreatedAt  string `json:"created_at"`
	CreatedAt2 string `json:"createdAt"`
}

// UnmarshalJSON decodes any of the backend's booking payload shapes into the
// normalised record. It never fails on missing fields; a record that ends up
// without an id is rejected later by Valid.
func (b *Booking) UnmarshalJSON(data []byte) error {
	var w bookingWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	b.ID = firstNonEmpty(string(w.ID), string(w.AltID))

	b.ClientName = w.ClientName
	b.Phone = w.Phone
	if w.Client != nil {
		b.ClientName = firstNonEmpty(b.ClientName, w.Client.Name)
		b.Phone = firstNonEmpty(b.Phone, w.Client.Phone)
	}

	b.BarberID = string(w.BarberID)
	b.BarberName = w.BarberName
	if w.Barber != nil {
		b.BarberID = firstNonEmpty(b.BarberID, string(w.Barber.ID), string(w.Barber.AltID))
		b.BarberName = firstNonEmpty(b.BarberName, w.Barber.Name)
	}

	b.ServiceIDs = nil
	for _, id := range w.ServiceIDs {
		if id != "" {
			b.ServiceIDs = append(b.ServiceIDs, string(id))
		}
	}
	if len(b.ServiceIDs) == 0 {
		for _, s := range w.Services {
			if id := firstNonEmpty(string(s.ID), string(s.AltID)); id != "" {
				b.ServiceIDs = append(b.ServiceIDs, id)
			}
		}
	}
	if len(b.ServiceIDs) == 0 && w.ServiceID != "" {
		b.ServiceIDs = []string{string(w.ServiceID)}
	}

	b.Date = w.Date
	b.Time = w.Time
	b.Status = w.Status

	b.CreatedAt = nil
	if raw := firstNonEmpty(w.CreatedAt, w.CreatedAt2); raw != "" {
		b.CreatedAt = parseCreatedAt(raw)
	}

	return nil
}

// MarshalJSON emits the flat canonical shape. Used by the snapshot cache and
// the snapshot subcommand's JSON output.
func (b *Booking) MarshalJSON() ([]byte, error) {
	out := struct {
		ID         string   `json:"id"`
		ClientName string   `json:"client_name,omitempty"`
		Phone      string   `json:"phone_number,omitempty"`
		BarberID   string   `json:"barber_id,omitempty"`
		BarberName string   `json:"barber_name,omitempty"`
		ServiceIDs []string `json:"service_ids,omitempty"`
		Date       string   `json:"date,omitempty"`
		Time       string   `json:"time,omitempty"`
		Status     string   `json:"status,omitempty"`
		CreatedAt  string   `json:"created_at,omitempty"`
	}{
		ID:         b.ID,
		ClientName: b.ClientName,
		Phone:      b.Phone,
		BarberID:   b.BarberID,
		BarberName: b.BarberName,
		ServiceIDs: b.ServiceIDs,
		Date:       b.Date,
		Time:       b.Time,
		Status:     b.Status,
	}
	if b.CreatedAt != nil {
		out.CreatedAt = b.CreatedAt.UTC().Format(time.RFC3339)
	}
	return json.Marshal(out)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
