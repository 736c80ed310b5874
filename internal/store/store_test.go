package store

import (
	"log/slog"
	"testing"
	"time"

	"github.com/barber001/barbersync/internal/model"
)

var testLogger = slog.Default()

func ts(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func booking(id string, mut ...func(*model.Booking)) *model.Booking {
	b := &model.Booking{ID: id, Status: "pending"}
	for _, m := range mut {
		m(b)
	}
	return b
}

// ---------------------------------------------------------------------------
// Replace: ordering and malformed records
// ---------------------------------------------------------------------------

func TestReplace_SortsNewestFirst(t *testing.T) {
	s := New(testLogger)
	got := s.Replace([]*model.Booking{
		booking("1", func(b *model.Booking) { b.CreatedAt = ts("2026-03-01T08:00:00Z") }),
		booking("3", func(b *model.Booking) { b.CreatedAt = ts("2026-03-03T08:00:00Z") }),
		booking("2", func(b *model.Booking) { b.CreatedAt = ts("2026-03-02T08:00:00Z") }),
	})

	wantOrder := []string{"3", "2", "1"}
	for i, id := range wantOrder {
		if got[i].ID != id {
			t.Errorf("position %d = %q, want %q", i, got[i].ID, id)
		}
	}
}

func TestReplace_OrderIndependentOfInput(t *testing.T) {
	records := []*model.Booking{
		booking("7", func(b *model.Booking) { b.Date = "2026-05-01"; b.Time = "09:00" }),
		booking("12", func(b *model.Booking) { b.Date = "2026-04-01"; b.Time = "18:00" }),
		booking("abc", func(b *model.Booking) { b.Date = "2026-06-01"; b.Time = "12:00" }),
	}

	s1 := New(testLogger)
	first := s1.Replace(records)

	reversed := []*model.Booking{records[2], records[1], records[0]}
	s2 := New(testLogger)
	second := s2.Replace(reversed)

	if len(first) != len(second) {
		t.Fatalf("lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("position %d: %q vs %q — order depends on input order", i, first[i].ID, second[i].ID)
		}
	}
}

func TestReplace_DropsMalformedRecords(t *testing.T) {
	s := New(testLogger)
	got := s.Replace([]*model.Booking{
		booking("1"),
		{ClientName: "no id"},
		nil,
		booking("2"),
	})

	if len(got) != 2 {
		t.Fatalf("kept %d records, want 2", len(got))
	}
	if s.Len() != 2 {
		t.Errorf("Len = %d, want 2", s.Len())
	}
}

func TestReplace_ReturnsCopies(t *testing.T) {
	s := New(testLogger)
	got := s.Replace([]*model.Booking{booking("1")})

	got[0].ClientName = "mutated"
	if snap := s.Snapshot(); snap[0].ClientName == "mutated" {
		t.Error("mutating a returned record must not affect the store")
	}
}

// ---------------------------------------------------------------------------
// Upsert / SetStatus
// ---------------------------------------------------------------------------

func TestUpsert_InsertsAndResorts(t *testing.T) {
	s := New(testLogger)
	s.Replace([]*model.Booking{booking("5"), booking("3")})

	s.Upsert(booking("9"))

	snap := s.Snapshot()
	if len(snap) != 3 || snap[0].ID != "9" {
		t.Errorf("snapshot head = %v, want new record first", snap)
	}
}

func TestUpsert_OverwritesExisting(t *testing.T) {
	s := New(testLogger)
	s.Replace([]*model.Booking{booking("5", func(b *model.Booking) { b.ClientName = "old" })})

	s.Upsert(booking("5", func(b *model.Booking) { b.ClientName = "new" }))

	snap := s.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("Len = %d, want 1 (no duplicate)", len(snap))
	}
	if snap[0].ClientName != "new" {
		t.Errorf("ClientName = %q, want %q", snap[0].ClientName, "new")
	}
}

func TestSetStatus(t *testing.T) {
	s := New(testLogger)
	s.Replace([]*model.Booking{booking("5")})

	if !s.SetStatus("5", "approved") {
		t.Error("SetStatus on existing id should report true")
	}
	if got := s.Snapshot()[0].Status; got != "approved" {
		t.Errorf("Status = %q, want %q", got, "approved")
	}

	if s.SetStatus("nope", "approved") {
		t.Error("SetStatus on unknown id should report false")
	}
}

// ---------------------------------------------------------------------------
// Filter
// ---------------------------------------------------------------------------

func filterFixtures() []*model.Booking {
	return []*model.Booking{
		booking("1", func(b *model.Booking) {
			b.ClientName = "Aziz Karimov"
			b.Phone = "+998901112233"
			b.BarberID = "b1"
			b.ServiceIDs = []string{"s1", "s2"}
			b.Date = "2026-05-01"
			b.Status = "pending"
		}),
		booking("2", func(b *model.Booking) {
			b.ClientName = "Bobur Aliyev"
			b.Phone = "+998907778899"
			b.BarberID = "b2"
			b.ServiceIDs = []string{"s3"}
			b.Date = "2026-05-10"
			b.Status = "approved"
		}),
		booking("3", func(b *model.Booking) {
			b.ClientName = "aziza Usmonova"
			b.Phone = "+998901119999"
			b.BarberID = "b1"
			b.ServiceIDs = []string{"s2"}
			b.Date = "2026-05-20"
			b.Status = "completed"
		}),
	}
}

func TestFilter_Match(t *testing.T) {
	s := New(testLogger)
	s.Replace(filterFixtures())

	tests := []struct {
		name    string
		f       Filter
		wantIDs []string
	}{
		{"zero filter matches all", Filter{}, []string{"3", "2", "1"}},
		{"client substring case-insensitive", Filter{ClientName: "aziz"}, []string{"3", "1"}},
		{"phone substring", Filter{Phone: "111"}, []string{"3", "1"}},
		{"barber exact", Filter{BarberID: "b2"}, []string{"2"}},
		{"service membership", Filter{ServiceID: "s2"}, []string{"3", "1"}},
		{"date from inclusive", Filter{DateFrom: "2026-05-10"}, []string{"3", "2"}},
		{"date to inclusive", Filter{DateTo: "2026-05-10"}, []string{"2", "1"}},
		{"status case-insensitive", Filter{Status: "Approved"}, []string{"2"}},
		{"criteria AND-combined", Filter{ClientName: "aziz", BarberID: "b1", DateFrom: "2026-05-15"}, []string{"3"}},
		{"no match", Filter{ClientName: "aziz", Status: "approved"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Apply(tt.f)
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("matched %d records, want %d", len(got), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if got[i].ID != id {
					t.Errorf("position %d = %q, want %q", i, got[i].ID, id)
				}
			}
		})
	}
}

func TestFilter_IsZero(t *testing.T) {
	if !(Filter{}).IsZero() {
		t.Error("empty filter should be zero")
	}
	if (Filter{Status: "pending"}).IsZero() {
		t.Error("filter with criteria should not be zero")
	}
}
