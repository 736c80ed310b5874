// Package cache persists the last known booking snapshot to a local SQLite
// file so the daemon can warm-start with data before the first authoritative
// fetch, and the status subcommand can report what was last seen.
//
// Only this package may open or query the database. Other packages receive a
// [*Cache] and call its methods.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/barber001/barbersync/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS bookings (
    id          TEXT PRIMARY KEY,
    client_name TEXT NOT NULL DEFAULT '',
    phone       TEXT NOT NULL DEFAULT '',
    barber_id   TEXT NOT NULL DEFAULT '',
    barber_name TEXT NOT NULL DEFAULT '',
    service_ids TEXT NOT NULL DEFAULT '[]',
    date        TEXT NOT NULL DEFAULT '',
    time        TEXT NOT NULL DEFAULT '',
    status      TEXT NOT NULL DEFAULT '',
    created_at  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

const metaSavedAt = "saved_at"

// Cache is the SQLite-backed snapshot repository.
type Cache struct {
	db *sql.DB
}

// DefaultPath returns the default cache location:
// ~/.local/share/barbersync/snapshot.db
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "barbersync", "snapshot.db"), nil
}

// Open opens (or creates) the cache at path, applies the schema, and
// configures WAL mode.
func Open(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening cache %q: %w", path, err)
	}

	// Single writer to avoid SQLITE_BUSY under WAL.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying cache schema: %w", err)
	}

	return &Cache{db: db}, nil
}

// Close releases the underlying database connection.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Save atomically replaces the cached snapshot.
func (c *Cache) Save(ctx context.Context, bookings []*model.Booking) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning cache transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM bookings`); err != nil {
		return fmt.Errorf("clearing cached snapshot: %w", err)
	}

	const ins = `
		INSERT INTO bookings (id, client_name, phone, barber_id, barber_name,
		                      service_ids, date, time, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	for _, b := range bookings {
		serviceIDs, err := json.Marshal(b.ServiceIDs)
		if err != nil {
			return fmt.Errorf("encoding service ids for booking %s: %w", b.ID, err)
		}
		createdAt := ""
		if b.CreatedAt != nil {
			createdAt = b.CreatedAt.UTC().Format(time.RFC3339Nano)
		}
		if _, err := tx.ExecContext(ctx, ins,
			b.ID, b.ClientName, b.Phone, b.BarberID, b.BarberName,
			string(serviceIDs), b.Date, b.Time, b.Status, createdAt,
		); err != nil {
			return fmt.Errorf("caching booking %s: %w", b.ID, err)
		}
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		metaSavedAt, now,
	); err != nil {
		return fmt.Errorf("recording cache timestamp: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing cache transaction: %w", err)
	}
	return nil
}

// Load returns the cached snapshot. An empty cache yields an empty slice.
func (c *Cache) Load(ctx context.Context) ([]*model.Booking, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, client_name, phone, barber_id, barber_name,
		       service_ids, date, time, status, created_at
		FROM bookings`)
	if err != nil {
		return nil, fmt.Errorf("reading cached snapshot: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*model.Booking
	for rows.Next() {
		var b model.Booking
		var serviceIDs, createdAt string
		if err := rows.Scan(&b.ID, &b.ClientName, &b.Phone, &b.BarberID, &b.BarberName,
			&serviceIDs, &b.Date, &b.Time, &b.Status, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning cached booking: %w", err)
		}
		if err := json.Unmarshal([]byte(serviceIDs), &b.ServiceIDs); err != nil {
			b.ServiceIDs = nil
		}
		if createdAt != "" {
			if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
				b.CreatedAt = &t
			}
		}
		out = append(out, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cached snapshot: %w", err)
	}
	return out, nil
}

// SavedAt returns when the snapshot was last persisted, or the zero time for
// an empty cache.
func (c *Cache) SavedAt(ctx context.Context) (time.Time, error) {
	var value string
	err := c.db.QueryRowContext(ctx,
		`SELECT value FROM meta WHERE key = ?`, metaSavedAt).Scan(&value)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("reading cache timestamp: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing cache timestamp: %w", err)
	}
	return t, nil
}
