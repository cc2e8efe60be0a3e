// Package sqlite implements the storage backend on a local SQLite file via
// modernc.org/sqlite (pure Go, no cgo). Suited to single-host deployments
// that want durable storage sturdier than the JSON snapshots.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/chatrelay/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS directory_entries (
	display_name TEXT PRIMARY KEY,
	stable_id    TEXT NOT NULL,
	last_seen    TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS processed_messages (
	message_id   TEXT PRIMARY KEY,
	seen_at      TIMESTAMP NOT NULL,
	forwarded_to TEXT,
	forwarded_at TIMESTAMP
);
`

// NewStores opens (creating if needed) the SQLite database at path.
func NewStores(path string) (*store.Stores, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// Ledger writes must be durable before the send is attempted.
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=FULL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}
	return &store.Stores{
		Directory: &directoryStore{db: db},
		Ledger:    &ledgerStore{db: db},
	}, nil
}

type directoryStore struct {
	db *sql.DB
}

func (d *directoryStore) Load() (map[string]store.DirectoryEntry, error) {
	rows, err := d.db.Query(`SELECT display_name, stable_id, last_seen FROM directory_entries`)
	if err != nil {
		return nil, fmt.Errorf("load directory: %w", err)
	}
	defer rows.Close()

	entries := make(map[string]store.DirectoryEntry)
	for rows.Next() {
		var e store.DirectoryEntry
		if err := rows.Scan(&e.DisplayName, &e.StableID, &e.LastSeen); err != nil {
			return nil, fmt.Errorf("scan directory entry: %w", err)
		}
		entries[e.DisplayName] = e
	}
	return entries, rows.Err()
}

// Put inserts the entry if the name is unseen. The conflict clause only
// refreshes last_seen, so the first-seen stable id also wins at the
// storage layer.
func (d *directoryStore) Put(entry store.DirectoryEntry) error {
	_, err := d.db.Exec(`
		INSERT INTO directory_entries (display_name, stable_id, last_seen)
		VALUES (?, ?, ?)
		ON CONFLICT (display_name) DO UPDATE SET last_seen = excluded.last_seen`,
		entry.DisplayName, entry.StableID, entry.LastSeen)
	if err != nil {
		return fmt.Errorf("put directory entry %q: %w", entry.DisplayName, err)
	}
	return nil
}

func (d *directoryStore) Close() error { return d.db.Close() }

type ledgerStore struct {
	db *sql.DB
}

func (l *ledgerStore) Load() (map[string]store.ProcessedRecord, error) {
	rows, err := l.db.Query(`SELECT message_id, seen_at, forwarded_to, forwarded_at FROM processed_messages`)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	defer rows.Close()

	records := make(map[string]store.ProcessedRecord)
	for rows.Next() {
		var rec store.ProcessedRecord
		var forwardedTo sql.NullString
		var forwardedAt sql.NullTime
		if err := rows.Scan(&rec.MessageID, &rec.SeenAt, &forwardedTo, &forwardedAt); err != nil {
			return nil, fmt.Errorf("scan ledger record: %w", err)
		}
		if forwardedTo.Valid {
			rec.Outcome = &store.Outcome{ForwardedTo: forwardedTo.String, At: forwardedAt.Time}
		}
		records[rec.MessageID] = rec
	}
	return records, rows.Err()
}

func (l *ledgerStore) Put(rec store.ProcessedRecord) error {
	var forwardedTo sql.NullString
	var forwardedAt sql.NullTime
	if rec.Outcome != nil {
		forwardedTo = sql.NullString{String: rec.Outcome.ForwardedTo, Valid: true}
		forwardedAt = sql.NullTime{Time: rec.Outcome.At, Valid: true}
	}
	_, err := l.db.Exec(`
		INSERT INTO processed_messages (message_id, seen_at, forwarded_to, forwarded_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (message_id) DO UPDATE SET
			forwarded_to = excluded.forwarded_to,
			forwarded_at = excluded.forwarded_at`,
		rec.MessageID, rec.SeenAt, forwardedTo, forwardedAt)
	if err != nil {
		return fmt.Errorf("put ledger record %q: %w", rec.MessageID, err)
	}
	return nil
}

func (l *ledgerStore) Close() error { return l.db.Close() }
