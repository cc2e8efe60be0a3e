// Package pg implements the storage backend on PostgreSQL via the pgx
// stdlib driver. The DSN comes from the environment only (secret, never in
// config.json); schema is managed by the migrate subcommands.
package pg

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/nextlevelbuilder/chatrelay/internal/store"
)

// NewStores connects to Postgres and returns stores backed by it.
func NewStores(dsn string) (*store.Stores, error) {
	db, err := OpenDB(dsn)
	if err != nil {
		return nil, err
	}
	return &store.Stores{
		Directory: &directoryStore{db: db},
		Ledger:    &ledgerStore{db: db},
	}, nil
}

// OpenDB opens and pings a Postgres connection.
func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
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

func (d *directoryStore) Put(entry store.DirectoryEntry) error {
	_, err := d.db.Exec(`
		INSERT INTO directory_entries (display_name, stable_id, last_seen)
		VALUES ($1, $2, $3)
		ON CONFLICT (display_name) DO UPDATE SET last_seen = EXCLUDED.last_seen`,
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
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (message_id) DO UPDATE SET
			forwarded_to = EXCLUDED.forwarded_to,
			forwarded_at = EXCLUDED.forwarded_at`,
		rec.MessageID, rec.SeenAt, forwardedTo, forwardedAt)
	if err != nil {
		return fmt.Errorf("put ledger record %q: %w", rec.MessageID, err)
	}
	return nil
}

func (l *ledgerStore) Close() error { return l.db.Close() }
