// Package store defines the persistence contracts for the directory cache
// and the dedup ledger, plus the record types they share. Backends live in
// the file, sqlite, and pg subpackages; the router only sees these
// interfaces.
package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned by lookups that miss.
var ErrNotFound = errors.New("not found")

// DirectoryEntry maps a chat display name (normalized) to the transport's
// stable identifier. StableID never changes once learned for a given name;
// a later observation with a different id is a conflict and the first-seen
// id is kept.
type DirectoryEntry struct {
	DisplayName string    `json:"display_name"`
	StableID    string    `json:"stable_id"`
	LastSeen    time.Time `json:"last_seen"`
}

// Outcome records a completed forward.
type Outcome struct {
	ForwardedTo string    `json:"forwarded_to"`
	At          time.Time `json:"at"`
}

// ProcessedRecord marks a message id as seen. Outcome is nil until (and
// unless) the forward succeeds; the record itself exists from the moment
// the message is first observed, which is what makes redelivery a no-op.
type ProcessedRecord struct {
	MessageID string    `json:"message_id"`
	SeenAt    time.Time `json:"seen_at"`
	Outcome   *Outcome  `json:"outcome,omitempty"`
}

// DirectoryStore persists the learned name→id map.
type DirectoryStore interface {
	// Load returns all entries keyed by normalized display name.
	Load() (map[string]DirectoryEntry, error)
	// Put persists one entry. Backends keep the first-seen id on conflict.
	Put(entry DirectoryEntry) error
	Close() error
}

// LedgerStore persists the append-only processed-message ledger. Put must
// be durable before it returns: a crash between receive and forward must
// not lose the "already seen" fact.
type LedgerStore interface {
	Load() (map[string]ProcessedRecord, error)
	Put(rec ProcessedRecord) error
	Close() error
}

// Stores bundles the two backends behind one handle.
type Stores struct {
	Directory DirectoryStore
	Ledger    LedgerStore
}

// Close closes both backends, returning the first error.
func (s *Stores) Close() error {
	var first error
	if s.Directory != nil {
		if err := s.Directory.Close(); err != nil {
			first = err
		}
	}
	if s.Ledger != nil {
		if err := s.Ledger.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
