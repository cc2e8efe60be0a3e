// Package ledger implements the dedup ledger: the append-only record of
// every message id the router has seen, which is what turns the transport's
// at-least-once redelivery into at-most-once forwarding.
package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/nextlevelbuilder/chatrelay/internal/store"
)

// Ledger tracks processed message ids. Begin is the atomic check-and-mark:
// two concurrent deliveries of the same id cannot both see "unseen". The
// record is persisted before Begin returns, so a crash between receive and
// forward loses the forward, never the "already seen" fact — a missed
// forward is preferable to a duplicate one.
type Ledger struct {
	mu      sync.Mutex
	records map[string]store.ProcessedRecord
	backing store.LedgerStore
}

// New loads the persisted ledger into memory.
func New(backing store.LedgerStore) (*Ledger, error) {
	records, err := backing.Load()
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = make(map[string]store.ProcessedRecord)
	}
	return &Ledger{records: records, backing: backing}, nil
}

// Begin marks messageID as seen. It returns already=true if the id had a
// record before this call, in which case the caller must not process the
// message. On a first sighting the record (with no outcome yet) is written
// to durable storage before Begin returns.
func (l *Ledger) Begin(messageID string) (already bool, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.records[messageID]; ok {
		return true, nil
	}

	rec := store.ProcessedRecord{MessageID: messageID, SeenAt: time.Now()}
	if err := l.backing.Put(rec); err != nil {
		// Not recorded durably — refuse to claim the id rather than risk a
		// duplicate forward after a crash and redelivery.
		return false, fmt.Errorf("persist ledger record: %w", err)
	}
	l.records[messageID] = rec
	return false, nil
}

// Complete records a successful forward for messageID. The record must
// already exist via Begin.
func (l *Ledger) Complete(messageID, forwardedTo string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[messageID]
	if !ok {
		return fmt.Errorf("complete unknown message id %q", messageID)
	}
	rec.Outcome = &store.Outcome{ForwardedTo: forwardedTo, At: time.Now()}
	if err := l.backing.Put(rec); err != nil {
		return fmt.Errorf("persist ledger outcome: %w", err)
	}
	l.records[messageID] = rec
	return nil
}

// Outcome returns the recorded outcome for messageID, if any.
func (l *Ledger) Outcome(messageID string) (*store.Outcome, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[messageID]
	if !ok || rec.Outcome == nil {
		return nil, false
	}
	out := *rec.Outcome
	return &out, true
}

// Len returns the number of ledger records.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}
