// Package file implements the default storage backend: one JSON snapshot
// file per store, rewritten atomically (temp file + rename) on change and
// read once at startup.
package file

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/nextlevelbuilder/chatrelay/internal/store"
)

const (
	directoryFile = "directory.json"
	ledgerFile    = "ledger.json"
)

// NewStores creates file-backed stores under dir, creating it if needed.
func NewStores(dir string) (*store.Stores, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &store.Stores{
		Directory: &directoryStore{snapshot: newSnapshot[store.DirectoryEntry](filepath.Join(dir, directoryFile))},
		Ledger:    &ledgerStore{snapshot: newSnapshot[store.ProcessedRecord](filepath.Join(dir, ledgerFile))},
	}, nil
}

// snapshot is a mutex-guarded map persisted as a single JSON file.
type snapshot[T any] struct {
	mu      sync.Mutex
	path    string
	entries map[string]T
	loaded  bool
}

func newSnapshot[T any](path string) *snapshot[T] {
	return &snapshot[T]{path: path}
}

func (s *snapshot[T]) load() (map[string]T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		s.entries = make(map[string]T)
		data, err := os.ReadFile(s.path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read %s: %w", s.path, err)
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &s.entries); err != nil {
				return nil, fmt.Errorf("parse %s: %w", s.path, err)
			}
		}
		s.loaded = true
	}

	out := make(map[string]T, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out, nil
}

func (s *snapshot[T]) put(key string, value T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		s.entries = make(map[string]T)
		s.loaded = true
	}
	s.entries[key] = value
	return s.flushLocked()
}

// flushLocked rewrites the snapshot file atomically. Callers hold s.mu.
func (s *snapshot[T]) flushLocked() error {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", s.path, err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

type directoryStore struct {
	snapshot *snapshot[store.DirectoryEntry]
}

func (d *directoryStore) Load() (map[string]store.DirectoryEntry, error) {
	return d.snapshot.load()
}

func (d *directoryStore) Put(entry store.DirectoryEntry) error {
	return d.snapshot.put(entry.DisplayName, entry)
}

func (d *directoryStore) Close() error { return nil }

type ledgerStore struct {
	snapshot *snapshot[store.ProcessedRecord]
}

func (l *ledgerStore) Load() (map[string]store.ProcessedRecord, error) {
	return l.snapshot.load()
}

func (l *ledgerStore) Put(rec store.ProcessedRecord) error {
	return l.snapshot.put(rec.MessageID, rec)
}

func (l *ledgerStore) Close() error { return nil }
