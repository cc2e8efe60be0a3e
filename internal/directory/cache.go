// Package directory maintains the learned mapping from chat display names
// to the transport's stable identifiers. The map is built organically from
// observed traffic so the router almost never needs the transport's
// expensive full-directory enumeration.
package directory

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/nextlevelbuilder/chatrelay/internal/store"
	"github.com/nextlevelbuilder/chatrelay/internal/textnorm"
)

// FallbackResolver is the transport's live name lookup. It may be slow and
// is consulted only on a cache miss.
type FallbackResolver interface {
	ResolveName(ctx context.Context, name string) (string, error)
}

// Cache is the in-memory directory, backed by a store.DirectoryStore so the
// learned map survives restarts. Safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]store.DirectoryEntry // keyed by normalized display name
	backing store.DirectoryStore
}

// New loads the persisted directory into memory.
func New(backing store.DirectoryStore) (*Cache, error) {
	entries, err := backing.Load()
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = make(map[string]store.DirectoryEntry)
	}
	return &Cache{entries: entries, backing: backing}, nil
}

// Observe records a display-name→id mapping seen in traffic. The first id
// learned for a name is final: a later observation with a different id is
// logged as a conflict and ignored, so display-name collisions cannot make
// resolution oscillate.
func (c *Cache) Observe(name, stableID string) {
	key := textnorm.Normalize(name)
	if key == "" || stableID == "" {
		return
	}

	now := time.Now()

	c.mu.Lock()
	existing, known := c.entries[key]
	if known && existing.StableID != stableID {
		c.mu.Unlock()
		slog.Warn("directory conflict, keeping first-seen id",
			"name", name, "known_id", existing.StableID, "observed_id", stableID)
		return
	}
	entry := store.DirectoryEntry{DisplayName: key, StableID: stableID, LastSeen: now}
	if known {
		entry.StableID = existing.StableID
	}
	c.entries[key] = entry
	c.mu.Unlock()

	if err := c.backing.Put(entry); err != nil {
		slog.Warn("directory persist failed", "name", name, "error", err)
	}
	if !known {
		slog.Info("directory learned chat", "name", name, "id", stableID)
	}
}

// Resolve returns the stable id for a display name, consulting only the
// learned map. It never triggers a live directory listing.
func (c *Cache) Resolve(name string) (string, bool) {
	key := textnorm.Normalize(name)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return "", false
	}
	return entry.StableID, true
}

// ResolveWith tries the cache first and falls back to the transport's live
// lookup on a miss. A successful fallback result is learned so the next
// resolve hits the cache.
func (c *Cache) ResolveWith(ctx context.Context, name string, fallback FallbackResolver) (string, bool) {
	if id, ok := c.Resolve(name); ok {
		return id, true
	}
	if fallback == nil {
		return "", false
	}

	id, err := fallback.ResolveName(ctx, name)
	if err != nil || id == "" {
		if err != nil {
			slog.Warn("live directory lookup failed", "name", name, "error", err)
		}
		return "", false
	}

	c.Observe(name, id)
	return id, true
}

// Entries returns a copy of the directory sorted by display name.
func (c *Cache) Entries() []store.DirectoryEntry {
	c.mu.RLock()
	out := make([]store.DirectoryEntry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].DisplayName < out[j].DisplayName })
	return out
}

// Len returns the number of learned names.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
