package rules

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/adhocore/gronx"
	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces the editor save dance (truncate, write, rename)
// into a single reload.
const watchDebounce = 500 * time.Millisecond

// Store owns the active rule Set. Readers get an immutable snapshot via
// Active(); Reload installs a new snapshot with a single pointer swap, so a
// concurrent matcher never observes a half-updated table.
type Store struct {
	path   string
	active atomic.Pointer[Set]
}

// NewStore creates a Store for the given rule file. Call Load before use.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the rule file path.
func (s *Store) Path() string { return s.path }

// Load performs the initial load. Unlike Reload, a failure here is returned
// to the caller: with no previous snapshot to fall back on, starting the
// router without rules would silently drop every message.
func (s *Store) Load() error {
	records, err := LoadFile(s.path)
	if err != nil {
		return err
	}
	set := Build(records)
	if set.Len() == 0 {
		return fmt.Errorf("rule file %s contains no valid rules", s.path)
	}
	s.active.Store(set)
	slog.Info("rules loaded", "path", s.path, "rules", set.Len(), "rows", len(records))
	return nil
}

// Reload re-reads the rule file and swaps in the new snapshot. On any
// failure the previous snapshot stays active and the error is only logged:
// the router keeps running on stale rules rather than crash.
func (s *Store) Reload() {
	records, err := LoadFile(s.path)
	if err != nil {
		slog.Error("rule reload failed, keeping previous rules",
			"path", s.path, "active_rules", s.Active().Len(), "error", err)
		return
	}
	set := Build(records)
	if set.Len() == 0 {
		slog.Error("rule reload produced no valid rules, keeping previous rules",
			"path", s.path, "active_rules", s.Active().Len())
		return
	}
	s.active.Store(set)
	slog.Info("rules reloaded", "path", s.path, "rules", set.Len())
}

// Active returns the current snapshot. Never nil after a successful Load.
func (s *Store) Active() *Set {
	return s.active.Load()
}

// Watch reloads the rule table whenever the file changes on disk. Blocks
// until ctx is cancelled.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create rule watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(s.path); err != nil {
		return fmt.Errorf("watch rule file %s: %w", s.path, err)
	}
	slog.Info("watching rule file", "path", s.path)

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	pending := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pending:
			s.Reload()
			// Editors replace the file by rename; re-arm the watch.
			_ = watcher.Add(s.path)
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(watchDebounce, func() {
				select {
				case pending <- struct{}{}:
				default:
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("rule watcher error", "error", err)
		}
	}
}

// RunSchedule reloads on a cron schedule, for deployments where the rule
// file is synced from elsewhere and fsnotify events never fire (NFS, SMB).
// Blocks until ctx is cancelled.
func (s *Store) RunSchedule(ctx context.Context, expr string) error {
	gron := gronx.New()
	if !gron.IsValid(expr) {
		return fmt.Errorf("invalid reload cron expression %q", expr)
	}
	slog.Info("scheduled rule reload enabled", "cron", expr)

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			due, err := gron.IsDue(expr, time.Now())
			if err != nil {
				slog.Warn("reload schedule check failed", "cron", expr, "error", err)
				continue
			}
			if due {
				s.Reload()
			}
		}
	}
}
