// Package registry loads agent definitions from a directory of YAML or JSON
// documents and serves lookups against an atomically swapped snapshot.
package registry

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ShayCichocki/conductor/internal/logging"
	"github.com/ShayCichocki/conductor/pkg/models"
)

// DefaultDebounce is how long the watcher waits for a burst of file events to settle.
const DefaultDebounce = 150 * time.Millisecond

// Options configures a Registry.
type Options struct {
	// Logger receives reload failures and watcher errors. Nil discards.
	Logger *slog.Logger
	// Debounce overrides DefaultDebounce for the directory watcher.
	Debounce time.Duration
}

// DiscoverOptions controls a Discover call.
type DiscoverOptions struct {
	// Watch starts a directory watcher that reloads on changes.
	Watch bool
	// ForceReload loads even when the directory looks unchanged.
	ForceReload bool
}

// Registry holds the current agent snapshot. Readers never block on reloads.
type Registry struct {
	current  atomic.Pointer[Snapshot]
	logger   *slog.Logger
	debounce time.Duration

	// mu serializes loads and guards the fields below.
	mu          sync.Mutex
	dir         string
	fingerprint string
	watcher     *watcher
	hooks       []func(*Snapshot)
}

// New creates a registry with an empty snapshot.
func New(opts Options) *Registry {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	r := &Registry{
		logger:   logging.OrDiscard(opts.Logger).With("component", "registry"),
		debounce: opts.Debounce,
	}
	r.current.Store(emptySnapshot())
	return r
}

// Snapshot returns the current snapshot. It is never nil.
func (r *Registry) Snapshot() *Snapshot {
	return r.current.Load()
}

// OnReload registers fn to be called after every successful reload.
func (r *Registry) OnReload(fn func(*Snapshot)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, fn)
}

// Discover makes the registry reflect dir. It reloads when dir differs from the
// last loaded directory, when its contents changed, or when ForceReload is set.
// On failure the previous snapshot stays in effect and the error is returned.
func (r *Registry) Discover(ctx context.Context, dir string, opts DiscoverOptions) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return r.Snapshot(), err
	}

	dir = filepath.Clean(dir)

	snap, hooks, err := r.discoverLocked(dir, opts.ForceReload)
	if err != nil {
		return r.Snapshot(), err
	}
	for _, fn := range hooks {
		fn(snap)
	}

	r.stopStaleWatcher(dir)
	if opts.Watch {
		if err := r.ensureWatcher(dir); err != nil {
			return snap, err
		}
	}
	return snap, nil
}

func (r *Registry) discoverLocked(dir string, force bool) (*Snapshot, []func(*Snapshot), error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fp, err := fingerprint(dir)
	if err != nil {
		return nil, nil, err
	}
	if !force && dir == r.dir && fp == r.fingerprint {
		return r.current.Load(), nil, nil
	}
	return r.reloadLocked(dir, fp)
}

// reloadLocked loads dir and swaps the snapshot. Callers hold r.mu.
func (r *Registry) reloadLocked(dir, fp string) (*Snapshot, []func(*Snapshot), error) {
	snap, err := Load(dir)
	if err != nil {
		return nil, nil, err
	}
	r.current.Store(snap)
	r.dir = dir
	r.fingerprint = fp

	r.logger.Debug("agents loaded", "dir", dir, "count", snap.Len())

	hooks := make([]func(*Snapshot), len(r.hooks))
	copy(hooks, r.hooks)
	return snap, hooks, nil
}

// reloadFromWatch is the watcher's reload path. Failures are logged, never returned.
func (r *Registry) reloadFromWatch(dir string) {
	r.mu.Lock()
	fp, err := fingerprint(dir)
	var (
		snap  *Snapshot
		hooks []func(*Snapshot)
	)
	if err == nil {
		snap, hooks, err = r.reloadLocked(dir, fp)
	}
	r.mu.Unlock()

	if err != nil {
		r.logger.Warn("agent reload failed, keeping previous snapshot", "dir", dir, "error", err)
		return
	}
	r.logger.Info("agents reloaded", "dir", dir, "count", snap.Len())
	for _, fn := range hooks {
		fn(snap)
	}
}

func (r *Registry) ensureWatcher(dir string) error {
	r.mu.Lock()
	if r.watcher != nil && r.watcher.dir == dir {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	// The old watcher's consumer may be waiting on r.mu, so stop it unlocked.
	r.stopStaleWatcher(dir)

	w, err := startWatcher(dir, r.debounce, r.logger, func() { r.reloadFromWatch(dir) })
	if err != nil {
		return err
	}

	r.mu.Lock()
	if r.watcher != nil {
		r.mu.Unlock()
		w.close()
		return nil
	}
	r.watcher = w
	r.mu.Unlock()

	r.logger.Debug("watching agents dir", "dir", dir)
	return nil
}

// stopStaleWatcher stops a watcher that observes a directory other than dir.
func (r *Registry) stopStaleWatcher(dir string) {
	r.mu.Lock()
	w := r.watcher
	if w == nil || w.dir == dir {
		r.mu.Unlock()
		return
	}
	r.watcher = nil
	r.mu.Unlock()

	if err := w.close(); err != nil {
		r.logger.Warn("close agent watcher", "dir", w.dir, "error", err)
	}
}

// Watching reports whether a directory watcher is running.
func (r *Registry) Watching() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.watcher != nil
}

// Close stops the directory watcher, if any. It is safe to call more than once.
func (r *Registry) Close() error {
	r.mu.Lock()
	w := r.watcher
	r.watcher = nil
	r.mu.Unlock()

	if w != nil {
		return w.close()
	}
	return nil
}

// GetAgent returns the agent with the given name, or nil.
func (r *Registry) GetAgent(name string) *models.AgentDefinition {
	return r.Snapshot().Get(name)
}

// ListAgents returns all agents in filename order.
func (r *Registry) ListAgents() []*models.AgentDefinition {
	return r.Snapshot().Agents()
}

// MatchByIntent returns the first agent declaring intent, or nil.
func (r *Registry) MatchByIntent(intent string) *models.AgentDefinition {
	return r.Snapshot().MatchByIntent(intent)
}

// MatchByKeyword resolves text to an agent via keywords, or nil.
func (r *Registry) MatchByKeyword(text string) *models.AgentDefinition {
	return r.Snapshot().MatchByKeyword(text)
}
