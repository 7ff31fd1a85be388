// Package watcher turns filesystem events and cron schedules into queue
// items, so agents run without explicit invocation.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/mlindgren/vaultagent/internal/domain"
	"github.com/mlindgren/vaultagent/internal/logging"
	"github.com/mlindgren/vaultagent/internal/orchestrator"
)

// Enqueuer is the scheduler surface the watcher drives.
type Enqueuer interface {
	Enqueue(req orchestrator.EnqueueRequest) (string, error)
	HasActive(agentPath string) bool
}

// debounceWindow collapses the event bursts editors produce for a single
// save, so one change fires each matching agent at most once.
const debounceWindow = 2 * time.Second

// Watcher matches vault events against agent triggers.
type Watcher struct {
	vaultRoot string
	queue     Enqueuer
	logger    *logging.Logger

	mu       sync.Mutex
	agents   []*domain.AgentDefinition
	lastFire map[string]time.Time
	crons    map[string]*cronEntry

	now func() time.Time
}

func New(vaultRoot string, queue Enqueuer) *Watcher {
	return &Watcher{
		vaultRoot: vaultRoot,
		queue:     queue,
		logger:    logging.New("watcher"),
		lastFire:  make(map[string]time.Time),
		crons:     make(map[string]*cronEntry),
		now:       time.Now,
	}
}

// SetAgents replaces the trigger table, typically after a rescan of the
// agents directory.
func (w *Watcher) SetAgents(agents []*domain.AgentDefinition) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.agents = agents
	w.rebuildCronsLocked()
}

// Start watches the vault tree until ctx ends. Subdirectories created
// later are picked up as their create events arrive.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if err := addRecursive(fsw, w.vaultRoot); err != nil {
		fsw.Close()
		return err
	}

	go func() {
		defer fsw.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				w.handleEvent(fsw, ev)
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				w.logger.Warn("watch_error", nil, err)
			}
		}
	}()
	return nil
}

func addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if hidden(filepath.Base(path)) && path != root {
				return filepath.SkipDir
			}
			return fsw.Add(path)
		}
		return nil
	})
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

func (w *Watcher) handleEvent(fsw *fsnotify.Watcher, ev fsnotify.Event) {
	rel, err := filepath.Rel(w.vaultRoot, ev.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return
	}
	rel = filepath.ToSlash(rel)
	for _, part := range strings.Split(rel, "/") {
		if hidden(part) {
			return
		}
	}

	switch {
	case ev.Op.Has(fsnotify.Create):
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			fsw.Add(ev.Name)
			return
		}
		w.fire(rel, "create")
	case ev.Op.Has(fsnotify.Write):
		w.fire(rel, "modify")
	}
}

// fire enqueues every agent whose trigger globs match the changed file,
// at depth 0, with the triggering file in the execution context. The
// debounce key is agent+path+op: one filesystem change never re-triggers
// the same agent twice.
func (w *Watcher) fire(rel, op string) {
	now := w.now()

	w.mu.Lock()
	// Entries past the window can never suppress again; drop them so the
	// map stays bounded in a long-running daemon.
	for key, last := range w.lastFire {
		if now.Sub(last) >= debounceWindow {
			delete(w.lastFire, key)
		}
	}
	var due []*domain.AgentDefinition
	for _, agent := range w.agents {
		patterns := agent.Triggers.OnCreate
		if op == "modify" {
			patterns = agent.Triggers.OnModify
		}
		if !matchesAny(rel, patterns) {
			continue
		}
		key := agent.Path + "|" + rel + "|" + op
		if last, ok := w.lastFire[key]; ok && now.Sub(last) < debounceWindow {
			continue
		}
		w.lastFire[key] = now
		due = append(due, agent)
	}
	w.mu.Unlock()

	for _, agent := range due {
		_, err := w.queue.Enqueue(orchestrator.EnqueueRequest{
			AgentPath: agent.Path,
			Context: domain.ExecutionContext{
				Message: "Triggered by " + op + " of " + rel,
				Files:   []string{rel},
			},
		})
		if err != nil {
			w.logger.WithAgent(agent.Name).Warn("trigger_enqueue_failed", map[string]any{
				"file": rel, "op": op,
			}, err)
			continue
		}
		w.logger.WithAgent(agent.Name).Info("triggered", map[string]any{
			"file": rel, "op": op,
		})
	}
}

func matchesAny(rel string, patterns []string) bool {
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, rel); err == nil && ok {
			return true
		}
	}
	return false
}
