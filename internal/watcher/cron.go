package watcher

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mlindgren/vaultagent/internal/domain"
	"github.com/mlindgren/vaultagent/internal/orchestrator"
)

// cronEntry tracks one scheduled agent's next due time.
type cronEntry struct {
	agent *domain.AgentDefinition
	sched cron.Schedule
	next  time.Time
}

// rebuildCronsLocked reparses the schedule table from the current agent
// set, preserving next-run times for unchanged expressions so a reload
// does not re-fire a slot. Callers hold w.mu.
func (w *Watcher) rebuildCronsLocked() {
	now := w.now()
	fresh := make(map[string]*cronEntry)
	for _, agent := range w.agents {
		if agent.Triggers.Cron == "" {
			continue
		}
		sched, err := cron.ParseStandard(agent.Triggers.Cron)
		if err != nil {
			w.logger.WithAgent(agent.Name).Warn("bad_cron", map[string]any{
				"expr": agent.Triggers.Cron,
			}, err)
			continue
		}

		entry := &cronEntry{agent: agent, sched: sched, next: sched.Next(now)}
		if old, ok := w.crons[agent.Path]; ok && old.agent.Triggers.Cron == agent.Triggers.Cron {
			entry.next = old.next
		}
		fresh[agent.Path] = entry
	}
	w.crons = fresh
}

// Tick fires every due schedule slot once. A slot whose previous
// triggered run is still pending or running is skipped, not queued
// behind itself; the slot advances either way.
func (w *Watcher) Tick(now time.Time) int {
	w.mu.Lock()
	var due []*cronEntry
	for _, entry := range w.crons {
		if !entry.next.After(now) {
			due = append(due, entry)
			entry.next = entry.sched.Next(now)
		}
	}
	w.mu.Unlock()

	fired := 0
	for _, entry := range due {
		if w.queue.HasActive(entry.agent.Path) {
			w.logger.WithAgent(entry.agent.Name).Info("cron_skipped_active", nil)
			continue
		}
		_, err := w.queue.Enqueue(orchestrator.EnqueueRequest{
			AgentPath: entry.agent.Path,
			Context: domain.ExecutionContext{
				Message: "Scheduled run (" + entry.agent.Triggers.Cron + ")",
			},
		})
		if err != nil {
			w.logger.WithAgent(entry.agent.Name).Warn("cron_enqueue_failed", nil, err)
			continue
		}
		fired++
	}
	return fired
}

// RunCron evaluates the schedule table on a periodic tick until ctx ends.
func (w *Watcher) RunCron(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Tick(w.now())
		}
	}
}
