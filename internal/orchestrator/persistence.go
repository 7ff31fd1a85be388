package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mlindgren/vaultagent/internal/domain"
)

// queueSnapshot is the durable queue representation. Agent snapshots are
// not saved; definitions are re-parsed from their documents on execution.
type queueSnapshot struct {
	SavedAt time.Time           `json:"saved_at"`
	Items   []*domain.QueueItem `json:"items"`
}

// persistLocked writes the queue to disk with atomic replace semantics so
// a crash mid-write never leaves a corrupt snapshot. Callers hold o.mu.
func (o *Orchestrator) persistLocked() {
	if !o.cfg.Persist || o.cfg.PersistPath == "" {
		return
	}

	snap := queueSnapshot{SavedAt: time.Now()}
	for _, item := range o.items {
		copy := *item
		copy.Agent = nil
		snap.Items = append(snap.Items, &copy)
	}

	if err := writeAtomic(o.cfg.PersistPath, snap); err != nil {
		o.logger.Warn("persist_failed", map[string]any{"path": o.cfg.PersistPath}, err)
	}
}

func writeAtomic(path string, snap queueSnapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode queue: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".queue-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace queue file: %w", err)
	}
	return nil
}

// restore reloads a saved snapshot. Items caught running by a crash go
// back to pending so they are re-driven rather than stranded.
func (o *Orchestrator) restore() error {
	data, err := os.ReadFile(o.cfg.PersistPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read queue file: %w", err)
	}

	var snap queueSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode queue file: %w", err)
	}

	restored := 0
	for _, item := range snap.Items {
		if item.Status == domain.StatusRunning {
			item.Status = domain.StatusPending
			item.StartedAt = nil
		}
		if item.Terminal() {
			o.processed++
			if item.Status == domain.StatusFailed {
				o.failed++
			} else if item.Result != nil {
				o.totalDuration += item.Result.Duration
				o.totalCost += item.Result.Cost
			}
		}
		o.items[item.ID] = item
		restored++
	}

	o.logger.Info("restored", map[string]any{"items": restored})
	return nil
}
