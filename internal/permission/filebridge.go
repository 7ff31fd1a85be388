package permission

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mlindgren/vaultagent/internal/domain"
	"github.com/mlindgren/vaultagent/internal/logging"
)

const (
	pendingFile  = "permissions.json"
	decisionsDir = "decisions"
)

// decision is written by the CLI and consumed by the daemon.
type decision struct {
	ID      string    `json:"id"`
	Granted bool      `json:"granted"`
	By      string    `json:"by"`
	At      time.Time `json:"at"`
}

// FileBridge connects a running broker to out-of-process CLI commands.
// The daemon mirrors pending requests to a JSON file and polls a
// decisions directory for grant/deny files dropped by the CLI.
type FileBridge struct {
	dir    string
	broker *Broker
	logger *logging.Logger
}

func NewFileBridge(dataDir string, broker *Broker) *FileBridge {
	return &FileBridge{
		dir:    dataDir,
		broker: broker,
		logger: logging.New("permission"),
	}
}

// Poll applies queued decisions and refreshes the pending mirror until
// ctx is cancelled.
func (fb *FileBridge) Poll(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fb.applyDecisions()
			if err := fb.writePending(); err != nil {
				fb.logger.Warn("pending_mirror_failed", nil, err)
			}
		}
	}
}

func (fb *FileBridge) applyDecisions() {
	dir := filepath.Join(fb.dir, decisionsDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		var d decision
		if err := json.Unmarshal(data, &d); err != nil {
			fb.logger.Warn("bad_decision_file", map[string]any{"file": entry.Name()}, err)
			os.Remove(path)
			continue
		}

		var applied bool
		if d.Granted {
			applied = fb.broker.Grant(d.ID)
		} else {
			applied = fb.broker.Deny(d.ID)
		}
		fb.logger.Info("decision_applied", map[string]any{
			"request": d.ID,
			"granted": d.Granted,
			"applied": applied,
		})
		os.Remove(path)
	}
}

func (fb *FileBridge) writePending() error {
	data, err := json.MarshalIndent(fb.broker.Pending(), "", "  ")
	if err != nil {
		return err
	}

	path := filepath.Join(fb.dir, pendingFile)
	tmp, err := os.CreateTemp(fb.dir, ".permissions-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// ReadPending loads the daemon's pending-request mirror.
func ReadPending(dataDir string) ([]domain.PermissionRequest, error) {
	data, err := os.ReadFile(filepath.Join(dataDir, pendingFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var reqs []domain.PermissionRequest
	if err := json.Unmarshal(data, &reqs); err != nil {
		return nil, fmt.Errorf("parse pending requests: %w", err)
	}
	return reqs, nil
}

// SubmitDecision drops a grant/deny file for the daemon to pick up.
func SubmitDecision(dataDir, id string, granted bool, by string) error {
	dir := filepath.Join(dataDir, decisionsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	data, err := json.Marshal(decision{ID: id, Granted: granted, By: by, At: time.Now()})
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, id+".json"), data, 0o644)
}
