package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/mlindgren/vaultagent/internal/domain"
	"github.com/mlindgren/vaultagent/internal/logging"
)

const inboxDirName = "inbox"

// Submission is the wire form of an enqueue request handed to the daemon
// that owns the queue. Only the daemon's orchestrator touches the queue
// snapshot; other processes hand work over through the inbox directory.
type Submission struct {
	AgentPath    string                  `json:"agent_path"`
	Context      domain.ExecutionContext `json:"context"`
	Priority     domain.Priority         `json:"priority"`
	ScheduledFor time.Time               `json:"scheduled_for"`
	SubmittedAt  time.Time               `json:"submitted_at"`
}

// Submit writes an enqueue request into the inbox under dataDir and
// returns the submission id. The write is atomic so the polling daemon
// never reads a half-written file.
func Submit(dataDir string, req EnqueueRequest) (string, error) {
	dir := filepath.Join(dataDir, inboxDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create inbox: %w", err)
	}

	sub := Submission{
		AgentPath:    req.AgentPath,
		Context:      req.Context,
		Priority:     req.Priority,
		ScheduledFor: req.ScheduledFor,
		SubmittedAt:  time.Now(),
	}
	data, err := json.MarshalIndent(sub, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode submission: %w", err)
	}

	id := ulid.Make().String()
	tmp := filepath.Join(dir, "."+id+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write submission: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, id+".json")); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("publish submission: %w", err)
	}
	return id, nil
}

// Inbox drains submitted enqueue requests into an orchestrator.
type Inbox struct {
	dir    string
	orch   *Orchestrator
	logger *logging.Logger
}

func NewInbox(dataDir string, orch *Orchestrator) *Inbox {
	return &Inbox{
		dir:    filepath.Join(dataDir, inboxDirName),
		orch:   orch,
		logger: logging.New("inbox"),
	}
}

// Poll drains the inbox on an interval until the context ends.
func (i *Inbox) Poll(ctx context.Context, interval time.Duration) {
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
			i.drain()
		}
	}
}

// drain enqueues every submission and removes its file. Submissions the
// orchestrator rejects (unknown agent, full queue) are logged and removed
// rather than retried forever.
func (i *Inbox) drain() {
	entries, err := os.ReadDir(i.dir)
	if err != nil {
		return
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		path := filepath.Join(i.dir, name)

		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var sub Submission
		if err := json.Unmarshal(data, &sub); err != nil {
			i.logger.Warn("submission_invalid", map[string]any{"file": name}, err)
			os.Remove(path)
			continue
		}

		id, err := i.orch.Enqueue(EnqueueRequest{
			AgentPath:    sub.AgentPath,
			Context:      sub.Context,
			Priority:     sub.Priority,
			ScheduledFor: sub.ScheduledFor,
		})
		if err != nil {
			i.logger.Warn("submission_rejected", map[string]any{
				"file": name, "agent": sub.AgentPath,
			}, err)
		} else {
			i.logger.WithItem(id).Info("submission_enqueued", map[string]any{
				"agent": sub.AgentPath,
			})
		}
		os.Remove(path)
	}
}
