package domain

import "time"

// Status is the queue item lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Priority orders pending items; higher runs first, ties break FIFO.
type Priority int

const (
	PriorityLow    Priority = -1
	PriorityNormal Priority = 0
	PriorityHigh   Priority = 1
)

// ExecutionContext carries the task message plus data inherited from the
// spawning parent and any candidate files named by a trigger.
type ExecutionContext struct {
	Message   string            `json:"message,omitempty"`
	Inherited map[string]string `json:"inherited,omitempty"`
	Files     []string          `json:"files,omitempty"`
}

// QueueItem is one scheduled agent execution. Mutated only by the
// scheduler; retained after completion for audit until pruned.
type QueueItem struct {
	ID        string           `json:"id"`
	AgentPath string           `json:"agent_path"`
	Agent     *AgentDefinition `json:"agent,omitempty"`
	Status    Status           `json:"status"`
	Priority  Priority         `json:"priority"`
	Depth     int              `json:"depth"`
	SpawnedBy string           `json:"spawned_by,omitempty"`
	Context   ExecutionContext `json:"context"`

	ScheduledFor time.Time  `json:"scheduled_for,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`

	Result *AgentResult `json:"result,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// SpawnRequest is one honored spawn directive discovered in a result.
type SpawnRequest struct {
	Target  string            `json:"target"`
	Message string            `json:"message,omitempty"`
	Context map[string]string `json:"context,omitempty"`
}

// AgentResult is the outcome of a completed execution.
type AgentResult struct {
	Response     string         `json:"response"`
	Spawned      []SpawnRequest `json:"spawned,omitempty"`
	FilesTouched []string       `json:"files_touched,omitempty"`
	Duration     time.Duration  `json:"duration"`
	Cost         float64        `json:"cost,omitempty"`
}

// Due reports whether the item's deferred start time has passed.
func (q *QueueItem) Due(now time.Time) bool {
	return q.ScheduledFor.IsZero() || !now.Before(q.ScheduledFor)
}

// Terminal reports whether the item reached a final state.
func (q *QueueItem) Terminal() bool {
	return q.Status == StatusCompleted || q.Status == StatusFailed
}
