// Package orchestrator owns the execution queue: a depth-bounded,
// concurrency-limited state machine driving agent executions and their
// recursive spawns. One explicitly constructed instance owns its queue,
// broker and config; there is no ambient global state.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/mlindgren/vaultagent/internal/domain"
	"github.com/mlindgren/vaultagent/internal/logging"
	"github.com/mlindgren/vaultagent/internal/permission"
)

// Executor runs one queue item. Satisfied by engine.Engine.
type Executor interface {
	Execute(ctx context.Context, item *domain.QueueItem) (*domain.AgentResult, error)
}

// AgentLoader re-parses an agent definition from its backing document.
// Satisfied by agentfile.Loader.
type AgentLoader interface {
	Load(path string) (*domain.AgentDefinition, error)
}

// Auditor records finished executions. Satisfied by store.Store.
type Auditor interface {
	RecordRun(item *domain.QueueItem) error
}

// Config bounds the orchestrator.
type Config struct {
	Concurrency int
	MaxDepth    int
	QueueLimit  int // 0 = unlimited

	// Persist toggles durable queue state. Disabled keeps state purely in
	// memory, a documented trade-off for isolated and test runs.
	Persist     bool
	PersistPath string
}

// EnqueueRequest describes a new queue item.
type EnqueueRequest struct {
	AgentPath    string
	Context      domain.ExecutionContext
	Depth        int
	SpawnedBy    string
	Priority     domain.Priority
	ScheduledFor time.Time
}

// QueueState is a read-only snapshot of the queue.
type QueueState struct {
	Pending   []domain.QueueItem `json:"pending"`
	Running   []domain.QueueItem `json:"running"`
	Completed []domain.QueueItem `json:"completed"`
}

// Stats aggregates finished work.
type Stats struct {
	Processed       int           `json:"processed"`
	Failed          int           `json:"failed"`
	AverageDuration time.Duration `json:"average_duration"`
	TotalCost       float64       `json:"total_cost"`
}

// Orchestrator coordinates queue items through
// pending -> running -> {completed | failed}.
type Orchestrator struct {
	cfg      Config
	loader   AgentLoader
	executor Executor
	broker   *permission.Broker
	auditor  Auditor
	logger   *logging.Logger

	mu            sync.Mutex
	items         map[string]*domain.QueueItem
	running       int
	processed     int
	failed        int
	totalDuration time.Duration
	totalCost     float64

	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an orchestrator. When persistence is enabled, previously
// saved queue state is reloaded; items caught mid-run by a crash restart
// as pending.
func New(cfg Config, loader AgentLoader, executor Executor) *Orchestrator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 3
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		cfg:      cfg,
		loader:   loader,
		executor: executor,
		broker:   permission.NewBroker(),
		logger:   logging.New("orchestrator"),
		items:    make(map[string]*domain.QueueItem),
		runCtx:   ctx,
		cancel:   cancel,
	}
	if cfg.Persist {
		if err := o.restore(); err != nil {
			o.logger.Warn("restore_failed", map[string]any{"path": cfg.PersistPath}, err)
		}
	}
	return o
}

// Broker returns the permission-request broker owned by this instance.
func (o *Orchestrator) Broker() *permission.Broker {
	return o.broker
}

// SetAuditor attaches a store recording finished executions.
func (o *Orchestrator) SetAuditor(a Auditor) {
	o.auditor = a
}

// Enqueue validates and creates a pending item, then kicks the scheduler.
// It fails fast, creating nothing, on ErrMaxDepthExceeded or ErrQueueFull;
// loader errors (not found, not an agent, path escape) propagate.
func (o *Orchestrator) Enqueue(req EnqueueRequest) (string, error) {
	if req.Depth >= o.cfg.MaxDepth {
		return "", fmt.Errorf("depth %d: %w", req.Depth, domain.ErrMaxDepthExceeded)
	}

	// Validate the document up front so a bad path never occupies a slot.
	agent, err := o.loader.Load(req.AgentPath)
	if err != nil {
		return "", err
	}
	if md := agent.Constraints.MaxDepth; md > 0 && req.Depth >= md {
		return "", fmt.Errorf("depth %d: %w", req.Depth, domain.ErrMaxDepthExceeded)
	}

	item := &domain.QueueItem{
		ID:           ulid.Make().String(),
		AgentPath:    agent.Path,
		Status:       domain.StatusPending,
		Priority:     req.Priority,
		Depth:        req.Depth,
		SpawnedBy:    req.SpawnedBy,
		Context:      req.Context,
		ScheduledFor: req.ScheduledFor,
		CreatedAt:    time.Now(),
	}

	o.mu.Lock()
	if o.cfg.QueueLimit > 0 && o.pendingCountLocked() >= o.cfg.QueueLimit {
		o.mu.Unlock()
		return "", fmt.Errorf("limit %d: %w", o.cfg.QueueLimit, domain.ErrQueueFull)
	}
	o.items[item.ID] = item
	o.persistLocked()
	o.mu.Unlock()

	o.logger.WithAgent(agent.Name).WithItem(item.ID).Info("enqueued", map[string]any{
		"depth": item.Depth, "priority": int(item.Priority),
	})

	o.schedule()
	return item.ID, nil
}

// schedule promotes pending items to running while capacity remains, in
// priority order then creation order. Deferred items wait for their
// scheduled time.
func (o *Orchestrator) schedule() {
	now := time.Now()

	o.mu.Lock()
	var ready []*domain.QueueItem
	for _, item := range o.items {
		if item.Status == domain.StatusPending && item.Due(now) {
			ready = append(ready, item)
		}
	}
	sort.Slice(ready, func(i, j int) bool {
		if ready[i].Priority != ready[j].Priority {
			return ready[i].Priority > ready[j].Priority
		}
		return ready[i].CreatedAt.Before(ready[j].CreatedAt)
	})

	var promoted []*domain.QueueItem
	for _, item := range ready {
		if o.running >= o.cfg.Concurrency {
			break
		}
		started := now
		item.Status = domain.StatusRunning
		item.StartedAt = &started
		o.running++
		promoted = append(promoted, item)
	}
	if len(promoted) > 0 {
		o.persistLocked()
	}
	o.mu.Unlock()

	for _, item := range promoted {
		o.wg.Add(1)
		go o.run(item)
	}
}

// run executes one item to a terminal state and immediately re-runs the
// scheduling pass so a freed slot starts waiting work without polling.
func (o *Orchestrator) run(item *domain.QueueItem) {
	defer o.wg.Done()

	// Fresh parse per execution so document edits take effect.
	agent, err := o.loader.Load(item.AgentPath)
	if err != nil {
		o.finish(item, nil, fmt.Errorf("reload agent: %w", err))
		return
	}

	o.mu.Lock()
	item.Agent = agent
	o.mu.Unlock()

	var result *domain.AgentResult
	err = logging.NewRecoveryHandler("orchestrator").WrapErr(func() error {
		var execErr error
		result, execErr = o.executor.Execute(o.runCtx, item)
		return execErr
	})
	o.finish(item, result, err)
}

func (o *Orchestrator) finish(item *domain.QueueItem, result *domain.AgentResult, err error) {
	now := time.Now()

	o.mu.Lock()
	item.CompletedAt = &now
	o.running--
	o.processed++
	if err != nil {
		item.Status = domain.StatusFailed
		item.Error = err.Error()
		o.failed++
	} else {
		item.Status = domain.StatusCompleted
		item.Result = result
		o.totalDuration += result.Duration
		o.totalCost += result.Cost
	}
	o.persistLocked()
	o.mu.Unlock()

	log := o.logger.WithItem(item.ID)
	if err != nil {
		log.Error("execution_failed", map[string]any{"agent": item.AgentPath}, err)
	} else {
		log.Info("execution_completed", map[string]any{
			"agent": item.AgentPath, "duration_ms": result.Duration.Milliseconds(),
		})
	}

	if o.auditor != nil {
		if aerr := o.auditor.RecordRun(item); aerr != nil {
			log.Warn("audit_failed", nil, aerr)
		}
	}

	// A parent's spawns enqueue only after it fully completes, so children
	// observe its finished side effects by construction.
	if err == nil && result != nil {
		o.enqueueSpawns(item, result)
	}

	o.schedule()
}

// enqueueSpawns turns honored spawn requests into child items at depth+1.
// A child rejected at the depth ceiling is logged and dropped; the parent
// is already complete.
func (o *Orchestrator) enqueueSpawns(parent *domain.QueueItem, result *domain.AgentResult) {
	for _, req := range result.Spawned {
		inherited := spawnContext(parent, req)
		_, err := o.Enqueue(EnqueueRequest{
			AgentPath: req.Target,
			Context: domain.ExecutionContext{
				Message:   req.Message,
				Inherited: inherited,
			},
			Depth:     parent.Depth + 1,
			SpawnedBy: parent.ID,
			Priority:  parent.Priority,
		})
		if err != nil {
			o.logger.WithItem(parent.ID).Warn("spawn_rejected", map[string]any{
				"target": req.Target,
			}, err)
		}
	}
}

// spawnContext merges the spawn rule's context mapping with the request's
// explicit context; the request wins on conflicts.
func spawnContext(parent *domain.QueueItem, req domain.SpawnRequest) map[string]string {
	merged := make(map[string]string)
	if parent.Agent != nil {
		for _, rule := range parent.Agent.Spawns {
			if rule.Target == req.Target {
				for k, v := range rule.Context {
					merged[k] = v
				}
			}
		}
	}
	for k, v := range req.Context {
		merged[k] = v
	}
	if len(merged) == 0 {
		return nil
	}
	return merged
}

// Cancel removes a pending item before it starts. Running items run to
// completion; there is no mid-execution cancellation of the provider call.
func (o *Orchestrator) Cancel(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	item, ok := o.items[id]
	if !ok || item.Status != domain.StatusPending {
		return false
	}
	delete(o.items, id)
	o.persistLocked()
	return true
}

// Get returns a copy of an item by id.
func (o *Orchestrator) Get(id string) (domain.QueueItem, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	item, ok := o.items[id]
	if !ok {
		return domain.QueueItem{}, false
	}
	return *item, true
}

// QueueState returns a read-only snapshot. Failed items appear in
// Completed with their error retained; no user-initiated request is
// silently dropped.
func (o *Orchestrator) QueueState() QueueState {
	o.mu.Lock()
	defer o.mu.Unlock()

	var state QueueState
	for _, item := range o.items {
		switch item.Status {
		case domain.StatusPending:
			state.Pending = append(state.Pending, *item)
		case domain.StatusRunning:
			state.Running = append(state.Running, *item)
		default:
			state.Completed = append(state.Completed, *item)
		}
	}

	sort.Slice(state.Pending, func(i, j int) bool {
		if state.Pending[i].Priority != state.Pending[j].Priority {
			return state.Pending[i].Priority > state.Pending[j].Priority
		}
		return state.Pending[i].CreatedAt.Before(state.Pending[j].CreatedAt)
	})
	sort.Slice(state.Running, func(i, j int) bool {
		return state.Running[i].StartedAt.Before(*state.Running[j].StartedAt)
	})
	sort.Slice(state.Completed, func(i, j int) bool {
		return state.Completed[i].CompletedAt.Before(*state.Completed[j].CompletedAt)
	})
	return state
}

// Stats returns aggregate execution statistics.
func (o *Orchestrator) Stats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := Stats{
		Processed: o.processed,
		Failed:    o.failed,
		TotalCost: o.totalCost,
	}
	if succeeded := o.processed - o.failed; succeeded > 0 {
		s.AverageDuration = o.totalDuration / time.Duration(succeeded)
	}
	return s
}

// RunningCount returns the number of in-flight executions.
func (o *Orchestrator) RunningCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// HasActive reports whether any pending or running item targets the agent
// document. The trigger watcher uses this to keep a due cron slot from
// double-firing.
func (o *Orchestrator) HasActive(agentPath string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, item := range o.items {
		if item.AgentPath == agentPath && !item.Terminal() {
			return true
		}
	}
	return false
}

// PruneCompleted drops terminal items older than the cutoff and returns
// the count removed. Completed items are otherwise retained for audit.
func (o *Orchestrator) PruneCompleted(olderThan time.Duration) int {
	cutoff := time.Now().Add(-olderThan)

	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for id, item := range o.items {
		if item.Terminal() && item.CompletedAt != nil && item.CompletedAt.Before(cutoff) {
			delete(o.items, id)
			n++
		}
	}
	if n > 0 {
		o.persistLocked()
	}
	return n
}

func (o *Orchestrator) pendingCountLocked() int {
	n := 0
	for _, item := range o.items {
		if item.Status == domain.StatusPending {
			n++
		}
	}
	return n
}

// Run drives deferred items and the broker sweep until ctx ends.
func (o *Orchestrator) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	sweep := time.NewTicker(30 * time.Second)
	defer sweep.Stop()

	o.schedule()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep.C:
			o.broker.CleanupStale(permission.DefaultMaxAge)
		case <-ticker.C:
			o.schedule()
		}
	}
}

// Shutdown stops promoting new work and waits for in-flight executions.
func (o *Orchestrator) Shutdown() {
	o.cancel()
	o.wg.Wait()
}
