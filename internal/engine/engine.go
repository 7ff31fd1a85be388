// Package engine executes one queue item: it builds the full prompt,
// invokes the generation provider and parses spawn requests out of the
// result. Invoked only by the scheduler.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mlindgren/vaultagent/internal/assembler"
	"github.com/mlindgren/vaultagent/internal/domain"
	"github.com/mlindgren/vaultagent/internal/logging"
	"github.com/mlindgren/vaultagent/internal/permission"
	"github.com/mlindgren/vaultagent/pkg/llm"
)

// Engine turns queue items into agent results.
type Engine struct {
	vaultRoot      string
	provider       llm.Provider
	assembler      *assembler.Assembler
	defaultModel   string
	permissionMode string
	broker         *permission.Broker
	logger         *logging.Logger
}

func New(vaultRoot string, provider llm.Provider, asm *assembler.Assembler, defaultModel string) *Engine {
	return &Engine{
		vaultRoot:      vaultRoot,
		provider:       provider,
		assembler:      asm,
		defaultModel:   defaultModel,
		permissionMode: "ask",
		logger:         logging.New("engine"),
	}
}

// SetPermissionMode overrides the provider-side permission hint.
func (e *Engine) SetPermissionMode(mode string) {
	e.permissionMode = mode
}

// SetBroker attaches an interactive permission broker. With a broker,
// spawn directives the agent holds no static permission for suspend the
// execution until granted, denied or expired; without one they are
// dropped outright.
func (e *Engine) SetBroker(b *permission.Broker) {
	e.broker = b
}

// Execute runs one item to completion. Provider failure is returned as an
// error so the scheduler can mark the item failed; writes performed before
// the failure are not rolled back.
func (e *Engine) Execute(ctx context.Context, item *domain.QueueItem) (*domain.AgentResult, error) {
	agent := item.Agent
	if agent == nil {
		return nil, fmt.Errorf("item %s has no resolved agent", item.ID)
	}

	if agent.Constraints.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, agent.Constraints.Timeout)
		defer cancel()
	}

	start := time.Now()
	log := e.logger.WithAgent(agent.Name).WithItem(item.ID)

	bundle, err := e.assembleContext(agent)
	if err != nil {
		return nil, fmt.Errorf("assemble context: %w", err)
	}

	model := agent.Model
	if model == "" {
		model = e.defaultModel
	}

	inv := &llm.Invocation{
		Prompt:         buildPrompt(agent, item, bundle),
		Message:        item.Context.Message,
		Model:          model,
		Tools:          agent.Tools,
		WorkDir:        e.vaultRoot,
		PermissionMode: e.permissionMode,
	}

	response, err := e.collect(ctx, inv)
	if err != nil {
		return nil, err
	}

	result := &domain.AgentResult{
		Response: response,
		Duration: time.Since(start),
	}
	result.Spawned = e.honoredSpawns(ctx, item, response, log)

	log.TimedEvent("execution_complete", start, map[string]any{
		"context_files": len(bundle.Entries),
		"spawns":        len(result.Spawned),
	})
	return result, nil
}

// assembleContext builds the bundle and drops entries the agent may not
// read. The permission check precedes use, not the read itself: the
// assembler's own loads are confined to the vault root.
func (e *Engine) assembleContext(agent *domain.AgentDefinition) (*domain.ContextBundle, error) {
	bundle, err := e.assembler.Assemble(agent.Context, agent.Context.MaxTokens)
	if err != nil {
		return nil, err
	}

	filtered := &domain.ContextBundle{}
	for _, entry := range bundle.Entries {
		if !permission.HasPermission(agent, domain.ActionRead, entry.Path) {
			continue
		}
		filtered.Entries = append(filtered.Entries, entry)
		filtered.TotalTokens += entry.Tokens
	}
	return filtered, nil
}

// collect drains the provider stream into the final response text.
func (e *Engine) collect(ctx context.Context, inv *llm.Invocation) (string, error) {
	events, err := e.provider.Invoke(ctx, inv)
	if err != nil {
		return "", fmt.Errorf("invoke provider: %w", err)
	}

	var text strings.Builder
	for ev := range events {
		switch ev.Type {
		case llm.EventText:
			text.WriteString(ev.Content)
			text.WriteString("\n")
		case llm.EventResult:
			return ev.Content, nil
		case llm.EventError:
			return "", ev.Err
		}
	}

	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("execution aborted: %w", err)
	}
	return text.String(), nil
}

// honoredSpawns filters parsed spawn directives down to those the
// requesting agent may issue. Statically permitted targets pass directly;
// unpermitted ones escalate to the broker when one is attached, suspending
// until resolved. Malformed payloads and denied targets are dropped and
// logged, never fatal.
func (e *Engine) honoredSpawns(ctx context.Context, item *domain.QueueItem, response string, log *logging.Logger) []domain.SpawnRequest {
	agent := item.Agent
	var honored []domain.SpawnRequest
	for _, d := range ParseSpawnDirectives(response) {
		if !d.Valid() {
			log.Warn("spawn_dropped", map[string]any{"reason": "malformed"}, d.Err)
			continue
		}
		if !permission.HasPermission(agent, domain.ActionSpawn, d.Request.Target) {
			if e.broker == nil {
				log.Warn("spawn_dropped", map[string]any{
					"reason": "unpermitted", "target": d.Request.Target,
				}, nil)
				continue
			}
			if !e.broker.Request(ctx, item.ID, domain.ActionSpawn, d.Request.Target) {
				log.Warn("spawn_dropped", map[string]any{
					"reason": "denied", "target": d.Request.Target,
				}, nil)
				continue
			}
			log.Info("spawn_granted", map[string]any{"target": d.Request.Target})
		}
		if max := agent.Constraints.MaxSpawns; max > 0 && len(honored) >= max {
			log.Warn("spawn_dropped", map[string]any{
				"reason": "max_spawns", "target": d.Request.Target,
			}, nil)
			continue
		}
		honored = append(honored, d.Request)
	}
	return honored
}
