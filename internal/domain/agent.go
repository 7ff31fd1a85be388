// Package domain holds the core types shared across the orchestration
// components: agent definitions, queue items, permission requests and
// context bundles.
package domain

import "time"

// AgentDefinition is the structured task definition parsed from a vault
// document. It is re-parsed from its backing document on every execution,
// never cached across edits.
type AgentDefinition struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Model       string            `json:"model,omitempty"`
	Tools       []string          `json:"tools,omitempty"`
	Triggers    TriggerConfig     `json:"triggers,omitempty"`
	Spawns      []SpawnRule       `json:"spawns,omitempty"`
	Context     ContextPolicy     `json:"context,omitempty"`
	Permissions AgentPermissions  `json:"permissions,omitempty"`
	Constraints AgentConstraints  `json:"constraints,omitempty"`

	// Prompt is the free-text body below the metadata block.
	Prompt string `json:"prompt,omitempty"`

	// Path is the document path relative to the vault root.
	Path string `json:"path"`
}

// TriggerConfig describes when an agent runs without explicit invocation.
type TriggerConfig struct {
	OnCreate []string `json:"on_create,omitempty"`
	OnModify []string `json:"on_modify,omitempty"`
	Cron     string   `json:"cron,omitempty"`
	Manual   bool     `json:"manual,omitempty"`
}

// SpawnRule declares a child agent this agent may request, with an optional
// free-text condition and a context mapping passed to the child.
type SpawnRule struct {
	Target    string            `json:"target"`
	Condition string            `json:"condition,omitempty"`
	Context   map[string]string `json:"context,omitempty"`
}

// ContextPolicy controls what vault content is assembled into the prompt.
// Root selects knowledge-root mode (wiki-link expansion); Include selects
// glob mode. Root wins when both are set.
type ContextPolicy struct {
	Root      string   `json:"root,omitempty"`
	Include   []string `json:"include,omitempty"`
	Exclude   []string `json:"exclude,omitempty"`
	MaxFiles  int      `json:"max_files,omitempty"`
	MaxTokens int      `json:"max_tokens,omitempty"`
}

// AgentPermissions holds glob pattern lists per action plus the tool
// allowlist applied at provider invocation.
type AgentPermissions struct {
	Read  []string `json:"read,omitempty"`
	Write []string `json:"write,omitempty"`
	Spawn []string `json:"spawn,omitempty"`
	Tools []string `json:"tools,omitempty"`
}

// AgentConstraints bounds a single execution.
type AgentConstraints struct {
	MaxSpawns int           `json:"max_spawns,omitempty"`
	MaxDepth  int           `json:"max_depth,omitempty"`
	Timeout   time.Duration `json:"timeout,omitempty"`
}

// Action identifies a permissioned operation.
type Action string

const (
	ActionRead  Action = "read"
	ActionWrite Action = "write"
	ActionSpawn Action = "spawn"
)

// PermissionPatterns returns the glob patterns configured for an action.
func (a *AgentDefinition) PermissionPatterns(action Action) []string {
	switch action {
	case ActionRead:
		return a.Permissions.Read
	case ActionWrite:
		return a.Permissions.Write
	case ActionSpawn:
		return a.Permissions.Spawn
	}
	return nil
}

// CanSpawn reports whether the agent holds any spawn grants at all.
func (a *AgentDefinition) CanSpawn() bool {
	return len(a.Permissions.Spawn) > 0
}

// WriteRestricted reports whether write access is limited to specific
// targets rather than the whole vault.
func (a *AgentDefinition) WriteRestricted() bool {
	if len(a.Permissions.Write) == 0 {
		return true
	}
	for _, p := range a.Permissions.Write {
		if p == "*" {
			return false
		}
	}
	return true
}
