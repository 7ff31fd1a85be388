package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mlindgren/vaultagent/internal/domain"
)

func TestBuildPromptSections(t *testing.T) {
	agent := &domain.AgentDefinition{
		Name:   "reviewer",
		Path:   "agents/reviewer.md",
		Prompt: "Review the notes.",
		Spawns: []domain.SpawnRule{
			{Target: "agents/summarizer.md", Condition: "more than 3 items"},
		},
		Permissions: domain.AgentPermissions{
			Write: []string{"reports/*.md"},
			Spawn: []string{"agents/summarizer.md"},
		},
	}
	item := &domain.QueueItem{
		Context: domain.ExecutionContext{
			Inherited: map[string]string{"focus": "bugs", "area": "frontend"},
			Files:     []string{"daily/2026-08-30.md"},
		},
	}
	bundle := &domain.ContextBundle{Entries: []domain.ContextEntry{
		{Path: "daily/2026-08-30.md", Content: "note body"},
	}}

	prompt := buildPrompt(agent, item, bundle)

	assert.True(t, strings.HasPrefix(prompt, "Review the notes."))
	assert.Contains(t, prompt, "## Requesting child tasks")
	assert.Contains(t, prompt, "agents/summarizer.md (when: more than 3 items)")
	assert.Contains(t, prompt, "## Write access")
	assert.Contains(t, prompt, "- reports/*.md")
	assert.Contains(t, prompt, "## Triggering files")
	assert.Contains(t, prompt, "- daily/2026-08-30.md")
	assert.Contains(t, prompt, "### daily/2026-08-30.md\nnote body")

	// Inherited keys render sorted for a stable prompt.
	assert.Less(t,
		strings.Index(prompt, "area: frontend"),
		strings.Index(prompt, "focus: bugs"))
}

func TestBuildPromptMinimal(t *testing.T) {
	agent := &domain.AgentDefinition{
		Prompt:      "Just answer.",
		Permissions: domain.AgentPermissions{Write: []string{"*"}},
	}
	prompt := buildPrompt(agent, &domain.QueueItem{}, &domain.ContextBundle{})

	assert.Equal(t, "Just answer.", prompt)
	assert.NotContains(t, prompt, "## Requesting child tasks")
	assert.NotContains(t, prompt, "## Write access",
		"unrestricted writers get no enumeration")
}

func TestBuildPromptNoWriteAccess(t *testing.T) {
	agent := &domain.AgentDefinition{Prompt: "Read only."}
	prompt := buildPrompt(agent, &domain.QueueItem{}, nil)

	assert.Contains(t, prompt, "You may not write to any file.")
}
