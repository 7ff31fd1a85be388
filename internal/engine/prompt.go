package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mlindgren/vaultagent/internal/domain"
)

// buildPrompt assembles the full system prompt for one execution: the
// agent's body, spawn syntax and targets when the agent can spawn, an
// explicit enumeration of write targets when write access is restricted,
// inherited parent data, and the assembled context bundle.
func buildPrompt(agent *domain.AgentDefinition, item *domain.QueueItem, bundle *domain.ContextBundle) string {
	var b strings.Builder
	b.WriteString(agent.Prompt)

	if agent.CanSpawn() {
		b.WriteString("\n\n## Requesting child tasks\n")
		b.WriteString("To request a follow-up task, emit a fenced block:\n\n")
		b.WriteString("```spawn\n{\"agent\": \"<agent path>\", \"message\": \"<task>\", \"context\": {}}\n```\n\n")
		b.WriteString("Spawnable targets:\n")
		if len(agent.Spawns) > 0 {
			for _, rule := range agent.Spawns {
				if rule.Condition != "" {
					fmt.Fprintf(&b, "- %s (when: %s)\n", rule.Target, rule.Condition)
				} else {
					fmt.Fprintf(&b, "- %s\n", rule.Target)
				}
			}
		} else {
			for _, pattern := range agent.Permissions.Spawn {
				fmt.Fprintf(&b, "- %s\n", pattern)
			}
		}
	}

	// Omitting this enumeration is the most common cause of out-of-scope
	// writes, so it is always present for write-restricted agents.
	if agent.WriteRestricted() {
		b.WriteString("\n## Write access\n")
		if len(agent.Permissions.Write) == 0 {
			b.WriteString("You may not write to any file.\n")
		} else {
			b.WriteString("You may only write to files matching:\n")
			for _, pattern := range agent.Permissions.Write {
				fmt.Fprintf(&b, "- %s\n", pattern)
			}
		}
	}

	if len(item.Context.Inherited) > 0 {
		b.WriteString("\n## Inherited context\n")
		for _, k := range sortedKeys(item.Context.Inherited) {
			fmt.Fprintf(&b, "%s: %s\n", k, item.Context.Inherited[k])
		}
	}

	if len(item.Context.Files) > 0 {
		b.WriteString("\n## Triggering files\n")
		for _, f := range item.Context.Files {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}

	if bundle != nil && len(bundle.Entries) > 0 {
		b.WriteString("\n## Vault context\n")
		for _, entry := range bundle.Entries {
			fmt.Fprintf(&b, "\n### %s\n%s\n", entry.Path, entry.Content)
		}
	}

	return b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
