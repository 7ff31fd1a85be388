// Package permission implements glob-based access control for agent
// actions, plus the broker that suspends tool calls awaiting interactive
// approval.
package permission

import (
	"github.com/bmatcuk/doublestar/v4"

	"github.com/mlindgren/vaultagent/internal/domain"
)

// SelfToken matches only the agent's own backing document, so a
// "current document only" grant cannot be redirected to another target.
const SelfToken = "$self"

// MatchContext carries the evaluation context for self-reference checks.
type MatchContext struct {
	DocumentPath string
}

// Matches reports whether path is covered by any of the patterns.
// "*" matches anything; SelfToken matches only the context document;
// everything else is an anchored glob where a single star stops at path
// separators. Pure and side-effect free.
func Matches(path string, patterns []string, ctx *MatchContext) bool {
	for _, pattern := range patterns {
		switch pattern {
		case "*":
			return true
		case SelfToken:
			if ctx != nil && ctx.DocumentPath != "" && ctx.DocumentPath == path {
				return true
			}
		default:
			if ok, err := doublestar.Match(pattern, path); err == nil && ok {
				return true
			}
		}
	}
	return false
}

// HasPermission reports whether the agent may perform action on target.
// Consulted before every read, write, spawn and every honored spawn
// request; an empty pattern list denies.
func HasPermission(agent *domain.AgentDefinition, action domain.Action, target string) bool {
	patterns := agent.PermissionPatterns(action)
	if len(patterns) == 0 {
		return false
	}
	return Matches(target, patterns, &MatchContext{DocumentPath: agent.Path})
}

// ToolAllowed reports whether the agent's tool allowlist covers name.
func ToolAllowed(agent *domain.AgentDefinition, name string) bool {
	for _, t := range agent.Tools {
		if t == name {
			return true
		}
	}
	return false
}
