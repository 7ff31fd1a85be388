package engine

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/mlindgren/vaultagent/internal/domain"
)

// Spawn directives arrive embedded in free-form generation output, so they
// are parsed defensively into a tagged ok/invalid result and invalid ones
// are dropped by the caller.

var spawnBlockPattern = regexp.MustCompile("(?s)```spawn\\s*\\n(.*?)```")

// spawnPayload is the structured body of a fenced spawn block.
type spawnPayload struct {
	Agent   string            `json:"agent"`
	Message string            `json:"message"`
	Context map[string]string `json:"context"`
}

// ParsedDirective is one spawn block, valid or not.
type ParsedDirective struct {
	Request domain.SpawnRequest
	Err     error
}

// Valid reports whether the directive parsed into a usable request.
func (d ParsedDirective) Valid() bool {
	return d.Err == nil
}

// ParseSpawnDirectives extracts every fenced spawn block from a result.
// Order follows encounter order in the text.
func ParseSpawnDirectives(text string) []ParsedDirective {
	var out []ParsedDirective
	for _, m := range spawnBlockPattern.FindAllStringSubmatch(text, -1) {
		out = append(out, parseDirective(m[1]))
	}
	return out
}

func parseDirective(body string) ParsedDirective {
	var payload spawnPayload
	if err := json.Unmarshal([]byte(strings.TrimSpace(body)), &payload); err != nil {
		return ParsedDirective{Err: fmt.Errorf("malformed spawn payload: %w", err)}
	}
	if payload.Agent == "" {
		return ParsedDirective{Err: fmt.Errorf("spawn payload missing agent target")}
	}
	return ParsedDirective{Request: domain.SpawnRequest{
		Target:  payload.Agent,
		Message: payload.Message,
		Context: payload.Context,
	}}
}
