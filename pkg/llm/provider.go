// Package llm defines the generation-provider collaborator. The core
// treats the provider as an opaque asynchronous function: one invocation,
// one event stream, a final result.
package llm

import "context"

// EventType classifies a stream event.
type EventType string

const (
	EventText   EventType = "text"
	EventResult EventType = "result"
	EventError  EventType = "error"
)

// Event is one element of the provider's streamed response.
type Event struct {
	Type    EventType
	Content string
	Err     error
}

// Invocation carries everything a provider needs for one execution.
type Invocation struct {
	Prompt         string   // system prompt
	Message        string   // task message
	Model          string   // model selector, provider-interpreted
	Tools          []string // resolved tool allowlist
	WorkDir        string   // vault root, used as working directory
	PermissionMode string   // provider-side permission handling hint
}

// Provider invokes text generation and streams the response. The stream
// terminates with EventResult (full response text) or EventError.
type Provider interface {
	Invoke(ctx context.Context, inv *Invocation) (<-chan Event, error)
}
