package domain

import "errors"

// Error taxonomy. Security errors surface to the caller; capacity errors
// are fatal only to the offending call.
var (
	// ErrNotAnAgent marks a document lacking the agent metadata block.
	// A directory scan skips it; a direct load hard-fails.
	ErrNotAnAgent = errors.New("document is not an agent definition")

	// ErrPathEscapesRoot marks a path resolving outside the vault root.
	// Always fatal to the operation that produced it.
	ErrPathEscapesRoot = errors.New("path escapes vault root")

	// ErrMaxDepthExceeded rejects an enqueue whose depth would reach the
	// configured recursion ceiling. Nothing is created.
	ErrMaxDepthExceeded = errors.New("max spawn depth exceeded")

	// ErrQueueFull rejects an enqueue when the queue limit is reached.
	ErrQueueFull = errors.New("queue is full")
)
