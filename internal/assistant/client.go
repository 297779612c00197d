// Package assistant drives predictions through a hosted assistant's
// threads and runs API.
package assistant

import "context"

// Run states reported by the assistant backend.
const (
	StatusQueued     = "queued"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// Run is a single processing pass of the assistant over a thread.
type Run struct {
	ID     string
	Status string
}

// Message is one thread message reduced to its first text block.
type Message struct {
	Role string
	Text string
	// Annotations holds the literal substrings of Text that the backend
	// marked as citations.
	Annotations []string
}

// Client is the subset of the assistants API used by the orchestrator.
type Client interface {
	// CreateThread opens a new conversation and returns its identifier.
	CreateThread(ctx context.Context) (string, error)

	// CreateMessage appends a user message to the thread.
	CreateMessage(ctx context.Context, threadID, content string) error

	// CreateRun starts processing the thread with the given assistant.
	CreateRun(ctx context.Context, threadID, assistantID string) (Run, error)

	// RetrieveRun fetches the current state of a run.
	RetrieveRun(ctx context.Context, threadID, runID string) (Run, error)

	// ListMessages returns the thread's messages, newest first.
	ListMessages(ctx context.Context, threadID string) ([]Message, error)
}
