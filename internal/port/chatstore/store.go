// Package chatstore defines the thread persistence port.
package chatstore

import (
	"github.com/mito-ds/mito-ai/internal/domain/message"
)

// Store is the port over the persistent chat thread collection. All methods
// are safe for concurrent use; implementations serialize mutations and write
// atomically so persisted history never interleaves two appends.
type Store interface {
	// CurrentThreadID returns the id of the most recently touched thread,
	// creating one if none exist.
	CurrentThreadID() string

	// CreateNewThread starts a fresh empty thread, persists it, and makes it
	// current.
	CreateNewThread() string

	// ThreadName returns the display name of the current thread ("" until
	// lazily assigned).
	ThreadName() string

	// Append adds one (llm, display) turn pair to the current thread and
	// persists. The name is lazily generated once a user and assistant turn
	// both exist.
	Append(llmMsg, displayMsg message.Message)

	// Truncate cuts both histories of the current thread to n turns.
	Truncate(n int)

	// Histories returns snapshot copies of (llm, display) history for the
	// current thread.
	Histories() (llm, display []message.Message)

	// ClearHistories starts a new thread; old threads stay on disk.
	ClearHistories()
}
