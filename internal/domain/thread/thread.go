// Package thread defines the persistent chat thread entity.
package thread

import (
	"time"

	"github.com/google/uuid"

	"github.com/mito-ds/mito-ai/internal/domain/message"
)

// Thread is an append-only conversation. LLMHistory holds the turns exactly
// as sent to the provider; DisplayHistory holds the turns as shown in the UI,
// which may have inner-thought sections redacted but always keeps the same
// role ordering.
type Thread struct {
	ID                string            `json:"thread_id"`
	CreationTS        float64           `json:"creation_ts"`
	LastInteractionTS float64           `json:"last_interaction_ts"`
	Name              string            `json:"name"`
	LLMHistory        []message.Message `json:"llm_history"`
	DisplayHistory    []message.Message `json:"display_history"`
}

// New creates an empty thread with a fresh UUID and both timestamps set to now.
func New() *Thread {
	now := epochSeconds()
	return &Thread{
		ID:                uuid.NewString(),
		CreationTS:        now,
		LastInteractionTS: now,
		LLMHistory:        []message.Message{},
		DisplayHistory:    []message.Message{},
	}
}

// Append adds one turn to both histories and bumps the interaction timestamp.
// The two variants must share a role; they may differ only in content.
func (t *Thread) Append(llmMsg, displayMsg message.Message) {
	t.LLMHistory = append(t.LLMHistory, llmMsg)
	t.DisplayHistory = append(t.DisplayHistory, displayMsg)
	t.LastInteractionTS = epochSeconds()
}

// Truncate cuts both histories to at most n turns. Used when the client edits
// a prior user message and regenerates everything downstream of it.
func (t *Thread) Truncate(n int) {
	if n < 0 {
		n = 0
	}
	if n < len(t.LLMHistory) {
		t.LLMHistory = t.LLMHistory[:n]
	}
	if n < len(t.DisplayHistory) {
		t.DisplayHistory = t.DisplayHistory[:n]
	}
	t.LastInteractionTS = epochSeconds()
}

// NeedsName reports whether the thread is still unnamed and has at least one
// visible user and assistant turn to derive a name from.
func (t *Thread) NeedsName() bool {
	if t.Name != "" {
		return false
	}
	var hasUser, hasAssistant bool
	for _, m := range t.DisplayHistory {
		switch m.Role {
		case message.RoleUser:
			hasUser = true
		case message.RoleAssistant:
			hasAssistant = true
		}
	}
	return hasUser && hasAssistant
}

// FirstExchange returns the first user and assistant turns of the display
// history, for chat-name generation. ok is false until both exist.
func (t *Thread) FirstExchange() (userMsg, assistantMsg message.Message, ok bool) {
	var haveUser, haveAssistant bool
	for _, m := range t.DisplayHistory {
		if m.Role == message.RoleUser && !haveUser {
			userMsg = m
			haveUser = true
		}
		if m.Role == message.RoleAssistant && !haveAssistant {
			assistantMsg = m
			haveAssistant = true
		}
		if haveUser && haveAssistant {
			return userMsg, assistantMsg, true
		}
	}
	return message.Message{}, message.Message{}, false
}

func epochSeconds() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}
