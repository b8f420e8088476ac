package completion

import "github.com/mito-ds/mito-ai/internal/domain/message"

// Item is one completion candidate inside a Reply.
type Item struct {
	Content      string `json:"content"`
	IsIncomplete *bool  `json:"isIncomplete,omitempty"`
	Token        string `json:"token,omitempty"`
	Error        *Error `json:"error,omitempty"`
}

// Reply is the non-streaming answer to a request. ParentID always echoes the
// originating message_id.
type Reply struct {
	Type     string `json:"type"`
	ParentID string `json:"parent_id"`
	Items    []Item `json:"items"`
	Error    *Error `json:"error,omitempty"`
}

// NewReply builds a single-item success reply.
func NewReply(parentID, content string) Reply {
	return Reply{
		Type:     "reply",
		ParentID: parentID,
		Items:    []Item{{Content: content}},
	}
}

// ErrorReply builds a reply carrying only an error.
func ErrorReply(parentID string, cerr *Error) Reply {
	return Reply{
		Type:     "reply",
		ParentID: parentID,
		Items:    []Item{{Error: cerr}},
		Error:    cerr,
	}
}

// ChunkDelta is the delta payload of a streaming chunk.
type ChunkDelta struct {
	Content      string `json:"content"`
	IsIncomplete bool   `json:"isIncomplete"`
}

// StreamChunk is one streamed delta. The terminal chunk carries empty
// content, IsIncomplete=false and Done=true, and is always last.
type StreamChunk struct {
	Type     string     `json:"type"`
	ParentID string     `json:"parent_id"`
	Chunk    ChunkDelta `json:"chunk"`
	Done     bool       `json:"done"`
	Error    *Error     `json:"error,omitempty"`
}

// NewChunk builds a non-terminal streaming chunk.
func NewChunk(parentID, content string) StreamChunk {
	return StreamChunk{
		Type:     "chunk",
		ParentID: parentID,
		Chunk:    ChunkDelta{Content: content, IsIncomplete: true},
	}
}

// DoneChunk builds the terminal chunk for a stream.
func DoneChunk(parentID string) StreamChunk {
	return StreamChunk{
		Type:     "chunk",
		ParentID: parentID,
		Done:     true,
	}
}

// HistoryReply carries the display history of the current thread.
type HistoryReply struct {
	Type     string            `json:"type"`
	ParentID string            `json:"parent_id"`
	ThreadID string            `json:"thread_id"`
	Name     string            `json:"name"`
	Items    []message.Message `json:"items"`
}

// CapabilitiesReply reports the active provider and its configuration.
type CapabilitiesReply struct {
	Type          string             `json:"type"`
	Provider      string             `json:"provider"`
	Configuration CapabilitiesConfig `json:"configuration"`
}

// CapabilitiesConfig is the configuration block of a capabilities reply.
type CapabilitiesConfig struct {
	Model                  string `json:"model"`
	CanStream              bool   `json:"can_stream"`
	SupportsResponseFormat bool   `json:"supports_response_format"`
}
