package anthropic

import "encoding/json"

// messagesRequest is the body of POST /v1/messages.
type messagesRequest struct {
	Model      string        `json:"model"`
	System     string        `json:"system,omitempty"`
	Messages   []wireMessage `json:"messages"`
	MaxTokens  int           `json:"max_tokens"`
	Stream     bool          `json:"stream,omitempty"`
	Tools      []tool        `json:"tools,omitempty"`
	ToolChoice *toolChoice   `json:"tool_choice,omitempty"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type toolChoice struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// messagesResponse is the non-streaming response shape.
type messagesResponse struct {
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
}

type contentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

// streamEvent is one SSE event in a streamed response. Only the fields the
// adapter reads are modeled.
type streamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
}
