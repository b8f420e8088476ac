// Package completion defines the websocket message envelopes exchanged with
// the notebook client: typed requests tagged by "type", reply/chunk/error
// envelopes, and the CompletionError failure shape.
package completion

import (
	"encoding/json"
	"fmt"

	"github.com/mito-ds/mito-ai/internal/domain/schema"
)

// RequestType tags an inbound client message.
type RequestType string

// Known request types. Parsers reject anything else.
const (
	TypeChat                RequestType = "chat"
	TypeInlineCompletion    RequestType = "inline_completion"
	TypeSmartDebug          RequestType = "smart_debug"
	TypeCodeExplain         RequestType = "code_explain"
	TypeAgentExecution      RequestType = "agent_execution"
	TypeAgentAutoErrorFixup RequestType = "agent_auto_error_fixup"
	TypeChatNameGeneration  RequestType = "chat_name_generation"
	TypeAICapabilities      RequestType = "ai_capabilities"
	TypeStartNewChat        RequestType = "start_new_chat"
	TypeFetchHistory        RequestType = "fetch_history"
)

// Metadata is the task-specific payload of a request. Only the fields the
// core reads are modeled; providers of richer clients may send more.
type Metadata struct {
	Prompt             string             `json:"prompt,omitempty"`
	DisplayMessage     string             `json:"display_message,omitempty"`
	Index              *int               `json:"index,omitempty"`
	ResponseFormatInfo *schema.FormatInfo `json:"response_format_info,omitempty"`
}

// Request is a parsed client message.
type Request struct {
	Type      RequestType `json:"type"`
	MessageID string      `json:"message_id"`
	Stream    bool        `json:"stream,omitempty"`
	Metadata  Metadata    `json:"metadata"`
}

// ParseRequest decodes a raw websocket frame into a Request. Unknown types,
// frames without a message_id (for types that need one), and completion
// frames without a prompt are rejected.
func ParseRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("parse request: %w", err)
	}
	switch req.Type {
	case TypeChat, TypeInlineCompletion, TypeSmartDebug, TypeCodeExplain,
		TypeAgentExecution, TypeAgentAutoErrorFixup, TypeChatNameGeneration,
		TypeAICapabilities, TypeStartNewChat, TypeFetchHistory:
	default:
		return nil, fmt.Errorf("parse request: unknown type %q", req.Type)
	}
	if req.MessageID == "" && req.Type != TypeStartNewChat {
		return nil, fmt.Errorf("parse request: missing message_id for %q", req.Type)
	}
	if req.IsCompletionType() && req.Metadata.Prompt == "" {
		return nil, fmt.Errorf("parse request: missing metadata prompt for %q", req.Type)
	}
	return &req, nil
}

// IsCompletionType reports whether the request expects a provider call.
func (r *Request) IsCompletionType() bool {
	switch r.Type {
	case TypeChat, TypeInlineCompletion, TypeSmartDebug, TypeCodeExplain,
		TypeAgentExecution, TypeAgentAutoErrorFixup, TypeChatNameGeneration:
		return true
	}
	return false
}

// CountsAsChat reports whether the request draws on the chat quota counter.
// Inline completion has its own counter and chat-name generation is an
// auxiliary call that never draws quota.
func (r *Request) CountsAsChat() bool {
	return r.IsCompletionType() &&
		r.Type != TypeInlineCompletion &&
		r.Type != TypeChatNameGeneration
}
