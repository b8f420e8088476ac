// Package provider defines the uniform adapter port over LLM providers.
// All provider-specific quirks (structured output encoding, streaming
// callback shapes, per-provider timeouts) live behind this interface.
package provider

import (
	"context"

	"github.com/mito-ds/mito-ai/internal/domain/message"
	"github.com/mito-ds/mito-ai/internal/domain/schema"
)

// Capabilities describes what the active adapter can do. The model field
// always reports the effective model; for Azure this is the deployment model
// regardless of what the client requested.
type Capabilities struct {
	Provider               string
	Model                  string
	CanStream              bool
	SupportsResponseFormat bool
}

// Request is one completion call. Model may be overridden by the adapter
// (Azure ignores it; inline completion pins the fast model upstream).
type Request struct {
	Messages       []message.Message
	Model          string
	ResponseFormat *schema.FormatInfo
}

// EmitFunc receives one streamed delta. Returning an error aborts the stream.
type EmitFunc func(delta string) error

// Adapter is the uniform provider contract.
type Adapter interface {
	// Capabilities returns the static capability descriptor.
	Capabilities() Capabilities

	// Complete performs a non-streaming completion and returns the full text.
	Complete(ctx context.Context, req Request) (string, error)

	// Stream performs a streaming completion, invoking emit per delta, and
	// returns the concatenated full text so the caller can persist it.
	Stream(ctx context.Context, req Request, emit EmitFunc) (string, error)
}

// RefusalError marks a 4xx provider rejection: never retried and surfaced
// verbatim.
type RefusalError struct {
	StatusCode int
	Message    string
}

func (e *RefusalError) Error() string { return e.Message }
