// Package ollama implements the provider port over a local Ollama server,
// using its OpenAI-compatible chat completions endpoint.
package ollama

import (
	"context"
	"strings"
	"time"

	"github.com/mito-ds/mito-ai/internal/adapter/openaichat"
	"github.com/mito-ds/mito-ai/internal/port/provider"
	"github.com/mito-ds/mito-ai/internal/resilience"
)

// Adapter calls a local Ollama server.
type Adapter struct {
	client *openaichat.Client
	model  string
}

// New creates an Ollama adapter. baseURL is the server root, e.g.
// http://localhost:11434; model is the OLLAMA_MODEL value.
func New(baseURL, model string, timeout time.Duration, breaker *resilience.Breaker) *Adapter {
	url := strings.TrimRight(baseURL, "/") + "/v1/chat/completions"
	c := openaichat.NewClient(url, openaichat.NoAuth(), timeout)
	if breaker != nil {
		c.SetBreaker(breaker)
	}
	return &Adapter{client: c, model: model}
}

// Capabilities implements provider.Adapter. Local models do not honor strict
// response formats, so structured output is not advertised.
func (a *Adapter) Capabilities() provider.Capabilities {
	return provider.Capabilities{
		Provider:               "ollama",
		Model:                  a.model,
		CanStream:              true,
		SupportsResponseFormat: false,
	}
}

// Complete implements provider.Adapter.
func (a *Adapter) Complete(ctx context.Context, req provider.Request) (string, error) {
	return a.client.Complete(ctx, a.wire(req))
}

// Stream implements provider.Adapter.
func (a *Adapter) Stream(ctx context.Context, req provider.Request, emit provider.EmitFunc) (string, error) {
	return a.client.Stream(ctx, a.wire(req), emit)
}

func (a *Adapter) wire(req provider.Request) openaichat.Request {
	// Always the configured local model; response formats are dropped since
	// the server ignores them.
	return openaichat.Request{
		Model:    a.model,
		Messages: req.Messages,
	}
}
