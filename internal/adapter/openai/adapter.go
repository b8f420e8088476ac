// Package openai implements the provider port over the OpenAI API.
package openai

import (
	"context"
	"time"

	"github.com/mito-ds/mito-ai/internal/adapter/openaichat"
	"github.com/mito-ds/mito-ai/internal/port/provider"
	"github.com/mito-ds/mito-ai/internal/resilience"
)

const completionsURL = "https://api.openai.com/v1/chat/completions"

// Adapter calls the OpenAI chat completions API with a user-supplied key.
type Adapter struct {
	client *openaichat.Client
	model  string
}

// New creates an OpenAI adapter for the given API key and default model.
func New(apiKey, model string, timeout time.Duration, breaker *resilience.Breaker) *Adapter {
	c := openaichat.NewClient(completionsURL, openaichat.BearerAuth(apiKey), timeout)
	if breaker != nil {
		c.SetBreaker(breaker)
	}
	return &Adapter{client: c, model: model}
}

// Capabilities implements provider.Adapter.
func (a *Adapter) Capabilities() provider.Capabilities {
	return provider.Capabilities{
		Provider:               "openai",
		Model:                  a.model,
		CanStream:              true,
		SupportsResponseFormat: true,
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
	model := req.Model
	if model == "" {
		model = a.model
	}
	return openaichat.Request{
		Model:          model,
		Messages:       req.Messages,
		ResponseFormat: req.ResponseFormat,
	}
}
