// Package azureoai implements the provider port over an Azure OpenAI
// deployment. Azure tenants run a single deployment, so the client-requested
// model is ignored and replaced by the deployment model; the capabilities
// descriptor reports the effective model so clients can hide model pickers.
package azureoai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mito-ds/mito-ai/internal/adapter/openaichat"
	"github.com/mito-ds/mito-ai/internal/port/provider"
	"github.com/mito-ds/mito-ai/internal/resilience"
)

// Settings is the full Azure OpenAI configuration. All four fields are
// required for the adapter to be selected.
type Settings struct {
	APIKey     string
	Endpoint   string
	Model      string // deployment model name
	APIVersion string
}

// Configured reports whether every required field is present.
func (s Settings) Configured() bool {
	return s.APIKey != "" && s.Endpoint != "" && s.Model != "" && s.APIVersion != ""
}

// Adapter calls an Azure OpenAI deployment.
type Adapter struct {
	client *openaichat.Client
	model  string
}

// New creates an Azure OpenAI adapter.
func New(s Settings, timeout time.Duration, breaker *resilience.Breaker) *Adapter {
	url := fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		strings.TrimRight(s.Endpoint, "/"), s.Model, s.APIVersion)
	c := openaichat.NewClient(url, openaichat.HeaderAuth("api-key", s.APIKey), timeout)
	if breaker != nil {
		c.SetBreaker(breaker)
	}
	return &Adapter{client: c, model: s.Model}
}

// Capabilities implements provider.Adapter. Model reports the deployment
// model, which is what every request is actually served with.
func (a *Adapter) Capabilities() provider.Capabilities {
	return provider.Capabilities{
		Provider:               "azure-openai",
		Model:                  a.model,
		CanStream:              true,
		SupportsResponseFormat: true,
	}
}

// Complete implements provider.Adapter. The requested model is ignored.
func (a *Adapter) Complete(ctx context.Context, req provider.Request) (string, error) {
	return a.client.Complete(ctx, a.wire(req))
}

// Stream implements provider.Adapter. The requested model is ignored.
func (a *Adapter) Stream(ctx context.Context, req provider.Request, emit provider.EmitFunc) (string, error) {
	return a.client.Stream(ctx, a.wire(req), emit)
}

func (a *Adapter) wire(req provider.Request) openaichat.Request {
	return openaichat.Request{
		// The deployment is addressed by URL; Azure rejects a body model
		// that differs from the deployment, so it is always the deployment
		// model here.
		Model:          a.model,
		Messages:       req.Messages,
		ResponseFormat: req.ResponseFormat,
	}
}
