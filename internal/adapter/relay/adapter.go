// Package relay implements the provider port over the Mito-hosted proxy
// endpoint, used when the user has no personal provider key. Requests
// through the relay are subject to the free-tier quota; a 403 from the relay
// means the server-side cap was hit.
package relay

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/mito-ds/mito-ai/internal/adapter/openaichat"
	"github.com/mito-ds/mito-ai/internal/port/provider"
	"github.com/mito-ds/mito-ai/internal/resilience"
)

// Adapter calls the Mito relay.
type Adapter struct {
	client *openaichat.Client
	model  string
}

// identify tags each request with the caller's identity for relay-side
// accounting; the relay requires no key.
func identify(userID, email string) openaichat.AuthFunc {
	return func(r *http.Request) {
		r.Header.Set("X-Mito-User-Id", userID)
		if email != "" {
			r.Header.Set("X-Mito-User-Email", email)
		}
	}
}

// New creates a relay adapter. userID and email identify the caller to the
// relay for its own accounting.
func New(url, model, userID, email string, timeout time.Duration, breaker *resilience.Breaker) *Adapter {
	c := openaichat.NewClient(url, identify(userID, email), timeout)
	if breaker != nil {
		c.SetBreaker(breaker)
	}
	return &Adapter{client: c, model: model}
}

// Capabilities implements provider.Adapter.
func (a *Adapter) Capabilities() provider.Capabilities {
	return provider.Capabilities{
		Provider:               "mito-server",
		Model:                  a.model,
		CanStream:              true,
		SupportsResponseFormat: true,
	}
}

// Complete implements provider.Adapter.
func (a *Adapter) Complete(ctx context.Context, req provider.Request) (string, error) {
	text, err := a.client.Complete(ctx, a.wire(req))
	return text, relayError(err)
}

// Stream implements provider.Adapter.
func (a *Adapter) Stream(ctx context.Context, req provider.Request, emit provider.EmitFunc) (string, error) {
	text, err := a.client.Stream(ctx, a.wire(req), emit)
	return text, relayError(err)
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

// relayError maps a relay 403 onto ErrServerQuota so the broker can attach
// the upgrade hint.
func relayError(err error) error {
	var refusal *provider.RefusalError
	if errors.As(err, &refusal) && refusal.StatusCode == 403 {
		return ErrServerQuota
	}
	return err
}

// ErrServerQuota marks a relay-side free-tier rejection.
var ErrServerQuota = errors.New("mito server free tier limit reached")
