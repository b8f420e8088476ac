// Package service wires the completion broker: provider selection, request
// handling, thread naming, and telemetry.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mito-ds/mito-ai/internal/adapter/anthropic"
	"github.com/mito-ds/mito-ai/internal/adapter/azureoai"
	"github.com/mito-ds/mito-ai/internal/adapter/gemini"
	"github.com/mito-ds/mito-ai/internal/adapter/ollama"
	"github.com/mito-ds/mito-ai/internal/adapter/openai"
	"github.com/mito-ds/mito-ai/internal/adapter/relay"
	"github.com/mito-ds/mito-ai/internal/config"
	"github.com/mito-ds/mito-ai/internal/port/provider"
	"github.com/mito-ds/mito-ai/internal/quota"
	"github.com/mito-ds/mito-ai/internal/resilience"
)

// Route describes the selected provider path.
type Route struct {
	Adapter provider.Adapter

	// UserKey is true when the user supplied their own credentials; such
	// requests bypass the quota gate entirely.
	UserKey bool
}

// SelectProvider applies the construction-time selection rules in order,
// first match wins:
//  1. fully configured Azure OpenAI + enterprise user
//  2. OLLAMA_MODEL set
//  3. OPENAI_API_KEY
//  4. CLAUDE_API_KEY
//  5. GEMINI_API_KEY
//  6. the Mito relay (quota-gated)
func SelectProvider(ctx context.Context, cfg *config.Config, gate *quota.Gate, log *slog.Logger) (Route, error) {
	p := cfg.Providers
	breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)

	azure := azureoai.Settings{
		APIKey:     p.AzureKey,
		Endpoint:   p.AzureEndpoint,
		Model:      p.AzureModel,
		APIVersion: p.AzureAPIVersion,
	}
	if azure.Configured() && gate.Enterprise() {
		log.Info("provider selected", "provider", "azure-openai", "model", azure.Model)
		return Route{Adapter: azureoai.New(azure, p.Timeout, breaker), UserKey: true}, nil
	}

	if p.OllamaModel != "" {
		log.Info("provider selected", "provider", "ollama", "model", p.OllamaModel)
		return Route{Adapter: ollama.New(p.OllamaURL, p.OllamaModel, p.Timeout, breaker), UserKey: true}, nil
	}

	if p.OpenAIKey != "" {
		log.Info("provider selected", "provider", "openai", "model", p.Model)
		return Route{Adapter: openai.New(p.OpenAIKey, p.Model, p.Timeout, breaker), UserKey: true}, nil
	}

	if p.ClaudeKey != "" {
		log.Info("provider selected", "provider", "anthropic", "model", p.Model)
		return Route{Adapter: anthropic.New(p.ClaudeKey, p.Model, p.Timeout, p.ToolTimeout, breaker), UserKey: true}, nil
	}

	if p.GeminiKey != "" {
		a, err := gemini.New(ctx, p.GeminiKey, p.Model)
		if err != nil {
			return Route{}, fmt.Errorf("select provider: %w", err)
		}
		log.Info("provider selected", "provider", "gemini", "model", p.Model)
		return Route{Adapter: a, UserKey: true}, nil
	}

	log.Info("provider selected", "provider", "mito-server", "model", p.Model)
	r := relay.New(p.RelayURL, p.Model, gate.UserID(), gate.UserEmail(), p.Timeout, breaker)
	return Route{Adapter: r, UserKey: false}, nil
}
