// Package gemini implements the provider port over the official genai SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	genai "google.golang.org/genai"

	"github.com/mito-ds/mito-ai/internal/domain/message"
	"github.com/mito-ds/mito-ai/internal/port/provider"
)

// Adapter calls the Gemini API with a user-supplied key.
type Adapter struct {
	client *genai.Client
	model  string
}

// New creates a Gemini adapter.
func New(ctx context.Context, apiKey, model string) (*Adapter, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Adapter{client: client, model: model}, nil
}

// Capabilities implements provider.Adapter.
func (a *Adapter) Capabilities() provider.Capabilities {
	return provider.Capabilities{
		Provider:               "gemini",
		Model:                  a.model,
		CanStream:              true,
		SupportsResponseFormat: true,
	}
}

// Complete implements provider.Adapter.
func (a *Adapter) Complete(ctx context.Context, req provider.Request) (string, error) {
	contents, cfg := a.convert(req)
	resp, err := a.client.Models.GenerateContent(ctx, a.pick(req), contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	text, err := firstText(resp)
	if err != nil {
		return "", err
	}
	return text, nil
}

// Stream implements provider.Adapter.
func (a *Adapter) Stream(ctx context.Context, req provider.Request, emit provider.EmitFunc) (string, error) {
	contents, cfg := a.convert(req)

	var full strings.Builder
	for resp, err := range a.client.Models.GenerateContentStream(ctx, a.pick(req), contents, cfg) {
		if err != nil {
			return "", fmt.Errorf("gemini stream: %w", err)
		}
		text, err := firstText(resp)
		if err != nil {
			continue
		}
		if text == "" {
			continue
		}
		full.WriteString(text)
		if err := emit(text); err != nil {
			return "", err
		}
	}
	return full.String(), nil
}

func (a *Adapter) pick(req provider.Request) string {
	if req.Model != "" {
		return req.Model
	}
	return a.model
}

// convert maps provider messages onto genai contents. System turns become
// the system instruction; assistant turns use the "model" role. Structured
// requests ask for application/json output with the schema quoted in an
// extra instruction, since the SDK's typed Schema cannot carry arbitrary
// $defs-bearing JSON schemas.
func (a *Adapter) convert(req provider.Request) ([]*genai.Content, *genai.GenerateContentConfig) {
	cfg := &genai.GenerateContentConfig{}
	var contents []*genai.Content

	var system strings.Builder
	for _, m := range req.Messages {
		if m.Role == message.RoleSystem {
			if system.Len() > 0 {
				system.WriteString("\n\n")
			}
			system.WriteString(m.Content)
			continue
		}
		role := "user"
		if m.Role == message.RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}

	if req.ResponseFormat != nil && len(req.ResponseFormat.Schema) > 0 {
		cfg.ResponseMIMEType = "application/json"
		if system.Len() > 0 {
			system.WriteString("\n\n")
		}
		system.WriteString("Respond with JSON matching exactly this schema, with no extra keys:\n")
		system.Write(req.ResponseFormat.Schema)
	}

	if system.Len() > 0 {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system.String()}}}
	}
	return contents, cfg
}

func firstText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("gemini response has no candidates")
	}
	return resp.Candidates[0].Content.Parts[0].Text, nil
}
