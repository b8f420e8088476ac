// Package anthropic implements the provider port over the Anthropic Messages
// API. Structured output is expressed as a single-tool invocation: the
// response schema becomes the tool's input schema, tool_choice forces the
// call, and the tool-call arguments are returned as the completion string.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mito-ds/mito-ai/internal/adapter/openaichat"
	"github.com/mito-ds/mito-ai/internal/domain/message"
	"github.com/mito-ds/mito-ai/internal/port/provider"
	"github.com/mito-ds/mito-ai/internal/resilience"
)

const (
	messagesURL = "https://api.anthropic.com/v1/messages"
	apiVersion  = "2023-06-01"
	maxTokens   = 4096
)

// Adapter calls the Anthropic Messages API with a user-supplied key.
type Adapter struct {
	apiKey      string
	model       string
	baseURL     string
	httpClient  *http.Client
	timeout     time.Duration
	toolTimeout time.Duration
	breaker     *resilience.Breaker
}

// New creates an Anthropic adapter. timeout applies to plain completions;
// toolTimeout to the structured tool-call path. Deadlines are applied per
// request through the context, never on the http.Client, so the tool path is
// not capped by the shorter chat timeout.
func New(apiKey, model string, timeout, toolTimeout time.Duration, breaker *resilience.Breaker) *Adapter {
	return &Adapter{
		apiKey:      apiKey,
		model:       model,
		baseURL:     messagesURL,
		httpClient:  &http.Client{},
		timeout:     timeout,
		toolTimeout: toolTimeout,
		breaker:     breaker,
	}
}

// withDeadline bounds ctx by the path's own budget.
func (a *Adapter) withDeadline(ctx context.Context, structured bool) (context.Context, context.CancelFunc) {
	d := a.timeout
	if structured {
		d = a.toolTimeout
	}
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

// Capabilities implements provider.Adapter.
func (a *Adapter) Capabilities() provider.Capabilities {
	return provider.Capabilities{
		Provider:               "anthropic",
		Model:                  a.model,
		CanStream:              true,
		SupportsResponseFormat: true,
	}
}

// Complete implements provider.Adapter.
func (a *Adapter) Complete(ctx context.Context, req provider.Request) (string, error) {
	body, structured, err := a.buildBody(req, false)
	if err != nil {
		return "", err
	}

	ctx, cancel := a.withDeadline(ctx, structured)
	defer cancel()

	data, err := a.doRequest(ctx, body)
	if err != nil {
		return "", err
	}

	var resp messagesResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("unmarshal messages response: %w", err)
	}

	if structured {
		for _, block := range resp.Content {
			if block.Type == "tool_use" {
				return string(block.Input), nil
			}
		}
		return "", errors.New("anthropic response missing tool_use block")
	}

	var full bytes.Buffer
	for _, block := range resp.Content {
		if block.Type == "text" {
			full.WriteString(block.Text)
		}
	}
	return full.String(), nil
}

// Stream implements provider.Adapter. Structured requests fall back to the
// non-streaming tool path; the full tool arguments are emitted as a single
// delta so the caller's chunk contract still holds.
func (a *Adapter) Stream(ctx context.Context, req provider.Request, emit provider.EmitFunc) (string, error) {
	if req.ResponseFormat != nil && len(req.ResponseFormat.Schema) > 0 {
		text, err := a.Complete(ctx, req)
		if err != nil {
			return "", err
		}
		if err := emit(text); err != nil {
			return "", err
		}
		return text, nil
	}

	body, _, err := a.buildBody(req, true)
	if err != nil {
		return "", err
	}

	ctx, cancel := a.withDeadline(ctx, false)
	defer cancel()

	httpReq, err := a.newRequest(ctx, body)
	if err != nil {
		return "", err
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("anthropic stream: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return "", statusError(resp.StatusCode, data)
	}

	var full bytes.Buffer
	if err := openaichat.ReadSSE(resp.Body, func(data []byte) error {
		var ev streamEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil
		}
		if ev.Type != "content_block_delta" || ev.Delta.Type != "text_delta" {
			return nil
		}
		if ev.Delta.Text == "" {
			return nil
		}
		full.WriteString(ev.Delta.Text)
		return emit(ev.Delta.Text)
	}); err != nil {
		return "", err
	}

	return full.String(), nil
}

// buildBody assembles the request body. The system turn is hoisted into the
// top-level system field, as the Messages API requires.
func (a *Adapter) buildBody(req provider.Request, stream bool) (body []byte, structured bool, err error) {
	mr := messagesRequest{
		Model:     a.model,
		MaxTokens: maxTokens,
		Stream:    stream,
	}
	if req.Model != "" {
		mr.Model = req.Model
	}
	for _, m := range req.Messages {
		if m.Role == message.RoleSystem {
			if mr.System != "" {
				mr.System += "\n\n"
			}
			mr.System += m.Content
			continue
		}
		mr.Messages = append(mr.Messages, wireMessage{Role: string(m.Role), Content: m.Content})
	}

	if req.ResponseFormat != nil && len(req.ResponseFormat.Schema) > 0 {
		structured = true
		mr.Tools = []tool{{
			Name:        req.ResponseFormat.Name,
			InputSchema: req.ResponseFormat.Schema,
		}}
		mr.ToolChoice = &toolChoice{Type: "tool", Name: req.ResponseFormat.Name}
	}

	body, err = json.Marshal(mr)
	if err != nil {
		return nil, false, fmt.Errorf("marshal messages request: %w", err)
	}
	return body, structured, nil
}

func (a *Adapter) newRequest(ctx context.Context, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", apiVersion)
	return req, nil
}

// doRequest posts body with one retry on transient transport failure.
func (a *Adapter) doRequest(ctx context.Context, body []byte) ([]byte, error) {
	var result []byte
	call := func() error {
		req, err := a.newRequest(ctx, body)
		if err != nil {
			return err
		}
		resp, err := a.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("anthropic request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode >= 400 {
			return statusError(resp.StatusCode, data)
		}
		result = data
		return nil
	}

	run := func() error {
		err := call()
		if err != nil && isTransient(err) {
			err = call()
		}
		return err
	}

	if a.breaker != nil {
		if err := a.breaker.Execute(run); err != nil {
			return nil, err
		}
		return result, nil
	}
	if err := run(); err != nil {
		return nil, err
	}
	return result, nil
}

func statusError(code int, body []byte) error {
	msg := string(body)
	if msg == "" {
		msg = http.StatusText(code)
	}
	if code >= 400 && code < 500 {
		return &provider.RefusalError{StatusCode: code, Message: msg}
	}
	return fmt.Errorf("anthropic API error %d: %s", code, msg)
}

func isTransient(err error) bool {
	var refusal *provider.RefusalError
	if errors.As(err, &refusal) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}
