// Package openaichat provides an HTTP client for OpenAI-compatible chat
// completion APIs. It is shared by the OpenAI, Azure OpenAI, Ollama and Mito
// relay adapters, which differ only in base URL, auth header and model
// handling.
package openaichat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/mito-ds/mito-ai/internal/domain/message"
	"github.com/mito-ds/mito-ai/internal/domain/schema"
	"github.com/mito-ds/mito-ai/internal/port/provider"
	"github.com/mito-ds/mito-ai/internal/resilience"
)

// AuthFunc decorates an outgoing request with credentials.
type AuthFunc func(*http.Request)

// BearerAuth authorizes with "Authorization: Bearer <key>".
func BearerAuth(key string) AuthFunc {
	return func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+key)
	}
}

// HeaderAuth sets a single custom header, e.g. Azure's "api-key".
func HeaderAuth(name, value string) AuthFunc {
	return func(r *http.Request) {
		r.Header.Set(name, value)
	}
}

// NoAuth sends no credentials.
func NoAuth() AuthFunc {
	return func(*http.Request) {}
}

// Client talks to one OpenAI-compatible chat completions endpoint.
type Client struct {
	url        string // full chat completions URL
	auth       AuthFunc
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewClient creates a client for the given chat completions URL.
func NewClient(url string, auth AuthFunc, timeout time.Duration) *Client {
	return &Client{
		url:  url,
		auth: auth,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// Request is one chat completion call in wire shape.
type Request struct {
	Model          string
	Messages       []message.Message
	ResponseFormat *schema.FormatInfo
	Temperature    *float64
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wirePayload struct {
	Model          string          `json:"model,omitempty"`
	Messages       []wireMessage   `json:"messages"`
	Stream         bool            `json:"stream,omitempty"`
	Temperature    *float64        `json:"temperature,omitempty"`
	ResponseFormat json.RawMessage `json:"response_format,omitempty"`
}

// buildPayload assembles the wire body. Structured requests are encoded as a
// strict json_schema response format with additionalProperties:false on
// every object, including nested $defs.
func buildPayload(req Request, stream bool) ([]byte, error) {
	p := wirePayload{
		Model:       req.Model,
		Stream:      stream,
		Temperature: req.Temperature,
	}
	for _, m := range req.Messages {
		p.Messages = append(p.Messages, wireMessage{Role: string(m.Role), Content: m.Content})
	}

	if req.ResponseFormat != nil && len(req.ResponseFormat.Schema) > 0 {
		strict, err := schema.Strictify(req.ResponseFormat.Schema)
		if err != nil {
			return nil, err
		}
		rf, err := json.Marshal(map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   req.ResponseFormat.Name,
				"strict": true,
				"schema": json.RawMessage(strict),
			},
		})
		if err != nil {
			return nil, err
		}
		p.ResponseFormat = rf
	}

	return json.Marshal(p)
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete performs a non-streaming chat completion.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	body, err := buildPayload(req, false)
	if err != nil {
		return "", fmt.Errorf("chat payload: %w", err)
	}

	data, err := c.doRequest(ctx, body)
	if err != nil {
		return "", err
	}

	var resp completionResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("unmarshal completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// Stream performs a streaming chat completion, emitting each delta, and
// returns the concatenated full text.
func (c *Client) Stream(ctx context.Context, req Request, emit provider.EmitFunc) (string, error) {
	body, err := buildPayload(req, true)
	if err != nil {
		return "", fmt.Errorf("chat payload: %w", err)
	}

	httpReq, err := c.newRequest(ctx, body)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(httpReq) //nolint:bodyclose // closed below on both paths
	if err != nil {
		return "", fmt.Errorf("chat stream: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return "", statusError(resp.StatusCode, data)
	}

	var full bytes.Buffer
	if err := ReadSSE(resp.Body, func(data []byte) error {
		var chunk streamChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			// Tolerate unknown event shapes mid-stream.
			return nil
		}
		if len(chunk.Choices) == 0 {
			return nil
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			return nil
		}
		full.WriteString(delta)
		return emit(delta)
	}); err != nil {
		return "", err
	}

	return full.String(), nil
}

func (c *Client) newRequest(ctx context.Context, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.auth(req)
	return req, nil
}

// doRequest posts body and returns the response bytes. Transient transport
// failures are retried once; 4xx responses are never retried.
func (c *Client) doRequest(ctx context.Context, body []byte) ([]byte, error) {
	var result []byte
	call := func() error {
		req, err := c.newRequest(ctx, body)
		if err != nil {
			return err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
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

	if c.breaker != nil {
		if err := c.breaker.Execute(run); err != nil {
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
	return fmt.Errorf("provider API error %d: %s", code, msg)
}

// isTransient reports whether the error is a network-level failure worth one
// retry. Refusals and context cancellation never are.
func isTransient(err error) bool {
	var refusal *provider.RefusalError
	if errors.As(err, &refusal) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	// url.Error and io errors from a dropped connection arrive wrapped.
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF)
}
