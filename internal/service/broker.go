package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	otelx "github.com/mito-ds/mito-ai/internal/adapter/otel"
	"github.com/mito-ds/mito-ai/internal/adapter/relay"
	"github.com/mito-ds/mito-ai/internal/domain/completion"
	"github.com/mito-ds/mito-ai/internal/domain/message"
	"github.com/mito-ds/mito-ai/internal/domain/schema"
	"github.com/mito-ds/mito-ai/internal/logger"
	"github.com/mito-ds/mito-ai/internal/port/chatstore"
	"github.com/mito-ds/mito-ai/internal/port/provider"
	"github.com/mito-ds/mito-ai/internal/prompt"
	"github.com/mito-ds/mito-ai/internal/quota"
)

// SendFunc delivers one reply frame to the client. Implementations serialize
// writes; a returned error means the connection is gone and the current task
// should stop.
type SendFunc func(v any) error

// InlineCache de-duplicates identical inline completion requests. Both
// methods are non-blocking best-effort.
type InlineCache interface {
	Get(key string) (string, bool)
	Set(key, value string)
}

// Broker coordinates parsing, prompt history, quota, the provider call, and
// persistence for a single-tenant connection.
type Broker struct {
	route       Route
	store       chatstore.Store
	gate        *quota.Gate
	telemetry   *Telemetry
	inlineCache InlineCache
	model       string
	inlineModel string
	timeout     time.Duration
	toolTimeout time.Duration
	metrics     *otelx.Metrics
	log         *slog.Logger
}

// WithMetrics attaches metric instruments. A nil receiver-side metrics set
// keeps all recording sites no-ops.
func (b *Broker) WithMetrics(m *otelx.Metrics) *Broker {
	b.metrics = m
	return b
}

// NewBroker creates a Broker. telemetry and inlineCache may be nil. timeout
// bounds plain completions; toolTimeout bounds structured ones and falls back
// to timeout when zero.
func NewBroker(route Route, store chatstore.Store, gate *quota.Gate, telemetry *Telemetry, inlineCache InlineCache, model, inlineModel string, timeout, toolTimeout time.Duration, log *slog.Logger) *Broker {
	if log == nil {
		log = slog.Default()
	}
	if toolTimeout <= 0 {
		toolTimeout = timeout
	}
	return &Broker{
		route:       route,
		store:       store,
		gate:        gate,
		telemetry:   telemetry,
		inlineCache: inlineCache,
		model:       model,
		inlineModel: inlineModel,
		timeout:     timeout,
		toolTimeout: toolTimeout,
		log:         log,
	}
}

// Capabilities returns the frame pushed on connection open and in answer to
// ai_capabilities requests.
func (b *Broker) Capabilities() completion.CapabilitiesReply {
	caps := b.route.Adapter.Capabilities()
	return completion.CapabilitiesReply{
		Type:     "ai_capabilities",
		Provider: caps.Provider,
		Configuration: completion.CapabilitiesConfig{
			Model:                  caps.Model,
			CanStream:              caps.CanStream,
			SupportsResponseFormat: caps.SupportsResponseFormat,
		},
	}
}

// Handle processes one inbound frame. Unparseable frames are logged and
// dropped; everything else produces at least one reply with the request's
// message_id echoed as parent_id.
func (b *Broker) Handle(ctx context.Context, raw []byte, send SendFunc) {
	req, err := completion.ParseRequest(raw)
	if err != nil {
		b.log.Warn("dropping invalid request", "error", err)
		return
	}
	ctx = logger.WithMessageID(ctx, req.MessageID)

	switch req.Type {
	case completion.TypeStartNewChat:
		b.store.ClearHistories()
		return

	case completion.TypeFetchHistory:
		_, display := b.store.Histories()
		_ = send(completion.HistoryReply{
			Type:     "reply",
			ParentID: req.MessageID,
			ThreadID: b.store.CurrentThreadID(),
			Name:     b.store.ThreadName(),
			Items:    display,
		})
		return

	case completion.TypeAICapabilities:
		_ = send(b.Capabilities())
		return

	default:
		b.handleCompletion(ctx, req, send)
	}
}

// handleCompletion serves every provider-backed request type.
func (b *Broker) handleCompletion(ctx context.Context, req *completion.Request, send SendFunc) {
	if err := b.checkQuota(req); err != nil {
		b.fail(ctx, req, send, err, false)
		return
	}

	msgs, persist := b.buildMessages(req)

	if req.Type == completion.TypeInlineCompletion && b.inlineCache != nil {
		if cached, ok := b.inlineCache.Get(b.inlineKey(req)); ok {
			b.deliver(req, send, cached)
			return
		}
	}

	preq := provider.Request{
		Messages:       msgs,
		Model:          b.modelFor(req),
		ResponseFormat: req.Metadata.ResponseFormatInfo,
	}

	// Structured requests get the longer tool-call budget.
	deadline := b.timeout
	if rf := req.Metadata.ResponseFormatInfo; rf != nil && len(rf.Schema) > 0 {
		deadline = b.toolTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	caps := b.route.Adapter.Capabilities()
	streaming := req.Stream && caps.CanStream

	ctx, span := otelx.StartCompletionSpan(ctx, string(req.Type), req.MessageID, caps.Provider)
	defer span.End()
	started := time.Now()

	var text string
	var err error
	var sentChunks bool
	if streaming {
		text, err = b.route.Adapter.Stream(ctx, preq, func(delta string) error {
			sentChunks = true
			return send(completion.NewChunk(req.MessageID, delta))
		})
	} else {
		text, err = b.route.Adapter.Complete(ctx, preq)
	}
	if b.metrics != nil {
		b.metrics.ProviderLatency.Record(ctx, time.Since(started).Seconds())
	}

	if err != nil {
		b.fail(ctx, req, send, err, sentChunks)
		return
	}

	// Structured requests must conform before anything is persisted.
	if rf := req.Metadata.ResponseFormatInfo; rf != nil && len(rf.Schema) > 0 {
		if verr := schema.Validate(rf.Schema, text); verr != nil {
			b.fail(ctx, req, send, &completion.Error{
				ErrorType: string(completion.KindSchemaCoercion),
				Title:     "The AI returned output that does not match the expected format.",
				Traceback: verr.Error(),
				Hint:      "Try the request again; structured output occasionally fails.",
			}, sentChunks)
			return
		}
	}

	if persist {
		b.persistAssistantTurn(req, text)
	}
	b.recordUsage(req)

	if req.Type == completion.TypeInlineCompletion && b.inlineCache != nil {
		b.inlineCache.Set(b.inlineKey(req), text)
	}

	if streaming {
		_ = send(completion.DoneChunk(req.MessageID))
	} else {
		_ = send(completion.NewReply(req.MessageID, text))
	}

	if b.metrics != nil {
		b.metrics.CompletionsTotal.Add(ctx, 1)
	}
	if b.telemetry != nil {
		b.telemetry.Record(ctx, "completion_success", map[string]any{
			"type":     string(req.Type),
			"streamed": streaming,
		})
	}
}

// deliver sends an already-known completion (a cache hit), honoring the
// streaming contract: one content chunk plus the terminal chunk.
func (b *Broker) deliver(req *completion.Request, send SendFunc, text string) {
	caps := b.route.Adapter.Capabilities()
	if req.Stream && caps.CanStream {
		if err := send(completion.NewChunk(req.MessageID, text)); err != nil {
			return
		}
		_ = send(completion.DoneChunk(req.MessageID))
		return
	}
	_ = send(completion.NewReply(req.MessageID, text))
}

// buildMessages assembles the provider message list for the request and
// reports whether the exchange belongs in the thread store.
func (b *Broker) buildMessages(req *completion.Request) (msgs []message.Message, persist bool) {
	switch req.Type {
	case completion.TypeInlineCompletion, completion.TypeChatNameGeneration:
		// One-shot; never persisted.
		return []message.Message{message.User(req.Metadata.Prompt)}, false
	}

	if req.Metadata.Index != nil {
		b.store.Truncate(*req.Metadata.Index)
	}

	llmMsg := message.User(req.Metadata.Prompt)
	displayText := req.Metadata.DisplayMessage
	if displayText == "" {
		displayText = req.Metadata.Prompt
	}
	b.store.Append(llmMsg, message.User(displayText))

	llm, _ := b.store.Histories()
	return llm, true
}

// persistAssistantTurn stores the assistant reply. For smart-debug the
// display variant keeps only the SOLUTION section; the llm variant keeps the
// full text so later turns see the whole analysis.
func (b *Broker) persistAssistantTurn(req *completion.Request, text string) {
	displayText := text
	if req.Type == completion.TypeSmartDebug {
		displayText = prompt.SolutionOnly(text)
	}
	b.store.Append(message.Assistant(text), message.Assistant(displayText))
}

func (b *Broker) checkQuota(req *completion.Request) error {
	if b.route.UserKey || b.gate == nil {
		return nil
	}
	if req.CountsAsChat() {
		return b.gate.CheckChat()
	}
	if req.Type == completion.TypeInlineCompletion {
		return b.gate.CheckAutocomplete()
	}
	return nil
}

func (b *Broker) recordUsage(req *completion.Request) {
	if b.route.UserKey || b.gate == nil {
		return
	}
	if req.CountsAsChat() {
		b.gate.RecordChat()
	} else if req.Type == completion.TypeInlineCompletion {
		b.gate.RecordAutocomplete()
	}
}

func (b *Broker) modelFor(req *completion.Request) string {
	// Inline completion always uses the dedicated small/fast model.
	if req.Type == completion.TypeInlineCompletion {
		return b.inlineModel
	}
	return b.model
}

func (b *Broker) inlineKey(req *completion.Request) string {
	return b.inlineModel + "\x00" + req.Metadata.Prompt
}

// fail converts err into the client error shape and emits it: as the error
// of a terminal chunk when a stream is already under way, as an error reply
// otherwise, and always additionally as a standalone notification.
func (b *Broker) fail(ctx context.Context, req *completion.Request, send SendFunc, err error, midStream bool) {
	cerr := b.toClientError(err)
	b.log.Error("completion failed",
		"type", string(req.Type),
		"message_id", logger.MessageID(ctx),
		"error_type", cerr.ErrorType,
		"error", err)
	if b.metrics != nil {
		b.metrics.CompletionErrors.Add(context.Background(), 1)
	}

	if midStream {
		chunk := completion.DoneChunk(req.MessageID)
		chunk.Error = cerr
		_ = send(chunk)
	} else {
		_ = send(completion.ErrorReply(req.MessageID, cerr))
	}
	_ = send(cerr.Notify())

	if b.telemetry != nil {
		b.telemetry.Record(context.Background(), "completion_error", map[string]any{
			"type":       string(req.Type),
			"error_type": cerr.ErrorType,
		})
	}
}

// toClientError maps internal failures onto the client error taxonomy with a
// hint keyed to the provider identity and key presence.
func (b *Broker) toClientError(err error) *completion.Error {
	var cerr *completion.Error
	if errors.As(err, &cerr) {
		return cerr
	}

	providerName := b.route.Adapter.Capabilities().Provider

	var exceeded *quota.ErrQuotaExceeded
	if errors.As(err, &exceeded) {
		return &completion.Error{
			ErrorType: string(completion.KindQuotaExceeded),
			Title:     fmt.Sprintf("You've used all %d free %s completions for this month.", exceeded.Cap, exceeded.Kind),
			Hint:      "Upgrade to Mito Pro for unlimited completions, or set your own provider API key to bypass the free tier.",
		}
	}
	if errors.Is(err, relay.ErrServerQuota) {
		return &completion.Error{
			ErrorType: string(completion.KindQuotaExceeded),
			Title:     "The Mito server free tier limit was reached.",
			Hint:      "Supply your own provider API key (for example OPENAI_API_KEY) or upgrade to Mito Pro.",
		}
	}

	var refusal *provider.RefusalError
	if errors.As(err, &refusal) {
		hint := fmt.Sprintf("Check your %s API key and model configuration.", providerName)
		if !b.route.UserKey {
			hint = "Supply your own provider API key or upgrade to Mito Pro."
		}
		return &completion.Error{
			ErrorType: string(completion.KindProviderRefusal),
			Title:     fmt.Sprintf("%s rejected the request.", providerName),
			Traceback: refusal.Message,
			Hint:      hint,
		}
	}

	return &completion.Error{
		ErrorType: string(completion.KindProviderTransport),
		Title:     fmt.Sprintf("Could not reach %s.", providerName),
		Traceback: err.Error(),
		Hint:      "Check your network connection and try again.",
	}
}
