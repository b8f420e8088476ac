package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mito-ds/mito-ai/internal/domain/message"
	"github.com/mito-ds/mito-ai/internal/domain/schema"
	"github.com/mito-ds/mito-ai/internal/port/provider"
)

func newTestAdapter(url string) *Adapter {
	a := New("key-test", "claude-sonnet-4", 5*time.Second, 10*time.Second, nil)
	a.baseURL = url
	return a
}

func TestBuildBodyHoistsSystemTurn(t *testing.T) {
	a := newTestAdapter("")
	body, structured, err := a.buildBody(provider.Request{
		Messages: []message.Message{
			message.System("you are helpful"),
			message.User("add a column"),
		},
	}, false)
	if err != nil {
		t.Fatal(err)
	}
	if structured {
		t.Error("plain request reported structured")
	}

	var mr messagesRequest
	_ = json.Unmarshal(body, &mr)
	if mr.System != "you are helpful" {
		t.Errorf("system turn not hoisted, got %q", mr.System)
	}
	if len(mr.Messages) != 1 || mr.Messages[0].Role != "user" {
		t.Errorf("unexpected messages %+v", mr.Messages)
	}
}

func TestBuildBodyStructuredUsesForcedTool(t *testing.T) {
	a := newTestAdapter("")
	sch := json.RawMessage(`{"type":"object","properties":{"type":{"type":"string"}}}`)
	body, structured, err := a.buildBody(provider.Request{
		Messages:       []message.Message{message.User("go")},
		ResponseFormat: &schema.FormatInfo{Name: schema.AgentResponseName, Schema: sch},
	}, false)
	if err != nil {
		t.Fatal(err)
	}
	if !structured {
		t.Fatal("expected structured request")
	}

	var mr messagesRequest
	_ = json.Unmarshal(body, &mr)
	if len(mr.Tools) != 1 || mr.Tools[0].Name != schema.AgentResponseName {
		t.Fatalf("unexpected tools %+v", mr.Tools)
	}
	if mr.ToolChoice == nil || mr.ToolChoice.Type != "tool" || mr.ToolChoice.Name != schema.AgentResponseName {
		t.Errorf("unexpected tool_choice %+v", mr.ToolChoice)
	}
}

func TestCompleteExtractsToolArguments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "key-test" {
			t.Errorf("missing x-api-key header")
		}
		if r.Header.Get("anthropic-version") == "" {
			t.Errorf("missing anthropic-version header")
		}
		_, _ = w.Write([]byte(`{"content":[{"type":"tool_use","name":"agent_response","input":{"type":"finished_task","message":"done"}}],"stop_reason":"tool_use"}`))
	}))
	defer srv.Close()

	a := newTestAdapter(srv.URL)
	got, err := a.Complete(context.Background(), provider.Request{
		Messages:       []message.Message{message.User("go")},
		ResponseFormat: &schema.FormatInfo{Name: schema.AgentResponseName, Schema: json.RawMessage(`{"type":"object"}`)},
	})
	if err != nil {
		t.Fatal(err)
	}

	var parsed map[string]string
	if err := json.Unmarshal([]byte(got), &parsed); err != nil {
		t.Fatalf("tool arguments are not valid JSON: %v", err)
	}
	if parsed["type"] != "finished_task" || parsed["message"] != "done" {
		t.Errorf("unexpected arguments %v", parsed)
	}
}

func TestCompleteConcatsTextBlocks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"hello "},{"type":"text","text":"world"}]}`))
	}))
	defer srv.Close()

	a := newTestAdapter(srv.URL)
	got, err := a.Complete(context.Background(), provider.Request{Messages: []message.Message{message.User("hi")}})
	if err != nil {
		t.Fatal(err)
	}
	if got != "hello world" {
		t.Errorf("unexpected content %q", got)
	}
}

func TestStreamEmitsTextDeltas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(`data: {"type":"message_start"}` + "\n\n"))
		_, _ = w.Write([]byte(`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"y = "}}` + "\n\n"))
		_, _ = w.Write([]byte(`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"1"}}` + "\n\n"))
		_, _ = w.Write([]byte(`data: {"type":"message_stop"}` + "\n\n"))
	}))
	defer srv.Close()

	a := newTestAdapter(srv.URL)
	var deltas []string
	full, err := a.Stream(context.Background(), provider.Request{Messages: []message.Message{message.User("hi")}},
		func(delta string) error {
			deltas = append(deltas, delta)
			return nil
		})
	if err != nil {
		t.Fatal(err)
	}
	if full != "y = 1" {
		t.Errorf("unexpected full text %q", full)
	}
	if len(deltas) != 2 {
		t.Errorf("expected 2 deltas, got %v", deltas)
	}
}

func TestStructuredOutlivesChatTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(300 * time.Millisecond)
		_, _ = w.Write([]byte(`{"content":[{"type":"tool_use","name":"agent_response","input":{"ok":true}}]}`))
	}))
	defer srv.Close()

	a := New("key-test", "claude-sonnet-4", 50*time.Millisecond, 2*time.Second, nil)
	a.baseURL = srv.URL

	// The tool-call path runs under its own budget, not the chat timeout.
	_, err := a.Complete(context.Background(), provider.Request{
		Messages:       []message.Message{message.User("go")},
		ResponseFormat: &schema.FormatInfo{Name: schema.AgentResponseName, Schema: json.RawMessage(`{"type":"object"}`)},
	})
	if err != nil {
		t.Fatalf("structured call capped by chat timeout: %v", err)
	}

	// A plain completion through the same adapter still times out.
	_, err = a.Complete(context.Background(), provider.Request{Messages: []message.Message{message.User("hi")}})
	if err == nil {
		t.Fatal("expected plain completion to hit the chat timeout")
	}
}

func TestRefusalSurfacesAs4xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"invalid x-api-key"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	a := newTestAdapter(srv.URL)
	_, err := a.Complete(context.Background(), provider.Request{Messages: []message.Message{message.User("hi")}})
	var refusal *provider.RefusalError
	if !errors.As(err, &refusal) {
		t.Fatalf("expected refusal, got %v", err)
	}
	if refusal.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", refusal.StatusCode)
	}
}
