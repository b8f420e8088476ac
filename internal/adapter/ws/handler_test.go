package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/mito-ds/mito-ai/internal/domain/message"
	"github.com/mito-ds/mito-ai/internal/port/provider"
	"github.com/mito-ds/mito-ai/internal/quota"
	"github.com/mito-ds/mito-ai/internal/service"
)

type echoAdapter struct{ caps provider.Capabilities }

func (e echoAdapter) Capabilities() provider.Capabilities { return e.caps }

func (e echoAdapter) Complete(_ context.Context, req provider.Request) (string, error) {
	last := req.Messages[len(req.Messages)-1]
	return "echo: " + last.Content, nil
}

func (e echoAdapter) Stream(ctx context.Context, req provider.Request, emit provider.EmitFunc) (string, error) {
	text, _ := e.Complete(ctx, req)
	for _, part := range strings.SplitAfter(text, " ") {
		if err := emit(part); err != nil {
			return "", err
		}
	}
	return text, nil
}

type noopStore struct{ llm, display []message.Message }

func (s *noopStore) CurrentThreadID() string { return "t1" }
func (s *noopStore) CreateNewThread() string { return "t1" }
func (s *noopStore) ThreadName() string      { return "" }
func (s *noopStore) Append(l, d message.Message) {
	s.llm = append(s.llm, l)
	s.display = append(s.display, d)
}
func (s *noopStore) Truncate(n int) {}
func (s *noopStore) Histories() (llm, display []message.Message) {
	return append([]message.Message(nil), s.llm...), append([]message.Message(nil), s.display...)
}
func (s *noopStore) ClearHistories() { s.llm, s.display = nil, nil }

func startSessionServer(t *testing.T, canStream bool) *websocket.Conn {
	t.Helper()
	gate, err := quota.New(filepath.Join(t.TempDir(), "user.json"), quota.Policy{MaxChatUsages: 100, MaxAutocompletes: 100}, nil)
	if err != nil {
		t.Fatalf("quota.New: %v", err)
	}
	adapter := echoAdapter{caps: provider.Capabilities{Provider: "openai", Model: "gpt-5", CanStream: canStream}}
	broker := service.NewBroker(service.Route{Adapter: adapter, UserKey: true}, &noopStore{}, gate, nil, nil, "gpt-5", "gpt-5-mini", 10*time.Second, 20*time.Second, nil)

	srv := httptest.NewServer(NewHandler(broker, nil))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var frame map[string]any
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	return frame
}

func TestCapabilitiesPushedOnOpen(t *testing.T) {
	conn := startSessionServer(t, false)

	frame := readFrame(t, conn)
	if frame["type"] != "ai_capabilities" {
		t.Fatalf("first frame type = %v", frame["type"])
	}
	if frame["provider"] != "openai" {
		t.Errorf("provider = %v", frame["provider"])
	}
	cfg, _ := frame["configuration"].(map[string]any)
	if cfg["model"] != "gpt-5" {
		t.Errorf("model = %v", cfg["model"])
	}
}

func TestChatOverWebsocket(t *testing.T) {
	conn := startSessionServer(t, false)
	readFrame(t, conn) // capabilities

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := json.Marshal(map[string]any{
		"type": "chat", "message_id": "m1",
		"metadata": map[string]any{"prompt": "hello"},
	})
	if err := conn.Write(ctx, websocket.MessageText, req); err != nil {
		t.Fatalf("write: %v", err)
	}

	frame := readFrame(t, conn)
	if frame["type"] != "reply" || frame["parent_id"] != "m1" {
		t.Fatalf("reply frame = %v", frame)
	}
	items := frame["items"].([]any)
	content := items[0].(map[string]any)["content"]
	if content != "echo: hello" {
		t.Errorf("content = %v", content)
	}
}

func TestStreamedChatOverWebsocket(t *testing.T) {
	conn := startSessionServer(t, true)
	readFrame(t, conn) // capabilities

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := json.Marshal(map[string]any{
		"type": "chat", "message_id": "m2", "stream": true,
		"metadata": map[string]any{"prompt": "one two"},
	})
	if err := conn.Write(ctx, websocket.MessageText, req); err != nil {
		t.Fatalf("write: %v", err)
	}

	var full strings.Builder
	for {
		frame := readFrame(t, conn)
		if frame["type"] != "chunk" || frame["parent_id"] != "m2" {
			t.Fatalf("unexpected frame: %v", frame)
		}
		if frame["done"] == true {
			break
		}
		chunk := frame["chunk"].(map[string]any)
		full.WriteString(chunk["content"].(string))
	}
	if full.String() != "echo: one two" {
		t.Errorf("assembled stream = %q", full.String())
	}
}
