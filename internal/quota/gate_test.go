package quota

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestGate(t *testing.T, policy Policy) (*Gate, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "user.json")
	g, err := New(path, policy, nil)
	if err != nil {
		t.Fatal(err)
	}
	return g, path
}

func TestNewCreatesRecordWithDefaults(t *testing.T) {
	g, path := newTestGate(t, Policy{MaxChatUsages: 5, MaxAutocompletes: 5})

	if g.UserID() == "" {
		t.Error("expected a static user id")
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("record not persisted: %v", err)
	}
}

func TestFreeTierCap(t *testing.T) {
	g, _ := newTestGate(t, Policy{MaxChatUsages: 2, MaxAutocompletes: 1})

	for range 2 {
		if err := g.CheckChat(); err != nil {
			t.Fatalf("unexpected cap: %v", err)
		}
		g.RecordChat()
	}

	err := g.CheckChat()
	var exceeded *ErrQuotaExceeded
	if !errors.As(err, &exceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if exceeded.Kind != "chat" {
		t.Errorf("expected chat kind, got %s", exceeded.Kind)
	}

	// A raised cap never increments counters.
	chat, _ := g.Counts()
	if chat != 2 {
		t.Errorf("check must not increment; counter is %d", chat)
	}
}

func TestProTierHasNoCap(t *testing.T) {
	g, _ := newTestGate(t, Policy{MaxChatUsages: 1, MaxAutocompletes: 1, Pro: true})

	for range 10 {
		if err := g.CheckChat(); err != nil {
			t.Fatalf("pro tier must be uncapped: %v", err)
		}
		g.RecordChat()
	}
}

func TestThirtyDayReset(t *testing.T) {
	g, _ := newTestGate(t, Policy{MaxChatUsages: 1, MaxAutocompletes: 1})

	g.RecordChat()
	if err := g.CheckChat(); err == nil {
		t.Fatal("expected cap before reset")
	}

	// Jump the clock past the window.
	g.now = func() time.Time { return time.Now().Add(31 * 24 * time.Hour) }
	if err := g.CheckChat(); err != nil {
		t.Fatalf("expected reset after 30 days, got %v", err)
	}
	chat, auto := g.Counts()
	if chat != 0 || auto != 0 {
		t.Errorf("counters not zeroed: %d/%d", chat, auto)
	}
}

func TestUnknownFieldsPreserved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user.json")
	seed := `{"static_user_id":"u-1","mitosheet_telemetry":true,"future_field":{"a":1},"mito_ai_last_reset_date":"2026-09-01"}`
	if err := os.WriteFile(path, []byte(seed), 0o644); err != nil {
		t.Fatal(err)
	}

	g, err := New(path, Policy{MaxChatUsages: 5, MaxAutocompletes: 5}, nil)
	if err != nil {
		t.Fatal(err)
	}
	g.RecordChat()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var onDisk map[string]json.RawMessage
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatal(err)
	}
	if _, ok := onDisk["future_field"]; !ok {
		t.Error("unknown field dropped on rewrite")
	}
	if string(onDisk["static_user_id"]) != `"u-1"` {
		t.Errorf("user id not preserved: %s", onDisk["static_user_id"])
	}
}

func TestCorruptRecordRecreated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user.json")
	if err := os.WriteFile(path, []byte("{broken"), 0o644); err != nil {
		t.Fatal(err)
	}

	g, err := New(path, Policy{MaxChatUsages: 5, MaxAutocompletes: 5}, nil)
	if err != nil {
		t.Fatalf("corrupt record must be recreated, got %v", err)
	}
	if g.UserID() == "" {
		t.Error("expected a fresh user id")
	}
}

func TestAutocompleteCounterIsSeparate(t *testing.T) {
	g, _ := newTestGate(t, Policy{MaxChatUsages: 1, MaxAutocompletes: 2})

	g.RecordChat()
	if err := g.CheckAutocomplete(); err != nil {
		t.Fatalf("autocomplete must not share the chat counter: %v", err)
	}
	g.RecordAutocomplete()
	g.RecordAutocomplete()
	if err := g.CheckAutocomplete(); err == nil {
		t.Error("expected autocomplete cap")
	}
}
