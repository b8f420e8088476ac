package fsthreads

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mito-ds/mito-ai/internal/domain/message"
	"github.com/mito-ds/mito-ai/internal/domain/thread"
)

func newTestStore(t *testing.T, nameGen NameGenerator) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := New(dir, nameGen, nil)
	if err != nil {
		t.Fatal(err)
	}
	return s, dir
}

func TestCurrentThreadIDCreatesOnDemand(t *testing.T) {
	s, dir := newTestStore(t, nil)

	id := s.CurrentThreadID()
	if id == "" {
		t.Fatal("expected a thread id")
	}
	if id != s.CurrentThreadID() {
		t.Error("current thread id is not stable")
	}
	if _, err := os.Stat(filepath.Join(dir, id+".json")); err != nil {
		t.Errorf("thread file not persisted: %v", err)
	}
}

func TestAppendPersistsBothHistories(t *testing.T) {
	s, dir := newTestStore(t, nil)
	id := s.CurrentThreadID()

	s.Append(message.User("full llm prompt"), message.User("display text"))
	s.Append(message.Assistant("answer"), message.Assistant("answer"))

	llm, display := s.Histories()
	if len(llm) != 2 || len(display) != 2 {
		t.Fatalf("expected 2 turns each, got %d/%d", len(llm), len(display))
	}
	if llm[0].Content != "full llm prompt" || display[0].Content != "display text" {
		t.Error("llm/display variants not kept separately")
	}

	// Disk state equals in-memory state.
	data, err := os.ReadFile(filepath.Join(dir, id+".json"))
	if err != nil {
		t.Fatal(err)
	}
	var onDisk thread.Thread
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatal(err)
	}
	if len(onDisk.LLMHistory) != 2 || onDisk.LLMHistory[0].Content != "full llm prompt" {
		t.Errorf("disk state diverged: %+v", onDisk.LLMHistory)
	}
}

func TestLazyNameGeneration(t *testing.T) {
	gen := func(_ context.Context, userMsg, assistantMsg message.Message) (string, error) {
		return "Add Column B", nil
	}
	s, _ := newTestStore(t, gen)

	s.Append(message.User("add B"), message.User("add B"))
	if s.ThreadName() != "" {
		t.Error("name assigned before first assistant turn")
	}

	s.Append(message.Assistant("done"), message.Assistant("done"))
	s.nameWG.Wait()
	if got := s.ThreadName(); got != "Add Column B" {
		t.Errorf("expected generated name, got %q", got)
	}
}

func TestNameGenerationDoesNotBlockStore(t *testing.T) {
	release := make(chan struct{})
	gen := func(_ context.Context, _, _ message.Message) (string, error) {
		<-release
		return "Slow Name", nil
	}
	s, _ := newTestStore(t, gen)

	s.Append(message.User("q"), message.User("q"))
	s.Append(message.Assistant("a"), message.Assistant("a"))

	// The provider call is still hanging; reads and writes must not be.
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.Histories()
		s.Append(message.User("q2"), message.User("q2"))
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("store calls blocked behind name generation")
	}

	close(release)
	s.nameWG.Wait()
	if got := s.ThreadName(); got != "Slow Name" {
		t.Errorf("expected name after release, got %q", got)
	}
}

func TestTruncate(t *testing.T) {
	s, _ := newTestStore(t, nil)
	s.Append(message.User("a"), message.User("a"))
	s.Append(message.Assistant("b"), message.Assistant("b"))
	s.Append(message.User("c"), message.User("c"))

	s.Truncate(1)
	llm, display := s.Histories()
	if len(llm) != 1 || len(display) != 1 {
		t.Fatalf("expected 1 turn after truncate, got %d/%d", len(llm), len(display))
	}
	if llm[0].Content != "a" {
		t.Errorf("wrong surviving turn %q", llm[0].Content)
	}
}

func TestClearHistoriesKeepsOldThreadOnDisk(t *testing.T) {
	s, dir := newTestStore(t, nil)
	oldID := s.CurrentThreadID()
	s.Append(message.User("a"), message.User("a"))

	s.ClearHistories()
	newID := s.CurrentThreadID()
	if newID == oldID {
		t.Fatal("expected a fresh thread")
	}
	llm, _ := s.Histories()
	if len(llm) != 0 {
		t.Error("new thread not empty")
	}
	if _, err := os.Stat(filepath.Join(dir, oldID+".json")); err != nil {
		t.Errorf("old thread file destroyed: %v", err)
	}
}

func TestReloadRoundTrip(t *testing.T) {
	s, dir := newTestStore(t, nil)
	id := s.CurrentThreadID()
	s.Append(message.User("q"), message.User("q"))
	s.Append(message.Assistant("a"), message.Assistant("a"))

	// Simulate a process restart.
	s2, err := New(dir, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if s2.CurrentThreadID() != id {
		t.Errorf("expected newest thread %s to be current, got %s", id, s2.CurrentThreadID())
	}
	llm, display := s2.Histories()
	if len(llm) != 2 || len(display) != 2 {
		t.Fatalf("histories lost on reload: %d/%d", len(llm), len(display))
	}
}

func TestCorruptFileIsSkipped(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := New(dir, nil, nil)
	if err != nil {
		t.Fatalf("corrupt file must not fail construction: %v", err)
	}
	if got := s.CurrentThreadID(); got == "" {
		t.Error("expected a fresh thread despite corrupt file")
	}
}

func TestNoTmpFilesLeftBehind(t *testing.T) {
	s, dir := newTestStore(t, nil)
	s.Append(message.User("a"), message.User("a"))

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("tmp file left behind: %s", e.Name())
		}
	}
}
