// Package fsthreads implements the chat store port with one JSON file per
// thread. All mutations hold a process-local mutex and every write is
// tmp-then-rename, so a crash or a concurrent reader never sees a torn file.
package fsthreads

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mito-ds/mito-ai/internal/domain/message"
	"github.com/mito-ds/mito-ai/internal/domain/thread"
)

// NameGenerator produces a short thread title from the first exchange.
// Wired to the chat-name prompt plus the active provider by the caller.
type NameGenerator func(ctx context.Context, userMsg, assistantMsg message.Message) (string, error)

// Store is a disk-backed, thread-safe registry of chat threads.
type Store struct {
	mu        sync.Mutex
	dir       string
	threads   map[string]*thread.Thread
	currentID string
	nameGen   NameGenerator
	naming    map[string]bool // thread ids with a name generation in flight
	nameWG    sync.WaitGroup
	log       *slog.Logger
}

// New loads every thread file under dir into memory and returns the store.
// Corrupt files are skipped with a log line, never surfaced.
func New(dir string, nameGen NameGenerator, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create threads dir: %w", err)
	}

	s := &Store{
		dir:     dir,
		threads: map[string]*thread.Thread{},
		nameGen: nameGen,
		naming:  map[string]bool{},
		log:     log,
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read threads dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path) //nolint:gosec // G304: path is inside our own dir
		if err != nil {
			log.Warn("thread file unreadable, skipping", "path", path, "error", err)
			continue
		}
		var t thread.Thread
		if err := json.Unmarshal(data, &t); err != nil || t.ID == "" {
			log.Warn("thread file corrupt, skipping", "path", path, "error", err)
			continue
		}
		s.threads[t.ID] = &t
	}

	s.currentID = s.newestLocked()
	return s, nil
}

// CurrentThreadID implements chatstore.Store.
func (s *Store) CurrentThreadID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentID == "" {
		s.createLocked()
	}
	return s.currentID
}

// CreateNewThread implements chatstore.Store.
func (s *Store) CreateNewThread() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked()
}

// ThreadName implements chatstore.Store.
func (s *Store) ThreadName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t := s.currentLocked(); t != nil {
		return t.Name
	}
	return ""
}

// Append implements chatstore.Store. The thread name is generated lazily
// once the first user/assistant exchange exists; a naming failure only
// costs the name, never the append. The provider call runs in a detached
// goroutine so the mutex is only ever held for memory and disk work.
func (s *Store) Append(llmMsg, displayMsg message.Message) {
	s.mu.Lock()

	t := s.currentLocked()
	if t == nil {
		s.createLocked()
		t = s.currentLocked()
	}
	t.Append(llmMsg, displayMsg)
	s.saveLocked(t)

	if t.NeedsName() && s.nameGen != nil && !s.naming[t.ID] {
		if userMsg, assistantMsg, ok := t.FirstExchange(); ok {
			s.naming[t.ID] = true
			s.nameWG.Add(1)
			go s.generateName(t.ID, userMsg, assistantMsg)
		}
	}
	s.mu.Unlock()
}

// generateName runs the provider call without the store mutex and re-locks
// only to record the result.
func (s *Store) generateName(id string, userMsg, assistantMsg message.Message) {
	defer s.nameWG.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	name, err := s.nameGen(ctx, userMsg, assistantMsg)

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.naming, id)
	if err != nil {
		s.log.Debug("chat name generation failed", "thread_id", id, "error", err)
		return
	}
	t := s.threads[id]
	if t == nil || !t.NeedsName() {
		return
	}
	t.Name = strings.TrimSpace(name)
	s.saveLocked(t)
}

// Truncate implements chatstore.Store.
func (s *Store) Truncate(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.currentLocked()
	if t == nil {
		return
	}
	t.Truncate(n)
	s.saveLocked(t)
}

// Histories implements chatstore.Store.
func (s *Store) Histories() (llm, display []message.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.currentLocked()
	if t == nil {
		return nil, nil
	}
	llm = make([]message.Message, len(t.LLMHistory))
	copy(llm, t.LLMHistory)
	display = make([]message.Message, len(t.DisplayHistory))
	copy(display, t.DisplayHistory)
	return llm, display
}

// ClearHistories implements chatstore.Store. Old threads stay on disk.
func (s *Store) ClearHistories() {
	s.CreateNewThread()
}

func (s *Store) currentLocked() *thread.Thread {
	return s.threads[s.currentID]
}

func (s *Store) createLocked() string {
	t := thread.New()
	s.threads[t.ID] = t
	s.currentID = t.ID
	s.saveLocked(t)
	return t.ID
}

// newestLocked returns the id with the latest last_interaction_ts.
func (s *Store) newestLocked() string {
	var newestID string
	var newestTS float64
	for id, t := range s.threads {
		if newestID == "" || t.LastInteractionTS > newestTS {
			newestID = id
			newestTS = t.LastInteractionTS
		}
	}
	return newestID
}

// saveLocked persists t with tmp-write, fsync, rename. Failures are logged;
// the in-memory state stays authoritative for this process.
func (s *Store) saveLocked(t *thread.Thread) {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		s.log.Error("thread marshal failed", "thread_id", t.ID, "error", err)
		return
	}

	final := filepath.Join(s.dir, t.ID+".json")
	tmp := final + ".tmp"

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644) //nolint:gosec // G304: path is inside our own dir
	if err != nil {
		s.log.Error("thread write failed", "thread_id", t.ID, "error", err)
		return
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		s.log.Error("thread write failed", "thread_id", t.ID, "error", err)
		return
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		s.log.Error("thread fsync failed", "thread_id", t.ID, "error", err)
		return
	}
	if err := f.Close(); err != nil {
		s.log.Error("thread close failed", "thread_id", t.ID, "error", err)
		return
	}
	if err := os.Rename(tmp, final); err != nil {
		s.log.Error("thread rename failed", "thread_id", t.ID, "error", err)
	}
}
