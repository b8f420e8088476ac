// Package quota enforces the free-tier usage policy over the on-disk user
// record. Requests backed by a personal provider key bypass the gate
// entirely; relay-routed requests are counted and capped per 30-day window.
package quota

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mito-ds/mito-ai/internal/domain/usage"
)

// ErrQuotaExceeded is returned when a free-tier counter is at its cap.
type ErrQuotaExceeded struct {
	Kind string // "chat" or "autocomplete"
	Cap  int
}

func (e *ErrQuotaExceeded) Error() string {
	return fmt.Sprintf("free tier %s limit of %d reached", e.Kind, e.Cap)
}

// Policy holds the caps and tier flags the gate enforces. Pro and Enterprise
// override the record's own flags when set from config.
type Policy struct {
	MaxChatUsages    int
	MaxAutocompletes int
	Pro              bool
	Enterprise       bool
}

// Gate is the per-process quota keeper. All access to the user record is
// serialized through its mutex; writes are tmp-and-rename.
type Gate struct {
	mu     sync.Mutex
	path   string
	rec    *usage.Record
	policy Policy
	log    *slog.Logger
	now    func() time.Time // for testing
}

// New loads (or creates) the user record at path.
func New(path string, policy Policy, log *slog.Logger) (*Gate, error) {
	if log == nil {
		log = slog.Default()
	}
	g := &Gate{path: path, policy: policy, log: log, now: time.Now}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from our own config
	switch {
	case err == nil:
		var rec usage.Record
		if jsonErr := json.Unmarshal(data, &rec); jsonErr != nil {
			log.Warn("user record corrupt, recreating", "path", path, "error", jsonErr)
			g.rec = usage.NewRecord(uuid.NewString(), g.now())
		} else {
			g.rec = &rec
		}
	case os.IsNotExist(err):
		g.rec = usage.NewRecord(uuid.NewString(), g.now())
	default:
		return nil, fmt.Errorf("read user record: %w", err)
	}

	if g.rec.StaticUserID == "" {
		g.rec.StaticUserID = uuid.NewString()
	}
	g.saveLocked()
	return g, nil
}

// UserID returns the stable per-install user id.
func (g *Gate) UserID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rec.StaticUserID
}

// UserEmail returns the recorded user email, if any.
func (g *Gate) UserEmail() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rec.UserEmail
}

// TelemetryEnabled reports the user's telemetry preference.
func (g *Gate) TelemetryEnabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rec.TelemetryEnabled
}

// Enterprise reports whether the user is on the enterprise tier.
func (g *Gate) Enterprise() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.policy.Enterprise || g.rec.Enterprise
}

func (g *Gate) unlimitedLocked() bool {
	return g.policy.Pro || g.policy.Enterprise || g.rec.Pro || g.rec.Enterprise
}

// CheckChat verifies the chat counter has headroom. Counters are never
// incremented here, so a raised cap leaves state untouched.
func (g *Gate) CheckChat() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.maybeResetLocked()
	if g.unlimitedLocked() {
		return nil
	}
	if g.rec.ChatCompletions >= g.policy.MaxChatUsages {
		return &ErrQuotaExceeded{Kind: "chat", Cap: g.policy.MaxChatUsages}
	}
	return nil
}

// CheckAutocomplete verifies the autocomplete counter has headroom.
func (g *Gate) CheckAutocomplete() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.maybeResetLocked()
	if g.unlimitedLocked() {
		return nil
	}
	if g.rec.AutocompleteCalls >= g.policy.MaxAutocompletes {
		return &ErrQuotaExceeded{Kind: "autocomplete", Cap: g.policy.MaxAutocompletes}
	}
	return nil
}

// RecordChat increments the chat counter after a successful relay call.
func (g *Gate) RecordChat() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.maybeResetLocked()
	g.rec.ChatCompletions++
	g.saveLocked()
}

// RecordAutocomplete increments the autocomplete counter after a successful
// relay call.
func (g *Gate) RecordAutocomplete() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.maybeResetLocked()
	g.rec.AutocompleteCalls++
	g.saveLocked()
}

// Counts returns the current counter values.
func (g *Gate) Counts() (chat, autocomplete int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rec.ChatCompletions, g.rec.AutocompleteCalls
}

// maybeResetLocked applies the 30-day rolling reset at call time.
func (g *Gate) maybeResetLocked() {
	if g.rec.ResetDue(g.now()) {
		g.rec.Reset(g.now())
		g.saveLocked()
	}
}

// saveLocked writes the record atomically: tmp file, fsync, rename.
func (g *Gate) saveLocked() {
	data, err := json.MarshalIndent(g.rec, "", "  ")
	if err != nil {
		g.log.Error("user record marshal failed", "error", err)
		return
	}

	tmp := g.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644) //nolint:gosec // G304: path comes from our own config
	if err != nil {
		g.log.Error("user record write failed", "error", err)
		return
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		g.log.Error("user record write failed", "error", err)
		return
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		g.log.Error("user record fsync failed", "error", err)
		return
	}
	if err := f.Close(); err != nil {
		g.log.Error("user record close failed", "error", err)
		return
	}
	if err := os.Rename(tmp, g.path); err != nil {
		g.log.Error("user record rename failed", "error", err)
	}
}
