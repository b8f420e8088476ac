package resilience

import (
	"errors"
	"testing"
	"time"
)

var errProvider = errors.New("provider unavailable")

func tripBreaker(b *Breaker, failures int) {
	for range failures {
		_ = b.Execute(func() error { return errProvider })
	}
}

func TestClosedBreakerRunsCall(t *testing.T) {
	b := NewBreaker(3, time.Second)
	called := false
	if err := b.Execute(func() error {
		called = true
		return nil
	}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !called {
		t.Fatal("call never ran")
	}
}

func TestOpensAtThreshold(t *testing.T) {
	b := NewBreaker(3, time.Second)
	tripBreaker(b, 3)

	err := b.Execute(func() error { return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestHalfOpenSuccessCloses(t *testing.T) {
	now := time.Now()
	b := NewBreaker(2, time.Second)
	b.now = func() time.Time { return now }

	tripBreaker(b, 2)
	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected open inside cooldown, got %v", err)
	}

	now = now.Add(2 * time.Second)

	called := false
	if err := b.Execute(func() error {
		called = true
		return nil
	}); err != nil {
		t.Fatalf("half-open probe: %v", err)
	}
	if !called {
		t.Fatal("half-open probe never ran")
	}

	b.mu.Lock()
	if b.state != stateClosed {
		t.Fatalf("state after half-open success = %d, want closed", b.state)
	}
	b.mu.Unlock()
}

func TestHalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	b := NewBreaker(2, time.Second)
	b.now = func() time.Time { return now }

	tripBreaker(b, 2)
	now = now.Add(2 * time.Second)

	_ = b.Execute(func() error { return errProvider })

	b.mu.Lock()
	if b.state != stateOpen {
		t.Fatalf("state after half-open failure = %d, want open", b.state)
	}
	b.mu.Unlock()

	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen after reopen, got %v", err)
	}
}

func TestSuccessResetsConsecutiveCount(t *testing.T) {
	b := NewBreaker(3, time.Second)

	tripBreaker(b, 2)
	_ = b.Execute(func() error { return nil })
	tripBreaker(b, 2)

	// Four failures total, never three in a row.
	called := false
	if err := b.Execute(func() error {
		called = true
		return nil
	}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !called {
		t.Fatal("call never ran")
	}
}
