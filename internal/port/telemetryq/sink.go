// Package telemetryq defines the best-effort telemetry event sink port.
package telemetryq

import "context"

// Event is one telemetry record. Properties must be JSON-marshalable.
type Event struct {
	Name       string         `json:"name"`
	UserID     string         `json:"user_id"`
	Timestamp  float64        `json:"timestamp"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Sink receives telemetry events. Implementations must never block the
// caller beyond a trivial enqueue and must swallow their own errors; event
// capture is strictly best-effort.
type Sink interface {
	Record(ctx context.Context, ev Event)
	Close() error
}

// Nop is a Sink that discards everything.
type Nop struct{}

// Record implements Sink.
func (Nop) Record(context.Context, Event) {}

// Close implements Sink.
func (Nop) Close() error { return nil }
