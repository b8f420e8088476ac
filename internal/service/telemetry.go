package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/mito-ds/mito-ai/internal/port/telemetryq"
)

// Telemetry records product events when the user has telemetry enabled.
// Recording is strictly best-effort; the sink swallows its own errors and
// never delays a completion.
type Telemetry struct {
	sink    telemetryq.Sink
	enabled bool
	userID  string
	log     *slog.Logger
}

// NewTelemetry wires sink behind the user's opt-in flag. A nil sink disables
// recording regardless of the flag.
func NewTelemetry(sink telemetryq.Sink, enabled bool, userID string, log *slog.Logger) *Telemetry {
	if log == nil {
		log = slog.Default()
	}
	if sink == nil {
		sink = telemetryq.Nop{}
		enabled = false
	}
	return &Telemetry{sink: sink, enabled: enabled, userID: userID, log: log}
}

// Record emits one event stamped with the user id and current time.
func (t *Telemetry) Record(ctx context.Context, name string, properties map[string]any) {
	if !t.enabled {
		return
	}
	t.sink.Record(ctx, telemetryq.Event{
		Name:       name,
		UserID:     t.userID,
		Timestamp:  float64(time.Now().UnixMilli()) / 1000,
		Properties: properties,
	})
}

// Close flushes the underlying sink.
func (t *Telemetry) Close() error {
	return t.sink.Close()
}
