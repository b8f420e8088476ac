// Package nats implements the telemetry sink port using NATS JetStream.
// Events are published fire-and-forget; a down broker never blocks or fails
// a completion.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/mito-ds/mito-ai/internal/port/telemetryq"
)

const (
	streamName    = "MITO_AI"
	subjectPrefix = "telemetry.mito_ai."
)

// Sink implements telemetryq.Sink over a JetStream stream.
type Sink struct {
	nc  *nats.Conn
	js  jetstream.JetStream
	log *slog.Logger
}

// Connect establishes the NATS connection and ensures the telemetry stream
// exists.
func Connect(ctx context.Context, url string, log *slog.Logger) (*Sink, error) {
	if log == nil {
		log = slog.Default()
	}
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{"telemetry.>"},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	log.Info("telemetry sink connected", "url", url, "stream", streamName)
	return &Sink{nc: nc, js: js, log: log}, nil
}

// Record publishes one event under telemetry.mito_ai.<name>. Failures are
// logged at debug and dropped.
func (s *Sink) Record(ctx context.Context, ev telemetryq.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.log.Debug("telemetry event marshal failed", "event", ev.Name, "error", err)
		return
	}
	if _, err := s.js.PublishAsync(subjectPrefix+ev.Name, data); err != nil {
		s.log.Debug("telemetry publish failed", "event", ev.Name, "error", err)
	}
}

// Close drains the connection so queued events flush before shutdown.
func (s *Sink) Close() error {
	if err := s.nc.Drain(); err != nil {
		return fmt.Errorf("nats drain: %w", err)
	}
	return nil
}
