package nats

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/mito-ds/mito-ai/internal/port/telemetryq"
)

// testConnect connects to NATS or skips the test if NATS_URL is not set.
func testConnect(t *testing.T) *Sink {
	t.Helper()

	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}

	s, err := Connect(context.Background(), url, nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return s
}

func TestSink_RecordPublishesEvent(t *testing.T) {
	s := testConnect(t)
	ctx := context.Background()
	eventName := "test_event_" + t.Name()

	consumer, err := s.js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		FilterSubject: subjectPrefix + eventName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		t.Fatalf("create consumer: %v", err)
	}

	var (
		got  telemetryq.Event
		done = make(chan struct{})
		once sync.Once
	)
	sub, err := consumer.Consume(func(msg jetstream.Msg) {
		once.Do(func() {
			if err := json.Unmarshal(msg.Data(), &got); err != nil {
				t.Errorf("unmarshal event: %v", err)
			}
			close(done)
		})
		_ = msg.Ack()
	})
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	defer sub.Stop()

	s.Record(ctx, telemetryq.Event{
		Name:      eventName,
		UserID:    "user-1",
		Timestamp: 1756700000,
		Properties: map[string]any{
			"type": "chat",
		},
	})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}

	if got.Name != eventName || got.UserID != "user-1" {
		t.Errorf("event = %+v", got)
	}
	if got.Properties["type"] != "chat" {
		t.Errorf("properties = %v", got.Properties)
	}
}
