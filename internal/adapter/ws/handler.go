// Package ws implements the WebSocket adapter for the notebook client. Each
// connection gets its own session: capabilities are pushed on open, inbound
// frames fan out to per-request tasks, and replies are serialized onto the
// socket through a single write lock.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	otelx "github.com/mito-ds/mito-ai/internal/adapter/otel"
	"github.com/mito-ds/mito-ai/internal/service"
)

// drainTimeout bounds how long a closing session waits for in-flight
// completion tasks before giving up on them.
const drainTimeout = 5 * time.Second

// Handler upgrades HTTP requests and runs one session per connection. The
// broker is shared; the server is single-tenant so all connections see the
// same thread store and quota state.
type Handler struct {
	broker  *service.Broker
	metrics *otelx.Metrics
	log     *slog.Logger
}

// NewHandler creates the websocket endpoint handler.
func NewHandler(broker *service.Broker, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{broker: broker, log: log}
}

// WithMetrics attaches metric instruments for connection gauging.
func (h *Handler) WithMetrics(m *otelx.Metrics) *Handler {
	h.metrics = m
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS handled by middleware
	})
	if err != nil {
		h.log.Error("websocket accept failed", "error", err)
		return
	}

	h.log.Info("websocket connected", "remote", r.RemoteAddr)
	if h.metrics != nil {
		h.metrics.ActiveConnections.Add(r.Context(), 1)
		defer h.metrics.ActiveConnections.Add(context.Background(), -1)
	}
	s := &session{conn: conn, broker: h.broker, log: h.log}
	s.run(r.Context())
	h.log.Info("websocket disconnected", "remote", r.RemoteAddr)
}

// session serves one connection until its read loop ends.
type session struct {
	conn   *websocket.Conn
	broker *service.Broker

	writeMu sync.Mutex
	log     *slog.Logger
}

func (s *session) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.conn.Close(websocket.StatusNormalClosure, "")

	if err := s.send(ctx)(s.broker.Capabilities()); err != nil {
		return
	}

	g, taskCtx := errgroup.WithContext(ctx)
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			break
		}
		frame := data
		g.Go(func() error {
			s.broker.Handle(taskCtx, frame, s.send(taskCtx))
			return nil
		})
	}

	// The client is gone. Cancel in-flight provider calls and give their
	// persistence a bounded window to finish.
	cancel()
	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(drainTimeout):
		s.log.Warn("session closed with tasks still draining")
	}
}

// send returns the write callback handed to the broker. Writes are
// serialized so interleaved streams from concurrent tasks never corrupt a
// frame.
func (s *session) send(ctx context.Context) service.SendFunc {
	return func(v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			s.log.Error("marshal reply frame", "error", err)
			return err
		}
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
		return s.conn.Write(ctx, websocket.MessageText, data)
	}
}
