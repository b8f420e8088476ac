package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/mito-ds/mito-ai/internal/adapter/fsthreads"
	mnats "github.com/mito-ds/mito-ai/internal/adapter/nats"
	otelx "github.com/mito-ds/mito-ai/internal/adapter/otel"
	"github.com/mito-ds/mito-ai/internal/adapter/ristretto"
	"github.com/mito-ds/mito-ai/internal/adapter/ws"
	"github.com/mito-ds/mito-ai/internal/config"
	"github.com/mito-ds/mito-ai/internal/logger"
	"github.com/mito-ds/mito-ai/internal/port/telemetryq"
	"github.com/mito-ds/mito-ai/internal/quota"
	"github.com/mito-ds/mito-ai/internal/service"
)

func main() {
	// A .env next to the binary is a developer convenience; absence is fine.
	_ = godotenv.Load()

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLog := logger.New(cfg.Logging)
	defer closeLog.Close()
	slog.SetDefault(log)

	ctx := context.Background()

	shutdownOtel, err := otelx.Setup(ctx, "mito-ai", cfg.OTel.Endpoint)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownOtel(ctx)
	}()
	metrics, err := otelx.NewMetrics()
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	// --- User state ---

	gate, err := quota.New(cfg.UserFile(), quota.Policy{
		MaxChatUsages:    cfg.Quota.MaxChatUsages,
		MaxAutocompletes: cfg.Quota.MaxAutocompletes,
		Pro:              cfg.Quota.Pro,
		Enterprise:       cfg.Quota.Enterprise,
	}, log)
	if err != nil {
		return fmt.Errorf("quota: %w", err)
	}

	// --- Provider ---

	route, err := service.SelectProvider(ctx, cfg, gate, log)
	if err != nil {
		return err
	}

	// --- Threads ---

	namer := service.ThreadNamer(route.Adapter, cfg.Providers.Model)
	store, err := fsthreads.New(cfg.ThreadsDir(), namer, log)
	if err != nil {
		return fmt.Errorf("thread store: %w", err)
	}

	// --- Telemetry ---

	var sink telemetryq.Sink = telemetryq.Nop{}
	if cfg.Telemetry.NATSURL != "" {
		s, err := mnats.Connect(ctx, cfg.Telemetry.NATSURL, log)
		if err != nil {
			// Telemetry is best-effort; the server runs without it.
			log.Warn("telemetry sink unavailable", "error", err)
		} else {
			sink = s
		}
	}
	telemetry := service.NewTelemetry(sink, gate.TelemetryEnabled(), gate.UserID(), log)
	defer func() { _ = telemetry.Close() }()

	// --- Inline completion cache ---

	cache, err := ristretto.New(cfg.Cache.InlineMaxMB*1024*1024, cfg.Cache.InlineTTL)
	if err != nil {
		return fmt.Errorf("inline cache: %w", err)
	}
	defer cache.Close()

	// --- Broker and HTTP ---

	broker := service.NewBroker(route, store, gate, telemetry, cache,
		cfg.Providers.Model, cfg.Providers.InlineModel, cfg.Providers.Timeout, cfg.Providers.ToolTimeout, log).
		WithMetrics(metrics)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(otelx.HTTPMiddleware("mito-ai"))

	r.Get("/health", healthHandler(route))
	r.Get("/ws", ws.NewHandler(broker, log).WithMetrics(metrics).ServeHTTP)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "error", err)
		}
	}()

	<-done
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// healthHandler reports liveness plus the active provider.
func healthHandler(route service.Route) http.HandlerFunc {
	type healthStatus struct {
		Status   string `json:"status"`
		Provider string `json:"provider"`
		Model    string `json:"model"`
	}

	return func(w http.ResponseWriter, _ *http.Request) {
		caps := route.Adapter.Capabilities()
		status := healthStatus{
			Status:   "ok",
			Provider: caps.Provider,
			Model:    caps.Model,
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(status)
	}
}
