package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/manpreetbhatti/scribble/internal/api"
	"github.com/manpreetbhatti/scribble/internal/broadcast"
	"github.com/manpreetbhatti/scribble/internal/config"
	"github.com/manpreetbhatti/scribble/internal/db"
	"github.com/manpreetbhatti/scribble/internal/discovery"
	"github.com/manpreetbhatti/scribble/internal/events"
	"github.com/manpreetbhatti/scribble/internal/logging"
	"github.com/manpreetbhatti/scribble/internal/room"
	"github.com/manpreetbhatti/scribble/internal/session"
	"github.com/manpreetbhatti/scribble/internal/sweeper"
	"github.com/manpreetbhatti/scribble/internal/ws"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	cfg, err := config.Load(bootLogger, "scribble")
	if err != nil {
		return err
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	slog.SetDefault(logger)

	database, err := db.New(cfg.Ledger.DSN)
	if err != nil {
		return fmt.Errorf("initialize ledger: %w", err)
	}
	defer database.Close()

	sinks := []events.Sink{database}
	var publisher *events.NATSPublisher
	if cfg.Events.NATSURL != "" {
		publisher, err = events.NewNATSPublisher(cfg.Events.NATSURL, cfg.Events.SubjectPrefix, logger)
		if err != nil {
			return err
		}
		defer publisher.Close()
		sinks = append(sinks, publisher)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus := events.NewBus(cfg.Events.BufferSize, logger, sinks...)
	busCtx, stopBus := context.WithCancel(context.Background())
	busDone := make(chan struct{})
	go func() {
		bus.Run(busCtx)
		close(busDone)
	}()

	registry := room.NewRegistry(logger)
	hub := ws.NewHub(logger)
	router := broadcast.NewRouter(hub, logger)
	lifecycle := session.NewLifecycle(registry, router, bus, logger)

	wsServer := ws.NewServer(hub, lifecycle, ws.Options{
		WriteWait:         cfg.WebSocket.WriteWait,
		PongWait:          cfg.WebSocket.PongWait,
		PingPeriod:        cfg.WebSocket.PingPeriod,
		MaxMessageSize:    cfg.WebSocket.MaxMessageSize,
		SendBuffer:        cfg.WebSocket.SendBuffer,
		MessagesPerSecond: cfg.RateLimit.MessagesPerSecond,
		MessageBurst:      cfg.RateLimit.MessageBurst,
		MaxViolations:     cfg.RateLimit.MaxViolations,
		UpgradesPerSecond: cfg.RateLimit.UpgradesPerSecond,
		UpgradeBurst:      cfg.RateLimit.UpgradeBurst,
		AllowedOrigins:    cfg.Server.AllowedOrigins,
	}, logger)
	defer wsServer.Close()

	sweep := sweeper.New(lifecycle, database, sweeper.Config{
		Interval:         cfg.Presence.SweepInterval,
		OfflineRetention: cfg.Presence.OfflineRetention,
		EventRetention:   cfg.Ledger.EventRetention,
	}, logger)
	sweep.Start()
	defer sweep.Stop()

	mux := http.NewServeMux()
	mux.Handle("GET /ws", wsServer)
	api.New(registry, hub, database, logger).Register(mux)

	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: api.CORS(mux),
	}

	if cfg.Discovery.Enabled {
		if port, err := cfg.Port(); err != nil {
			logger.Warn("mDNS advertising skipped", "address", cfg.Server.Address, "error", err)
		} else if adv, err := discovery.Advertise(discovery.Config{Instance: cfg.Discovery.Instance, Port: port}, logger); err != nil {
			logger.Warn("mDNS advertising unavailable", "error", err)
		} else {
			defer adv.Shutdown()
		}
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("scribble server starting",
			"address", cfg.Server.Address,
			"ledger", cfg.Ledger.DSN,
			"nats", publisher != nil,
		)
		logger.Info("endpoints",
			"websocket", "/ws",
			"health", "GET /health",
			"stats", "GET /api/stats",
			"rooms", "GET /api/rooms",
			"room", "GET /api/rooms/{id}",
			"events", "GET /api/rooms/{id}/events",
			"export", "GET /api/rooms/{id}/export.pdf",
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			stopBus()
			<-busDone
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	hub.CloseAll()
	if err := hub.Wait(shutdownCtx); err != nil {
		logger.Warn("clients did not disconnect in time", "clients", hub.ClientCount(), "error", err)
	}

	stopBus()
	select {
	case <-busDone:
	case <-shutdownCtx.Done():
		logger.Warn("event bus did not drain in time", "dropped", bus.Dropped())
	}
	return nil
}
