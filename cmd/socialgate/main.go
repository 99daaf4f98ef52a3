// Package main implements the entry point for the SocialGate server.
// SocialGate is a GraphQL gateway for a small social feed: identity and
// session handling, user and message queries, and live message delivery
// over websockets.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/socialgate/config"
	"github.com/c360/socialgate/events"
	"github.com/c360/socialgate/gateway/graphql"
	"github.com/c360/socialgate/health"
	"github.com/c360/socialgate/store"
	"github.com/c360/socialgate/store/memory"
	"github.com/c360/socialgate/store/postgres"
)

const healthCheckInterval = 15 * time.Second

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "socialgate"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg, shouldExit, err := initializeCLI()
	if shouldExit || err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := setupLogger(firstNonEmpty(cliCfg.LogLevel, cfg.LogLevel),
		firstNonEmpty(cliCfg.LogFormat, cfg.LogFormat))
	slog.SetDefault(logger)

	slog.Info("Starting SocialGate",
		"version", Version,
		"build_time", BuildTime,
		"address", cfg.BindAddress)

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	ctx := context.Background()

	st, closeStore, err := setupStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	bus, closeBus, err := setupBus(cfg, logger)
	if err != nil {
		return err
	}
	defer closeBus()

	monitor := setupHealth(st, bus)

	server, err := setupGateway(cfg, st, bus, monitor, logger)
	if err != nil {
		return err
	}

	return runWithSignalHandling(ctx, server, monitor, cliCfg.ShutdownTimeout)
}

// setupStore selects Postgres when a database URL is configured and the
// in-memory store otherwise.
func setupStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		slog.Warn("No DATABASE_URL set, using in-memory store (data is not persisted)")
		return memory.New(), func() {}, nil
	}

	slog.Info("Connecting to Postgres")
	pg, err := postgres.Connect(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		pg.Close()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}
	return pg, pg.Close, nil
}

// setupBus selects NATS when a broker URL is configured and the in-process
// bus otherwise.
func setupBus(cfg *config.Config, logger *slog.Logger) (events.Bus, func(), error) {
	if cfg.NATSURL == "" {
		slog.Info("No NATS_URL set, using in-process event bus")
		return events.NewProcessBus(), func() {}, nil
	}

	slog.Info("Connecting to NATS", "url", cfg.NATSURL)
	bus, err := events.ConnectNATS(cfg.NATSURL, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return bus, bus.Close, nil
}

// setupHealth registers liveness checks for the backing resources.
func setupHealth(st store.Store, bus events.Bus) *health.Monitor {
	monitor := health.NewMonitor()

	if pg, ok := st.(*postgres.Store); ok {
		monitor.Register("store", pg.Ping)
	} else {
		monitor.Register("store", func(context.Context) error { return nil })
	}

	if nb, ok := bus.(*events.NATSBus); ok {
		monitor.Register("bus", func(context.Context) error {
			if !nb.Connected() {
				return fmt.Errorf("NATS connection lost")
			}
			return nil
		})
	}

	return monitor
}

// setupGateway wires the context builder, resolver set, executor and HTTP
// server together.
func setupGateway(cfg *config.Config, st store.Store, bus events.Bus, monitor *health.Monitor, logger *slog.Logger) (*graphql.Server, error) {
	builder, err := graphql.NewContextBuilder(st, cfg.Secret)
	if err != nil {
		return nil, fmt.Errorf("create context builder: %w", err)
	}

	resolver := graphql.NewResolver(bus, cfg.TokenTTL, logger)
	executor := graphql.NewExecutor(resolver)

	gwCfg := graphql.DefaultConfig()
	gwCfg.BindAddress = cfg.BindAddress
	gwCfg.Path = cfg.Path

	server, err := graphql.NewServer(gwCfg, builder, executor, bus, logger)
	if err != nil {
		return nil, fmt.Errorf("create gateway server: %w", err)
	}
	server.UseHealth(monitor)
	if err := server.Setup(); err != nil {
		return nil, fmt.Errorf("setup gateway server: %w", err)
	}
	return server, nil
}

// runWithSignalHandling starts the server and handles shutdown signals.
func runWithSignalHandling(ctx context.Context, server *graphql.Server, monitor *health.Monitor, shutdownTimeout time.Duration) error {
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	go monitor.Watch(signalCtx, healthCheckInterval)

	ready := make(chan struct{})
	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start(signalCtx, ready)
	}()

	select {
	case <-ready:
		slog.Info("SocialGate started successfully")
	case err := <-errChan:
		return fmt.Errorf("start server: %w", err)
	}

	select {
	case <-signalCtx.Done():
		slog.Info("Received shutdown signal")
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	}

	if err := server.Stop(shutdownTimeout); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	slog.Info("SocialGate shutdown complete")
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
