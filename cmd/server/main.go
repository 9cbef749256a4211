package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/herizador/Proxy-Audio-share/internal/config"
	"github.com/herizador/Proxy-Audio-share/internal/events"
	"github.com/herizador/Proxy-Audio-share/internal/metrics"
	"github.com/herizador/Proxy-Audio-share/internal/relay"
	"github.com/herizador/Proxy-Audio-share/internal/server"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "audio-relay"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file (empty for defaults)")
	flag.Parse()

	// A missing .env file is fine, the environment may already be set
	envErr := godotenv.Load()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)
	if envErr != nil {
		logger.Debug("No .env file loaded", slog.String("error", envErr.Error()))
	}

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	logger.Info("Configuration loaded",
		slog.String("address", fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port)),
		slog.Int("max_message_size", cfg.Server.MaxMessageSize),
		slog.Int("buffer_capacity", cfg.Relay.BufferCapacity),
		slog.Int("max_frame_size", cfg.Relay.MaxFrameSize),
		slog.Duration("inactive_timeout", cfg.Relay.GetInactiveTimeoutDuration()),
		slog.Duration("sweep_interval", cfg.Relay.GetSweepIntervalDuration()),
		slog.Bool("events_enabled", cfg.Events.Enabled),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics(prometheus.DefaultRegisterer)
	logger.Info("Prometheus metrics initialized")

	// Lifecycle event publishing
	publisher, err := newEventPublisher(cfg.Events, logger)
	if err != nil {
		logger.Error("Failed to create event publisher", slog.String("error", err.Error()))
		os.Exit(1)
	}
	dispatcher := events.NewDispatcher(publisher, cfg.Events.QueueSize,
		cfg.Events.GetPublishTimeoutDuration(), logger, appMetrics)

	// Relay core
	registry := relay.NewRegistry(relay.RoomConfig{
		BufferCapacity:    cfg.Relay.BufferCapacity,
		MaxFrameSize:      cfg.Relay.MaxFrameSize,
		MinPacketInterval: cfg.Relay.GetMinPacketInterval(),
		InboxSize:         cfg.Relay.InboxSize,
	}, relay.Dependencies{
		Logger:  logger,
		Metrics: appMetrics,
		Events:  dispatcher,
	})
	router := relay.NewRouter(registry, logger, appMetrics)
	sweeper := relay.NewSweeper(registry, cfg.Relay.GetSweepIntervalDuration(),
		cfg.Relay.GetInactiveTimeoutDuration(), logger, appMetrics)

	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		sweeper.Run(ctx)
	}()

	// HTTP and WebSocket front door
	httpServer := server.NewHTTPServer(cfg, logger, registry, router, appMetrics)
	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("address", fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port)),
	)

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	// Stop accepting new connections first
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	// Stop the sweeper, then close every room with a going-away code
	cancel()
	<-sweeperDone

	stats := registry.Stats()
	registry.Close()

	// Flush queued lifecycle events
	if err := dispatcher.Close(); err != nil {
		logger.Warn("Error closing event publisher", slog.String("error", err.Error()))
	}

	logger.Info("Final relay statistics",
		slog.Int("rooms", stats.Rooms),
		slog.Int("publishers", stats.Publishers),
		slog.Int("subscribers", stats.Subscribers),
	)

	logger.Info("Service stopped")
}

// newEventPublisher returns a Redis publisher when events are enabled
func newEventPublisher(cfg config.EventsConfig, logger *slog.Logger) (events.Publisher, error) {
	if !cfg.Enabled {
		logger.Info("Lifecycle events disabled")
		return events.NopPublisher{}, nil
	}

	publisher, err := events.NewRedisPublisher(events.RedisConfig{
		Address:  cfg.RedisAddress,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Channel:  cfg.Channel,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Publishing lifecycle events to Redis",
		slog.String("redis_address", cfg.RedisAddress),
		slog.String("channel", cfg.Channel),
	)

	return publisher, nil
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler).With(slog.String("service", serviceName))
}
