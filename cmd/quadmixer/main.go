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

	"golang.org/x/sync/errgroup"

	"github.com/dtmf/quadraphonic-trunked-radio-player/internal/call"
	"github.com/dtmf/quadraphonic-trunked-radio-player/internal/config"
	"github.com/dtmf/quadraphonic-trunked-radio-player/internal/engine"
	"github.com/dtmf/quadraphonic-trunked-radio-player/internal/metrics"
	"github.com/dtmf/quadraphonic-trunked-radio-player/internal/mixer"
	"github.com/dtmf/quadraphonic-trunked-radio-player/internal/server"
	"github.com/dtmf/quadraphonic-trunked-radio-player/internal/status"
)

const (
	serviceName    = "quadmixer"
	serviceVersion = "1.0.0"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (defaults apply when omitted)")
	flag.Parse()

	var cfg *config.Config
	var err error
	if *configPath == "" {
		cfg = config.Default()
	} else {
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
			os.Exit(1)
		}
	}

	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	logger.Info("Configuration loaded",
		slog.Int("udp_port", cfg.Server.UDPPort),
		slog.String("bind_address", cfg.Server.BindAddress),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Int("chunk_ms", cfg.Audio.ChunkMS),
		slog.Float64("stream_timeout", cfg.Audio.StreamTimeout),
		slog.Int("max_buffer_chunks", cfg.Audio.MaxBufferChunks),
		slog.String("status_path", cfg.Status.Path),
		slog.String("log_level", cfg.Logging.Level),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appMetrics := metrics.NewMetrics()

	registry := call.NewRegistry(logger, cfg.Pan.EdgeMargin)
	mixEngine := mixer.NewEngine(cfg.Audio.ChunkFrames() * cfg.Audio.MaxBufferChunks)
	router := engine.NewRouter(registry, mixEngine, appMetrics, logger, cfg.Audio.KeepaliveFloor)

	// stdout carries the raw quad PCM stream, intended to be piped straight
	// into ffmpeg. Everything human-readable goes to the logger.
	pacer := mixer.NewPacer(mixEngine, os.Stdout, appMetrics, logger,
		cfg.Audio.ChunkFrames(), cfg.Audio.ChunkDuration())

	sweeper := call.NewSweeper(registry, appMetrics, mixEngine,
		cfg.Audio.SweepInterval(), cfg.Audio.StreamTimeoutDuration(), logger)

	projector := status.NewProjector(registry, appMetrics,
		cfg.Status.Path, cfg.Status.Interval(), logger)

	udpServer := server.NewUDPServer(&cfg.Server, logger, router, appMetrics)

	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, registry, mixEngine, udpServer, appMetrics)
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return udpServer.Run(gctx) })
	g.Go(func() error { return pacer.Run(gctx) })
	g.Go(func() error { return sweeper.Run(gctx) })
	g.Go(func() error { return projector.Run(gctx) })

	logger.Info("Service started",
		slog.String("udp_address", fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.UDPPort)),
		slog.String("output_format", fmt.Sprintf("%d Hz s16le 4-channel", cfg.Audio.SampleRate)),
	)

	err = g.Wait()

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if stopErr := httpServer.Stop(shutdownCtx); stopErr != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", stopErr.Error()))
		}
		shutdownCancel()
	}

	stats := udpServer.Statistics()
	logger.Info("Final server statistics",
		slog.Uint64("packets_received", stats.PacketsReceived),
		slog.Uint64("packets_processed", stats.PacketsProcessed),
		slog.Uint64("parse_errors", stats.ParseErrors),
		slog.Uint64("packets_dropped", stats.PacketsDropped),
	)

	if err != nil {
		// Only one thing gets here: losing the output sink. The stream is
		// the whole point of the process, so this is fatal.
		logger.Error("Service failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger. The default
// output is stderr because stdout belongs to the PCM stream.
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
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr", "":
		output = os.Stderr
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stderr\n", cfg.Output, err)
			output = os.Stderr
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

	return slog.New(handler)
}
