package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/AwwCookies/Chatterbox-sub001/internal/relay"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}
	setupLogger()

	cfg := relay.FromEnv()
	if path := os.Getenv("RELAY_CONFIG"); path != "" {
		loaded, err := relay.LoadFile(path, cfg)
		if err != nil {
			slog.Error("failed to load config file", "path", path, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	hub := relay.NewHub()
	counters := relay.NewCounters()
	publisher := relay.NewPublisher(hub, counters)
	aggregator := relay.NewAggregator(hub, counters, cfg.TickInterval)
	server := relay.NewServer(cfg, hub, publisher)

	aggCtx, stopAggregator := context.WithCancel(context.Background())
	go aggregator.Run(aggCtx)

	httpServer := relay.NewHTTPServer(cfg.Addr, server.Routes())
	go func() {
		slog.Info("relay listening", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("relay shutting down")
	if err := relay.ShutdownHTTPServer(httpServer, shutdownTimeout); err != nil {
		slog.Warn("http shutdown incomplete", "error", err)
	}
	stopAggregator()
	if err := hub.Shutdown(shutdownTimeout); err != nil {
		slog.Warn("hub shutdown incomplete", "error", err)
	}
}

// setupLogger configures slog from LOG_LEVEL, routing through a rotating
// file when LOG_FILE is set.
func setupLogger() {
	level := slog.LevelInfo
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var out io.Writer = os.Stdout
	if path := os.Getenv("LOG_FILE"); path != "" {
		out = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    50, // megabytes
			MaxBackups: 3,
			MaxAge:     14, // days
		}
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})))
}
