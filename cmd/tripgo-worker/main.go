package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/kirinyoku/tripgo/internal/app"
	"github.com/kirinyoku/tripgo/internal/config"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})).With("component", "worker")

	worker, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create worker", "error", err)
		os.Exit(1)
	}

	if err := worker.RunWorker(context.Background()); err != nil {
		logger.Error("worker finished with error", "error", err)
		os.Exit(1)
	}
}
