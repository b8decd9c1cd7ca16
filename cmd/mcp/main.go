package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nupi-ai/stt-whisper-native/internal/config"
	"github.com/nupi-ai/stt-whisper-native/internal/engine"
	"github.com/nupi-ai/stt-whisper-native/internal/mcpserver"
	"github.com/nupi-ai/stt-whisper-native/internal/models"
	"github.com/nupi-ai/stt-whisper-native/internal/whisper"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Loader{}.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	// stdout carries the protocol.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	manager, err := models.NewManager(cfg.DataDir, logger)
	if err != nil {
		logger.Error("failed to initialise model manager", "error", err)
		os.Exit(1)
	}
	provider, _, err := engine.New(cfg, manager, logger, nil)
	if err != nil {
		logger.Warn("engine initialised with warnings", "error", err)
	}
	defer provider.Close()

	var systemInfo string
	if rt, err := whisper.Default(); err == nil {
		systemInfo = rt.SystemInfo()
	}

	srv := mcpserver.New(mcpserver.Config{
		ModelVariant: cfg.ModelVariant,
		Language:     cfg.Language,
		SystemInfo:   systemInfo,
	}, provider, manager, logger)
	if err := srv.RunStdio(ctx); err != nil && ctx.Err() == nil {
		logger.Error("mcp server terminated with error", "error", err)
		os.Exit(1)
	}
}
