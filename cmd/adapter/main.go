package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthgrpc "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/nupi-ai/stt-whisper-native/internal/config"
	"github.com/nupi-ai/stt-whisper-native/internal/engine"
	"github.com/nupi-ai/stt-whisper-native/internal/models"
	"github.com/nupi-ai/stt-whisper-native/internal/server"
	"github.com/nupi-ai/stt-whisper-native/internal/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Loader{}.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	logger.Info("starting adapter",
		"listen_addr", cfg.ListenAddr,
		"model_variant", cfg.ModelVariant,
		"language", cfg.Language,
		"data_dir", cfg.DataDir,
		"workers", cfg.Workers,
	)

	recorder := telemetry.NewRecorder(logger)

	manager, err := models.NewManager(cfg.DataDir, logger)
	if err != nil {
		logger.Error("failed to initialise model manager", "error", err)
		os.Exit(1)
	}

	provider, modelPath, engineErr := engine.New(cfg, manager, logger, recorder)
	if engineErr != nil {
		logger.Warn("engine initialised with warnings", "error", engineErr)
	}
	if modelPath != "" {
		logger.Info("resolved model path", "path", modelPath)
	}
	defer func() {
		if err := provider.Close(); err != nil {
			logger.Warn("failed to close engine", "error", err)
		}
	}()

	if cfg.MetricsAddr != "" {
		metricsServer := startMetrics(cfg.MetricsAddr, recorder, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn("metrics server shutdown failed", "error", err)
			}
		}()
	}

	lis, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Error("failed to bind listener", "error", err)
		os.Exit(1)
	}
	defer lis.Close()

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthgrpc.RegisterHealthServer(grpcServer, healthServer)

	healthServer.SetServingStatus("", healthgrpc.HealthCheckResponse_NOT_SERVING)
	healthServer.SetServingStatus(server.ServiceName, healthgrpc.HealthCheckResponse_NOT_SERVING)

	server.RegisterTranscriberServer(grpcServer, server.New(cfg, logger, provider, recorder))

	healthServer.SetServingStatus("", healthgrpc.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(server.ServiceName, healthgrpc.HealthCheckResponse_SERVING)

	go func() {
		<-ctx.Done()
		logger.Info("shutdown requested, stopping gRPC server")
		healthServer.SetServingStatus(server.ServiceName, healthgrpc.HealthCheckResponse_NOT_SERVING)
		healthServer.SetServingStatus("", healthgrpc.HealthCheckResponse_NOT_SERVING)

		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()

		select {
		case <-stopped:
		case <-time.After(5 * time.Second):
			logger.Warn("graceful stop timed out, forcing stop")
			grpcServer.Stop()
		}
	}()

	if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		logger.Error("gRPC server terminated with error", "error", err)
		os.Exit(1)
	}

	snapshot := recorder.Snapshot()
	if snapshot.TotalStreams > 0 || snapshot.TotalDecodes > 0 {
		logger.Info("telemetry totals",
			"total_streams", snapshot.TotalStreams,
			"total_segments", snapshot.TotalSegments,
			"total_transcripts", snapshot.TotalTranscripts,
			"total_final_transcripts", snapshot.TotalFinalTranscripts,
			"total_bytes", snapshot.TotalBytes,
			"total_flushes", snapshot.TotalFlushes,
			"total_decodes", snapshot.TotalDecodes,
			"failed_decodes", snapshot.FailedDecodes,
			"decode_ms", snapshot.DecodeTime.Milliseconds(),
		)
	}

	logger.Info("adapter stopped")
}

func startMetrics(addr string, recorder *telemetry.Recorder, logger *slog.Logger) *http.Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		telemetry.NewCollector(recorder),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("metrics endpoint listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server terminated with error", "error", err)
		}
	}()
	return srv
}
