package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/nupi-ai/stt-whisper-native/internal/config"
	"github.com/nupi-ai/stt-whisper-native/internal/models"
	"github.com/nupi-ai/stt-whisper-native/internal/native"
	"github.com/nupi-ai/stt-whisper-native/internal/whisper"
)

// ErrNativeEngineUnavailable indicates that whisper.cpp was not compiled in.
var ErrNativeEngineUnavailable = errors.New("engine: native backend unavailable")

// NativeAvailable reports whether the whisper.cpp backend is compiled in.
func NativeAvailable() bool { return native.Available() }

// New resolves the desired model and returns a Provider for it. The stub
// provider is returned, alongside the cause, whenever the model cannot be
// ensured or loaded.
func New(cfg config.Config, manager *models.Manager, logger *slog.Logger, observer DecodeObserver) (Provider, string, error) {
	manifest, err := models.DefaultManifest()
	if err != nil {
		return newProviderWithOptions(cfg, manager, logger, engineOptions{observer: observer})
	}

	return newProviderWithOptions(cfg, manager, logger, engineOptions{
		manifest: manifest,
		ensure: models.EnsureOptions{
			Manifest: manifest,
			Override: cfg.ModelPath,
		},
		observer: observer,
	})
}

type engineOptions struct {
	manifest models.Manifest
	ensure   models.EnsureOptions
	observer DecodeObserver
	// runtime replaces the process-wide library, which is only used when
	// whisper.cpp is compiled in.
	runtime *whisper.Runtime
}

func newProviderWithOptions(cfg config.Config, manager *models.Manager, logger *slog.Logger, opts engineOptions) (Provider, string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.UseStubEngine {
		path := ""
		if manager != nil && strings.TrimSpace(cfg.ModelPath) != "" {
			resolved, err := manager.Resolve(cfg.ModelVariant, cfg.ModelPath)
			if err != nil {
				return NewStubProvider(logger, cfg.ModelVariant, ""), "", err
			}
			path = resolved
		}
		logger.Warn("stub engine forced by configuration")
		return NewStubProvider(logger, cfg.ModelVariant, path), path, nil
	}

	if manager == nil {
		logger.Warn("model manager unavailable; using stub engine")
		return NewStubProvider(logger, cfg.ModelVariant, ""), "", ErrNativeEngineUnavailable
	}

	if len(opts.ensure.Manifest.Variants) == 0 && strings.TrimSpace(opts.ensure.Override) == "" {
		return NewStubProvider(logger, cfg.ModelVariant, ""), "", errors.New("models: manifest is empty")
	}

	modelPath, err := manager.EnsureVariant(context.Background(), cfg.ModelVariant, opts.ensure)
	if err != nil {
		logger.Warn("model ensure failed; using stub engine", "error", err)
		return NewStubProvider(logger, cfg.ModelVariant, ""), "", err
	}

	rt := opts.runtime
	if rt == nil {
		if !NativeAvailable() {
			logger.Warn("native backend disabled at build time; using stub engine", "model_path", modelPath)
			return NewStubProvider(logger, cfg.ModelVariant, modelPath), modelPath, ErrNativeEngineUnavailable
		}
		rt, err = whisper.LoadLibrary(&whisper.LoadOptions{Logger: logger, RequireNative: true})
		if err != nil {
			return NewStubProvider(logger, cfg.ModelVariant, modelPath), modelPath, err
		}
	}

	provider, err := NewWhisperProvider(rt, ProviderOptions{
		ModelPath:      modelPath,
		ModelVariant:   cfg.ModelVariant,
		Context:        contextParams(cfg),
		NoState:        cfg.NoState,
		OpenVINODevice: cfg.OpenVINODevice,
		GrammarPath:    cfg.GrammarPath,
		GrammarRule:    cfg.GrammarRule,
		GrammarPenalty: cfg.GrammarPenalty,
		Threads:        cfg.Threads,
		BeamSize:       cfg.BeamSize,
		Translate:      cfg.Translate,
		Workers:        cfg.Workers,
		Observer:       opts.observer,
	}, logger)
	if err != nil {
		logger.Error("native engine initialisation failed; using stub", "error", err, "model_path", modelPath)
		return NewStubProvider(logger, cfg.ModelVariant, modelPath), modelPath, err
	}
	logger.Info("native engine ready", "model_path", modelPath)
	return provider, modelPath, nil
}

func contextParams(cfg config.Config) whisper.ContextParams {
	params := whisper.DefaultContextParams()
	if cfg.UseGPU != nil {
		params.UseGPU = *cfg.UseGPU
	}
	if cfg.FlashAttention != nil {
		params.FlashAttention = *cfg.FlashAttention
	}
	return params
}
