package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nupi-ai/stt-whisper-native/internal/config"
)

func TestLoaderDefaults(t *testing.T) {
	loader := config.Loader{}
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.ListenAddr != config.DefaultListenAddr {
		t.Fatalf("expected listen addr %q, got %q", config.DefaultListenAddr, cfg.ListenAddr)
	}
	if cfg.ModelVariant != config.DefaultModel {
		t.Fatalf("expected model variant %q, got %q", config.DefaultModel, cfg.ModelVariant)
	}
	if cfg.Language != config.DefaultLanguage {
		t.Fatalf("expected language %q, got %q", config.DefaultLanguage, cfg.Language)
	}
	if cfg.LogLevel != config.DefaultLogLevel {
		t.Fatalf("expected log level %q, got %q", config.DefaultLogLevel, cfg.LogLevel)
	}
	if cfg.DataDir != config.DefaultDataDir {
		t.Fatalf("expected data dir %q, got %q", config.DefaultDataDir, cfg.DataDir)
	}
	if cfg.ModelPath != "" {
		t.Fatalf("expected empty model path, got %q", cfg.ModelPath)
	}
	if cfg.UseStubEngine {
		t.Fatalf("expected stub engine disabled by default")
	}
	if cfg.UseGPU != nil {
		t.Fatalf("expected use_gpu default (nil), got %v", cfg.UseGPU)
	}
	if cfg.FlashAttention != nil {
		t.Fatalf("expected flash_attention default (nil), got %v", cfg.FlashAttention)
	}
	if cfg.Threads != nil {
		t.Fatalf("expected threads default (nil), got %v", *cfg.Threads)
	}
	if cfg.Workers != config.DefaultWorkers {
		t.Fatalf("expected %d workers, got %d", config.DefaultWorkers, cfg.Workers)
	}
	if cfg.GrammarRule != config.DefaultGrammarRule {
		t.Fatalf("expected grammar rule %q, got %q", config.DefaultGrammarRule, cfg.GrammarRule)
	}
	if cfg.NoState {
		t.Fatalf("expected eager state by default")
	}
}

func TestLoaderOverrides(t *testing.T) {
	env := map[string]string{
		"NUPI_ADAPTER_CONFIG":          `{"model_variant":"small","language":"pl","log_level":"debug","data_dir":"/tmp/data","model_path":"/tmp/models/custom.gguf","use_stub_engine":false,"use_gpu":false,"flash_attention":true,"threads":4}`,
		"NUPI_ADAPTER_LISTEN_ADDR":     "0.0.0.0:6000",
		"NUPI_LOG_LEVEL":               "warn",
		"NUPI_MODEL_VARIANT":           "medium",
		"NUPI_LANGUAGE_HINT":           "en",
		"NUPI_ADAPTER_DATA_DIR":        "/var/lib/nupi",
		"NUPI_MODEL_PATH":              "/var/lib/nupi/models/medium.gguf",
		"NUPI_ADAPTER_USE_STUB_ENGINE": "true",
		"WHISPERCPP_USE_GPU":           "true",
		"WHISPERCPP_FLASH_ATTENTION":   "false",
		"WHISPERCPP_THREADS":           "6",
	}

	loader := config.Loader{
		Lookup: func(key string) (string, bool) {
			value, ok := env[key]
			return value, ok
		},
	}

	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	assertEqual(t, "0.0.0.0:6000", cfg.ListenAddr, "listen addr")
	assertEqual(t, "medium", cfg.ModelVariant, "model variant")
	assertEqual(t, "en", cfg.Language, "language")
	assertEqual(t, "warn", cfg.LogLevel, "log level")
	assertEqual(t, "/var/lib/nupi", cfg.DataDir, "data dir")
	assertEqual(t, "/var/lib/nupi/models/medium.gguf", cfg.ModelPath, "model path")
	assertBool(t, true, cfg.UseStubEngine, "use stub engine")
	assertBoolPtr(t, true, cfg.UseGPU, "use gpu")
	assertBoolPtr(t, false, cfg.FlashAttention, "flash attention")
	assertIntPtr(t, 6, cfg.Threads, "threads")
}

func TestLoaderThreadsAuto(t *testing.T) {
	env := map[string]string{
		"NUPI_ADAPTER_CONFIG": `{"threads":0}`,
	}

	loader := config.Loader{
		Lookup: func(key string) (string, bool) {
			value, ok := env[key]
			return value, ok
		},
	}

	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Threads != nil {
		t.Fatalf("expected threads nil when configured as 0, got %v", *cfg.Threads)
	}
}

func mapLookup(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		value, ok := env[key]
		return value, ok
	}
}

func TestLoaderYAMLFileIsOverriddenByJSONAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "adapter.yaml")
	yamlConfig := `
listen_addr: 127.0.0.1:7000
model_variant: tiny
language: client
grammar_path: /etc/nupi/commands.gbnf
grammar_rule: command
grammar_penalty: 50
workers: 4
no_state: true
beam_size: 3
metrics_addr: 127.0.0.1:9100
`
	if err := os.WriteFile(path, []byte(yamlConfig), 0o644); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}

	cfg, err := config.Loader{Lookup: mapLookup(map[string]string{
		"NUPI_ADAPTER_CONFIG_FILE": path,
		"NUPI_ADAPTER_CONFIG":      `{"model_variant":"small","workers":2}`,
		"WHISPERCPP_BEAM_SIZE":     "5",
		"WHISPERCPP_TRANSLATE":     "true",
	})}.Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	assertEqual(t, "127.0.0.1:7000", cfg.ListenAddr, "listen addr")
	assertEqual(t, "small", cfg.ModelVariant, "model variant")
	assertEqual(t, "client", cfg.Language, "language")
	assertEqual(t, "/etc/nupi/commands.gbnf", cfg.GrammarPath, "grammar path")
	assertEqual(t, "command", cfg.GrammarRule, "grammar rule")
	assertEqual(t, "127.0.0.1:9100", cfg.MetricsAddr, "metrics addr")
	assertBool(t, true, cfg.NoState, "no state")
	assertBoolPtr(t, true, cfg.Translate, "translate")
	assertIntPtr(t, 5, cfg.BeamSize, "beam size")
	if cfg.Workers != 2 {
		t.Fatalf("expected JSON workers to win, got %d", cfg.Workers)
	}
	if cfg.GrammarPenalty == nil || *cfg.GrammarPenalty != 50 {
		t.Fatalf("expected grammar penalty 50, got %v", cfg.GrammarPenalty)
	}
}

func TestLoaderRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad bool", map[string]string{"WHISPERCPP_USE_GPU": "maybe"}},
		{"bad int", map[string]string{"WHISPERCPP_THREADS": "four"}},
		{"negative threads", map[string]string{"WHISPERCPP_THREADS": "-1"}},
		{"zero beam", map[string]string{"WHISPERCPP_BEAM_SIZE": "0"}},
		{"too many workers", map[string]string{"NUPI_ADAPTER_WORKERS": "1000"}},
		{"unknown level", map[string]string{"NUPI_LOG_LEVEL": "chatty"}},
		{"bad json", map[string]string{"NUPI_ADAPTER_CONFIG": "{"}},
		{"missing yaml", map[string]string{"NUPI_ADAPTER_CONFIG_FILE": "/nonexistent/adapter.yaml"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := (config.Loader{Lookup: mapLookup(tc.env)}).Load(); err == nil {
				t.Fatalf("expected error for %v", tc.env)
			}
		})
	}
}

func TestSlogLevel(t *testing.T) {
	cfg := config.Config{LogLevel: "WARN"}
	if got := cfg.SlogLevel().String(); got != "WARN" {
		t.Fatalf("SlogLevel() = %s, want WARN", got)
	}
	cfg.LogLevel = ""
	if got := cfg.SlogLevel().String(); got != "INFO" {
		t.Fatalf("SlogLevel() = %s, want INFO", got)
	}
}

func assertEqual(t *testing.T, want, got, label string) {
	t.Helper()
	if want != got {
		t.Fatalf("unexpected %s: want %q, got %q", label, want, got)
	}
}

func assertBool(t *testing.T, want, got bool, label string) {
	t.Helper()
	if want != got {
		t.Fatalf("unexpected %s: want %v, got %v", label, want, got)
	}
}

func assertBoolPtr(t *testing.T, want bool, got *bool, label string) {
	t.Helper()
	if got == nil {
		t.Fatalf("unexpected %s: want %v, got nil", label, want)
	}
	if *got != want {
		t.Fatalf("unexpected %s: want %v, got %v", label, want, *got)
	}
}

func assertIntPtr(t *testing.T, want int, got *int, label string) {
	t.Helper()
	if got == nil {
		t.Fatalf("unexpected %s: want %d, got nil", label, want)
	}
	if *got != want {
		t.Fatalf("unexpected %s: want %d, got %d", label, want, *got)
	}
}
