package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Loader loads configuration from an optional YAML file, the JSON payload and
// environment variables, in that order. Tests can override Lookup to inject
// deterministic maps.
type Loader struct {
	Lookup func(string) (string, bool)
}

// payload is the shape shared by the YAML file and the JSON payload. Pointer
// fields distinguish "unset" from zero values.
type payload struct {
	ListenAddr     *string  `json:"listen_addr" yaml:"listen_addr"`
	ModelVariant   *string  `json:"model_variant" yaml:"model_variant"`
	Language       *string  `json:"language" yaml:"language"`
	LogLevel       *string  `json:"log_level" yaml:"log_level"`
	DataDir        *string  `json:"data_dir" yaml:"data_dir"`
	ModelPath      *string  `json:"model_path" yaml:"model_path"`
	UseStubEngine  *bool    `json:"use_stub_engine" yaml:"use_stub_engine"`
	UseGPU         *bool    `json:"use_gpu" yaml:"use_gpu"`
	FlashAttention *bool    `json:"flash_attention" yaml:"flash_attention"`
	Threads        *int     `json:"threads" yaml:"threads"`
	BeamSize       *int     `json:"beam_size" yaml:"beam_size"`
	Translate      *bool    `json:"translate" yaml:"translate"`
	NoState        *bool    `json:"no_state" yaml:"no_state"`
	OpenVINODevice *string  `json:"openvino_device" yaml:"openvino_device"`
	GrammarPath    *string  `json:"grammar_path" yaml:"grammar_path"`
	GrammarRule    *string  `json:"grammar_rule" yaml:"grammar_rule"`
	GrammarPenalty *float32 `json:"grammar_penalty" yaml:"grammar_penalty"`
	Workers        *int     `json:"workers" yaml:"workers"`
	MetricsAddr    *string  `json:"metrics_addr" yaml:"metrics_addr"`
}

// Load retrieves the adapter configuration and validates it.
func (l Loader) Load() (Config, error) {
	if l.Lookup == nil {
		l.Lookup = os.LookupEnv
	}

	cfg := Config{
		ListenAddr: DefaultListenAddr,
	}

	if path, ok := l.Lookup("NUPI_ADAPTER_CONFIG_FILE"); ok && strings.TrimSpace(path) != "" {
		if err := applyYAMLFile(strings.TrimSpace(path), &cfg); err != nil {
			return Config{}, err
		}
	}

	if raw, ok := l.Lookup("NUPI_ADAPTER_CONFIG"); ok && strings.TrimSpace(raw) != "" {
		if err := applyJSON(raw, &cfg); err != nil {
			return Config{}, err
		}
	}

	overrideString(l.Lookup, "NUPI_ADAPTER_LISTEN_ADDR", &cfg.ListenAddr)
	overrideString(l.Lookup, "NUPI_LOG_LEVEL", &cfg.LogLevel)
	overrideString(l.Lookup, "NUPI_MODEL_VARIANT", &cfg.ModelVariant)
	overrideString(l.Lookup, "NUPI_LANGUAGE_HINT", &cfg.Language)
	overrideString(l.Lookup, "NUPI_ADAPTER_DATA_DIR", &cfg.DataDir)
	overrideString(l.Lookup, "NUPI_MODEL_PATH", &cfg.ModelPath)
	overrideString(l.Lookup, "NUPI_GRAMMAR_PATH", &cfg.GrammarPath)
	overrideString(l.Lookup, "NUPI_METRICS_ADDR", &cfg.MetricsAddr)
	overrideString(l.Lookup, "WHISPERCPP_OPENVINO_DEVICE", &cfg.OpenVINODevice)

	var err error
	if err = overrideBool(l.Lookup, "NUPI_ADAPTER_USE_STUB_ENGINE", func(v bool) { cfg.UseStubEngine = v }); err != nil {
		return Config{}, err
	}
	if err = overrideBool(l.Lookup, "WHISPERCPP_NO_STATE", func(v bool) { cfg.NoState = v }); err != nil {
		return Config{}, err
	}
	if err = overrideBool(l.Lookup, "WHISPERCPP_USE_GPU", func(v bool) { cfg.UseGPU = &v }); err != nil {
		return Config{}, err
	}
	if err = overrideBool(l.Lookup, "WHISPERCPP_FLASH_ATTENTION", func(v bool) { cfg.FlashAttention = &v }); err != nil {
		return Config{}, err
	}
	if err = overrideBool(l.Lookup, "WHISPERCPP_TRANSLATE", func(v bool) { cfg.Translate = &v }); err != nil {
		return Config{}, err
	}
	if err = overrideInt(l.Lookup, "WHISPERCPP_THREADS", func(v int) { cfg.Threads = &v }); err != nil {
		return Config{}, err
	}
	if err = overrideInt(l.Lookup, "WHISPERCPP_BEAM_SIZE", func(v int) { cfg.BeamSize = &v }); err != nil {
		return Config{}, err
	}
	if err = overrideInt(l.Lookup, "NUPI_ADAPTER_WORKERS", func(v int) { cfg.Workers = v }); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	var p payload
	if err := yaml.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("config: decode %s: %w", path, err)
	}
	p.apply(cfg)
	return nil
}

func applyJSON(raw string, cfg *Config) error {
	var p payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return fmt.Errorf("config: decode NUPI_ADAPTER_CONFIG: %w", err)
	}
	p.apply(cfg)
	return nil
}

func (p payload) apply(cfg *Config) {
	setString(p.ListenAddr, &cfg.ListenAddr)
	setString(p.ModelVariant, &cfg.ModelVariant)
	setString(p.Language, &cfg.Language)
	setString(p.LogLevel, &cfg.LogLevel)
	setString(p.DataDir, &cfg.DataDir)
	setString(p.ModelPath, &cfg.ModelPath)
	setString(p.OpenVINODevice, &cfg.OpenVINODevice)
	setString(p.GrammarPath, &cfg.GrammarPath)
	setString(p.GrammarRule, &cfg.GrammarRule)
	setString(p.MetricsAddr, &cfg.MetricsAddr)

	if p.UseStubEngine != nil {
		cfg.UseStubEngine = *p.UseStubEngine
	}
	if p.NoState != nil {
		cfg.NoState = *p.NoState
	}
	if p.UseGPU != nil {
		cfg.UseGPU = p.UseGPU
	}
	if p.FlashAttention != nil {
		cfg.FlashAttention = p.FlashAttention
	}
	if p.Translate != nil {
		cfg.Translate = p.Translate
	}
	if p.Threads != nil {
		// 0 selects the engine's automatic thread count.
		if *p.Threads == 0 {
			cfg.Threads = nil
		} else {
			cfg.Threads = p.Threads
		}
	}
	if p.BeamSize != nil {
		cfg.BeamSize = p.BeamSize
	}
	if p.GrammarPenalty != nil {
		cfg.GrammarPenalty = p.GrammarPenalty
	}
	if p.Workers != nil {
		cfg.Workers = *p.Workers
	}
}

func setString(value *string, target *string) {
	if value != nil && strings.TrimSpace(*value) != "" {
		*target = strings.TrimSpace(*value)
	}
}

func overrideString(lookup func(string) (string, bool), key string, target *string) {
	if lookup == nil || target == nil {
		return
	}
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		*target = strings.TrimSpace(value)
	}
}

func overrideBool(lookup func(string) (string, bool), key string, set func(bool)) error {
	value, ok := lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return nil
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	set(parsed)
	return nil
}

func overrideInt(lookup func(string) (string, bool), key string, set func(int)) error {
	value, ok := lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return nil
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	set(parsed)
	return nil
}
