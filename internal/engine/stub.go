package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nupi-ai/stt-whisper-native/internal/adapterinfo"
	"github.com/nupi-ai/stt-whisper-native/internal/audio"
)

// StubEngine produces deterministic transcripts without invoking Whisper.
type StubEngine struct {
	log          *slog.Logger
	modelVariant string
	totalBytes   int
}

// NewStubEngine returns an Engine that generates placeholder transcripts.
func NewStubEngine(logger *slog.Logger, modelVariant string) *StubEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubEngine{
		log: logger.With(
			"component", "engine.stub",
			"adapter", adapterinfo.Info.Slug,
			"model_variant", modelVariant,
		),
		modelVariant: modelVariant,
	}
}

// Close implements the Engine interface.
func (e *StubEngine) Close() error {
	return nil
}

// TranscribeSegment implements the Engine interface.
func (e *StubEngine) TranscribeSegment(ctx context.Context, chunk []byte, opts Options) ([]Result, error) {
	if len(chunk) == 0 {
		return nil, nil
	}
	e.totalBytes += len(chunk)
	text := fmt.Sprintf("[stub:%s] received %d bytes", e.modelVariant, len(chunk))
	e.log.Debug("stub transcript", "bytes", len(chunk), "sequence", opts.Sequence, "final", opts.Final)
	return []Result{
		{
			Text:       text,
			Confidence: 0.42,
			Final:      opts.Final,
			Language:   opts.Language,
		},
	}, nil
}

// Flush implements the Engine interface.
func (e *StubEngine) Flush(ctx context.Context, opts Options) ([]Result, error) {
	text := "[stub] stream closed"
	if e.totalBytes > 0 {
		text = fmt.Sprintf("[stub:%s] total bytes %d", e.modelVariant, e.totalBytes)
	}
	e.log.Debug("stub flush", "total_bytes", e.totalBytes)
	e.totalBytes = 0
	return []Result{
		{
			Text:       text,
			Confidence: 1.0,
			Final:      true,
			Language:   opts.Language,
		},
	}, nil
}

// SetDefaultLanguage satisfies the languageHintSetter interface; the stub ignores the hint.
func (e *StubEngine) SetDefaultLanguage(string) {}

// StubProvider hands out StubEngines.
type StubProvider struct {
	log          *slog.Logger
	modelVariant string
	modelPath    string
}

// NewStubProvider returns a Provider that never loads a model.
func NewStubProvider(logger *slog.Logger, modelVariant, modelPath string) *StubProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubProvider{log: logger, modelVariant: modelVariant, modelPath: modelPath}
}

// NewEngine implements Provider.
func (p *StubProvider) NewEngine() (Engine, error) {
	return NewStubEngine(p.log, p.modelVariant), nil
}

// Transcribe implements Provider.
func (p *StubProvider) Transcribe(ctx context.Context, pcm []byte, language string) (Transcript, error) {
	if err := ctx.Err(); err != nil {
		return Transcript{}, err
	}
	duration := time.Duration(len(pcm)/audio.BytesPerSample) * time.Second / audio.SampleRate
	text := fmt.Sprintf("[stub:%s] received %d bytes", p.modelVariant, len(pcm))
	return Transcript{
		Text:     text,
		Language: normaliseLanguage(language, "", ""),
		Segments: []Segment{{Start: 0, End: duration, Text: text}},
		Duration: duration,
	}, nil
}

// Name implements Provider.
func (p *StubProvider) Name() string { return "stub" }

// ModelPath implements Provider.
func (p *StubProvider) ModelPath() string { return p.modelPath }

// Close implements Provider.
func (p *StubProvider) Close() error { return nil }
