package engine

import (
	"context"
	"time"
)

// Engine exposes a streaming transcription interface backed by whisper.cpp or a stub implementation.
type Engine interface {
	// TranscribeSegment processes a chunk of audio and may emit zero or more transcripts.
	TranscribeSegment(ctx context.Context, audio []byte, opts Options) ([]Result, error)
	// Flush finalises the transcription session and emits any buffered transcripts.
	Flush(ctx context.Context, opts Options) ([]Result, error)
	// Close releases underlying resources.
	Close() error
}

// Provider owns a loaded model and hands out one Engine per stream.
type Provider interface {
	// NewEngine returns an Engine with its own decode scratch space.
	NewEngine() (Engine, error)
	// Transcribe decodes a complete PCM16 clip in one call.
	Transcribe(ctx context.Context, audio []byte, language string) (Transcript, error)
	// Name identifies the backend ("whisper" or "stub").
	Name() string
	// ModelPath returns the loaded model file, or "" for the stub.
	ModelPath() string
	Close() error
}

// Options configures decoding for a segment or flush call.
type Options struct {
	Language string
	// Final indicates whether the segment corresponds to the end of the stream.
	Final bool
	// Sequence carries the original sequence number from the segment, when available.
	Sequence uint64
}

// Result represents a transcript produced by the engine.
type Result struct {
	Text       string
	Confidence float32
	Final      bool
	Language   string
}

// Segment is one timestamped piece of a batch transcript.
type Segment struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

// Transcript is the outcome of decoding a complete clip.
type Transcript struct {
	Text     string
	Language string
	Segments []Segment
	Duration time.Duration
	// Elapsed is the wall time spent decoding.
	Elapsed time.Duration
}

// DecodeObserver is told about every native decode.
type DecodeObserver interface {
	ObserveDecode(elapsed time.Duration, samples int, segments int, err error)
}

// languageHintSetter is implemented by engines that accept a per-stream default language.
type languageHintSetter interface {
	SetDefaultLanguage(lang string)
}

// SetDefaultLanguage forwards the hint when eng supports it.
func SetDefaultLanguage(eng Engine, lang string) {
	if setter, ok := eng.(languageHintSetter); ok {
		setter.SetDefaultLanguage(lang)
	}
}
