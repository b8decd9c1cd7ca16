package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/nupi-ai/stt-whisper-native/internal/audio"
)

const (
	windowSeconds       = 30   // maximum window for very long audio
	targetWindowSeconds = 10   // window size including overlap
	minFrameMillis      = 3000 // decode every ~3s of new audio

	maxAudioBytes     = audio.SampleRate * audio.BytesPerSample * windowSeconds
	targetWindowBytes = audio.SampleRate * audio.BytesPerSample * targetWindowSeconds
	minWhisperBytes   = audio.SampleRate * audio.BytesPerSample * minFrameMillis / 1000
)

// WhisperEngine transcribes one stream with a sliding window. New audio is
// decoded every few seconds together with an overlap from the previous
// window, and only the text that extends the previous transcript is emitted
// as a partial result.
type WhisperEngine struct {
	provider *WhisperProvider
	dec      decoder
	log      *slog.Logger

	mu      sync.Mutex
	inferMu sync.Mutex

	audio       []byte
	lastSegment []byte // overlap source for the next window
	prompt      string
	lastText    string
	language    string
	defaultLang string
	closed      bool
}

// TranscribeSegment implements the Engine interface.
func (e *WhisperEngine) TranscribeSegment(ctx context.Context, chunk []byte, opts Options) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(chunk) == 0 {
		return nil, nil
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, errEngineClosed
	}
	lang := normaliseLanguage(opts.Language, e.language, e.defaultLang)
	e.audio = append(e.audio, chunk...)
	if len(e.audio) < minWhisperBytes {
		e.mu.Unlock()
		return nil, nil
	}

	var buffer []byte
	if len(e.lastSegment) > 0 {
		overlapBytesNeeded := targetWindowBytes - len(e.audio)
		if overlapBytesNeeded < 0 {
			overlapBytesNeeded = 0
		}
		if overlapBytesNeeded > len(e.lastSegment) {
			overlapBytesNeeded = len(e.lastSegment)
		}
		overlap := e.lastSegment[len(e.lastSegment)-overlapBytesNeeded:]
		buffer = make([]byte, 0, len(overlap)+len(e.audio))
		buffer = append(buffer, overlap...)
		buffer = append(buffer, e.audio...)
	} else {
		buffer = append([]byte(nil), e.audio...)
	}
	if len(buffer) > maxAudioBytes {
		buffer = buffer[len(buffer)-maxAudioBytes:]
	}
	previous := e.lastText
	e.mu.Unlock()

	text, err := e.runInference(ctx, buffer, lang)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		e.log.Warn("inference failed", "error", err, "audio_len", len(buffer), "language", lang)
		return nil, err
	}
	if text != "" {
		e.log.Debug("inference aggregate", "stage", "segment", "audio_len", len(buffer), "language", lang, "text", text)
	}

	e.mu.Lock()
	e.language = lang
	e.audio = nil
	e.lastSegment = buffer
	delta := diffTranscript(previous, text)
	e.lastText = text
	e.mu.Unlock()

	if delta == "" {
		return nil, nil
	}
	return []Result{{Text: delta, Final: false, Language: lang}}, nil
}

// Flush implements the Engine interface. Pending audio is decoded; without
// any, the last window's transcript is repeated as final.
func (e *WhisperEngine) Flush(ctx context.Context, opts Options) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, errEngineClosed
	}
	lang := normaliseLanguage(opts.Language, e.language, e.defaultLang)
	buffer := append([]byte(nil), e.audio...)
	combined := e.lastText
	e.mu.Unlock()

	if len(buffer) > 0 {
		text, err := e.runInference(ctx, buffer, lang)
		if err != nil {
			e.mu.Lock()
			e.resetLocked()
			e.mu.Unlock()
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, nil
			}
			e.log.Warn("flush inference failed", "error", err, "audio_len", len(buffer), "language", lang)
			return nil, err
		}
		combined = text
	}

	e.mu.Lock()
	e.resetLocked()
	e.mu.Unlock()

	finalText := strings.TrimSpace(combined)
	if finalText == "" {
		return nil, nil
	}
	return []Result{{Text: finalText, Final: true, Language: lang}}, nil
}

// Close releases the engine's decode scope. It waits for an in-flight decode.
func (e *WhisperEngine) Close() error {
	e.inferMu.Lock()
	defer e.inferMu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.resetLocked()
	return e.dec.Close()
}

// SetDefaultLanguage configures the language used when callers request auto detection.
func (e *WhisperEngine) SetDefaultLanguage(lang string) {
	e.mu.Lock()
	e.defaultLang = strings.TrimSpace(lang)
	e.mu.Unlock()
}

func (e *WhisperEngine) runInference(ctx context.Context, pcm []byte, lang string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	samples := audio.PCM16ToFloat32(pcm)
	if len(samples) == 0 {
		return "", nil
	}

	e.inferMu.Lock()
	defer e.inferMu.Unlock()

	e.mu.Lock()
	closed := e.closed
	params := e.provider.params(lang)
	params.InitialPrompt = e.prompt
	e.mu.Unlock()
	if closed {
		return "", errEngineClosed
	}

	segments, err := e.provider.run(e.dec, &params, samples)
	if err != nil {
		return "", err
	}
	text := joinSegments(segments)

	e.mu.Lock()
	e.prompt = promptTail(text)
	e.mu.Unlock()
	return text, nil
}

func (e *WhisperEngine) resetLocked() {
	e.audio = nil
	e.lastSegment = nil
	e.prompt = ""
	e.lastText = ""
	e.language = ""
}

var errEngineClosed = errors.New("engine: closed")
