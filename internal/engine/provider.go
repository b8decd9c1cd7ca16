package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nupi-ai/stt-whisper-native/internal/audio"
	"github.com/nupi-ai/stt-whisper-native/internal/whisper"
)

// ProviderOptions configures a WhisperProvider.
type ProviderOptions struct {
	ModelPath    string
	ModelVariant string
	Context      whisper.ContextParams
	// NoState loads the model without decode state. Every stream then
	// decodes through the context's own storage, one at a time.
	NoState        bool
	OpenVINODevice string

	GrammarPath    string
	GrammarRule    string
	GrammarPenalty *float32

	Threads   *int
	BeamSize  *int
	Translate *bool

	// Workers is the number of States kept for Transcribe.
	Workers  int
	Observer DecodeObserver
}

// WhisperProvider shares one loaded model between streams. Each Engine it
// creates owns a State, so streams decode concurrently.
type WhisperProvider struct {
	opts         ProviderOptions
	ctx          *whisper.Context
	grammar      *whisper.Grammar
	multilingual bool
	pool         *Pool
	log          *slog.Logger

	// sharedMu serialises decodes through a no-state context.
	sharedMu  sync.Mutex
	closeOnce sync.Once
}

// NewWhisperProvider loads opts.ModelPath through rt.
func NewWhisperProvider(rt *whisper.Runtime, opts ProviderOptions, logger *slog.Logger) (*WhisperProvider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if rt == nil {
		return nil, errors.New("engine: whisper runtime is required")
	}
	log := logger.With("component", "engine.whisper", "model_path", opts.ModelPath)

	load := rt.LoadContext
	if opts.NoState {
		load = rt.LoadContextNoState
	}
	params := opts.Context
	wctx, err := load(opts.ModelPath, &params)
	if err != nil {
		return nil, fmt.Errorf("engine: load model: %w", err)
	}

	p := &WhisperProvider{opts: opts, ctx: wctx, log: log}
	if err := p.init(rt); err != nil {
		p.Close()
		return nil, err
	}
	log.Info("whisper provider ready",
		"no_state", opts.NoState,
		"multilingual", p.multilingual,
		"grammar", opts.GrammarPath,
		"workers", p.pool.Size(),
	)
	return p, nil
}

func (p *WhisperProvider) init(rt *whisper.Runtime) error {
	if device := strings.TrimSpace(p.opts.OpenVINODevice); device != "" {
		if err := p.ctx.InitOpenVINO(device); err != nil {
			return fmt.Errorf("engine: openvino encoder: %w", err)
		}
		p.log.Info("openvino encoder enabled", "device", device)
	}

	multilingual, err := p.ctx.IsMultilingual()
	if err != nil {
		return err
	}
	p.multilingual = multilingual

	if path := strings.TrimSpace(p.opts.GrammarPath); path != "" {
		g, err := rt.ParseGrammarFile(path)
		if err != nil {
			return fmt.Errorf("engine: grammar: %w", err)
		}
		p.grammar = g
	}

	workers := p.opts.Workers
	if workers < 1 {
		workers = 1
	}
	if p.ctx.NoState() && workers > 1 {
		p.log.Debug("no-state context decodes one clip at a time", "requested_workers", workers)
		workers = 1
	}
	pool, err := newPool(p, workers)
	if err != nil {
		return err
	}
	p.pool = pool
	return nil
}

// Name implements Provider.
func (p *WhisperProvider) Name() string { return "whisper" }

// ModelPath implements Provider.
func (p *WhisperProvider) ModelPath() string { return p.ctx.Path() }

// Multilingual reports whether the model supports languages other than English.
func (p *WhisperProvider) Multilingual() bool { return p.multilingual }

// Context exposes the shared model context.
func (p *WhisperProvider) Context() *whisper.Context { return p.ctx }

// Pool returns the batch decode pool.
func (p *WhisperProvider) Pool() *Pool { return p.pool }

// NewEngine returns a streaming Engine owning its own decode scope.
func (p *WhisperProvider) NewEngine() (Engine, error) {
	dec, err := p.newDecoder()
	if err != nil {
		return nil, err
	}
	return &WhisperEngine{
		provider: p,
		dec:      dec,
		log:      p.log.With("component", "engine.stream"),
	}, nil
}

// Transcribe decodes a complete PCM16 clip using one of the pooled States.
func (p *WhisperProvider) Transcribe(ctx context.Context, pcm []byte, language string) (Transcript, error) {
	return p.pool.Transcribe(ctx, pcm, language)
}

// Close releases pooled States, the grammar and the model, in that order.
// Engines should be closed first and no Transcribe may be in flight.
func (p *WhisperProvider) Close() error {
	p.closeOnce.Do(func() {
		if p.pool != nil {
			p.pool.close()
		}
		if p.grammar != nil {
			p.grammar.Close()
		}
		p.ctx.Close()
	})
	return nil
}

// params builds the decode configuration for lang.
func (p *WhisperProvider) params(lang string) whisper.FullParams {
	strategy := whisper.SamplingGreedy
	if p.opts.BeamSize != nil && *p.opts.BeamSize > 1 {
		strategy = whisper.SamplingBeamSearch
	}
	params := whisper.NewFullParams(strategy)
	params.PrintProgress = false
	params.PrintRealtime = false
	params.PrintTimestamps = false
	params.PrintSpecial = false
	if p.opts.Threads != nil {
		params.Threads = *p.opts.Threads
	}
	if strategy == whisper.SamplingBeamSearch {
		params.BeamSize = *p.opts.BeamSize
	}
	if p.opts.Translate != nil {
		params.Translate = *p.opts.Translate
	}

	lang = strings.TrimSpace(lang)
	if lang == "" {
		lang = "auto"
	}
	if !p.multilingual && !strings.EqualFold(lang, "en") {
		lang = "en"
	}
	params.Language = lang

	if p.grammar != nil {
		params.Grammar = p.grammar
		if p.opts.GrammarRule != "" {
			params.GrammarRule = p.opts.GrammarRule
		}
		if p.opts.GrammarPenalty != nil {
			params.GrammarPenalty = *p.opts.GrammarPenalty
		}
	}
	return params
}

// run performs one decode and reports it to the observer.
func (p *WhisperProvider) run(dec decoder, params *whisper.FullParams, samples []float32) ([]whisper.Segment, error) {
	start := time.Now()
	segments, err := dec.decode(params, samples)
	if p.opts.Observer != nil {
		p.opts.Observer.ObserveDecode(time.Since(start), len(samples), len(segments), err)
	}
	return segments, err
}

func (p *WhisperProvider) newDecoder() (decoder, error) {
	if p.ctx.NoState() {
		return &sharedDecoder{provider: p}, nil
	}
	st, err := p.ctx.NewState()
	if err != nil {
		return nil, fmt.Errorf("engine: allocate state: %w", err)
	}
	return &stateDecoder{ctx: p.ctx, state: st}, nil
}

// transcript converts decoded segments of samples into a Transcript.
func transcript(segments []whisper.Segment, samples int, lang string, elapsed time.Duration) Transcript {
	out := Transcript{
		Text:     joinSegments(segments),
		Language: lang,
		Duration: time.Duration(samples) * time.Second / audio.SampleRate,
		Elapsed:  elapsed,
	}
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" || strings.EqualFold(text, blankAudio) {
			continue
		}
		out.Segments = append(out.Segments, Segment{Start: seg.Start, End: seg.End, Text: text})
	}
	return out
}

// decoder is one scope results can be read back from.
type decoder interface {
	decode(params *whisper.FullParams, samples []float32) ([]whisper.Segment, error)
	Close() error
}

type stateDecoder struct {
	ctx   *whisper.Context
	state *whisper.State
}

func (d *stateDecoder) decode(params *whisper.FullParams, samples []float32) ([]whisper.Segment, error) {
	if _, err := d.ctx.FullWithState(d.state, params, samples, len(samples)); err != nil {
		return nil, err
	}
	return d.state.Segments()
}

func (d *stateDecoder) Close() error {
	return d.state.Close()
}

type sharedDecoder struct {
	provider *WhisperProvider
}

func (d *sharedDecoder) decode(params *whisper.FullParams, samples []float32) ([]whisper.Segment, error) {
	d.provider.sharedMu.Lock()
	defer d.provider.sharedMu.Unlock()
	ctx := d.provider.ctx
	if _, err := ctx.Full(params, samples, len(samples)); err != nil {
		return nil, err
	}
	return ctx.Segments()
}

func (d *sharedDecoder) Close() error { return nil }
