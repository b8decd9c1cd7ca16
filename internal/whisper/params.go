package whisper

import "github.com/nupi-ai/stt-whisper-native/internal/native"

// SamplingStrategy selects the decoder search.
type SamplingStrategy = native.SamplingStrategy

const (
	SamplingGreedy     = native.SamplingGreedy
	SamplingBeamSearch = native.SamplingBeamSearch
)

// ContextParams configures model loading.
type ContextParams struct {
	UseGPU             bool
	GPUDevice          int
	FlashAttention     bool
	DTWTokenTimestamps bool
}

// DefaultContextParams matches the engine defaults.
func DefaultContextParams() ContextParams {
	return ContextParams{UseGPU: true}
}

func (p *ContextParams) native() native.ContextParams {
	if p == nil {
		d := DefaultContextParams()
		p = &d
	}
	return native.ContextParams{
		UseGPU:             p.UseGPU,
		GPUDevice:          p.GPUDevice,
		FlashAttention:     p.FlashAttention,
		DTWTokenTimestamps: p.DTWTokenTimestamps,
	}
}

// FullParams is the decode configuration. Fields other than Grammar are
// handed to the engine as is.
type FullParams struct {
	Strategy       SamplingStrategy
	Threads        int
	MaxTextContext int
	OffsetMillis   int
	DurationMillis int

	// Language is an ISO 639-1 hint, or "auto" together with DetectLanguage.
	Language       string
	DetectLanguage bool
	Translate      bool
	NoContext      bool
	NoTimestamps   bool
	SingleSegment  bool
	SuppressBlank  bool
	InitialPrompt  string

	PrintProgress   bool
	PrintRealtime   bool
	PrintTimestamps bool
	PrintSpecial    bool

	TokenTimestamps bool
	MaxLen          int
	SplitOnWord     bool
	MaxTokens       int

	Temperature    float32
	TemperatureInc float32
	MaxInitialTS   float32
	LengthPenalty  float32
	EntropyThold   float32
	LogprobThold   float32
	NoSpeechThold  float32
	GreedyBestOf   int
	BeamSize       int
	BeamPatience   float32
	AudioContext   int
	TinyDiarize    bool

	// Grammar constrains decoding when set. It must stay open until the
	// decode returns.
	Grammar        *Grammar
	GrammarRule    string
	GrammarPenalty float32
}

// NewFullParams returns the engine defaults for strategy.
func NewFullParams(strategy SamplingStrategy) FullParams {
	d := native.DefaultFullParams(strategy)
	return FullParams{
		Strategy:        d.Strategy,
		Threads:         d.Threads,
		MaxTextContext:  d.MaxTextContext,
		OffsetMillis:    d.OffsetMillis,
		DurationMillis:  d.DurationMillis,
		Language:        d.Language,
		DetectLanguage:  d.DetectLanguage,
		Translate:       d.Translate,
		NoContext:       d.NoContext,
		NoTimestamps:    d.NoTimestamps,
		SingleSegment:   d.SingleSegment,
		SuppressBlank:   d.SuppressBlank,
		InitialPrompt:   d.InitialPrompt,
		PrintProgress:   d.PrintProgress,
		PrintRealtime:   d.PrintRealtime,
		PrintTimestamps: d.PrintTimestamps,
		PrintSpecial:    d.PrintSpecial,
		TokenTimestamps: d.TokenTimestamps,
		MaxLen:          d.MaxLen,
		SplitOnWord:     d.SplitOnWord,
		MaxTokens:       d.MaxTokens,
		Temperature:     d.Temperature,
		TemperatureInc:  d.TemperatureInc,
		MaxInitialTS:    d.MaxInitialTS,
		LengthPenalty:   d.LengthPenalty,
		EntropyThold:    d.EntropyThold,
		LogprobThold:    d.LogprobThold,
		NoSpeechThold:   d.NoSpeechThold,
		GreedyBestOf:    d.GreedyBestOf,
		BeamSize:        d.BeamSize,
		BeamPatience:    d.BeamPatience,
		AudioContext:    d.AudioContext,
		TinyDiarize:     d.TinyDiarize,
		GrammarRule:     d.GrammarRule,
		GrammarPenalty:  d.GrammarPenalty,
	}
}

// resolve checks the attached grammar and produces the native bundle.
func (p *FullParams) resolve(op string) (native.FullParams, error) {
	if p == nil {
		d := NewFullParams(SamplingGreedy)
		p = &d
	}
	if p.OffsetMillis < 0 || p.DurationMillis < 0 {
		return native.FullParams{}, newError(op, KindInvalidArgument).
			detail("offset %d ms and duration %d ms must not be negative", p.OffsetMillis, p.DurationMillis).build()
	}
	out := native.FullParams{
		Strategy:        p.Strategy,
		Threads:         p.Threads,
		MaxTextContext:  p.MaxTextContext,
		OffsetMillis:    p.OffsetMillis,
		DurationMillis:  p.DurationMillis,
		Language:        p.Language,
		DetectLanguage:  p.DetectLanguage,
		Translate:       p.Translate,
		NoContext:       p.NoContext,
		NoTimestamps:    p.NoTimestamps,
		SingleSegment:   p.SingleSegment,
		SuppressBlank:   p.SuppressBlank,
		InitialPrompt:   p.InitialPrompt,
		PrintProgress:   p.PrintProgress,
		PrintRealtime:   p.PrintRealtime,
		PrintTimestamps: p.PrintTimestamps,
		PrintSpecial:    p.PrintSpecial,
		TokenTimestamps: p.TokenTimestamps,
		MaxLen:          p.MaxLen,
		SplitOnWord:     p.SplitOnWord,
		MaxTokens:       p.MaxTokens,
		Temperature:     p.Temperature,
		TemperatureInc:  p.TemperatureInc,
		MaxInitialTS:    p.MaxInitialTS,
		LengthPenalty:   p.LengthPenalty,
		EntropyThold:    p.EntropyThold,
		LogprobThold:    p.LogprobThold,
		NoSpeechThold:   p.NoSpeechThold,
		GreedyBestOf:    p.GreedyBestOf,
		BeamSize:        p.BeamSize,
		BeamPatience:    p.BeamPatience,
		AudioContext:    p.AudioContext,
		TinyDiarize:     p.TinyDiarize,
		Grammar:         native.InvalidHandle,
		GrammarRule:     p.GrammarRule,
		GrammarPenalty:  p.GrammarPenalty,
	}
	if p.Grammar != nil {
		if err := p.Grammar.check(op); err != nil {
			return native.FullParams{}, err
		}
		out.Grammar = p.Grammar.handle
	}
	return out, nil
}
