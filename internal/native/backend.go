package native

import "errors"

// ErrUnavailable indicates that the requested backend was not compiled in.
var ErrUnavailable = errors.New("native: backend unavailable")

// ContextParams mirrors the engine's context initialisation bundle.
type ContextParams struct {
	UseGPU             bool
	GPUDevice          int
	FlashAttention     bool
	DTWTokenTimestamps bool
}

// SamplingStrategy selects the decoder search.
type SamplingStrategy int

const (
	SamplingGreedy SamplingStrategy = iota
	SamplingBeamSearch
)

// FullParams is the decode configuration passed to the engine verbatim. The
// grammar travels as a handle; every other field is a plain value.
type FullParams struct {
	Strategy SamplingStrategy
	Threads  int
	// MaxTextContext bounds the number of prompt tokens carried between windows.
	MaxTextContext int
	OffsetMillis   int
	DurationMillis int

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

	Temperature     float32
	TemperatureInc  float32
	MaxInitialTS    float32
	LengthPenalty   float32
	EntropyThold    float32
	LogprobThold    float32
	NoSpeechThold   float32
	GreedyBestOf    int
	BeamSize        int
	BeamPatience    float32
	AudioContext    int
	TinyDiarize     bool

	Grammar        Handle
	GrammarRule    string
	GrammarPenalty float32
}

// DefaultFullParams returns the engine defaults for strategy.
func DefaultFullParams(strategy SamplingStrategy) FullParams {
	p := FullParams{
		Strategy:        strategy,
		MaxTextContext:  16384,
		Language:        "en",
		PrintProgress:   true,
		PrintRealtime:   false,
		PrintTimestamps: true,
		SuppressBlank:   true,
		Temperature:     0,
		TemperatureInc:  0.2,
		MaxInitialTS:    1.0,
		LengthPenalty:   -1,
		EntropyThold:    2.4,
		LogprobThold:    -1,
		NoSpeechThold:   0.6,
		GreedyBestOf:    5,
		BeamSize:        -1,
		BeamPatience:    -1,
		Grammar:         InvalidHandle,
		GrammarRule:     "root",
		GrammarPenalty:  100,
	}
	if strategy == SamplingBeamSearch {
		p.GreedyBestOf = 5
		p.BeamSize = 5
	}
	return p
}

// Backend is the boundary to the native speech engine. All objects are
// referenced by plain integer handles; no object graphs cross the boundary.
// Implementations do not validate caller discipline beyond rejecting
// unknown handles.
type Backend interface {
	// Init loads a model and eagerly allocates its default decode state.
	Init(modelPath string, params ContextParams) Handle
	// InitNoState loads a model without allocating decode scratch space.
	InitNoState(modelPath string, params ContextParams) Handle
	// InitState allocates decode scratch space for the context.
	InitState(context Handle) Handle
	// LoadGrammar parses grammar text.
	LoadGrammar(text string) Handle
	// InitOpenVINOEncoder enables the OpenVINO encoder for the context.
	InitOpenVINOEncoder(context Handle, device string) int
	IsMultilingual(context Handle) bool

	// Full decodes samples into the context's own segment storage.
	Full(context Handle, params FullParams, samples []float32, numSamples int) int
	// FullWithState decodes samples into the state's segment storage.
	FullWithState(context, state Handle, params FullParams, samples []float32, numSamples int) int

	FullNSegments(context Handle) int
	FullNSegmentsFromState(state Handle) int
	FullGetSegmentT0(context Handle, index int) int64
	FullGetSegmentT1(context Handle, index int) int64
	FullGetSegmentText(context Handle, index int) string
	FullGetSegmentT0FromState(state Handle, index int) int64
	FullGetSegmentT1FromState(state Handle, index int) int64
	FullGetSegmentTextFromState(state Handle, index int) string

	FreeContext(context Handle)
	FreeState(state Handle)
	FreeGrammar(grammar Handle)

	SystemInfo() string
	SetLogEnabled(enabled bool)
}
