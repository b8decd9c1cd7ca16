//go:build whispercpp

package native

/*
#cgo CFLAGS: -I${SRCDIR}/../../third_party/whisper.cpp -I${SRCDIR}/../../third_party/whisper.cpp/include -I${SRCDIR}/../../third_party/whisper.cpp/ggml/include
#cgo CXXFLAGS: -std=c++17 -I${SRCDIR}/../../third_party/whisper.cpp -I${SRCDIR}/../../third_party/whisper.cpp/include -I${SRCDIR}/../../third_party/whisper.cpp/ggml/include -I${SRCDIR}/../../third_party/whisper.cpp/examples
#cgo LDFLAGS: -L${SRCDIR}/../../third_party/whisper.cpp/build -L${SRCDIR}/../../third_party/whisper.cpp/build/src -Wl,-rpath,${SRCDIR}/../../third_party/whisper.cpp/build/src -lwhisper -lstdc++ -lm

#include "stdlib.h"
#include "include/whisper.h"
#include "ggml.h"
#include "grammar_shim.h"

void whisperGoLog(int level, char * text, void * user_data);
*/
import "C"

import (
	"sync"
	"unsafe"
)

var (
	cgoOnce    sync.Once
	cgoDefault *CGOBackend
)

// Available reports whether the whisper.cpp backend is compiled in.
func Available() bool { return true }

// Default returns the process-wide whisper.cpp backend.
func Default() Backend {
	cgoOnce.Do(func() {
		C.whisper_log_set((C.ggml_log_callback)(C.whisperGoLog), nil)
		cgoDefault = &CGOBackend{
			contexts: NewTable[*cgoContext](),
			states:   NewTable[*cgoState](),
			grammars: NewTable[*cgoGrammar](),
		}
	})
	return cgoDefault
}

// CGOBackend maps integer handles onto whisper.cpp objects.
type CGOBackend struct {
	contexts *Table[*cgoContext]
	states   *Table[*cgoState]
	grammars *Table[*cgoGrammar]
}

type cgoContext struct {
	ptr *C.struct_whisper_context

	// Contexts loaded without a state decode through a private state that is
	// allocated on the first Context-only call.
	noState bool
	mu      sync.Mutex
	private *C.struct_whisper_state
}

type cgoState struct {
	ptr *C.struct_whisper_state
}

type cgoGrammar struct {
	ptr *C.whisper_go_grammar
}

func contextParams(p ContextParams) C.struct_whisper_context_params {
	cParams := C.whisper_context_default_params()
	cParams.use_gpu = C.bool(p.UseGPU)
	cParams.flash_attn = C.bool(p.FlashAttention)
	cParams.gpu_device = C.int(p.GPUDevice)
	cParams.dtw_token_timestamps = C.bool(p.DTWTokenTimestamps)
	return cParams
}

func (b *CGOBackend) Init(modelPath string, params ContextParams) Handle {
	cPath := C.CString(modelPath)
	defer C.free(unsafe.Pointer(cPath))

	ctx := C.whisper_init_from_file_with_params(cPath, contextParams(params))
	if ctx == nil {
		return InvalidHandle
	}
	h := b.contexts.Insert(&cgoContext{ptr: ctx})
	if h == InvalidHandle {
		C.whisper_free(ctx)
	}
	return h
}

func (b *CGOBackend) InitNoState(modelPath string, params ContextParams) Handle {
	cPath := C.CString(modelPath)
	defer C.free(unsafe.Pointer(cPath))

	ctx := C.whisper_init_from_file_with_params_no_state(cPath, contextParams(params))
	if ctx == nil {
		return InvalidHandle
	}
	h := b.contexts.Insert(&cgoContext{ptr: ctx, noState: true})
	if h == InvalidHandle {
		C.whisper_free(ctx)
	}
	return h
}

func (b *CGOBackend) InitState(context Handle) Handle {
	ctx, ok := b.contexts.Get(context)
	if !ok {
		return InvalidHandle
	}
	state := C.whisper_init_state(ctx.ptr)
	if state == nil {
		return InvalidHandle
	}
	h := b.states.Insert(&cgoState{ptr: state})
	if h == InvalidHandle {
		C.whisper_free_state(state)
	}
	return h
}

func (b *CGOBackend) LoadGrammar(text string) Handle {
	cText := C.CString(text)
	defer C.free(unsafe.Pointer(cText))

	grammar := C.whisper_go_grammar_parse(cText)
	if grammar == nil {
		return InvalidHandle
	}
	h := b.grammars.Insert(&cgoGrammar{ptr: grammar})
	if h == InvalidHandle {
		C.whisper_go_grammar_free(grammar)
	}
	return h
}

func (b *CGOBackend) InitOpenVINOEncoder(context Handle, device string) int {
	ctx, ok := b.contexts.Get(context)
	if !ok {
		return statusUnknownHandle
	}
	cDevice := C.CString(device)
	defer C.free(unsafe.Pointer(cDevice))
	return int(C.whisper_ctx_init_openvino_encoder(ctx.ptr, nil, cDevice, nil))
}

func (b *CGOBackend) IsMultilingual(context Handle) bool {
	ctx, ok := b.contexts.Get(context)
	if !ok {
		return false
	}
	return C.whisper_is_multilingual(ctx.ptr) != 0
}

// fullParams converts p into the C bundle. The returned release func frees
// the C strings and must run after the decode returns.
func (b *CGOBackend) fullParams(p FullParams) (C.struct_whisper_full_params, func(), int) {
	if p.OffsetMillis < 0 || p.DurationMillis < 0 {
		return C.struct_whisper_full_params{}, func() {}, statusInvalidParams
	}
	strategy := C.enum_whisper_sampling_strategy(C.WHISPER_SAMPLING_GREEDY)
	if p.Strategy == SamplingBeamSearch {
		strategy = C.WHISPER_SAMPLING_BEAM_SEARCH
	}
	cParams := C.whisper_full_default_params(strategy)

	var allocated []unsafe.Pointer
	release := func() {
		for _, ptr := range allocated {
			C.free(ptr)
		}
	}

	if p.Threads > 0 {
		cParams.n_threads = C.int(p.Threads)
	}
	cParams.n_max_text_ctx = C.int(p.MaxTextContext)
	cParams.offset_ms = C.int(p.OffsetMillis)
	cParams.duration_ms = C.int(p.DurationMillis)
	cParams.translate = C.bool(p.Translate)
	cParams.no_context = C.bool(p.NoContext)
	cParams.no_timestamps = C.bool(p.NoTimestamps)
	cParams.single_segment = C.bool(p.SingleSegment)
	cParams.print_special = C.bool(p.PrintSpecial)
	cParams.print_progress = C.bool(p.PrintProgress)
	cParams.print_realtime = C.bool(p.PrintRealtime)
	cParams.print_timestamps = C.bool(p.PrintTimestamps)
	cParams.token_timestamps = C.bool(p.TokenTimestamps)
	cParams.max_len = C.int(p.MaxLen)
	cParams.split_on_word = C.bool(p.SplitOnWord)
	cParams.max_tokens = C.int(p.MaxTokens)
	cParams.audio_ctx = C.int(p.AudioContext)
	cParams.tdrz_enable = C.bool(p.TinyDiarize)
	cParams.detect_language = C.bool(p.DetectLanguage)
	cParams.suppress_blank = C.bool(p.SuppressBlank)
	cParams.temperature = C.float(p.Temperature)
	cParams.max_initial_ts = C.float(p.MaxInitialTS)
	cParams.length_penalty = C.float(p.LengthPenalty)
	cParams.temperature_inc = C.float(p.TemperatureInc)
	cParams.entropy_thold = C.float(p.EntropyThold)
	cParams.logprob_thold = C.float(p.LogprobThold)
	cParams.no_speech_thold = C.float(p.NoSpeechThold)
	cParams.greedy.best_of = C.int(p.GreedyBestOf)
	cParams.beam_search.beam_size = C.int(p.BeamSize)
	cParams.beam_search.patience = C.float(p.BeamPatience)

	if p.Language != "" {
		cLang := C.CString(p.Language)
		allocated = append(allocated, unsafe.Pointer(cLang))
		cParams.language = cLang
	}
	if p.InitialPrompt != "" {
		cPrompt := C.CString(p.InitialPrompt)
		allocated = append(allocated, unsafe.Pointer(cPrompt))
		cParams.initial_prompt = cPrompt
	}

	if p.Grammar != InvalidHandle {
		grammar, ok := b.grammars.Get(p.Grammar)
		if !ok {
			release()
			return cParams, func() {}, statusUnknownGrammar
		}
		rule := p.GrammarRule
		if rule == "" {
			rule = "root"
		}
		cRule := C.CString(rule)
		index := C.whisper_go_grammar_rule_index(grammar.ptr, cRule)
		C.free(unsafe.Pointer(cRule))
		if index < 0 {
			release()
			return cParams, func() {}, statusUnknownRule
		}
		cParams.grammar_rules = C.whisper_go_grammar_rules(grammar.ptr)
		cParams.n_grammar_rules = C.whisper_go_grammar_n_rules(grammar.ptr)
		cParams.i_start_rule = C.size_t(index)
		cParams.grammar_penalty = C.float(p.GrammarPenalty)
	}

	return cParams, release, 0
}

func samplesPointer(samples []float32) *C.float {
	if len(samples) == 0 {
		return nil
	}
	return (*C.float)(unsafe.Pointer(&samples[0]))
}

func (b *CGOBackend) Full(context Handle, params FullParams, samples []float32, numSamples int) int {
	ctx, ok := b.contexts.Get(context)
	if !ok {
		return statusUnknownHandle
	}
	if numSamples < 0 || numSamples > len(samples) {
		return statusInvalidParams
	}
	cParams, release, status := b.fullParams(params)
	defer release()
	if status != 0 {
		return status
	}

	if !ctx.noState {
		return int(C.whisper_full(ctx.ptr, cParams, samplesPointer(samples), C.int(numSamples)))
	}
	state := ctx.privateState()
	if state == nil {
		return statusInvalidParams
	}
	return int(C.whisper_full_with_state(ctx.ptr, state, cParams, samplesPointer(samples), C.int(numSamples)))
}

func (c *cgoContext) privateState() *C.struct_whisper_state {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.private == nil {
		c.private = C.whisper_init_state(c.ptr)
	}
	return c.private
}

func (c *cgoContext) storedState() *C.struct_whisper_state {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.private
}

func (b *CGOBackend) FullWithState(context, state Handle, params FullParams, samples []float32, numSamples int) int {
	ctx, ok := b.contexts.Get(context)
	if !ok {
		return statusUnknownHandle
	}
	st, ok := b.states.Get(state)
	if !ok {
		return statusUnknownHandle
	}
	if numSamples < 0 || numSamples > len(samples) {
		return statusInvalidParams
	}
	cParams, release, status := b.fullParams(params)
	defer release()
	if status != 0 {
		return status
	}
	return int(C.whisper_full_with_state(ctx.ptr, st.ptr, cParams, samplesPointer(samples), C.int(numSamples)))
}

func (b *CGOBackend) FullNSegments(context Handle) int {
	ctx, ok := b.contexts.Get(context)
	if !ok {
		return 0
	}
	if ctx.noState {
		state := ctx.storedState()
		if state == nil {
			return 0
		}
		return int(C.whisper_full_n_segments_from_state(state))
	}
	return int(C.whisper_full_n_segments(ctx.ptr))
}

func (b *CGOBackend) FullNSegmentsFromState(state Handle) int {
	st, ok := b.states.Get(state)
	if !ok {
		return 0
	}
	return int(C.whisper_full_n_segments_from_state(st.ptr))
}

func (b *CGOBackend) FullGetSegmentT0(context Handle, index int) int64 {
	ctx, ok := b.contexts.Get(context)
	if !ok {
		return 0
	}
	if ctx.noState {
		if state := ctx.storedState(); state != nil {
			return int64(C.whisper_full_get_segment_t0_from_state(state, C.int(index)))
		}
		return 0
	}
	return int64(C.whisper_full_get_segment_t0(ctx.ptr, C.int(index)))
}

func (b *CGOBackend) FullGetSegmentT1(context Handle, index int) int64 {
	ctx, ok := b.contexts.Get(context)
	if !ok {
		return 0
	}
	if ctx.noState {
		if state := ctx.storedState(); state != nil {
			return int64(C.whisper_full_get_segment_t1_from_state(state, C.int(index)))
		}
		return 0
	}
	return int64(C.whisper_full_get_segment_t1(ctx.ptr, C.int(index)))
}

func (b *CGOBackend) FullGetSegmentText(context Handle, index int) string {
	ctx, ok := b.contexts.Get(context)
	if !ok {
		return ""
	}
	if ctx.noState {
		if state := ctx.storedState(); state != nil {
			return C.GoString(C.whisper_full_get_segment_text_from_state(state, C.int(index)))
		}
		return ""
	}
	return C.GoString(C.whisper_full_get_segment_text(ctx.ptr, C.int(index)))
}

func (b *CGOBackend) FullGetSegmentT0FromState(state Handle, index int) int64 {
	st, ok := b.states.Get(state)
	if !ok {
		return 0
	}
	return int64(C.whisper_full_get_segment_t0_from_state(st.ptr, C.int(index)))
}

func (b *CGOBackend) FullGetSegmentT1FromState(state Handle, index int) int64 {
	st, ok := b.states.Get(state)
	if !ok {
		return 0
	}
	return int64(C.whisper_full_get_segment_t1_from_state(st.ptr, C.int(index)))
}

func (b *CGOBackend) FullGetSegmentTextFromState(state Handle, index int) string {
	st, ok := b.states.Get(state)
	if !ok {
		return ""
	}
	return C.GoString(C.whisper_full_get_segment_text_from_state(st.ptr, C.int(index)))
}

func (b *CGOBackend) FreeContext(context Handle) {
	ctx, ok := b.contexts.Remove(context)
	if !ok {
		return
	}
	ctx.mu.Lock()
	if ctx.private != nil {
		C.whisper_free_state(ctx.private)
		ctx.private = nil
	}
	ctx.mu.Unlock()
	C.whisper_free(ctx.ptr)
}

func (b *CGOBackend) FreeState(state Handle) {
	if st, ok := b.states.Remove(state); ok {
		C.whisper_free_state(st.ptr)
	}
}

func (b *CGOBackend) FreeGrammar(grammar Handle) {
	if g, ok := b.grammars.Remove(grammar); ok {
		C.whisper_go_grammar_free(g.ptr)
	}
}

func (b *CGOBackend) SystemInfo() string {
	return C.GoString(C.whisper_print_system_info())
}

func (b *CGOBackend) SetLogEnabled(enabled bool) {
	logEnabled.Store(enabled)
}

//export whisperGoLog
func whisperGoLog(level C.int, text *C.char, userData unsafe.Pointer) {
	emitLog(C.GoString(text))
}
