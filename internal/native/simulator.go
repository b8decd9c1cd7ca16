package native

import (
	"fmt"
	"hash/fnv"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// SampleRate is the PCM rate every backend expects.
const SampleRate = 16000

const (
	simWindow           = SampleRate // one segment per second of speech
	simSilenceThreshold = 1e-3

	statusInvalidParams  = -1
	statusUnknownHandle  = -2
	statusUnknownGrammar = -3
	statusUnknownRule    = -4
	statusInjected       = -7
)

// Op names a boundary entry point for call accounting.
type Op string

const (
	OpInit                 Op = "init"
	OpInitNoState          Op = "init_no_state"
	OpInitState            Op = "init_state"
	OpLoadGrammar          Op = "load_grammar"
	OpInitOpenVINO         Op = "init_openvino"
	OpIsMultilingual       Op = "is_multilingual"
	OpFull                 Op = "full"
	OpFullWithState        Op = "full_with_state"
	OpNSegments            Op = "n_segments"
	OpNSegmentsFromState   Op = "n_segments_from_state"
	OpSegmentT0            Op = "segment_t0"
	OpSegmentT1            Op = "segment_t1"
	OpSegmentText          Op = "segment_text"
	OpSegmentT0FromState   Op = "segment_t0_from_state"
	OpSegmentT1FromState   Op = "segment_t1_from_state"
	OpSegmentTextFromState Op = "segment_text_from_state"
	OpFreeContext          Op = "free_context"
	OpFreeState            Op = "free_state"
	OpFreeGrammar          Op = "free_grammar"
	OpSystemInfo           Op = "system_info"
	OpSetLogEnabled        Op = "set_log_enabled"
)

var simVocabulary = []string{
	"alpha", "bravo", "charlie", "delta", "echo", "foxtrot", "golf", "hotel",
	"india", "juliett", "kilo", "lima", "mike", "november", "oscar", "papa",
}

// Simulator is a deterministic, pure-Go Backend. It honours the same handle
// and segment-storage contract as whisper.cpp, producing one segment per
// second of non-silent audio. It counts every boundary call and supports
// one-shot failure injection, which makes it the backend for tests and for
// builds without the native library.
type Simulator struct {
	contexts *Table[*simContext]
	states   *Table[*simState]
	grammars *Table[*simGrammar]

	mu       sync.Mutex
	calls    map[Op]int
	failures map[Op]int
}

type simSegment struct {
	t0, t1 int64
	text   string
}

type simStorage struct {
	mu       sync.RWMutex
	segments []simSegment
}

type simContext struct {
	path         string
	params       ContextParams
	multilingual bool
	eager        bool

	mu       sync.Mutex
	storage  *simStorage
	openvino string
}

type simState struct {
	context Handle
	storage *simStorage
}

type simGrammar struct {
	rules map[string][]string
}

// NewSimulator returns an empty simulator.
func NewSimulator() *Simulator {
	return &Simulator{
		contexts: NewTable[*simContext](),
		states:   NewTable[*simState](),
		grammars: NewTable[*simGrammar](),
		calls:    make(map[Op]int),
		failures: make(map[Op]int),
	}
}

// InjectFailure makes the next call of op fail. Allocation entry points
// return InvalidHandle; decode entry points return code (or a generic
// negative status when code >= 0).
func (s *Simulator) InjectFailure(op Op, code int) {
	if code >= 0 {
		code = statusInjected
	}
	s.mu.Lock()
	s.failures[op] = code
	s.mu.Unlock()
}

// Calls returns how many times op was invoked.
func (s *Simulator) Calls(op Op) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// TotalCalls returns the number of boundary calls of any kind.
func (s *Simulator) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.calls {
		total += n
	}
	return total
}

// Live reports the number of contexts, states and grammars not yet freed.
func (s *Simulator) Live() (contexts, states, grammars int) {
	return s.contexts.Len(), s.states.Len(), s.grammars.Len()
}

func (s *Simulator) record(op Op) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[op]++
	code, failed := s.failures[op]
	if failed {
		delete(s.failures, op)
	}
	return code, failed
}

func (s *Simulator) Init(modelPath string, params ContextParams) Handle {
	if _, failed := s.record(OpInit); failed {
		return InvalidHandle
	}
	return s.load(modelPath, params, true)
}

func (s *Simulator) InitNoState(modelPath string, params ContextParams) Handle {
	if _, failed := s.record(OpInitNoState); failed {
		return InvalidHandle
	}
	return s.load(modelPath, params, false)
}

func (s *Simulator) load(modelPath string, params ContextParams, eager bool) Handle {
	emitLog(fmt.Sprintf("whisper_init_from_file_with_params: loading model from '%s'", modelPath))
	info, err := os.Stat(modelPath)
	if err != nil || info.IsDir() || info.Size() == 0 {
		emitLog(fmt.Sprintf("whisper_init_from_file_with_params: failed to load model from '%s'", modelPath))
		return InvalidHandle
	}
	base := strings.ToLower(filepath.Base(modelPath))
	ctx := &simContext{
		path:         modelPath,
		params:       params,
		multilingual: !strings.Contains(base, ".en."),
		eager:        eager,
	}
	if eager {
		ctx.storage = &simStorage{}
	}
	return s.contexts.Insert(ctx)
}

func (s *Simulator) InitState(context Handle) Handle {
	if _, failed := s.record(OpInitState); failed {
		return InvalidHandle
	}
	if _, ok := s.contexts.Get(context); !ok {
		return InvalidHandle
	}
	return s.states.Insert(&simState{context: context, storage: &simStorage{}})
}

func (s *Simulator) LoadGrammar(text string) Handle {
	if _, failed := s.record(OpLoadGrammar); failed {
		return InvalidHandle
	}
	rules := parseSimGrammar(text)
	if len(rules) == 0 {
		emitLog("grammar_parser: no rules parsed")
		return InvalidHandle
	}
	return s.grammars.Insert(&simGrammar{rules: rules})
}

func (s *Simulator) InitOpenVINOEncoder(context Handle, device string) int {
	if code, failed := s.record(OpInitOpenVINO); failed {
		return code
	}
	ctx, ok := s.contexts.Get(context)
	if !ok {
		return statusUnknownHandle
	}
	ctx.mu.Lock()
	ctx.openvino = device
	ctx.mu.Unlock()
	return 0
}

func (s *Simulator) IsMultilingual(context Handle) bool {
	s.record(OpIsMultilingual)
	ctx, ok := s.contexts.Get(context)
	return ok && ctx.multilingual
}

func (s *Simulator) Full(context Handle, params FullParams, samples []float32, numSamples int) int {
	if code, failed := s.record(OpFull); failed {
		return code
	}
	ctx, ok := s.contexts.Get(context)
	if !ok {
		return statusUnknownHandle
	}
	ctx.mu.Lock()
	if ctx.storage == nil {
		// No-state contexts get their scratch space on first use.
		ctx.storage = &simStorage{}
	}
	storage := ctx.storage
	ctx.mu.Unlock()
	return s.decode(storage, params, samples, numSamples)
}

func (s *Simulator) FullWithState(context, state Handle, params FullParams, samples []float32, numSamples int) int {
	if code, failed := s.record(OpFullWithState); failed {
		return code
	}
	if _, ok := s.contexts.Get(context); !ok {
		return statusUnknownHandle
	}
	st, ok := s.states.Get(state)
	if !ok {
		return statusUnknownHandle
	}
	return s.decode(st.storage, params, samples, numSamples)
}

func (s *Simulator) decode(storage *simStorage, params FullParams, samples []float32, numSamples int) int {
	if numSamples < 0 || numSamples > len(samples) {
		return statusInvalidParams
	}
	if params.OffsetMillis < 0 || params.DurationMillis < 0 {
		return statusInvalidParams
	}
	var alternatives []string
	if params.Grammar != InvalidHandle {
		g, ok := s.grammars.Get(params.Grammar)
		if !ok {
			return statusUnknownGrammar
		}
		rule := params.GrammarRule
		if rule == "" {
			rule = "root"
		}
		alternatives, ok = g.rules[rule]
		if !ok {
			emitLog(fmt.Sprintf("whisper_full: grammar rule '%s' not found", rule))
			return statusUnknownRule
		}
	}

	start := params.OffsetMillis * SampleRate / 1000
	end := numSamples
	if params.DurationMillis > 0 {
		if limit := start + params.DurationMillis*SampleRate/1000; limit < end {
			end = limit
		}
	}
	if start > end {
		start = end
	}

	segments := make([]simSegment, 0, (end-start)/simWindow+1)
	for offset := start; offset < end; offset += simWindow {
		stop := offset + simWindow
		if stop > end {
			stop = end
		}
		window := samples[offset:stop]
		if rms(window) < simSilenceThreshold {
			continue
		}
		sum := checksum(window)
		var text string
		if len(alternatives) > 0 {
			text = " " + alternatives[int(sum%uint32(len(alternatives)))]
		} else {
			text = fmt.Sprintf(" %s %04x", simVocabulary[int(sum%uint32(len(simVocabulary)))], sum&0xffff)
		}
		segments = append(segments, simSegment{
			t0:   int64(offset) * 100 / SampleRate,
			t1:   int64(stop) * 100 / SampleRate,
			text: text,
		})
	}
	if params.SingleSegment && len(segments) > 1 {
		var b strings.Builder
		for _, seg := range segments {
			b.WriteString(seg.text)
		}
		segments = []simSegment{{t0: segments[0].t0, t1: segments[len(segments)-1].t1, text: b.String()}}
	}

	storage.mu.Lock()
	storage.segments = segments
	storage.mu.Unlock()
	return 0
}

func (s *Simulator) contextStorage(context Handle) *simStorage {
	ctx, ok := s.contexts.Get(context)
	if !ok {
		return nil
	}
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.storage
}

func (s *Simulator) stateStorage(state Handle) *simStorage {
	st, ok := s.states.Get(state)
	if !ok {
		return nil
	}
	return st.storage
}

func (st *simStorage) count() int {
	if st == nil {
		return 0
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.segments)
}

func (st *simStorage) segment(index int) (simSegment, bool) {
	if st == nil {
		return simSegment{}, false
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	if index < 0 || index >= len(st.segments) {
		return simSegment{}, false
	}
	return st.segments[index], true
}

func (s *Simulator) FullNSegments(context Handle) int {
	s.record(OpNSegments)
	return s.contextStorage(context).count()
}

func (s *Simulator) FullNSegmentsFromState(state Handle) int {
	s.record(OpNSegmentsFromState)
	return s.stateStorage(state).count()
}

func (s *Simulator) FullGetSegmentT0(context Handle, index int) int64 {
	s.record(OpSegmentT0)
	seg, _ := s.contextStorage(context).segment(index)
	return seg.t0
}

func (s *Simulator) FullGetSegmentT1(context Handle, index int) int64 {
	s.record(OpSegmentT1)
	seg, _ := s.contextStorage(context).segment(index)
	return seg.t1
}

func (s *Simulator) FullGetSegmentText(context Handle, index int) string {
	s.record(OpSegmentText)
	seg, _ := s.contextStorage(context).segment(index)
	return seg.text
}

func (s *Simulator) FullGetSegmentT0FromState(state Handle, index int) int64 {
	s.record(OpSegmentT0FromState)
	seg, _ := s.stateStorage(state).segment(index)
	return seg.t0
}

func (s *Simulator) FullGetSegmentT1FromState(state Handle, index int) int64 {
	s.record(OpSegmentT1FromState)
	seg, _ := s.stateStorage(state).segment(index)
	return seg.t1
}

func (s *Simulator) FullGetSegmentTextFromState(state Handle, index int) string {
	s.record(OpSegmentTextFromState)
	seg, _ := s.stateStorage(state).segment(index)
	return seg.text
}

func (s *Simulator) FreeContext(context Handle) {
	s.record(OpFreeContext)
	s.contexts.Remove(context)
}

func (s *Simulator) FreeState(state Handle) {
	s.record(OpFreeState)
	s.states.Remove(state)
}

func (s *Simulator) FreeGrammar(grammar Handle) {
	s.record(OpFreeGrammar)
	s.grammars.Remove(grammar)
}

func (s *Simulator) SystemInfo() string {
	s.record(OpSystemInfo)
	return "WHISPER : SIMULATOR = 1 | CPU : SSE3 = 0 | AVX = 0 | AVX2 = 0 | NEON = 0 | OPENVINO = 0 |"
}

func (s *Simulator) SetLogEnabled(enabled bool) {
	s.record(OpSetLogEnabled)
	logEnabled.Store(enabled)
}

// parseSimGrammar understands the subset of GBNF the simulator needs:
// one `name ::= alt | alt` rule per line, where each alternative is made of
// quoted literals. Comments start with '#'.
func parseSimGrammar(text string) map[string][]string {
	rules := make(map[string][]string)
	for _, line := range strings.Split(text, "\n") {
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		name, body, ok := strings.Cut(line, "::=")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		for _, alt := range strings.Split(body, "|") {
			if literal := joinLiterals(alt); literal != "" {
				rules[name] = append(rules[name], literal)
			}
		}
	}
	if _, ok := rules["root"]; !ok {
		return nil
	}
	return rules
}

func joinLiterals(alt string) string {
	var (
		b      strings.Builder
		inside bool
	)
	for _, r := range alt {
		if r == '"' {
			inside = !inside
			continue
		}
		if inside {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

func rms(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range samples {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

func checksum(samples []float32) uint32 {
	h := fnv.New32a()
	var buf [4]byte
	for _, v := range samples {
		bits := math.Float32bits(v)
		buf[0] = byte(bits)
		buf[1] = byte(bits >> 8)
		buf[2] = byte(bits >> 16)
		buf[3] = byte(bits >> 24)
		h.Write(buf[:])
	}
	return h.Sum32()
}
