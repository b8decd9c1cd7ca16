package whisper

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/nupi-ai/stt-whisper-native/internal/native"
)

func newTestRuntime(t *testing.T) (*Runtime, *native.Simulator) {
	t.Helper()
	sim := native.NewSimulator()
	return NewRuntime(sim, slog.New(slog.NewTextHandler(io.Discard, nil))), sim
}

func writeModel(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("ggml"), 0o644); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}
	return path
}

func loadContext(t *testing.T, rt *Runtime) *Context {
	t.Helper()
	ctx, err := rt.LoadContext(writeModel(t, "m.bin"), nil)
	if err != nil {
		t.Fatalf("LoadContext error: %v", err)
	}
	return ctx
}

func tone(seconds float64, freq float64) []float32 {
	n := int(seconds * native.SampleRate)
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/native.SampleRate))
	}
	return out
}

func segmentTexts(t *testing.T, s Scope) []string {
	t.Helper()
	segs, err := s.Segments()
	if err != nil {
		t.Fatalf("Segments error: %v", err)
	}
	texts := make([]string, len(segs))
	for i, seg := range segs {
		texts[i] = seg.Text
	}
	return texts
}

func TestLoadContextReturnsLiveHandle(t *testing.T) {
	rt, _ := newTestRuntime(t)
	ctx := loadContext(t, rt)
	defer ctx.Close()

	if ctx.Handle() == native.InvalidHandle || !ctx.Handle().Valid() {
		t.Fatalf("expected valid handle, got %d", ctx.Handle())
	}
	if !ctx.Alive() {
		t.Fatalf("expected context to be alive")
	}
	if ctx.NoState() {
		t.Fatalf("expected eager context")
	}
}

func TestLoadContextRejectsBadPathsLocally(t *testing.T) {
	rt, sim := newTestRuntime(t)
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.bin")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}

	tests := []struct {
		name     string
		path     string
		kind     error
		notExist bool
	}{
		{"missing", filepath.Join(dir, "missing.bin"), ErrNotFound, true},
		{"directory", dir, ErrNotFound, true},
		{"empty file", empty, ErrInvalidArgument, false},
		{"blank path", "  ", ErrInvalidArgument, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx, err := rt.LoadContext(tc.path, nil)
			if ctx != nil {
				t.Fatalf("expected no context")
			}
			if !errors.Is(err, tc.kind) {
				t.Fatalf("expected %v, got %v", tc.kind, err)
			}
			if errors.Is(err, fs.ErrNotExist) != tc.notExist {
				t.Fatalf("fs.ErrNotExist match = %v, want %v (%v)", !tc.notExist, tc.notExist, err)
			}
			if class, _ := ClassOf(err); class != ClassInput {
				t.Fatalf("expected input class, got %v", class)
			}
		})
	}

	if calls := sim.TotalCalls(); calls != 0 {
		t.Fatalf("expected no native calls, got %d", calls)
	}
}

func TestLoadContextEngineFailure(t *testing.T) {
	rt, sim := newTestRuntime(t)
	sim.InjectFailure(native.OpInit, -1)

	ctx, err := rt.LoadContext(writeModel(t, "m.bin"), nil)
	if ctx != nil {
		t.Fatalf("expected no context on sentinel handle")
	}
	if !errors.Is(err, ErrAllocationFailed) {
		t.Fatalf("expected ErrAllocationFailed, got %v", err)
	}
	if class, _ := ClassOf(err); class != ClassEngine {
		t.Fatalf("expected engine class, got %v", class)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	rt, sim := newTestRuntime(t)
	ctx := loadContext(t, rt)
	state, err := ctx.NewState()
	if err != nil {
		t.Fatalf("NewState error: %v", err)
	}
	grammar, err := rt.ParseGrammar(`root ::= "yes" | "no"`)
	if err != nil {
		t.Fatalf("ParseGrammar error: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := state.Close(); err != nil {
			t.Fatalf("state close %d: %v", i, err)
		}
		if err := grammar.Close(); err != nil {
			t.Fatalf("grammar close %d: %v", i, err)
		}
		if err := ctx.Close(); err != nil {
			t.Fatalf("context close %d: %v", i, err)
		}
	}

	for _, op := range []native.Op{native.OpFreeState, native.OpFreeGrammar, native.OpFreeContext} {
		if got := sim.Calls(op); got != 1 {
			t.Fatalf("%s called %d times, want 1", op, got)
		}
	}
	if c, s, g := sim.Live(); c+s+g != 0 {
		t.Fatalf("expected nothing live, got contexts=%d states=%d grammars=%d", c, s, g)
	}
}

func TestOperationsAfterCloseFailWithoutNativeCalls(t *testing.T) {
	rt, sim := newTestRuntime(t)
	ctx := loadContext(t, rt)
	state, err := ctx.NewState()
	if err != nil {
		t.Fatalf("NewState error: %v", err)
	}
	grammar, err := rt.ParseGrammar(`root ::= "yes"`)
	if err != nil {
		t.Fatalf("ParseGrammar error: %v", err)
	}
	samples := tone(1, 440)
	if _, err := ctx.FullWithState(state, nil, samples, len(samples)); err != nil {
		t.Fatalf("FullWithState error: %v", err)
	}

	state.Close()
	grammar.Close()
	ctx.Close()
	before := sim.TotalCalls()

	params := NewFullParams(SamplingGreedy)
	params.Grammar = grammar
	checks := map[string]func() error{
		"full": func() error {
			_, err := ctx.Full(nil, samples, len(samples))
			return err
		},
		"new state": func() error {
			_, err := ctx.NewState()
			return err
		},
		"is multilingual": func() error {
			_, err := ctx.IsMultilingual()
			return err
		},
		"openvino": func() error {
			return ctx.InitOpenVINO("CPU")
		},
		"context segment count": func() error {
			_, err := ctx.SegmentCount()
			return err
		},
		"state segment text": func() error {
			_, err := state.SegmentText(0)
			return err
		},
		"state segments": func() error {
			_, err := state.Segments()
			return err
		},
		"full with released state": func() error {
			_, err := ctx.FullWithState(state, nil, samples, len(samples))
			return err
		},
	}
	for name, fn := range checks {
		err := fn()
		if !errors.Is(err, ErrReleased) {
			t.Fatalf("%s: expected ErrReleased, got %v", name, err)
		}
		if !IsProgrammerError(err) {
			t.Fatalf("%s: expected programmer error", name)
		}
	}

	if after := sim.TotalCalls(); after != before {
		t.Fatalf("expected no native calls after release, got %d", after-before)
	}

	live := loadContext(t, rt)
	defer live.Close()
	before = sim.TotalCalls()
	if _, err := live.Full(&params, samples, len(samples)); !errors.Is(err, ErrReleased) {
		t.Fatalf("expected released grammar to be rejected, got %v", err)
	}
	if after := sim.TotalCalls(); after != before {
		t.Fatalf("released grammar crossed the boundary %d times", after-before)
	}
}

func TestStatesKeepSeparateResults(t *testing.T) {
	rt, _ := newTestRuntime(t)
	ctx := loadContext(t, rt)
	defer ctx.Close()

	a, err := ctx.NewState()
	if err != nil {
		t.Fatalf("NewState error: %v", err)
	}
	defer a.Close()
	b, err := ctx.NewState()
	if err != nil {
		t.Fatalf("NewState error: %v", err)
	}
	defer b.Close()

	first := tone(2, 220)
	second := tone(3, 330)
	if _, err := ctx.FullWithState(a, nil, first, len(first)); err != nil {
		t.Fatalf("decode A: %v", err)
	}
	if _, err := ctx.FullWithState(b, nil, second, len(second)); err != nil {
		t.Fatalf("decode B: %v", err)
	}
	want := segmentTexts(t, b)
	if len(want) != 3 {
		t.Fatalf("expected 3 segments on B, got %d", len(want))
	}

	third := tone(1, 880)
	if _, err := ctx.FullWithState(a, nil, third, len(third)); err != nil {
		t.Fatalf("decode A again: %v", err)
	}
	if n, _ := a.SegmentCount(); n != 1 {
		t.Fatalf("expected A to be overwritten with 1 segment, got %d", n)
	}

	got := segmentTexts(t, b)
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("state B results changed: %q -> %q", want, got)
	}
	if n, _ := ctx.SegmentCount(); n != 0 {
		t.Fatalf("expected context scope untouched, got %d segments", n)
	}
}

func TestSegmentIndexOutOfRange(t *testing.T) {
	rt, sim := newTestRuntime(t)
	ctx := loadContext(t, rt)
	defer ctx.Close()

	if n, err := ctx.SegmentCount(); err != nil || n != 0 {
		t.Fatalf("expected zero segments before decode, got %d (%v)", n, err)
	}
	if _, err := ctx.SegmentText(0); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange before decode, got %v", err)
	}

	samples := tone(2, 440)
	if _, err := ctx.Full(nil, samples, len(samples)); err != nil {
		t.Fatalf("Full error: %v", err)
	}
	n, err := ctx.SegmentCount()
	if err != nil || n != 2 {
		t.Fatalf("expected 2 segments, got %d (%v)", n, err)
	}

	before := sim.TotalCalls()
	for _, idx := range []int{-1, n, n + 5} {
		if _, err := ctx.SegmentText(idx); !errors.Is(err, ErrIndexOutOfRange) {
			t.Fatalf("SegmentText(%d): expected ErrIndexOutOfRange, got %v", idx, err)
		}
		if _, err := ctx.SegmentStart(idx); !errors.Is(err, ErrIndexOutOfRange) {
			t.Fatalf("SegmentStart(%d): expected ErrIndexOutOfRange, got %v", idx, err)
		}
		if _, err := ctx.SegmentEnd(idx); !errors.Is(err, ErrIndexOutOfRange) {
			t.Fatalf("SegmentEnd(%d): expected ErrIndexOutOfRange, got %v", idx, err)
		}
		if _, err := ctx.Segment(idx); !errors.Is(err, ErrIndexOutOfRange) {
			t.Fatalf("Segment(%d): expected ErrIndexOutOfRange, got %v", idx, err)
		}
	}
	if after := sim.TotalCalls(); after != before {
		t.Fatalf("out-of-range reads crossed the boundary %d times", after-before)
	}

	start, err := ctx.SegmentStart(1)
	if err != nil {
		t.Fatalf("SegmentStart error: %v", err)
	}
	end, err := ctx.SegmentEnd(1)
	if err != nil {
		t.Fatalf("SegmentEnd error: %v", err)
	}
	if start != 100 || end != 200 {
		t.Fatalf("expected [100, 200] centiseconds, got [%d, %d]", start, end)
	}
}

func TestGrammarFileRoundTrip(t *testing.T) {
	rt, _ := newTestRuntime(t)
	const text = "# yes or no\nroot ::= answer\nanswer ::= \"yes\" | \"no\"\n"
	path := filepath.Join(t.TempDir(), "answer.gbnf")
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}

	// The simulator needs literal alternatives on root.
	const simText = "root ::= \"yes\" | \"no\"\n"
	simPath := filepath.Join(t.TempDir(), "root.gbnf")
	if err := os.WriteFile(simPath, []byte(simText), 0o644); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}

	grammar, err := rt.ParseGrammarFile(simPath)
	if err != nil {
		t.Fatalf("ParseGrammarFile error: %v", err)
	}
	defer grammar.Close()
	if grammar.Text() != simText {
		t.Fatalf("retained text %q, want %q", grammar.Text(), simText)
	}
	if grammar.Path() != simPath {
		t.Fatalf("retained path %q, want %q", grammar.Path(), simPath)
	}

	if _, err := rt.ParseGrammarFile(filepath.Join(t.TempDir(), "missing.gbnf")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := rt.ParseGrammarFile(t.TempDir()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for directory, got %v", err)
	}
	if _, err := rt.ParseGrammarFile(path); !errors.Is(err, ErrAllocationFailed) {
		t.Fatalf("expected engine rejection for rule without literals, got %v", err)
	}
}

func TestParseGrammarEmptyText(t *testing.T) {
	rt, sim := newTestRuntime(t)
	if _, err := rt.ParseGrammar(""); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if calls := sim.Calls(native.OpLoadGrammar); calls != 0 {
		t.Fatalf("expected no native grammar load, got %d", calls)
	}

	// Whitespace is not empty: the engine decides, and rejects it.
	_, err := rt.ParseGrammar("   \n\t")
	if !errors.Is(err, ErrAllocationFailed) {
		t.Fatalf("expected engine rejection, got %v", err)
	}
	if class, _ := ClassOf(err); class != ClassEngine {
		t.Fatalf("expected engine class, got %v", class)
	}
	if calls := sim.Calls(native.OpLoadGrammar); calls != 1 {
		t.Fatalf("expected one native grammar load, got %d", calls)
	}
}

func TestGrammarConstrainsDecode(t *testing.T) {
	rt, _ := newTestRuntime(t)
	ctx := loadContext(t, rt)
	defer ctx.Close()
	grammar, err := rt.ParseGrammar(`root ::= "yes" | "no"`)
	if err != nil {
		t.Fatalf("ParseGrammar error: %v", err)
	}
	defer grammar.Close()

	params := NewFullParams(SamplingGreedy)
	params.Grammar = grammar
	samples := tone(3, 523)
	if _, err := ctx.Full(&params, samples, len(samples)); err != nil {
		t.Fatalf("Full error: %v", err)
	}
	for _, text := range segmentTexts(t, ctx) {
		if got := strings.TrimSpace(text); got != "yes" && got != "no" {
			t.Fatalf("unexpected constrained text %q", got)
		}
	}

	params.GrammarRule = "missing"
	if _, err := ctx.Full(&params, samples, len(samples)); !errors.Is(err, ErrDecodeFailed) {
		t.Fatalf("expected ErrDecodeFailed for unknown rule, got %v", err)
	}
}

func TestDecodeOneSecondOfSilence(t *testing.T) {
	rt, _ := newTestRuntime(t)
	ctx := loadContext(t, rt)
	defer ctx.Close()

	samples := make([]float32, native.SampleRate)
	params := NewFullParams(SamplingGreedy)
	status, err := ctx.Full(&params, samples, len(samples))
	if err != nil || status < 0 {
		t.Fatalf("Full returned %d, %v", status, err)
	}
	n, err := ctx.SegmentCount()
	if err != nil || n < 0 {
		t.Fatalf("SegmentCount returned %d, %v", n, err)
	}
	segs, err := ctx.Segments()
	if err != nil {
		t.Fatalf("Segments error: %v", err)
	}
	for _, seg := range segs {
		if seg.End < seg.Start {
			t.Fatalf("segment %d ends before it starts: %v < %v", seg.Index, seg.End, seg.Start)
		}
	}
}

func TestConcurrentStatesDecodeIndependently(t *testing.T) {
	rt, _ := newTestRuntime(t)
	ctx := loadContext(t, rt)
	defer ctx.Close()

	buffers := [][]float32{tone(2, 261.6), tone(4, 392)}
	states := make([]*State, len(buffers))
	for i := range states {
		st, err := ctx.NewState()
		if err != nil {
			t.Fatalf("NewState error: %v", err)
		}
		defer st.Close()
		states[i] = st
	}

	var wg sync.WaitGroup
	errs := make([]error, len(buffers))
	for i := range buffers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for round := 0; round < 20; round++ {
				if _, err := ctx.FullWithState(states[i], nil, buffers[i], len(buffers[i])); err != nil {
					errs[i] = err
					return
				}
			}
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("worker %d: %v", i, err)
		}
	}
	a := segmentTexts(t, states[0])
	b := segmentTexts(t, states[1])
	if len(a) != 2 || len(b) != 4 {
		t.Fatalf("expected 2 and 4 segments, got %d and %d", len(a), len(b))
	}
	if a[0] == b[0] {
		t.Fatalf("expected distinct segment sets, both start with %q", a[0])
	}
}

func TestDecodeFailureSurfacesStatus(t *testing.T) {
	rt, sim := newTestRuntime(t)
	ctx := loadContext(t, rt)
	defer ctx.Close()

	samples := tone(2, 440)
	if _, err := ctx.Full(nil, samples, len(samples)); err != nil {
		t.Fatalf("Full error: %v", err)
	}

	sim.InjectFailure(native.OpFull, -6)
	status, err := ctx.Full(nil, samples, len(samples))
	if status != -6 {
		t.Fatalf("expected status -6, got %d", status)
	}
	var werr *Error
	if !errors.As(err, &werr) || werr.Kind != KindDecodeFailed || werr.Code != -6 {
		t.Fatalf("expected decode failure with code -6, got %v", err)
	}
	if werr.Class() != ClassEngine {
		t.Fatalf("expected engine class, got %v", werr.Class())
	}
	if n, _ := ctx.SegmentCount(); n != 0 {
		t.Fatalf("expected stale results cleared, got %d segments", n)
	}
}

func TestFullWithStateValidation(t *testing.T) {
	rt, _ := newTestRuntime(t)
	ctx := loadContext(t, rt)
	defer ctx.Close()
	other := loadContext(t, rt)
	defer other.Close()

	foreign, err := other.NewState()
	if err != nil {
		t.Fatalf("NewState error: %v", err)
	}
	defer foreign.Close()

	samples := tone(1, 440)
	if _, err := ctx.FullWithState(foreign, nil, samples, len(samples)); !errors.Is(err, ErrForeignState) {
		t.Fatalf("expected ErrForeignState, got %v", err)
	}
	if _, err := ctx.FullWithState(nil, nil, samples, len(samples)); !errors.Is(err, ErrForeignState) {
		t.Fatalf("expected ErrForeignState for nil state, got %v", err)
	}

	own, err := ctx.NewState()
	if err != nil {
		t.Fatalf("NewState error: %v", err)
	}
	defer own.Close()
	for _, n := range []int{-1, len(samples) + 1} {
		if _, err := ctx.FullWithState(own, nil, samples, n); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("numSamples %d: expected ErrInvalidArgument, got %v", n, err)
		}
	}
	if _, err := ctx.FullWithState(own, nil, samples, len(samples)/2); err != nil {
		t.Fatalf("partial buffer: %v", err)
	}
	if n, _ := own.SegmentCount(); n != 1 {
		t.Fatalf("expected 1 segment from half a second, got %d", n)
	}
}

func TestNegativeWindowRejectedLocally(t *testing.T) {
	rt, sim := newTestRuntime(t)
	ctx := loadContext(t, rt)
	defer ctx.Close()
	st, err := ctx.NewState()
	if err != nil {
		t.Fatalf("NewState error: %v", err)
	}
	defer st.Close()

	samples := tone(2, 440)
	tests := []struct {
		name             string
		offset, duration int
	}{
		{"negative offset", -1000, 0},
		{"negative duration", 0, -500},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			params := NewFullParams(SamplingGreedy)
			params.OffsetMillis = tc.offset
			params.DurationMillis = tc.duration

			full, withState := sim.Calls(native.OpFull), sim.Calls(native.OpFullWithState)
			_, err := ctx.Full(&params, samples, len(samples))
			if !errors.Is(err, ErrInvalidArgument) {
				t.Fatalf("Full: expected ErrInvalidArgument, got %v", err)
			}
			if class, _ := ClassOf(err); class != ClassInput {
				t.Fatalf("expected input class, got %v", class)
			}
			if _, err := ctx.FullWithState(st, &params, samples, len(samples)); !errors.Is(err, ErrInvalidArgument) {
				t.Fatalf("FullWithState: expected ErrInvalidArgument, got %v", err)
			}
			if sim.Calls(native.OpFull) != full || sim.Calls(native.OpFullWithState) != withState {
				t.Fatalf("expected no native decode calls")
			}
		})
	}

	// The scope stays usable after a rejected call.
	if _, err := st.SegmentCount(); err != nil {
		t.Fatalf("SegmentCount error: %v", err)
	}
	if _, err := ctx.FullWithState(st, nil, samples, len(samples)); err != nil {
		t.Fatalf("FullWithState error: %v", err)
	}
}

func TestNoStateContext(t *testing.T) {
	rt, sim := newTestRuntime(t)
	ctx, err := rt.LoadContextNoState(writeModel(t, "m.bin"), nil)
	if err != nil {
		t.Fatalf("LoadContextNoState error: %v", err)
	}
	defer ctx.Close()

	if _, err := ctx.NewState(); !errors.Is(err, ErrNoStateContext) {
		t.Fatalf("expected ErrNoStateContext, got %v", err)
	}
	if calls := sim.Calls(native.OpInitState); calls != 0 {
		t.Fatalf("expected no native state allocation, got %d", calls)
	}

	samples := tone(2, 440)
	if _, err := ctx.Full(nil, samples, len(samples)); err != nil {
		t.Fatalf("Full error: %v", err)
	}
	if n, _ := ctx.SegmentCount(); n != 2 {
		t.Fatalf("expected 2 segments, got %d", n)
	}
}

func TestContextQueries(t *testing.T) {
	rt, sim := newTestRuntime(t)
	multi := loadContext(t, rt)
	defer multi.Close()
	english, err := rt.LoadContext(writeModel(t, "ggml-base.en.bin"), nil)
	if err != nil {
		t.Fatalf("LoadContext error: %v", err)
	}
	defer english.Close()

	if ok, err := multi.IsMultilingual(); err != nil || !ok {
		t.Fatalf("expected multilingual model, got %v (%v)", ok, err)
	}
	if ok, err := english.IsMultilingual(); err != nil || ok {
		t.Fatalf("expected english-only model, got %v (%v)", ok, err)
	}

	if err := multi.InitOpenVINO(""); err != nil {
		t.Fatalf("InitOpenVINO error: %v", err)
	}
	sim.InjectFailure(native.OpInitOpenVINO, 1)
	if err := multi.InitOpenVINO("GPU"); !errors.Is(err, ErrEngineStatus) {
		t.Fatalf("expected ErrEngineStatus, got %v", err)
	}

	if info := rt.SystemInfo(); !strings.Contains(info, "SIMULATOR = 1") {
		t.Fatalf("unexpected system info %q", info)
	}
}

type blockingBackend struct {
	*native.Simulator
	entered chan struct{}
	release chan struct{}
}

func (b *blockingBackend) FullWithState(context, state native.Handle, params native.FullParams, samples []float32, n int) int {
	b.entered <- struct{}{}
	<-b.release
	return b.Simulator.FullWithState(context, state, params, samples, n)
}

func TestScopeRejectsOverlappingDecode(t *testing.T) {
	backend := &blockingBackend{
		Simulator: native.NewSimulator(),
		entered:   make(chan struct{}),
		release:   make(chan struct{}),
	}
	rt := NewRuntime(backend, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := loadContext(t, rt)
	defer ctx.Close()
	state, err := ctx.NewState()
	if err != nil {
		t.Fatalf("NewState error: %v", err)
	}
	defer state.Close()

	samples := tone(1, 440)
	done := make(chan error, 1)
	go func() {
		_, err := ctx.FullWithState(state, nil, samples, len(samples))
		done <- err
	}()
	<-backend.entered

	if _, err := ctx.FullWithState(state, nil, samples, len(samples)); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if _, err := state.SegmentCount(); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy while decoding, got %v", err)
	}
	if _, err := ctx.Full(nil, samples, len(samples)); err != nil {
		t.Fatalf("context scope should be independent of state scope: %v", err)
	}

	close(backend.release)
	if err := <-done; err != nil {
		t.Fatalf("blocked decode: %v", err)
	}
	if n, err := state.SegmentCount(); err != nil || n != 1 {
		t.Fatalf("expected 1 segment after decode, got %d (%v)", n, err)
	}
}
