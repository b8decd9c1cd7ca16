package whisper

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/nupi-ai/stt-whisper-native/internal/native"
)

// Runtime issues Contexts and Grammars against one backend.
type Runtime struct {
	backend native.Backend
	logger  *slog.Logger
	log     *slog.Logger
}

// NewRuntime binds a runtime to backend. Most callers go through LoadLibrary;
// tests pass a native.Simulator directly.
func NewRuntime(backend native.Backend, logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{
		backend: backend,
		logger:  logger,
		log:     logger.With("component", "whisper.runtime"),
	}
}

// Backend returns the native boundary in use.
func (r *Runtime) Backend() native.Backend {
	return r.backend
}

// LoadContext loads the model at path with its default decode state
// allocated up front.
func (r *Runtime) LoadContext(path string, params *ContextParams) (*Context, error) {
	return r.loadContext("load_context", path, params, false)
}

// LoadContextNoState loads the model at path without decode scratch space.
// Decoding then goes through Context.Full only; NewState is refused.
func (r *Runtime) LoadContextNoState(path string, params *ContextParams) (*Context, error) {
	return r.loadContext("load_context_no_state", path, params, true)
}

func (r *Runtime) loadContext(op, path string, params *ContextParams, noState bool) (*Context, error) {
	if err := checkRegularFile(op, path, "model"); err != nil {
		return nil, err
	}

	var h native.Handle
	if noState {
		h = r.backend.InitNoState(path, params.native())
	} else {
		h = r.backend.Init(path, params.native())
	}
	if !h.Valid() {
		return nil, newError(op, KindAllocationFailed).object(ObjectContext, h).path(path).detail("engine could not load model").build()
	}

	ctx := &Context{
		runtime: r,
		path:    path,
		noState: noState,
		states:  make(map[*State]struct{}),
	}
	ctx.scope.backend = r.backend
	ctx.scope.reader = segmentReader{
		count: r.backend.FullNSegments,
		t0:    r.backend.FullGetSegmentT0,
		t1:    r.backend.FullGetSegmentT1,
		text:  r.backend.FullGetSegmentText,
	}
	ctx.init(h, ObjectContext)
	ctx.log = r.logger.With("component", "whisper.context", "handle", int32(h), "no_state", noState)
	ctx.log.Debug("context loaded", "model_path", path)
	return ctx, nil
}

// ParseGrammar parses GBNF text.
func (r *Runtime) ParseGrammar(text string) (*Grammar, error) {
	return r.parseGrammar("parse_grammar", text, "")
}

// ParseGrammarFile reads and parses the GBNF file at path.
func (r *Runtime) ParseGrammarFile(path string) (*Grammar, error) {
	const op = "parse_grammar_file"
	if err := checkRegularFile(op, path, "grammar"); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, newError(op, KindInvalidArgument).path(path).cause(err).build()
	}
	return r.parseGrammar(op, string(data), path)
}

func (r *Runtime) parseGrammar(op, text, path string) (*Grammar, error) {
	if text == "" {
		return nil, newError(op, KindInvalidArgument).path(path).detail("grammar text is empty").build()
	}
	h := r.backend.LoadGrammar(text)
	if !h.Valid() {
		return nil, newError(op, KindAllocationFailed).object(ObjectGrammar, h).path(path).detail("engine could not parse grammar").build()
	}
	g := &Grammar{backend: r.backend, text: text, path: path}
	g.init(h, ObjectGrammar)
	return g, nil
}

// SystemInfo returns the engine's build and CPU feature summary.
func (r *Runtime) SystemInfo() string {
	return r.backend.SystemInfo()
}

// SetLogger routes native diagnostics to fn. A nil fn silences them.
func (r *Runtime) SetLogger(fn func(line string)) {
	native.SetLogSink(fn)
	r.backend.SetLogEnabled(fn != nil)
}

func checkRegularFile(op, path, what string) error {
	if strings.TrimSpace(path) == "" {
		return newError(op, KindInvalidArgument).detail("%s path is empty", what).build()
	}
	info, err := os.Stat(path)
	switch {
	case err != nil && os.IsNotExist(err):
		return newError(op, KindNotFound).path(path).cause(err).build()
	case err != nil:
		return newError(op, KindInvalidArgument).path(path).cause(err).build()
	case info.IsDir():
		return newError(op, KindNotFound).path(path).detail("%s path is a directory", what).
			cause(fmt.Errorf("%s: %w", path, fs.ErrNotExist)).build()
	case !info.Mode().IsRegular():
		return newError(op, KindInvalidArgument).path(path).detail("%s path is not a regular file", what).build()
	case info.Size() == 0:
		return newError(op, KindInvalidArgument).path(path).detail("%s file is empty", what).build()
	}
	return nil
}
