package whisper

import (
	"log/slog"
	"sync"

	"github.com/nupi-ai/stt-whisper-native/internal/native"
)

// LoadOptions configures the process-wide library initialisation.
type LoadOptions struct {
	// Backend overrides the compiled-in backend.
	Backend native.Backend
	// RequireNative fails the load when whisper.cpp is not compiled in
	// instead of falling back to the simulator.
	RequireNative bool
	// LibraryPath names a shared whisper library to load at runtime. The
	// backend is linked at build time, so a non-empty path is refused with
	// ErrUnavailable rather than silently ignored.
	LibraryPath string
	Logger      *slog.Logger
	// LogSink receives native diagnostic lines. When nil they are logged at
	// debug level through Logger.
	LogSink func(line string)
}

var (
	libraryMu sync.Mutex
	library   *Runtime
)

// LoadLibrary initialises the native library once per process. Later calls
// return the same Runtime and ignore opts.
func LoadLibrary(opts *LoadOptions) (*Runtime, error) {
	libraryMu.Lock()
	defer libraryMu.Unlock()

	if library != nil {
		return library, nil
	}
	if opts == nil {
		opts = &LoadOptions{}
	}
	if opts.LibraryPath != "" {
		return nil, newError("load_library", KindUnavailable).object(ObjectLibrary, native.InvalidHandle).
			detail("library path %q not supported: whisper.cpp is linked at build time", opts.LibraryPath).build()
	}

	backend := opts.Backend
	if backend == nil {
		if opts.RequireNative && !native.Available() {
			return nil, newError("load_library", KindUnavailable).object(ObjectLibrary, native.InvalidHandle).
				cause(native.ErrUnavailable).build()
		}
		backend = native.Default()
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rt := NewRuntime(backend, logger)

	sink := opts.LogSink
	if sink == nil {
		nativeLog := logger.With("component", "whisper.native")
		sink = func(line string) {
			nativeLog.Debug(line)
		}
	}
	rt.SetLogger(sink)
	rt.log.Info("library loaded", "native", native.Available(), "system_info", backend.SystemInfo())

	library = rt
	return rt, nil
}

// Default returns the Runtime created by LoadLibrary.
func Default() (*Runtime, error) {
	libraryMu.Lock()
	defer libraryMu.Unlock()
	if library == nil {
		return nil, newError("default", KindNotLoaded).object(ObjectLibrary, native.InvalidHandle).build()
	}
	return library, nil
}

// SetLibraryLogger replaces the native diagnostic sink of the loaded library.
// A nil fn disables native logging.
func SetLibraryLogger(fn func(line string)) error {
	rt, err := Default()
	if err != nil {
		return err
	}
	rt.SetLogger(fn)
	return nil
}
