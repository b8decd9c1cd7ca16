//go:build !whispercpp

package native

import "sync"

var (
	simOnce    sync.Once
	defaultSim *Simulator
)

// Available reports whether the whisper.cpp backend is compiled in.
func Available() bool { return false }

// Default returns the process-wide backend. Without the whispercpp build tag
// this is a shared Simulator.
func Default() Backend {
	simOnce.Do(func() {
		defaultSim = NewSimulator()
	})
	return defaultSim
}
