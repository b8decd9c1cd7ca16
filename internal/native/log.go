package native

import (
	"strings"
	"sync"
	"sync/atomic"
)

// LogSink receives one free-text diagnostic line from the native library.
type LogSink func(line string)

var (
	sinkMu     sync.RWMutex
	sink       LogSink
	logEnabled atomic.Bool
)

// SetLogSink installs the process-wide receiver for native diagnostics.
// A nil sink discards them.
func SetLogSink(fn LogSink) {
	sinkMu.Lock()
	sink = fn
	sinkMu.Unlock()
}

// emitLog forwards a native diagnostic line to the installed sink when
// logging is enabled.
func emitLog(line string) {
	if !logEnabled.Load() {
		return
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return
	}
	sinkMu.RLock()
	fn := sink
	sinkMu.RUnlock()
	if fn != nil {
		fn(line)
	}
}
