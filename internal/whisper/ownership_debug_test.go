//go:build whisperdebug

package whisper

import (
	"io"
	"log/slog"
	"testing"

	"github.com/nupi-ai/stt-whisper-native/internal/native"
)

func TestContextCloseWithLiveStatesPanics(t *testing.T) {
	rt := NewRuntime(native.NewSimulator(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := loadContext(t, rt)
	state, err := ctx.NewState()
	if err != nil {
		t.Fatalf("NewState error: %v", err)
	}
	t.Cleanup(func() {
		state.Close()
		ctx.Close()
	})

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic when closing a context with live states")
		}
	}()
	ctx.Close()
}
