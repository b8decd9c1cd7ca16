package engine

import (
	"context"
	"strings"
	"testing"
)

func TestStubEngineTranscribeAndFlush(t *testing.T) {
	engine := NewStubEngine(nil, "base")

	results, err := engine.TranscribeSegment(context.Background(), []byte("abcd"), Options{Language: "en", Sequence: 1})
	if err != nil {
		t.Fatalf("TranscribeSegment returned error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected one result, got %d", len(results))
	}
	if results[0].Final {
		t.Fatalf("expected non-final result")
	}
	if results[0].Text == "" {
		t.Fatalf("expected transcript text")
	}

	flushResults, err := engine.Flush(context.Background(), Options{Final: true})
	if err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}
	if len(flushResults) != 1 {
		t.Fatalf("expected single flush result")
	}
	if !flushResults[0].Final {
		t.Fatalf("expected final result")
	}
	if !strings.Contains(flushResults[0].Text, "total bytes 4") {
		t.Fatalf("unexpected flush transcript %q", flushResults[0].Text)
	}
}

func TestStubProviderTranscribe(t *testing.T) {
	provider := NewStubProvider(nil, "tiny", "")
	tr, err := provider.Transcribe(context.Background(), make([]byte, 32000), "")
	if err != nil {
		t.Fatalf("Transcribe error: %v", err)
	}
	if tr.Duration.Seconds() != 1 || tr.Language != "auto" || len(tr.Segments) != 1 {
		t.Fatalf("unexpected stub transcript %+v", tr)
	}
	if provider.Name() != "stub" {
		t.Fatalf("unexpected name %q", provider.Name())
	}
}
