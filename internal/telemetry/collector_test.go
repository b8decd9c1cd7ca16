package telemetry

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveDecode(t *testing.T) {
	recorder := NewRecorder(slog.New(slog.NewTextHandler(io.Discard, nil)))
	recorder.ObserveDecode(200*time.Millisecond, 16000, 2, nil)
	recorder.ObserveDecode(100*time.Millisecond, 8000, 0, errors.New("status -6"))

	stream := recorder.StartStream("s", "mic", nil)
	stream.RecordInferenceDuration(300 * time.Millisecond)
	stream.RecordInferenceDuration(-time.Second)
	stream.Finish(nil)

	s := recorder.Snapshot()
	if s.TotalDecodes != 2 || s.FailedDecodes != 1 {
		t.Fatalf("unexpected decode counters %+v", s)
	}
	if s.DecodedSamples != 16000 || s.DecodedSegments != 2 {
		t.Fatalf("failed decodes must not add output, got %+v", s)
	}
	if s.DecodeTime != 300*time.Millisecond || s.InferenceTime != 300*time.Millisecond {
		t.Fatalf("unexpected durations %v / %v", s.DecodeTime, s.InferenceTime)
	}
}

func TestCollectorExportsSnapshot(t *testing.T) {
	recorder := NewRecorder(slog.New(slog.NewTextHandler(io.Discard, nil)))
	stream := recorder.StartStream("s", "mic", nil)
	stream.RecordSegment(1, 320, false)
	stream.RecordTranscript(1, "hello", false)
	stream.RecordTranscript(1, "hello world", true)
	recorder.ObserveDecode(time.Second, 16000, 1, nil)
	recorder.ObserveDecode(time.Second, 16000, 0, errors.New("boom"))

	registry := prometheus.NewPedanticRegistry()
	if err := registry.Register(NewCollector(recorder)); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	expected := `
# HELP whisper_adapter_decodes_total Native decode calls.
# TYPE whisper_adapter_decodes_total counter
whisper_adapter_decodes_total{result="error"} 1
whisper_adapter_decodes_total{result="ok"} 1
# HELP whisper_adapter_streams_active Transcription streams currently open.
# TYPE whisper_adapter_streams_active gauge
whisper_adapter_streams_active 1
# HELP whisper_adapter_transcripts_total Transcripts emitted.
# TYPE whisper_adapter_transcripts_total counter
whisper_adapter_transcripts_total{final="false"} 1
whisper_adapter_transcripts_total{final="true"} 1
`
	if err := testutil.GatherAndCompare(registry, strings.NewReader(expected),
		"whisper_adapter_decodes_total", "whisper_adapter_streams_active", "whisper_adapter_transcripts_total"); err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}
	if got := testutil.CollectAndCount(NewCollector(recorder)); got != 13 {
		t.Fatalf("expected 13 series, got %d", got)
	}
}
