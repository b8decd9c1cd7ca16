package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nupi-ai/stt-whisper-native/internal/adapterinfo"
	"github.com/nupi-ai/stt-whisper-native/internal/audio"
	"github.com/nupi-ai/stt-whisper-native/internal/engine"
)

type TranscribeFileArgs struct {
	Path     string `json:"path" jsonschema:"path to a 16 kHz PCM16 WAV file"`
	Language string `json:"language,omitempty" jsonschema:"ISO 639-1 language code or auto"`
}

type TranscribePCMArgs struct {
	Audio    string `json:"audio" jsonschema:"base64-encoded 16 kHz mono PCM16 little-endian audio"`
	Language string `json:"language,omitempty" jsonschema:"ISO 639-1 language code or auto"`
}

type ListModelsArgs struct{}

type SystemInfoArgs struct{}

type SegmentOutput struct {
	StartMs int64  `json:"start_ms"`
	EndMs   int64  `json:"end_ms"`
	Text    string `json:"text"`
}

type TranscriptOutput struct {
	Text       string          `json:"text"`
	Language   string          `json:"language"`
	DurationMs int64           `json:"duration_ms"`
	ElapsedMs  int64           `json:"elapsed_ms"`
	Segments   []SegmentOutput `json:"segments"`
}

type ModelOutput struct {
	Name         string `json:"name"`
	Filename     string `json:"filename"`
	Multilingual bool   `json:"multilingual"`
	Present      bool   `json:"present"`
	SizeBytes    int64  `json:"size_bytes"`
}

type ListModelsOutput struct {
	Active string        `json:"active"`
	Models []ModelOutput `json:"models"`
}

type SystemInfoOutput struct {
	Adapter      string `json:"adapter"`
	Version      string `json:"version"`
	Engine       string `json:"engine"`
	ModelVariant string `json:"model_variant"`
	ModelPath    string `json:"model_path"`
	Native       bool   `json:"native"`
	SystemInfo   string `json:"system_info"`
}

func (s *Server) handleTranscribeFile(ctx context.Context, req *sdk.CallToolRequest, args TranscribeFileArgs) (*sdk.CallToolResult, TranscriptOutput, error) {
	if args.Path == "" {
		return nil, TranscriptOutput{}, errors.New("path is required")
	}
	clip, err := audio.ReadWAVFile(args.Path)
	if err != nil {
		return nil, TranscriptOutput{}, err
	}
	pcm := clip.PCM
	if clip.Channels > 1 {
		pcm = audio.Float32ToPCM16(clip.Mono())
	}
	return s.transcribe(ctx, pcm, args.Language)
}

func (s *Server) handleTranscribePCM(ctx context.Context, req *sdk.CallToolRequest, args TranscribePCMArgs) (*sdk.CallToolResult, TranscriptOutput, error) {
	pcm, err := base64.StdEncoding.DecodeString(args.Audio)
	if err != nil {
		return nil, TranscriptOutput{}, fmt.Errorf("invalid base64 audio: %w", err)
	}
	if len(pcm) == 0 || len(pcm)%audio.BytesPerSample != 0 {
		return nil, TranscriptOutput{}, fmt.Errorf("audio must hold whole PCM16 samples, got %d bytes", len(pcm))
	}
	return s.transcribe(ctx, pcm, args.Language)
}

func (s *Server) transcribe(ctx context.Context, pcm []byte, language string) (*sdk.CallToolResult, TranscriptOutput, error) {
	if language == "" {
		language = s.cfg.Language
	}
	tr, err := s.provider.Transcribe(ctx, pcm, language)
	if err != nil {
		s.log.Error("transcription failed", "error", err, "bytes", len(pcm))
		return nil, TranscriptOutput{}, fmt.Errorf("transcription failed: %w", err)
	}
	out := TranscriptOutput{
		Text:       tr.Text,
		Language:   tr.Language,
		DurationMs: tr.Duration.Milliseconds(),
		ElapsedMs:  tr.Elapsed.Milliseconds(),
		Segments:   make([]SegmentOutput, 0, len(tr.Segments)),
	}
	for _, seg := range tr.Segments {
		out.Segments = append(out.Segments, SegmentOutput{
			StartMs: seg.Start.Milliseconds(),
			EndMs:   seg.End.Milliseconds(),
			Text:    seg.Text,
		})
	}
	s.log.Info("clip transcribed", "bytes", len(pcm), "segments", len(out.Segments), "elapsed_ms", out.ElapsedMs)
	return result(out, tr.Text)
}

func (s *Server) handleListModels(ctx context.Context, req *sdk.CallToolRequest, args ListModelsArgs) (*sdk.CallToolResult, ListModelsOutput, error) {
	out := ListModelsOutput{Active: s.cfg.ModelVariant, Models: []ModelOutput{}}
	if s.manager != nil {
		for _, m := range s.manager.List() {
			out.Models = append(out.Models, ModelOutput{
				Name:         m.Name,
				Filename:     m.Variant.Filename,
				Multilingual: m.Variant.Multilingual,
				Present:      m.Present,
				SizeBytes:    m.SizeBytes,
			})
		}
	}
	return result(out, "")
}

func (s *Server) handleSystemInfo(ctx context.Context, req *sdk.CallToolRequest, args SystemInfoArgs) (*sdk.CallToolResult, SystemInfoOutput, error) {
	out := SystemInfoOutput{
		Adapter:      adapterinfo.Info.Slug,
		Version:      adapterinfo.Version(),
		Engine:       s.provider.Name(),
		ModelVariant: s.cfg.ModelVariant,
		ModelPath:    s.provider.ModelPath(),
		Native:       engine.NativeAvailable(),
		SystemInfo:   s.cfg.SystemInfo,
	}
	return result(out, "")
}

// result renders out as JSON text content, preceded by summary when set.
func result[T any](out T, summary string) (*sdk.CallToolResult, T, error) {
	data, err := json.Marshal(out)
	if err != nil {
		var zero T
		return nil, zero, err
	}
	var content []sdk.Content
	if summary != "" {
		content = append(content, &sdk.TextContent{Text: summary})
	}
	content = append(content, &sdk.TextContent{Text: string(data)})
	return &sdk.CallToolResult{Content: content}, out, nil
}
