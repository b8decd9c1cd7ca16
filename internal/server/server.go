package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/rs/xid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nupi-ai/stt-whisper-native/internal/adapterinfo"
	"github.com/nupi-ai/stt-whisper-native/internal/audio"
	"github.com/nupi-ai/stt-whisper-native/internal/config"
	"github.com/nupi-ai/stt-whisper-native/internal/engine"
	"github.com/nupi-ai/stt-whisper-native/internal/telemetry"
)

// Server implements the Transcriber service on top of an engine.Provider.
type Server struct {
	cfg      config.Config
	log      *slog.Logger
	provider engine.Provider
	metrics  *telemetry.Recorder
}

var _ TranscriberServer = (*Server)(nil)

// New returns a new Server instance.
func New(cfg config.Config, logger *slog.Logger, provider engine.Provider, metrics *telemetry.Recorder) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if provider == nil {
		panic("server: provider must not be nil")
	}
	if metrics == nil {
		metrics = telemetry.NewRecorder(logger)
	}
	return &Server{
		cfg: cfg,
		log: logger.With(
			"component", "server",
			"model_variant", cfg.ModelVariant,
			"language", cfg.Language,
			"engine", provider.Name(),
		),
		provider: provider,
		metrics:  metrics,
	}
}

// Transcribe decodes a complete clip.
func (s *Server) Transcribe(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := parseTranscribeRequest(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if req.RequestID == "" {
		req.RequestID = xid.New().String()
	}
	if err := checkPCM(req.Audio); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	lang := strings.TrimSpace(req.Language)
	if lang == "" {
		lang = resolveLanguage(s.cfg.Language, req.Metadata)
	}
	log := s.log.With("request_id", req.RequestID)

	tr, err := s.provider.Transcribe(ctx, req.Audio, lang)
	if err != nil {
		log.Error("transcribe failed", "error", err, "bytes", len(req.Audio))
		return nil, toStatus(err)
	}
	log.Info("clip transcribed",
		"bytes", len(req.Audio),
		"segments", len(tr.Segments),
		"duration_ms", tr.Duration.Milliseconds(),
		"elapsed_ms", tr.Elapsed.Milliseconds(),
	)

	resp := TranscribeResponse{
		RequestID:  req.RequestID,
		Text:       tr.Text,
		Language:   tr.Language,
		DurationMs: tr.Duration.Milliseconds(),
		ElapsedMs:  tr.Elapsed.Milliseconds(),
		Metadata:   adapterinfo.TranscriptMetadata(s.cfg.ModelVariant, tr.Language),
	}
	for _, seg := range tr.Segments {
		resp.Segments = append(resp.Segments, TranscriptSegment{
			StartMs: seg.Start.Milliseconds(),
			EndMs:   seg.End.Milliseconds(),
			Text:    seg.Text,
		})
	}
	out, err := resp.Struct()
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// StreamTranscription consumes PCM segments and emits partial transcripts,
// then a final one when the client flushes. Each stream owns one engine.
func (s *Server) StreamTranscription(stream grpc.BidiStreamingServer[structpb.Struct, structpb.Struct]) (err error) {
	var (
		eng           engine.Engine
		log           = s.log
		language      string
		streamMetrics *telemetry.StreamMetrics
	)
	ctx := stream.Context()
	defer func() {
		if eng != nil {
			if cerr := eng.Close(); cerr != nil {
				log.Warn("engine close failed", "error", cerr)
			}
		}
		if streamMetrics != nil {
			streamMetrics.Finish(err)
		}
	}()

	for {
		msg, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			log.Error("failed to receive request", "error", err)
			return err
		}
		req, err := parseStreamRequest(msg)
		if err != nil {
			return status.Error(codes.InvalidArgument, err.Error())
		}

		if eng == nil {
			if err := checkFormat(req.Format); err != nil {
				return status.Error(codes.InvalidArgument, err.Error())
			}
			if req.SessionID == "" {
				req.SessionID = xid.New().String()
			}
			language = resolveLanguage(s.cfg.Language, req.Metadata)
			log = s.log.With("session_id", req.SessionID, "stream_id", req.StreamID, "stream_language", language)

			eng, err = s.provider.NewEngine()
			if err != nil {
				log.Error("engine allocation failed", "error", err)
				return toStatus(err)
			}
			engine.SetDefaultLanguage(eng, language)
			streamMetrics = s.metrics.StartStream(req.SessionID, req.StreamID, req.Metadata)
			log.Info("stream opened", "metadata", req.Metadata)
		}

		var sequence uint64
		if seg := req.Segment; seg != nil {
			sequence = seg.Sequence
			if len(seg.Audio) > 0 {
				if err := checkPCM(seg.Audio); err != nil {
					return status.Error(codes.InvalidArgument, err.Error())
				}
				final := req.Flush || seg.Last
				streamMetrics.RecordSegment(sequence, len(seg.Audio), final)
				start := time.Now()
				results, err := eng.TranscribeSegment(ctx, seg.Audio, engine.Options{
					Language: language,
					Final:    final,
					Sequence: sequence,
				})
				if err != nil {
					log.Error("engine segment failure", "error", err)
					return toStatus(err)
				}
				streamMetrics.RecordInferenceDuration(time.Since(start))
				if err := s.sendResults(stream, log, sequence, language, results, streamMetrics); err != nil {
					return err
				}
			}
		}

		if req.Flush || (req.Segment != nil && req.Segment.Last) {
			streamMetrics.RecordFlush()
			start := time.Now()
			results, err := eng.Flush(ctx, engine.Options{Language: language, Final: true, Sequence: sequence})
			if err != nil {
				log.Error("engine flush failure", "error", err)
				return toStatus(err)
			}
			streamMetrics.RecordInferenceDuration(time.Since(start))
			if err := s.sendResults(stream, log, sequence, language, results, streamMetrics); err != nil {
				return err
			}
			log.Info("stream flushed")
			return nil
		}
	}
}

func (s *Server) sendResults(stream grpc.BidiStreamingServer[structpb.Struct, structpb.Struct], log *slog.Logger, sequence uint64, language string, results []engine.Result, metrics *telemetry.StreamMetrics) error {
	for _, res := range results {
		metrics.RecordTranscript(sequence, res.Text, res.Final)
		lang := res.Language
		if lang == "" {
			lang = language
		}
		msg, err := Transcript{
			Sequence:   sequence,
			Text:       res.Text,
			Confidence: res.Confidence,
			Final:      res.Final,
			Language:   lang,
			Metadata:   adapterinfo.TranscriptMetadata(s.cfg.ModelVariant, lang),
		}.Struct()
		if err != nil {
			return status.Error(codes.Internal, err.Error())
		}
		if err := stream.Send(msg); err != nil {
			log.Error("failed to send transcript", "error", err)
			return err
		}
	}
	return nil
}

func checkFormat(f *AudioFormat) error {
	if f == nil {
		return nil
	}
	if f.Encoding != "" && !strings.EqualFold(f.Encoding, "pcm_s16le") {
		return errors.New("unsupported encoding " + f.Encoding + "; expected pcm_s16le")
	}
	if f.SampleRate != 0 && f.SampleRate != audio.SampleRate {
		return errors.New("unsupported sample rate; expected 16000 Hz")
	}
	if f.Channels != 0 && f.Channels != 1 {
		return errors.New("unsupported channel count; expected mono")
	}
	return nil
}

func checkPCM(pcm []byte) error {
	if len(pcm) == 0 {
		return errors.New("audio is empty")
	}
	if len(pcm)%audio.BytesPerSample != 0 {
		return errors.New("audio length is not a whole number of PCM16 samples")
	}
	return nil
}
