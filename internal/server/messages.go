package server

import (
	"encoding/base64"
	"fmt"
	"math"

	"google.golang.org/protobuf/types/known/structpb"
)

// Field names shared by requests and responses. Audio travels as base64
// because google.protobuf.Struct has no bytes kind.
const (
	fieldSessionID  = "session_id"
	fieldStreamID   = "stream_id"
	fieldRequestID  = "request_id"
	fieldMetadata   = "metadata"
	fieldFormat     = "format"
	fieldEncoding   = "encoding"
	fieldSampleRate = "sample_rate"
	fieldChannels   = "channels"
	fieldSegment    = "segment"
	fieldSequence   = "sequence"
	fieldAudio      = "audio"
	fieldLast       = "last"
	fieldFlush      = "flush"
	fieldLanguage   = "language"
	fieldText       = "text"
	fieldConfidence = "confidence"
	fieldFinal      = "final"
	fieldSegments   = "segments"
	fieldStartMs    = "start_ms"
	fieldEndMs      = "end_ms"
	fieldDurationMs = "duration_ms"
	fieldElapsedMs  = "elapsed_ms"
)

// AudioFormat describes the PCM layout of streamed audio.
type AudioFormat struct {
	Encoding   string
	SampleRate int
	Channels   int
}

// StreamRequest is one message of a StreamTranscription call.
type StreamRequest struct {
	SessionID string
	StreamID  string
	Metadata  map[string]string
	Format    *AudioFormat
	// Segment is absent on control-only messages.
	Segment *AudioSegment
	Flush   bool
}

// AudioSegment carries PCM16LE audio.
type AudioSegment struct {
	Sequence uint64
	Audio    []byte
	Last     bool
}

// Transcript is one message emitted by StreamTranscription.
type Transcript struct {
	Sequence   uint64
	Text       string
	Confidence float32
	Final      bool
	Language   string
	Metadata   map[string]string
}

// TranscribeRequest asks for a whole clip to be decoded.
type TranscribeRequest struct {
	RequestID string
	Language  string
	Audio     []byte
	Metadata  map[string]string
}

// TranscribeResponse is the unary result.
type TranscribeResponse struct {
	RequestID  string
	Text       string
	Language   string
	DurationMs int64
	ElapsedMs  int64
	Segments   []TranscriptSegment
	Metadata   map[string]string
}

// TranscriptSegment is one timed span of a TranscribeResponse.
type TranscriptSegment struct {
	StartMs int64
	EndMs   int64
	Text    string
}

// Struct encodes the request.
func (r StreamRequest) Struct() (*structpb.Struct, error) {
	fields := map[string]any{
		fieldSessionID: r.SessionID,
		fieldStreamID:  r.StreamID,
		fieldFlush:     r.Flush,
	}
	if len(r.Metadata) > 0 {
		fields[fieldMetadata] = stringMap(r.Metadata)
	}
	if r.Format != nil {
		fields[fieldFormat] = map[string]any{
			fieldEncoding:   r.Format.Encoding,
			fieldSampleRate: r.Format.SampleRate,
			fieldChannels:   r.Format.Channels,
		}
	}
	if r.Segment != nil {
		fields[fieldSegment] = map[string]any{
			fieldSequence: float64(r.Segment.Sequence),
			fieldAudio:    base64.StdEncoding.EncodeToString(r.Segment.Audio),
			fieldLast:     r.Segment.Last,
		}
	}
	return structpb.NewStruct(fields)
}

func parseStreamRequest(s *structpb.Struct) (StreamRequest, error) {
	f := fieldsOf(s)
	req := StreamRequest{
		SessionID: stringField(f, fieldSessionID),
		StreamID:  stringField(f, fieldStreamID),
		Metadata:  stringMapField(f, fieldMetadata),
		Flush:     boolField(f, fieldFlush),
	}
	if v, ok := f[fieldFormat]; ok {
		ff := v.GetStructValue().GetFields()
		req.Format = &AudioFormat{
			Encoding:   stringField(ff, fieldEncoding),
			SampleRate: int(numberField(ff, fieldSampleRate)),
			Channels:   int(numberField(ff, fieldChannels)),
		}
	}
	if v, ok := f[fieldSegment]; ok {
		sf := v.GetStructValue().GetFields()
		audio, err := audioField(sf)
		if err != nil {
			return StreamRequest{}, err
		}
		seq := numberField(sf, fieldSequence)
		if seq < 0 || seq != math.Trunc(seq) {
			return StreamRequest{}, fmt.Errorf("segment sequence %v is not a non-negative integer", seq)
		}
		req.Segment = &AudioSegment{
			Sequence: uint64(seq),
			Audio:    audio,
			Last:     boolField(sf, fieldLast),
		}
	}
	return req, nil
}

// Struct encodes the transcript.
func (t Transcript) Struct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		fieldSequence:   float64(t.Sequence),
		fieldText:       t.Text,
		fieldConfidence: float64(t.Confidence),
		fieldFinal:      t.Final,
		fieldLanguage:   t.Language,
		fieldMetadata:   stringMap(t.Metadata),
	})
}

func parseTranscript(s *structpb.Struct) Transcript {
	f := fieldsOf(s)
	return Transcript{
		Sequence:   uint64(numberField(f, fieldSequence)),
		Text:       stringField(f, fieldText),
		Confidence: float32(numberField(f, fieldConfidence)),
		Final:      boolField(f, fieldFinal),
		Language:   stringField(f, fieldLanguage),
		Metadata:   stringMapField(f, fieldMetadata),
	}
}

// Struct encodes the request.
func (r TranscribeRequest) Struct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		fieldRequestID: r.RequestID,
		fieldLanguage:  r.Language,
		fieldAudio:     base64.StdEncoding.EncodeToString(r.Audio),
		fieldMetadata:  stringMap(r.Metadata),
	})
}

func parseTranscribeRequest(s *structpb.Struct) (TranscribeRequest, error) {
	f := fieldsOf(s)
	audio, err := audioField(f)
	if err != nil {
		return TranscribeRequest{}, err
	}
	return TranscribeRequest{
		RequestID: stringField(f, fieldRequestID),
		Language:  stringField(f, fieldLanguage),
		Audio:     audio,
		Metadata:  stringMapField(f, fieldMetadata),
	}, nil
}

// Struct encodes the response.
func (r TranscribeResponse) Struct() (*structpb.Struct, error) {
	segments := make([]any, 0, len(r.Segments))
	for _, seg := range r.Segments {
		segments = append(segments, map[string]any{
			fieldStartMs: float64(seg.StartMs),
			fieldEndMs:   float64(seg.EndMs),
			fieldText:    seg.Text,
		})
	}
	return structpb.NewStruct(map[string]any{
		fieldRequestID:  r.RequestID,
		fieldText:       r.Text,
		fieldLanguage:   r.Language,
		fieldDurationMs: float64(r.DurationMs),
		fieldElapsedMs:  float64(r.ElapsedMs),
		fieldSegments:   segments,
		fieldMetadata:   stringMap(r.Metadata),
	})
}

func parseTranscribeResponse(s *structpb.Struct) TranscribeResponse {
	f := fieldsOf(s)
	resp := TranscribeResponse{
		RequestID:  stringField(f, fieldRequestID),
		Text:       stringField(f, fieldText),
		Language:   stringField(f, fieldLanguage),
		DurationMs: int64(numberField(f, fieldDurationMs)),
		ElapsedMs:  int64(numberField(f, fieldElapsedMs)),
		Metadata:   stringMapField(f, fieldMetadata),
	}
	for _, v := range f[fieldSegments].GetListValue().GetValues() {
		sf := v.GetStructValue().GetFields()
		resp.Segments = append(resp.Segments, TranscriptSegment{
			StartMs: int64(numberField(sf, fieldStartMs)),
			EndMs:   int64(numberField(sf, fieldEndMs)),
			Text:    stringField(sf, fieldText),
		})
	}
	return resp
}

func fieldsOf(s *structpb.Struct) map[string]*structpb.Value {
	return s.GetFields()
}

func stringField(f map[string]*structpb.Value, key string) string {
	return f[key].GetStringValue()
}

func numberField(f map[string]*structpb.Value, key string) float64 {
	return f[key].GetNumberValue()
}

func boolField(f map[string]*structpb.Value, key string) bool {
	return f[key].GetBoolValue()
}

func stringMapField(f map[string]*structpb.Value, key string) map[string]string {
	inner := f[key].GetStructValue().GetFields()
	if len(inner) == 0 {
		return nil
	}
	out := make(map[string]string, len(inner))
	for k, v := range inner {
		out[k] = v.GetStringValue()
	}
	return out
}

func audioField(f map[string]*structpb.Value) ([]byte, error) {
	encoded := stringField(f, fieldAudio)
	if encoded == "" {
		return nil, nil
	}
	audio, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("audio is not valid base64: %w", err)
	}
	return audio, nil
}

func stringMap(in map[string]string) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
