package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "nupi.whisper.v1.Transcriber"

const (
	transcribeMethod = "/" + ServiceName + "/Transcribe"
	streamMethod     = "/" + ServiceName + "/StreamTranscription"
)

// TranscriberServer is the server API for the Transcriber service.
type TranscriberServer interface {
	Transcribe(context.Context, *structpb.Struct) (*structpb.Struct, error)
	StreamTranscription(grpc.BidiStreamingServer[structpb.Struct, structpb.Struct]) error
}

// ServiceDesc describes the Transcriber service for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TranscriberServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Transcribe",
			Handler:    transcribeHandler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamTranscription",
			Handler:       streamTranscriptionHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "nupi/whisper/v1/transcriber.proto",
}

// RegisterTranscriberServer registers srv with s.
func RegisterTranscriberServer(s grpc.ServiceRegistrar, srv TranscriberServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func transcribeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TranscriberServer).Transcribe(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: transcribeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TranscriberServer).Transcribe(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func streamTranscriptionHandler(srv any, stream grpc.ServerStream) error {
	return srv.(TranscriberServer).StreamTranscription(&grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}

// Client calls the Transcriber service with typed requests.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Transcribe decodes a whole clip remotely.
func (c *Client) Transcribe(ctx context.Context, req TranscribeRequest, opts ...grpc.CallOption) (TranscribeResponse, error) {
	in, err := req.Struct()
	if err != nil {
		return TranscribeResponse{}, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, transcribeMethod, in, out, opts...); err != nil {
		return TranscribeResponse{}, err
	}
	return parseTranscribeResponse(out), nil
}

// StreamTranscription opens a bidirectional transcription stream.
func (c *Client) StreamTranscription(ctx context.Context, opts ...grpc.CallOption) (*ClientStream, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], streamMethod, opts...)
	if err != nil {
		return nil, err
	}
	return &ClientStream{stream: &grpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: stream}}, nil
}

// ClientStream is the client side of StreamTranscription.
type ClientStream struct {
	stream grpc.BidiStreamingClient[structpb.Struct, structpb.Struct]
}

// Send encodes and sends req.
func (s *ClientStream) Send(req StreamRequest) error {
	msg, err := req.Struct()
	if err != nil {
		return err
	}
	return s.stream.Send(msg)
}

// Recv returns the next transcript.
func (s *ClientStream) Recv() (Transcript, error) {
	msg, err := s.stream.Recv()
	if err != nil {
		return Transcript{}, err
	}
	return parseTranscript(msg), nil
}

// CloseSend half-closes the stream.
func (s *ClientStream) CloseSend() error {
	return s.stream.CloseSend()
}
