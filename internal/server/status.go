package server

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/nupi-ai/stt-whisper-native/internal/engine"
	"github.com/nupi-ai/stt-whisper-native/internal/whisper"
)

// toStatus maps engine and core errors onto gRPC status codes.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, engine.ErrPoolClosed):
		return status.Error(codes.Unavailable, err.Error())
	}
	if class, ok := whisper.ClassOf(err); ok {
		switch class {
		case whisper.ClassInput:
			return status.Error(codes.InvalidArgument, err.Error())
		case whisper.ClassProgrammer:
			return status.Error(codes.FailedPrecondition, err.Error())
		case whisper.ClassEngine:
			return status.Error(codes.Internal, err.Error())
		}
	}
	return status.Error(codes.Internal, err.Error())
}
