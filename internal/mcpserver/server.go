// Package mcpserver exposes the transcription provider as Model Context
// Protocol tools.
package mcpserver

import (
	"context"
	"log/slog"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nupi-ai/stt-whisper-native/internal/adapterinfo"
	"github.com/nupi-ai/stt-whisper-native/internal/engine"
	"github.com/nupi-ai/stt-whisper-native/internal/models"
)

// Config describes the MCP server identity and transcription defaults.
type Config struct {
	ModelVariant string
	Language     string
	// SystemInfo is the engine's build and CPU feature string.
	SystemInfo string
}

// Server serves transcribe_file, transcribe_pcm, list_models and
// system_info.
type Server struct {
	cfg      Config
	provider engine.Provider
	manager  *models.Manager
	log      *slog.Logger
	mcp      *sdk.Server
}

// New registers the tools on a fresh MCP server. manager may be nil, in
// which case list_models reports no variants.
func New(cfg Config, provider engine.Provider, manager *models.Manager, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:      cfg,
		provider: provider,
		manager:  manager,
		log:      logger.With("component", "mcp", "engine", provider.Name()),
	}
	s.mcp = sdk.NewServer(&sdk.Implementation{
		Name:    adapterinfo.Info.Slug,
		Version: adapterinfo.Version(),
	}, nil)
	s.registerTools()
	return s
}

// Run serves the tools over t until ctx is done or the client disconnects.
func (s *Server) Run(ctx context.Context, t sdk.Transport) error {
	s.log.Info("mcp server starting", "model_path", s.provider.ModelPath())
	return s.mcp.Run(ctx, t)
}

// RunStdio serves the tools over stdin and stdout.
func (s *Server) RunStdio(ctx context.Context) error {
	return s.Run(ctx, &sdk.StdioTransport{})
}

func (s *Server) registerTools() {
	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "transcribe_file",
		Description: "Transcribe a 16 kHz PCM16 WAV file from the local filesystem",
	}, s.handleTranscribeFile)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "transcribe_pcm",
		Description: "Transcribe base64-encoded 16 kHz mono PCM16 little-endian audio",
	}, s.handleTranscribePCM)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "list_models",
		Description: "List the known Whisper model variants and whether each is downloaded",
	}, s.handleListModels)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "system_info",
		Description: "Report the loaded model and the engine build",
	}, s.handleSystemInfo)
}
