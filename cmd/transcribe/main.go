package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nupi-ai/stt-whisper-native/internal/audio"
	"github.com/nupi-ai/stt-whisper-native/internal/config"
	"github.com/nupi-ai/stt-whisper-native/internal/engine"
	"github.com/nupi-ai/stt-whisper-native/internal/models"
)

type output struct {
	File       string    `json:"file"`
	Text       string    `json:"text"`
	Language   string    `json:"language"`
	DurationMs int64     `json:"duration_ms"`
	ElapsedMs  int64     `json:"elapsed_ms"`
	Segments   []segment `json:"segments,omitempty"`
}

type segment struct {
	StartMs int64  `json:"start_ms"`
	EndMs   int64  `json:"end_ms"`
	Text    string `json:"text"`
}

func main() {
	language := flag.String("language", "", "language code, or auto; defaults to the configured language")
	asJSON := flag.Bool("json", false, "print one JSON object per file")
	withSegments := flag.Bool("segments", false, "include per-segment timings")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: transcribe [flags] file.wav [file.wav ...]\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Loader{}.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	lang := cfg.Language
	if *language != "" {
		lang = *language
	}

	jobs := make([]engine.Job, 0, flag.NArg())
	for _, path := range flag.Args() {
		clip, err := audio.ReadWAVFile(path)
		if err != nil {
			logger.Error("failed to read audio", "file", path, "error", err)
			os.Exit(1)
		}
		pcm := clip.PCM
		if clip.Channels > 1 {
			pcm = audio.Float32ToPCM16(clip.Mono())
		}
		jobs = append(jobs, engine.Job{Name: path, PCM: pcm, Language: lang})
	}

	manager, err := models.NewManager(cfg.DataDir, logger)
	if err != nil {
		logger.Error("failed to initialise model manager", "error", err)
		os.Exit(1)
	}
	provider, modelPath, err := engine.New(cfg, manager, logger, nil)
	if err != nil {
		logger.Warn("engine initialised with warnings", "error", err)
	}
	defer provider.Close()
	logger.Info("transcribing", "files", len(jobs), "workers", cfg.Workers, "engine", provider.Name(), "model_path", modelPath)

	transcripts, err := engine.TranscribeAll(ctx, provider, cfg.Workers, jobs)
	if err != nil {
		logger.Error("transcription failed", "error", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	for i, tr := range transcripts {
		if !*asJSON {
			if len(jobs) > 1 {
				fmt.Printf("%s: ", jobs[i].Name)
			}
			fmt.Println(tr.Text)
			if *withSegments {
				for _, seg := range tr.Segments {
					fmt.Printf("  [%8.2fs -> %8.2fs] %s\n", seg.Start.Seconds(), seg.End.Seconds(), seg.Text)
				}
			}
			continue
		}
		out := output{
			File:       jobs[i].Name,
			Text:       tr.Text,
			Language:   tr.Language,
			DurationMs: tr.Duration.Milliseconds(),
			ElapsedMs:  tr.Elapsed.Milliseconds(),
		}
		if *withSegments {
			for _, seg := range tr.Segments {
				out.Segments = append(out.Segments, segment{
					StartMs: seg.Start.Milliseconds(),
					EndMs:   seg.End.Milliseconds(),
					Text:    seg.Text,
				})
			}
		}
		if err := enc.Encode(out); err != nil {
			logger.Error("failed to encode transcript", "error", err)
			os.Exit(1)
		}
	}
}
