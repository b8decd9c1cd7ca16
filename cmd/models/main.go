package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/nupi-ai/stt-whisper-native/internal/models"
)

const usage = `usage: models <command> [flags]

commands:
  list      show manifest variants and which are downloaded
  download  fetch and verify a variant
  checksum  print the sha256 and size of a model file
  refresh   re-download every variant and rewrite a manifest's checksums
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "list":
		err = runList(args, logger)
	case "download":
		err = runDownload(ctx, args, logger)
	case "checksum":
		err = runChecksum(args)
	case "refresh":
		err = runRefresh(ctx, args, logger)
	default:
		fmt.Fprintf(os.Stderr, "models: unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "models: %v\n", err)
		os.Exit(1)
	}
}

func runList(args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	dir := fs.String("dir", "testdata", "data directory holding models/<file>")
	_ = fs.Parse(args)

	manager, err := models.NewManager(filepath.Clean(*dir), logger)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VARIANT\tFILE\tMULTILINGUAL\tPRESENT\tSIZE")
	for _, m := range manager.List() {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%t\t%d\n", m.Name, m.Variant.Filename, m.Variant.Multilingual, m.Present, m.SizeBytes)
	}
	return tw.Flush()
}

func runDownload(ctx context.Context, args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("download", flag.ExitOnError)
	variant := fs.String("variant", "base", "model variant defined in internal/models/embedded_manifest.json")
	dir := fs.String("dir", "testdata", "base directory where models/<file> will be stored")
	timeout := fs.Duration("timeout", 15*time.Minute, "download timeout")
	_ = fs.Parse(args)

	if strings.TrimSpace(*dir) == "" {
		return fmt.Errorf("--dir must not be empty")
	}
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	manager, err := models.NewManager(filepath.Clean(*dir), logger)
	if err != nil {
		return fmt.Errorf("init manager: %w", err)
	}
	path, err := manager.EnsureVariant(ctx, *variant, models.EnsureOptions{})
	if err != nil {
		return fmt.Errorf("ensure variant %q: %w", *variant, err)
	}
	fmt.Printf("Model %q ready at %s\n", *variant, path)
	return nil
}

func runChecksum(args []string) error {
	fs := flag.NewFlagSet("checksum", flag.ExitOnError)
	_ = fs.Parse(args)
	if fs.NArg() == 0 {
		return fmt.Errorf("checksum: expected at least one file")
	}
	for _, path := range fs.Args() {
		sum, size, err := models.Checksum(path)
		if err != nil {
			return err
		}
		fmt.Printf("%s  %d  %s\n", sum, size, path)
	}
	return nil
}

func runRefresh(ctx context.Context, args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("refresh", flag.ExitOnError)
	manifestPath := fs.String("manifest", "internal/models/embedded_manifest.json", "path to manifest JSON to update")
	concurrency := fs.Int("concurrency", 2, "parallel downloads")
	_ = fs.Parse(args)

	file, err := os.Open(*manifestPath)
	if err != nil {
		return fmt.Errorf("open manifest: %w", err)
	}
	manifest, err := models.LoadManifest(file)
	file.Close()
	if err != nil {
		return err
	}

	updated, err := models.Refresh(ctx, manifest, models.RefreshOptions{
		Client:      &http.Client{Timeout: 30 * time.Minute},
		Concurrency: *concurrency,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := updated.Write(&buf); err != nil {
		return err
	}
	if err := os.WriteFile(*manifestPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	fmt.Printf("Updated manifest written to %s\n", *manifestPath)
	return nil
}
