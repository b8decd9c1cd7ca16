package models

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// EnsureOptions controls how EnsureVariant resolves a model file.
type EnsureOptions struct {
	Manifest Manifest
	// Override is an explicit model path that bypasses the manifest.
	Override string
	// Client downloads missing files. Defaults to a client with a long timeout.
	Client *http.Client
}

// Manager keeps model files under <dataDir>/models.
type Manager struct {
	dir      string
	manifest Manifest
	log      *slog.Logger
}

// Installed describes a manifest variant and its local state.
type Installed struct {
	Name      string
	Variant   Variant
	Path      string
	Present   bool
	SizeBytes int64
}

// NewManager creates the models directory under dataDir.
func NewManager(dataDir string, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(dataDir) == "" {
		return nil, errors.New("models: data directory is required")
	}
	manifest, err := DefaultManifest()
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(dataDir, "models")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("models: create %s: %w", dir, err)
	}
	return &Manager{
		dir:      dir,
		manifest: manifest,
		log:      logger.With("component", "models.manager", "dir", dir),
	}, nil
}

// ModelsDir returns the directory model files are stored in.
func (m *Manager) ModelsDir() string {
	return m.dir
}

// Manifest returns the manifest the manager resolves variants against.
func (m *Manager) Manifest() Manifest {
	return m.manifest
}

// Resolve returns the path of an already present model: override when set,
// otherwise the manifest file for variant.
func (m *Manager) Resolve(variant, override string) (string, error) {
	if strings.TrimSpace(override) != "" {
		return checkFile(override)
	}
	v, err := m.manifest.Lookup(variant)
	if err != nil {
		return "", err
	}
	return checkFile(filepath.Join(m.dir, v.Filename))
}

// List reports every manifest variant and whether its file is present.
func (m *Manager) List() []Installed {
	out := make([]Installed, 0, len(m.manifest.Variants))
	for _, name := range m.manifest.Names() {
		v := m.manifest.Variants[name]
		entry := Installed{Name: name, Variant: v, Path: filepath.Join(m.dir, v.Filename)}
		if info, err := os.Stat(entry.Path); err == nil && info.Mode().IsRegular() {
			entry.Present = true
			entry.SizeBytes = info.Size()
		}
		out = append(out, entry)
	}
	return out
}

// EnsureVariant returns a local path for variant, downloading and verifying
// it when missing.
func (m *Manager) EnsureVariant(ctx context.Context, variant string, opts EnsureOptions) (string, error) {
	if strings.TrimSpace(opts.Override) != "" {
		return checkFile(opts.Override)
	}
	manifest := opts.Manifest
	if len(manifest.Variants) == 0 {
		manifest = m.manifest
	}
	v, err := manifest.Lookup(variant)
	if err != nil {
		return "", err
	}

	path := filepath.Join(m.dir, v.Filename)
	if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
		if v.SizeBytes == 0 || info.Size() == v.SizeBytes {
			return path, nil
		}
		m.log.Warn("model size mismatch; downloading again", "variant", variant, "size", info.Size(), "want", v.SizeBytes)
	}

	if v.URL == "" {
		return "", fmt.Errorf("models: variant %q not present at %s and has no download URL: %w", variant, path, fs.ErrNotExist)
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Minute}
	}
	if err := m.download(ctx, client, variant, v, path); err != nil {
		return "", err
	}
	return path, nil
}

func (m *Manager) download(ctx context.Context, client *http.Client, name string, v Variant, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.URL, nil)
	if err != nil {
		return fmt.Errorf("models: build request for %q: %w", name, err)
	}
	start := time.Now()
	m.log.Info("downloading model", "variant", name, "url", v.URL)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("models: download %q: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("models: download %q: unexpected status %s", name, resp.Status)
	}

	tmp, err := os.CreateTemp(m.dir, v.Filename+".*.part")
	if err != nil {
		return fmt.Errorf("models: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(tmp, hasher), resp.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("models: write %q: %w", name, err)
	}

	sum := hex.EncodeToString(hasher.Sum(nil))
	if v.SHA256 != "" && !strings.EqualFold(sum, v.SHA256) {
		return fmt.Errorf("models: checksum mismatch for %q: got %s, want %s", name, sum, v.SHA256)
	}
	if v.SizeBytes > 0 && written != v.SizeBytes {
		return fmt.Errorf("models: size mismatch for %q: got %d, want %d", name, written, v.SizeBytes)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("models: install %q: %w", name, err)
	}
	m.log.Info("model ready", "variant", name, "path", dest, "bytes", written, "sha256", sum, "elapsed", time.Since(start))
	return nil
}

// Checksum hashes the file at path.
func Checksum(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("models: open %s: %w", path, err)
	}
	defer f.Close()
	hasher := sha256.New()
	n, err := io.Copy(hasher, f)
	if err != nil {
		return "", 0, fmt.Errorf("models: hash %s: %w", path, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), n, nil
}

func checkFile(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("models: resolve %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("models: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("models: %s is a directory: %w", abs, fs.ErrNotExist)
	}
	return abs, nil
}
