package models

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/sync/errgroup"
)

// RefreshOptions controls Refresh.
type RefreshOptions struct {
	Client *http.Client
	// Concurrency bounds parallel downloads. Zero means 2.
	Concurrency int
	Logger      *slog.Logger
}

// Refresh downloads every variant with a URL and returns a copy of m with
// SHA256 and SizeBytes recomputed. Variants without a URL are kept as is.
// The first failed download cancels the rest.
func Refresh(ctx context.Context, m Manifest, opts RefreshOptions) (Manifest, error) {
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := opts.Concurrency
	if limit <= 0 {
		limit = 2
	}

	out := Manifest{Source: m.Source, Variants: make(map[string]Variant, len(m.Variants))}
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, name := range m.Names() {
		v := m.Variants[name]
		if v.URL == "" {
			logger.Info("skipping variant without url", "variant", name)
			out.Variants[name] = v
			continue
		}
		g.Go(func() error {
			sum, size, err := hashURL(ctx, client, v.URL)
			if err != nil {
				return fmt.Errorf("models: refresh %q: %w", name, err)
			}
			logger.Info("variant hashed", "variant", name, "size", size, "sha256", sum)
			v.SHA256 = sum
			v.SizeBytes = size
			mu.Lock()
			out.Variants[name] = v
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Manifest{}, err
	}
	return out, nil
}

func hashURL(ctx context.Context, client *http.Client, url string) (string, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("unexpected status %s", resp.Status)
	}
	hasher := sha256.New()
	n, err := io.Copy(hasher, resp.Body)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(hasher.Sum(nil)), n, nil
}
