// Package testfixture finds large test assets that are not committed.
package testfixture

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// ModelSuggestion tells the reader how to fetch the default test model.
const ModelSuggestion = "run `go run ./cmd/tools/models download --variant base.en --dir testdata`"

// Locate walks up from the working directory until relativePath exists and
// skips the test when it never does.
func Locate(tb testing.TB, relativePath string, suggestion string) string {
	tb.Helper()

	wd, err := os.Getwd()
	if err != nil {
		tb.Fatalf("getwd: %v", err)
	}

	visited := make([]string, 0, 4)
	for {
		candidate := filepath.Join(wd, relativePath)
		visited = append(visited, candidate)

		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			tb.Fatalf("stat %s: %v", candidate, err)
		}

		parent := filepath.Dir(wd)
		if parent == wd {
			msg := fmt.Sprintf("fixture %s not found (checked: %s)", relativePath, strings.Join(visited, ", "))
			if suggestion != "" {
				msg = fmt.Sprintf("%s; %s", msg, suggestion)
			}
			tb.Skip(msg)
		}
		wd = parent
	}
}

// Model returns the path of the base.en test model.
func Model(tb testing.TB) string {
	tb.Helper()
	return Locate(tb, filepath.Join("testdata", "models", "ggml-base.en.bin"), ModelSuggestion)
}

// Speech returns the path of the spoken test clip.
func Speech(tb testing.TB) string {
	tb.Helper()
	return Locate(tb, filepath.Join("testdata", "test.wav"), "")
}
