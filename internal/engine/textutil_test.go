package engine

import (
	"strings"
	"testing"

	"github.com/nupi-ai/stt-whisper-native/internal/whisper"
)

func TestDiffTranscript(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		previous string
		current  string
		want     string
	}{
		{
			name:     "initial text",
			previous: "",
			current:  "hello world",
			want:     "hello world",
		},
		{
			name:     "same text",
			previous: "hello world",
			current:  "hello world",
			want:     "",
		},
		{
			name:     "append text",
			previous: "hello",
			current:  "hello world",
			want:     "world",
		},
		{
			name:     "append whitespace",
			previous: "hello",
			current:  "hello   world",
			want:     "world",
		},
		{
			name:     "prefix mismatch",
			previous: "hello world",
			current:  "hola mundo",
			want:     "hola mundo",
		},
		{
			name:     "multibyte characters",
			previous: "cześć",
			current:  "cześć świecie",
			want:     "świecie",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := diffTranscript(tc.previous, tc.current)
			if got != tc.want {
				t.Fatalf("diffTranscript(%q, %q) = %q, want %q", tc.previous, tc.current, got, tc.want)
			}
		})
	}
}

func TestNormaliseLanguage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		candidate string
		previous  string
		fallback  string
		want      string
	}{
		{"candidate wins", "en", "de", "pl", "en"},
		{"fallback used", "", "de", "pl", "pl"},
		{"auto candidate uses fallback", "auto", "", "PL", "pl"},
		{"previous used", " ", "de", "", "de"},
		{"defaults to auto", "  ", "", " ", "auto"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := normaliseLanguage(tc.candidate, tc.previous, tc.fallback); got != tc.want {
				t.Fatalf("normaliseLanguage(%q, %q, %q) = %q, want %q", tc.candidate, tc.previous, tc.fallback, got, tc.want)
			}
		})
	}
}

func TestJoinSegmentsDropsBlankAudio(t *testing.T) {
	segments := []whisper.Segment{
		{Text: " hello"},
		{Text: " [BLANK_AUDIO]"},
		{Text: "   "},
		{Text: " world "},
	}
	if got := joinSegments(segments); got != "hello world" {
		t.Fatalf("joinSegments = %q", got)
	}
}

func TestPromptTail(t *testing.T) {
	if got := promptTail("  short  "); got != "short" {
		t.Fatalf("promptTail(short) = %q", got)
	}
	long := strings.Repeat("word ", 100)
	got := promptTail(long)
	if len([]rune(got)) > maxPromptRunes {
		t.Fatalf("promptTail too long: %d runes", len([]rune(got)))
	}
	if strings.HasPrefix(got, "ord") || strings.HasPrefix(got, " ") {
		t.Fatalf("expected tail to start on a word, got %q", got[:10])
	}
}
