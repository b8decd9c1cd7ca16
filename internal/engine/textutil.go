package engine

import (
	"strings"

	"github.com/nupi-ai/stt-whisper-native/internal/whisper"
)

const blankAudio = "[BLANK_AUDIO]"

// maxPromptRunes bounds the text carried into the next window's prompt.
const maxPromptRunes = 224

func diffTranscript(previous, current string) string {
	prevTrimmed := strings.TrimSpace(previous)
	currTrimmed := strings.TrimSpace(current)

	if prevTrimmed == "" {
		return currTrimmed
	}
	if prevTrimmed == currTrimmed {
		return ""
	}

	prevRunes := []rune(prevTrimmed)
	currRunes := []rune(currTrimmed)

	if len(prevRunes) > len(currRunes) {
		return currTrimmed
	}
	for i := range prevRunes {
		if currRunes[i] != prevRunes[i] {
			return currTrimmed
		}
	}

	delta := string(currRunes[len(prevRunes):])
	return strings.TrimLeft(delta, " \t\r\n")
}

// normaliseLanguage picks the explicit candidate, then the stream default,
// then the previously used language.
func normaliseLanguage(candidate, previous, fallback string) string {
	for _, lang := range []string{candidate, fallback, previous} {
		trimmed := strings.TrimSpace(lang)
		if trimmed != "" && !strings.EqualFold(trimmed, "auto") {
			return strings.ToLower(trimmed)
		}
	}
	return "auto"
}

// joinSegments concatenates segment text, dropping blank-audio markers.
func joinSegments(segments []whisper.Segment) string {
	var b strings.Builder
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" || strings.EqualFold(text, blankAudio) {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(text)
	}
	return b.String()
}

func promptTail(text string) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= maxPromptRunes {
		return string(runes)
	}
	tail := string(runes[len(runes)-maxPromptRunes:])
	// Start on a word boundary.
	if i := strings.IndexByte(tail, ' '); i >= 0 && i < len(tail)-1 {
		tail = tail[i+1:]
	}
	return tail
}
