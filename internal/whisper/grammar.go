package whisper

import "github.com/nupi-ai/stt-whisper-native/internal/native"

// Grammar is a parsed GBNF constraint. It is immutable and may be attached
// to concurrent decodes on different scopes.
type Grammar struct {
	resource

	backend native.Backend
	text    string
	path    string
}

// Text returns the grammar source as parsed.
func (g *Grammar) Text() string {
	return g.text
}

// Path returns the file the grammar was read from, or "" for literal text.
func (g *Grammar) Path() string {
	return g.path
}

// Close frees the grammar. It is idempotent.
func (g *Grammar) Close() error {
	g.release(g.backend.FreeGrammar)
	return nil
}
