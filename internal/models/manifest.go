package models

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
)

//go:embed embedded_manifest.json
var embeddedManifest []byte

// ErrUnknownVariant is returned for variants missing from the manifest.
var ErrUnknownVariant = errors.New("models: unknown variant")

// Variant describes one downloadable model file.
type Variant struct {
	DisplayName  string `json:"display_name"`
	Filename     string `json:"filename"`
	URL          string `json:"url,omitempty"`
	SHA256       string `json:"sha256,omitempty"`
	SizeBytes    int64  `json:"size_bytes,omitempty"`
	Multilingual bool   `json:"multilingual,omitempty"`
}

// Manifest lists the known model variants by name.
type Manifest struct {
	Source   string             `json:"source,omitempty"`
	Variants map[string]Variant `json:"variants"`
}

// LoadManifest decodes a manifest and checks every variant names a file.
func LoadManifest(r io.Reader) (Manifest, error) {
	var m Manifest
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return Manifest{}, fmt.Errorf("models: decode manifest: %w", err)
	}
	for name, v := range m.Variants {
		if v.Filename == "" {
			return Manifest{}, fmt.Errorf("models: variant %q has no filename", name)
		}
	}
	return m, nil
}

// DefaultManifest returns the manifest compiled into the binary.
func DefaultManifest() (Manifest, error) {
	return LoadManifest(bytes.NewReader(embeddedManifest))
}

// Lookup returns the named variant.
func (m Manifest) Lookup(name string) (Variant, error) {
	v, ok := m.Variants[name]
	if !ok {
		return Variant{}, fmt.Errorf("%w: %q", ErrUnknownVariant, name)
	}
	return v, nil
}

// Names returns the variant names in sorted order.
func (m Manifest) Names() []string {
	names := make([]string, 0, len(m.Variants))
	for name := range m.Variants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Write encodes the manifest as indented JSON.
func (m Manifest) Write(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(m); err != nil {
		return fmt.Errorf("models: encode manifest: %w", err)
	}
	return nil
}
