package adapterinfo

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed adapter.yaml
var manifest []byte

// Metadata captures static identifiers for the adapter. Centralising the values
// makes it easy to clone this repository for new adapters.
type Metadata struct {
	Name        string `yaml:"name"`
	BinaryName  string `yaml:"binary_name"`
	Slug        string `yaml:"slug"`
	Description string `yaml:"description"`
	GeneratorID string `yaml:"generator_id"`
	Version     string `yaml:"version"`
}

// Info describes the current adapter.
var Info = mustLoad(manifest)

func mustLoad(data []byte) Metadata {
	meta, err := parse(data)
	if err != nil {
		panic(err)
	}
	return meta
}

func parse(data []byte) (Metadata, error) {
	var meta Metadata
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return Metadata{}, fmt.Errorf("adapterinfo: decode manifest: %w", err)
	}
	if meta.Slug == "" || meta.Version == "" {
		return Metadata{}, fmt.Errorf("adapterinfo: manifest requires slug and version")
	}
	return meta, nil
}

// Version returns the adapter release version.
func Version() string {
	return Info.Version
}

// TranscriptMetadata produces the standard metadata payload attached
// to emitted transcripts.
func TranscriptMetadata(modelVariant, language string) map[string]string {
	return map[string]string{
		"generator":     Info.GeneratorID,
		"model_variant": modelVariant,
		"language":      language,
		"version":       Info.Version,
	}
}
