package server

import "strings"

const languageMetadataKey = "nupi.lang.iso1"

// resolveLanguage turns the configured language mode into a decode language.
// Mode "client" takes the ISO 639-1 code the client put in the stream
// metadata; any other mode is used as is.
func resolveLanguage(mode string, metadata map[string]string) string {
	mode = strings.TrimSpace(mode)
	if strings.EqualFold(mode, "client") {
		if iso := strings.TrimSpace(metadata[languageMetadataKey]); iso != "" {
			return iso
		}
		return "auto"
	}
	if mode == "" {
		return "auto"
	}
	return mode
}
