//go:build !whisperdebug

package whisper

const debugOwnership = false
