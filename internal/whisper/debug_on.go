//go:build whisperdebug

package whisper

// debugOwnership turns ownership-order violations into panics.
const debugOwnership = true
