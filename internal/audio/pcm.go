// Package audio converts between PCM16LE byte streams, float32 samples and
// WAV containers.
package audio

import (
	"encoding/binary"
	"math"
)

const (
	// SampleRate is the rate the engine decodes at.
	SampleRate = 16000
	// BytesPerSample is the width of a PCM16 sample.
	BytesPerSample = 2
)

// PCM16ToFloat32 converts little-endian signed 16-bit samples to float32 in
// [-1, 1). A trailing odd byte is ignored.
func PCM16ToFloat32(buf []byte) []float32 {
	n := len(buf) / BytesPerSample
	if n == 0 {
		return nil
	}
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		val := int16(binary.LittleEndian.Uint16(buf[2*i:]))
		samples[i] = float32(val) / 32768.0
	}
	return samples
}

// Float32ToPCM16 clamps samples to [-1, 1] and encodes them as PCM16LE.
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		v := math.Max(-1, math.Min(1, float64(s)))
		binary.LittleEndian.PutUint16(out[2*i:], uint16(int16(math.Round(v*32767))))
	}
	return out
}

// BytesFor returns the PCM16 byte length of d milliseconds of mono audio.
func BytesFor(millis int) int {
	return SampleRate * BytesPerSample * millis / 1000
}
