package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrUnsupportedFormat reports a WAV file the engine cannot consume.
var ErrUnsupportedFormat = errors.New("audio: unsupported wav format")

// Clip is decoded PCM16 audio.
type Clip struct {
	SampleRate int
	Channels   int
	// PCM holds interleaved little-endian 16-bit samples.
	PCM []byte
}

// Duration returns the playing time of the clip.
func (c *Clip) Duration() time.Duration {
	if c.SampleRate == 0 || c.Channels == 0 {
		return 0
	}
	frames := len(c.PCM) / (BytesPerSample * c.Channels)
	return time.Duration(frames) * time.Second / time.Duration(c.SampleRate)
}

// Mono returns the clip as float32 samples, averaging channels.
func (c *Clip) Mono() []float32 {
	samples := PCM16ToFloat32(c.PCM)
	if c.Channels <= 1 {
		return samples
	}
	frames := len(samples) / c.Channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for ch := 0; ch < c.Channels; ch++ {
			sum += samples[i*c.Channels+ch]
		}
		out[i] = sum / float32(c.Channels)
	}
	return out
}

// ReadWAVFile reads a PCM16 WAV file.
func ReadWAVFile(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audio: open wav: %w", err)
	}
	defer f.Close()
	return ReadWAV(f)
}

// ReadWAV parses a RIFF/WAVE stream holding integer PCM16 audio at the
// engine sample rate. Chunks other than fmt and data are skipped.
func ReadWAV(r io.ReadSeeker) (*Clip, error) {
	d := wav.NewDecoder(r)
	d.ReadInfo()
	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("audio: invalid wav header: %w", err)
	}

	switch {
	case d.WavAudioFormat != wavFormatPCM:
		return nil, fmt.Errorf("%w: format %d", ErrUnsupportedFormat, d.WavAudioFormat)
	case d.BitDepth != 16:
		return nil, fmt.Errorf("%w: %d bits per sample", ErrUnsupportedFormat, d.BitDepth)
	case d.NumChans == 0:
		return nil, fmt.Errorf("%w: no channels", ErrUnsupportedFormat)
	case int(d.SampleRate) != SampleRate:
		return nil, fmt.Errorf("%w: sample rate %d, want %d", ErrUnsupportedFormat, d.SampleRate, SampleRate)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("audio: read wav data: %w", err)
	}
	pcm := make([]byte, len(buf.Data)*BytesPerSample)
	for i, v := range buf.Data {
		binary.LittleEndian.PutUint16(pcm[2*i:], uint16(int16(v)))
	}
	return &Clip{SampleRate: int(d.SampleRate), Channels: int(d.NumChans), PCM: pcm}, nil
}

const wavFormatPCM = 1

// WriteWAV writes mono PCM16 audio. The header sizes are patched on close,
// so w must be seekable.
func WriteWAV(w io.WriteSeeker, sampleRate int, pcm []byte) error {
	enc := wav.NewEncoder(w, sampleRate, 16, 1, wavFormatPCM)
	n := len(pcm) / BytesPerSample
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           make([]int, n),
		SourceBitDepth: 16,
	}
	for i := 0; i < n; i++ {
		buf.Data[i] = int(int16(binary.LittleEndian.Uint16(pcm[2*i:])))
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("audio: write wav data: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("audio: finish wav: %w", err)
	}
	return nil
}

// WriteWAVFile writes mono PCM16 audio to path.
func WriteWAVFile(path string, sampleRate int, pcm []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("audio: create wav: %w", err)
	}
	if err := WriteWAV(f, sampleRate, pcm); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
