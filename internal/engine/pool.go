package engine

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nupi-ai/stt-whisper-native/internal/audio"
)

// ErrPoolClosed is returned by a Pool after its provider is closed.
var ErrPoolClosed = errors.New("engine: pool closed")

// Pool holds a fixed set of decode scopes for whole-clip transcription. Each
// scope runs at most one decode at a time.
type Pool struct {
	provider *WhisperProvider
	free     chan decoder
	all      []decoder
	done     chan struct{}
}

func newPool(p *WhisperProvider, size int) (*Pool, error) {
	pool := &Pool{
		provider: p,
		free:     make(chan decoder, size),
		done:     make(chan struct{}),
	}
	for i := 0; i < size; i++ {
		dec, err := p.newDecoder()
		if err != nil {
			pool.close()
			return nil, err
		}
		pool.all = append(pool.all, dec)
		pool.free <- dec
	}
	return pool, nil
}

// Size returns the number of decode scopes.
func (p *Pool) Size() int {
	return len(p.all)
}

// Transcribe waits for a free scope and decodes pcm on it.
func (p *Pool) Transcribe(ctx context.Context, pcm []byte, language string) (Transcript, error) {
	var dec decoder
	select {
	case <-ctx.Done():
		return Transcript{}, ctx.Err()
	case <-p.done:
		return Transcript{}, ErrPoolClosed
	case dec = <-p.free:
	}
	defer func() { p.free <- dec }()
	select {
	case <-p.done:
		return Transcript{}, ErrPoolClosed
	default:
	}

	// A decode cannot be interrupted once started.
	if err := ctx.Err(); err != nil {
		return Transcript{}, err
	}
	samples := audio.PCM16ToFloat32(pcm)
	lang := normaliseLanguage(language, "", "")
	params := p.provider.params(lang)
	start := time.Now()
	segments, err := p.provider.run(dec, &params, samples)
	if err != nil {
		return Transcript{}, err
	}
	return transcript(segments, len(samples), params.Language, time.Since(start)), nil
}

func (p *Pool) close() {
	select {
	case <-p.done:
		return
	default:
	}
	close(p.done)
	// Every decoder is collected from free, so one still in use is closed
	// only after its decode returns.
	for range p.all {
		dec := <-p.free
		dec.Close()
	}
}

// Job is one clip submitted to TranscribeAll.
type Job struct {
	Name     string
	PCM      []byte
	Language string
}

// TranscribeAll decodes jobs with at most workers in flight and returns the
// transcripts in job order. The first failure cancels the remaining jobs.
func TranscribeAll(ctx context.Context, provider Provider, workers int, jobs []Job) ([]Transcript, error) {
	if workers < 1 {
		workers = 1
	}
	out := make([]Transcript, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, job := range jobs {
		g.Go(func() error {
			t, err := provider.Transcribe(gctx, job.PCM, job.Language)
			if err != nil {
				return &JobError{Name: job.Name, Err: err}
			}
			out[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// JobError names the job that failed.
type JobError struct {
	Name string
	Err  error
}

func (e *JobError) Error() string {
	return "engine: transcribe " + e.Name + ": " + e.Err.Error()
}

func (e *JobError) Unwrap() error {
	return e.Err
}
