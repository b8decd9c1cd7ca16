package whisper

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/nupi-ai/stt-whisper-native/internal/native"
)

// Segment is one timestamped unit of decoded text. Start and End are
// measured from the beginning of the decoded sample buffer.
type Segment struct {
	Index int
	Start time.Duration
	End   time.Duration
	Text  string
}

// Scope is the segment storage a decode call populates: a Context or a State.
// Results stay valid until the next decode on the same scope.
type Scope interface {
	Handle() native.Handle
	Alive() bool
	SegmentCount() (int, error)
	SegmentText(index int) (string, error)
	SegmentStart(index int) (int64, error)
	SegmentEnd(index int) (int64, error)
	Segment(index int) (Segment, error)
	Segments() ([]Segment, error)
}

// segmentReader binds the result getters of one handle kind.
type segmentReader struct {
	count func(native.Handle) int
	t0    func(native.Handle, int) int64
	t1    func(native.Handle, int) int64
	text  func(native.Handle, int) string
}

// scope implements result access and the one-decode-at-a-time rule shared by
// Context and State.
type scope struct {
	resource
	backend native.Backend
	reader  segmentReader

	busy  atomic.Bool
	mu    sync.RWMutex
	count int
}

// TimeUnit is the granularity of raw segment timestamps.
const TimeUnit = 10 * time.Millisecond

// decode runs call while holding the scope's busy flag. The cached count is
// cleared up front and only refilled when the engine reports success.
func (s *scope) decode(op string, call func() int) (int, error) {
	if !s.busy.CompareAndSwap(false, true) {
		return 0, newError(op, KindBusy).object(s.object, s.handle).detail("decode already in flight").build()
	}
	defer s.busy.Store(false)

	s.mu.Lock()
	s.count = 0
	s.mu.Unlock()

	status := call()
	if status < 0 {
		return status, newError(op, KindDecodeFailed).object(s.object, s.handle).code(status).build()
	}

	n := s.reader.count(s.handle)
	if n < 0 {
		n = 0
	}
	s.mu.Lock()
	s.count = n
	s.mu.Unlock()
	return status, nil
}

func (s *scope) readable(op string) error {
	if err := s.check(op); err != nil {
		return err
	}
	if s.busy.Load() {
		return newError(op, KindBusy).object(s.object, s.handle).detail("results are being overwritten").build()
	}
	return nil
}

func (s *scope) cachedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

func (s *scope) checkIndex(op string, index int) error {
	if err := s.readable(op); err != nil {
		return err
	}
	if n := s.cachedCount(); index < 0 || index >= n {
		return newError(op, KindIndexOutOfRange).object(s.object, s.handle).detail("index %d, segment count %d", index, n).build()
	}
	return nil
}

// SegmentCount returns the number of segments produced by the most recent
// successful decode on this scope, or zero if there was none.
func (s *scope) SegmentCount() (int, error) {
	if err := s.readable("segment_count"); err != nil {
		return 0, err
	}
	return s.cachedCount(), nil
}

func (s *scope) SegmentText(index int) (string, error) {
	if err := s.checkIndex("segment_text", index); err != nil {
		return "", err
	}
	return s.reader.text(s.handle, index), nil
}

// SegmentStart returns the start of segment index in TimeUnit ticks.
func (s *scope) SegmentStart(index int) (int64, error) {
	if err := s.checkIndex("segment_start", index); err != nil {
		return 0, err
	}
	return s.reader.t0(s.handle, index), nil
}

// SegmentEnd returns the end of segment index in TimeUnit ticks.
func (s *scope) SegmentEnd(index int) (int64, error) {
	if err := s.checkIndex("segment_end", index); err != nil {
		return 0, err
	}
	return s.reader.t1(s.handle, index), nil
}

func (s *scope) Segment(index int) (Segment, error) {
	if err := s.checkIndex("segment", index); err != nil {
		return Segment{}, err
	}
	return s.segment(index), nil
}

func (s *scope) segment(index int) Segment {
	return Segment{
		Index: index,
		Start: time.Duration(s.reader.t0(s.handle, index)) * TimeUnit,
		End:   time.Duration(s.reader.t1(s.handle, index)) * TimeUnit,
		Text:  s.reader.text(s.handle, index),
	}
}

// Segments returns every segment of the last decode.
func (s *scope) Segments() ([]Segment, error) {
	if err := s.readable("segments"); err != nil {
		return nil, err
	}
	n := s.cachedCount()
	out := make([]Segment, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, s.segment(i))
	}
	return out, nil
}
