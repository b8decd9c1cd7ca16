package native

import "sync"

// Handle is the integer token exchanged with the native engine. Values >= 0
// refer to live native objects; InvalidHandle reports a failed allocation.
type Handle int32

// InvalidHandle is returned by allocation entry points when the engine could
// not create the requested object.
const InvalidHandle Handle = -1

const (
	indexBits  = 16
	indexMask  = 1<<indexBits - 1
	maxSlots   = indexMask // slot indexMask is never issued
	genMask    = 1<<15 - 1 // keeps encoded handles non-negative
	initialGen = 1
)

// Valid reports whether h can refer to a native object.
func (h Handle) Valid() bool { return h >= 0 }

func makeHandle(index, gen uint32) Handle {
	return Handle(int32(gen&genMask)<<indexBits | int32(index))
}

func (h Handle) split() (index, gen uint32) {
	return uint32(h) & indexMask, uint32(h) >> indexBits & genMask
}

// Table stores native-side objects behind generation-counted handles. A slot
// is reused after removal, but with a bumped generation, so a stale handle
// never resolves to the object that took its slot.
type Table[T any] struct {
	mu       sync.RWMutex
	entries  []tableEntry[T]
	freeList []uint32
}

type tableEntry[T any] struct {
	value T
	gen   uint32
	valid bool
}

// NewTable returns an empty table.
func NewTable[T any]() *Table[T] {
	return &Table[T]{
		entries:  make([]tableEntry[T], 0, 16),
		freeList: make([]uint32, 0, 4),
	}
}

// Insert stores value and returns its handle, or InvalidHandle when the table
// is full.
func (t *Table[T]) Insert(value T) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n := len(t.freeList); n > 0 {
		idx := t.freeList[n-1]
		t.freeList = t.freeList[:n-1]
		e := &t.entries[idx]
		e.value = value
		e.valid = true
		return makeHandle(idx, e.gen)
	}

	if len(t.entries) >= maxSlots {
		return InvalidHandle
	}
	t.entries = append(t.entries, tableEntry[T]{value: value, gen: initialGen, valid: true})
	return makeHandle(uint32(len(t.entries)-1), initialGen)
}

// Get resolves h. It fails for invalid, removed and stale handles.
func (t *Table[T]) Get(h Handle) (T, bool) {
	var zero T
	if !h.Valid() {
		return zero, false
	}
	idx, gen := h.split()

	t.mu.RLock()
	defer t.mu.RUnlock()

	if int(idx) >= len(t.entries) {
		return zero, false
	}
	e := t.entries[idx]
	if !e.valid || e.gen != gen {
		return zero, false
	}
	return e.value, true
}

// Remove drops h from the table and returns the stored value.
func (t *Table[T]) Remove(h Handle) (T, bool) {
	var zero T
	if !h.Valid() {
		return zero, false
	}
	idx, gen := h.split()

	t.mu.Lock()
	defer t.mu.Unlock()

	if int(idx) >= len(t.entries) {
		return zero, false
	}
	e := &t.entries[idx]
	if !e.valid || e.gen != gen {
		return zero, false
	}
	value := e.value
	e.value = zero
	e.valid = false
	e.gen = (e.gen + 1) & genMask
	if e.gen == 0 {
		e.gen = initialGen
	}
	t.freeList = append(t.freeList, idx)
	return value, true
}

// Len returns the number of live entries.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	count := 0
	for _, e := range t.entries {
		if e.valid {
			count++
		}
	}
	return count
}

// Each calls fn for every live entry until fn returns false.
func (t *Table[T]) Each(fn func(Handle, T) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for i, e := range t.entries {
		if e.valid {
			if !fn(makeHandle(uint32(i), e.gen), e.value) {
				return
			}
		}
	}
}
