package whisper

import (
	"sync/atomic"

	"github.com/nupi-ai/stt-whisper-native/internal/native"
)

// resource couples a native handle with its alive flag. The handle is set
// once and never passed to the backend after the flag drops.
type resource struct {
	handle native.Handle
	object Object
	alive  atomic.Bool
}

func (r *resource) init(h native.Handle, obj Object) {
	r.handle = h
	r.object = obj
	r.alive.Store(true)
}

// Handle returns the native handle. It stays readable after release but
// no longer refers to a live object.
func (r *resource) Handle() native.Handle {
	return r.handle
}

// Alive reports whether the object has not been released.
func (r *resource) Alive() bool {
	return r.alive.Load()
}

func (r *resource) check(op string) error {
	if r.alive.Load() {
		return nil
	}
	return newError(op, KindReleased).object(r.object, r.handle).build()
}

// release flips the alive flag and runs free on the first call only.
func (r *resource) release(free func(native.Handle)) bool {
	if !r.alive.CompareAndSwap(true, false) {
		return false
	}
	free(r.handle)
	return true
}
