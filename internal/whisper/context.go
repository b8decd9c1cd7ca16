package whisper

import (
	"fmt"
	"log/slog"
	"sync"
)

// Context is a loaded model. The weights are read-only after load, so one
// Context may serve many States decoding concurrently. Its own segment
// storage takes one decode at a time.
type Context struct {
	scope

	runtime *Runtime
	path    string
	noState bool
	log     *slog.Logger

	statesMu sync.Mutex
	states   map[*State]struct{}
}

// Path returns the model file the context was loaded from.
func (c *Context) Path() string {
	return c.path
}

// NoState reports whether the context was loaded without decode state.
func (c *Context) NoState() bool {
	return c.noState
}

// NewState allocates decode scratch space bound to c.
func (c *Context) NewState() (*State, error) {
	const op = "new_state"
	if err := c.check(op); err != nil {
		return nil, err
	}
	if c.noState {
		return nil, newError(op, KindNoStateContext).object(ObjectContext, c.handle).
			detail("context was loaded without state; decode through Full").build()
	}

	h := c.backend.InitState(c.handle)
	if !h.Valid() {
		return nil, newError(op, KindAllocationFailed).object(ObjectState, h).detail("engine could not allocate state").build()
	}

	st := &State{parent: c}
	st.scope.backend = c.backend
	st.scope.reader = segmentReader{
		count: c.backend.FullNSegmentsFromState,
		t0:    c.backend.FullGetSegmentT0FromState,
		t1:    c.backend.FullGetSegmentT1FromState,
		text:  c.backend.FullGetSegmentTextFromState,
	}
	st.init(h, ObjectState)

	c.statesMu.Lock()
	c.states[st] = struct{}{}
	c.statesMu.Unlock()
	return st, nil
}

// LiveStates returns the number of States derived from c and not yet closed.
func (c *Context) LiveStates() int {
	c.statesMu.Lock()
	defer c.statesMu.Unlock()
	return len(c.states)
}

func (c *Context) forget(st *State) {
	c.statesMu.Lock()
	delete(c.states, st)
	c.statesMu.Unlock()
}

// IsMultilingual reports whether the model supports languages other than
// English.
func (c *Context) IsMultilingual() (bool, error) {
	if err := c.check("is_multilingual"); err != nil {
		return false, err
	}
	return c.backend.IsMultilingual(c.handle), nil
}

// InitOpenVINO switches the encoder to OpenVINO on device (for example
// "CPU" or "GPU").
func (c *Context) InitOpenVINO(device string) error {
	const op = "init_openvino"
	if err := c.check(op); err != nil {
		return err
	}
	if device == "" {
		device = "CPU"
	}
	if code := c.backend.InitOpenVINOEncoder(c.handle, device); code != 0 {
		return newError(op, KindEngineStatus).object(ObjectContext, c.handle).code(code).detail("device %s", device).build()
	}
	return nil
}

// Full decodes samples[:numSamples] into the context's own segment storage.
// A negative engine status is returned alongside an ErrDecodeFailed error.
func (c *Context) Full(params *FullParams, samples []float32, numSamples int) (int, error) {
	const op = "full"
	if err := c.check(op); err != nil {
		return 0, err
	}
	np, err := params.resolve(op)
	if err != nil {
		return 0, err
	}
	if err := checkSamples(op, samples, numSamples); err != nil {
		return 0, err
	}
	return c.decode(op, func() int {
		return c.backend.Full(c.handle, np, samples, numSamples)
	})
}

// FullWithState decodes samples[:numSamples] into state's segment storage.
// state must have been derived from c.
func (c *Context) FullWithState(state *State, params *FullParams, samples []float32, numSamples int) (int, error) {
	const op = "full_with_state"
	if err := c.check(op); err != nil {
		return 0, err
	}
	if state == nil {
		return 0, newError(op, KindForeignState).detail("state is nil").build()
	}
	if err := state.check(op); err != nil {
		return 0, err
	}
	if state.parent != c {
		return 0, newError(op, KindForeignState).object(ObjectState, state.handle).
			detail("state belongs to context %d", state.parent.handle).build()
	}
	np, err := params.resolve(op)
	if err != nil {
		return 0, err
	}
	if err := checkSamples(op, samples, numSamples); err != nil {
		return 0, err
	}
	return state.decode(op, func() int {
		return c.backend.FullWithState(c.handle, state.handle, np, samples, numSamples)
	})
}

// Close frees the model. States derived from c must be closed first; closing
// with live States logs a warning (and panics in whisperdebug builds) before
// freeing anyway. Close is idempotent.
func (c *Context) Close() error {
	if !c.Alive() {
		return nil
	}
	if live := c.LiveStates(); live > 0 {
		if debugOwnership {
			panic(fmt.Sprintf("whisper: context %d closed with %d live states", c.handle, live))
		}
		c.log.Warn("context closed before its states", "live_states", live)
	}
	if c.release(c.backend.FreeContext) {
		c.log.Debug("context released")
	}
	return nil
}

func checkSamples(op string, samples []float32, numSamples int) error {
	if numSamples < 0 || numSamples > len(samples) {
		return newError(op, KindInvalidArgument).detail("numSamples %d outside [0, %d]", numSamples, len(samples)).build()
	}
	return nil
}
