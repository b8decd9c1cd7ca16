package whisper

// State is decode scratch space derived from a Context. Each concurrent
// worker holds its own State; a State takes one decode at a time.
type State struct {
	scope

	parent *Context
}

// Parent returns the Context the state was derived from.
func (s *State) Parent() *Context {
	return s.parent
}

// Close frees the state. It is idempotent and may run after the parent
// Context was closed.
func (s *State) Close() error {
	if s.release(s.backend.FreeState) {
		s.parent.forget(s)
	}
	return nil
}
