package whisper

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nupi-ai/stt-whisper-native/internal/native"
)

// Kind categorizes a failure.
type Kind string

const (
	KindReleased        Kind = "released"
	KindBusy            Kind = "busy"
	KindIndexOutOfRange Kind = "index_out_of_range"
	KindForeignState    Kind = "foreign_state"
	KindNoStateContext  Kind = "no_state_context"
	KindNotLoaded       Kind = "library_not_loaded"

	KindNotFound        Kind = "not_found"
	KindInvalidArgument Kind = "invalid_argument"

	KindAllocationFailed Kind = "allocation_failed"
	KindDecodeFailed     Kind = "decode_failed"
	KindEngineStatus     Kind = "engine_status"
	KindUnavailable      Kind = "unavailable"
)

// Class groups kinds by who has to act on them.
type Class int

const (
	// ClassProgrammer marks misuse of the API. Not retried.
	ClassProgrammer Class = iota
	// ClassInput marks bad caller-supplied paths or text.
	ClassInput
	// ClassEngine marks failures reported by the native engine.
	ClassEngine
)

func (c Class) String() string {
	switch c {
	case ClassProgrammer:
		return "programmer"
	case ClassInput:
		return "input"
	case ClassEngine:
		return "engine"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// Class returns the class k belongs to.
func (k Kind) Class() Class {
	switch k {
	case KindNotFound, KindInvalidArgument:
		return ClassInput
	case KindAllocationFailed, KindDecodeFailed, KindEngineStatus, KindUnavailable:
		return ClassEngine
	default:
		return ClassProgrammer
	}
}

// Object names the handle kind an error refers to.
type Object string

const (
	ObjectContext Object = "context"
	ObjectState   Object = "state"
	ObjectGrammar Object = "grammar"
	ObjectLibrary Object = "library"
)

// Error is the structured error returned by every operation in this package.
type Error struct {
	Op     string
	Kind   Kind
	Object Object
	Handle native.Handle
	// Code is the native status for decode and engine failures.
	Code   int
	Path   string
	Detail string
	Cause  error
}

func (e *Error) Error() string {
	var b strings.Builder

	b.WriteString("whisper: ")
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))

	if e.Object != "" {
		fmt.Fprintf(&b, " (%s %d)", e.Object, e.Handle)
	}
	if e.Path != "" {
		fmt.Fprintf(&b, " %q", e.Path)
	}
	if e.Kind == KindDecodeFailed || e.Kind == KindEngineStatus {
		fmt.Fprintf(&b, " status %d", e.Code)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same kind, so the Err* sentinels work with
// errors.Is.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// Class is shorthand for e.Kind.Class().
func (e *Error) Class() Class {
	return e.Kind.Class()
}

var (
	ErrReleased         = &Error{Kind: KindReleased}
	ErrBusy             = &Error{Kind: KindBusy}
	ErrIndexOutOfRange  = &Error{Kind: KindIndexOutOfRange}
	ErrForeignState     = &Error{Kind: KindForeignState}
	ErrNoStateContext   = &Error{Kind: KindNoStateContext}
	ErrLibraryNotLoaded = &Error{Kind: KindNotLoaded}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrInvalidArgument  = &Error{Kind: KindInvalidArgument}
	ErrAllocationFailed = &Error{Kind: KindAllocationFailed}
	ErrDecodeFailed     = &Error{Kind: KindDecodeFailed}
	ErrEngineStatus     = &Error{Kind: KindEngineStatus}
	ErrUnavailable      = &Error{Kind: KindUnavailable}
)

// ClassOf reports the class of the first *Error in err's chain.
func ClassOf(err error) (Class, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Class(), true
	}
	return 0, false
}

// IsProgrammerError reports whether err is API misuse.
func IsProgrammerError(err error) bool {
	class, ok := ClassOf(err)
	return ok && class == ClassProgrammer
}

type errorBuilder struct {
	err Error
}

func newError(op string, kind Kind) *errorBuilder {
	return &errorBuilder{err: Error{Op: op, Kind: kind, Handle: native.InvalidHandle}}
}

func (b *errorBuilder) object(obj Object, h native.Handle) *errorBuilder {
	b.err.Object = obj
	b.err.Handle = h
	return b
}

func (b *errorBuilder) code(code int) *errorBuilder {
	b.err.Code = code
	return b
}

func (b *errorBuilder) path(p string) *errorBuilder {
	b.err.Path = p
	return b
}

func (b *errorBuilder) cause(err error) *errorBuilder {
	b.err.Cause = err
	return b
}

func (b *errorBuilder) detail(msg string, args ...any) *errorBuilder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

func (b *errorBuilder) build() *Error {
	return &b.err
}
