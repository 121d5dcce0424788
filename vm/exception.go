package vm

import (
	"errors"
	"fmt"
	"strings"
	"syscall"
)

// ---------------------------------------------------------------------------
// Error taxonomy
// ---------------------------------------------------------------------------

// ErrorKind classifies script faults.
type ErrorKind uint8

const (
	RuntimeFault ErrorKind = iota
	TypeError
	NotCallable
	IndexError
	KeyError
	ArgumentError
	OutOfMemory
	IOError
	SystemError
	CompileError
)

var errorKindNames = [...]string{
	RuntimeFault:  "RuntimeFault",
	TypeError:     "TypeError",
	NotCallable:   "NotCallable",
	IndexError:    "IndexError",
	KeyError:      "KeyError",
	ArgumentError: "ArgumentError",
	OutOfMemory:   "OutOfMemory",
	IOError:       "IOError",
	SystemError:   "SystemError",
	CompileError:  "CompileError",
}

func (k ErrorKind) String() string {
	if int(k) < len(errorKindNames) {
		return errorKindNames[k]
	}
	return fmt.Sprintf("ErrorKind(%d)", uint8(k))
}

// Sentinels for errors.Is. A *ScriptError matches the sentinel of its kind.
var (
	ErrRuntimeFault  = &ScriptError{Kind: RuntimeFault, Message: "runtime fault"}
	ErrTypeError     = &ScriptError{Kind: TypeError, Message: "type error"}
	ErrNotCallable   = &ScriptError{Kind: NotCallable, Message: "not callable"}
	ErrIndexError    = &ScriptError{Kind: IndexError, Message: "index error"}
	ErrKeyError      = &ScriptError{Kind: KeyError, Message: "key error"}
	ErrArgumentError = &ScriptError{Kind: ArgumentError, Message: "argument error"}
	ErrOutOfMemory   = &ScriptError{Kind: OutOfMemory, Message: "out of memory"}
	ErrIOError       = &ScriptError{Kind: IOError, Message: "I/O error"}
	ErrSystemError   = &ScriptError{Kind: SystemError, Message: "system error"}
	ErrCompileError  = &ScriptError{Kind: CompileError, Message: "compile error"}
)

// ErrTerminated is returned by Resume when the generator has finished.
var ErrTerminated = errors.New("generator terminated")

// ErrDestroyed is returned by any call on a destroyed VM.
var ErrDestroyed = errors.New("vm destroyed")

// ---------------------------------------------------------------------------
// ScriptError
// ---------------------------------------------------------------------------

// TraceEntry is one frame of a script call stack.
type TraceEntry struct {
	Function string
	Source   string
	Line     int
}

func (t TraceEntry) String() string {
	if t.Line > 0 {
		return fmt.Sprintf("%s [%s:%d]", t.Function, t.Source, t.Line)
	}
	return fmt.Sprintf("%s [%s]", t.Function, t.Source)
}

// ArgMismatch describes a native argument that failed its signature.
type ArgMismatch struct {
	Index    int // 0 is this, 1 the first argument
	Expected string
	Actual   Kind
}

// ScriptError is a fault raised while compiling or running a script.
type ScriptError struct {
	Kind    ErrorKind
	Message string
	Value   Value        // thrown value; a string holding Message for VM faults
	Code    int          // host error code for IOError and SystemError
	Arg     *ArgMismatch // set for ArgumentError from signature checks
	Trace   []TraceEntry // innermost first
	Cause   error        // underlying Go error, if any

	thrown bool // raised by a throw statement
	abort  bool // not catchable by try
}

func (e *ScriptError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s: %s (code %d)", e.Kind, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches sentinels of the same kind.
func (e *ScriptError) Is(target error) bool {
	t, ok := target.(*ScriptError)
	return ok && t.Kind == e.Kind && isSentinel(t)
}

func (e *ScriptError) Unwrap() error { return e.Cause }

func isSentinel(e *ScriptError) bool {
	switch e {
	case ErrRuntimeFault, ErrTypeError, ErrNotCallable, ErrIndexError, ErrKeyError,
		ErrArgumentError, ErrOutOfMemory, ErrIOError, ErrSystemError, ErrCompileError:
		return true
	}
	return false
}

// FormatTrace renders the call stack one frame per line.
func (e *ScriptError) FormatTrace() string {
	var sb strings.Builder
	for _, t := range e.Trace {
		sb.WriteString("  at ")
		sb.WriteString(t.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Aborted reports whether the error came from Abort or a cancelled context.
func (e *ScriptError) Aborted() bool { return e.abort }

func newError(kind ErrorKind, format string, args ...interface{}) *ScriptError {
	msg := fmt.Sprintf(format, args...)
	return &ScriptError{Kind: kind, Message: msg, Value: String(msg)}
}

// NewError creates a ScriptError for natives to return.
func NewError(kind ErrorKind, format string, args ...interface{}) error {
	return newError(kind, format, args...)
}

// Throw returns an error that raises v as a script exception, as if by
// the throw statement.
func Throw(v Value) error {
	return &ScriptError{Kind: RuntimeFault, Message: v.String(), Value: v, thrown: true}
}

// hostError wraps an operating system error, keeping errno when present.
func hostError(kind ErrorKind, err error, format string, args ...interface{}) *ScriptError {
	se := newError(kind, "%s: %v", fmt.Sprintf(format, args...), err)
	se.Cause = err
	se.Code = -1
	var errno syscall.Errno
	if errors.As(err, &errno) {
		se.Code = int(errno)
	}
	return se
}

// asScriptError converts any error returned into the VM into a ScriptError.
func asScriptError(err error) *ScriptError {
	var se *ScriptError
	if errors.As(err, &se) {
		return se
	}
	out := newError(RuntimeFault, "%v", err)
	out.Cause = err
	return out
}
