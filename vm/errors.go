package vm

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Error kinds surfaced by the execution core
// ---------------------------------------------------------------------------

var (
	// ErrInvalidProgram indicates the program file could not be used: bad
	// path or extension, unreadable file, or a deserialization failure.
	ErrInvalidProgram = errors.New("invalid program")

	// ErrUnknownIdentifier indicates a hint referenced a name with no
	// variable reference in the current instruction's tracking metadata.
	ErrUnknownIdentifier = errors.New("unknown identifier")

	// ErrUninitializedMemory indicates a read of an address that was never
	// written.
	ErrUninitializedMemory = errors.New("uninitialized memory")

	// ErrMemoryWriteOnce indicates an attempt to overwrite a written cell
	// with a different value.
	ErrMemoryWriteOnce = errors.New("memory is write-once")

	// ErrUnknownSegment indicates an address pointing outside the allocated
	// segments.
	ErrUnknownSegment = errors.New("unknown memory segment")

	// ErrTypeMismatch indicates a cell held a relocatable where a felt was
	// required, or the reverse.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrInvalidInstruction indicates an instruction word that does not
	// decode: out-of-range value or an illegal flag combination.
	ErrInvalidInstruction = errors.New("invalid instruction")

	// ErrUnknownHint indicates hint text with no registered callback, in
	// strict dispatch mode only. The default policy treats unknown hints
	// as inert.
	ErrUnknownHint = errors.New("unknown hint")

	// ErrOutputEncoding indicates captured output that is not valid UTF-8
	// when text rendering was requested.
	ErrOutputEncoding = errors.New("output is not valid text")

	// ErrRunnerReused indicates a second Run call on a runner that already
	// completed or failed. A runner executes exactly one program once.
	ErrRunnerReused = errors.New("runner already ran")
)

// VMError wraps a failure raised while stepping, attaching the program
// counter at the faulting instruction.
type VMError struct {
	Pc  Relocatable
	Err error
}

func (e *VMError) Error() string {
	return fmt.Sprintf("execution failed at pc=%s: %v", e.Pc, e.Err)
}

func (e *VMError) Unwrap() error {
	return e.Err
}
