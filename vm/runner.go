package vm

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ---------------------------------------------------------------------------
// Runner: one program, one run
// ---------------------------------------------------------------------------

// RunnerState tracks the driver's lifecycle. There is no transition out of
// Halted or Failed; a runner executes exactly one program once.
type RunnerState int

const (
	StateLoaded RunnerState = iota
	StateRunning
	StateHalted
	StateFailed
)

func (s RunnerState) String() string {
	switch s {
	case StateLoaded:
		return "loaded"
	case StateRunning:
		return "running"
	case StateHalted:
		return "halted"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("RunnerState(%d)", int(s))
}

// defaultStepLimit bounds runaway programs. The core has no timeout;
// callers needing one cancel around Run.
const defaultStepLimit = 1 << 22

// OutputBuiltinName is the only builtin this runner provides.
const OutputBuiltinName = "output"

// Runner drives one program from load to halt: it owns the run's memory,
// registers, scopes, and output sink, and dispatches hints against a
// read-only registry it shares with other runs.
type Runner struct {
	program  *Program
	registry *HintRegistry
	machine  *VirtualMachine
	scopes   *ExecutionScopes
	output   *Output
	state    RunnerState

	programBase   Relocatable
	executionBase Relocatable
	outputBase    *Relocatable
	end           Relocatable

	stepLimit uint64
}

// NewRunner creates a runner for one execution of program. The registry is
// treated as read-only for the runner's lifetime.
func NewRunner(program *Program, registry *HintRegistry) *Runner {
	if registry == nil {
		registry = NewHintRegistry()
	}
	return &Runner{
		program:   program,
		registry:  registry,
		scopes:    NewExecutionScopes(),
		output:    NewOutput(),
		stepLimit: defaultStepLimit,
	}
}

// State returns the runner's lifecycle state.
func (r *Runner) State() RunnerState {
	return r.state
}

// Machine returns the underlying machine; nil before Run.
func (r *Runner) Machine() *VirtualMachine {
	return r.machine
}

// Steps returns the number of instructions executed.
func (r *Runner) Steps() uint64 {
	if r.machine == nil {
		return 0
	}
	return r.machine.Steps()
}

// Run executes the program from the named entrypoint to the halt marker.
// On success the captured output is returned; on failure no output is
// returned and the error carries pc context. Run may be called once.
func (r *Runner) Run(entrypoint string) (*Output, error) {
	if r.state != StateLoaded {
		return nil, fmt.Errorf("%w: state is %s", ErrRunnerReused, r.state)
	}
	r.state = StateRunning

	if err := r.initialize(entrypoint); err != nil {
		r.state = StateFailed
		return nil, err
	}
	if err := r.runUntilEnd(); err != nil {
		r.state = StateFailed
		return nil, err
	}
	if err := r.flushBuiltinOutput(); err != nil {
		r.state = StateFailed
		return nil, err
	}
	r.state = StateHalted
	return r.output, nil
}

// initialize builds the run's memory layout: program segment, execution
// segment, one segment per builtin, then the caller frame (return fp and
// the end marker, both fresh segments so they can never collide with real
// addresses).
func (r *Runner) initialize(entrypoint string) error {
	entry, err := r.program.EntrypointOffset(entrypoint)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProgram, err)
	}

	memory := NewMemory()
	r.programBase = memory.AddSegment()
	r.executionBase = memory.AddSegment()

	var stack []MaybeRelocatable
	for _, name := range r.program.Builtins {
		if name != OutputBuiltinName {
			return fmt.Errorf("%w: unsupported builtin %q", ErrInvalidProgram, name)
		}
		base := memory.AddSegment()
		r.outputBase = &base
		stack = append(stack, NewRelocatableCell(base))
	}

	returnFp := memory.AddSegment()
	r.end = memory.AddSegment()
	stack = append(stack, NewRelocatableCell(returnFp), NewRelocatableCell(r.end))

	if _, err := memory.LoadData(r.programBase, r.program.Data); err != nil {
		return fmt.Errorf("loading program data: %w", err)
	}
	top, err := memory.LoadData(r.executionBase, stack)
	if err != nil {
		return fmt.Errorf("loading initial stack: %w", err)
	}

	r.machine = NewVirtualMachine(memory)
	ctx := r.machine.Context()
	ctx.Ap = top
	ctx.Fp = top
	ctx.Pc = Relocatable{Segment: r.programBase.Segment, Offset: entry}
	return nil
}

// runUntilEnd steps the machine until pc reaches the end marker. Hints
// attached to the current instruction are dispatched before the
// instruction's own semantics run.
func (r *Runner) runUntilEnd() error {
	ctx := r.machine.Context()
	for ctx.Pc != r.end {
		if r.machine.Steps() >= r.stepLimit {
			return &VMError{Pc: ctx.Pc, Err: fmt.Errorf("step limit of %d exceeded", r.stepLimit)}
		}
		if err := r.dispatchHints(); err != nil {
			return err
		}
		if err := r.machine.Step(); err != nil {
			return err
		}
	}
	return nil
}

// dispatchHints runs every hint attached to the current pc, in program
// order. Each dispatch gets a fresh proxy and resolver view; the scopes
// stack persists across dispatches within the run.
func (r *Runner) dispatchHints() error {
	ctx := r.machine.Context()
	if ctx.Pc.Segment != r.programBase.Segment {
		return nil
	}
	hints, ok := r.program.Hints[ctx.Pc.Offset]
	if !ok {
		return nil
	}
	for i := range hints {
		proxy := &VMProxy{
			memory: r.machine.Memory(),
			ctx:    ctx,
			output: r.output,
		}
		ids := newIdsManager(r.program.References, hints[i].FlowTrackingData, ctx, r.machine.Memory())
		if err := r.registry.Dispatch(hints[i], proxy, r.scopes, ids); err != nil {
			return &VMError{Pc: ctx.Pc, Err: err}
		}
	}
	return nil
}

// flushBuiltinOutput appends the output builtin's cells to the sink as one
// decimal line each, in write order. Hint output emitted during the run
// precedes it.
func (r *Runner) flushBuiltinOutput() error {
	if r.outputBase == nil {
		return nil
	}
	memory := r.machine.Memory()
	size := memory.SegmentSize(r.outputBase.Segment)
	for off := uint64(0); off < size; off++ {
		cell, err := memory.Get(Relocatable{Segment: r.outputBase.Segment, Offset: off})
		if err != nil {
			return fmt.Errorf("reading output builtin: %w", err)
		}
		fmt.Fprintf(r.output, "%s\n", cell)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Path-level entry point
// ---------------------------------------------------------------------------

// ValidateProgramPath checks that path names an existing regular file with
// a .json extension before any load is attempted.
func ValidateProgramPath(path string) error {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %q is not a valid file", ErrInvalidProgram, path)
	}
	if filepath.Ext(path) != ".json" {
		return fmt.Errorf("%w: %q is not a json file", ErrInvalidProgram, path)
	}
	return nil
}

// RunProgramPath validates, loads, and runs a compiled program file. This
// is the sole execution entry point for callers holding a path. Errors
// embed the path.
func RunProgramPath(path, entrypoint string, registry *HintRegistry) (*Output, error) {
	if err := ValidateProgramPath(path); err != nil {
		return nil, err
	}
	program, err := LoadProgram(path)
	if err != nil {
		return nil, err
	}
	out, err := NewRunner(program, registry).Run(entrypoint)
	if err != nil {
		if errors.Is(err, ErrInvalidProgram) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to run %q: %w", path, err)
	}
	return out, nil
}
