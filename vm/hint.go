package vm

import (
	"fmt"
	"io"

	"github.com/tliron/commonlog"
)

var hintLog = commonlog.GetLogger("cairo-foundry.hints")

// ---------------------------------------------------------------------------
// VMProxy: the machine view a hint is allowed to touch
// ---------------------------------------------------------------------------

// VMProxy is the bounded view over the machine handed to a hint callback.
// It is valid only for the duration of one dispatch and must not be
// retained. Hints can read memory, write unwritten cells, read the ap/fp
// registers, and emit output through the sink. There is no pc surface:
// hints cannot redirect control flow.
type VMProxy struct {
	memory *Memory
	ctx    *RunContext
	output *Output
}

// Ap returns the current allocation pointer.
func (p *VMProxy) Ap() Relocatable {
	return p.ctx.Ap
}

// Fp returns the current frame pointer.
func (p *VMProxy) Fp() Relocatable {
	return p.ctx.Fp
}

// Get reads a memory cell.
func (p *VMProxy) Get(addr Relocatable) (MaybeRelocatable, error) {
	return p.memory.Get(addr)
}

// GetFelt reads a memory cell holding a felt.
func (p *VMProxy) GetFelt(addr Relocatable) (Felt, error) {
	return p.memory.GetFelt(addr)
}

// Set writes a memory cell, subject to the write-once rule.
func (p *VMProxy) Set(addr Relocatable, value MaybeRelocatable) error {
	return p.memory.Set(addr, value)
}

// AddSegment allocates a fresh memory segment for the hint's use.
func (p *VMProxy) AddSegment() Relocatable {
	return p.memory.AddSegment()
}

// Output returns the run's output sink. All text a hint emits goes here,
// never to process-level stdout, so runs stay capturable and testable.
func (p *VMProxy) Output() io.Writer {
	return p.output
}

// ---------------------------------------------------------------------------
// HintRegistry: hint source text -> native callback
// ---------------------------------------------------------------------------

// HintFunc is a native callback bound to one exact hint source string. It
// receives the per-dispatch machine proxy, the run's execution scopes, and
// the resolver for the instruction's identifiers.
type HintFunc func(proxy *VMProxy, scopes *ExecutionScopes, ids IdsManager) error

// HintRegistry maps exact hint source text to callbacks. It is built
// before a run and read-only during one, so a single registry may be
// shared across concurrent runs.
type HintRegistry struct {
	hints  map[string]HintFunc
	strict bool
}

// NewHintRegistry creates an empty registry with the default policy:
// unknown hint text is inert (dispatch is a logged no-op).
func NewHintRegistry() *HintRegistry {
	return &HintRegistry{hints: make(map[string]HintFunc)}
}

// NewStrictHintRegistry creates an empty registry that fails dispatch on
// unknown hint text instead of skipping it.
func NewStrictHintRegistry() *HintRegistry {
	return &HintRegistry{hints: make(map[string]HintFunc), strict: true}
}

// Register binds source text to a callback. The key is the exact hint
// source; a duplicate key fails rather than overwriting, so wiring
// mistakes surface at startup.
func (r *HintRegistry) Register(source string, fn HintFunc) error {
	if fn == nil {
		return fmt.Errorf("hint %q: nil callback", source)
	}
	if _, exists := r.hints[source]; exists {
		return fmt.Errorf("hint %q is already registered", source)
	}
	r.hints[source] = fn
	return nil
}

// Len returns the number of registered hints.
func (r *HintRegistry) Len() int {
	return len(r.hints)
}

// Dispatch looks up the hint's source text by exact match and invokes the
// callback. Unknown text is a deliberate no-op under the default policy
// and an ErrUnknownHint under the strict one. Callback failures propagate
// unchanged; hints are never retried.
func (r *HintRegistry) Dispatch(hint Hint, proxy *VMProxy, scopes *ExecutionScopes, ids IdsManager) error {
	fn, ok := r.hints[hint.Code]
	if !ok {
		if r.strict {
			return fmt.Errorf("%w: %q", ErrUnknownHint, hint.Code)
		}
		hintLog.Debugf("skipping unregistered hint %q", hint.Code)
		return nil
	}
	return fn(proxy, scopes, ids)
}

// ---------------------------------------------------------------------------
// Built-in hints
// ---------------------------------------------------------------------------

// GreaterThanHintCode is the hint source used by the foundry's assertion
// test programs.
const GreaterThanHintCode = "print(ids.a > ids.b)"

// DefaultHintRegistry creates a registry with the foundry's built-in hints
// bound.
func DefaultHintRegistry() *HintRegistry {
	r := NewHintRegistry()
	if err := RegisterBuiltins(r); err != nil {
		panic(fmt.Sprintf("vm: registering built-in hint: %v", err))
	}
	return r
}

// RegisterBuiltins binds the foundry's built-in hints into r. Useful for
// seeding a strict registry before adding project-specific hints.
func RegisterBuiltins(r *HintRegistry) error {
	return r.Register(GreaterThanHintCode, greaterThanHint)
}

// greaterThanHint resolves ids.a and ids.b and emits "true" or "false"
// depending on a > b.
func greaterThanHint(proxy *VMProxy, _ *ExecutionScopes, ids IdsManager) error {
	a, err := ids.GetFelt("a")
	if err != nil {
		return err
	}
	b, err := ids.GetFelt("b")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(proxy.Output(), "%t\n", a.Cmp(b) > 0)
	return err
}
