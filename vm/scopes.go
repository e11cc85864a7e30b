package vm

import (
	"fmt"
)

// ---------------------------------------------------------------------------
// ExecutionScopes: hint-local variable bindings
// ---------------------------------------------------------------------------

// ExecutionScopes is a stack of name->value frames available to hints.
// Bindings live outside VM memory: they can carry arbitrary Go values
// between hint invocations within a run, but never escape it. One root
// frame always exists.
type ExecutionScopes struct {
	frames []map[string]any
}

// NewExecutionScopes creates a scope stack with the root frame.
func NewExecutionScopes() *ExecutionScopes {
	return &ExecutionScopes{frames: []map[string]any{{}}}
}

// Depth returns the number of frames on the stack.
func (s *ExecutionScopes) Depth() int {
	return len(s.frames)
}

// EnterScope pushes a new innermost frame.
func (s *ExecutionScopes) EnterScope() {
	s.frames = append(s.frames, map[string]any{})
}

// ExitScope pops the innermost frame. The root frame cannot be popped.
func (s *ExecutionScopes) ExitScope() error {
	if len(s.frames) <= 1 {
		return fmt.Errorf("cannot exit the root execution scope")
	}
	s.frames = s.frames[:len(s.frames)-1]
	return nil
}

// Set binds name in the innermost frame, shadowing any outer binding.
func (s *ExecutionScopes) Set(name string, value any) {
	s.frames[len(s.frames)-1][name] = value
}

// Get looks name up in the innermost frame only.
func (s *ExecutionScopes) Get(name string) (any, bool) {
	v, ok := s.frames[len(s.frames)-1][name]
	return v, ok
}

// Delete removes name from the innermost frame.
func (s *ExecutionScopes) Delete(name string) {
	delete(s.frames[len(s.frames)-1], name)
}
