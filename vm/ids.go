package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// IdsManager: resolving hint identifiers to memory cells
// ---------------------------------------------------------------------------

// IdsManager resolves the local identifiers a hint mentions (ids.a, ids.b)
// into concrete memory addresses. An identifier's address is not static:
// ap moves as the program runs, so resolution recomputes it per dispatch
// from the reference table, the instruction's ap-tracking state, and the
// live registers.
type IdsManager struct {
	references []Reference
	ids        map[string]int
	apTracking ApTracking
	ctx        *RunContext
	memory     *Memory
}

// newIdsManager builds the resolver view for one hint dispatch.
func newIdsManager(refs []Reference, flow FlowTrackingData, ctx *RunContext, memory *Memory) IdsManager {
	return IdsManager{
		references: refs,
		ids:        flow.ReferenceIDs,
		apTracking: flow.ApTracking,
		ctx:        ctx,
		memory:     memory,
	}
}

// reference finds the variable reference for a bare identifier name. Keys
// in the tracking metadata are fully qualified (scope.function.name), so a
// bare name matches by suffix.
func (im *IdsManager) reference(name string) (Reference, error) {
	idx, ok := im.ids[name]
	if !ok {
		for key, i := range im.ids {
			if strings.HasSuffix(key, "."+name) {
				idx, ok = i, true
				break
			}
		}
	}
	if !ok {
		return Reference{}, fmt.Errorf("%w: %q is not declared in this instruction's metadata", ErrUnknownIdentifier, name)
	}
	if idx < 0 || idx >= len(im.references) {
		return Reference{}, fmt.Errorf("%w: %q points at reference %d of %d", ErrUnknownIdentifier, name, idx, len(im.references))
	}
	return im.references[idx], nil
}

// Addr computes the memory address a name refers to. Frame-relative
// references are fp + offset. Ap-relative references first rewind ap by
// the tracking delta accumulated since the reference was created, which is
// only meaningful within one tracking group.
func (im *IdsManager) Addr(name string) (Relocatable, error) {
	ref, err := im.reference(name)
	if err != nil {
		return Relocatable{}, err
	}

	base := im.ctx.Fp
	if ref.Register == RegisterAp {
		if ref.ApTracking.Group != im.apTracking.Group {
			return Relocatable{}, fmt.Errorf("%w: %q crosses ap tracking groups (%d vs %d)",
				ErrUnknownIdentifier, name, ref.ApTracking.Group, im.apTracking.Group)
		}
		base, err = im.ctx.Ap.Add(int64(ref.ApTracking.Offset - im.apTracking.Offset))
		if err != nil {
			return Relocatable{}, err
		}
	}
	return base.Add(ref.Offset)
}

// Get resolves a name to the cell value it references. Address references
// (no dereference) yield the address itself as a relocatable.
func (im *IdsManager) Get(name string) (MaybeRelocatable, error) {
	ref, err := im.reference(name)
	if err != nil {
		return MaybeRelocatable{}, err
	}
	addr, err := im.Addr(name)
	if err != nil {
		return MaybeRelocatable{}, err
	}
	if !ref.Dereference {
		return NewRelocatableCell(addr), nil
	}
	return im.memory.Get(addr)
}

// GetFelt resolves a name and requires its value to be a felt. Comparisons
// and arithmetic in hints need numeric operands; a relocatable here is a
// type error.
func (im *IdsManager) GetFelt(name string) (Felt, error) {
	v, err := im.Get(name)
	if err != nil {
		return Felt{}, err
	}
	f, ok := v.Felt()
	if !ok {
		return Felt{}, fmt.Errorf("%w: %q holds a relocatable, felt required", ErrTypeMismatch, name)
	}
	return f, nil
}

// GetRelocatable resolves a name and requires its value to be an address.
func (im *IdsManager) GetRelocatable(name string) (Relocatable, error) {
	v, err := im.Get(name)
	if err != nil {
		return Relocatable{}, err
	}
	r, ok := v.Relocatable()
	if !ok {
		return Relocatable{}, fmt.Errorf("%w: %q holds a felt, relocatable required", ErrTypeMismatch, name)
	}
	return r, nil
}

// Insert writes a value into the cell a name references, subject to the
// memory's write-once rule. Address references cannot be written through.
func (im *IdsManager) Insert(name string, value MaybeRelocatable) error {
	ref, err := im.reference(name)
	if err != nil {
		return err
	}
	if !ref.Dereference {
		return fmt.Errorf("%w: %q is an address reference, not a writable cell", ErrTypeMismatch, name)
	}
	addr, err := im.Addr(name)
	if err != nil {
		return err
	}
	return im.memory.Set(addr, value)
}
