package vm

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// VirtualMachine: fetch-decode-execute
// ---------------------------------------------------------------------------

// VirtualMachine is the instruction-stepping engine: the register file plus
// the memory it reads and writes. Execution is strictly sequential; one
// step fully completes before the next begins.
type VirtualMachine struct {
	memory *Memory
	ctx    RunContext
	steps  uint64
}

// NewVirtualMachine creates a machine over the given memory.
func NewVirtualMachine(memory *Memory) *VirtualMachine {
	return &VirtualMachine{memory: memory}
}

// Memory returns the machine's memory.
func (m *VirtualMachine) Memory() *Memory {
	return m.memory
}

// Context returns the live register file.
func (m *VirtualMachine) Context() *RunContext {
	return &m.ctx
}

// Steps returns the number of instructions executed so far.
func (m *VirtualMachine) Steps() uint64 {
	return m.steps
}

// operands is the resolved operand set for one instruction. Missing values
// are deduced where the opcode's constraints pin them down, then written
// back into memory.
type operands struct {
	dst *MaybeRelocatable
	op0 *MaybeRelocatable
	op1 *MaybeRelocatable
	res *MaybeRelocatable

	dstAddr Relocatable
	op0Addr Relocatable
	op1Addr Relocatable
}

// Step fetches, decodes, and executes the instruction at pc.
func (m *VirtualMachine) Step() error {
	word, err := m.memory.GetFelt(m.ctx.Pc)
	if err != nil {
		return &VMError{Pc: m.ctx.Pc, Err: err}
	}
	inst, err := DecodeInstruction(word)
	if err != nil {
		return &VMError{Pc: m.ctx.Pc, Err: err}
	}
	if err := m.runInstruction(inst); err != nil {
		return &VMError{Pc: m.ctx.Pc, Err: err}
	}
	m.steps++
	return nil
}

func (m *VirtualMachine) runInstruction(inst *Instruction) error {
	ops, err := m.computeOperands(inst)
	if err != nil {
		return err
	}
	if err := m.assertConstraints(inst, ops); err != nil {
		return err
	}
	return m.updateRegisters(inst, ops)
}

// tryGet reads a cell, distinguishing "not written yet" (nil, deducible)
// from hard failures.
func (m *VirtualMachine) tryGet(addr Relocatable) (*MaybeRelocatable, error) {
	v, err := m.memory.Get(addr)
	if err == nil {
		return &v, nil
	}
	if errors.Is(err, ErrUninitializedMemory) {
		return nil, nil
	}
	return nil, err
}

func (m *VirtualMachine) computeOperands(inst *Instruction) (*operands, error) {
	var ops operands
	var err error

	if ops.dstAddr, err = m.ctx.DstAddr(inst); err != nil {
		return nil, err
	}
	if ops.dst, err = m.tryGet(ops.dstAddr); err != nil {
		return nil, err
	}

	if ops.op0Addr, err = m.ctx.Op0Addr(inst); err != nil {
		return nil, err
	}
	if ops.op0, err = m.tryGet(ops.op0Addr); err != nil {
		return nil, err
	}

	// op0 is the base of op1's address when op1 is op0-relative, so it must
	// be deduced before op1 can even be located.
	if inst.Op1Src == Op1SrcOp0 && ops.op0 == nil {
		if err := m.deduceOp0(inst, &ops); err != nil {
			return nil, err
		}
		if ops.op0 == nil {
			return nil, fmt.Errorf("%w: op0 at %s", ErrUninitializedMemory, ops.op0Addr)
		}
	}

	if ops.op1Addr, err = m.ctx.Op1Addr(inst, ops.op0); err != nil {
		return nil, err
	}
	if ops.op1, err = m.tryGet(ops.op1Addr); err != nil {
		return nil, err
	}

	if ops.op1 == nil {
		if err := deduceOp1(inst, &ops); err != nil {
			return nil, err
		}
	}
	if ops.op0 == nil {
		if err := m.deduceOp0(inst, &ops); err != nil {
			return nil, err
		}
	}
	if ops.op0 == nil {
		return nil, fmt.Errorf("%w: op0 at %s", ErrUninitializedMemory, ops.op0Addr)
	}
	if ops.op1 == nil {
		return nil, fmt.Errorf("%w: op1 at %s", ErrUninitializedMemory, ops.op1Addr)
	}

	if err := computeRes(inst, &ops); err != nil {
		return nil, err
	}

	if ops.dst == nil {
		deduceDst(inst, &ops, m.ctx.Fp)
		if ops.dst == nil {
			return nil, fmt.Errorf("%w: dst at %s", ErrUninitializedMemory, ops.dstAddr)
		}
	}

	// Persist deduced operands so every accessed cell ends up written.
	writes := []struct {
		addr  Relocatable
		value *MaybeRelocatable
	}{
		{ops.dstAddr, ops.dst},
		{ops.op0Addr, ops.op0},
		{ops.op1Addr, ops.op1},
	}
	for _, w := range writes {
		if err := m.memory.Set(w.addr, *w.value); err != nil {
			return nil, err
		}
	}
	return &ops, nil
}

// deduceOp0 pins op0 down from the opcode's constraints: a call stores the
// return pc there, and an assert-eq with add/mul res can invert the
// operation when dst and op1 are known.
func (m *VirtualMachine) deduceOp0(inst *Instruction, ops *operands) error {
	switch inst.Opcode {
	case OpcodeCall:
		ret, err := m.ctx.Pc.Add(int64(inst.Size()))
		if err != nil {
			return err
		}
		v := NewRelocatableCell(ret)
		ops.op0 = &v
	case OpcodeAssertEq:
		if ops.dst == nil || ops.op1 == nil {
			return nil
		}
		switch inst.Res {
		case ResAdd:
			v, err := ops.dst.Sub(*ops.op1)
			if err != nil {
				return err
			}
			ops.op0 = &v
		case ResMul:
			dst, dok := ops.dst.Felt()
			op1, ook := ops.op1.Felt()
			if dok && ook && !op1.IsZero() {
				q, err := dst.Div(op1)
				if err != nil {
					return err
				}
				v := NewFeltCell(q)
				ops.op0 = &v
			}
		}
	}
	return nil
}

// deduceOp1 mirrors deduceOp0 for the op1 operand.
func deduceOp1(inst *Instruction, ops *operands) error {
	if inst.Opcode != OpcodeAssertEq || ops.dst == nil {
		return nil
	}
	switch inst.Res {
	case ResOp1:
		v := *ops.dst
		ops.op1 = &v
	case ResAdd:
		if ops.op0 == nil {
			return nil
		}
		v, err := ops.dst.Sub(*ops.op0)
		if err != nil {
			return err
		}
		ops.op1 = &v
	case ResMul:
		if ops.op0 == nil {
			return nil
		}
		dst, dok := ops.dst.Felt()
		op0, ook := ops.op0.Felt()
		if dok && ook && !op0.IsZero() {
			q, err := dst.Div(op0)
			if err != nil {
				return err
			}
			v := NewFeltCell(q)
			ops.op1 = &v
		}
	}
	return nil
}

func computeRes(inst *Instruction, ops *operands) error {
	switch inst.Res {
	case ResOp1:
		ops.res = ops.op1
	case ResAdd:
		v, err := ops.op0.Add(*ops.op1)
		if err != nil {
			return err
		}
		ops.res = &v
	case ResMul:
		v, err := ops.op0.Mul(*ops.op1)
		if err != nil {
			return err
		}
		ops.res = &v
	case ResUnconstrained:
		ops.res = nil
	}
	return nil
}

func deduceDst(inst *Instruction, ops *operands, fp Relocatable) {
	switch inst.Opcode {
	case OpcodeAssertEq:
		ops.dst = ops.res
	case OpcodeCall:
		v := NewRelocatableCell(fp)
		ops.dst = &v
	}
}

func (m *VirtualMachine) assertConstraints(inst *Instruction, ops *operands) error {
	switch inst.Opcode {
	case OpcodeAssertEq:
		if ops.res == nil {
			return fmt.Errorf("assert-eq without a res value")
		}
		if !ops.dst.Equal(*ops.res) {
			return fmt.Errorf("assertion failed: %s != %s", ops.dst, ops.res)
		}
	case OpcodeCall:
		ret, err := m.ctx.Pc.Add(int64(inst.Size()))
		if err != nil {
			return err
		}
		if !ops.op0.Equal(NewRelocatableCell(ret)) {
			return fmt.Errorf("call return pc mismatch: %s != %s", ops.op0, ret)
		}
		if !ops.dst.Equal(NewRelocatableCell(m.ctx.Fp)) {
			return fmt.Errorf("call saved fp mismatch: %s != %s", ops.dst, m.ctx.Fp)
		}
	}
	return nil
}

func (m *VirtualMachine) updateRegisters(inst *Instruction, ops *operands) error {
	switch inst.FpUpdate {
	case FpApPlus2:
		fp, err := m.ctx.Ap.Add(2)
		if err != nil {
			return err
		}
		m.ctx.Fp = fp
	case FpDst:
		r, ok := ops.dst.Relocatable()
		if !ok {
			return fmt.Errorf("%w: ret target fp is not an address", ErrTypeMismatch)
		}
		m.ctx.Fp = r
	}

	switch inst.ApUpdate {
	case ApAdd:
		if ops.res == nil {
			return fmt.Errorf("ap += res without a res value")
		}
		f, ok := ops.res.Felt()
		if !ok {
			return fmt.Errorf("%w: ap displacement is not a felt", ErrTypeMismatch)
		}
		ap, err := m.ctx.Ap.AddFelt(f)
		if err != nil {
			return err
		}
		m.ctx.Ap = ap
	case ApAdd1:
		ap, err := m.ctx.Ap.Add(1)
		if err != nil {
			return err
		}
		m.ctx.Ap = ap
	case ApAdd2:
		ap, err := m.ctx.Ap.Add(2)
		if err != nil {
			return err
		}
		m.ctx.Ap = ap
	}

	switch inst.PcUpdate {
	case PcRegular:
		pc, err := m.ctx.Pc.Add(int64(inst.Size()))
		if err != nil {
			return err
		}
		m.ctx.Pc = pc
	case PcJump:
		if ops.res == nil {
			return fmt.Errorf("jump without a res value")
		}
		r, ok := ops.res.Relocatable()
		if !ok {
			return fmt.Errorf("%w: jump target is not an address", ErrTypeMismatch)
		}
		m.ctx.Pc = r
	case PcJumpRel:
		if ops.res == nil {
			return fmt.Errorf("relative jump without a res value")
		}
		f, ok := ops.res.Felt()
		if !ok {
			return fmt.Errorf("%w: relative jump offset is not a felt", ErrTypeMismatch)
		}
		pc, err := m.ctx.Pc.AddFelt(f)
		if err != nil {
			return err
		}
		m.ctx.Pc = pc
	case PcJnz:
		dst, ok := ops.dst.Felt()
		if !ok {
			return fmt.Errorf("%w: jnz condition is not a felt", ErrTypeMismatch)
		}
		if dst.IsZero() {
			pc, err := m.ctx.Pc.Add(int64(inst.Size()))
			if err != nil {
				return err
			}
			m.ctx.Pc = pc
			return nil
		}
		f, ok := ops.op1.Felt()
		if !ok {
			return fmt.Errorf("%w: jnz offset is not a felt", ErrTypeMismatch)
		}
		pc, err := m.ctx.Pc.AddFelt(f)
		if err != nil {
			return err
		}
		m.ctx.Pc = pc
	}
	return nil
}
