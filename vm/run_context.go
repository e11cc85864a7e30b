package vm

import (
	"fmt"
)

// ---------------------------------------------------------------------------
// RunContext: the machine's register file
// ---------------------------------------------------------------------------

// RunContext holds the three registers driving execution: the allocation
// pointer, the frame pointer, and the program counter. It is owned by the
// interpreter loop; hints only ever see it through a VMProxy for the
// duration of one dispatch.
type RunContext struct {
	Ap Relocatable
	Fp Relocatable
	Pc Relocatable
}

// DstAddr computes the destination operand address for an instruction.
func (rc *RunContext) DstAddr(inst *Instruction) (Relocatable, error) {
	base := rc.Ap
	if inst.DstReg == RegisterFp {
		base = rc.Fp
	}
	return base.Add(inst.OffDst)
}

// Op0Addr computes the op0 operand address for an instruction.
func (rc *RunContext) Op0Addr(inst *Instruction) (Relocatable, error) {
	base := rc.Ap
	if inst.Op0Reg == RegisterFp {
		base = rc.Fp
	}
	return base.Add(inst.OffOp0)
}

// Op1Addr computes the op1 operand address. For Op1SrcOp0 the already-read
// op0 value is the base and must be a relocatable.
func (rc *RunContext) Op1Addr(inst *Instruction, op0 *MaybeRelocatable) (Relocatable, error) {
	var base Relocatable
	switch inst.Op1Src {
	case Op1SrcImm:
		if inst.OffOp1 != 1 {
			return Relocatable{}, fmt.Errorf("%w: immediate op1 requires offset 1", ErrInvalidInstruction)
		}
		base = rc.Pc
	case Op1SrcFp:
		base = rc.Fp
	case Op1SrcAp:
		base = rc.Ap
	case Op1SrcOp0:
		if op0 == nil {
			return Relocatable{}, fmt.Errorf("op1 base needs op0, which is unknown")
		}
		r, ok := op0.Relocatable()
		if !ok {
			return Relocatable{}, fmt.Errorf("%w: op1 base op0 is not an address", ErrTypeMismatch)
		}
		base = r
	}
	return base.Add(inst.OffOp1)
}
