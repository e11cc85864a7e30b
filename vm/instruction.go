package vm

import (
	"fmt"
)

// ---------------------------------------------------------------------------
// Instruction: 63-bit encoded instruction words
// ---------------------------------------------------------------------------

// An instruction word packs three biased 16-bit offsets and 15 flag bits:
//
//	bits  0..15  off_dst (biased by 2^15)
//	bits 16..31  off_op0
//	bits 32..47  off_op1
//	bits 48..62  flags
//	bit  63      must be zero
const (
	offsetBias = 1 << 15
	offsetMask = (1 << 16) - 1

	flagDstRegFp   = 1 << 0
	flagOp0RegFp   = 1 << 1
	flagOp1Imm     = 1 << 2
	flagOp1Fp      = 1 << 3
	flagOp1Ap      = 1 << 4
	flagResAdd     = 1 << 5
	flagResMul     = 1 << 6
	flagPcJumpAbs  = 1 << 7
	flagPcJumpRel  = 1 << 8
	flagPcJnz      = 1 << 9
	flagApAdd      = 1 << 10
	flagApAdd1     = 1 << 11
	flagOpcodeCall = 1 << 12
	flagOpcodeRet  = 1 << 13
	flagAssertEq   = 1 << 14
)

// Register selects the base register for an operand address.
type Register int

const (
	RegisterAp Register = iota
	RegisterFp
)

func (r Register) String() string {
	if r == RegisterFp {
		return "fp"
	}
	return "ap"
}

// Op1Src selects the base for the op1 operand address.
type Op1Src int

const (
	Op1SrcOp0 Op1Src = iota // [op0 + off2]
	Op1SrcImm               // [pc + 1], immediate
	Op1SrcFp
	Op1SrcAp
)

// ResLogic selects how the res value is computed from op0 and op1.
type ResLogic int

const (
	ResOp1 ResLogic = iota
	ResAdd
	ResMul
	ResUnconstrained // jnz: res plays no role
)

// PcUpdate selects the next pc.
type PcUpdate int

const (
	PcRegular PcUpdate = iota
	PcJump
	PcJumpRel
	PcJnz
)

// ApUpdate selects the next ap.
type ApUpdate int

const (
	ApRegular ApUpdate = iota
	ApAdd    // ap += res
	ApAdd1
	ApAdd2 // call only
)

// FpUpdate selects the next fp.
type FpUpdate int

const (
	FpRegular FpUpdate = iota
	FpApPlus2 // call
	FpDst     // ret
)

// Opcode is the instruction's assertion semantics.
type Opcode int

const (
	OpcodeNOp Opcode = iota
	OpcodeCall
	OpcodeRet
	OpcodeAssertEq
)

// Instruction is one decoded instruction.
type Instruction struct {
	OffDst int64
	OffOp0 int64
	OffOp1 int64

	DstReg   Register
	Op0Reg   Register
	Op1Src   Op1Src
	Res      ResLogic
	PcUpdate PcUpdate
	ApUpdate ApUpdate
	FpUpdate FpUpdate
	Opcode   Opcode
}

// Size returns the number of memory words the instruction occupies: two
// when it carries an immediate, one otherwise.
func (inst *Instruction) Size() uint64 {
	if inst.Op1Src == Op1SrcImm {
		return 2
	}
	return 1
}

// DecodeInstruction decodes a single instruction word. The high bit must be
// clear and each flag group may have at most one bit set.
func DecodeInstruction(word Felt) (*Instruction, error) {
	raw, err := word.Uint64()
	if err != nil || raw >= 1<<63 {
		return nil, fmt.Errorf("%w: word %s out of range", ErrInvalidInstruction, word)
	}

	inst := &Instruction{
		OffDst: int64(raw&offsetMask) - offsetBias,
		OffOp0: int64((raw>>16)&offsetMask) - offsetBias,
		OffOp1: int64((raw>>32)&offsetMask) - offsetBias,
	}
	flags := raw >> 48

	if flags&flagDstRegFp != 0 {
		inst.DstReg = RegisterFp
	}
	if flags&flagOp0RegFp != 0 {
		inst.Op0Reg = RegisterFp
	}

	switch flags & (flagOp1Imm | flagOp1Fp | flagOp1Ap) {
	case 0:
		inst.Op1Src = Op1SrcOp0
	case flagOp1Imm:
		inst.Op1Src = Op1SrcImm
	case flagOp1Fp:
		inst.Op1Src = Op1SrcFp
	case flagOp1Ap:
		inst.Op1Src = Op1SrcAp
	default:
		return nil, fmt.Errorf("%w: multiple op1 source flags", ErrInvalidInstruction)
	}

	switch flags & (flagResAdd | flagResMul) {
	case 0:
		inst.Res = ResOp1
	case flagResAdd:
		inst.Res = ResAdd
	case flagResMul:
		inst.Res = ResMul
	default:
		return nil, fmt.Errorf("%w: multiple res flags", ErrInvalidInstruction)
	}

	switch flags & (flagPcJumpAbs | flagPcJumpRel | flagPcJnz) {
	case 0:
		inst.PcUpdate = PcRegular
	case flagPcJumpAbs:
		inst.PcUpdate = PcJump
	case flagPcJumpRel:
		inst.PcUpdate = PcJumpRel
	case flagPcJnz:
		inst.PcUpdate = PcJnz
		inst.Res = ResUnconstrained
	default:
		return nil, fmt.Errorf("%w: multiple pc update flags", ErrInvalidInstruction)
	}

	switch flags & (flagOpcodeCall | flagOpcodeRet | flagAssertEq) {
	case 0:
		inst.Opcode = OpcodeNOp
	case flagOpcodeCall:
		inst.Opcode = OpcodeCall
		inst.FpUpdate = FpApPlus2
	case flagOpcodeRet:
		inst.Opcode = OpcodeRet
		inst.FpUpdate = FpDst
	case flagAssertEq:
		inst.Opcode = OpcodeAssertEq
	default:
		return nil, fmt.Errorf("%w: multiple opcode flags", ErrInvalidInstruction)
	}

	switch flags & (flagApAdd | flagApAdd1) {
	case 0:
		if inst.Opcode == OpcodeCall {
			inst.ApUpdate = ApAdd2
		} else {
			inst.ApUpdate = ApRegular
		}
	case flagApAdd:
		if inst.Opcode == OpcodeCall {
			return nil, fmt.Errorf("%w: call cannot carry an ap offset", ErrInvalidInstruction)
		}
		inst.ApUpdate = ApAdd
	case flagApAdd1:
		if inst.Opcode == OpcodeCall {
			return nil, fmt.Errorf("%w: call cannot carry an ap offset", ErrInvalidInstruction)
		}
		inst.ApUpdate = ApAdd1
	default:
		return nil, fmt.Errorf("%w: multiple ap update flags", ErrInvalidInstruction)
	}

	return inst, nil
}
