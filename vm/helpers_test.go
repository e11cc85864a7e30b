package vm

import (
	"testing"
)

// ---------------------------------------------------------------------------
// Shared test fixtures: hand-assembled programs
// ---------------------------------------------------------------------------

// encodeWord assembles an instruction word from offsets and flag bits.
func encodeWord(offDst, offOp0, offOp1 int64, flags uint64) Felt {
	raw := uint64(offDst+offsetBias) |
		uint64(offOp0+offsetBias)<<16 |
		uint64(offOp1+offsetBias)<<32 |
		flags<<48
	return NewFelt(int64(raw))
}

// pushImm yields "[ap] = imm; ap++": two words, assert-eq with an
// immediate op1 and ap advance.
func pushImm(imm int64) []MaybeRelocatable {
	word := encodeWord(0, -1, 1, flagOp0RegFp|flagOp1Imm|flagApAdd1|flagAssertEq)
	return []MaybeRelocatable{NewFeltCell(word), NewFeltCell(NewFelt(imm))}
}

// retWord is the standard return: fp = [fp-2], pc = [fp-1].
func retWord() MaybeRelocatable {
	word := encodeWord(-2, -1, -1, flagDstRegFp|flagOp0RegFp|flagOp1Fp|flagPcJumpAbs|flagOpcodeRet)
	return NewFeltCell(word)
}

// storeToPointer yields "[[fp+ptrOff]] = [ap-1]": assert-eq whose op1 cell
// is behind the pointer at fp+ptrOff, deduced from dst.
func storeToPointer(ptrOff int64) MaybeRelocatable {
	word := encodeWord(-1, ptrOff, 0, flagOp0RegFp|flagAssertEq)
	return NewFeltCell(word)
}

// mainIdentifiers declares __main__.main at pc 0.
func mainIdentifiers() map[string]Identifier {
	zero := uint64(0)
	return map[string]Identifier{
		"__main__.main": {Pc: &zero, Type: "function"},
	}
}

// comparisonProgram builds the two-locals fixture: a and b are pushed onto
// the stack and a hint is attached to the final ret. The hint's tracking
// metadata exercises the ap correction: a's reference predates b's push.
func comparisonProgram(hintCode string, a, b int64) *Program {
	var data []MaybeRelocatable
	data = append(data, pushImm(a)...)
	data = append(data, pushImm(b)...)
	data = append(data, retWord())

	return &Program{
		Data:        data,
		Hints:       map[uint64][]Hint{4: {comparisonHint(hintCode)}},
		Identifiers: mainIdentifiers(),
		MainScope:   "__main__",
		References: []Reference{
			{ApTracking: ApTracking{Group: 1, Offset: 1}, Register: RegisterAp, Offset: -1, Dereference: true},
			{ApTracking: ApTracking{Group: 1, Offset: 2}, Register: RegisterAp, Offset: -1, Dereference: true},
		},
	}
}

func comparisonHint(code string) Hint {
	return Hint{
		Code:             code,
		AccessibleScopes: []string{"__main__", "__main__.main"},
		FlowTrackingData: FlowTrackingData{
			ApTracking: ApTracking{Group: 1, Offset: 2},
			ReferenceIDs: map[string]int{
				"__main__.main.a": 0,
				"__main__.main.b": 1,
			},
		},
	}
}

// outputProgram builds a hint-free program using the output builtin: each
// value is pushed and stored through the output pointer at fp-3.
func outputProgram(values ...int64) *Program {
	var data []MaybeRelocatable
	for i, v := range values {
		data = append(data, pushImm(v)...)
		data = append(data, storeToPointerAt(-3, int64(i)))
	}
	data = append(data, retWord())

	return &Program{
		Data:        data,
		Builtins:    []string{OutputBuiltinName},
		Hints:       map[uint64][]Hint{},
		Identifiers: mainIdentifiers(),
		MainScope:   "__main__",
	}
}

// storeToPointerAt is storeToPointer with an explicit offset past the
// pointed-to base, for writing consecutive output cells.
func storeToPointerAt(ptrOff, cellOff int64) MaybeRelocatable {
	word := encodeWord(-1, ptrOff, cellOff, flagOp0RegFp|flagAssertEq)
	return NewFeltCell(word)
}

// mustRun runs a program that is expected to halt cleanly.
func mustRun(t *testing.T, p *Program, registry *HintRegistry) *Output {
	t.Helper()
	out, err := NewRunner(p, registry).Run("main")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	return out
}
