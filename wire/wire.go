// Package wire defines the serialized form of run artifacts: everything a
// completed execution leaves behind, encoded as canonical CBOR so artifact
// bytes (and therefore their hashes) are deterministic across runs and
// machines.
package wire

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/gaetbout/cairo-foundry/vm"
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("wire: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// MemoryCell is one written cell of the final memory, addressed by segment
// and offset. Values are rendered in their canonical textual form (decimal
// felts, segment:offset addresses).
type MemoryCell struct {
	Segment int    `cbor:"1,keyasint"`
	Offset  uint64 `cbor:"2,keyasint"`
	Value   string `cbor:"3,keyasint"`
}

// RunArtifact is the durable record of one completed run.
type RunArtifact struct {
	ProgramHash [32]byte     `cbor:"1,keyasint"`
	Entrypoint  string       `cbor:"2,keyasint"`
	Output      []byte       `cbor:"3,keyasint,omitempty"`
	Memory      []MemoryCell `cbor:"4,keyasint,omitempty"`
	Steps       uint64       `cbor:"5,keyasint"`
	CompletedAt int64        `cbor:"6,keyasint"` // unix seconds
}

// NewRunArtifact snapshots a halted runner into an artifact. The program
// bytes are hashed so the record stays tied to the exact input.
func NewRunArtifact(programBytes []byte, entrypoint string, out *vm.Output, runner *vm.Runner) *RunArtifact {
	a := &RunArtifact{
		ProgramHash: sha256.Sum256(programBytes),
		Entrypoint:  entrypoint,
		Steps:       runner.Steps(),
		CompletedAt: time.Now().Unix(),
	}
	if out != nil {
		a.Output = out.Bytes()
	}
	if machine := runner.Machine(); machine != nil {
		a.Memory = snapshotMemory(machine.Memory())
	}
	return a
}

// snapshotMemory flattens written cells in address order. Address order is
// part of the canonical form; gaps are simply absent.
func snapshotMemory(memory *vm.Memory) []MemoryCell {
	var cells []MemoryCell
	for seg := 0; seg < memory.NumSegments(); seg++ {
		size := memory.SegmentSize(seg)
		for off := uint64(0); off < size; off++ {
			v, err := memory.Get(vm.Relocatable{Segment: seg, Offset: off})
			if err != nil {
				continue
			}
			cells = append(cells, MemoryCell{Segment: seg, Offset: off, Value: v.String()})
		}
	}
	return cells
}

// MarshalArtifact serializes an artifact to canonical CBOR bytes.
func MarshalArtifact(a *RunArtifact) ([]byte, error) {
	return cborEncMode.Marshal(a)
}

// UnmarshalArtifact deserializes an artifact from CBOR bytes.
func UnmarshalArtifact(data []byte) (*RunArtifact, error) {
	var a RunArtifact
	if err := cbor.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("wire: unmarshal artifact: %w", err)
	}
	return &a, nil
}
