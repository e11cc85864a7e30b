package vm

import (
	"fmt"
)

// ---------------------------------------------------------------------------
// Relocatable addresses and memory cells
// ---------------------------------------------------------------------------

// Relocatable is a segmented memory address: segment index plus offset.
// Concrete numeric addresses only exist after relocation; during execution
// every pointer-valued cell holds one of these.
type Relocatable struct {
	Segment int
	Offset  uint64
}

// Add returns the address displaced by n within the same segment.
// Negative displacements must not underflow the segment start.
func (r Relocatable) Add(n int64) (Relocatable, error) {
	if n < 0 && uint64(-n) > r.Offset {
		return Relocatable{}, fmt.Errorf("address %s + %d underflows segment start", r, n)
	}
	return Relocatable{Segment: r.Segment, Offset: r.Offset + uint64(n)}, nil
}

// AddFelt returns the address displaced by a felt interpreted as a signed
// offset.
func (r Relocatable) AddFelt(f Felt) (Relocatable, error) {
	n, err := f.RelOffset()
	if err != nil {
		return Relocatable{}, err
	}
	return r.Add(n)
}

// SubAddr returns the offset distance r - other. Both must live in the same
// segment and other must not be past r.
func (r Relocatable) SubAddr(other Relocatable) (uint64, error) {
	if r.Segment != other.Segment {
		return 0, fmt.Errorf("cannot subtract %s from %s: different segments", other, r)
	}
	if other.Offset > r.Offset {
		return 0, fmt.Errorf("cannot subtract %s from %s: negative result", other, r)
	}
	return r.Offset - other.Offset, nil
}

func (r Relocatable) String() string {
	return fmt.Sprintf("%d:%d", r.Segment, r.Offset)
}

// MaybeRelocatable is one memory cell's value: either a felt or a
// relocatable address. The zero value is the felt zero.
type MaybeRelocatable struct {
	felt  Felt
	rel   Relocatable
	isRel bool
}

// NewFeltCell wraps a felt as a cell value.
func NewFeltCell(f Felt) MaybeRelocatable {
	return MaybeRelocatable{felt: f}
}

// NewRelocatableCell wraps an address as a cell value.
func NewRelocatableCell(r Relocatable) MaybeRelocatable {
	return MaybeRelocatable{rel: r, isRel: true}
}

// Felt returns the felt payload; ok is false for relocatable cells.
func (m MaybeRelocatable) Felt() (Felt, bool) {
	if m.isRel {
		return Felt{}, false
	}
	return m.felt, true
}

// Relocatable returns the address payload; ok is false for felt cells.
func (m MaybeRelocatable) Relocatable() (Relocatable, bool) {
	if !m.isRel {
		return Relocatable{}, false
	}
	return m.rel, true
}

// Equal reports whether two cell values are identical.
func (m MaybeRelocatable) Equal(o MaybeRelocatable) bool {
	if m.isRel != o.isRel {
		return false
	}
	if m.isRel {
		return m.rel == o.rel
	}
	return m.felt.Equal(o.felt)
}

// Add computes m + o: felt+felt, or relocatable+felt displacement.
// Adding two relocatables is a type error.
func (m MaybeRelocatable) Add(o MaybeRelocatable) (MaybeRelocatable, error) {
	switch {
	case !m.isRel && !o.isRel:
		return NewFeltCell(m.felt.Add(o.felt)), nil
	case m.isRel && !o.isRel:
		r, err := m.rel.AddFelt(o.felt)
		if err != nil {
			return MaybeRelocatable{}, err
		}
		return NewRelocatableCell(r), nil
	default:
		return MaybeRelocatable{}, fmt.Errorf("%w: cannot add to a relocatable", ErrTypeMismatch)
	}
}

// Mul computes m * o; both operands must be felts.
func (m MaybeRelocatable) Mul(o MaybeRelocatable) (MaybeRelocatable, error) {
	if m.isRel || o.isRel {
		return MaybeRelocatable{}, fmt.Errorf("%w: cannot multiply relocatables", ErrTypeMismatch)
	}
	return NewFeltCell(m.felt.Mul(o.felt)), nil
}

// Sub computes m - o: felt-felt, relocatable-felt, or the offset distance
// between two relocatables in the same segment.
func (m MaybeRelocatable) Sub(o MaybeRelocatable) (MaybeRelocatable, error) {
	switch {
	case !m.isRel && !o.isRel:
		return NewFeltCell(m.felt.Sub(o.felt)), nil
	case m.isRel && !o.isRel:
		n, err := o.felt.RelOffset()
		if err != nil {
			return MaybeRelocatable{}, err
		}
		r, err := m.rel.Add(-n)
		if err != nil {
			return MaybeRelocatable{}, err
		}
		return NewRelocatableCell(r), nil
	case m.isRel && o.isRel:
		d, err := m.rel.SubAddr(o.rel)
		if err != nil {
			return MaybeRelocatable{}, err
		}
		return NewFeltCell(NewFelt(int64(d))), nil
	default:
		return MaybeRelocatable{}, fmt.Errorf("%w: cannot subtract a relocatable from a felt", ErrTypeMismatch)
	}
}

func (m MaybeRelocatable) String() string {
	if m.isRel {
		return m.rel.String()
	}
	return m.felt.String()
}

// ---------------------------------------------------------------------------
// Memory: segmented, write-once address space
// ---------------------------------------------------------------------------

// Memory holds the VM's address space as an ordered list of segments.
// Cells are write-once: a written address may only ever be rewritten with
// the identical value. Addresses within a segment are allocated
// monotonically, but writes may leave gaps; reading a gap is an
// uninitialized-memory error.
type Memory struct {
	segments [][]*MaybeRelocatable
}

// NewMemory creates an empty memory with no segments.
func NewMemory() *Memory {
	return &Memory{}
}

// NumSegments returns the number of allocated segments.
func (m *Memory) NumSegments() int {
	return len(m.segments)
}

// AddSegment allocates a fresh empty segment and returns its base address.
func (m *Memory) AddSegment() Relocatable {
	m.segments = append(m.segments, nil)
	return Relocatable{Segment: len(m.segments) - 1}
}

// SegmentSize returns one past the highest written offset in a segment.
func (m *Memory) SegmentSize(segment int) uint64 {
	if segment < 0 || segment >= len(m.segments) {
		return 0
	}
	return uint64(len(m.segments[segment]))
}

// Get reads the cell at addr. Unwritten addresses (including gaps inside a
// segment) fail with ErrUninitializedMemory.
func (m *Memory) Get(addr Relocatable) (MaybeRelocatable, error) {
	if addr.Segment < 0 || addr.Segment >= len(m.segments) {
		return MaybeRelocatable{}, fmt.Errorf("%w: read at %s", ErrUnknownSegment, addr)
	}
	seg := m.segments[addr.Segment]
	if addr.Offset >= uint64(len(seg)) || seg[addr.Offset] == nil {
		return MaybeRelocatable{}, fmt.Errorf("%w: read at %s", ErrUninitializedMemory, addr)
	}
	return *seg[addr.Offset], nil
}

// GetFelt reads the cell at addr and requires it to hold a felt.
func (m *Memory) GetFelt(addr Relocatable) (Felt, error) {
	v, err := m.Get(addr)
	if err != nil {
		return Felt{}, err
	}
	f, ok := v.Felt()
	if !ok {
		return Felt{}, fmt.Errorf("%w: cell %s holds a relocatable, felt required", ErrTypeMismatch, addr)
	}
	return f, nil
}

// GetRelocatable reads the cell at addr and requires it to hold an address.
func (m *Memory) GetRelocatable(addr Relocatable) (Relocatable, error) {
	v, err := m.Get(addr)
	if err != nil {
		return Relocatable{}, err
	}
	r, ok := v.Relocatable()
	if !ok {
		return Relocatable{}, fmt.Errorf("%w: cell %s holds a felt, relocatable required", ErrTypeMismatch, addr)
	}
	return r, nil
}

// Set writes value at addr. Rewriting a written cell with the same value is
// a no-op; rewriting with a different value fails with ErrMemoryWriteOnce.
func (m *Memory) Set(addr Relocatable, value MaybeRelocatable) error {
	if addr.Segment < 0 || addr.Segment >= len(m.segments) {
		return fmt.Errorf("%w: write at %s", ErrUnknownSegment, addr)
	}
	seg := m.segments[addr.Segment]
	for uint64(len(seg)) <= addr.Offset {
		seg = append(seg, nil)
	}
	if cur := seg[addr.Offset]; cur != nil {
		if !cur.Equal(value) {
			return fmt.Errorf("%w: %s already holds %s, refusing %s",
				ErrMemoryWriteOnce, addr, cur, value)
		}
		m.segments[addr.Segment] = seg
		return nil
	}
	v := value
	seg[addr.Offset] = &v
	m.segments[addr.Segment] = seg
	return nil
}

// LoadData writes values consecutively starting at base and returns the
// first address past the written block.
func (m *Memory) LoadData(base Relocatable, values []MaybeRelocatable) (Relocatable, error) {
	addr := base
	for _, v := range values {
		if err := m.Set(addr, v); err != nil {
			return Relocatable{}, err
		}
		addr.Offset++
	}
	return addr, nil
}
