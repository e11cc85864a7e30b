package vm

import (
	"errors"
	"testing"
)

func TestMemorySegmentsAllocateMonotonically(t *testing.T) {
	m := NewMemory()
	for want := 0; want < 3; want++ {
		base := m.AddSegment()
		if base.Segment != want || base.Offset != 0 {
			t.Errorf("segment %d base = %s", want, base)
		}
	}
	if m.NumSegments() != 3 {
		t.Errorf("NumSegments = %d, want 3", m.NumSegments())
	}
}

func TestMemorySetGetRoundTrip(t *testing.T) {
	m := NewMemory()
	base := m.AddSegment()

	want := NewFeltCell(NewFelt(42))
	if err := m.Set(base, want); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := m.Get(base)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.Equal(want) {
		t.Errorf("Get = %s, want %s", got, want)
	}
}

func TestMemoryUninitializedRead(t *testing.T) {
	m := NewMemory()
	base := m.AddSegment()

	_, err := m.Get(Relocatable{Segment: base.Segment, Offset: 5})
	if !errors.Is(err, ErrUninitializedMemory) {
		t.Errorf("err = %v, want ErrUninitializedMemory", err)
	}
}

func TestMemoryGapReadFails(t *testing.T) {
	m := NewMemory()
	base := m.AddSegment()
	if err := m.Set(Relocatable{Segment: 0, Offset: 2}, NewFeltCell(NewFelt(1))); err != nil {
		t.Fatalf("Set: %v", err)
	}
	_, err := m.Get(base)
	if !errors.Is(err, ErrUninitializedMemory) {
		t.Errorf("gap read err = %v, want ErrUninitializedMemory", err)
	}
}

func TestMemoryUnknownSegment(t *testing.T) {
	m := NewMemory()
	if _, err := m.Get(Relocatable{Segment: 1, Offset: 0}); !errors.Is(err, ErrUnknownSegment) {
		t.Errorf("Get err = %v, want ErrUnknownSegment", err)
	}
	if err := m.Set(Relocatable{Segment: 1}, NewFeltCell(Felt{})); !errors.Is(err, ErrUnknownSegment) {
		t.Errorf("Set err = %v, want ErrUnknownSegment", err)
	}
}

func TestMemoryWriteOnce(t *testing.T) {
	m := NewMemory()
	base := m.AddSegment()
	if err := m.Set(base, NewFeltCell(NewFelt(7))); err != nil {
		t.Fatalf("first write: %v", err)
	}

	// Identical rewrite is a no-op.
	if err := m.Set(base, NewFeltCell(NewFelt(7))); err != nil {
		t.Errorf("identical rewrite failed: %v", err)
	}

	// A different value must be refused.
	err := m.Set(base, NewFeltCell(NewFelt(8)))
	if !errors.Is(err, ErrMemoryWriteOnce) {
		t.Errorf("overwrite err = %v, want ErrMemoryWriteOnce", err)
	}
}

func TestMemoryTypedGetters(t *testing.T) {
	m := NewMemory()
	base := m.AddSegment()
	ptr := Relocatable{Segment: 0, Offset: 1}

	if err := m.Set(base, NewRelocatableCell(ptr)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := m.Set(ptr, NewFeltCell(NewFelt(9))); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if _, err := m.GetFelt(base); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("GetFelt on relocatable err = %v, want ErrTypeMismatch", err)
	}
	if _, err := m.GetRelocatable(ptr); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("GetRelocatable on felt err = %v, want ErrTypeMismatch", err)
	}

	r, err := m.GetRelocatable(base)
	if err != nil || r != ptr {
		t.Errorf("GetRelocatable = %s, %v", r, err)
	}
	f, err := m.GetFelt(ptr)
	if err != nil || !f.Equal(NewFelt(9)) {
		t.Errorf("GetFelt = %s, %v", f, err)
	}
}

func TestMemoryLoadData(t *testing.T) {
	m := NewMemory()
	base := m.AddSegment()
	end, err := m.LoadData(base, []MaybeRelocatable{
		NewFeltCell(NewFelt(1)),
		NewFeltCell(NewFelt(2)),
		NewFeltCell(NewFelt(3)),
	})
	if err != nil {
		t.Fatalf("LoadData: %v", err)
	}
	if end.Offset != 3 {
		t.Errorf("end offset = %d, want 3", end.Offset)
	}
	if m.SegmentSize(0) != 3 {
		t.Errorf("SegmentSize = %d, want 3", m.SegmentSize(0))
	}
}

func TestRelocatableArithmetic(t *testing.T) {
	r := Relocatable{Segment: 2, Offset: 5}

	fwd, err := r.Add(3)
	if err != nil || fwd.Offset != 8 {
		t.Errorf("Add(3) = %s, %v", fwd, err)
	}
	back, err := r.Add(-5)
	if err != nil || back.Offset != 0 {
		t.Errorf("Add(-5) = %s, %v", back, err)
	}
	if _, err := r.Add(-6); err == nil {
		t.Error("underflow succeeded")
	}

	d, err := fwd.SubAddr(r)
	if err != nil || d != 3 {
		t.Errorf("SubAddr = %d, %v", d, err)
	}
	if _, err := r.SubAddr(Relocatable{Segment: 1}); err == nil {
		t.Error("cross-segment subtraction succeeded")
	}
}

func TestMaybeRelocatableOps(t *testing.T) {
	f5 := NewFeltCell(NewFelt(5))
	f3 := NewFeltCell(NewFelt(3))
	rel := NewRelocatableCell(Relocatable{Segment: 1, Offset: 4})

	sum, err := f5.Add(f3)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if got, _ := sum.Felt(); !got.Equal(NewFelt(8)) {
		t.Errorf("5 + 3 = %s", sum)
	}

	moved, err := rel.Add(f3)
	if err != nil {
		t.Fatalf("rel + felt: %v", err)
	}
	if got, _ := moved.Relocatable(); got.Offset != 7 {
		t.Errorf("rel + 3 = %s", moved)
	}

	if _, err := rel.Add(rel); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("rel + rel err = %v, want ErrTypeMismatch", err)
	}
	if _, err := rel.Mul(f3); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("rel * felt err = %v, want ErrTypeMismatch", err)
	}

	dist, err := moved.Sub(rel)
	if err != nil {
		t.Fatalf("rel - rel: %v", err)
	}
	if got, _ := dist.Felt(); !got.Equal(NewFelt(3)) {
		t.Errorf("distance = %s, want 3", dist)
	}
}
