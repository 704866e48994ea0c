package ctypes

import (
	"strings"
	"testing"
)

type field struct {
	name string
	id   int
	typ  Type
}

func build(t *testing.T, union bool, fields ...field) *Builder {
	t.Helper()
	b := NewBuilder(union)
	for _, f := range fields {
		if _, err := b.Add(f.name, f.id, f.typ); err != nil {
			t.Fatalf("Add(%s): %v", f.name, err)
		}
	}
	return b
}

func checkOffsets(t *testing.T, r *Record, want map[string]int64) {
	t.Helper()
	if len(r.Members) != len(want) {
		t.Fatalf("got %d members, want %d", len(r.Members), len(want))
	}
	for _, m := range r.Members {
		off, ok := want[m.Name]
		if !ok {
			t.Errorf("unexpected member %s", m.Name)
			continue
		}
		if m.Offset != off {
			t.Errorf("member %s at offset %d, want %d", m.Name, m.Offset, off)
		}
		if got, ok := r.Lookup(m.ID); !ok || got != m {
			t.Errorf("member %s not reachable by id", m.Name)
		}
	}
}

func TestStructLayout(t *testing.T) {
	s := build(t, false, field{"a", 0, Char()}, field{"b", 1, Int()}).Struct("", 0)
	checkOffsets(t, s.Record, map[string]int64{"a": 0, "b": 4})
	if s.Size() != 8 || s.Align() != 4 {
		t.Errorf("size/align = %d/%d, want 8/4", s.Size(), s.Align())
	}
}

func TestStructTailPadding(t *testing.T) {
	s := build(t, false, field{"l", 0, Long()}, field{"c", 1, Char()}).Struct("P", 9)
	checkOffsets(t, s.Record, map[string]int64{"l": 0, "c": 8})
	if s.Size() != 16 || s.Align() != 8 {
		t.Errorf("size/align = %d/%d, want 16/8", s.Size(), s.Align())
	}
	if s.Tag != "P" || s.TagID != 9 || s.String() != "struct P" {
		t.Errorf("tag = %q/%d, String() = %q", s.Tag, s.TagID, s.String())
	}
}

func TestUnionLayout(t *testing.T) {
	u := build(t, true, field{"a", 0, Char()}, field{"b", 1, Int()}).Union("", 0)
	checkOffsets(t, u.Record, map[string]int64{"a": 0, "b": 0})
	if u.Size() != 4 || u.Align() != 4 {
		t.Errorf("size/align = %d/%d, want 4/4", u.Size(), u.Align())
	}
}

func TestUnionSizeRoundedToAlignment(t *testing.T) {
	u := build(t, true, field{"c", 0, Array(Char(), 5)}, field{"i", 1, Int()}).Union("", 0)
	if u.Size() != 8 || u.Align() != 4 {
		t.Errorf("size/align = %d/%d, want 8/4", u.Size(), u.Align())
	}
}

func TestAnonymousStructFlattening(t *testing.T) {
	inner := build(t, false, field{"x", 0, Int()}).Struct("", 0)
	b := NewBuilder(false)
	if err := b.AddAnonymous(inner); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Add("y", 1, Int()); err != nil {
		t.Fatal(err)
	}
	s := b.Struct("", 0)
	checkOffsets(t, s.Record, map[string]int64{"x": 0, "y": 4})
	if s.Size() != 8 {
		t.Errorf("size = %d, want 8", s.Size())
	}
}

func TestAnonymousUnionInStruct(t *testing.T) {
	inner := build(t, true, field{"i", 1, Int()}, field{"c", 2, Char()}).Union("", 0)
	b := build(t, false, field{"tag", 0, Char()})
	if err := b.AddAnonymous(inner); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Add("after", 3, Short()); err != nil {
		t.Fatal(err)
	}
	s := b.Struct("", 0)
	checkOffsets(t, s.Record, map[string]int64{"tag": 0, "i": 4, "c": 4, "after": 8})
	if s.Size() != 12 || s.Align() != 4 {
		t.Errorf("size/align = %d/%d, want 12/4", s.Size(), s.Align())
	}
}

func TestAnonymousStructInUnionResetsOffset(t *testing.T) {
	inner := build(t, false, field{"lo", 1, Int()}, field{"hi", 2, Int()}).Struct("", 0)
	b := NewBuilder(true)
	if err := b.AddAnonymous(inner); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Add("whole", 3, Long()); err != nil {
		t.Fatal(err)
	}
	u := b.Union("", 0)
	checkOffsets(t, u.Record, map[string]int64{"lo": 0, "hi": 4, "whole": 0})
	if u.Size() != 8 {
		t.Errorf("size = %d, want 8", u.Size())
	}
}

func TestBuilderErrors(t *testing.T) {
	b := build(t, false, field{"a", 0, Int()})
	if _, err := b.Add("a", 0, Char()); err == nil || !strings.Contains(err.Error(), "duplicate member a") {
		t.Errorf("duplicate add error = %v", err)
	}
	if err := b.AddAnonymous(Int()); err == nil {
		t.Error("anonymous int member should be rejected")
	}
	clash := build(t, false, field{"a", 0, Int()}).Struct("", 0)
	if err := b.AddAnonymous(clash); err == nil {
		t.Error("flattened member clashing with an existing one should be rejected")
	}
	fwd := Tstruct{Record: NewIncomplete("F", 5)}
	if _, err := b.Add("f", 7, fwd); err == nil {
		t.Error("member of incomplete type should be rejected")
	}
}

func TestComposite(t *testing.T) {
	mk := func(typ Type) Tstruct {
		return build(t, false, field{"a", 0, typ}).Struct("S", 1)
	}
	first := mk(Int())

	got, err := Composite(first, mk(Int()))
	if err != nil {
		t.Fatalf("matching redefinition failed: %v", err)
	}
	if RecordOf(got) != first.Record {
		t.Error("composite of two complete types should keep the prior one")
	}

	if _, err := Composite(first, mk(Float())); err == nil {
		t.Error("struct S { float a; } should not reconcile with struct S { int a; }")
	}

	u := build(t, true, field{"a", 0, Int()}).Union("S", 1)
	if _, err := Composite(first, u); err == nil {
		t.Error("struct and union with the same tag should not reconcile")
	}
}

func TestCompositeCompletesForwardDeclaration(t *testing.T) {
	fwd := Tstruct{Record: NewIncomplete("S", 1)}
	ptr := Pointer(fwd)
	def := build(t, false, field{"a", 0, Int()}, field{"b", 2, Long()}).Struct("S", 1)

	got, err := Composite(fwd, def)
	if err != nil {
		t.Fatal(err)
	}
	if !IsComplete(got) || got.Size() != 16 {
		t.Errorf("completed type size = %d", got.Size())
	}
	// the pointer created before the definition sees the members
	elem := ptr.(Tpointer).Elem.(Tstruct)
	if _, ok := elem.Lookup(2); !ok {
		t.Error("earlier reference should see the completed layout")
	}

	// a later forward declaration keeps the complete type
	again, err := Composite(got, Tstruct{Record: NewIncomplete("S", 1)})
	if err != nil || !IsComplete(again) {
		t.Errorf("forward declaration after definition: %v", err)
	}
}

func TestCompatibleNested(t *testing.T) {
	inner := func() Tstruct { return build(t, false, field{"x", 0, Short()}).Struct("In", 3) }
	a := build(t, false, field{"in", 1, inner()}).Struct("Out", 4)
	b := build(t, false, field{"in", 1, inner()}).Struct("Out", 4)
	if !Compatible(a, b) {
		t.Error("structurally identical nested structs should be compatible")
	}
	c := build(t, false, field{"other", 2, inner()}).Struct("Out", 4)
	if Compatible(a, c) {
		t.Error("member names differ, should not be compatible")
	}
}

func TestAlignUp(t *testing.T) {
	tests := []struct{ n, align, want int64 }{
		{0, 4, 0}, {1, 4, 4}, {4, 4, 4}, {5, 8, 8}, {17, 16, 32}, {3, 1, 3}, {3, 0, 3},
	}
	for _, tt := range tests {
		if got := AlignUp(tt.n, tt.align); got != tt.want {
			t.Errorf("AlignUp(%d, %d) = %d, want %d", tt.n, tt.align, got, tt.want)
		}
	}
}
