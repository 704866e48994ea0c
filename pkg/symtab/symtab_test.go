package symtab

import (
	"errors"
	"testing"
)

func TestScopeShadowing(t *testing.T) {
	outer := NewScope[string](nil)
	if err := outer.Insert(1, "outer x"); err != nil {
		t.Fatal(err)
	}
	inner := NewScope(outer)
	if err := inner.Insert(1, "inner x"); err != nil {
		t.Errorf("shadowing in an inner scope should succeed: %v", err)
	}
	if v, _ := inner.Lookup(1); v != "inner x" {
		t.Errorf("inner lookup = %q", v)
	}
	if v, _ := outer.Lookup(1); v != "outer x" {
		t.Errorf("outer lookup = %q", v)
	}
	if err := inner.Insert(1, "again"); !errors.Is(err, ErrRedefined) {
		t.Errorf("same-scope redefinition error = %v", err)
	}
}

func TestScopeLookupWalksParents(t *testing.T) {
	file := NewScope[int](nil)
	file.Insert(7, 70)
	block := NewScope(NewScope(file))
	if v, ok := block.Lookup(7); !ok || v != 70 {
		t.Errorf("Lookup(7) = %d, %v", v, ok)
	}
	if _, ok := block.LookupLocal(7); ok {
		t.Error("LookupLocal should not see the file scope")
	}
	if _, ok := block.Lookup(8); ok {
		t.Error("unbound name should not be found")
	}
	if block.Parent().Parent() != file {
		t.Error("parent chain broken")
	}
}

func TestScopeReplace(t *testing.T) {
	s := NewScope[string](nil)
	s.Insert(1, "a")
	s.Replace(1, "b")
	s.Replace(2, "c")
	if v, _ := s.Lookup(1); v != "b" || s.Len() != 2 {
		t.Errorf("Replace: got %q, len %d", v, s.Len())
	}
}

func TestNamespacesAreIndependent(t *testing.T) {
	ns := New[string, int]()
	ns.Values.Insert(1, "value s")
	if err := ns.Structs.Insert(1, 10); err != nil {
		t.Errorf("struct tag with the name of a value: %v", err)
	}
	if err := ns.Unions.Insert(1, 20); err != nil {
		t.Errorf("union tag with the name of a struct tag: %v", err)
	}
	if _, ok := ns.Typedefs.Lookup(1); ok {
		t.Error("typedef namespace should be empty")
	}
}

func TestNamespacesPushPop(t *testing.T) {
	ns := New[string, int]()
	ns.Values.Insert(1, "global")
	ns.Push()
	ns.Values.Insert(1, "local")
	ns.Structs.Insert(2, 5)
	if ns.Depth() != 1 {
		t.Errorf("depth = %d, want 1", ns.Depth())
	}
	if v, _ := ns.Values.Lookup(1); v != "local" {
		t.Errorf("lookup in block = %q", v)
	}
	ns.Pop()
	if v, _ := ns.Values.Lookup(1); v != "global" {
		t.Errorf("lookup after pop = %q", v)
	}
	if _, ok := ns.Structs.Lookup(2); ok {
		t.Error("tag declared in the block should be gone after pop")
	}
}

func TestPopAtFileScopePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Pop at file scope should panic")
		}
	}()
	New[int, int]().Pop()
}
