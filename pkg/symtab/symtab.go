// Package symtab implements C's lexically scoped symbol tables: a chain of
// maps keyed by interned identifier, one per scope, with separate chains
// for each namespace.
package symtab

import "errors"

// ErrRedefined is returned when a name is inserted twice into one scope
var ErrRedefined = errors.New("already defined in this scope")

// Scope maps interned names to values and links to its enclosing scope
type Scope[V any] struct {
	entries map[int]V
	parent  *Scope[V]
}

// NewScope creates a scope nested in parent (nil for file scope)
func NewScope[V any](parent *Scope[V]) *Scope[V] {
	return &Scope[V]{entries: make(map[int]V), parent: parent}
}

// Parent returns the enclosing scope, nil at file scope
func (s *Scope[V]) Parent() *Scope[V] {
	return s.parent
}

// Lookup finds id in this scope or the nearest enclosing one
func (s *Scope[V]) Lookup(id int) (V, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if v, ok := sc.entries[id]; ok {
			return v, true
		}
	}
	var zero V
	return zero, false
}

// LookupLocal finds id in this scope only
func (s *Scope[V]) LookupLocal(id int) (V, bool) {
	v, ok := s.entries[id]
	return v, ok
}

// Insert binds id in this scope. Shadowing an outer binding is allowed.
func (s *Scope[V]) Insert(id int, v V) error {
	if _, ok := s.entries[id]; ok {
		return ErrRedefined
	}
	s.entries[id] = v
	return nil
}

// Replace rebinds id in this scope, inserting it if absent
func (s *Scope[V]) Replace(id int, v V) {
	s.entries[id] = v
}

// Len returns the number of names bound directly in this scope
func (s *Scope[V]) Len() int {
	return len(s.entries)
}

// Namespaces holds C's independent name spaces. Values and typedef names
// share a binding type V; struct and union tags map to T. Enum tags are
// not supported.
type Namespaces[V, T any] struct {
	Values   *Scope[V]
	Typedefs *Scope[T]
	Structs  *Scope[T]
	Unions   *Scope[T]
	depth    int
}

// New creates the file scope
func New[V, T any]() *Namespaces[V, T] {
	return &Namespaces[V, T]{
		Values:   NewScope[V](nil),
		Typedefs: NewScope[T](nil),
		Structs:  NewScope[T](nil),
		Unions:   NewScope[T](nil),
	}
}

// Push enters a block scope in every namespace
func (n *Namespaces[V, T]) Push() {
	n.Values = NewScope(n.Values)
	n.Typedefs = NewScope(n.Typedefs)
	n.Structs = NewScope(n.Structs)
	n.Unions = NewScope(n.Unions)
	n.depth++
}

// Pop leaves the innermost block scope. The popped tables are dropped.
func (n *Namespaces[V, T]) Pop() {
	if n.depth == 0 {
		panic("symtab: Pop at file scope")
	}
	n.Values = n.Values.parent
	n.Typedefs = n.Typedefs.parent
	n.Structs = n.Structs.parent
	n.Unions = n.Unions.parent
	n.depth--
}

// Depth is the number of scopes pushed above file scope
func (n *Namespaces[V, T]) Depth() int {
	return n.depth
}
