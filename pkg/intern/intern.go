// Package intern assigns stable small integer ids to repeated values.
// Identifiers, string literals and numeric constants are interned once per
// compilation so that later comparisons work on ids instead of content.
package intern

import "math"

// Pool maps values to dense ids in first-seen order.
type Pool[T comparable] struct {
	values []T
	index  map[T]int
}

// NewPool creates an empty pool
func NewPool[T comparable]() *Pool[T] {
	return &Pool[T]{index: make(map[T]int)}
}

// Intern returns the id of v, adding it to the pool if it was not seen before.
func (p *Pool[T]) Intern(v T) int {
	if id, ok := p.index[v]; ok {
		return id
	}
	id := len(p.values)
	p.values = append(p.values, v)
	p.index[v] = id
	return id
}

// Lookup returns the value for an id. It panics on ids the pool never handed out.
func (p *Pool[T]) Lookup(id int) T {
	return p.values[id]
}

// Contains reports whether v has already been interned
func (p *Pool[T]) Contains(v T) bool {
	_, ok := p.index[v]
	return ok
}

// Len returns the number of distinct values
func (p *Pool[T]) Len() int {
	return len(p.values)
}

// Interner holds the three independent tables used by the scanner.
type Interner struct {
	Strings *Pool[string]
	Ints    *Pool[int64]
	floats  *Pool[uint64]
}

// New creates an Interner with empty tables
func New() *Interner {
	return &Interner{
		Strings: NewPool[string](),
		Ints:    NewPool[int64](),
		floats:  NewPool[uint64](),
	}
}

// String interns a string and returns its id
func (in *Interner) String(s string) int {
	return in.Strings.Intern(s)
}

// Int interns an integer constant and returns its id
func (in *Interner) Int(v int64) int {
	return in.Ints.Intern(v)
}

// Float interns a floating constant by bit pattern, so NaN and -0.0 get
// ids of their own.
func (in *Interner) Float(v float64) int {
	return in.floats.Intern(math.Float64bits(v))
}

// StringAt returns the string with the given id
func (in *Interner) StringAt(id int) string {
	return in.Strings.Lookup(id)
}

// IntAt returns the integer constant with the given id
func (in *Interner) IntAt(id int) int64 {
	return in.Ints.Lookup(id)
}

// FloatAt returns the floating constant with the given id
func (in *Interner) FloatAt(id int) float64 {
	return math.Float64frombits(in.floats.Lookup(id))
}

// FloatCount returns the number of distinct floating constants
func (in *Interner) FloatCount() int {
	return in.floats.Len()
}
