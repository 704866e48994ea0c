package ctypes

import (
	"fmt"

	"modernc.org/mathutil"
)

// Member is one field of a struct or union
type Member struct {
	Name   string
	ID     int // interned name
	Type   Type
	Offset int64 // byte offset within the enclosing aggregate
}

// Record is the body of a struct or union. Members keeps declaration order,
// which is also layout order; byID indexes the same members by name.
type Record struct {
	Tag   string // "" when anonymous
	TagID int

	Members []*Member
	byID    map[int]*Member

	size     int64
	align    int64
	complete bool
}

// NewIncomplete returns the record of a forward-declared tag
func NewIncomplete(tag string, tagID int) *Record {
	return &Record{Tag: tag, TagID: tagID, align: 1, byID: map[int]*Member{}}
}

// Complete reports whether the member list is known
func (r *Record) Complete() bool {
	return r.complete
}

// Lookup finds a member by interned name. Members of anonymous nested
// records are found directly since they were flattened into r.
func (r *Record) Lookup(id int) (*Member, bool) {
	m, ok := r.byID[id]
	return m, ok
}

func (r *Record) name() string {
	if r.Tag == "" {
		return "<anonymous>"
	}
	return r.Tag
}

// completeFrom copies the layout of def into r
func (r *Record) completeFrom(def *Record) {
	r.Members = def.Members
	r.byID = def.byID
	r.size = def.size
	r.align = def.align
	r.complete = true
}

// Builder lays out the members of a struct or union as they are declared
type Builder struct {
	union  bool
	rec    *Record
	offset int64
	end    int64 // furthest byte used so far
}

// NewBuilder starts an empty struct (or union) layout
func NewBuilder(union bool) *Builder {
	return &Builder{
		union: union,
		rec:   &Record{align: 1, byID: map[int]*Member{}},
	}
}

// Add appends a named member. Duplicate names are rejected.
func (b *Builder) Add(name string, id int, t Type) (*Member, error) {
	if _, dup := b.rec.byID[id]; dup {
		return nil, fmt.Errorf("duplicate member %s", name)
	}
	if !IsComplete(t) {
		return nil, fmt.Errorf("member %s has incomplete type %s", name, t)
	}
	m := &Member{Name: name, ID: id, Type: t, Offset: b.place(t)}
	b.insert(m)
	return m, nil
}

// AddAnonymous flattens the members of an anonymous struct or union
// member into the aggregate being built. The child is placed as one unit
// at the parent's next position; in a union that position is always 0.
func (b *Builder) AddAnonymous(child Type) error {
	rec := RecordOf(child)
	if rec == nil {
		return fmt.Errorf("anonymous member must be a struct or union, got %s", child)
	}
	if !rec.complete {
		return fmt.Errorf("anonymous member has incomplete type %s", child)
	}
	for _, cm := range rec.Members {
		if _, dup := b.rec.byID[cm.ID]; dup {
			return fmt.Errorf("duplicate member %s", cm.Name)
		}
	}
	base := b.place(child)
	for _, cm := range rec.Members {
		b.insert(&Member{Name: cm.Name, ID: cm.ID, Type: cm.Type, Offset: base + cm.Offset})
	}
	if b.union {
		b.offset = 0
	}
	return nil
}

// place returns the offset for a member of type t and advances the layout
func (b *Builder) place(t Type) int64 {
	b.rec.align = mathutil.MaxInt64(b.rec.align, t.Align())
	if b.union {
		b.end = mathutil.MaxInt64(b.end, b.offset+t.Size())
		return b.offset
	}
	off := alignUp(b.offset, t.Align())
	b.offset = off + t.Size()
	b.end = b.offset
	return off
}

func (b *Builder) insert(m *Member) {
	b.rec.Members = append(b.rec.Members, m)
	b.rec.byID[m.ID] = m
}

func (b *Builder) finish(tag string, tagID int) *Record {
	r := b.rec
	r.Tag, r.TagID = tag, tagID
	r.size = alignUp(b.end, r.align)
	r.complete = true
	return r
}

// Struct finishes the layout as a struct type
func (b *Builder) Struct(tag string, tagID int) Tstruct {
	return Tstruct{Record: b.finish(tag, tagID)}
}

// Union finishes the layout as a union type
func (b *Builder) Union(tag string, tagID int) Tunion {
	return Tunion{Record: b.finish(tag, tagID)}
}

// alignUp rounds n up to the nearest multiple of align
func alignUp(n, align int64) int64 {
	if align <= 1 {
		return n
	}
	return ((n + align - 1) / align) * align
}

// AlignUp is alignUp for backends laying out frames
func AlignUp(n, align int64) int64 {
	return alignUp(n, align)
}
