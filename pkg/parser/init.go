package parser

import (
	"github.com/raymyers/kuicc/pkg/ctypes"
	"github.com/raymyers/kuicc/pkg/lexer"
)

// Initializers
//
// A braced initializer zeroes the whole object and then stores each
// listed value at its byte offset. Positions inside an aggregate are
// counted in scalar slots: the scalars of the object in the order a
// brace-elided list would fill them. Overlapping union members do not
// get slots of their own, so only the first member of a union is
// initialized by position.

// initializer parses the initializer of a freshly declared object
func (p *Parser[H]) initializer(obj operand[H]) {
	tok := p.peek()
	if tok.Type == lexer.TokenLBrace {
		p.check(tok, p.v.ZeroObject(obj.h))
		p.initializerList(obj.h, obj.typ, 0)
		return
	}
	switch obj.typ.(type) {
	case ctypes.Tarray:
		p.errorf(tok, "array initializer must be an initializer list")
	case ctypes.Tstruct, ctypes.Tunion:
		p.unimplemented(tok, "initializing %s from an expression", obj.typ)
	}
	val := p.assignment()
	if !assignable(ctypes.Unqualified(obj.typ), val.typ) {
		p.errorf(tok, "initializing %s with an expression of incompatible type %s", obj.typ, val.typ)
	}
	_, err := p.v.Assign(obj.h, val.h)
	p.check(tok, err)
}

// initializerList parses a braced list for the part of obj of type t
// that starts at byte offset base
func (p *Parser[H]) initializerList(obj H, t ctypes.Type, base int64) {
	p.expect(lexer.TokenLBrace)
	if ctypes.IsScalar(t) {
		p.scalarList(obj, t, base)
		return
	}

	total := countSlots(t)
	cur := 0
	for p.peek().Type != lexer.TokenRBrace {
		tok := p.peek()
		var (
			sub        ctypes.Type
			off        int64
			designated bool
		)
		if tok.Type == lexer.TokenLBracket || tok.Type == lexer.TokenDot {
			sub, off, cur = p.designation(t)
			designated = true
		}
		if cur >= total {
			p.errorf(tok, "excess elements in initializer")
		}

		if p.peek().Type == lexer.TokenLBrace {
			if !designated {
				sub, off, cur = braceTarget(t, cur)
			}
			p.initializerList(obj, sub, base+off)
			cur += countSlots(sub)
		} else {
			st, soff := scalarAt(t, cur)
			p.initializerValue(obj, st, base+soff)
			cur++
		}

		if p.peek().Type != lexer.TokenComma {
			break
		}
		p.next()
	}
	p.expect(lexer.TokenRBrace)
}

// scalarList handles braces around a scalar: at most one value
func (p *Parser[H]) scalarList(obj H, t ctypes.Type, base int64) {
	switch tok := p.peek(); tok.Type {
	case lexer.TokenLBrace:
		p.errorf(tok, "initializer list has more nesting levels than its object")
	case lexer.TokenRBrace:
		p.next()
		return
	}
	p.initializerValue(obj, t, base)
	if p.peek().Type == lexer.TokenComma {
		p.next()
	}
	if tok := p.peek(); tok.Type != lexer.TokenRBrace {
		p.errorf(tok, "excess elements in scalar initializer")
	}
	p.next()
}

func (p *Parser[H]) initializerValue(obj H, t ctypes.Type, offset int64) {
	tok := p.peek()
	val := p.assignment()
	if !assignable(ctypes.Unqualified(t), val.typ) {
		p.errorf(tok, "initializing %s with an expression of incompatible type %s", t, val.typ)
	}
	p.check(tok, p.v.AssignOffset(obj, offset, t, val.h))
}

// designation parses a chain of array designators followed by '='. It
// returns the designated subobject, its offset within t and its first
// slot.
func (p *Parser[H]) designation(t ctypes.Type) (ctypes.Type, int64, int) {
	var (
		off   int64
		first int
	)
	for p.peek().Type == lexer.TokenLBracket {
		open := p.next()
		arr, ok := t.(ctypes.Tarray)
		if !ok {
			p.errorf(open, "array designator cannot initialize non-array type %s", t)
		}
		idx := p.peek()
		if idx.Type != lexer.TokenInt {
			p.unimplemented(idx, "non-literal array designator")
		}
		p.next()
		if idx.Int >= arr.Len {
			p.errorf(idx, "array designator index %d exceeds array bounds", idx.Int)
		}
		p.expect(lexer.TokenRBracket)
		off += idx.Int * arr.Elem.Size()
		first += int(idx.Int) * countSlots(arr.Elem)
		t = arr.Elem
	}
	if tok := p.peek(); tok.Type == lexer.TokenDot {
		p.unimplemented(tok, "field designator")
	}
	p.expect(lexer.TokenAssign)
	return t, off, first
}

// countSlots is the number of scalars positional initialization fills in t
func countSlots(t ctypes.Type) int {
	switch t := t.(type) {
	case ctypes.Tarray:
		return int(t.Len) * countSlots(t.Elem)
	case ctypes.Tstruct, ctypes.Tunion:
		n := 0
		for _, m := range slotMembers(ctypes.RecordOf(t)) {
			n += countSlots(m.Type)
		}
		return n
	}
	return 1
}

// slotMembers drops members that overlap an earlier one, which leaves
// the first member of every union
func slotMembers(r *ctypes.Record) []*ctypes.Member {
	var (
		out []*ctypes.Member
		end int64
	)
	for _, m := range r.Members {
		if m.Offset < end {
			continue
		}
		out = append(out, m)
		end = m.Offset + m.Type.Size()
	}
	return out
}

// subobject returns the direct child of aggregate t containing slot cur,
// with its offset within t and the index of its first slot
func subobject(t ctypes.Type, cur int) (ctypes.Type, int64, int) {
	if arr, ok := t.(ctypes.Tarray); ok {
		n := countSlots(arr.Elem)
		i := cur / n
		return withQuals(arr.Elem, arr.Q), int64(i) * arr.Elem.Size(), i * n
	}
	first := 0
	for _, m := range slotMembers(ctypes.RecordOf(t)) {
		n := countSlots(m.Type)
		if cur < first+n {
			return withQuals(m.Type, t.Quals()), m.Offset, first
		}
		first += n
	}
	panic("slot out of range")
}

// scalarAt returns the type and offset of slot cur in t
func scalarAt(t ctypes.Type, cur int) (ctypes.Type, int64) {
	var off int64
	for !ctypes.IsScalar(t) {
		child, coff, first := subobject(t, cur)
		t, off, cur = child, off+coff, cur-first
	}
	return t, off
}

// braceTarget finds the object a nested brace at slot cur initializes:
// the outermost subobject that begins exactly at cur.
func braceTarget(t ctypes.Type, cur int) (ctypes.Type, int64, int) {
	var (
		off   int64
		start int
	)
	for {
		child, coff, first := subobject(t, cur-start)
		off += coff
		start += first
		if start == cur {
			return child, off, start
		}
		t = child
	}
}
