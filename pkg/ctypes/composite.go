package ctypes

import "fmt"

// Composite reconciles a redeclaration of a tagged type with the prior
// declaration of the same tag in the same scope. Both must be the same
// kind of aggregate. If both are complete they must match structurally;
// if only one is complete it wins, and an incomplete prior record is
// completed in place so earlier uses of the tag see the layout.
func Composite(prior, next Type) (Type, error) {
	pr, nr := RecordOf(prior), RecordOf(next)
	if pr == nil || nr == nil {
		return nil, fmt.Errorf("composite of non-aggregate types %s and %s", prior, next)
	}
	if !sameKind(prior, next) {
		return nil, fmt.Errorf("%s redeclared as %s", prior, next)
	}
	switch {
	case pr == nr:
		return prior, nil
	case pr.complete && nr.complete:
		if !Compatible(prior, next) {
			return nil, fmt.Errorf("incompatible redefinition of %s", prior)
		}
		return prior, nil
	case nr.complete:
		if pr.Tag != nr.Tag {
			return nil, fmt.Errorf("tag mismatch between %s and %s", prior, next)
		}
		pr.completeFrom(nr)
		return prior, nil
	case pr.complete:
		if pr.Tag != nr.Tag {
			return nil, fmt.Errorf("tag mismatch between %s and %s", prior, next)
		}
		return prior, nil
	}
	// both incomplete
	if pr.Tag != nr.Tag {
		return nil, fmt.Errorf("tag mismatch between %s and %s", prior, next)
	}
	return prior, nil
}

func sameKind(a, b Type) bool {
	switch a.(type) {
	case Tstruct:
		_, ok := b.(Tstruct)
		return ok
	case Tunion:
		_, ok := b.(Tunion)
		return ok
	}
	return false
}

// Compatible reports whether two types could denote the same object type.
// Complete aggregates are compared member by member.
func Compatible(a, b Type) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Quals() != b.Quals() {
		return false
	}
	ra, rb := RecordOf(a), RecordOf(b)
	if ra == nil || rb == nil {
		switch ta := a.(type) {
		case Tpointer:
			tb, ok := b.(Tpointer)
			return ok && Compatible(ta.Elem, tb.Elem)
		case Tarray:
			tb, ok := b.(Tarray)
			return ok && ta.Len == tb.Len && Compatible(ta.Elem, tb.Elem)
		}
		return Equal(a, b)
	}
	if !sameKind(a, b) {
		return false
	}
	if ra == rb {
		return true
	}
	if ra.Tag != rb.Tag {
		return false
	}
	if !ra.complete || !rb.complete {
		return true
	}
	if ra.size != rb.size || ra.align != rb.align || len(ra.Members) != len(rb.Members) {
		return false
	}
	for i, ma := range ra.Members {
		mb := rb.Members[i]
		if ma.ID != mb.ID || ma.Offset != mb.Offset || !Compatible(ma.Type, mb.Type) {
			return false
		}
	}
	return true
}
