// Package ctypes defines the C type model shared by the parser and every
// backend: scalar, array, pointer, function and struct/union types with
// their sizes and alignments on the target machine.
package ctypes

import (
	"fmt"
	"strings"
)

// Type is the interface for all C types
type Type interface {
	implType()
	String() string
	// Size is the size in bytes, 0 for void, functions and incomplete types
	Size() int64
	Align() int64
	Quals() Qualifiers
	// WithQuals returns a copy of the type carrying q
	WithQuals(q Qualifiers) Type
}

// Qualifiers are the C type qualifiers
type Qualifiers struct {
	Const    bool
	Volatile bool
	Restrict bool
}

// prefix renders the qualifiers as they appear before a type name
func (q Qualifiers) prefix() string {
	var sb strings.Builder
	if q.Const {
		sb.WriteString("const ")
	}
	if q.Volatile {
		sb.WriteString("volatile ")
	}
	if q.Restrict {
		sb.WriteString("restrict ")
	}
	return sb.String()
}

// Signedness represents signed/unsigned for integer types
type Signedness int

const (
	Signed Signedness = iota
	Unsigned
)

func (s Signedness) String() string {
	if s == Signed {
		return "signed"
	}
	return "unsigned"
}

// IntKind is the rank of an integer type
type IntKind int

const (
	IBool IntKind = iota
	IChar
	IShort
	IInt
	ILong
	ILongLong
)

func (k IntKind) String() string {
	names := []string{"_Bool", "char", "short", "int", "long", "long long"}
	if int(k) < len(names) {
		return names[k]
	}
	return "?"
}

// FloatKind represents the size of floating-point types
type FloatKind int

const (
	F32 FloatKind = iota
	F64
	F128 // long double
)

func (k FloatKind) String() string {
	switch k {
	case F32:
		return "float"
	case F64:
		return "double"
	}
	return "long double"
}

// Tvoid represents the void type
type Tvoid struct {
	Q Qualifiers
}

// Tint represents integer types
type Tint struct {
	Kind IntKind
	Sign Signedness
	Q    Qualifiers
}

// Tfloat represents floating-point types
type Tfloat struct {
	Kind FloatKind
	Q    Qualifiers
}

// Tpointer represents pointer types
type Tpointer struct {
	Elem Type
	Q    Qualifiers
}

// Tarray represents fixed size array types
type Tarray struct {
	Elem Type
	Len  int64
	Q    Qualifiers
}

// Tfunction represents function types
type Tfunction struct {
	Params []Type
	Return Type
	VarArg bool
	// KR marks an identifier-list declarator whose parameter types came
	// from a declaration list or defaulted to int
	KR bool
}

// Tstruct represents struct types. Qualified copies share the Record, so
// completing a forward-declared tag is visible through every copy.
type Tstruct struct {
	*Record
	Q Qualifiers
}

// Tunion represents union types
type Tunion struct {
	*Record
	Q Qualifiers
}

// Marker methods for Type interface
func (Tvoid) implType()     {}
func (Tint) implType()      {}
func (Tfloat) implType()    {}
func (Tpointer) implType()  {}
func (Tarray) implType()    {}
func (Tfunction) implType() {}
func (Tstruct) implType()   {}
func (Tunion) implType()    {}

// String methods for types
func (t Tvoid) String() string { return t.Q.prefix() + "void" }

func (t Tint) String() string {
	if t.Kind == IBool {
		return t.Q.prefix() + "_Bool"
	}
	sign := ""
	if t.Sign == Unsigned {
		sign = "unsigned "
	}
	return t.Q.prefix() + sign + t.Kind.String()
}

func (t Tfloat) String() string {
	return t.Q.prefix() + t.Kind.String()
}

func (t Tpointer) String() string {
	elem := "void"
	if t.Elem != nil {
		elem = t.Elem.String()
	}
	s := elem + " *"
	if q := strings.TrimSpace(t.Q.prefix()); q != "" {
		s += q
	}
	return s
}

func (t Tarray) String() string {
	if t.Elem == nil {
		return fmt.Sprintf("?[%d]", t.Len)
	}
	// int[2][3] prints in declaration order
	dims := fmt.Sprintf("[%d]", t.Len)
	elem := t.Elem
	for {
		inner, ok := elem.(Tarray)
		if !ok {
			break
		}
		dims += fmt.Sprintf("[%d]", inner.Len)
		elem = inner.Elem
	}
	return elem.String() + dims
}

func (t Tfunction) String() string {
	params := make([]string, len(t.Params))
	for i, p := range t.Params {
		params[i] = p.String()
	}
	if t.VarArg {
		params = append(params, "...")
	}
	ret := "int"
	if t.Return != nil {
		ret = t.Return.String()
	}
	return fmt.Sprintf("%s(%s)", ret, strings.Join(params, ", "))
}

func (t Tstruct) String() string {
	return t.Q.prefix() + "struct " + t.Record.name()
}

func (t Tunion) String() string {
	return t.Q.prefix() + "union " + t.Record.name()
}

// Sizes and alignments come from the target machine table

func (Tvoid) Size() int64  { return 0 }
func (Tvoid) Align() int64 { return 1 }

func (t Tint) Size() int64  { return X86_64.intSize(t.Kind) }
func (t Tint) Align() int64 { return X86_64.intSize(t.Kind) }

func (t Tfloat) Size() int64  { return X86_64.floatSize(t.Kind) }
func (t Tfloat) Align() int64 { return X86_64.floatSize(t.Kind) }

func (Tpointer) Size() int64  { return X86_64.Pointer }
func (Tpointer) Align() int64 { return X86_64.Pointer }

func (t Tarray) Size() int64 {
	if t.Elem == nil {
		return 0
	}
	return t.Len * t.Elem.Size()
}

func (t Tarray) Align() int64 {
	if t.Elem == nil {
		return 1
	}
	return t.Elem.Align()
}

func (Tfunction) Size() int64  { return 0 }
func (Tfunction) Align() int64 { return 1 }

func (t Tstruct) Size() int64  { return t.Record.size }
func (t Tstruct) Align() int64 { return t.Record.align }
func (t Tunion) Size() int64   { return t.Record.size }
func (t Tunion) Align() int64  { return t.Record.align }

// Qualifier accessors

func (t Tvoid) Quals() Qualifiers    { return t.Q }
func (t Tint) Quals() Qualifiers     { return t.Q }
func (t Tfloat) Quals() Qualifiers   { return t.Q }
func (t Tpointer) Quals() Qualifiers { return t.Q }
func (t Tarray) Quals() Qualifiers   { return t.Q }
func (Tfunction) Quals() Qualifiers  { return Qualifiers{} }
func (t Tstruct) Quals() Qualifiers  { return t.Q }
func (t Tunion) Quals() Qualifiers   { return t.Q }

func (t Tvoid) WithQuals(q Qualifiers) Type    { t.Q = q; return t }
func (t Tint) WithQuals(q Qualifiers) Type     { t.Q = q; return t }
func (t Tfloat) WithQuals(q Qualifiers) Type   { t.Q = q; return t }
func (t Tpointer) WithQuals(q Qualifiers) Type { t.Q = q; return t }
func (t Tarray) WithQuals(q Qualifiers) Type   { t.Q = q; return t }
func (t Tfunction) WithQuals(Qualifiers) Type  { return t }
func (t Tstruct) WithQuals(q Qualifiers) Type  { t.Q = q; return t }
func (t Tunion) WithQuals(q Qualifiers) Type   { t.Q = q; return t }

// Common type constructors

// Int returns a signed 32-bit int type
func Int() Type {
	return Tint{Kind: IInt, Sign: Signed}
}

// UInt returns an unsigned 32-bit int type
func UInt() Type {
	return Tint{Kind: IInt, Sign: Unsigned}
}

// Char returns a signed char type
func Char() Type {
	return Tint{Kind: IChar, Sign: Signed}
}

// UChar returns an unsigned char type
func UChar() Type {
	return Tint{Kind: IChar, Sign: Unsigned}
}

// Short returns a signed short type
func Short() Type {
	return Tint{Kind: IShort, Sign: Signed}
}

// Long returns a signed long type (64-bit)
func Long() Type {
	return Tint{Kind: ILong, Sign: Signed}
}

// LongLong returns a signed long long type
func LongLong() Type {
	return Tint{Kind: ILongLong, Sign: Signed}
}

// Bool returns the _Bool type
func Bool() Type {
	return Tint{Kind: IBool, Sign: Unsigned}
}

// Float returns a float (32-bit) type
func Float() Type {
	return Tfloat{Kind: F32}
}

// Double returns a double (64-bit) type
func Double() Type {
	return Tfloat{Kind: F64}
}

// LongDouble returns the 16-byte long double type
func LongDouble() Type {
	return Tfloat{Kind: F128}
}

// Void returns the void type
func Void() Type {
	return Tvoid{}
}

// Pointer returns a pointer to the given type
func Pointer(elem Type) Type {
	return Tpointer{Elem: elem}
}

// Array returns an array type
func Array(elem Type, n int64) Type {
	return Tarray{Elem: elem, Len: n}
}

// Function returns a prototyped function type
func Function(ret Type, params ...Type) Type {
	return Tfunction{Return: ret, Params: params}
}

// Classification helpers

// IsInteger reports whether t is an integer type
func IsInteger(t Type) bool {
	_, ok := t.(Tint)
	return ok
}

// IsFloat reports whether t is a floating type
func IsFloat(t Type) bool {
	_, ok := t.(Tfloat)
	return ok
}

// IsArithmetic reports whether t is an integer or floating type
func IsArithmetic(t Type) bool {
	return IsInteger(t) || IsFloat(t)
}

// IsScalar reports whether t is arithmetic or a pointer
func IsScalar(t Type) bool {
	_, ok := t.(Tpointer)
	return ok || IsArithmetic(t)
}

// IsRecord reports whether t is a struct or union
func IsRecord(t Type) bool {
	return RecordOf(t) != nil
}

// RecordOf returns the Record of a struct or union type, or nil
func RecordOf(t Type) *Record {
	switch t := t.(type) {
	case Tstruct:
		return t.Record
	case Tunion:
		return t.Record
	}
	return nil
}

// IsComplete reports whether objects of type t have a known size
func IsComplete(t Type) bool {
	switch t := t.(type) {
	case Tvoid, Tfunction:
		return false
	case Tstruct:
		return t.Record.complete
	case Tunion:
		return t.Record.complete
	case Tarray:
		return t.Elem != nil && IsComplete(t.Elem)
	}
	return true
}

// Unqualified strips the qualifiers from t
func Unqualified(t Type) Type {
	return t.WithQuals(Qualifiers{})
}

// Promote applies the integer promotions: ranks below int become int.
func Promote(t Type) Type {
	it, ok := t.(Tint)
	if !ok {
		return Unqualified(t)
	}
	if it.Kind < IInt {
		return Int()
	}
	return Tint{Kind: it.Kind, Sign: it.Sign}
}

// UsualArithmetic returns the common type of a binary arithmetic operation
func UsualArithmetic(a, b Type) Type {
	fa, aFloat := a.(Tfloat)
	fb, bFloat := b.(Tfloat)
	switch {
	case aFloat && bFloat:
		if fa.Kind >= fb.Kind {
			return Tfloat{Kind: fa.Kind}
		}
		return Tfloat{Kind: fb.Kind}
	case aFloat:
		return Tfloat{Kind: fa.Kind}
	case bFloat:
		return Tfloat{Kind: fb.Kind}
	}
	pa, aok := Promote(a).(Tint)
	pb, bok := Promote(b).(Tint)
	if !aok || !bok {
		return Int()
	}
	if pa.Size() != pb.Size() {
		if pa.Size() > pb.Size() {
			return pa
		}
		return pb
	}
	if pa.Sign == Unsigned || pb.Sign == Unsigned {
		if pa.Kind >= pb.Kind {
			return Tint{Kind: pa.Kind, Sign: Unsigned}
		}
		return Tint{Kind: pb.Kind, Sign: Unsigned}
	}
	if pa.Kind >= pb.Kind {
		return pa
	}
	return pb
}

// Equal checks if two types are identical, qualifiers included
func Equal(a, b Type) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Quals() != b.Quals() {
		return false
	}
	return sameShape(a, b)
}

func sameShape(a, b Type) bool {
	switch ta := a.(type) {
	case Tvoid:
		_, ok := b.(Tvoid)
		return ok
	case Tint:
		tb, ok := b.(Tint)
		return ok && ta.Kind == tb.Kind && ta.Sign == tb.Sign
	case Tfloat:
		tb, ok := b.(Tfloat)
		return ok && ta.Kind == tb.Kind
	case Tpointer:
		tb, ok := b.(Tpointer)
		return ok && Equal(ta.Elem, tb.Elem)
	case Tarray:
		tb, ok := b.(Tarray)
		return ok && ta.Len == tb.Len && Equal(ta.Elem, tb.Elem)
	case Tstruct:
		tb, ok := b.(Tstruct)
		return ok && sameRecord(ta.Record, tb.Record)
	case Tunion:
		tb, ok := b.(Tunion)
		return ok && sameRecord(ta.Record, tb.Record)
	case Tfunction:
		tb, ok := b.(Tfunction)
		if !ok || ta.VarArg != tb.VarArg || len(ta.Params) != len(tb.Params) {
			return false
		}
		if !Equal(ta.Return, tb.Return) {
			return false
		}
		for i, p := range ta.Params {
			if !Equal(p, tb.Params[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// sameRecord compares tagged records by tag and anonymous ones by identity
func sameRecord(a, b *Record) bool {
	if a == b {
		return true
	}
	return a.Tag != "" && a.Tag == b.Tag
}
