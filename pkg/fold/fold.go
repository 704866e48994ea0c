// Package fold evaluates constant expressions with C semantics for the
// x86-64 target and lays constants out as little-endian data images.
// Backends use it for file-scope initializers.
package fold

import (
	"encoding/binary"
	"math"

	"github.com/raymyers/kuicc/pkg/ctypes"
	"github.com/raymyers/kuicc/pkg/diag"
	"github.com/raymyers/kuicc/pkg/lexer"
)

// Const is an arithmetic constant of type Type
type Const struct {
	Type    ctypes.Type
	IsFloat bool
	I       int64
	F       float64
}

// Int returns the integer constant v of type t
func Int(v int64, t ctypes.Type) Const {
	return Const{Type: t, I: v}
}

// Float returns the floating constant v of type t
func Float(v float64, t ctypes.Type) Const {
	return Const{Type: t, IsFloat: true, F: v}
}

// NotConstant is the error for a file-scope initializer that needs code
func NotConstant() error {
	return diag.Errorf(diag.ParseSyntax, diag.Pos{}, "initializer element is not a compile-time constant")
}

// Signed reports whether t is a signed integer type
func Signed(t ctypes.Type) bool {
	it, ok := t.(ctypes.Tint)
	return ok && it.Sign == ctypes.Signed && it.Kind != ctypes.IBool
}

// IsBool reports whether t is _Bool
func IsBool(t ctypes.Type) bool {
	it, ok := t.(ctypes.Tint)
	return ok && it.Kind == ctypes.IBool
}

// IsFloat32 reports whether t is float
func IsFloat32(t ctypes.Type) bool {
	ft, ok := t.(ctypes.Tfloat)
	return ok && ft.Kind == ctypes.F32
}

// IsLongDouble reports whether t is long double
func IsLongDouble(t ctypes.Type) bool {
	ft, ok := t.(ctypes.Tfloat)
	return ok && ft.Kind == ctypes.F128
}

// Wrap reduces v to the range of the integer type t
func Wrap(v int64, t ctypes.Type) int64 {
	it, ok := t.(ctypes.Tint)
	if !ok {
		return v
	}
	if it.Kind == ctypes.IBool {
		if v != 0 {
			return 1
		}
		return 0
	}
	bits := uint(it.Size() * 8)
	if bits >= 64 {
		return v
	}
	if it.Sign == ctypes.Unsigned {
		return int64(uint64(v) & (1<<bits - 1))
	}
	shift := 64 - bits
	return v << shift >> shift
}

// Int64 returns c as an integer, truncating toward zero
func (c Const) Int64() int64 {
	if c.IsFloat {
		return int64(c.F)
	}
	return c.I
}

// Float64 returns c as a double
func (c Const) Float64() float64 {
	if c.IsFloat {
		return c.F
	}
	i := Wrap(c.I, ctypes.Unqualified(c.Type))
	if !Signed(c.Type) {
		return float64(uint64(i))
	}
	return float64(i)
}

// Convert converts c to type t
func Convert(c Const, t ctypes.Type) Const {
	t = ctypes.Unqualified(t)
	if ctypes.IsFloat(t) {
		f := c.Float64()
		if IsFloat32(t) {
			f = float64(float32(f))
		}
		return Float(f, t)
	}
	if IsBool(t) && c.IsFloat {
		if c.F != 0 {
			return Int(1, t)
		}
		return Int(0, t)
	}
	return Int(Wrap(c.Int64(), t), t)
}

// Bits returns the bit pattern of the floating value f stored as t
func Bits(f float64, t ctypes.Type) int64 {
	if IsFloat32(t) {
		return int64(math.Float32bits(float32(f)))
	}
	return int64(math.Float64bits(f))
}

// Encode returns the little-endian image of c stored as t
func Encode(c Const, t ctypes.Type) ([]byte, error) {
	if IsLongDouble(t) {
		return nil, diag.Unimplementedf("long double initializer")
	}
	c = Convert(c, t)
	bits := c.I
	if c.IsFloat {
		bits = Bits(c.F, t)
	}
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(bits))
	return buf[:t.Size()], nil
}

// Decode reads a scalar of type t back from a data image
func Decode(image []byte, t ctypes.Type) Const {
	buf := make([]byte, 8)
	copy(buf, image[:t.Size()])
	bits := binary.LittleEndian.Uint64(buf)
	switch {
	case IsFloat32(t):
		return Float(float64(math.Float32frombits(uint32(bits))), t)
	case ctypes.IsFloat(t):
		return Float(math.Float64frombits(bits), t)
	}
	return Int(Wrap(int64(bits), t), t)
}

// IsShift reports whether op is << or >>
func IsShift(op lexer.TokenType) bool {
	return op == lexer.TokenShl || op == lexer.TokenShr
}

// IsCompare reports whether op is a relational or equality operator
func IsCompare(op lexer.TokenType) bool {
	switch op {
	case lexer.TokenLt, lexer.TokenGt, lexer.TokenLe, lexer.TokenGe, lexer.TokenEq, lexer.TokenNe:
		return true
	}
	return false
}

// OperandTypes returns the type a binary operator computes in and the
// type of its result
func OperandTypes(op lexer.TokenType, l, r ctypes.Type) (opT, resT ctypes.Type) {
	switch {
	case IsShift(op):
		opT = ctypes.Promote(l)
		return opT, opT
	case IsCompare(op):
		return ctypes.UsualArithmetic(l, r), ctypes.Int()
	}
	opT = ctypes.UsualArithmetic(l, r)
	return opT, opT
}

func boolConst(b bool) Const {
	if b {
		return Int(1, ctypes.Int())
	}
	return Int(0, ctypes.Int())
}

// Binary evaluates l op r
func Binary(op lexer.TokenType, l, r Const) (Const, error) {
	opT, resT := OperandTypes(op, l.Type, r.Type)
	if ctypes.IsFloat(opT) {
		return floatBinary(op, l.Float64(), r.Float64(), opT, resT)
	}

	a := Convert(l, opT).I
	var b int64
	if IsShift(op) {
		b = r.Int64()
	} else {
		b = Convert(r, opT).I
	}
	unsigned := !Signed(opT)
	var v int64
	switch op {
	case lexer.TokenPlus:
		v = a + b
	case lexer.TokenMinus:
		v = a - b
	case lexer.TokenStar:
		v = a * b
	case lexer.TokenSlash, lexer.TokenPercent:
		if b == 0 {
			return Const{}, diag.Errorf(diag.ParseSyntax, diag.Pos{}, "division by zero in constant expression")
		}
		switch {
		case unsigned && op == lexer.TokenSlash:
			v = int64(uint64(a) / uint64(b))
		case unsigned:
			v = int64(uint64(a) % uint64(b))
		case op == lexer.TokenSlash:
			v = a / b
		default:
			v = a % b
		}
	case lexer.TokenShl, lexer.TokenShr:
		if bits := opT.Size() * 8; b < 0 || b >= bits {
			return Const{}, diag.Errorf(diag.ParseSyntax, diag.Pos{}, "shift count %d out of range in constant expression", b)
		}
		switch {
		case op == lexer.TokenShl:
			v = a << uint(b)
		case unsigned:
			v = int64(uint64(a) >> uint(b))
		default:
			v = a >> uint(b)
		}
	case lexer.TokenAmpersand:
		v = a & b
	case lexer.TokenPipe:
		v = a | b
	case lexer.TokenCaret:
		v = a ^ b
	case lexer.TokenEq:
		return boolConst(a == b), nil
	case lexer.TokenNe:
		return boolConst(a != b), nil
	case lexer.TokenLt, lexer.TokenGt, lexer.TokenLe, lexer.TokenGe:
		return boolConst(compare(op, a, b, unsigned)), nil
	default:
		return Const{}, diag.Internalf("binop %s not supported", op)
	}
	return Int(Wrap(v, resT), ctypes.Unqualified(resT)), nil
}

func floatBinary(op lexer.TokenType, a, b float64, opT, resT ctypes.Type) (Const, error) {
	var f float64
	switch op {
	case lexer.TokenPlus:
		f = a + b
	case lexer.TokenMinus:
		f = a - b
	case lexer.TokenStar:
		f = a * b
	case lexer.TokenSlash:
		f = a / b
	case lexer.TokenLt:
		return boolConst(a < b), nil
	case lexer.TokenGt:
		return boolConst(a > b), nil
	case lexer.TokenLe:
		return boolConst(a <= b), nil
	case lexer.TokenGe:
		return boolConst(a >= b), nil
	case lexer.TokenEq:
		return boolConst(a == b), nil
	case lexer.TokenNe:
		return boolConst(a != b), nil
	default:
		return Const{}, diag.Internalf("operator %s on %s", op, opT)
	}
	return Convert(Float(f, opT), resT), nil
}

func compare(op lexer.TokenType, a, b int64, unsigned bool) bool {
	if unsigned {
		ua, ub := uint64(a), uint64(b)
		switch op {
		case lexer.TokenLt:
			return ua < ub
		case lexer.TokenGt:
			return ua > ub
		case lexer.TokenLe:
			return ua <= ub
		}
		return ua >= ub
	}
	switch op {
	case lexer.TokenLt:
		return a < b
	case lexer.TokenGt:
		return a > b
	case lexer.TokenLe:
		return a <= b
	}
	return a >= b
}
