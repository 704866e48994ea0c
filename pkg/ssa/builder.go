package ssa

import (
	"bufio"
	"io"

	"github.com/raymyers/kuicc/pkg/ctypes"
	"github.com/raymyers/kuicc/pkg/diag"
	"github.com/raymyers/kuicc/pkg/lexer"
	"github.com/raymyers/kuicc/pkg/visitor"
)

// Value is the parser's handle on an ssa temporary
type Value struct {
	Temp Temp
	// Addr is set when Temp holds the address of an object of Type
	// rather than a loaded value
	Addr bool
	Type ctypes.Type
}

// Builder records instructions as the parser visits the program and
// prints them at Finalize.
type Builder struct {
	out  io.Writer
	prog Program
	last Temp

	fn     string // "" at file scope
	params int
}

var _ visitor.Visitor[Value] = (*Builder)(nil)

// NewBuilder creates a Builder writing to out
func NewBuilder(out io.Writer) *Builder {
	return &Builder{out: out}
}

// Program returns the instructions recorded so far
func (b *Builder) Program() *Program {
	return &b.prog
}

func (b *Builder) emit(i Instruction) {
	b.prog.Code = append(b.prog.Code, i)
}

func (b *Builder) temp() Temp {
	b.last++
	return b.last
}

// rvalue loads v if it names an object
func (b *Builder) rvalue(v Value) Temp {
	if !v.Addr {
		return v.Temp
	}
	d := b.temp()
	b.emit(Iload{Dest: d, Addr: v.Temp})
	return d
}

var binops = map[lexer.TokenType]Op{
	lexer.TokenPlus:      Oadd,
	lexer.TokenMinus:     Osub,
	lexer.TokenStar:      Omul,
	lexer.TokenSlash:     Odiv,
	lexer.TokenPercent:   Omod,
	lexer.TokenShl:       Oshl,
	lexer.TokenShr:       Oshr,
	lexer.TokenAmpersand: Oand,
	lexer.TokenCaret:     Oxor,
	lexer.TokenPipe:      Oor,
	lexer.TokenLt:        Olt,
	lexer.TokenGt:        Ogt,
	lexer.TokenLe:        Ole,
	lexer.TokenGe:        Oge,
	lexer.TokenEq:        Oeq,
	lexer.TokenNe:        One,
}

func (b *Builder) IntegerLiteral(v int64) (Value, error) {
	d := b.temp()
	b.emit(Iconst{Dest: d, Value: v})
	return Value{Temp: d}, nil
}

func (b *Builder) FloatLiteral(v float64) (Value, error) {
	d := b.temp()
	b.emit(Ifconst{Dest: d, Value: v})
	return Value{Temp: d}, nil
}

func (b *Builder) Binop(op lexer.TokenType, left, right Value) (Value, error) {
	if op == lexer.TokenComma {
		return right, nil
	}
	o, ok := binops[op]
	if !ok {
		return Value{}, diag.Internalf("binop %s not supported", op)
	}
	l, r := b.rvalue(left), b.rvalue(right)
	d := b.temp()
	b.emit(Ibinop{Dest: d, Op: o, Left: l, Right: r})
	return Value{Temp: d}, nil
}

func (b *Builder) Assign(dest, src Value) (Value, error) {
	if !dest.Addr {
		return Value{}, diag.Internalf("assignment to t%d, which is not an object", dest.Temp)
	}
	s := b.rvalue(src)
	b.emit(Istore{Src: s, Addr: dest.Temp})
	return Value{Temp: s}, nil
}

func (b *Builder) Declaration(t ctypes.Type, name string) (Value, error) {
	d := b.temp()
	if b.fn == "" {
		b.emit(Iglobal{Dest: d, Type: t, Name: name})
	} else {
		b.emit(Ialloca{Dest: d, Type: t, Name: name})
	}
	return Value{Temp: d, Addr: true, Type: t}, nil
}

func (b *Builder) FunctionStart(name string, _ ctypes.Tfunction) error {
	b.fn = name
	b.params = 0
	b.emit(Ifunction{Name: name})
	return nil
}

// FunctionParam binds the incoming value to a local so the parameter can
// be assigned like any other object.
func (b *Builder) FunctionParam(t ctypes.Type, name string) (Value, error) {
	p := b.temp()
	b.emit(Iparam{Dest: p, Index: b.params, Type: t, Name: name})
	b.params++
	a := b.temp()
	b.emit(Ialloca{Dest: a, Type: t, Name: name})
	b.emit(Istore{Src: p, Addr: a})
	return Value{Temp: a, Addr: true, Type: t}, nil
}

func (b *Builder) FunctionEnd() error {
	b.emit(Iend{Name: b.fn})
	b.fn = ""
	return nil
}

func (b *Builder) ArrayReference(array, index Value, lvalue bool) (Value, error) {
	arr, ok := array.Type.(ctypes.Tarray)
	if !ok || !array.Addr {
		return Value{}, diag.Internalf("index into t%d, which is not an array object", array.Temp)
	}
	i := b.rvalue(index)
	d := b.temp()
	b.emit(Iindex{Dest: d, Base: array.Temp, Index: i, Size: arr.Elem.Size()})
	elem := Value{Temp: d, Addr: true, Type: arr.Elem}
	if lvalue {
		return elem, nil
	}
	return Value{Temp: b.rvalue(elem)}, nil
}

func (b *Builder) StructReference(object Value, m *ctypes.Member) (Value, error) {
	if !object.Addr {
		return Value{}, diag.Internalf("member %s of t%d, which is not an object", m.Name, object.Temp)
	}
	d := b.temp()
	b.emit(Imember{Dest: d, Base: object.Temp, Offset: m.Offset, Name: m.Name})
	return Value{Temp: d, Addr: true, Type: m.Type}, nil
}

func (b *Builder) ZeroObject(object Value) error {
	b.emit(Izero{Addr: object.Temp, Size: object.Type.Size()})
	return nil
}

func (b *Builder) AssignOffset(object Value, offset int64, _ ctypes.Type, value Value) error {
	s := b.rvalue(value)
	b.emit(Istoreoff{Src: s, Addr: object.Temp, Offset: offset})
	return nil
}

func (b *Builder) Return(value Value, ok bool) error {
	if !ok {
		b.emit(Iret{})
		return nil
	}
	r := b.rvalue(value)
	b.emit(Iret{Arg: &r})
	return nil
}

// Finalize prints the program
func (b *Builder) Finalize() error {
	w := bufio.NewWriter(b.out)
	NewPrinter(w).PrintProgram(&b.prog)
	if err := w.Flush(); err != nil {
		return diag.Systemf(err, "writing ssa output")
	}
	return nil
}
