package ast

import (
	"bufio"
	"fmt"
	"io"

	"github.com/raymyers/kuicc/pkg/ctypes"
	"github.com/raymyers/kuicc/pkg/diag"
	"github.com/raymyers/kuicc/pkg/lexer"
	"github.com/raymyers/kuicc/pkg/visitor"
)

var binaryOps = map[lexer.TokenType]BinaryOp{
	lexer.TokenPlus:      OpAdd,
	lexer.TokenMinus:     OpSub,
	lexer.TokenStar:      OpMul,
	lexer.TokenSlash:     OpDiv,
	lexer.TokenPercent:   OpMod,
	lexer.TokenLt:        OpLt,
	lexer.TokenLe:        OpLe,
	lexer.TokenGt:        OpGt,
	lexer.TokenGe:        OpGe,
	lexer.TokenEq:        OpEq,
	lexer.TokenNe:        OpNe,
	lexer.TokenAmpersand: OpBitAnd,
	lexer.TokenPipe:      OpBitOr,
	lexer.TokenCaret:     OpBitXor,
	lexer.TokenShl:       OpShl,
	lexer.TokenShr:       OpShr,
}

// Dumper builds trees from visitor calls. A node that no later node
// consumes is the root of a full expression; roots are emitted at the
// next declaration, statement or function boundary.
type Dumper struct {
	out  io.Writer
	prog Program

	pending []Expr
	used    map[Expr]bool

	depth int
	fn    string
}

var _ visitor.Visitor[Expr] = (*Dumper)(nil)

// NewDumper creates a Dumper writing to out
func NewDumper(out io.Writer) *Dumper {
	return &Dumper{out: out, used: make(map[Expr]bool)}
}

// Program returns the items recorded so far
func (d *Dumper) Program() *Program {
	return &d.prog
}

func (d *Dumper) node(e Expr) Expr {
	d.pending = append(d.pending, e)
	return e
}

func (d *Dumper) use(es ...Expr) {
	for _, e := range es {
		d.used[e] = true
	}
}

// flush emits the unconsumed roots in creation order
func (d *Dumper) flush() {
	for _, e := range d.pending {
		if !d.used[e] {
			d.prog.Items = append(d.prog.Items, Item{Expr: e, Depth: d.depth})
		}
	}
	d.pending = d.pending[:0]
	clear(d.used)
}

func (d *Dumper) header(e Expr, format string, args ...any) {
	d.flush()
	d.prog.Items = append(d.prog.Items, Item{Header: fmt.Sprintf(format, args...), Expr: e, Depth: d.depth})
}

func (d *Dumper) IntegerLiteral(v int64) (Expr, error) {
	return d.node(&Constant{Value: v}), nil
}

func (d *Dumper) FloatLiteral(v float64) (Expr, error) {
	return d.node(&FloatConstant{Value: v}), nil
}

func (d *Dumper) Binop(op lexer.TokenType, left, right Expr) (Expr, error) {
	if op == lexer.TokenComma {
		return right, nil
	}
	bop, ok := binaryOps[op]
	if !ok {
		return nil, diag.Internalf("binop %s not supported", op)
	}
	d.use(left, right)
	return d.node(&Binary{Op: bop, Left: left, Right: right}), nil
}

func (d *Dumper) Assign(dest, src Expr) (Expr, error) {
	d.use(dest, src)
	return d.node(&Binary{Op: OpAssign, Left: dest, Right: src}), nil
}

func (d *Dumper) Declaration(t ctypes.Type, name string) (Expr, error) {
	d.header(nil, "decl %s: %s", name, t)
	return &Variable{Name: name, Type: t}, nil
}

func (d *Dumper) FunctionStart(name string, fn ctypes.Tfunction) error {
	d.header(nil, "function %s: %s", name, fn)
	d.depth++
	d.fn = name
	return nil
}

func (d *Dumper) FunctionParam(t ctypes.Type, name string) (Expr, error) {
	d.header(nil, "param %s: %s", name, t)
	return &Variable{Name: name, Type: t}, nil
}

func (d *Dumper) FunctionEnd() error {
	d.flush()
	d.depth--
	d.header(nil, "end %s", d.fn)
	d.fn = ""
	return nil
}

func (d *Dumper) ArrayReference(array, index Expr, lvalue bool) (Expr, error) {
	d.use(array, index)
	return d.node(&Index{Array: array, Index: index, Lvalue: lvalue}), nil
}

func (d *Dumper) StructReference(object Expr, m *ctypes.Member) (Expr, error) {
	d.use(object)
	return d.node(&Member{Expr: object, Name: m.Name, Offset: m.Offset}), nil
}

func (d *Dumper) ZeroObject(object Expr) error {
	d.header(nil, "zero %s", describe(object))
	return nil
}

func (d *Dumper) AssignOffset(object Expr, offset int64, t ctypes.Type, value Expr) error {
	d.use(value)
	d.header(value, "init %s+%d %s:", describe(object), offset, t)
	return nil
}

func (d *Dumper) Return(value Expr, ok bool) error {
	if !ok {
		d.header(nil, "return")
		return nil
	}
	d.use(value)
	d.header(value, "return:")
	return nil
}

// Finalize prints the dump
func (d *Dumper) Finalize() error {
	d.flush()
	w := bufio.NewWriter(d.out)
	NewPrinter(w).PrintProgram(&d.prog)
	if err := w.Flush(); err != nil {
		return diag.Systemf(err, "writing ast output")
	}
	return nil
}
