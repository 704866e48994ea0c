// Package llvm generates LLVM IR text for the constructs the parser
// visits, using the llir/llvm IR builder.
package llvm

import (
	"io"
	"math"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"

	"github.com/raymyers/kuicc/pkg/ctypes"
	"github.com/raymyers/kuicc/pkg/diag"
	"github.com/raymyers/kuicc/pkg/fold"
	"github.com/raymyers/kuicc/pkg/lexer"
	"github.com/raymyers/kuicc/pkg/visitor"
)

type valueKind int

const (
	vConst  valueKind = iota // arithmetic constant
	vReg                     // SSA register
	vObject                  // object in memory
)

// Value is the parser's handle on an LLVM value or object
type Value struct {
	Type ctypes.Type

	kind valueKind
	c    fold.Const
	// v is the register of a vReg, or the base address of an object which
	// lives off bytes past it
	v   value.Value
	off int64
	// global names the file-scope object a vObject belongs to
	global string
}

func (v Value) isConst() bool {
	return v.kind == vConst
}

func (v Value) at(offset int64, t ctypes.Type) Value {
	sub := v
	sub.Type = t
	sub.off += offset
	return sub
}

func constantValue(c fold.Const) Value {
	return Value{Type: c.Type, kind: vConst, c: c}
}

type global struct {
	def   *ir.Global
	typ   ctypes.Type
	image []byte // nil until an initializer writes it
}

// Generator builds one LLVM module per translation unit
type Generator struct {
	out     io.Writer
	mod     *ir.Module
	globals map[string]*global
	order   []string

	fn     *ir.Func // nil at file scope
	ret    ctypes.Type
	entry  *ir.Block
	block  *ir.Block
	slots  int
	params int
}

var _ visitor.Visitor[Value] = (*Generator)(nil)

// NewGenerator creates a Generator writing IR to out
func NewGenerator(out io.Writer) *Generator {
	return &Generator{out: out, mod: ir.NewModule(), globals: make(map[string]*global)}
}

// Module returns the module built so far
func (g *Generator) Module() *ir.Module {
	return g.mod
}

func i64(v int64) constant.Constant {
	return constant.NewInt(types.I64, v)
}

// addr returns a pointer to the object v
func (g *Generator) addr(v Value) value.Value {
	want := Type(v.Type)
	p := v.v
	if v.off != 0 {
		p = g.block.NewBitCast(p, bytePtr)
		p = g.block.NewGetElementPtr(types.I8, p, i64(v.off))
	}
	if pt, ok := p.Type().(*types.PointerType); ok && types.Equal(pt.ElemType, want) {
		return p
	}
	return g.block.NewBitCast(p, types.NewPointer(want))
}

// load returns v converted to t as an LLVM value
func (g *Generator) load(v Value, t ctypes.Type) (value.Value, error) {
	switch v.kind {
	case vConst:
		if fold.IsLongDouble(t) {
			return nil, diag.Unimplementedf("long double constants")
		}
		return scalar(v.c, t), nil
	case vObject:
		x := g.block.NewLoad(Type(v.Type), g.addr(v))
		if !ctypes.IsScalar(v.Type) {
			return x, nil
		}
		return g.convert(x, v.Type, t)
	}
	return g.convert(v.v, v.Type, t)
}

// convert converts the scalar x from type from to type to
func (g *Generator) convert(x value.Value, from, to ctypes.Type) (value.Value, error) {
	lf, lt := Type(from), Type(to)
	if fold.IsBool(to) && !fold.IsBool(from) {
		var cond value.Value
		switch {
		case ctypes.IsFloat(from):
			cond = g.block.NewFCmp(enum.FPredUNE, x, constant.NewFloat(lf.(*types.FloatType), 0))
		case isPointer(from):
			cond = g.block.NewICmp(enum.IPredNE, x, constant.NewNull(lf.(*types.PointerType)))
		default:
			cond = g.block.NewICmp(enum.IPredNE, x, constant.NewInt(lf.(*types.IntType), 0))
		}
		return g.block.NewZExt(cond, types.I8), nil
	}
	if types.Equal(lf, lt) {
		return x, nil
	}
	fromFloat, toFloat := ctypes.IsFloat(from), ctypes.IsFloat(to)
	switch {
	case fromFloat && toFloat:
		if size(lf) < size(lt) {
			return g.block.NewFPExt(x, lt), nil
		}
		return g.block.NewFPTrunc(x, lt), nil
	case fromFloat:
		if fold.Signed(to) {
			return g.block.NewFPToSI(x, lt), nil
		}
		return g.block.NewFPToUI(x, lt), nil
	case toFloat:
		if fold.Signed(from) {
			return g.block.NewSIToFP(x, lt), nil
		}
		return g.block.NewUIToFP(x, lt), nil
	case isPointer(from) && isPointer(to):
		return g.block.NewBitCast(x, lt), nil
	case isPointer(from):
		return g.block.NewPtrToInt(x, lt), nil
	case isPointer(to):
		return g.block.NewIntToPtr(x, lt), nil
	}
	switch fs, ts := size(lf), size(lt); {
	case fs > ts:
		return g.block.NewTrunc(x, lt), nil
	case fold.Signed(from):
		return g.block.NewSExt(x, lt), nil
	default:
		return g.block.NewZExt(x, lt), nil
	}
}

func isPointer(t ctypes.Type) bool {
	_, ok := ctypes.Unqualified(t).(ctypes.Tpointer)
	return ok
}

// size is the bit width of an integer or floating LLVM type
func size(t types.Type) int {
	switch t := t.(type) {
	case *types.IntType:
		return int(t.BitSize)
	case *types.FloatType:
		switch t.Kind {
		case types.FloatKindFloat:
			return 32
		case types.FloatKindDouble:
			return 64
		}
		return 80
	}
	return 64
}

// store converts v to the type of obj and writes it there. Records are
// copied as a whole.
func (g *Generator) store(obj, v Value) error {
	if !ctypes.IsScalar(obj.Type) {
		return diag.Unimplementedf("assignment of %s", obj.Type)
	}
	x, err := g.load(v, obj.Type)
	if err != nil {
		return err
	}
	g.block.NewStore(x, g.addr(obj))
	return nil
}

// initialize writes the constant v into the data image of a global
func (g *Generator) initialize(obj, v Value) (Value, error) {
	if !v.isConst() {
		return Value{}, fold.NotConstant()
	}
	gl, ok := g.globals[obj.global]
	if obj.kind != vObject || !ok {
		return Value{}, diag.Internalf("file-scope initializer for a non-global object")
	}
	if !ctypes.IsScalar(obj.Type) {
		return Value{}, diag.Unimplementedf("initialization of %s", obj.Type)
	}
	b, err := fold.Encode(v.c, obj.Type)
	if err != nil {
		return Value{}, err
	}
	if gl.image == nil {
		gl.image = make([]byte, gl.typ.Size())
	}
	copy(gl.image[obj.off:], b)
	return constantValue(fold.Convert(v.c, obj.Type)), nil
}

func (g *Generator) IntegerLiteral(v int64) (Value, error) {
	t := ctypes.Int()
	if v < math.MinInt32 || v > math.MaxInt32 {
		t = ctypes.Long()
	}
	return constantValue(fold.Int(v, t)), nil
}

func (g *Generator) FloatLiteral(v float64) (Value, error) {
	return constantValue(fold.Float(v, ctypes.Double())), nil
}

var (
	signedPreds = map[lexer.TokenType]enum.IPred{
		lexer.TokenLt: enum.IPredSLT,
		lexer.TokenGt: enum.IPredSGT,
		lexer.TokenLe: enum.IPredSLE,
		lexer.TokenGe: enum.IPredSGE,
		lexer.TokenEq: enum.IPredEQ,
		lexer.TokenNe: enum.IPredNE,
	}
	unsignedPreds = map[lexer.TokenType]enum.IPred{
		lexer.TokenLt: enum.IPredULT,
		lexer.TokenGt: enum.IPredUGT,
		lexer.TokenLe: enum.IPredULE,
		lexer.TokenGe: enum.IPredUGE,
		lexer.TokenEq: enum.IPredEQ,
		lexer.TokenNe: enum.IPredNE,
	}
	floatPreds = map[lexer.TokenType]enum.FPred{
		lexer.TokenLt: enum.FPredOLT,
		lexer.TokenGt: enum.FPredOGT,
		lexer.TokenLe: enum.FPredOLE,
		lexer.TokenGe: enum.FPredOGE,
		lexer.TokenEq: enum.FPredOEQ,
		lexer.TokenNe: enum.FPredUNE,
	}
)

func (g *Generator) Binop(op lexer.TokenType, left, right Value) (Value, error) {
	if op == lexer.TokenComma {
		return right, nil
	}
	if g.fn == nil {
		if !left.isConst() || !right.isConst() {
			return Value{}, fold.NotConstant()
		}
		c, err := fold.Binary(op, left.c, right.c)
		if err != nil {
			return Value{}, err
		}
		return constantValue(c), nil
	}

	opT, resT := fold.OperandTypes(op, left.Type, right.Type)
	x, err := g.load(left, opT)
	if err != nil {
		return Value{}, err
	}
	y, err := g.load(right, opT)
	if err != nil {
		return Value{}, err
	}
	var r value.Value
	if ctypes.IsFloat(opT) {
		r, err = g.floatBinop(op, x, y)
	} else {
		r, err = g.intBinop(op, x, y, fold.Signed(opT))
	}
	if err != nil {
		return Value{}, err
	}
	if fold.IsCompare(op) {
		r = g.block.NewZExt(r, types.I32)
	}
	return Value{Type: ctypes.Unqualified(resT), kind: vReg, v: r}, nil
}

func (g *Generator) intBinop(op lexer.TokenType, x, y value.Value, signed bool) (value.Value, error) {
	b := g.block
	switch op {
	case lexer.TokenPlus:
		return b.NewAdd(x, y), nil
	case lexer.TokenMinus:
		return b.NewSub(x, y), nil
	case lexer.TokenStar:
		return b.NewMul(x, y), nil
	case lexer.TokenSlash:
		if signed {
			return b.NewSDiv(x, y), nil
		}
		return b.NewUDiv(x, y), nil
	case lexer.TokenPercent:
		if signed {
			return b.NewSRem(x, y), nil
		}
		return b.NewURem(x, y), nil
	case lexer.TokenShl:
		return b.NewShl(x, y), nil
	case lexer.TokenShr:
		if signed {
			return b.NewAShr(x, y), nil
		}
		return b.NewLShr(x, y), nil
	case lexer.TokenAmpersand:
		return b.NewAnd(x, y), nil
	case lexer.TokenPipe:
		return b.NewOr(x, y), nil
	case lexer.TokenCaret:
		return b.NewXor(x, y), nil
	}
	preds := unsignedPreds
	if signed {
		preds = signedPreds
	}
	if pred, ok := preds[op]; ok {
		return b.NewICmp(pred, x, y), nil
	}
	return nil, diag.Internalf("binop %s not supported", op)
}

func (g *Generator) floatBinop(op lexer.TokenType, x, y value.Value) (value.Value, error) {
	b := g.block
	switch op {
	case lexer.TokenPlus:
		return b.NewFAdd(x, y), nil
	case lexer.TokenMinus:
		return b.NewFSub(x, y), nil
	case lexer.TokenStar:
		return b.NewFMul(x, y), nil
	case lexer.TokenSlash:
		return b.NewFDiv(x, y), nil
	}
	if pred, ok := floatPreds[op]; ok {
		return b.NewFCmp(pred, x, y), nil
	}
	return nil, diag.Internalf("operator %s on floating operands", op)
}

// Assign returns the destination object, whose contents are now the
// assigned value.
func (g *Generator) Assign(dest, src Value) (Value, error) {
	if dest.kind != vObject {
		return Value{}, diag.Internalf("assignment to a value that is not an object")
	}
	if g.fn == nil {
		return g.initialize(dest, src)
	}
	if err := g.store(dest, src); err != nil {
		return Value{}, err
	}
	return dest, nil
}

// alloca adds a slot to the run of allocas that opens the entry block
func (g *Generator) alloca(t ctypes.Type) value.Value {
	a := g.entry.NewAlloca(Type(t))
	a.Align = ir.Align(t.Align())
	insts := g.entry.Insts
	copy(insts[g.slots+1:], insts[g.slots:len(insts)-1])
	insts[g.slots] = a
	g.slots++
	return a
}

func (g *Generator) Declaration(t ctypes.Type, name string) (Value, error) {
	if g.fn != nil {
		return Value{Type: t, kind: vObject, v: g.alloca(t)}, nil
	}
	if _, dup := g.globals[name]; dup {
		return Value{}, diag.Internalf("global %s declared twice", name)
	}
	def := g.mod.NewGlobalDef(name, constant.NewZeroInitializer(Type(t)))
	def.Align = ir.Align(t.Align())
	g.globals[name] = &global{def: def, typ: t}
	g.order = append(g.order, name)
	return Value{Type: t, kind: vObject, v: def, global: name}, nil
}

func (g *Generator) FunctionStart(name string, fn ctypes.Tfunction) error {
	params := make([]*ir.Param, len(fn.Params))
	for i, p := range fn.Params {
		params[i] = ir.NewParam("", Type(p))
	}
	g.fn = g.mod.NewFunc(name, Type(fn.Return), params...)
	g.fn.Sig.Variadic = fn.VarArg
	g.ret = fn.Return
	g.entry = g.fn.NewBlock("entry")
	g.block = g.entry
	g.slots, g.params = 0, 0
	return nil
}

// FunctionParam names the next parameter and copies it into a slot
func (g *Generator) FunctionParam(t ctypes.Type, name string) (Value, error) {
	var p *ir.Param
	if g.params < len(g.fn.Params) {
		p = g.fn.Params[g.params]
	} else {
		// identifier-list definitions learn their parameters here
		p = ir.NewParam("", Type(t))
		g.fn.Params = append(g.fn.Params, p)
		g.fn.Sig.Params = append(g.fn.Sig.Params, p.Typ)
	}
	g.params++
	p.SetName(name)
	slot := Value{Type: t, kind: vObject, v: g.alloca(t)}
	g.block.NewStore(p, slot.v)
	return slot, nil
}

// zero returns the zero value of t
func zero(t ctypes.Type) value.Value {
	if ctypes.IsScalar(t) && !fold.IsLongDouble(t) {
		return scalar(fold.Int(0, ctypes.Int()), t)
	}
	return constant.NewZeroInitializer(Type(t))
}

func (g *Generator) terminate() {
	if g.block.Term != nil {
		return
	}
	if _, ok := ctypes.Unqualified(g.ret).(ctypes.Tvoid); ok {
		g.block.NewRet(nil)
		return
	}
	g.block.NewRet(zero(g.ret))
}

// FunctionEnd closes the body. Falling off the end returns zero, which
// is what main requires.
func (g *Generator) FunctionEnd() error {
	if n := len(g.fn.Blocks); n > 1 && len(g.block.Insts) == 0 && g.block.Term == nil {
		// nothing follows the last return
		g.fn.Blocks = g.fn.Blocks[:n-1]
	} else {
		g.terminate()
	}
	g.fn, g.entry, g.block = nil, nil, nil
	return nil
}

func (g *Generator) ArrayReference(array, index Value, lvalue bool) (Value, error) {
	arr, ok := ctypes.Unqualified(array.Type).(ctypes.Tarray)
	if !ok || array.kind != vObject {
		return Value{}, diag.Internalf("subscript of a value that is not an array object")
	}
	if g.fn == nil {
		return Value{}, fold.NotConstant()
	}
	i, err := g.load(index, ctypes.Long())
	if err != nil {
		return Value{}, err
	}
	p := g.block.NewGetElementPtr(Type(arr), g.addr(array), i64(0), i)
	elem := Value{Type: arr.Elem, kind: vObject, v: p}
	if lvalue || !ctypes.IsScalar(arr.Elem) {
		return elem, nil
	}
	x, err := g.load(elem, arr.Elem)
	if err != nil {
		return Value{}, err
	}
	return Value{Type: ctypes.Unqualified(arr.Elem), kind: vReg, v: x}, nil
}

func (g *Generator) StructReference(object Value, m *ctypes.Member) (Value, error) {
	if object.kind != vObject {
		return Value{}, diag.Internalf("member %s of a value that is not an object", m.Name)
	}
	return object.at(m.Offset, m.Type), nil
}

func (g *Generator) ZeroObject(object Value) error {
	if object.kind != vObject {
		return diag.Internalf("zeroing a value that is not an object")
	}
	if g.fn == nil {
		gl, ok := g.globals[object.global]
		if !ok {
			return diag.Internalf("file-scope initializer for a non-global object")
		}
		if gl.image == nil {
			gl.image = make([]byte, gl.typ.Size())
		}
		return nil
	}
	g.block.NewStore(constant.NewZeroInitializer(Type(object.Type)), g.addr(object))
	return nil
}

func (g *Generator) AssignOffset(object Value, offset int64, t ctypes.Type, val Value) error {
	if object.kind != vObject {
		return diag.Internalf("initializing a value that is not an object")
	}
	sub := object.at(offset, t)
	if g.fn == nil {
		_, err := g.initialize(sub, val)
		return err
	}
	return g.store(sub, val)
}

// Return ends the current block. Code after it goes to a fresh,
// unreachable block.
func (g *Generator) Return(v Value, ok bool) error {
	_, void := ctypes.Unqualified(g.ret).(ctypes.Tvoid)
	switch {
	case ok && !void:
		x, err := g.load(v, g.ret)
		if err != nil {
			return err
		}
		g.block.NewRet(x)
	case void:
		g.block.NewRet(nil)
	default:
		g.block.NewRet(zero(g.ret))
	}
	g.block = g.fn.NewBlock("")
	return nil
}

// Finalize sets the global initializers and writes the module
func (g *Generator) Finalize() error {
	for _, name := range g.order {
		gl := g.globals[name]
		if gl.image != nil {
			gl.def.Init = initializer(gl.image, gl.typ)
		}
	}
	if _, err := io.WriteString(g.out, g.mod.String()); err != nil {
		return diag.Systemf(err, "writing llvm output")
	}
	return nil
}
