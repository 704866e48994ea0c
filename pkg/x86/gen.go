package x86

import (
	"bufio"
	"io"
	"math"

	"github.com/raymyers/kuicc/pkg/ctypes"
	"github.com/raymyers/kuicc/pkg/diag"
	"github.com/raymyers/kuicc/pkg/fold"
	"github.com/raymyers/kuicc/pkg/lexer"
	"github.com/raymyers/kuicc/pkg/visitor"
)

type valueKind int

const (
	vConst  valueKind = iota // arithmetic constant
	vTemp                    // computed value in a frame slot
	vObject                  // object in memory
)

// Value is the parser's handle on an x86 value or object
type Value struct {
	Type ctypes.Type

	kind valueKind
	c    fold.Const

	// loc is the slot of a temp or the storage of an object. An indirect
	// object lives off bytes past the address held in loc.
	loc      Operand
	indirect bool
	off      int64
}

func (v Value) isConst() bool {
	return v.kind == vConst
}

// at returns the subobject of type t offset bytes into the object v
func (v Value) at(offset int64, t ctypes.Type) Value {
	sub := v
	sub.Type = t
	if v.indirect {
		sub.off += offset
		return sub
	}
	switch loc := v.loc.(type) {
	case Mem:
		loc.Disp += offset
		sub.loc = loc
	case Sym:
		loc.Offset += offset
		sub.loc = loc
	}
	return sub
}

type binop int

const (
	opAdd binop = iota
	opSub
	opMul
	opDiv
	opMod
	opShl
	opShr
	opAnd
	opOr
	opXor
	opLt
	opGt
	opLe
	opGe
	opEq
	opNe
)

func (o binop) isShift() bool { return o == opShl || o == opShr }

// cond returns the setcc condition of a comparison
func (o binop) cond(signed bool) string {
	names := []string{"l", "g", "le", "ge", "e", "ne"}
	if !signed {
		names = []string{"b", "a", "be", "ae", "e", "ne"}
	}
	return names[o-opLt]
}

var binops = map[lexer.TokenType]binop{
	lexer.TokenPlus:      opAdd,
	lexer.TokenMinus:     opSub,
	lexer.TokenStar:      opMul,
	lexer.TokenSlash:     opDiv,
	lexer.TokenPercent:   opMod,
	lexer.TokenShl:       opShl,
	lexer.TokenShr:       opShr,
	lexer.TokenAmpersand: opAnd,
	lexer.TokenPipe:      opOr,
	lexer.TokenCaret:     opXor,
	lexer.TokenLt:        opLt,
	lexer.TokenGt:        opGt,
	lexer.TokenLe:        opLe,
	lexer.TokenGe:        opGe,
	lexer.TokenEq:        opEq,
	lexer.TokenNe:        opNe,
}

// Generator emits x86-64 code for the constructs the parser visits.
// Every computed value gets its own frame slot; %rax, %rcx and %rdx carry
// operands between slots, %r11 holds addresses and %xmm0 floating values.
type Generator struct {
	out     io.Writer
	prog    Program
	globals map[string]int

	fn        *Function // nil at file scope
	ret       ctypes.Type
	frame     Frame
	intArgs   int
	floatArgs int
	stackArgs int64
}

var _ visitor.Visitor[Value] = (*Generator)(nil)

// NewGenerator creates a Generator writing assembly to out
func NewGenerator(out io.Writer) *Generator {
	return &Generator{out: out, globals: make(map[string]int)}
}

// Program returns the code generated so far
func (g *Generator) Program() *Program {
	return &g.prog
}

func (g *Generator) emit(inst Instruction) {
	g.fn.Append(inst)
}

func (g *Generator) global(name string) *GlobVar {
	return &g.prog.Globals[g.globals[name]]
}

// opWidth is the register width integer operations on t use
func opWidth(t ctypes.Type) int64 {
	if t.Size() > 4 {
		return 8
	}
	return 4
}

// mem returns the memory operand of an object, loading the address of an
// indirect object into %r11
func (g *Generator) mem(v Value) Operand {
	if !v.indirect {
		return v.loc
	}
	g.emit(Mov{Size: 8, Src: v.loc, Dst: Reg{R11, 8}})
	return Mem{Base: R11, Disp: v.off}
}

func (g *Generator) operand(v Value) Operand {
	if v.kind == vObject {
		return g.mem(v)
	}
	return v.loc
}

func (g *Generator) loadImm(v int64, dst Reg) {
	if dst.Size == 8 && (v < math.MinInt32 || v > math.MaxInt32) {
		g.emit(Movabs{Imm: v, Dst: dst})
		return
	}
	if dst.Size == 4 {
		v = int64(int32(v))
	}
	g.emit(Mov{Size: dst.Size, Src: Imm(v), Dst: dst})
}

// extend loads the integer v into dst, sign or zero extending by v's type
func (g *Generator) extend(v Value, dst Reg) {
	src := g.operand(v)
	s := v.Type.Size()
	switch {
	case s >= dst.Size:
		g.emit(Mov{Size: dst.Size, Src: src, Dst: dst})
	case fold.Signed(v.Type):
		g.emit(Movsx{From: s, To: dst.Size, Src: src, Dst: dst})
	case s == 4:
		// 32-bit moves clear the upper half
		g.emit(Mov{Size: 4, Src: src, Dst: Reg{dst.R, 4}})
	default:
		g.emit(Movzx{From: s, To: dst.Size, Src: src, Dst: dst})
	}
}

// loadInt loads v converted to the integer type t into r
func (g *Generator) loadInt(v Value, t ctypes.Type, r Register) error {
	dst := Reg{r, opWidth(t)}
	switch {
	case v.isConst():
		g.loadImm(fold.Convert(v.c, t).I, dst)
	case ctypes.IsFloat(v.Type):
		if fold.IsBool(t) {
			return diag.Unimplementedf("conversion of %s to %s", v.Type, t)
		}
		if err := g.loadFloat(v, v.Type, XMM0); err != nil {
			return err
		}
		if fold.IsFloat32(v.Type) {
			g.emit(Cvttss2si{Size: dst.Size, Src: Reg{XMM0, 8}, Dst: dst})
		} else {
			g.emit(Cvttsd2si{Size: dst.Size, Src: Reg{XMM0, 8}, Dst: dst})
		}
	case fold.IsBool(t) && !fold.IsBool(v.Type):
		w := opWidth(v.Type)
		g.extend(v, Reg{r, w})
		g.emit(Cmp{Size: w, Src: Imm(0), Dst: Reg{r, w}})
		g.emit(Setcc{Cond: "ne", Dst: Reg{r, 1}})
		g.emit(Movzx{From: 1, To: 4, Src: Reg{r, 1}, Dst: Reg{r, 4}})
	default:
		g.extend(v, dst)
	}
	return nil
}

// loadFloat loads v converted to the floating type t into the SSE
// register x. Integer constants become floating immediates.
func (g *Generator) loadFloat(v Value, t ctypes.Type, x Register) error {
	if fold.IsLongDouble(t) || fold.IsLongDouble(v.Type) {
		return diag.Unimplementedf("long double values")
	}
	dst := Reg{x, 8}
	switch {
	case v.isConst():
		c := fold.Convert(v.c, t)
		g.loadImm(fold.Bits(c.F, t), Reg{RAX, 8})
		g.emit(Mov{Size: 8, Src: Reg{RAX, 8}, Dst: dst})
	case ctypes.IsFloat(v.Type):
		src := g.operand(v)
		from32, to32 := fold.IsFloat32(v.Type), fold.IsFloat32(t)
		if from32 {
			g.emit(Movss{Src: src, Dst: dst})
		} else {
			g.emit(Movsd{Src: src, Dst: dst})
		}
		switch {
		case from32 && !to32:
			g.emit(Cvtss2sd{Src: dst, Dst: dst})
		case !from32 && to32:
			g.emit(Cvtsd2ss{Src: dst, Dst: dst})
		}
	default:
		if err := g.loadInt(v, ctypes.Long(), RAX); err != nil {
			return err
		}
		if fold.IsFloat32(t) {
			g.emit(Cvtsi2ss{Size: 8, Src: Reg{RAX, 8}, Dst: dst})
		} else {
			g.emit(Cvtsi2sd{Size: 8, Src: Reg{RAX, 8}, Dst: dst})
		}
	}
	return nil
}

// materialize loads v converted to t into %rax or %xmm0
func (g *Generator) materialize(v Value, t ctypes.Type) (Register, error) {
	if ctypes.IsFloat(t) {
		return XMM0, g.loadFloat(v, t, XMM0)
	}
	return RAX, g.loadInt(v, t, RAX)
}

// loadReg copies a scalar of type t from src into r
func (g *Generator) loadReg(src Operand, t ctypes.Type, r Register) {
	switch {
	case fold.IsFloat32(t):
		g.emit(Movss{Src: src, Dst: Reg{r, 8}})
	case ctypes.IsFloat(t):
		g.emit(Movsd{Src: src, Dst: Reg{r, 8}})
	default:
		g.emit(Mov{Size: t.Size(), Src: src, Dst: Reg{r, t.Size()}})
	}
}

// storeReg writes r, holding a scalar of type t, to dst
func (g *Generator) storeReg(r Register, t ctypes.Type, dst Operand) {
	switch {
	case fold.IsFloat32(t):
		g.emit(Movss{Src: Reg{r, 8}, Dst: dst})
	case ctypes.IsFloat(t):
		g.emit(Movsd{Src: Reg{r, 8}, Dst: dst})
	default:
		g.emit(Mov{Size: t.Size(), Src: Reg{r, t.Size()}, Dst: dst})
	}
}

func (g *Generator) slot(t ctypes.Type) Mem {
	return Mem{Base: RBP, Disp: g.frame.Alloc(t.Size(), t.Align())}
}

// temp spills r, holding a value of type t, to a fresh slot
func (g *Generator) temp(t ctypes.Type, r Register) Value {
	t = ctypes.Unqualified(t)
	s := g.slot(t)
	g.storeReg(r, t, s)
	return Value{Type: t, kind: vTemp, loc: s}
}

// store converts v to the type of obj and writes it there
func (g *Generator) store(obj, v Value) error {
	if !ctypes.IsScalar(obj.Type) {
		return diag.Unimplementedf("assignment of %s", obj.Type)
	}
	r, err := g.materialize(v, obj.Type)
	if err != nil {
		return err
	}
	g.storeReg(r, obj.Type, g.mem(obj))
	return nil
}

// initialize writes the constant v into the data image of a global
func (g *Generator) initialize(obj, v Value) (Value, error) {
	if !v.isConst() {
		return Value{}, fold.NotConstant()
	}
	sym, ok := obj.loc.(Sym)
	if !ok || obj.indirect {
		return Value{}, diag.Internalf("file-scope initializer for a non-global object")
	}
	if !ctypes.IsScalar(obj.Type) {
		return Value{}, diag.Unimplementedf("initialization of %s", obj.Type)
	}
	b, err := fold.Encode(v.c, obj.Type)
	if err != nil {
		return Value{}, err
	}
	gv := g.global(sym.Name)
	if gv.Init == nil {
		gv.Init = make([]byte, gv.Size)
	}
	copy(gv.Init[sym.Offset:], b)
	return constant(fold.Convert(v.c, obj.Type)), nil
}

func constant(c fold.Const) Value {
	return Value{Type: c.Type, kind: vConst, c: c}
}

func (g *Generator) epilogue() {
	g.emit(Leave{})
	g.emit(Ret{})
}

func (g *Generator) IntegerLiteral(v int64) (Value, error) {
	t := ctypes.Int()
	if v < math.MinInt32 || v > math.MaxInt32 {
		t = ctypes.Long()
	}
	return constant(fold.Int(v, t)), nil
}

func (g *Generator) FloatLiteral(v float64) (Value, error) {
	return constant(fold.Float(v, ctypes.Double())), nil
}

func (g *Generator) Binop(op lexer.TokenType, left, right Value) (Value, error) {
	if op == lexer.TokenComma {
		return right, nil
	}
	o, ok := binops[op]
	if !ok {
		return Value{}, diag.Internalf("binop %s not supported", op)
	}

	opT, resT := fold.OperandTypes(op, left.Type, right.Type)
	if g.fn == nil {
		if !left.isConst() || !right.isConst() {
			return Value{}, fold.NotConstant()
		}
		c, err := fold.Binary(op, left.c, right.c)
		if err != nil {
			return Value{}, err
		}
		return constant(c), nil
	}
	if ctypes.IsFloat(opT) {
		return Value{}, diag.Unimplementedf("floating-point operator %s", op)
	}

	rightT := opT
	if o.isShift() {
		rightT = ctypes.Promote(right.Type)
	}
	if err := g.loadInt(left, opT, RAX); err != nil {
		return Value{}, err
	}
	if err := g.loadInt(right, rightT, RCX); err != nil {
		return Value{}, err
	}

	w := opWidth(opT)
	acc, src := Reg{RAX, w}, Reg{RCX, w}
	signed := fold.Signed(opT)
	switch o {
	case opAdd:
		g.emit(Add{Size: w, Src: src, Dst: acc})
	case opSub:
		g.emit(Sub{Size: w, Src: src, Dst: acc})
	case opMul:
		g.emit(Imul{Size: w, Src: src, Dst: acc})
	case opAnd:
		g.emit(And{Size: w, Src: src, Dst: acc})
	case opOr:
		g.emit(Or{Size: w, Src: src, Dst: acc})
	case opXor:
		g.emit(Xor{Size: w, Src: src, Dst: acc})
	case opDiv, opMod:
		switch {
		case !signed:
			g.emit(Xor{Size: 4, Src: Reg{RDX, 4}, Dst: Reg{RDX, 4}})
			g.emit(Div{Size: w, Src: src})
		case w == 8:
			g.emit(Cqto{})
			g.emit(Idiv{Size: w, Src: src})
		default:
			g.emit(Cltd{})
			g.emit(Idiv{Size: w, Src: src})
		}
		if o == opMod {
			return g.temp(resT, RDX), nil
		}
	case opShl:
		g.emit(Shl{Size: w, Count: Reg{RCX, 1}, Dst: acc})
	case opShr:
		if signed {
			g.emit(Sar{Size: w, Count: Reg{RCX, 1}, Dst: acc})
		} else {
			g.emit(Shr{Size: w, Count: Reg{RCX, 1}, Dst: acc})
		}
	default:
		g.emit(Cmp{Size: w, Src: src, Dst: acc})
		g.emit(Setcc{Cond: o.cond(signed), Dst: Reg{RAX, 1}})
		g.emit(Movzx{From: 1, To: 4, Src: Reg{RAX, 1}, Dst: Reg{RAX, 4}})
	}
	return g.temp(resT, RAX), nil
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

func (g *Generator) Declaration(t ctypes.Type, name string) (Value, error) {
	if g.fn != nil {
		return Value{Type: t, kind: vObject, loc: g.slot(t)}, nil
	}
	if _, dup := g.globals[name]; dup {
		return Value{}, diag.Internalf("global %s declared twice", name)
	}
	g.globals[name] = len(g.prog.Globals)
	g.prog.Globals = append(g.prog.Globals, GlobVar{Name: name, Size: t.Size(), Align: int(t.Align())})
	return Value{Type: t, kind: vObject, loc: Sym{Name: name}}, nil
}

func (g *Generator) FunctionStart(name string, fn ctypes.Tfunction) error {
	if ctypes.IsRecord(fn.Return) || fold.IsLongDouble(fn.Return) {
		return diag.Unimplementedf("function %s returning %s", name, fn.Return)
	}
	g.fn = NewFunction(name)
	g.ret = fn.Return
	g.frame = Frame{}
	g.intArgs, g.floatArgs, g.stackArgs = 0, 0, 0
	return nil
}

// FunctionParam copies the next System V argument into a slot
func (g *Generator) FunctionParam(t ctypes.Type, name string) (Value, error) {
	if !ctypes.IsScalar(t) || fold.IsLongDouble(t) {
		return Value{}, diag.Unimplementedf("parameter %s of type %s", name, t)
	}
	s := g.slot(t)
	isFloat := ctypes.IsFloat(t)
	switch {
	case isFloat && g.floatArgs < len(FloatArgRegs):
		g.storeReg(FloatArgRegs[g.floatArgs], t, s)
		g.floatArgs++
	case !isFloat && g.intArgs < len(IntArgRegs):
		g.storeReg(IntArgRegs[g.intArgs], t, s)
		g.intArgs++
	default:
		src := Mem{Base: RBP, Disp: incomingArgOffset + g.stackArgs}
		g.stackArgs += 8
		r := RAX
		if isFloat {
			r = XMM0
		}
		g.loadReg(src, t, r)
		g.storeReg(r, t, s)
	}
	return Value{Type: t, kind: vObject, loc: s}, nil
}

// FunctionEnd closes the body and puts the prologue in front of it now
// that the frame size is known. Falling off the end of main returns 0.
func (g *Generator) FunctionEnd() error {
	f := g.fn
	if n := len(f.Code); n == 0 || !isRet(f.Code[n-1]) {
		if f.Name == "main" {
			g.emit(Mov{Size: 4, Src: Imm(0), Dst: Reg{RAX, 4}})
		}
		g.epilogue()
	}
	f.FrameSize = g.frame.Size()
	code := []Instruction{
		Push{Src: Reg{RBP, 8}},
		Mov{Size: 8, Src: Reg{RSP, 8}, Dst: Reg{RBP, 8}},
	}
	if f.FrameSize > 0 {
		code = append(code, Sub{Size: 8, Src: Imm(f.FrameSize), Dst: Reg{RSP, 8}})
	}
	f.Code = append(code, f.Code...)
	g.prog.Functions = append(g.prog.Functions, *f)
	g.fn = nil
	return nil
}

func isRet(inst Instruction) bool {
	_, ok := inst.(Ret)
	return ok
}

// ArrayReference computes the element address into a slot and yields an
// object addressed through it
func (g *Generator) ArrayReference(array, index Value, lvalue bool) (Value, error) {
	arr, ok := array.Type.(ctypes.Tarray)
	if !ok || array.kind != vObject {
		return Value{}, diag.Internalf("subscript of a value that is not an array object")
	}
	if g.fn == nil {
		return Value{}, fold.NotConstant()
	}

	rax, rcx := Reg{RAX, 8}, Reg{RCX, 8}
	if array.indirect {
		g.emit(Mov{Size: 8, Src: array.loc, Dst: rax})
		if array.off != 0 {
			g.emit(Add{Size: 8, Src: Imm(array.off), Dst: rax})
		}
	} else {
		g.emit(Lea{Src: array.loc, Dst: rax})
	}
	if err := g.loadInt(index, ctypes.Long(), RCX); err != nil {
		return Value{}, err
	}
	g.emit(Imul{Size: 8, Src: Imm(arr.Elem.Size()), Dst: rcx})
	g.emit(Add{Size: 8, Src: rcx, Dst: rax})
	addr := g.temp(ctypes.Pointer(arr.Elem), RAX)

	elem := Value{Type: arr.Elem, kind: vObject, loc: addr.loc, indirect: true}
	if lvalue {
		return elem, nil
	}
	r, err := g.materialize(elem, arr.Elem)
	if err != nil {
		return Value{}, err
	}
	return g.temp(arr.Elem, r), nil
}

func (g *Generator) StructReference(object Value, m *ctypes.Member) (Value, error) {
	if object.kind != vObject {
		return Value{}, diag.Internalf("member %s of a value that is not an object", m.Name)
	}
	return object.at(m.Offset, m.Type), nil
}

// zeroLoopBytes is the object size from which a local is cleared with
// rep stosq instead of one store per quadword
const zeroLoopBytes = 64

func (g *Generator) ZeroObject(object Value) error {
	if object.kind != vObject {
		return diag.Internalf("zeroing a value that is not an object")
	}
	if g.fn == nil {
		sym, ok := object.loc.(Sym)
		if !ok {
			return diag.Internalf("file-scope initializer for a non-global object")
		}
		gv := g.global(sym.Name)
		if gv.Init == nil {
			gv.Init = make([]byte, gv.Size)
		}
		return nil
	}
	size := object.Type.Size()
	done := int64(0)
	if size >= zeroLoopBytes {
		g.emit(Lea{Src: g.mem(object), Dst: Reg{RDI, 8}})
		g.emit(Mov{Size: 4, Src: Imm(0), Dst: Reg{RAX, 4}})
		g.emit(Mov{Size: 8, Src: Imm(size / 8), Dst: Reg{RCX, 8}})
		g.emit(RepStos{Size: 8})
		done = size &^ 7
	}
	for done < size {
		n := int64(8)
		for n > size-done {
			n /= 2
		}
		g.emit(Mov{Size: n, Src: Imm(0), Dst: g.mem(object.at(done, object.Type))})
		done += n
	}
	return nil
}

func (g *Generator) AssignOffset(object Value, offset int64, t ctypes.Type, value Value) error {
	if object.kind != vObject {
		return diag.Internalf("initializing a value that is not an object")
	}
	sub := object.at(offset, t)
	if g.fn == nil {
		_, err := g.initialize(sub, value)
		return err
	}
	return g.store(sub, value)
}

func (g *Generator) Return(value Value, ok bool) error {
	if ok {
		if _, err := g.materialize(value, g.ret); err != nil {
			return err
		}
	}
	g.epilogue()
	return nil
}

// Finalize prints the program
func (g *Generator) Finalize() error {
	w := bufio.NewWriter(g.out)
	NewPrinter(w).PrintProgram(&g.prog)
	if err := w.Flush(); err != nil {
		return diag.Systemf(err, "writing assembly output")
	}
	return nil
}
