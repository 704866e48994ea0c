// Package x86 defines the x86-64 assembly representation and a code
// generator that builds it from the parser's visitor calls. Output is GNU
// as AT&T syntax for the System V ABI.
package x86

// Register is a machine register. The printed name depends on the access
// width.
type Register int

const (
	RAX Register = iota
	RCX
	RDX
	RSI
	RDI
	R8
	R9
	R11
	RBP
	RSP
	XMM0
	XMM1
	XMM2
	XMM3
	XMM4
	XMM5
	XMM6
	XMM7
)

// IsFloat returns true for the SSE registers
func (r Register) IsFloat() bool {
	return r >= XMM0
}

// System V integer and floating argument registers, in order
var (
	IntArgRegs   = []Register{RDI, RSI, RDX, RCX, R8, R9}
	FloatArgRegs = []Register{XMM0, XMM1, XMM2, XMM3, XMM4, XMM5, XMM6, XMM7}
)

// --- Operands ---

// Operand is the interface for instruction operands
type Operand interface {
	implOperand()
}

// Reg is a register accessed at Size bytes
type Reg struct {
	R    Register
	Size int64
}

// Imm is an immediate
type Imm int64

// Mem is Disp(Base)
type Mem struct {
	Base Register
	Disp int64
}

// Sym is a rip-relative reference to a symbol plus a byte offset
type Sym struct {
	Name   string
	Offset int64
}

func (Reg) implOperand() {}
func (Imm) implOperand() {}
func (Mem) implOperand() {}
func (Sym) implOperand() {}

// --- Instruction Interface ---

// Instruction is the interface for x86-64 instructions
type Instruction interface {
	implInstruction()
}

// --- Data Movement ---

// Mov copies Size bytes
type Mov struct {
	Size     int64
	Src, Dst Operand
}

// Movabs loads a full 64-bit immediate
type Movabs struct {
	Imm int64
	Dst Reg
}

// Movsx sign-extends From bytes to To bytes
type Movsx struct {
	From, To int64
	Src, Dst Operand
}

// Movzx zero-extends From bytes to To bytes
type Movzx struct {
	From, To int64
	Src, Dst Operand
}

// Lea loads the address of Src
type Lea struct {
	Src Operand
	Dst Reg
}

// Push pushes a 64-bit register
type Push struct {
	Src Reg
}

// --- Integer Arithmetic ---

// Add - Dst += Src
type Add struct {
	Size     int64
	Src, Dst Operand
}

// Sub - Dst -= Src
type Sub struct {
	Size     int64
	Src, Dst Operand
}

// Imul - Dst *= Src
type Imul struct {
	Size     int64
	Src, Dst Operand
}

// And - Dst &= Src
type And struct {
	Size     int64
	Src, Dst Operand
}

// Or - Dst |= Src
type Or struct {
	Size     int64
	Src, Dst Operand
}

// Xor - Dst ^= Src
type Xor struct {
	Size     int64
	Src, Dst Operand
}

// Shl shifts Dst left by Count (an immediate or %cl)
type Shl struct {
	Size       int64
	Count, Dst Operand
}

// Sar is an arithmetic right shift
type Sar struct {
	Size       int64
	Count, Dst Operand
}

// Shr is a logical right shift
type Shr struct {
	Size       int64
	Count, Dst Operand
}

// Idiv divides the rdx:rax pair by Src, signed
type Idiv struct {
	Size int64
	Src  Operand
}

// Div divides the rdx:rax pair by Src, unsigned
type Div struct {
	Size int64
	Src  Operand
}

// Cltd sign-extends %eax into %edx
type Cltd struct{}

// Cqto sign-extends %rax into %rdx
type Cqto struct{}

// RepStos stores %rax (at Size bytes) to %rcx consecutive slots from %rdi
type RepStos struct {
	Size int64
}

// Cmp sets flags from Dst - Src
type Cmp struct {
	Size     int64
	Src, Dst Operand
}

// Setcc stores the condition Cond ("l", "ge", "b", ...) into a byte register
type Setcc struct {
	Cond string
	Dst  Reg
}

// --- Floating Point ---

// Movsd moves a double between memory and an SSE register
type Movsd struct {
	Src, Dst Operand
}

// Movss moves a float between memory and an SSE register
type Movss struct {
	Src, Dst Operand
}

// Cvtsi2sd converts a Size-byte integer to double
type Cvtsi2sd struct {
	Size int64
	Src  Operand
	Dst  Reg
}

// Cvtsi2ss converts a Size-byte integer to float
type Cvtsi2ss struct {
	Size int64
	Src  Operand
	Dst  Reg
}

// Cvttsd2si truncates a double to a Size-byte integer
type Cvttsd2si struct {
	Size int64
	Src  Operand
	Dst  Reg
}

// Cvttss2si truncates a float to a Size-byte integer
type Cvttss2si struct {
	Size int64
	Src  Operand
	Dst  Reg
}

// Cvtss2sd widens float to double
type Cvtss2sd struct {
	Src Operand
	Dst Reg
}

// Cvtsd2ss narrows double to float
type Cvtsd2ss struct {
	Src Operand
	Dst Reg
}

// --- Control ---

// Leave tears down the frame
type Leave struct{}

// Ret returns to the caller
type Ret struct{}

// Marker methods for Instruction interface
func (Mov) implInstruction()       {}
func (Movabs) implInstruction()    {}
func (Movsx) implInstruction()     {}
func (Movzx) implInstruction()     {}
func (Lea) implInstruction()       {}
func (Push) implInstruction()      {}
func (Add) implInstruction()       {}
func (Sub) implInstruction()       {}
func (Imul) implInstruction()      {}
func (And) implInstruction()       {}
func (Or) implInstruction()        {}
func (Xor) implInstruction()       {}
func (Shl) implInstruction()       {}
func (Sar) implInstruction()       {}
func (Shr) implInstruction()       {}
func (Idiv) implInstruction()      {}
func (Div) implInstruction()       {}
func (Cltd) implInstruction()      {}
func (Cqto) implInstruction()      {}
func (RepStos) implInstruction()   {}
func (Cmp) implInstruction()       {}
func (Setcc) implInstruction()     {}
func (Movsd) implInstruction()     {}
func (Movss) implInstruction()     {}
func (Cvtsi2sd) implInstruction()  {}
func (Cvtsi2ss) implInstruction()  {}
func (Cvttsd2si) implInstruction() {}
func (Cvttss2si) implInstruction() {}
func (Cvtss2sd) implInstruction()  {}
func (Cvtsd2ss) implInstruction()  {}
func (Leave) implInstruction()     {}
func (Ret) implInstruction()       {}

// --- Function and Program ---

// Function represents an assembly function
type Function struct {
	Name      string
	Code      []Instruction
	FrameSize int64
}

// GlobVar represents a global variable. A nil Init is zero-filled.
type GlobVar struct {
	Name  string
	Size  int64
	Init  []byte
	Align int
}

// Program represents a complete assembly program
type Program struct {
	Globals   []GlobVar
	Functions []Function
}

// NewFunction creates a new assembly function
func NewFunction(name string) *Function {
	return &Function{
		Name: name,
		Code: make([]Instruction, 0),
	}
}

// Append adds an instruction to the function
func (f *Function) Append(inst Instruction) {
	f.Code = append(f.Code, inst)
}
