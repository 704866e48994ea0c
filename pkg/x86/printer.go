package x86

import (
	"fmt"
	"io"
	"runtime"
)

// Printer outputs x86-64 assembly in GNU as AT&T syntax
type Printer struct {
	w        io.Writer
	isDarwin bool
}

// NewPrinter creates a new assembly printer
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, isDarwin: runtime.GOOS == "darwin"}
}

// PrintProgram outputs an entire program
func (p *Printer) PrintProgram(prog *Program) {
	if len(prog.Globals) > 0 {
		fmt.Fprintf(p.w, "\t.data\n")
		for _, g := range prog.Globals {
			p.printGlobal(g)
		}
		fmt.Fprintf(p.w, "\n")
	}

	fmt.Fprintf(p.w, "\t.text\n")
	for _, f := range prog.Functions {
		p.printFunction(f)
	}

	if !p.isDarwin {
		fmt.Fprintf(p.w, "\t.section\t.note.GNU-stack,\"\",@progbits\n")
	}
}

// log2 returns the base-2 logarithm of n (assumes n is a power of 2)
func log2(n int) int {
	r := 0
	for n > 1 {
		n >>= 1
		r++
	}
	return r
}

// symbolName returns the symbol name with platform-appropriate prefix
func (p *Printer) symbolName(name string) string {
	if p.isDarwin {
		return "_" + name
	}
	return name
}

func (p *Printer) printGlobal(g GlobVar) {
	name := p.symbolName(g.Name)
	fmt.Fprintf(p.w, "\t.globl\t%s\n", name)
	if g.Align > 1 {
		fmt.Fprintf(p.w, "\t.p2align\t%d\n", log2(g.Align))
	}
	fmt.Fprintf(p.w, "%s:\n", name)
	if len(g.Init) > 0 {
		for _, b := range g.Init {
			fmt.Fprintf(p.w, "\t.byte\t%d\n", b)
		}
	} else if g.Size > 0 {
		fmt.Fprintf(p.w, "\t.zero\t%d\n", g.Size)
	}
}

func (p *Printer) printFunction(f Function) {
	name := p.symbolName(f.Name)
	fmt.Fprintf(p.w, "\t.p2align\t4\n")
	fmt.Fprintf(p.w, "\t.globl\t%s\n", name)
	if !p.isDarwin {
		fmt.Fprintf(p.w, "\t.type\t%s, @function\n", name)
	}
	fmt.Fprintf(p.w, "%s:\n", name)

	for _, inst := range f.Code {
		p.printInstruction(inst)
	}

	if !p.isDarwin {
		fmt.Fprintf(p.w, "\t.size\t%s, .-%s\n", name, name)
	}
	fmt.Fprintf(p.w, "\n")
}

var regNames = map[Register][4]string{
	RAX: {"al", "ax", "eax", "rax"},
	RCX: {"cl", "cx", "ecx", "rcx"},
	RDX: {"dl", "dx", "edx", "rdx"},
	RSI: {"sil", "si", "esi", "rsi"},
	RDI: {"dil", "di", "edi", "rdi"},
	R8:  {"r8b", "r8w", "r8d", "r8"},
	R9:  {"r9b", "r9w", "r9d", "r9"},
	R11: {"r11b", "r11w", "r11d", "r11"},
	RBP: {"bpl", "bp", "ebp", "rbp"},
	RSP: {"spl", "sp", "esp", "rsp"},
}

// regName returns the register name for an access of size bytes
func regName(r Register, size int64) string {
	if r.IsFloat() {
		return fmt.Sprintf("xmm%d", r-XMM0)
	}
	names := regNames[r]
	switch size {
	case 1:
		return names[0]
	case 2:
		return names[1]
	case 4:
		return names[2]
	}
	return names[3]
}

// suffix returns the AT&T operand size suffix
func suffix(size int64) string {
	switch size {
	case 1:
		return "b"
	case 2:
		return "w"
	case 4:
		return "l"
	}
	return "q"
}

func (p *Printer) operand(o Operand) string {
	switch o := o.(type) {
	case Reg:
		return "%" + regName(o.R, o.Size)
	case Imm:
		return fmt.Sprintf("$%d", int64(o))
	case Mem:
		if o.Disp == 0 {
			return fmt.Sprintf("(%%%s)", regName(o.Base, 8))
		}
		return fmt.Sprintf("%d(%%%s)", o.Disp, regName(o.Base, 8))
	case Sym:
		name := p.symbolName(o.Name)
		switch {
		case o.Offset > 0:
			return fmt.Sprintf("%s+%d(%%rip)", name, o.Offset)
		case o.Offset < 0:
			return fmt.Sprintf("%s%d(%%rip)", name, o.Offset)
		}
		return name + "(%rip)"
	}
	return "?"
}

func (p *Printer) binary(mnemonic string, src, dst Operand) {
	fmt.Fprintf(p.w, "\t%s\t%s, %s\n", mnemonic, p.operand(src), p.operand(dst))
}

func (p *Printer) printInstruction(inst Instruction) {
	switch i := inst.(type) {
	// Data movement
	case Mov:
		p.binary("mov"+suffix(i.Size), i.Src, i.Dst)
	case Movabs:
		fmt.Fprintf(p.w, "\tmovabsq\t$%d, %s\n", i.Imm, p.operand(i.Dst))
	case Movsx:
		if i.From == 4 {
			p.binary("movslq", i.Src, i.Dst)
		} else {
			p.binary("movs"+suffix(i.From)+suffix(i.To), i.Src, i.Dst)
		}
	case Movzx:
		p.binary("movz"+suffix(i.From)+suffix(i.To), i.Src, i.Dst)
	case Lea:
		p.binary("leaq", i.Src, i.Dst)
	case Push:
		fmt.Fprintf(p.w, "\tpushq\t%s\n", p.operand(i.Src))

	// Integer arithmetic
	case Add:
		p.binary("add"+suffix(i.Size), i.Src, i.Dst)
	case Sub:
		p.binary("sub"+suffix(i.Size), i.Src, i.Dst)
	case Imul:
		p.binary("imul"+suffix(i.Size), i.Src, i.Dst)
	case And:
		p.binary("and"+suffix(i.Size), i.Src, i.Dst)
	case Or:
		p.binary("or"+suffix(i.Size), i.Src, i.Dst)
	case Xor:
		p.binary("xor"+suffix(i.Size), i.Src, i.Dst)
	case Shl:
		p.binary("shl"+suffix(i.Size), i.Count, i.Dst)
	case Sar:
		p.binary("sar"+suffix(i.Size), i.Count, i.Dst)
	case Shr:
		p.binary("shr"+suffix(i.Size), i.Count, i.Dst)
	case Idiv:
		fmt.Fprintf(p.w, "\tidiv%s\t%s\n", suffix(i.Size), p.operand(i.Src))
	case Div:
		fmt.Fprintf(p.w, "\tdiv%s\t%s\n", suffix(i.Size), p.operand(i.Src))
	case Cltd:
		fmt.Fprintf(p.w, "\tcltd\n")
	case Cqto:
		fmt.Fprintf(p.w, "\tcqto\n")
	case RepStos:
		fmt.Fprintf(p.w, "\trep stos%s\n", suffix(i.Size))
	case Cmp:
		p.binary("cmp"+suffix(i.Size), i.Src, i.Dst)
	case Setcc:
		fmt.Fprintf(p.w, "\tset%s\t%s\n", i.Cond, p.operand(i.Dst))

	// Floating point
	case Movsd:
		p.binary("movsd", i.Src, i.Dst)
	case Movss:
		p.binary("movss", i.Src, i.Dst)
	case Cvtsi2sd:
		p.binary("cvtsi2sd"+suffix(i.Size), i.Src, i.Dst)
	case Cvtsi2ss:
		p.binary("cvtsi2ss"+suffix(i.Size), i.Src, i.Dst)
	case Cvttsd2si:
		p.binary("cvttsd2si"+suffix(i.Size), i.Src, i.Dst)
	case Cvttss2si:
		p.binary("cvttss2si"+suffix(i.Size), i.Src, i.Dst)
	case Cvtss2sd:
		p.binary("cvtss2sd", i.Src, i.Dst)
	case Cvtsd2ss:
		p.binary("cvtsd2ss", i.Src, i.Dst)

	// Control
	case Leave:
		fmt.Fprintf(p.w, "\tleave\n")
	case Ret:
		fmt.Fprintf(p.w, "\tretq\n")

	default:
		fmt.Fprintf(p.w, "\t# unknown instruction %T\n", inst)
	}
}
