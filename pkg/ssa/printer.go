package ssa

import (
	"fmt"
	"io"
)

// Printer outputs an ssa program, one instruction per line. Instructions
// inside a function are indented.
type Printer struct {
	w      io.Writer
	inFunc bool
}

// NewPrinter creates a new ssa printer
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// PrintProgram prints every instruction of prog
func (p *Printer) PrintProgram(prog *Program) {
	for _, instr := range prog.Code {
		p.PrintInstruction(instr)
	}
}

// PrintInstruction prints one instruction and its newline
func (p *Printer) PrintInstruction(instr Instruction) {
	switch i := instr.(type) {
	case Ifunction:
		fmt.Fprintf(p.w, "function %s:\n", i.Name)
		p.inFunc = true
		return
	case Iend:
		fmt.Fprintf(p.w, "end %s\n", i.Name)
		p.inFunc = false
		return
	}

	if p.inFunc {
		fmt.Fprint(p.w, "  ")
	}
	switch i := instr.(type) {
	case Iconst:
		fmt.Fprintf(p.w, "t%d = load immediate I64 $%d", i.Dest, i.Value)
	case Ifconst:
		fmt.Fprintf(p.w, "t%d = load immediate F64 $%g", i.Dest, i.Value)
	case Ibinop:
		fmt.Fprintf(p.w, "t%d = %s t%d, t%d", i.Dest, i.Op, i.Left, i.Right)
	case Ialloca:
		fmt.Fprintf(p.w, "t%d = alloca %s ; %s", i.Dest, i.Type, i.Name)
	case Iglobal:
		fmt.Fprintf(p.w, "t%d = global %s ; %s", i.Dest, i.Type, i.Name)
	case Iparam:
		fmt.Fprintf(p.w, "t%d = param %d %s ; %s", i.Dest, i.Index, i.Type, i.Name)
	case Iload:
		fmt.Fprintf(p.w, "t%d = load t%d", i.Dest, i.Addr)
	case Iindex:
		fmt.Fprintf(p.w, "t%d = index t%d, t%d, %d", i.Dest, i.Base, i.Index, i.Size)
	case Imember:
		fmt.Fprintf(p.w, "t%d = member t%d, %d ; %s", i.Dest, i.Base, i.Offset, i.Name)
	case Istore:
		fmt.Fprintf(p.w, "store t%d, t%d", i.Src, i.Addr)
	case Istoreoff:
		fmt.Fprintf(p.w, "store t%d, t%d + %d", i.Src, i.Addr, i.Offset)
	case Izero:
		fmt.Fprintf(p.w, "zero t%d, %d", i.Addr, i.Size)
	case Iret:
		if i.Arg != nil {
			fmt.Fprintf(p.w, "ret t%d", *i.Arg)
		} else {
			fmt.Fprint(p.w, "ret")
		}
	default:
		fmt.Fprint(p.w, "???")
	}
	fmt.Fprintln(p.w)
}
