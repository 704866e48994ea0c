// Package ssa defines a linear three-address IR in which every temporary
// is assigned exactly once, and a Builder that produces it from the
// parser's visitor calls.
package ssa

import "github.com/raymyers/kuicc/pkg/ctypes"

// Temp is a numbered temporary. Numbering starts at 1.
type Temp int

// Op is a binary operator
type Op int

const (
	Oadd Op = iota
	Osub
	Omul
	Odiv
	Omod
	Oshl
	Oshr
	Oand
	Oxor
	Oor
	Olt
	Ogt
	Ole
	Oge
	Oeq
	One
)

func (o Op) String() string {
	names := []string{"add", "sub", "mul", "div", "mod", "shl", "shr", "and", "xor", "or",
		"lt", "gt", "le", "ge", "eq", "ne"}
	if int(o) < len(names) {
		return names[o]
	}
	return "?"
}

// Instruction is the interface for ssa instructions
type Instruction interface {
	implInstruction()
}

// Iconst loads an integer immediate
type Iconst struct {
	Dest  Temp
	Value int64
}

// Ifconst loads a double immediate
type Ifconst struct {
	Dest  Temp
	Value float64
}

// Ibinop computes dest = left op right
type Ibinop struct {
	Dest        Temp
	Op          Op
	Left, Right Temp
}

// Ialloca reserves a local object and yields its address
type Ialloca struct {
	Dest Temp
	Type ctypes.Type
	Name string
}

// Iglobal names a file-scope object and yields its address
type Iglobal struct {
	Dest Temp
	Type ctypes.Type
	Name string
}

// Iparam is the incoming value of parameter Index
type Iparam struct {
	Dest  Temp
	Index int
	Type  ctypes.Type
	Name  string
}

// Iload reads the object at Addr
type Iload struct {
	Dest, Addr Temp
}

// Iindex computes Base + Index*Size
type Iindex struct {
	Dest, Base, Index Temp
	Size              int64
}

// Imember computes the address of a struct or union member
type Imember struct {
	Dest, Base Temp
	Offset     int64
	Name       string
}

// Istore writes Src to the object at Addr
type Istore struct {
	Src, Addr Temp
}

// Istoreoff writes Src Offset bytes into the object at Addr
type Istoreoff struct {
	Src, Addr Temp
	Offset    int64
}

// Izero clears Size bytes at Addr
type Izero struct {
	Addr Temp
	Size int64
}

// Ifunction opens a function body
type Ifunction struct {
	Name string
}

// Iend closes a function body
type Iend struct {
	Name string
}

// Iret leaves the function, with a value unless Arg is nil
type Iret struct {
	Arg *Temp
}

func (Iconst) implInstruction()    {}
func (Ifconst) implInstruction()   {}
func (Ibinop) implInstruction()    {}
func (Ialloca) implInstruction()   {}
func (Iglobal) implInstruction()   {}
func (Iparam) implInstruction()    {}
func (Iload) implInstruction()     {}
func (Iindex) implInstruction()    {}
func (Imember) implInstruction()   {}
func (Istore) implInstruction()    {}
func (Istoreoff) implInstruction() {}
func (Izero) implInstruction()     {}
func (Ifunction) implInstruction() {}
func (Iend) implInstruction()      {}
func (Iret) implInstruction()      {}

// Program is the instruction log of one translation unit, in emission order
type Program struct {
	Code []Instruction
}
