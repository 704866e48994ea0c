// Package ast builds an expression tree for every full expression the
// parser visits and dumps the trees as indented text, with declarations
// and function brackets as headers between them.
package ast

import "github.com/raymyers/kuicc/pkg/ctypes"

// Expr is the interface for all expression nodes
type Expr interface {
	implExpr()
}

// BinaryOp represents binary operators
type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpLt
	OpLe
	OpGt
	OpGe
	OpEq
	OpNe
	OpBitAnd
	OpBitOr
	OpBitXor
	OpShl // <<
	OpShr // >>
	OpAssign
)

func (op BinaryOp) String() string {
	names := []string{"+", "-", "*", "/", "%", "<", "<=", ">", ">=", "==", "!=", "&", "|", "^", "<<", ">>", "="}
	if int(op) < len(names) {
		return names[op]
	}
	return "?"
}

// Label is the node heading used in dumps
func (op BinaryOp) Label() string {
	names := []string{"ADD_OP", "SUB_OP", "STAR_OP", "DIV_OP", "MOD_OP", "LT_OP", "LE_OP", "RT_OP", "GE_OP",
		"EQ_OP", "NE_OP", "AMPERSAND_OP", "BIT_OR_OP", "XOR_OP", "LEFT_OP", "RIGHT_OP", "ASSIGN_OP"}
	if int(op) < len(names) {
		return names[op]
	}
	return "?"
}

// Constant represents an integer constant
type Constant struct {
	Value int64
}

// FloatConstant represents a double constant
type FloatConstant struct {
	Value float64
}

// Variable is a reference to a declared object or parameter
type Variable struct {
	Name string
	Type ctypes.Type
}

// Binary represents a binary operation, assignment included
type Binary struct {
	Op          BinaryOp
	Left, Right Expr
}

// Index represents array[index]
type Index struct {
	Array, Index Expr
	Lvalue       bool
}

// Member represents expr.name
type Member struct {
	Expr   Expr
	Name   string
	Offset int64
}

func (*Constant) implExpr()      {}
func (*FloatConstant) implExpr() {}
func (*Variable) implExpr()      {}
func (*Binary) implExpr()        {}
func (*Index) implExpr()         {}
func (*Member) implExpr()        {}

// Item is one entry of the dump: a header line, an expression tree, or a
// header followed by the tree it introduces
type Item struct {
	Header string
	Expr   Expr
	Depth  int
}

// Program is the dump of a translation unit, in source order
type Program struct {
	Items []Item
}
