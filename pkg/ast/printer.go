package ast

import (
	"fmt"
	"io"
	"strings"
)

// Printer outputs expression trees in an indented, one-field-per-line format
type Printer struct {
	w      io.Writer
	indent int
}

// NewPrinter creates a new AST printer
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, indent: 0}
}

// PrintProgram prints every item of prog
func (p *Printer) PrintProgram(prog *Program) {
	for _, item := range prog.Items {
		p.PrintItem(item)
	}
}

// PrintItem prints a header and the tree under it
func (p *Printer) PrintItem(item Item) {
	p.indent = item.Depth
	if item.Header != "" {
		p.line("%s", item.Header)
		p.indent++
	}
	if item.Expr != nil {
		p.PrintExpr(item.Expr)
	}
}

func (p *Printer) writeIndent() {
	fmt.Fprint(p.w, strings.Repeat("  ", p.indent))
}

func (p *Printer) line(format string, args ...any) {
	p.writeIndent()
	fmt.Fprintf(p.w, format, args...)
	fmt.Fprintln(p.w)
}

// field prints "name:" and the subtree below it
func (p *Printer) field(name string, e Expr) {
	p.line("%s:", name)
	p.indent++
	p.PrintExpr(e)
	p.indent--
}

// PrintExpr prints e starting at the current indentation
func (p *Printer) PrintExpr(expr Expr) {
	switch e := expr.(type) {
	case *Constant:
		p.line("INTEGER_LITERAL:")
		p.indent++
		p.line("immediate I64: %d", e.Value)
		p.indent--
	case *FloatConstant:
		p.line("FLOAT_LITERAL:")
		p.indent++
		p.line("immediate F64: %g", e.Value)
		p.indent--
	case *Variable:
		p.line("IDENTIFIER: %s", e.Name)
	case *Binary:
		p.line("%s:", e.Op.Label())
		p.indent++
		p.field("left", e.Left)
		p.field("right", e.Right)
		p.indent--
	case *Index:
		p.line("ARRAY_REF:")
		p.indent++
		p.field("array", e.Array)
		p.field("index", e.Index)
		p.indent--
	case *Member:
		p.line("DOT_OP:")
		p.indent++
		p.field("object", e.Expr)
		p.line("member: %s @%d", e.Name, e.Offset)
		p.indent--
	default:
		p.line("/* unknown expression %T */", expr)
	}
}

// describe names the object e refers to, for headers
func describe(e Expr) string {
	switch e := e.(type) {
	case *Variable:
		return e.Name
	case *Member:
		return describe(e.Expr) + "." + e.Name
	case *Index:
		return describe(e.Array) + "[]"
	}
	return "?"
}
