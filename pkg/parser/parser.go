// Package parser implements a recursive descent parser for a subset of C.
//
// The parser does not build a syntax tree. It resolves declarations and
// types as it goes and calls a visitor.Visitor for every construct in
// source order, so the backend sees one linear stream of operations.
package parser

import (
	"fmt"

	"github.com/raymyers/kuicc/pkg/ctypes"
	"github.com/raymyers/kuicc/pkg/diag"
	"github.com/raymyers/kuicc/pkg/lexer"
	"github.com/raymyers/kuicc/pkg/symtab"
	"github.com/raymyers/kuicc/pkg/visitor"
)

// binding is what an ordinary identifier resolves to
type binding[H any] struct {
	typ ctypes.Type
	h   H
	// defined is set once a function has a body
	defined bool
}

// function is the definition currently being parsed
type function struct {
	name string
	typ  ctypes.Tfunction
}

// Parser parses a token stream and drives a backend of handle type H
type Parser[H any] struct {
	toks      []lexer.Token
	pos       int
	canBackup bool

	v     visitor.Visitor[H]
	scope *symtab.Namespaces[binding[H], ctypes.Type]
	fn    *function
}

// bailout carries the first error up to ParseTranslationUnit
type bailout struct {
	err error
}

// New creates a Parser over toks, which should end with an EOF token
func New[H any](toks []lexer.Token, v visitor.Visitor[H]) *Parser[H] {
	if len(toks) == 0 || toks[len(toks)-1].Type != lexer.TokenEOF {
		var eof lexer.Token
		if len(toks) > 0 {
			last := toks[len(toks)-1].Span
			eof.Span = lexer.Span{File: last.File, Line: last.EndLine, Column: last.EndColumn,
				EndLine: last.EndLine, EndColumn: last.EndColumn}
		}
		eof.Type = lexer.TokenEOF
		toks = append(toks, eof)
	}
	return &Parser[H]{
		toks:  toks,
		v:     v,
		scope: symtab.New[binding[H], ctypes.Type](),
	}
}

// ParseTranslationUnit parses every external declaration up to EOF. It
// stops at the first error, which is always a *diag.Error.
func (p *Parser[H]) ParseTranslationUnit() (err error) {
	defer func() {
		if r := recover(); r != nil {
			b, ok := r.(bailout)
			if !ok {
				panic(r)
			}
			err = b.err
		}
	}()
	for p.peek().Type != lexer.TokenEOF {
		p.externalDeclaration()
	}
	return nil
}

// Token cursor

func (p *Parser[H]) peek() lexer.Token {
	return p.toks[p.pos]
}

// peekN looks n tokens past the current one, stopping at EOF
func (p *Parser[H]) peekN(n int) lexer.Token {
	if i := p.pos + n; i < len(p.toks) {
		return p.toks[i]
	}
	return p.toks[len(p.toks)-1]
}

func (p *Parser[H]) next() lexer.Token {
	tok := p.toks[p.pos]
	if tok.Type == lexer.TokenEOF {
		p.errorf(tok, "unexpected end of file")
	}
	p.pos++
	p.canBackup = true
	return tok
}

// backup steps back over the token returned by the last next. Only one
// token of pushback is supported.
func (p *Parser[H]) backup() {
	if !p.canBackup {
		p.fail(diag.Internalf("parser backed up twice"))
	}
	p.pos--
	p.canBackup = false
}

func (p *Parser[H]) expect(t lexer.TokenType) lexer.Token {
	if tok := p.peek(); tok.Type != t {
		p.errorf(tok, "expected %s, got %s", describe(t), describeToken(tok))
	}
	return p.next()
}

// Errors

func (p *Parser[H]) fail(err error) {
	panic(bailout{err: err})
}

func (p *Parser[H]) errorf(tok lexer.Token, format string, args ...any) {
	p.fail(diag.Errorf(diag.ParseSyntax, tok.Span.Pos(), format, args...))
}

func (p *Parser[H]) unimplemented(tok lexer.Token, format string, args ...any) {
	p.fail(diag.At(diag.Unimplementedf(format, args...), tok.Span.Pos()))
}

// check aborts with a visitor error positioned at tok
func (p *Parser[H]) check(tok lexer.Token, err error) {
	if err != nil {
		p.fail(diag.At(err, tok.Span.Pos()))
	}
}

func describe(t lexer.TokenType) string {
	if t.IsPunct() || t.IsKeyword() {
		return "'" + t.String() + "'"
	}
	return t.String()
}

func describeToken(tok lexer.Token) string {
	switch tok.Type {
	case lexer.TokenIdent:
		return fmt.Sprintf("identifier %s", tok.Literal)
	case lexer.TokenInt, lexer.TokenFloat:
		return fmt.Sprintf("number %s", tok.Literal)
	case lexer.TokenString:
		return "string literal"
	}
	return describe(tok.Type)
}

// External declarations

// externalDeclaration parses a function definition or a file-scope
// declaration. Both start with specifiers and a declarator; a following
// '{' (or a K&R parameter declaration list) makes it a definition.
func (p *Parser[H]) externalDeclaration() {
	specs := p.declarationSpecifiers()
	if p.peek().Type == lexer.TokenSemicolon {
		p.tagOnlyDeclaration(specs)
		return
	}
	d := p.declarator()
	if fd := d.function(); fd != nil {
		kr := fd.kind == dKRFunction && len(fd.idents) > 0
		if p.peek().Type == lexer.TokenLBrace || (kr && p.isDeclarationStart(p.peek())) {
			p.functionDefinition(specs, d, fd)
			return
		}
	}
	p.initDeclaratorList(specs, d)
}

func (p *Parser[H]) functionDefinition(specs declSpecs, d, fd *declarator) {
	leaf := d.leaf()
	if leaf.name == "" {
		p.errorf(leaf.tok, "function definition must have a name")
	}
	if specs.storage == scTypedef {
		p.errorf(specs.tok, "function definition declared typedef")
	}
	if fd.kind == dKRFunction && len(fd.idents) > 0 {
		fd.krTypes = p.krDeclarations(fd)
	}
	if fd.varArg {
		p.unimplemented(fd.tok, "variadic function definition %s", leaf.name)
	}
	fn := p.typeOf(specs.typ, d).(ctypes.Tfunction)
	if _, isVoid := fn.Return.(ctypes.Tvoid); !isVoid && !ctypes.IsComplete(fn.Return) {
		p.errorf(leaf.tok, "function %s has incomplete result type %s", leaf.name, fn.Return)
	}

	names := fd.paramNames()
	for i, t := range fn.Params {
		if names[i].name == "" {
			p.errorf(names[i].tok, "parameter name omitted in definition of %s", leaf.name)
		}
		if !ctypes.IsComplete(t) {
			p.errorf(names[i].tok, "parameter %s has incomplete type %s", names[i].name, t)
		}
	}

	p.declareFunction(leaf, fn, true)
	p.fn = &function{name: leaf.name, typ: fn}
	p.check(leaf.tok, p.v.FunctionStart(leaf.name, fn))

	p.scope.Push()
	for i, t := range fn.Params {
		name := names[i]
		if _, dup := p.scope.Values.LookupLocal(name.id); dup {
			p.errorf(name.tok, "redefinition of parameter %s", name.name)
		}
		h, err := p.v.FunctionParam(t, name.name)
		p.check(name.tok, err)
		p.check(name.tok, p.scope.Values.Insert(name.id, binding[H]{typ: t, h: h}))
	}
	// the body shares the parameter scope
	p.expect(lexer.TokenLBrace)
	end := p.blockItems()
	p.scope.Pop()

	p.check(end, p.v.FunctionEnd())
	p.fn = nil
}

// krDeclarations parses the parameter declarations between a K&R
// identifier list and the function body. Parameters that are never
// declared default to int.
func (p *Parser[H]) krDeclarations(fd *declarator) []ctypes.Type {
	types := make([]ctypes.Type, len(fd.idents))
	for p.peek().Type != lexer.TokenLBrace {
		specs := p.declarationSpecifiers()
		if specs.storage != scNone && specs.storage != scRegister {
			p.errorf(specs.tok, "invalid storage class for parameter")
		}
		for {
			d := p.declarator()
			leaf := d.leaf()
			i := fd.identIndex(leaf.id)
			if leaf.name == "" || i < 0 {
				p.errorf(leaf.tok, "declaration for parameter %s but no such parameter", leaf.name)
			}
			if types[i] != nil {
				p.errorf(leaf.tok, "redefinition of parameter %s", leaf.name)
			}
			types[i] = adjustParam(p.typeOf(specs.typ, d))
			if p.peek().Type != lexer.TokenComma {
				break
			}
			p.next()
		}
		p.expect(lexer.TokenSemicolon)
	}
	for i := range types {
		if types[i] == nil {
			types[i] = ctypes.Int()
		}
	}
	return types
}

// declareFunction binds a function name, reconciling it with an earlier
// prototype in the same scope.
func (p *Parser[H]) declareFunction(leaf *declarator, fn ctypes.Tfunction, define bool) {
	if _, ok := p.scope.Typedefs.LookupLocal(leaf.id); ok {
		p.errorf(leaf.tok, "redefinition of %s as a different kind of symbol", leaf.name)
	}
	prior, ok := p.scope.Values.LookupLocal(leaf.id)
	if !ok {
		p.check(leaf.tok, p.scope.Values.Insert(leaf.id, binding[H]{typ: fn, defined: define}))
		return
	}
	pf, isFn := prior.typ.(ctypes.Tfunction)
	if !isFn || !compatibleFunctions(pf, fn) {
		p.errorf(leaf.tok, "conflicting types for %s", leaf.name)
	}
	if define && prior.defined {
		p.errorf(leaf.tok, "redefinition of %s", leaf.name)
	}
	// keep whichever declaration carries parameter types
	if !define && len(fn.Params) == 0 && fn.KR {
		fn = pf
	}
	p.scope.Values.Replace(leaf.id, binding[H]{typ: fn, defined: define || prior.defined})
}

func compatibleFunctions(a, b ctypes.Tfunction) bool {
	if !ctypes.Equal(a.Return, b.Return) {
		return false
	}
	if (a.KR && len(a.Params) == 0) || (b.KR && len(b.Params) == 0) {
		return true
	}
	if a.VarArg != b.VarArg || len(a.Params) != len(b.Params) {
		return false
	}
	for i := range a.Params {
		if !ctypes.Equal(ctypes.Unqualified(a.Params[i]), ctypes.Unqualified(b.Params[i])) {
			return false
		}
	}
	return true
}

// Declarations

// declaration parses a block-scope declaration
func (p *Parser[H]) declaration() {
	specs := p.declarationSpecifiers()
	if p.peek().Type == lexer.TokenSemicolon {
		p.tagOnlyDeclaration(specs)
		return
	}
	p.initDeclaratorList(specs, p.declarator())
}

// tagOnlyDeclaration handles a declaration without declarators, which
// is only meaningful when it declares a struct or union tag.
func (p *Parser[H]) tagOnlyDeclaration(specs declSpecs) {
	semi := p.next()
	if rec := ctypes.RecordOf(specs.typ); rec == nil || rec.Tag == "" {
		p.errorf(semi, "declaration does not declare anything")
	}
}

func (p *Parser[H]) initDeclaratorList(specs declSpecs, d *declarator) {
	for {
		p.declare(specs, d)
		if p.peek().Type != lexer.TokenComma {
			break
		}
		p.next()
		d = p.declarator()
	}
	p.expect(lexer.TokenSemicolon)
}

// declare binds one declarator and parses its initializer, if any
func (p *Parser[H]) declare(specs declSpecs, d *declarator) {
	leaf := d.leaf()
	if leaf.name == "" {
		p.errorf(leaf.tok, "declaration must have an identifier")
	}
	t := p.typeOf(specs.typ, d)

	if specs.storage == scTypedef {
		if p.peek().Type == lexer.TokenAssign {
			p.errorf(p.peek(), "typedef %s is initialized", leaf.name)
		}
		p.declareTypedef(leaf, t)
		return
	}
	if fn, ok := t.(ctypes.Tfunction); ok {
		if p.peek().Type == lexer.TokenAssign {
			p.errorf(p.peek(), "illegal initializer for function %s", leaf.name)
		}
		p.declareFunction(leaf, fn, false)
		return
	}
	if !ctypes.IsComplete(t) {
		p.errorf(leaf.tok, "variable %s has incomplete type %s", leaf.name, t)
	}
	if _, ok := p.scope.Typedefs.LookupLocal(leaf.id); ok {
		p.errorf(leaf.tok, "redefinition of %s as a different kind of symbol", leaf.name)
	}
	if _, ok := p.scope.Values.LookupLocal(leaf.id); ok {
		p.errorf(leaf.tok, "redefinition of %s", leaf.name)
	}

	h, err := p.v.Declaration(t, leaf.name)
	p.check(leaf.tok, err)
	p.check(leaf.tok, p.scope.Values.Insert(leaf.id, binding[H]{typ: t, h: h}))

	if p.peek().Type == lexer.TokenAssign {
		p.next()
		p.initializer(operand[H]{typ: t, h: h, lvalue: true})
	}
}

func (p *Parser[H]) declareTypedef(leaf *declarator, t ctypes.Type) {
	if _, ok := p.scope.Values.LookupLocal(leaf.id); ok {
		p.errorf(leaf.tok, "redefinition of %s as a different kind of symbol", leaf.name)
	}
	if prior, ok := p.scope.Typedefs.LookupLocal(leaf.id); ok {
		if !ctypes.Equal(prior, t) {
			p.errorf(leaf.tok, "typedef redefinition with different types (%s vs %s)", t, prior)
		}
		return
	}
	p.check(leaf.tok, p.scope.Typedefs.Insert(leaf.id, t))
}

// Statements

func (p *Parser[H]) compoundStatement() {
	p.expect(lexer.TokenLBrace)
	p.scope.Push()
	p.blockItems()
	p.scope.Pop()
}

// blockItems parses declarations and statements up to and including the
// closing brace, which it returns.
func (p *Parser[H]) blockItems() lexer.Token {
	for {
		tok := p.peek()
		switch {
		case tok.Type == lexer.TokenRBrace:
			return p.next()
		case tok.Type == lexer.TokenEOF:
			p.errorf(tok, "expected '}', got EOF")
		case p.isDeclarationStart(tok):
			p.declaration()
		default:
			p.statement()
		}
	}
}

func (p *Parser[H]) statement() {
	tok := p.peek()
	switch tok.Type {
	case lexer.TokenLBrace:
		p.compoundStatement()
	case lexer.TokenSemicolon:
		p.next()
	case lexer.TokenReturn:
		p.returnStatement()
	case lexer.TokenGoto, lexer.TokenContinue, lexer.TokenBreak:
		p.unimplemented(tok, "jump statement %s", tok.Type)
	case lexer.TokenIf, lexer.TokenSwitch:
		p.unimplemented(tok, "selection statement %s", tok.Type)
	case lexer.TokenWhile, lexer.TokenDo, lexer.TokenFor:
		p.unimplemented(tok, "iteration statement %s", tok.Type)
	case lexer.TokenCase, lexer.TokenDefault:
		p.unimplemented(tok, "labeled statement %s", tok.Type)
	default:
		p.expression()
		p.expect(lexer.TokenSemicolon)
	}
}

func (p *Parser[H]) returnStatement() {
	ret := p.next()
	if p.peek().Type == lexer.TokenSemicolon {
		p.next()
		var none H
		p.check(ret, p.v.Return(none, false))
		return
	}
	val := p.expression()
	p.expect(lexer.TokenSemicolon)

	result := p.fn.typ.Return
	if _, isVoid := result.(ctypes.Tvoid); isVoid {
		p.errorf(ret, "void function %s should not return a value", p.fn.name)
	}
	if !assignable(result, val.typ) {
		p.errorf(ret, "returning %s from a function with result type %s", val.typ, result)
	}
	p.check(ret, p.v.Return(val.h, true))
}
