package parser

import (
	"math"
	"slices"

	"github.com/raymyers/kuicc/pkg/ctypes"
	"github.com/raymyers/kuicc/pkg/lexer"
)

// operand is a parsed expression: the backend's handle plus the type and
// lvalue-ness the parser needs for its own checks.
type operand[H any] struct {
	typ    ctypes.Type
	h      H
	lvalue bool
}

// assignOps maps each assignment operator to the binary operator of its
// compound form; plain '=' maps to TokenError.
var assignOps = map[lexer.TokenType]lexer.TokenType{
	lexer.TokenAssign:        lexer.TokenError,
	lexer.TokenStarAssign:    lexer.TokenStar,
	lexer.TokenSlashAssign:   lexer.TokenSlash,
	lexer.TokenPercentAssign: lexer.TokenPercent,
	lexer.TokenPlusAssign:    lexer.TokenPlus,
	lexer.TokenMinusAssign:   lexer.TokenMinus,
	lexer.TokenShlAssign:     lexer.TokenShl,
	lexer.TokenShrAssign:     lexer.TokenShr,
	lexer.TokenAndAssign:     lexer.TokenAmpersand,
	lexer.TokenXorAssign:     lexer.TokenCaret,
	lexer.TokenOrAssign:      lexer.TokenPipe,
}

// expression parses a comma expression
func (p *Parser[H]) expression() operand[H] {
	left := p.assignment()
	for p.peek().Type == lexer.TokenComma {
		op := p.next()
		right := p.assignment()
		h, err := p.v.Binop(lexer.TokenComma, left.h, right.h)
		p.check(op, err)
		left = operand[H]{typ: right.typ, h: h}
	}
	return left
}

// assignment is right associative: a = b = c is a = (b = c). A compound
// assignment a op= b is visited as the binop a op b followed by an assign.
func (p *Parser[H]) assignment() operand[H] {
	left := p.conditional()
	base, ok := assignOps[p.peek().Type]
	if !ok {
		return left
	}
	op := p.next()
	p.checkAssignable(op, left)
	right := p.assignment()

	src := right
	if base != lexer.TokenError {
		src = p.binop(op, base, left, right)
	}
	if !assignable(left.typ, src.typ) {
		p.errorf(op, "incompatible types assigning %s to %s", src.typ, left.typ)
	}
	h, err := p.v.Assign(left.h, src.h)
	p.check(op, err)
	return operand[H]{typ: ctypes.Unqualified(left.typ), h: h}
}

func (p *Parser[H]) checkAssignable(op lexer.Token, dest operand[H]) {
	if !dest.lvalue {
		p.errorf(op, "expression is not assignable")
	}
	switch dest.typ.(type) {
	case ctypes.Tarray:
		p.errorf(op, "array type %s is not assignable", dest.typ)
	case ctypes.Tstruct, ctypes.Tunion:
		p.unimplemented(op, "assignment of %s", dest.typ)
	}
	if dest.typ.Quals().Const {
		p.errorf(op, "cannot assign to a variable of const-qualified type %s", dest.typ)
	}
}

// assignable reports whether a value of type src may be stored in dst
func assignable(dst, src ctypes.Type) bool {
	if ctypes.IsArithmetic(dst) && ctypes.IsArithmetic(src) {
		return true
	}
	if dp, ok := dst.(ctypes.Tpointer); ok {
		sp, ok := src.(ctypes.Tpointer)
		if !ok {
			return false
		}
		_, dv := dp.Elem.(ctypes.Tvoid)
		_, sv := sp.Elem.(ctypes.Tvoid)
		return dv || sv || ctypes.Compatible(ctypes.Unqualified(dp.Elem), ctypes.Unqualified(sp.Elem))
	}
	if ctypes.IsRecord(dst) {
		return ctypes.Compatible(ctypes.Unqualified(dst), ctypes.Unqualified(src))
	}
	return false
}

func (p *Parser[H]) conditional() operand[H] {
	cond := p.logicalOr()
	if tok := p.peek(); tok.Type == lexer.TokenQuestion {
		p.unimplemented(tok, "conditional operator")
	}
	return cond
}

func (p *Parser[H]) logicalOr() operand[H] {
	left := p.logicalAnd()
	if tok := p.peek(); tok.Type == lexer.TokenOr {
		p.unimplemented(tok, "logical operator %s", tok.Type)
	}
	return left
}

func (p *Parser[H]) logicalAnd() operand[H] {
	left := p.inclusiveOr()
	if tok := p.peek(); tok.Type == lexer.TokenAnd {
		p.unimplemented(tok, "logical operator %s", tok.Type)
	}
	return left
}

func (p *Parser[H]) inclusiveOr() operand[H] {
	return p.binaryLevel(p.exclusiveOr, lexer.TokenPipe)
}

func (p *Parser[H]) exclusiveOr() operand[H] {
	return p.binaryLevel(p.and, lexer.TokenCaret)
}

func (p *Parser[H]) and() operand[H] {
	return p.binaryLevel(p.equality, lexer.TokenAmpersand)
}

func (p *Parser[H]) equality() operand[H] {
	return p.binaryLevel(p.relational, lexer.TokenEq, lexer.TokenNe)
}

func (p *Parser[H]) relational() operand[H] {
	return p.binaryLevel(p.shift, lexer.TokenLt, lexer.TokenGt, lexer.TokenLe, lexer.TokenGe)
}

func (p *Parser[H]) shift() operand[H] {
	return p.binaryLevel(p.additive, lexer.TokenShl, lexer.TokenShr)
}

func (p *Parser[H]) additive() operand[H] {
	return p.binaryLevel(p.multiplicative, lexer.TokenPlus, lexer.TokenMinus)
}

func (p *Parser[H]) multiplicative() operand[H] {
	return p.binaryLevel(p.cast, lexer.TokenStar, lexer.TokenSlash, lexer.TokenPercent)
}

// binaryLevel parses one left-associative precedence level: operands
// come from the next tighter level and each operator in ops folds the
// running result through the backend.
func (p *Parser[H]) binaryLevel(next func() operand[H], ops ...lexer.TokenType) operand[H] {
	left := next()
	for slices.Contains(ops, p.peek().Type) {
		tok := p.next()
		right := next()
		left = p.binop(tok, tok.Type, left, right)
	}
	return left
}

func (p *Parser[H]) binop(tok lexer.Token, op lexer.TokenType, l, r operand[H]) operand[H] {
	t, ok := binopType(op, l.typ, r.typ)
	if !ok {
		p.errorf(tok, "invalid operands to binary %s (have %s and %s)", op, l.typ, r.typ)
	}
	h, err := p.v.Binop(op, l.h, r.h)
	p.check(tok, err)
	return operand[H]{typ: t, h: h}
}

// binopType returns the result type of a binary operator
func binopType(op lexer.TokenType, a, b ctypes.Type) (ctypes.Type, bool) {
	switch op {
	case lexer.TokenPlus, lexer.TokenMinus, lexer.TokenStar, lexer.TokenSlash:
		if ctypes.IsArithmetic(a) && ctypes.IsArithmetic(b) {
			return ctypes.UsualArithmetic(a, b), true
		}
	case lexer.TokenPercent, lexer.TokenAmpersand, lexer.TokenCaret, lexer.TokenPipe:
		if ctypes.IsInteger(a) && ctypes.IsInteger(b) {
			return ctypes.UsualArithmetic(a, b), true
		}
	case lexer.TokenShl, lexer.TokenShr:
		if ctypes.IsInteger(a) && ctypes.IsInteger(b) {
			return ctypes.Promote(a), true
		}
	case lexer.TokenLt, lexer.TokenGt, lexer.TokenLe, lexer.TokenGe, lexer.TokenEq, lexer.TokenNe:
		if ctypes.IsArithmetic(a) && ctypes.IsArithmetic(b) {
			return ctypes.Int(), true
		}
	}
	return nil, false
}

func (p *Parser[H]) cast() operand[H] {
	if tok := p.peek(); tok.Type == lexer.TokenLParen && p.isDeclarationStart(p.peekN(1)) {
		p.unimplemented(tok, "cast expression")
	}
	return p.unary()
}

func (p *Parser[H]) unary() operand[H] {
	tok := p.peek()
	switch tok.Type {
	case lexer.TokenPlus:
		p.next()
		o := p.cast()
		if !ctypes.IsArithmetic(o.typ) {
			p.errorf(tok, "invalid argument type %s to unary +", o.typ)
		}
		return operand[H]{typ: ctypes.Promote(o.typ), h: o.h}
	case lexer.TokenSizeof, lexer.TokenAlignof, lexer.Token_Alignof:
		return p.sizeOrAlign()
	case lexer.TokenMinus, lexer.TokenNot, lexer.TokenTilde, lexer.TokenAmpersand,
		lexer.TokenStar, lexer.TokenIncrement, lexer.TokenDecrement:
		p.unimplemented(tok, "unary operator %s", tok.Type)
	}
	return p.postfix()
}

// sizeOrAlign handles sizeof and _Alignof applied to a parenthesized
// type name. The result is an unsigned long constant.
func (p *Parser[H]) sizeOrAlign() operand[H] {
	kw := p.next()
	if p.peek().Type == lexer.TokenLParen {
		p.next()
		if p.isDeclarationStart(p.peek()) {
			t := p.typeName()
			p.expect(lexer.TokenRParen)
			if !ctypes.IsComplete(t) {
				p.errorf(kw, "invalid application of %s to incomplete type %s", kw.Type, t)
			}
			v := t.Size()
			if kw.Type != lexer.TokenSizeof {
				v = t.Align()
			}
			h, err := p.v.IntegerLiteral(v)
			p.check(kw, err)
			return operand[H]{typ: ctypes.Tint{Kind: ctypes.ILong, Sign: ctypes.Unsigned}, h: h}
		}
		p.backup()
	}
	p.unimplemented(kw, "%s applied to an expression", kw.Type)
	panic("unreachable")
}

func (p *Parser[H]) postfix() operand[H] {
	left := p.primary()
	for {
		tok := p.peek()
		switch tok.Type {
		case lexer.TokenLBracket:
			p.next()
			index := p.expression()
			p.expect(lexer.TokenRBracket)
			left = p.subscript(tok, left, index)
		case lexer.TokenDot:
			p.next()
			left = p.member(p.expect(lexer.TokenIdent), left)
		case lexer.TokenArrow:
			p.unimplemented(tok, "member access through pointer")
		case lexer.TokenLParen:
			p.unimplemented(tok, "function call")
		case lexer.TokenIncrement, lexer.TokenDecrement:
			p.unimplemented(tok, "postfix operator %s", tok.Type)
		default:
			return left
		}
	}
}

// wantsLocation reports whether the expression just parsed will be
// assigned to or addressed further, so it must stay a location. Closing
// parentheses are looked through: (a[0]) = 1 assigns to the element.
func (p *Parser[H]) wantsLocation() bool {
	n := 0
	for p.peekN(n).Type == lexer.TokenRParen {
		n++
	}
	switch t := p.peekN(n).Type; t {
	case lexer.TokenLBracket, lexer.TokenDot, lexer.TokenArrow, lexer.TokenIncrement, lexer.TokenDecrement:
		return true
	default:
		_, ok := assignOps[t]
		return ok
	}
}

func (p *Parser[H]) subscript(tok lexer.Token, array, index operand[H]) operand[H] {
	arr, ok := array.typ.(ctypes.Tarray)
	if !ok {
		if _, isPtr := array.typ.(ctypes.Tpointer); isPtr {
			p.unimplemented(tok, "subscript of pointer type %s", array.typ)
		}
		p.errorf(tok, "subscripted value of type %s is not an array", array.typ)
	}
	if !ctypes.IsInteger(index.typ) {
		p.errorf(tok, "array subscript is not an integer")
	}
	elem := withQuals(arr.Elem, arr.Q)
	lvalue := !ctypes.IsScalar(elem) || p.wantsLocation()
	h, err := p.v.ArrayReference(array.h, index.h, lvalue)
	p.check(tok, err)
	return operand[H]{typ: elem, h: h, lvalue: lvalue}
}

func (p *Parser[H]) member(name lexer.Token, object operand[H]) operand[H] {
	rec := ctypes.RecordOf(object.typ)
	if rec == nil {
		p.errorf(name, "member reference base type %s is not a structure or union", object.typ)
	}
	if !rec.Complete() {
		p.errorf(name, "incomplete definition of type %s", object.typ)
	}
	m, ok := rec.Lookup(name.ID)
	if !ok {
		p.errorf(name, "no member named %s in %s", name.Literal, object.typ)
	}
	h, err := p.v.StructReference(object.h, m)
	p.check(name, err)
	return operand[H]{typ: withQuals(m.Type, object.typ.Quals()), h: h, lvalue: object.lvalue}
}

func (p *Parser[H]) primary() operand[H] {
	tok := p.peek()
	switch tok.Type {
	case lexer.TokenIdent:
		p.next()
		if p.isTypedefName(tok) {
			p.errorf(tok, "unexpected type name %s: expected expression", tok.Literal)
		}
		b, ok := p.scope.Values.Lookup(tok.ID)
		if !ok {
			p.errorf(tok, "use of undeclared identifier %s", tok.Literal)
		}
		if _, isFn := b.typ.(ctypes.Tfunction); isFn {
			p.unimplemented(tok, "function designator %s used as a value", tok.Literal)
		}
		return operand[H]{typ: b.typ, h: b.h, lvalue: true}

	case lexer.TokenInt:
		p.next()
		h, err := p.v.IntegerLiteral(tok.Int)
		p.check(tok, err)
		return operand[H]{typ: intLiteralType(tok.Int), h: h}

	case lexer.TokenFloat:
		p.next()
		h, err := p.v.FloatLiteral(tok.Float)
		p.check(tok, err)
		return operand[H]{typ: ctypes.Double(), h: h}

	case lexer.TokenTrue, lexer.TokenFalse:
		p.next()
		var v int64
		if tok.Type == lexer.TokenTrue {
			v = 1
		}
		h, err := p.v.IntegerLiteral(v)
		p.check(tok, err)
		return operand[H]{typ: ctypes.Bool(), h: h}

	case lexer.TokenLParen:
		p.next()
		o := p.expression()
		p.expect(lexer.TokenRParen)
		return o

	case lexer.TokenString:
		p.unimplemented(tok, "string literal")
	case lexer.TokenNullptr, lexer.Token_Generic:
		p.unimplemented(tok, "%s", tok.Type)
	}
	p.errorf(tok, "expected expression, got %s", describeToken(tok))
	panic("unreachable")
}

// intLiteralType is int when the value fits, long otherwise
func intLiteralType(v int64) ctypes.Type {
	if v >= math.MinInt32 && v <= math.MaxInt32 {
		return ctypes.Int()
	}
	return ctypes.Long()
}
