package parser

import (
	"github.com/raymyers/kuicc/pkg/ctypes"
	"github.com/raymyers/kuicc/pkg/lexer"
)

type storageClass int

const (
	scNone storageClass = iota
	scExtern
	scStatic
	scAuto
	scRegister
	scTypedef
)

var storageClasses = map[lexer.TokenType]storageClass{
	lexer.TokenExtern:   scExtern,
	lexer.TokenStatic:   scStatic,
	lexer.TokenAuto:     scAuto,
	lexer.TokenRegister: scRegister,
	lexer.TokenTypedef:  scTypedef,
}

// declSpecs accumulates the specifiers in front of a declarator list
type declSpecs struct {
	typ      ctypes.Type
	storage  storageClass
	inline   bool
	noreturn bool
	tok      lexer.Token // first token, for diagnostics
}

// specifierQualifierOnly reports whether only type specifiers and
// qualifiers were given, as required inside struct bodies and type names.
func (s declSpecs) specifierQualifierOnly() bool {
	return s.storage == scNone && !s.inline && !s.noreturn
}

// unsupportedSpecifiers are recognized keywords with no translation
var unsupportedSpecifiers = map[lexer.TokenType]bool{
	lexer.Token_Atomic:       true,
	lexer.Token_BitInt:       true,
	lexer.Token_Complex:      true,
	lexer.Token_Imaginary:    true,
	lexer.Token_Decimal32:    true,
	lexer.Token_Decimal64:    true,
	lexer.Token_Decimal128:   true,
	lexer.TokenTypeof:        true,
	lexer.TokenTypeofUnqual:  true,
	lexer.TokenAlignas:       true,
	lexer.Token_Alignas:      true,
	lexer.TokenConstexpr:     true,
	lexer.TokenThreadLocal:   true,
	lexer.Token_ThreadLocal:  true,
	lexer.TokenStaticAssert:  true,
	lexer.Token_StaticAssert: true,
}

// isDeclarationStart reports whether tok can begin a declaration
func (p *Parser[H]) isDeclarationStart(tok lexer.Token) bool {
	switch tok.Type {
	case lexer.TokenConst, lexer.TokenVolatile, lexer.TokenRestrict,
		lexer.TokenInline, lexer.Token_Noreturn,
		lexer.TokenVoid, lexer.TokenChar, lexer.TokenShort, lexer.TokenInt_, lexer.TokenLong,
		lexer.TokenFloat_, lexer.TokenDouble, lexer.TokenSigned, lexer.TokenUnsigned,
		lexer.TokenBool, lexer.Token_Bool,
		lexer.TokenStruct, lexer.TokenUnion, lexer.TokenEnum:
		return true
	case lexer.TokenIdent:
		return p.isTypedefName(tok)
	}
	_, storage := storageClasses[tok.Type]
	return storage || unsupportedSpecifiers[tok.Type]
}

// isTypedefName reports whether the innermost binding of an identifier
// is a typedef rather than an ordinary value. Both chains are pushed
// together, so they are walked level by level.
func (p *Parser[H]) isTypedefName(tok lexer.Token) bool {
	if tok.Type != lexer.TokenIdent {
		return false
	}
	vs, ts := p.scope.Values, p.scope.Typedefs
	for vs != nil && ts != nil {
		if _, ok := ts.LookupLocal(tok.ID); ok {
			return true
		}
		if _, ok := vs.LookupLocal(tok.ID); ok {
			return false
		}
		vs, ts = vs.Parent(), ts.Parent()
	}
	return false
}

// declarationSpecifiers parses storage classes, qualifiers, function
// specifiers and type specifiers. Conflicting combinations are rejected
// as soon as the offending keyword is seen.
func (p *Parser[H]) declarationSpecifiers() declSpecs {
	specs := declSpecs{tok: p.peek()}
	var (
		quals     ctypes.Qualifiers
		prim      lexer.TokenType // TokenError until a primitive keyword is seen
		sign      int             // -1 signed, +1 unsigned
		length    int             // -1 short, 1 or 2 longs
		aggregate ctypes.Type     // struct, union or typedef name
	)

loop:
	for {
		tok := p.peek()
		switch tok.Type {
		case lexer.TokenConst:
			quals.Const = true
		case lexer.TokenVolatile:
			quals.Volatile = true
		case lexer.TokenRestrict:
			quals.Restrict = true
		case lexer.TokenInline:
			specs.inline = true
		case lexer.Token_Noreturn:
			specs.noreturn = true

		case lexer.TokenExtern, lexer.TokenStatic, lexer.TokenAuto, lexer.TokenRegister, lexer.TokenTypedef:
			if specs.storage != scNone {
				p.errorf(tok, "storage class %s conflicts with earlier storage class", tok.Type)
			}
			specs.storage = storageClasses[tok.Type]

		case lexer.TokenVoid, lexer.TokenChar, lexer.TokenInt_, lexer.TokenFloat_, lexer.TokenDouble,
			lexer.TokenBool, lexer.Token_Bool:
			if prim != lexer.TokenError {
				p.errorf(tok, "type %s conflicts with earlier type %s", tok.Type, prim)
			}
			if aggregate != nil {
				p.errorf(tok, "type %s conflicts with earlier type %s", tok.Type, aggregate)
			}
			prim = tok.Type
			p.checkModifiers(tok, prim, sign, length)

		case lexer.TokenSigned, lexer.TokenUnsigned:
			if prim != lexer.TokenError && prim != lexer.TokenInt_ && prim != lexer.TokenChar {
				p.errorf(tok, "only int and char can be %s", tok.Type)
			}
			if sign != 0 {
				p.errorf(tok, "%s conflicts with earlier signed or unsigned", tok.Type)
			}
			if aggregate != nil {
				p.errorf(tok, "%s cannot be combined with %s", tok.Type, aggregate)
			}
			sign = 1
			if tok.Type == lexer.TokenSigned {
				sign = -1
			}

		case lexer.TokenShort:
			if prim != lexer.TokenError && prim != lexer.TokenInt_ {
				p.errorf(tok, "only int can be short")
			}
			if length != 0 {
				p.errorf(tok, "short conflicts with earlier short or long")
			}
			if aggregate != nil {
				p.errorf(tok, "short cannot be combined with %s", aggregate)
			}
			length = -1

		case lexer.TokenLong:
			if prim != lexer.TokenError && prim != lexer.TokenInt_ && prim != lexer.TokenDouble {
				p.errorf(tok, "only int or double can be long")
			}
			switch {
			case length < 0:
				p.errorf(tok, "long conflicts with earlier short")
			case length == 2:
				p.errorf(tok, "can have at most 2 longs")
			case prim == lexer.TokenDouble && length == 1:
				p.errorf(tok, "double can have at most 1 long")
			case aggregate != nil:
				p.errorf(tok, "long cannot be combined with %s", aggregate)
			}
			length++

		case lexer.TokenStruct, lexer.TokenUnion:
			if prim != lexer.TokenError || sign != 0 || length != 0 || aggregate != nil {
				p.errorf(tok, "cannot combine primitive type specifier, signed/unsigned, or long/short with struct or union")
			}
			aggregate = p.structOrUnion()
			continue

		case lexer.TokenEnum:
			p.unimplemented(tok, "enum")

		case lexer.TokenIdent:
			if prim != lexer.TokenError || sign != 0 || length != 0 || aggregate != nil || !p.isTypedefName(tok) {
				break loop
			}
			aggregate, _ = p.scope.Typedefs.Lookup(tok.ID)

		default:
			if unsupportedSpecifiers[tok.Type] {
				p.unimplemented(tok, "%s", tok.Type)
			}
			break loop
		}
		p.next()
	}

	if prim == lexer.TokenError && sign == 0 && length == 0 && aggregate == nil {
		p.errorf(p.peek(), "expected declaration specifiers, got %s", describeToken(p.peek()))
	}
	if aggregate != nil {
		specs.typ = withQuals(aggregate, quals)
		return specs
	}
	specs.typ = primitive(prim, sign, length).WithQuals(quals)
	return specs
}

// checkModifiers validates signedness and length keywords that came
// before the primitive type keyword.
func (p *Parser[H]) checkModifiers(tok lexer.Token, prim lexer.TokenType, sign, length int) {
	if sign != 0 && prim != lexer.TokenInt_ && prim != lexer.TokenChar {
		p.errorf(tok, "only int and char can be signed or unsigned")
	}
	if length < 0 && prim != lexer.TokenInt_ {
		p.errorf(tok, "only int can be short")
	}
	if length > 0 && prim != lexer.TokenInt_ && prim != lexer.TokenDouble {
		p.errorf(tok, "only int or double can be long")
	}
	if length > 1 && prim == lexer.TokenDouble {
		p.errorf(tok, "double can have at most 1 long")
	}
}

// primitive builds the type named by a checked keyword combination
func primitive(prim lexer.TokenType, sign, length int) ctypes.Type {
	s := ctypes.Signed
	if sign > 0 {
		s = ctypes.Unsigned
	}
	switch prim {
	case lexer.TokenVoid:
		return ctypes.Void()
	case lexer.TokenBool, lexer.Token_Bool:
		return ctypes.Bool()
	case lexer.TokenChar:
		return ctypes.Tint{Kind: ctypes.IChar, Sign: s}
	case lexer.TokenFloat_:
		return ctypes.Float()
	case lexer.TokenDouble:
		if length == 1 {
			return ctypes.LongDouble()
		}
		return ctypes.Double()
	}
	switch length {
	case -1:
		return ctypes.Tint{Kind: ctypes.IShort, Sign: s}
	case 1:
		return ctypes.Tint{Kind: ctypes.ILong, Sign: s}
	case 2:
		return ctypes.Tint{Kind: ctypes.ILongLong, Sign: s}
	}
	return ctypes.Tint{Kind: ctypes.IInt, Sign: s}
}

// withQuals adds q to the qualifiers t already has
func withQuals(t ctypes.Type, q ctypes.Qualifiers) ctypes.Type {
	have := t.Quals()
	have.Const = have.Const || q.Const
	have.Volatile = have.Volatile || q.Volatile
	have.Restrict = have.Restrict || q.Restrict
	return t.WithQuals(have)
}

// Struct and union specifiers

// structOrUnion parses a struct or union specifier. A tag with a member
// list is looked up in the current scope only and reconciled with an
// earlier declaration there; a bare tag refers to the nearest visible
// declaration, or forward-declares the tag in the current scope.
func (p *Parser[H]) structOrUnion() ctypes.Type {
	kw := p.next()
	union := kw.Type == lexer.TokenUnion
	table := p.scope.Structs
	if union {
		table = p.scope.Unions
	}

	var tag lexer.Token
	hasTag := p.peek().Type == lexer.TokenIdent
	if hasTag {
		tag = p.next()
	}

	if p.peek().Type != lexer.TokenLBrace {
		if !hasTag {
			p.errorf(p.peek(), "struct or union declaration must declare a tag or a member list")
		}
		lookup := table.Lookup
		if p.peek().Type == lexer.TokenSemicolon {
			lookup = table.LookupLocal
		}
		if t, ok := lookup(tag.ID); ok {
			return t
		}
		fwd := incomplete(union, tag)
		p.check(tag, table.Insert(tag.ID, fwd))
		return fwd
	}

	b := ctypes.NewBuilder(union)
	p.memberDeclarationList(b)
	var t ctypes.Type
	if union {
		t = b.Union(tag.Literal, tag.ID)
	} else {
		t = b.Struct(tag.Literal, tag.ID)
	}
	if !hasTag {
		return t
	}

	prior, ok := table.LookupLocal(tag.ID)
	if !ok {
		p.check(tag, table.Insert(tag.ID, t))
		return t
	}
	merged, err := ctypes.Composite(prior, t)
	if err != nil {
		p.errorf(tag, "tag %s was already declared with an incompatible type", tag.Literal)
	}
	return merged
}

func incomplete(union bool, tag lexer.Token) ctypes.Type {
	rec := ctypes.NewIncomplete(tag.Literal, tag.ID)
	if union {
		return ctypes.Tunion{Record: rec}
	}
	return ctypes.Tstruct{Record: rec}
}

// memberDeclarationList parses '{' member-declaration* '}' into b
func (p *Parser[H]) memberDeclarationList(b *ctypes.Builder) {
	p.expect(lexer.TokenLBrace)
	for p.peek().Type != lexer.TokenRBrace {
		specs := p.declarationSpecifiers()
		if !specs.specifierQualifierOnly() {
			p.errorf(specs.tok, "only type specifiers and type qualifiers allowed inside a struct declaration list")
		}
		if p.peek().Type == lexer.TokenSemicolon {
			semi := p.next()
			if !ctypes.IsRecord(specs.typ) {
				p.errorf(semi, "member declaration does not declare anything")
			}
			if err := b.AddAnonymous(specs.typ); err != nil {
				p.errorf(specs.tok, "%v", err)
			}
			continue
		}
		for {
			d := p.declarator()
			leaf := d.leaf()
			if leaf.name == "" {
				p.errorf(leaf.tok, "declarator in struct or union must have name")
			}
			t := p.typeOf(specs.typ, d)
			if _, isFn := t.(ctypes.Tfunction); isFn {
				p.errorf(leaf.tok, "member %s declared as a function", leaf.name)
			}
			if _, err := b.Add(leaf.name, leaf.id, t); err != nil {
				p.errorf(leaf.tok, "%v", err)
			}
			if p.peek().Type != lexer.TokenComma {
				break
			}
			p.next()
		}
		p.expect(lexer.TokenSemicolon)
	}
	p.next()
}

// Declarators

type declKind int

const (
	dIdent declKind = iota // identifier, or nothing for an abstract declarator
	dPointer
	dArray
	dFunction
	dKRFunction
)

// declarator is one derivation step of a declarator. typeOf applies the
// outermost step to the base type first and walks toward the identifier
// leaf, so "*a[3]" is pointer{array{a}}: an array of pointers.
type declarator struct {
	kind  declKind
	child *declarator
	tok   lexer.Token

	// dIdent
	name string
	id   int

	// dPointer
	quals ctypes.Qualifiers

	// dArray
	size int64

	// dFunction
	params []param
	varArg bool

	// dKRFunction
	idents  []lexer.Token
	krTypes []ctypes.Type
}

type param struct {
	specs declSpecs
	d     *declarator
}

// leaf returns the identifier (or abstract) end of the chain
func (d *declarator) leaf() *declarator {
	for d.child != nil {
		d = d.child
	}
	return d
}

// function returns the function step applied directly to the identifier,
// or nil when the declarator does not declare a function.
func (d *declarator) function() *declarator {
	for n := d; n.child != nil; n = n.child {
		if n.child.child == nil {
			if n.kind == dFunction || n.kind == dKRFunction {
				return n
			}
			return nil
		}
	}
	return nil
}

func (d *declarator) identIndex(id int) int {
	for i, tok := range d.idents {
		if tok.ID == id {
			return i
		}
	}
	return -1
}

// paramNames returns the identifier leaf of each parameter
func (d *declarator) paramNames() []*declarator {
	var names []*declarator
	if d.kind == dKRFunction {
		for _, tok := range d.idents {
			names = append(names, &declarator{tok: tok, name: tok.Literal, id: tok.ID})
		}
		return names
	}
	for _, prm := range d.params {
		names = append(names, prm.d.leaf())
	}
	return names
}

// declarator parses a declarator or an abstract declarator
func (p *Parser[H]) declarator() *declarator {
	if p.peek().Type == lexer.TokenStar {
		d := &declarator{kind: dPointer, tok: p.next()}
		d.quals = p.pointerQualifiers()
		d.child = p.declarator()
		return d
	}

	var d *declarator
	tok := p.peek()
	switch {
	case tok.Type == lexer.TokenLParen && p.startsGroupedDeclarator():
		p.next()
		d = p.declarator()
		p.expect(lexer.TokenRParen)
	case tok.Type == lexer.TokenIdent:
		p.next()
		d = &declarator{kind: dIdent, tok: tok, name: tok.Literal, id: tok.ID}
	default:
		d = &declarator{kind: dIdent, tok: tok}
	}

	for {
		switch p.peek().Type {
		case lexer.TokenLBracket:
			d = p.arraySuffix(d)
		case lexer.TokenLParen:
			d = p.functionSuffix(d)
		default:
			return d
		}
	}
}

func (p *Parser[H]) pointerQualifiers() ctypes.Qualifiers {
	var q ctypes.Qualifiers
	for {
		switch p.peek().Type {
		case lexer.TokenConst:
			q.Const = true
		case lexer.TokenVolatile:
			q.Volatile = true
		case lexer.TokenRestrict:
			q.Restrict = true
		default:
			return q
		}
		p.next()
	}
}

// startsGroupedDeclarator decides whether the '(' under the cursor
// groups a declarator or opens the parameter list of an abstract one.
func (p *Parser[H]) startsGroupedDeclarator() bool {
	switch after := p.peekN(1); after.Type {
	case lexer.TokenStar, lexer.TokenLParen:
		return true
	case lexer.TokenIdent:
		return !p.isTypedefName(after)
	}
	return false
}

func (p *Parser[H]) arraySuffix(inner *declarator) *declarator {
	lb := p.next()
	size := p.peek()
	switch size.Type {
	case lexer.TokenInt:
		if p.peekN(1).Type != lexer.TokenRBracket {
			p.unimplemented(size, "array size that is not an integer literal")
		}
		if size.Int < 0 {
			p.errorf(size, "array size must be nonnegative")
		}
		p.next()
	case lexer.TokenRBracket:
		p.unimplemented(size, "array declarator without a size")
	default:
		p.unimplemented(size, "array size that is not an integer literal")
	}
	p.expect(lexer.TokenRBracket)
	return &declarator{kind: dArray, child: inner, tok: lb, size: size.Int}
}

// functionSuffix parses a parameter list: "()", "(void)", a K&R
// identifier list, or prototype parameter declarations.
func (p *Parser[H]) functionSuffix(inner *declarator) *declarator {
	d := &declarator{kind: dFunction, child: inner, tok: p.next()}
	switch tok := p.peek(); {
	case tok.Type == lexer.TokenRParen:
		p.next()
		d.kind = dKRFunction
		return d
	case tok.Type == lexer.TokenVoid && p.peekN(1).Type == lexer.TokenRParen:
		p.next()
		p.next()
		return d
	case tok.Type == lexer.TokenIdent && !p.isTypedefName(tok):
		d.kind = dKRFunction
		for {
			d.idents = append(d.idents, p.expect(lexer.TokenIdent))
			if p.peek().Type != lexer.TokenComma {
				break
			}
			p.next()
		}
		p.expect(lexer.TokenRParen)
		return d
	}

	for {
		if tok := p.peek(); tok.Type == lexer.TokenEllipsis {
			if len(d.params) == 0 {
				p.errorf(tok, "ISO C requires a named parameter before '...'")
			}
			p.next()
			d.varArg = true
			break
		}
		specs := p.declarationSpecifiers()
		if specs.storage != scNone && specs.storage != scRegister {
			p.errorf(specs.tok, "invalid storage class for parameter")
		}
		d.params = append(d.params, param{specs: specs, d: p.declarator()})
		if p.peek().Type != lexer.TokenComma {
			break
		}
		p.next()
	}
	p.expect(lexer.TokenRParen)
	return d
}

// typeOf applies the derivations of d to base
func (p *Parser[H]) typeOf(base ctypes.Type, d *declarator) ctypes.Type {
	for ; d != nil; d = d.child {
		switch d.kind {
		case dPointer:
			base = ctypes.Pointer(base).WithQuals(d.quals)
		case dArray:
			if _, isFn := base.(ctypes.Tfunction); isFn {
				p.errorf(d.tok, "declaration of array of functions")
			}
			if !ctypes.IsComplete(base) {
				p.errorf(d.tok, "array has incomplete element type %s", base)
			}
			base = ctypes.Array(base, d.size)
		case dFunction, dKRFunction:
			switch base.(type) {
			case ctypes.Tarray:
				p.errorf(d.tok, "function cannot return array type %s", base)
			case ctypes.Tfunction:
				p.errorf(d.tok, "function cannot return function type %s", base)
			}
			base = p.functionType(base, d)
		}
	}
	return base
}

func (p *Parser[H]) functionType(ret ctypes.Type, d *declarator) ctypes.Type {
	if d.kind == dKRFunction {
		return ctypes.Tfunction{Return: ret, Params: d.krTypes, KR: true}
	}
	fn := ctypes.Tfunction{Return: ret, VarArg: d.varArg}
	for _, prm := range d.params {
		t := p.typeOf(prm.specs.typ, prm.d)
		if _, isVoid := t.(ctypes.Tvoid); isVoid {
			p.errorf(prm.specs.tok, "'void' must be the only parameter")
		}
		fn.Params = append(fn.Params, adjustParam(t))
	}
	return fn
}

// adjustParam applies the parameter type adjustments: arrays and
// functions are passed as pointers.
func adjustParam(t ctypes.Type) ctypes.Type {
	switch t := t.(type) {
	case ctypes.Tarray:
		return ctypes.Pointer(t.Elem).WithQuals(t.Q)
	case ctypes.Tfunction:
		return ctypes.Pointer(t)
	}
	return t
}

// typeName parses a type name as used by sizeof
func (p *Parser[H]) typeName() ctypes.Type {
	specs := p.declarationSpecifiers()
	if !specs.specifierQualifierOnly() {
		p.errorf(specs.tok, "type name cannot have a storage class or function specifier")
	}
	d := p.declarator()
	if leaf := d.leaf(); leaf.name != "" {
		p.errorf(leaf.tok, "unexpected identifier %s in type name", leaf.name)
	}
	return p.typeOf(specs.typ, d)
}
