package lexer

import "github.com/raymyers/kuicc/pkg/diag"

// TokenType represents the type of a token.
//
// The enum is partitioned by marker values: everything between
// keywordsStart and punctStart is a keyword, everything between punctStart
// and punctEnd is punctuation.
type TokenType int

const (
	// Control tokens
	TokenError TokenType = iota
	TokenEOF
	TokenIdent  // main, foo, x
	TokenString // "hello"
	TokenInt    // 42
	TokenFloat  // 4.2

	keywordsStart

	TokenAlignas
	TokenAlignof
	TokenAuto
	TokenBool
	TokenBreak
	TokenCase
	TokenChar
	TokenConst
	TokenConstexpr
	TokenContinue
	TokenDefault
	TokenDo
	TokenDouble
	TokenElse
	TokenEnum
	TokenExtern
	TokenFalse
	TokenFloat_ // float
	TokenFor
	TokenGoto
	TokenIf
	TokenInline
	TokenInt_ // int
	TokenLong
	TokenNullptr
	TokenRegister
	TokenRestrict
	TokenReturn
	TokenShort
	TokenSigned
	TokenSizeof
	TokenStatic
	TokenStaticAssert
	TokenStruct
	TokenSwitch
	TokenThreadLocal
	TokenTrue
	TokenTypedef
	TokenTypeof
	TokenTypeofUnqual
	TokenUnion
	TokenUnsigned
	TokenVoid
	TokenVolatile
	TokenWhile
	Token_Alignas
	Token_Alignof
	Token_Atomic
	Token_BitInt
	Token_Bool
	Token_Complex
	Token_Decimal128
	Token_Decimal32
	Token_Decimal64
	Token_Generic
	Token_Imaginary
	Token_Noreturn
	Token_StaticAssert
	Token_ThreadLocal

	punctStart

	TokenNot           // !
	TokenNe            // !=
	TokenPercent       // %
	TokenPercentAssign // %=
	TokenAmpersand     // &
	TokenAnd           // &&
	TokenAndAssign     // &=
	TokenLParen        // (
	TokenRParen        // )
	TokenStar          // *
	TokenStarAssign    // *=
	TokenPlus          // +
	TokenIncrement     // ++
	TokenPlusAssign    // +=
	TokenComma         // ,
	TokenMinus         // -
	TokenDecrement     // --
	TokenMinusAssign   // -=
	TokenArrow         // ->
	TokenDot           // .
	TokenEllipsis      // ...
	TokenSlash         // /
	TokenSlashAssign   // /=
	TokenColon         // :
	TokenSemicolon     // ;
	TokenLt            // <
	TokenShl           // <<
	TokenShlAssign     // <<=
	TokenLe            // <=
	TokenAssign        // =
	TokenEq            // ==
	TokenGt            // >
	TokenGe            // >=
	TokenShr           // >>
	TokenShrAssign     // >>=
	TokenQuestion      // ?
	TokenLBracket      // [
	TokenRBracket      // ]
	TokenCaret         // ^
	TokenXorAssign     // ^=
	TokenLBrace        // {
	TokenPipe          // |
	TokenOrAssign      // |=
	TokenOr            // ||
	TokenRBrace        // }
	TokenTilde         // ~

	punctEnd
)

var keywords = map[string]TokenType{
	"alignas":        TokenAlignas,
	"alignof":        TokenAlignof,
	"auto":           TokenAuto,
	"bool":           TokenBool,
	"break":          TokenBreak,
	"case":           TokenCase,
	"char":           TokenChar,
	"const":          TokenConst,
	"constexpr":      TokenConstexpr,
	"continue":       TokenContinue,
	"default":        TokenDefault,
	"do":             TokenDo,
	"double":         TokenDouble,
	"else":           TokenElse,
	"enum":           TokenEnum,
	"extern":         TokenExtern,
	"false":          TokenFalse,
	"float":          TokenFloat_,
	"for":            TokenFor,
	"goto":           TokenGoto,
	"if":             TokenIf,
	"inline":         TokenInline,
	"int":            TokenInt_,
	"long":           TokenLong,
	"nullptr":        TokenNullptr,
	"register":       TokenRegister,
	"restrict":       TokenRestrict,
	"return":         TokenReturn,
	"short":          TokenShort,
	"signed":         TokenSigned,
	"sizeof":         TokenSizeof,
	"static":         TokenStatic,
	"static_assert":  TokenStaticAssert,
	"struct":         TokenStruct,
	"switch":         TokenSwitch,
	"thread_local":   TokenThreadLocal,
	"true":           TokenTrue,
	"typedef":        TokenTypedef,
	"typeof":         TokenTypeof,
	"typeof_unqual":  TokenTypeofUnqual,
	"union":          TokenUnion,
	"unsigned":       TokenUnsigned,
	"void":           TokenVoid,
	"volatile":       TokenVolatile,
	"while":          TokenWhile,
	"_Alignas":       Token_Alignas,
	"_Alignof":       Token_Alignof,
	"_Atomic":        Token_Atomic,
	"_BitInt":        Token_BitInt,
	"_Bool":          Token_Bool,
	"_Complex":       Token_Complex,
	"_Decimal128":    Token_Decimal128,
	"_Decimal32":     Token_Decimal32,
	"_Decimal64":     Token_Decimal64,
	"_Generic":       Token_Generic,
	"_Imaginary":     Token_Imaginary,
	"_Noreturn":      Token_Noreturn,
	"_Static_assert": Token_StaticAssert,
	"_Thread_local":  Token_ThreadLocal,
}

var punctuation = map[string]TokenType{
	"!":   TokenNot,
	"!=":  TokenNe,
	"%":   TokenPercent,
	"%=":  TokenPercentAssign,
	"&":   TokenAmpersand,
	"&&":  TokenAnd,
	"&=":  TokenAndAssign,
	"(":   TokenLParen,
	")":   TokenRParen,
	"*":   TokenStar,
	"*=":  TokenStarAssign,
	"+":   TokenPlus,
	"++":  TokenIncrement,
	"+=":  TokenPlusAssign,
	",":   TokenComma,
	"-":   TokenMinus,
	"--":  TokenDecrement,
	"-=":  TokenMinusAssign,
	"->":  TokenArrow,
	".":   TokenDot,
	"...": TokenEllipsis,
	"/":   TokenSlash,
	"/=":  TokenSlashAssign,
	":":   TokenColon,
	";":   TokenSemicolon,
	"<":   TokenLt,
	"<<":  TokenShl,
	"<<=": TokenShlAssign,
	"<=":  TokenLe,
	"=":   TokenAssign,
	"==":  TokenEq,
	">":   TokenGt,
	">=":  TokenGe,
	">>":  TokenShr,
	">>=": TokenShrAssign,
	"?":   TokenQuestion,
	"[":   TokenLBracket,
	"]":   TokenRBracket,
	"^":   TokenCaret,
	"^=":  TokenXorAssign,
	"{":   TokenLBrace,
	"|":   TokenPipe,
	"|=":  TokenOrAssign,
	"||":  TokenOr,
	"}":   TokenRBrace,
	"~":   TokenTilde,
}

// maxPunctLen is the length of the longest punctuation entry
const maxPunctLen = 3

var tokenNames = map[TokenType]string{
	TokenError:  "ERROR",
	TokenEOF:    "EOF",
	TokenIdent:  "IDENT",
	TokenString: "STRING",
	TokenInt:    "INT",
	TokenFloat:  "FLOAT",
}

func init() {
	for text, typ := range keywords {
		tokenNames[typ] = text
	}
	for text, typ := range punctuation {
		tokenNames[typ] = text
	}
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// IsKeyword reports whether t is a reserved word
func (t TokenType) IsKeyword() bool {
	return t > keywordsStart && t < punctStart
}

// IsPunct reports whether t is an operator or delimiter
func (t TokenType) IsPunct() bool {
	return t > punctStart && t < punctEnd
}

// Span locates a token in its source file. Start is inclusive, end is the
// position just past the last byte.
type Span struct {
	File      string
	Line      int
	Column    int
	EndLine   int
	EndColumn int
}

// Pos returns the start of the span as a diagnostic position
func (s Span) Pos() diag.Pos {
	return diag.Pos{File: s.File, Line: s.Line, Column: s.Column}
}

// Token represents a lexical token
type Token struct {
	Type    TokenType
	Literal string // source text of the token
	// ID is the interned id of an identifier, string, integer or float
	// literal in the matching Interner table.
	ID    int
	Int   int64
	Float float64
	Span  Span
}

// LookupIdent returns the keyword type for ident, or TokenIdent
func LookupIdent(ident string) TokenType {
	if tok, ok := keywords[ident]; ok {
		return tok
	}
	return TokenIdent
}
